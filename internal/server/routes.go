package server

import (
	"github.com/labstack/echo/v4"

	"example.com/meal-planner/internal/handlers"
)

func registerRoutes(
	e *echo.Echo,
	healthHandler *handlers.HealthHandler,
	documentHandler *handlers.DocumentHandler,
	aiHandler *handlers.AIHandler,
	notificationHandler *handlers.NotificationHandler,
	authMiddleware echo.MiddlewareFunc,
	streamAuthMiddleware echo.MiddlewareFunc,
	apiRateLimiter echo.MiddlewareFunc,
	aiRateLimiter echo.MiddlewareFunc,
) {
	e.GET("/health", healthHandler.Health)

	api := e.Group("/api")

	api.GET("/events", notificationHandler.Stream, streamAuthMiddleware)

	docs := api.Group("", authMiddleware, apiRateLimiter)
	docs.GET("/ingredients", documentHandler.GetIngredients)
	docs.POST("/ingredients", documentHandler.SaveIngredients)
	docs.GET("/recipes", documentHandler.GetRecipes)
	docs.POST("/recipes", documentHandler.SaveRecipes)
	docs.GET("/shopping-list", documentHandler.GetShoppingList)
	docs.POST("/shopping-list", documentHandler.SaveShoppingList)
	docs.GET("/week", documentHandler.GetWeek)
	docs.POST("/week", documentHandler.SaveWeek)
	docs.GET("/sync", documentHandler.Sync)

	aiGroup := api.Group("/ai", authMiddleware)
	aiGroup.GET("/status", aiHandler.Status)
	aiGroup.POST("/recipes", aiHandler.GenerateRecipe, aiRateLimiter)
	aiGroup.POST("/recipes/stream", aiHandler.GenerateRecipeStream, aiRateLimiter)
}
