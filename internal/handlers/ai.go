package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"example.com/meal-planner/internal/ai"
	"example.com/meal-planner/internal/auth"
	"example.com/meal-planner/internal/models"
)

const contentTypeNDJSON = "application/x-ndjson"

type AIHandler struct {
	Service *ai.Service
}

// NewAIHandler создает обработчик генерации рецептов.
func NewAIHandler(service *ai.Service) *AIHandler {
	return &AIHandler{Service: service}
}

type GenerateRecipeResponse struct {
	Recipe models.Recipe `json:"recipe"`
	Raw    string        `json:"raw"`
}

type streamLine struct {
	Chunk  string         `json:"chunk,omitempty"`
	Recipe *models.Recipe `json:"recipe,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Status сообщает, доступен ли локальный сервис генерации.
func (h *AIHandler) Status(c echo.Context) error {
	if _, ok := auth.UserIDFromContext(c); !ok {
		return unauthorized(c)
	}

	return c.JSON(http.StatusOK, h.Service.Status(c.Request().Context()))
}

// GenerateRecipe генерирует рецепт и возвращает его целиком.
func (h *AIHandler) GenerateRecipe(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	req, err := bindRecipeRequest(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	ctx := c.Request().Context()
	if err := h.Service.Probe(ctx); err != nil {
		return serviceUnavailable(c, err.Error())
	}

	recipe, raw, err := h.Service.GenerateRecipe(ctx, req, nil)
	if err != nil {
		logGeneration(userID, err)
		if isUnavailable(err) {
			return serviceUnavailable(c, err.Error())
		}
		return badGateway(c, err.Error())
	}

	logGeneration(userID, nil)
	return c.JSON(http.StatusOK, GenerateRecipeResponse{Recipe: recipe, Raw: raw})
}

// GenerateRecipeStream передает фрагменты ответа модели строками NDJSON,
// последней строкой идет разобранный рецепт или ошибка.
func (h *AIHandler) GenerateRecipeStream(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	req, err := bindRecipeRequest(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	ctx := c.Request().Context()
	if err := h.Service.Probe(ctx); err != nil {
		return serviceUnavailable(c, err.Error())
	}

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return serverError(c)
	}

	c.Response().Header().Set(echo.HeaderContentType, contentTypeNDJSON)
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	encoder := json.NewEncoder(c.Response())
	writeLine := func(line streamLine) {
		if err := encoder.Encode(line); err != nil {
			return
		}
		flusher.Flush()
	}

	recipe, _, err := h.Service.GenerateRecipe(ctx, req, func(chunk string) {
		writeLine(streamLine{Chunk: chunk})
	})
	logGeneration(userID, err)
	if err != nil {
		writeLine(streamLine{Error: err.Error()})
		return nil
	}

	writeLine(streamLine{Recipe: &recipe})
	return nil
}

func bindRecipeRequest(c echo.Context) (ai.RecipeRequest, error) {
	var req ai.RecipeRequest
	if err := c.Bind(&req); err != nil {
		return ai.RecipeRequest{}, errors.New("invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return ai.RecipeRequest{}, errors.New("validation failed")
	}
	return req, nil
}

func isUnavailable(err error) bool {
	return errors.Is(err, ai.ErrUnavailable) || errors.Is(err, ai.ErrModelMissing)
}

func logGeneration(userID string, err error) {
	if err != nil {
		slog.Warn("ai recipe generation failed", slog.String("user_id", userID), slog.String("error", err.Error()))
		return
	}
	slog.Info("ai recipe generated", slog.String("user_id", userID))
}
