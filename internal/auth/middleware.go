package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	ContextUserIDKey = "user_id"
	tokenQueryParam  = "token"
)

type MiddlewareOption func(*middlewareOptions)

type middlewareOptions struct {
	allowQueryToken bool
}

// WithQueryToken разрешает передавать токен в параметре token: EventSource не умеет ставить заголовки.
func WithQueryToken() MiddlewareOption {
	return func(o *middlewareOptions) {
		o.allowQueryToken = true
	}
}

// BearerMiddleware проверяет токен и сохраняет user_id в контексте.
func BearerMiddleware(manager *TokenManager, opts ...MiddlewareOption) echo.MiddlewareFunc {
	options := middlewareOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString, err := extractToken(c, options)
			if err != nil {
				return err
			}

			userID, err := manager.VerifyToken(tokenString)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(ContextUserIDKey, userID)
			return next(c)
		}
	}
}

// UserIDFromContext извлекает идентификатор пользователя из контекста.
func UserIDFromContext(c echo.Context) (string, bool) {
	value := c.Get(ContextUserIDKey)
	userID, ok := value.(string)
	return userID, ok && userID != ""
}

func extractToken(c echo.Context, options middlewareOptions) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if options.allowQueryToken {
			if token := strings.TrimSpace(c.QueryParam(tokenQueryParam)); token != "" {
				return token, nil
			}
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
	}

	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
	}

	return tokenString, nil
}
