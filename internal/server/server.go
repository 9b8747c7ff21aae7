package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"example.com/meal-planner/internal/ai"
	"example.com/meal-planner/internal/auth"
	"example.com/meal-planner/internal/config"
	"example.com/meal-planner/internal/handlers"
	"example.com/meal-planner/internal/notifications"
	"example.com/meal-planner/internal/repository"
)

const bodyLimit = "5M"

// New собирает HTTP-сервер Echo с роутами и зависимостями.
// publisher доставляет события после записи; hub обслуживает локальные SSE-подключения.
func New(cfg config.Config, logger *slog.Logger, documents repository.DocumentRepository, hub *notifications.Hub, publisher notifications.Publisher) *echo.Echo {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = hub
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	if len(cfg.Server.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.Server.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
		}))
	}
	e.Use(middleware.BodyLimit(bodyLimit))

	tokenManager := auth.NewTokenManager(cfg.Auth.TokenSecret, cfg.Auth.TokenIssuer)
	aiService := ai.NewService(NewAIClient(cfg.AI), cfg.AI.Provider, cfg.AI.Model)

	healthHandler := handlers.NewHealthHandler(cfg.Storage.Driver)
	documentHandler := handlers.NewDocumentHandler(documents, publisher)
	aiHandler := handlers.NewAIHandler(aiService)
	notificationHandler := handlers.NewNotificationHandler(hub, cfg.Realtime.HeartbeatInterval)

	registerRoutes(
		e,
		healthHandler,
		documentHandler,
		aiHandler,
		notificationHandler,
		auth.BearerMiddleware(tokenManager),
		auth.BearerMiddleware(tokenManager, auth.WithQueryToken()),
		apiRateLimiter(cfg.Auth),
		aiRateLimiter(cfg.AI),
	)

	return e
}

// NewAIClient выбирает клиент локальной модели по провайдеру.
func NewAIClient(cfg config.AIConfig) ai.Client {
	switch strings.ToLower(cfg.Provider) {
	case config.AIProviderOpenAI:
		return ai.NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.ProbeTimeout)
	default:
		return ai.NewOllamaClient(cfg.BaseURL, cfg.Model, cfg.ProbeTimeout)
	}
}

// NewHTTPServer создает net/http сервер с заданными таймаутами.
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// errorHandler отдает ошибки Echo в формате {"error": "..."}.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "internal server error"

		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			status = httpErr.Code
			if text, ok := httpErr.Message.(string); ok {
				message = text
			} else {
				message = http.StatusText(status)
			}
		} else {
			logger.Error("unhandled error", slog.String("error", err.Error()))
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, map[string]string{"error": message})
	}
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", redactToken(v.URI)),
				slog.Int("status", v.Status),
				slog.String("remote_ip", v.RemoteIP),
				slog.Duration("latency", v.Latency),
			}

			if userID, ok := auth.UserIDFromContext(c); ok {
				attrs = append(attrs, slog.String("user_id", userID))
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}

			msg := "request completed"
			if v.Status >= http.StatusInternalServerError {
				logger.LogAttrs(c.Request().Context(), slog.LevelError, msg, attrs...)
				return nil
			}

			logger.LogAttrs(c.Request().Context(), slog.LevelInfo, msg, attrs...)
			return nil
		},
	})
}

// redactToken убирает токен из query, чтобы он не попадал в логи.
func redactToken(uri string) string {
	idx := strings.Index(uri, "token=")
	if idx < 0 {
		return uri
	}
	end := strings.IndexByte(uri[idx:], '&')
	if end < 0 {
		return uri[:idx] + "token=REDACTED"
	}
	return uri[:idx] + "token=REDACTED" + uri[idx+end:]
}

func apiRateLimiter(cfg config.AuthConfig) echo.MiddlewareFunc {
	return newRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
}

func aiRateLimiter(cfg config.AIConfig) echo.MiddlewareFunc {
	return newRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
}

func newRateLimiter(perMinute, burst int) echo.MiddlewareFunc {
	limit := rate.Limit(float64(perMinute) / 60.0)
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      limit,
		Burst:     burst,
		ExpiresIn: time.Minute,
	})

	return middleware.RateLimiter(store)
}
