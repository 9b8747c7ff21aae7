package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"example.com/meal-planner/internal/auth"
	"example.com/meal-planner/internal/repository"
)

// SyncResponse содержит время последнего изменения каждого документа в миллисекундах или null.
type SyncResponse map[string]*int64

// Sync возвращает метаданные для проверки устаревания кэша клиента.
func (h *DocumentHandler) Sync(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	modified, err := h.Documents.LastModified(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrInvalid) {
			return badRequest(c, "invalid user")
		}
		slog.Error("read sync metadata failed", slog.String("user_id", userID), slog.String("error", err.Error()))
		return serverError(c)
	}

	response := make(SyncResponse, len(modified))
	for docType, modifiedAt := range modified {
		if modifiedAt == nil {
			response[string(docType)] = nil
			continue
		}
		millis := modifiedAt.UnixMilli()
		response[string(docType)] = &millis
	}

	return c.JSON(http.StatusOK, response)
}
