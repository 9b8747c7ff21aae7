package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type HealthResponse struct {
	Status        string `json:"status"`
	Storage       string `json:"storage"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type HealthHandler struct {
	storage string
	started time.Time
}

// NewHealthHandler создает обработчик liveness-проверки для выбранного драйвера хранилища.
func NewHealthHandler(storage string) *HealthHandler {
	return &HealthHandler{storage: storage, started: time.Now()}
}

// Health возвращает статус сервиса, драйвер хранилища и время работы.
func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:        "ok",
		Storage:       h.storage,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	})
}
