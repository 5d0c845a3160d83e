package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/agentgate/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	logger  *slog.Logger

	// WebSocket keepalive
	wsReadTimeout  time.Duration
	wsPingInterval time.Duration
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:        service,
		logger:         logger,
		wsReadTimeout:  60 * time.Second,
		wsPingInterval: 30 * time.Second,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Chat streaming
	e.POST("/chat/stream", h.ChatStream)
	e.POST("/chat/stream/events", h.ChatStreamEvents)
	e.GET("/chat/ws", h.ChatWebSocket)

	// Run ledger
	e.GET("/v1/runs/:run_id", h.GetRun)
	e.GET("/v1/runs/:run_id/events", h.GetRunEvents)

	// Threads
	e.DELETE("/v1/threads/:thread_id", h.DeleteThread)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":       "healthy",
		"version":      "0.1.0",
		"interceptors": h.service.Interceptors(),
	})
}
