package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingHandler struct {
	pinger Pinger
	logger *slog.Logger
}

func NewPingHandler(log *slog.Logger, pinger Pinger) *PingHandler {
	return &PingHandler{pinger: pinger, logger: log.With(slog.String("handler", "ping"))}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
}

func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// PingHead answers 503 while the database is unreachable.
func (h *PingHandler) PingHead(c echo.Context) error {
	if h.pinger != nil {
		if err := h.pinger.Ping(c.Request().Context()); err != nil {
			h.logger.Warn("health check failed", slog.Any("error", err))
			return c.NoContent(http.StatusServiceUnavailable)
		}
	}
	return c.NoContent(http.StatusOK)
}
