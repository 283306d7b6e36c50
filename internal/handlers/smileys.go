package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/forum/internal/auth"
	"github.com/memohai/forum/internal/smiley"
)

type SmileyHandler struct {
	smileys *smiley.Map
	logger  *slog.Logger
}

type SmileyResponse struct {
	smiley.Smiley
	Column int `json:"column"`
	Row    int `json:"row"`
}

type SmileyListResponse struct {
	Items []SmileyResponse `json:"items"`
}

func NewSmileyHandler(log *slog.Logger, smileys *smiley.Map) *SmileyHandler {
	return &SmileyHandler{smileys: smileys, logger: log.With(slog.String("handler", "smiley"))}
}

func (h *SmileyHandler) Register(e *echo.Echo) {
	e.GET("/smileys", h.List)
	e.POST("/admin/smileys/reload", h.Reload, auth.RequireAdmin)
}

// List returns smileys in selector order.
func (h *SmileyHandler) List(c echo.Context) error {
	items := h.smileys.Snapshot().List()
	out := make([]SmileyResponse, 0, len(items))
	for _, s := range items {
		out = append(out, SmileyResponse{Smiley: s, Column: s.Column(), Row: s.Row()})
	}
	return c.JSON(http.StatusOK, SmileyListResponse{Items: out})
}

// Reload swaps in a fresh snapshot; the old one stays on failure.
func (h *SmileyHandler) Reload(c echo.Context) error {
	if err := h.smileys.Reload(c.Request().Context()); err != nil {
		h.logger.Error("smiley reload failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"count": h.smileys.Snapshot().Len()})
}
