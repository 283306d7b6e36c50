package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/forum/internal/auth"
	"github.com/memohai/forum/internal/reprocess"
)

// BatchHandler runs resumable batch stages one page per request. The
// client carries progress in an opaque signed token.
type BatchHandler struct {
	controller *reprocess.Controller
	codec      *reprocess.Codec
	logger     *slog.Logger
}

type BatchContinueRequest struct {
	Token string `json:"token"`
}

type BatchResponse struct {
	Token       string             `json:"token"`
	Stage       reprocess.Stage    `json:"stage"`
	CurrentStep int                `json:"current_step"`
	TotalSteps  int                `json:"total_steps"`
	Complete    bool               `json:"complete"`
	Outcome     *reprocess.Outcome `json:"outcome,omitempty"`
	Error       string             `json:"error,omitempty"`
}

func NewBatchHandler(log *slog.Logger, controller *reprocess.Controller, codec *reprocess.Codec) *BatchHandler {
	return &BatchHandler{
		controller: controller,
		codec:      codec,
		logger:     log.With(slog.String("handler", "batch")),
	}
}

func (h *BatchHandler) Register(e *echo.Echo) {
	g := e.Group("/admin/messages", auth.RequireAdmin)
	g.POST("/:stage/start", h.Start)
	g.POST("/continue", h.Continue)
}

func (h *BatchHandler) Start(c echo.Context) error {
	st, err := h.controller.Start(c.Request().Context(), reprocess.Stage(c.Param("stage")))
	if errors.Is(err, reprocess.ErrUnknownStage) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp, err := h.response(st, nil)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// Continue processes one page. A failed page answers 409 with the
// unchanged token so the client can retry it.
func (h *BatchHandler) Continue(c echo.Context) error {
	var req BatchContinueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st, err := h.codec.Decode(req.Token)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	next, out, err := h.controller.Continue(c.Request().Context(), st)
	if errors.Is(err, reprocess.ErrInvalidState) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		h.logger.Warn("batch page failed", slog.String("stage", string(st.Stage)), slog.Any("error", err))
		resp, encErr := h.response(st, nil)
		if encErr != nil {
			return encErr
		}
		resp.Error = "page failed, try again"
		return c.JSON(http.StatusConflict, resp)
	}
	resp, err := h.response(next, &out)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *BatchHandler) response(st reprocess.State, out *reprocess.Outcome) (BatchResponse, error) {
	token, err := h.codec.Encode(st)
	if err != nil {
		return BatchResponse{}, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return BatchResponse{
		Token:       token,
		Stage:       st.Stage,
		CurrentStep: st.CurrentStep,
		TotalSteps:  st.TotalSteps,
		Complete:    st.Complete(),
		Outcome:     out,
	}, nil
}
