package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/memohai/forum/internal/message"
)

// MessageHandler exposes posting, editing and previewing of messages.
type MessageHandler struct {
	service *message.Service
	logger  *slog.Logger
}

type MessageBodyRequest struct {
	Body string `json:"body"`
}

func NewMessageHandler(log *slog.Logger, service *message.Service) *MessageHandler {
	return &MessageHandler{
		service: service,
		logger:  log.With(slog.String("handler", "message")),
	}
}

func (h *MessageHandler) Register(e *echo.Echo) {
	e.POST("/messages/preview", h.Preview)
	e.POST("/messages", h.Create)
	e.GET("/messages/:id", h.Get)
	e.PUT("/messages/:id", h.Edit)
	e.DELETE("/messages/:id", h.Delete)
}

// Preview renders a draft without storing it.
func (h *MessageHandler) Preview(c echo.Context) error {
	var req MessageBodyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.Preview(c.Request().Context(), req.Body)
	if err != nil {
		return messageError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *MessageHandler) Create(c echo.Context) error {
	var req MessageBodyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.service.Create(c.Request().Context(), req.Body)
	if err != nil {
		return messageError(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *MessageHandler) Get(c echo.Context) error {
	id, err := messageID(c)
	if err != nil {
		return err
	}
	m, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		return messageError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *MessageHandler) Edit(c echo.Context) error {
	id, err := messageID(c)
	if err != nil {
		return err
	}
	var req MessageBodyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.service.Edit(c.Request().Context(), id, req.Body)
	if err != nil {
		if !message.IsNotFound(err) {
			h.logger.Warn("edit message failed", slog.Int64("id", id), slog.Any("error", err))
		}
		return messageError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *MessageHandler) Delete(c echo.Context) error {
	id, err := messageID(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.Request().Context(), id); err != nil {
		return messageError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func messageID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid message id")
	}
	return id, nil
}
