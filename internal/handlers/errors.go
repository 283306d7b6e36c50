package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/forum/internal/message"
	"github.com/memohai/forum/internal/processor"
)

// validationResponse is the 422 body listing per-field failures.
type validationResponse struct {
	Message string                 `json:"message"`
	Errors  []processor.FieldError `json:"errors"`
}

// messageError maps service errors onto HTTP responses.
func messageError(c echo.Context, err error) error {
	var verr *processor.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusUnprocessableEntity, validationResponse{Message: "validation failed", Errors: verr.Fields})
	case message.IsNotFound(err):
		return echo.NewHTTPError(http.StatusNotFound, "message not found")
	case errors.Is(err, message.ErrConflictRetriesExceeded):
		return echo.NewHTTPError(http.StatusConflict, "message is being edited concurrently, try again")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
