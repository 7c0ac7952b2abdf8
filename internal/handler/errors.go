package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-auth/internal/apperr"
)

var kindStatus = map[apperr.Kind]int{
	apperr.KindUnauthorized: http.StatusUnauthorized,
	apperr.KindConflict:     http.StatusConflict,
	apperr.KindNotFound:     http.StatusNotFound,
	apperr.KindBadRequest:   http.StatusBadRequest,
	apperr.KindInternal:     http.StatusInternalServerError,
}

// fail writes the status and message belonging to err's kind. Internal
// errors are logged and answered with a fixed message.
func (h *AuthHandler) fail(c echo.Context, err error) error {
	kind := apperr.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	msg := apperr.Message(err)
	if status == http.StatusInternalServerError {
		h.Log.Error(c.Request().Context(), "request failed", "path", c.Path(), "err", err)
		msg = "internal server error"
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return c.JSON(status, echo.Map{"error": msg})
}
