package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/entitlement/internal/service"
)

// httpError maps service errors onto status codes. Storage failures were
// already logged by the service and are reported without detail.
func httpError(err error) *echo.HTTPError {
	var ban *service.BanError
	switch {
	case errors.As(err, &ban):
		return echo.NewHTTPError(http.StatusForbidden, ban.Message)
	case errors.Is(err, service.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, detail(err, service.ErrValidation))
	case errors.Is(err, service.ErrConflict):
		return echo.NewHTTPError(http.StatusBadRequest, detail(err, service.ErrConflict))
	case errors.Is(err, service.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, detail(err, service.ErrUnauthorized))
	case errors.Is(err, service.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, detail(err, service.ErrForbidden))
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, detail(err, service.ErrNotFound))
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}

// detail strips the "<sentinel>: " prefix added when the error was wrapped.
func detail(err, sentinel error) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
	if msg == "" {
		return sentinel.Error()
	}
	return msg
}
