package httpserver

import (
	"errors"
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/entitlement/internal/logging"
	"github.com/Skotchmaster/entitlement/internal/service"
)

const callerKey = "caller"

// BearerAuth validates the Authorization bearer token once and stores the
// resulting service.Caller on the echo context.
func BearerAuth(svc *service.EntitlementService) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  callerKey,
		TokenLookup: "header:Authorization:Bearer ",
		ParseTokenFunc: func(c echo.Context, auth string) (interface{}, error) {
			return svc.CallerFromToken(auth)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			l := logging.FromContext(c.Request().Context()).With("handler", "bearer_auth")

			var missing *echojwt.TokenExtractionError
			if errors.As(err, &missing) {
				l.Warn("auth_failed", "status", 401, "reason", "missing bearer token")
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			l.Warn("auth_failed", "status", 403, "reason", "invalid token")
			return echo.NewHTTPError(http.StatusForbidden, "invalid or expired token")
		},
	})
}

func callerFrom(c echo.Context) (service.Caller, error) {
	caller, ok := c.Get(callerKey).(*service.Caller)
	if !ok || caller == nil {
		return service.Caller{}, echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
	}
	return *caller, nil
}
