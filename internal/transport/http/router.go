package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/entitlement/internal/logging"
)

type Deps struct {
	Handler *EntitlementHTTP
	// Ready reports whether the storage backend answers.
	Ready func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready == nil {
			return c.NoContent(http.StatusOK)
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := d.Ready(ctx); err != nil {
			logging.FromContext(ctx).Error("readiness_failed", "status", 503, "error", err)
			return c.NoContent(http.StatusServiceUnavailable)
		}
		return c.NoContent(http.StatusOK)
	})

	h := d.Handler
	bearer := BearerAuth(h.Svc)

	v1 := e.Group("/api/v1")

	v1.POST("/register", h.Register)
	v1.POST("/login", h.Login)
	v1.POST("/logout", h.LogOut)
	v1.GET("/auth/status", h.Status)

	v1.GET("/profile", h.Profile, bearer)
	v1.POST("/keys/activate", h.ActivateKey, bearer)

	admin := v1.Group("/admin", bearer)

	admin.GET("/users", h.ListUsers)
	admin.POST("/users/:uid/ban", h.Ban)
	admin.POST("/users/:uid/unban", h.Unban)
	admin.DELETE("/users/:uid", h.DeleteUser)
	admin.POST("/users/:uid/subscription", h.GrantSubscription)
	admin.DELETE("/users/:uid/subscription", h.RevokeSubscription)
	admin.PUT("/roles/:username", h.ChangeRole)
	admin.GET("/admins", h.ListAdmins)
	admin.POST("/keys", h.GenerateKey)
	admin.GET("/keys", h.ListKeys)
}
