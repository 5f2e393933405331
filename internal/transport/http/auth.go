package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/entitlement/internal/logging"
	"github.com/Skotchmaster/entitlement/internal/models"
	"github.com/Skotchmaster/entitlement/internal/service"
	"github.com/Skotchmaster/entitlement/internal/session"
	"github.com/Skotchmaster/entitlement/internal/tokens"
)

const defaultSessionCookie = "sid"

type EntitlementHTTP struct {
	Svc      *service.EntitlementService
	Sessions session.Store
	Cookie   string
}

func (h *EntitlementHTTP) cookieName() string {
	if h.Cookie == "" {
		return defaultSessionCookie
	}
	return h.Cookie
}

func createCookie(name, value, path string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  exp,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func deleteCookie(name, path string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *EntitlementHTTP) sessionID(c echo.Context) string {
	ck, err := c.Cookie(h.cookieName())
	if err != nil {
		return ""
	}
	return ck.Value
}

// startSession replaces any previous slot of this browser with a fresh one
// living as long as a token. Slot failures are logged only: the token is
// the credential.
func (h *EntitlementHTTP) startSession(c echo.Context, acc *models.Account, exp time.Time) {
	if h.Sessions == nil {
		return
	}
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "session")

	if old := h.sessionID(c); old != "" {
		if err := h.Sessions.Delete(ctx, old); err != nil {
			l.Warn("session_delete_failed", "error", err)
		}
	}

	id := session.NewID()
	if err := h.Sessions.Put(ctx, id, session.SlotOf(acc), tokens.TTL); err != nil {
		l.Warn("session_put_failed", "uid", acc.UID, "error", err)
		return
	}
	c.SetCookie(createCookie(h.cookieName(), id, "/", exp))
}

// refreshSession rewrites the cached role and tier of the caller's slot.
func (h *EntitlementHTTP) refreshSession(c echo.Context, acc *models.Account) {
	id := h.sessionID(c)
	if h.Sessions == nil || id == "" {
		return
	}
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "session")

	slot, err := h.Sessions.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			l.Warn("session_get_failed", "error", err)
		}
		return
	}
	if slot.UID != acc.UID {
		return
	}
	if err := h.Sessions.Put(ctx, id, session.SlotOf(acc), tokens.TTL); err != nil {
		l.Warn("session_put_failed", "uid", acc.UID, "error", err)
	}
}

func (h *EntitlementHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "register")

	var req registerRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	uid, err := h.Svc.Register(ctx, service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, echo.Map{"uid": uid})
}

func (h *EntitlementHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "login")

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Login(ctx, service.LoginInput{Identifier: req.identifier(), Password: req.Password})
	if err != nil {
		return httpError(err)
	}

	h.startSession(c, res.Account, res.ExpiresAt)

	return c.JSON(http.StatusOK, loginResponse{
		Token:     res.Token,
		TokenType: "Bearer",
		ExpiresAt: res.ExpiresAt,
		Account:   viewOf(res.Account, h.Svc.Clock()),
	})
}

// Status reports the browser's session slot. It does not look at the bearer
// token, so the two may briefly disagree.
func (h *EntitlementHTTP) Status(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_status")

	id := h.sessionID(c)
	if id == "" || h.Sessions == nil {
		return c.JSON(http.StatusOK, statusResponse{})
	}

	slot, err := h.Sessions.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			l.Error("status_error", "status", 200, "reason", "session store", "error", err)
		}
		return c.JSON(http.StatusOK, statusResponse{})
	}
	return c.JSON(http.StatusOK, statusResponse{Authenticated: true, Account: slot})
}

// LogOut clears the session slot. Issued tokens stay valid until they expire.
func (h *EntitlementHTTP) LogOut(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "logout")

	if id := h.sessionID(c); id != "" && h.Sessions != nil {
		if err := h.Sessions.Delete(ctx, id); err != nil {
			l.Error("logout_failed", "status", 500, "reason", "cannot clear session", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
		}
	}
	c.SetCookie(deleteCookie(h.cookieName(), "/"))

	l.Info("successful_logout")
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

func (h *EntitlementHTTP) Profile(c echo.Context) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}

	acc, err := h.Svc.Profile(c.Request().Context(), caller)
	if err != nil {
		return httpError(err)
	}

	h.refreshSession(c, acc)
	return c.JSON(http.StatusOK, echo.Map{"account": viewOf(acc, h.Svc.Clock())})
}

func (h *EntitlementHTTP) ActivateKey(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "activate_key")

	caller, err := callerFrom(c)
	if err != nil {
		return err
	}

	var req activateKeyRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("activate_key_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	act, err := h.Svc.ActivateKey(ctx, caller, req.Key)
	if err != nil {
		return httpError(err)
	}

	if acc, err := h.Svc.Profile(ctx, caller); err == nil {
		h.refreshSession(c, acc)
	}

	return c.JSON(http.StatusOK, activationResponse{
		SubscriptionType:    act.Tier,
		SubscriptionExpires: act.Expires,
		Status:              act.Status,
	})
}
