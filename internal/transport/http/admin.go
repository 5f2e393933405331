package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/entitlement/internal/logging"
	"github.com/Skotchmaster/entitlement/internal/models"
	"github.com/Skotchmaster/entitlement/internal/service"
	"github.com/Skotchmaster/entitlement/internal/util"
)

func parseUID(c echo.Context) (uint, error) {
	v, err := strconv.ParseUint(c.Param("uid"), 10, 32)
	if err != nil || v == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid uid")
	}
	return uint(v), nil
}

func pageParams(c echo.Context) (int, int) {
	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	return page, size
}

// adminRequest resolves the caller and, when uid is set, the target uid path
// parameter.
func adminRequest(c echo.Context, uid bool) (service.Caller, uint, error) {
	caller, err := callerFrom(c)
	if err != nil {
		return service.Caller{}, 0, err
	}
	if !uid {
		return caller, 0, nil
	}
	target, err := parseUID(c)
	if err != nil {
		return service.Caller{}, 0, err
	}
	return caller, target, nil
}

func (h *EntitlementHTTP) ListUsers(c echo.Context) error {
	caller, _, err := adminRequest(c, false)
	if err != nil {
		return err
	}

	page, size := pageParams(c)
	res, err := h.Svc.ListAccounts(c.Request().Context(), caller, page, size)
	if err != nil {
		return httpError(err)
	}

	now := h.Svc.Clock()
	items := make([]moderationView, 0, len(res.Items))
	for i := range res.Items {
		items = append(items, moderationViewOf(&res.Items[i], now))
	}
	return c.JSON(http.StatusOK, pageResponse[moderationView]{Total: res.Total, Page: res.Page, Size: res.Size, Items: items})
}

func (h *EntitlementHTTP) Ban(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin_ban")

	caller, uid, err := adminRequest(c, true)
	if err != nil {
		return err
	}

	var req banRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("ban_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Svc.Ban(ctx, caller, service.BanInput{UID: uid, Reason: req.Reason, Days: req.Days}); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"uid": uid, "banned": true, "days": req.Days})
}

func (h *EntitlementHTTP) Unban(c echo.Context) error {
	caller, uid, err := adminRequest(c, true)
	if err != nil {
		return err
	}

	if err := h.Svc.Unban(c.Request().Context(), caller, uid); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"uid": uid, "banned": false})
}

func (h *EntitlementHTTP) DeleteUser(c echo.Context) error {
	caller, uid, err := adminRequest(c, true)
	if err != nil {
		return err
	}

	deleted, err := h.Svc.DeleteAccount(c.Request().Context(), caller, uid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"uid": deleted.UID, "username": deleted.Username, "deleted": true})
}

func (h *EntitlementHTTP) GrantSubscription(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin_grant_subscription")

	caller, uid, err := adminRequest(c, true)
	if err != nil {
		return err
	}

	var req daysRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("grant_subscription_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Days == nil {
		l.Warn("grant_subscription_error", "status", 400, "reason", "days missing")
		return echo.NewHTTPError(http.StatusBadRequest, "days is required")
	}

	acc, err := h.Svc.GrantSubscription(ctx, caller, uid, *req.Days)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"account": viewOf(acc, h.Svc.Clock())})
}

func (h *EntitlementHTTP) RevokeSubscription(c echo.Context) error {
	caller, uid, err := adminRequest(c, true)
	if err != nil {
		return err
	}

	acc, err := h.Svc.RevokeSubscription(c.Request().Context(), caller, uid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"account": viewOf(acc, h.Svc.Clock())})
}

func (h *EntitlementHTTP) ChangeRole(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin_change_role")

	caller, _, err := adminRequest(c, false)
	if err != nil {
		return err
	}

	var req roleRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("change_role_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.ChangeRole(ctx, caller, c.Param("username"), req.Role)
	if err != nil {
		return httpError(err)
	}

	resp := echo.Map{
		"uid":      res.Account.UID,
		"username": res.Account.Username,
		"role":     res.Account.Role,
	}
	if res.SecurityCode != nil {
		resp["security_code"] = *res.SecurityCode
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *EntitlementHTTP) ListAdmins(c echo.Context) error {
	caller, _, err := adminRequest(c, false)
	if err != nil {
		return err
	}

	admins, err := h.Svc.ListAdmins(c.Request().Context(), caller)
	if err != nil {
		return httpError(err)
	}

	items := make([]adminView, 0, len(admins))
	for _, a := range admins {
		items = append(items, adminView{
			UID:          a.UID,
			Username:     a.Username,
			Email:        a.Email,
			SuperAdmin:   a.SuperAdmin,
			SecurityCode: a.SecurityCode,
			CreatedAt:    a.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"admins": items})
}

func (h *EntitlementHTTP) GenerateKey(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin_generate_key")

	caller, _, err := adminRequest(c, false)
	if err != nil {
		return err
	}

	var req generateKeyRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("generate_key_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.DurationDays == nil {
		l.Warn("generate_key_error", "status", 400, "reason", "duration_days missing")
		return echo.NewHTTPError(http.StatusBadRequest, "duration_days is required")
	}

	key, err := h.Svc.GenerateKey(ctx, caller, *req.DurationDays)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, key)
}

func (h *EntitlementHTTP) ListKeys(c echo.Context) error {
	caller, _, err := adminRequest(c, false)
	if err != nil {
		return err
	}

	page, size := pageParams(c)
	res, err := h.Svc.ListKeys(c.Request().Context(), caller, page, size)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pageResponse[models.LicenseKey]{Total: res.Total, Page: res.Page, Size: res.Size, Items: res.Items})
}
