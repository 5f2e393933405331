package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/Skotchmaster/entitlement/internal/domain"
	"github.com/Skotchmaster/entitlement/internal/events"
	"github.com/Skotchmaster/entitlement/internal/logging"
	"github.com/Skotchmaster/entitlement/internal/models"
	"github.com/Skotchmaster/entitlement/internal/repo"
	"github.com/Skotchmaster/entitlement/internal/util"
)

type AccountPage struct {
	Total int64
	Page  int
	Size  int
	Items []models.Account
}

type BanInput struct {
	UID    uint
	Reason string
	// Days of ban; 0 is permanent.
	Days int
}

func (in BanInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.UID, validation.Required),
		validation.Field(&in.Reason, validation.Required, validation.Length(1, 500)),
		validation.Field(&in.Days, validation.Min(0), validation.Max(MaxDurationDays)),
	)
}

// RoleChange is the outcome of a role assignment. SecurityCode is only set
// for roles that carry one and is shown to the operator once.
type RoleChange struct {
	Account      *models.Account
	SecurityCode *int
}

func (s *EntitlementService) target(ctx context.Context, l *slog.Logger, event string, uid uint) (*models.Account, error) {
	acc, err := s.Store.GetAccount(ctx, uid)
	if err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			l.Warn(event, "status", 404, "reason", "target not found", "target_uid", uid)
			return nil, fmt.Errorf("%w: account %d not found", ErrNotFound, uid)
		}
		return nil, storageError(l, event, err)
	}
	return acc, nil
}

func (s *EntitlementService) mutationError(l *slog.Logger, event string, uid uint, err error) error {
	if errors.Is(err, repo.ErrAccountNotFound) {
		l.Warn(event, "status", 404, "reason", "target not found", "target_uid", uid)
		return fmt.Errorf("%w: account %d not found", ErrNotFound, uid)
	}
	return storageError(l, event, err)
}

func (s *EntitlementService) ListAccounts(ctx context.Context, caller Caller, page, size int) (*AccountPage, error) {
	l := logging.FromContext(ctx).With("svc", "entitlement.list_accounts", "caller_uid", caller.UID)

	if _, err := s.authorize(ctx, l, caller, domain.CanModerate); err != nil {
		return nil, err
	}

	from, limit := util.Calculate(page, size)
	total, items, err := s.Store.ListAccounts(ctx, from, limit)
	if err != nil {
		return nil, storageError(l, "list_accounts_failed", err)
	}
	return &AccountPage{Total: total, Page: from/limit + 1, Size: limit, Items: items}, nil
}

// Ban blocks authentication for the target. Moderators cannot ban admins and
// nobody can ban themselves.
func (s *EntitlementService) Ban(ctx context.Context, caller Caller, in BanInput) error {
	in.Reason = strings.TrimSpace(in.Reason)
	l := logging.FromContext(ctx).With("svc", "entitlement.ban", "caller_uid", caller.UID, "target_uid", in.UID)

	mod, err := s.authorize(ctx, l, caller, domain.CanModerate)
	if err != nil {
		return err
	}
	if err := in.Validate(); err != nil {
		l.Warn("ban_failed", "status", 400, "reason", "validation", "error", err)
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if in.UID == mod.UID {
		l.Warn("ban_failed", "status", 400, "reason", "self ban")
		return fmt.Errorf("%w: cannot ban yourself", ErrValidation)
	}

	target, err := s.target(ctx, l, "ban_failed", in.UID)
	if err != nil {
		return err
	}
	if target.Role == models.RoleAdmin && !domain.CanAdminister(mod) {
		l.Warn("ban_failed", "status", 403, "reason", "target is admin")
		return fmt.Errorf("%w: only admins can ban admins", ErrForbidden)
	}

	now := s.now()
	expires := domain.BanExpiry(in.Days, now)
	if err := s.Store.SetBan(ctx, in.UID, in.Reason, expires, mod.Username, now); err != nil {
		return s.mutationError(l, "ban_failed", in.UID, err)
	}

	l.Info("account_banned", "days", in.Days, "permanent", expires == nil)
	s.publish(ctx, events.New(events.AccountBanned, in.UID, mod.Username, now, map[string]any{
		"reason":  in.Reason,
		"days":    in.Days,
		"expires": expires,
	}))
	return nil
}

func (s *EntitlementService) Unban(ctx context.Context, caller Caller, uid uint) error {
	l := logging.FromContext(ctx).With("svc", "entitlement.unban", "caller_uid", caller.UID, "target_uid", uid)

	mod, err := s.authorize(ctx, l, caller, domain.CanModerate)
	if err != nil {
		return err
	}
	if err := s.Store.ClearBan(ctx, uid); err != nil {
		return s.mutationError(l, "unban_failed", uid, err)
	}

	l.Info("account_unbanned")
	s.publish(ctx, events.New(events.AccountUnbanned, uid, mod.Username, s.now(), nil))
	return nil
}

// DeleteAccount hard-removes the target; the next registration continues
// from the highest remaining uid.
func (s *EntitlementService) DeleteAccount(ctx context.Context, caller Caller, uid uint) (*models.Account, error) {
	l := logging.FromContext(ctx).With("svc", "entitlement.delete_account", "caller_uid", caller.UID, "target_uid", uid)

	admin, err := s.authorize(ctx, l, caller, domain.CanAdminister)
	if err != nil {
		return nil, err
	}
	if uid == admin.UID {
		l.Warn("delete_account_failed", "status", 400, "reason", "self delete")
		return nil, fmt.Errorf("%w: cannot delete yourself", ErrValidation)
	}

	deleted, err := s.Store.DeleteAccount(ctx, uid)
	if err != nil {
		return nil, s.mutationError(l, "delete_account_failed", uid, err)
	}

	l.Info("account_deleted", "username", deleted.Username)
	s.publish(ctx, events.New(events.AccountDeleted, uid, admin.Username, s.now(), map[string]any{
		"username": deleted.Username,
	}))
	return deleted, nil
}

// ChangeRole reassigns the role of username. Only a super-admin may do it.
func (s *EntitlementService) ChangeRole(ctx context.Context, caller Caller, username string, role models.Role) (*RoleChange, error) {
	username = strings.TrimSpace(username)
	l := logging.FromContext(ctx).With("svc", "entitlement.change_role", "caller_uid", caller.UID, "target", username, "role", role)

	super, err := s.authorize(ctx, l, caller, domain.IsSuperAdmin)
	if err != nil {
		return nil, err
	}
	if username == "" {
		l.Warn("change_role_failed", "status", 400, "reason", "empty username")
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}
	if !role.IsValid() {
		l.Warn("change_role_failed", "status", 400, "reason", "unknown role")
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	if username == super.Username {
		l.Warn("change_role_failed", "status", 400, "reason", "self role change")
		return nil, fmt.Errorf("%w: cannot change your own role", ErrValidation)
	}

	var code *int
	if domain.RequiresSecurityCode(role) {
		c, err := domain.NewSecurityCode()
		if err != nil {
			l.Error("change_role_failed", "status", 500, "reason", "random source", "error", err)
			return nil, fmt.Errorf("%w: cannot generate security code", ErrStorage)
		}
		code = &c
	}

	acc, err := s.Store.UpdateRole(ctx, username, role, code)
	if err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			l.Warn("change_role_failed", "status", 404, "reason", "target not found")
			return nil, fmt.Errorf("%w: account %q not found", ErrNotFound, username)
		}
		return nil, storageError(l, "change_role_failed", err)
	}

	l.Info("role_changed", "target_uid", acc.UID)
	s.publish(ctx, events.New(events.RoleChanged, acc.UID, super.Username, s.now(), map[string]any{
		"role": role,
	}))
	return &RoleChange{Account: acc, SecurityCode: code}, nil
}

// GrantSubscription overwrites the target's entitlement; days 0 is lifetime.
func (s *EntitlementService) GrantSubscription(ctx context.Context, caller Caller, uid uint, days int) (*models.Account, error) {
	l := logging.FromContext(ctx).With("svc", "entitlement.grant_subscription", "caller_uid", caller.UID, "target_uid", uid)

	admin, err := s.authorize(ctx, l, caller, domain.CanAdminister)
	if err != nil {
		return nil, err
	}
	if err := validateDays(days); err != nil {
		l.Warn("grant_subscription_failed", "status", 400, "reason", "validation", "error", err)
		return nil, err
	}

	acc, err := s.target(ctx, l, "grant_subscription_failed", uid)
	if err != nil {
		return nil, err
	}

	now := s.now()
	domain.Grant(acc, domain.TierForDuration(days), days, now)
	if err := s.Store.SetSubscription(ctx, uid, acc.SubscriptionTier, acc.SubscriptionExpires); err != nil {
		return nil, s.mutationError(l, "grant_subscription_failed", uid, err)
	}

	l.Info("subscription_granted", "tier", acc.SubscriptionTier, "days", days)
	s.publish(ctx, events.New(events.SubscriptionGranted, uid, admin.Username, now, map[string]any{
		"tier":    acc.SubscriptionTier,
		"days":    days,
		"expires": acc.SubscriptionExpires,
	}))
	return acc, nil
}

func (s *EntitlementService) RevokeSubscription(ctx context.Context, caller Caller, uid uint) (*models.Account, error) {
	l := logging.FromContext(ctx).With("svc", "entitlement.revoke_subscription", "caller_uid", caller.UID, "target_uid", uid)

	admin, err := s.authorize(ctx, l, caller, domain.CanAdminister)
	if err != nil {
		return nil, err
	}

	acc, err := s.target(ctx, l, "revoke_subscription_failed", uid)
	if err != nil {
		return nil, err
	}

	domain.Revoke(acc)
	if err := s.Store.SetSubscription(ctx, uid, acc.SubscriptionTier, acc.SubscriptionExpires); err != nil {
		return nil, s.mutationError(l, "revoke_subscription_failed", uid, err)
	}

	l.Info("subscription_revoked")
	s.publish(ctx, events.New(events.SubscriptionRevoked, uid, admin.Username, s.now(), nil))
	return acc, nil
}

func (s *EntitlementService) ListAdmins(ctx context.Context, caller Caller) ([]models.Account, error) {
	l := logging.FromContext(ctx).With("svc", "entitlement.list_admins", "caller_uid", caller.UID)

	if _, err := s.authorize(ctx, l, caller, domain.CanAdminister); err != nil {
		return nil, err
	}

	admins, err := s.Store.ListAdmins(ctx)
	if err != nil {
		return nil, storageError(l, "list_admins_failed", err)
	}
	return admins, nil
}

// BootstrapSuperAdmin promotes an existing account to super-admin. It is an
// operator action with no caller and is safe to repeat.
func (s *EntitlementService) BootstrapSuperAdmin(ctx context.Context, username string) (*RoleChange, error) {
	username = strings.TrimSpace(username)
	l := logging.FromContext(ctx).With("svc", "entitlement.bootstrap_superadmin", "target", username)

	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}

	code, err := domain.NewSecurityCode()
	if err != nil {
		return nil, fmt.Errorf("%w: cannot generate security code", ErrStorage)
	}

	acc, err := s.Store.PromoteSuperAdmin(ctx, username, code)
	if err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			l.Warn("bootstrap_superadmin_failed", "status", 404, "reason", "account not found")
			return nil, fmt.Errorf("%w: account %q not found", ErrNotFound, username)
		}
		return nil, storageError(l, "bootstrap_superadmin_failed", err)
	}

	l.Info("superadmin_promoted", "uid", acc.UID)
	s.publish(ctx, events.New(events.RoleChanged, acc.UID, "bootstrap", s.now(), map[string]any{
		"role":        models.RoleAdmin,
		"super_admin": true,
	}))
	return &RoleChange{Account: acc, SecurityCode: &code}, nil
}
