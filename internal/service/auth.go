package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/Skotchmaster/entitlement/internal/events"
	"github.com/Skotchmaster/entitlement/internal/hash"
	"github.com/Skotchmaster/entitlement/internal/logging"
	"github.com/Skotchmaster/entitlement/internal/models"
	"github.com/Skotchmaster/entitlement/internal/repo"
	"github.com/Skotchmaster/entitlement/internal/tokens"
)

// msgBadCredentials is shared by every login failure that must not reveal
// whether the identifier or the password was wrong.
const msgBadCredentials = "invalid username/email or password"

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// bcrypt only reads the first 72 bytes of a password.
func maxBytes(n int) validation.RuleFunc {
	return func(value interface{}) error {
		if s, _ := value.(string); len(s) > n {
			return fmt.Errorf("must be at most %d bytes", n)
		}
		return nil
	}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.Required, validation.Length(3, 32),
			validation.Match(usernamePattern).Error("may contain letters, digits, '.', '_' and '-' only")),
		validation.Field(&in.Email, validation.Required, validation.Length(3, 254),
			validation.Match(emailPattern).Error("must be a valid email address")),
		validation.Field(&in.Password, validation.Required, validation.Length(6, 72), validation.By(maxBytes(72))),
	)
}

type LoginInput struct {
	Identifier string
	Password   string
}

func (in LoginInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Identifier, validation.Required),
		validation.Field(&in.Password, validation.Required),
	)
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Account   *models.Account
}

// Register creates a user account with no subscription and returns its uid.
func (s *EntitlementService) Register(ctx context.Context, in RegisterInput) (uint, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	l := logging.FromContext(ctx).With("svc", "entitlement.register", "username", in.Username)

	if err := in.Validate(); err != nil {
		l.Warn("register_failed", "status", 400, "reason", "validation", "error", err)
		return 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	exists, err := s.Store.AccountExists(ctx, in.Username, in.Email)
	if err != nil {
		return 0, storageError(l, "register_failed", err)
	}
	if exists {
		l.Warn("register_failed", "status", 400, "reason", "username or email taken")
		return 0, fmt.Errorf("%w: username or email already registered", ErrConflict)
	}

	pwHash, err := hash.HashPassword(in.Password)
	if err != nil {
		l.Error("register_failed", "status", 500, "reason", "cannot hash the password", "error", err)
		return 0, fmt.Errorf("%w: cannot hash the password", ErrStorage)
	}

	now := s.now()
	acc := &models.Account{
		Username:         in.Username,
		Email:            in.Email,
		PasswordHash:     pwHash,
		Role:             models.RoleUser,
		SubscriptionTier: models.TierNone,
		IsActive:         true,
		CreatedAt:        now,
	}
	if err := s.Store.CreateAccount(ctx, acc); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			l.Warn("register_failed", "status", 400, "reason", "username or email taken")
			return 0, fmt.Errorf("%w: username or email already registered", ErrConflict)
		}
		return 0, storageError(l, "register_failed", err)
	}

	l.Info("account_registered", "uid", acc.UID)
	s.publish(ctx, events.New(events.AccountRegistered, acc.UID, acc.Username, now, nil))
	return acc.UID, nil
}

// Login authenticates by username or email. An expired ban is lifted and
// persisted before the password is checked, so the cleanup sticks even when
// the password is wrong.
func (s *EntitlementService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	in.Identifier = strings.TrimSpace(in.Identifier)
	l := logging.FromContext(ctx).With("svc", "entitlement.login", "identifier", in.Identifier)

	if err := in.Validate(); err != nil {
		l.Warn("login_failed", "status", 400, "reason", "validation", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	acc, err := s.Store.FindActiveByIdentifier(ctx, in.Identifier)
	if err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			l.Warn("login_failed", "status", 401, "reason", "unknown identifier")
			return nil, fmt.Errorf("%w: %s", ErrUnauthorized, msgBadCredentials)
		}
		return nil, storageError(l, "login_failed", err)
	}

	now := s.now()
	dec, err := s.checkBan(ctx, l, acc, now)
	if err != nil {
		return nil, storageError(l, "login_failed", err)
	}
	if !dec.Allowed {
		l.Warn("login_failed", "status", 403, "reason", "banned", "uid", acc.UID)
		return nil, &BanError{Message: dec.Message}
	}

	if !hash.CheckPassword(acc.PasswordHash, in.Password) {
		l.Warn("login_failed", "status", 401, "reason", "wrong password", "uid", acc.UID)
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, msgBadCredentials)
	}

	if err := s.Store.TouchLastLogin(ctx, acc.UID, now); err != nil {
		return nil, storageError(l, "login_failed", err)
	}
	acc.LastLogin = &now

	token, exp, err := s.Tokens.Issue(tokens.SnapshotOf(acc))
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot sign token", "error", err)
		return nil, fmt.Errorf("%w: cannot issue token", ErrStorage)
	}

	l.Info("login_success", "uid", acc.UID, "role", acc.Role)
	s.publish(ctx, events.New(events.AccountLoggedIn, acc.UID, acc.Username, now, nil))
	return &LoginResult{Token: token, ExpiresAt: exp, Account: acc}, nil
}

// Profile returns the caller's current stored account.
func (s *EntitlementService) Profile(ctx context.Context, caller Caller) (*models.Account, error) {
	l := logging.FromContext(ctx).With("svc", "entitlement.profile", "uid", caller.UID)

	acc, err := s.Store.GetAccount(ctx, caller.UID)
	if err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			l.Warn("profile_failed", "status", 404, "reason", "account not found")
			return nil, fmt.Errorf("%w: account not found", ErrNotFound)
		}
		return nil, storageError(l, "profile_failed", err)
	}
	return acc, nil
}
