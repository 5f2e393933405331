package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Skotchmaster/entitlement/internal/domain"
	"github.com/Skotchmaster/entitlement/internal/events"
	"github.com/Skotchmaster/entitlement/internal/logging"
	"github.com/Skotchmaster/entitlement/internal/models"
	"github.com/Skotchmaster/entitlement/internal/repo"
	"github.com/Skotchmaster/entitlement/internal/tokens"
)

const publishTimeout = 5 * time.Second

// Caller is the verified identity behind a request. It is built once from the
// bearer token at the request boundary; Role is the value cached in the token.
type Caller struct {
	UID      uint
	Username string
	Role     models.Role
}

type EntitlementService struct {
	Store  repo.Store
	Tokens *tokens.Issuer
	Events events.Publisher
	Now    func() time.Time
}

func New(store repo.Store, issuer *tokens.Issuer, pub events.Publisher) *EntitlementService {
	if pub == nil {
		pub = events.Noop{}
	}
	return &EntitlementService{Store: store, Tokens: issuer, Events: pub, Now: time.Now}
}

func (s *EntitlementService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// Clock returns the service's current time in UTC.
func (s *EntitlementService) Clock() time.Time { return s.now() }

// CallerFromToken validates a bearer token into a Caller.
func (s *EntitlementService) CallerFromToken(token string) (*Caller, error) {
	snap, err := s.Tokens.Validate(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return &Caller{UID: snap.UID, Username: snap.Username, Role: snap.Role}, nil
}

// publish never fails the calling operation; delivery problems are logged.
func (s *EntitlementService) publish(ctx context.Context, e events.Event) {
	if s.Events == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.Events.Publish(pctx, e); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "type", e.Type, "uid", e.UID, "error", err)
	}
}

func storageError(l *slog.Logger, event string, err error) error {
	l.Error(event, "status", 500, "reason", "storage failure", "error", err)
	return fmt.Errorf("%w: %v", ErrStorage, err)
}

// checkBan runs the ban policy on acc and persists the clear of an expired
// ban, whatever the rest of the request decides.
func (s *EntitlementService) checkBan(ctx context.Context, l *slog.Logger, acc *models.Account, now time.Time) (domain.BanDecision, error) {
	dec := domain.CheckAndClear(acc, now)
	if !dec.Cleared {
		return dec, nil
	}
	if err := s.Store.ClearExpiredBan(ctx, acc.UID, now); err != nil {
		return dec, err
	}
	l.Info("ban_expired", "uid", acc.UID)
	s.publish(ctx, events.New(events.AccountUnbanned, acc.UID, "", now, map[string]any{"reason": "expired"}))
	return dec, nil
}

func anyAccount(*models.Account) bool { return true }

// authorize re-reads the caller's account and checks it against allowed. The
// role cached in the token is never trusted for this decision.
func (s *EntitlementService) authorize(ctx context.Context, l *slog.Logger, caller Caller, allowed func(*models.Account) bool) (*models.Account, error) {
	acc, err := s.Store.GetAccount(ctx, caller.UID)
	if err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			l.Warn("authorize_failed", "status", 401, "reason", "caller account not found", "caller_uid", caller.UID)
			return nil, fmt.Errorf("%w: account no longer exists", ErrUnauthorized)
		}
		return nil, storageError(l, "authorize_failed", err)
	}

	if !acc.IsActive {
		l.Warn("authorize_failed", "status", 403, "reason", "inactive", "caller_uid", caller.UID)
		return nil, fmt.Errorf("%w: account is inactive", ErrForbidden)
	}
	dec, err := s.checkBan(ctx, l, acc, s.now())
	if err != nil {
		return nil, storageError(l, "authorize_failed", err)
	}
	if !dec.Allowed {
		l.Warn("authorize_failed", "status", 403, "reason", "banned", "caller_uid", caller.UID)
		return nil, &BanError{Message: dec.Message}
	}
	if !allowed(acc) {
		l.Warn("authorize_failed", "status", 403, "reason", "insufficient privileges", "caller_uid", caller.UID, "role", acc.Role)
		return nil, fmt.Errorf("%w: insufficient privileges", ErrForbidden)
	}
	return acc, nil
}
