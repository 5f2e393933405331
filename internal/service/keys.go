package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/Skotchmaster/entitlement/internal/domain"
	"github.com/Skotchmaster/entitlement/internal/events"
	"github.com/Skotchmaster/entitlement/internal/logging"
	"github.com/Skotchmaster/entitlement/internal/models"
	"github.com/Skotchmaster/entitlement/internal/repo"
	"github.com/Skotchmaster/entitlement/internal/util"
)

const (
	// MaxDurationDays bounds key and subscription grants to about a century.
	MaxDurationDays = 36500

	keyGenerateAttempts = 3
)

func validateDays(days int) error {
	if err := validation.Validate(days, validation.Min(0), validation.Max(MaxDurationDays)); err != nil {
		return fmt.Errorf("%w: days %v", ErrValidation, err)
	}
	return nil
}

type KeyPage struct {
	Total int64
	Page  int
	Size  int
	Items []models.LicenseKey
}

// Activation is the entitlement an account holds after redeeming a key.
type Activation struct {
	Tier    models.Tier
	Expires *time.Time
	Status  string
}

// GenerateKey issues a new unused key granting days of subscription, or a
// lifetime grant when days is 0. Key collisions are retried.
func (s *EntitlementService) GenerateKey(ctx context.Context, caller Caller, days int) (*models.LicenseKey, error) {
	l := logging.FromContext(ctx).With("svc", "entitlement.generate_key", "caller_uid", caller.UID)

	admin, err := s.authorize(ctx, l, caller, domain.CanAdminister)
	if err != nil {
		return nil, err
	}
	if err := validateDays(days); err != nil {
		l.Warn("generate_key_failed", "status", 400, "reason", "validation", "error", err)
		return nil, err
	}

	now := s.now()
	for attempt := 1; attempt <= keyGenerateAttempts; attempt++ {
		value, err := domain.GenerateKey()
		if err != nil {
			l.Error("generate_key_failed", "status", 500, "reason", "random source", "error", err)
			return nil, fmt.Errorf("%w: cannot generate key", ErrStorage)
		}

		key := &models.LicenseKey{
			KeyValue:         value,
			SubscriptionTier: domain.TierForDuration(days),
			DurationDays:     days,
			CreatedBy:        admin.Username,
			CreatedAt:        now,
		}
		err = s.Store.CreateKey(ctx, key)
		if errors.Is(err, repo.ErrDuplicate) {
			l.Warn("generate_key_collision", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, storageError(l, "generate_key_failed", err)
		}

		l.Info("key_generated", "key", logging.MaskKey(key.KeyValue), "duration_days", days)
		s.publish(ctx, events.New(events.KeyGenerated, admin.UID, admin.Username, now, map[string]any{
			"key_id":        key.ID,
			"duration_days": days,
			"tier":          key.SubscriptionTier,
		}))
		return key, nil
	}

	l.Error("generate_key_failed", "status", 500, "reason", "too many collisions")
	return nil, fmt.Errorf("%w: cannot allocate a unique key", ErrStorage)
}

// ListKeys returns keys newest first.
func (s *EntitlementService) ListKeys(ctx context.Context, caller Caller, page, size int) (*KeyPage, error) {
	l := logging.FromContext(ctx).With("svc", "entitlement.list_keys", "caller_uid", caller.UID)

	if _, err := s.authorize(ctx, l, caller, domain.CanAdminister); err != nil {
		return nil, err
	}

	from, limit := util.Calculate(page, size)
	total, items, err := s.Store.ListKeys(ctx, from, limit)
	if err != nil {
		return nil, storageError(l, "list_keys_failed", err)
	}
	return &KeyPage{Total: total, Page: from/limit + 1, Size: limit, Items: items}, nil
}

// ActivateKey redeems key for the caller's own account, which must be active
// and not banned. Unknown and already used keys are reported the same way.
func (s *EntitlementService) ActivateKey(ctx context.Context, caller Caller, key string) (*Activation, error) {
	value := domain.NormalizeKey(key)
	l := logging.FromContext(ctx).With("svc", "entitlement.activate_key", "uid", caller.UID, "key", logging.MaskKey(value))

	if value == "" || !domain.ValidKeyFormat(value) {
		l.Warn("activate_key_failed", "status", 400, "reason", "malformed key")
		return nil, fmt.Errorf("%w: key must look like XXXX-XXXX-XXXX-XXXX", ErrValidation)
	}

	if _, err := s.authorize(ctx, l, caller, anyAccount); err != nil {
		return nil, err
	}

	now := s.now()
	lk, acc, err := s.Store.RedeemKey(ctx, value, caller.UID, now, domain.Entitlement)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrKeyNotFound):
			l.Warn("activate_key_failed", "status", 404, "reason", "key not found or used")
			return nil, fmt.Errorf("%w: key not found or already used", ErrNotFound)
		case errors.Is(err, repo.ErrAccountNotFound):
			l.Warn("activate_key_failed", "status", 404, "reason", "account not found")
			return nil, fmt.Errorf("%w: account not found", ErrNotFound)
		default:
			return nil, storageError(l, "activate_key_failed", err)
		}
	}

	l.Info("key_redeemed", "tier", acc.SubscriptionTier, "duration_days", lk.DurationDays)
	s.publish(ctx, events.New(events.KeyRedeemed, acc.UID, acc.Username, now, map[string]any{
		"key_id":        lk.ID,
		"tier":          acc.SubscriptionTier,
		"duration_days": lk.DurationDays,
	}))
	return &Activation{
		Tier:    acc.SubscriptionTier,
		Expires: acc.SubscriptionExpires,
		Status:  domain.Describe(acc, now),
	}, nil
}
