// Package session keeps the "current session" convenience slot for a browser
// context. The slot caches identity, role and tier for status checks; it is
// never an authority for authorization, the bearer token and the stored
// account are.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/entitlement/internal/models"
)

var ErrNotFound = errors.New("session slot not found")

type Slot struct {
	UID              uint        `json:"uid"`
	Username         string      `json:"username"`
	Email            string      `json:"email"`
	Role             models.Role `json:"role"`
	SubscriptionTier models.Tier `json:"subscription_type"`
}

type Store interface {
	Put(ctx context.Context, id string, slot Slot, ttl time.Duration) error
	Get(ctx context.Context, id string) (*Slot, error)
	Delete(ctx context.Context, id string) error
}

func NewID() string { return uuid.NewString() }

func SlotOf(acc *models.Account) Slot {
	return Slot{
		UID:              acc.UID,
		Username:         acc.Username,
		Email:            acc.Email,
		Role:             acc.Role,
		SubscriptionTier: acc.SubscriptionTier,
	}
}
