package httpserver

import (
	"time"

	"github.com/Skotchmaster/entitlement/internal/domain"
	"github.com/Skotchmaster/entitlement/internal/models"
	"github.com/Skotchmaster/entitlement/internal/session"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	// Username is accepted as an alias of Identifier and may hold an email.
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r loginRequest) identifier() string {
	if r.Identifier != "" {
		return r.Identifier
	}
	return r.Username
}

// activateKeyRequest carries only the key; the redeeming account always comes
// from the bearer token.
type activateKeyRequest struct {
	Key string `json:"key"`
}

type banRequest struct {
	Reason string `json:"reason"`
	Days   int    `json:"days"`
}

type roleRequest struct {
	Role models.Role `json:"role"`
}

// Durations are pointers so an absent field is rejected instead of reading as
// 0, which means lifetime.
type daysRequest struct {
	Days *int `json:"days"`
}

type generateKeyRequest struct {
	DurationDays *int `json:"duration_days"`
}

// accountView is the public projection of an account: no password hash, no
// security code, no moderation fields.
type accountView struct {
	UID                 uint        `json:"uid"`
	Username            string      `json:"username"`
	Email               string      `json:"email"`
	Role                models.Role `json:"role"`
	SubscriptionType    models.Tier `json:"subscription_type"`
	SubscriptionExpires *time.Time  `json:"subscription_expires"`
	SubscriptionStatus  string      `json:"subscription_status"`
	CreatedAt           time.Time   `json:"created_at"`
	LastLogin           *time.Time  `json:"last_login"`
}

func viewOf(acc *models.Account, now time.Time) accountView {
	return accountView{
		UID:                 acc.UID,
		Username:            acc.Username,
		Email:               acc.Email,
		Role:                acc.Role,
		SubscriptionType:    acc.SubscriptionTier,
		SubscriptionExpires: acc.SubscriptionExpires,
		SubscriptionStatus:  domain.Describe(acc, now),
		CreatedAt:           acc.CreatedAt,
		LastLogin:           acc.LastLogin,
	}
}

// moderationView adds the fields staff need when listing accounts.
type moderationView struct {
	accountView
	IsActive   bool       `json:"is_active"`
	IsBanned   bool       `json:"is_banned"`
	BanReason  *string    `json:"ban_reason"`
	BanExpires *time.Time `json:"ban_expires"`
	BannedBy   *string    `json:"banned_by"`
	BannedAt   *time.Time `json:"banned_at"`
}

func moderationViewOf(acc *models.Account, now time.Time) moderationView {
	return moderationView{
		accountView: viewOf(acc, now),
		IsActive:    acc.IsActive,
		IsBanned:    acc.IsBanned,
		BanReason:   acc.BanReason,
		BanExpires:  acc.BanExpires,
		BannedBy:    acc.BannedBy,
		BannedAt:    acc.BannedAt,
	}
}

type adminView struct {
	UID          uint      `json:"uid"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	SuperAdmin   bool      `json:"super_admin"`
	SecurityCode *int      `json:"security_code"`
	CreatedAt    time.Time `json:"created_at"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	TokenType string      `json:"token_type"`
	ExpiresAt time.Time   `json:"expires_at"`
	Account   accountView `json:"account"`
}

type statusResponse struct {
	Authenticated bool          `json:"authenticated"`
	Account       *session.Slot `json:"account,omitempty"`
}

type activationResponse struct {
	SubscriptionType    models.Tier `json:"subscription_type"`
	SubscriptionExpires *time.Time  `json:"subscription_expires"`
	Status              string      `json:"status"`
}

type pageResponse[T any] struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
	Items []T   `json:"items"`
}
