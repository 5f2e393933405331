package models

import (
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleSupport   Role = "support"
	RoleMedia     Role = "media"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleModerator, RoleSupport, RoleMedia:
		return true
	default:
		return false
	}
}

type Tier string

const (
	TierNone         Tier = "none"
	TierSubscription Tier = "subscription"
	TierLifetime     Tier = "lifetime"
)

type Account struct {
	UID                 uint       `gorm:"column:uid;primaryKey;autoIncrement"   json:"uid"`
	Username            string     `gorm:"uniqueIndex;not null"                  json:"username"`
	Email               string     `gorm:"uniqueIndex;not null"                  json:"email"`
	PasswordHash        string     `gorm:"not null"                              json:"-"`
	Role                Role       `gorm:"not null;default:user"                 json:"role"`
	SuperAdmin          bool       `gorm:"not null;default:false"                json:"super_admin"`
	HWID                *string    `gorm:"column:hwid"                           json:"hwid,omitempty"`
	SubscriptionTier    Tier       `gorm:"not null;default:none"                 json:"subscription_type"`
	SubscriptionExpires *time.Time `                                             json:"subscription_expires"`
	CreatedAt           time.Time  `gorm:"not null"                              json:"created_at"`
	LastLogin           *time.Time `                                             json:"last_login"`
	IsActive            bool       `gorm:"not null;default:true"                 json:"is_active"`
	IsBanned            bool       `gorm:"not null;default:false"                json:"is_banned"`
	BanReason           *string    `                                             json:"ban_reason"`
	BanExpires          *time.Time `                                             json:"ban_expires"`
	BannedBy            *string    `                                             json:"banned_by"`
	BannedAt            *time.Time `                                             json:"banned_at"`
	SecurityCode        *int       `                                             json:"-"`
}

type LicenseKey struct {
	ID               uint       `gorm:"primaryKey;autoIncrement"      json:"id"`
	KeyValue         string     `gorm:"uniqueIndex;not null"          json:"key_value"`
	SubscriptionTier Tier       `gorm:"not null"                      json:"subscription_type"`
	DurationDays     int        `gorm:"not null"                      json:"duration_days"`
	IsUsed           bool       `gorm:"not null;default:false;index"  json:"is_used"`
	UsedBy           *uint      `                                     json:"used_by"`
	UsedAt           *time.Time `                                     json:"used_at"`
	CreatedBy        string     `gorm:"not null"                      json:"created_by"`
	CreatedAt        time.Time  `gorm:"not null"                      json:"created_at"`
	ExpiresAt        *time.Time `                                     json:"expires_at"`
}

// All lists every persisted model, in migration order.
func All() []any {
	return []any{&Account{}, &LicenseKey{}}
}
