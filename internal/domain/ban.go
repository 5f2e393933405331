package domain

import (
	"fmt"
	"time"

	"github.com/Skotchmaster/entitlement/internal/models"
)

const defaultBanReason = "not specified"

const banTimeLayout = "2006-01-02 15:04 MST"

type BanDecision struct {
	Allowed bool
	// Cleared is set when an expired ban was lifted on the account.
	Cleared bool
	Message string
}

// CheckAndClear decides whether acc may authenticate at now. An expired ban is
// removed from acc in place and reported through Cleared; the caller persists it.
func CheckAndClear(acc *models.Account, now time.Time) BanDecision {
	if !acc.IsBanned {
		return BanDecision{Allowed: true}
	}

	reason := defaultBanReason
	if acc.BanReason != nil && *acc.BanReason != "" {
		reason = *acc.BanReason
	}

	if acc.BanExpires == nil {
		return BanDecision{Message: fmt.Sprintf("you are banned permanently. Reason: %s", reason)}
	}

	if !acc.BanExpires.After(now) {
		ClearBan(acc)
		return BanDecision{Allowed: true, Cleared: true}
	}

	return BanDecision{
		Message: fmt.Sprintf("you are banned until %s. Reason: %s", acc.BanExpires.UTC().Format(banTimeLayout), reason),
	}
}

func ClearBan(acc *models.Account) {
	acc.IsBanned = false
	acc.BanReason = nil
	acc.BanExpires = nil
	acc.BannedBy = nil
	acc.BannedAt = nil
}

// BanExpiry returns the end of a ban lasting days from now; days <= 0 is permanent.
func BanExpiry(days int, now time.Time) *time.Time {
	if days <= 0 {
		return nil
	}
	exp := now.AddDate(0, 0, days)
	return &exp
}
