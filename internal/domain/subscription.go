package domain

import (
	"time"

	"github.com/Skotchmaster/entitlement/internal/models"
)

const displayTimeLayout = "2006-01-02 15:04 MST"

func IsActive(acc *models.Account, now time.Time) bool {
	switch acc.SubscriptionTier {
	case models.TierLifetime:
		return true
	case models.TierSubscription:
		return acc.SubscriptionExpires != nil && acc.SubscriptionExpires.After(now)
	default:
		return false
	}
}

func Describe(acc *models.Account, now time.Time) string {
	switch acc.SubscriptionTier {
	case models.TierLifetime:
		return "lifetime"
	case models.TierSubscription:
		if IsActive(acc, now) {
			return "active until " + acc.SubscriptionExpires.UTC().Format(displayTimeLayout)
		}
		return "expired"
	default:
		return "no subscription"
	}
}

// TierForDuration maps a grant length onto the tier it confers.
func TierForDuration(days int) models.Tier {
	if days == 0 {
		return models.TierLifetime
	}
	return models.TierSubscription
}

// Entitlement computes the stored tier and expiry for a grant of days made at
// now. Zero days is a lifetime grant with no expiry.
func Entitlement(tier models.Tier, days int, now time.Time) (models.Tier, *time.Time) {
	if days == 0 {
		return models.TierLifetime, nil
	}
	exp := now.AddDate(0, 0, days)
	return tier, &exp
}

// Grant overwrites any previous grant on acc.
func Grant(acc *models.Account, tier models.Tier, days int, now time.Time) {
	acc.SubscriptionTier, acc.SubscriptionExpires = Entitlement(tier, days, now)
}

func Revoke(acc *models.Account) {
	acc.SubscriptionTier = models.TierNone
	acc.SubscriptionExpires = nil
}
