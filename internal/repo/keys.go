package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/entitlement/internal/models"
)

func (r *GormRepo) CreateKey(ctx context.Context, key *models.LicenseKey) error {
	if err := r.DB.WithContext(ctx).Create(key).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return err
	}
	return nil
}

func (r *GormRepo) ListKeys(ctx context.Context, offset, limit int) (int64, []models.LicenseKey, error) {
	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.LicenseKey{}).Count(&total).Error; err != nil {
		return 0, nil, err
	}

	var items []models.LicenseKey
	if err := r.DB.WithContext(ctx).
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

// RedeemKey consumes an unused key and applies its grant to the account in one
// transaction. The conditional update on is_used makes concurrent redemptions
// of the same key race for a single row: the loser sees ErrKeyNotFound. A
// missing account rolls the key back to unused.
func (r *GormRepo) RedeemKey(ctx context.Context, keyValue string, uid uint, now time.Time, grant GrantFunc) (*models.LicenseKey, *models.Account, error) {
	var (
		key models.LicenseKey
		acc models.Account
	)

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.LicenseKey{}).
			Where("key_value = ? AND is_used = ?", keyValue, false).
			Updates(map[string]any{
				"is_used": true,
				"used_by": uid,
				"used_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrKeyNotFound
		}

		if err := tx.Where("key_value = ?", keyValue).First(&key).Error; err != nil {
			return err
		}

		tier, expires := grant(key.SubscriptionTier, key.DurationDays, now)
		res = tx.Model(&models.Account{}).
			Where("uid = ?", uid).
			Updates(map[string]any{
				"subscription_tier":    tier,
				"subscription_expires": expires,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAccountNotFound
		}

		if err := tx.Where("uid = ?", uid).First(&acc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &key, &acc, nil
}
