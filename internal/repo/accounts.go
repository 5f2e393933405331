package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/entitlement/internal/models"
)

func (r *GormRepo) CreateAccount(ctx context.Context, acc *models.Account) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.seq.lock(tx); err != nil {
			return err
		}
		return tx.Create(acc).Error
	})
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return err
	}
	return nil
}

func (r *GormRepo) first(ctx context.Context, query string, args ...any) (*models.Account, error) {
	var acc models.Account
	if err := r.DB.WithContext(ctx).Where(query, args...).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acc, nil
}

func (r *GormRepo) GetAccount(ctx context.Context, uid uint) (*models.Account, error) {
	return r.first(ctx, "uid = ?", uid)
}

func (r *GormRepo) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.first(ctx, "username = ?", username)
}

func (r *GormRepo) FindActiveByIdentifier(ctx context.Context, identifier string) (*models.Account, error) {
	return r.first(ctx, "(username = ? OR email = ?) AND is_active = ?", identifier, identifier, true)
}

func (r *GormRepo) AccountExists(ctx context.Context, username, email string) (bool, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.Account{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormRepo) ListAccounts(ctx context.Context, offset, limit int) (int64, []models.Account, error) {
	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.Account{}).Count(&total).Error; err != nil {
		return 0, nil, err
	}

	var items []models.Account
	if err := r.DB.WithContext(ctx).Order("uid ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

func (r *GormRepo) ListAdmins(ctx context.Context) ([]models.Account, error) {
	var items []models.Account
	if err := r.DB.WithContext(ctx).
		Where("role = ?", models.RoleAdmin).
		Order("created_at ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// updateAccount applies fields to the account matched by where and reports
// ErrAccountNotFound when nothing matched.
func (r *GormRepo) updateAccount(ctx context.Context, fields map[string]any, where string, args ...any) error {
	res := r.DB.WithContext(ctx).Model(&models.Account{}).Where(where, args...).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *GormRepo) TouchLastLogin(ctx context.Context, uid uint, at time.Time) error {
	return r.updateAccount(ctx, map[string]any{"last_login": at}, "uid = ?", uid)
}

func clearedBanFields() map[string]any {
	return map[string]any{
		"is_banned":   false,
		"ban_reason":  nil,
		"ban_expires": nil,
		"banned_by":   nil,
		"banned_at":   nil,
	}
}

// ClearExpiredBan lifts a temporary ban that ended at or before now. It is a
// no-op for accounts that are not banned, banned permanently, or still banned.
func (r *GormRepo) ClearExpiredBan(ctx context.Context, uid uint, now time.Time) error {
	return r.DB.WithContext(ctx).Model(&models.Account{}).
		Where("uid = ? AND is_banned = ? AND ban_expires IS NOT NULL AND ban_expires <= ?", uid, true, now).
		Updates(clearedBanFields()).Error
}

func (r *GormRepo) SetBan(ctx context.Context, uid uint, reason string, expires *time.Time, by string, at time.Time) error {
	return r.updateAccount(ctx, map[string]any{
		"is_banned":   true,
		"ban_reason":  reason,
		"ban_expires": expires,
		"banned_by":   by,
		"banned_at":   at,
	}, "uid = ?", uid)
}

func (r *GormRepo) ClearBan(ctx context.Context, uid uint) error {
	return r.updateAccount(ctx, clearedBanFields(), "uid = ?", uid)
}

func (r *GormRepo) UpdateRole(ctx context.Context, username string, role models.Role, securityCode *int) (*models.Account, error) {
	fields := map[string]any{
		"role":          role,
		"security_code": securityCode,
	}
	if role != models.RoleAdmin {
		fields["super_admin"] = false
	}
	if err := r.updateAccount(ctx, fields, "username = ?", username); err != nil {
		return nil, err
	}
	return r.GetAccountByUsername(ctx, username)
}

func (r *GormRepo) PromoteSuperAdmin(ctx context.Context, username string, securityCode int) (*models.Account, error) {
	fields := map[string]any{
		"role":          models.RoleAdmin,
		"super_admin":   true,
		"security_code": securityCode,
	}
	if err := r.updateAccount(ctx, fields, "username = ?", username); err != nil {
		return nil, err
	}
	return r.GetAccountByUsername(ctx, username)
}

func (r *GormRepo) SetSubscription(ctx context.Context, uid uint, tier models.Tier, expires *time.Time) error {
	return r.updateAccount(ctx, map[string]any{
		"subscription_tier":    tier,
		"subscription_expires": expires,
	}, "uid = ?", uid)
}

// DeleteAccount hard-removes the account and compacts the uid sequence so the
// next account gets max(uid)+1.
func (r *GormRepo) DeleteAccount(ctx context.Context, uid uint) (*models.Account, error) {
	var deleted models.Account
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.seq.lock(tx); err != nil {
			return err
		}
		if err := tx.Where("uid = ?", uid).First(&deleted).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		res := tx.Where("uid = ?", uid).Delete(&models.Account{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAccountNotFound
		}
		return r.seq.compact(tx)
	})
	if err != nil {
		return nil, err
	}
	return &deleted, nil
}
