package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/entitlement/internal/models"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrKeyNotFound     = errors.New("license key not found")
	ErrDuplicate       = errors.New("duplicate record")
)

// GrantFunc turns a license key's tier and duration into the subscription
// state stored on the redeeming account.
type GrantFunc func(tier models.Tier, days int, now time.Time) (models.Tier, *time.Time)

// Store is the persistence port over accounts and license keys.
type Store interface {
	CreateAccount(ctx context.Context, acc *models.Account) error
	GetAccount(ctx context.Context, uid uint) (*models.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*models.Account, error)
	FindActiveByIdentifier(ctx context.Context, identifier string) (*models.Account, error)
	AccountExists(ctx context.Context, username, email string) (bool, error)
	ListAccounts(ctx context.Context, offset, limit int) (int64, []models.Account, error)
	ListAdmins(ctx context.Context) ([]models.Account, error)
	TouchLastLogin(ctx context.Context, uid uint, at time.Time) error
	ClearExpiredBan(ctx context.Context, uid uint, now time.Time) error
	SetBan(ctx context.Context, uid uint, reason string, expires *time.Time, by string, at time.Time) error
	ClearBan(ctx context.Context, uid uint) error
	UpdateRole(ctx context.Context, username string, role models.Role, securityCode *int) (*models.Account, error)
	PromoteSuperAdmin(ctx context.Context, username string, securityCode int) (*models.Account, error)
	SetSubscription(ctx context.Context, uid uint, tier models.Tier, expires *time.Time) error
	DeleteAccount(ctx context.Context, uid uint) (*models.Account, error)

	CreateKey(ctx context.Context, key *models.LicenseKey) error
	ListKeys(ctx context.Context, offset, limit int) (int64, []models.LicenseKey, error)
	RedeemKey(ctx context.Context, keyValue string, uid uint, now time.Time, grant GrantFunc) (*models.LicenseKey, *models.Account, error)

	Ping(ctx context.Context) error
}

type GormRepo struct {
	DB  *gorm.DB
	seq sequencer
}

var _ Store = (*GormRepo)(nil)

func New(db *gorm.DB) *GormRepo {
	return &GormRepo{DB: db, seq: sequencerFor(db.Dialector.Name())}
}

func (r *GormRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}
