package domain

import (
	"crypto/rand"
	"math/big"

	"github.com/Skotchmaster/entitlement/internal/models"
)

// CanModerate covers listing accounts and banning.
func CanModerate(acc *models.Account) bool {
	return acc.Role == models.RoleAdmin || acc.Role == models.RoleModerator
}

// CanAdminister covers deletion, subscriptions and license keys.
func CanAdminister(acc *models.Account) bool {
	return acc.Role == models.RoleAdmin
}

// IsSuperAdmin is the only capability allowed to reassign roles.
func IsSuperAdmin(acc *models.Account) bool {
	return acc.Role == models.RoleAdmin && acc.SuperAdmin
}

func RequiresSecurityCode(role models.Role) bool {
	return role == models.RoleAdmin
}

// NewSecurityCode returns a five digit code in [10000, 99999].
func NewSecurityCode() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(90000))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()) + 10000, nil
}
