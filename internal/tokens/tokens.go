package tokens

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Skotchmaster/entitlement/internal/models"
)

// TTL is the fixed validity window of a session token.
const TTL = 24 * time.Hour

var ErrInvalidToken = errors.New("invalid token")

// Snapshot is the account identity embedded in a token. Role is a cache of
// the account's role at issuance time.
type Snapshot struct {
	UID      uint        `json:"uid"`
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Role     models.Role `json:"role"`
}

type SessionClaims struct {
	Snapshot
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	now    func() time.Time
}

func NewIssuer(secret []byte) *Issuer {
	return &Issuer{secret: secret, now: time.Now}
}

// WithClock returns a copy of the issuer reading time from now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	return &Issuer{secret: i.secret, now: now}
}

func SnapshotOf(acc *models.Account) Snapshot {
	return Snapshot{
		UID:      acc.UID,
		Username: acc.Username,
		Email:    acc.Email,
		Role:     acc.Role,
	}
}

// Issue signs a token for s valid for TTL. It returns the token and its expiry.
func (i *Issuer) Issue(s Snapshot) (string, time.Time, error) {
	issuedAt := i.now()
	exp := issuedAt.Add(TTL)
	claims := SessionClaims{
		Snapshot: s,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(s.UID), 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Validate checks signature, algorithm and expiry. Any failure yields
// ErrInvalidToken and no snapshot.
func (i *Issuer) Validate(tokenStr string) (*Snapshot, error) {
	var claims SessionClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return i.secret, nil
	},
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !tkn.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UID == 0 || claims.Subject != strconv.FormatUint(uint64(claims.UID), 10) {
		return nil, ErrInvalidToken
	}
	s := claims.Snapshot
	return &s, nil
}
