package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/entitlement/internal/events"
	"github.com/Skotchmaster/entitlement/internal/models"
)

func TestRegister_Defaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	uid, err := f.svc.Register(ctx, RegisterInput{Username: " alice ", Email: "a@x.com", Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, uint(1), uid)

	acc := f.account(t, uid)
	assert.Equal(t, "alice", acc.Username)
	assert.Equal(t, models.RoleUser, acc.Role)
	assert.Equal(t, models.TierNone, acc.SubscriptionTier)
	assert.Nil(t, acc.SubscriptionExpires)
	assert.False(t, acc.IsBanned)
	assert.False(t, acc.SuperAdmin)
	assert.True(t, acc.IsActive)
	assert.Nil(t, acc.SecurityCode)
	assert.NotEqual(t, testPassword, acc.PasswordHash)

	uid2, err := f.svc.Register(ctx, RegisterInput{Username: "bob", Email: "b@x.com", Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, uint(2), uid2)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{name: "empty username", in: RegisterInput{Email: "a@x.com", Password: testPassword}},
		{name: "empty email", in: RegisterInput{Username: "alice", Password: testPassword}},
		{name: "empty password", in: RegisterInput{Username: "alice", Email: "a@x.com"}},
		{name: "short password", in: RegisterInput{Username: "alice", Email: "a@x.com", Password: "12345"}},
		{name: "long password", in: RegisterInput{Username: "alice", Email: "a@x.com", Password: strings.Repeat("x", 73)}},
		{name: "bad email", in: RegisterInput{Username: "alice", Email: "not-an-email", Password: testPassword}},
		{name: "short username", in: RegisterInput{Username: "al", Email: "a@x.com", Password: testPassword}},
		{name: "username with spaces", in: RegisterInput{Username: "al ice", Email: "a@x.com", Password: testPassword}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uid, err := f.svc.Register(context.Background(), tt.in)
			assert.Zero(t, uid)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestRegister_Conflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: testPassword})
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "other@x.com", Password: testPassword})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.svc.Register(ctx, RegisterInput{Username: "other", Email: "a@x.com", Password: testPassword})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.seed(t, "alice", models.RoleUser, false)

	for _, identifier := range []string{"alice", "alice@x.com"} {
		res, err := f.svc.Login(ctx, LoginInput{Identifier: identifier, Password: testPassword})
		require.NoError(t, err, identifier)

		assert.NotEmpty(t, res.Token)
		assert.Equal(t, f.clock.Now().Add(24*time.Hour), res.ExpiresAt)
		assert.Equal(t, alice.UID, res.Account.UID)

		caller, err := f.svc.CallerFromToken(res.Token)
		require.NoError(t, err)
		assert.Equal(t, alice, *caller)
	}

	acc := f.account(t, alice.UID)
	require.NotNil(t, acc.LastLogin)
	assert.True(t, acc.LastLogin.Equal(f.clock.Now()))
	assert.Contains(t, f.pub.types(), events.AccountLoggedIn)
}

func TestLogin_FailuresDoNotRevealWhichPartWasWrong(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "alice", models.RoleUser, false)

	_, unknownErr := f.svc.Login(ctx, LoginInput{Identifier: "nobody", Password: testPassword})
	_, wrongErr := f.svc.Login(ctx, LoginInput{Identifier: "alice", Password: "wrong-password"})

	assert.ErrorIs(t, unknownErr, ErrUnauthorized)
	assert.ErrorIs(t, wrongErr, ErrUnauthorized)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())

	_, err := f.svc.Login(ctx, LoginInput{Identifier: "", Password: testPassword})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLogin_ExpiredBanIsClearedAndPersisted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.seed(t, "alice", models.RoleUser, false)

	now := f.clock.Now()
	require.NoError(t, f.store.SetBan(ctx, alice.UID, "spam", ptrTime(now.Add(-time.Second)), "mod", now.Add(-time.Hour)))

	res, err := f.svc.Login(ctx, LoginInput{Identifier: "alice", Password: testPassword})
	require.NoError(t, err)
	assert.False(t, res.Account.IsBanned)

	acc := f.account(t, alice.UID)
	assert.False(t, acc.IsBanned)
	assert.Nil(t, acc.BanReason)
	assert.Nil(t, acc.BanExpires)
	assert.Nil(t, acc.BannedBy)
	assert.Nil(t, acc.BannedAt)
	assert.Contains(t, f.pub.types(), events.AccountUnbanned)
}

func TestLogin_ExpiredBanClearedEvenWhenPasswordWrong(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.seed(t, "alice", models.RoleUser, false)

	now := f.clock.Now()
	require.NoError(t, f.store.SetBan(ctx, alice.UID, "spam", ptrTime(now), "mod", now.Add(-time.Hour)))

	_, err := f.svc.Login(ctx, LoginInput{Identifier: "alice", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, f.account(t, alice.UID).IsBanned)
}

func TestLogin_ActiveBans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	temp := f.seed(t, "temp", models.RoleUser, false)
	perm := f.seed(t, "perm", models.RoleUser, false)
	now := f.clock.Now()

	until := now.Add(48 * time.Hour)
	require.NoError(t, f.store.SetBan(ctx, temp.UID, "cheating", &until, "mod", now))
	require.NoError(t, f.store.SetBan(ctx, perm.UID, "", nil, "mod", now))

	_, err := f.svc.Login(ctx, LoginInput{Identifier: "temp", Password: testPassword})
	require.ErrorIs(t, err, ErrForbidden)
	var be *BanError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "you are banned until 2026-03-03 12:00 UTC. Reason: cheating", be.Message)

	f.clock.Advance(10 * 365 * 24 * time.Hour)

	_, err = f.svc.Login(ctx, LoginInput{Identifier: "perm", Password: testPassword})
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "you are banned permanently. Reason: not specified", be.Message)
	assert.True(t, f.account(t, perm.UID).IsBanned)

	_, err = f.svc.Login(ctx, LoginInput{Identifier: "temp", Password: testPassword})
	assert.NoError(t, err, "temporary ban has run out")
}

func TestProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.seed(t, "alice", models.RoleUser, false)

	acc, err := f.svc.Profile(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "alice", acc.Username)

	_, err = f.svc.Profile(ctx, Caller{UID: 99, Username: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func ptrTime(t time.Time) *time.Time { return &t }
