package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/entitlement/internal/domain"
	"github.com/Skotchmaster/entitlement/internal/events"
	"github.com/Skotchmaster/entitlement/internal/models"
)

func TestEndToEnd_RegisterLoginRedeem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	uid, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: testPassword})
	require.NoError(t, err)
	require.Equal(t, uint(1), uid)

	res, err := f.svc.Login(ctx, LoginInput{Identifier: "alice", Password: testPassword})
	require.NoError(t, err)
	alice, err := f.svc.CallerFromToken(res.Token)
	require.NoError(t, err)

	f.seed(t, "admin", models.RoleUser, false)
	promoted, err := f.svc.BootstrapSuperAdmin(ctx, "admin")
	require.NoError(t, err)
	admin := Caller{UID: promoted.Account.UID, Username: "admin", Role: models.RoleAdmin}

	key, err := f.svc.GenerateKey(ctx, admin, 7)
	require.NoError(t, err)
	assert.True(t, domain.ValidKeyFormat(key.KeyValue))
	assert.Equal(t, "admin", key.CreatedBy)
	assert.Equal(t, models.TierSubscription, key.SubscriptionTier)

	act, err := f.svc.ActivateKey(ctx, *alice, key.KeyValue)
	require.NoError(t, err)
	assert.Equal(t, models.TierSubscription, act.Tier)
	require.NotNil(t, act.Expires)
	assert.True(t, act.Expires.Equal(f.clock.Now().AddDate(0, 0, 7)))
	assert.Equal(t, "active until 2026-03-08 12:00 UTC", act.Status)

	_, err = f.svc.ActivateKey(ctx, *alice, key.KeyValue)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Subset(t, f.pub.types(), []string{
		events.AccountRegistered,
		events.AccountLoggedIn,
		events.RoleChanged,
		events.KeyGenerated,
		events.KeyRedeemed,
	})
}

func TestActivateKey_ThirtyDaysThenExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.seed(t, "admin", models.RoleAdmin, false)
	user := f.seed(t, "user", models.RoleUser, false)

	key, err := f.svc.GenerateKey(ctx, admin, 30)
	require.NoError(t, err)

	start := f.clock.Now()
	_, err = f.svc.ActivateKey(ctx, user, key.KeyValue)
	require.NoError(t, err)

	acc := f.account(t, user.UID)
	require.NotNil(t, acc.SubscriptionExpires)
	assert.True(t, acc.SubscriptionExpires.Equal(start.AddDate(0, 0, 30)))
	assert.True(t, domain.IsActive(acc, start))
	assert.False(t, domain.IsActive(acc, start.AddDate(0, 0, 31)))
}

func TestActivateKey_LifetimeOverridesSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.seed(t, "admin", models.RoleAdmin, false)
	user := f.seed(t, "user", models.RoleUser, false)

	monthly, err := f.svc.GenerateKey(ctx, admin, 30)
	require.NoError(t, err)
	lifetime, err := f.svc.GenerateKey(ctx, admin, 0)
	require.NoError(t, err)
	assert.Equal(t, models.TierLifetime, lifetime.SubscriptionTier)

	_, err = f.svc.ActivateKey(ctx, user, monthly.KeyValue)
	require.NoError(t, err)

	act, err := f.svc.ActivateKey(ctx, user, lifetime.KeyValue)
	require.NoError(t, err)
	assert.Equal(t, models.TierLifetime, act.Tier)
	assert.Nil(t, act.Expires)
	assert.Equal(t, "lifetime", act.Status)

	acc := f.account(t, user.UID)
	assert.Equal(t, models.TierLifetime, acc.SubscriptionTier)
	assert.Nil(t, acc.SubscriptionExpires)
}

func TestActivateKey_NormalizesAndValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.seed(t, "admin", models.RoleAdmin, false)
	user := f.seed(t, "user", models.RoleUser, false)

	key, err := f.svc.GenerateKey(ctx, admin, 1)
	require.NoError(t, err)

	for _, bad := range []string{"", "abc", "AAAA-BBBB-CCCC", "AAAA_BBBB_CCCC_DDDD"} {
		_, err := f.svc.ActivateKey(ctx, user, bad)
		assert.ErrorIs(t, err, ErrValidation, bad)
	}

	_, err = f.svc.ActivateKey(ctx, user, "ZZZZ-ZZZZ-ZZZZ-ZZZZ")
	assert.ErrorIs(t, err, ErrNotFound)

	lower := "  " + strings.ToLower(key.KeyValue) + " "
	_, err = f.svc.ActivateKey(ctx, user, lower)
	assert.NoError(t, err)
}

func TestActivateKey_MissingAccountLeavesKeyUnused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.seed(t, "admin", models.RoleAdmin, false)

	key, err := f.svc.GenerateKey(ctx, admin, 5)
	require.NoError(t, err)

	_, err = f.svc.ActivateKey(ctx, Caller{UID: 42, Username: "ghost"}, key.KeyValue)
	assert.ErrorIs(t, err, ErrUnauthorized)

	page, err := f.svc.ListKeys(ctx, admin, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.False(t, page.Items[0].IsUsed)
	assert.Nil(t, page.Items[0].UsedBy)
}

func TestActivateKey_ConcurrentRedemptionSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.seed(t, "admin", models.RoleAdmin, false)
	a := f.seed(t, "racer-a", models.RoleUser, false)
	b := f.seed(t, "racer-b", models.RoleUser, false)

	key, err := f.svc.GenerateKey(ctx, admin, 10)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, c := range []Caller{a, b} {
		wg.Add(1)
		go func(i int, c Caller) {
			defer wg.Done()
			_, errs[i] = f.svc.ActivateKey(ctx, c, key.KeyValue)
		}(i, c)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 1, wins)

	granted := 0
	for _, c := range []Caller{a, b} {
		if f.account(t, c.UID).SubscriptionTier == models.TierSubscription {
			granted++
		}
	}
	assert.Equal(t, 1, granted)
}

func TestGenerateKey_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mod := f.seed(t, "mod", models.RoleModerator, false)
	user := f.seed(t, "user", models.RoleUser, false)
	admin := f.seed(t, "admin", models.RoleAdmin, false)

	for _, c := range []Caller{mod, user} {
		_, err := f.svc.GenerateKey(ctx, c, 7)
		assert.ErrorIs(t, err, ErrForbidden)
		_, err = f.svc.ListKeys(ctx, c, 1, 10)
		assert.ErrorIs(t, err, ErrForbidden)
	}

	// a token claiming admin does not help: the stored role decides
	forged := Caller{UID: user.UID, Username: user.Username, Role: models.RoleAdmin}
	_, err := f.svc.GenerateKey(ctx, forged, 7)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.GenerateKey(ctx, admin, -1)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.GenerateKey(ctx, admin, MaxDurationDays+1)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.GenerateKey(ctx, Caller{UID: 404}, 7)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestListKeys_NewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.seed(t, "admin", models.RoleAdmin, false)

	var values []string
	for i := 0; i < 3; i++ {
		k, err := f.svc.GenerateKey(ctx, admin, i+1)
		require.NoError(t, err)
		values = append(values, k.KeyValue)
		f.clock.Advance(time.Minute)
	}

	page, err := f.svc.ListKeys(ctx, admin, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 2, page.Size)
	require.Len(t, page.Items, 2)
	assert.Equal(t, values[2], page.Items[0].KeyValue)
	assert.Equal(t, values[1], page.Items[1].KeyValue)

	page, err = f.svc.ListKeys(ctx, admin, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, values[0], page.Items[0].KeyValue)
}

func TestActivateKey_RefusedForBannedOrInactiveCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.seed(t, "admin", models.RoleAdmin, false)
	banned := f.seed(t, "banned", models.RoleUser, false)
	inactive := f.seed(t, "inactive", models.RoleUser, false)

	key, err := f.svc.GenerateKey(ctx, admin, 5)
	require.NoError(t, err)

	require.NoError(t, f.svc.Ban(ctx, admin, BanInput{UID: banned.UID, Reason: "chargeback"}))
	_, err = f.svc.ActivateKey(ctx, banned, key.KeyValue)
	var banErr *BanError
	require.ErrorAs(t, err, &banErr)
	assert.Contains(t, banErr.Message, "chargeback")

	require.NoError(t, f.store.DB.Model(&models.Account{}).Where("uid = ?", inactive.UID).Update("is_active", false).Error)
	_, err = f.svc.ActivateKey(ctx, inactive, key.KeyValue)
	assert.ErrorIs(t, err, ErrForbidden)

	page, err := f.svc.ListKeys(ctx, admin, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.False(t, page.Items[0].IsUsed)
	assert.Equal(t, models.TierNone, f.account(t, banned.UID).SubscriptionTier)
}
