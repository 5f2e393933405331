package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/entitlement/internal/models"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testSlot() Slot {
	return SlotOf(&models.Account{
		UID:              1,
		Username:         "alice",
		Email:            "a@x.com",
		Role:             models.RoleUser,
		SubscriptionTier: models.TierLifetime,
		PasswordHash:     "never-cached",
	})
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	id := NewID()

	_, err := s.Get(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, id, testSlot(), time.Hour))
	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, testSlot(), *got)

	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(ctx, id), "delete is idempotent")
}

func TestRedisStore(t *testing.T) {
	_, client := newTestRedis(t)
	exerciseStore(t, NewRedisStore(client))
}

func TestRedisStore_Expiry(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStore(client)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "sid", testSlot(), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := s.Get(ctx, "sid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_CorruptSlot(t *testing.T) {
	mr, client := newTestRedis(t)
	require.NoError(t, mr.Set(keyPrefix+"sid", "{not json"))

	_, err := NewRedisStore(client).Get(context.Background(), "sid")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "sid", testSlot(), time.Minute))
	now = now.Add(time.Minute)

	_, err := s.Get(ctx, "sid")
	assert.ErrorIs(t, err, ErrNotFound)
}
