package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/entitlement/internal/config"
	"github.com/Skotchmaster/entitlement/internal/db"
	"github.com/Skotchmaster/entitlement/internal/models"
	"github.com/Skotchmaster/entitlement/internal/repo"
)

func seedDB(t *testing.T, usernames ...string) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "entitlement.db")

	gdb, err := db.Open(ctx, config.DriverSQLite, path)
	require.NoError(t, err)
	store := repo.New(gdb)
	for _, name := range usernames {
		require.NoError(t, store.CreateAccount(ctx, &models.Account{
			Username:         name,
			Email:            name + "@x.com",
			PasswordHash:     "unused",
			Role:             models.RoleUser,
			SubscriptionTier: models.TierNone,
			IsActive:         true,
			CreatedAt:        time.Now().UTC(),
		}))
	}
	require.NoError(t, db.Close(gdb))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func TestRun_Usage(t *testing.T) {
	out, err := runCLI(t)
	require.NoError(t, err)
	assert.Contains(t, out, "usage: entitlementctl")

	_, err = runCLI(t, "explode")
	assert.ErrorContains(t, err, "unknown command")
}

func TestRun_PromoteGenkeyAndList(t *testing.T) {
	path := seedDB(t, "owner", "alice")
	base := []string{"--driver", "sqlite", "--dsn", path}

	out, err := runCLI(t, append([]string{"genkey", "--as", "owner", "--days", "7"}, base...)...)
	assert.ErrorContains(t, err, "insufficient privileges")
	assert.Empty(t, out)

	out, err = runCLI(t, append([]string{"promote", "--username", "owner"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "promoted owner (uid 1) to super-admin")
	assert.Contains(t, out, "security code: ")

	out, err = runCLI(t, append([]string{"genkey", "--as", "owner", "--days", "0"}, base...)...)
	require.NoError(t, err)
	key := strings.TrimSpace(out)
	assert.Regexp(t, `^[A-Z0-9]{4}(-[A-Z0-9]{4}){3}$`, key)

	out, err = runCLI(t, append([]string{"keys", "--as", "owner"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, key)
	assert.Contains(t, out, "lifetime")
	assert.Contains(t, out, "1 of 1")

	out, err = runCLI(t, append([]string{"users", "--as", "owner", "--size", "1"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "owner")
	assert.NotContains(t, out, "alice")
	assert.Contains(t, out, "1 of 2")

	_, err = runCLI(t, append([]string{"users", "--as", "alice"}, base...)...)
	assert.ErrorContains(t, err, "insufficient privileges")

	_, err = runCLI(t, append([]string{"users"}, base...)...)
	assert.ErrorContains(t, err, "--as is required")

	_, err = runCLI(t, append([]string{"promote", "--username", "ghost"}, base...)...)
	assert.ErrorContains(t, err, "not found")
}
