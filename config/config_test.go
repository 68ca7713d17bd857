package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KEYWARDEN_JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, 10*time.Minute, cfg.UnlockTimeout)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, 6, cfg.MinPasswordLength)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KEYWARDEN_JWT_SECRET", "test-secret")
	t.Setenv("KEYWARDEN_ADDR", ":9000")
	t.Setenv("KEYWARDEN_UNLOCK_TIMEOUT", "5m")
	t.Setenv("KEYWARDEN_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 5*time.Minute, cfg.UnlockTimeout)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func TestLoadRejectsMissingJWTSecret(t *testing.T) {
	t.Setenv("KEYWARDEN_JWT_SECRET", "")
	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{JWTSecret: "s", UnlockTimeout: time.Minute, BcryptCost: 12}

	cfg := base
	require.NoError(t, cfg.Validate())

	cfg = base
	cfg.UnlockTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = base
	cfg.BcryptCost = 4
	assert.Error(t, cfg.Validate())
}
