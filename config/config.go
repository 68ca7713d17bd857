// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all server settings. Every field can be set through the
// environment; defaults suit local development except the secrets, which
// must be provided.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `env:"KEYWARDEN_ADDR" envDefault:":8080"`
	// DataDir holds the BBolt database file.
	DataDir string `env:"KEYWARDEN_DATA_DIR" envDefault:"./data"`
	// RedisURL, when set, switches the volatile session store from
	// in-process memory to Redis.
	RedisURL string `env:"KEYWARDEN_REDIS_URL"`
	// JWTSecret signs API auth tokens.
	JWTSecret string `env:"KEYWARDEN_JWT_SECRET"`
	// JWTExpiry bounds the API auth token lifetime.
	JWTExpiry time.Duration `env:"KEYWARDEN_JWT_EXPIRY" envDefault:"24h"`
	// TwoFactorKey is the hex-encoded 256-bit key sealing stored TOTP
	// secrets.
	TwoFactorKey string `env:"KEYWARDEN_2FA_KEY"`
	// UnlockTimeout is the vault inactivity window.
	UnlockTimeout time.Duration `env:"KEYWARDEN_UNLOCK_TIMEOUT" envDefault:"10m"`
	// BcryptCost is the login credential hashing cost.
	BcryptCost int `env:"KEYWARDEN_BCRYPT_COST" envDefault:"12"`
	// MinPasswordLength is enforced on registration and password change.
	MinPasswordLength int `env:"KEYWARDEN_MIN_PASSWORD_LENGTH" envDefault:"6"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("KEYWARDEN_JWT_SECRET must be set")
	}
	if c.UnlockTimeout <= 0 {
		return fmt.Errorf("unlock timeout must be positive, got %s", c.UnlockTimeout)
	}
	if c.BcryptCost < 10 || c.BcryptCost > 20 {
		return fmt.Errorf("bcrypt cost %d out of range [10, 20]", c.BcryptCost)
	}
	return nil
}
