// Package config loads runtime settings from environment variables.
package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full runtime configuration, parsed from MASKER_* variables.
type Config struct {
	// Platform REST access.
	PlatformBaseURL string        `env:"MASKER_PLATFORM_URL,required,notEmpty"`
	PlatformToken   string        `env:"MASKER_PLATFORM_TOKEN,required,notEmpty"`
	PlatformGuildID string        `env:"MASKER_GUILD_ID,required,notEmpty"`
	PlatformTimeout time.Duration `env:"MASKER_PLATFORM_TIMEOUT" envDefault:"30s"`

	// Gateway ingress.
	Host      string `env:"MASKER_HOST"`
	Port      int    `env:"MASKER_PORT" envDefault:"8080"`
	PublicKey string `env:"MASKER_PUBLIC_KEY,required,notEmpty"`

	// Per-sender event rate limiting.
	RateLimit float64 `env:"MASKER_RATE_LIMIT" envDefault:"25"`
	RateBurst int     `env:"MASKER_RATE_BURST" envDefault:"50"`

	// Storage backend: memory, redis or badger.
	StorageType string `env:"MASKER_STORAGE_TYPE" envDefault:"memory"`
	RedisURL    string `env:"MASKER_REDIS_URL"`
	BadgerPath  string `env:"MASKER_BADGER_PATH" envDefault:"data/masker"`

	LogLevel string `env:"MASKER_LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment and validates cross-field requirements.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if _, err := c.VerifyKey(); err != nil {
		return err
	}
	switch c.StorageType {
	case "memory", "badger":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("MASKER_REDIS_URL required when MASKER_STORAGE_TYPE=redis")
		}
	default:
		return fmt.Errorf("unknown storage type %q", c.StorageType)
	}
	return nil
}

// VerifyKey decodes the hex-encoded ed25519 public key used to authenticate
// event deliveries.
func (c Config) VerifyKey() (ed25519.PublicKey, error) {
	key, err := hex.DecodeString(c.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(key))
	}
	return ed25519.PublicKey(key), nil
}
