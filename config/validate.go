package config

import (
	"fmt"
	"strings"

	"fundchain/core/genesis"
	"fundchain/storage"
)

// MinJWTSecretLength is the shortest accepted HMAC secret.
const MinJWTSecretLength = 16

// Validate rejects configurations the daemon cannot start with.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	switch cfg.Storage.Backend {
	case storage.BackendMemory, storage.BackendLevelDB, storage.BackendBolt:
	default:
		return fmt.Errorf("storage: unsupported backend %q", cfg.Storage.Backend)
	}
	if !cfg.Idempotency.Disabled {
		switch cfg.Idempotency.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("idempotency: unsupported driver %q", cfg.Idempotency.Driver)
		}
		if strings.TrimSpace(cfg.Idempotency.DSN) == "" {
			return fmt.Errorf("idempotency: dsn required for %s", cfg.Idempotency.Driver)
		}
	}
	if len(strings.TrimSpace(cfg.Auth.JWTSecret)) < MinJWTSecretLength {
		return fmt.Errorf("auth: jwt secret must be at least %d characters", MinJWTSecretLength)
	}
	if cfg.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit: burst must be positive")
	}
	if _, err := (&genesis.Spec{Alloc: cfg.Alloc}).Allocations(); err != nil {
		return fmt.Errorf("alloc: %w", err)
	}
	return nil
}
