package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Load loads the configuration from the given path. The format follows the
// file extension: .yaml/.yml decode as YAML, anything else as TOML. A missing
// TOML file is created with defaults.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path required")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if isYAML(path) {
			return nil, fmt.Errorf("config file %s not found", path)
		}
		return createDefault(path)
	}

	cfg := &Config{}
	if isYAML(path) {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		ListenAddress: ":8080",
		DataDir:       "./fund-data",
		Environment:   "local",
		Alloc:         map[string]string{},
		HTTP: HTTP{
			ReadHeaderTimeout: 5,
			ReadTimeout:       15,
			WriteTimeout:      15,
			IdleTimeout:       60,
			ShutdownTimeout:   10,
		},
		Storage:     Storage{Backend: "leveldb"},
		Idempotency: Idempotency{Driver: "sqlite", TTLHours: 24},
		Auth:        Auth{Issuer: "fundchain", ClockSkewSeconds: 30},
		RateLimit:   RateLimit{RequestsPerSecond: 10, Burst: 20},
		Logging:     Logging{Level: "info"},
	}
}

// createDefault creates and saves a default configuration file with a fresh
// token secret.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	cfg.Auth.JWTSecret = hex.EncodeToString(secret)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// normalize fills defaults and resolves paths relative to the data directory.
func (cfg *Config) normalize(configDir string) {
	defaults := Default()
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaults.ListenAddress
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = defaults.DataDir
	}
	if !filepath.IsAbs(cfg.DataDir) && configDir != "" {
		cfg.DataDir = filepath.Join(configDir, cfg.DataDir)
	}
	if cfg.Alloc == nil {
		cfg.Alloc = map[string]string{}
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = defaults.Storage.Backend
	}
	if cfg.Storage.Path == "" && cfg.Storage.Backend != "memory" {
		name := "state"
		if cfg.Storage.Backend == "bolt" {
			name = "state.bolt"
		}
		cfg.Storage.Path = filepath.Join(cfg.DataDir, name)
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = filepath.Join(cfg.DataDir, "journal.db")
	}
	cfg.Idempotency.Driver = strings.ToLower(strings.TrimSpace(cfg.Idempotency.Driver))
	if cfg.Idempotency.Driver == "" {
		cfg.Idempotency.Driver = defaults.Idempotency.Driver
	}
	if cfg.Idempotency.DSN == "" && cfg.Idempotency.Driver == "sqlite" {
		cfg.Idempotency.DSN = filepath.Join(cfg.DataDir, "idempotency.db")
	}
	if cfg.Idempotency.TTLHours <= 0 {
		cfg.Idempotency.TTLHours = defaults.Idempotency.TTLHours
	}
	if secretEnv := strings.TrimSpace(cfg.Auth.JWTSecretEnv); secretEnv != "" {
		if value := strings.TrimSpace(os.Getenv(secretEnv)); value != "" {
			cfg.Auth.JWTSecret = value
		}
	}
	if cfg.Auth.ClockSkewSeconds <= 0 {
		cfg.Auth.ClockSkewSeconds = defaults.Auth.ClockSkewSeconds
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit.RequestsPerSecond = defaults.RateLimit.RequestsPerSecond
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaults.RateLimit.Burst
	}
	normalizeTimeout(&cfg.HTTP.ReadHeaderTimeout, defaults.HTTP.ReadHeaderTimeout)
	normalizeTimeout(&cfg.HTTP.ReadTimeout, defaults.HTTP.ReadTimeout)
	normalizeTimeout(&cfg.HTTP.WriteTimeout, defaults.HTTP.WriteTimeout)
	normalizeTimeout(&cfg.HTTP.IdleTimeout, defaults.HTTP.IdleTimeout)
	normalizeTimeout(&cfg.HTTP.ShutdownTimeout, defaults.HTTP.ShutdownTimeout)
}

func normalizeTimeout(v *int, fallback int) {
	if *v <= 0 {
		*v = fallback
	}
}
