package config

// Config is the crowdfundd runtime configuration. TOML keys follow the node
// convention; YAML keys are snake case. FUND_* environment variables override
// either file format.
type Config struct {
	ListenAddress string `toml:"ListenAddress" yaml:"listen" env:"FUND_LISTEN_ADDRESS"`
	DataDir       string `toml:"DataDir" yaml:"data_dir" env:"FUND_DATA_DIR"`
	Environment   string `toml:"Environment" yaml:"environment" env:"FUND_ENV"`
	GenesisFile   string `toml:"GenesisFile" yaml:"genesis_file" env:"FUND_GENESIS"`
	// Alloc holds inline genesis credits keyed by bech32 address.
	Alloc map[string]string `toml:"Alloc" yaml:"alloc"`

	HTTP    HTTP    `toml:"http" yaml:"http"`
	Storage Storage `toml:"storage" yaml:"storage"`
	Journal Journal `toml:"journal" yaml:"journal"`
	// Idempotency persists replayable responses for Idempotency-Key requests.
	Idempotency Idempotency `toml:"idempotency" yaml:"idempotency"`
	Auth        Auth        `toml:"auth" yaml:"auth"`
	RateLimit   RateLimit   `toml:"rate_limit" yaml:"rate_limit"`
	Logging     Logging     `toml:"logging" yaml:"logging"`
	Telemetry   Telemetry   `toml:"telemetry" yaml:"telemetry"`
}

// HTTP bounds the API server's connection handling, in seconds.
type HTTP struct {
	ReadHeaderTimeout int `toml:"ReadHeaderTimeout" yaml:"read_header_timeout"`
	ReadTimeout       int `toml:"ReadTimeout" yaml:"read_timeout"`
	WriteTimeout      int `toml:"WriteTimeout" yaml:"write_timeout"`
	IdleTimeout       int `toml:"IdleTimeout" yaml:"idle_timeout"`
	ShutdownTimeout   int `toml:"ShutdownTimeout" yaml:"shutdown_timeout"`
}

// Storage selects the record store backend.
type Storage struct {
	Backend string `toml:"Backend" yaml:"backend" env:"FUND_STORAGE_BACKEND"`
	Path    string `toml:"Path" yaml:"path" env:"FUND_STORAGE_PATH"`
}

// Journal configures the SQLite notification journal.
type Journal struct {
	Path     string `toml:"Path" yaml:"path" env:"FUND_JOURNAL_PATH"`
	Disabled bool   `toml:"Disabled" yaml:"disabled"`
}

// Idempotency selects the SQL store behind Idempotency-Key replay. Driver is
// "sqlite" or "postgres"; DSN is a file path or connection URL respectively.
type Idempotency struct {
	Driver   string `toml:"Driver" yaml:"driver" env:"FUND_IDEMPOTENCY_DRIVER"`
	DSN      string `toml:"DSN" yaml:"dsn" env:"FUND_IDEMPOTENCY_DSN"`
	TTLHours int    `toml:"TTLHours" yaml:"ttl_hours"`
	Disabled bool   `toml:"Disabled" yaml:"disabled"`
}

// Auth configures bearer token verification.
type Auth struct {
	JWTSecret        string `toml:"JWTSecret" yaml:"jwt_secret" env:"FUND_JWT_SECRET"`
	JWTSecretEnv     string `toml:"JWTSecretEnv" yaml:"jwt_secret_env"`
	Issuer           string `toml:"Issuer" yaml:"issuer"`
	Audience         string `toml:"Audience" yaml:"audience"`
	ClockSkewSeconds int    `toml:"ClockSkewSeconds" yaml:"clock_skew_seconds"`
}

// RateLimit caps per-client request throughput.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond" yaml:"requests_per_second"`
	Burst             int     `toml:"Burst" yaml:"burst"`
}

// Logging configures the structured logger.
type Logging struct {
	Level      string `toml:"Level" yaml:"level" env:"FUND_LOG_LEVEL"`
	File       string `toml:"File" yaml:"file" env:"FUND_LOG_FILE"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"Insecure" yaml:"insecure"`
	Headers  string `toml:"Headers" yaml:"headers"`
	Metrics  bool   `toml:"Metrics" yaml:"metrics"`
	Traces   bool   `toml:"Traces" yaml:"traces"`
}
