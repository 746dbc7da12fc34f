// Package config defines the top-level configuration for the wallet PnL
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by POLYPNL_* environment
// variables.
type Config struct {
	Goldsky    GoldskyConfig    `toml:"goldsky"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Oracle     OracleConfig     `toml:"oracle"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Pnl        PnlConfig        `toml:"pnl"`
	Server     ServerConfig     `toml:"server"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// GoldskyConfig holds the subgraph indexer endpoint used as the primary
// wallet event source.
type GoldskyConfig struct {
	URL      string `toml:"url"`
	APIKey   string `toml:"api_key"`
	PageSize int    `toml:"page_size"`
}

// PolymarketConfig holds the venue API endpoints used for resolution and
// mark-price lookups.
type PolymarketConfig struct {
	GammaHost string `toml:"gamma_host"`
	ClobHost  string `toml:"clob_host"`
}

// OracleConfig holds the optional external fallback PnL API. When enabled,
// the oracle participates in consensus scoring as one more engine.
type OracleConfig struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	APIKey  string `toml:"api_key"`
}

// PostgresConfig holds connection parameters for the optional local event
// mirror and batch-result audit tables.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the mark-price and
// resolution caches.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	PriceTTL   duration `toml:"price_ttl"`

	// ResolutionTTL bounds how long a settled payout vector is cached.
	// Settled payouts never change, so this can be long.
	ResolutionTTL duration `toml:"resolution_ttl"`
}

// S3Config holds S3-compatible object storage parameters for batch snapshot
// export.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PnlConfig holds the accounting and consensus policy constants. The
// thresholds are operational policy with no derivation; they live here, not
// as literals in the engine.
type PnlConfig struct {
	// AgreementThreshold is the max relative difference for two engine
	// estimates to agree.
	AgreementThreshold float64 `toml:"agreement_threshold"`
	// AbsoluteToleranceUSD lets near-zero estimates agree absolutely.
	AbsoluteToleranceUSD float64 `toml:"absolute_tolerance_usd"`
	// DangerPairCount flags a wallet for manual review when exceeded.
	DangerPairCount int `toml:"danger_pair_count"`
	// BatchConcurrency bounds the batch worker pool.
	BatchConcurrency int `toml:"batch_concurrency"`
	// SourceTimeout bounds every network load for one wallet.
	SourceTimeout duration `toml:"source_timeout"`
	// WaitForAllEngines makes consensus join on every engine for
	// determinism instead of classifying early on cancellation.
	WaitForAllEngines bool `toml:"wait_for_all_engines"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "30s", "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Goldsky: GoldskyConfig{
			URL:      "",
			PageSize: 1000,
		},
		Polymarket: PolymarketConfig{
			GammaHost: "https://gamma-api.polymarket.com",
			ClobHost:  "https://clob.polymarket.com",
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:       false,
			Addr:          "localhost:6379",
			PoolSize:      20,
			MaxRetries:    3,
			PriceTTL:      duration{30 * time.Second},
			ResolutionTTL: duration{24 * time.Hour},
		},
		S3: S3Config{
			Enabled:        false,
			Region:         "us-east-1",
			Bucket:         "polypnl-data",
			Prefix:         "pnl-runs",
			ForcePathStyle: true,
		},
		Pnl: PnlConfig{
			AgreementThreshold:   0.06,
			AbsoluteToleranceUSD: 10,
			DangerPairCount:      500,
			BatchConcurrency:     5,
			SourceTimeout:        duration{30 * time.Second},
			WaitForAllEngines:    true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"wallet": true,
	"batch":  true,
	"serve":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: wallet, batch, serve)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Goldsky.URL == "" {
		errs = append(errs, "goldsky: url must not be empty")
	}
	if c.Goldsky.PageSize <= 0 {
		errs = append(errs, "goldsky: page_size must be > 0")
	}

	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}

	if c.Oracle.Enabled && c.Oracle.URL == "" {
		errs = append(errs, "oracle: url is required when enabled")
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	if c.Pnl.AgreementThreshold <= 0 || c.Pnl.AgreementThreshold >= 1 {
		errs = append(errs, fmt.Sprintf("pnl: agreement_threshold must be in (0, 1), got %g", c.Pnl.AgreementThreshold))
	}
	if c.Pnl.AbsoluteToleranceUSD < 0 {
		errs = append(errs, "pnl: absolute_tolerance_usd must be >= 0")
	}
	if c.Pnl.DangerPairCount < 0 {
		errs = append(errs, "pnl: danger_pair_count must be >= 0")
	}
	if c.Pnl.BatchConcurrency < 1 {
		errs = append(errs, "pnl: batch_concurrency must be >= 1")
	}
	if c.Pnl.SourceTimeout.Duration <= 0 {
		errs = append(errs, "pnl: source_timeout must be > 0")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
