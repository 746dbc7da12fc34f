package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYPNL_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYPNL_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Goldsky ──
	setStr(&cfg.Goldsky.URL, "POLYPNL_GOLDSKY_URL")
	setStr(&cfg.Goldsky.APIKey, "POLYPNL_GOLDSKY_API_KEY")
	setInt(&cfg.Goldsky.PageSize, "POLYPNL_GOLDSKY_PAGE_SIZE")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "POLYPNL_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.ClobHost, "POLYPNL_POLYMARKET_CLOB_HOST")

	// ── Oracle ──
	setBool(&cfg.Oracle.Enabled, "POLYPNL_ORACLE_ENABLED")
	setStr(&cfg.Oracle.URL, "POLYPNL_ORACLE_URL")
	setStr(&cfg.Oracle.APIKey, "POLYPNL_ORACLE_API_KEY")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "POLYPNL_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POLYPNL_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POLYPNL_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYPNL_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYPNL_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYPNL_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYPNL_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYPNL_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POLYPNL_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POLYPNL_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POLYPNL_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYPNL_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYPNL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYPNL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYPNL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYPNL_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYPNL_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYPNL_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.PriceTTL, "POLYPNL_REDIS_PRICE_TTL")
	setDuration(&cfg.Redis.ResolutionTTL, "POLYPNL_REDIS_RESOLUTION_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYPNL_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYPNL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYPNL_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYPNL_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "POLYPNL_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "POLYPNL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYPNL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYPNL_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYPNL_S3_FORCE_PATH_STYLE")

	// ── Pnl ──
	setFloat64(&cfg.Pnl.AgreementThreshold, "POLYPNL_PNL_AGREEMENT_THRESHOLD")
	setFloat64(&cfg.Pnl.AbsoluteToleranceUSD, "POLYPNL_PNL_ABSOLUTE_TOLERANCE_USD")
	setInt(&cfg.Pnl.DangerPairCount, "POLYPNL_PNL_DANGER_PAIR_COUNT")
	setInt(&cfg.Pnl.BatchConcurrency, "POLYPNL_PNL_BATCH_CONCURRENCY")
	setDuration(&cfg.Pnl.SourceTimeout, "POLYPNL_PNL_SOURCE_TIMEOUT")
	setBool(&cfg.Pnl.WaitForAllEngines, "POLYPNL_PNL_WAIT_FOR_ALL_ENGINES")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYPNL_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYPNL_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYPNL_SERVER_CORS_ORIGINS")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYPNL_MODE")
	setStr(&cfg.LogLevel, "POLYPNL_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
