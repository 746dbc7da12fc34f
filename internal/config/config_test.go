package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "batch"
log_level = "debug"

[goldsky]
url = "https://api.goldsky.com/api/public/project/subgraphs/pnl/gn"
page_size = 500

[pnl]
agreement_threshold = 0.08
source_timeout = "45s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "batch", cfg.Mode)
	assert.Equal(t, 500, cfg.Goldsky.PageSize)
	assert.InDelta(t, 0.08, cfg.Pnl.AgreementThreshold, 1e-12)
	assert.Equal(t, 45*time.Second, cfg.Pnl.SourceTimeout.Duration)

	// Untouched sections keep their defaults.
	assert.Equal(t, "https://gamma-api.polymarket.com", cfg.Polymarket.GammaHost)
	assert.Equal(t, 5, cfg.Pnl.BatchConcurrency)
	assert.Equal(t, 24*time.Hour, cfg.Redis.ResolutionTTL.Duration)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[goldsky]
url = "https://from-file.example.com"
`)

	t.Setenv("POLYPNL_GOLDSKY_URL", "https://from-env.example.com")
	t.Setenv("POLYPNL_GOLDSKY_API_KEY", "sekret")
	t.Setenv("POLYPNL_PNL_BATCH_CONCURRENCY", "8")
	t.Setenv("POLYPNL_REDIS_PRICE_TTL", "90s")
	t.Setenv("POLYPNL_SERVER_CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://from-env.example.com", cfg.Goldsky.URL)
	assert.Equal(t, "sekret", cfg.Goldsky.APIKey)
	assert.Equal(t, 8, cfg.Pnl.BatchConcurrency)
	assert.Equal(t, 90*time.Second, cfg.Redis.PriceTTL.Duration)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSOrigins)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestValidate_Defaults(t *testing.T) {
	cfg := Defaults()
	cfg.Goldsky.URL = "https://api.goldsky.com/gn"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "daemon"
	cfg.Goldsky.URL = ""
	cfg.Pnl.AgreementThreshold = 2
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "daemon"`)
	assert.Contains(t, err.Error(), "goldsky: url must not be empty")
	assert.Contains(t, err.Error(), "agreement_threshold")
	assert.Contains(t, err.Error(), "server: port")
}

func TestValidate_PostgresPoolBounds(t *testing.T) {
	cfg := Defaults()
	cfg.Goldsky.URL = "https://api.goldsky.com/gn"
	cfg.Postgres.Enabled = true
	cfg.Postgres.PoolMinConns = 20
	cfg.Postgres.PoolMaxConns = 10

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool_min_conns must not exceed pool_max_conns")
}
