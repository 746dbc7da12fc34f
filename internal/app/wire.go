package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/polypnl/internal/blob/s3"
	"github.com/alanyoungcy/polypnl/internal/cache/redis"
	"github.com/alanyoungcy/polypnl/internal/config"
	"github.com/alanyoungcy/polypnl/internal/domain"
	"github.com/alanyoungcy/polypnl/internal/ingest"
	"github.com/alanyoungcy/polypnl/internal/platform/goldsky"
	"github.com/alanyoungcy/polypnl/internal/platform/polymarket"
	"github.com/alanyoungcy/polypnl/internal/pnl"
	"github.com/alanyoungcy/polypnl/internal/service"
	"github.com/alanyoungcy/polypnl/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Service *service.PnlService

	// ResultStore is non-nil when Postgres is enabled; serve mode uses it
	// for history lookups in addition to the service's run archival.
	ResultStore *postgres.ResultStore
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Raw event source: Goldsky subgraph, optionally mirrored ---
	var rawSource domain.RawEventSource = goldsky.NewClient(
		cfg.Goldsky.URL, cfg.Goldsky.APIKey, cfg.Goldsky.PageSize,
	)

	var archive service.ResultArchive

	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		eventStore := postgres.NewEventStore(pool)
		resultStore := postgres.NewResultStore(pool)

		rawSource = ingest.NewTeeSource(rawSource, eventStore, logger)
		archive = resultStore
		deps.ResultStore = resultStore
	}

	normalizer := ingest.NewNormalizer(rawSource, logger)

	// --- Venue APIs: resolutions and mark prices ---
	var resolutions domain.ResolutionSource = polymarket.NewGammaClient(cfg.Polymarket.GammaHost)
	var marks domain.MarkPriceSource = polymarket.NewClobClient(cfg.Polymarket.ClobHost)

	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		marks = redis.NewMarkPriceCache(redisClient, marks, cfg.Redis.PriceTTL.Duration, logger)
		resolutions = redis.NewResolutionCache(
			redisClient, resolutions,
			cfg.Redis.ResolutionTTL.Duration, cfg.Redis.PriceTTL.Duration,
			logger,
		)
	}

	// --- Optional fallback oracle ---
	var oracle domain.PnlOracle
	if cfg.Oracle.Enabled {
		oracle = polymarket.NewOracleClient(cfg.Oracle.URL, cfg.Oracle.APIKey)
	}

	// --- Optional snapshot export ---
	var exporter service.SnapshotExporter
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		exporter = s3blob.NewExporter(s3blob.NewWriter(s3Client), cfg.S3.Prefix)
	}

	deps.Service = service.NewPnlService(
		normalizer,
		resolutions,
		marks,
		oracle,
		archive,
		exporter,
		service.Config{
			BatchConcurrency: cfg.Pnl.BatchConcurrency,
			SourceTimeout:    cfg.Pnl.SourceTimeout.Duration,
			Scorer: pnl.ScorerConfig{
				AgreementThreshold:   cfg.Pnl.AgreementThreshold,
				AbsoluteToleranceUSD: cfg.Pnl.AbsoluteToleranceUSD,
				DangerPairCount:      cfg.Pnl.DangerPairCount,
				ConservativeEngine:   pnl.EngineConservative,
				WaitForAll:           cfg.Pnl.WaitForAllEngines,
			},
		},
		logger,
	)

	return deps, cleanup, nil
}
