// Package service implements the wallet PnL facade: single-wallet results,
// bounded-concurrency batches, and consensus confidence assessment.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polypnl/internal/domain"
	"github.com/alanyoungcy/polypnl/internal/pnl"
)

// EventLoader loads a wallet's normalized history and reports how many
// duplicate rows were dropped. *ingest.Normalizer satisfies it.
type EventLoader interface {
	domain.EventSource
	Load(ctx context.Context, wallet string) ([]domain.LedgerEvent, int, error)
}

// ResultArchive persists the reports of a scoring run. *postgres.ResultStore
// satisfies it.
type ResultArchive interface {
	InsertRun(ctx context.Context, runID uuid.UUID, reports []domain.ConfidenceReport) error
}

// SnapshotExporter uploads a scoring run snapshot to object storage.
// *s3blob.Exporter satisfies it.
type SnapshotExporter interface {
	ExportRun(ctx context.Context, runID uuid.UUID, startedAt time.Time, reports []domain.ConfidenceReport) (string, error)
}

// Config holds the facade's operational policy.
type Config struct {
	// BatchConcurrency bounds the number of wallets computed at once.
	BatchConcurrency int
	// SourceTimeout bounds one wallet's data loading and computation.
	SourceTimeout time.Duration
	// Scorer is the consensus policy passed through to assessment.
	Scorer pnl.ScorerConfig
}

// PnlService is the public entry point for wallet PnL computation. Per-call
// engines, calculators, and scorers are built over the shared data sources,
// so a batch can pin one resolution snapshot across all of its wallets.
type PnlService struct {
	events      EventLoader
	resolutions domain.ResolutionSource
	marks       domain.MarkPriceSource
	oracle      domain.PnlOracle // optional
	archive     ResultArchive    // optional
	exporter    SnapshotExporter // optional
	cfg         Config
	logger      *slog.Logger
}

// NewPnlService creates a PnlService. oracle, archive, and exporter may be
// nil, which disables the fallback engine, result archival, and snapshot
// export respectively.
func NewPnlService(
	events EventLoader,
	resolutions domain.ResolutionSource,
	marks domain.MarkPriceSource,
	oracle domain.PnlOracle,
	archive ResultArchive,
	exporter SnapshotExporter,
	cfg Config,
	logger *slog.Logger,
) *PnlService {
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 5
	}
	return &PnlService{
		events:      events,
		resolutions: resolutions,
		marks:       marks,
		oracle:      oracle,
		archive:     archive,
		exporter:    exporter,
		cfg:         cfg,
		logger:      logger,
	}
}

// WalletPnl computes one wallet's full-detail result with synthetic-pair
// correction applied.
func (s *PnlService) WalletPnl(ctx context.Context, wallet string) (domain.WalletPnl, error) {
	if s.cfg.SourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SourceTimeout)
		defer cancel()
	}

	wallet = domain.NormalizeWallet(wallet)

	events, dropped, err := s.events.Load(ctx, wallet)
	if err != nil {
		return domain.WalletPnl{}, domain.NewWalletError(wallet, err)
	}

	calc := pnl.NewCalculator(s.events, s.resolutions, s.marks, s.logger)
	res, err := calc.ComputeFromEvents(ctx, wallet, events, pnl.Options{ApplySynthetic: true})
	if err != nil {
		return domain.WalletPnl{}, domain.NewWalletError(wallet, err)
	}

	return domain.WalletPnl{
		Wallet:     wallet,
		Realized:   res.Realized,
		Unrealized: res.Unrealized,
		Total:      res.Realized + res.Unrealized,
		Diagnostics: domain.Diagnostics{
			EventCount:        res.EventCount,
			DuplicatesDropped: dropped,
			SyntheticPairs:    res.SyntheticPairs,
			MarketsSettled:    res.MarketsSettled,
			MarketsOpen:       res.MarketsOpen,
			InvariantErrors:   res.InvariantErrors,
		},
	}, nil
}

// WalletPnlBatch computes many wallets under a bounded worker pool. A failed
// wallet becomes a marker entry; it never aborts the rest of the batch. The
// returned slice is positionally aligned with the input.
func (s *PnlService) WalletPnlBatch(ctx context.Context, wallets []string) []domain.BatchEntry {
	entries := make([]domain.BatchEntry, len(wallets))
	if len(wallets) == 0 {
		return entries
	}

	// Pin one resolution snapshot for the whole batch so every wallet
	// settles against the same market states.
	resolutions := newMemoResolutionSource(s.resolutions)
	calc := pnl.NewCalculator(s.events, resolutions, s.marks, s.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchConcurrency)

	for i, w := range wallets {
		g.Go(func() error {
			entry := s.computeEntry(gctx, calc, w)
			entries[i] = entry
			return nil
		})
	}
	_ = g.Wait()

	return entries
}

// computeEntry produces one wallet's batch slot, converting any failure into
// a marker entry.
func (s *PnlService) computeEntry(ctx context.Context, calc *pnl.Calculator, wallet string) domain.BatchEntry {
	wallet = domain.NormalizeWallet(wallet)

	if s.cfg.SourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SourceTimeout)
		defer cancel()
	}

	res, err := calc.Compute(ctx, wallet, pnl.Options{ApplySynthetic: true})
	if err != nil {
		s.logger.Warn("pnl_service: batch wallet failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		return domain.BatchEntry{Wallet: wallet, Err: err.Error()}
	}

	return domain.BatchEntry{
		Wallet:     wallet,
		Realized:   res.Realized,
		Unrealized: res.Unrealized,
		Total:      res.Realized + res.Unrealized,
	}
}

// AssessConfidence cross-validates one wallet across every configured engine
// and classifies the agreement.
func (s *PnlService) AssessConfidence(ctx context.Context, wallet string) (domain.ConfidenceReport, error) {
	if s.cfg.SourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SourceTimeout)
		defer cancel()
	}

	scorer := s.newScorer(s.resolutions)
	report, err := scorer.Assess(ctx, wallet)
	if err != nil {
		return domain.ConfidenceReport{}, domain.NewWalletError(wallet, err)
	}
	return report, nil
}

// AssessBatch scores many wallets under the worker pool, then archives the
// run and exports a snapshot when those sinks are configured. Individual
// wallet failures surface as LOW/FLAGGED reports or zero-estimate reports per
// the scorer's rules; only a wallet whose every engine failed is skipped with
// a warning.
func (s *PnlService) AssessBatch(ctx context.Context, wallets []string) ([]domain.ConfidenceReport, error) {
	runID := uuid.New()
	startedAt := time.Now().UTC()

	resolutions := newMemoResolutionSource(s.resolutions)
	scorer := s.newScorer(resolutions)

	reports := make([]*domain.ConfidenceReport, len(wallets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchConcurrency)

	for i, w := range wallets {
		g.Go(func() error {
			wctx := gctx
			if s.cfg.SourceTimeout > 0 {
				var cancel context.CancelFunc
				wctx, cancel = context.WithTimeout(gctx, s.cfg.SourceTimeout)
				defer cancel()
			}

			report, err := scorer.Assess(wctx, w)
			if err != nil {
				s.logger.Warn("pnl_service: assessment failed",
					slog.String("run_id", runID.String()),
					slog.String("wallet", w),
					slog.String("error", err.Error()),
				)
				return nil
			}
			reports[i] = &report
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.ConfidenceReport, 0, len(wallets))
	for _, r := range reports {
		if r != nil {
			out = append(out, *r)
		}
	}

	if s.archive != nil {
		if err := s.archive.InsertRun(ctx, runID, out); err != nil {
			s.logger.Warn("pnl_service: result archive failed",
				slog.String("run_id", runID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.exporter != nil {
		path, err := s.exporter.ExportRun(ctx, runID, startedAt, out)
		if err != nil {
			s.logger.Warn("pnl_service: snapshot export failed",
				slog.String("run_id", runID.String()),
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.Info("pnl_service: exported run snapshot",
				slog.String("run_id", runID.String()),
				slog.String("path", path),
			)
		}
	}

	s.logger.Info("pnl_service: assessment run complete",
		slog.String("run_id", runID.String()),
		slog.Int("wallets", len(wallets)),
		slog.Int("scored", len(out)),
	)

	return out, nil
}

// newScorer builds the engine set over the given resolution source. The
// oracle engine joins only when a fallback oracle is configured.
func (s *PnlService) newScorer(resolutions domain.ResolutionSource) *pnl.Scorer {
	calc := pnl.NewCalculator(s.events, resolutions, s.marks, s.logger)

	engines := []pnl.Engine{
		pnl.NewConservativeEngine(calc),
		pnl.NewSyntheticAdjustedEngine(calc),
	}
	if s.oracle != nil {
		engines = append(engines, pnl.NewOracleEngine(s.oracle))
	}

	return pnl.NewScorer(s.events, engines, s.cfg.Scorer, s.logger)
}

// memoResolutionSource memoizes per-market resolutions for the lifetime of
// one batch, so concurrent wallets sharing a market resolve it identically
// and hit the upstream once.
type memoResolutionSource struct {
	upstream domain.ResolutionSource

	mu    sync.Mutex
	known domain.ResolutionSet
	open  map[string]struct{}
}

func newMemoResolutionSource(upstream domain.ResolutionSource) *memoResolutionSource {
	return &memoResolutionSource{
		upstream: upstream,
		known:    make(domain.ResolutionSet),
		open:     make(map[string]struct{}),
	}
}

// Resolutions implements domain.ResolutionSource.
func (m *memoResolutionSource) Resolutions(ctx context.Context, marketIDs []string) (domain.ResolutionSet, error) {
	set := make(domain.ResolutionSet, len(marketIDs))
	var misses []string

	m.mu.Lock()
	for _, id := range marketIDs {
		if res, ok := m.known[id]; ok {
			set[id] = res
			continue
		}
		if _, ok := m.open[id]; ok {
			continue
		}
		misses = append(misses, id)
	}
	m.mu.Unlock()

	if len(misses) == 0 {
		return set, nil
	}

	fetched, err := m.upstream.Resolutions(ctx, misses)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	for _, id := range misses {
		if res, ok := fetched[id]; ok {
			m.known[id] = res
			set[id] = res
		} else {
			m.open[id] = struct{}{}
		}
	}
	m.mu.Unlock()

	return set, nil
}

// Compile-time interface check.
var _ domain.ResolutionSource = (*memoResolutionSource)(nil)
