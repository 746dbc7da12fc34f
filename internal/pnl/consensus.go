package pnl

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/alanyoungcy/polypnl/internal/domain"
	"golang.org/x/sync/errgroup"
)

// ScorerConfig holds the consensus policy constants. The thresholds carry no
// derivation; they are operational policy and must stay overridable.
type ScorerConfig struct {
	// AgreementThreshold is the max relative difference for two estimates
	// to count as agreeing.
	AgreementThreshold float64
	// AbsoluteToleranceUSD lets two near-zero estimates agree even when
	// their relative difference is large.
	AbsoluteToleranceUSD float64
	// DangerPairCount flags the wallet for manual review when any engine
	// detects more synthetic pairs than this, regardless of agreement.
	DangerPairCount int
	// ConservativeEngine names the engine whose estimate is returned when
	// no pair agrees or the wallet is flagged.
	ConservativeEngine string
	// WaitForAll makes Assess join on every engine before classifying,
	// trading latency for determinism. When false, a context cancellation
	// classifies whatever estimates have arrived.
	WaitForAll bool
}

// DefaultScorerConfig returns the standard consensus policy.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		AgreementThreshold:   0.06,
		AbsoluteToleranceUSD: 10,
		DangerPairCount:      500,
		ConservativeEngine:   EngineConservative,
		WaitForAll:           true,
	}
}

// Scorer cross-validates independent engine estimates for a wallet and
// classifies their agreement instead of trusting any single implementation.
type Scorer struct {
	events  domain.EventSource // optional shared history for snapshot engines
	engines []Engine
	cfg     ScorerConfig
	logger  *slog.Logger
}

// NewScorer creates a Scorer over the given engines. At least two engines
// are needed for any tier above LOW. When events is non-nil, the wallet's
// history is loaded once per assessment and shared by every SnapshotEngine;
// when nil, each engine fetches on its own.
func NewScorer(events domain.EventSource, engines []Engine, cfg ScorerConfig, logger *slog.Logger) *Scorer {
	return &Scorer{events: events, engines: engines, cfg: cfg, logger: logger}
}

// Assess runs every engine concurrently against the wallet, classifies
// pairwise agreement, and selects a best estimate. A failing engine drops
// out and lowers the achievable confidence tier one step; only the loss of
// every engine fails the assessment.
func (s *Scorer) Assess(ctx context.Context, wallet string) (domain.ConfidenceReport, error) {
	wallet = domain.NormalizeWallet(wallet)

	type outcome struct {
		estimate domain.EngineEstimate
		err      error
		name     string
	}

	// One history for every snapshot-capable engine. Same-timestamp events
	// keep one replay order across variants, so a disagreement reflects
	// accounting policy rather than fetch timing.
	var history []domain.LedgerEvent
	var histErr error
	if s.events != nil {
		history, histErr = s.events.EventsByWallet(ctx, wallet)
	}

	outcomes := make([]outcome, len(s.engines))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, eng := range s.engines {
		g.Go(func() error {
			est, err := s.runEngine(gctx, eng, wallet, history, histErr)
			mu.Lock()
			outcomes[i] = outcome{estimate: est, err: err, name: eng.Name()}
			mu.Unlock()
			// Engine failures are absorbed, never propagated: a transient
			// data-source error in one engine must not sink the batch.
			return nil
		})
	}
	if s.cfg.WaitForAll {
		_ = g.Wait()
	} else {
		done := make(chan struct{})
		go func() { _ = g.Wait(); close(done) }()
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	mu.Lock()
	defer mu.Unlock()

	report := domain.ConfidenceReport{Wallet: wallet}
	for _, o := range outcomes {
		if o.name == "" {
			continue // engine still running in WaitForAll=false mode
		}
		if o.err != nil {
			s.logger.Warn("consensus: engine failed",
				slog.String("wallet", wallet),
				slog.String("engine", o.name),
				slog.String("error", o.err.Error()),
			)
			report.FailedEngines = append(report.FailedEngines, o.name)
			continue
		}
		report.Estimates = append(report.Estimates, o.estimate)
	}

	if len(report.Estimates) == 0 {
		return report, domain.NewWalletError(wallet, domain.ErrNoEngines)
	}

	s.classify(&report)
	return report, nil
}

// runEngine dispatches one engine, preferring the shared history when both
// the scorer and the engine support it.
func (s *Scorer) runEngine(ctx context.Context, eng Engine, wallet string, history []domain.LedgerEvent, histErr error) (domain.EngineEstimate, error) {
	se, ok := eng.(SnapshotEngine)
	if !ok || s.events == nil {
		return eng.Estimate(ctx, wallet)
	}
	if histErr != nil {
		return domain.EngineEstimate{}, histErr
	}
	return se.EstimateFromEvents(ctx, wallet, history)
}

// classify fills in confidence, best estimate, and reason from the gathered
// estimates. The danger flag overrides every agreement tier.
func (s *Scorer) classify(report *domain.ConfidenceReport) {
	estimates := report.Estimates

	maxPairs := 0
	for _, e := range estimates {
		if e.SyntheticPairs > maxPairs {
			maxPairs = e.SyntheticPairs
		}
	}
	if s.cfg.DangerPairCount > 0 && maxPairs > s.cfg.DangerPairCount {
		est := s.conservative(estimates)
		report.Confidence = domain.ConfidenceFlagged
		report.BestEstimate = est.Total()
		report.SelectedEngine = est.Engine
		report.Reason = fmt.Sprintf("synthetic pair count %d exceeds danger threshold %d, manual review required", maxPairs, s.cfg.DangerPairCount)
		return
	}

	// Each engine failure lowers the best achievable tier one step.
	tierCap := tierHigh - len(report.FailedEngines)

	if len(estimates) == 1 {
		est := estimates[0]
		report.Confidence = domain.ConfidenceLow
		report.BestEstimate = est.Total()
		report.SelectedEngine = est.Engine
		report.Reason = "only one engine produced an estimate"
		return
	}

	agreeing := s.agreeingPairs(estimates)
	totalPairs := len(estimates) * (len(estimates) - 1) / 2

	var tier int
	switch {
	case len(agreeing) == totalPairs:
		tier = tierHigh
	case len(agreeing) == 1:
		tier = tierMedium
	default:
		tier = tierLow
	}
	if tier > tierCap {
		tier = tierCap
	}
	if tier < tierLow {
		tier = tierLow
	}

	switch tier {
	case tierHigh:
		median := medianTotal(estimates)
		best := closestTo(estimates, median)
		report.Confidence = domain.ConfidenceHigh
		report.BestEstimate = median
		report.SelectedEngine = best.Engine
		report.Reason = fmt.Sprintf("all %d engine pairs agree within %.0f%%", totalPairs, s.cfg.AgreementThreshold*100)
	case tierMedium:
		var a, b domain.EngineEstimate
		if len(agreeing) >= 1 {
			a, b = agreeing[0][0], agreeing[0][1]
		} else {
			// Tier was capped down from HIGH by an engine failure; fall
			// back to the closest pair around the median.
			median := medianTotal(estimates)
			a = closestTo(estimates, median)
			b = a
		}
		mean := (a.Total() + b.Total()) / 2
		report.Confidence = domain.ConfidenceMedium
		report.BestEstimate = mean
		report.SelectedEngine = closestTo([]domain.EngineEstimate{a, b}, mean).Engine
		report.Reason = fmt.Sprintf("engines %s and %s agree, others diverge", a.Engine, b.Engine)
	default:
		est := s.conservative(estimates)
		report.Confidence = domain.ConfidenceLow
		report.BestEstimate = est.Total()
		report.SelectedEngine = est.Engine
		report.Reason = "no engine pair agrees, defaulting to conservative engine"
	}
}

const (
	tierLow = iota
	tierMedium
	tierHigh
)

// agreeingPairs returns every pair of estimates that agree under the
// configured thresholds.
func (s *Scorer) agreeingPairs(estimates []domain.EngineEstimate) [][2]domain.EngineEstimate {
	var pairs [][2]domain.EngineEstimate
	for i := 0; i < len(estimates); i++ {
		for j := i + 1; j < len(estimates); j++ {
			if s.Agree(estimates[i].Total(), estimates[j].Total()) {
				pairs = append(pairs, [2]domain.EngineEstimate{estimates[i], estimates[j]})
			}
		}
	}
	return pairs
}

// Agree reports whether two totals are close enough to count as the same
// answer: within the relative threshold, or both inside the absolute
// near-zero tolerance.
func (s *Scorer) Agree(a, b float64) bool {
	if math.Abs(a) <= s.cfg.AbsoluteToleranceUSD && math.Abs(b) <= s.cfg.AbsoluteToleranceUSD {
		return true
	}
	return RelativeSpread(a, b) <= s.cfg.AgreementThreshold
}

// RelativeSpread returns |a-b| scaled by the larger magnitude. Moving two
// values strictly closer together never increases it.
func RelativeSpread(a, b float64) float64 {
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return 0
	}
	return math.Abs(a-b) / denom
}

// conservative returns the configured conservative engine's estimate,
// falling back to the lowest total when that engine is absent.
func (s *Scorer) conservative(estimates []domain.EngineEstimate) domain.EngineEstimate {
	for _, e := range estimates {
		if e.Engine == s.cfg.ConservativeEngine {
			return e
		}
	}
	lowest := estimates[0]
	for _, e := range estimates[1:] {
		if e.Total() < lowest.Total() {
			lowest = e
		}
	}
	return lowest
}

func medianTotal(estimates []domain.EngineEstimate) float64 {
	totals := make([]float64, len(estimates))
	for i, e := range estimates {
		totals[i] = e.Total()
	}
	sort.Float64s(totals)
	n := len(totals)
	if n%2 == 1 {
		return totals[n/2]
	}
	return (totals[n/2-1] + totals[n/2]) / 2
}

func closestTo(estimates []domain.EngineEstimate, target float64) domain.EngineEstimate {
	best := estimates[0]
	bestDist := math.Abs(best.Total() - target)
	for _, e := range estimates[1:] {
		if d := math.Abs(e.Total() - target); d < bestDist {
			best = e
			bestDist = d
		}
	}
	return best
}
