package pnl

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polypnl/internal/domain"
)

// Engine is one independent PnL computation strategy. Multiple engines are
// run against the same wallet and cross-validated by the Scorer; none is
// trusted on its own.
type Engine interface {
	Name() string
	Estimate(ctx context.Context, wallet string) (domain.EngineEstimate, error)
}

// SnapshotEngine is an Engine that can estimate over an already-loaded event
// history. The Scorer fetches a wallet's history once per assessment and
// feeds it to every snapshot-capable engine, so variants disagree only on
// accounting policy, never on what they fetched.
type SnapshotEngine interface {
	Engine
	EstimateFromEvents(ctx context.Context, wallet string, events []domain.LedgerEvent) (domain.EngineEstimate, error)
}

// Engine names. These are strategies, not versions.
const (
	EngineConservative      = "conservative_cost_basis"
	EngineSyntheticAdjusted = "synthetic_adjusted"
	EngineApiFallback       = "api_fallback"
)

// Calculator runs the full local pipeline for one wallet: ingest, optional
// synthetic-pair correction, ledger replay, resolution netting, and mark
// valuation of open legs. Both local engine variants are thin wrappers over
// it with different options, and the facade reuses it for full-detail
// results.
type Calculator struct {
	events      domain.EventSource
	resolutions domain.ResolutionSource
	marks       domain.MarkPriceSource
	logger      *slog.Logger
}

// NewCalculator creates a Calculator over the given sources.
func NewCalculator(events domain.EventSource, resolutions domain.ResolutionSource, marks domain.MarkPriceSource, logger *slog.Logger) *Calculator {
	return &Calculator{
		events:      events,
		resolutions: resolutions,
		marks:       marks,
		logger:      logger,
	}
}

// Options selects the pipeline variations that distinguish engine variants.
type Options struct {
	// ApplySynthetic enables the bundled-trade cost-basis correction.
	ApplySynthetic bool
}

// Result is the full per-wallet output of one pipeline run.
type Result struct {
	Wallet          string
	Realized        float64
	Unrealized      float64
	SyntheticPairs  int
	EventCount      int
	MarketsSettled  int
	MarketsOpen     int
	Settlements     []MarketSettlement
	InvariantErrors []string
}

// Compute replays the wallet's history and settles or marks every market it
// touched. A wallet with no events returns a zero Result.
func (c *Calculator) Compute(ctx context.Context, wallet string, opts Options) (Result, error) {
	wallet = domain.NormalizeWallet(wallet)

	events, err := c.events.EventsByWallet(ctx, wallet)
	if err != nil {
		return Result{}, fmt.Errorf("pnl: events for %s: %w", wallet, err)
	}

	return c.ComputeFromEvents(ctx, wallet, events, opts)
}

// ComputeFromEvents is Compute over an already-loaded event history, for
// callers that fetch events once and reuse them.
func (c *Calculator) ComputeFromEvents(ctx context.Context, wallet string, events []domain.LedgerEvent, opts Options) (Result, error) {
	wallet = domain.NormalizeWallet(wallet)
	res := Result{Wallet: wallet}

	res.EventCount = len(events)
	if len(events) == 0 {
		return res, nil
	}

	var adjustments []domain.SyntheticAdjustment
	if opts.ApplySynthetic {
		adjustments, res.SyntheticPairs = DetectSyntheticPairs(events)
	}

	ledger := NewLedger()
	ledger.Replay(events)
	ledger.ApplyAdjustments(adjustments)

	res.Realized = ledger.Realized()
	res.InvariantErrors = ledger.Violations()

	markets := ledger.Markets()
	resolutions, err := c.resolutions.Resolutions(ctx, markets)
	if err != nil {
		return Result{}, fmt.Errorf("pnl: resolutions for %s: %w", wallet, err)
	}

	for _, marketID := range markets {
		p0 := ledger.Position(domain.PositionKey{MarketID: marketID, Outcome: 0})
		p1 := ledger.Position(domain.PositionKey{MarketID: marketID, Outcome: 1})

		resolution, ok := resolutions[marketID]
		settlement := SettleMarket(marketID, p0, p1, resolution, ok)
		if settlement.Settled {
			res.MarketsSettled++
			res.Realized += settlement.PnlNetted
			res.Settlements = append(res.Settlements, settlement)
			continue
		}

		// Open market: value remaining long quantity at the mark price.
		// Short exposure is excluded from unrealized valuation.
		res.MarketsOpen++
		res.Unrealized += c.markLeg(ctx, p0)
		res.Unrealized += c.markLeg(ctx, p1)
	}

	return res, nil
}

// markLeg values one open long leg at its current mark price. A missing mark
// contributes zero rather than failing the wallet.
func (c *Calculator) markLeg(ctx context.Context, p *domain.Position) float64 {
	if p == nil || p.Quantity <= DefaultEpsilon {
		return 0
	}
	mark, err := c.marks.MarkPrice(ctx, p.Key.MarketID, p.Key.Outcome)
	if err != nil {
		c.logger.Warn("pnl: mark price unavailable, valuing leg at cost",
			slog.String("market", p.Key.MarketID),
			slog.Int("outcome", p.Key.Outcome),
			slog.String("error", err.Error()),
		)
		return 0
	}
	return (mark - p.AvgCost()) * p.Quantity
}

// localEngine wraps a Calculator with fixed Options under an engine name.
type localEngine struct {
	name string
	calc *Calculator
	opts Options
}

// NewConservativeEngine returns the variant that skips synthetic-pair
// correction entirely: bundled sells count as ordinary disposals, which
// understates cost-reduced positions and yields the most conservative
// estimate. The scorer falls back to it on disagreement.
func NewConservativeEngine(calc *Calculator) Engine {
	return &localEngine{name: EngineConservative, calc: calc, opts: Options{ApplySynthetic: false}}
}

// NewSyntheticAdjustedEngine returns the full-pipeline variant with
// bundled-trade cost correction applied.
func NewSyntheticAdjustedEngine(calc *Calculator) Engine {
	return &localEngine{name: EngineSyntheticAdjusted, calc: calc, opts: Options{ApplySynthetic: true}}
}

func (e *localEngine) Name() string { return e.name }

func (e *localEngine) Estimate(ctx context.Context, wallet string) (domain.EngineEstimate, error) {
	res, err := e.calc.Compute(ctx, wallet, e.opts)
	if err != nil {
		return domain.EngineEstimate{}, err
	}
	return e.toEstimate(res), nil
}

func (e *localEngine) EstimateFromEvents(ctx context.Context, wallet string, events []domain.LedgerEvent) (domain.EngineEstimate, error) {
	res, err := e.calc.ComputeFromEvents(ctx, wallet, events, e.opts)
	if err != nil {
		return domain.EngineEstimate{}, err
	}
	return e.toEstimate(res), nil
}

func (e *localEngine) toEstimate(res Result) domain.EngineEstimate {
	return domain.EngineEstimate{
		Engine:          e.name,
		Wallet:          res.Wallet,
		Realized:        res.Realized,
		Unrealized:      res.Unrealized,
		SyntheticPairs:  res.SyntheticPairs,
		MarketsSettled:  res.MarketsSettled,
		MarketsOpen:     res.MarketsOpen,
		EventCount:      res.EventCount,
		InvariantErrors: res.InvariantErrors,
	}
}

// Compile-time interface check.
var _ SnapshotEngine = (*localEngine)(nil)

// oracleEngine adapts an external PnL oracle into the Engine interface so
// the scorer can treat it as one more estimate.
type oracleEngine struct {
	oracle domain.PnlOracle
}

// NewOracleEngine wraps an external fallback oracle as an Engine.
func NewOracleEngine(oracle domain.PnlOracle) Engine {
	return &oracleEngine{oracle: oracle}
}

func (e *oracleEngine) Name() string { return EngineApiFallback }

func (e *oracleEngine) Estimate(ctx context.Context, wallet string) (domain.EngineEstimate, error) {
	total, err := e.oracle.WalletPnl(ctx, wallet)
	if err != nil {
		return domain.EngineEstimate{}, fmt.Errorf("pnl: oracle estimate for %s: %w", wallet, err)
	}
	// The oracle reports a single total; attribute it as realized since it
	// cannot be decomposed.
	return domain.EngineEstimate{
		Engine:   EngineApiFallback,
		Wallet:   domain.NormalizeWallet(wallet),
		Realized: total,
	}, nil
}
