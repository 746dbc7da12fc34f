package pnl

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polypnl/internal/domain"
)

type stubEngine struct {
	name  string
	est   domain.EngineEstimate
	err   error
	calls int
}

func (s *stubEngine) Name() string { return s.name }

func (s *stubEngine) Estimate(_ context.Context, wallet string) (domain.EngineEstimate, error) {
	s.calls++
	if s.err != nil {
		return domain.EngineEstimate{}, s.err
	}
	est := s.est
	est.Engine = s.name
	est.Wallet = wallet
	return est, nil
}

func fixed(name string, total float64) *stubEngine {
	return &stubEngine{name: name, est: domain.EngineEstimate{Realized: total}}
}

func testScorer(cfg ScorerConfig, engines ...Engine) *Scorer {
	return NewScorer(nil, engines, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestScorer_AllPairsAgree_High(t *testing.T) {
	// 98.0k, 99.5k, 101.0k: every pair is within 6%, so confidence is HIGH
	// and the best estimate is the median.
	s := testScorer(DefaultScorerConfig(),
		fixed(EngineConservative, 98_000),
		fixed(EngineSyntheticAdjusted, 99_500),
		fixed(EngineApiFallback, 101_000),
	)

	report, err := s.Assess(context.Background(), "0xABC")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfidenceHigh, report.Confidence)
	assert.InDelta(t, 99_500.0, report.BestEstimate, 1e-9)
	assert.Equal(t, EngineSyntheticAdjusted, report.SelectedEngine)
	assert.Equal(t, "0xabc", report.Wallet)
}

func TestScorer_OnePairAgrees_Medium(t *testing.T) {
	// 100k and 102k agree (2%); 50k agrees with neither.
	s := testScorer(DefaultScorerConfig(),
		fixed(EngineConservative, 100_000),
		fixed(EngineSyntheticAdjusted, 102_000),
		fixed(EngineApiFallback, 50_000),
	)

	report, err := s.Assess(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfidenceMedium, report.Confidence)
	assert.InDelta(t, 101_000.0, report.BestEstimate, 1e-9)
}

func TestScorer_NoAgreement_ConservativeLow(t *testing.T) {
	s := testScorer(DefaultScorerConfig(),
		fixed(EngineConservative, 10_000),
		fixed(EngineSyntheticAdjusted, 50_000),
		fixed(EngineApiFallback, 200_000),
	)

	report, err := s.Assess(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfidenceLow, report.Confidence)
	assert.InDelta(t, 10_000.0, report.BestEstimate, 1e-9)
	assert.Equal(t, EngineConservative, report.SelectedEngine)
}

func TestScorer_DangerPairCount_Flagged(t *testing.T) {
	// Perfect agreement, but a synthetic pair count past the danger
	// threshold forces FLAGGED with the conservative estimate.
	hot := fixed(EngineSyntheticAdjusted, 100_000)
	hot.est.SyntheticPairs = 501
	s := testScorer(DefaultScorerConfig(),
		fixed(EngineConservative, 100_000),
		hot,
	)

	report, err := s.Assess(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfidenceFlagged, report.Confidence)
	assert.Equal(t, EngineConservative, report.SelectedEngine)
	assert.Contains(t, report.Reason, "manual review")
}

func TestScorer_EngineFailure_CapsTier(t *testing.T) {
	// The two surviving engines agree, which would be HIGH, but one failure
	// steps the achievable tier down to MEDIUM.
	s := testScorer(DefaultScorerConfig(),
		fixed(EngineConservative, 100_000),
		fixed(EngineSyntheticAdjusted, 101_000),
		&stubEngine{name: EngineApiFallback, err: domain.ErrDataUnavailable},
	)

	report, err := s.Assess(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfidenceMedium, report.Confidence)
	assert.Equal(t, []string{EngineApiFallback}, report.FailedEngines)
	assert.InDelta(t, 100_500.0, report.BestEstimate, 1e-9)
}

func TestScorer_SingleEngine_Low(t *testing.T) {
	s := testScorer(DefaultScorerConfig(), fixed(EngineConservative, 42_000))

	report, err := s.Assess(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfidenceLow, report.Confidence)
	assert.InDelta(t, 42_000.0, report.BestEstimate, 1e-9)
}

func TestScorer_AllEnginesFail(t *testing.T) {
	s := testScorer(DefaultScorerConfig(),
		&stubEngine{name: EngineConservative, err: domain.ErrDataUnavailable},
		&stubEngine{name: EngineSyntheticAdjusted, err: errors.New("boom")},
	)

	_, err := s.Assess(context.Background(), "0xabc")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoEngines)

	var werr *domain.WalletError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "0xabc", werr.Wallet)
}

func TestScorer_NearZeroAbsoluteTolerance(t *testing.T) {
	// −4 and +6 are 250% apart relatively but both inside the $10 absolute
	// band, so they still agree.
	s := testScorer(DefaultScorerConfig(),
		fixed(EngineConservative, -4),
		fixed(EngineSyntheticAdjusted, 6),
	)

	report, err := s.Assess(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfidenceHigh, report.Confidence)
}

func TestRelativeSpread(t *testing.T) {
	assert.InDelta(t, 0.0, RelativeSpread(100, 100), 1e-12)
	assert.InDelta(t, 0.5, RelativeSpread(50, 100), 1e-12)
	assert.InDelta(t, 0.0, RelativeSpread(0, 0), 1e-12)
	// Symmetric in its arguments.
	assert.Equal(t, RelativeSpread(98_000, 101_000), RelativeSpread(101_000, 98_000))
}

type countingEventSource struct {
	events []domain.LedgerEvent
	calls  int
}

func (c *countingEventSource) EventsByWallet(_ context.Context, _ string) ([]domain.LedgerEvent, error) {
	c.calls++
	return c.events, nil
}

func TestScorer_LocalEnginesShareOneHistory(t *testing.T) {
	// Both local variants must replay the exact same snapshot: one upstream
	// fetch per assessment, never one per engine.
	source := &countingEventSource{events: []domain.LedgerEvent{buy("m1", 0, 100, 60)}}
	calc := NewCalculator(
		source,
		&fakeResolutionSource{set: domain.ResolutionSet{
			"m1": {MarketID: "m1", Payouts: [2]float64{1, 0}},
		}},
		&fakeMarkSource{},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	s := NewScorer(source,
		[]Engine{NewConservativeEngine(calc), NewSyntheticAdjustedEngine(calc)},
		DefaultScorerConfig(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	report, err := s.Assess(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)
	require.Len(t, report.Estimates, 2)
	assert.Equal(t, domain.ConfidenceHigh, report.Confidence)
	assert.InDelta(t, 40.0, report.BestEstimate, 1e-9)
}
