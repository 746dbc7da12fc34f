package pnl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/polypnl/internal/domain"
)

func long(market string, outcome int, qty, avg float64) *domain.Position {
	return &domain.Position{
		Key:         domain.PositionKey{MarketID: market, Outcome: outcome},
		Quantity:    qty,
		CostBasis:   qty * avg,
		TotalBought: qty,
	}
}

func short(market string, outcome int, qty, premium float64) *domain.Position {
	return &domain.Position{
		Key:       domain.PositionKey{MarketID: market, Outcome: outcome},
		Quantity:  -qty,
		CostBasis: -qty * premium,
	}
}

func TestSettleMarket_SingleLongWinner(t *testing.T) {
	res := domain.Resolution{MarketID: "m1", Payouts: [2]float64{1, 0}}
	s := SettleMarket("m1", long("m1", 0, 100, 0.60), nil, res, true)

	assert.True(t, s.Settled)
	// 100 × (1.0 − 0.60) = 40.00
	assert.InDelta(t, 40.0, s.PnlNetted, 1e-9)
	// One side held: netted must equal unnetted.
	assert.InDelta(t, s.PnlUnnetted, s.PnlNetted, 1e-9)
	assert.InDelta(t, 0.0, s.NettingAdjustment, 1e-9)
}

func TestSettleMarket_BothLongOverlap(t *testing.T) {
	// 100 outcome-0 at 0.60 and 50 outcome-1 at 0.40, outcome 0 wins.
	// 50 overlapping pairs redeem at $1 against $1 blended cost ($0), the
	// remaining 50 outcome-0 settle at 1.0 − 0.60 = 0.40 apiece.
	res := domain.Resolution{MarketID: "m1", Payouts: [2]float64{1, 0}}
	s := SettleMarket("m1", long("m1", 0, 100, 0.60), long("m1", 1, 50, 0.40), res, true)

	assert.InDelta(t, 20.0, s.PnlNetted, 1e-9)
	// Naive: 100×(1−0.60) + 50×(0−0.40) = 40 − 20 = 20. The overlap here is
	// cost-neutral so netting happens to change nothing.
	assert.InDelta(t, 20.0, s.PnlUnnetted, 1e-9)
}

func TestSettleMarket_BothLongFullOverlap(t *testing.T) {
	// Cheaper pair: 100 of each at 0.30 + 0.30. Every pair is riskless at
	// $1 against $0.60 cost, so netted = 100 × 0.40 = 40 regardless of
	// which side won.
	res := domain.Resolution{MarketID: "m1", Payouts: [2]float64{0, 1}}
	s := SettleMarket("m1", long("m1", 0, 100, 0.30), long("m1", 1, 100, 0.30), res, true)

	assert.InDelta(t, 40.0, s.PnlNetted, 1e-9)
	assert.InDelta(t, 40.0, s.PnlUnnetted, 1e-9)
}

func TestSettleMarket_MixedExcludesShortLeg(t *testing.T) {
	// Long outcome-0, short outcome-1. Only the long settles; the short's
	// premium was its whole story.
	res := domain.Resolution{MarketID: "m1", Payouts: [2]float64{1, 0}}
	s := SettleMarket("m1", long("m1", 0, 100, 0.60), short("m1", 1, 100, 0.35), res, true)

	assert.InDelta(t, 40.0, s.PnlNetted, 1e-9)
	assert.InDelta(t, 40.0, s.PnlUnnetted, 1e-9)
}

func TestSettleMarket_BothShortLiability(t *testing.T) {
	// Short 100 of each at 0.55 + 0.55 premium: every pair owes exactly $1
	// at resolution against $1.10 received, locking in 100 × 0.10 = 10.
	res := domain.Resolution{MarketID: "m1", Payouts: [2]float64{1, 0}}
	s := SettleMarket("m1", short("m1", 0, 100, 0.55), short("m1", 1, 100, 0.55), res, true)

	assert.InDelta(t, 10.0, s.PnlNetted, 1e-9)
	// Naive excludes shorts entirely.
	assert.InDelta(t, 0.0, s.PnlUnnetted, 1e-9)
	assert.InDelta(t, 10.0, s.NettingAdjustment, 1e-9)
}

func TestSettleMarket_AmbiguousPayoutsStayOpen(t *testing.T) {
	res := domain.Resolution{MarketID: "m1", Payouts: [2]float64{0.5, 0.3}}
	s := SettleMarket("m1", long("m1", 0, 100, 0.60), nil, res, true)

	assert.False(t, s.Settled)
	assert.Zero(t, s.PnlNetted)
}

func TestSettleMarket_NoResolution(t *testing.T) {
	s := SettleMarket("m1", long("m1", 0, 100, 0.60), nil, domain.Resolution{}, false)
	assert.False(t, s.Settled)
}

func TestSettleMarket_NilLegs(t *testing.T) {
	res := domain.Resolution{MarketID: "m1", Payouts: [2]float64{1, 0}}
	s := SettleMarket("m1", nil, nil, res, true)

	assert.True(t, s.Settled)
	assert.Zero(t, s.PnlNetted)
	assert.Zero(t, s.PnlUnnetted)
}
