package pnl

import (
	"math"

	"github.com/alanyoungcy/polypnl/internal/domain"
)

// MarketSettlement is the outcome of settling one market's two legs against
// its resolution. PnlNetted is authoritative; PnlUnnetted is the naive
// per-leg figure kept for diagnostics, and NettingAdjustment their
// difference.
type MarketSettlement struct {
	MarketID          string
	Settled           bool
	PnlNetted         float64
	PnlUnnetted       float64
	NettingAdjustment float64
}

// SettleMarket nets a wallet's two position legs of one binary market
// against its resolution.
//
// Both legs long: the overlapping quantity is a riskless pair worth exactly
// one dollar per unit at resolution regardless of outcome, so the overlap
// settles at 1.0 against its blended cost and each remainder settles at its
// own payout. Both legs short: symmetric, with the overlap a guaranteed
// one-dollar liability. Mixed long/short: only the long leg settles; short
// legs are excluded from resolution-time realization to match the venue's
// reference accounting (kept exactly as observed, see DESIGN.md).
//
// A resolution whose payouts do not sum to 1 leaves the market unsettled.
// Either leg may be nil when the wallet never touched it.
func SettleMarket(marketID string, p0, p1 *domain.Position, res domain.Resolution, ok bool) MarketSettlement {
	out := MarketSettlement{MarketID: marketID}
	if !ok || !res.Settled() {
		return out
	}
	out.Settled = true

	q0, avg0 := legState(p0)
	q1, avg1 := legState(p1)

	// Naive figure: settle each leg on its own, shorts excluded.
	out.PnlUnnetted = settleLeg(q0, avg0, res.Payouts[0]) + settleLeg(q1, avg1, res.Payouts[1])

	switch {
	case q0 > 0 && q1 > 0:
		// Riskless overlap: min(q0, q1) pairs redeem for 1.0 apiece.
		overlap := math.Min(q0, q1)
		out.PnlNetted = overlap*1.0 - overlap*(avg0+avg1)
		out.PnlNetted += (q0 - overlap) * (res.Payouts[0] - avg0)
		out.PnlNetted += (q1 - overlap) * (res.Payouts[1] - avg1)

	case q0 < 0 && q1 < 0:
		// Guaranteed liability: the overlap costs exactly 1.0 per pair to
		// settle, against the premium received on both legs.
		overlap := math.Min(-q0, -q1)
		out.PnlNetted = overlap*(avg0+avg1) - overlap*1.0
		out.PnlNetted += (-q0 - overlap) * (avg0 - res.Payouts[0])
		out.PnlNetted += (-q1 - overlap) * (avg1 - res.Payouts[1])

	default:
		// At most one side held, or mixed long/short: settle longs only.
		out.PnlNetted = settleLeg(q0, avg0, res.Payouts[0]) + settleLeg(q1, avg1, res.Payouts[1])
	}

	out.NettingAdjustment = out.PnlNetted - out.PnlUnnetted
	return out
}

// legState extracts quantity and per-unit average cost (premium per unit for
// shorts, as a positive number) from a possibly-nil leg.
func legState(p *domain.Position) (qty, avg float64) {
	if p == nil || math.Abs(p.Quantity) <= DefaultEpsilon {
		return 0, 0
	}
	return p.Quantity, p.CostBasis / p.Quantity
}

// settleLeg realizes one long leg against its payout. Short quantity is
// excluded from resolution-time realization.
func settleLeg(qty, avg, payout float64) float64 {
	if qty <= 0 {
		return 0
	}
	return qty * (payout - avg)
}
