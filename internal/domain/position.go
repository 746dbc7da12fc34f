package domain

import "math"

// PositionKey identifies one position leg: a (market, outcome) pair. It is
// used directly as a map key; never build composite string keys from its
// parts.
type PositionKey struct {
	MarketID string
	Outcome  int
}

// Opposite returns the key for the complementary outcome of the same binary
// market.
func (k PositionKey) Opposite() PositionKey {
	return PositionKey{MarketID: k.MarketID, Outcome: 1 - k.Outcome}
}

// Position is the mutable accumulator for one (wallet, market, outcome) leg.
// Quantity is signed: positive is long, negative is short. CostBasis is the
// USD amount attributed to the currently-held quantity; for a short it is
// negative and represents premium received. Realized accumulates PnL locked
// in by past disposals.
type Position struct {
	Key         PositionKey
	Quantity    float64
	CostBasis   float64
	Realized    float64
	TotalBought float64 // lifetime quantity bought on this leg, for credit scaling
}

// AvgCost returns the weighted-average cost per unit of the held quantity,
// or zero when the position is flat.
func (p *Position) AvgCost() float64 {
	if p.Quantity == 0 {
		return 0
	}
	return p.CostBasis / p.Quantity
}

// Flat reports whether the position holds no quantity within eps.
func (p *Position) Flat(eps float64) bool {
	return math.Abs(p.Quantity) <= eps
}

// SyntheticAdjustment is a derived cost-basis credit: proceeds of a phantom
// sell on one outcome reduce the effective cost of the bundled buy on the
// opposite outcome. Adjustments change average cost, never quantity.
type SyntheticAdjustment struct {
	Key       PositionKey
	CreditUSD float64
}
