package domain

import "math"

// payoutSumTolerance bounds how far the two payout fractions may drift from
// summing to exactly 1 before the resolution is treated as ambiguous.
const payoutSumTolerance = 1e-6

// Resolution is the finalized payout of a binary market. Payouts holds the
// fraction paid per unit of each outcome token. Once present it is immutable.
type Resolution struct {
	MarketID string
	Payouts  [2]float64
}

// Settled reports whether the resolution is complete and unambiguous, i.e.
// the payout fractions sum to 1. Partial or ambiguous resolutions are treated
// as "still open" by the netting calculator, not as errors.
func (r Resolution) Settled() bool {
	return math.Abs(r.Payouts[0]+r.Payouts[1]-1) <= payoutSumTolerance
}

// ResolutionSet is an immutable snapshot of market resolutions, loaded once
// per batch and shared read-only across wallet computations.
type ResolutionSet map[string]Resolution
