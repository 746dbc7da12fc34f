package pnl

import (
	"fmt"
	"math"
	"sort"

	"github.com/alanyoungcy/polypnl/internal/domain"
)

// DefaultEpsilon is the ledger's zero tolerance for floating drift.
const DefaultEpsilon = 1e-9

// Ledger replays a wallet's events in time order into per-(market, outcome)
// position state using weighted-average cost accounting. A Ledger is owned
// by a single wallet computation and discarded afterwards; it is not safe
// for concurrent use and never shared across wallets.
type Ledger struct {
	positions  map[domain.PositionKey]*domain.Position
	epsilon    float64
	violations []string
}

// NewLedger returns an empty ledger with the default zero tolerance.
func NewLedger() *Ledger {
	return &Ledger{
		positions: make(map[domain.PositionKey]*domain.Position),
		epsilon:   DefaultEpsilon,
	}
}

// Replay applies events in slice order. Callers must pass events already in
// chronological order (the ingest layer guarantees this).
func (l *Ledger) Replay(events []domain.LedgerEvent) {
	for _, ev := range events {
		l.apply(ev)
	}
	l.checkInvariants()
}

func (l *Ledger) position(key domain.PositionKey) *domain.Position {
	p, ok := l.positions[key]
	if !ok {
		p = &domain.Position{Key: key}
		l.positions[key] = p
	}
	return p
}

func (l *Ledger) apply(ev domain.LedgerEvent) {
	key := domain.PositionKey{MarketID: ev.MarketID, Outcome: ev.Outcome}
	p := l.position(key)

	switch ev.Kind {
	case domain.EventBuy, domain.EventSplit:
		// Acquisition at cost. A split leg arrives priced at its share of
		// the collateral converted, so aggregate market cost is conserved.
		l.acquire(p, ev.TokenDelta, -ev.USDDelta)
	case domain.EventSell, domain.EventMerge, domain.EventRedemption:
		// Disposal against average cost. Merges and redemptions settle the
		// same way a sell does: proceeds minus cost removed.
		l.dispose(p, -ev.TokenDelta, ev.USDDelta)
	}
}

// acquire adds quantity at the given USD cost. No PnL is realized.
func (l *Ledger) acquire(p *domain.Position, tokens, cost float64) {
	if tokens <= 0 {
		return
	}
	p.Quantity += tokens
	p.CostBasis += cost
	p.TotalBought += tokens
}

// dispose removes quantity for the given USD proceeds. Disposal from a long
// realizes proceeds minus weighted-average cost on the covered portion; a
// disposal past flat opens or extends a short, with the proceeds held as
// negative cost basis (premium received) rather than realized PnL.
func (l *Ledger) dispose(p *domain.Position, tokens, proceeds float64) {
	if tokens <= 0 {
		return
	}

	if p.Quantity > l.epsilon {
		available := math.Min(p.Quantity, tokens)
		avgCost := p.CostBasis / p.Quantity
		costRemoved := avgCost * available

		p.Realized += proceeds - costRemoved
		p.Quantity -= available
		p.CostBasis -= costRemoved

		if p.Quantity <= l.epsilon {
			// Snap residual drift so a flat position carries no cost.
			p.Quantity = 0
			p.CostBasis = 0
		}
		return
	}

	// Selling into or extending a short.
	p.Quantity -= tokens
	p.CostBasis -= proceeds
}

// ApplyAdjustments applies synthetic-pair credits after a full replay. Each
// credit lowers the affected leg's average cost by credit divided by the
// total quantity ever bought on that leg, clamped at zero. Quantity is never
// touched.
func (l *Ledger) ApplyAdjustments(adjustments []domain.SyntheticAdjustment) {
	for _, adj := range adjustments {
		p, ok := l.positions[adj.Key]
		if !ok || p.TotalBought <= l.epsilon {
			continue
		}
		if p.Quantity <= l.epsilon {
			// Leg already closed; the credit has nothing left to re-price.
			continue
		}

		avg := p.CostBasis / p.Quantity
		adjusted := avg - adj.CreditUSD/p.TotalBought
		if adjusted < 0 {
			adjusted = 0
		}
		p.CostBasis = adjusted * p.Quantity
	}
}

// checkInvariants records (never clamps) positions whose cost basis sign
// contradicts their quantity beyond the float tolerance. A violation means
// an ingestion or detector bug upstream and is surfaced as a diagnostic on
// the wallet's result.
func (l *Ledger) checkInvariants() {
	for key, p := range l.positions {
		switch {
		case p.Quantity >= -l.epsilon && p.CostBasis < -1e-6:
			l.violations = append(l.violations, fmt.Sprintf(
				"market %s outcome %d: negative cost basis %.6f on non-short quantity %.6f",
				key.MarketID, key.Outcome, p.CostBasis, p.Quantity))
		case p.Quantity < -l.epsilon && p.CostBasis > 1e-6:
			l.violations = append(l.violations, fmt.Sprintf(
				"market %s outcome %d: positive cost basis %.6f on short quantity %.6f",
				key.MarketID, key.Outcome, p.CostBasis, p.Quantity))
		}
	}
}

// Position returns the leg state for a key, or nil if the wallet never
// touched that leg.
func (l *Ledger) Position(key domain.PositionKey) *domain.Position {
	return l.positions[key]
}

// Positions returns all legs in a deterministic order.
func (l *Ledger) Positions() []*domain.Position {
	out := make([]*domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.MarketID != out[j].Key.MarketID {
			return out[i].Key.MarketID < out[j].Key.MarketID
		}
		return out[i].Key.Outcome < out[j].Key.Outcome
	})
	return out
}

// Markets returns the distinct market IDs the wallet touched, sorted.
func (l *Ledger) Markets() []string {
	seen := make(map[string]struct{})
	var out []string
	for key := range l.positions {
		if _, ok := seen[key.MarketID]; !ok {
			seen[key.MarketID] = struct{}{}
			out = append(out, key.MarketID)
		}
	}
	sort.Strings(out)
	return out
}

// Realized returns the cumulative realized PnL locked in during replay,
// summed across all legs.
func (l *Ledger) Realized() float64 {
	var total float64
	for _, p := range l.positions {
		total += p.Realized
	}
	return total
}

// Violations returns invariant violations recorded during replay.
func (l *Ledger) Violations() []string {
	return l.violations
}
