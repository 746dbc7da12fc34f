// Package pnl implements the cost-basis accounting core: synthetic pair
// detection, the position ledger, binary resolution netting, the engine
// variants, and the consensus scorer that arbitrates between them.
package pnl

import (
	"math"

	"github.com/alanyoungcy/polypnl/internal/domain"
)

// DetectSyntheticPairs scans a wallet's events grouped by transaction hash
// for bundled buy/sell pairs across opposite outcomes of the same market.
//
// In a binary market, acquiring outcome A while atomically disposing of
// outcome B is a cost-reducing maneuver, not a genuine exit: the sell is a
// phantom disposal whose proceeds belong against the buy's cost basis. A
// sell whose own outcome also has a same-group buy is a real same-outcome
// exit and is left alone.
//
// When a group holds several buys on the credited leg, the credit is split
// pro-rata by each buy's USD size. The returned pair count is the number of
// phantom sells found, used by the consensus scorer's danger flag.
func DetectSyntheticPairs(events []domain.LedgerEvent) ([]domain.SyntheticAdjustment, int) {
	groups := make(map[string][]domain.LedgerEvent)
	order := make([]string, 0)
	for _, ev := range events {
		if ev.TxHash == "" {
			continue
		}
		if _, ok := groups[ev.TxHash]; !ok {
			order = append(order, ev.TxHash)
		}
		groups[ev.TxHash] = append(groups[ev.TxHash], ev)
	}

	credits := make(map[domain.PositionKey]float64)
	pairs := 0

	for _, tx := range order {
		group := groups[tx]
		if len(group) < 2 {
			continue
		}

		// Per-leg buy totals within the group, for pairing and pro-rata split.
		buyUSD := make(map[domain.PositionKey]float64)
		for _, ev := range group {
			if ev.Kind == domain.EventBuy {
				key := domain.PositionKey{MarketID: ev.MarketID, Outcome: ev.Outcome}
				buyUSD[key] += math.Abs(ev.USDDelta)
			}
		}

		for _, ev := range group {
			if ev.Kind != domain.EventSell {
				continue
			}
			sellKey := domain.PositionKey{MarketID: ev.MarketID, Outcome: ev.Outcome}
			if buyUSD[sellKey] > 0 {
				// Same-outcome buy in the same group: a genuine exit.
				continue
			}
			paired := sellKey.Opposite()
			if buyUSD[paired] <= 0 {
				continue
			}

			// Phantom sell: its proceeds credit the opposite-outcome buys.
			credits[paired] += ev.USDDelta
			pairs++
		}
	}

	adjustments := make([]domain.SyntheticAdjustment, 0, len(credits))
	for key, credit := range credits {
		if credit <= 0 {
			continue
		}
		adjustments = append(adjustments, domain.SyntheticAdjustment{
			Key:       key,
			CreditUSD: credit,
		})
	}
	return adjustments, pairs
}
