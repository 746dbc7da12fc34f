// Package ingest loads raw wallet event rows from an indexer and normalizes
// them into deduplicated, chronologically ordered ledger events.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/polypnl/internal/domain"
)

// baseUnitScale converts indexer base units (6 decimals for outcome tokens
// and USDC alike) into whole tokens / dollars.
const baseUnitScale = 1e-6

// Normalizer implements domain.EventSource on top of a raw indexer source.
// It owns the three correctness-critical ingestion steps: sign conventions,
// natural-key deduplication, and stable chronological ordering.
type Normalizer struct {
	source domain.RawEventSource
	logger *slog.Logger
}

// NewNormalizer creates a Normalizer reading from the given raw source.
func NewNormalizer(source domain.RawEventSource, logger *slog.Logger) *Normalizer {
	return &Normalizer{source: source, logger: logger}
}

// EventsByWallet implements domain.EventSource.
func (n *Normalizer) EventsByWallet(ctx context.Context, wallet string) ([]domain.LedgerEvent, error) {
	events, _, err := n.Load(ctx, wallet)
	return events, err
}

// Load returns the wallet's normalized event history together with the
// number of exact-duplicate rows dropped. Duplicate rows come from upstream
// reprocessing; skipping this step has been observed to inflate PnL by
// orders of magnitude, so dedup happens before any accounting.
func (n *Normalizer) Load(ctx context.Context, wallet string) ([]domain.LedgerEvent, int, error) {
	wallet = domain.NormalizeWallet(wallet)

	raw, err := n.source.RawEventsByWallet(ctx, wallet)
	if err != nil {
		return nil, 0, fmt.Errorf("ingest: load events for %s: %w", wallet, err)
	}
	if len(raw) == 0 {
		// No history is a valid result, not an error.
		return nil, 0, nil
	}

	seen := make(map[domain.EventKey]struct{}, len(raw))
	events := make([]domain.LedgerEvent, 0, len(raw))
	dropped := 0

	for i, r := range raw {
		ev, err := normalize(wallet, r, i)
		if err != nil {
			n.logger.Warn("ingest: skipping malformed row",
				slog.String("wallet", wallet),
				slog.String("tx_hash", r.TxHash),
				slog.String("error", err.Error()),
			)
			continue
		}

		key := ev.Key()
		if _, dup := seen[key]; dup {
			dropped++
			continue
		}
		seen[key] = struct{}{}
		events = append(events, ev)
	}

	// Strict chronological order; ingestion sequence breaks ties so replay
	// is deterministic across runs.
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		return events[i].Seq < events[j].Seq
	})

	if dropped > 0 {
		n.logger.Debug("ingest: dropped duplicate rows",
			slog.String("wallet", wallet),
			slog.Int("dropped", dropped),
		)
	}

	return events, dropped, nil
}

// normalize converts one raw indexer row into a signed ledger event.
func normalize(wallet string, r domain.RawWalletEvent, seq int) (domain.LedgerEvent, error) {
	if r.Outcome != 0 && r.Outcome != 1 {
		return domain.LedgerEvent{}, fmt.Errorf("outcome index %d out of range", r.Outcome)
	}
	if r.TokenAmount < 0 || r.USDCAmount < 0 {
		return domain.LedgerEvent{}, fmt.Errorf("negative raw amounts (tokens=%d usdc=%d)", r.TokenAmount, r.USDCAmount)
	}

	tokens := float64(r.TokenAmount) * baseUnitScale
	usd := float64(r.USDCAmount) * baseUnitScale

	ev := domain.LedgerEvent{
		Wallet:    wallet,
		MarketID:  r.ConditionID,
		Outcome:   r.Outcome,
		Kind:      r.Kind,
		TxHash:    r.TxHash,
		Timestamp: unixTime(r.Timestamp),
		Seq:       seq,
	}

	switch r.Kind {
	case domain.EventBuy, domain.EventSplit:
		// Acquisitions: tokens in, dollars out.
		ev.TokenDelta = tokens
		ev.USDDelta = -usd
	case domain.EventSell, domain.EventMerge, domain.EventRedemption:
		// Disposals: tokens out, dollars in.
		ev.TokenDelta = -tokens
		ev.USDDelta = usd
	default:
		return domain.LedgerEvent{}, fmt.Errorf("unknown event kind %q", r.Kind)
	}

	return ev, nil
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
