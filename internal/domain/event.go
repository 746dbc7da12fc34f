// Package domain defines the core types of the wallet PnL engine: ledger
// events, positions, resolutions, engine estimates, and the source
// interfaces the engine consumes.
package domain

import (
	"context"
	"strings"
	"time"
)

// EventKind classifies a ledger event by its economic effect.
type EventKind string

const (
	EventBuy        EventKind = "buy"
	EventSell       EventKind = "sell"
	EventSplit      EventKind = "split"
	EventMerge      EventKind = "merge"
	EventRedemption EventKind = "redemption"
)

// LedgerEvent is an immutable record of one economic event for a wallet on
// one outcome of a binary market. TokenDelta and USDDelta are signed from
// the wallet's perspective: a buy has positive TokenDelta and negative
// USDDelta, a sell the opposite.
type LedgerEvent struct {
	Wallet     string
	MarketID   string // condition ID
	Outcome    int    // 0 or 1
	Kind       EventKind
	TokenDelta float64
	USDDelta   float64
	TxHash     string // events sharing a hash are atomic/bundled
	Timestamp  time.Time
	Seq        int // ingestion order, breaks timestamp ties
}

// EventKey is the natural deduplication key for a ledger event. The upstream
// indexer can emit exact-duplicate rows during reprocessing; two rows with
// the same key are the same economic event.
type EventKey struct {
	TxHash  string
	Outcome int
	Kind    EventKind
}

// Key returns the event's natural deduplication key.
func (e LedgerEvent) Key() EventKey {
	return EventKey{TxHash: e.TxHash, Outcome: e.Outcome, Kind: e.Kind}
}

// RawWalletEvent is a raw row returned by the subgraph indexer before
// normalization. Amounts are in base units (6 decimals for both outcome
// tokens and USDC).
type RawWalletEvent struct {
	Wallet      string
	ConditionID string
	Outcome     int
	Kind        EventKind
	TokenAmount int64 // unsigned base units
	USDCAmount  int64 // unsigned base units
	TxHash      string
	Timestamp   int64 // unix seconds
}

// RawEventSource loads raw, un-normalized event rows for a wallet.
type RawEventSource interface {
	RawEventsByWallet(ctx context.Context, wallet string) ([]RawWalletEvent, error)
}

// NormalizeWallet lowercases a wallet address so that lookups and grouping
// are insensitive to checksum casing.
func NormalizeWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}
