package domain

import "context"

// EventSource returns a wallet's normalized, deduplicated, chronologically
// sorted event history. A wallet with no history yields an empty slice, not
// an error.
type EventSource interface {
	EventsByWallet(ctx context.Context, wallet string) ([]LedgerEvent, error)
}

// ResolutionSource returns payout resolutions for a set of markets. Markets
// that have not resolved are simply absent from the result map.
type ResolutionSource interface {
	Resolutions(ctx context.Context, marketIDs []string) (ResolutionSet, error)
}

// MarkPriceSource returns a current valuation price for an outcome token,
// used only to value open long positions.
type MarkPriceSource interface {
	MarkPrice(ctx context.Context, marketID string, outcome int) (float64, error)
}

// PnlOracle is an external authoritative PnL value for a wallet, consumed by
// the consensus scorer as just another engine estimate.
type PnlOracle interface {
	WalletPnl(ctx context.Context, wallet string) (float64, error)
}
