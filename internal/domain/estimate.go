package domain

// EngineEstimate is one PnL computation strategy's answer for one wallet.
// No estimate is authoritative on its own; the consensus scorer arbitrates
// between several of them.
type EngineEstimate struct {
	Engine          string
	Wallet          string
	Realized        float64
	Unrealized      float64
	SyntheticPairs  int
	MarketsSettled  int
	MarketsOpen     int
	EventCount      int
	InvariantErrors []string
}

// Total returns the estimate's combined realized plus unrealized PnL, the
// quantity the scorer compares across engines.
func (e EngineEstimate) Total() float64 {
	return e.Realized + e.Unrealized
}

// Confidence classifies how well independent engine estimates agree.
type Confidence string

const (
	ConfidenceHigh    Confidence = "HIGH"
	ConfidenceMedium  Confidence = "MEDIUM"
	ConfidenceLow     Confidence = "LOW"
	ConfidenceFlagged Confidence = "FLAGGED"
)

// ConfidenceReport is the consensus scorer's output for one wallet.
type ConfidenceReport struct {
	Wallet         string
	Estimates      []EngineEstimate
	FailedEngines  []string
	BestEstimate   float64
	SelectedEngine string
	Confidence     Confidence
	Reason         string
}

// Diagnostics carries per-wallet counters surfaced alongside a PnL result.
type Diagnostics struct {
	EventCount        int
	DuplicatesDropped int
	SyntheticPairs    int
	MarketsSettled    int
	MarketsOpen       int
	InvariantErrors   []string
}

// WalletPnl is the facade's single-wallet result.
type WalletPnl struct {
	Wallet      string
	Realized    float64
	Unrealized  float64
	Total       float64
	Diagnostics Diagnostics
}

// BatchEntry is one wallet's slot in a batch result. A failed wallet reports
// its error here instead of aborting the batch.
type BatchEntry struct {
	Wallet     string
	Realized   float64
	Unrealized float64
	Total      float64
	Err        string `json:",omitempty"`
}

// Failed reports whether this entry is a partial-failure marker.
func (b BatchEntry) Failed() bool {
	return b.Err != ""
}
