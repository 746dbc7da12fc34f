package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polypnl/internal/domain"
)

// maxBatchWallets caps one batch request. Larger sets should be split by the
// caller; the worker pool would serialize them anyway.
const maxBatchWallets = 500

// PnlService is the facade surface the handlers depend on.
type PnlService interface {
	WalletPnl(ctx context.Context, wallet string) (domain.WalletPnl, error)
	WalletPnlBatch(ctx context.Context, wallets []string) []domain.BatchEntry
	AssessConfidence(ctx context.Context, wallet string) (domain.ConfidenceReport, error)
}

// PnlHandler serves the wallet PnL endpoints.
type PnlHandler struct {
	svc    PnlService
	logger *slog.Logger
}

// NewPnlHandler creates a PnlHandler over the given service.
func NewPnlHandler(svc PnlService, logger *slog.Logger) *PnlHandler {
	return &PnlHandler{svc: svc, logger: logHandler(logger, "pnl")}
}

// walletPnlResponse is the JSON shape of a single-wallet result.
type walletPnlResponse struct {
	Wallet      string              `json:"wallet"`
	Realized    float64             `json:"realized"`
	Unrealized  float64             `json:"unrealized"`
	Total       float64             `json:"total"`
	Diagnostics diagnosticsResponse `json:"diagnostics"`
}

type diagnosticsResponse struct {
	EventCount        int      `json:"event_count"`
	DuplicatesDropped int      `json:"duplicates_dropped"`
	SyntheticPairs    int      `json:"synthetic_pairs"`
	MarketsSettled    int      `json:"markets_settled"`
	MarketsOpen       int      `json:"markets_open"`
	InvariantErrors   []string `json:"invariant_errors,omitempty"`
}

// GetWalletPnl computes one wallet's PnL.
// GET /api/v1/pnl/{wallet}
func (h *PnlHandler) GetWalletPnl(w http.ResponseWriter, r *http.Request) {
	wallet := pathParam(r, "wallet")
	if !validWallet(wallet) {
		writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}

	res, err := h.svc.WalletPnl(r.Context(), wallet)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "wallet pnl failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, walletPnlResponse{
		Wallet:     res.Wallet,
		Realized:   res.Realized,
		Unrealized: res.Unrealized,
		Total:      res.Total,
		Diagnostics: diagnosticsResponse{
			EventCount:        res.Diagnostics.EventCount,
			DuplicatesDropped: res.Diagnostics.DuplicatesDropped,
			SyntheticPairs:    res.Diagnostics.SyntheticPairs,
			MarketsSettled:    res.Diagnostics.MarketsSettled,
			MarketsOpen:       res.Diagnostics.MarketsOpen,
			InvariantErrors:   res.Diagnostics.InvariantErrors,
		},
	})
}

// batchRequest is the JSON body of a batch computation request.
type batchRequest struct {
	Wallets []string `json:"wallets"`
}

// batchEntryResponse is one wallet's slot in the batch response.
type batchEntryResponse struct {
	Wallet     string  `json:"wallet"`
	Realized   float64 `json:"realized"`
	Unrealized float64 `json:"unrealized"`
	Total      float64 `json:"total"`
	Error      string  `json:"error,omitempty"`
}

// PostBatch computes PnL for a set of wallets.
// POST /api/v1/pnl/batch
func (h *PnlHandler) PostBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Wallets) == 0 {
		writeError(w, http.StatusBadRequest, "wallets list is empty")
		return
	}
	if len(req.Wallets) > maxBatchWallets {
		writeError(w, http.StatusBadRequest, "too many wallets in one batch")
		return
	}
	for _, wallet := range req.Wallets {
		if !validWallet(wallet) {
			writeError(w, http.StatusBadRequest, "invalid wallet address: "+wallet)
			return
		}
	}

	entries := h.svc.WalletPnlBatch(r.Context(), req.Wallets)

	out := make([]batchEntryResponse, len(entries))
	failed := 0
	for i, e := range entries {
		out[i] = batchEntryResponse{
			Wallet:     e.Wallet,
			Realized:   e.Realized,
			Unrealized: e.Unrealized,
			Total:      e.Total,
			Error:      e.Err,
		}
		if e.Failed() {
			failed++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": out,
		"failed":  failed,
	})
}
