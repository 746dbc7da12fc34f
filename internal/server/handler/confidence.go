package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/polypnl/internal/domain"
	"github.com/alanyoungcy/polypnl/internal/store/postgres"
)

// defaultHistoryLimit bounds history responses when the caller gives no limit.
const defaultHistoryLimit = 20

// ResultHistory lists a wallet's archived confidence results, newest first.
// *postgres.ResultStore satisfies it.
type ResultHistory interface {
	ListByWallet(ctx context.Context, wallet string, limit int) ([]postgres.StoredResult, error)
}

// ConfidenceHandler serves the consensus assessment endpoints. history may be
// nil when no result archive is configured; the history endpoint then reports
// itself unavailable.
type ConfidenceHandler struct {
	svc     PnlService
	history ResultHistory
	logger  *slog.Logger
}

// NewConfidenceHandler creates a ConfidenceHandler over the given service.
func NewConfidenceHandler(svc PnlService, history ResultHistory, logger *slog.Logger) *ConfidenceHandler {
	return &ConfidenceHandler{svc: svc, history: history, logger: logHandler(logger, "confidence")}
}

// estimateResponse is one engine's estimate in the report.
type estimateResponse struct {
	Engine         string  `json:"engine"`
	Realized       float64 `json:"realized"`
	Unrealized     float64 `json:"unrealized"`
	Total          float64 `json:"total"`
	SyntheticPairs int     `json:"synthetic_pairs"`
}

// confidenceResponse is the JSON shape of a consensus report.
type confidenceResponse struct {
	Wallet         string             `json:"wallet"`
	BestEstimate   float64            `json:"best_estimate"`
	SelectedEngine string             `json:"selected_engine"`
	Confidence     string             `json:"confidence"`
	Reason         string             `json:"reason"`
	Estimates      []estimateResponse `json:"estimates"`
	FailedEngines  []string           `json:"failed_engines,omitempty"`
}

// GetConfidence cross-validates one wallet across engines.
// GET /api/v1/confidence/{wallet}
func (h *ConfidenceHandler) GetConfidence(w http.ResponseWriter, r *http.Request) {
	wallet := pathParam(r, "wallet")
	if !validWallet(wallet) {
		writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}

	report, err := h.svc.AssessConfidence(r.Context(), wallet)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "confidence assessment failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toConfidenceResponse(report))
}

// historyEntryResponse is one archived run result in the history listing.
type historyEntryResponse struct {
	RunID          string    `json:"run_id"`
	BestEstimate   float64   `json:"best_estimate"`
	SelectedEngine string    `json:"selected_engine"`
	Confidence     string    `json:"confidence"`
	Reason         string    `json:"reason"`
	FailedEngines  []string  `json:"failed_engines,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// GetHistory lists a wallet's archived confidence results.
// GET /api/v1/confidence/{wallet}/history
func (h *ConfidenceHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "result history is not enabled")
		return
	}

	wallet := pathParam(r, "wallet")
	if !validWallet(wallet) {
		writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 200")
			return
		}
		limit = n
	}

	results, err := h.history.ListByWallet(r.Context(), wallet, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "history lookup failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	out := make([]historyEntryResponse, 0, len(results))
	for _, res := range results {
		out = append(out, historyEntryResponse{
			RunID:          res.RunID.String(),
			BestEstimate:   res.BestEstimate,
			SelectedEngine: res.SelectedEngine,
			Confidence:     string(res.Confidence),
			Reason:         res.Reason,
			FailedEngines:  res.FailedEngines,
			CreatedAt:      res.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func toConfidenceResponse(report domain.ConfidenceReport) confidenceResponse {
	estimates := make([]estimateResponse, 0, len(report.Estimates))
	for _, e := range report.Estimates {
		estimates = append(estimates, estimateResponse{
			Engine:         e.Engine,
			Realized:       e.Realized,
			Unrealized:     e.Unrealized,
			Total:          e.Total(),
			SyntheticPairs: e.SyntheticPairs,
		})
	}
	return confidenceResponse{
		Wallet:         report.Wallet,
		BestEstimate:   report.BestEstimate,
		SelectedEngine: report.SelectedEngine,
		Confidence:     string(report.Confidence),
		Reason:         report.Reason,
		Estimates:      estimates,
		FailedEngines:  report.FailedEngines,
	}
}
