package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polypnl/internal/domain"
	"github.com/alanyoungcy/polypnl/internal/store/postgres"
)

type stubHistory struct {
	results   []postgres.StoredResult
	lastLimit int
}

func (s *stubHistory) ListByWallet(_ context.Context, _ string, limit int) ([]postgres.StoredResult, error) {
	s.lastLimit = limit
	return s.results, nil
}

func newConfidenceMux(svc PnlService, history ResultHistory) *http.ServeMux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewConfidenceHandler(svc, history, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/confidence/{wallet}", h.GetConfidence)
	mux.HandleFunc("GET /api/v1/confidence/{wallet}/history", h.GetHistory)
	return mux
}

func TestGetConfidence(t *testing.T) {
	svc := &stubService{report: domain.ConfidenceReport{
		Wallet:       testWallet,
		BestEstimate: 99_500,
		Confidence:   domain.ConfidenceHigh,
		Reason:       "all 3 engine pairs agree within 6%",
		Estimates: []domain.EngineEstimate{
			{Engine: "conservative_cost_basis", Realized: 98_000},
			{Engine: "synthetic_adjusted", Realized: 99_500},
		},
	}}

	rec := httptest.NewRecorder()
	newConfidenceMux(svc, nil).ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/api/v1/confidence/"+testWallet, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body confidenceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "HIGH", body.Confidence)
	assert.InDelta(t, 99_500.0, body.BestEstimate, 1e-9)
	assert.Len(t, body.Estimates, 2)
}

func TestGetHistory(t *testing.T) {
	history := &stubHistory{results: []postgres.StoredResult{
		{
			RunID:        uuid.New(),
			Wallet:       testWallet,
			BestEstimate: 99_500,
			Confidence:   domain.ConfidenceHigh,
			CreatedAt:    time.Now().UTC(),
		},
	}}

	rec := httptest.NewRecorder()
	newConfidenceMux(&stubService{}, history).ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/api/v1/confidence/"+testWallet+"/history?limit=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, history.lastLimit)

	var body struct {
		Results []historyEntryResponse `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 1)
	assert.Equal(t, "HIGH", body.Results[0].Confidence)
}

func TestGetHistory_DefaultLimit(t *testing.T) {
	history := &stubHistory{}

	rec := httptest.NewRecorder()
	newConfidenceMux(&stubService{}, history).ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/api/v1/confidence/"+testWallet+"/history", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultHistoryLimit, history.lastLimit)
}

func TestGetHistory_NotConfigured(t *testing.T) {
	rec := httptest.NewRecorder()
	newConfidenceMux(&stubService{}, nil).ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/api/v1/confidence/"+testWallet+"/history", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetHistory_BadLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	newConfidenceMux(&stubService{}, &stubHistory{}).ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/api/v1/confidence/"+testWallet+"/history?limit=1000", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
