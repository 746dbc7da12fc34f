package handler

import (
	"net/http"
	"time"
)

// HealthHandler answers liveness probes for the PnL API.
type HealthHandler struct{}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// HealthCheck reports that the process is serving requests. It deliberately
// checks nothing downstream; a wallet whose sources are degraded still gets a
// per-request error, not a dead server.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":   "polypnl",
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
