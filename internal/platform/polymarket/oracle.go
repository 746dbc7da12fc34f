package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/polypnl/internal/domain"
)

// OracleClient queries the Polymarket data API for a wallet's aggregate
// account value, used as an independent cross-check against locally
// computed estimates. It reports a single total without a realized and
// unrealized breakdown.
type OracleClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewOracleClient creates a new data API client.
//
// baseURL is the data API root, e.g. "https://data-api.polymarket.com".
// apiKey is optional; when set it is sent as a bearer token.
func NewOracleClient(baseURL, apiKey string) *OracleClient {
	return &OracleClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WalletPnl implements domain.PnlOracle. It returns the wallet's total
// profit as reported by the data API.
func (o *OracleClient) WalletPnl(ctx context.Context, wallet string) (float64, error) {
	params := url.Values{}
	params.Set("user", domain.NormalizeWallet(wallet))

	body, err := o.doGet(ctx, "/value?"+params.Encode())
	if err != nil {
		return 0, fmt.Errorf("polymarket/oracle: get wallet value: %w", err)
	}

	// The API returns a one-element array for a single user filter.
	var rows []struct {
		User string  `json:"user"`
		Pnl  float64 `json:"pnl"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0, fmt.Errorf("polymarket/oracle: decode wallet value: %w", err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("polymarket/oracle: wallet %s: %w", wallet, domain.ErrNotFound)
	}

	return rows[0].Pnl, nil
}

// doGet sends a GET request to the data API, attaching the bearer token
// when one is configured.
func (o *OracleClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

// Compile-time interface check.
var _ domain.PnlOracle = (*OracleClient)(nil)
