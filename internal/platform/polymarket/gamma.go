// Package polymarket holds the REST clients for the Polymarket public
// APIs: Gamma (market metadata and resolution state), the CLOB (prices),
// and the positions data API used as a fallback PnL oracle.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polypnl/internal/domain"
)

// gammaBatchSize bounds condition IDs per Gamma request; the API caps
// query-string filters around this size.
const gammaBatchSize = 50

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market metadata including resolution payouts.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiMarket is the subset of the Gamma market payload the resolver needs.
// OutcomePrices is a JSON-encoded string array, e.g. `["1", "0"]`.
type apiMarket struct {
	ConditionID   string `json:"conditionId"`
	Closed        bool   `json:"closed"`
	OutcomePrices string `json:"outcomePrices"`
}

// Resolutions implements domain.ResolutionSource. Markets the API does not
// return, or returns without settled payouts, are simply absent from the
// result set; callers treat absent markets as open.
func (g *GammaClient) Resolutions(ctx context.Context, marketIDs []string) (domain.ResolutionSet, error) {
	set := make(domain.ResolutionSet, len(marketIDs))

	for start := 0; start < len(marketIDs); start += gammaBatchSize {
		end := start + gammaBatchSize
		if end > len(marketIDs) {
			end = len(marketIDs)
		}

		markets, err := g.marketsByCondition(ctx, marketIDs[start:end])
		if err != nil {
			return nil, fmt.Errorf("polymarket/gamma: fetch resolutions: %w", err)
		}

		for i := range markets {
			m := &markets[i]
			if !m.Closed {
				continue
			}
			res, ok, parseErr := parseResolution(m)
			if parseErr != nil {
				return nil, fmt.Errorf("polymarket/gamma: market %s: %w", m.ConditionID, parseErr)
			}
			if ok {
				set[res.MarketID] = res
			}
		}
	}

	return set, nil
}

// marketsByCondition fetches Gamma market rows for a batch of condition IDs.
func (g *GammaClient) marketsByCondition(ctx context.Context, conditionIDs []string) ([]apiMarket, error) {
	params := url.Values{}
	for _, id := range conditionIDs {
		params.Add("condition_ids", id)
	}
	params.Set("limit", strconv.Itoa(len(conditionIDs)))

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var markets []apiMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("decode markets: %w", err)
	}

	return markets, nil
}

// parseResolution extracts the payout vector from a closed market row. A
// closed market whose payouts are missing or malformed is reported as not
// resolved rather than failing the batch.
func parseResolution(m *apiMarket) (domain.Resolution, bool, error) {
	raw := strings.TrimSpace(m.OutcomePrices)
	if raw == "" {
		return domain.Resolution{}, false, nil
	}

	var prices []string
	if err := json.Unmarshal([]byte(raw), &prices); err != nil {
		return domain.Resolution{}, false, fmt.Errorf("decode outcome prices %q: %w", raw, err)
	}
	if len(prices) != 2 {
		return domain.Resolution{}, false, nil
	}

	var payouts [2]float64
	for i, p := range prices {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return domain.Resolution{}, false, fmt.Errorf("parse outcome price %q: %w", p, err)
		}
		payouts[i] = v
	}

	return domain.Resolution{MarketID: m.ConditionID, Payouts: payouts}, true, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
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
var _ domain.ResolutionSource = (*GammaClient)(nil)
