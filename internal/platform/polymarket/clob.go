package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/polypnl/internal/domain"
)

// ClobClient is the read-only REST client for the Polymarket CLOB (Central
// Limit Order Book) API. It resolves condition IDs to outcome token IDs and
// serves midpoint prices for valuing open positions.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client

	mu     sync.Mutex
	tokens map[string][2]string // condition ID -> token ID per outcome index
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
func NewClobClient(baseURL string) *ClobClient {
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		tokens: make(map[string][2]string),
	}
}

// apiClobMarket is the subset of the CLOB market payload used for token
// lookup.
type apiClobMarket struct {
	ConditionID string `json:"condition_id"`
	Tokens      []struct {
		TokenID string `json:"token_id"`
		Outcome string `json:"outcome"`
	} `json:"tokens"`
}

// MarkPrice implements domain.MarkPriceSource. It returns the order book
// midpoint for the outcome token of the given market. A market unknown to
// the CLOB yields domain.ErrNotFound.
func (c *ClobClient) MarkPrice(ctx context.Context, marketID string, outcome int) (float64, error) {
	if outcome != 0 && outcome != 1 {
		return 0, fmt.Errorf("polymarket/clob: invalid outcome index %d", outcome)
	}

	tokenID, err := c.tokenID(ctx, marketID, outcome)
	if err != nil {
		return 0, err
	}

	params := url.Values{}
	params.Set("token_id", tokenID)

	body, err := c.doGet(ctx, "/midpoint?"+params.Encode())
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: get midpoint for %s/%d: %w", marketID, outcome, err)
	}

	var result struct {
		Mid string `json:"mid"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode midpoint: %w", err)
	}

	mid, err := strconv.ParseFloat(result.Mid, 64)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: parse midpoint %q: %w", result.Mid, err)
	}

	return mid, nil
}

// tokenID resolves the outcome token ID for a market, caching lookups for
// the lifetime of the client.
func (c *ClobClient) tokenID(ctx context.Context, marketID string, outcome int) (string, error) {
	c.mu.Lock()
	pair, ok := c.tokens[marketID]
	c.mu.Unlock()

	if !ok {
		body, err := c.doGet(ctx, "/markets/"+url.PathEscape(marketID))
		if err != nil {
			return "", fmt.Errorf("polymarket/clob: get market %s: %w", marketID, err)
		}

		var market apiClobMarket
		if err := json.Unmarshal(body, &market); err != nil {
			return "", fmt.Errorf("polymarket/clob: decode market: %w", err)
		}
		if len(market.Tokens) != 2 {
			return "", fmt.Errorf("polymarket/clob: market %s: %w: expected 2 outcome tokens, got %d",
				marketID, domain.ErrNotFound, len(market.Tokens))
		}

		pair = [2]string{market.Tokens[0].TokenID, market.Tokens[1].TokenID}

		c.mu.Lock()
		c.tokens[marketID] = pair
		c.mu.Unlock()
	}

	return pair[outcome], nil
}

// doGet sends an unauthenticated GET request to the CLOB API.
func (c *ClobClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
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
var _ domain.MarkPriceSource = (*ClobClient)(nil)
