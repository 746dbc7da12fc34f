// Package goldsky implements the wallet event source against the Goldsky
// subgraph indexer for the Polymarket CTF Exchange and Conditional Tokens
// contracts.
package goldsky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polypnl/internal/domain"
)

// Client is a GraphQL client for the Goldsky PnL subgraph, which indexes
// per-account fills, position splits, merges, and payout redemptions.
type Client struct {
	graphqlURL string
	apiKey     string
	pageSize   int
	httpClient *http.Client
}

// NewClient creates a new Goldsky GraphQL client.
//
// graphqlURL is the subgraph endpoint, e.g.
// "https://api.goldsky.com/api/public/.../subgraphs/polymarket-pnl/gn".
// pageSize bounds rows fetched per request; results are paged until
// exhausted.
func NewClient(graphqlURL, apiKey string, pageSize int) *Client {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &Client{
		graphqlURL: graphqlURL,
		apiKey:     strings.TrimSpace(apiKey),
		pageSize:   pageSize,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// accountEventRow is the row shape shared by every event entity in the PnL
// subgraph. Amount fields are decimal strings in 6-decimal base units.
type accountEventRow struct {
	TransactionHash string `json:"transactionHash"`
	Timestamp       string `json:"timestamp"`
	Condition       string `json:"condition"`
	OutcomeIndex    string `json:"outcomeIndex"`
	TokenAmount     string `json:"tokenAmount"`
	UsdcAmount      string `json:"usdcAmount"`
	Side            string `json:"side"` // fills only: "buy" or "sell"
}

// RawEventsByWallet implements domain.RawEventSource. It pages through the
// wallet's fills, splits, merges, and redemptions in that fixed entity
// order and returns them as raw rows, each entity in subgraph order. The
// wallet address must already be lowercased; the subgraph stores addresses
// lowercase.
func (c *Client) RawEventsByWallet(ctx context.Context, wallet string) ([]domain.RawWalletEvent, error) {
	wallet = domain.NormalizeWallet(wallet)

	var events []domain.RawWalletEvent

	fills, err := c.pageEntity(ctx, wallet, "fills", true)
	if err != nil {
		return nil, fmt.Errorf("goldsky: fetch fills: %w", err)
	}
	for _, row := range fills {
		kind := domain.EventBuy
		if row.Side == "sell" {
			kind = domain.EventSell
		}
		ev, convErr := rowToEvent(wallet, row, kind)
		if convErr != nil {
			return nil, fmt.Errorf("goldsky: fill row: %w", convErr)
		}
		events = append(events, ev)
	}

	// Entities are fetched in a fixed order. Rows in one block share a
	// timestamp, so ingestion order is the only tie-break downstream; it has
	// to be identical on every call.
	for _, entity := range []struct {
		name string
		kind domain.EventKind
	}{
		{"splits", domain.EventSplit},
		{"merges", domain.EventMerge},
		{"redemptions", domain.EventRedemption},
	} {
		rows, pageErr := c.pageEntity(ctx, wallet, entity.name, false)
		if pageErr != nil {
			return nil, fmt.Errorf("goldsky: fetch %s: %w", entity.name, pageErr)
		}
		for _, row := range rows {
			ev, convErr := rowToEvent(wallet, row, entity.kind)
			if convErr != nil {
				return nil, fmt.Errorf("goldsky: %s row: %w", entity.name, convErr)
			}
			events = append(events, ev)
		}
	}

	return events, nil
}

// pageEntity fetches every row of one event entity for the account, paging
// by timestamp cursor until a short page is returned. Only the fills entity
// carries a side field; requesting it elsewhere fails schema validation.
func (c *Client) pageEntity(ctx context.Context, wallet, entity string, withSide bool) ([]accountEventRow, error) {
	sideField := ""
	if withSide {
		sideField = "\n\t\t\t\tside"
	}
	query := fmt.Sprintf(`
		query AccountEvents($account: String!, $since: BigInt!, $first: Int!) {
			%s(
				first: $first
				orderBy: timestamp
				orderDirection: asc
				where: { account: $account, timestamp_gte: $since }
			) {
				transactionHash
				timestamp
				condition
				outcomeIndex
				tokenAmount
				usdcAmount%s
			}
		}
	`, entity, sideField)

	var all []accountEventRow
	since := int64(0)

	for {
		variables := map[string]any{
			"account": wallet,
			"since":   strconv.FormatInt(since, 10),
			"first":   c.pageSize,
		}

		respData, err := c.doQuery(ctx, query, variables)
		if err != nil {
			return nil, err
		}

		var result map[string][]accountEventRow
		if err := json.Unmarshal(respData, &result); err != nil {
			return nil, fmt.Errorf("decode %s page: %w", entity, err)
		}

		rows := result[entity]
		all = append(all, rows...)
		if len(rows) < c.pageSize {
			return all, nil
		}

		// Advance the cursor past the last full page. Rows sharing the
		// boundary timestamp are re-fetched and deduplicated downstream.
		last, err := strconv.ParseInt(rows[len(rows)-1].Timestamp, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse page cursor: %w", err)
		}
		if last <= since {
			return all, nil
		}
		since = last
	}
}

// rowToEvent converts one subgraph row to a raw wallet event.
func rowToEvent(wallet string, row accountEventRow, kind domain.EventKind) (domain.RawWalletEvent, error) {
	ts, err := strconv.ParseInt(row.Timestamp, 10, 64)
	if err != nil {
		return domain.RawWalletEvent{}, fmt.Errorf("parse timestamp %q: %w", row.Timestamp, err)
	}
	outcome, err := strconv.Atoi(row.OutcomeIndex)
	if err != nil {
		return domain.RawWalletEvent{}, fmt.Errorf("parse outcome index %q: %w", row.OutcomeIndex, err)
	}
	tokens, err := strconv.ParseInt(row.TokenAmount, 10, 64)
	if err != nil {
		return domain.RawWalletEvent{}, fmt.Errorf("parse token amount %q: %w", row.TokenAmount, err)
	}
	usdc, err := strconv.ParseInt(row.UsdcAmount, 10, 64)
	if err != nil {
		return domain.RawWalletEvent{}, fmt.Errorf("parse usdc amount %q: %w", row.UsdcAmount, err)
	}

	return domain.RawWalletEvent{
		Wallet:      wallet,
		ConditionID: row.Condition,
		Outcome:     outcome,
		Kind:        kind,
		TokenAmount: tokens,
		USDCAmount:  usdc,
		TxHash:      row.TransactionHash,
		Timestamp:   ts,
	}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doQuery executes a GraphQL query against the Goldsky endpoint and returns
// the raw "data" field from the response.
func (c *Client) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	reqBody := graphqlRequest{
		Query:     query,
		Variables: variables,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}

	return gqlResp.Data, nil
}

// Compile-time interface check.
var _ domain.RawEventSource = (*Client)(nil)
