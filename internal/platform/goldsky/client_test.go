package goldsky

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polypnl/internal/domain"
)

// newSubgraphStub serves canned rows per entity, dispatching on the entity
// name embedded in the GraphQL query.
func newSubgraphStub(t *testing.T, rows map[string][]map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		for _, entity := range []string{"fills", "splits", "merges", "redemptions"} {
			if !strings.Contains(req.Query, entity+"(") {
				continue
			}
			w.Header().Set("Content-Type", "application/json")
			err := json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{entity: rows[entity]},
			})
			require.NoError(t, err)
			return
		}
		t.Errorf("unrecognized query: %s", req.Query)
	}))
}

func subgraphRow(tx string, ts int64, side string) map[string]string {
	row := map[string]string{
		"transactionHash": tx,
		"timestamp":       strconv.FormatInt(ts, 10),
		"condition":       "0xcond",
		"outcomeIndex":    "0",
		"tokenAmount":     "1000000",
		"usdcAmount":      "500000",
	}
	if side != "" {
		row["side"] = side
	}
	return row
}

func TestRawEventsByWallet_StableOrderAcrossCalls(t *testing.T) {
	// One event per entity, all in the same block. They share a timestamp,
	// so the fetch order is the only ordering signal left and it must come
	// out identical on every call.
	const ts = 1_700_000_000
	srv := newSubgraphStub(t, map[string][]map[string]string{
		"fills":       {subgraphRow("0xf1", ts, "buy")},
		"splits":      {subgraphRow("0xs1", ts, "")},
		"merges":      {subgraphRow("0xm1", ts, "")},
		"redemptions": {subgraphRow("0xr1", ts, "")},
	})
	defer srv.Close()

	client := NewClient(srv.URL, "", 100)
	want := []domain.EventKind{domain.EventBuy, domain.EventSplit, domain.EventMerge, domain.EventRedemption}

	for i := 0; i < 50; i++ {
		events, err := client.RawEventsByWallet(context.Background(), "0xWallet")
		require.NoError(t, err)
		require.Len(t, events, 4)

		got := make([]domain.EventKind, len(events))
		for j, ev := range events {
			got[j] = ev.Kind
		}
		require.Equal(t, want, got, "call %d", i)
	}
}

func TestRawEventsByWallet_ParsesRows(t *testing.T) {
	srv := newSubgraphStub(t, map[string][]map[string]string{
		"fills": {
			subgraphRow("0xa", 1_700_000_000, "buy"),
			subgraphRow("0xb", 1_700_000_060, "sell"),
		},
	})
	defer srv.Close()

	client := NewClient(srv.URL, "", 100)
	events, err := client.RawEventsByWallet(context.Background(), "0xWallet")
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "0xwallet", events[0].Wallet)
	assert.Equal(t, domain.EventBuy, events[0].Kind)
	assert.Equal(t, "0xcond", events[0].ConditionID)
	assert.Equal(t, int64(1_000_000), events[0].TokenAmount)
	assert.Equal(t, int64(500_000), events[0].USDCAmount)
	assert.Equal(t, int64(1_700_000_000), events[0].Timestamp)

	assert.Equal(t, domain.EventSell, events[1].Kind)
	assert.Equal(t, "0xb", events[1].TxHash)
}
