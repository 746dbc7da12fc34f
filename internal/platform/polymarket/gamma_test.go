package polymarket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polypnl/internal/domain"
)

func TestGammaClient_Resolutions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		assert.ElementsMatch(t, []string{"0xwin", "0xopen", "0xhalf"}, r.URL.Query()["condition_ids"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"conditionId": "0xwin", "closed": true, "outcomePrices": "[\"1\", \"0\"]"},
			{"conditionId": "0xopen", "closed": false, "outcomePrices": "[\"0.62\", \"0.38\"]"},
			{"conditionId": "0xhalf", "closed": true, "outcomePrices": ""}
		]`))
	}))
	defer srv.Close()

	set, err := NewGammaClient(srv.URL).Resolutions(context.Background(), []string{"0xwin", "0xopen", "0xhalf"})
	require.NoError(t, err)

	// Only the closed market with parseable payouts resolves.
	require.Len(t, set, 1)
	res := set["0xwin"]
	assert.Equal(t, [2]float64{1, 0}, res.Payouts)
	assert.True(t, res.Settled())
}

func TestGammaClient_AbsentMarketsStayOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	set, err := NewGammaClient(srv.URL).Resolutions(context.Background(), []string{"0xunknown"})
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestGammaClient_UpstreamOutage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewGammaClient(srv.URL).Resolutions(context.Background(), []string{"0xwin"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestClobClient_MarkPrice(t *testing.T) {
	marketCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/markets/0xcond":
			marketCalls++
			_, _ = w.Write([]byte(`{
				"condition_id": "0xcond",
				"tokens": [
					{"token_id": "111", "outcome": "Yes"},
					{"token_id": "222", "outcome": "No"}
				]
			}`))
		case "/midpoint":
			switch r.URL.Query().Get("token_id") {
			case "111":
				_, _ = w.Write([]byte(`{"mid": "0.65"}`))
			case "222":
				_, _ = w.Write([]byte(`{"mid": "0.35"}`))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClobClient(srv.URL)

	mid, err := client.MarkPrice(context.Background(), "0xcond", 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.35, mid, 1e-9)

	// Token lookup is cached; a second price fetch skips /markets.
	_, err = client.MarkPrice(context.Background(), "0xcond", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, marketCalls)
}

func TestClobClient_InvalidOutcome(t *testing.T) {
	client := NewClobClient("http://unused.invalid")
	_, err := client.MarkPrice(context.Background(), "0xcond", 2)
	assert.Error(t, err)
}

func TestCheckHTTPStatus(t *testing.T) {
	assert.NoError(t, checkHTTPStatus(200, nil))
	assert.ErrorIs(t, checkHTTPStatus(404, []byte("missing")), domain.ErrNotFound)
	assert.ErrorIs(t, checkHTTPStatus(429, []byte("slow down")), domain.ErrRateLimited)
	assert.ErrorIs(t, checkHTTPStatus(502, nil), domain.ErrDataUnavailable)
	assert.Error(t, checkHTTPStatus(500, nil))
	assert.NotErrorIs(t, checkHTTPStatus(500, nil), domain.ErrDataUnavailable)
}
