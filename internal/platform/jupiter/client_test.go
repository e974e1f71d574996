package jupiter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteAndSwap(t *testing.T) {
	quote := `{"inputMint":"So11111111111111111111111111111111111111112","outputMint":"TokA","inAmount":"50000000","outAmount":"123456","otherAmountThreshold":"120000","slippageBps":300,"priceImpactPct":"0.0125","routePlan":[]}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quote":
			q := r.URL.Query()
			assert.Equal(t, "50000000", q.Get("amount"))
			assert.Equal(t, "300", q.Get("slippageBps"))
			_, _ = w.Write([]byte(quote))
		case "/swap":
			var body map[string]json.RawMessage
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.JSONEq(t, quote, string(body["quoteResponse"]))
			assert.JSONEq(t, `"Wallet1"`, string(body["userPublicKey"]))
			_, _ = w.Write([]byte(`{"swapTransaction":"AQID","lastValidBlockHeight":77}`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, nil)
	q, err := c.Quote(context.Background(), WrappedSOL, "TokA", 50_000_000, 300)
	require.NoError(t, err)
	assert.Equal(t, "123456", q.OutAmount)
	assert.InDelta(t, 0.0125, q.PriceImpactPct, 1e-12)

	s, err := c.Swap(context.Background(), q, "Wallet1")
	require.NoError(t, err)
	assert.Equal(t, "AQID", s.SwapTransaction)
	assert.Equal(t, uint64(77), s.LastValidBlockHeight)
}

func TestQuoteNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second, nil).Quote(context.Background(), WrappedSOL, "TokA", 1, 50)
	assert.Error(t, err)
}
