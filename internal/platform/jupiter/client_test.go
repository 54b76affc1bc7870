package jupiter

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

const sampleQuote = `{
  "inputMint": "So11111111111111111111111111111111111111112",
  "inAmount": "100000000",
  "outputMint": "TokenMint111",
  "outAmount": "250000000",
  "otherAmountThreshold": "247500000",
  "swapMode": "ExactIn",
  "slippageBps": 100,
  "priceImpactPct": "0.0123",
  "routePlan": [],
  "contextSlot": 1
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		QuoteURL:          srv.URL + "/quote",
		SwapURL:           srv.URL + "/swap",
		RequestsPerSecond: 1000,
		BreakerFailures:   100,
	})
}

func TestQuote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, domain.SOLMint, q.Get("inputMint"))
		assert.Equal(t, "TokenMint111", q.Get("outputMint"))
		assert.Equal(t, "100000000", q.Get("amount"))
		assert.Equal(t, "100", q.Get("slippageBps"))
		assert.Equal(t, "false", q.Get("onlyDirectRoutes"))
		assert.Equal(t, "false", q.Get("asLegacyTransaction"))
		_, _ = io.WriteString(w, sampleQuote)
	})

	q, err := c.Quote(t.Context(), domain.SOLMint, "TokenMint111", 100_000_000, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(250_000_000), q.OutputAmount)
	assert.Equal(t, uint64(100_000_000), q.InputAmount)
	assert.InDelta(t, 0.0123, q.PriceImpactPct, 1e-12)
	assert.JSONEq(t, sampleQuote, string(q.Raw))
}

func TestQuoteUnavailable(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"bad request": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":"no route"}`, http.StatusBadRequest)
		},
		"empty body": func(w http.ResponseWriter, _ *http.Request) {},
		"malformed": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"outAmount":`)
		},
		"zero out": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"inAmount":"1","outAmount":"0"}`)
		},
		"missing out": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"inAmount":"1"}`)
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, h)
			_, err := c.Quote(t.Context(), "a", "b", 10, 50)
			assert.ErrorIs(t, err, domain.ErrQuoteUnavailable)
		})
	}
}

func TestQuoteNegativeImpactIsMagnitude(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"inAmount":"10","outAmount":"20","priceImpactPct":"-0.5"}`)
	})
	q, err := c.Quote(t.Context(), "a", "b", 10, 50)
	require.NoError(t, err)
	assert.Equal(t, 0.5, q.PriceImpactPct)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	c := New(Config{QuoteURL: srv.URL, SwapURL: srv.URL, RequestsPerSecond: 1000, BreakerFailures: 2})

	for i := 0; i < 4; i++ {
		_, err := c.Quote(t.Context(), "a", "b", 1, 1)
		assert.ErrorIs(t, err, domain.ErrQuoteUnavailable)
	}
	assert.Equal(t, 2, calls)
}

func TestBuildSwap(t *testing.T) {
	unsigned := []byte{0x01, 0x02, 0x03}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/swap", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "UserPub", body["userPublicKey"])
		assert.Equal(t, true, body["wrapAndUnwrapSol"])
		assert.Equal(t, true, body["dynamicComputeUnitLimit"])
		fee := body["prioritizationFeeLamports"].(map[string]any)["priorityLevelWithMaxLamports"].(map[string]any)
		assert.Equal(t, float64(10_000_000), fee["maxLamports"])
		assert.Equal(t, "veryHigh", fee["priorityLevel"])
		assert.Equal(t, "250000000", body["quoteResponse"].(map[string]any)["outAmount"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"swapTransaction":      base64.StdEncoding.EncodeToString(unsigned),
			"lastValidBlockHeight": 99,
		})
	})

	raw, err := c.BuildSwap(t.Context(), json.RawMessage(sampleQuote), "UserPub",
		domain.FeeOptions{MaxLamports: 10_000_000, PriorityLevel: "veryHigh"})
	require.NoError(t, err)
	assert.Equal(t, unsigned, raw)
}

func TestBuildSwapFailures(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	_, err := c.BuildSwap(t.Context(), json.RawMessage(sampleQuote), "u", domain.FeeOptions{})
	assert.ErrorIs(t, err, domain.ErrBuildFailed)

	c = newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"swapTransaction":"!!not-base64!!"}`)
	})
	_, err = c.BuildSwap(t.Context(), json.RawMessage(sampleQuote), "u", domain.FeeOptions{})
	assert.ErrorIs(t, err, domain.ErrMalformedPayload)
}
