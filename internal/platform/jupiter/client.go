// Package jupiter is the HTTP client for the Jupiter v6 swap aggregator.
package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

var _ domain.Aggregator = (*Client)(nil)

// Config configures the aggregator client.
type Config struct {
	QuoteURL          string
	SwapURL           string
	RequestsPerSecond float64
	BreakerFailures   uint32
	BreakerCooldown   time.Duration
	HTTPClient        *http.Client
}

// Client quotes swaps and requests prebuilt swap transactions. Outbound calls
// are throttled by a token bucket and guarded by a circuit breaker that trips
// on transport errors and 5xx/429 responses.
type Client struct {
	quoteURL   string
	swapURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

// New creates a Jupiter client.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	return &Client{
		quoteURL:   cfg.QuoteURL,
		swapURL:    cfg.SwapURL,
		httpClient: hc,
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "jupiter",
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
		}),
	}
}

// Quote requests a single best-route quote. Every failure, including an empty
// or unparseable body, is reported as domain.ErrQuoteUnavailable.
func (c *Client) Quote(ctx context.Context, inputAsset, outputAsset string, amount uint64, slippageBps int) (domain.Quote, error) {
	params := url.Values{}
	params.Set("inputMint", inputAsset)
	params.Set("outputMint", outputAsset)
	params.Set("amount", strconv.FormatUint(amount, 10))
	params.Set("slippageBps", strconv.Itoa(slippageBps))
	params.Set("onlyDirectRoutes", "false")
	params.Set("asLegacyTransaction", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.quoteURL+"?"+params.Encode(), nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter: quote: %w: %w", domain.ErrQuoteUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(ctx, req)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter: quote: %w: %w", domain.ErrQuoteUnavailable, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return domain.Quote{}, fmt.Errorf("jupiter: quote: %w: empty response", domain.ErrQuoteUnavailable)
	}

	var apiQuote APIQuote
	if err := json.Unmarshal(body, &apiQuote); err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter: decode quote: %w: %w", domain.ErrQuoteUnavailable, err)
	}
	q, err := apiQuote.ToDomainQuote(body)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter: quote: %w: %w", domain.ErrQuoteUnavailable, err)
	}
	return q, nil
}

// BuildSwap posts the quote to /swap and returns the decoded, unsigned
// versioned transaction bytes.
func (c *Client) BuildSwap(ctx context.Context, quote json.RawMessage, userPublicKey string, fee domain.FeeOptions) ([]byte, error) {
	payload, err := json.Marshal(swapRequest{
		QuoteResponse:           quote,
		UserPublicKey:           userPublicKey,
		WrapAndUnwrapSol:        true,
		DynamicComputeUnitLimit: true,
		PrioritizationFeeLamports: prioritization{
			PriorityLevelWithMaxLamports: priorityLevel{
				MaxLamports:   fee.MaxLamports,
				PriorityLevel: fee.PriorityLevel,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jupiter: encode swap request: %w: %w", domain.ErrBuildFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.swapURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("jupiter: swap: %w: %w", domain.ErrBuildFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("jupiter: swap: %w: %w", domain.ErrBuildFailed, err)
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("jupiter: decode swap: %w: %w", domain.ErrBuildFailed, err)
	}
	if resp.SwapTransaction == "" {
		return nil, fmt.Errorf("jupiter: swap: %w: missing swapTransaction", domain.ErrBuildFailed)
	}
	raw, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("jupiter: swap: %w: %w", domain.ErrMalformedPayload, err)
	}
	return raw, nil
}

type httpResult struct {
	status int
	body   []byte
}

// do waits for a rate-limit token, executes req through the breaker and maps
// non-2xx statuses to domain errors.
func (c *Client) do(ctx context.Context, req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		res := &httpResult{status: resp.StatusCode, body: body}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return res, checkHTTPStatus(resp.StatusCode, body)
		}
		return res, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("circuit open: %w", err)
		}
		return nil, err
	}

	res := out.(*httpResult)
	if err := checkHTTPStatus(res.status, res.body); err != nil {
		return nil, err
	}
	return res.body, nil
}

// checkHTTPStatus returns a domain error for non-2xx status codes.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
