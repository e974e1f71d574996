// Package jupiter obtains swap routes and unsigned swap transactions from the
// Jupiter aggregator.
package jupiter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/alanyoungcy/sniperbot/internal/platform/httpx"
)

const serviceName = "jupiter"

// WrappedSOL is the mint used for native SOL legs.
const WrappedSOL = "So11111111111111111111111111111111111111112"

// Quote is a route returned by GET /quote. Raw is passed back verbatim to
// /swap.
type Quote struct {
	InputMint            string  `json:"inputMint"`
	OutputMint           string  `json:"outputMint"`
	InAmount             string  `json:"inAmount"`
	OutAmount            string  `json:"outAmount"`
	OtherAmountThreshold string  `json:"otherAmountThreshold"`
	SlippageBps          int     `json:"slippageBps"`
	PriceImpactPct       float64 `json:"priceImpactPct,string"`

	Raw json.RawMessage `json:"-"`
}

// Swap is an unsigned, base64 encoded versioned transaction.
type Swap struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// Client is the aggregator REST client.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// New creates a client for baseURL, e.g. https://quote-api.jup.ag/v6.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:   httpx.NewClient(baseURL, timeout),
		logger: logger.With(slog.String("component", "jupiter_client")),
	}
}

// Quote requests the best route for amount (in the input mint's base units).
func (c *Client) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (Quote, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"inputMint":   inputMint,
			"outputMint":  outputMint,
			"amount":      strconv.FormatUint(amount, 10),
			"slippageBps": strconv.Itoa(slippageBps),
		}).
		Get("/quote")

	var raw json.RawMessage
	if err := httpx.Decode(serviceName, resp, err, &raw); err != nil {
		return Quote{}, fmt.Errorf("jupiter: quote: %w", err)
	}
	var q Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return Quote{}, fmt.Errorf("jupiter: quote: decode: %w", err)
	}
	if q.OutAmount == "" {
		return Quote{}, fmt.Errorf("jupiter: quote: no route for %s -> %s", inputMint, outputMint)
	}
	q.Raw = raw
	return q, nil
}

// Swap builds the swap transaction for quote with user as fee payer.
func (c *Client) Swap(ctx context.Context, quote Quote, user string) (Swap, error) {
	body := map[string]any{
		"quoteResponse":             quote.Raw,
		"userPublicKey":             user,
		"wrapAndUnwrapSol":          true,
		"dynamicComputeUnitLimit":   true,
		"prioritizationFeeLamports": "auto",
	}
	var out Swap
	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post("/swap")
	if err := httpx.Decode(serviceName, resp, err, &out); err != nil {
		return Swap{}, fmt.Errorf("jupiter: swap: %w", err)
	}
	if out.SwapTransaction == "" {
		return Swap{}, fmt.Errorf("jupiter: swap: empty transaction")
	}
	c.logger.Debug("swap built",
		slog.String("input", quote.InputMint),
		slog.String("output", quote.OutputMint),
		slog.String("out_amount", quote.OutAmount),
	)
	return out, nil
}
