// Package jito submits transaction bundles to a Jito block engine.
package jito

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/platform/solanarpc"
)

// BundlePath is the block engine's JSON-RPC path for bundle methods.
const BundlePath = "/api/v1/bundles"

// Client is a block-engine bundle client. The block engine speaks the same
// JSON-RPC envelope as a validator, so calls go through solanarpc.Client.
type Client struct {
	rpc    *solanarpc.Client
	logger *slog.Logger
}

// New creates a client for the block engine at baseURL. Block engines limit
// unauthenticated callers to a few requests per second.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	url := strings.TrimRight(baseURL, "/")
	url = strings.TrimSuffix(url, "/api/v1")
	return &Client{
		rpc: solanarpc.New(solanarpc.Config{
			URL:               url + BundlePath,
			RequestsPerSecond: 5,
			Burst:             2,
			Timeout:           timeout,
		}, logger),
		logger: logger.With(slog.String("component", "jito_client")),
	}
}

// SendBundle submits base64 encoded signed transactions as one atomic bundle
// and returns the bundle id.
func (c *Client) SendBundle(ctx context.Context, txs []string) (string, error) {
	if len(txs) == 0 || len(txs) > 5 {
		return "", fmt.Errorf("jito: bundle must hold 1-5 transactions, got %d", len(txs))
	}
	var id string
	if err := c.rpc.Call(ctx, "sendBundle", &id, txs, map[string]any{"encoding": "base64"}); err != nil {
		return "", fmt.Errorf("jito: %w", err)
	}
	c.logger.Debug("bundle sent", slog.String("bundle_id", id), slog.Int("txs", len(txs)))
	return id, nil
}

type inflightEntry struct {
	BundleID   string  `json:"bundle_id"`
	Status     string  `json:"status"`
	LandedSlot *uint64 `json:"landed_slot"`
}

// InflightStatus maps the block engine's in-flight view of a bundle onto
// domain.BundleStatus. Bundles the engine no longer knows are Dropped.
func (c *Client) InflightStatus(ctx context.Context, bundleID string) (domain.BundleStatus, error) {
	var out struct {
		Value []inflightEntry `json:"value"`
	}
	if err := c.rpc.Call(ctx, "getInflightBundleStatuses", &out, []string{bundleID}); err != nil {
		return "", fmt.Errorf("jito: %w", err)
	}
	if len(out.Value) == 0 {
		return domain.BundlePending, nil
	}
	switch out.Value[0].Status {
	case "Landed":
		return domain.BundleLanded, nil
	case "Failed":
		return domain.BundleFailed, nil
	case "Invalid":
		return domain.BundleDropped, nil
	default:
		return domain.BundlePending, nil
	}
}

// BundleResult is a landed bundle as reported by getBundleStatuses.
type BundleResult struct {
	BundleID           string          `json:"bundle_id"`
	Transactions       []string        `json:"transactions"`
	Slot               uint64          `json:"slot"`
	ConfirmationStatus string          `json:"confirmation_status"`
	Err                json.RawMessage `json:"err"`
}

// Failed reports whether the bundle landed with an error.
func (r BundleResult) Failed() bool {
	s := strings.ReplaceAll(string(r.Err), " ", "")
	return s != "" && s != "null" && s != `{"Ok":null}`
}

// GetBundleStatuses returns the landed status of bundleID, or nil when the
// bundle has not landed.
func (c *Client) GetBundleStatuses(ctx context.Context, bundleID string) (*BundleResult, error) {
	var out struct {
		Value []*BundleResult `json:"value"`
	}
	if err := c.rpc.Call(ctx, "getBundleStatuses", &out, []string{bundleID}); err != nil {
		return nil, fmt.Errorf("jito: %w", err)
	}
	if len(out.Value) == 0 {
		return nil, nil
	}
	return out.Value[0], nil
}

// TipAccounts asks the block engine for its current tip accounts.
func (c *Client) TipAccounts(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.rpc.Call(ctx, "getTipAccounts", &out); err != nil {
		return nil, fmt.Errorf("jito: %w", err)
	}
	return out, nil
}
