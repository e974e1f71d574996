// Package solanarpc is a rate-limited Solana JSON-RPC client covering the
// handful of methods the bot needs.
package solanarpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/sniperbot/internal/platform/httpx"
)

const serviceName = "solana_rpc"

// Config holds the RPC endpoint settings.
type Config struct {
	URL               string
	Commitment        string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// RPCError is a JSON-RPC level error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Client is a JSON-RPC client bound to one endpoint.
type Client struct {
	http       *resty.Client
	limiter    *rate.Limiter
	commitment string
	nextID     atomic.Uint64
	logger     *slog.Logger
}

// New creates a client. A non-positive RequestsPerSecond disables limiting.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		http:       httpx.NewClient(cfg.URL, cfg.Timeout),
		limiter:    rate.NewLimiter(limit, burst),
		commitment: cfg.Commitment,
		logger:     logger.With(slog.String("component", "solana_rpc")),
	}
}

// Call performs one JSON-RPC request and decodes the result into dst.
func (c *Client) Call(ctx context.Context, method string, dst any, params ...any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("solanarpc: %s: rate limit: %w", method, err)
	}

	req := rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params}
	var out rpcResponse
	resp, err := c.http.R().SetContext(ctx).SetBody(req).Post("")
	if err := httpx.Decode(serviceName, resp, err, &out); err != nil {
		return fmt.Errorf("solanarpc: %s: %w", method, err)
	}
	if out.Error != nil {
		return fmt.Errorf("solanarpc: %s: %w", method, out.Error)
	}
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(out.Result, dst); err != nil {
		return fmt.Errorf("solanarpc: %s: decode result: %w", method, err)
	}
	return nil
}

type contextValue[T any] struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value T `json:"value"`
}

// GetBalance returns the lamport balance of account.
func (c *Client) GetBalance(ctx context.Context, account string) (uint64, error) {
	var out contextValue[uint64]
	err := c.Call(ctx, "getBalance", &out, account, map[string]any{"commitment": c.commitment})
	return out.Value, err
}

// Blockhash is a recent blockhash together with its expiry height.
type Blockhash struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// GetLatestBlockhash returns the most recent blockhash.
func (c *Client) GetLatestBlockhash(ctx context.Context) (Blockhash, error) {
	var out contextValue[Blockhash]
	err := c.Call(ctx, "getLatestBlockhash", &out, map[string]any{"commitment": c.commitment})
	return out.Value, err
}

// SendTransaction submits a base64 encoded signed transaction and returns its
// signature. Node-side retries are disabled so a submission is attempted
// exactly once.
func (c *Client) SendTransaction(ctx context.Context, txBase64 string) (string, error) {
	var sig string
	err := c.Call(ctx, "sendTransaction", &sig, txBase64, map[string]any{
		"encoding":            "base64",
		"skipPreflight":       true,
		"maxRetries":          0,
		"preflightCommitment": c.commitment,
	})
	return sig, err
}

// SignatureStatus is one entry of getSignatureStatuses.
type SignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

// Failed reports whether the transaction landed with an error.
func (s SignatureStatus) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// Confirmed reports whether the transaction reached confirmed or finalized.
func (s SignatureStatus) Confirmed() bool {
	return s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized"
}

// GetSignatureStatuses returns one entry per signature; unknown signatures
// are nil.
func (c *Client) GetSignatureStatuses(ctx context.Context, sigs ...string) ([]*SignatureStatus, error) {
	var out contextValue[[]*SignatureStatus]
	err := c.Call(ctx, "getSignatureStatuses", &out, sigs, map[string]any{"searchTransactionHistory": false})
	return out.Value, err
}

// TokenBalance is a pre/post token balance entry.
type TokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UITokenAmount struct {
		Amount   string   `json:"amount"`
		Decimals int      `json:"decimals"`
		UIAmount *float64 `json:"uiAmount"`
	} `json:"uiTokenAmount"`
}

// AccountKey is a jsonParsed account key.
type AccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

// Instruction is an unparsed jsonParsed instruction. Instructions of programs
// the node can parse carry no accounts here.
type Instruction struct {
	ProgramID string   `json:"programId"`
	Accounts  []string `json:"accounts"`
	Data      string   `json:"data"`
}

// Transaction is the subset of a jsonParsed getTransaction result the
// enricher reads.
type Transaction struct {
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Meta      struct {
		Err               json.RawMessage `json:"err"`
		Fee               uint64          `json:"fee"`
		PreBalances       []uint64        `json:"preBalances"`
		PostBalances      []uint64        `json:"postBalances"`
		PreTokenBalances  []TokenBalance  `json:"preTokenBalances"`
		PostTokenBalances []TokenBalance  `json:"postTokenBalances"`
		LogMessages       []string        `json:"logMessages"`
	} `json:"meta"`
	Transaction struct {
		Signatures []string `json:"signatures"`
		Message    struct {
			AccountKeys  []AccountKey  `json:"accountKeys"`
			Instructions []Instruction `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
}

// GetTransaction fetches a confirmed transaction in jsonParsed form. A
// transaction the node does not know yet yields (nil, nil).
func (c *Client) GetTransaction(ctx context.Context, sig string) (*Transaction, error) {
	var out *Transaction
	err := c.Call(ctx, "getTransaction", &out, sig, map[string]any{
		"encoding":                       "jsonParsed",
		"commitment":                     "confirmed",
		"maxSupportedTransactionVersion": 0,
	})
	return out, err
}

// MintInfo is the parsed SPL mint account.
type MintInfo struct {
	Decimals        int     `json:"decimals"`
	Supply          string  `json:"supply"`
	MintAuthority   *string `json:"mintAuthority"`
	FreezeAuthority *string `json:"freezeAuthority"`
	IsInitialized   bool    `json:"isInitialized"`
}

type accountInfo struct {
	Owner string          `json:"owner"`
	Data  json.RawMessage `json:"data"`
}

type parsedData struct {
	Program string `json:"program"`
	Parsed  struct {
		Type string   `json:"type"`
		Info MintInfo `json:"info"`
	} `json:"parsed"`
}

// GetMintInfo reads a mint account with jsonParsed encoding, decoding the
// raw layout when the node returns it unparsed.
func (c *Client) GetMintInfo(ctx context.Context, mint string) (MintInfo, error) {
	var out contextValue[*accountInfo]
	if err := c.Call(ctx, "getAccountInfo", &out, mint, map[string]any{
		"encoding":   "jsonParsed",
		"commitment": c.commitment,
	}); err != nil {
		return MintInfo{}, err
	}
	if out.Value == nil {
		return MintInfo{}, fmt.Errorf("solanarpc: getAccountInfo %s: account not found", mint)
	}
	return decodeAccountData(mint, out.Value.Data)
}

// Health calls getHealth.
func (c *Client) Health(ctx context.Context) error {
	var status string
	if err := c.Call(ctx, "getHealth", &status); err != nil {
		return err
	}
	if status != "ok" {
		return fmt.Errorf("solanarpc: node health %q", status)
	}
	return nil
}
