// Package scanner fetches quantitative candidates from the market scanner
// service.
package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/platform/httpx"
)

const serviceName = "scanner"

// Client is the scanner REST client.
type Client struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewClient creates a scanner client for baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "scanner_client"))
	return &Client{
		http:    httpx.NewClient(baseURL, timeout),
		breaker: httpx.NewBreaker(serviceName, logger),
		logger:  logger,
	}
}

type batch struct {
	Opportunities []json.RawMessage `json:"opportunities"`
}

// Fetch returns up to limit candidates. Records that fail strict decoding are
// logged and dropped; the rest of the batch is still returned.
func (c *Client) Fetch(ctx context.Context, limit int) ([]domain.RawOpportunity, error) {
	b, err := httpx.Execute(c.breaker, func() (batch, error) {
		var out batch
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("limit", strconv.Itoa(limit)).
			Get("/opportunities")
		return out, httpx.Decode(serviceName, resp, err, &out)
	})
	if err != nil {
		return nil, &domain.CollaboratorUnavailable{Name: serviceName, Err: err}
	}

	opps := make([]domain.RawOpportunity, 0, len(b.Opportunities))
	for i, rec := range b.Opportunities {
		raw, err := domain.DecodeRawOpportunity("scanner#"+strconv.Itoa(i), rec)
		if err != nil {
			var ce *domain.CandidateError
			if errors.As(err, &ce) {
				c.logger.Warn("dropping malformed scanner record", slog.String("error", err.Error()))
				continue
			}
			return nil, err
		}
		if raw.Source == "" {
			raw.Source = serviceName
		}
		opps = append(opps, raw)
		if limit > 0 && len(opps) == limit {
			break
		}
	}
	return opps, nil
}

// Health probes GET /health.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err := httpx.Decode(serviceName, resp, err, nil); err != nil {
		return &domain.CollaboratorUnavailable{Name: serviceName, Err: err}
	}
	return nil
}
