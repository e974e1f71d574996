// Package sentiment is the client for the external qualitative validation
// service that scores a candidate's news and social footprint.
package sentiment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/platform/httpx"
)

const serviceName = "sentiment"

// Request asks the service to analyse one candidate.
type Request struct {
	TokenAddress      string   `json:"token_address"`
	TokenSymbol       string   `json:"token_symbol,omitempty"`
	DataTypes         []string `json:"data_types"`
	TimeRangeHours    int      `json:"time_range_hours"`
	MaxResults        int      `json:"max_results"`
	SentimentAnalysis bool     `json:"sentiment_analysis"`
}

type analysisData struct {
	SentimentScore float64  `json:"sentiment_score"`
	Confidence     *float64 `json:"confidence"`
	SourceCount    int      `json:"source_count"`
	Patterns       []string `json:"patterns"`
}

type analysisResponse struct {
	Status          string        `json:"status"`
	Data            *analysisData `json:"data"`
	ErrorMessage    string        `json:"error_message"`
	TotalItems      int           `json:"total_items"`
	ExecutionTimeMs int64         `json:"execution_time_ms"`
}

// Client talks to the validation service over REST.
type Client struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	now     func() time.Time
}

// NewClient creates a client for baseURL. apiKey is sent as a bearer token
// when non-empty.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "sentiment_client"))
	h := httpx.NewClient(baseURL, timeout)
	if apiKey != "" {
		h.SetAuthToken(apiKey)
	}
	return &Client{
		http:    h,
		breaker: httpx.NewBreaker(serviceName, logger),
		logger:  logger,
		now:     time.Now,
	}
}

// Analyze scores a candidate. Transport failures and an open breaker are
// reported as *domain.CollaboratorUnavailable; a service-level "error" status
// is a *domain.CandidateError for that candidate only.
func (c *Client) Analyze(ctx context.Context, raw domain.RawOpportunity) (domain.SentimentResult, error) {
	req := Request{
		TokenAddress:      raw.Address,
		TokenSymbol:       raw.Symbol,
		DataTypes:         []string{"news", "social"},
		TimeRangeHours:    24,
		MaxResults:        50,
		SentimentAnalysis: true,
	}

	out, err := httpx.Execute(c.breaker, func() (analysisResponse, error) {
		var body analysisResponse
		resp, err := c.http.R().SetContext(ctx).SetBody(req).Post("/analyze")
		return body, httpx.Decode(serviceName, resp, err, &body)
	})
	if err != nil {
		return domain.SentimentResult{}, &domain.CollaboratorUnavailable{Name: serviceName, Err: err}
	}

	switch {
	case out.Status == "error":
		return domain.SentimentResult{}, &domain.CandidateError{Address: raw.Address, Reason: "sentiment service error: " + out.ErrorMessage}
	case out.Status != "success" || out.Data == nil:
		return domain.SentimentResult{}, &domain.CandidateError{Address: raw.Address, Reason: fmt.Sprintf("unexpected sentiment status %q", out.Status)}
	}

	d := out.Data
	if math.IsNaN(d.SentimentScore) || d.SentimentScore < -1 || d.SentimentScore > 1 {
		return domain.SentimentResult{}, &domain.CandidateError{Address: raw.Address, Reason: fmt.Sprintf("sentiment score %v outside [-1,1]", d.SentimentScore)}
	}

	c.logger.Debug("sentiment analysed",
		slog.String("token", raw.Address),
		slog.Float64("score", d.SentimentScore),
		slog.Int("sources", d.SourceCount),
		slog.Int64("execution_ms", out.ExecutionTimeMs),
	)

	return domain.SentimentResult{
		Score:       d.SentimentScore,
		Confidence:  confidence(d.Confidence, d.SourceCount),
		SourceCount: d.SourceCount,
		Patterns:    d.Patterns,
		AnalyzedAt:  c.now().UTC(),
	}, nil
}

// confidence uses the reported value or, when absent, derives one from the
// number of sources: min(sources/10, 1) * 0.8.
func confidence(reported *float64, sources int) float64 {
	if reported != nil && !math.IsNaN(*reported) {
		return math.Max(0, math.Min(1, *reported))
	}
	return math.Min(float64(sources)/10, 1) * 0.8
}

// Health probes GET /health.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err := httpx.Decode(serviceName, resp, err, nil); err != nil {
		return &domain.CollaboratorUnavailable{Name: serviceName, Err: err}
	}
	return nil
}
