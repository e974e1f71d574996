// Package httpx holds the shared REST plumbing for outbound collaborators:
// resty client construction, status-code errors and circuit breaking.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// StatusError is a non-2xx reply from a collaborator.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("%s: http %d: %s", e.Service, e.Code, body)
}

// Temporary reports whether the status is worth counting against the
// collaborator's health.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// NewClient returns a resty client for baseURL with JSON headers.
func NewClient(baseURL string, timeout time.Duration) *resty.Client {
	c := resty.New()
	c.SetBaseURL(baseURL)
	c.SetTimeout(timeout)
	c.SetHeader("Accept", "application/json")
	c.SetHeader("Content-Type", "application/json")
	return c
}

// Decode checks the response status and unmarshals the body into dst. A nil
// dst only checks the status.
func Decode(service string, resp *resty.Response, err error, dst any) error {
	if err != nil {
		return fmt.Errorf("%s: request: %w", service, err)
	}
	if resp.IsError() {
		return &StatusError{Service: service, Code: resp.StatusCode(), Body: resp.String()}
	}
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), dst); err != nil {
		return fmt.Errorf("%s: decode response: %w", service, err)
	}
	return nil
}

// NewBreaker returns a breaker that trips after three consecutive failures or
// a failure ratio above 5% over at least 20 requests, and probes again after
// a minute.
func NewBreaker(name string, logger *slog.Logger) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
		IsSuccessful: countsAsSuccess,
	}
	if logger != nil {
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		}
	}
	return gobreaker.NewCircuitBreaker(st)
}

// countsAsSuccess keeps caller cancellations and client-side rejections from
// tripping the breaker.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return !se.Temporary()
	}
	var ce *domain.CandidateError
	return errors.As(err, &ce)
}

// Execute runs fn through cb. An open breaker surfaces as
// domain.ErrBreakerOpen.
func Execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	out, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, fmt.Errorf("%s: %w", cb.Name(), domain.ErrBreakerOpen)
	}
	v, _ := out.(T)
	return v, err
}
