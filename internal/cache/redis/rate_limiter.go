package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// minWaitStep keeps Wait from spinning when the window frees up within
// microseconds.
const minWaitStep = 10 * time.Millisecond

// RateLimiter is a sliding-window limiter whose window lives in Redis, so
// every bot process sharing a key (the sentiment service, the status API)
// draws from one budget.
type RateLimiter struct {
	rdb    *redis.Client
	script *redis.Script
	now    func() time.Time
}

func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:    c.Underlying(),
		script: redis.NewScript(slidingWindowLua),
		now:    time.Now,
	}
}

// admission is one script verdict.
type admission struct {
	allowed    bool
	inWindow   int64
	retryAfter time.Duration
}

func (rl *RateLimiter) admit(ctx context.Context, key string, limit int, window time.Duration) (admission, error) {
	if limit <= 0 {
		return admission{}, fmt.Errorf("redis: rate limit %s: limit %d must be positive", key, limit)
	}
	if window <= 0 {
		return admission{}, fmt.Errorf("redis: rate limit %s: window must be positive", key)
	}

	res, err := rl.script.Run(ctx, rl.rdb,
		[]string{"ratelimit:" + key},
		rl.now().UnixMicro(), window.Microseconds(), limit,
	).Int64Slice()
	if err != nil {
		return admission{}, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) != 3 {
		return admission{}, fmt.Errorf("redis: rate limit %s: script returned %d values", key, len(res))
	}
	return admission{
		allowed:    res[0] == 1,
		inWindow:   res[1],
		retryAfter: time.Duration(res[2]) * time.Microsecond,
	}, nil
}

// Allow counts one request against key and reports whether it fit.
// Rejected requests are not counted.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	a, err := rl.admit(ctx, key, limit, window)
	return a.allowed, err
}

// Wait blocks until key admits one request, sleeping for the time until the
// oldest request in the window expires.
func (rl *RateLimiter) Wait(ctx context.Context, key string, limit int, window time.Duration) error {
	for {
		a, err := rl.admit(ctx, key, limit, window)
		if err != nil {
			return err
		}
		if a.allowed {
			return nil
		}

		t := time.NewTimer(max(a.retryAfter, minWaitStep))
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("redis: rate limit %s: %w", key, ctx.Err())
		case <-t.C:
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
