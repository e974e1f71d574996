package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PositionBook implements domain.PositionBook as a sorted set of token
// addresses scored by the Unix millisecond at which the hold expires.
// Expired members are pruned before every read.
type PositionBook struct {
	rdb *redis.Client
	now func() time.Time
}

// NewPositionBook creates a PositionBook backed by the given Client.
func NewPositionBook(c *Client) *PositionBook {
	return &PositionBook{rdb: c.Underlying(), now: time.Now}
}

// Open records a position on token that lapses after hold.
func (p *PositionBook) Open(ctx context.Context, token string, hold time.Duration) error {
	expires := p.now().Add(hold).UnixMilli()
	if err := p.rdb.ZAdd(ctx, domain.KeyOpenPositions, redis.Z{Score: float64(expires), Member: token}).Err(); err != nil {
		return fmt.Errorf("redis: open position %s: %w", token, err)
	}
	return nil
}

// Close removes the position on token.
func (p *PositionBook) Close(ctx context.Context, token string) error {
	if err := p.rdb.ZRem(ctx, domain.KeyOpenPositions, token).Err(); err != nil {
		return fmt.Errorf("redis: close position %s: %w", token, err)
	}
	return nil
}

// Count returns the number of unexpired positions.
func (p *PositionBook) Count(ctx context.Context) (int, error) {
	if err := p.prune(ctx); err != nil {
		return 0, err
	}
	n, err := p.rdb.ZCard(ctx, domain.KeyOpenPositions).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: count positions: %w", err)
	}
	return int(n), nil
}

// List returns unexpired positions ordered by expiry.
func (p *PositionBook) List(ctx context.Context) ([]string, error) {
	if err := p.prune(ctx); err != nil {
		return nil, err
	}
	vals, err := p.rdb.ZRange(ctx, domain.KeyOpenPositions, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list positions: %w", err)
	}
	return vals, nil
}

func (p *PositionBook) prune(ctx context.Context) error {
	cutoff := strconv.FormatInt(p.now().UnixMilli(), 10)
	if err := p.rdb.ZRemRangeByScore(ctx, domain.KeyOpenPositions, "-inf", cutoff).Err(); err != nil {
		return fmt.Errorf("redis: prune positions: %w", err)
	}
	return nil
}

var _ domain.PositionBook = (*PositionBook)(nil)
