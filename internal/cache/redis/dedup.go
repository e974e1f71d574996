package redis

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DedupSet implements domain.DedupSet on a single Redis set. SADD returning 1
// is the atomic claim: of any number of concurrent callers exactly one sees
// it. Members never expire; Reset starts a new epoch.
type DedupSet struct {
	rdb *redis.Client
	key string
}

// NewDedupSet creates a DedupSet stored at key. An empty key selects
// domain.KeyProcessedTokens.
func NewDedupSet(c *Client, key string) *DedupSet {
	if key == "" {
		key = domain.KeyProcessedTokens
	}
	return &DedupSet{rdb: c.Underlying(), key: key}
}

// Claim marks address as processed. It returns false if it already was.
func (d *DedupSet) Claim(ctx context.Context, address string) (bool, error) {
	n, err := d.rdb.SAdd(ctx, d.key, address).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim %s: %w", address, err)
	}
	return n == 1, nil
}

// Release gives up a claim so the address can be retried in a later cycle.
func (d *DedupSet) Release(ctx context.Context, address string) error {
	if err := d.rdb.SRem(ctx, d.key, address).Err(); err != nil {
		return fmt.Errorf("redis: release %s: %w", address, err)
	}
	return nil
}

// Contains reports whether address has been claimed this epoch.
func (d *DedupSet) Contains(ctx context.Context, address string) (bool, error) {
	ok, err := d.rdb.SIsMember(ctx, d.key, address).Result()
	if err != nil {
		return false, fmt.Errorf("redis: contains %s: %w", address, err)
	}
	return ok, nil
}

// Size returns the number of claimed addresses.
func (d *DedupSet) Size(ctx context.Context) (int64, error) {
	n, err := d.rdb.SCard(ctx, d.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: dedup size: %w", err)
	}
	return n, nil
}

// Reset clears every claim.
func (d *DedupSet) Reset(ctx context.Context) error {
	if err := d.rdb.Del(ctx, d.key).Err(); err != nil {
		return fmt.Errorf("redis: dedup reset: %w", err)
	}
	return nil
}

var _ domain.DedupSet = (*DedupSet)(nil)
