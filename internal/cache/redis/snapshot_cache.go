package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// snapshotIndexKey is a hash of snapshot key to last write time in unix
// milliseconds.
const snapshotIndexKey = "snapshot:updated"

// SnapshotCache keeps JSON documents under plain string keys such as
// "pipeline_stats" so dashboards can GET them directly.
type SnapshotCache struct {
	rdb *redis.Client
	now func() time.Time
}

func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying(), now: time.Now}
}

// SetSnapshot stores v as JSON and stamps the write time in one
// transaction. A zero ttl keeps the document until it is overwritten.
func (s *SnapshotCache) SetSnapshot(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: snapshot %s: %w", key, err)
	}
	stamp := strconv.FormatInt(s.now().UnixMilli(), 10)
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, data, ttl)
		p.HSet(ctx, snapshotIndexKey, key, stamp)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: write snapshot %s: %w", key, err)
	}
	return nil
}

// GetSnapshot decodes the document at key into dst, or returns
// domain.ErrNotFound.
func (s *SnapshotCache) GetSnapshot(ctx context.Context, key string, dst any) error {
	data, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return domain.ErrNotFound
	case err != nil:
		return fmt.Errorf("redis: read snapshot %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("redis: decode snapshot %s: %w", key, err)
	}
	return nil
}

// SnapshotUpdated returns when key was last written. A document that
// expired still reports its last write.
func (s *SnapshotCache) SnapshotUpdated(ctx context.Context, key string) (time.Time, error) {
	ms, err := s.rdb.HGet(ctx, snapshotIndexKey, key).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return time.Time{}, domain.ErrNotFound
	case err != nil:
		return time.Time{}, fmt.Errorf("redis: snapshot time %s: %w", key, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

var _ domain.SnapshotCache = (*SnapshotCache)(nil)
