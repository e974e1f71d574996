package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// StateStore implements domain.StateStore over plain Redis strings, lists,
// and sets.
type StateStore struct {
	rdb *redis.Client
}

// NewStateStore creates a StateStore backed by the given Client.
func NewStateStore(c *Client) *StateStore {
	return &StateStore{rdb: c.Underlying()}
}

// Get returns the value at key, or domain.ErrNotFound.
func (s *StateStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return data, nil
}

// Set writes value at key. A zero ttl keeps the key forever.
func (s *StateStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *StateStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: del %s: %w", key, err)
	}
	return nil
}

// ListPush appends values to the tail of the list and returns its new length.
func (s *StateStore) ListPush(ctx context.Context, key string, values ...string) (int64, error) {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	n, err := s.rdb.RPush(ctx, key, args...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: rpush %s: %w", key, err)
	}
	return n, nil
}

// ListRange returns list elements between start and stop inclusive.
func (s *StateStore) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := s.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: lrange %s: %w", key, err)
	}
	return vals, nil
}

// ListLen returns the list length; a missing list has length zero.
func (s *StateStore) ListLen(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: llen %s: %w", key, err)
	}
	return n, nil
}

// SetAdd adds members and returns how many were not already present.
func (s *StateStore) SetAdd(ctx context.Context, key string, members ...string) (int64, error) {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	n, err := s.rdb.SAdd(ctx, key, args...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: sadd %s: %w", key, err)
	}
	return n, nil
}

// SetContains reports set membership.
func (s *StateStore) SetContains(ctx context.Context, key, member string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("redis: sismember %s: %w", key, err)
	}
	return ok, nil
}

// SetMembers returns every member of the set.
func (s *StateStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	vals, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: smembers %s: %w", key, err)
	}
	return vals, nil
}

// Ping checks store connectivity.
func (s *StateStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

var _ domain.StateStore = (*StateStore)(nil)
