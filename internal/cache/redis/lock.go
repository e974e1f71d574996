package redis

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

const releaseTimeout = 5 * time.Second

// releaseLua is compare-and-delete: a holder whose lease already expired
// cannot drop the lock a successor took.
var releaseLua = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= ARGV[1] then
    return 0
end
return redis.call('DEL', KEYS[1])
`)

// LockManager hands out leases on "lock:{key}". The sniper and the decision
// consumer both lease token:{mint} before submitting, so one mint is never
// bought twice at once. A lease ends when released or when its TTL lapses.
type LockManager struct {
	rdb   *redis.Client
	owner string
}

func NewLockManager(c *Client) *LockManager {
	host, _ := os.Hostname()
	return &LockManager{
		rdb:   c.Underlying(),
		owner: fmt.Sprintf("%s/%d", host, os.Getpid()),
	}
}

func lockKey(key string) string { return "lock:" + key }

// lease is one successful acquisition. Its value names the holding process
// so a stuck lock can be traced with GET.
type lease struct {
	rdb   *redis.Client
	key   string
	value string
	once  sync.Once
}

func (l *lease) release() {
	l.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		_ = releaseLua.Run(ctx, l.rdb, []string{l.key}, l.value).Err()
	})
}

// Acquire leases key for ttl, or fails with domain.ErrLockHeld. The returned
// release func is idempotent and does not use ctx, so it still runs after
// the caller's context is cancelled.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("redis: lock %s: ttl must be positive", key)
	}

	l := &lease{
		rdb:   lm.rdb,
		key:   lockKey(key),
		value: lm.owner + "/" + uuid.NewString(),
	}
	ok, err := lm.rdb.SetNX(ctx, l.key, l.value, ttl).Result()
	switch {
	case err != nil:
		return nil, fmt.Errorf("redis: lock %s: %w", key, err)
	case !ok:
		return nil, domain.ErrLockHeld
	}
	return l.release, nil
}

var _ domain.LockManager = (*LockManager)(nil)
