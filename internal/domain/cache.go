package domain

import (
	"context"
	"time"
)

// Shared state store keys.
const (
	KeyRawOpportunities  = "all_raw_opportunities"
	KeyProcessedTokens   = "processed_tokens"
	KeyDecisionQueue     = "trading_decisions_queue"
	KeyNewTokenQueue     = "new_token_queue"
	KeyPipelineStats     = "pipeline_stats"
	KeyDashboardStats    = "dashboard:stats"
	KeyOpenPositions     = "open_positions"
	ChannelNewTokens     = "new_tokens"
	StreamExecutions     = "executions"
	PrefixRawOpportunity = "raw_opportunity:"
	PrefixValidated      = "validated_opportunity:"
	PrefixDecision       = "trading_decision:"
	PrefixNewTokenOpp    = "new_token_opportunity:"
	PrefixTokenLock      = "token:"
)

// StateStore is the key/list/set surface of the shared store.
type StateStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	ListPush(ctx context.Context, key string, values ...string) (int64, error)
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ListLen(ctx context.Context, key string) (int64, error)
	SetAdd(ctx context.Context, key string, members ...string) (int64, error)
	SetContains(ctx context.Context, key, member string) (bool, error)
	SetMembers(ctx context.Context, key string) ([]string, error)
	Ping(ctx context.Context) error
}

// DedupSet guarantees at-most-once processing of a token address per epoch.
// Claim is an atomic check-and-set; a false result means another processor
// already owns the address.
type DedupSet interface {
	Claim(ctx context.Context, address string) (bool, error)
	Release(ctx context.Context, address string) error
	Contains(ctx context.Context, address string) (bool, error)
	Size(ctx context.Context) (int64, error)
	Reset(ctx context.Context) error
}

// DecisionQueue is the FIFO, producer-append-only trading decision queue.
type DecisionQueue interface {
	Enqueue(ctx context.Context, d TradingDecision) error
	Dequeue(ctx context.Context) (TradingDecision, error)
	Peek(ctx context.Context, n int) ([]TradingDecision, error)
	Len(ctx context.Context) (int64, error)
}

// PositionBook tracks open positions with a maximum hold time.
type PositionBook interface {
	Open(ctx context.Context, token string, hold time.Duration) error
	Close(ctx context.Context, token string) error
	Count(ctx context.Context) (int, error)
	List(ctx context.Context) ([]string, error)
}

// SnapshotCache stores JSON snapshots for read-only status surfaces.
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, key string, v any, ttl time.Duration) error
	GetSnapshot(ctx context.Context, key string, dst any) error
	SnapshotUpdated(ctx context.Context, key string) (time.Time, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
