package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DecisionQueue implements domain.DecisionQueue.
//
// Key schema:
//
//	trading_decisions_queue   - list of JSON decisions, RPUSH in / LPOP out
//	trading_decision:{addr}   - latest decision for an address, expires after ttl
type DecisionQueue struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewDecisionQueue creates a DecisionQueue. Decisions older than ttl are
// discarded on dequeue; a zero ttl keeps them indefinitely.
func NewDecisionQueue(c *Client, ttl time.Duration) *DecisionQueue {
	return &DecisionQueue{rdb: c.Underlying(), ttl: ttl, now: time.Now}
}

func decisionKey(addr string) string { return domain.PrefixDecision + addr }

// Enqueue appends d to the tail of the queue and records it under its
// opportunity address in one transaction.
func (q *DecisionQueue) Enqueue(ctx context.Context, d domain.TradingDecision) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("redis: enqueue decision: %w", err)
	}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("redis: marshal decision %s: %w", d.ID, err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, decisionKey(d.OpportunityAddress), data, q.ttl)
	pipe.RPush(ctx, domain.KeyDecisionQueue, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: enqueue decision %s: %w", d.ID, err)
	}
	return nil
}

// Dequeue pops the oldest live decision. Expired entries are dropped. It
// returns domain.ErrNotFound when the queue is empty.
func (q *DecisionQueue) Dequeue(ctx context.Context) (domain.TradingDecision, error) {
	for {
		data, err := q.rdb.LPop(ctx, domain.KeyDecisionQueue).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return domain.TradingDecision{}, domain.ErrNotFound
			}
			return domain.TradingDecision{}, fmt.Errorf("redis: dequeue decision: %w", err)
		}

		var d domain.TradingDecision
		if err := json.Unmarshal(data, &d); err != nil {
			return domain.TradingDecision{}, fmt.Errorf("redis: unmarshal decision: %w", err)
		}
		if q.ttl > 0 && q.now().Sub(d.CreatedAt) > q.ttl {
			continue
		}
		return d, nil
	}
}

// Peek returns up to n decisions from the head without removing them.
// Entries that fail to decode are skipped.
func (q *DecisionQueue) Peek(ctx context.Context, n int) ([]domain.TradingDecision, error) {
	if n <= 0 {
		return nil, nil
	}
	vals, err := q.rdb.LRange(ctx, domain.KeyDecisionQueue, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: peek decisions: %w", err)
	}

	out := make([]domain.TradingDecision, 0, len(vals))
	for _, v := range vals {
		var d domain.TradingDecision
		if err := json.Unmarshal([]byte(v), &d); err != nil {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// Len returns the number of queued decisions.
func (q *DecisionQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, domain.KeyDecisionQueue).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: decision queue len: %w", err)
	}
	return n, nil
}

// Lookup returns the latest decision recorded for an opportunity address.
func (q *DecisionQueue) Lookup(ctx context.Context, addr string) (domain.TradingDecision, error) {
	data, err := q.rdb.Get(ctx, decisionKey(addr)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.TradingDecision{}, domain.ErrNotFound
		}
		return domain.TradingDecision{}, fmt.Errorf("redis: get decision %s: %w", addr, err)
	}
	var d domain.TradingDecision
	if err := json.Unmarshal(data, &d); err != nil {
		return domain.TradingDecision{}, fmt.Errorf("redis: unmarshal decision %s: %w", addr, err)
	}
	return d, nil
}

var _ domain.DecisionQueue = (*DecisionQueue)(nil)
