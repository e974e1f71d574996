package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/eventlog"
)

// Submitter executes an order.
type Submitter interface {
	Submit(ctx context.Context, o domain.Order) (domain.ExecutionResult, error)
}

// ConsumerConfig tunes the decision consumer.
type ConsumerConfig struct {
	Interval     time.Duration
	BatchSize    int
	LockTTL      time.Duration
	PositionHold time.Duration
}

// ConsumerStats counts consumer outcomes.
type ConsumerStats struct {
	Processed int64 `json:"processed"`
	Executed  int64 `json:"executed"`
	Skipped   int64 `json:"skipped"`
	Failed    int64 `json:"failed"`
}

// DecisionConsumer drains the trading decision queue and executes the
// executable decisions under the per-token lock shared with the reflex path.
type DecisionConsumer struct {
	cfg       ConsumerConfig
	queue     domain.DecisionQueue
	locks     domain.LockManager
	positions domain.PositionBook
	portfolio *Portfolio
	submitter Submitter
	events    *eventlog.Log
	logger    *slog.Logger

	processed atomic.Int64
	executed  atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

// NewDecisionConsumer creates a consumer. portfolio and events may be nil.
func NewDecisionConsumer(
	cfg ConsumerConfig,
	queue domain.DecisionQueue,
	locks domain.LockManager,
	positions domain.PositionBook,
	portfolio *Portfolio,
	submitter Submitter,
	events *eventlog.Log,
	logger *slog.Logger,
) *DecisionConsumer {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.PositionHold <= 0 {
		cfg.PositionHold = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DecisionConsumer{
		cfg:       cfg,
		queue:     queue,
		locks:     locks,
		positions: positions,
		portfolio: portfolio,
		submitter: submitter,
		events:    events,
		logger:    logger.With(slog.String("component", "decision_consumer")),
	}
}

// Run drains the queue every interval until ctx is cancelled.
func (c *DecisionConsumer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.logger.InfoContext(ctx, "decision consumer started", slog.Duration("interval", c.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "decision consumer stopped")
			return nil
		case <-ticker.C:
			if _, err := c.Drain(ctx); err != nil && ctx.Err() == nil {
				c.logger.WarnContext(ctx, "drain decision queue failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Drain handles up to one batch of queued decisions and returns how many
// were popped.
func (c *DecisionConsumer) Drain(ctx context.Context) (int, error) {
	n := 0
	for n < c.cfg.BatchSize {
		d, err := c.queue.Dequeue(ctx)
		if errors.Is(err, domain.ErrNotFound) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("execution: consumer: %w", err)
		}
		n++
		c.handle(ctx, d)
	}
	return n, nil
}

func (c *DecisionConsumer) handle(ctx context.Context, d domain.TradingDecision) {
	c.processed.Add(1)

	o, ok := DecisionToOrder(d)
	if !ok {
		c.skipped.Add(1)
		c.logger.DebugContext(ctx, "decision not executable",
			slog.String("decision_id", d.ID),
			slog.String("type", string(d.Type)),
		)
		return
	}

	if c.portfolio != nil && !c.portfolio.StrategyEnabled(o.Strategy) {
		c.skipped.Add(1)
		c.logger.InfoContext(ctx, "strategy below balance tier",
			slog.String("decision_id", d.ID),
			slog.String("strategy", o.Strategy),
		)
		return
	}

	unlock, err := c.locks.Acquire(ctx, domain.PrefixTokenLock+o.Token, c.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			c.skipped.Add(1)
			c.logger.InfoContext(ctx, "token locked by another executor", slog.String("token", o.Token))
			return
		}
		c.failed.Add(1)
		c.logger.WarnContext(ctx, "acquire token lock failed",
			slog.String("token", o.Token), slog.String("error", err.Error()))
		return
	}
	defer unlock()

	if _, err := c.submitter.Submit(ctx, o); err != nil {
		c.failed.Add(1)
		return
	}
	c.executed.Add(1)

	if err := c.positions.Open(ctx, o.Token, c.cfg.PositionHold); err != nil {
		c.logger.WarnContext(ctx, "record position failed",
			slog.String("token", o.Token), slog.String("error", err.Error()))
	}
	if c.events != nil {
		c.events.Append(eventlog.Event{
			Kind:    eventlog.KindDecision,
			Token:   o.Token,
			Message: fmt.Sprintf("decision %s executed", d.ID),
		})
	}
}

// Stats returns a snapshot of the consumer counters.
func (c *DecisionConsumer) Stats() ConsumerStats {
	return ConsumerStats{
		Processed: c.processed.Load(),
		Executed:  c.executed.Load(),
		Skipped:   c.skipped.Load(),
		Failed:    c.failed.Load(),
	}
}
