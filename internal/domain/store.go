package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries. Filter
// matches each store's natural key: the token mint for executions, the
// opportunity address for decisions and an event-name prefix for audit.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
	Filter string
}

// ExecutionRecord is a settled or failed order together with its result.
type ExecutionRecord struct {
	Order     Order           `json:"order"`
	Result    ExecutionResult `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
}

// ExecutionStore persists execution outcomes durably.
type ExecutionStore interface {
	Record(ctx context.Context, o Order, r ExecutionResult) error
	ListRecent(ctx context.Context, opts ListOpts) ([]ExecutionRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]ExecutionRecord, error)
}

// DecisionLog is the append-only durable decision log.
type DecisionLog interface {
	Append(ctx context.Context, d TradingDecision) error
	ListRecent(ctx context.Context, opts ListOpts) ([]TradingDecision, error)
	ListBefore(ctx context.Context, before time.Time) ([]TradingDecision, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore provides an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
