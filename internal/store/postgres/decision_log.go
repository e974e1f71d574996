package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// DecisionLog implements domain.DecisionLog. Rows are never updated.
type DecisionLog struct {
	pool *pgxpool.Pool
}

// NewDecisionLog creates a new DecisionLog backed by the given pool.
func NewDecisionLog(pool *pgxpool.Pool) *DecisionLog {
	return &DecisionLog{pool: pool}
}

// Append inserts d. Appending the same decision id twice is a no-op.
func (l *DecisionLog) Append(ctx context.Context, d domain.TradingDecision) error {
	doc, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("postgres: marshal decision %s: %w", d.ID, err)
	}

	const query = `
		INSERT INTO decisions (
			id, opportunity_address, decision_type, confidence, priority,
			reasoning, doc, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	_, err = l.pool.Exec(ctx, query,
		d.ID, d.OpportunityAddress, string(d.Type), d.Confidence, d.Priority,
		d.Reasoning, doc, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append decision %s: %w", d.ID, err)
	}
	return nil
}

// ListRecent returns decisions newest first. opts.Filter selects one
// opportunity address.
func (l *DecisionLog) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.TradingDecision, error) {
	query, args := decisionList.build(opts)
	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list decisions: %w", err)
	}
	defer rows.Close()
	return scanDecisionRows(rows)
}

// ListBefore returns every decision created strictly before the cutoff.
func (l *DecisionLog) ListBefore(ctx context.Context, before time.Time) ([]domain.TradingDecision, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT doc FROM decisions WHERE created_at < $1 ORDER BY created_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list decisions before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return scanDecisionRows(rows)
}

func scanDecisionRows(rows pgx.Rows) ([]domain.TradingDecision, error) {
	var out []domain.TradingDecision
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("postgres: scan decision: %w", err)
		}
		var d domain.TradingDecision
		if err := json.Unmarshal(doc, &d); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal decision: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: decision rows: %w", err)
	}
	return out, nil
}

var _ domain.DecisionLog = (*DecisionLog)(nil)
