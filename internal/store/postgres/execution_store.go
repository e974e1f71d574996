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

// ExecutionStore implements domain.ExecutionStore. Each order keeps one row;
// re-recording an order id updates it in place.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore backed by the given pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Record upserts the order together with its execution result.
func (s *ExecutionStore) Record(ctx context.Context, o domain.Order, r domain.ExecutionResult) error {
	orderDoc, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("postgres: marshal order %s: %w", o.ID, err)
	}
	resultDoc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("postgres: marshal result %s: %w", o.ID, err)
	}

	const query = `
		INSERT INTO executions (
			order_id, token, side, strategy, size_sol, status, path,
			success, dry_run, mev_protected, signature, bundle_id,
			decision_id, error, order_doc, result_doc, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, NULLIF($11, ''), NULLIF($12, ''),
			NULLIF($13, ''), NULLIF($14, ''), $15, $16, $17, NOW()
		)
		ON CONFLICT (order_id) DO UPDATE SET
			status = EXCLUDED.status,
			path = EXCLUDED.path,
			success = EXCLUDED.success,
			mev_protected = EXCLUDED.mev_protected,
			signature = EXCLUDED.signature,
			bundle_id = EXCLUDED.bundle_id,
			error = EXCLUDED.error,
			order_doc = EXCLUDED.order_doc,
			result_doc = EXCLUDED.result_doc,
			updated_at = NOW()`

	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx, query,
		o.ID, o.Token, string(o.Side), o.Strategy, o.Size, string(r.Status), string(r.Path),
		r.Success, r.DryRun, r.MevProtected, r.Signature, r.BundleID,
		o.DecisionID, r.Error, orderDoc, resultDoc, createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record execution %s: %w", o.ID, err)
	}
	return nil
}

// ListRecent returns executions newest first. opts.Filter selects one token.
func (s *ExecutionStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.ExecutionRecord, error) {
	query, args := executionList.build(opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()
	return scanExecutionRows(rows)
}

// ListBefore returns every execution created strictly before the cutoff.
func (s *ExecutionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ExecutionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT order_doc, result_doc, created_at FROM executions
		 WHERE created_at < $1 ORDER BY created_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return scanExecutionRows(rows)
}

func scanExecutionRows(rows pgx.Rows) ([]domain.ExecutionRecord, error) {
	var out []domain.ExecutionRecord
	for rows.Next() {
		var orderDoc, resultDoc []byte
		var rec domain.ExecutionRecord
		if err := rows.Scan(&orderDoc, &resultDoc, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		if err := json.Unmarshal(orderDoc, &rec.Order); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal order doc: %w", err)
		}
		if err := json.Unmarshal(resultDoc, &rec.Result); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal result doc: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: execution rows: %w", err)
	}
	return out, nil
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)
