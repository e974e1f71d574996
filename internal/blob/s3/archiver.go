package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"

	// maxArchiveRuns bounds the suffixes tried for one month's archive.
	maxArchiveRuns = 100
)

// ExecutionArchiveSource lists executions older than a cutoff.
type ExecutionArchiveSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ExecutionRecord, error)
}

// DecisionArchiveSource lists decisions older than a cutoff.
type DecisionArchiveSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.TradingDecision, error)
}

// ArchiveImpl implements domain.Archiver. Records are written as JSONL to
// archive/{kind}/YYYY-MM.jsonl; later runs in the same month write
// YYYY-MM-2.jsonl, YYYY-MM-3.jsonl and so on instead of overwriting.
type ArchiveImpl struct {
	writer     domain.BlobWriter
	stat       domain.BlobStat
	executions ExecutionArchiveSource
	decisions  DecisionArchiveSource
	audit      domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl. stat may be nil, in which case
// existing objects are overwritten.
func NewArchiver(
	writer domain.BlobWriter,
	stat domain.BlobStat,
	executions ExecutionArchiveSource,
	decisions DecisionArchiveSource,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:     writer,
		stat:       stat,
		executions: executions,
		decisions:  decisions,
		audit:      audit,
	}
}

// ArchiveExecutions uploads every execution recorded before the cutoff.
func (a *ArchiveImpl) ArchiveExecutions(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.executions.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions query: %w", err)
	}
	return archive(ctx, a, "executions", before, recs)
}

// ArchiveDecisions uploads every decision logged before the cutoff.
func (a *ArchiveImpl) ArchiveDecisions(ctx context.Context, before time.Time) (int64, error) {
	decs, err := a.decisions.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive decisions query: %w", err)
	}
	return archive(ctx, a, "decisions", before, decs)
}

func archive[T any](ctx context.Context, a *ArchiveImpl, kind string, before time.Time, records []T) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path, err := a.freePath(ctx, kind, before)
	if err != nil {
		return 0, err
	}

	count := int64(len(records))
	err = a.writer.Put(ctx, domain.BlobObject{
		Path:        path,
		Body:        buf,
		ContentType: jsonlContentType,
		Metadata: map[string]string{
			"kind":    kind,
			"records": strconv.FormatInt(count, 10),
			"before":  before.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive."+kind, map[string]any{
			"path":   path,
			"count":  count,
			"bytes":  len(buf),
			"before": before.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
		}
	}
	return count, nil
}

func (a *ArchiveImpl) freePath(ctx context.Context, kind string, before time.Time) (string, error) {
	if a.stat == nil {
		return archivePath(kind, before, 1), nil
	}
	for run := 1; run <= maxArchiveRuns; run++ {
		path := archivePath(kind, before, run)
		exists, err := a.stat.Exists(ctx, path)
		if err != nil {
			return "", fmt.Errorf("s3blob: archive %s stat: %w", kind, err)
		}
		if !exists {
			return path, nil
		}
	}
	return "", fmt.Errorf("s3blob: archive %s: %d runs already stored for %s", kind, maxArchiveRuns, before.UTC().Format("2006-01"))
}

// archivePath partitions archives by the cutoff's year and month, e.g.
// archive/executions/2026-01.jsonl for the first run of a month and
// archive/executions/2026-01-2.jsonl for the second.
func archivePath(kind string, before time.Time, run int) string {
	month := before.UTC().Format("2006-01")
	if run <= 1 {
		return fmt.Sprintf("archive/%s/%s.jsonl", kind, month)
	}
	return fmt.Sprintf("archive/%s/%s-%d.jsonl", kind, month, run)
}

func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*ArchiveImpl)(nil)
