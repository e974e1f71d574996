package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	objects map[string]domain.BlobObject
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string]domain.BlobObject{}}
}

func (w *memWriter) Put(_ context.Context, obj domain.BlobObject) error {
	w.objects[obj.Path] = obj
	return nil
}

func (w *memWriter) Exists(_ context.Context, path string) (bool, error) {
	_, ok := w.objects[path]
	return ok, nil
}

type execSource []domain.ExecutionRecord

func (s execSource) ListBefore(context.Context, time.Time) ([]domain.ExecutionRecord, error) {
	return s, nil
}

type decisionSource struct{ err error }

func (s decisionSource) ListBefore(context.Context, time.Time) ([]domain.TradingDecision, error) {
	return nil, s.err
}

type memAudit struct{ events []string }

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestArchiveExecutionsWritesJSONL(t *testing.T) {
	w := newMemWriter()
	audit := &memAudit{}
	recs := execSource{
		{Order: domain.Order{ID: "o1", Token: "A"}, Result: domain.ExecutionResult{OrderID: "o1", DryRun: true}},
		{Order: domain.Order{ID: "o2", Token: "B"}, Result: domain.ExecutionResult{OrderID: "o2"}},
	}
	a := NewArchiver(w, w, recs, decisionSource{}, audit)
	cutoff := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	n, err := a.ArchiveExecutions(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	obj, ok := w.objects["archive/executions/2026-03.jsonl"]
	require.True(t, ok)
	assert.Equal(t, jsonlContentType, obj.ContentType)
	assert.Equal(t, "executions", obj.Metadata["kind"])
	assert.Equal(t, "2", obj.Metadata["records"])
	lines := 0
	sc := bufio.NewScanner(bytes.NewReader(obj.Body))
	for sc.Scan() {
		lines++
	}
	assert.Equal(t, 2, lines)
	assert.Equal(t, []string{"archive.executions"}, audit.events)

	// Later runs in the same month get numbered suffixes.
	for range 2 {
		_, err = a.ArchiveExecutions(context.Background(), cutoff)
		require.NoError(t, err)
	}
	assert.Len(t, w.objects, 3)
	assert.Contains(t, w.objects, "archive/executions/2026-03-2.jsonl")
	assert.Contains(t, w.objects, "archive/executions/2026-03-3.jsonl")
}

func TestArchivePath(t *testing.T) {
	at := time.Date(2026, 1, 31, 23, 0, 0, 0, time.FixedZone("x", -3*3600))
	assert.Equal(t, "archive/decisions/2026-02.jsonl", archivePath("decisions", at, 1))
	assert.Equal(t, "archive/decisions/2026-02-4.jsonl", archivePath("decisions", at, 4))
}

func TestArchiveEmptyAndErrors(t *testing.T) {
	w := newMemWriter()
	a := NewArchiver(w, nil, execSource{}, decisionSource{err: errors.New("db down")}, nil)

	n, err := a.ArchiveExecutions(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.objects)

	_, err = a.ArchiveDecisions(context.Background(), time.Now())
	assert.ErrorContains(t, err, "db down")
}
