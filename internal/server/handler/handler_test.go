package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rediscache "github.com/alanyoungcy/sniperbot/internal/cache/redis"
	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/eventlog"
	"github.com/alanyoungcy/sniperbot/internal/execution"
	"github.com/alanyoungcy/sniperbot/internal/pipeline"
	"github.com/alanyoungcy/sniperbot/internal/reflex"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func get(t *testing.T, h http.HandlerFunc, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

type fixedProbe pipeline.Readiness

func (p fixedProbe) IsReady(context.Context) pipeline.Readiness { return pipeline.Readiness(p) }

func TestHealthCheck(t *testing.T) {
	cases := []struct {
		name   string
		probe  ReadinessProbe
		code   int
		status string
	}{
		{"liveness only", nil, http.StatusOK, "ok"},
		{"ready", fixedProbe{Ready: true, Collaborators: map[string]bool{"store": true}}, http.StatusOK, "ok"},
		{"degraded", fixedProbe{Ready: true, Degraded: true}, http.StatusOK, "degraded"},
		{"unavailable", fixedProbe{Collaborators: map[string]bool{"store": false}}, http.StatusServiceUnavailable, "unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthHandler(tc.probe, quietLogger())
			rec, body := get(t, h.HealthCheck, "/api/health")
			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, tc.status, body["status"])
			assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		})
	}
}

func TestListEvents(t *testing.T) {
	log := eventlog.New(4)
	for _, tok := range []string{"A", "B", "C", "D", "E"} {
		log.Add(eventlog.KindDetected, tok, "detected")
	}
	log.Add(eventlog.KindRejected, "F", "stale")
	h := NewEventsHandler(log)

	rec, body := get(t, h.ListEvents, "/api/events?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	events := body["events"].([]any)
	require.Len(t, events, 2)
	assert.Equal(t, "F", events[0].(map[string]any)["token"], "newest first")
	assert.EqualValues(t, 4, body["capacity"])
	assert.EqualValues(t, 2, body["dropped"])

	_, body = get(t, h.ListEvents, "/api/events?since=4")
	events = body["events"].([]any)
	require.Len(t, events, 2)
	assert.Equal(t, "E", events[0].(map[string]any)["token"], "oldest first after since")

	_, body = get(t, h.ListEvents, "/api/events?kind=rejected")
	assert.EqualValues(t, 1, body["count"])

	rec, _ = get(t, h.ListEvents, "/api/events?since=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fixedActive []domain.ValidatedOpportunity

func (f fixedActive) ActiveOpportunities() []domain.ValidatedOpportunity { return f }

type brokenQueue struct{}

func (brokenQueue) Peek(context.Context, int) ([]domain.TradingDecision, error) {
	return nil, errors.New("redis down")
}
func (brokenQueue) Len(context.Context) (int64, error) { return 0, nil }

func TestListOpportunities(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	queue := rediscache.NewDecisionQueue(rediscache.Wrap(rdb), time.Hour)
	require.NoError(t, queue.Enqueue(context.Background(), domain.TradingDecision{
		ID:                 "d1",
		OpportunityAddress: "PoolA",
		Type:               domain.DecisionMonitor,
		Monitor:            &domain.Monitor{},
		CreatedAt:          time.Now().UTC(),
	}))

	active := fixedActive{
		{Raw: domain.RawOpportunity{Address: "low", Score: 40}},
		{Raw: domain.RawOpportunity{Address: "high", Score: 90}},
	}
	h := NewOpportunityHandler(active, queue, quietLogger())

	rec, body := get(t, h.ListOpportunities, "/api/opportunities")
	require.Equal(t, http.StatusOK, rec.Code)
	list := body["active"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, "high", list[0].(map[string]any)["raw"].(map[string]any)["address"])
	assert.EqualValues(t, 1, body["queue_depth"])
	assert.Len(t, body["queued"].([]any), 1)

	rec, _ = get(t, NewOpportunityHandler(nil, brokenQueue{}, quietLogger()).ListOpportunities, "/api/opportunities")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	_, body = get(t, NewOpportunityHandler(nil, nil, quietLogger()).ListOpportunities, "/api/opportunities")
	assert.Empty(t, body["active"])
	assert.NotContains(t, body, "queued")
}

type stubPipeline struct{}

func (stubPipeline) Stats() pipeline.Stats          { return pipeline.Stats{CyclesCompleted: 3} }
func (stubPipeline) LastHealth() map[string]bool { return map[string]bool{"store": true} }

type stubListener struct{}

func (stubListener) Stats() reflex.ListenerStats { return reflex.ListenerStats{Detections: 5} }
func (stubListener) Connected() bool             { return true }

type stubExecutor struct{ b *execution.BalanceTracker }

func (s stubExecutor) Name() string                         { return "dry_run" }
func (s stubExecutor) DryRun() bool                         { return true }
func (s stubExecutor) Balances() *execution.BalanceTracker { return s.b }

func TestStatusSnapshot(t *testing.T) {
	b := execution.NewBalanceTracker(nil, "", nil, quietLogger())
	b.Set(2)
	require.NoError(t, b.Reserve("o1", 0.5))

	started := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	h := NewStatusHandler("full", started, StatusSources{
		Pipeline: stubPipeline{},
		Listener: stubListener{},
		Executor: stubExecutor{b: b},
	}, quietLogger())
	h.now = func() time.Time { return started.Add(90 * time.Second) }

	st := h.Snapshot(context.Background())
	assert.Equal(t, "full", st.Mode)
	assert.Equal(t, int64(90), st.UptimeSeconds)
	require.NotNil(t, st.Pipeline)
	assert.Equal(t, int64(3), st.Pipeline.CyclesCompleted)
	assert.True(t, st.Health["store"])
	require.NotNil(t, st.Reflex)
	assert.True(t, st.Reflex.Connected)
	assert.Nil(t, st.Reflex.Sniper)
	assert.Nil(t, st.Consumer)
	require.NotNil(t, st.Executor)
	assert.InDelta(t, 2, st.Executor.BalanceSOL, 1e-9)
	assert.InDelta(t, 1.5, st.Executor.AvailableSOL, 1e-9)

	rec, body := get(t, h.GetStatus, "/api/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "full", body["mode"])
	assert.NotContains(t, body, "consumer")
}

func TestStatusPublishWritesDashboardSnapshot(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := rediscache.NewSnapshotCache(rediscache.Wrap(rdb))

	h := NewStatusHandler("pipeline", time.Now().UTC(), StatusSources{Pipeline: stubPipeline{}}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Publish(ctx, cache, time.Minute) }()

	require.Eventually(t, func() bool { return mr.Exists(domain.KeyDashboardStats) }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	var st Status
	require.NoError(t, cache.GetSnapshot(context.Background(), domain.KeyDashboardStats, &st))
	assert.Equal(t, "pipeline", st.Mode)
	assert.Equal(t, int64(3), st.Pipeline.CyclesCompleted)
}

func TestStatusReadsSharedPipelineSnapshot(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := rediscache.NewSnapshotCache(rediscache.Wrap(rdb))
	ctx := context.Background()

	h := NewStatusHandler("server", time.Now().UTC(), StatusSources{Snapshots: cache}, quietLogger())
	st := h.Snapshot(ctx)
	assert.Nil(t, st.Pipeline, "nothing published yet")

	require.NoError(t, cache.SetSnapshot(ctx, domain.KeyPipelineStats, stubPipeline{}.Stats(), 0))
	st = h.Snapshot(ctx)
	require.NotNil(t, st.Pipeline)
	assert.Equal(t, int64(3), st.Pipeline.CyclesCompleted)
	require.NotNil(t, st.PipelineSeen)
	assert.WithinDuration(t, time.Now(), *st.PipelineSeen, time.Minute)
	assert.Nil(t, st.Health)
}
