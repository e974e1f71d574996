package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rediscache "github.com/alanyoungcy/sniperbot/internal/cache/redis"
	"github.com/alanyoungcy/sniperbot/internal/decision"
	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/eventlog"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubValidator struct {
	analyze   func(ctx context.Context, raw domain.RawOpportunity) (domain.SentimentResult, error)
	healthErr error
}

func (s *stubValidator) Analyze(ctx context.Context, raw domain.RawOpportunity) (domain.SentimentResult, error) {
	if s.analyze == nil {
		return domain.SentimentResult{Score: 0.6, Confidence: 0.75, SourceCount: 12}, nil
	}
	return s.analyze(ctx, raw)
}

func (s *stubValidator) Health(context.Context) error { return s.healthErr }

type stubScanner struct {
	batch     []domain.RawOpportunity
	err       error
	healthErr error
}

func (s *stubScanner) Fetch(context.Context, int) ([]domain.RawOpportunity, error) {
	return s.batch, s.err
}

func (s *stubScanner) Health(context.Context) error { return s.healthErr }

type fixedPortfolio struct{ pc domain.PortfolioContext }

func (f fixedPortfolio) Context(context.Context) (domain.PortfolioContext, error) { return f.pc, nil }

func defaultPortfolio() fixedPortfolio {
	return fixedPortfolio{pc: domain.PortfolioContext{
		AvailableBalance:       5,
		MaxConcurrentPositions: 5,
		RiskTolerance:          0.7,
		MinConfidence:          0.5,
		MinPositionSize:        0.1,
		MaxPositionSize:        1.0,
	}}
}

type rig struct {
	client    *rediscache.Client
	state     *rediscache.StateStore
	dedup     *rediscache.DedupSet
	queue     *rediscache.DecisionQueue
	snapshots *rediscache.SnapshotCache
	validator *stubValidator
	events    *eventlog.Log
}

func newRig(t *testing.T) *rig {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	c := rediscache.Wrap(rdb)
	return &rig{
		client:    c,
		state:     rediscache.NewStateStore(c),
		dedup:     rediscache.NewDedupSet(c, domain.KeyProcessedTokens),
		queue:     rediscache.NewDecisionQueue(c, 30*time.Minute),
		snapshots: rediscache.NewSnapshotCache(c),
		validator: &stubValidator{},
		events:    eventlog.New(32),
	}
}

func (r *rig) controller(cfg Config, scanner Scanner) *Controller {
	deps := Deps{
		State:     r.state,
		Dedup:     r.dedup,
		Queue:     r.queue,
		Validator: r.validator,
		Engine:    decision.NewEngine(decision.DefaultConfig(), quietLogger()),
		Portfolio: defaultPortfolio(),
		Snapshots: r.snapshots,
		Events:    r.events,
		Logger:    quietLogger(),
	}
	if scanner != nil {
		deps.Scanner = scanner
	}
	return NewController(cfg, deps)
}

func goodRecord(addr string) string {
	return fmt.Sprintf(`{"address":%q,"liquidity_usd":25000,"volume_24h_usd":90000,"opportunity_score":3.5,"discovered_at":"2026-03-01T12:00:00Z"}`, addr)
}

func (r *rig) seed(t *testing.T, addr, record string) {
	t.Helper()
	ctx := context.Background()
	key := domain.PrefixRawOpportunity + addr
	if record != "" {
		require.NoError(t, r.state.Set(ctx, key, []byte(record), time.Hour))
	}
	_, err := r.state.ListPush(ctx, domain.KeyRawOpportunities, key)
	require.NoError(t, err)
}

func TestProcessAdvancesCandidateToDecision(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.seed(t, "TokA", goodRecord("TokA"))
	c := r.controller(Config{}, nil)

	n, err := c.ProcessOpportunitiesFromStore(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	claimed, err := r.dedup.Contains(ctx, "TokA")
	require.NoError(t, err)
	assert.True(t, claimed)

	d, err := r.queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionBuyToken, d.Type, d.Reason())
	assert.Equal(t, "TokA", d.OpportunityAddress)
	assert.GreaterOrEqual(t, d.Confidence, 0.6)

	raw, err := r.state.Get(ctx, domain.PrefixValidated+"TokA")
	require.NoError(t, err)
	var v domain.ValidatedOpportunity
	require.NoError(t, json.Unmarshal(raw, &v))
	assert.Equal(t, domain.OpportunityDecided, v.Status)
	assert.Equal(t, d.ID, v.DecisionID)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.TotalCandidatesFound)
	assert.Equal(t, int64(1), stats.TotalCandidatesValidated)
	assert.Equal(t, int64(1), stats.TotalDecisionsMade)
	assert.Empty(t, c.ActiveOpportunities())
}

func TestProcessSkipsBadCandidates(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	_, err := r.dedup.Claim(ctx, "Done")
	require.NoError(t, err)
	r.seed(t, "Done", goodRecord("Done"))
	r.seed(t, "Malformed", `{"address":"Malformed","liquidity_usd":"lots"}`)
	r.seed(t, "Expired", `{"address":"Expired","liquidity_usd":25000,"volume_24h_usd":90000,"opportunity_score":3.5,"discovered_at":"2026-03-01T12:00:00Z","expires_at":"2020-01-01T00:00:00Z"}`)
	r.seed(t, "Missing", "")
	r.seed(t, "TokA", goodRecord("TokA"))
	r.seed(t, "TokA", goodRecord("TokA"))

	c := r.controller(Config{}, nil)
	n, err := c.ProcessOpportunitiesFromStore(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats := c.Stats()
	assert.Equal(t, int64(4), stats.TotalCandidatesFound, "already processed tokens are not candidates")
	assert.Equal(t, int64(1), stats.TotalCandidatesValidated)

	qlen, err := r.queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), qlen)
}

func TestProcessRespectsMaxCount(t *testing.T) {
	r := newRig(t)
	for i := 0; i < 5; i++ {
		addr := fmt.Sprintf("Tok%d", i)
		r.seed(t, addr, goodRecord(addr))
	}
	c := r.controller(Config{}, nil)

	n, err := c.ProcessOpportunitiesFromStore(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.ProcessOpportunitiesFromStore(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "the second pass picks up where the first stopped")
}

func TestValidationFailureReleasesClaim(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.seed(t, "TokA", goodRecord("TokA"))
	r.validator.analyze = func(context.Context, domain.RawOpportunity) (domain.SentimentResult, error) {
		return domain.SentimentResult{}, errors.New("service unavailable")
	}
	c := r.controller(Config{}, nil)

	n, err := c.ProcessOpportunitiesFromStore(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	claimed, err := r.dedup.Contains(ctx, "TokA")
	require.NoError(t, err)
	assert.False(t, claimed, "retried next cycle")

	r.validator.analyze = nil
	n, err = c.ProcessOpportunitiesFromStore(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type brokenQueue struct {
	*rediscache.DecisionQueue
	err error
}

func (q *brokenQueue) Enqueue(ctx context.Context, d domain.TradingDecision) error {
	if q.err != nil {
		return q.err
	}
	return q.DecisionQueue.Enqueue(ctx, d)
}

func TestEnqueueFailureReleasesClaim(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.seed(t, "TokA", goodRecord("TokA"))
	c := r.controller(Config{}, nil)
	q := &brokenQueue{DecisionQueue: r.queue, err: errors.New("connection reset")}
	c.deps.Queue = q

	n, err := c.ProcessOpportunitiesFromStore(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	claimed, err := r.dedup.Contains(ctx, "TokA")
	require.NoError(t, err)
	assert.False(t, claimed, "no decision was persisted")

	q.err = nil
	n, err = c.ProcessOpportunitiesFromStore(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	qlen, err := r.queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), qlen)
}

func TestCycleWithAllValidationsTimingOut(t *testing.T) {
	r := newRig(t)
	for _, addr := range []string{"TokA", "TokB", "TokC"} {
		r.seed(t, addr, goodRecord(addr))
	}
	r.validator.analyze = func(ctx context.Context, _ domain.RawOpportunity) (domain.SentimentResult, error) {
		<-ctx.Done()
		return domain.SentimentResult{}, ctx.Err()
	}
	c := r.controller(Config{CycleTimeout: 2 * time.Second, ValidationTimeout: 20 * time.Millisecond}, nil)

	start := time.Now()
	rep, err := c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Equal(t, 3, rep.Found)
	assert.Zero(t, rep.Validated)
	assert.Zero(t, rep.Decided)

	stats := c.Stats()
	assert.Greater(t, stats.TotalCandidatesFound, int64(0))
	assert.Zero(t, stats.TotalCandidatesValidated)
	assert.Zero(t, stats.TotalDecisionsMade)
	assert.Equal(t, int64(1), stats.CyclesCompleted)

	members, err := r.state.SetMembers(context.Background(), domain.KeyProcessedTokens)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestCycleTimeoutKeepsEnqueuedDecisions(t *testing.T) {
	r := newRig(t)
	r.seed(t, "Fast", goodRecord("Fast"))
	r.seed(t, "Slow", goodRecord("Slow"))
	r.validator.analyze = func(ctx context.Context, raw domain.RawOpportunity) (domain.SentimentResult, error) {
		if raw.Address == "Slow" {
			<-ctx.Done()
			return domain.SentimentResult{}, ctx.Err()
		}
		return domain.SentimentResult{Score: 0.6, Confidence: 0.75, SourceCount: 12}, nil
	}
	c := r.controller(Config{CycleTimeout: 100 * time.Millisecond, ValidationTimeout: 5 * time.Second}, nil)

	rep, err := c.RunCycle(context.Background())
	var ct *domain.CycleTimeout
	require.True(t, errors.As(err, &ct), "got %v", err)
	assert.True(t, rep.TimedOut)
	assert.Equal(t, 1, ct.Advanced)

	qlen, err := r.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), qlen)

	slowClaimed, err := r.dedup.Contains(context.Background(), "Slow")
	require.NoError(t, err)
	assert.False(t, slowClaimed)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.CyclesFailed)
	assert.Equal(t, int64(1), stats.TotalDecisionsMade)
}

func TestConcurrentControllersDecideOnce(t *testing.T) {
	r := newRig(t)
	r.seed(t, "TokA", goodRecord("TokA"))

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := r.controller(Config{}, nil).ProcessOpportunitiesFromStore(context.Background(), 10)
			assert.NoError(t, err)
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, total)
	qlen, err := r.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), qlen)
}

func TestRunCycleIngestsScannerBatch(t *testing.T) {
	r := newRig(t)
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	scanner := &stubScanner{batch: []domain.RawOpportunity{
		{Address: "ScanA", LiquidityUSD: 25_000, Volume24hUSD: 90_000, Score: 3.5, DiscoveredAt: now},
		{Address: "ScanB", LiquidityUSD: 25_000, Volume24hUSD: 90_000, Score: 3.5, DiscoveredAt: now},
		{Address: "Gone", LiquidityUSD: 25_000, Volume24hUSD: 90_000, Score: 3.5, DiscoveredAt: now, ExpiresAt: &past},
	}}
	c := r.controller(Config{}, scanner)

	rep, err := c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Ingested)
	assert.Equal(t, 2, rep.Found)
	assert.Equal(t, 2, rep.Decided)

	var snap Stats
	require.NoError(t, r.snapshots.GetSnapshot(context.Background(), domain.KeyPipelineStats, &snap))
	assert.Equal(t, int64(1), snap.CyclesCompleted)
	assert.Equal(t, eventlog.KindCycle, r.events.Recent(1)[0].Kind)
}

func TestScannerFailureDoesNotFailCycle(t *testing.T) {
	r := newRig(t)
	r.seed(t, "TokA", goodRecord("TokA"))
	c := r.controller(Config{}, &stubScanner{err: errors.New("scanner down")})

	rep, err := c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Decided)
}

func TestReadinessAndHealth(t *testing.T) {
	r := newRig(t)
	scanner := &stubScanner{healthErr: errors.New("down")}
	c := r.controller(Config{}, scanner)

	ready := c.IsReady(context.Background())
	assert.True(t, ready.Ready)
	assert.True(t, ready.Degraded)
	assert.False(t, ready.Collaborators[CollaboratorScanner])
	assert.Empty(t, c.LastHealth(), "IsReady has no side effects")

	r.validator.healthErr = errors.New("503")
	ready = c.IsReady(context.Background())
	assert.False(t, ready.Ready)

	health := c.HealthCheck(context.Background())
	assert.Equal(t, map[string]bool{
		CollaboratorStore:     true,
		CollaboratorValidator: false,
		CollaboratorScanner:   false,
	}, health)
	assert.Equal(t, health, c.LastHealth())
}

func TestRunSkipsCycleWhenNotReady(t *testing.T) {
	r := newRig(t)
	r.seed(t, "TokA", goodRecord("TokA"))
	r.validator.healthErr = errors.New("503")
	c := r.controller(Config{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.Run(ctx, time.Hour))

	assert.Zero(t, c.Stats().CyclesCompleted)
	assert.Equal(t, eventlog.KindHealth, r.events.Recent(1)[0].Kind)
}
