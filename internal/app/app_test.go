package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sniperbot/internal/config"
	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/notify"
	"github.com/alanyoungcy/sniperbot/internal/pipeline"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := config.Defaults()
	cfg.Redis.Addr = mr.Addr()
	cfg.Server.Port = 0
	return &cfg
}

func wireForTest(t *testing.T, cfg *config.Config) *Dependencies {
	t.Helper()
	deps, cleanup, err := Wire(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return deps
}

func TestWireRedisOnly(t *testing.T) {
	deps := wireForTest(t, testConfig(t))

	assert.NotNil(t, deps.State)
	assert.NotNil(t, deps.Queue)
	assert.NotNil(t, deps.RPC)
	assert.Nil(t, deps.Executions, "postgres disabled")
	assert.Nil(t, deps.Archiver, "s3 disabled")
	assert.False(t, deps.Notifier.Enabled())
	require.NoError(t, deps.State.Ping(context.Background()))
}

func TestWireFailsWithoutRedis(t *testing.T) {
	cfg := config.Defaults()
	cfg.Redis.Addr = "127.0.0.1:1"
	_, _, err := Wire(context.Background(), &cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wire: redis")
}

func TestBuildExecutionDryRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Execution.DryRunBalanceSOL = 3
	deps := wireForTest(t, cfg)

	a := New(cfg, quietLogger())
	rt := &runtime{}
	require.NoError(t, a.buildExecution(deps, rt))

	assert.True(t, rt.executor.DryRun())
	assert.InDelta(t, 3, rt.executor.Balances().Available(), 1e-9)

	pc, err := rt.portfolio.Context(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 3, pc.AvailableBalance, 1e-9)
	assert.Equal(t, cfg.Decision.MaxConcurrentPositions, pc.MaxConcurrentPositions)
}

func TestBuildExecutionLiveNeedsKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.DryRun = false
	deps := wireForTest(t, cfg)

	err := New(cfg, quietLogger()).buildExecution(deps, &runtime{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet")
}

type countingLimiter struct {
	waits int
	err   error
}

func (l *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (l *countingLimiter) Wait(context.Context, string, int, time.Duration) error {
	l.waits++
	return l.err
}

type stubValidator struct{ calls int }

func (v *stubValidator) Analyze(context.Context, domain.RawOpportunity) (domain.SentimentResult, error) {
	v.calls++
	return domain.SentimentResult{Score: 0.7, Confidence: 0.9}, nil
}

func (v *stubValidator) Health(context.Context) error { return nil }

func TestLimitedValidator(t *testing.T) {
	inner := &stubValidator{}
	lim := &countingLimiter{}
	v := &limitedValidator{Validator: inner, limiter: lim, limit: 60}

	res, err := v.Analyze(context.Background(), domain.RawOpportunity{Address: "A"})
	require.NoError(t, err)
	assert.InDelta(t, 0.7, res.Score, 1e-9)
	assert.Equal(t, 1, lim.waits)
	assert.Equal(t, 1, inner.calls)
	require.NoError(t, v.Health(context.Background()))

	lim.err = context.DeadlineExceeded
	_, err = v.Analyze(context.Background(), domain.RawOpportunity{Address: "B"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, inner.calls, "no call past the limiter")
}

func TestStoreProbe(t *testing.T) {
	rpc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":"ok"}`)
	}))
	t.Cleanup(rpc.Close)

	cfg := testConfig(t)
	cfg.Solana.RPCURL = rpc.URL
	deps := wireForTest(t, cfg)

	r := (&storeProbe{deps: deps}).IsReady(context.Background())
	assert.True(t, r.Ready)
	assert.False(t, r.Degraded)
	assert.True(t, r.Collaborators[pipeline.CollaboratorStore])

	rpc.Close()
	r = (&storeProbe{deps: deps}).IsReady(context.Background())
	assert.True(t, r.Ready, "rpc only degrades")
	assert.True(t, r.Degraded)
}

func TestRunServerModeStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = config.ModeServer

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(cfg, quietLogger()).Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestRunRejectsUnknownMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = "arbitrage"
	err := New(cfg, quietLogger()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported mode")
}

func TestProbe(t *testing.T) {
	svc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/health":
			_, _ = io.WriteString(w, `{"status":"ok"}`)
		default:
			_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":"ok"}`)
		}
	}))
	t.Cleanup(svc.Close)

	cfg := testConfig(t)
	cfg.Sentiment.BaseURL = svc.URL
	cfg.Solana.RPCURL = svc.URL

	r := Probe(context.Background(), cfg, quietLogger())
	assert.True(t, r.Ready)
	assert.False(t, r.Degraded)
	assert.True(t, r.Collaborators[CollaboratorRPC])
	assert.True(t, r.Collaborators[pipeline.CollaboratorValidator])

	cfg.Redis.Addr = "127.0.0.1:1"
	r = Probe(context.Background(), cfg, quietLogger())
	assert.False(t, r.Ready)
	assert.False(t, r.Collaborators[pipeline.CollaboratorStore])
}

func TestResetEpoch(t *testing.T) {
	cfg := testConfig(t)
	deps := wireForTest(t, cfg)
	ctx := context.Background()

	for _, addr := range []string{"MintA", "MintB"} {
		ok, err := deps.Dedup.Claim(ctx, addr)
		require.NoError(t, err)
		require.True(t, ok)
	}

	n, err := ResetEpoch(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ok, err := deps.Dedup.Claim(ctx, "MintA")
	require.NoError(t, err)
	assert.True(t, ok, "claimable again after reset")
}

type capturingSender struct{ got []notify.Message }

func (s *capturingSender) Name() string { return "capture" }

func (s *capturingSender) Send(_ context.Context, msg notify.Message) error {
	s.got = append(s.got, msg)
	return nil
}

func TestStoppedNotifiesWithCause(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = config.ModeReflex
	a := New(&cfg, quietLogger())

	sender := &capturingSender{}
	n := notify.NewNotifier([]notify.Sender{sender}, notify.Config{}, quietLogger())

	a.stopped(n, errors.New("listener: websocket closed"))
	require.Len(t, sender.got, 1)
	msg := sender.got[0]
	assert.Equal(t, notify.EventShutdown, msg.Event)
	assert.Equal(t, notify.SeverityError, msg.Severity)
	assert.Equal(t, "mode reflex: listener: websocket closed", msg.Body)
	require.Len(t, msg.Fields, 2)
	assert.Equal(t, "uptime", msg.Fields[1].Name)

	a.stopped(nil, nil)
	assert.Len(t, sender.got, 1, "nil notifier is skipped")
}
