package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.ObserveCycle("ok", 2*time.Second)
	m.ObserveCycle("timeout", time.Minute)
	m.AddCandidates("found", 5)
	m.AddCandidates("found", 0)
	m.IncDecision("buy_token")
	m.IncReflex("rejected")
	m.IncListenerDropped()
	m.ObserveExecution("bundle", true, 300*time.Millisecond, 42, 10_000)
	m.ObserveExecution("standard", false, time.Second, 0, 0)
	m.SetBalance(3.5)
	m.SetOpenPositions(2)
	m.SetQueueDepth(7)
	m.SetHealth(map[string]bool{"redis": true, "sentiment": false})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("timeout")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.CandidatesTotal.WithLabelValues("found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("buy_token")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReflexOutcomes.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ListenerDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExecutionsTotal.WithLabelValues("bundle", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExecutionsTotal.WithLabelValues("standard", "failed")))
	assert.Equal(t, 10_000.0, testutil.ToFloat64(m.TipLamportsTotal))
	assert.Equal(t, 3.5, testutil.ToFloat64(m.AvailableBalance))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OpenPositions))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.DecisionQueueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CollaboratorUp.WithLabelValues("redis")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CollaboratorUp.WithLabelValues("sentiment")))
}

func TestNilRegistryIsInert(t *testing.T) {
	var m *Registry
	m.ObserveCycle("ok", time.Second)
	m.IncReflex("executed")
	m.ObserveExecution("dry_run", true, 0, 0, 0)
	m.SetHealth(map[string]bool{"x": true})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New()
	m.IncDecision("monitor")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `sniperbot_decisions_total{type="monitor"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestTrackPool(t *testing.T) {
	m := New()
	total, idle := uint32(4), uint32(3)
	m.TrackPool("redis", func() (uint32, uint32) { return total, idle })
	total = 6

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `sniperbot_pool_connections{pool="redis",state="total"} 6`)
	assert.Contains(t, body, `sniperbot_pool_connections{pool="redis",state="idle"} 3`)

	var nilReg *Registry
	nilReg.TrackPool("redis", func() (uint32, uint32) { return 0, 0 })
}
