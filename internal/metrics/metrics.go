// Package metrics holds the Prometheus collectors for the bot. Each Registry
// owns its own prometheus.Registry so several can coexist in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sniperbot"

// Registry groups every collector. All methods are safe on a nil receiver so
// components may run without metrics.
type Registry struct {
	reg *prometheus.Registry

	CyclesTotal        *prometheus.CounterVec
	CycleDuration      prometheus.Histogram
	CandidatesTotal    *prometheus.CounterVec
	DecisionsTotal     *prometheus.CounterVec
	ReflexOutcomes     *prometheus.CounterVec
	ListenerDropped    prometheus.Counter
	ExecutionsTotal    *prometheus.CounterVec
	ExecutionLatency   *prometheus.HistogramVec
	SlippageBps        prometheus.Histogram
	TipLamportsTotal   prometheus.Counter
	AvailableBalance   prometheus.Gauge
	OpenPositions      prometheus.Gauge
	CollaboratorUp     *prometheus.GaugeVec
	DecisionQueueDepth prometheus.Gauge
}

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Registry {
	m := &Registry{
		reg: prometheus.NewRegistry(),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_cycles_total",
			Help:      "Pipeline cycles by result (ok, failed, timeout).",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_cycle_duration_seconds",
			Help:      "Wall-clock duration of pipeline cycles.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		CandidatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_candidates_total",
			Help:      "Pipeline candidates by stage (found, validated, decided, skipped, failed).",
		}, []string{"stage"}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Trading decisions by type.",
		}, []string{"type"}),
		ReflexOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reflex_opportunities_total",
			Help:      "Reflex opportunities by outcome (detected, rejected, expired, executed, failed).",
		}, []string{"outcome"}),
		ListenerDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reflex_listener_dropped_total",
			Help:      "Detected pools dropped because the opportunity channel was full.",
		}),
		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Order submissions by path and result.",
		}, []string{"path", "result"}),
		ExecutionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_latency_seconds",
			Help:      "Submit-to-outcome latency by path.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"path"}),
		SlippageBps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_slippage_bps",
			Help:      "Realised slippage of confirmed fills in basis points.",
			Buckets:   []float64{0, 10, 25, 50, 100, 200, 300, 500, 1000},
		}),
		TipLamportsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundle_tip_lamports_total",
			Help:      "Lamports paid as bundle tips.",
		}),
		AvailableBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "available_balance_sol",
			Help:      "Wallet balance minus outstanding reservations.",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Open positions in the position book.",
		}),
		CollaboratorUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collaborator_up",
			Help:      "Last known health of external collaborators (1 healthy, 0 not).",
		}, []string{"name"}),
		DecisionQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "decision_queue_depth",
			Help:      "Length of the trading decision queue.",
		}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CyclesTotal,
		m.CycleDuration,
		m.CandidatesTotal,
		m.DecisionsTotal,
		m.ReflexOutcomes,
		m.ListenerDropped,
		m.ExecutionsTotal,
		m.ExecutionLatency,
		m.SlippageBps,
		m.TipLamportsTotal,
		m.AvailableBalance,
		m.OpenPositions,
		m.CollaboratorUp,
		m.DecisionQueueDepth,
	)
	return m
}

// TrackPool exports the total and idle connection counts of a client pool.
// stats is read on every scrape.
func (m *Registry) TrackPool(name string, stats func() (total, idle uint32)) {
	if m == nil {
		return
	}
	gauge := func(state string, pick func(total, idle uint32) uint32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "pool_connections",
			Help:        "Connections held by a client pool.",
			ConstLabels: prometheus.Labels{"pool": name, "state": state},
		}, func() float64 {
			return float64(pick(stats()))
		})
	}
	m.reg.MustRegister(
		gauge("total", func(t, _ uint32) uint32 { return t }),
		gauge("idle", func(_, i uint32) uint32 { return i }),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Registry) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveCycle records one finished pipeline cycle.
func (m *Registry) ObserveCycle(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(d.Seconds())
}

// AddCandidates counts candidates reaching a pipeline stage.
func (m *Registry) AddCandidates(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CandidatesTotal.WithLabelValues(stage).Add(float64(n))
}

// IncDecision counts a decision of the given type.
func (m *Registry) IncDecision(kind string) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(kind).Inc()
}

// IncReflex counts a reflex outcome.
func (m *Registry) IncReflex(outcome string) {
	if m == nil {
		return
	}
	m.ReflexOutcomes.WithLabelValues(outcome).Inc()
}

// IncListenerDropped counts a detection dropped on a full channel.
func (m *Registry) IncListenerDropped() {
	if m == nil {
		return
	}
	m.ListenerDropped.Inc()
}

// ObserveExecution records a submission outcome.
func (m *Registry) ObserveExecution(path string, success bool, latency time.Duration, slippageBps int, tipLamports uint64) {
	if m == nil {
		return
	}
	result := "failed"
	if success {
		result = "ok"
		m.SlippageBps.Observe(float64(slippageBps))
	}
	m.ExecutionsTotal.WithLabelValues(path, result).Inc()
	m.ExecutionLatency.WithLabelValues(path).Observe(latency.Seconds())
	if tipLamports > 0 {
		m.TipLamportsTotal.Add(float64(tipLamports))
	}
}

// SetBalance publishes the available balance in SOL.
func (m *Registry) SetBalance(sol float64) {
	if m == nil {
		return
	}
	m.AvailableBalance.Set(sol)
}

// SetOpenPositions publishes the open position count.
func (m *Registry) SetOpenPositions(n int) {
	if m == nil {
		return
	}
	m.OpenPositions.Set(float64(n))
}

// SetQueueDepth publishes the decision queue length.
func (m *Registry) SetQueueDepth(n int64) {
	if m == nil {
		return
	}
	m.DecisionQueueDepth.Set(float64(n))
}

// SetHealth publishes collaborator health.
func (m *Registry) SetHealth(health map[string]bool) {
	if m == nil {
		return
	}
	for name, ok := range health {
		v := 0.0
		if ok {
			v = 1
		}
		m.CollaboratorUp.WithLabelValues(name).Set(v)
	}
}
