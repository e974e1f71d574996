package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/execution"
	"github.com/alanyoungcy/sniperbot/internal/pipeline"
	"github.com/alanyoungcy/sniperbot/internal/reflex"
)

// PipelineSource exposes controller statistics.
type PipelineSource interface {
	Stats() pipeline.Stats
	LastHealth() map[string]bool
}

// ListenerSource exposes the reflex listener.
type ListenerSource interface {
	Stats() reflex.ListenerStats
	Connected() bool
}

// SniperSource exposes the reflex sniper.
type SniperSource interface {
	Stats() reflex.SniperStats
}

// ConsumerSource exposes the decision consumer.
type ConsumerSource interface {
	Stats() execution.ConsumerStats
}

// ExecutorSource exposes the execution layer.
type ExecutorSource interface {
	Name() string
	DryRun() bool
	Balances() *execution.BalanceTracker
}

// StrategySource reports which strategies the balance tiers enable.
type StrategySource interface {
	Strategies() map[string]bool
}

// StatusSources are the components a StatusHandler reports on. Any of them
// may be nil when the running mode does not start it. Snapshots is read for
// pipeline stats when the controller runs in another process.
type StatusSources struct {
	Snapshots  domain.SnapshotCache
	Pipeline   PipelineSource
	Listener   ListenerSource
	Sniper     SniperSource
	Consumer   ConsumerSource
	Executor   ExecutorSource
	Strategies StrategySource
}

// Status is the /api/status payload and the dashboard snapshot.
type Status struct {
	Mode          string                   `json:"mode"`
	StartedAt     time.Time                `json:"started_at"`
	UptimeSeconds int64                    `json:"uptime_seconds"`
	Pipeline      *pipeline.Stats          `json:"pipeline,omitempty"`
	PipelineSeen  *time.Time               `json:"pipeline_updated_at,omitempty"`
	Health        map[string]bool          `json:"health,omitempty"`
	Reflex        *ReflexStatus            `json:"reflex,omitempty"`
	Consumer      *execution.ConsumerStats `json:"consumer,omitempty"`
	Executor      *ExecutorStatus          `json:"executor,omitempty"`
	Strategies    map[string]bool          `json:"strategies,omitempty"`
}

// ReflexStatus groups the reflex path counters.
type ReflexStatus struct {
	Connected bool                 `json:"connected"`
	Listener  *reflex.ListenerStats `json:"listener,omitempty"`
	Sniper    *reflex.SniperStats   `json:"sniper,omitempty"`
}

// ExecutorStatus describes the active executor and its balance.
type ExecutorStatus struct {
	Name         string    `json:"name"`
	DryRun       bool      `json:"dry_run"`
	BalanceSOL   float64   `json:"balance_sol"`
	ReservedSOL  float64   `json:"reserved_sol"`
	AvailableSOL float64   `json:"available_sol"`
	RefreshedAt  time.Time `json:"refreshed_at,omitempty"`
}

// StatusHandler serves the aggregated runtime status.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	src       StatusSources
	now       func() time.Time
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler for the given run mode.
func NewStatusHandler(mode string, startedAt time.Time, src StatusSources, logger *slog.Logger) *StatusHandler {
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &StatusHandler{
		mode:      mode,
		startedAt: startedAt,
		src:       src,
		now:       time.Now,
		logger:    scopedLogger(logger, "status"),
	}
}

// Snapshot assembles the current status.
func (h *StatusHandler) Snapshot(ctx context.Context) Status {
	uptime := int64(h.now().Sub(h.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	st := Status{
		Mode:          h.mode,
		StartedAt:     h.startedAt,
		UptimeSeconds: uptime,
	}

	if p := h.src.Pipeline; p != nil {
		stats := p.Stats()
		st.Pipeline = &stats
		st.Health = p.LastHealth()
	} else if h.src.Snapshots != nil {
		h.sharedPipeline(ctx, &st)
	}
	if h.src.Listener != nil || h.src.Sniper != nil {
		rs := &ReflexStatus{}
		if l := h.src.Listener; l != nil {
			ls := l.Stats()
			rs.Listener = &ls
			rs.Connected = l.Connected()
		}
		if s := h.src.Sniper; s != nil {
			ss := s.Stats()
			rs.Sniper = &ss
		}
		st.Reflex = rs
	}
	if c := h.src.Consumer; c != nil {
		cs := c.Stats()
		st.Consumer = &cs
	}
	if e := h.src.Executor; e != nil {
		es := &ExecutorStatus{Name: e.Name(), DryRun: e.DryRun()}
		if b := e.Balances(); b != nil {
			es.BalanceSOL = b.Balance()
			es.ReservedSOL = b.Reserved()
			es.AvailableSOL = b.Available()
			es.RefreshedAt = b.RefreshedAt()
		}
		st.Executor = es
	}
	if s := h.src.Strategies; s != nil {
		st.Strategies = s.Strategies()
	}
	return st
}

// sharedPipeline copies the stats another process's controller last wrote.
// A missing snapshot leaves st untouched.
func (h *StatusHandler) sharedPipeline(ctx context.Context, st *Status) {
	var stats pipeline.Stats
	err := h.src.Snapshots.GetSnapshot(ctx, domain.KeyPipelineStats, &stats)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(ctx, "read pipeline snapshot", slog.String("error", err.Error()))
		}
		return
	}
	st.Pipeline = &stats
	if at, err := h.src.Snapshots.SnapshotUpdated(ctx, domain.KeyPipelineStats); err == nil {
		st.PipelineSeen = &at
	}
}

// GetStatus responds with the current runtime status.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Snapshot(r.Context()))
}

// Publish writes the status snapshot to the dashboard key every interval
// until ctx is cancelled. Write failures are logged and retried on the next
// tick.
func (h *StatusHandler) Publish(ctx context.Context, cache domain.SnapshotCache, interval time.Duration) error {
	if cache == nil || interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := cache.SetSnapshot(ctx, domain.KeyDashboardStats, h.Snapshot(ctx), 3*interval); err != nil && ctx.Err() == nil {
			h.logger.WarnContext(ctx, "dashboard snapshot failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
