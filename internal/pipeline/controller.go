// Package pipeline runs the slow path: it pulls raw opportunities from the
// shared store, validates them with the sentiment service, asks the Decision
// Engine for a verdict, and enqueues the resulting decisions.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/eventlog"
	"github.com/alanyoungcy/sniperbot/internal/metrics"
	"github.com/alanyoungcy/sniperbot/internal/notify"
)

// Collaborator names used in readiness and health maps.
const (
	CollaboratorStore     = "store"
	CollaboratorValidator = "validation_service"
	CollaboratorScanner   = "scanner"
)

const probeTimeout = 5 * time.Second

// Validator returns the qualitative signal for one candidate.
type Validator interface {
	Analyze(ctx context.Context, raw domain.RawOpportunity) (domain.SentimentResult, error)
	Health(ctx context.Context) error
}

// Scanner produces raw candidates.
type Scanner interface {
	Fetch(ctx context.Context, limit int) ([]domain.RawOpportunity, error)
	Health(ctx context.Context) error
}

// Decider is the Decision Engine.
type Decider interface {
	Decide(opp domain.ValidatedOpportunity, pc domain.PortfolioContext) domain.TradingDecision
}

// PortfolioSource supplies the live portfolio context for sizing.
type PortfolioSource interface {
	Context(ctx context.Context) (domain.PortfolioContext, error)
}

// Config tunes the controller.
type Config struct {
	MaxOpportunitiesPerCycle int
	CycleTimeout             time.Duration
	ValidationTimeout        time.Duration
	ValidatedTTL             time.Duration
	RawTTL                   time.Duration
	ScanBatchSize            int
}

// Deps are the controller's collaborators. Scanner, Decisions, Snapshots,
// Events, Metrics and Notifier may be nil.
type Deps struct {
	State     domain.StateStore
	Dedup     domain.DedupSet
	Queue     domain.DecisionQueue
	Validator Validator
	Scanner   Scanner
	Engine    Decider
	Portfolio PortfolioSource
	Decisions domain.DecisionLog
	Snapshots domain.SnapshotCache
	Events    *eventlog.Log
	Metrics   *metrics.Registry
	Notifier  *notify.Notifier
	Logger    *slog.Logger
}

// Readiness is the result of IsReady.
type Readiness struct {
	Ready         bool            `json:"ready"`
	Degraded      bool            `json:"degraded"`
	Collaborators map[string]bool `json:"collaborators"`
	CheckedAt     time.Time       `json:"checked_at"`
}

// Stats is the running cycle statistics record.
type Stats struct {
	CyclesCompleted          int64         `json:"cycles_completed"`
	CyclesFailed             int64         `json:"cycles_failed"`
	TotalCandidatesFound     int64         `json:"total_candidates_found"`
	TotalCandidatesValidated int64         `json:"total_candidates_validated"`
	TotalDecisionsMade       int64         `json:"total_decisions_made"`
	LastCycleDuration        time.Duration `json:"last_cycle_duration"`
	AverageCycleDuration     time.Duration `json:"average_cycle_duration"`
	LastCycleAt              time.Time     `json:"last_cycle_at"`
}

// CycleReport describes one cycle.
type CycleReport struct {
	CycleID   string        `json:"cycle_id"`
	Ingested  int           `json:"ingested"`
	Found     int           `json:"found"`
	Validated int           `json:"validated"`
	Decided   int           `json:"decided"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
	TimedOut  bool          `json:"timed_out"`
}

// Controller is the Pipeline Controller.
type Controller struct {
	cfg    Config
	deps   Deps
	now    func() time.Time
	logger *slog.Logger

	mu         sync.Mutex
	stats      Stats
	totalTime  time.Duration
	active     map[string]domain.ValidatedOpportunity
	lastHealth map[string]bool
}

// NewController creates a controller.
func NewController(cfg Config, deps Deps) *Controller {
	if cfg.MaxOpportunitiesPerCycle <= 0 {
		cfg.MaxOpportunitiesPerCycle = 20
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 2 * time.Minute
	}
	if cfg.ValidationTimeout <= 0 {
		cfg.ValidationTimeout = 15 * time.Second
	}
	if cfg.ValidatedTTL <= 0 {
		cfg.ValidatedTTL = time.Hour
	}
	if cfg.RawTTL <= 0 {
		cfg.RawTTL = time.Hour
	}
	if cfg.ScanBatchSize <= 0 {
		cfg.ScanBatchSize = cfg.MaxOpportunitiesPerCycle
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:        cfg,
		deps:       deps,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "pipeline")),
		active:     make(map[string]domain.ValidatedOpportunity),
		lastHealth: make(map[string]bool),
	}
}

// IsReady probes the store, the validation service and, when configured,
// the scanner. It has no side effects. The controller is ready when the
// store and the validation service answer; a missing scanner only degrades
// it.
func (c *Controller) IsReady(ctx context.Context) Readiness {
	health := c.probe(ctx)
	r := Readiness{
		Collaborators: health,
		CheckedAt:     c.now().UTC(),
	}
	r.Ready = health[CollaboratorStore] && health[CollaboratorValidator]
	for _, ok := range health {
		if !ok {
			r.Degraded = true
		}
	}
	return r
}

// HealthCheck probes every collaborator and caches the result as the last
// known health.
func (c *Controller) HealthCheck(ctx context.Context) map[string]bool {
	health := c.probe(ctx)

	c.mu.Lock()
	c.lastHealth = health
	c.mu.Unlock()

	c.deps.Metrics.SetHealth(health)
	return copyHealth(health)
}

// LastHealth returns the most recent HealthCheck result.
func (c *Controller) LastHealth() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyHealth(c.lastHealth)
}

func (c *Controller) probe(ctx context.Context) map[string]bool {
	type check struct {
		name string
		fn   func(context.Context) error
	}
	checks := []check{
		{CollaboratorStore, c.deps.State.Ping},
		{CollaboratorValidator, c.deps.Validator.Health},
	}
	if c.deps.Scanner != nil {
		checks = append(checks, check{CollaboratorScanner, c.deps.Scanner.Health})
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]bool, len(checks))
	)
	for _, ch := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()
			err := ch.fn(pctx)
			mu.Lock()
			out[ch.name] = err == nil
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

// Stats returns a copy of the running statistics.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// ActiveOpportunities returns the current cycle's opportunities that have
// not reached a terminal status.
func (c *Controller) ActiveOpportunities() []domain.ValidatedOpportunity {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ValidatedOpportunity, 0, len(c.active))
	for _, v := range c.active {
		if !v.Status.Terminal() {
			out = append(out, v)
		}
	}
	return out
}

// Run calls RunCycle immediately and then every interval until ctx is
// cancelled. Cycle failures are logged and retried on the next tick.
func (c *Controller) Run(ctx context.Context, interval time.Duration) error {
	c.logger.InfoContext(ctx, "pipeline controller started",
		slog.Duration("interval", interval),
		slog.Duration("cycle_timeout", c.cfg.CycleTimeout),
	)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		c.tick(ctx)
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "pipeline controller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (c *Controller) tick(ctx context.Context) {
	health := c.HealthCheck(ctx)
	if !health[CollaboratorStore] || !health[CollaboratorValidator] {
		c.logger.WarnContext(ctx, "pipeline not ready, skipping cycle", slog.Any("health", health))
		c.event(eventlog.KindHealth, "", "pipeline not ready: "+describeHealth(health))
		return
	}
	if _, err := c.RunCycle(ctx); err != nil && ctx.Err() == nil {
		c.logger.WarnContext(ctx, "pipeline cycle failed", slog.String("error", err.Error()))
	}
}

// RunCycle performs one orchestrated pass under the cycle timeout: an
// optional scanner ingest followed by ProcessOpportunitiesFromStore.
// Decisions enqueued before a timeout stay valid.
func (c *Controller) RunCycle(ctx context.Context) (CycleReport, error) {
	start := c.now()
	rep := CycleReport{CycleID: uuid.NewString()}

	cctx, cancel := context.WithTimeout(ctx, c.cfg.CycleTimeout)
	defer cancel()

	c.mu.Lock()
	c.active = make(map[string]domain.ValidatedOpportunity)
	c.mu.Unlock()

	if c.deps.Scanner != nil {
		n, err := c.ingest(cctx)
		if err != nil {
			c.logger.WarnContext(ctx, "scanner ingest failed", slog.String("error", err.Error()))
		}
		rep.Ingested = n
	}

	err := c.process(cctx, c.cfg.MaxOpportunitiesPerCycle, &rep)
	if err == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		err = context.DeadlineExceeded
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		rep.TimedOut = true
		err = &domain.CycleTimeout{Timeout: c.cfg.CycleTimeout, Advanced: rep.Decided, Attempted: rep.Found}
	}
	rep.Duration = c.now().Sub(start)
	c.finishCycle(ctx, rep, err)
	return rep, err
}

// ProcessOpportunitiesFromStore advances up to maxCount unprocessed raw
// opportunities to a decision and returns how many were advanced.
func (c *Controller) ProcessOpportunitiesFromStore(ctx context.Context, maxCount int) (int, error) {
	var rep CycleReport
	err := c.process(ctx, maxCount, &rep)
	c.mu.Lock()
	c.addTotals(rep)
	c.mu.Unlock()
	return rep.Decided, err
}

func (c *Controller) process(ctx context.Context, maxCount int, rep *CycleReport) error {
	keys, err := c.deps.State.ListRange(ctx, domain.KeyRawOpportunities, 0, -1)
	if err != nil {
		return &domain.CollaboratorUnavailable{Name: CollaboratorStore, Err: err}
	}
	pc, err := c.deps.Portfolio.Context(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if rep.Found >= maxCount {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		addr := strings.TrimPrefix(key, domain.PrefixRawOpportunity)
		if seen[addr] {
			continue
		}
		seen[addr] = true

		done, err := c.deps.Dedup.Contains(ctx, addr)
		if err != nil {
			return &domain.CollaboratorUnavailable{Name: CollaboratorStore, Err: err}
		}
		if done {
			continue
		}

		rep.Found++
		c.deps.Metrics.AddCandidates("found", 1)
		d, err := c.processOne(ctx, key, addr, rep, pc)
		if err != nil {
			rep.Skipped++
			var ce *domain.CandidateError
			if errors.As(err, &ce) {
				c.logger.InfoContext(ctx, "candidate skipped", slog.String("key", key), slog.String("error", err.Error()))
			} else if ctx.Err() == nil {
				c.logger.WarnContext(ctx, "candidate failed", slog.String("key", key), slog.String("error", err.Error()))
			}
			continue
		}

		rep.Decided++
		c.deps.Metrics.AddCandidates("decided", 1)
		if d.Type == domain.DecisionBuyToken || d.Type == domain.DecisionProvideLiquidity {
			pc.OpenPositions++
			pc.AvailableBalance -= decisionAmount(d)
		}
	}
	return nil
}

func (c *Controller) processOne(ctx context.Context, key, addr string, rep *CycleReport, pc domain.PortfolioContext) (domain.TradingDecision, error) {
	data, err := c.deps.State.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.TradingDecision{}, &domain.CandidateError{Address: addr, Reason: "record missing or expired"}
	}
	if err != nil {
		return domain.TradingDecision{}, &domain.CollaboratorUnavailable{Name: CollaboratorStore, Err: err}
	}
	raw, err := domain.DecodeRawOpportunity(key, data)
	if err != nil {
		return domain.TradingDecision{}, err
	}
	now := c.now().UTC()
	if raw.Expired(now) {
		return domain.TradingDecision{}, &domain.CandidateError{Address: raw.Address, Reason: "opportunity expired"}
	}

	claimed, err := c.deps.Dedup.Claim(ctx, raw.Address)
	if err != nil {
		return domain.TradingDecision{}, &domain.CollaboratorUnavailable{Name: CollaboratorStore, Err: err}
	}
	if !claimed {
		return domain.TradingDecision{}, &domain.CandidateError{Address: raw.Address, Reason: "already processed"}
	}

	v := domain.NewValidatedOpportunity(raw, rep.CycleID, now)
	_ = v.Advance(domain.OpportunityValidating, now)
	c.track(v)

	vctx, cancel := context.WithTimeout(ctx, c.cfg.ValidationTimeout)
	sent, err := c.deps.Validator.Analyze(vctx, raw)
	cancel()
	if err != nil {
		c.release(ctx, raw.Address)
		_ = v.Advance(domain.OpportunityExpired, c.now().UTC())
		c.track(v)
		return domain.TradingDecision{}, &domain.CandidateError{Address: raw.Address, Reason: "validation failed", Err: err}
	}

	rep.Validated++
	c.deps.Metrics.AddCandidates("validated", 1)
	v.Sentiment = sent
	v.Risk = domain.AssessRisk(raw, sent)
	_ = v.Advance(domain.OpportunityValidated, c.now().UTC())
	c.track(v)
	c.persistValidated(ctx, v)

	d := c.deps.Engine.Decide(v, pc)
	if err := c.deps.Queue.Enqueue(ctx, d); err != nil {
		// Nothing was persisted, so a later cycle must see the token again.
		c.release(ctx, raw.Address)
		_ = v.Advance(domain.OpportunityExpired, c.now().UTC())
		c.track(v)
		return domain.TradingDecision{}, &domain.CollaboratorUnavailable{Name: CollaboratorStore, Err: err}
	}
	if c.deps.Decisions != nil {
		if err := c.deps.Decisions.Append(context.WithoutCancel(ctx), d); err != nil {
			c.logger.WarnContext(ctx, "append decision log failed",
				slog.String("decision_id", d.ID), slog.String("error", err.Error()))
		}
	}
	c.deps.Metrics.IncDecision(string(d.Type))

	v.DecisionID = d.ID
	_ = v.Advance(domain.OpportunityDecided, c.now().UTC())
	c.track(v)
	c.persistValidated(ctx, v)

	c.event(eventlog.KindDecision, raw.Address, fmt.Sprintf("%s: %s", d.Type, d.Reason()))
	c.logger.InfoContext(ctx, "decision enqueued",
		slog.String("token", raw.Address),
		slog.String("decision_id", d.ID),
		slog.String("type", string(d.Type)),
		slog.Float64("confidence", d.Confidence),
		slog.String("risk", string(v.Risk)),
	)
	return d, nil
}

// ingest pulls a scanner batch into the store.
func (c *Controller) ingest(ctx context.Context) (int, error) {
	batch, err := c.deps.Scanner.Fetch(ctx, c.cfg.ScanBatchSize)
	if err != nil {
		return 0, &domain.CollaboratorUnavailable{Name: CollaboratorScanner, Err: err}
	}
	n := 0
	for _, raw := range batch {
		done, err := c.deps.Dedup.Contains(ctx, raw.Address)
		if err != nil {
			return n, &domain.CollaboratorUnavailable{Name: CollaboratorStore, Err: err}
		}
		if done {
			continue
		}
		data, err := json.Marshal(raw)
		if err != nil {
			continue
		}
		key := domain.PrefixRawOpportunity + raw.Address
		ttl := c.cfg.RawTTL
		if raw.ExpiresAt != nil {
			ttl = raw.ExpiresAt.Sub(c.now())
			if ttl <= 0 {
				continue
			}
		}
		if err := c.deps.State.Set(ctx, key, data, ttl); err != nil {
			return n, &domain.CollaboratorUnavailable{Name: CollaboratorStore, Err: err}
		}
		if _, err := c.deps.State.ListPush(ctx, domain.KeyRawOpportunities, key); err != nil {
			return n, &domain.CollaboratorUnavailable{Name: CollaboratorStore, Err: err}
		}
		n++
	}
	return n, nil
}

func (c *Controller) finishCycle(ctx context.Context, rep CycleReport, err error) {
	c.mu.Lock()
	c.addTotals(rep)
	if err != nil {
		c.stats.CyclesFailed++
	} else {
		c.stats.CyclesCompleted++
	}
	c.stats.LastCycleDuration = rep.Duration
	c.stats.LastCycleAt = c.now().UTC()
	c.totalTime += rep.Duration
	if n := c.stats.CyclesCompleted + c.stats.CyclesFailed; n > 0 {
		c.stats.AverageCycleDuration = c.totalTime / time.Duration(n)
	}
	stats := c.stats
	c.mu.Unlock()

	result := "ok"
	if err != nil {
		result = "failed"
		if rep.TimedOut {
			result = "timeout"
		}
	}
	c.deps.Metrics.ObserveCycle(result, rep.Duration)

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), probeTimeout)
	defer cancel()
	if c.deps.Snapshots != nil {
		if serr := c.deps.Snapshots.SetSnapshot(wctx, domain.KeyPipelineStats, stats, 0); serr != nil {
			c.logger.WarnContext(ctx, "write stats snapshot failed", slog.String("error", serr.Error()))
		}
	}

	msg := fmt.Sprintf("cycle %s: found %d, validated %d, decided %d in %s",
		result, rep.Found, rep.Validated, rep.Decided, rep.Duration.Round(time.Millisecond))
	c.event(eventlog.KindCycle, "", msg)

	if err != nil {
		c.logger.WarnContext(ctx, "pipeline cycle finished with error",
			slog.String("cycle_id", rep.CycleID),
			slog.Int("found", rep.Found),
			slog.Int("decided", rep.Decided),
			slog.String("error", err.Error()),
		)
		c.deps.Notifier.Go(notify.Message{
			Event:    notify.EventCycleFailed,
			Title:    "Pipeline cycle failed",
			Body:     err.Error(),
			Severity: notify.SeverityWarn,
			Fields: []notify.Field{
				{Name: "cycle", Value: rep.CycleID},
				{Name: "found", Value: strconv.Itoa(rep.Found)},
			},
		})
		return
	}
	c.logger.InfoContext(ctx, "pipeline cycle complete",
		slog.String("cycle_id", rep.CycleID),
		slog.Int("ingested", rep.Ingested),
		slog.Int("found", rep.Found),
		slog.Int("validated", rep.Validated),
		slog.Int("decided", rep.Decided),
		slog.Duration("duration", rep.Duration),
	)
}

// addTotals folds a report into the running totals. Caller must hold c.mu.
func (c *Controller) addTotals(rep CycleReport) {
	c.stats.TotalCandidatesFound += int64(rep.Found)
	c.stats.TotalCandidatesValidated += int64(rep.Validated)
	c.stats.TotalDecisionsMade += int64(rep.Decided)
}

func (c *Controller) track(v domain.ValidatedOpportunity) {
	c.mu.Lock()
	c.active[v.Raw.Address] = v
	c.mu.Unlock()
}

func (c *Controller) release(ctx context.Context, addr string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), probeTimeout)
	defer cancel()
	if err := c.deps.Dedup.Release(rctx, addr); err != nil {
		c.logger.WarnContext(ctx, "release claim failed", slog.String("token", addr), slog.String("error", err.Error()))
	}
}

func (c *Controller) persistValidated(ctx context.Context, v domain.ValidatedOpportunity) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.deps.State.Set(ctx, domain.PrefixValidated+v.Raw.Address, data, c.cfg.ValidatedTTL); err != nil {
		c.logger.WarnContext(ctx, "persist validated opportunity failed",
			slog.String("token", v.Raw.Address), slog.String("error", err.Error()))
	}
}

func (c *Controller) event(kind eventlog.Kind, token, msg string) {
	if c.deps.Events != nil {
		c.deps.Events.Add(kind, token, msg)
	}
}

func decisionAmount(d domain.TradingDecision) float64 {
	switch {
	case d.BuyToken != nil:
		return d.BuyToken.TargetAmount
	case d.ProvideLiquidity != nil:
		return d.ProvideLiquidity.Amount
	}
	return 0
}

func copyHealth(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func describeHealth(h map[string]bool) string {
	var down []string
	for name, ok := range h {
		if !ok {
			down = append(down, name)
		}
	}
	if len(down) == 0 {
		return "all collaborators up"
	}
	return strings.Join(down, ", ") + " down"
}
