package reflex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/eventlog"
	"github.com/alanyoungcy/sniperbot/internal/metrics"
)

// State is the position of one opportunity in the sniper state machine.
type State string

const (
	StateDetected      State = "detected"
	StateSafetyChecked State = "safety_checked"
	StateRejected      State = "rejected"
	StateQueued        State = "queued"
	StateExecuted      State = "executed"
	StateExpired       State = "expired"
	StateFailed        State = "failed"
)

// Sizing constants for reflex positions.
const (
	sizingLiquidityNorm = 10.0
	minAgeFactor        = 0.1
)

// ProtectedSubmitter submits an order with MEV protection forced.
type ProtectedSubmitter interface {
	SubmitProtected(ctx context.Context, o domain.Order) (domain.ExecutionResult, error)
}

// TierGate reports whether the wallet balance allows a strategy to trade.
type TierGate interface {
	StrategyEnabled(strategy string) bool
}

// SniperConfig holds the go/no-go thresholds and sizing bounds.
type SniperConfig struct {
	MinLiquiditySOL  float64
	MinRiskScore     float64
	MaxPositionSOL   float64
	MinPositionSOL   float64
	MaxSlippageBps   int
	ExecutionTimeout time.Duration
	StoreTimeout     time.Duration
	MaxInFlight      int
	LockTTL          time.Duration
	OpportunityTTL   time.Duration
	PositionHold     time.Duration
}

// SniperDeps are the sniper's collaborators. Tiers, Bus, Positions, Events
// and Metrics may be nil.
type SniperDeps struct {
	Executor  ProtectedSubmitter
	Tiers     TierGate
	Dedup     domain.DedupSet
	Locks     domain.LockManager
	State     domain.StateStore
	Bus       domain.SignalBus
	Positions domain.PositionBook
	Events    *eventlog.Log
	Metrics   *metrics.Registry
	Logger    *slog.Logger
}

// Outcome is the terminal result of processing one opportunity.
type Outcome struct {
	Token  string                  `json:"token"`
	State  State                   `json:"state"`
	Reason string                  `json:"reason,omitempty"`
	Size   float64                 `json:"size,omitempty"`
	Result *domain.ExecutionResult `json:"result,omitempty"`
}

// SniperStats counts terminal outcomes.
type SniperStats struct {
	Detected int64 `json:"detected"`
	Rejected int64 `json:"rejected"`
	Expired  int64 `json:"expired"`
	Executed int64 `json:"executed"`
	Failed   int64 `json:"failed"`
}

// Sniper makes the go/no-go decision for each reflex opportunity and submits
// the survivors.
type Sniper struct {
	cfg  SniperConfig
	deps SniperDeps
	now  func() time.Time
	log  *slog.Logger

	detected atomic.Int64
	rejected atomic.Int64
	expired  atomic.Int64
	executed atomic.Int64
	failed   atomic.Int64
}

// NewSniper creates a sniper.
func NewSniper(cfg SniperConfig, deps SniperDeps) *Sniper {
	if cfg.MaxPositionSOL <= 0 {
		cfg.MaxPositionSOL = 0.05
	}
	if cfg.MinPositionSOL <= 0 || cfg.MinPositionSOL > cfg.MaxPositionSOL {
		cfg.MinPositionSOL = math.Min(0.01, cfg.MaxPositionSOL)
	}
	if cfg.MaxSlippageBps <= 0 {
		cfg.MaxSlippageBps = 500
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = 2 * time.Second
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 500 * time.Millisecond
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 8
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.OpportunityTTL <= 0 {
		cfg.OpportunityTTL = 5 * time.Minute
	}
	if cfg.PositionHold <= 0 {
		cfg.PositionHold = 24 * time.Hour
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sniper{
		cfg:  cfg,
		deps: deps,
		now:  time.Now,
		log:  logger.With(slog.String("component", "reflex_sniper")),
	}
}

// Run consumes opportunities with up to MaxInFlight concurrent workers until
// ctx is cancelled or in is closed.
func (s *Sniper) Run(ctx context.Context, in <-chan domain.NewTokenOpportunity) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.MaxInFlight; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case opp, ok := <-in:
					if !ok {
						return nil
					}
					s.Process(gctx, opp)
				}
			}
		})
	}
	s.log.InfoContext(ctx, "sniper started", slog.Int("workers", s.cfg.MaxInFlight))
	return g.Wait()
}

// PositionSize scales the maximum position by liquidity, risk score and
// freshness, then clamps it to [min, max].
func (s *Sniper) PositionSize(o domain.NewTokenOpportunity) float64 {
	liq := math.Min(math.Max(o.InitialLiquiditySOL, 0)/sizingLiquidityNorm, 1)
	risk := math.Min(math.Max(o.RiskScore, 0), 1)
	age := math.Max(1-o.AgeSeconds/domain.FreshnessWindowSeconds, minAgeFactor)

	size := s.cfg.MaxPositionSOL * liq * risk * age
	return math.Min(math.Max(size, s.cfg.MinPositionSOL), s.cfg.MaxPositionSOL)
}

// Process runs one opportunity through the state machine to a terminal
// state.
func (s *Sniper) Process(ctx context.Context, opp domain.NewTokenOpportunity) Outcome {
	s.detected.Add(1)
	s.persist(ctx, opp)

	// Freshness and safety.
	age := opp.AgeAt(s.now())
	if age >= domain.FreshnessWindowSeconds {
		return s.reject(ctx, opp, fmt.Sprintf("stale: %.1fs old", age))
	}
	if !opp.IsSafe(s.cfg.MinLiquiditySOL, s.cfg.MinRiskScore) {
		return s.reject(ctx, opp, unsafeReason(opp, s.cfg))
	}

	if s.deps.Tiers != nil && !s.deps.Tiers.StrategyEnabled(domain.StrategyReflexSniping) {
		return s.reject(ctx, opp, "strategy below balance tier")
	}

	// SafetyChecked: claim the token for this epoch.
	claimed, err := s.claim(ctx, opp.TokenAddress)
	if err != nil {
		return s.fail(ctx, opp, 0, "dedup claim", err, nil)
	}
	if !claimed {
		return s.reject(ctx, opp, "already processed")
	}

	unlock, err := s.lock(ctx, opp.TokenAddress)
	if errors.Is(err, domain.ErrLockHeld) {
		return s.reject(ctx, opp, "token locked by another executor")
	}
	if err != nil {
		s.releaseClaim(ctx, opp.TokenAddress)
		return s.fail(ctx, opp, 0, "token lock", err, nil)
	}
	defer unlock()

	// Queued. Dispatch only while the opportunity is still fresh.
	age = opp.AgeAt(s.now())
	if age >= domain.FreshnessWindowSeconds {
		return s.expire(ctx, opp)
	}
	sized := opp
	sized.AgeSeconds = age
	size := s.PositionSize(sized)

	now := s.now().UTC()
	order := domain.Order{
		ID:             uuid.NewString(),
		Token:          opp.TokenAddress,
		Side:           domain.OrderSideBuy,
		Size:           size,
		Status:         domain.OrderStatusPending,
		Strategy:       domain.StrategyReflexSniping,
		MaxSlippageBps: s.cfg.MaxSlippageBps,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	ectx, cancel := context.WithTimeout(ctx, s.cfg.ExecutionTimeout)
	defer cancel()
	res, err := s.deps.Executor.SubmitProtected(ectx, order)
	if err != nil {
		return s.fail(ctx, opp, size, "submit", err, &res)
	}

	s.executed.Add(1)
	s.deps.Metrics.IncReflex(string(StateExecuted))
	if s.deps.Positions != nil {
		if err := s.deps.Positions.Open(ctx, opp.TokenAddress, s.cfg.PositionHold); err != nil {
			s.log.WarnContext(ctx, "record position failed",
				slog.String("token", opp.TokenAddress), slog.String("error", err.Error()))
		}
	}
	s.event(eventlog.KindExecution, opp.TokenAddress, fmt.Sprintf("sniped %.4f SOL via %s", size, res.Path))
	s.log.InfoContext(ctx, "snipe executed",
		slog.String("token", opp.TokenAddress),
		slog.String("dex", string(opp.Dex)),
		slog.Float64("size_sol", size),
		slog.Float64("priority", opp.PriorityScore()),
		slog.String("path", string(res.Path)),
	)
	return Outcome{Token: opp.TokenAddress, State: StateExecuted, Size: size, Result: &res}
}

// Stats returns a snapshot of the sniper counters.
func (s *Sniper) Stats() SniperStats {
	return SniperStats{
		Detected: s.detected.Load(),
		Rejected: s.rejected.Load(),
		Expired:  s.expired.Load(),
		Executed: s.executed.Load(),
		Failed:   s.failed.Load(),
	}
}

func (s *Sniper) reject(ctx context.Context, opp domain.NewTokenOpportunity, reason string) Outcome {
	s.rejected.Add(1)
	s.deps.Metrics.IncReflex(string(StateRejected))
	s.event(eventlog.KindRejected, opp.TokenAddress, reason)
	s.log.DebugContext(ctx, "opportunity rejected",
		slog.String("token", opp.TokenAddress), slog.String("reason", reason))
	return Outcome{Token: opp.TokenAddress, State: StateRejected, Reason: reason}
}

func (s *Sniper) expire(ctx context.Context, opp domain.NewTokenOpportunity) Outcome {
	s.expired.Add(1)
	s.deps.Metrics.IncReflex(string(StateExpired))
	s.event(eventlog.KindExpired, opp.TokenAddress, "aged out before dispatch")
	s.log.InfoContext(ctx, "opportunity expired before dispatch", slog.String("token", opp.TokenAddress))
	return Outcome{Token: opp.TokenAddress, State: StateExpired, Reason: "aged out before dispatch"}
}

func (s *Sniper) fail(ctx context.Context, opp domain.NewTokenOpportunity, size float64, stage string, err error, res *domain.ExecutionResult) Outcome {
	s.failed.Add(1)
	s.deps.Metrics.IncReflex(string(StateFailed))
	reason := stage + ": " + err.Error()
	s.event(eventlog.KindFailure, opp.TokenAddress, reason)
	s.log.WarnContext(ctx, "snipe failed",
		slog.String("token", opp.TokenAddress),
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
	return Outcome{Token: opp.TokenAddress, State: StateFailed, Reason: reason, Size: size, Result: res}
}

func (s *Sniper) claim(ctx context.Context, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.deps.Dedup.Claim(ctx, token)
}

func (s *Sniper) lock(ctx context.Context, token string) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.deps.Locks.Acquire(ctx, domain.PrefixTokenLock+token, s.cfg.LockTTL)
}

func (s *Sniper) releaseClaim(ctx context.Context, token string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StoreTimeout)
	defer cancel()
	if err := s.deps.Dedup.Release(rctx, token); err != nil {
		s.log.WarnContext(ctx, "release dedup claim failed",
			slog.String("token", token), slog.String("error", err.Error()))
	}
}

func (s *Sniper) event(kind eventlog.Kind, token, msg string) {
	if s.deps.Events != nil {
		s.deps.Events.Add(kind, token, msg)
	}
}

// persist stores the opportunity for other readers and announces it. It is
// best-effort; the snipe does not depend on it.
func (s *Sniper) persist(ctx context.Context, opp domain.NewTokenOpportunity) {
	if s.deps.State == nil {
		return
	}
	data, err := json.Marshal(opp)
	if err != nil {
		return
	}
	key := domain.PrefixNewTokenOpp + opp.TokenAddress
	if err := s.deps.State.Set(ctx, key, data, s.cfg.OpportunityTTL); err != nil {
		s.log.WarnContext(ctx, "persist opportunity failed",
			slog.String("token", opp.TokenAddress), slog.String("error", err.Error()))
		return
	}
	if _, err := s.deps.State.ListPush(ctx, domain.KeyNewTokenQueue, key); err != nil {
		s.log.WarnContext(ctx, "queue opportunity failed", slog.String("error", err.Error()))
	}
	if s.deps.Bus != nil {
		if err := s.deps.Bus.Publish(ctx, domain.ChannelNewTokens, data); err != nil {
			s.log.WarnContext(ctx, "publish opportunity failed", slog.String("error", err.Error()))
		}
	}
}

func unsafeReason(o domain.NewTokenOpportunity, cfg SniperConfig) string {
	switch {
	case !o.MintAuthorityBurned:
		return "unsafe: mint authority not burned"
	case !o.FreezeAuthorityBurned:
		return "unsafe: freeze authority not burned"
	case o.InitialLiquiditySOL < cfg.MinLiquiditySOL:
		return fmt.Sprintf("unsafe: liquidity %.3f SOL below %.3f", o.InitialLiquiditySOL, cfg.MinLiquiditySOL)
	default:
		return fmt.Sprintf("unsafe: risk score %.2f below %.2f", o.RiskScore, cfg.MinRiskScore)
	}
}
