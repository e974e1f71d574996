package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/sniperbot/internal/config"
	"github.com/alanyoungcy/sniperbot/internal/crypto"
	"github.com/alanyoungcy/sniperbot/internal/decision"
	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/execution"
	"github.com/alanyoungcy/sniperbot/internal/pipeline"
	"github.com/alanyoungcy/sniperbot/internal/platform/scanner"
	"github.com/alanyoungcy/sniperbot/internal/platform/sentiment"
	"github.com/alanyoungcy/sniperbot/internal/reflex"
	"github.com/alanyoungcy/sniperbot/internal/server"
	"github.com/alanyoungcy/sniperbot/internal/server/handler"
	"github.com/alanyoungcy/sniperbot/internal/server/ws"
)

const (
	dashboardInterval = 5 * time.Second
	sentimentLimitKey = "sentiment"
)

// runtime holds the components a mode started. Nil fields were not started.
type runtime struct {
	executor   *execution.Executor
	portfolio  *execution.Portfolio
	controller *pipeline.Controller
	archiver   *pipeline.Archiver
	consumer   *execution.DecisionConsumer
	listener   *reflex.Listener
	sniper     *reflex.Sniper
}

// PipelineMode runs the slow path: the controller cycle, the decision
// consumer when enabled, and the archive cron when cold storage is wired.
func (a *App) PipelineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting pipeline mode")

	rt := &runtime{}
	if err := a.buildExecution(deps, rt); err != nil {
		return err
	}
	a.buildPipeline(deps, rt)

	g, ctx := errgroup.WithContext(ctx)
	a.goExecution(ctx, g, rt)
	a.goPipeline(ctx, g, deps, rt)
	a.goServer(ctx, g, deps, rt)
	return g.Wait()
}

// ReflexMode runs the fast path: the log listener feeding the sniper.
func (a *App) ReflexMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting reflex mode")

	rt := &runtime{}
	if err := a.buildExecution(deps, rt); err != nil {
		return err
	}
	a.buildReflex(deps, rt)

	g, ctx := errgroup.WithContext(ctx)
	a.goExecution(ctx, g, rt)
	a.goReflex(ctx, g, rt)
	a.goServer(ctx, g, deps, rt)
	return g.Wait()
}

// FullMode runs both paths against one executor and one balance tracker, so
// reflex and pipeline orders reserve from the same balance.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	rt := &runtime{}
	if err := a.buildExecution(deps, rt); err != nil {
		return err
	}
	if a.cfg.Pipeline.Enabled {
		a.buildPipeline(deps, rt)
	}
	if a.cfg.Reflex.Enabled {
		a.buildReflex(deps, rt)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.goExecution(ctx, g, rt)
	a.goPipeline(ctx, g, deps, rt)
	a.goReflex(ctx, g, rt)
	a.goServer(ctx, g, deps, rt)
	return g.Wait()
}

// ServerMode serves the status API over the shared store only. It reports
// the queue and the store health of whichever bot instances write there.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.goServer(ctx, g, deps, &runtime{})
	return g.Wait()
}

// buildExecution wires the executor, its balance tracker and the portfolio
// view. Orders are simulated unless the mode trades and dry_run is off.
func (a *App) buildExecution(deps *Dependencies, rt *runtime) error {
	cfg := a.cfg
	dryRun := cfg.DryRun || !cfg.Trades()

	var signer execution.TxSigner
	if !dryRun {
		key, err := crypto.LoadKey(keyConfig(cfg.Wallet))
		if err != nil {
			return fmt.Errorf("app: load wallet key: %w", err)
		}
		s, err := crypto.NewSigner(key)
		if err != nil {
			return fmt.Errorf("app: wallet signer: %w", err)
		}
		signer = s
	}

	exec, err := execution.BuildExecutor(execution.ExecutorConfig{
		DryRun:           dryRun,
		DryRunBalanceSOL: cfg.Execution.DryRunBalanceSOL,
		Signer:           signer,
		BundlesEnabled:   cfg.Jito.Enabled,
		BlockEngineURL:   cfg.Jito.BlockEngineURL,
		TipAccounts:      cfg.Jito.TipAccounts,
		Tip: execution.TipPolicy{
			Floor: cfg.Jito.TipLamports,
			Min:   cfg.Jito.MinTipLamports,
			Max:   cfg.Jito.MaxTipLamports,
			Bps:   cfg.Jito.TipBps,
		},
		SwapURL:     cfg.Jupiter.BaseURL,
		HTTPTimeout: cfg.Jupiter.Timeout.Duration,
		Policy: execution.Policy{
			LargeOrderThreshold: cfg.Execution.LargeOrderThreshold,
			ProtectedStrategies: cfg.Execution.ProtectedStrategies,
		},
		SubmitTimeout:      cfg.Jito.SubmitTimeout.Duration,
		ConfirmTimeout:     cfg.Execution.ConfirmTimeout.Duration,
		PollInterval:       cfg.Execution.ConfirmPollInterval.Duration,
		MaxConfirmAttempts: cfg.Execution.MaxConfirmAttempts,
	}, execution.Deps{
		RPC:        deps.RPC,
		Executions: deps.Executions,
		Bus:        deps.Bus,
		Events:     deps.Events,
		Metrics:    deps.Metrics,
		Notifier:   deps.Notifier,
		Logger:     a.logger,
	})
	if err != nil {
		return fmt.Errorf("app: build executor: %w", err)
	}
	rt.executor = exec

	tiers := make([]execution.StrategyTier, 0, len(cfg.Execution.StrategyTiers))
	for _, t := range cfg.Execution.StrategyTiers {
		tiers = append(tiers, execution.StrategyTier{Name: t.Name, MinBalanceSOL: t.MinBalanceSOL})
	}
	rt.portfolio = execution.NewPortfolio(execution.PortfolioConfig{
		MaxConcurrentPositions: cfg.Decision.MaxConcurrentPositions,
		RiskTolerance:          cfg.Decision.RiskTolerance,
		MinConfidence:          cfg.Decision.MinSentimentConfidence,
		MinPositionSize:        cfg.Decision.MinPositionSOL,
		MaxPositionSize:        cfg.Decision.MaxPositionSOL,
		Tiers:                  tiers,
	}, exec.Balances(), deps.Positions, deps.Metrics)

	a.logger.Info("executor ready",
		slog.String("name", exec.Name()),
		slog.Bool("dry_run", exec.DryRun()),
	)
	return nil
}

func (a *App) buildPipeline(deps *Dependencies, rt *runtime) {
	cfg := a.cfg

	var validator pipeline.Validator = sentiment.NewClient(
		cfg.Sentiment.BaseURL, cfg.Sentiment.APIKey, cfg.Sentiment.Timeout.Duration, a.logger,
	)
	if cfg.Sentiment.RequestsPerMinute > 0 {
		validator = &limitedValidator{
			Validator: validator,
			limiter:   deps.Limiter,
			limit:     cfg.Sentiment.RequestsPerMinute,
		}
	}

	var scan pipeline.Scanner
	if cfg.Scanner.Enabled {
		scan = scanner.NewClient(cfg.Scanner.BaseURL, cfg.Scanner.Timeout.Duration, a.logger)
	}

	engine := decision.NewEngine(decision.Config{
		MinCombinedScore:   cfg.Decision.MinCombinedScore,
		WatchThreshold:     cfg.Decision.WatchThreshold,
		HighQualityScore:   cfg.Decision.HighQualityScore,
		QuantWeight:        cfg.Decision.QuantWeight,
		SentimentWeight:    cfg.Decision.SentimentWeight,
		ScoreScale:         cfg.Decision.ScoreScale,
		MaxBalanceFraction: cfg.Decision.MaxBalanceFraction,
		PriorityHalfLife:   cfg.Decision.PriorityHalfLife.Duration,
		LPMinAPR:           cfg.Decision.LPMinAPR,
		LPMinLiquidityUSD:  cfg.Decision.LPMinLiquidityUSD,
		MonitorInterval:    cfg.Decision.MonitorInterval.Duration,
		MonitorMaxDuration: cfg.Decision.MonitorMaxDuration.Duration,
	}, a.logger)

	rt.controller = pipeline.NewController(pipeline.Config{
		MaxOpportunitiesPerCycle: cfg.Pipeline.MaxOpportunitiesPerCycle,
		CycleTimeout:             cfg.Pipeline.CycleTimeout.Duration,
		ValidationTimeout:        cfg.Pipeline.ValidationTimeout.Duration,
		ValidatedTTL:             cfg.Pipeline.ValidatedTTL.Duration,
		RawTTL:                   cfg.Scanner.RecordTTL.Duration,
		ScanBatchSize:            cfg.Scanner.BatchSize,
	}, pipeline.Deps{
		State:     deps.State,
		Dedup:     deps.Dedup,
		Queue:     deps.Queue,
		Validator: validator,
		Scanner:   scan,
		Engine:    engine,
		Portfolio: rt.portfolio,
		Decisions: deps.Decisions,
		Snapshots: deps.Snapshots,
		Events:    deps.Events,
		Metrics:   deps.Metrics,
		Notifier:  deps.Notifier,
		Logger:    a.logger,
	})

	if deps.Archiver != nil {
		rt.archiver = pipeline.NewArchiver(deps.Archiver, deps.Locks, cfg.Pipeline.ArchiveRetentionDays, a.logger)
	}

	if cfg.Execution.ConsumerEnabled {
		rt.consumer = execution.NewDecisionConsumer(execution.ConsumerConfig{
			Interval:     cfg.Execution.ConsumerInterval.Duration,
			LockTTL:      cfg.Execution.LockTTL.Duration,
			PositionHold: cfg.Decision.PositionHold.Duration,
		}, deps.Queue, deps.Locks, deps.Positions, rt.portfolio, rt.executor, deps.Events, a.logger)
	}
}

func (a *App) buildReflex(deps *Dependencies, rt *runtime) {
	cfg := a.cfg

	enricher := reflex.NewRPCEnricher(deps.RPC, reflex.EnricherConfig{
		SOLPriceUSD: cfg.Reflex.SOLPriceUSD,
	}, a.logger)

	rt.listener = reflex.NewListener(reflex.ListenerConfig{
		URL:           cfg.Solana.WSURL,
		Programs:      cfg.Reflex.Programs,
		Commitment:    cfg.Solana.Commitment,
		QueueSize:     cfg.Reflex.QueueSize,
		MaxEnrich:     cfg.Reflex.MaxInFlight,
		EnrichTimeout: cfg.Reflex.EnrichTimeout.Duration,
	}, enricher, deps.Metrics, deps.Events, a.logger)

	rt.sniper = reflex.NewSniper(reflex.SniperConfig{
		MinLiquiditySOL:  cfg.Reflex.MinLiquiditySOL,
		MinRiskScore:     cfg.Reflex.MinRiskScore,
		MaxPositionSOL:   cfg.Reflex.MaxPositionSOL,
		MinPositionSOL:   cfg.Reflex.MinPositionSOL,
		MaxSlippageBps:   cfg.Execution.DefaultMaxSlippageBps,
		ExecutionTimeout: cfg.Reflex.ExecutionTimeout.Duration,
		StoreTimeout:     cfg.Reflex.StoreTimeout.Duration,
		MaxInFlight:      cfg.Reflex.MaxInFlight,
		LockTTL:          cfg.Execution.LockTTL.Duration,
		OpportunityTTL:   cfg.Reflex.OpportunityTTL.Duration,
		PositionHold:     cfg.Decision.PositionHold.Duration,
	}, reflex.SniperDeps{
		Executor:  rt.executor,
		Tiers:     rt.portfolio,
		Dedup:     deps.Dedup,
		Locks:     deps.Locks,
		State:     deps.State,
		Bus:       deps.Bus,
		Positions: deps.Positions,
		Events:    deps.Events,
		Metrics:   deps.Metrics,
		Logger:    a.logger,
	})
}

func (a *App) goExecution(ctx context.Context, g *errgroup.Group, rt *runtime) {
	if rt.executor == nil {
		return
	}
	g.Go(func() error { return rt.executor.Run(ctx) })
	g.Go(func() error {
		if err := rt.executor.Balances().Refresh(ctx); err != nil {
			a.logger.WarnContext(ctx, "initial balance refresh failed", slog.String("error", err.Error()))
		}
		return rt.executor.Balances().Run(ctx, a.cfg.Execution.BalanceRefresh.Duration)
	})
}

func (a *App) goPipeline(ctx context.Context, g *errgroup.Group, deps *Dependencies, rt *runtime) {
	if rt.controller == nil {
		return
	}
	g.Go(func() error { return rt.controller.Run(ctx, a.cfg.Pipeline.CycleInterval.Duration) })
	if rt.consumer != nil {
		g.Go(func() error { return rt.consumer.Run(ctx) })
	}
	if rt.archiver != nil {
		g.Go(func() error { return rt.archiver.RunCron(ctx, a.cfg.Pipeline.ArchiveCron) })
	}
}

func (a *App) goReflex(ctx context.Context, g *errgroup.Group, rt *runtime) {
	if rt.listener == nil || rt.sniper == nil {
		return
	}
	g.Go(func() error { return rt.listener.Run(ctx) })
	g.Go(func() error { return rt.sniper.Run(ctx, rt.listener.Opportunities()) })
}

// goServer starts the status API and the dashboard snapshot publisher.
func (a *App) goServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, rt *runtime) {
	cfg := a.cfg
	if !cfg.Server.Enabled {
		return
	}

	src := handler.StatusSources{Snapshots: deps.Snapshots}
	var probe handler.ReadinessProbe = &storeProbe{deps: deps}
	var active handler.ActiveSource
	if rt.controller != nil {
		src.Pipeline = rt.controller
		probe = rt.controller
		active = rt.controller
	}
	if rt.listener != nil {
		src.Listener = rt.listener
	}
	if rt.sniper != nil {
		src.Sniper = rt.sniper
	}
	if rt.consumer != nil {
		src.Consumer = rt.consumer
	}
	if rt.executor != nil {
		src.Executor = rt.executor
	}
	if rt.portfolio != nil {
		src.Strategies = rt.portfolio
	}

	var history *handler.HistoryHandler
	if deps.Executions != nil {
		history = handler.NewHistoryHandler(deps.Executions, deps.Decisions, deps.Audit, a.logger)
	}

	status := handler.NewStatusHandler(cfg.Mode, a.startedAt, src, a.logger)
	hub := ws.NewHub(deps.Events, deps.Bus, ws.Config{
		Mode:           cfg.Mode,
		StartedAt:      a.startedAt,
		AllowedOrigins: cfg.Server.CORSOrigins,
	}, a.logger)

	srv := server.NewServer(server.Config{
		Port:              cfg.Server.Port,
		CORSOrigins:       cfg.Server.CORSOrigins,
		APIKey:            cfg.Server.APIKey,
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
	}, server.Handlers{
		Health:        handler.NewHealthHandler(probe, a.logger),
		Status:        status,
		Opportunities: handler.NewOpportunityHandler(active, deps.Queue, a.logger),
		Events:        handler.NewEventsHandler(deps.Events),
		History:       history,
		Metrics:       deps.Metrics.Handler(),
	}, hub, deps.Limiter, a.logger)

	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return status.Publish(ctx, deps.Snapshots, dashboardInterval) })
}

// limitedValidator spaces validation calls under the service's per-minute
// quota. The limit is shared by every instance using the same store.
type limitedValidator struct {
	pipeline.Validator
	limiter domain.RateLimiter
	limit   int
}

func (v *limitedValidator) Analyze(ctx context.Context, raw domain.RawOpportunity) (domain.SentimentResult, error) {
	if err := v.limiter.Wait(ctx, sentimentLimitKey, v.limit, time.Minute); err != nil {
		return domain.SentimentResult{}, fmt.Errorf("app: sentiment rate limit: %w", err)
	}
	return v.Validator.Analyze(ctx, raw)
}

// storeProbe reports readiness for modes without a pipeline controller: the
// store is required and the RPC node only degrades.
type storeProbe struct {
	deps *Dependencies
}

func (p *storeProbe) IsReady(ctx context.Context) pipeline.Readiness {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health := map[string]bool{
		pipeline.CollaboratorStore: p.deps.State.Ping(pctx) == nil,
		CollaboratorRPC:            p.deps.RPC.Health(pctx) == nil,
	}
	p.deps.Metrics.SetHealth(health)

	return pipeline.Readiness{
		Ready:         health[pipeline.CollaboratorStore],
		Degraded:      !health[CollaboratorRPC],
		Collaborators: health,
		CheckedAt:     time.Now().UTC(),
	}
}

var _ handler.ReadinessProbe = (*storeProbe)(nil)

// keyConfig maps the wallet section to the key loader's input.
func keyConfig(w config.WalletConfig) crypto.KeyConfig {
	return crypto.KeyConfig{
		RawPrivateKey:    w.PrivateKey,
		KeypairPath:      w.KeypairPath,
		EncryptedKeyPath: w.EncryptedKeyPath,
		KeyPassword:      w.KeyPassword,
	}
}
