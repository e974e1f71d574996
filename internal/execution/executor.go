package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/eventlog"
	"github.com/alanyoungcy/sniperbot/internal/metrics"
	"github.com/alanyoungcy/sniperbot/internal/notify"
	"github.com/alanyoungcy/sniperbot/internal/platform/jito"
	"github.com/alanyoungcy/sniperbot/internal/platform/jupiter"
	"github.com/alanyoungcy/sniperbot/internal/platform/solanarpc"
)

// RPC is the node surface the executor needs.
type RPC interface {
	BalanceSource
	SendTransaction(ctx context.Context, txBase64 string) (string, error)
	GetSignatureStatuses(ctx context.Context, sigs ...string) ([]*solanarpc.SignatureStatus, error)
	GetTransaction(ctx context.Context, sig string) (*solanarpc.Transaction, error)
}

// BundleClient submits and tracks block-engine bundles.
type BundleClient interface {
	SendBundle(ctx context.Context, txs []string) (string, error)
	GetBundleStatuses(ctx context.Context, bundleID string) (*jito.BundleResult, error)
	InflightStatus(ctx context.Context, bundleID string) (domain.BundleStatus, error)
}

// SwapClient builds unsigned swap transactions.
type SwapClient interface {
	Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (jupiter.Quote, error)
	Swap(ctx context.Context, quote jupiter.Quote, user string) (jupiter.Swap, error)
}

// TxSigner signs transactions with the wallet key.
type TxSigner interface {
	PublicKey() solana.PublicKey
	SignTransaction(tx *solana.Transaction) (solana.Signature, error)
}

// ExecutorConfig holds the material an Executor is built from.
type ExecutorConfig struct {
	DryRun           bool
	DryRunBalanceSOL float64

	RPC    solanarpc.Config
	Signer TxSigner

	BundlesEnabled bool
	BlockEngineURL string
	TipAccounts    []string
	Tip            TipPolicy

	SwapURL     string
	HTTPTimeout time.Duration

	Policy             Policy
	SubmitTimeout      time.Duration
	ConfirmTimeout     time.Duration
	PollInterval       time.Duration
	MaxConfirmAttempts int
	GuardTTL           time.Duration
}

// Deps are the collaborators of an Executor. Nil clients are built from
// ExecutorConfig; nil sinks are skipped.
type Deps struct {
	RPC      RPC
	Bundles  BundleClient
	Swaps    SwapClient
	Balances *BalanceTracker

	Executions domain.ExecutionStore
	Bus        domain.SignalBus
	Events     *eventlog.Log
	Metrics    *metrics.Registry
	Notifier   *notify.Notifier
	Logger     *slog.Logger
}

// Executor submits orders. Each order id is signed and sent at most once.
type Executor struct {
	cfg         ExecutorConfig
	rpc         RPC
	bundles     BundleClient
	swaps       SwapClient
	signer      TxSigner
	balances    *BalanceTracker
	tipAccounts []solana.PublicKey
	tipCursor   atomic.Uint64
	guard       *submissionGuard
	poll        poller

	executions domain.ExecutionStore
	bus        domain.SignalBus
	events     *eventlog.Log
	metrics    *metrics.Registry
	notifier   *notify.Notifier
	logger     *slog.Logger
	now        func() time.Time
}

// BuildExecutor validates cfg and wires an Executor. Live trading requires an
// RPC endpoint and a wallet signer; enabled bundles require a block-engine
// URL and at least one valid tip account. Missing material yields a
// *domain.ConfigurationError.
func BuildExecutor(cfg ExecutorConfig, deps Deps) (*Executor, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "executor"))

	if !cfg.DryRun {
		if cfg.RPC.URL == "" && deps.RPC == nil {
			return nil, &domain.ConfigurationError{Field: "solana.rpc_url", Reason: "required for live trading"}
		}
		if cfg.Signer == nil {
			return nil, &domain.ConfigurationError{Field: "wallet", Reason: "a wallet key is required for live trading"}
		}
		if cfg.SwapURL == "" && deps.Swaps == nil {
			return nil, &domain.ConfigurationError{Field: "jupiter.base_url", Reason: "required for live trading"}
		}
	}

	var tipAccounts []solana.PublicKey
	if cfg.BundlesEnabled {
		if cfg.BlockEngineURL == "" && deps.Bundles == nil {
			return nil, &domain.ConfigurationError{Field: "jito.block_engine_url", Reason: "required when bundles are enabled"}
		}
		if len(cfg.TipAccounts) == 0 {
			return nil, &domain.ConfigurationError{Field: "jito.tip_accounts", Reason: "at least one tip account is required"}
		}
		for _, a := range cfg.TipAccounts {
			pk, err := solana.PublicKeyFromBase58(a)
			if err != nil {
				return nil, &domain.ConfigurationError{Field: "jito.tip_accounts", Reason: fmt.Sprintf("invalid account %q: %v", a, err)}
			}
			tipAccounts = append(tipAccounts, pk)
		}
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 10 * time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxConfirmAttempts <= 0 {
		cfg.MaxConfirmAttempts = 15
	}
	if cfg.GuardTTL <= 0 {
		cfg.GuardTTL = 24 * time.Hour
	}

	rpc := deps.RPC
	if rpc == nil && cfg.RPC.URL != "" && !cfg.DryRun {
		rpc = solanarpc.New(cfg.RPC, logger)
	}
	bundles := deps.Bundles
	if bundles == nil && cfg.BundlesEnabled && !cfg.DryRun {
		bundles = jito.New(cfg.BlockEngineURL, timeout, logger)
	}
	swaps := deps.Swaps
	if swaps == nil && cfg.SwapURL != "" && !cfg.DryRun {
		swaps = jupiter.New(cfg.SwapURL, timeout, logger)
	}

	balances := deps.Balances
	if balances == nil {
		if cfg.DryRun {
			balances = NewBalanceTracker(nil, "", deps.Metrics, logger)
			balances.Set(cfg.DryRunBalanceSOL)
		} else {
			balances = NewBalanceTracker(rpc, cfg.Signer.PublicKey().String(), deps.Metrics, logger)
		}
	}

	return &Executor{
		cfg:         cfg,
		rpc:         rpc,
		bundles:     bundles,
		swaps:       swaps,
		signer:      cfg.Signer,
		balances:    balances,
		tipAccounts: tipAccounts,
		guard:       newSubmissionGuard(cfg.GuardTTL),
		poll: poller{
			interval: cfg.PollInterval,
			attempts: cfg.MaxConfirmAttempts,
			timeout:  cfg.ConfirmTimeout,
		},
		executions: deps.Executions,
		bus:        deps.Bus,
		events:     deps.Events,
		metrics:    deps.Metrics,
		notifier:   deps.Notifier,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// SupportsBundles reports whether orders can travel as tipped bundles.
func (e *Executor) SupportsBundles() bool {
	return e.cfg.BundlesEnabled && len(e.tipAccounts) > 0 && (e.bundles != nil || e.cfg.DryRun)
}

// SupportsMevProtection reports whether protected submission is available.
// Bundles are the only protection mechanism.
func (e *Executor) SupportsMevProtection() bool {
	return e.SupportsBundles()
}

// Name identifies the executor flavour.
func (e *Executor) Name() string {
	switch {
	case e.cfg.DryRun:
		return "dry-run"
	case e.SupportsBundles():
		return "jito-bundle"
	default:
		return "standard-rpc"
	}
}

// DryRun reports whether fills are simulated.
func (e *Executor) DryRun() bool { return e.cfg.DryRun }

// Balances returns the executor's balance tracker.
func (e *Executor) Balances() *BalanceTracker { return e.balances }

// Submit executes o, choosing bundle or standard submission by policy.
func (e *Executor) Submit(ctx context.Context, o domain.Order) (domain.ExecutionResult, error) {
	return e.submit(ctx, o, false)
}

// SubmitProtected executes o as a bundle regardless of policy when bundles
// are available.
func (e *Executor) SubmitProtected(ctx context.Context, o domain.Order) (domain.ExecutionResult, error) {
	return e.submit(ctx, o, true)
}

// failure is a submission error with the stage it happened in. unknown marks
// an error after a send whose on-chain outcome could not be observed.
type failure struct {
	reason  string
	err     error
	unknown bool
}

// holdFor is the SOL reserved for o: the buy notional plus the bundle tip.
func (e *Executor) holdFor(o domain.Order, bundle bool) float64 {
	hold := 0.0
	if o.Side == domain.OrderSideBuy {
		hold = o.Size
	}
	if bundle {
		hold += ToSOL(e.cfg.Tip.Lamports(o.Size))
	}
	return hold
}

func (e *Executor) submit(ctx context.Context, o domain.Order, forceMev bool) (domain.ExecutionResult, error) {
	start := e.now()
	res := domain.ExecutionResult{
		OrderID:             o.ID,
		Token:               o.Token,
		Status:              domain.OrderStatusPending,
		Path:                domain.PathStandard,
		ExpectedSlippageBps: o.MaxSlippageBps,
		DryRun:              e.cfg.DryRun,
		SubmittedAt:         start.UTC(),
	}

	if o.Status == "" {
		o.Status = domain.OrderStatusPending
	}
	if err := o.Validate(); err != nil {
		return e.reject(res, o, "invalid order", err)
	}
	if o.Status != domain.OrderStatusPending {
		return e.reject(res, o, "invalid order", fmt.Errorf("status %s: %w", o.Status, domain.ErrInvalidTransition))
	}

	signed, err := e.guard.begin(o.ID)
	if err != nil {
		return e.reject(res, o, "duplicate submission", err)
	}
	defer e.guard.finish(o.ID)

	protect := forceMev || ShouldUseMevProtection(o, e.cfg.Policy)
	useBundle := protect && e.SupportsBundles()
	if protect && !useBundle {
		e.logger.WarnContext(ctx, "mev protection requested but bundles are unavailable",
			slog.String("order_id", o.ID),
			slog.String("token", o.Token),
		)
	}
	res.MevProtected = useBundle
	if useBundle {
		res.Path = domain.PathBundle
	}

	if hold := e.holdFor(o, useBundle); hold > 0 {
		if err := e.balances.Reserve(o.ID, hold); err != nil {
			return e.settle(ctx, o, res, &failure{reason: "reserve funds", err: err}, start)
		}
	}

	var f *failure
	if e.cfg.DryRun {
		e.simulate(o, &res)
	} else {
		f = e.submitLive(ctx, o, &res, signed, useBundle)
	}
	return e.settle(ctx, o, res, f, start)
}

// reject returns a failure that happened before the order was admitted. It is
// not recorded.
func (e *Executor) reject(res domain.ExecutionResult, o domain.Order, reason string, err error) (domain.ExecutionResult, error) {
	res.Status = domain.OrderStatusRejected
	res.Error = err.Error()
	return res, &domain.ExecutionError{OrderID: o.ID, Token: o.Token, Reason: reason, Err: err}
}

// simulate produces a synthetic fill. Nothing leaves the process.
func (e *Executor) simulate(o domain.Order, res *domain.ExecutionResult) {
	e.guard.markSent(o.ID)
	res.Path = domain.PathDryRun
	res.DryRun = true
	res.FilledSize = o.Size
	res.FilledPrice = o.Price
	res.ActualSlippageBps = 0
}

func (e *Executor) submitLive(ctx context.Context, o domain.Order, res *domain.ExecutionResult, signed *signedOrder, useBundle bool) *failure {
	if signed == nil {
		s, f := e.prepare(ctx, o, useBundle)
		if f != nil {
			return f
		}
		signed = e.guard.store(o.ID, s)
	}

	res.Signature = signed.signature
	res.MevProtected = signed.bundle
	if signed.bundle {
		res.Path = domain.PathBundle
		res.TipLamports = signed.tipLamports
	} else {
		res.Path = domain.PathStandard
	}

	// Any send attempt spends the order id, even if the call errors.
	e.guard.markSent(o.ID)

	sendCtx, cancel := context.WithTimeout(ctx, e.cfg.SubmitTimeout)
	defer cancel()

	// The caller's deadline covers the send only. Once a payload may be on
	// its way to a leader, confirmation runs to ConfirmTimeout regardless.
	confirmCtx := context.WithoutCancel(ctx)

	if signed.bundle {
		id, err := e.bundles.SendBundle(sendCtx, signed.payloads)
		if err != nil {
			return &failure{reason: "send bundle", err: err}
		}
		res.BundleID = id
		res.BundleStatus = domain.BundlePending
		status, err := e.awaitBundle(confirmCtx, id)
		res.BundleStatus = status
		if err != nil {
			return confirmFailure("bundle outcome", err)
		}
	} else {
		if _, err := e.rpc.SendTransaction(sendCtx, signed.payloads[0]); err != nil {
			return &failure{reason: "send transaction", err: err}
		}
		if err := e.awaitSignature(confirmCtx, signed.signature); err != nil {
			return confirmFailure("confirm transaction", err)
		}
	}

	detailsCtx, cancelDetails := context.WithTimeout(confirmCtx, e.cfg.SubmitTimeout)
	defer cancelDetails()
	e.fillDetails(detailsCtx, o, res, signed)
	return nil
}

// confirmFailure classifies a post-send error. A timeout leaves the outcome
// unknown; failed, dropped and reverted payloads are definite.
func confirmFailure(reason string, err error) *failure {
	if errors.Is(err, domain.ErrConfirmTimeout) {
		return &failure{reason: reason, err: fmt.Errorf("%w: %w", domain.ErrOutcomeUnknown, err), unknown: true}
	}
	return &failure{reason: reason, err: err}
}

// prepare quotes, builds and signs the transactions for o.
func (e *Executor) prepare(ctx context.Context, o domain.Order, bundle bool) (*signedOrder, *failure) {
	user := e.signer.PublicKey()
	inMint, outMint, amount := jupiter.WrappedSOL, o.Token, ToLamports(o.Size)

	if o.Side == domain.OrderSideSell {
		// Size is SOL notional; find the token amount it corresponds to.
		probe, err := e.swaps.Quote(ctx, jupiter.WrappedSOL, o.Token, amount, o.MaxSlippageBps)
		if err != nil {
			return nil, &failure{reason: "quote", err: err}
		}
		tokens, err := strconv.ParseUint(probe.OutAmount, 10, 64)
		if err != nil {
			return nil, &failure{reason: "quote", err: fmt.Errorf("out amount %q: %w", probe.OutAmount, err)}
		}
		inMint, outMint, amount = o.Token, jupiter.WrappedSOL, tokens
	}

	quote, err := e.swaps.Quote(ctx, inMint, outMint, amount, o.MaxSlippageBps)
	if err != nil {
		return nil, &failure{reason: "quote", err: err}
	}
	quotedOut, _ := strconv.ParseUint(quote.OutAmount, 10, 64)

	swap, err := e.swaps.Swap(ctx, quote, user.String())
	if err != nil {
		return nil, &failure{reason: "build swap", err: err}
	}
	tx, err := solana.TransactionFromBase64(swap.SwapTransaction)
	if err != nil {
		return nil, &failure{reason: "decode swap", err: err}
	}
	sig, err := e.signer.SignTransaction(tx)
	if err != nil {
		return nil, &failure{reason: "sign", err: err}
	}
	swapB64, err := tx.ToBase64()
	if err != nil {
		return nil, &failure{reason: "encode swap", err: err}
	}

	s := &signedOrder{
		payloads:  []string{swapB64},
		signature: sig.String(),
		outMint:   outMint,
		quotedOut: quotedOut,
		inAmount:  amount,
	}
	if !bundle {
		return s, nil
	}

	tip := e.cfg.Tip.Lamports(o.Size)
	tipTx, err := e.tipTransaction(tip, tx.Message.RecentBlockhash)
	if err != nil {
		return nil, &failure{reason: "build tip", err: err}
	}
	tipB64, err := tipTx.ToBase64()
	if err != nil {
		return nil, &failure{reason: "encode tip", err: err}
	}
	s.payloads = append(s.payloads, tipB64)
	s.bundle = true
	s.tipLamports = tip
	return s, nil
}

// tipTransaction builds a signed transfer of lamports to the next tip
// account, sharing the swap's blockhash so both expire together.
func (e *Executor) tipTransaction(lamports uint64, blockhash solana.Hash) (*solana.Transaction, error) {
	payer := e.signer.PublicKey()
	to := e.tipAccounts[e.tipCursor.Add(1)%uint64(len(e.tipAccounts))]

	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(lamports, payer, to).Build()},
		blockhash,
		solana.TransactionPayer(payer),
	)
	if err != nil {
		return nil, fmt.Errorf("execution: tip transaction: %w", err)
	}
	if _, err := e.signer.SignTransaction(tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// fillDetails reads the confirmed transaction to compute fee, fill price and
// realised slippage. Read failures leave the quote-based defaults.
func (e *Executor) fillDetails(ctx context.Context, o domain.Order, res *domain.ExecutionResult, s *signedOrder) {
	res.FilledSize = o.Size
	res.FilledPrice = o.Price

	tx, err := e.rpc.GetTransaction(ctx, s.signature)
	if err != nil || tx == nil {
		e.logger.DebugContext(ctx, "fill details unavailable",
			slog.String("order_id", o.ID),
			slog.String("signature", s.signature),
		)
		return
	}
	res.FeeLamports = tx.Meta.Fee

	received, decimals, ok := receivedAmount(tx, e.signer.PublicKey().String(), s.outMint)
	if !ok {
		return
	}
	res.ActualSlippageBps = slippageBps(s.quotedOut, received)
	if o.Side == domain.OrderSideBuy && received > 0 {
		tokens := decU64(received).Shift(-int32(decimals))
		res.FilledPrice = decimal.NewFromFloat(o.Size).Div(tokens).InexactFloat64()
	}
}

// receivedAmount returns how much of mint owner gained in tx, in base units.
// Native SOL is read from lamport balances with the fee added back.
func receivedAmount(tx *solanarpc.Transaction, owner, mint string) (uint64, int, bool) {
	if mint == jupiter.WrappedSOL {
		for i, k := range tx.Transaction.Message.AccountKeys {
			if k.Pubkey != owner || i >= len(tx.Meta.PreBalances) || i >= len(tx.Meta.PostBalances) {
				continue
			}
			post := int64(tx.Meta.PostBalances[i])
			if i == 0 {
				post += int64(tx.Meta.Fee)
			}
			delta := post - int64(tx.Meta.PreBalances[i])
			if delta < 0 {
				return 0, 9, true
			}
			return uint64(delta), 9, true
		}
		return 0, 0, false
	}

	sum := func(balances []solanarpc.TokenBalance) (decimal.Decimal, int, bool) {
		total, dec, found := decimal.Zero, 0, false
		for _, b := range balances {
			if b.Owner != owner || b.Mint != mint {
				continue
			}
			v, err := decimal.NewFromString(b.UITokenAmount.Amount)
			if err != nil {
				continue
			}
			total, dec, found = total.Add(v), b.UITokenAmount.Decimals, true
		}
		return total, dec, found
	}
	post, dec, ok := sum(tx.Meta.PostTokenBalances)
	if !ok {
		return 0, 0, false
	}
	pre, _, _ := sum(tx.Meta.PreTokenBalances)
	delta := post.Sub(pre)
	if delta.Sign() <= 0 {
		return 0, dec, true
	}
	return uint64(delta.IntPart()), dec, true
}

// slippageBps is the shortfall of received against quoted, in basis points.
func slippageBps(quoted, received uint64) int {
	if quoted == 0 || received >= quoted {
		return 0
	}
	bps := decU64(quoted - received).Mul(decimal.NewFromInt(10_000)).Div(decU64(quoted))
	return int(bps.Round(0).IntPart())
}

// settle commits or releases the reservation, finalises the order and
// records the outcome.
func (e *Executor) settle(ctx context.Context, o domain.Order, res domain.ExecutionResult, f *failure, start time.Time) (domain.ExecutionResult, error) {
	now := e.now()
	res.Latency = now.Sub(start)

	if f != nil {
		res.Success = false
		res.Error = f.err.Error()
		if f.unknown {
			// Treat the hold as spent until the next balance refresh shows
			// what actually left the wallet.
			e.balances.Commit(o.ID, e.holdFor(o, res.Path == domain.PathBundle))
			res.Status = domain.OrderStatusPending
		} else {
			e.balances.Release(o.ID)
			res.Status = domain.OrderStatusRejected
			_ = o.Transition(domain.OrderStatusRejected, now)
		}
		o.BundleID = res.BundleID
		o.Signature = res.Signature

		e.logger.WarnContext(ctx, "order failed",
			slog.String("order_id", o.ID),
			slog.String("token", o.Token),
			slog.String("path", string(res.Path)),
			slog.String("reason", f.reason),
			slog.String("error", f.err.Error()),
		)
		e.record(ctx, o, res)
		return res, &domain.ExecutionError{OrderID: o.ID, Token: o.Token, Reason: f.reason, Err: f.err}
	}

	confirmed := now.UTC()
	res.Success = true
	res.Status = domain.OrderStatusFilled
	res.ConfirmedAt = &confirmed

	spent := 0.0
	if !res.DryRun {
		spent = ToSOL(res.FeeLamports + res.TipLamports)
		if o.Side == domain.OrderSideBuy {
			spent += o.Size
		}
	}
	e.balances.Commit(o.ID, spent)

	_ = o.Transition(domain.OrderStatusFilled, now)
	slip := res.ActualSlippageBps
	o.ActualSlippageBps = &slip
	o.BundleID = res.BundleID
	o.Signature = res.Signature
	o.FeeLamports = res.FeeLamports
	o.FilledSize = res.FilledSize

	e.logger.InfoContext(ctx, "order filled",
		slog.String("order_id", o.ID),
		slog.String("token", o.Token),
		slog.String("strategy", o.Strategy),
		slog.String("path", string(res.Path)),
		slog.Bool("dry_run", res.DryRun),
		slog.Float64("size_sol", o.Size),
		slog.Int("slippage_bps", res.ActualSlippageBps),
		slog.Duration("latency", res.Latency),
	)
	e.record(ctx, o, res)
	return res, nil
}

// record fans the outcome out to the durable store, the execution stream,
// the event log, metrics and notifications. Sink failures are logged only.
func (e *Executor) record(ctx context.Context, o domain.Order, res domain.ExecutionResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if e.executions != nil {
		if err := e.executions.Record(ctx, o, res); err != nil {
			e.logger.WarnContext(ctx, "record execution failed",
				slog.String("order_id", o.ID), slog.String("error", err.Error()))
		}
	}
	if e.bus != nil {
		if data, err := json.Marshal(res); err == nil {
			if err := e.bus.StreamAppend(ctx, domain.StreamExecutions, data); err != nil {
				e.logger.WarnContext(ctx, "append execution stream failed",
					slog.String("order_id", o.ID), slog.String("error", err.Error()))
			}
		}
	}

	tag := ""
	if res.DryRun {
		tag = " (dry run)"
	}
	if e.events != nil {
		ev := eventlog.Event{
			Kind:  eventlog.KindExecution,
			Token: o.Token,
			Fields: map[string]string{
				"order_id": o.ID,
				"path":     string(res.Path),
				"strategy": o.Strategy,
			},
		}
		if res.Success {
			ev.Message = fmt.Sprintf("%s %.4f SOL filled%s", o.Side, o.Size, tag)
		} else {
			ev.Kind = eventlog.KindFailure
			ev.Message = fmt.Sprintf("%s %.4f SOL failed: %s", o.Side, o.Size, res.Error)
		}
		e.events.Append(ev)
	}

	e.metrics.ObserveExecution(string(res.Path), res.Success, res.Latency, res.ActualSlippageBps, res.TipLamports)

	fields := []notify.Field{
		{Name: "token", Value: o.Token},
		{Name: "path", Value: string(res.Path)},
		{Name: "strategy", Value: o.Strategy},
		{Name: "signature", Value: res.Signature},
	}
	if res.Success {
		e.notifier.Go(notify.Message{
			Event:  notify.EventSnipeExecuted,
			Title:  "Order filled" + tag,
			Body:   fmt.Sprintf("%s %.4f SOL", o.Side, o.Size),
			Fields: fields,
		})
	} else {
		e.notifier.Go(notify.Message{
			Event:    notify.EventOrderFailed,
			Title:    "Order failed" + tag,
			Body:     fmt.Sprintf("order %s: %s", o.ID, res.Error),
			Severity: notify.SeverityError,
			Fields:   fields,
		})
	}
}

// Run evicts settled guard entries periodically until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	e.logger.InfoContext(ctx, "executor started",
		slog.String("name", e.Name()),
		slog.Bool("dry_run", e.cfg.DryRun),
		slog.Bool("bundles", e.SupportsBundles()),
	)
	for {
		select {
		case <-ctx.Done():
			e.logger.InfoContext(ctx, "executor stopped")
			return nil
		case <-ticker.C:
			e.guard.cleanup()
		}
	}
}

var (
	_ RPC        = (*solanarpc.Client)(nil)
	_ SwapClient = (*jupiter.Client)(nil)
)
