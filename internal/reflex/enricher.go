package reflex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/execution"
	"github.com/alanyoungcy/sniperbot/internal/platform/jupiter"
	"github.com/alanyoungcy/sniperbot/internal/platform/solanarpc"
)

// ErrNotPoolCreation means the transaction does not create a tradable pool.
var ErrNotPoolCreation = errors.New("not a pool creation")

// Risk score weights. The score is higher for safer tokens.
const (
	riskBase            = 0.1
	riskMintBurned      = 0.3
	riskFreezeBurned    = 0.3
	riskLiquidityWeight = 0.3
	riskLiquidityNorm   = 10.0
)

// ChainReader is the subset of the RPC client the enricher needs.
type ChainReader interface {
	GetTransaction(ctx context.Context, sig string) (*solanarpc.Transaction, error)
	GetMintInfo(ctx context.Context, mint string) (solanarpc.MintInfo, error)
}

var _ ChainReader = (*solanarpc.Client)(nil)

// Enricher turns a detection into a full opportunity.
type Enricher interface {
	Enrich(ctx context.Context, d Detection) (domain.NewTokenOpportunity, error)
}

// EnricherConfig tunes the RPC enricher.
type EnricherConfig struct {
	SOLPriceUSD float64
	// Attempts bounds how often a transaction the node has not indexed yet is
	// re-fetched.
	Attempts   int
	RetryDelay time.Duration
}

// poolLayout gives the account positions of the pool and its mints in the
// pool-creating instruction of each program.
type poolLayout struct {
	pool  int
	mints []int
}

var poolLayouts = map[string]poolLayout{
	domain.ProgramRaydiumAMM:  {pool: 4, mints: []int{8, 9}},
	domain.ProgramRaydiumCLMM: {pool: 2, mints: []int{3, 4}},
	domain.ProgramPumpFun:     {pool: 2, mints: []int{0}},
}

// RPCEnricher reads the creation transaction and the mint account over
// JSON-RPC.
type RPCEnricher struct {
	rpc    ChainReader
	cfg    EnricherConfig
	now    func() time.Time
	logger *slog.Logger
}

var _ Enricher = (*RPCEnricher)(nil)

// NewRPCEnricher creates an enricher.
func NewRPCEnricher(rpc ChainReader, cfg EnricherConfig, logger *slog.Logger) *RPCEnricher {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RPCEnricher{
		rpc:    rpc,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(slog.String("component", "reflex_enricher")),
	}
}

// Enrich fetches the creation transaction, locates the new mint and pool,
// measures the initial native liquidity, and checks the mint authorities.
func (e *RPCEnricher) Enrich(ctx context.Context, d Detection) (domain.NewTokenOpportunity, error) {
	tx, err := e.fetch(ctx, d.Signature)
	if err != nil {
		return domain.NewTokenOpportunity{}, err
	}
	if len(tx.Meta.Err) > 0 && string(tx.Meta.Err) != "null" {
		return domain.NewTokenOpportunity{}, fmt.Errorf("reflex: enrich %s: %w: transaction failed", d.Signature, ErrNotPoolCreation)
	}

	mint, pool := locateAccounts(tx, d.Program)
	if mint == "" {
		return domain.NewTokenOpportunity{}, fmt.Errorf("reflex: enrich %s: %w: no token mint", d.Signature, ErrNotPoolCreation)
	}

	info, err := e.rpc.GetMintInfo(ctx, mint)
	if err != nil {
		return domain.NewTokenOpportunity{}, &domain.CollaboratorUnavailable{Name: "rpc", Err: err}
	}

	liq := initialLiquiditySOL(tx, pool)
	created := d.DetectedAt
	if tx.BlockTime != nil {
		created = time.Unix(*tx.BlockTime, 0).UTC()
	}
	now := e.now().UTC()
	age := now.Sub(created).Seconds()
	if age < 0 {
		age = 0
	}

	slot := tx.Slot
	if slot == 0 {
		slot = d.Slot
	}

	opp := domain.NewTokenOpportunity{
		TokenAddress:          mint,
		PoolAddress:           pool,
		InitialLiquiditySOL:   liq,
		InitialLiquidityUSD:   liq * e.cfg.SOLPriceUSD,
		CreationSlot:          slot,
		CreationSignature:     d.Signature,
		CreatedAt:             created,
		DetectedAt:            now,
		AgeSeconds:            age,
		Dex:                   domain.DexForProgram(d.Program),
		MintAuthorityBurned:   info.MintAuthority == nil,
		FreezeAuthorityBurned: info.FreezeAuthority == nil,
	}
	opp.RiskScore = RiskScore(opp)
	return opp, nil
}

func (e *RPCEnricher) fetch(ctx context.Context, sig string) (*solanarpc.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < e.cfg.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.cfg.RetryDelay):
			}
		}
		tx, err := e.rpc.GetTransaction(ctx, sig)
		if err != nil {
			lastErr = err
			continue
		}
		if tx != nil {
			return tx, nil
		}
	}
	if lastErr != nil {
		return nil, &domain.CollaboratorUnavailable{Name: "rpc", Err: lastErr}
	}
	return nil, fmt.Errorf("reflex: transaction %s not available after %d attempts", sig, e.cfg.Attempts)
}

// RiskScore rates a new token in [0,1]; higher is safer. Burned authorities
// and deeper initial liquidity raise the score.
func RiskScore(o domain.NewTokenOpportunity) float64 {
	score := riskBase
	if o.MintAuthorityBurned {
		score += riskMintBurned
	}
	if o.FreezeAuthorityBurned {
		score += riskFreezeBurned
	}
	liq := o.InitialLiquiditySOL / riskLiquidityNorm
	if liq > 1 {
		liq = 1
	}
	if liq > 0 {
		score += liq * riskLiquidityWeight
	}
	if score > 1 {
		score = 1
	}
	return score
}

// locateAccounts returns the token mint and pool account of the creating
// instruction. Without a known layout the first non-WSOL mint in the post
// token balances is used and the pool stays unknown.
func locateAccounts(tx *solanarpc.Transaction, program string) (mint, pool string) {
	if layout, ok := poolLayouts[program]; ok {
		for _, ix := range tx.Transaction.Message.Instructions {
			if ix.ProgramID != program || len(ix.Accounts) <= maxIndex(layout) {
				continue
			}
			pool = ix.Accounts[layout.pool]
			for _, i := range layout.mints {
				if ix.Accounts[i] != jupiter.WrappedSOL {
					mint = ix.Accounts[i]
					break
				}
			}
			if mint != "" {
				return mint, pool
			}
		}
	}
	for _, b := range tx.Meta.PostTokenBalances {
		if b.Mint != jupiter.WrappedSOL {
			return b.Mint, pool
		}
	}
	return "", pool
}

func maxIndex(l poolLayout) int {
	m := l.pool
	for _, i := range l.mints {
		if i > m {
			m = i
		}
	}
	return m
}

// initialLiquiditySOL is the largest native deposit made by the creating
// transaction: either a wrapped-SOL vault credit or a lamport credit to the
// pool account itself.
func initialLiquiditySOL(tx *solanarpc.Transaction, pool string) float64 {
	var best uint64

	pre := make(map[int]uint64)
	for _, b := range tx.Meta.PreTokenBalances {
		if b.Mint == jupiter.WrappedSOL {
			pre[b.AccountIndex] = parseAmount(b.UITokenAmount.Amount)
		}
	}
	for _, b := range tx.Meta.PostTokenBalances {
		if b.Mint != jupiter.WrappedSOL {
			continue
		}
		post := parseAmount(b.UITokenAmount.Amount)
		if before := pre[b.AccountIndex]; post > before && post-before > best {
			best = post - before
		}
	}

	if pool != "" {
		for i, k := range tx.Transaction.Message.AccountKeys {
			if k.Pubkey != pool || i >= len(tx.Meta.PreBalances) || i >= len(tx.Meta.PostBalances) {
				continue
			}
			if before, after := tx.Meta.PreBalances[i], tx.Meta.PostBalances[i]; after > before && after-before > best {
				best = after - before
			}
		}
	}
	return execution.ToSOL(best)
}

func parseAmount(s string) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
