package execution

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

func TestShouldUseMevProtection(t *testing.T) {
	p := DefaultPolicy()

	cases := []struct {
		name     string
		size     float64
		strategy string
		want     bool
	}{
		{"large order", 0.5, domain.StrategyPipelineBuy, true},
		{"just below threshold", 0.4999, domain.StrategyPipelineBuy, false},
		{"small reflex snipe", 0.01, domain.StrategyReflexSniping, true},
		{"small liquidity snipe", 0.01, domain.StrategyLiquiditySniping, true},
		{"small pumpfun snipe", 0.01, domain.StrategyPumpfunSniping, true},
		{"small unknown strategy", 0.2, "momentum", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := domain.Order{Size: tc.size, Strategy: tc.strategy}
			assert.Equal(t, tc.want, ShouldUseMevProtection(o, p))
		})
	}

	off := Policy{}
	assert.False(t, ShouldUseMevProtection(domain.Order{Size: 100}, off), "zero threshold disables the size rule")
}

func TestSignalToOrder(t *testing.T) {
	created := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	sig := domain.TradeSignal{
		ID: "sig-1", Symbol: "MintA", Type: domain.SignalBuy, Size: 0.2,
		Price: 0.0001, Strategy: "momentum", CreatedAt: created,
	}

	o, err := SignalToOrder(sig)
	require.NoError(t, err)
	assert.Equal(t, domain.Order{
		ID: "sig-1", Token: "MintA", Side: domain.OrderSideBuy, Size: 0.2, Price: 0.0001,
		Status: domain.OrderStatusPending, Strategy: "momentum", MaxSlippageBps: DefaultMaxSlippageBps,
		CreatedAt: created, UpdatedAt: created,
	}, o)

	again, err := SignalToOrder(sig)
	require.NoError(t, err)
	assert.Equal(t, o, again, "mapping is deterministic")

	sig.Type = domain.SignalSell
	sig.MaxSlippageBps = 75
	o, err = SignalToOrder(sig)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderSideSell, o.Side)
	assert.Equal(t, 75, o.MaxSlippageBps)

	sig.Type = "hold"
	_, err = SignalToOrder(sig)
	assert.True(t, errors.Is(err, domain.ErrUnknownSide))
}

func TestDecisionToOrder(t *testing.T) {
	sl, tp := 15.0, 50.0
	d := domain.TradingDecision{
		ID: "dec-1", OpportunityAddress: "MintA", Type: domain.DecisionBuyToken,
		BuyToken: &domain.BuyToken{Token: "MintA", TargetAmount: 0.3, MaxSlippageBps: 100, StopLossPct: &sl, TakeProfitPct: &tp},
	}
	o, ok := DecisionToOrder(d)
	require.True(t, ok)
	assert.Equal(t, "dec-1", o.ID)
	assert.Equal(t, "dec-1", o.DecisionID)
	assert.Equal(t, domain.StrategyPipelineBuy, o.Strategy)
	assert.Equal(t, 0.3, o.Size)
	assert.Equal(t, 100, o.MaxSlippageBps)
	assert.Equal(t, &sl, o.StopLossPct)
	require.NoError(t, o.Validate())

	for _, other := range []domain.TradingDecision{
		{ID: "m", Type: domain.DecisionMonitor, Monitor: &domain.Monitor{Interval: time.Minute}},
		{ID: "n", Type: domain.DecisionNoAction, NoAction: &domain.NoAction{Reason: "weak"}},
		{ID: "lp", Type: domain.DecisionProvideLiquidity, ProvideLiquidity: &domain.ProvideLiquidity{Pool: "P", Amount: 1}},
	} {
		_, ok := DecisionToOrder(other)
		assert.False(t, ok, string(other.Type))
	}
}

func TestLamportConversions(t *testing.T) {
	assert.Equal(t, uint64(1_500_000_000), ToLamports(1.5))
	assert.Equal(t, uint64(100_000_000), ToLamports(0.1))
	assert.Equal(t, uint64(0), ToLamports(-1))
	assert.InDelta(t, 0.000005, ToSOL(5000), 1e-15)
}

func TestTipPolicy(t *testing.T) {
	p := TipPolicy{Floor: 10_000, Min: 10_000, Max: 100_000, Bps: 10}

	assert.Equal(t, uint64(10_000), p.Lamports(0.001), "floor wins for tiny orders")
	assert.Equal(t, uint64(50_000), p.Lamports(0.05), "10 bps of 0.05 SOL")
	assert.Equal(t, uint64(100_000), p.Lamports(5), "capped at max")

	assert.Equal(t, uint64(20_000), TipPolicy{Floor: 5_000, Min: 20_000}.Lamports(0.01))
	assert.Equal(t, uint64(5_000_000), TipPolicy{Bps: 10}.Lamports(5), "zero max is unbounded")
}
