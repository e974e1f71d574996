package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradingDecisionRoundTrip(t *testing.T) {
	created := time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)
	sl, tp := 20.0, 50.0

	decisions := []TradingDecision{
		{
			ID: "d-buy", OpportunityAddress: "TokA", Type: DecisionBuyToken,
			BuyToken:   &BuyToken{Token: "TokA", TargetAmount: 0.75, MaxSlippageBps: 300, StopLossPct: &sl, TakeProfitPct: &tp},
			Confidence: 0.81, Priority: 8, Reasoning: "strong", CreatedAt: created,
		},
		{
			ID: "d-lp", OpportunityAddress: "PoolB", Type: DecisionProvideLiquidity,
			ProvideLiquidity: &ProvideLiquidity{Pool: "PoolB", Amount: 1, Duration: 12 * time.Hour},
			Confidence:       0.7, Priority: 6, CreatedAt: created,
		},
		{
			ID: "d-mon", OpportunityAddress: "TokC", Type: DecisionMonitor,
			Monitor:    &Monitor{Interval: 5 * time.Minute, MaxDuration: 24 * time.Hour},
			Confidence: 0.4, Priority: 3, CreatedAt: created,
		},
		{
			ID: "d-none", OpportunityAddress: "TokD", Type: DecisionNoAction,
			NoAction: &NoAction{Reason: "position limit reached"}, Priority: 1, CreatedAt: created,
		},
	}

	for _, d := range decisions {
		t.Run(string(d.Type), func(t *testing.T) {
			data, err := json.Marshal(d)
			require.NoError(t, err)

			var back TradingDecision
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, d, back)
		})
	}
}

func TestTradingDecisionRejectsMismatchedPayload(t *testing.T) {
	raw := `{"id":"x","type":"buy_token","no_action":{"reason":"nope"},"confidence":0.2}`
	var d TradingDecision
	assert.Error(t, json.Unmarshal([]byte(raw), &d))

	raw = `{"id":"y","type":"monitor","monitor":{"interval":1},"no_action":{"reason":"both"}}`
	assert.Error(t, json.Unmarshal([]byte(raw), &d))
}

func TestOrderRoundTripAndTransitions(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	slip := 42
	o := Order{
		ID: "o1", Token: "TokA", Side: OrderSideBuy, Size: 0.5, Price: 0.00012,
		Status: OrderStatusPending, Strategy: StrategyReflexSniping, MaxSlippageBps: 300,
		ActualSlippageBps: &slip, BundleID: "b1", Signature: "sig", FeeLamports: 5000,
		CreatedAt: now, UpdatedAt: now,
	}

	data, err := json.Marshal(o)
	require.NoError(t, err)
	var back Order
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, o, back)

	require.NoError(t, o.Transition(OrderStatusPartiallyFilled, now))
	require.NoError(t, o.Transition(OrderStatusFilled, now))
	err = o.Transition(OrderStatusCancelled, now)
	assert.True(t, errors.Is(err, ErrInvalidTransition), "terminal states are final")
}

func TestOpportunityAdvance(t *testing.T) {
	now := time.Now().UTC()
	v := NewValidatedOpportunity(RawOpportunity{Address: "A"}, "c1", now)

	assert.Error(t, v.Advance(OpportunityValidated, now), "cannot skip validating")
	require.NoError(t, v.Advance(OpportunityValidating, now))
	require.NoError(t, v.Advance(OpportunityValidated, now))
	assert.Equal(t, now, v.ValidatedAt)
	require.NoError(t, v.Advance(OpportunityDecided, now))
	require.NoError(t, v.Advance(OpportunityExpired, now))
	assert.Error(t, v.Advance(OpportunityPending, now))
}

func TestDecodeRawOpportunity(t *testing.T) {
	good := `{"address":"TokA","liquidity_usd":25000,"volume_24h_usd":90000,"opportunity_score":3.4,"discovered_at":"2026-03-01T12:00:00Z"}`
	raw, err := DecodeRawOpportunity("raw_opportunity:TokA", []byte(good))
	require.NoError(t, err)
	assert.Equal(t, "TokA", raw.Address)
	assert.Equal(t, 25000.0, raw.LiquidityUSD)

	bad := map[string]string{
		"unknown field":  `{"address":"A","liquidity_usd":1,"volume_24h_usd":1,"opportunity_score":1,"discovered_at":"2026-03-01T12:00:00Z","extra":1}`,
		"missing score":  `{"address":"A","liquidity_usd":1,"volume_24h_usd":1,"discovered_at":"2026-03-01T12:00:00Z"}`,
		"wrong type":     `{"address":"A","liquidity_usd":"lots","volume_24h_usd":1,"opportunity_score":1,"discovered_at":"2026-03-01T12:00:00Z"}`,
		"trailing data":  `{"address":"A","liquidity_usd":1,"volume_24h_usd":1,"opportunity_score":1,"discovered_at":"2026-03-01T12:00:00Z"} {}`,
		"unknown kind":   `{"address":"A","kind":"nft","liquidity_usd":1,"volume_24h_usd":1,"opportunity_score":1,"discovered_at":"2026-03-01T12:00:00Z"}`,
		"empty address":  `{"address":" ","liquidity_usd":1,"volume_24h_usd":1,"opportunity_score":1,"discovered_at":"2026-03-01T12:00:00Z"}`,
		"not json":       `opportunity`,
	}
	for name, payload := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeRawOpportunity("k", []byte(payload))
			var ce *CandidateError
			assert.True(t, errors.As(err, &ce), "got %v", err)
		})
	}
}

func TestAssessRisk(t *testing.T) {
	deep := RawOpportunity{LiquidityUSD: 2_000_000, Volume24hUSD: 4_000_000}
	assert.Equal(t, RiskVeryLow, AssessRisk(deep, SentimentResult{Score: 0.6, Confidence: 0.9}))

	thin := RawOpportunity{LiquidityUSD: 10_000, Volume24hUSD: 900_000}
	assert.Equal(t, RiskVeryHigh, AssessRisk(thin, SentimentResult{Score: -0.5, Confidence: 0.1}))
}
