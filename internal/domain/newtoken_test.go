package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func safeToken() NewTokenOpportunity {
	return NewTokenOpportunity{
		TokenAddress:          "Mint1111111111111111111111111111111111111111",
		PoolAddress:           "Pool1111111111111111111111111111111111111111",
		InitialLiquiditySOL:   5,
		InitialLiquidityUSD:   750,
		AgeSeconds:            10,
		Dex:                   DexRaydiumAMM,
		RiskScore:             0.6,
		MintAuthorityBurned:   true,
		FreezeAuthorityBurned: true,
	}
}

func TestIsFresh(t *testing.T) {
	for _, age := range []float64{60, 60.0001, 61, 120, 3600} {
		o := safeToken()
		o.AgeSeconds = age
		assert.False(t, o.IsFresh(), "age %v", age)
	}
	for _, age := range []float64{0, 1, 30, 59.999} {
		o := safeToken()
		o.AgeSeconds = age
		assert.True(t, o.IsFresh(), "age %v", age)
	}
}

func TestIsSafeEachConditionFlips(t *testing.T) {
	const minLiq, minRisk = 1.0, 0.3

	base := safeToken()
	base.InitialLiquiditySOL = minLiq
	base.RiskScore = minRisk
	require.True(t, base.IsSafe(minLiq, minRisk), "boundary values are inclusive")

	cases := map[string]func(o *NewTokenOpportunity){
		"mint authority live":   func(o *NewTokenOpportunity) { o.MintAuthorityBurned = false },
		"freeze authority live": func(o *NewTokenOpportunity) { o.FreezeAuthorityBurned = false },
		"liquidity below min":   func(o *NewTokenOpportunity) { o.InitialLiquiditySOL = minLiq - 0.0001 },
		"risk below min":        func(o *NewTokenOpportunity) { o.RiskScore = minRisk - 0.0001 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			o := base
			mutate(&o)
			assert.False(t, o.IsSafe(minLiq, minRisk))
		})
	}
}

func TestPriorityScoreMonotonicity(t *testing.T) {
	base := safeToken()

	prev := -1.0
	for _, liq := range []float64{0, 0.5, 1, 2, 5, 10, 20, 100} {
		o := base
		o.InitialLiquiditySOL = liq
		s := o.PriorityScore()
		assert.GreaterOrEqual(t, s, prev, "liquidity %v", liq)
		prev = s
	}

	prev = -1.0
	for _, risk := range []float64{0, 0.1, 0.3, 0.5, 0.9, 1} {
		o := base
		o.RiskScore = risk
		s := o.PriorityScore()
		assert.GreaterOrEqual(t, s, prev, "risk %v", risk)
		prev = s
	}

	prev = 2.0
	for _, age := range []float64{0, 1, 10, 30, 45, 59} {
		o := base
		o.AgeSeconds = age
		s := o.PriorityScore()
		assert.Less(t, s, prev, "age %v", age)
		prev = s
	}
}

func TestPriorityScoreBounded(t *testing.T) {
	extremes := []NewTokenOpportunity{
		{InitialLiquiditySOL: 1e9, RiskScore: 50, AgeSeconds: -10},
		{InitialLiquiditySOL: -5, RiskScore: -1, AgeSeconds: 1e6},
		{},
	}
	for _, o := range extremes {
		s := o.PriorityScore()
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestAgeAtIncludesTimeInFlight(t *testing.T) {
	detected := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o := safeToken()
	o.AgeSeconds = 55
	o.DetectedAt = detected

	assert.InDelta(t, 55.0, o.AgeAt(detected), 1e-9)
	assert.InDelta(t, 61.0, o.AgeAt(detected.Add(6*time.Second)), 1e-9)
}

func TestNewTokenOpportunityRoundTrip(t *testing.T) {
	mc := 125000.5
	o := safeToken()
	o.CreationSlot = 312_000_111
	o.CreationSignature = "5hR9sig"
	o.CreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o.DetectedAt = time.Date(2026, 3, 1, 12, 0, 10, 500, time.UTC)
	o.MarketCapUSD = &mc

	data, err := json.Marshal(o)
	require.NoError(t, err)

	var back NewTokenOpportunity
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, o, back)
}
