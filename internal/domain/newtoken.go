package domain

import (
	"math"
	"time"
)

// FreshnessWindowSeconds is the age at which a reflex opportunity is no
// longer worth acting on.
const FreshnessWindowSeconds = 60.0

// Priority weights for reflex opportunities.
const (
	priorityLiquidityWeight = 0.3
	priorityFreshnessWeight = 0.4
	priorityRiskWeight      = 0.3

	// liquidityNormSOL is the native liquidity at which the liquidity term
	// saturates.
	liquidityNormSOL = 10.0
)

// DexOrigin names the venue that created a pool.
type DexOrigin string

const (
	DexRaydiumAMM  DexOrigin = "raydium_amm"
	DexRaydiumCLMM DexOrigin = "raydium_clmm"
	DexPumpFun     DexOrigin = "pumpfun"
	DexUnknown     DexOrigin = "unknown"
)

// Well-known pool-creating program ids.
const (
	ProgramRaydiumAMM  = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	ProgramRaydiumCLMM = "CAMMCzo5YL8w4VFF8KVHrK22GGUQpMkFr9WeqATV9Uu"
	ProgramPumpFun     = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
)

// DexForProgram maps a program id to the venue it belongs to.
func DexForProgram(program string) DexOrigin {
	switch program {
	case ProgramRaydiumAMM:
		return DexRaydiumAMM
	case ProgramRaydiumCLMM:
		return DexRaydiumCLMM
	case ProgramPumpFun:
		return DexPumpFun
	}
	return DexUnknown
}

// NewTokenOpportunity is a reflex-path detection of a freshly created pool. It
// is consulted once for a go/no-go decision and never updated in place.
type NewTokenOpportunity struct {
	TokenAddress          string    `json:"token_address"`
	PoolAddress           string    `json:"pool_address"`
	InitialLiquiditySOL   float64   `json:"initial_liquidity_sol"`
	InitialLiquidityUSD   float64   `json:"initial_liquidity_usd"`
	CreationSlot          uint64    `json:"creation_slot"`
	CreationSignature     string    `json:"creation_signature"`
	CreatedAt             time.Time `json:"created_at"`
	DetectedAt            time.Time `json:"detected_at"`
	AgeSeconds            float64   `json:"age_seconds"`
	Dex                   DexOrigin `json:"dex"`
	RiskScore             float64   `json:"risk_score"`
	MintAuthorityBurned   bool      `json:"mint_authority_burned"`
	FreezeAuthorityBurned bool      `json:"freeze_authority_burned"`
	MarketCapUSD          *float64  `json:"market_cap_usd,omitempty"`
}

// IsFresh reports whether the opportunity is still inside the reflex window.
func (o NewTokenOpportunity) IsFresh() bool {
	return o.AgeSeconds < FreshnessWindowSeconds
}

// AgeAt returns the opportunity's age at now, accounting for time spent in
// flight since detection.
func (o NewTokenOpportunity) AgeAt(now time.Time) float64 {
	if o.DetectedAt.IsZero() || now.Before(o.DetectedAt) {
		return o.AgeSeconds
	}
	return o.AgeSeconds + now.Sub(o.DetectedAt).Seconds()
}

// IsSafe requires both authorities burned, enough initial liquidity, and a
// risk score at or above the minimum.
func (o NewTokenOpportunity) IsSafe(minLiquiditySOL, minRiskScore float64) bool {
	return o.MintAuthorityBurned &&
		o.FreezeAuthorityBurned &&
		o.InitialLiquiditySOL >= minLiquiditySOL &&
		o.RiskScore >= minRiskScore
}

// PriorityScore blends normalised liquidity, linear freshness decay, and risk
// score into [0,1].
func (o NewTokenOpportunity) PriorityScore() float64 {
	liq := clamp01(o.InitialLiquiditySOL / liquidityNormSOL)
	fresh := clamp01(1 - o.AgeSeconds/FreshnessWindowSeconds)
	risk := clamp01(o.RiskScore)

	score := liq*priorityLiquidityWeight + fresh*priorityFreshnessWeight + risk*priorityRiskWeight
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
