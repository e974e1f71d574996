package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DecisionType discriminates the TradingDecision variants.
type DecisionType string

const (
	DecisionBuyToken         DecisionType = "buy_token"
	DecisionProvideLiquidity DecisionType = "provide_liquidity"
	DecisionMonitor          DecisionType = "monitor"
	DecisionNoAction         DecisionType = "no_action"
)

// BuyToken buys a token with a target SOL amount.
type BuyToken struct {
	Token          string   `json:"token"`
	TargetAmount   float64  `json:"target_amount"`
	MaxSlippageBps int      `json:"max_slippage_bps"`
	StopLossPct    *float64 `json:"stop_loss_pct,omitempty"`
	TakeProfitPct  *float64 `json:"take_profit_pct,omitempty"`
}

// ProvideLiquidity deposits into a pool for a bounded duration.
type ProvideLiquidity struct {
	Pool     string        `json:"pool"`
	Amount   float64       `json:"amount"`
	Duration time.Duration `json:"duration"`
}

// Monitor keeps a borderline candidate under observation.
type Monitor struct {
	Interval    time.Duration `json:"interval"`
	MaxDuration time.Duration `json:"max_duration"`
}

// NoAction records why a candidate was declined.
type NoAction struct {
	Reason string `json:"reason"`
}

// TradingDecision is the Decision Engine's output. Exactly one variant payload
// matches Type. Decisions are immutable once enqueued.
type TradingDecision struct {
	ID                 string            `json:"id"`
	OpportunityAddress string            `json:"opportunity_address"`
	Type               DecisionType      `json:"type"`
	BuyToken           *BuyToken         `json:"buy_token,omitempty"`
	ProvideLiquidity   *ProvideLiquidity `json:"provide_liquidity,omitempty"`
	Monitor            *Monitor          `json:"monitor,omitempty"`
	NoAction           *NoAction         `json:"no_action,omitempty"`
	Confidence         float64           `json:"confidence"`
	Priority           int               `json:"priority"`
	Reasoning          string            `json:"reasoning"`
	CreatedAt          time.Time         `json:"created_at"`
}

// Validate checks that the payload matches the discriminator and that no
// other variant payload is set.
func (d TradingDecision) Validate() error {
	set := 0
	for _, present := range []bool{d.BuyToken != nil, d.ProvideLiquidity != nil, d.Monitor != nil, d.NoAction != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("decision %s: expected exactly one variant payload, got %d", d.ID, set)
	}

	var ok bool
	switch d.Type {
	case DecisionBuyToken:
		ok = d.BuyToken != nil
	case DecisionProvideLiquidity:
		ok = d.ProvideLiquidity != nil
	case DecisionMonitor:
		ok = d.Monitor != nil
	case DecisionNoAction:
		ok = d.NoAction != nil
	default:
		return fmt.Errorf("decision %s: unknown type %q", d.ID, d.Type)
	}
	if !ok {
		return fmt.Errorf("decision %s: payload does not match type %q", d.ID, d.Type)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("decision %s: confidence %.4f outside [0,1]", d.ID, d.Confidence)
	}
	return nil
}

// UnmarshalJSON decodes and validates a decision so a malformed queue entry
// can never masquerade as a different variant.
func (d *TradingDecision) UnmarshalJSON(data []byte) error {
	type plain TradingDecision
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	dec := TradingDecision(p)
	if err := dec.Validate(); err != nil {
		return err
	}
	*d = dec
	return nil
}

// Executable reports whether the decision results in an on-chain order.
func (d TradingDecision) Executable() bool {
	return d.Type == DecisionBuyToken && d.BuyToken != nil && d.BuyToken.TargetAmount > 0
}

// Reason returns the NoAction reason, or the reasoning string otherwise.
func (d TradingDecision) Reason() string {
	if d.NoAction != nil {
		return d.NoAction.Reason
	}
	return d.Reasoning
}

// PortfolioContext is the live portfolio state the Decision Engine sizes
// against.
type PortfolioContext struct {
	AvailableBalance       float64 `json:"available_balance"`
	OpenPositions          int     `json:"open_positions"`
	MaxConcurrentPositions int     `json:"max_concurrent_positions"`
	RiskTolerance          float64 `json:"risk_tolerance"`
	MinConfidence          float64 `json:"min_confidence"`
	MinPositionSize        float64 `json:"min_position_size"`
	MaxPositionSize        float64 `json:"max_position_size"`
}
