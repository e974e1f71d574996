package domain

import (
	"fmt"
	"time"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// Terminal reports whether the status is final.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusRejected
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:         {OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected},
	OrderStatusPartiallyFilled: {OrderStatusFilled, OrderStatusCancelled},
}

// Strategy tags.
const (
	StrategyReflexSniping    = "reflex_sniping"
	StrategyLiquiditySniping = "liquidity_sniping"
	StrategyPumpfunSniping   = "pumpfun_sniping"
	StrategyPipelineBuy      = "pipeline_buy"
)

// Order is a swap request against a token, sized in SOL.
type Order struct {
	ID                string      `json:"id"`
	Token             string      `json:"token"`
	Side              OrderSide   `json:"side"`
	Size              float64     `json:"size"`
	Price             float64     `json:"price"`
	Status            OrderStatus `json:"status"`
	Strategy          string      `json:"strategy"`
	MaxSlippageBps    int         `json:"max_slippage_bps"`
	ActualSlippageBps *int        `json:"actual_slippage_bps,omitempty"`
	StopLossPct       *float64    `json:"stop_loss_pct,omitempty"`
	TakeProfitPct     *float64    `json:"take_profit_pct,omitempty"`
	BundleID          string      `json:"bundle_id,omitempty"`
	Signature         string      `json:"signature,omitempty"`
	FeeLamports       uint64      `json:"fee_lamports,omitempty"`
	FilledSize        float64     `json:"filled_size"`
	DecisionID        string      `json:"decision_id,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Transition moves the order to a new status. Terminal states are final.
func (o *Order) Transition(to OrderStatus, now time.Time) error {
	for _, allowed := range orderTransitions[o.Status] {
		if allowed == to {
			o.Status = to
			o.UpdatedAt = now
			return nil
		}
	}
	return fmt.Errorf("order %s: %s -> %s: %w", o.ID, o.Status, to, ErrInvalidTransition)
}

// Validate checks the fields required before submission.
func (o Order) Validate() error {
	switch {
	case o.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidOrder)
	case o.Token == "":
		return fmt.Errorf("%w: missing token", ErrInvalidOrder)
	case o.Side != OrderSideBuy && o.Side != OrderSideSell:
		return fmt.Errorf("%w: side %q", ErrInvalidOrder, o.Side)
	case !(o.Size > 0):
		return fmt.Errorf("%w: size must be positive", ErrInvalidOrder)
	case o.MaxSlippageBps < 0 || o.MaxSlippageBps > 10_000:
		return fmt.Errorf("%w: max slippage %d bps", ErrInvalidOrder, o.MaxSlippageBps)
	}
	return nil
}

// SubmissionPath records how an order left the process.
type SubmissionPath string

const (
	PathStandard SubmissionPath = "standard"
	PathBundle   SubmissionPath = "bundle"
	PathDryRun   SubmissionPath = "dry_run"
)

// BundleStatus is the block engine's view of a submitted bundle.
type BundleStatus string

const (
	BundlePending BundleStatus = "pending"
	BundleLanded  BundleStatus = "landed"
	BundleFailed  BundleStatus = "failed"
	BundleDropped BundleStatus = "dropped"
)

// ExecutionResult is the outcome of one Submit call. DryRun results never
// represent on-chain activity.
type ExecutionResult struct {
	OrderID             string         `json:"order_id"`
	Token               string         `json:"token"`
	Success             bool           `json:"success"`
	Status              OrderStatus    `json:"status"`
	Path                SubmissionPath `json:"path"`
	MevProtected        bool           `json:"mev_protected"`
	Signature           string         `json:"signature,omitempty"`
	BundleID            string         `json:"bundle_id,omitempty"`
	BundleStatus        BundleStatus   `json:"bundle_status,omitempty"`
	FilledSize          float64        `json:"filled_size"`
	FilledPrice         float64        `json:"filled_price"`
	ExpectedSlippageBps int            `json:"expected_slippage_bps"`
	ActualSlippageBps   int            `json:"actual_slippage_bps"`
	TipLamports         uint64         `json:"tip_lamports,omitempty"`
	FeeLamports         uint64         `json:"fee_lamports,omitempty"`
	DryRun              bool           `json:"dry_run"`
	Error               string         `json:"error,omitempty"`
	Latency             time.Duration  `json:"latency"`
	SubmittedAt         time.Time      `json:"submitted_at"`
	ConfirmedAt         *time.Time     `json:"confirmed_at,omitempty"`
}

// SignalType is the direction carried by an external trade signal.
type SignalType string

const (
	SignalBuy  SignalType = "buy"
	SignalSell SignalType = "sell"
)

// TradeSignal is a strategy request to trade a symbol.
type TradeSignal struct {
	ID             string     `json:"id"`
	Symbol         string     `json:"symbol"`
	Type           SignalType `json:"type"`
	Size           float64    `json:"size"`
	Price          float64    `json:"price"`
	Strategy       string     `json:"strategy"`
	Confidence     float64    `json:"confidence"`
	MaxSlippageBps int        `json:"max_slippage_bps,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
