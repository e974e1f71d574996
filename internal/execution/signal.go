package execution

import (
	"fmt"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// DefaultMaxSlippageBps applies when a signal carries no slippage bound.
const DefaultMaxSlippageBps = 300

// SignalToOrder maps a trade signal onto a pending order. The mapping is
// deterministic: the order id is the signal id and timestamps are copied.
func SignalToOrder(sig domain.TradeSignal) (domain.Order, error) {
	var side domain.OrderSide
	switch sig.Type {
	case domain.SignalBuy:
		side = domain.OrderSideBuy
	case domain.SignalSell:
		side = domain.OrderSideSell
	default:
		return domain.Order{}, fmt.Errorf("execution: signal %s type %q: %w", sig.ID, sig.Type, domain.ErrUnknownSide)
	}

	slippage := sig.MaxSlippageBps
	if slippage <= 0 {
		slippage = DefaultMaxSlippageBps
	}

	return domain.Order{
		ID:             sig.ID,
		Token:          sig.Symbol,
		Side:           side,
		Size:           sig.Size,
		Price:          sig.Price,
		Status:         domain.OrderStatusPending,
		Strategy:       sig.Strategy,
		MaxSlippageBps: slippage,
		CreatedAt:      sig.CreatedAt,
		UpdatedAt:      sig.CreatedAt,
	}, nil
}

// DecisionToOrder converts an executable decision into a buy order. Only
// BuyToken decisions are executable; the boolean is false for every other
// variant. The order id is the decision id, so a decision can be submitted
// at most once.
func DecisionToOrder(d domain.TradingDecision) (domain.Order, bool) {
	if d.Type != domain.DecisionBuyToken || d.BuyToken == nil {
		return domain.Order{}, false
	}
	b := d.BuyToken

	slippage := b.MaxSlippageBps
	if slippage <= 0 {
		slippage = DefaultMaxSlippageBps
	}
	return domain.Order{
		ID:             d.ID,
		Token:          b.Token,
		Side:           domain.OrderSideBuy,
		Size:           b.TargetAmount,
		Status:         domain.OrderStatusPending,
		Strategy:       domain.StrategyPipelineBuy,
		MaxSlippageBps: slippage,
		StopLossPct:    b.StopLossPct,
		TakeProfitPct:  b.TakeProfitPct,
		DecisionID:     d.ID,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.CreatedAt,
	}, true
}
