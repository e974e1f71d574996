// Package execution turns orders into on-chain swaps. It chooses between a
// standard transaction and a tipped bundle, guards against duplicate
// submission, tracks the wallet balance and records every outcome.
package execution

import (
	"slices"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// DefaultLargeOrderThreshold is the order size in SOL at and above which MEV
// protection is used regardless of strategy.
const DefaultLargeOrderThreshold = 0.5

// Policy decides which orders travel MEV protected.
type Policy struct {
	LargeOrderThreshold float64
	ProtectedStrategies []string
}

// DefaultPolicy protects orders of at least 0.5 SOL and every sniping
// strategy.
func DefaultPolicy() Policy {
	return Policy{
		LargeOrderThreshold: DefaultLargeOrderThreshold,
		ProtectedStrategies: []string{
			domain.StrategyReflexSniping,
			domain.StrategyLiquiditySniping,
			domain.StrategyPumpfunSniping,
		},
	}
}

// ShouldUseMevProtection reports whether o should be submitted as a bundle.
// A non-positive threshold disables the size rule.
func ShouldUseMevProtection(o domain.Order, p Policy) bool {
	if p.LargeOrderThreshold > 0 && o.Size >= p.LargeOrderThreshold {
		return true
	}
	return slices.Contains(p.ProtectedStrategies, o.Strategy)
}
