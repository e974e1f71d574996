package execution

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// ToLamports converts SOL to lamports, truncating fractions of a lamport.
// Negative amounts yield zero.
func ToLamports(sol float64) uint64 {
	l := decimal.NewFromFloat(sol).Shift(9).Truncate(0)
	if l.Sign() <= 0 {
		return 0
	}
	return uint64(l.IntPart())
}

// ToSOL converts lamports to SOL.
func ToSOL(lamports uint64) float64 {
	f, _ := decU64(lamports).Shift(-9).Float64()
	return f
}

// TipPolicy sizes bundle tips in lamports.
type TipPolicy struct {
	Floor uint64 // configured base tip
	Min   uint64
	Max   uint64 // zero means unbounded
	Bps   int    // share of the order notional
}

// Lamports returns clamp(max(floor, notional·bps/10000), min, max) for an
// order of sizeSOL.
func (p TipPolicy) Lamports(sizeSOL float64) uint64 {
	tip := p.Floor
	if p.Bps > 0 {
		prop := decU64(ToLamports(sizeSOL)).
			Mul(decimal.NewFromInt(int64(p.Bps))).
			Div(decimal.NewFromInt(10_000)).
			Truncate(0)
		if v := uint64(prop.IntPart()); v > tip {
			tip = v
		}
	}
	if tip < p.Min {
		tip = p.Min
	}
	if p.Max > 0 && tip > p.Max {
		tip = p.Max
	}
	return tip
}

func decU64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
