package domain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var maxUint64 = decimal.NewFromBigInt(new(big.Int).SetUint64(^uint64(0)), 0)

// DecimalFromUint64 converts a raw on-chain amount without going through float64.
func DecimalFromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// LamportsToSOL converts a lamport amount to SOL.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return DecimalFromUint64(lamports).Shift(-9)
}

// SignedLamportsToSOL converts a profit or loss in lamports to SOL.
func SignedLamportsToSOL(lamports int64) decimal.Decimal {
	return decimal.NewFromInt(lamports).Shift(-9)
}

// SOLToLamports converts a positive SOL amount to lamports, rounding down.
func SOLToLamports(sol decimal.Decimal) (uint64, error) {
	if !sol.IsPositive() {
		return 0, fmt.Errorf("sol amount %s must be positive: %w", sol, ErrInvalidArgument)
	}
	l := sol.Shift(9).Floor()
	if !l.IsPositive() || l.GreaterThan(maxUint64) {
		return 0, fmt.Errorf("sol amount %s out of range: %w", sol, ErrInvalidArgument)
	}
	return l.BigInt().Uint64(), nil
}

// Portion returns floor(amount * pct / 100) with exact arithmetic. pct must
// be within [0, 100].
func Portion(amount uint64, pct float64) uint64 {
	if pct <= 0 {
		return 0
	}
	if pct >= 100 {
		return amount
	}
	v := DecimalFromUint64(amount).Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100)).Floor()
	return v.BigInt().Uint64()
}

// Scale returns floor(amount * num / den). A zero den yields zero.
func Scale(amount, num, den uint64) uint64 {
	if den == 0 {
		return 0
	}
	v := DecimalFromUint64(amount).Mul(DecimalFromUint64(num)).Div(DecimalFromUint64(den)).Floor()
	if v.GreaterThan(maxUint64) {
		return ^uint64(0)
	}
	return v.BigInt().Uint64()
}
