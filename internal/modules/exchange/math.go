package exchange

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// ZeroAddress is the mint source and burn sink of LP tokens.
	ZeroAddress = "0x0000000000000000000000000000000000000000"

	// MinimumLiquidityLock is the LP amount a pair locks to the zero
	// address on its first mint.
	MinimumLiquidityLock = 1000

	// LPTokenDecimals is the precision of every pair's LP token.
	LPTokenDecimals = 18

	divPrecision = 30
)

var (
	two = decimal.NewFromInt(2)
	one = decimal.NewFromInt(1)
)

// ConvertTokenToDecimal scales a raw on-chain amount by 10^decimals.
func ConvertTokenToDecimal(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	if decimals <= 0 {
		return decimal.NewFromBigInt(amount, 0)
	}
	return decimal.NewFromBigInt(amount, -decimals)
}

// SafeDiv returns a/b, or zero when b is zero.
func SafeDiv(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.DivRound(b, divPrecision)
}
