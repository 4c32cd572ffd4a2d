package exchange

import (
	"github.com/shopspring/decimal"

	"github.com/UniTradeApp/pancake-subgraph/internal/entity"
)

// TrackedVolumeUSD values a trade using only whitelisted legs. When both
// legs are trusted the two valuations are averaged.
func (p *Pricing) TrackedVolumeUSD(amount0 decimal.Decimal, token0 *entity.Token, amount1 decimal.Decimal, token1 *entity.Token) decimal.Decimal {
	usd0 := amount0.Mul(token0.DerivedUSD)
	usd1 := amount1.Mul(token1.DerivedUSD)

	w0, w1 := p.IsWhitelisted(token0.ID), p.IsWhitelisted(token1.ID)
	switch {
	case w0 && w1:
		return usd0.Add(usd1).DivRound(two, divPrecision)
	case w0:
		return usd0
	case w1:
		return usd1
	default:
		return decimal.Zero
	}
}

// TrackedLiquidityUSD values pool reserves using only whitelisted sides.
// Liquidity is additive, so trusted sides are summed.
func (p *Pricing) TrackedLiquidityUSD(reserve0 decimal.Decimal, token0 *entity.Token, reserve1 decimal.Decimal, token1 *entity.Token) decimal.Decimal {
	usd0 := reserve0.Mul(token0.DerivedUSD)
	usd1 := reserve1.Mul(token1.DerivedUSD)

	w0, w1 := p.IsWhitelisted(token0.ID), p.IsWhitelisted(token1.ID)
	switch {
	case w0 && w1:
		return usd0.Add(usd1)
	case w0:
		return usd0
	case w1:
		return usd1
	default:
		return decimal.Zero
	}
}
