package exchange

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/UniTradeApp/pancake-subgraph/internal/entity"
)

// Pricing derives native and USD prices from pair reserves.
type Pricing struct {
	wrappedNative string
	whitelist     []string
	whitelisted   map[string]struct{}
	stablePairs   []string
	minLiquidity  decimal.Decimal
}

// NewPricing builds a pricer. The whitelist order is the trust priority
// used by FindBnbPerToken.
func NewPricing(wrappedNative string, whitelist, stablePairs []string, minLiquidity decimal.Decimal) *Pricing {
	p := &Pricing{
		wrappedNative: strings.ToLower(wrappedNative),
		whitelisted:   make(map[string]struct{}, len(whitelist)),
		minLiquidity:  minLiquidity,
	}
	for _, addr := range whitelist {
		addr = strings.ToLower(addr)
		p.whitelist = append(p.whitelist, addr)
		p.whitelisted[addr] = struct{}{}
	}
	for _, addr := range stablePairs {
		p.stablePairs = append(p.stablePairs, strings.ToLower(addr))
	}
	return p
}

// IsWhitelisted reports whether the token is a trusted pricing anchor.
func (p *Pricing) IsWhitelisted(token string) bool {
	_, ok := p.whitelisted[token]
	return ok
}

// BnbPriceInUSD averages the USD price of the native asset over the
// configured stable pairs, weighted by each pair's native reserve.
func (p *Pricing) BnbPriceInUSD(ctx context.Context, st entity.Store) (decimal.Decimal, error) {
	weighted := decimal.Zero
	totalNative := decimal.Zero

	for _, id := range p.stablePairs {
		pair, err := st.Pair(ctx, id)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to load stable pair %s: %w", id, err)
		}
		if pair == nil {
			continue
		}

		var price, nativeReserve decimal.Decimal
		switch p.wrappedNative {
		case pair.Token0:
			price, nativeReserve = pair.Token1Price, pair.Reserve0
		case pair.Token1:
			price, nativeReserve = pair.Token0Price, pair.Reserve1
		default:
			continue
		}

		weighted = weighted.Add(price.Mul(nativeReserve))
		totalNative = totalNative.Add(nativeReserve)
	}

	return SafeDiv(weighted, totalNative), nil
}

// FindBnbPerToken prices a token in native units through the first
// whitelisted pair that clears the minimum liquidity gate.
func (p *Pricing) FindBnbPerToken(ctx context.Context, st entity.Store, token *entity.Token) (decimal.Decimal, error) {
	if token.ID == p.wrappedNative {
		return one, nil
	}

	for _, wl := range p.whitelist {
		if wl == token.ID {
			continue
		}
		pair, err := st.PairByTokens(ctx, token.ID, wl)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to look up pair %s/%s: %w", token.ID, wl, err)
		}
		if pair == nil {
			continue
		}

		wlNative, err := p.nativeValue(ctx, st, wl)
		if err != nil {
			return decimal.Zero, err
		}

		if pair.Token0 == token.ID {
			if pair.Reserve1.Mul(wlNative).GreaterThan(p.minLiquidity) {
				return pair.Token1Price.Mul(wlNative), nil
			}
		} else {
			if pair.Reserve0.Mul(wlNative).GreaterThan(p.minLiquidity) {
				return pair.Token0Price.Mul(wlNative), nil
			}
		}
	}

	return decimal.Zero, nil
}

// nativeValue is the native-denominated price of a whitelist token.
func (p *Pricing) nativeValue(ctx context.Context, st entity.Store, id string) (decimal.Decimal, error) {
	if id == p.wrappedNative {
		return one, nil
	}
	tok, err := st.Token(ctx, id)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load whitelist token %s: %w", id, err)
	}
	if tok == nil {
		return decimal.Zero, nil
	}
	return tok.DerivedBNB, nil
}
