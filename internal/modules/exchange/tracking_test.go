package exchange

import (
	"testing"

	"github.com/UniTradeApp/pancake-subgraph/internal/entity"
)

func trackingTokens() (wbnb, busd, foo, bar *entity.Token) {
	wbnb = &entity.Token{ID: wbnbAddr, DerivedUSD: dec("300")}
	busd = &entity.Token{ID: busdAddr, DerivedUSD: dec("1")}
	foo = &entity.Token{ID: fooAddr, DerivedUSD: dec("2")}
	bar = &entity.Token{ID: barAddr, DerivedUSD: dec("5")}
	return
}

func TestTrackedVolumeUSD(t *testing.T) {
	p := NewPricing(wbnbAddr, []string{wbnbAddr, busdAddr}, nil, dec("10"))
	wbnb, busd, foo, bar := trackingTokens()

	tests := []struct {
		name   string
		a0     string
		t0     *entity.Token
		a1     string
		t1     *entity.Token
		expect string
	}{
		{"both whitelisted averages the legs", "2", wbnb, "590", busd, "595"},
		{"token0 whitelisted only", "2", wbnb, "1000", foo, "600"},
		{"token1 whitelisted only", "1000", foo, "10", busd, "10"},
		{"none whitelisted", "1000", foo, "10", bar, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertDecimal(t, tt.expect, p.TrackedVolumeUSD(dec(tt.a0), tt.t0, dec(tt.a1), tt.t1))
		})
	}
}

func TestTrackedLiquidityUSD(t *testing.T) {
	p := NewPricing(wbnbAddr, []string{wbnbAddr, busdAddr}, nil, dec("10"))
	wbnb, busd, foo, bar := trackingTokens()

	tests := []struct {
		name   string
		r0     string
		t0     *entity.Token
		r1     string
		t1     *entity.Token
		expect string
	}{
		{"both whitelisted sums the sides", "2", wbnb, "590", busd, "1190"},
		{"token0 whitelisted only", "2", wbnb, "1000", foo, "600"},
		{"token1 whitelisted only", "1000", foo, "10", busd, "10"},
		{"none whitelisted", "1000", foo, "10", bar, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertDecimal(t, tt.expect, p.TrackedLiquidityUSD(dec(tt.r0), tt.t0, dec(tt.r1), tt.t1))
		})
	}
}
