package exchange

import (
	"context"
	"math/big"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UniTradeApp/pancake-subgraph/internal/entity"
	"github.com/UniTradeApp/pancake-subgraph/internal/modules/core"
)

const (
	factoryAddr = "0xca143ce32fe78f1f7019d7d551a6402fc5350c73"
	wbnbAddr    = "0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c"
	busdAddr    = "0xe9e7cea3dedca5984780bafc599bd69add087d56"
	usdtAddr    = "0x55d398326f99059ff775485246999027b3197955"
	cakeAddr    = "0x0e09fabb73bd3ade0a17ecc321fd13a19e81ce82"
	fooAddr     = "0x1111111111111111111111111111111111111111"
	barAddr     = "0x2222222222222222222222222222222222222222"

	busdWbnbPair = "0x58f876857a02d6762e0101bb5c46a8c1ed44dc16"
	usdtWbnbPair = "0x16b9a82891338f9ba80e2d6970fdda79d1eb0dae"
	cakeWbnbPair = "0x0ed7e52944161450477ee417de9cd3a859b14fd0"
	fooBarPair   = "0x3333333333333333333333333333333333333333"

	userAddr = "0x4444444444444444444444444444444444444444"
	txHash   = "0x00000000000000000000000000000000000000000000000000000000000000aa"
)

func testLogger() zerolog.Logger { return zerolog.Nop() }

func testManifest(intervals ...int) *core.Manifest {
	factory := factoryAddr
	start := uint64(6809737)
	ctx := map[string]interface{}{
		"factoryAddress":                  factoryAddr,
		"wrappedNative":                   wbnbAddr,
		"whitelist":                       []interface{}{wbnbAddr, busdAddr, usdtAddr},
		"stablePairs":                     []interface{}{busdWbnbPair, usdtWbnbPair},
		"minimumLiquidityThresholdNative": "10",
	}
	if len(intervals) > 0 {
		iv := make([]interface{}, len(intervals))
		for i, v := range intervals {
			iv[i] = v
		}
		ctx["candleIntervals"] = iv
	}
	return &core.Manifest{
		Name:    "exchange",
		Version: "1.0.0",
		DataSources: []core.DataSource{{
			Kind:    "ethereum/contract",
			Name:    "Factory",
			Network: "bsc",
			Source:  core.DataSourceSource{Address: &factory, ABI: "Factory", StartBlock: &start},
			Mapping: core.DataSourceMapping{
				Kind:          "ethereum/events",
				EventHandlers: []core.EventHandler{{Event: "PairCreated(indexed address,indexed address,address,uint256)", Handler: "handlePairCreated"}},
			},
		}},
		Context: ctx,
	}
}

func newTestModule(t *testing.T, st entity.Store, intervals ...int) *Module {
	t.Helper()
	m, err := NewModule(testManifest(intervals...), st, testLogger())
	require.NoError(t, err)
	require.NoError(t, m.Initialize(context.Background()))
	return m
}

// wei scales a human amount to 18-decimal raw units
func wei(amount string) *big.Int {
	return decimal.RequireFromString(amount).Shift(18).BigInt()
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func assertApprox(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	diff := dec(want).Sub(got).Abs()
	assert.True(t, diff.LessThan(dec("0.000000001")), "want ~%s, got %s", want, got)
}

// seedExchange stores the factory, the bundle and the tokens used by tests
func seedExchange(t *testing.T, st entity.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.SaveFactory(ctx, &entity.Factory{ID: factoryAddr, PairCount: 4}))
	require.NoError(t, st.SaveBundle(ctx, &entity.Bundle{}))
	for _, tok := range []entity.Token{
		{ID: wbnbAddr, Symbol: "WBNB", Decimals: 18},
		{ID: busdAddr, Symbol: "BUSD", Decimals: 18},
		{ID: usdtAddr, Symbol: "USDT", Decimals: 18},
		{ID: cakeAddr, Symbol: "CAKE", Decimals: 18},
		{ID: fooAddr, Symbol: "FOO", Decimals: 6},
		{ID: barAddr, Symbol: "BAR", Decimals: 18},
	} {
		tok := tok
		require.NoError(t, st.SaveToken(ctx, &tok))
	}
	for _, p := range []entity.Pair{
		{ID: busdWbnbPair, Token0: wbnbAddr, Token1: busdAddr},
		{ID: usdtWbnbPair, Token0: usdtAddr, Token1: wbnbAddr},
		{ID: cakeWbnbPair, Token0: cakeAddr, Token1: wbnbAddr},
		{ID: fooBarPair, Token0: fooAddr, Token1: barAddr},
	} {
		p := p
		require.NoError(t, st.SavePair(ctx, &p))
	}
}

func meta(logIndex uint64) Meta {
	return Meta{
		TxHash:      txHash,
		TxFrom:      userAddr,
		BlockNumber: 100,
		Timestamp:   7200 + 30,
		LogIndex:    logIndex,
	}
}

func syncEvent(pair string, r0, r1 *big.Int) *SyncEvent {
	m := meta(1)
	m.Contract = pair
	return &SyncEvent{Meta: m, Reserve0: r0, Reserve1: r1}
}

// primeMarket syncs the stable pairs and the CAKE pair twice so the bundle
// and token prices are populated: BNB = 300 USD, CAKE = 0.01 BNB. Prices
// read the reserves stored by the previous Sync, so one pass is not enough.
func primeMarket(t *testing.T, m *Module, st entity.Store) {
	t.Helper()
	ctx := context.Background()
	for round := 0; round < 2; round++ {
		require.NoError(t, m.OnSync(ctx, st, syncEvent(busdWbnbPair, wei("1000"), wei("300000"))))
		require.NoError(t, m.OnSync(ctx, st, syncEvent(usdtWbnbPair, wei("300000"), wei("1000"))))
		require.NoError(t, m.OnSync(ctx, st, syncEvent(cakeWbnbPair, wei("100000"), wei("1000"))))
	}
}

func loadPair(t *testing.T, st entity.Store, id string) *entity.Pair {
	t.Helper()
	p, err := st.Pair(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func loadToken(t *testing.T, st entity.Store, id string) *entity.Token {
	t.Helper()
	tok, err := st.Token(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, tok)
	return tok
}

func loadFactory(t *testing.T, st entity.Store) *entity.Factory {
	t.Helper()
	f, err := st.Factory(context.Background(), factoryAddr)
	require.NoError(t, err)
	require.NotNil(t, f)
	return f
}
