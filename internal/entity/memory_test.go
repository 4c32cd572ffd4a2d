package entity

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AbsentEntitiesLoadAsNil(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p, err := s.Pair(ctx, "0xpair")
	require.NoError(t, err)
	assert.Nil(t, p)

	b, err := s.Bundle(ctx)
	require.NoError(t, err)
	assert.Nil(t, b)

	c, err := s.Candle(ctx, 3600, "0xtoken-1")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestMemoryStore_LoadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SaveToken(ctx, &Token{ID: "0xa", Symbol: "A", Decimals: 18}))

	tok, err := s.Token(ctx, "0xa")
	require.NoError(t, err)
	tok.Symbol = "changed"

	again, err := s.Token(ctx, "0xa")
	require.NoError(t, err)
	assert.Equal(t, "A", again.Symbol)

	require.NoError(t, s.SaveTransaction(ctx, &Transaction{ID: "0xtx", Swaps: []string{"0xtx-0"}}))
	tx, err := s.Transaction(ctx, "0xtx")
	require.NoError(t, err)
	tx.Swaps = append(tx.Swaps, "0xtx-1")

	stored, err := s.Transaction(ctx, "0xtx")
	require.NoError(t, err)
	assert.Equal(t, []string{"0xtx-0"}, stored.Swaps)
}

func TestMemoryStore_PairByTokensIgnoresOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SavePair(ctx, &Pair{ID: "0xpair", Token0: "0xa", Token1: "0xb"}))

	p, err := s.PairByTokens(ctx, "0xb", "0xa")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "0xpair", p.ID)

	p, err = s.PairByTokens(ctx, "0xa", "0xc")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestMemoryStore_CandlesAreKeyedByInterval(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SaveCandle(ctx, &Candle{ID: "0xa-0", Interval: 3600, HighPriceUSD: decimal.NewFromInt(1)}))
	require.NoError(t, s.SaveCandle(ctx, &Candle{ID: "0xa-0", Interval: 86400, HighPriceUSD: decimal.NewFromInt(2)}))

	hour, err := s.Candle(ctx, 3600, "0xa-0")
	require.NoError(t, err)
	day, err := s.Candle(ctx, 86400, "0xa-0")
	require.NoError(t, err)
	assert.True(t, hour.HighPriceUSD.Equal(decimal.NewFromInt(1)))
	assert.True(t, day.HighPriceUSD.Equal(decimal.NewFromInt(2)))
}

func TestMemoryStore_AtomicCommits(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.Atomic(ctx, func(tx Store) error {
		if err := tx.SaveBundle(ctx, &Bundle{BnbPrice: decimal.NewFromInt(300)}); err != nil {
			return err
		}
		// reads inside the unit see staged writes
		b, err := tx.Bundle(ctx)
		require.NoError(t, err)
		require.NotNil(t, b)
		assert.True(t, b.BnbPrice.Equal(decimal.NewFromInt(300)))
		return tx.SavePair(ctx, &Pair{ID: "0xpair", Token0: "0xa", Token1: "0xb"})
	})
	require.NoError(t, err)

	b, err := s.Bundle(ctx)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.True(t, b.BnbPrice.Equal(decimal.NewFromInt(300)))

	p, err := s.PairByTokens(ctx, "0xa", "0xb")
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestMemoryStore_AtomicRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.SaveFactory(ctx, &Factory{ID: "0xf", PairCount: 1}))

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(tx Store) error {
		require.NoError(t, tx.SaveFactory(ctx, &Factory{ID: "0xf", PairCount: 2}))
		require.NoError(t, tx.SaveSwap(ctx, &Swap{ID: "0xtx-0"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	f, err := s.Factory(ctx, "0xf")
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.PairCount)

	sw, err := s.Swap(ctx, "0xtx-0")
	require.NoError(t, err)
	assert.Nil(t, sw)
}
