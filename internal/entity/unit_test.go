package entity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnit_NestedAtomicJoinsAndCommitsOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var hooked []string
	err := Unit(ctx, s, func(ctx context.Context, st Store) error {
		// a nested Atomic on the root store must not wait on the held lock
		if err := s.Atomic(ctx, func(inner Store) error {
			AfterCommit(ctx, func() { hooked = append(hooked, "pair") })
			return inner.SavePair(ctx, &Pair{ID: "0xpair", Token0: "0xa", Token1: "0xb"})
		}); err != nil {
			return err
		}

		p, err := st.Pair(ctx, "0xpair")
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Empty(t, hooked)

		return st.SaveCursor(ctx, &Cursor{Name: "exchange", Block: 7, TxIndex: 1, LogIndex: 4})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"pair"}, hooked)

	c, err := s.Cursor(ctx, "exchange")
	require.NoError(t, err)
	assert.Equal(t, &Cursor{Name: "exchange", Block: 7, TxIndex: 1, LogIndex: 4}, c)
}

func TestUnit_RollbackDropsWritesAndHooks(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	boom := errors.New("boom")

	hooked := false
	err := Unit(ctx, s, func(ctx context.Context, st Store) error {
		require.NoError(t, s.Atomic(ctx, func(inner Store) error {
			AfterCommit(ctx, func() { hooked = true })
			return inner.SaveToken(ctx, &Token{ID: "0xa"})
		}))
		require.NoError(t, st.SaveCursor(ctx, &Cursor{Name: "exchange", Block: 7}))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, hooked)

	tok, err := s.Token(ctx, "0xa")
	require.NoError(t, err)
	assert.Nil(t, tok)
	c, err := s.Cursor(ctx, "exchange")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestUnit_OtherStoresDoNotJoin(t *testing.T) {
	ctx := context.Background()
	a, b := NewMemoryStore(), NewMemoryStore()

	require.NoError(t, Unit(ctx, a, func(ctx context.Context, _ Store) error {
		assert.Nil(t, Joined(ctx, b))
		return b.Atomic(ctx, func(st Store) error {
			return st.SaveToken(ctx, &Token{ID: "0xb"})
		})
	}))

	tok, err := b.Token(ctx, "0xb")
	require.NoError(t, err)
	assert.NotNil(t, tok)
}

func TestAfterCommit_OutsideUnitRunsNow(t *testing.T) {
	ran := false
	AfterCommit(context.Background(), func() { ran = true })
	assert.True(t, ran)
}
