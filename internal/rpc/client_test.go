package rpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsAfterFailure(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), zerolog.Nop(), 3, func() error {
		calls++
		if calls == 1 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetry_GivesUp(t *testing.T) {
	boom := errors.New("boom")
	err := Retry(context.Background(), zerolog.Nop(), 1, func() error { return boom })
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Retry(ctx, zerolog.Nop(), 5, func() error { return errors.New("down") })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWithTimeout_KeepsExistingDeadline(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	ctx, done := withTimeout(parent)
	defer done()
	want, _ := parent.Deadline()
	got, ok := ctx.Deadline()
	require.True(t, ok)
	assert.Equal(t, want, got)

	ctx, done = withTimeout(context.Background())
	defer done()
	_, ok = ctx.Deadline()
	assert.True(t, ok)
}

type fakeBatch struct {
	calls   int
	missing uint64
}

func (f *fakeBatch) BatchCallContext(_ context.Context, b []gethrpc.BatchElem) error {
	f.calls++
	for _, elem := range b {
		n, err := hexutil.DecodeUint64(elem.Args[0].(string))
		if err != nil {
			return err
		}
		if n == f.missing {
			continue
		}
		res := elem.Result.(*blockTime)
		res.Number = hexutil.Uint64(n)
		res.Timestamp = hexutil.Uint64(1000 + n)
	}
	return nil
}

func TestBlockTimestamps_Chunks(t *testing.T) {
	numbers := make([]uint64, 0, 250)
	for n := uint64(1); n <= 250; n++ {
		numbers = append(numbers, n)
	}

	caller := &fakeBatch{}
	got, err := blockTimestamps(context.Background(), caller, numbers)
	require.NoError(t, err)
	assert.Equal(t, 3, caller.calls)
	assert.Len(t, got, 250)
	assert.Equal(t, uint64(1250), got[250])
}

func TestBlockTimestamps_MissingHeader(t *testing.T) {
	_, err := blockTimestamps(context.Background(), &fakeBatch{missing: 7}, []uint64{6, 7, 8})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header 7 not found")
}
