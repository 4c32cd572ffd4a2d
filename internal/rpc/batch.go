package rpc

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// maxBatchSize caps the calls sent in one JSON-RPC batch
const maxBatchSize = 100

// blockTime is the part of eth_getBlockByNumber the indexer reads
type blockTime struct {
	Number    hexutil.Uint64 `json:"number"`
	Timestamp hexutil.Uint64 `json:"timestamp"`
}

type batchCaller interface {
	BatchCallContext(ctx context.Context, b []rpc.BatchElem) error
}

// BlockTimestamps fetches the timestamps of many blocks using batched calls
func (c *Client) BlockTimestamps(ctx context.Context, numbers []uint64) (map[uint64]uint64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return blockTimestamps(ctx, c.raw, numbers)
}

func blockTimestamps(ctx context.Context, caller batchCaller, numbers []uint64) (map[uint64]uint64, error) {
	out := make(map[uint64]uint64, len(numbers))

	for start := 0; start < len(numbers); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(numbers) {
			end = len(numbers)
		}
		chunk := numbers[start:end]

		results := make([]*blockTime, len(chunk))
		batch := make([]rpc.BatchElem, len(chunk))
		for k, n := range chunk {
			results[k] = new(blockTime)
			batch[k] = rpc.BatchElem{
				Method: "eth_getBlockByNumber",
				Args:   []interface{}{hexutil.EncodeUint64(n), false},
				Result: results[k],
			}
		}

		if err := caller.BatchCallContext(ctx, batch); err != nil {
			return nil, fmt.Errorf("failed to batch fetch %d headers: %w", len(chunk), err)
		}

		for k, elem := range batch {
			if elem.Error != nil {
				return nil, fmt.Errorf("failed to get header %d: %w", chunk[k], elem.Error)
			}
			if uint64(results[k].Number) != chunk[k] {
				return nil, fmt.Errorf("header %d not found", chunk[k])
			}
			out[chunk[k]] = uint64(results[k].Timestamp)
		}
	}

	return out, nil
}
