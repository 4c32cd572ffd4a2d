package processor

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/UniTradeApp/pancake-subgraph/internal/modules/core"
)

// ChainReader is the subset of the RPC client the indexer uses
type ChainReader interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, from, to uint64, addresses []common.Address, topics []common.Hash) ([]types.Log, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	TxSender(ctx context.Context, hash common.Hash) (common.Address, error)
}

// Router hands logs to the modules that subscribed to them
type Router interface {
	ProcessEvent(ctx context.Context, event *core.Event) error
	Topics() []common.Hash
	Addresses() ([]common.Address, bool)
}

// Checkpointer persists the last fully processed block per indexer
type Checkpointer interface {
	Checkpoint(ctx context.Context, name string) (block uint64, ok bool, err error)
	SetCheckpoint(ctx context.Context, name string, block uint64) error
}
