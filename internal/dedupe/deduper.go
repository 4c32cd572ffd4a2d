package dedupe

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/core/types"
)

// Deduper guards against handling the same log twice
type Deduper interface {
	// Seen marks id as handled. alreadySeen=true means a duplicate that must be skipped.
	Seen(ctx context.Context, id string) (alreadySeen bool, err error)

	// Forget releases id so a failed event can be retried
	Forget(ctx context.Context, id string) error
}

// LogKey identifies a log by transaction hash and log index
func LogKey(log *types.Log) string {
	return log.TxHash.Hex() + "-" + strconv.FormatUint(uint64(log.Index), 10)
}
