package exchange

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/UniTradeApp/pancake-subgraph/internal/modules/core"
)

// Meta is the chain context shared by every handled event.
type Meta struct {
	Contract    string // emitting contract
	TxHash      string
	TxFrom      string
	BlockNumber uint64
	Timestamp   uint64
	LogIndex    uint64
}

type PairCreatedEvent struct {
	Meta
	Token0 string
	Token1 string
	Pair   string
	Index  *big.Int
}

type TransferEvent struct {
	Meta
	From  string
	To    string
	Value *big.Int
}

type SyncEvent struct {
	Meta
	Reserve0 *big.Int
	Reserve1 *big.Int
}

type MintEvent struct {
	Meta
	Sender  string
	Amount0 *big.Int
	Amount1 *big.Int
}

type BurnEvent struct {
	Meta
	Sender  string
	To      string
	Amount0 *big.Int
	Amount1 *big.Int
}

type SwapEvent struct {
	Meta
	Sender     string
	To         string
	Amount0In  *big.Int
	Amount1In  *big.Int
	Amount0Out *big.Int
	Amount1Out *big.Int
}

func addrID(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func metaOf(e *core.ParsedEvent) Meta {
	return Meta{
		Contract:    addrID(e.Address),
		TxHash:      strings.ToLower(e.TransactionHash.Hex()),
		TxFrom:      addrID(e.From),
		BlockNumber: e.BlockNumber,
		Timestamp:   e.Timestamp,
		LogIndex:    uint64(e.LogIndex),
	}
}

// argReader collects the first decoding error so decoders stay linear.
type argReader struct {
	e   *core.ParsedEvent
	err error
}

func (r *argReader) addr(name string) string {
	if r.err != nil {
		return ""
	}
	a, err := r.e.AddressArg(name)
	if err != nil {
		r.err = err
		return ""
	}
	return addrID(a)
}

func (r *argReader) integer(name string) *big.Int {
	if r.err != nil {
		return nil
	}
	v, err := r.e.BigArg(name)
	if err != nil {
		r.err = err
		return nil
	}
	return v
}

func decodePairCreated(e *core.ParsedEvent) (*PairCreatedEvent, error) {
	r := &argReader{e: e}
	ev := &PairCreatedEvent{
		Meta:   metaOf(e),
		Token0: r.addr("token0"),
		Token1: r.addr("token1"),
		Pair:   r.addr("pair"),
		Index:  r.integer("index"),
	}
	return ev, r.err
}

func decodeTransfer(e *core.ParsedEvent) (*TransferEvent, error) {
	r := &argReader{e: e}
	ev := &TransferEvent{
		Meta:  metaOf(e),
		From:  r.addr("from"),
		To:    r.addr("to"),
		Value: r.integer("value"),
	}
	return ev, r.err
}

func decodeSync(e *core.ParsedEvent) (*SyncEvent, error) {
	r := &argReader{e: e}
	ev := &SyncEvent{
		Meta:     metaOf(e),
		Reserve0: r.integer("reserve0"),
		Reserve1: r.integer("reserve1"),
	}
	return ev, r.err
}

func decodeMint(e *core.ParsedEvent) (*MintEvent, error) {
	r := &argReader{e: e}
	ev := &MintEvent{
		Meta:    metaOf(e),
		Sender:  r.addr("sender"),
		Amount0: r.integer("amount0"),
		Amount1: r.integer("amount1"),
	}
	return ev, r.err
}

func decodeBurn(e *core.ParsedEvent) (*BurnEvent, error) {
	r := &argReader{e: e}
	ev := &BurnEvent{
		Meta:    metaOf(e),
		Sender:  r.addr("sender"),
		To:      r.addr("to"),
		Amount0: r.integer("amount0"),
		Amount1: r.integer("amount1"),
	}
	return ev, r.err
}

func decodeSwap(e *core.ParsedEvent) (*SwapEvent, error) {
	r := &argReader{e: e}
	ev := &SwapEvent{
		Meta:       metaOf(e),
		Sender:     r.addr("sender"),
		To:         r.addr("to"),
		Amount0In:  r.integer("amount0In"),
		Amount1In:  r.integer("amount1In"),
		Amount0Out: r.integer("amount0Out"),
		Amount1Out: r.integer("amount1Out"),
	}
	return ev, r.err
}
