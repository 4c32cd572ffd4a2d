package entity

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNotFound marks an entity the handlers require but the store does not hold.
var ErrNotFound = errors.New("entity not found")

// Factory is the exchange-wide aggregate keyed by the factory address.
type Factory struct {
	ID                 string
	PairCount          int64
	TotalVolumeUSD     decimal.Decimal
	TotalVolumeBNB     decimal.Decimal
	UntrackedVolumeUSD decimal.Decimal
	TotalLiquidityUSD  decimal.Decimal
	TotalLiquidityBNB  decimal.Decimal
	TotalTransactions  int64
}

// Bundle holds the USD price of the native asset. There is exactly one.
type Bundle struct {
	BnbPrice decimal.Decimal
}

// Token is an ERC20 participating in at least one pair.
type Token struct {
	ID                 string
	Symbol             string
	Name               string
	Decimals           int32
	TotalSupply        decimal.Decimal // raw units
	TradeVolume        decimal.Decimal
	TradeVolumeUSD     decimal.Decimal
	UntrackedVolumeUSD decimal.Decimal
	TotalTransactions  int64
	TotalLiquidity     decimal.Decimal
	DerivedBNB         decimal.Decimal
	DerivedUSD         decimal.Decimal
}

// Pair is a two-token liquidity pool.
type Pair struct {
	ID                 string
	Token0             string
	Token1             string
	Reserve0           decimal.Decimal
	Reserve1           decimal.Decimal
	TotalSupply        decimal.Decimal
	ReserveBNB         decimal.Decimal
	ReserveUSD         decimal.Decimal
	TrackedReserveBNB  decimal.Decimal
	Token0Price        decimal.Decimal
	Token1Price        decimal.Decimal
	VolumeToken0       decimal.Decimal
	VolumeToken1       decimal.Decimal
	VolumeUSD          decimal.Decimal
	UntrackedVolumeUSD decimal.Decimal
	TotalTransactions  int64
	CreatedAtBlock     uint64
	CreatedAtTimestamp uint64
}

// Transaction groups the swaps emitted by one chain transaction.
type Transaction struct {
	ID          string
	BlockNumber uint64
	Timestamp   uint64
	Swaps       []string
}

// Swap is an immutable trade record.
type Swap struct {
	ID          string
	Transaction string
	Pair        string
	Timestamp   uint64
	Sender      string
	From        string
	To          string
	Amount0In   decimal.Decimal
	Amount1In   decimal.Decimal
	Amount0Out  decimal.Decimal
	Amount1Out  decimal.Decimal
	LogIndex    uint64
	AmountUSD   decimal.Decimal
}

// Candle is the OHLC price of a token over one interval bucket.
type Candle struct {
	ID            string
	Interval      int64
	Token         string
	Date          int64
	OpenPriceUSD  decimal.Decimal
	ClosePriceUSD decimal.Decimal
	LowPriceUSD   decimal.Decimal
	HighPriceUSD  decimal.Decimal
}

func (t *Transaction) clone() Transaction {
	c := *t
	c.Swaps = append([]string(nil), t.Swaps...)
	return c
}

// Cursor is the chain position of the last log an indexer committed.
type Cursor struct {
	Name     string
	Block    uint64
	TxIndex  uint
	LogIndex uint
}
