package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/UniTradeApp/pancake-subgraph/internal/entity"
)

const bundleID = "1"

// querier is satisfied by both the pool and an open transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements entity.Store on top of the exchange_* tables.
// Decimals are written as text and cast to NUMERIC, and read back as text.
type PostgresStore struct {
	db   *Database
	q    querier
	inTx bool
}

var _ entity.Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store that runs each call on the pool
func NewPostgresStore(db *Database) *PostgresStore {
	return &PostgresStore{db: db, q: db.pool}
}

// Atomic runs fn inside a database transaction. Nested calls, and calls
// made inside an entity.Unit opened on s, join the transaction that is
// already open.
func (s *PostgresStore) Atomic(ctx context.Context, fn func(entity.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if st := entity.Joined(ctx, s); st != nil {
		return fn(st)
	}
	return s.db.Transaction(ctx, func(tx pgx.Tx) error {
		return fn(&PostgresStore{db: s.db, q: tx, inTx: true})
	})
}

// found turns pgx.ErrNoRows into the (nil, nil) absent result
func found(err error) (bool, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func num(d decimal.Decimal) string {
	return d.String()
}

func (s *PostgresStore) Factory(ctx context.Context, id string) (*entity.Factory, error) {
	var f entity.Factory
	err := s.q.QueryRow(ctx, `
		SELECT id, pair_count, total_volume_usd::text, total_volume_bnb::text,
		       untracked_volume_usd::text, total_liquidity_usd::text,
		       total_liquidity_bnb::text, total_transactions
		FROM exchange_factories WHERE id = $1`, id).Scan(
		&f.ID, &f.PairCount, &f.TotalVolumeUSD, &f.TotalVolumeBNB,
		&f.UntrackedVolumeUSD, &f.TotalLiquidityUSD,
		&f.TotalLiquidityBNB, &f.TotalTransactions,
	)
	if ok, err := found(err); !ok {
		if err != nil {
			return nil, fmt.Errorf("failed to load factory %s: %w", id, err)
		}
		return nil, nil
	}
	return &f, nil
}

func (s *PostgresStore) SaveFactory(ctx context.Context, f *entity.Factory) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO exchange_factories (id, pair_count, total_volume_usd, total_volume_bnb,
			untracked_volume_usd, total_liquidity_usd, total_liquidity_bnb, total_transactions)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8)
		ON CONFLICT (id) DO UPDATE SET
			pair_count = EXCLUDED.pair_count,
			total_volume_usd = EXCLUDED.total_volume_usd,
			total_volume_bnb = EXCLUDED.total_volume_bnb,
			untracked_volume_usd = EXCLUDED.untracked_volume_usd,
			total_liquidity_usd = EXCLUDED.total_liquidity_usd,
			total_liquidity_bnb = EXCLUDED.total_liquidity_bnb,
			total_transactions = EXCLUDED.total_transactions`,
		f.ID, f.PairCount, num(f.TotalVolumeUSD), num(f.TotalVolumeBNB),
		num(f.UntrackedVolumeUSD), num(f.TotalLiquidityUSD), num(f.TotalLiquidityBNB),
		f.TotalTransactions,
	)
	if err != nil {
		return fmt.Errorf("failed to save factory %s: %w", f.ID, err)
	}
	return nil
}

func (s *PostgresStore) Bundle(ctx context.Context) (*entity.Bundle, error) {
	var b entity.Bundle
	err := s.q.QueryRow(ctx, `SELECT bnb_price::text FROM exchange_bundle WHERE id = $1`, bundleID).Scan(&b.BnbPrice)
	if ok, err := found(err); !ok {
		if err != nil {
			return nil, fmt.Errorf("failed to load bundle: %w", err)
		}
		return nil, nil
	}
	return &b, nil
}

func (s *PostgresStore) SaveBundle(ctx context.Context, b *entity.Bundle) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO exchange_bundle (id, bnb_price) VALUES ($1, $2::numeric)
		ON CONFLICT (id) DO UPDATE SET bnb_price = EXCLUDED.bnb_price`,
		bundleID, num(b.BnbPrice))
	if err != nil {
		return fmt.Errorf("failed to save bundle: %w", err)
	}
	return nil
}

const tokenColumns = `id, symbol, name, decimals, total_supply::text, trade_volume::text,
	trade_volume_usd::text, untracked_volume_usd::text, total_transactions,
	total_liquidity::text, derived_bnb::text, derived_usd::text`

func (s *PostgresStore) Token(ctx context.Context, id string) (*entity.Token, error) {
	var t entity.Token
	err := s.q.QueryRow(ctx, `SELECT `+tokenColumns+` FROM exchange_tokens WHERE id = $1`, id).Scan(
		&t.ID, &t.Symbol, &t.Name, &t.Decimals, &t.TotalSupply, &t.TradeVolume,
		&t.TradeVolumeUSD, &t.UntrackedVolumeUSD, &t.TotalTransactions,
		&t.TotalLiquidity, &t.DerivedBNB, &t.DerivedUSD,
	)
	if ok, err := found(err); !ok {
		if err != nil {
			return nil, fmt.Errorf("failed to load token %s: %w", id, err)
		}
		return nil, nil
	}
	return &t, nil
}

func (s *PostgresStore) SaveToken(ctx context.Context, t *entity.Token) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO exchange_tokens (id, symbol, name, decimals, total_supply, trade_volume,
			trade_volume_usd, untracked_volume_usd, total_transactions, total_liquidity,
			derived_bnb, derived_usd)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9,
			$10::numeric, $11::numeric, $12::numeric)
		ON CONFLICT (id) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			name = EXCLUDED.name,
			decimals = EXCLUDED.decimals,
			total_supply = EXCLUDED.total_supply,
			trade_volume = EXCLUDED.trade_volume,
			trade_volume_usd = EXCLUDED.trade_volume_usd,
			untracked_volume_usd = EXCLUDED.untracked_volume_usd,
			total_transactions = EXCLUDED.total_transactions,
			total_liquidity = EXCLUDED.total_liquidity,
			derived_bnb = EXCLUDED.derived_bnb,
			derived_usd = EXCLUDED.derived_usd`,
		t.ID, t.Symbol, t.Name, t.Decimals, num(t.TotalSupply), num(t.TradeVolume),
		num(t.TradeVolumeUSD), num(t.UntrackedVolumeUSD), t.TotalTransactions,
		num(t.TotalLiquidity), num(t.DerivedBNB), num(t.DerivedUSD),
	)
	if err != nil {
		return fmt.Errorf("failed to save token %s: %w", t.ID, err)
	}
	return nil
}

const pairColumns = `id, token0, token1, reserve0::text, reserve1::text, total_supply::text,
	reserve_bnb::text, reserve_usd::text, tracked_reserve_bnb::text, token0_price::text,
	token1_price::text, volume_token0::text, volume_token1::text, volume_usd::text,
	untracked_volume_usd::text, total_transactions, created_at_block, created_at_timestamp`

func scanPair(row pgx.Row) (*entity.Pair, error) {
	var p entity.Pair
	err := row.Scan(
		&p.ID, &p.Token0, &p.Token1, &p.Reserve0, &p.Reserve1, &p.TotalSupply,
		&p.ReserveBNB, &p.ReserveUSD, &p.TrackedReserveBNB, &p.Token0Price,
		&p.Token1Price, &p.VolumeToken0, &p.VolumeToken1, &p.VolumeUSD,
		&p.UntrackedVolumeUSD, &p.TotalTransactions, &p.CreatedAtBlock, &p.CreatedAtTimestamp,
	)
	if ok, err := found(err); !ok {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) Pair(ctx context.Context, id string) (*entity.Pair, error) {
	p, err := scanPair(s.q.QueryRow(ctx, `SELECT `+pairColumns+` FROM exchange_pairs WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to load pair %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) PairByTokens(ctx context.Context, tokenA, tokenB string) (*entity.Pair, error) {
	p, err := scanPair(s.q.QueryRow(ctx, `
		SELECT `+pairColumns+` FROM exchange_pairs
		WHERE (token0 = $1 AND token1 = $2) OR (token0 = $2 AND token1 = $1)
		ORDER BY created_at_block
		LIMIT 1`, tokenA, tokenB))
	if err != nil {
		return nil, fmt.Errorf("failed to look up pair %s/%s: %w", tokenA, tokenB, err)
	}
	return p, nil
}

func (s *PostgresStore) SavePair(ctx context.Context, p *entity.Pair) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO exchange_pairs (id, token0, token1, reserve0, reserve1, total_supply,
			reserve_bnb, reserve_usd, tracked_reserve_bnb, token0_price, token1_price,
			volume_token0, volume_token1, volume_usd, untracked_volume_usd,
			total_transactions, created_at_block, created_at_timestamp)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric,
			$9::numeric, $10::numeric, $11::numeric, $12::numeric, $13::numeric, $14::numeric,
			$15::numeric, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			reserve0 = EXCLUDED.reserve0,
			reserve1 = EXCLUDED.reserve1,
			total_supply = EXCLUDED.total_supply,
			reserve_bnb = EXCLUDED.reserve_bnb,
			reserve_usd = EXCLUDED.reserve_usd,
			tracked_reserve_bnb = EXCLUDED.tracked_reserve_bnb,
			token0_price = EXCLUDED.token0_price,
			token1_price = EXCLUDED.token1_price,
			volume_token0 = EXCLUDED.volume_token0,
			volume_token1 = EXCLUDED.volume_token1,
			volume_usd = EXCLUDED.volume_usd,
			untracked_volume_usd = EXCLUDED.untracked_volume_usd,
			total_transactions = EXCLUDED.total_transactions`,
		p.ID, p.Token0, p.Token1, num(p.Reserve0), num(p.Reserve1), num(p.TotalSupply),
		num(p.ReserveBNB), num(p.ReserveUSD), num(p.TrackedReserveBNB), num(p.Token0Price),
		num(p.Token1Price), num(p.VolumeToken0), num(p.VolumeToken1), num(p.VolumeUSD),
		num(p.UntrackedVolumeUSD), p.TotalTransactions, p.CreatedAtBlock, p.CreatedAtTimestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save pair %s: %w", p.ID, err)
	}
	return nil
}

func (s *PostgresStore) PairIDs(ctx context.Context) ([]string, error) {
	rows, err := s.q.Query(ctx, `SELECT id FROM exchange_pairs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pairs: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to list pairs: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) Transaction(ctx context.Context, id string) (*entity.Transaction, error) {
	var t entity.Transaction
	err := s.q.QueryRow(ctx, `
		SELECT id, block_number, timestamp, swaps
		FROM exchange_transactions WHERE id = $1`, id).Scan(&t.ID, &t.BlockNumber, &t.Timestamp, &t.Swaps)
	if ok, err := found(err); !ok {
		if err != nil {
			return nil, fmt.Errorf("failed to load transaction %s: %w", id, err)
		}
		return nil, nil
	}
	return &t, nil
}

func (s *PostgresStore) SaveTransaction(ctx context.Context, t *entity.Transaction) error {
	swaps := t.Swaps
	if swaps == nil {
		swaps = []string{}
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO exchange_transactions (id, block_number, timestamp, swaps)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET swaps = EXCLUDED.swaps`,
		t.ID, t.BlockNumber, t.Timestamp, swaps)
	if err != nil {
		return fmt.Errorf("failed to save transaction %s: %w", t.ID, err)
	}
	return nil
}

func (s *PostgresStore) Swap(ctx context.Context, id string) (*entity.Swap, error) {
	var sw entity.Swap
	err := s.q.QueryRow(ctx, `
		SELECT id, transaction_id, pair_id, timestamp, sender, from_address, to_address,
		       amount0_in::text, amount1_in::text, amount0_out::text, amount1_out::text,
		       log_index, amount_usd::text
		FROM exchange_swaps WHERE id = $1`, id).Scan(
		&sw.ID, &sw.Transaction, &sw.Pair, &sw.Timestamp, &sw.Sender, &sw.From, &sw.To,
		&sw.Amount0In, &sw.Amount1In, &sw.Amount0Out, &sw.Amount1Out,
		&sw.LogIndex, &sw.AmountUSD,
	)
	if ok, err := found(err); !ok {
		if err != nil {
			return nil, fmt.Errorf("failed to load swap %s: %w", id, err)
		}
		return nil, nil
	}
	return &sw, nil
}

// SaveSwap inserts a swap. Swaps are immutable, so a second save is ignored.
func (s *PostgresStore) SaveSwap(ctx context.Context, sw *entity.Swap) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO exchange_swaps (id, transaction_id, pair_id, timestamp, sender,
			from_address, to_address, amount0_in, amount1_in, amount0_out, amount1_out,
			log_index, amount_usd)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10::numeric,
			$11::numeric, $12, $13::numeric)
		ON CONFLICT (id) DO NOTHING`,
		sw.ID, sw.Transaction, sw.Pair, sw.Timestamp, sw.Sender, sw.From, sw.To,
		num(sw.Amount0In), num(sw.Amount1In), num(sw.Amount0Out), num(sw.Amount1Out),
		sw.LogIndex, num(sw.AmountUSD),
	)
	if err != nil {
		return fmt.Errorf("failed to save swap %s: %w", sw.ID, err)
	}
	return nil
}

func (s *PostgresStore) Candle(ctx context.Context, interval int64, id string) (*entity.Candle, error) {
	var c entity.Candle
	err := s.q.QueryRow(ctx, `
		SELECT id, interval_seconds, token_id, date, open_price_usd::text,
		       close_price_usd::text, low_price_usd::text, high_price_usd::text
		FROM exchange_candles WHERE interval_seconds = $1 AND id = $2`, interval, id).Scan(
		&c.ID, &c.Interval, &c.Token, &c.Date, &c.OpenPriceUSD,
		&c.ClosePriceUSD, &c.LowPriceUSD, &c.HighPriceUSD,
	)
	if ok, err := found(err); !ok {
		if err != nil {
			return nil, fmt.Errorf("failed to load candle %s: %w", id, err)
		}
		return nil, nil
	}
	return &c, nil
}

func (s *PostgresStore) SaveCandle(ctx context.Context, c *entity.Candle) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO exchange_candles (interval_seconds, id, token_id, date, open_price_usd,
			close_price_usd, low_price_usd, high_price_usd)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric)
		ON CONFLICT (interval_seconds, id) DO UPDATE SET
			open_price_usd = EXCLUDED.open_price_usd,
			close_price_usd = EXCLUDED.close_price_usd,
			low_price_usd = EXCLUDED.low_price_usd,
			high_price_usd = EXCLUDED.high_price_usd`,
		c.Interval, c.ID, c.Token, c.Date, num(c.OpenPriceUSD),
		num(c.ClosePriceUSD), num(c.LowPriceUSD), num(c.HighPriceUSD),
	)
	if err != nil {
		return fmt.Errorf("failed to save candle %s: %w", c.ID, err)
	}
	return nil
}

func (s *PostgresStore) Cursor(ctx context.Context, name string) (*entity.Cursor, error) {
	var (
		c                 = entity.Cursor{Name: name}
		txIndex, logIndex int64
	)
	err := s.q.QueryRow(ctx, `
		SELECT block_number, tx_index, log_index
		FROM module_cursors WHERE module_name = $1`, name).Scan(&c.Block, &txIndex, &logIndex)
	if ok, err := found(err); !ok {
		if err != nil {
			return nil, fmt.Errorf("failed to load cursor %s: %w", name, err)
		}
		return nil, nil
	}
	c.TxIndex = uint(txIndex)
	c.LogIndex = uint(logIndex)
	return &c, nil
}

func (s *PostgresStore) SaveCursor(ctx context.Context, c *entity.Cursor) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO module_cursors (module_name, block_number, tx_index, log_index, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (module_name) DO UPDATE SET
			block_number = EXCLUDED.block_number,
			tx_index = EXCLUDED.tx_index,
			log_index = EXCLUDED.log_index,
			updated_at = NOW()`,
		c.Name, c.Block, int64(c.TxIndex), int64(c.LogIndex),
	)
	if err != nil {
		return fmt.Errorf("failed to save cursor %s: %w", c.Name, err)
	}
	return nil
}
