package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UniTradeApp/pancake-subgraph/internal/entity"
)

func TestMigrationVersions(t *testing.T) {
	versions, err := migrationVersions()
	require.NoError(t, err)
	require.NotEmpty(t, versions)
	assert.Equal(t, []string{"0001_exchange", "0002_module_cursors"}, versions)

	contents, err := migrationsFS.ReadFile(migrationsDir + "/0001_exchange.sql")
	require.NoError(t, err)
	for _, table := range []string{
		"exchange_factories", "exchange_bundle", "exchange_tokens", "exchange_pairs",
		"exchange_transactions", "exchange_swaps", "exchange_candles", "module_state",
	} {
		assert.Contains(t, string(contents), "CREATE TABLE IF NOT EXISTS "+table)
	}
}

// newTestDatabase migrates a throwaway schema on the database named by
// INDEXER_TEST_DATABASE_URL
func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	url := os.Getenv("INDEXER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("INDEXER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	schema := fmt.Sprintf("test_%d", time.Now().UnixNano())

	admin, err := pgx.Connect(ctx, url)
	require.NoError(t, err)
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		_ = admin.Close(context.Background())
	})

	connConfig, err := pgx.ParseConfig(url)
	require.NoError(t, err)
	connConfig.RuntimeParams["search_path"] = schema
	connConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	conn, err := pgx.ConnectConfig(ctx, connConfig)
	require.NoError(t, err)
	_, err = migrate(ctx, conn, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, conn.Close(ctx))

	poolConfig, err := pgxpool.ParseConfig(url)
	require.NoError(t, err)
	poolConfig.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return &Database{pool: pool, logger: zerolog.Nop()}
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	db := newTestDatabase(t)
	st := NewPostgresStore(db)
	ctx := context.Background()

	absent, err := st.Pair(ctx, "0xmissing")
	require.NoError(t, err)
	assert.Nil(t, absent)

	require.NoError(t, st.SaveBundle(ctx, &entity.Bundle{BnbPrice: decimal.RequireFromString("301.123456789012345678901234")}))
	require.NoError(t, st.SaveToken(ctx, &entity.Token{ID: "0xa", Symbol: "A", Name: "A", Decimals: 18}))
	require.NoError(t, st.SaveToken(ctx, &entity.Token{ID: "0xb", Symbol: "B", Name: "B", Decimals: 6}))
	require.NoError(t, st.SavePair(ctx, &entity.Pair{
		ID: "0xp", Token0: "0xa", Token1: "0xb",
		Reserve0: decimal.RequireFromString("1.5"), CreatedAtBlock: 10, CreatedAtTimestamp: 20,
	}))

	bundle, err := st.Bundle(ctx)
	require.NoError(t, err)
	assert.Equal(t, "301.123456789012345678901234", bundle.BnbPrice.String())

	pair, err := st.PairByTokens(ctx, "0xb", "0xa")
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.Equal(t, "0xp", pair.ID)
	assert.True(t, pair.Reserve0.Equal(decimal.RequireFromString("1.5")))

	ids, err := st.PairIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xp"}, ids)

	require.NoError(t, st.SaveTransaction(ctx, &entity.Transaction{ID: "0xtx", BlockNumber: 10, Timestamp: 20}))
	tx, err := st.Transaction(ctx, "0xtx")
	require.NoError(t, err)
	assert.Empty(t, tx.Swaps)

	require.NoError(t, st.SaveCandle(ctx, &entity.Candle{ID: "0xa-1", Interval: 3600, Token: "0xa", Date: 3600}))
	c, err := st.Candle(ctx, 86400, "0xa-1")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestPostgresStore_AtomicRollback(t *testing.T) {
	db := newTestDatabase(t)
	st := NewPostgresStore(db)
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.Atomic(ctx, func(s entity.Store) error {
		require.NoError(t, s.SaveTransaction(ctx, &entity.Transaction{ID: "0xtx", BlockNumber: 1}))
		require.NoError(t, s.SaveSwap(ctx, &entity.Swap{ID: "0xtx-0", Transaction: "0xtx", Pair: "0xnone"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	tx, err := st.Transaction(ctx, "0xtx")
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestDatabase_Checkpoint(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	_, ok, err := db.Checkpoint(ctx, "exchange")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.SetCheckpoint(ctx, "exchange", 100))
	require.NoError(t, db.SetCheckpoint(ctx, "exchange", 150))

	block, ok, err := db.Checkpoint(ctx, "exchange")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(150), block)
}

func TestPostgresStore_UnitCommitsCursorWithEntities(t *testing.T) {
	db := newTestDatabase(t)
	st := NewPostgresStore(db)
	ctx := context.Background()
	boom := errors.New("boom")

	// a failing unit leaves neither the entity nor the cursor behind
	err := entity.Unit(ctx, st, func(ctx context.Context, s entity.Store) error {
		require.NoError(t, st.Atomic(ctx, func(inner entity.Store) error {
			return inner.SaveToken(ctx, &entity.Token{ID: "0xa", Symbol: "A", Decimals: 18})
		}))
		require.NoError(t, s.SaveCursor(ctx, &entity.Cursor{Name: "exchange", Block: 9, TxIndex: 2, LogIndex: 5}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	tok, err := st.Token(ctx, "0xa")
	require.NoError(t, err)
	assert.Nil(t, tok)
	c, err := st.Cursor(ctx, "exchange")
	require.NoError(t, err)
	assert.Nil(t, c)

	require.NoError(t, entity.Unit(ctx, st, func(ctx context.Context, s entity.Store) error {
		if err := st.Atomic(ctx, func(inner entity.Store) error {
			return inner.SaveToken(ctx, &entity.Token{ID: "0xa", Symbol: "A", Decimals: 18})
		}); err != nil {
			return err
		}
		return s.SaveCursor(ctx, &entity.Cursor{Name: "exchange", Block: 9, TxIndex: 2, LogIndex: 5})
	}))

	tok, err = st.Token(ctx, "0xa")
	require.NoError(t, err)
	assert.NotNil(t, tok)
	c, err = st.Cursor(ctx, "exchange")
	require.NoError(t, err)
	assert.Equal(t, &entity.Cursor{Name: "exchange", Block: 9, TxIndex: 2, LogIndex: 5}, c)
}
