package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/UniTradeApp/pancake-subgraph/internal/config"
)

type Database struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func New(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (*Database, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConnections
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Name).
		Msg("Connected to database")

	return &Database{
		pool:   pool,
		logger: logger.With().Str("component", "database").Logger(),
	}, nil
}

func (db *Database) Close() {
	db.pool.Close()
	db.logger.Info().Msg("Database connection closed")
}

func (db *Database) Pool() *pgxpool.Pool {
	return db.pool
}

// Transaction executes fn within a database transaction. The transaction is
// rolled back when fn returns an error.
func (db *Database) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			db.logger.Error().Err(rbErr).Msg("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Checkpoint returns the last fully processed block of a module. ok is false
// when the module has never checkpointed.
func (db *Database) Checkpoint(ctx context.Context, module string) (block uint64, ok bool, err error) {
	err = db.pool.QueryRow(ctx,
		`SELECT last_block FROM module_state WHERE module_name = $1`, module,
	).Scan(&block)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get checkpoint for %s: %w", module, err)
	}
	return block, true, nil
}

// SetCheckpoint records the last fully processed block of a module
func (db *Database) SetCheckpoint(ctx context.Context, module string, block uint64) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO module_state (module_name, last_block, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (module_name) DO UPDATE SET
			last_block = EXCLUDED.last_block,
			updated_at = NOW()`,
		module, block)
	if err != nil {
		return fmt.Errorf("failed to set checkpoint for %s: %w", module, err)
	}
	return nil
}
