package database

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/UniTradeApp/pancake-subgraph/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// RunMigrations applies the embedded SQL files in filename order. Each file
// runs once, in its own transaction, and is recorded in schema_migrations.
func RunMigrations(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (int, error) {
	connConfig, err := pgx.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return 0, fmt.Errorf("parse connection string: %w", err)
	}
	// Simple protocol lets one Exec carry a whole multi-statement file
	connConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	conn, err := pgx.ConnectConfig(ctx, connConfig)
	if err != nil {
		return 0, fmt.Errorf("connect database for migrations: %w", err)
	}
	defer conn.Close(ctx)

	return migrate(ctx, conn, logger)
}

func migrate(ctx context.Context, conn *pgx.Conn, logger zerolog.Logger) (int, error) {
	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return 0, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	versions, err := migrationVersions()
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, version := range versions {
		var exists bool
		if err := conn.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
		).Scan(&exists); err != nil {
			return applied, fmt.Errorf("check migration %s: %w", version, err)
		}
		if exists {
			continue
		}

		if err := applyMigration(ctx, conn, version); err != nil {
			return applied, err
		}
		applied++
		logger.Info().Str("migration", version).Msg("Applied migration")
	}

	return applied, nil
}

// migrationVersions lists the embedded migrations without their extension
func migrationVersions() ([]string, error) {
	entries, err := migrationsFS.ReadDir(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read embedded migrations: %w", err)
	}

	var versions []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		versions = append(versions, strings.TrimSuffix(entry.Name(), ".sql"))
	}
	sort.Strings(versions)
	return versions, nil
}

func applyMigration(ctx context.Context, conn *pgx.Conn, version string) error {
	contents, err := migrationsFS.ReadFile(migrationsDir + "/" + version + ".sql")
	if err != nil {
		return fmt.Errorf("read migration %s: %w", version, err)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", version, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if script := strings.TrimSpace(string(contents)); script != "" {
		if _, err := tx.Exec(ctx, script); err != nil {
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
	}

	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
		return fmt.Errorf("record migration %s: %w", version, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}
