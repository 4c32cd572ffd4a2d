package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/UniTradeApp/pancake-subgraph/internal/config"
	"github.com/UniTradeApp/pancake-subgraph/internal/database"
	"github.com/UniTradeApp/pancake-subgraph/internal/dedupe"
	"github.com/UniTradeApp/pancake-subgraph/internal/entity"
	"github.com/UniTradeApp/pancake-subgraph/internal/metrics"
	"github.com/UniTradeApp/pancake-subgraph/internal/modules/core"
	"github.com/UniTradeApp/pancake-subgraph/internal/modules/exchange"
	"github.com/UniTradeApp/pancake-subgraph/internal/processor"
	"github.com/UniTradeApp/pancake-subgraph/internal/realtime"
	"github.com/UniTradeApp/pancake-subgraph/internal/rpc"
)

const version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "PancakeSwap exchange indexer",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "config.yaml", "path to configuration file")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Index exchange events from the chain",
		RunE:  runIndexer,
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE:  runMigrate,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := setupLogger(cfg.Logging)
	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Str("chain", cfg.Chain.Name).
		Msg("Configuration loaded")
	return cfg, logger, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	applied, err := database.RunMigrations(ctx, &cfg.Database, logger)
	if err != nil {
		return err
	}
	logger.Info().Int("applied", applied).Msg("Migrations complete")
	return nil
}

func runIndexer(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store       entity.Store
		checkpoints processor.Checkpointer
	)
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		if _, err := database.RunMigrations(ctx, &cfg.Database, logger); err != nil {
			return err
		}
		db, err := database.New(ctx, &cfg.Database, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		store = database.NewPostgresStore(db)
		checkpoints = db
	default:
		logger.Warn().Msg("Using in-memory storage, state is lost on restart")
		store = entity.NewMemoryStore()
		checkpoints = processor.NewMemoryCheckpoints()
	}

	client, err := rpc.NewClient(ctx, cfg.Chain.RPCEndpoint, cfg.Chain.ChainID, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	module, err := exchange.NewModuleFromFile(cfg.Modules.Manifest, store, logger)
	if err != nil {
		return err
	}
	fetcher, err := exchange.NewContractMetadataFetcher(client.ContractCaller(), logger)
	if err != nil {
		return err
	}
	module.SetMetadataFetcher(fetcher)

	if cfg.Realtime.APIURL != "" {
		publisher := realtime.NewPublisher(realtime.PublishConfig{
			APIURL: cfg.Realtime.APIURL,
			APIKey: cfg.Realtime.APIKey,
		}, store, logger)
		defer publisher.Close()
		module.SetNotifier(publisher)
	}

	registry := core.NewModuleRegistry(logger)
	if err := registry.RegisterModule(ctx, module); err != nil {
		return err
	}
	if err := registry.Start(); err != nil {
		return err
	}
	defer registry.Stop()

	deduper, closeDedupe, err := newDeduper(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDedupe()

	m := metrics.New()
	metricsServer := serveMetrics(cfg.Metrics.Addr, m, registry, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	startBlock := cfg.Chain.StartBlock
	if b := registry.StartBlock(); b > startBlock {
		startBlock = b
	}

	indexer, err := processor.NewIndexer(processor.Options{
		Name:          module.Name(),
		StartBlock:    startBlock,
		BatchSize:     cfg.Chain.BatchSize,
		Confirmations: cfg.Chain.Confirmations,
		Interval:      cfg.Chain.BlockTime,
	}, client, registry, checkpoints, deduper, m, logger)
	if err != nil {
		return err
	}
	indexer.SetStore(store)
	if err := indexer.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received")
	indexer.Stop()
	logger.Info().Msg("Indexer shutdown complete")
	return nil
}

func newDeduper(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (dedupe.Deduper, func(), error) {
	if !cfg.Redis.Enabled {
		return dedupe.NewMemoryDedupe(cfg.Redis.TTL), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	d, err := dedupe.NewRedisDedupe(client, cfg.Redis.Prefix, cfg.Redis.TTL, logger)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("Using redis dedupe")
	return d, func() { client.Close() }, nil
}

func serveMetrics(addr string, m *metrics.Metrics, registry *core.ModuleRegistry, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/healthz", registry.HealthHandler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	logger.Info().Str("addr", addr).Msg("Metrics server listening")
	return srv
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05.000",
		}
		return zerolog.New(output).Level(level).With().Timestamp().Caller().Logger()
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Caller().Logger()
}
