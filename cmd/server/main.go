package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brojonat/gasless/service/config"
	"github.com/brojonat/gasless/service/db"
	"github.com/brojonat/gasless/service/metrics"
	"github.com/brojonat/gasless/service/mint"
	natspkg "github.com/brojonat/gasless/service/nats"
	"github.com/brojonat/gasless/service/price"
	"github.com/brojonat/gasless/service/relay"
	"github.com/brojonat/gasless/service/server"
	"github.com/brojonat/gasless/service/signer"
	solanasvc "github.com/brojonat/gasless/service/solana"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Initialize database connection pool
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	// Verify database connection
	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize database store
	store := db.NewStore(dbPool, metricsCollector)

	// Initialize the mint registry from configuration
	registry, err := mint.NewRegistry(cfg.Mints)
	if err != nil {
		logger.Error("failed to build mint registry", "error", err)
		os.Exit(1)
	}
	logger.Info("initialized mint registry", "symbols", registry.Symbols())

	// Initialize Solana RPC client
	// Note: For premium RPC endpoints, include API key in the URL
	rpcClient := solanasvc.NewRPCClient(cfg.SolanaRPCURL)
	logger.Info("initialized solana RPC client", "url", cfg.SolanaRPCURL)

	// Initialize relay signer from the configured keypair
	relaySigner, err := signer.NewLocalSigner(cfg.RelayWalletPrivateKey, rpcClient, logger)
	if err != nil {
		logger.Error("failed to initialize relay signer", "error", err)
		os.Exit(1)
	}
	relayWallet := relaySigner.PublicKey()
	logger.Info("initialized relay signer", "relay_wallet", relayWallet.String())

	// Initialize fee oracle and instruction composer
	oracle := solanasvc.NewFeeOracle(rpcClient, registry, metricsCollector, logger)
	composer := solanasvc.NewComposer(rpcClient, relayWallet, metricsCollector, logger)

	// Initialize transfer engine
	engine := relay.NewEngine(
		registry,
		composer,
		oracle,
		relaySigner,
		store,
		cfg.RelayFeeBaseUnits,
		metricsCollector,
		logger,
	)

	// Initialize NATS publisher for confirmation events
	natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to create NATS publisher", "error", err)
		os.Exit(1)
	}
	defer natsPublisher.Close()
	logger.Info("connected to NATS", "url", cfg.NATSURL)

	// Initialize status reconciler and start consuming indexer notifications
	reconciler := relay.NewReconciler(store, natsPublisher, metricsCollector, logger)
	consumer, err := natspkg.NewConsumer(cfg.NATSURL, cfg.IndexerStreamSubject, reconciler, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to create NATS consumer", "error", err)
		os.Exit(1)
	}
	if err := consumer.Start(ctx); err != nil {
		logger.Error("failed to start NATS consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Stop()

	// Initialize SOL price quoter for USD fee quotes
	quoter := price.NewCoinGeckoQuoter(cfg.PriceAPIURL, logger)

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, engine, oracle, quoter, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"solana_rpc", cfg.SolanaRPCURL,
		"nats_url", cfg.NATSURL,
		"relay_wallet", relayWallet.String(),
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
