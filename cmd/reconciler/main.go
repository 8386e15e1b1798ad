package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bimakw/vault-gateway/internal/application/services"
	"github.com/bimakw/vault-gateway/internal/config"
	"github.com/bimakw/vault-gateway/internal/infrastructure/cache"
	"github.com/bimakw/vault-gateway/internal/infrastructure/database"
	"github.com/bimakw/vault-gateway/internal/infrastructure/ethereum"
	"github.com/bimakw/vault-gateway/internal/infrastructure/logging"
	"github.com/bimakw/vault-gateway/internal/infrastructure/notify"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting vault-gateway reconciler",
		zap.Duration("poll_interval", cfg.Reconciler.PollInterval),
		zap.Duration("stale_after", cfg.Reconciler.StaleAfter),
		zap.String("rpc_url", cfg.Ethereum.RPCURL),
	)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	db, err := database.NewPostgresDB(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Connect to Ethereum node
	ethClient, err := ethereum.NewClient(cfg.Ethereum, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Ethereum node", zap.Error(err))
	}
	defer ethClient.Close()

	// Receipts only, the reconciler never signs
	receipts, err := ethereum.NewTransactor(ethClient.EthClient(), ethClient.ChainID(), config.WalletConfig{}, cfg.Ethereum, logger)
	if err != nil {
		logger.Fatal("Failed to create receipt client", zap.Error(err))
	}

	// Create repositories
	intentRepo := database.NewIntentRepo(db.DB())

	senders := []notify.Sender{notify.NewLogSender(logger)}
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL))
	}

	// With Redis, notifications reach API websocket clients and settled
	// intents drop the shared read cache
	var positions *services.PositionService
	redisCache, err := cache.NewRedisCache(cfg.Redis, cfg.API.CacheTTL, logger)
	if err != nil {
		logger.Warn("Failed to connect to Redis, notifications stay local", zap.Error(err))
	} else {
		defer redisCache.Close()
		senders = append(senders, notify.NewRedisPublisher(redisCache.Client()))

		reader := ethereum.NewLendingReader(ethClient, cfg.Lending.ContractAddress, logger)
		tokens := services.NewTokenService(database.NewTokenRepo(db.DB()), nil, redisCache, cfg.API.TokenCacheTTL, logger)
		positions = services.NewPositionService(reader, tokens, redisCache, cfg.API.CacheTTL, cfg.Lending.CollateralSymbol, cfg.Lending.ContractAddress, logger)
	}
	dispatcher := notify.NewDispatcher(senders, cfg.Notify.DedupeTTL, logger)

	// Create reconciler service
	reconciler := services.NewReconcilerService(
		receipts,
		intentRepo,
		dispatcher,
		positions,
		cfg.Reconciler,
		logger,
	)

	// Start reconciler
	reconciler.Start(ctx)

	// Start metrics server
	go startMetricsServer(cfg.Reconciler.MetricsPort, reconciler, logger)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal, stopping reconciler...")

	// Graceful shutdown
	reconciler.Stop()

	stats := reconciler.Stats()
	logger.Info("Reconciler stopped",
		zap.Int64("passes", stats.Passes),
		zap.Int64("confirmed", stats.Confirmed),
		zap.Int64("failed", stats.Failed),
	)
}

func startMetricsServer(port int, reconciler *services.ReconcilerService, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "OK last_run=%s", reconciler.Stats().LastRun.Format(time.RFC3339))
	})

	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting metrics server", zap.String("addr", addr))

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Metrics server error", zap.Error(err))
	}
}
