package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bimakw/vault-gateway/internal/application/services"
	"github.com/bimakw/vault-gateway/internal/config"
	"github.com/bimakw/vault-gateway/internal/domain/repositories"
	"github.com/bimakw/vault-gateway/internal/domain/sequencer"
	"github.com/bimakw/vault-gateway/internal/infrastructure/cache"
	"github.com/bimakw/vault-gateway/internal/infrastructure/database"
	"github.com/bimakw/vault-gateway/internal/infrastructure/ethereum"
	"github.com/bimakw/vault-gateway/internal/infrastructure/logging"
	"github.com/bimakw/vault-gateway/internal/infrastructure/notify"
	"github.com/bimakw/vault-gateway/internal/presentation/handlers"
	"github.com/bimakw/vault-gateway/internal/presentation/middleware"
	"github.com/bimakw/vault-gateway/internal/presentation/ws"
)

const actionsPerMinute = 30

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

	logger.Info("Starting vault-gateway API",
		zap.Int("port", cfg.API.Port),
		zap.String("lending_contract", cfg.Lending.ContractAddress),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	db, err := database.NewPostgresDB(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx, "migrations"); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}

	// Connect to Redis cache (optional)
	var (
		readCache  cache.Cache
		selections repositories.SelectionRepository = cache.NewMemorySelectionStore()
		cacheCheck handlers.HealthChecker
	)
	redisCache, err := cache.NewRedisCache(cfg.Redis, cfg.API.CacheTTL, logger)
	if err != nil {
		logger.Warn("Failed to connect to Redis, running without cache", zap.Error(err))
		redisCache = nil
	} else {
		defer redisCache.Close()
		readCache = redisCache
		selections = cache.NewRedisSelectionStore(redisCache)
		cacheCheck = redisCache
	}

	// Connect to the chain
	ethClient, err := ethereum.NewClient(cfg.Ethereum, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Ethereum node", zap.Error(err))
	}
	defer ethClient.Close()

	transactor, err := ethereum.NewTransactor(ethClient.EthClient(), ethClient.ChainID(), cfg.Wallet, cfg.Ethereum, logger)
	if err != nil {
		logger.Fatal("Failed to create transactor", zap.Error(err))
	}
	if account, ok := transactor.Account(); ok {
		logger.Info("Signing wallet loaded", zap.String("account", account))
	} else {
		logger.Warn("No signing wallet configured, actions are disabled")
	}

	reader := ethereum.NewLendingReader(ethClient, cfg.Lending.ContractAddress, logger)
	metadata := ethereum.NewMetadataFetcher(ethClient, logger)

	// Create repositories
	tokenRepo := database.NewTokenRepo(db.DB())
	intentRepo := database.NewIntentRepo(db.DB())

	// Notifications
	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	senders := []notify.Sender{notify.NewLogSender(logger), hub}
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL))
	}
	if redisCache != nil {
		go hub.Forward(ctx, redisCache.Client())
	}
	dispatcher := notify.NewDispatcher(senders, cfg.Notify.DedupeTTL, logger)
	go cleanupLoop(ctx, dispatcher, cfg.Notify.DedupeTTL)

	// Create services
	registry := sequencer.NewRegistry()
	tokenService := services.NewTokenService(tokenRepo, metadata, readCache, cfg.API.TokenCacheTTL, logger)
	positionService := services.NewPositionService(reader, tokenService, readCache, cfg.API.CacheTTL, cfg.Lending.CollateralSymbol, cfg.Lending.ContractAddress, logger)
	selectionService := services.NewSelectionService(selections, tokenService, registry, logger)
	sequencerService := services.NewSequencerService(
		positionService,
		selectionService,
		transactor,
		intentRepo,
		dispatcher,
		registry,
		cfg.Lending.ContractAddress,
		logger,
	)

	tokens, err := config.LoadTokenList(cfg.Lending.TokenListPath)
	if err != nil {
		logger.Fatal("Failed to load token list", zap.Error(err))
	}
	if err := tokenService.Seed(ctx, tokens); err != nil {
		logger.Fatal("Failed to seed tokens", zap.Error(err))
	}
	logger.Info("Token list loaded", zap.Int("tokens", len(tokens)))

	// Create handlers
	tokenHandler := handlers.NewTokenHandler(tokenService, logger)
	walletHandler := handlers.NewWalletHandler(positionService, selectionService, sequencerService, logger)
	actionHandler := handlers.NewActionHandler(sequencerService, logger)
	healthHandler := handlers.NewHealthHandler(db, cacheCheck, ethClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(chimiddleware.Recoverer)

	// Health endpoints (no rate limiting)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/live", healthHandler.Live)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", hub.HandleWS)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimiter(cfg.API.RateLimitRPS))
		tokenHandler.RegisterRoutes(r)
		walletHandler.RegisterRoutes(r)
		actionHandler.RegisterRoutes(r, middleware.ActionLimiter(actionsPerMinute))
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	// Run server in goroutine
	go func() {
		logger.Info("API server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal, shutting down server...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	// Intents still awaiting a receipt are left for the reconciler
	sequencerService.Stop()
	cancel()

	logger.Info("Server stopped")
}

func cleanupLoop(ctx context.Context, d *notify.Dispatcher, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Cleanup()
		}
	}
}
