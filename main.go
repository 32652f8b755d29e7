package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bybit-signal-trader/config"
	"bybit-signal-trader/internal/api"
	"bybit-signal-trader/internal/auth"
	"bybit-signal-trader/internal/control"
	"bybit-signal-trader/internal/database"
	"bybit-signal-trader/internal/events"
	"bybit-signal-trader/internal/exchange"
	"bybit-signal-trader/internal/logging"
	"bybit-signal-trader/internal/queue"
	"bybit-signal-trader/internal/retry"
	"bybit-signal-trader/internal/trader"
	"bybit-signal-trader/internal/vault"

	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Structured logging for the management plane
	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
		Component:  "main",
	})
	logging.SetDefault(logger)

	// zerolog carries the trading pipeline's per-decision context
	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerologLevel(cfg.LoggingConfig.Level))

	// Event bus
	eventBus := events.NewEventBus()

	// Database and ledger
	db, err := database.NewDB(cfg.PostgresConfig)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.RunMigrations(ctx); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}
	repo := database.NewRepository(db)

	// Exchange credentials, from Vault when enabled
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Fatal("Failed to create vault client", "error", err)
	}
	creds, err := vaultClient.ExchangeCredentials(ctx, vault.Credentials{
		APIKey:    cfg.BybitConfig.APIKey,
		SecretKey: cfg.BybitConfig.SecretKey,
	})
	if err != nil {
		logger.Fatal("Failed to load exchange credentials", "error", err)
	}

	bybit := exchange.NewClient(
		creds.APIKey,
		creds.SecretKey,
		cfg.BybitConfig.BaseURL,
		cfg.BybitConfig.RecvWindow,
		cfg.BybitConfig.DemoMode,
	)

	// Management API server
	authService := auth.NewService(
		cfg.AuthConfig.APIToken,
		cfg.AuthConfig.JWTSecret,
		cfg.AuthConfig.AdminPasswordHash,
		cfg.AuthConfig.TokenDuration,
	)
	server := api.NewServer(cfg.ServerConfig, repo, repo, eventBus, authService)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// The trader reaches the control state over HTTP even when the
	// management API runs in the same process, so the two sides can be
	// split without touching the pipeline.
	controlClient := control.NewClient(cfg.ControlConfig.BaseURL, cfg.ControlConfig.Token)

	executePolicy := retry.Policy{
		MaxAttempts: cfg.TradingConfig.ExecuteAttempts,
		Delay:       cfg.TradingConfig.ExecuteRetryDelay,
	}
	gateway := trader.NewGateway(bybit, cfg.TradingConfig.Leverage, executePolicy, zlog)

	orchestrator := trader.NewOrchestrator(
		trader.Config{
			BuyStaleAfter:  cfg.TradingConfig.BuyStaleAfter,
			SellStaleAfter: cfg.TradingConfig.SellStaleAfter,
			LookupPolicy:   executePolicy,
		},
		controlClient,
		repo,
		bybit,
		gateway,
		eventBus,
		zlog,
	)

	// Signal consumer
	consumer := queue.NewConsumer(cfg.RedisConfig, orchestrator, zlog)
	defer consumer.Close()
	if err := consumer.Ping(ctx); err != nil {
		logger.Fatal("Failed to connect to Redis", "error", err)
	}

	consumerErr := make(chan error, 1)
	go func() {
		consumerErr <- consumer.Run(ctx)
	}()

	logger.Info("Signal trader started",
		"stream", cfg.RedisConfig.Stream,
		"demo_mode", cfg.BybitConfig.DemoMode,
	)

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		logger.Error("Management API stopped", "error", err)
		stop()
	case err := <-consumerErr:
		if err != nil && err != context.Canceled {
			logger.Error("Signal consumer stopped", "error", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Management API shutdown failed", "error", err)
	}

	logger.Info("Signal trader stopped")
}

func zerologLevel(level string) zerolog.Level {
	switch logging.ParseLevel(level) {
	case logging.DEBUG:
		return zerolog.DebugLevel
	case logging.WARN:
		return zerolog.WarnLevel
	case logging.ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
