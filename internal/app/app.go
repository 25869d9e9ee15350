package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/payout-ledger/internal/api"
	"github.com/ayo6706/payout-ledger/internal/callback"
	"github.com/ayo6706/payout-ledger/internal/config"
	"github.com/ayo6706/payout-ledger/internal/db"
	"github.com/ayo6706/payout-ledger/internal/gateway"
	"github.com/ayo6706/payout-ledger/internal/observability"
	"github.com/ayo6706/payout-ledger/internal/repository"
	"github.com/ayo6706/payout-ledger/internal/service"
	"github.com/ayo6706/payout-ledger/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the ledger, background workers and HTTP server, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var pool *pgxpool.Pool
	var auditSink service.AuditSink
	if cfg.DatabaseURL != "" {
		pool, err = db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		auditSink = repository.NewAuditRepository(pool)
		logger.Info("audit trail persisted to postgres")
	}

	var redisClient redis.Cmdable
	var publisher callback.Publisher = callback.LogPublisher{}
	if cfg.RedisURL != "" {
		client, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		redisClient = client
		publisher = callback.NewRedisPublisher(client, callback.DefaultQueueKey)
		logger.Info("callbacks published to redis", zap.String("key", callback.DefaultQueueKey))
	}

	mockGateway := gateway.NewMockGateway(
		gateway.WithSettlementDelay(cfg.SettlementDelayMin, cfg.SettlementDelayMax),
		gateway.WithTimeoutDelay(cfg.GatewayTimeoutDelay),
	)

	ledger := service.NewLedgerService(mockGateway, auditSink, service.Options{
		PayoutTTL:                       cfg.PayoutTTL,
		RateLimitMax:                    cfg.RateLimitMax,
		RateLimitWindow:                 cfg.RateLimitWindow,
		StrictStatusTransitions:         cfg.StrictStatusTransitions,
		LegacyGlobalIdempotency:         cfg.LegacyGlobalIdempotency,
		LegacyUnknownProjectZeroBalance: cfg.LegacyUnknownProjectZeroBalance,
		SeedProjectID:                   cfg.SeedProjectID,
		SeedProjectBalance:              cfg.SeedProjectBalance,
		CallbackHMACKey:                 cfg.CallbackHMACKey,
	})
	reconciler := service.NewReconciliationService(ledger)

	callbackWorker := worker.NewCallbackWorker(ledger, publisher).WithPollInterval(cfg.CallbackPollInterval)
	stopCallbacks := callbackWorker.Run(ctx)
	reconciliationWorker := worker.NewReconciliationWorker(reconciler).WithInterval(cfg.ReconciliationInterval)
	stopReconciliation := reconciliationWorker.Run(ctx)
	logger.Info("workers started",
		zap.Duration("callback_interval", cfg.CallbackPollInterval),
		zap.Duration("reconciliation_interval", cfg.ReconciliationInterval),
	)

	router := api.NewRouter(api.Options{
		PublicRateLimitRPS: cfg.PublicRateLimitRPS,
		AdminJWTSecret:     cfg.AdminJWTSecret,
	}, logger, ledger, reconciler, pool, redisClient)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting",
			zap.String("port", cfg.HTTPPort),
			zap.String("seed_project", cfg.SeedProjectID),
			zap.Bool("admin_auth", cfg.AdminJWTSecret != ""),
		)
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("stopping workers")
	stopReconciliation()
	stopCallbacks()
	// flush callbacks produced by in-flight requests before exiting
	if _, err := callbackWorker.ProcessOnce(shutdownCtx); err != nil {
		logger.Warn("final callback flush failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
