// Package cli holds the startup wiring shared by cmd/tripsplit and
// cmd/tripsplit-worker.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"tripsplit/internal/amqp"
	"tripsplit/internal/cache"
	"tripsplit/internal/config"
	"tripsplit/internal/log"
	"tripsplit/internal/services"
	"tripsplit/internal/worker"
)

// LoadEnvFile loads .env for local development. A missing file is not an error.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger and makes it the slog default.
func SetupLogger(level, format string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(level)
	cfg.Format = format
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.WithComponent(log.ComponentConfig).Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// NewSettlementService builds the service with its plan cache registered on
// caches for periodic cleanup. A cache size of zero disables memoization.
func NewSettlementService(cfg *config.Config, caches *cache.Manager) *services.SettlementService {
	var plans *cache.LRUCache[services.Result]
	if cfg.PlanCacheSize > 0 {
		plans = cache.NewLRUCache[services.Result](cfg.PlanCacheSize, cfg.PlanCacheTTL)
		caches.Register("settlement_plans", plans)
	}
	return services.NewSettlementService(plans, cfg.ValidateConcurrency)
}

// RunWorker consumes settlement requests until ctx is done. It returns nil
// on a clean shutdown.
func RunWorker(ctx context.Context, cfg *config.Config, svc worker.Settler, logger *log.Logger) error {
	logger = logger.WithComponent(log.ComponentWorker)

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.AMQPReplyQueue)
	if err != nil {
		return fmt.Errorf("initialize AMQP client: %w", err)
	}
	defer client.Close()

	w := worker.NewSettlementWorker(svc, client, cfg.HomeCurrency)
	logger.InfoContext(ctx, "Settlement worker started",
		"queue", cfg.AMQPQueue,
		"reply_queue", cfg.AMQPReplyQueue)

	err = client.ConsumeSettlementRequests(log.NewContext(ctx, logger), w.HandleSettlementRequest)
	if errors.Is(err, context.Canceled) {
		logger.Info("Settlement worker stopped")
		return nil
	}
	return err
}
