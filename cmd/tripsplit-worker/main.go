package main

import (
	"os"

	"tripsplit/internal/cache"
	"tripsplit/internal/cli"
	"tripsplit/internal/log"
)

func main() {
	cli.LoadEnvFile()

	boot := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required to run the settlement worker")
		os.Exit(1)
	}

	caches := cache.NewManager()
	caches.StartCleanup(cfg.CacheCleanupInterval)
	defer caches.Stop()

	ctx, stop := cli.SignalContext()
	defer stop()

	logger.Info("Starting tripsplit-worker", "queue", cfg.AMQPQueue)
	if err := cli.RunWorker(ctx, cfg, cli.NewSettlementService(cfg, caches), logger); err != nil {
		logger.Error("Settlement worker failed", log.FieldError, err)
		os.Exit(1)
	}
}
