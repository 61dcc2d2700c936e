package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"tripsplit/internal/cache"
	"tripsplit/internal/cli"
	apphttp "tripsplit/internal/http"
	"tripsplit/internal/log"
)

func main() {
	cli.LoadEnvFile()

	boot := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)

	caches := cache.NewManager()
	caches.StartCleanup(cfg.CacheCleanupInterval)
	svc := cli.NewSettlementService(cfg, caches)

	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:                cfg.Addr(),
		DefaultHomeCurrency: cfg.HomeCurrency,
		RequestTimeout:      cfg.RequestTimeout,
		RateLimitPerMinute:  cfg.RateLimitPerMinute,
		AllowedOrigins:      cfg.CORSAllowedOrigins,
		TrustedProxies:      cfg.TrustedProxies,
		MaxBodyBytes:        cfg.MaxBodyBytes,
	}, svc, caches, logger)
	if err != nil {
		logger.Error("Failed to create server", log.FieldError, err)
		os.Exit(1)
	}

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = cfg.RequestTimeout + 5*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, stop := cli.SignalContext()
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting tripsplit server",
			"addr", cfg.Addr(),
			"home_currency", cfg.HomeCurrency,
			"worker_enabled", cfg.WorkerEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.WorkerEnabled {
		g.Go(func() error {
			return cli.RunWorker(gctx, cfg, svc, logger)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
