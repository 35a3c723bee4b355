package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "shelf-deals/internal/adapter/http"
	"shelf-deals/internal/adapter/postgres"
	redisadapter "shelf-deals/internal/adapter/redis"
	"shelf-deals/internal/adapter/usecase"
	"shelf-deals/internal/config"
	"shelf-deals/internal/db"
	"shelf-deals/internal/scheduler"
)

// main is the entry point of the shelf-deals service. It loads
// configuration, optionally runs database migrations, connects postgres
// and redis, rebuilds the expiration schedule from durable campaign
// records, then starts the HTTP server. On receiving a termination signal
// it gracefully shuts down the server and the scheduler.
func main() {
	exitCode := 1
	defer func() {
		if r := recover(); r != nil {
			panic(r)
		} else {
			os.Exit(exitCode)
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	var logger *slog.Logger
	{
		var handler slog.Handler
		level := cfg.Log.SlogLevel()
		switch cfg.Log.SlogFormat() {
		case "json":
			handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
		default:
			handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
		}
		logger = slog.New(handler)
	}

	if cfg.Psql.RunMigrations {
		if err = db.Migrate(cfg.Psql.Addr.String()); err != nil {
			logger.Error("migration error", slog.Any("error", err))
		} else {
			logger.Info("migrations applied successfully")
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.Psql)
	if err != nil {
		logger.Error("database connection error", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.Psql.SeedDemo {
		if err = db.Seed(ctx, pool); err != nil {
			logger.Error("seed error", slog.Any("error", err))
		}
	}

	redisClient, err := db.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Error("redis connection error", slog.Any("error", err))
		os.Exit(1)
	}
	defer redisClient.Close()

	campaignRepo := postgres.NewCampaignRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	stockCache := redisadapter.NewStockCache(redisClient)

	stock := usecase.NewStockCoordinator(stockCache, campaignRepo, logger)
	cartSync := usecase.NewCartSynchronizer(cartRepo, campaignRepo, stock, logger)
	sched := scheduler.New(cartSync, campaignRepo, logger, scheduler.Config{
		Granularity:   cfg.Sale.BucketGranularity,
		FireAttempts:  cfg.Sale.FireAttempts,
		FireBackoff:   cfg.Sale.FireBackoff,
		SweepInterval: cfg.Sale.SweepInterval,
	})
	defer sched.Close()

	// Bucket state is in-memory only; rebuild it before serving so
	// campaigns that ended while the process was down fire now.
	if err = sched.Reconcile(ctx); err != nil {
		logger.Error("schedule reconciliation error", slog.Any("error", err))
		os.Exit(1)
	}
	go sched.Run(ctx)

	campaignUC := usecase.NewCampaignUseCase(campaignRepo, stockCache, sched, cartSync, logger)
	cartUC := usecase.NewCartUseCase(cartRepo, campaignRepo, stock, cartSync, logger)

	handler := httpadapter.NewHandler(campaignUC, cartUC, logger)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("server listening", slog.Int("port", int(cfg.HTTP.Port)))
		if err = srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	value := <-quit
	exitCode = 128 + int(value.(syscall.Signal))

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err = srv.Shutdown(ctxShutdown); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	} else {
		logger.Info("server gracefully stopped")
	}
}
