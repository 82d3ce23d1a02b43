package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-books/meridian/internal/app"
	"github.com/meridian-books/meridian/internal/fx"
	"github.com/meridian-books/meridian/internal/platform/cache"
	"github.com/meridian-books/meridian/internal/platform/db"
	"github.com/meridian-books/meridian/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, last-good mirror disabled", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	rateStore := fx.NewRateStore(pool)
	var sources []fx.SourceConfig
	if cfg.FxPrimaryURL != "" {
		sources = append(sources, fx.SourceConfig{
			Source:  fx.NewHTTPSource("primary", cfg.FxPrimaryURL),
			Tier:    fx.TierPrimary,
			Timeout: cfg.FxSourceTimeout,
			Retries: cfg.FxSourceRetries,
		})
	}
	if cfg.FxFallbackURL != "" {
		sources = append(sources, fx.SourceConfig{
			Source:  fx.NewHTTPSource("fallback", cfg.FxFallbackURL),
			Tier:    fx.TierFallback,
			Timeout: cfg.FxSourceTimeout,
			Retries: cfg.FxSourceRetries,
		})
	}

	ingestor, err := fx.NewIngestor(sources, rateStore, cfg.FxPoolSize, logger)
	if err != nil {
		logger.Error("init fx ingestor", slog.Any("error", err))
		os.Exit(1)
	}
	defer ingestor.Release()
	if redisClient != nil {
		ingestor = ingestor.WithMirror(fx.NewRedisMirror(redisClient, 48*time.Hour))
	}

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskFxRefresh, Handler: jobs.NewFxRefreshHandler(ingestor, cfg.FxPairs(), logger)},
		{Type: jobs.TaskIdempotencyCleanup, Handler: jobs.NewIdempotencyCleanupHandler(pool, logger)},
	}

	var cron []jobs.CronRegistration
	for _, tenantID := range cfg.FxTenants() {
		task, err := jobs.NewFxRefreshTask(tenantID, time.Now().UTC())
		if err != nil {
			logger.Error("build fx refresh task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.FxRefreshCron,
			Task:    task,
			Options: []asynq.Option{asynq.MaxRetry(3)},
		})
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(0)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}
	cron = append(cron, jobs.CronRegistration{
		Spec:    "45 3 * * *",
		Task:    cleanupTask,
		Options: []asynq.Option{asynq.MaxRetry(3)},
	})

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers:  handlers,
		Cron:      cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
