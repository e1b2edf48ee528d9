package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockbooks/stockbooks/internal/accounting"
	"github.com/stockbooks/stockbooks/internal/app"
	"github.com/stockbooks/stockbooks/internal/integration"
	"github.com/stockbooks/stockbooks/internal/inventory"
	"github.com/stockbooks/stockbooks/internal/platform/cache"
	"github.com/stockbooks/stockbooks/internal/platform/db"
	"github.com/stockbooks/stockbooks/internal/sequence"
	"github.com/stockbooks/stockbooks/internal/shared"
	"github.com/stockbooks/stockbooks/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	sequencer := sequence.NewGenerator(sequence.NewPostgresStore(pool))

	accountingRepo := accounting.NewRepository(pool)
	accountingService := accounting.NewService(accountingRepo, sequencer, auditLogger, logger)
	hooks := integration.NewHooks(accountingService, logger)

	inventoryRepo := inventory.NewRepository(pool)
	projection := inventory.NewStockProjection(inventoryRepo, redisClient)

	resyncTask, err := jobs.NewStockResyncTask(0, time.Now().UTC())
	if err != nil {
		logger.Error("build resync task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockResync, Handler: jobs.NewStockResyncHandler(projection, logger)},
			{Type: jobs.TaskJournalRetry, Handler: jobs.NewJournalRetryHandler(hooks, hooks, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: resyncTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
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
