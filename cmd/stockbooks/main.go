package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockbooks/stockbooks/internal/accounting"
	"github.com/stockbooks/stockbooks/internal/app"
	"github.com/stockbooks/stockbooks/internal/integration"
	"github.com/stockbooks/stockbooks/internal/inventory"
	"github.com/stockbooks/stockbooks/internal/observability"
	"github.com/stockbooks/stockbooks/internal/platform/cache"
	"github.com/stockbooks/stockbooks/internal/platform/db"
	"github.com/stockbooks/stockbooks/internal/reports"
	"github.com/stockbooks/stockbooks/internal/sales"
	"github.com/stockbooks/stockbooks/internal/sequence"
	"github.com/stockbooks/stockbooks/internal/serials"
	"github.com/stockbooks/stockbooks/internal/shared"
	"github.com/stockbooks/stockbooks/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
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

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	sequencer := sequence.NewGenerator(sequence.NewPostgresStore(pool))

	accountingRepo := accounting.NewRepository(pool)
	accountingService := accounting.NewService(accountingRepo, sequencer, auditLogger, logger)

	hooks := integration.NewHooks(accountingService, logger)
	docHooks := jobs.NewRetryingDocumentHandler(hooks, jobClient, logger)
	orderHooks := jobs.NewRetryingOrderHandler(hooks, jobClient, logger)

	inventoryRepo := inventory.NewRepository(pool)

	serialsRepo := serials.NewRepository(pool)
	serialsService := serials.NewService(serialsRepo, inventoryRepo, auditLogger, logger)

	projection := inventory.NewStockProjection(inventoryRepo, redisClient)
	inventoryService := inventory.NewService(
		inventoryRepo,
		sequencer,
		serials.NewDocumentAdapter(serialsService),
		auditLogger,
		projection,
		docHooks,
		logger,
	)

	salesRepo := sales.NewRepository(pool)
	salesService := sales.NewService(salesRepo, inventoryService, serialsService, sequencer, auditLogger, orderHooks, logger)

	reportsService := reports.NewService(reports.NewRepository(pool))

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		InventoryHandler:  inventory.NewHandler(logger, inventoryService),
		SerialsHandler:    serials.NewHandler(logger, serialsService),
		SalesHandler:      sales.NewHandler(logger, salesService),
		AccountingHandler: accounting.NewHandler(logger, accountingService),
		ReportsHandler:    reports.NewHandler(logger, reportsService),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
