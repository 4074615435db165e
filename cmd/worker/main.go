package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/orderpilot/orderpilot/internal/app"
	"github.com/orderpilot/orderpilot/internal/carrier"
	"github.com/orderpilot/orderpilot/internal/orders"
	"github.com/orderpilot/orderpilot/internal/payments"
	"github.com/orderpilot/orderpilot/internal/platform/cache"
	"github.com/orderpilot/orderpilot/internal/platform/db"
	"github.com/orderpilot/orderpilot/internal/shared"
	"github.com/orderpilot/orderpilot/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Redis carries the document number sequences, so a dead Redis means no
	// orders can be created.
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
	idempotencyStore := shared.NewIdempotencyStore(pool)
	sequences := shared.NewSequenceGenerator(redisClient)

	orderRepo := orders.NewRepository(pool)
	orderCache := orders.NewCache(redisClient, cfg.OrderCacheTTL)
	orderService := orders.NewService(orders.ServiceParams{
		Repo:    orderRepo,
		Seq:     sequences,
		Gateway: payments.NewClient(cfg.GatewayBaseURL, cfg.GatewayTimeout),
		Labels:  carrier.NewClient(cfg.CarrierBaseURL, cfg.CarrierTimeout),
		Tracker: carrier.NewClient(cfg.CarrierBaseURL, cfg.CarrierTimeout),
		Idem:    idempotencyStore,
		Audit:   auditLogger,
		Cache:   orderCache,
		Logger:  logger,
	})

	refreshTask, err := jobs.NewTrackingRefreshTask(jobs.TrackingRefreshPayload{})
	if err != nil {
		logger.Error("build tracking refresh task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:      asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:         logger,
		Orders:         orderService,
		Idempotency:    idempotencyStore,
		Concurrency:    cfg.WorkerConcurrency,
		StallThreshold: cfg.StallThreshold,
		Cron: []jobs.CronRegistration{
			{Spec: "@every " + cfg.TrackingInterval.String(), Task: refreshTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "@every " + cfg.StallThreshold.String(), Task: jobs.NewStalledSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * *", Task: jobs.NewIdempotencyCleanupTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting",
		slog.Int("concurrency", cfg.WorkerConcurrency),
		slog.String("tracking_interval", cfg.TrackingInterval.String()))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
