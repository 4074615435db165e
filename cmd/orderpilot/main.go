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

	"github.com/orderpilot/orderpilot/internal/app"
	"github.com/orderpilot/orderpilot/internal/carrier"
	"github.com/orderpilot/orderpilot/internal/observability"
	"github.com/orderpilot/orderpilot/internal/orders"
	"github.com/orderpilot/orderpilot/internal/payments"
	"github.com/orderpilot/orderpilot/internal/platform/cache"
	"github.com/orderpilot/orderpilot/internal/platform/db"
	"github.com/orderpilot/orderpilot/internal/shared"
	"github.com/orderpilot/orderpilot/jobs"
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

	metrics := observability.NewMetrics()
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
		Metrics: metrics,
		Logger:  logger,
	})
	orderHandler := orders.NewHandler(orderService, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		OrdersHandler: orderHandler,
		JobHandler:    jobHandler,
		Metrics:       metrics,
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
