package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/orderpilot/orderpilot/internal/jobs"
	"github.com/orderpilot/orderpilot/internal/orders"
	"github.com/orderpilot/orderpilot/internal/shared"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Orders      *orders.Service
	Idempotency *shared.IdempotencyStore
	Concurrency int
	// StallThreshold controls how long an order may sit at an automatic stage
	// before the sweep retries it.
	StallThreshold time.Duration
	Cron           []CronRegistration
}

// NewWorker constructs a Worker with the order-domain task handlers wired in.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Orders == nil {
		return nil, errors.New("jobs: order service required")
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 5
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})

	metrics := jobmetrics.NewMetrics(nil)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTrackingRefresh, func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskTrackingRefresh)
		payload, err := decodePayload[TrackingRefreshPayload](ctx, t)
		if err != nil {
			return tracker.End(err)
		}
		if payload.TrackingNumber != "" {
			_, err := cfg.Orders.TrackShipment(ctx, payload.TrackingNumber)
			return tracker.End(err)
		}
		return tracker.End(RunTrackingRefresh(ctx, cfg.Orders, cfg.Logger, concurrency))
	})
	mux.HandleFunc(TaskStalledSweep, func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskStalledSweep)
		return tracker.End(RunStalledSweep(ctx, cfg.Orders, cfg.Logger, cfg.StallThreshold))
	})
	mux.HandleFunc(TaskIdempotencyCleanup, func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskIdempotencyCleanup)
		return tracker.End(cfg.Idempotency.Cleanup(ctx, 7*24*time.Hour))
	})

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// EnqueueTrackingRefresh enqueues a tracking refresh run.
func (c *Client) EnqueueTrackingRefresh(ctx context.Context, payload TrackingRefreshPayload) (*asynq.TaskInfo, error) {
	task, err := NewTrackingRefreshTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// EnqueueStalledSweep enqueues an immediate stalled-order sweep.
func (c *Client) EnqueueStalledSweep(ctx context.Context) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, NewStalledSweepTask(), asynq.Queue(QueueDefault))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"queue":"default","pending":0}`))
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	pending := 0
	queueName := QueueDefault
	if info != nil {
		pending = int(info.Pending)
		queueName = info.Queue
	}
	_, _ = w.Write([]byte(`{"queue":"` + queueName + `","pending":` + itoa(pending) + `}`))
}

func itoa(i int) string {
	return strconv.FormatInt(int64(i), 10)
}
