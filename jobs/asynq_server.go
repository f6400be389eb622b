package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/casnet/casnet-backend/internal/platform/httpx"
)

// ReconcilePolicy decides where grant reconciliation runs, how often, and how
// wide its grace window is. Zero fields fall back to the defaults.
type ReconcilePolicy struct {
	Queue    string
	Cron     string
	Grace    time.Duration
	MaxRetry int
}

// Normalize fills unset fields. An empty Cron stays empty and disables the
// schedule.
func (p ReconcilePolicy) Normalize() ReconcilePolicy {
	if p.Queue == "" {
		p.Queue = QueueDefault
	}
	if p.Grace < time.Second {
		p.Grace = DefaultReconcileGrace
	}
	if p.MaxRetry <= 0 {
		p.MaxRetry = 3
	}
	return p
}

// Prepare builds a reconciliation task and its enqueue options. A grace below
// one second uses the policy's window. The task is unique for the grace
// window, so bursts of membership removals collapse into one pass.
func (p ReconcilePolicy) Prepare(grace time.Duration) (*asynq.Task, []asynq.Option, error) {
	p = p.Normalize()
	if grace >= time.Second {
		p.Grace = grace
	}
	task, err := NewReconcileGrantsTask(p.Grace)
	if err != nil {
		return nil, nil, err
	}
	return task, []asynq.Option{asynq.Queue(p.Queue), asynq.MaxRetry(p.MaxRetry), asynq.Unique(p.Grace)}, nil
}

// Worker runs the reconciliation handler and, when scheduled, its cron entry.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Reconciler  *ReconcileGrantsJob
	Reconcile   ReconcilePolicy
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Reconciler == nil {
		return nil, errors.New("worker: reconciler required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := cfg.Reconcile.Normalize()
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	onError := asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
		logger.Warn("job failed", slog.String("task", task.Type()), slog.Any("error", err))
	})
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency:  concurrency,
		Queues:       map[string]int{policy.Queue: 1},
		ErrorHandler: onError,
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskReconcileGrants, cfg.Reconciler.Handle)

	var scheduler *asynq.Scheduler
	if policy.Cron != "" {
		task, opts, err := policy.Prepare(0)
		if err != nil {
			return nil, err
		}
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		if _, err := scheduler.Register(policy.Cron, task, opts...); err != nil {
			return nil, err
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: logger}, nil
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
		defer w.scheduler.Shutdown()
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Client submits reconciliation passes on demand.
type Client struct {
	client *asynq.Client
	policy ReconcilePolicy
}

// NewClient constructs a Client that enqueues with policy.
func NewClient(redisOpts asynq.RedisClientOpt, policy ReconcilePolicy) *Client {
	return &Client{client: asynq.NewClient(redisOpts), policy: policy.Normalize()}
}

// EnqueueReconcileGrants schedules an immediate reconciliation pass. It
// returns asynq.ErrDuplicateTask while an equivalent pass is still unique.
func (c *Client) EnqueueReconcileGrants(ctx context.Context, grace time.Duration) (*asynq.TaskInfo, error) {
	task, opts, err := c.policy.Prepare(grace)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, opts...)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// QueueReader is the part of *asynq.Inspector the health endpoint uses.
type QueueReader interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes the reconciliation queue's health over HTTP.
type Handler struct {
	inspector QueueReader
	queue     string
	logger    *slog.Logger
}

// NewHandler constructs a health handler for the queue policy runs on.
func NewHandler(inspector QueueReader, policy ReconcilePolicy, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, queue: policy.Normalize().Queue, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

type queueHealth struct {
	Queue    string `json:"queue"`
	Pending  int    `json:"pending"`
	Active   int    `json:"active"`
	Retry    int    `json:"retry"`
	Archived int    `json:"archived"`
	Paused   bool   `json:"paused"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	out := queueHealth{Queue: h.queue}
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, out)
		return
	}
	info, err := h.inspector.GetQueueInfo(h.queue)
	if err != nil {
		h.logger.Warn("jobs health", slog.String("queue", h.queue), slog.Any("error", err))
		httpx.Problem(w, httpx.ProblemDetail{
			Status:  http.StatusServiceUnavailable,
			Code:    "QUEUE_UNAVAILABLE",
			Message: "job queue unavailable",
		})
		return
	}
	if info != nil {
		out.Pending = info.Pending
		out.Active = info.Active
		out.Retry = info.Retry
		out.Archived = info.Archived
		out.Paused = info.Paused
	}
	httpx.JSON(w, http.StatusOK, out)
}
