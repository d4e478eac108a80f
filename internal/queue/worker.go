package queue

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notablehumans/ingest/internal/config"
	"github.com/notablehumans/ingest/internal/model"
)

// HandlerFunc processes one claimed task. Handlers must be idempotent;
// the queue redelivers on lease expiry.
type HandlerFunc func(ctx context.Context, task *model.Task) error

// Worker polls the queue and dispatches tasks to registered handlers.
type Worker struct {
	queue        *Queue
	handlers     map[model.TaskKind]HandlerFunc
	concurrency  int
	pollInterval time.Duration
	taskTimeout  time.Duration
	maxAttempts  int
}

// NewWorker builds a worker pool from the worker config section.
func NewWorker(q *Queue, cfg config.WorkerConfig) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	taskTimeout := cfg.TaskTimeout
	if taskTimeout <= 0 {
		taskTimeout = 5 * time.Minute
	}
	return &Worker{
		queue:        q,
		handlers:     make(map[model.TaskKind]HandlerFunc),
		concurrency:  concurrency,
		pollInterval: pollInterval,
		taskTimeout:  taskTimeout,
		maxAttempts:  3,
	}
}

// Register installs the handler for one task kind.
func (w *Worker) Register(kind model.TaskKind, fn HandlerFunc) {
	w.handlers[kind] = fn
}

// Run polls until the context is cancelled. One goroutine per
// concurrency slot plus a lease-recovery loop.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency + 1)

	g.Go(func() error {
		return w.recoverLoop(ctx)
	})
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			return w.pollLoop(ctx)
		})
	}

	err := g.Wait()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (w *Worker) pollLoop(ctx context.Context) error {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			zap.L().Error("dequeue failed", zap.Error(err))
		} else if task != nil {
			w.runTask(ctx, task)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.pollInterval):
		}
	}
}

// runTask executes one task under its wall-clock budget. Handler errors
// mark the attempt failed but never stop the worker.
func (w *Worker) runTask(ctx context.Context, task *model.Task) {
	handler, ok := w.handlers[task.Kind]
	if !ok {
		zap.L().Error("no handler for task kind",
			zap.String("task", task.ID),
			zap.String("kind", string(task.Kind)))
		_ = w.queue.Fail(ctx, task.ID, 0)
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, w.taskTimeout)
	start := time.Now()
	err := handler(taskCtx, task)
	cancel()

	if err != nil {
		zap.L().Warn("task failed",
			zap.String("task", task.ID),
			zap.String("kind", string(task.Kind)),
			zap.Int("attempt", task.Attempts),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		if ferr := w.queue.Fail(ctx, task.ID, w.maxAttempts); ferr != nil {
			zap.L().Error("could not record task failure", zap.Error(ferr))
		}
		return
	}

	zap.L().Info("task done",
		zap.String("task", task.ID),
		zap.String("kind", string(task.Kind)),
		zap.Duration("elapsed", time.Since(start)))
	if cerr := w.queue.Complete(ctx, task.ID); cerr != nil {
		zap.L().Error("could not complete task", zap.Error(cerr))
	}
}

func (w *Worker) recoverLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval * 10)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := w.queue.RequeueExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				zap.L().Error("lease recovery failed", zap.Error(err))
				continue
			}
			if n > 0 {
				zap.L().Warn("requeued expired leases", zap.Int64("tasks", n))
			}
		}
	}
}

// SetMaxAttempts overrides the per-task attempt budget.
func (w *Worker) SetMaxAttempts(n int) {
	if n > 0 {
		w.maxAttempts = n
	}
}
