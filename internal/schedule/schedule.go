// Package schedule chunks discovered titles into enrichment batches and
// feeds the task queue, deduplicating chunks by content hash.
package schedule

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/notablehumans/ingest/internal/config"
	"github.com/notablehumans/ingest/internal/lock"
	"github.com/notablehumans/ingest/internal/model"
	"github.com/notablehumans/ingest/internal/queue"
)

// Scheduler splits title lists into fixed-size chunks and enqueues one
// enrichment task per chunk that is not already in flight.
type Scheduler struct {
	locks     lock.Manager
	queue     *queue.Queue
	batchSize int
	lockTTL   time.Duration
	window    time.Duration
}

// New builds a scheduler from the batch and lock config sections.
func New(locks lock.Manager, q *queue.Queue, cfg config.Config) *Scheduler {
	size := cfg.Batch.Size
	if size <= 0 {
		size = 50
	}
	return &Scheduler{
		locks:     locks,
		queue:     q,
		batchSize: size,
		lockTTL:   cfg.Locks.TTL,
		window:    cfg.Locks.Window,
	}
}

// ScheduleBatches dispatches titles for one discovery run and returns the
// number of batches enqueued. A chunk whose batch lock is held is already
// in flight somewhere and is skipped silently. The run's countdown counter
// is set to the dispatched count so run completion is observable; each
// finished batch decrements it.
func (s *Scheduler) ScheduleBatches(ctx context.Context, runID, month string, day int, titles []string) (int, error) {
	if len(titles) == 0 {
		return 0, nil
	}

	normalized := make([]string, len(titles))
	for i, t := range titles {
		normalized[i] = norm.NFC.String(t)
	}

	var chunks [][]string
	for i := 0; i < len(normalized); i += s.batchSize {
		end := min(i+s.batchSize, len(normalized))
		chunks = append(chunks, normalized[i:end])
	}

	var dispatch [][]string
	for _, chunk := range chunks {
		key := lock.BatchKey(lock.BatchHash(chunk), s.window)
		acquired, err := s.locks.TryAcquire(ctx, key, s.lockTTL)
		if err != nil {
			return 0, err
		}
		if !acquired {
			zap.L().Debug("batch already in flight",
				zap.String("run", runID),
				zap.Int("titles", len(chunk)))
			continue
		}
		dispatch = append(dispatch, chunk)
	}

	// The counter must exist before the first task does, or a fast worker
	// finishing a batch would decrement a counter that is not there yet.
	if len(dispatch) > 0 {
		if err := s.locks.SetCounter(ctx, lock.CounterKey(runID), int64(len(dispatch))); err != nil {
			return 0, err
		}
	}

	dispatched := 0
	for _, chunk := range dispatch {
		payload := model.EnrichBatchPayload{
			RunID:  runID,
			Month:  month,
			Day:    day,
			Titles: chunk,
		}
		if _, err := s.queue.Enqueue(ctx, model.TaskEnrichBatch, payload); err != nil {
			return dispatched, err
		}
		dispatched++
	}

	zap.L().Info("batches scheduled",
		zap.String("run", runID),
		zap.String("month", month),
		zap.Int("day", day),
		zap.Int("titles", len(titles)),
		zap.Int("chunks", len(chunks)),
		zap.Int("dispatched", dispatched))
	return dispatched, nil
}

// FinishBatch decrements the run's countdown counter and reports whether
// this was the run's last outstanding batch.
func (s *Scheduler) FinishBatch(ctx context.Context, runID string) (bool, error) {
	remaining, err := s.locks.Decrement(ctx, lock.CounterKey(runID))
	if err != nil {
		return false, err
	}
	if remaining <= 0 {
		zap.L().Info("discovery run complete", zap.String("run", runID))
		return true, nil
	}
	zap.L().Debug("batches outstanding",
		zap.String("run", runID),
		zap.Int64("remaining", remaining))
	return false, nil
}
