// Package queue implements the shared Postgres task queue the worker
// pool pulls from. Claims go through FOR UPDATE SKIP LOCKED so any number
// of workers can poll the same table without stepping on each other.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/notablehumans/ingest/internal/db"
	"github.com/notablehumans/ingest/internal/model"
)

// Queue is a Postgres-backed task queue with leased, at-least-once
// delivery.
type Queue struct {
	pool         db.Pool
	leaseTimeout time.Duration
}

// New builds a queue over the shared pool. leaseTimeout bounds how long a
// claimed task can run before another worker may pick it up again.
func New(pool db.Pool, leaseTimeout time.Duration) *Queue {
	if leaseTimeout <= 0 {
		leaseTimeout = 10 * time.Minute
	}
	return &Queue{pool: pool, leaseTimeout: leaseTimeout}
}

// Enqueue inserts a pending task and returns its id.
func (q *Queue) Enqueue(ctx context.Context, kind model.TaskKind, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", eris.Wrapf(err, "queue: marshal %s payload", kind)
	}
	id := uuid.New().String()
	_, err = q.pool.Exec(ctx,
		`INSERT INTO tasks (id, kind, payload, status, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, string(kind), body, string(model.TaskPending), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "queue: enqueue %s", kind)
	}
	return id, nil
}

const dequeueSQL = `UPDATE tasks SET
	status = 'running',
	attempts = attempts + 1,
	lease_until = now() + make_interval(secs => $1)
WHERE id = (
	SELECT id FROM tasks
	WHERE status = 'pending'
	ORDER BY created_at
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING id, kind, payload, status, attempts, lease_until, created_at`

// Dequeue claims the oldest pending task, or returns nil when the queue
// is empty.
func (q *Queue) Dequeue(ctx context.Context) (*model.Task, error) {
	var t model.Task
	err := q.pool.QueryRow(ctx, dequeueSQL, q.leaseTimeout.Seconds()).Scan(
		&t.ID, &t.Kind, &t.Payload, &t.Status, &t.Attempts, &t.LeaseUntil, &t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "queue: dequeue")
	}
	return &t, nil
}

// Complete marks a claimed task done.
func (q *Queue) Complete(ctx context.Context, taskID string) error {
	_, err := q.pool.Exec(ctx,
		`UPDATE tasks SET status = 'done', lease_until = NULL WHERE id = $1`, taskID)
	return eris.Wrapf(err, "queue: complete %s", taskID)
}

// Fail records a failed attempt. Tasks under the attempt budget go back
// to pending; the rest park as failed for operator inspection.
func (q *Queue) Fail(ctx context.Context, taskID string, maxAttempts int) error {
	_, err := q.pool.Exec(ctx,
		`UPDATE tasks SET
			status = CASE WHEN attempts >= $2 THEN 'failed' ELSE 'pending' END,
			lease_until = NULL
		WHERE id = $1`,
		taskID, maxAttempts)
	return eris.Wrapf(err, "queue: fail %s", taskID)
}

// RequeueExpired returns running tasks whose lease lapsed to pending.
// A worker that died mid-task loses its claim here.
func (q *Queue) RequeueExpired(ctx context.Context) (int64, error) {
	tag, err := q.pool.Exec(ctx,
		`UPDATE tasks SET status = 'pending', lease_until = NULL
		WHERE status = 'running' AND lease_until < now()`)
	if err != nil {
		return 0, eris.Wrap(err, "queue: requeue expired")
	}
	return tag.RowsAffected(), nil
}

// Depth returns the number of pending tasks.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	var n int64
	err := q.pool.QueryRow(ctx, `SELECT count(*) FROM tasks WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "queue: depth")
	}
	return n, nil
}
