package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notablehumans/ingest/internal/model"
)

func newMockQueue(t *testing.T) (*Queue, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return New(mock, 10*time.Minute), mock
}

func TestEnqueue(t *testing.T) {
	q, mock := newMockQueue(t)

	payload := model.DiscoverDayPayload{Month: "March", Day: 14}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO tasks`).
		WithArgs(pgxmock.AnyArg(), "discover_day", body, "pending", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := q.Enqueue(context.Background(), model.TaskDiscoverDay, payload)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDequeue_ClaimsOldestPending(t *testing.T) {
	q, mock := newMockQueue(t)

	lease := time.Now().Add(10 * time.Minute)
	created := time.Now().Add(-time.Minute)
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(float64(600)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "kind", "payload", "status", "attempts", "lease_until", "created_at",
		}).AddRow(
			"task-1", model.TaskEnrichBatch, json.RawMessage(`{"titles":["X"]}`),
			model.TaskRunning, 1, &lease, created,
		))

	task, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "task-1", task.ID)
	assert.Equal(t, model.TaskEnrichBatch, task.Kind)
	assert.Equal(t, 1, task.Attempts)
	require.NotNil(t, task.LeaseUntil)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDequeue_EmptyQueue(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(float64(600)).
		WillReturnError(pgx.ErrNoRows)

	task, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, task)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComplete(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectExec(`UPDATE tasks SET status = 'done'`).
		WithArgs("task-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, q.Complete(context.Background(), "task-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFail_ParksAfterAttemptBudget(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectExec(`CASE WHEN attempts >= \$2 THEN 'failed' ELSE 'pending' END`).
		WithArgs("task-1", 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, q.Fail(context.Background(), "task-1", 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequeueExpired(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectExec(`status = 'running' AND lease_until < now\(\)`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := q.RequeueExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepth(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM tasks WHERE status = 'pending'`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(4)))

	n, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
