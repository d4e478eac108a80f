package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notablehumans/ingest/internal/model"
	"github.com/notablehumans/ingest/internal/queue"
	"github.com/notablehumans/ingest/internal/store"
)

func newServeFixture(t *testing.T) (*http.ServeMux, store.Store, pgxmock.PgxPoolIface) {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return newServeMux(st, queue.New(mock, time.Minute)), st, mock
}

func TestServeHealth(t *testing.T) {
	mux, _, _ := newServeFixture(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServeStats(t *testing.T) {
	mux, st, mock := newServeFixture(t)

	now := time.Now().UTC()
	require.NoError(t, st.WithTx(context.Background(), func(w store.BatchWriter) error {
		return w.InsertPersons(context.Background(), []model.Person{{
			WikidataID:     "Q937",
			Name:           "Albert Einstein",
			ArticleQuality: model.ArticleUnrated,
			CreatedAt:      now,
			LastFactUpdate: now,
		}})
	}))
	mock.ExpectQuery(`SELECT count\(\*\) FROM tasks`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Persons    int64 `json:"persons"`
		QueueDepth int64 `json:"queue_depth"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(1), body.Persons)
	assert.Equal(t, int64(7), body.QueueDepth)
	assert.NoError(t, mock.ExpectationsWereMet())
}
