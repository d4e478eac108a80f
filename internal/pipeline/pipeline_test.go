package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notablehumans/ingest/internal/config"
	"github.com/notablehumans/ingest/internal/fetcher"
	"github.com/notablehumans/ingest/internal/lock"
	"github.com/notablehumans/ingest/internal/model"
	"github.com/notablehumans/ingest/internal/queue"
	"github.com/notablehumans/ingest/internal/reconcile"
	"github.com/notablehumans/ingest/internal/schedule"
	"github.com/notablehumans/ingest/internal/store"
	"github.com/notablehumans/ingest/internal/wikidata"
	"github.com/notablehumans/ingest/internal/wikipedia"
)

const (
	testAPIURL    = "https://en.wikipedia.org/w/api.php"
	testIndexURL  = "https://en.wikipedia.org/w/index.php"
	testSPARQLURL = "https://query.wikidata.org/sparql"
)

const curieResults = `{
  "results": {
    "bindings": [
      {
        "item": {"type": "uri", "value": "http://www.wikidata.org/entity/Q7186"},
        "itemLabel": {"type": "literal", "value": "Marie Curie"},
        "article": {"type": "uri", "value": "https://en.wikipedia.org/wiki/Marie_Curie"},
        "dobValues": {"type": "literal", "value": "1867-11-07T00:00:00Z"},
        "occupation": {"type": "literal", "value": "Q169470||Physicist"}
      }
    ]
  }
}`

type testPipeline struct {
	p     *Pipeline
	store store.Store
	locks *lock.Memory
	mock  pgxmock.PgxPoolIface
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Batch.Size = 2
	cfg.Batch.AttrGroupSize = 5
	cfg.Locks.TTL = 30 * time.Second
	cfg.Locks.QueryTTL = time.Minute
	cfg.Locks.Window = 0
	cfg.Enrich.MaxRetries = 1
	cfg.Enrich.BaseDelay = time.Millisecond
	cfg.Reconcile.FreshnessWindow = 2 * time.Minute
	cfg.Scrape.BatchSize = 2
	cfg.Scrape.Staleness = 24 * time.Hour
	return cfg
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()
	cfg := testConfig()

	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	q := queue.New(mock, time.Minute)

	hc := fetcher.New(fetcher.Options{
		DefaultRate: 10000,
		BackoffBase: time.Millisecond,
	})
	httpmock.ActivateNonDefault(hc.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	locks := lock.NewMemory()
	p := New(cfg, st, q, locks,
		wikipedia.NewDiscoverer(hc, locks, testAPIURL, cfg.Locks.TTL),
		schedule.New(locks, q, *cfg),
		wikidata.NewEnricher(wikidata.NewClient(hc, testSPARQLURL), locks, *cfg),
		reconcile.New(st, cfg.Reconcile.FreshnessWindow),
		wikipedia.NewScraper(hc, testIndexURL, 0),
	)
	return &testPipeline{p: p, store: st, locks: locks, mock: mock}
}

func taskWith(t *testing.T, kind model.TaskKind, payload any) *model.Task {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return &model.Task{ID: "task-1", Kind: kind, Payload: body}
}

func expectEnqueues(mock pgxmock.PgxPoolIface, kind model.TaskKind, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectExec(`INSERT INTO tasks`).
			WithArgs(pgxmock.AnyArg(), string(kind), pgxmock.AnyArg(), "pending", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
}

func TestHandleDiscoverDay_SchedulesBatches(t *testing.T) {
	tp := newTestPipeline(t)

	dayPage := `{
	  "query": {"pages": {"15660": {"title": "November 7", "links": [
	    {"ns": 0, "title": "Marie Curie"},
	    {"ns": 0, "title": "Lise Meitner"},
	    {"ns": 0, "title": "Albert Camus"}
	  ]}}}
	}`
	httpmock.RegisterResponder(http.MethodGet, testAPIURL,
		httpmock.NewStringResponder(http.StatusOK, dayPage))

	// Three titles at batch size two make two batches.
	expectEnqueues(tp.mock, model.TaskEnrichBatch, 2)

	task := taskWith(t, model.TaskDiscoverDay, model.DiscoverDayPayload{Month: "November", Day: 7})
	require.NoError(t, tp.p.HandleDiscoverDay(context.Background(), task))
	assert.NoError(t, tp.mock.ExpectationsWereMet())
}

func TestHandleDiscoverDay_DuplicateDayIsNoop(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()

	held, err := tp.locks.TryAcquire(ctx, lock.DayKey("November", 7), time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	task := taskWith(t, model.TaskDiscoverDay, model.DiscoverDayPayload{Month: "November", Day: 7})
	require.NoError(t, tp.p.HandleDiscoverDay(ctx, task))
	assert.Zero(t, httpmock.GetTotalCallCount())
	assert.NoError(t, tp.mock.ExpectationsWereMet())
}

func TestHandleDiscoverDay_BadPayload(t *testing.T) {
	tp := newTestPipeline(t)
	task := &model.Task{ID: "task-1", Kind: model.TaskDiscoverDay, Payload: []byte(`{`)}
	assert.Error(t, tp.p.HandleDiscoverDay(context.Background(), task))
}

func TestHandleEnrichBatch_ReconcilesAndCountsDown(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()

	httpmock.RegisterResponder(http.MethodPost, testSPARQLURL,
		httpmock.NewStringResponder(http.StatusOK, curieResults))
	require.NoError(t, tp.locks.SetCounter(ctx, lock.CounterKey("run-1"), 1))

	task := taskWith(t, model.TaskEnrichBatch, model.EnrichBatchPayload{
		RunID:  "run-1",
		Month:  "November",
		Day:    7,
		Titles: []string{"Marie Curie"},
	})
	require.NoError(t, tp.p.HandleEnrichBatch(ctx, task))

	// One SPARQL query per field group.
	assert.Equal(t, len(wikidata.FieldGroups(5)), httpmock.GetTotalCallCount())

	person, err := tp.store.GetPerson(ctx, "Q7186")
	require.NoError(t, err)
	assert.Equal(t, "Marie Curie", person.Name)
	require.NotNil(t, person.BirthDate)
	assert.Equal(t, 1867, person.BirthDate.Year)
}

func TestHandleEnrichBatch_DuplicateBatchSkipsEnrichment(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()

	titles := []string{"Marie Curie"}
	key := lock.DetailsKey(lock.BatchHash(titles), 0)
	held, err := tp.locks.TryAcquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, held)
	require.NoError(t, tp.locks.SetCounter(ctx, lock.CounterKey("run-1"), 2))

	task := taskWith(t, model.TaskEnrichBatch, model.EnrichBatchPayload{
		RunID: "run-1", Month: "November", Day: 7, Titles: titles,
	})
	require.NoError(t, tp.p.HandleEnrichBatch(ctx, task))

	// The redelivered batch still counts toward run completion.
	assert.Zero(t, httpmock.GetTotalCallCount())
	remaining, err := tp.locks.Decrement(ctx, lock.CounterKey("run-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), remaining)
}

func TestHandleEnrichBatch_SparqlFailureStillFinishesBatch(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()

	httpmock.RegisterResponder(http.MethodPost, testSPARQLURL,
		httpmock.NewStringResponder(http.StatusBadRequest, "no"))
	require.NoError(t, tp.locks.SetCounter(ctx, lock.CounterKey("run-1"), 2))

	task := taskWith(t, model.TaskEnrichBatch, model.EnrichBatchPayload{
		RunID: "run-1", Month: "November", Day: 7, Titles: []string{"Marie Curie"},
	})
	require.NoError(t, tp.p.HandleEnrichBatch(ctx, task))

	remaining, err := tp.locks.Decrement(ctx, lock.CounterKey("run-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), remaining)
}

func TestHandleRefreshMetadata_UpdatesStoredPersons(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()

	seedPerson(t, tp.store, model.Person{
		WikidataID:   "Q7186",
		Name:         "Marie Curie",
		WikipediaURL: "https://en.wikipedia.org/wiki/Marie_Curie",
	})

	infoPage := `<html><body><table>
	<tr id="mw-pageinfo-length"><td>Length</td><td>98,123</td></tr>
	<tr id="mw-pageinfo-description-central"><td>Description</td><td>Polish-French physicist</td></tr>
	</table></body></html>`
	httpmock.RegisterResponder(http.MethodGet, testIndexURL,
		httpmock.NewStringResponder(http.StatusOK, infoPage))

	task := taskWith(t, model.TaskRefreshMetadata, model.RefreshMetadataPayload{
		PersonIDs: []string{"Q7186"},
	})
	require.NoError(t, tp.p.HandleRefreshMetadata(ctx, task))

	person, err := tp.store.GetPerson(ctx, "Q7186")
	require.NoError(t, err)
	assert.Equal(t, "Polish-French physicist", person.Description)
	require.NotNil(t, person.ArticleLength)
	assert.Equal(t, 98123, *person.ArticleLength)
	assert.NotNil(t, person.LastMetadataUpdate)
}

func TestHandleRefreshMetadata_UnknownPersonSkipped(t *testing.T) {
	tp := newTestPipeline(t)

	task := taskWith(t, model.TaskRefreshMetadata, model.RefreshMetadataPayload{
		PersonIDs: []string{"Q404"},
	})
	require.NoError(t, tp.p.HandleRefreshMetadata(context.Background(), task))
	assert.Zero(t, httpmock.GetTotalCallCount())
}

func TestSweepMetadata_EnqueuesChunkedRefreshTasks(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()

	for _, id := range []string{"Q1", "Q2", "Q3"} {
		seedPerson(t, tp.store, model.Person{
			WikidataID:   id,
			Name:         "Person " + id,
			WikipediaURL: "https://en.wikipedia.org/wiki/" + id,
		})
	}

	// Three stale persons at scrape batch size two make two tasks.
	expectEnqueues(tp.mock, model.TaskRefreshMetadata, 2)

	dispatched, err := tp.p.SweepMetadata(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, dispatched)
	assert.NoError(t, tp.mock.ExpectationsWereMet())
}

func TestSweepMetadata_NothingStale(t *testing.T) {
	tp := newTestPipeline(t)

	dispatched, err := tp.p.SweepMetadata(context.Background(), 100)
	require.NoError(t, err)
	assert.Zero(t, dispatched)
	assert.NoError(t, tp.mock.ExpectationsWereMet())
}

func seedPerson(t *testing.T, st store.Store, person model.Person) {
	t.Helper()
	person.CreatedAt = time.Now().UTC()
	person.LastFactUpdate = person.CreatedAt
	if person.ArticleQuality == "" {
		person.ArticleQuality = model.ArticleUnrated
	}
	require.NoError(t, st.WithTx(context.Background(), func(w store.BatchWriter) error {
		return w.InsertPersons(context.Background(), []model.Person{person})
	}))
}
