package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/notablehumans/ingest/internal/fetcher"
	"github.com/notablehumans/ingest/internal/lock"
	"github.com/notablehumans/ingest/internal/pipeline"
	"github.com/notablehumans/ingest/internal/queue"
	"github.com/notablehumans/ingest/internal/reconcile"
	"github.com/notablehumans/ingest/internal/schedule"
	"github.com/notablehumans/ingest/internal/store"
	"github.com/notablehumans/ingest/internal/wikidata"
	"github.com/notablehumans/ingest/internal/wikipedia"
)

// pipelineEnv holds the store, queue, locks, and wired pipeline needed by
// the discover/schedule/work/metadata/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Queue    *queue.Queue
	Locks    lock.Manager
	Pipeline *pipeline.Pipeline
	Sched    *schedule.Scheduler
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv sets up the store, queue, lock manager, HTTP clients, and the
// pipeline. The task queue and cross-process locks live in Postgres, so
// the pipeline commands require the postgres driver; the sqlite driver
// only supports migrate and local inspection.
func initEnv(ctx context.Context) (*pipelineEnv, error) {
	if cfg.Store.Driver != "postgres" {
		return nil, eris.New("the task queue requires store.driver=postgres")
	}

	st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	pool := st.Pool()
	locks := lock.NewPostgres(pool)
	q := queue.New(pool, cfg.Worker.LeaseTimeout)

	httpClient := fetcher.New(fetcher.OptionsFromConfig(cfg.HTTP, cfg.Wikipedia, cfg.Wikidata))
	sched := schedule.New(locks, q, *cfg)

	p := pipeline.New(
		cfg,
		st,
		q,
		locks,
		wikipedia.NewDiscoverer(httpClient, locks, cfg.Wikipedia.APIURL, cfg.Locks.TTL),
		sched,
		wikidata.NewEnricher(wikidata.NewClient(httpClient, cfg.Wikidata.SPARQLURL), locks, *cfg),
		reconcile.New(st, cfg.Reconcile.FreshnessWindow),
		wikipedia.NewScraper(httpClient, cfg.Wikipedia.BaseURL+"/w/index.php", cfg.Scrape.Delay),
	)

	return &pipelineEnv{
		Store:    st,
		Queue:    q,
		Locks:    locks,
		Pipeline: p,
		Sched:    sched,
	}, nil
}
