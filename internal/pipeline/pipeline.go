package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/notablehumans/ingest/internal/config"
	"github.com/notablehumans/ingest/internal/lock"
	"github.com/notablehumans/ingest/internal/model"
	"github.com/notablehumans/ingest/internal/queue"
	"github.com/notablehumans/ingest/internal/reconcile"
	"github.com/notablehumans/ingest/internal/schedule"
	"github.com/notablehumans/ingest/internal/store"
	"github.com/notablehumans/ingest/internal/wikidata"
	"github.com/notablehumans/ingest/internal/wikipedia"
)

// Pipeline wires discovery, enrichment, reconciliation, and metadata
// scraping into task handlers for the worker pool.
type Pipeline struct {
	cfg        *config.Config
	store      store.Store
	queue      *queue.Queue
	locks      lock.Manager
	discoverer *wikipedia.Discoverer
	scheduler  *schedule.Scheduler
	enricher   *wikidata.Enricher
	reconciler *reconcile.Reconciler
	scraper    *wikipedia.Scraper
	now        func() time.Time
}

// New creates a Pipeline with all dependencies.
func New(
	cfg *config.Config,
	st store.Store,
	q *queue.Queue,
	locks lock.Manager,
	disc *wikipedia.Discoverer,
	sched *schedule.Scheduler,
	enr *wikidata.Enricher,
	rec *reconcile.Reconciler,
	scr *wikipedia.Scraper,
) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		store:      st,
		queue:      q,
		locks:      locks,
		discoverer: disc,
		scheduler:  sched,
		enricher:   enr,
		reconciler: rec,
		scraper:    scr,
		now:        time.Now,
	}
}

// Register binds every task kind to its handler.
func (p *Pipeline) Register(w *queue.Worker) {
	w.Register(model.TaskDiscoverDay, p.HandleDiscoverDay)
	w.Register(model.TaskEnrichBatch, p.HandleEnrichBatch)
	w.Register(model.TaskRefreshMetadata, p.HandleRefreshMetadata)
}

// HandleDiscoverDay collects candidate titles from one day-of-year page
// and fans them out as enrichment batches. A second delivery of the same
// day inside the lock TTL is a no-op, not an error.
func (p *Pipeline) HandleDiscoverDay(ctx context.Context, task *model.Task) error {
	var payload model.DiscoverDayPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return eris.Wrap(err, "pipeline: decode discover payload")
	}
	log := zap.L().With(zap.String("month", payload.Month), zap.Int("day", payload.Day))

	titles, err := p.discoverer.DiscoverTitles(ctx, payload.Month, payload.Day)
	if errors.Is(err, wikipedia.ErrDuplicateWork) {
		log.Info("discovery: day already claimed, skipping")
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "pipeline: discover titles")
	}

	runID := uuid.NewString()
	dispatched, err := p.scheduler.ScheduleBatches(ctx, runID, payload.Month, payload.Day, titles)
	if err != nil {
		return eris.Wrap(err, "pipeline: schedule batches")
	}
	log.Info("discovery: day scheduled",
		zap.String("run_id", runID),
		zap.Int("titles", len(titles)),
		zap.Int("batches", dispatched))
	return nil
}

// HandleEnrichBatch runs one batch of titles through SPARQL enrichment
// and reconciles the result into the store. Storage failures are logged
// and the batch is left non-converged; the next discovery pass picks the
// rows up again once their locks lapse.
func (p *Pipeline) HandleEnrichBatch(ctx context.Context, task *model.Task) error {
	var payload model.EnrichBatchPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return eris.Wrap(err, "pipeline: decode enrich payload")
	}
	log := zap.L().With(
		zap.String("run_id", payload.RunID),
		zap.String("month", payload.Month),
		zap.Int("day", payload.Day),
		zap.Int("titles", len(payload.Titles)))

	err := p.enrichOne(ctx, log, payload.Titles)
	if err != nil && ctx.Err() != nil {
		// A canceled task goes back in rotation instead of counting as done.
		return err
	}
	if err != nil {
		log.Warn("enrich: batch left non-converged", zap.Error(err))
	}

	done, ferr := p.scheduler.FinishBatch(ctx, payload.RunID)
	if ferr != nil {
		return eris.Wrap(ferr, "pipeline: finish batch")
	}
	if done {
		log.Info("enrich: discovery run complete")
	}
	return nil
}

func (p *Pipeline) enrichOne(ctx context.Context, log *zap.Logger, titles []string) error {
	key := lock.DetailsKey(lock.BatchHash(titles), p.cfg.Locks.Window)
	acquired, err := p.locks.TryAcquire(ctx, key, p.cfg.Locks.TTL)
	if err != nil {
		return eris.Wrap(err, "pipeline: acquire details lock")
	}
	if !acquired {
		log.Info("enrich: batch already in flight, skipping")
		return nil
	}

	facts, err := p.enricher.EnrichBatch(ctx, titles)
	if err != nil {
		return eris.Wrap(err, "pipeline: enrich batch")
	}

	result, err := p.reconciler.Reconcile(ctx, facts)
	if err != nil {
		return eris.Wrap(err, "pipeline: reconcile batch")
	}
	log.Info("enrich: batch reconciled",
		zap.Int("persons_created", result.PersonsCreated),
		zap.Int("persons_updated", result.PersonsUpdated),
		zap.Int("persons_skipped", result.PersonsSkipped),
		zap.Int("associations", result.Associations))
	return nil
}

// HandleRefreshMetadata re-scrapes article statistics for the named
// persons and writes the refreshed metadata back.
func (p *Pipeline) HandleRefreshMetadata(ctx context.Context, task *model.Task) error {
	var payload model.RefreshMetadataPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return eris.Wrap(err, "pipeline: decode metadata payload")
	}

	persons := make([]model.Person, 0, len(payload.PersonIDs))
	for _, id := range payload.PersonIDs {
		person, err := p.store.GetPerson(ctx, id)
		if err != nil {
			zap.L().Warn("metadata: person not found, skipping",
				zap.String("wikidata_id", id), zap.Error(err))
			continue
		}
		persons = append(persons, *person)
	}
	if len(persons) == 0 {
		return nil
	}

	refreshed := p.scraper.RefreshMetadata(ctx, persons)
	if len(refreshed) == 0 {
		return nil
	}
	if err := p.store.UpdatePersonMetadata(ctx, refreshed); err != nil {
		return eris.Wrap(err, "pipeline: update person metadata")
	}
	zap.L().Info("metadata: persons refreshed", zap.Int("count", len(refreshed)))
	return nil
}

// SweepMetadata finds persons whose article statistics are stale or were
// never scraped and enqueues refresh tasks in scrape-sized chunks. It
// returns the number of tasks dispatched.
func (p *Pipeline) SweepMetadata(ctx context.Context, limit int) (int, error) {
	cutoff := p.now().Add(-p.cfg.Scrape.Staleness)
	stale, err := p.store.StaleMetadataPersons(ctx, cutoff, limit)
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: list stale persons")
	}
	missing, err := p.store.MissingCreationDatePersons(ctx, limit)
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: list persons missing creation date")
	}

	seen := make(map[string]bool, len(stale)+len(missing))
	ids := make([]string, 0, len(stale)+len(missing))
	for _, person := range append(stale, missing...) {
		if seen[person.WikidataID] {
			continue
		}
		seen[person.WikidataID] = true
		ids = append(ids, person.WikidataID)
	}

	size := p.cfg.Scrape.BatchSize
	if size <= 0 {
		size = 50
	}
	dispatched := 0
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		payload := model.RefreshMetadataPayload{PersonIDs: ids[start:end]}
		if _, err := p.queue.Enqueue(ctx, model.TaskRefreshMetadata, payload); err != nil {
			return dispatched, eris.Wrap(err, "pipeline: enqueue metadata refresh")
		}
		dispatched++
	}
	if dispatched > 0 {
		zap.L().Info("metadata: sweep dispatched",
			zap.Int("persons", len(ids)), zap.Int("tasks", dispatched))
	}
	return dispatched, nil
}
