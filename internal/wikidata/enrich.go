package wikidata

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notablehumans/ingest/internal/config"
	"github.com/notablehumans/ingest/internal/lock"
	"github.com/notablehumans/ingest/internal/resilience"
)

// Enricher turns a batch of Wikipedia titles into structured facts by
// running a sequence of SPARQL queries, one per attribute field group.
type Enricher struct {
	client *Client
	locks  lock.Manager
	cfg    config.Config
	now    func() time.Time
}

// NewEnricher wires the SPARQL client and lock manager together.
func NewEnricher(client *Client, locks lock.Manager, cfg config.Config) *Enricher {
	return &Enricher{
		client: client,
		locks:  locks,
		cfg:    cfg,
		now:    time.Now,
	}
}

// EnrichBatch fetches facts for a batch of titles. The attribute fields
// are chunked into groups so no single query carries every OPTIONAL
// block; the first group's query also selects the core person facts.
//
// Each group's query is guarded by a content-hash lock. Losing the lock
// means another worker is already running the identical query, and since
// every later group would collide the same way the batch stops there.
// A group whose query keeps failing is abandoned with its fields missing;
// facts gathered from earlier groups are still returned so a partial
// result reaches the store.
func (e *Enricher) EnrichBatch(ctx context.Context, titles []string) (*Facts, error) {
	facts := NewFacts()
	if len(titles) == 0 {
		return facts, nil
	}

	retryCfg := resilience.RetryConfig{
		MaxAttempts:    e.cfg.Enrich.MaxRetries,
		InitialBackoff: e.cfg.Enrich.BaseDelay,
		ShouldRetry:    resilience.IsRateLimited,
		OnRetry:        resilience.RetryLogger("wikidata", "sparql"),
	}

	groups := FieldGroups(e.cfg.Batch.AttrGroupSize)
	for i, group := range groups {
		includeCore := i == 0
		query := BuildQuery(titles, group, includeCore)

		key := lock.QueryKey(query, e.cfg.Locks.Window)
		acquired, err := e.locks.TryAcquire(ctx, key, e.cfg.Locks.QueryTTL)
		if err != nil {
			return facts, err
		}
		if !acquired {
			zap.L().Info("identical query already in flight, stopping batch",
				zap.Int("group", i),
				zap.Int("titles", len(titles)))
			return facts, nil
		}

		var body []byte
		err = resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
			var qerr error
			body, qerr = e.client.Query(ctx, query)
			return qerr
		})
		if err != nil {
			if ctx.Err() != nil {
				return facts, err
			}
			// One bad field group should not sink the rest of the batch.
			zap.L().Warn("abandoning attribute group",
				zap.Int("group", i),
				zap.Bool("core", includeCore),
				zap.Error(err))
			continue
		}

		if err := facts.MergeResults(body, group, includeCore, e.now()); err != nil {
			zap.L().Warn("discarding unreadable query results",
				zap.Int("group", i),
				zap.Error(err))
			continue
		}
	}

	zap.L().Info("batch enriched",
		zap.Int("titles", len(titles)),
		zap.Int("persons", len(facts.Persons)),
		zap.Int("places", len(facts.Places)),
		zap.Int("attributes", len(facts.Attributes)),
		zap.Int("associations", len(facts.Associations)))
	return facts, nil
}
