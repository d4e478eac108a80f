// Package reconcile folds enrichment results into the store without lost
// updates or duplicate rows. It is the only writer of fact columns.
package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notablehumans/ingest/internal/model"
	"github.com/notablehumans/ingest/internal/store"
	"github.com/notablehumans/ingest/internal/wikidata"
)

// Result counts what one reconciliation pass did.
type Result struct {
	PersonsCreated    int `json:"persons_created"`
	PersonsUpdated    int `json:"persons_updated"`
	PersonsSkipped    int `json:"persons_skipped"`
	PlacesCreated     int `json:"places_created"`
	PlacesUpdated     int `json:"places_updated"`
	PlacesSkipped     int `json:"places_skipped"`
	AttributesCreated int `json:"attributes_created"`
	AttributesUpdated int `json:"attributes_updated"`
	AttributesSkipped int `json:"attributes_skipped"`
	Associations      int `json:"associations"`
}

// Reconciler diffs a fact set against the store and applies the writes in
// one transaction.
type Reconciler struct {
	store  store.Store
	window time.Duration
	now    func() time.Time
}

// New builds a reconciler. window is the freshness span: rows fact-updated
// within it are considered current and are not rewritten, which keeps
// redelivered batches and overlapping runs from ping-ponging the same rows.
func New(st store.Store, window time.Duration) *Reconciler {
	if window <= 0 {
		window = 2 * time.Minute
	}
	return &Reconciler{store: st, window: window, now: time.Now}
}

// split partitions ids into create/update/skip sets given what exists and
// what is fresh.
type split struct {
	create map[string]bool
	update map[string]bool
	skip   map[string]bool
}

func (r *Reconciler) splitIDs(ctx context.Context, ids []string, cutoff time.Time,
	existing func(context.Context, []string) (map[string]bool, error),
	fresh func(context.Context, []string, time.Time) (map[string]bool, error),
) (*split, error) {
	s := &split{
		create: make(map[string]bool),
		update: make(map[string]bool),
		skip:   make(map[string]bool),
	}
	if len(ids) == 0 {
		return s, nil
	}
	have, err := existing(ctx, ids)
	if err != nil {
		return nil, err
	}
	current, err := fresh(ctx, ids, cutoff)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		switch {
		case !have[id]:
			s.create[id] = true
		case current[id]:
			s.skip[id] = true
		default:
			s.update[id] = true
		}
	}
	return s, nil
}

// Reconcile applies one batch's facts. New entities are bulk-inserted
// ignoring conflicts (a concurrent worker may have won the race), existing
// stale entities are bulk-updated, and fresh entities are left alone.
// Person-attribute rows are recomputed only for persons written this pass.
func (r *Reconciler) Reconcile(ctx context.Context, facts *wikidata.Facts) (*Result, error) {
	cutoff := r.now().Add(-r.window)

	persons := facts.PersonList()
	places := facts.PlaceList()
	attrs := facts.AttributeList()

	personSplit, err := r.splitIDs(ctx, personIDs(persons), cutoff,
		r.store.ExistingPersonIDs, r.store.FreshPersonIDs)
	if err != nil {
		return nil, err
	}
	placeSplit, err := r.splitIDs(ctx, placeIDs(places), cutoff,
		r.store.ExistingPlaceIDs, r.store.FreshPlaceIDs)
	if err != nil {
		return nil, err
	}
	attrSplit, err := r.splitIDs(ctx, attributeIDs(attrs), cutoff,
		r.store.ExistingAttributeIDs, r.store.FreshAttributeIDs)
	if err != nil {
		return nil, err
	}

	newPersons, updPersons := partitionPersons(persons, personSplit)
	newPlaces, updPlaces := partitionPlaces(places, placeSplit)
	newAttrs, updAttrs := partitionAttributes(attrs, attrSplit)

	// Associations follow the persons written this pass so a skipped
	// person keeps its current join rows untouched.
	written := make(map[string]bool, len(personSplit.create)+len(personSplit.update))
	for id := range personSplit.create {
		written[id] = true
	}
	for id := range personSplit.update {
		written[id] = true
	}
	var assocs []model.PersonAttribute
	for _, a := range facts.Associations {
		if written[a.PersonID] {
			assocs = append(assocs, a)
		}
	}

	err = r.store.WithTx(ctx, func(w store.BatchWriter) error {
		// Places and attributes first; person and join rows reference them.
		if err := w.InsertPlaces(ctx, newPlaces); err != nil {
			return err
		}
		if err := w.UpdatePlaces(ctx, updPlaces); err != nil {
			return err
		}
		if err := w.InsertAttributes(ctx, newAttrs); err != nil {
			return err
		}
		if err := w.UpdateAttributes(ctx, updAttrs); err != nil {
			return err
		}
		if err := w.InsertPersons(ctx, newPersons); err != nil {
			return err
		}
		if err := w.UpdatePersonFacts(ctx, updPersons); err != nil {
			return err
		}
		return w.InsertAssociations(ctx, assocs)
	})
	if err != nil {
		return nil, err
	}

	result := &Result{
		PersonsCreated:    len(newPersons),
		PersonsUpdated:    len(updPersons),
		PersonsSkipped:    len(personSplit.skip),
		PlacesCreated:     len(newPlaces),
		PlacesUpdated:     len(updPlaces),
		PlacesSkipped:     len(placeSplit.skip),
		AttributesCreated: len(newAttrs),
		AttributesUpdated: len(updAttrs),
		AttributesSkipped: len(attrSplit.skip),
		Associations:      len(assocs),
	}
	zap.L().Info("batch reconciled",
		zap.Int("persons_created", result.PersonsCreated),
		zap.Int("persons_updated", result.PersonsUpdated),
		zap.Int("persons_skipped", result.PersonsSkipped),
		zap.Int("places_created", result.PlacesCreated),
		zap.Int("attributes_created", result.AttributesCreated),
		zap.Int("associations", result.Associations))
	return result, nil
}

func personIDs(persons []model.Person) []string {
	ids := make([]string, len(persons))
	for i, p := range persons {
		ids[i] = p.WikidataID
	}
	return ids
}

func placeIDs(places []model.Place) []string {
	ids := make([]string, len(places))
	for i, p := range places {
		ids[i] = p.WikidataID
	}
	return ids
}

func attributeIDs(attrs []model.Attribute) []string {
	ids := make([]string, len(attrs))
	for i, a := range attrs {
		ids[i] = a.WikidataID
	}
	return ids
}

func partitionPersons(persons []model.Person, s *split) (create, update []model.Person) {
	for _, p := range persons {
		switch {
		case s.create[p.WikidataID]:
			create = append(create, p)
		case s.update[p.WikidataID]:
			update = append(update, p)
		}
	}
	return create, update
}

func partitionPlaces(places []model.Place, s *split) (create, update []model.Place) {
	for _, p := range places {
		switch {
		case s.create[p.WikidataID]:
			create = append(create, p)
		case s.update[p.WikidataID]:
			update = append(update, p)
		}
	}
	return create, update
}

func partitionAttributes(attrs []model.Attribute, s *split) (create, update []model.Attribute) {
	for _, a := range attrs {
		switch {
		case s.create[a.WikidataID]:
			create = append(create, a)
		case s.update[a.WikidataID]:
			update = append(update, a)
		}
	}
	return create, update
}
