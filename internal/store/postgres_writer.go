package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/notablehumans/ingest/internal/db"
	"github.com/notablehumans/ingest/internal/model"
)

// pgBatchWriter implements BatchWriter on top of one pgx transaction,
// using COPY-backed bulk writes.
type pgBatchWriter struct {
	tx pgx.Tx
}

var (
	personColumns = []string{
		"wikidata_id", "name", "description", "wikipedia_url",
		"birth_date", "is_birth_bc", "death_date", "is_death_bc",
		"birth_place_id", "death_place_id",
		"article_quality", "created_at", "last_fact_update",
	}
	// Fact updates never touch the metadata columns.
	personFactUpdateCols = []string{
		"name", "wikipedia_url",
		"birth_date", "is_birth_bc", "death_date", "is_death_bc",
		"birth_place_id", "death_place_id", "last_fact_update",
	}
	placeColumns     = []string{"wikidata_id", "name", "latitude", "longitude", "last_fact_update"}
	attributeColumns = []string{"wikidata_id", "label", "category", "last_fact_update"}
	// The first sighting decides an attribute's category; updates leave it
	// alone.
	attributeUpdateCols = []string{"label", "last_fact_update"}
)

func personRow(p model.Person) []any {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return []any{
		p.WikidataID, p.Name, p.Description, p.WikipediaURL,
		dateValue(p.BirthDate), p.IsBirthBC, dateValue(p.DeathDate), p.IsDeathBC,
		nullableID(p.BirthPlaceID), nullableID(p.DeathPlaceID),
		string(p.ArticleQuality), createdAt, p.LastFactUpdate,
	}
}

// placeRow writes a half-present coordinate pair as NULL on both sides;
// latitude and longitude are only meaningful together.
func placeRow(p model.Place) []any {
	var lat, lon any
	if p.HasCoordinates() {
		lat, lon = *p.Latitude, *p.Longitude
	}
	return []any{p.WikidataID, p.Name, lat, lon, p.LastFactUpdate}
}

func attributeRow(a model.Attribute) []any {
	return []any{a.WikidataID, a.Label, string(a.Category), a.LastFactUpdate}
}

// validateAttributes rejects categories outside the fixed enumeration
// before they reach the uncheckable TEXT column.
func validateAttributes(attrs []model.Attribute) error {
	for _, a := range attrs {
		if !a.Category.Valid() {
			return eris.Errorf("store: unknown attribute category %q", a.Category)
		}
	}
	return nil
}

func dateValue(d *model.Date) any {
	if d == nil {
		return nil
	}
	return d.Time()
}

// nullableID keeps empty foreign keys as NULL so the references stay valid.
func nullableID(id string) any {
	if id == "" {
		return nil
	}
	return id
}

func (w *pgBatchWriter) InsertPersons(ctx context.Context, persons []model.Person) error {
	rows := make([][]any, len(persons))
	for i, p := range persons {
		rows[i] = personRow(p)
	}
	_, err := db.BulkInsertIgnoreTx(ctx, w.tx, db.UpsertConfig{
		Table:        "persons",
		Columns:      personColumns,
		ConflictKeys: []string{"wikidata_id"},
	}, rows)
	return err
}

func (w *pgBatchWriter) UpdatePersonFacts(ctx context.Context, persons []model.Person) error {
	rows := make([][]any, len(persons))
	for i, p := range persons {
		rows[i] = personRow(p)
	}
	_, err := db.BulkUpsertTx(ctx, w.tx, db.UpsertConfig{
		Table:        "persons",
		Columns:      personColumns,
		ConflictKeys: []string{"wikidata_id"},
		UpdateCols:   personFactUpdateCols,
	}, rows)
	return err
}

func (w *pgBatchWriter) InsertPlaces(ctx context.Context, places []model.Place) error {
	rows := make([][]any, len(places))
	for i, p := range places {
		rows[i] = placeRow(p)
	}
	_, err := db.BulkInsertIgnoreTx(ctx, w.tx, db.UpsertConfig{
		Table:        "places",
		Columns:      placeColumns,
		ConflictKeys: []string{"wikidata_id"},
	}, rows)
	return err
}

func (w *pgBatchWriter) UpdatePlaces(ctx context.Context, places []model.Place) error {
	rows := make([][]any, len(places))
	for i, p := range places {
		rows[i] = placeRow(p)
	}
	_, err := db.BulkUpsertTx(ctx, w.tx, db.UpsertConfig{
		Table:        "places",
		Columns:      placeColumns,
		ConflictKeys: []string{"wikidata_id"},
	}, rows)
	return err
}

func (w *pgBatchWriter) InsertAttributes(ctx context.Context, attrs []model.Attribute) error {
	if err := validateAttributes(attrs); err != nil {
		return err
	}
	rows := make([][]any, len(attrs))
	for i, a := range attrs {
		rows[i] = attributeRow(a)
	}
	_, err := db.BulkInsertIgnoreTx(ctx, w.tx, db.UpsertConfig{
		Table:        "attributes",
		Columns:      attributeColumns,
		ConflictKeys: []string{"wikidata_id"},
	}, rows)
	return err
}

func (w *pgBatchWriter) UpdateAttributes(ctx context.Context, attrs []model.Attribute) error {
	if err := validateAttributes(attrs); err != nil {
		return err
	}
	rows := make([][]any, len(attrs))
	for i, a := range attrs {
		rows[i] = attributeRow(a)
	}
	_, err := db.BulkUpsertTx(ctx, w.tx, db.UpsertConfig{
		Table:        "attributes",
		Columns:      attributeColumns,
		ConflictKeys: []string{"wikidata_id"},
		UpdateCols:   attributeUpdateCols,
	}, rows)
	return err
}

func (w *pgBatchWriter) InsertAssociations(ctx context.Context, assocs []model.PersonAttribute) error {
	rows := make([][]any, len(assocs))
	for i, a := range assocs {
		rows[i] = []any{a.PersonID, a.AttributeID}
	}
	_, err := db.BulkInsertIgnoreTx(ctx, w.tx, db.UpsertConfig{
		Table:        "person_attributes",
		Columns:      []string{"person_id", "attribute_id"},
		ConflictKeys: []string{"person_id", "attribute_id"},
	}, rows)
	return err
}
