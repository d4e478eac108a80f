package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"

	"github.com/notablehumans/ingest/internal/model"
)

// sqliteBatchWriter implements BatchWriter with per-row statements. Local
// runs never see Postgres-scale batches, so COPY has no equivalent here.
type sqliteBatchWriter struct {
	tx *sql.Tx
}

const sqliteInsertPerson = `INSERT INTO persons (
	wikidata_id, name, description, wikipedia_url,
	birth_date, is_birth_bc, death_date, is_death_bc,
	birth_place_id, death_place_id,
	article_quality, created_at, last_fact_update
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (w *sqliteBatchWriter) InsertPersons(ctx context.Context, persons []model.Person) error {
	return w.insertRows(ctx, sqliteInsertPerson+` ON CONFLICT (wikidata_id) DO NOTHING`,
		len(persons), func(i int) []any { return personRow(persons[i]) })
}

func (w *sqliteBatchWriter) UpdatePersonFacts(ctx context.Context, persons []model.Person) error {
	query := sqliteInsertPerson + ` ON CONFLICT (wikidata_id) DO UPDATE SET
		name = excluded.name,
		wikipedia_url = excluded.wikipedia_url,
		birth_date = excluded.birth_date,
		is_birth_bc = excluded.is_birth_bc,
		death_date = excluded.death_date,
		is_death_bc = excluded.is_death_bc,
		birth_place_id = excluded.birth_place_id,
		death_place_id = excluded.death_place_id,
		last_fact_update = excluded.last_fact_update`
	return w.insertRows(ctx, query, len(persons), func(i int) []any { return personRow(persons[i]) })
}

const sqliteInsertPlace = `INSERT INTO places (wikidata_id, name, latitude, longitude, last_fact_update)
VALUES (?, ?, ?, ?, ?)`

func (w *sqliteBatchWriter) InsertPlaces(ctx context.Context, places []model.Place) error {
	return w.insertRows(ctx, sqliteInsertPlace+` ON CONFLICT (wikidata_id) DO NOTHING`,
		len(places), func(i int) []any { return placeRow(places[i]) })
}

func (w *sqliteBatchWriter) UpdatePlaces(ctx context.Context, places []model.Place) error {
	query := sqliteInsertPlace + ` ON CONFLICT (wikidata_id) DO UPDATE SET
		name = excluded.name,
		latitude = excluded.latitude,
		longitude = excluded.longitude,
		last_fact_update = excluded.last_fact_update`
	return w.insertRows(ctx, query, len(places), func(i int) []any { return placeRow(places[i]) })
}

const sqliteInsertAttribute = `INSERT INTO attributes (wikidata_id, label, category, last_fact_update)
VALUES (?, ?, ?, ?)`

func (w *sqliteBatchWriter) InsertAttributes(ctx context.Context, attrs []model.Attribute) error {
	if err := validateAttributes(attrs); err != nil {
		return err
	}
	return w.insertRows(ctx, sqliteInsertAttribute+` ON CONFLICT (wikidata_id) DO NOTHING`,
		len(attrs), func(i int) []any { return attributeRow(attrs[i]) })
}

func (w *sqliteBatchWriter) UpdateAttributes(ctx context.Context, attrs []model.Attribute) error {
	if err := validateAttributes(attrs); err != nil {
		return err
	}
	// The category column stays as first written.
	query := sqliteInsertAttribute + ` ON CONFLICT (wikidata_id) DO UPDATE SET
		label = excluded.label,
		last_fact_update = excluded.last_fact_update`
	return w.insertRows(ctx, query, len(attrs), func(i int) []any { return attributeRow(attrs[i]) })
}

func (w *sqliteBatchWriter) InsertAssociations(ctx context.Context, assocs []model.PersonAttribute) error {
	const query = `INSERT INTO person_attributes (person_id, attribute_id) VALUES (?, ?)
		ON CONFLICT (person_id, attribute_id) DO NOTHING`
	return w.insertRows(ctx, query, len(assocs),
		func(i int) []any { return []any{assocs[i].PersonID, assocs[i].AttributeID} })
}

func (w *sqliteBatchWriter) insertRows(ctx context.Context, query string, n int, row func(i int) []any) error {
	if n == 0 {
		return nil
	}
	stmt, err := w.tx.PrepareContext(ctx, query)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare batch statement")
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return eris.Wrap(err, "sqlite: batch write row")
		}
	}
	return nil
}
