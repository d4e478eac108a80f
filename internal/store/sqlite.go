package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/notablehumans/ingest/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It exists for
// local single-process runs; the distributed task queue still needs the
// Postgres backend.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// SQLite serializes writers anyway, and a single connection keeps
	// ":memory:" databases from splitting per connection.
	sdb.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sdb.Exec(pragma); err != nil {
			sdb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sdb}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS places (
	wikidata_id      TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	latitude         REAL,
	longitude        REAL,
	last_fact_update DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS persons (
	wikidata_id          TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	description          TEXT NOT NULL DEFAULT '',
	wikipedia_url        TEXT NOT NULL DEFAULT '',
	birth_date           DATE,
	is_birth_bc          BOOLEAN NOT NULL DEFAULT false,
	death_date           DATE,
	is_death_bc          BOOLEAN NOT NULL DEFAULT false,
	birth_place_id       TEXT REFERENCES places(wikidata_id),
	death_place_id       TEXT REFERENCES places(wikidata_id),
	article_length       INTEGER,
	article_recent_views INTEGER,
	article_total_edits  INTEGER,
	article_recent_edits INTEGER,
	article_quality      TEXT NOT NULL DEFAULT 'unrated',
	article_created      DATETIME,
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	last_fact_update     DATETIME NOT NULL DEFAULT (datetime('now')),
	last_metadata_update DATETIME
);

CREATE TABLE IF NOT EXISTS attributes (
	wikidata_id      TEXT PRIMARY KEY,
	label            TEXT NOT NULL,
	category         TEXT NOT NULL,
	last_fact_update DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS person_attributes (
	person_id    TEXT NOT NULL REFERENCES persons(wikidata_id),
	attribute_id TEXT NOT NULL REFERENCES attributes(wikidata_id),
	PRIMARY KEY (person_id, attribute_id)
);

CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	payload     TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	attempts    INTEGER NOT NULL DEFAULT 0,
	lease_until DATETIME,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_persons_last_fact_update ON persons(last_fact_update);
CREATE INDEX IF NOT EXISTS idx_attributes_category ON attributes(category);
CREATE INDEX IF NOT EXISTS idx_person_attributes_attribute ON person_attributes(attribute_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status_created ON tasks(status, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(w BatchWriter) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	if err := fn(&sqliteBatchWriter{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

const sqliteSelectPerson = `SELECT wikidata_id, name, description, wikipedia_url,
	birth_date, is_birth_bc, death_date, is_death_bc,
	birth_place_id, death_place_id,
	article_length, article_recent_views, article_total_edits, article_recent_edits,
	article_quality, article_created,
	created_at, last_fact_update, last_metadata_update
FROM persons`

func (s *SQLiteStore) GetPerson(ctx context.Context, wikidataID string) (*model.Person, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelectPerson+` WHERE wikidata_id = ?`, wikidataID)
	p, err := scanSQLitePerson(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get person %s", wikidataID)
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePerson(row rowScanner) (*model.Person, error) {
	var p model.Person
	var birthDate, deathDate *time.Time
	var birthPlaceID, deathPlaceID *string
	err := row.Scan(
		&p.WikidataID, &p.Name, &p.Description, &p.WikipediaURL,
		&birthDate, &p.IsBirthBC, &deathDate, &p.IsDeathBC,
		&birthPlaceID, &deathPlaceID,
		&p.ArticleLength, &p.ArticleRecentViews, &p.ArticleTotalEdits, &p.ArticleRecentEdits,
		&p.ArticleQuality, &p.ArticleCreated,
		&p.CreatedAt, &p.LastFactUpdate, &p.LastMetadataUpdate,
	)
	if err != nil {
		return nil, err
	}
	p.BirthDate = model.DateOf(birthDate)
	p.DeathDate = model.DateOf(deathDate)
	if birthPlaceID != nil {
		p.BirthPlaceID = *birthPlaceID
	}
	if deathPlaceID != nil {
		p.DeathPlaceID = *deathPlaceID
	}
	return &p, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (s *SQLiteStore) ExistingPersonIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	return s.idSet(ctx, "persons", ids, nil)
}

func (s *SQLiteStore) ExistingPlaceIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	return s.idSet(ctx, "places", ids, nil)
}

func (s *SQLiteStore) ExistingAttributeIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	return s.idSet(ctx, "attributes", ids, nil)
}

func (s *SQLiteStore) FreshPersonIDs(ctx context.Context, ids []string, cutoff time.Time) (map[string]bool, error) {
	return s.idSet(ctx, "persons", ids, &cutoff)
}

func (s *SQLiteStore) FreshPlaceIDs(ctx context.Context, ids []string, cutoff time.Time) (map[string]bool, error) {
	return s.idSet(ctx, "places", ids, &cutoff)
}

func (s *SQLiteStore) FreshAttributeIDs(ctx context.Context, ids []string, cutoff time.Time) (map[string]bool, error) {
	return s.idSet(ctx, "attributes", ids, &cutoff)
}

func (s *SQLiteStore) idSet(ctx context.Context, table string, ids []string, cutoff *time.Time) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT wikidata_id FROM ` + table + ` WHERE wikidata_id IN (` + placeholders(len(ids)) + `)`
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	if cutoff != nil {
		query += ` AND last_fact_update >= ?`
		args = append(args, *cutoff)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: id set %s", table)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan id")
		}
		out[id] = true
	}
	return out, eris.Wrap(rows.Err(), "sqlite: id set iterate")
}

func (s *SQLiteStore) StaleMetadataPersons(ctx context.Context, cutoff time.Time, limit int) ([]model.Person, error) {
	return s.listPersons(ctx,
		sqliteSelectPerson+` WHERE wikipedia_url <> ''
			AND (last_metadata_update IS NULL OR last_metadata_update < ?)
			ORDER BY last_metadata_update IS NOT NULL, last_metadata_update ASC LIMIT ?`,
		cutoff, limit)
}

func (s *SQLiteStore) MissingCreationDatePersons(ctx context.Context, limit int) ([]model.Person, error) {
	return s.listPersons(ctx,
		sqliteSelectPerson+` WHERE wikipedia_url <> '' AND article_created IS NULL
			AND last_metadata_update IS NOT NULL
			ORDER BY last_metadata_update ASC LIMIT ?`,
		limit)
}

func (s *SQLiteStore) listPersons(ctx context.Context, query string, args ...any) ([]model.Person, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list persons")
	}
	defer rows.Close()

	var persons []model.Person
	for rows.Next() {
		p, err := scanSQLitePerson(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan person")
		}
		persons = append(persons, *p)
	}
	return persons, eris.Wrap(rows.Err(), "sqlite: list persons iterate")
}

func (s *SQLiteStore) UpdatePersonMetadata(ctx context.Context, persons []model.Person) error {
	const query = `UPDATE persons SET
		description = ?, article_length = ?, article_recent_views = ?,
		article_total_edits = ?, article_recent_edits = ?,
		article_quality = ?, article_created = ?, last_metadata_update = ?
	WHERE wikidata_id = ?`
	for _, p := range persons {
		_, err := s.db.ExecContext(ctx, query,
			p.Description, p.ArticleLength, p.ArticleRecentViews,
			p.ArticleTotalEdits, p.ArticleRecentEdits,
			string(p.ArticleQuality), p.ArticleCreated, p.LastMetadataUpdate,
			p.WikidataID,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: update metadata %s", p.WikidataID)
		}
	}
	return nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Tasks: make(map[string]int64)}
	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT count(*) FROM persons`, &stats.Persons},
		{`SELECT count(*) FROM places`, &stats.Places},
		{`SELECT count(*) FROM attributes`, &stats.Attributes},
		{`SELECT count(*) FROM person_attributes`, &stats.Associations},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, eris.Wrap(err, "sqlite: stats count")
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, count(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats tasks")
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan task count")
		}
		stats.Tasks[status] = n
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: stats iterate")
}
