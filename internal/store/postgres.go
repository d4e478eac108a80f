package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/notablehumans/ingest/internal/db"
	"github.com/notablehumans/ingest/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"get_person":       selectPersonSQL + ` WHERE wikidata_id = $1`,
	"fresh_persons":    `SELECT wikidata_id FROM persons WHERE wikidata_id = ANY($1) AND last_fact_update >= $2`,
	"fresh_places":     `SELECT wikidata_id FROM places WHERE wikidata_id = ANY($1) AND last_fact_update >= $2`,
	"fresh_attributes": `SELECT wikidata_id FROM attributes WHERE wikidata_id = ANY($1) AND last_fact_update >= $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, which is how tests inject
// pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool exposes the underlying pool for subsystems that need direct query
// access (the task queue and the lock manager share it).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS places (
	wikidata_id      TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	latitude         DOUBLE PRECISION,
	longitude        DOUBLE PRECISION,
	last_fact_update TIMESTAMPTZ NOT NULL DEFAULT now()
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
	article_created      TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_fact_update     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_metadata_update TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS attributes (
	wikidata_id      TEXT PRIMARY KEY,
	label            TEXT NOT NULL,
	category         TEXT NOT NULL,
	last_fact_update TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS person_attributes (
	person_id    TEXT NOT NULL REFERENCES persons(wikidata_id),
	attribute_id TEXT NOT NULL REFERENCES attributes(wikidata_id),
	PRIMARY KEY (person_id, attribute_id)
);

CREATE TABLE IF NOT EXISTS work_locks (
	key        TEXT PRIMARY KEY,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS counters (
	key   TEXT PRIMARY KEY,
	value BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	kind        TEXT NOT NULL,
	payload     JSONB NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	attempts    INTEGER NOT NULL DEFAULT 0,
	lease_until TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_persons_last_fact_update ON persons(last_fact_update);
CREATE INDEX IF NOT EXISTS idx_persons_last_metadata_update ON persons(last_metadata_update NULLS FIRST);
CREATE INDEX IF NOT EXISTS idx_persons_article_created ON persons(article_created) WHERE article_created IS NULL;
CREATE INDEX IF NOT EXISTS idx_attributes_category ON attributes(category);
CREATE INDEX IF NOT EXISTS idx_person_attributes_attribute ON person_attributes(attribute_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status_created ON tasks(status, created_at);
CREATE INDEX IF NOT EXISTS idx_work_locks_expires ON work_locks(expires_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// WithTx runs fn against a transactional batch writer.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(w BatchWriter) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	if err := fn(&pgBatchWriter{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

const selectPersonSQL = `SELECT wikidata_id, name, description, wikipedia_url,
	birth_date, is_birth_bc, death_date, is_death_bc,
	birth_place_id, death_place_id,
	article_length, article_recent_views, article_total_edits, article_recent_edits,
	article_quality, article_created,
	created_at, last_fact_update, last_metadata_update
FROM persons`

func (s *PostgresStore) GetPerson(ctx context.Context, wikidataID string) (*model.Person, error) {
	row := s.pool.QueryRow(ctx, selectPersonSQL+` WHERE wikidata_id = $1`, wikidataID)
	p, err := scanPerson(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get person %s", wikidataID)
	}
	return p, nil
}

func scanPerson(row pgx.Row) (*model.Person, error) {
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

func (s *PostgresStore) ExistingPersonIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	return s.idSet(ctx, `SELECT wikidata_id FROM persons WHERE wikidata_id = ANY($1)`, ids)
}

func (s *PostgresStore) ExistingPlaceIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	return s.idSet(ctx, `SELECT wikidata_id FROM places WHERE wikidata_id = ANY($1)`, ids)
}

func (s *PostgresStore) ExistingAttributeIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	return s.idSet(ctx, `SELECT wikidata_id FROM attributes WHERE wikidata_id = ANY($1)`, ids)
}

func (s *PostgresStore) FreshPersonIDs(ctx context.Context, ids []string, cutoff time.Time) (map[string]bool, error) {
	return s.idSet(ctx, preparedStatements["fresh_persons"], ids, cutoff)
}

func (s *PostgresStore) FreshPlaceIDs(ctx context.Context, ids []string, cutoff time.Time) (map[string]bool, error) {
	return s.idSet(ctx, preparedStatements["fresh_places"], ids, cutoff)
}

func (s *PostgresStore) FreshAttributeIDs(ctx context.Context, ids []string, cutoff time.Time) (map[string]bool, error) {
	return s.idSet(ctx, preparedStatements["fresh_attributes"], ids, cutoff)
}

func (s *PostgresStore) idSet(ctx context.Context, sql string, ids []string, extra ...any) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := append([]any{ids}, extra...)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: id set query")
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan id")
		}
		out[id] = true
	}
	return out, eris.Wrap(rows.Err(), "postgres: id set iterate")
}

func (s *PostgresStore) StaleMetadataPersons(ctx context.Context, cutoff time.Time, limit int) ([]model.Person, error) {
	return s.listPersons(ctx,
		selectPersonSQL+` WHERE wikipedia_url <> ''
			AND (last_metadata_update IS NULL OR last_metadata_update < $1)
			ORDER BY last_metadata_update ASC NULLS FIRST LIMIT $2`,
		cutoff, limit)
}

func (s *PostgresStore) MissingCreationDatePersons(ctx context.Context, limit int) ([]model.Person, error) {
	return s.listPersons(ctx,
		selectPersonSQL+` WHERE wikipedia_url <> '' AND article_created IS NULL
			AND last_metadata_update IS NOT NULL
			ORDER BY last_metadata_update ASC LIMIT $1`,
		limit)
}

func (s *PostgresStore) listPersons(ctx context.Context, sql string, args ...any) ([]model.Person, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list persons")
	}
	defer rows.Close()

	var persons []model.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan person")
		}
		persons = append(persons, *p)
	}
	return persons, eris.Wrap(rows.Err(), "postgres: list persons iterate")
}

const updateMetadataSQL = `UPDATE persons SET
	description = $2,
	article_length = $3,
	article_recent_views = $4,
	article_total_edits = $5,
	article_recent_edits = $6,
	article_quality = $7,
	article_created = $8,
	last_metadata_update = $9
WHERE wikidata_id = $1`

// UpdatePersonMetadata writes the scraped metadata columns row by row.
// Metadata sweeps are small and throttled, so a COPY-based path buys
// nothing here.
func (s *PostgresStore) UpdatePersonMetadata(ctx context.Context, persons []model.Person) error {
	for _, p := range persons {
		_, err := s.pool.Exec(ctx, updateMetadataSQL,
			p.WikidataID, p.Description,
			p.ArticleLength, p.ArticleRecentViews, p.ArticleTotalEdits, p.ArticleRecentEdits,
			string(p.ArticleQuality), p.ArticleCreated, p.LastMetadataUpdate,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: update metadata %s", p.WikidataID)
		}
	}
	return nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Tasks: make(map[string]int64)}
	counts := []struct {
		sql  string
		dest *int64
	}{
		{`SELECT count(*) FROM persons`, &stats.Persons},
		{`SELECT count(*) FROM places`, &stats.Places},
		{`SELECT count(*) FROM attributes`, &stats.Attributes},
		{`SELECT count(*) FROM person_attributes`, &stats.Associations},
	}
	for _, c := range counts {
		if err := s.pool.QueryRow(ctx, c.sql).Scan(c.dest); err != nil {
			return nil, eris.Wrap(err, "postgres: stats count")
		}
	}

	rows, err := s.pool.Query(ctx, `SELECT status, count(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats tasks")
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan task count")
		}
		stats.Tasks[status] = n
	}
	return stats, eris.Wrap(rows.Err(), "postgres: stats iterate")
}
