package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notablehumans/ingest/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

var personCols = []string{
	"wikidata_id", "name", "description", "wikipedia_url",
	"birth_date", "is_birth_bc", "death_date", "is_death_bc",
	"birth_place_id", "death_place_id",
	"article_length", "article_recent_views", "article_total_edits", "article_recent_edits",
	"article_quality", "article_created",
	"created_at", "last_fact_update", "last_metadata_update",
}

func TestPostgresGetPerson(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now().UTC()
	birth := time.Date(1879, 3, 14, 0, 0, 0, 0, time.UTC)
	birthPlace := "Q3012"
	mock.ExpectQuery(`SELECT wikidata_id, name, description`).
		WithArgs("Q937").
		WillReturnRows(pgxmock.NewRows(personCols).AddRow(
			"Q937", "Albert Einstein", "physicist", "https://en.wikipedia.org/wiki/Albert_Einstein",
			&birth, false, (*time.Time)(nil), false,
			&birthPlace, (*string)(nil),
			(*int)(nil), (*int)(nil), (*int)(nil), (*int)(nil),
			model.ArticleGood, (*time.Time)(nil),
			now, now, (*time.Time)(nil),
		))

	p, err := s.GetPerson(context.Background(), "Q937")
	require.NoError(t, err)
	assert.Equal(t, "Albert Einstein", p.Name)
	require.NotNil(t, p.BirthDate)
	assert.Equal(t, model.Date{Year: 1879, Month: 3, Day: 14}, *p.BirthDate)
	assert.Nil(t, p.DeathDate)
	assert.Equal(t, "Q3012", p.BirthPlaceID)
	assert.Empty(t, p.DeathPlaceID)
	assert.Equal(t, model.ArticleGood, p.ArticleQuality)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresExistingPersonIDs(t *testing.T) {
	s, mock := newMockStore(t)

	ids := []string{"Q1", "Q2", "Q3"}
	mock.ExpectQuery(`SELECT wikidata_id FROM persons WHERE wikidata_id = ANY`).
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows([]string{"wikidata_id"}).AddRow("Q1").AddRow("Q3"))

	got, err := s.ExistingPersonIDs(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"Q1": true, "Q3": true}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresExistingIDs_EmptyInputSkipsQuery(t *testing.T) {
	s, mock := newMockStore(t)

	got, err := s.ExistingPlaceIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFreshPersonIDs(t *testing.T) {
	s, mock := newMockStore(t)

	cutoff := time.Now().Add(-2 * time.Minute)
	mock.ExpectQuery(`last_fact_update >= \$2`).
		WithArgs([]string{"Q1", "Q2"}, cutoff).
		WillReturnRows(pgxmock.NewRows([]string{"wikidata_id"}).AddRow("Q2"))

	got, err := s.FreshPersonIDs(context.Background(), []string{"Q1", "Q2"}, cutoff)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"Q2": true}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdatePersonMetadata(t *testing.T) {
	s, mock := newMockStore(t)

	length := 1000
	now := time.Now().UTC()
	p := model.Person{
		WikidataID:         "Q937",
		Description:        "physicist",
		ArticleLength:      &length,
		ArticleQuality:     model.ArticleFeatured,
		LastMetadataUpdate: &now,
	}
	mock.ExpectExec(`UPDATE persons SET`).
		WithArgs("Q937", "physicist", &length, (*int)(nil), (*int)(nil), (*int)(nil),
			"featured", (*time.Time)(nil), &now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdatePersonMetadata(context.Background(), []model.Person{p}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStaleMetadataPersons(t *testing.T) {
	s, mock := newMockStore(t)

	cutoff := time.Now().Add(-24 * time.Hour)
	now := time.Now().UTC()
	mock.ExpectQuery(`last_metadata_update IS NULL OR last_metadata_update <`).
		WithArgs(cutoff, 10).
		WillReturnRows(pgxmock.NewRows(personCols).AddRow(
			"Q937", "Albert Einstein", "", "https://en.wikipedia.org/wiki/Albert_Einstein",
			(*time.Time)(nil), false, (*time.Time)(nil), false,
			(*string)(nil), (*string)(nil),
			(*int)(nil), (*int)(nil), (*int)(nil), (*int)(nil),
			model.ArticleUnrated, (*time.Time)(nil),
			now, now, (*time.Time)(nil),
		))

	persons, err := s.StaleMetadataPersons(context.Background(), cutoff, 10)
	require.NoError(t, err)
	require.Len(t, persons, 1)
	assert.Equal(t, "Q937", persons[0].WikidataID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWithTx_CommitsOnSuccess(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(w BatchWriter) error {
		// Empty batches are no-ops at the writer level.
		return w.InsertPersons(context.Background(), nil)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWithTx_RollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	sentinel := errors.New("boom")
	err := s.WithTx(context.Background(), func(w BatchWriter) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStats(t *testing.T) {
	s, mock := newMockStore(t)

	for _, n := range []int64{5, 2, 7, 11} {
		mock.ExpectQuery(`SELECT count`).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(n))
	}
	mock.ExpectQuery(`SELECT status, count`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("pending", int64(3)).
			AddRow("done", int64(40)))

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Persons)
	assert.Equal(t, int64(11), stats.Associations)
	assert.Equal(t, int64(3), stats.Tasks["pending"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateAttributesLeavesCategoryAlone(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_write_attributes"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_write_attributes"},
		[]string{"wikidata_id", "label", "category", "last_fact_update"}).
		WillReturnResult(1)
	// Stale re-crawls refresh the label and timestamp only.
	mock.ExpectExec(`DO UPDATE SET "label" = EXCLUDED\."label", "last_fact_update" = EXCLUDED\."last_fact_update"$`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(w BatchWriter) error {
		return w.UpdateAttributes(context.Background(), []model.Attribute{{
			WikidataID: "Q7066", Label: "Atheism",
			Category: model.CategoryReligionOrWorldview, LastFactUpdate: now,
		}})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRejectsUnknownAttributeCategory(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(w BatchWriter) error {
		return w.InsertAttributes(context.Background(), []model.Attribute{{
			WikidataID: "Q1", Label: "mystery",
			Category: model.AttributeCategory("made_up"), LastFactUpdate: time.Now().UTC(),
		}})
	})
	require.ErrorContains(t, err, "unknown attribute category")
	assert.NoError(t, mock.ExpectationsWereMet())
}
