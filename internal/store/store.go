// Package store persists persons, places, attributes and their join rows.
// The Postgres backend is the production target; the SQLite backend covers
// local single-process runs.
package store

import (
	"context"
	"time"

	"github.com/notablehumans/ingest/internal/model"
)

// Stats summarizes entity and queue counts for the ops surface.
type Stats struct {
	Persons      int64            `json:"persons"`
	Places       int64            `json:"places"`
	Attributes   int64            `json:"attributes"`
	Associations int64            `json:"associations"`
	Tasks        map[string]int64 `json:"tasks"`
}

// BatchWriter groups the bulk writes of one reconciliation pass. All of
// its writes commit or roll back together.
type BatchWriter interface {
	// Insert* skip rows whose primary key already exists.
	InsertPersons(ctx context.Context, persons []model.Person) error
	InsertPlaces(ctx context.Context, places []model.Place) error
	InsertAttributes(ctx context.Context, attrs []model.Attribute) error
	InsertAssociations(ctx context.Context, rows []model.PersonAttribute) error

	// Update* rewrite the fact columns of existing rows. Metadata columns
	// are untouched; the metadata sweep owns those.
	UpdatePersonFacts(ctx context.Context, persons []model.Person) error
	UpdatePlaces(ctx context.Context, places []model.Place) error
	UpdateAttributes(ctx context.Context, attrs []model.Attribute) error
}

// Store is the persistence interface for the ingestion pipeline.
type Store interface {
	// WithTx runs fn inside one transaction; any error rolls it back.
	WithTx(ctx context.Context, fn func(w BatchWriter) error) error

	GetPerson(ctx context.Context, wikidataID string) (*model.Person, error)

	// ExistingPersonIDs reports which of the given ids already have rows.
	ExistingPersonIDs(ctx context.Context, ids []string) (map[string]bool, error)
	ExistingPlaceIDs(ctx context.Context, ids []string) (map[string]bool, error)
	ExistingAttributeIDs(ctx context.Context, ids []string) (map[string]bool, error)

	// FreshPersonIDs reports which of the given ids had a fact update at
	// or after the cutoff. Fresh rows are skipped by reconciliation.
	FreshPersonIDs(ctx context.Context, ids []string, cutoff time.Time) (map[string]bool, error)
	FreshPlaceIDs(ctx context.Context, ids []string, cutoff time.Time) (map[string]bool, error)
	FreshAttributeIDs(ctx context.Context, ids []string, cutoff time.Time) (map[string]bool, error)

	// Metadata sweep support.
	StaleMetadataPersons(ctx context.Context, cutoff time.Time, limit int) ([]model.Person, error)
	MissingCreationDatePersons(ctx context.Context, limit int) ([]model.Person, error)
	UpdatePersonMetadata(ctx context.Context, persons []model.Person) error

	Stats(ctx context.Context) (*Stats, error)
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
