package model

import (
	"fmt"
	"time"
)

// ArticleQuality is the quality tier assigned to a person's Wikipedia article.
type ArticleQuality string

const (
	ArticleUnrated  ArticleQuality = "unrated"
	ArticleGood     ArticleQuality = "good"
	ArticleFeatured ArticleQuality = "featured"
)

// Person is a notable human keyed by their immutable Wikidata identifier
// (e.g. "Q937"). The ID is the sole update key and is never reassigned.
type Person struct {
	WikidataID   string `json:"wikidata_id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	WikipediaURL string `json:"wikipedia_url,omitempty"`

	// Dates before year 1 cannot be represented by a plain DATE column,
	// so BC years are stored positive with an explicit flag.
	BirthDate    *Date  `json:"birth_date,omitempty"`
	IsBirthBC    bool   `json:"is_birth_bc"`
	DeathDate    *Date  `json:"death_date,omitempty"`
	IsDeathBC    bool   `json:"is_death_bc"`
	BirthPlaceID string `json:"birth_place_id,omitempty"`
	DeathPlaceID string `json:"death_place_id,omitempty"`

	ArticleLength      *int           `json:"article_length,omitempty"`
	ArticleRecentViews *int           `json:"article_recent_views,omitempty"`
	ArticleTotalEdits  *int           `json:"article_total_edits,omitempty"`
	ArticleRecentEdits *int           `json:"article_recent_edits,omitempty"`
	ArticleQuality     ArticleQuality `json:"article_quality"`
	ArticleCreated     *time.Time     `json:"article_created,omitempty"`

	CreatedAt          time.Time  `json:"created_at"`
	LastFactUpdate     time.Time  `json:"last_fact_update"`
	LastMetadataUpdate *time.Time `json:"last_metadata_update,omitempty"`
}

// Date is a plain calendar date. Year is always positive; the BC flag on
// the owning record marks dates before year 1.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// String renders the date as YYYY-MM-DD, zero-padded for SQL DATE columns.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Time converts the date to a UTC midnight timestamp for drivers that
// encode DATE columns from time.Time.
func (d Date) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

// DateOf converts a nullable timestamp back into a nullable date.
func DateOf(t *time.Time) *Date {
	if t == nil {
		return nil
	}
	return &Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// Place is a birth or death location keyed by its Wikidata identifier.
// Coordinates are either both present or both absent.
type Place struct {
	WikidataID     string    `json:"wikidata_id"`
	Name           string    `json:"name"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	LastFactUpdate time.Time `json:"last_fact_update"`
}

// HasCoordinates reports whether the place carries a usable point.
func (p *Place) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}
