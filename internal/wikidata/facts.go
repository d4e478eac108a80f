package wikidata

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/notablehumans/ingest/internal/model"
)

type sparqlValue struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sparqlResponse struct {
	Results struct {
		Bindings []sparqlBinding `json:"bindings"`
	} `json:"results"`
}

type sparqlBinding map[string]sparqlValue

func (b sparqlBinding) str(name string) string {
	return b[name].Value
}

// entityID strips the Wikidata entity URI prefix from a binding, leaving
// the bare Q-identifier. Bindings already shortened by the query pass
// through unchanged.
func (b sparqlBinding) entityID(name string) string {
	v := b[name].Value
	if i := strings.LastIndex(v, "/entity/"); i >= 0 {
		return v[i+len("/entity/"):]
	}
	return v
}

// Facts accumulates everything one batch of SPARQL result pages yields:
// persons and places keyed by Wikidata ID, attribute entities keyed by
// category plus ID, and the person<->attribute join rows.
type Facts struct {
	Persons      map[string]*model.Person
	Places       map[string]*model.Place
	Attributes   map[attributeKey]*model.Attribute
	Associations []model.PersonAttribute

	seenAssociations map[model.PersonAttribute]bool
}

type attributeKey struct {
	Category model.AttributeCategory
	ID       string
}

// NewFacts returns an empty accumulator.
func NewFacts() *Facts {
	return &Facts{
		Persons:          make(map[string]*model.Person),
		Places:           make(map[string]*model.Place),
		Attributes:       make(map[attributeKey]*model.Attribute),
		seenAssociations: make(map[model.PersonAttribute]bool),
	}
}

// AttributeList flattens the attribute map in insertion-independent but
// deterministic category order. The attributes table is keyed by
// wikidata_id alone, so an entity sighted under two categories yields one
// row, keeping its first category in enumeration order; a second row for
// the same id would make the bulk upsert touch one row twice.
func (f *Facts) AttributeList() []model.Attribute {
	byCategory := make(map[model.AttributeCategory][]model.Attribute)
	for k, a := range f.Attributes {
		byCategory[k.Category] = append(byCategory[k.Category], *a)
	}
	seen := make(map[string]bool, len(f.Attributes))
	var out []model.Attribute
	for _, c := range model.AllCategories {
		for _, a := range byCategory[c] {
			if seen[a.WikidataID] {
				continue
			}
			seen[a.WikidataID] = true
			out = append(out, a)
		}
	}
	return out
}

// PersonList flattens the person map.
func (f *Facts) PersonList() []model.Person {
	out := make([]model.Person, 0, len(f.Persons))
	for _, p := range f.Persons {
		out = append(out, *p)
	}
	return out
}

// PlaceList flattens the place map.
func (f *Facts) PlaceList() []model.Place {
	out := make([]model.Place, 0, len(f.Places))
	for _, p := range f.Places {
		out = append(out, *p)
	}
	return out
}

// MergeResults decodes one SPARQL JSON response and folds its bindings
// into the accumulator. Core facts are read only when the page carried
// them (the first field group's query); attribute aggregates are read for
// the fields in group. A person may span several bindings when grouped
// place columns diverge, so core facts are first-wins and attribute sets
// are unioned.
func (f *Facts) MergeResults(body []byte, group []AttributeField, includeCore bool, now time.Time) error {
	var resp sparqlResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return eris.Wrap(err, "wikidata: decode sparql results")
	}

	for _, row := range resp.Results.Bindings {
		id := row.entityID("item")
		if id == "" {
			continue
		}
		person, ok := f.Persons[id]
		if !ok {
			person = &model.Person{
				WikidataID:     id,
				ArticleQuality: model.ArticleUnrated,
				LastFactUpdate: now,
			}
			f.Persons[id] = person
		}
		if person.Name == "" {
			person.Name = row.str("itemLabel")
		}

		if includeCore {
			f.mergeCore(person, row, now)
		}
		for _, field := range group {
			f.mergeAttributeField(person, row, field, now)
		}
	}
	return nil
}

func (f *Facts) mergeCore(person *model.Person, row sparqlBinding, now time.Time) {
	if person.WikipediaURL == "" {
		person.WikipediaURL = row.str("article")
	}
	if person.BirthDate == nil {
		person.BirthDate, person.IsBirthBC = ParseDate(row.str("dobValues"), row.str("dobStatements"))
	}
	if person.DeathDate == nil {
		person.DeathDate, person.IsDeathBC = ParseDate(row.str("dodValues"), row.str("dodStatements"))
	}
	if person.BirthPlaceID == "" {
		person.BirthPlaceID = f.mergePlace(row, "birthPlace", now)
	}
	if person.DeathPlaceID == "" {
		person.DeathPlaceID = f.mergePlace(row, "deathPlace", now)
	}
}

func (f *Facts) mergePlace(row sparqlBinding, prefix string, now time.Time) string {
	id := row.entityID(prefix + "ID")
	if id == "" {
		return ""
	}
	if _, ok := f.Places[id]; !ok {
		lat, lon := ParseCoordinates(row.str(prefix + "Coordinates"))
		f.Places[id] = &model.Place{
			WikidataID:     id,
			Name:           row.str(prefix + "Label"),
			Latitude:       lat,
			Longitude:      lon,
			LastFactUpdate: now,
		}
	}
	return id
}

func (f *Facts) mergeAttributeField(person *model.Person, row sparqlBinding, field AttributeField, now time.Time) {
	raw := row.str(field.Variable)
	if raw == "" {
		return
	}
	for _, pair := range ParseAttributePairs(raw) {
		key := attributeKey{Category: field.Category, ID: pair.ID}
		if _, ok := f.Attributes[key]; !ok {
			f.Attributes[key] = &model.Attribute{
				WikidataID:     pair.ID,
				Label:          pair.Label,
				Category:       field.Category,
				LastFactUpdate: now,
			}
		}
		if f.addAssociation(person.WikidataID, pair.ID) {
			zap.L().Debug("attribute association",
				zap.String("person", person.WikidataID),
				zap.String("attribute", pair.ID),
				zap.String("category", string(field.Category)))
		}
	}
}

func (f *Facts) addAssociation(personID, attributeID string) bool {
	row := model.PersonAttribute{PersonID: personID, AttributeID: attributeID}
	if f.seenAssociations[row] {
		return false
	}
	f.seenAssociations[row] = true
	f.Associations = append(f.Associations, row)
	return true
}
