package model

import "time"

// AttributeCategory classifies an attribute's semantic type. The set is
// fixed; unknown categories are rejected at the store boundary.
type AttributeCategory string

const (
	CategoryGender              AttributeCategory = "gender"
	CategoryOccupation          AttributeCategory = "occupation"
	CategoryEthnicGroup         AttributeCategory = "ethnic_group"
	CategoryFieldOfWork         AttributeCategory = "field_of_work"
	CategoryMemberOf            AttributeCategory = "member_of"
	CategoryMannerOfDeath       AttributeCategory = "manner_of_death"
	CategoryCauseOfDeath        AttributeCategory = "cause_of_death"
	CategoryHandedness          AttributeCategory = "handedness"
	CategoryConvictedOf         AttributeCategory = "convicted_of"
	CategoryAwardReceived       AttributeCategory = "award_received"
	CategoryNativeLanguage      AttributeCategory = "native_language"
	CategoryPoliticalIdeology   AttributeCategory = "political_ideology"
	CategoryHonorificPrefix     AttributeCategory = "honorific_prefix"
	CategoryReligionOrWorldview AttributeCategory = "religion_or_worldview"
	CategoryMedicalCondition    AttributeCategory = "medical_condition"
	CategoryConflict            AttributeCategory = "conflict"
	CategoryEducatedAt          AttributeCategory = "educated_at"
	CategoryAcademicDegree      AttributeCategory = "academic_degree"
	CategorySocialClass         AttributeCategory = "social_classification"
	CategoryPositionHeld        AttributeCategory = "position_held"
)

// AllCategories lists every valid category in a stable order. The order
// drives attribute-group chunking for SPARQL queries, so it must not be
// derived from a map.
var AllCategories = []AttributeCategory{
	CategoryGender,
	CategoryOccupation,
	CategoryEthnicGroup,
	CategoryFieldOfWork,
	CategoryMemberOf,
	CategoryMannerOfDeath,
	CategoryCauseOfDeath,
	CategoryHandedness,
	CategoryConvictedOf,
	CategoryAwardReceived,
	CategoryNativeLanguage,
	CategoryPoliticalIdeology,
	CategoryHonorificPrefix,
	CategoryReligionOrWorldview,
	CategoryMedicalCondition,
	CategoryConflict,
	CategoryEducatedAt,
	CategoryAcademicDegree,
	CategorySocialClass,
	CategoryPositionHeld,
}

var validCategories = func() map[AttributeCategory]bool {
	m := make(map[AttributeCategory]bool, len(AllCategories))
	for _, c := range AllCategories {
		m[c] = true
	}
	return m
}()

// Valid reports whether the category belongs to the fixed enumeration.
func (c AttributeCategory) Valid() bool {
	return validCategories[c]
}

// Attribute is a classified trait (occupation, award, ...) keyed by its
// Wikidata identifier and shared across persons via a many-to-many join.
type Attribute struct {
	WikidataID     string            `json:"wikidata_id"`
	Label          string            `json:"label"`
	Category       AttributeCategory `json:"category"`
	LastFactUpdate time.Time         `json:"last_fact_update"`
}

// PersonAttribute is one row of the explicit person<->attribute join table.
// The (PersonID, AttributeID) pair is the primary key; re-insertion is
// idempotent.
type PersonAttribute struct {
	PersonID    string `json:"person_id"`
	AttributeID string `json:"attribute_id"`
}
