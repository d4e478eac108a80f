// Package wikidata builds and executes batched SPARQL queries against the
// Wikidata endpoint and parses the returned bindings into fact sets.
package wikidata

import "github.com/notablehumans/ingest/internal/model"

// AttributeField binds one attribute category to its Wikidata property and
// the SPARQL variable carrying its values. This single table drives both
// query generation and result parsing so the two can never drift apart.
type AttributeField struct {
	Category model.AttributeCategory
	Property string // Wikidata property id, e.g. "P106"
	Variable string // SPARQL variable name, unique per field
}

// AttributeFields lists every queried attribute predicate in a stable
// order; the order determines how fields chunk into query groups.
var AttributeFields = []AttributeField{
	{model.CategoryGender, "P21", "gender"},
	{model.CategoryOccupation, "P106", "occupation"},
	{model.CategoryEthnicGroup, "P172", "ethnicGroup"},
	{model.CategoryFieldOfWork, "P101", "fieldOfWork"},
	{model.CategoryMemberOf, "P463", "memberOf"},
	{model.CategoryMannerOfDeath, "P1196", "mannerOfDeath"},
	{model.CategoryCauseOfDeath, "P509", "causeOfDeath"},
	{model.CategoryHandedness, "P552", "handedness"},
	{model.CategoryConvictedOf, "P1399", "convictedOf"},
	{model.CategoryAwardReceived, "P166", "awardReceived"},
	{model.CategoryNativeLanguage, "P103", "nativeLanguage"},
	{model.CategoryPoliticalIdeology, "P102", "politicalIdeology"},
	{model.CategoryHonorificPrefix, "P511", "honorificPrefix"},
	{model.CategoryReligionOrWorldview, "P140", "religionOrWorldview"},
	{model.CategoryMedicalCondition, "P1050", "medicalCondition"},
	{model.CategoryConflict, "P607", "conflict"},
	{model.CategoryEducatedAt, "P69", "educatedAt"},
	{model.CategoryAcademicDegree, "P512", "academicDegree"},
	{model.CategorySocialClass, "P3716", "socialClassification"},
	{model.CategoryPositionHeld, "P39", "positionHeld"},
}

// FieldGroups chunks the attribute table into groups of at most size
// fields. A single query requesting all ~20 optional predicates across a
// 50-title batch risks blowing the endpoint's complexity budget, so each
// group becomes its own query.
func FieldGroups(size int) [][]AttributeField {
	if size <= 0 {
		size = 5
	}
	var groups [][]AttributeField
	for i := 0; i < len(AttributeFields); i += size {
		end := min(i+size, len(AttributeFields))
		groups = append(groups, AttributeFields[i:end])
	}
	return groups
}
