package wikidata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArticleURI(t *testing.T) {
	assert.Equal(t,
		"https://en.wikipedia.org/wiki/Albert_Einstein",
		ArticleURI("Albert Einstein"))
}

func TestArticleURI_KeepsColonAndSlash(t *testing.T) {
	assert.Equal(t,
		"https://en.wikipedia.org/wiki/Pope_John_Paul_II",
		ArticleURI("Pope John Paul II"))
	assert.Equal(t,
		"https://en.wikipedia.org/wiki/AC/DC",
		ArticleURI("AC/DC"))
	assert.Equal(t,
		"https://en.wikipedia.org/wiki/Sinterklaas:_The_Movie",
		ArticleURI("Sinterklaas: The Movie"))
}

func TestArticleURI_EscapesNonASCII(t *testing.T) {
	uri := ArticleURI("Kurt Gödel")
	assert.Equal(t, "https://en.wikipedia.org/wiki/Kurt_G%C3%B6del", uri)
}

func TestBuildQuery_CoreGroup(t *testing.T) {
	groups := FieldGroups(5)
	q := BuildQuery([]string{"Albert Einstein", "Marie Curie"}, groups[0], true)

	assert.Contains(t, q, "VALUES ?article { <https://en.wikipedia.org/wiki/Albert_Einstein> <https://en.wikipedia.org/wiki/Marie_Curie> }")
	assert.Contains(t, q, "wdt:P31 wd:Q5")
	assert.Contains(t, q, "?dobValues")
	assert.Contains(t, q, "?dodStatements")
	assert.Contains(t, q, "?birthPlaceCoordinates")
	assert.Contains(t, q, "OPTIONAL { ?item wdt:P569 ?dob. }")
	// First group carries gender through memberOf.
	assert.Contains(t, q, "p:P21")
	assert.Contains(t, q, `SEPARATOR="@@"`)
	assert.Contains(t, q, `CONCAT(?genderID, "||", ?genderLabel)`)
	assert.NotContains(t, q, "p:P39")
}

func TestBuildQuery_LaterGroupsSkipCore(t *testing.T) {
	groups := FieldGroups(5)
	q := BuildQuery([]string{"Albert Einstein"}, groups[1], false)

	assert.NotContains(t, q, "?dobValues")
	assert.NotContains(t, q, "?birthPlaceID")
	assert.Contains(t, q, "p:P1196")
	assert.Contains(t, q, "GROUP BY ?item ?itemLabel")
}

func TestFieldGroups_Chunking(t *testing.T) {
	groups := FieldGroups(5)
	require.Len(t, groups, 4)
	for _, g := range groups {
		assert.LessOrEqual(t, len(g), 5)
	}

	var total int
	for _, g := range groups {
		total += len(g)
	}
	assert.Equal(t, len(AttributeFields), total)
}

func TestFieldGroups_UnevenAndDefaultSize(t *testing.T) {
	groups := FieldGroups(7)
	require.Len(t, groups, 3)
	assert.Len(t, groups[2], len(AttributeFields)-14)

	// Non-positive size falls back to the default chunk of five.
	assert.Len(t, FieldGroups(0), 4)
}

func TestBuildQuery_EveryFieldVariableIsSelected(t *testing.T) {
	for _, group := range FieldGroups(5) {
		q := BuildQuery([]string{"X"}, group, false)
		for _, f := range group {
			assert.True(t, strings.Contains(q, "AS ?"+f.Variable+")"),
				"missing aggregate for %s", f.Variable)
			assert.Contains(t, q, "p:"+f.Property+" ")
		}
	}
}
