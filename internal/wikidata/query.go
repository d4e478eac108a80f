package wikidata

import (
	"fmt"
	"net/url"
	"strings"
)

// separators used in GROUP_CONCAT aggregates. Dates join with "|"; the
// attribute id/label pairs use "||" inside a pair and "@@" between pairs.
const (
	dateSeparator = "|"
	pairSeparator = "||"
	listSeparator = "@@"
)

// BuildQuery renders the SPARQL query for one batch of titles and one
// attribute field group. The first group additionally selects the core
// facts (label, article, birth/death dates as both direct and statement
// values, birth/death place id+label+coordinates) since those are only
// needed once per batch.
func BuildQuery(titles []string, group []AttributeField, includeCore bool) string {
	var sb strings.Builder

	sb.WriteString("SELECT ?item ?itemLabel")
	if includeCore {
		sb.WriteString(` ?article
  (GROUP_CONCAT(DISTINCT STR(?dob); separator="|") AS ?dobValues)
  (GROUP_CONCAT(DISTINCT STR(?dobStatement); separator="|") AS ?dobStatements)
  (GROUP_CONCAT(DISTINCT STR(?dod); separator="|") AS ?dodValues)
  (GROUP_CONCAT(DISTINCT STR(?dodStatement); separator="|") AS ?dodStatements)
  ?birthPlaceID ?birthPlaceLabel ?birthPlaceCoordinates
  ?deathPlaceID ?deathPlaceLabel ?deathPlaceCoordinates`)
	}
	for _, f := range group {
		fmt.Fprintf(&sb,
			"\n  (GROUP_CONCAT(DISTINCT CONCAT(?%sID, \"||\", ?%sLabel); SEPARATOR=\"@@\") AS ?%s)",
			f.Variable, f.Variable, f.Variable)
	}

	sb.WriteString("\nWHERE {\n  VALUES ?article { ")
	for i, t := range titles {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString("<" + ArticleURI(t) + ">")
	}
	sb.WriteString(" }\n")
	sb.WriteString("  ?article schema:about ?item.\n")
	sb.WriteString("  ?item rdfs:label ?itemLabel;\n        wdt:P31 wd:Q5.\n")
	sb.WriteString("  FILTER(LANG(?itemLabel) = \"en\")\n")

	if includeCore {
		sb.WriteString(`  OPTIONAL { ?item wdt:P569 ?dob. }
  OPTIONAL { ?item p:P569/ps:P569 ?dobStatement. }
  OPTIONAL { ?item wdt:P570 ?dod. }
  OPTIONAL { ?item p:P570/ps:P570 ?dodStatement. }
  OPTIONAL {
    ?item wdt:P19 ?birthPlace.
    ?birthPlace rdfs:label ?birthPlaceLabel;
      wdt:P625 ?birthPlaceCoordinates.
    BIND(STRAFTER(STR(?birthPlace), "/entity/") AS ?birthPlaceID)
    FILTER(LANG(?birthPlaceLabel) = "en")
  }
  OPTIONAL {
    ?item wdt:P20 ?deathPlace.
    ?deathPlace rdfs:label ?deathPlaceLabel;
      wdt:P625 ?deathPlaceCoordinates.
    BIND(STRAFTER(STR(?deathPlace), "/entity/") AS ?deathPlaceID)
    FILTER(LANG(?deathPlaceLabel) = "en")
  }
`)
	}

	for _, f := range group {
		fmt.Fprintf(&sb, `  OPTIONAL {
    ?item p:%[1]s ?%[2]sStatement.
    ?%[2]sStatement ps:%[1]s ?%[2]sEntity.
    ?%[2]sEntity rdfs:label ?%[2]sLabel.
    BIND(STRAFTER(STR(?%[2]sEntity), "/entity/") AS ?%[2]sID)
    FILTER(LANG(?%[2]sLabel) = "en")
  }
`, f.Property, f.Variable)
	}

	sb.WriteString("}\nGROUP BY ?item ?itemLabel")
	if includeCore {
		sb.WriteString(` ?article
  ?birthPlaceID ?birthPlaceLabel ?birthPlaceCoordinates
  ?deathPlaceID ?deathPlaceLabel ?deathPlaceCoordinates`)
	}
	sb.WriteString("\n")

	return sb.String()
}

// ArticleURI renders the canonical enwiki URI for a title, matching the
// sitelink form Wikidata stores (spaces become underscores, the rest is
// percent-encoded except ":" and "/").
func ArticleURI(title string) string {
	escaped := url.PathEscape(strings.ReplaceAll(title, " ", "_"))
	// PathEscape encodes ":" and "/"; sitelinks keep both.
	escaped = strings.ReplaceAll(escaped, "%3A", ":")
	escaped = strings.ReplaceAll(escaped, "%2F", "/")
	return "https://en.wikipedia.org/wiki/" + escaped
}
