package wikidata

import (
	"strconv"
	"strings"
	"time"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
	"go.uber.org/zap"

	"github.com/notablehumans/ingest/internal/model"
)

// ParseDate picks a calendar date out of the raw direct-value and
// statement-value aggregates. Wikidata models uncertain or qualified dates
// as separate statements, so either string may carry several "|"-joined
// candidates; URL-shaped candidates (novalue/somevalue nodes) are dropped
// and the first candidate that parses as YYYY-MM-DD wins. A leading "-"
// marks a BC year; a time suffix starting at "T" is discarded. When
// divergent candidates exist the winner is whichever parses first in
// unordered-set order, a deliberately accepted ambiguity.
func ParseDate(directValues, statementValues string) (*model.Date, bool) {
	seen := make(map[string]bool)
	var candidates []string
	for _, raw := range []string{directValues, statementValues} {
		if raw == "" {
			continue
		}
		for _, v := range strings.Split(raw, dateSeparator) {
			v = strings.TrimSpace(v)
			if v == "" || strings.HasPrefix(v, "http") {
				continue
			}
			if !seen[v] {
				seen[v] = true
				candidates = append(candidates, v)
			}
		}
	}

	for _, c := range candidates {
		if d, bc, ok := parseDateCandidate(c); ok {
			return d, bc
		}
	}
	return nil, false
}

func parseDateCandidate(s string) (*model.Date, bool, bool) {
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		s = s[:i]
	}
	bc := false
	if strings.HasPrefix(s, "-") {
		bc = true
		s = s[1:]
	}

	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return nil, false, false
	}
	year, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	day, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, false, false
	}
	if year <= 0 || month < 1 || month > 12 || day < 1 || day > 31 {
		return nil, false, false
	}
	// Reject impossible combinations like February 30.
	if time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).Day() != day {
		return nil, false, false
	}
	return &model.Date{Year: year, Month: month, Day: day}, bc, true
}

// AttributePair is one decoded id/label element of a multi-valued
// attribute aggregate.
type AttributePair struct {
	ID    string
	Label string
}

// ParseAttributePairs splits an aggregate of the form
// "Q1||label@@Q2||label" into its pairs. Malformed elements are skipped;
// the rest of the value still parses.
func ParseAttributePairs(raw string) []AttributePair {
	if raw == "" {
		return nil
	}
	var pairs []AttributePair
	for _, elem := range strings.Split(raw, listSeparator) {
		id, label, ok := strings.Cut(elem, pairSeparator)
		if !ok || id == "" {
			continue
		}
		pairs = append(pairs, AttributePair{ID: id, Label: label})
	}
	return pairs
}

// ParseCoordinates decodes a Wikidata "Point(lon lat)" literal. Anything
// URL-shaped or malformed yields absent coordinates, never a partial pair.
func ParseCoordinates(literal string) (lat, lon *float64) {
	if literal == "" || strings.HasPrefix(literal, "http") {
		return nil, nil
	}
	normalized := literal
	// The WKT decoder wants an uppercase geometry tag; Wikidata emits "Point".
	if len(normalized) > 5 && strings.EqualFold(normalized[:5], "point") {
		normalized = "POINT" + normalized[5:]
	}
	g, err := wkt.Unmarshal(normalized)
	if err != nil {
		zap.L().Debug("unparseable coordinate literal", zap.String("value", literal))
		return nil, nil
	}
	pt, ok := g.(*geom.Point)
	if !ok {
		return nil, nil
	}
	coords := pt.Coords()
	if len(coords) < 2 {
		return nil, nil
	}
	x, y := coords[0], coords[1] // WKT order is lon lat
	return &y, &x
}
