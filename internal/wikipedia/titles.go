// Package wikipedia discovers candidate article titles from day-of-year
// pages and scrapes per-article metadata from the MediaWiki info view.
package wikipedia

import "strings"

// rejectSubstrings marks titles that are plainly not biography articles.
// Matched case-insensitively anywhere in the title.
var rejectSubstrings = []string{
	"category:",
	"template:",
	"template talk:",
	"file:",
	"talk:",
	"portal:",
	"wikipedia:",
	"list of",
}

// IsProbablyHuman filters the raw link list down to plausible biography
// titles. Day pages link to calendars, lists and project pages alongside
// people; titles that start or end with a digit are almost always year or
// date articles, except a trailing ")" keeps disambiguated names like
// "John Smith (born 1920)" or "2Pac (rapper)".
func IsProbablyHuman(title string) bool {
	if title == "" {
		return false
	}
	lower := strings.ToLower(title)
	for _, s := range rejectSubstrings {
		if strings.Contains(lower, s) {
			return false
		}
	}
	if !strings.HasSuffix(title, ")") {
		first, last := title[0], title[len(title)-1]
		if first >= '0' && first <= '9' {
			return false
		}
		if last >= '0' && last <= '9' {
			return false
		}
	}
	return true
}

// FilterTitles keeps the plausible biography titles, preserving order.
func FilterTitles(titles []string) []string {
	var out []string
	for _, t := range titles {
		if IsProbablyHuman(t) {
			out = append(out, t)
		}
	}
	return out
}
