package wikipedia

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"

	"github.com/notablehumans/ingest/internal/model"
)

// PageInfo holds what the MediaWiki "Page information" view exposes about
// one article. Counter fields are nil when the row is absent or unreadable.
type PageInfo struct {
	Description    string
	Length         *int
	RecentViews    *int
	TotalEdits     *int
	RecentEdits    *int
	Quality        model.ArticleQuality
	Created        *time.Time
	RedirectTarget string
}

// Row ids on the action=info page. The page is served for humans but the
// ids are stable API surface in practice.
const (
	rowLength      = "mw-pageinfo-length"
	rowEdits       = "mw-pageinfo-edits"
	rowRecentEdits = "mw-pageinfo-recent-edits"
	rowMonthViews  = "mw-pvi-month-count"
	rowFirstTime   = "mw-pageinfo-firsttime"
	rowRedirectsTo = "mw-pageinfo-redirectsto"
	rowDescCentral = "mw-pageinfo-description-central"
	rowDescLocal   = "mw-pageinfo-description-local"
)

// ParsePageInfo extracts structured metadata from an action=info HTML
// document. Unparseable fields are skipped; the rest of the record still
// comes through.
func ParsePageInfo(body []byte) (*PageInfo, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "wikipedia: parse info page")
	}

	info := &PageInfo{Quality: model.ArticleUnrated}
	var localDescription string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "tr":
				if id := attrValue(n, "id"); id != "" {
					applyRow(info, &localDescription, id, n)
				}
			case "a":
				switch quality := qualityFromHref(attrValue(n, "href")); quality {
				case model.ArticleFeatured:
					info.Quality = model.ArticleFeatured
				case model.ArticleGood:
					if info.Quality != model.ArticleFeatured {
						info.Quality = model.ArticleGood
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if info.Description == "" {
		info.Description = localDescription
	}
	return info, nil
}

func applyRow(info *PageInfo, localDescription *string, id string, tr *html.Node) {
	value := strings.TrimSpace(lastCellText(tr))
	switch id {
	case rowLength:
		info.Length = parseCount(value)
	case rowEdits:
		info.TotalEdits = parseCount(value)
	case rowRecentEdits:
		info.RecentEdits = parseCount(value)
	case rowMonthViews:
		info.RecentViews = parseCount(value)
	case rowFirstTime:
		info.Created = parseTimestamp(value)
	case rowRedirectsTo:
		info.RedirectTarget = redirectTitle(tr, value)
	case rowDescCentral:
		info.Description = value
	case rowDescLocal:
		*localDescription = value
	}
}

// lastCellText returns the concatenated text of a row's last td. Info
// rows are all label/value pairs with the value in the final cell.
func lastCellText(tr *html.Node) string {
	var last *html.Node
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "td" {
			last = c
		}
	}
	if last == nil {
		return ""
	}
	var sb strings.Builder
	collectText(last, &sb)
	return sb.String()
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

// redirectTitle prefers the anchor's title attribute, which carries the
// canonical target name even when the link text is abbreviated.
func redirectTitle(tr *html.Node, fallback string) string {
	var title string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			if t := attrValue(n, "title"); t != "" {
				title = t
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(tr)
	if title != "" {
		return title
	}
	return fallback
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func qualityFromHref(href string) model.ArticleQuality {
	switch {
	case strings.Contains(href, "Category:Featured_articles"):
		return model.ArticleFeatured
	case strings.Contains(href, "Category:Good_articles"):
		return model.ArticleGood
	default:
		return model.ArticleUnrated
	}
}

// parseCount reads a human-formatted counter ("1,234,567 bytes") by
// keeping only its digits. No digits at all means the row held no number.
func parseCount(s string) *int {
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return nil
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return nil
	}
	return &n
}

// timestampLayouts covers the date renderings the info page has shipped
// over time, plus the raw API form.
var timestampLayouts = []string{
	"15:04, 2 January 2006",
	"15:04, January 2, 2006",
	"2 January 2006",
	"January 2, 2006",
	time.RFC3339,
}

func parseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
