package wikipedia

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/notablehumans/ingest/internal/fetcher"
	"github.com/notablehumans/ingest/internal/model"
)

// Scraper refreshes per-article metadata from the MediaWiki info view.
type Scraper struct {
	http    *fetcher.Client
	baseURL string
	delay   time.Duration
	now     func() time.Time
}

// NewScraper builds a scraper against the wiki's index.php base URL.
func NewScraper(httpClient *fetcher.Client, baseURL string, delay time.Duration) *Scraper {
	return &Scraper{
		http:    httpClient,
		baseURL: baseURL,
		delay:   delay,
		now:     time.Now,
	}
}

// FetchPageInfo downloads and parses one article's info page. A redirect
// row is followed exactly once; redirect chains deeper than that indicate
// a moved or deleted page and come back as-is.
func (s *Scraper) FetchPageInfo(ctx context.Context, title string) (*PageInfo, error) {
	info, err := s.fetchOnce(ctx, title)
	if err != nil {
		return nil, err
	}
	if info.RedirectTarget != "" && info.RedirectTarget != title {
		zap.L().Debug("following redirect",
			zap.String("from", title),
			zap.String("to", info.RedirectTarget))
		return s.fetchOnce(ctx, info.RedirectTarget)
	}
	return info, nil
}

func (s *Scraper) fetchOnce(ctx context.Context, title string) (*PageInfo, error) {
	params := url.Values{
		"title":  {title},
		"action": {"info"},
	}
	body, err := s.http.Get(ctx, s.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, eris.Wrapf(err, "wikipedia: fetch info for %q", title)
	}
	return ParsePageInfo(body)
}

// RefreshMetadata fetches fresh metadata for each person that has an
// article and returns the persons whose records changed, ready for a bulk
// metadata update. A failed fetch skips that person and moves on; the
// inter-record delay keeps the sweep polite independent of the client's
// rate budget.
func (s *Scraper) RefreshMetadata(ctx context.Context, persons []model.Person) []model.Person {
	var updated []model.Person
	for i, person := range persons {
		if person.WikipediaURL == "" {
			continue
		}
		if i > 0 && s.delay > 0 {
			select {
			case <-ctx.Done():
				return updated
			case <-time.After(s.delay):
			}
		}

		title := TitleFromURL(person.WikipediaURL)
		info, err := s.FetchPageInfo(ctx, title)
		if err != nil {
			zap.L().Warn("metadata fetch failed",
				zap.String("person", person.WikidataID),
				zap.String("title", title),
				zap.Error(err))
			continue
		}

		applyPageInfo(&person, info, s.now())
		updated = append(updated, person)
	}

	zap.L().Info("metadata sweep finished",
		zap.Int("requested", len(persons)),
		zap.Int("updated", len(updated)))
	return updated
}

func applyPageInfo(person *model.Person, info *PageInfo, now time.Time) {
	if info.Description != "" {
		person.Description = info.Description
	}
	if info.Length != nil {
		person.ArticleLength = info.Length
	}
	if info.RecentViews != nil {
		person.ArticleRecentViews = info.RecentViews
	}
	if info.TotalEdits != nil {
		person.ArticleTotalEdits = info.TotalEdits
	}
	if info.RecentEdits != nil {
		person.ArticleRecentEdits = info.RecentEdits
	}
	// Quality is recomputed every sweep; articles do get delisted.
	person.ArticleQuality = info.Quality
	if info.Created != nil {
		person.ArticleCreated = info.Created
	}
	t := now
	person.LastMetadataUpdate = &t
}

// TitleFromURL recovers the article title from a full enwiki URL, undoing
// the underscore and percent encodings.
func TitleFromURL(rawURL string) string {
	i := strings.Index(rawURL, "/wiki/")
	if i < 0 {
		return rawURL
	}
	title := rawURL[i+len("/wiki/"):]
	if decoded, err := url.PathUnescape(title); err == nil {
		title = decoded
	}
	return strings.ReplaceAll(title, "_", " ")
}
