package wikipedia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/notablehumans/ingest/internal/fetcher"
	"github.com/notablehumans/ingest/internal/lock"
)

// ErrDuplicateWork signals that an identical discovery run already holds
// the day lock. Callers treat it as "skip", not as a failure.
var ErrDuplicateWork = errors.New("wikipedia: duplicate work")

// Discoverer crawls day-of-year pages ("January 1", ...) for outbound
// links and keeps the ones that look like biographies.
type Discoverer struct {
	http    *fetcher.Client
	locks   lock.Manager
	apiURL  string
	lockTTL time.Duration
}

// NewDiscoverer wires the shared HTTP client and lock manager.
func NewDiscoverer(httpClient *fetcher.Client, locks lock.Manager, apiURL string, lockTTL time.Duration) *Discoverer {
	return &Discoverer{
		http:    httpClient,
		locks:   locks,
		apiURL:  apiURL,
		lockTTL: lockTTL,
	}
}

type linksResponse struct {
	Continue struct {
		PLContinue string `json:"plcontinue"`
	} `json:"continue"`
	Query struct {
		Pages map[string]struct {
			Title string `json:"title"`
			Links []struct {
				NS    int    `json:"ns"`
				Title string `json:"title"`
			} `json:"links"`
		} `json:"pages"`
	} `json:"query"`
}

// DiscoverTitles pages through the links of one day page and returns the
// filtered candidate titles. A held day lock means another worker already
// started the same day; the call returns ErrDuplicateWork and no titles.
func (d *Discoverer) DiscoverTitles(ctx context.Context, month string, day int) ([]string, error) {
	acquired, err := d.locks.TryAcquire(ctx, lock.DayKey(month, day), d.lockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		zap.L().Info("day already being discovered",
			zap.String("month", month),
			zap.Int("day", day))
		return nil, ErrDuplicateWork
	}

	page := fmt.Sprintf("%s %d", month, day)
	var raw []string
	cont := ""
	for {
		body, err := d.fetchLinksPage(ctx, page, cont)
		if err != nil {
			return nil, err
		}

		var resp linksResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, eris.Wrapf(err, "wikipedia: decode links for %q", page)
		}
		for _, p := range resp.Query.Pages {
			for _, l := range p.Links {
				if l.NS == 0 {
					raw = append(raw, l.Title)
				}
			}
		}

		cont = resp.Continue.PLContinue
		if cont == "" {
			break
		}
	}

	titles := FilterTitles(raw)
	zap.L().Info("day page discovered",
		zap.String("page", page),
		zap.Int("linked", len(raw)),
		zap.Int("candidates", len(titles)))
	return titles, nil
}

func (d *Discoverer) fetchLinksPage(ctx context.Context, page, cont string) ([]byte, error) {
	params := url.Values{
		"action":      {"query"},
		"format":      {"json"},
		"prop":        {"links"},
		"titles":      {page},
		"pllimit":     {"max"},
		"plnamespace": {"0"},
	}
	if cont != "" {
		params.Set("plcontinue", cont)
	}
	body, err := d.http.Get(ctx, d.apiURL+"?"+params.Encode())
	if err != nil {
		return nil, eris.Wrapf(err, "wikipedia: fetch links for %q", page)
	}
	return body, nil
}
