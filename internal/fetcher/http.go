package fetcher

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/notablehumans/ingest/internal/config"
	"github.com/notablehumans/ingest/internal/resilience"
)

// Options configures the shared HTTP client.
type Options struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
	RateLimiters map[string]*rate.Limiter
	DefaultRate  rate.Limit
	// BackoffBase is the initial retry delay. Defaults to 1s.
	BackoffBase time.Duration
}

// OptionsFromConfig builds Options with per-host budgets for the Wikipedia
// and Wikidata endpoints named in cfg.
func OptionsFromConfig(httpCfg config.HTTPConfig, wikiCfg config.WikipediaConfig, wdCfg config.WikidataConfig) Options {
	limiters := make(map[string]*rate.Limiter)
	if h := hostOf(wikiCfg.APIURL); h != "" {
		limiters[h] = rate.NewLimiter(rate.Limit(httpCfg.WikipediaRate), burstFor(httpCfg.WikipediaRate))
	}
	if h := hostOf(wdCfg.SPARQLURL); h != "" {
		limiters[h] = rate.NewLimiter(rate.Limit(httpCfg.WikidataRate), burstFor(httpCfg.WikidataRate))
	}
	return Options{
		UserAgent:    httpCfg.UserAgent,
		Timeout:      time.Duration(httpCfg.TimeoutSecs) * time.Second,
		MaxRetries:   httpCfg.MaxRetries,
		RateLimiters: limiters,
		DefaultRate:  rate.Limit(httpCfg.DefaultRate),
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func burstFor(r float64) int {
	if r < 1 {
		return 1
	}
	return int(r)
}

// Client is a rate-limited HTTP client shared by the discoverer, the SPARQL
// enricher and the metadata scraper. One connection pool, one User-Agent,
// per-host request budgets.
type Client struct {
	http *http.Client
	opts Options

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a Client with a pooled transport.
func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "NotableHumans/1.0 (mailto:ops@notablehumans.org)"
	}
	if opts.DefaultRate == 0 {
		opts.DefaultRate = 20
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = time.Second
	}
	limiters := make(map[string]*rate.Limiter)
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: limiters,
	}
}

// UserAgent returns the configured User-Agent string.
func (c *Client) UserAgent() string {
	return c.opts.UserAgent
}

// HTTPClient exposes the underlying client so callers can swap its
// transport, which is how httpmock hooks in.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

func (c *Client) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lim, ok := c.limiters[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(c.opts.DefaultRate, burstFor(float64(c.opts.DefaultRate)))
	c.limiters[host] = lim
	return lim
}

// Get performs a rate-limited GET and returns the body.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	return c.do(req)
}

// PostForm performs a rate-limited form POST and returns the body. The
// SPARQL endpoint requires POST for large query bodies.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return c.do(req)
}

// do runs the request with the host's budget and retries transient
// failures. A 400 is surfaced as a malformed-query error so callers never
// retry it; a 429 survives the local retries as a rate-limit signal the
// enricher's own backoff policy can see.
func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("User-Agent", c.opts.UserAgent)
	lim := c.limiterFor(req.URL.Host)

	var lastErr error
	for attempt := range c.opts.MaxRetries {
		if err := lim.Wait(req.Context()); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}

		cloned := req.Clone(req.Context())
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, eris.Wrap(err, "fetcher: clone body")
			}
			cloned.Body = body
		}

		resp, err := c.http.Do(cloned)
		if err != nil {
			lastErr = resilience.NewTransientError(err, 0)
			zap.L().Warn("http request failed, retrying",
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			c.backoff(req.Context(), attempt)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusBadRequest:
			_ = resp.Body.Close()
			return nil, resilience.NewMalformedQueryError(
				eris.Errorf("fetcher: http 400 from %s", req.URL.Host))

		case resp.StatusCode == http.StatusTooManyRequests:
			_ = resp.Body.Close()
			lastErr = resilience.NewTransientError(
				eris.Errorf("fetcher: http 429 from %s", req.URL.Host), resp.StatusCode)
			zap.L().Warn("rate limited (429), backing off",
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt+1),
			)
			c.backoff(req.Context(), attempt)
			continue

		case resp.StatusCode >= 500:
			_ = resp.Body.Close()
			lastErr = resilience.NewTransientError(
				eris.Errorf("fetcher: http %d from %s", resp.StatusCode, req.URL.Host), resp.StatusCode)
			zap.L().Warn("server error, retrying",
				zap.String("url", req.URL.String()),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			c.backoff(req.Context(), attempt)
			continue

		case resp.StatusCode != http.StatusOK:
			defer resp.Body.Close() //nolint:errcheck
			return nil, eris.Errorf("fetcher: unexpected status %d from %s", resp.StatusCode, req.URL.String())
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = resilience.NewTransientError(err, 0)
			c.backoff(req.Context(), attempt)
			continue
		}
		return body, nil
	}

	return nil, eris.Wrap(lastErr, "fetcher: all retries exhausted")
}

func (c *Client) backoff(ctx context.Context, attempt int) {
	base := c.opts.BackoffBase
	maxBackoff := 30 * time.Second
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	d += time.Duration(rand.Int64N(int64(d) / 2))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
