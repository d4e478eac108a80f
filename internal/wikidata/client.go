package wikidata

import (
	"context"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/notablehumans/ingest/internal/fetcher"
)

const sparqlAccept = "application/sparql-results+json"

// Client runs SPARQL queries against a Wikidata Query Service endpoint.
type Client struct {
	http     *fetcher.Client
	endpoint string
}

// NewClient wraps the shared rate-limited HTTP client for SPARQL use.
func NewClient(httpClient *fetcher.Client, endpoint string) *Client {
	return &Client{http: httpClient, endpoint: endpoint}
}

// Query posts one SPARQL query and returns the raw JSON result body.
// Queries go as form posts rather than GETs; batch queries routinely
// exceed URL length limits.
func (c *Client) Query(ctx context.Context, query string) ([]byte, error) {
	form := url.Values{
		"query":  {query},
		"format": {"json"},
	}
	body, err := c.http.PostForm(ctx, c.endpoint, form, sparqlAccept)
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: sparql query")
	}
	return body, nil
}
