// Package fetch retrieves raw pages for the source modules.
//
// Plain pages go through HTTPFetcher; pages that need JavaScript or a click
// before their tables exist go through BrowserRenderer. Both enforce a
// minimum delay per origin and report failures as scrapeerr retrieval errors,
// never as empty pages.
package fetch

import (
	"context"
	"net/url"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
)

var errEmptyBody = crerr.New("empty response body")

// RawPage is a fetched document.
type RawPage struct {
	URL         string
	Content     []byte
	ContentType string
	Status      int
	FetchedAt   time.Time
}

// Text returns the page content as a string.
func (p RawPage) Text() string {
	return string(p.Content)
}

// IsJSON reports whether the server labelled the content as JSON.
func (p RawPage) IsJSON() bool {
	return strings.Contains(p.ContentType, "json")
}

// Fetcher returns the body of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (RawPage, error)
}

// Renderer loads a URL in a browser, runs the interactions in order and
// returns the resulting DOM.
type Renderer interface {
	Render(ctx context.Context, url string, interactions ...Interaction) (RawPage, error)
	// Reset discards the browser session and starts a fresh one.
	Reset() error
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) (RawPage, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (RawPage, error) {
	return f(ctx, url)
}

// origin is scheme://host, the unit rate limits and metrics are kept per.
func origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}

// host is used as the metrics label.
func host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Hostname()
}
