package fetch

import (
	"context"
	"time"

	"github.com/fortuna/touchline/internal/logging"
)

// PageCache stores page bodies by URL. A miss returns ok == false and no
// error.
type PageCache interface {
	GetPage(ctx context.Context, url string) (page RawPage, ok bool, err error)
	SetPage(ctx context.Context, page RawPage, ttl time.Duration) error
}

// CachedFetcher serves pages from a PageCache, falling through to next on a
// miss. Cache failures are logged and never fail the fetch.
type CachedFetcher struct {
	next   Fetcher
	cache  PageCache
	ttl    time.Duration
	logger *logging.Logger
}

func NewCachedFetcher(next Fetcher, cache PageCache, ttl time.Duration) *CachedFetcher {
	return &CachedFetcher{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logging.Component("fetch"),
	}
}

func (c *CachedFetcher) Fetch(ctx context.Context, url string) (RawPage, error) {
	if c.cache != nil {
		page, ok, err := c.cache.GetPage(ctx, url)
		switch {
		case err != nil:
			cacheLookups.WithLabelValues("error").Inc()
			c.logger.WarnContext(ctx, "page cache read failed", "url", url, "err", err)
		case ok:
			cacheLookups.WithLabelValues("hit").Inc()
			return page, nil
		default:
			cacheLookups.WithLabelValues("miss").Inc()
		}
	}

	page, err := c.next.Fetch(ctx, url)
	if err != nil {
		return RawPage{}, err
	}

	if c.cache != nil && c.ttl > 0 {
		if err := c.cache.SetPage(ctx, page, c.ttl); err != nil {
			c.logger.WarnContext(ctx, "page cache write failed", "url", url, "err", err)
		}
	}
	return page, nil
}
