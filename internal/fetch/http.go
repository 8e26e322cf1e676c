package fetch

import (
	"context"
	"net/http"
	"time"

	"github.com/fortuna/touchline/internal/logging"
	"github.com/fortuna/touchline/internal/scrapeerr"
	"github.com/go-resty/resty/v2"
)

// HTTPOptions configures an HTTPFetcher.
type HTTPOptions struct {
	UserAgent   string
	Timeout     time.Duration
	Retries     int
	RetryWait   time.Duration
	MinInterval time.Duration
	Headers     map[string]string
}

// HTTPFetcher fetches pages with a plain HTTP client.
type HTTPFetcher struct {
	http    *resty.Client
	limiter *OriginLimiter
	logger  *logging.Logger
}

func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 2 * time.Second
	}

	f := &HTTPFetcher{
		limiter: NewOriginLimiter(opts.MinInterval),
		logger:  logging.Component("fetch"),
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	client.SetHeader("Accept-Language", "en-US,en;q=0.9")
	client.SetHeaders(opts.Headers)
	client.SetRetryCount(opts.Retries)
	client.SetRetryWaitTime(opts.RetryWait)
	client.SetRetryMaxWaitTime(8 * opts.RetryWait)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		code := r.StatusCode()
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	})
	// Runs before every attempt, retries included.
	client.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		return f.limiter.Wait(r.Context(), r.URL)
	})

	f.http = client
	return f
}

// Fetch GETs url. Non-2xx responses, transport failures and empty bodies are
// all retrieval errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (RawPage, error) {
	start := time.Now()
	page, err := f.get(ctx, url)
	h := host(url)
	requestsTotal.WithLabelValues(h, "http", outcome(err)).Inc()
	requestDuration.WithLabelValues(h, "http").Observe(time.Since(start).Seconds())
	if err != nil {
		f.logger.WarnContext(ctx, "fetch failed", "url", url, "err", err)
		return RawPage{}, err
	}
	f.logger.DebugContext(ctx, "fetched", "url", url, "bytes", len(page.Content), "elapsed", time.Since(start))
	return page, nil
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (RawPage, error) {
	res, err := f.http.R().SetContext(ctx).Get(url)
	if err != nil {
		status := 0
		if res != nil {
			status = res.StatusCode()
		}
		return RawPage{}, scrapeerr.Retrieval(url, status, err)
	}
	if !res.IsSuccess() {
		return RawPage{}, scrapeerr.Retrieval(url, res.StatusCode(), nil)
	}
	body := res.Body()
	if len(body) == 0 {
		return RawPage{}, scrapeerr.Retrieval(url, res.StatusCode(), errEmptyBody)
	}
	return RawPage{
		URL:         url,
		Content:     body,
		ContentType: res.Header().Get("Content-Type"),
		Status:      res.StatusCode(),
		FetchedAt:   time.Now(),
	}, nil
}
