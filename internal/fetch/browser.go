package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/logging"
	"github.com/fortuna/touchline/internal/scrapeerr"
)

// Interaction is one step run against a rendered page before its DOM is
// captured.
type Interaction interface {
	action() chromedp.Action
}

// Click clicks the first element matching Selector, waiting for it to be
// visible first.
type Click struct {
	Selector string
}

func (c Click) action() chromedp.Action {
	return chromedp.Tasks{
		chromedp.WaitVisible(c.Selector, chromedp.ByQuery),
		chromedp.Click(c.Selector, chromedp.ByQuery),
	}
}

// Scroll scrolls to the bottom Times times, pausing after each scroll so
// lazily loaded rows can arrive.
type Scroll struct {
	Times int
	Pause time.Duration
}

func (s Scroll) action() chromedp.Action {
	times := max(s.Times, 1)
	pause := s.Pause
	if pause <= 0 {
		pause = 500 * time.Millisecond
	}
	var tasks chromedp.Tasks
	for i := 0; i < times; i++ {
		tasks = append(tasks,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(pause),
		)
	}
	return tasks
}

// WaitVisible blocks until Selector is visible.
type WaitVisible struct {
	Selector string
}

func (w WaitVisible) action() chromedp.Action {
	return chromedp.WaitVisible(w.Selector, chromedp.ByQuery)
}

// Sleep pauses for a fixed duration.
type Sleep time.Duration

func (s Sleep) action() chromedp.Action {
	return chromedp.Sleep(time.Duration(s))
}

// BrowserOptions configures a BrowserRenderer.
type BrowserOptions struct {
	UserAgent   string
	Headless    bool
	ExecPath    string
	Timeout     time.Duration
	MinInterval time.Duration
	// Settle is how long to let scripts run after the body is visible.
	Settle time.Duration
}

// BrowserRenderer renders pages in a headless Chrome session. Tabs share one
// browser, so cookies set by one page are seen by the next until Reset.
type BrowserRenderer struct {
	opts    BrowserOptions
	limiter *OriginLimiter
	logger  *logging.Logger

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func NewBrowserRenderer(opts BrowserOptions) (*BrowserRenderer, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Settle <= 0 {
		opts.Settle = time.Second
	}
	r := &BrowserRenderer{
		opts:    opts,
		limiter: NewOriginLimiter(opts.MinInterval),
		logger:  logging.Component("browser"),
	}
	if err := r.start(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *BrowserRenderer) start() error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", r.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if r.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(r.opts.UserAgent))
	}
	if r.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	// Launch now so a missing Chrome binary surfaces here rather than on the
	// first render.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return crerr.Wrap(err, "start browser")
	}

	r.allocCancel = allocCancel
	r.browserCtx = browserCtx
	r.browserCancel = browserCancel
	return nil
}

func (r *BrowserRenderer) stop() {
	if r.browserCancel != nil {
		r.browserCancel()
	}
	if r.allocCancel != nil {
		r.allocCancel()
	}
	r.browserCtx, r.browserCancel, r.allocCancel = nil, nil, nil
}

// Reset closes the browser and launches a new one, dropping cookies and any
// state a site has attached to the session.
func (r *BrowserRenderer) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stop()
	r.logger.Info("browser session reset")
	return r.start()
}

// Close releases the browser.
func (r *BrowserRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stop()
}

// Fetch renders url without interactions.
func (r *BrowserRenderer) Fetch(ctx context.Context, url string) (RawPage, error) {
	return r.Render(ctx, url)
}

// Render opens url in a new tab, waits for the body, runs interactions and
// returns the outer HTML of the document.
func (r *BrowserRenderer) Render(ctx context.Context, url string, interactions ...Interaction) (RawPage, error) {
	if err := r.limiter.Wait(ctx, url); err != nil {
		return RawPage{}, scrapeerr.Retrieval(url, 0, err)
	}

	start := time.Now()
	page, err := r.render(ctx, url, interactions)
	h := host(url)
	requestsTotal.WithLabelValues(h, "browser", outcome(err)).Inc()
	requestDuration.WithLabelValues(h, "browser").Observe(time.Since(start).Seconds())
	if err != nil {
		r.logger.WarnContext(ctx, "render failed", "url", url, "err", err)
		return RawPage{}, err
	}
	r.logger.DebugContext(ctx, "rendered", "url", url, "bytes", len(page.Content), "interactions", len(interactions))
	return page, nil
}

func (r *BrowserRenderer) render(ctx context.Context, url string, interactions []Interaction) (RawPage, error) {
	r.mu.Lock()
	parent := r.browserCtx
	r.mu.Unlock()
	if parent == nil {
		return RawPage{}, scrapeerr.Retrieval(url, 0, crerr.New("browser is closed"))
	}

	tabCtx, cancel := chromedp.NewContext(parent)
	defer cancel()
	tabCtx, cancel = context.WithTimeout(tabCtx, r.opts.Timeout)
	defer cancel()
	// Tie the tab to the caller's cancellation too.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	tasks := chromedp.Tasks{
		chromedp.Navigate(url),
		chromedp.WaitVisible(`body`, chromedp.ByQuery),
		chromedp.Sleep(r.opts.Settle),
	}
	for _, in := range interactions {
		tasks = append(tasks, in.action())
	}
	var htmlContent string
	tasks = append(tasks, chromedp.OuterHTML(`html`, &htmlContent, chromedp.ByQuery))

	if err := chromedp.Run(tabCtx, tasks); err != nil {
		return RawPage{}, scrapeerr.Retrieval(url, 0, err)
	}
	if htmlContent == "" {
		return RawPage{}, scrapeerr.Retrieval(url, 0, errEmptyBody)
	}

	return RawPage{
		URL:         url,
		Content:     []byte(htmlContent),
		ContentType: "text/html",
		Status:      200,
		FetchedAt:   time.Now(),
	}, nil
}
