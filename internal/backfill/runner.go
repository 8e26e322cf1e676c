package backfill

import (
	"context"
	"sort"
	"sync"

	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/logging"
	"github.com/fortuna/touchline/internal/record"
	"github.com/fortuna/touchline/internal/store"
	"github.com/sourcegraph/conc/pool"
)

// Runner scrapes every match of a job spec through one source.
type Runner struct {
	source  MatchSource
	store   MatchStore
	events  MatchPublisher
	workers int
	logger  *logging.Logger
}

type RunnerOption func(*Runner)

// WithStore persists every scraped record.
func WithStore(s MatchStore) RunnerOption {
	return func(r *Runner) { r.store = s }
}

// WithPublisher announces every stored record. It has no effect without a
// store.
func WithPublisher(p MatchPublisher) RunnerOption {
	return func(r *Runner) { r.events = p }
}

// WithDefaultWorkers sets the pool size used when a spec leaves Workers unset.
func WithDefaultWorkers(n int) RunnerOption {
	return func(r *Runner) { r.workers = n }
}

func NewRunner(source MatchSource, opts ...RunnerOption) *Runner {
	r := &Runner{source: source, workers: 1, logger: logging.Component("backfill")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes spec. With ContinueOnError the returned summary lists every
// failed match and the error is nil unless the context ended; without it the
// first failure cancels the remaining scrapes and is returned.
func (r *Runner) Run(ctx context.Context, spec JobSpec, reporter Reporter) (*Summary, error) {
	rep := &lockedReporter{next: reporter}

	urls, err := r.matchURLs(ctx, spec)
	if err != nil {
		rep.OnJobError(err)
		return nil, err
	}

	summary := &Summary{Total: len(urls)}
	urls, err = r.pending(ctx, spec, urls)
	if err != nil {
		rep.OnJobError(err)
		return nil, err
	}
	summary.Skipped = summary.Total - len(urls)

	total := len(urls)
	rep.OnJobStart(spec, total)
	if total == 0 {
		rep.OnJobComplete(summary)
		return summary, nil
	}

	workers := spec.Workers
	if workers < 1 {
		workers = r.workers
	}
	if workers < 1 {
		workers = 1
	}

	meta := store.MatchMeta{Source: spec.Source, League: spec.League, Season: spec.Season}

	var (
		mu   sync.Mutex
		done int
	)
	finish := func(url string, failure error) {
		mu.Lock()
		defer mu.Unlock()
		done++
		if failure != nil {
			summary.Failed = append(summary.Failed, Failure{URL: url, Error: failure.Error()})
			rep.OnMatchFailed(url, failure, done, total)
			return
		}
		summary.Scraped++
		rep.OnMatchDone(url, done, total)
	}

	p := pool.New().WithContext(ctx).WithMaxGoroutines(workers)
	if !spec.ContinueOnError {
		p = p.WithCancelOnError().WithFirstError()
	}

	for _, url := range urls {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := r.scrapeOne(ctx, meta, url)
			if err == nil {
				finish(url, nil)
				return nil
			}
			// Cancellation is not the page's fault.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			finish(url, err)
			if spec.ContinueOnError {
				return nil
			}
			return err
		})
	}

	err = p.Wait()
	sort.Slice(summary.Failed, func(i, j int) bool { return summary.Failed[i].URL < summary.Failed[j].URL })
	if err != nil {
		rep.OnJobError(err)
		return summary, err
	}
	rep.OnJobComplete(summary)
	return summary, nil
}

func (r *Runner) matchURLs(ctx context.Context, spec JobSpec) ([]string, error) {
	switch spec.Type {
	case JobTypeMatches:
		if len(spec.MatchURLs) == 0 {
			return nil, crerr.New("matches job needs at least one match url")
		}
		return dedupe(spec.MatchURLs), nil
	case JobTypeSeason:
		if spec.League == "" || spec.Season == "" {
			return nil, crerr.New("season job needs a league and a season")
		}
		links, err := r.source.MatchLinks(ctx, spec.Season, spec.League)
		if err != nil {
			return nil, crerr.Wrapf(err, "list matches for %s %s", spec.League, spec.Season)
		}
		return dedupe(links), nil
	default:
		return nil, crerr.Newf("unsupported job type %q", spec.Type)
	}
}

func (r *Runner) pending(ctx context.Context, spec JobSpec, urls []string) ([]string, error) {
	if !spec.SkipStored || r.store == nil || len(urls) == 0 {
		return urls, nil
	}
	seen, err := r.store.ScrapedURLs(ctx, urls)
	if err != nil {
		return nil, crerr.Wrap(err, "look up stored matches")
	}
	out := urls[:0:0]
	for _, u := range urls {
		if !seen[u] {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *Runner) scrapeOne(ctx context.Context, meta store.MatchMeta, url string) error {
	m, err := r.source.ScrapeMatch(ctx, url)
	if err != nil {
		return err
	}
	if r.store == nil {
		return nil
	}
	if _, err := r.store.Upsert(ctx, meta, m); err != nil {
		return crerr.Wrapf(err, "store match %s", url)
	}
	r.publish(ctx, meta, m)
	return nil
}

// publish failures are logged and never fail the match: the record is
// already stored.
func (r *Runner) publish(ctx context.Context, meta store.MatchMeta, m *record.MatchRecord) {
	if r.events == nil {
		return
	}
	if err := r.events.PublishMatch(ctx, meta, m); err != nil {
		r.logger.WarnContext(ctx, "publish match event", "url", m.URL, "error", err)
	}
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok || u == "" {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// lockedReporter serialises callbacks from pool goroutines and tolerates a
// nil reporter.
type lockedReporter struct {
	mu   sync.Mutex
	next Reporter
}

func (l *lockedReporter) OnJobStart(spec JobSpec, total int) {
	if l.next == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.OnJobStart(spec, total)
}

func (l *lockedReporter) OnMatchDone(url string, done, total int) {
	if l.next == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.OnMatchDone(url, done, total)
}

func (l *lockedReporter) OnMatchFailed(url string, err error, done, total int) {
	if l.next == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.OnMatchFailed(url, err, done, total)
}

func (l *lockedReporter) OnJobComplete(summary *Summary) {
	if l.next == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.OnJobComplete(summary)
}

func (l *lockedReporter) OnJobError(err error) {
	if l.next == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.OnJobError(err)
}

// LogReporter writes progress to a logger, for CLI runs.
type LogReporter struct {
	Logger *logging.Logger
}

func (r LogReporter) OnJobStart(spec JobSpec, total int) {
	r.Logger.Info("backfill starting", "source", spec.Source, "league", spec.League,
		"season", spec.Season, "matches", total, "continue_on_error", spec.ContinueOnError)
}

func (r LogReporter) OnMatchDone(url string, done, total int) {
	r.Logger.Info("match scraped", "url", url, "done", done, "total", total)
}

func (r LogReporter) OnMatchFailed(url string, err error, done, total int) {
	r.Logger.Warn("match failed", "url", url, "error", err, "done", done, "total", total)
}

func (r LogReporter) OnJobComplete(summary *Summary) {
	r.Logger.Info("backfill complete", "total", summary.Total, "scraped", summary.Scraped,
		"skipped", summary.Skipped, "failed", len(summary.Failed))
}

func (r LogReporter) OnJobError(err error) {
	r.Logger.Error("backfill failed", "error", err)
}
