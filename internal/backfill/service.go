package backfill

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/logging"
)

// Request represents a backfill invocation request.
type Request struct {
	Source          string   `json:"source" validate:"required"`
	League          string   `json:"league" validate:"required_without=MatchURLs"`
	Season          string   `json:"season" validate:"required_without=MatchURLs"`
	MatchURLs       []string `json:"match_urls" validate:"omitempty,dive,url"`
	ContinueOnError *bool    `json:"continue_on_error"`
}

// DeriveType infers the job type based on populated fields.
func (r Request) DeriveType() (JobType, error) {
	if len(r.MatchURLs) > 0 {
		return JobTypeMatches, nil
	}
	if r.League != "" && r.Season != "" {
		return JobTypeSeason, nil
	}
	return "", crerr.New("request needs match_urls or a league and season")
}

// JobStore is the job persistence the service runs on.
type JobStore interface {
	CreateJob(ctx context.Context, job *Job) (*Job, error)
	UpdateStatus(ctx context.Context, jobID int64, status JobStatus, message string, lastErr error) error
	UpdateProgress(ctx context.Context, jobID int64, current, total, failed int, message string) error
	AppendEvent(ctx context.Context, jobID int64, eventType, message, url string) error
	ResetStuckJobs(ctx context.Context) error
	MarkNextJobRunning(ctx context.Context) (*Job, error)
	GetJob(ctx context.Context, jobID int64) (*Job, error)
	GetActiveJob(ctx context.Context) (*Job, error)
	ListRecentJobs(ctx context.Context, limit int) ([]*Job, error)
	ListEvents(ctx context.Context, jobID int64, limit int) ([]*Event, error)
}

// Service coordinates job persistence, execution, and status reporting.
type Service struct {
	repo    JobStore
	runners map[string]*Runner
	feed    ProgressFeed

	continueOnError bool
	workers         int
	historyLimit    int
	pollInterval    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *logging.Logger
}

type ServiceOption func(*Service)

// WithProgressFeed pushes job progress to live subscribers.
func WithProgressFeed(feed ProgressFeed) ServiceOption {
	return func(s *Service) { s.feed = feed }
}

// WithDefaults sets the policy applied when a request leaves it unset.
func WithDefaults(workers int, continueOnError bool) ServiceOption {
	return func(s *Service) {
		s.workers = workers
		s.continueOnError = continueOnError
	}
}

// WithPollInterval sets how often an idle worker checks the queue.
func WithPollInterval(d time.Duration) ServiceOption {
	return func(s *Service) { s.pollInterval = d }
}

// NewService constructs a Service over one runner per source name. Call
// Start to launch the worker.
func NewService(repo JobStore, runners map[string]*Runner, opts ...ServiceOption) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		repo:            repo,
		runners:         runners,
		continueOnError: true,
		workers:         1,
		historyLimit:    10,
		pollInterval:    3 * time.Second,
		ctx:             ctx,
		cancel:          cancel,
		logger:          logging.Component("backfill"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sources lists the source names jobs can run against.
func (s *Service) Sources() []string {
	out := make([]string, 0, len(s.runners))
	for name := range s.runners {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Start launches the background worker loop.
func (s *Service) Start() {
	if err := s.repo.ResetStuckJobs(s.ctx); err != nil {
		s.logger.Warn("reset stuck jobs", "error", err)
	}

	s.wg.Add(1)
	go s.worker()
}

// Shutdown stops workers and waits for completion.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Enqueue creates a new job from the provided request.
func (s *Service) Enqueue(ctx context.Context, req Request) (*Job, error) {
	req.Source = strings.ToLower(strings.TrimSpace(req.Source))
	if _, ok := s.runners[req.Source]; !ok {
		return nil, crerr.Newf("backfill is not available for source %q (known: %s)", req.Source, strings.Join(s.Sources(), ", "))
	}

	jobType, err := req.DeriveType()
	if err != nil {
		return nil, err
	}

	continueOnError := s.continueOnError
	if req.ContinueOnError != nil {
		continueOnError = *req.ContinueOnError
	}

	queued := "Queued"
	job := &Job{
		JobType:         jobType,
		Source:          req.Source,
		League:          req.League,
		Season:          req.Season,
		ContinueOnError: continueOnError,
		Status:          JobStatusQueued,
		StatusMessage:   &queued,
	}
	if jobType == JobTypeMatches {
		job.MatchURLs = dedupe(req.MatchURLs)
		job.ProgressTotal = len(job.MatchURLs)
	}

	stored, err := s.repo.CreateJob(ctx, job)
	if err != nil {
		return nil, err
	}

	if err := s.repo.AppendEvent(ctx, stored.JobID, "queued", "Job queued", ""); err != nil {
		s.logger.WarnContext(ctx, "append queued event", "job_id", stored.JobID, "error", err)
	}
	s.logger.InfoContext(ctx, "job queued", "job_id", stored.JobID, "type", jobType,
		"source", req.Source, "league", req.League, "season", req.Season)

	return stored, nil
}

// GetStatus returns the currently running job plus recent history.
func (s *Service) GetStatus(ctx context.Context) (*StatusSummary, error) {
	active, err := s.repo.GetActiveJob(ctx)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.ListRecentJobs(ctx, s.historyLimit)
	if err != nil {
		return nil, err
	}

	return &StatusSummary{
		ActiveJob: active,
		History:   history,
	}, nil
}

// GetJob returns one job and its newest events. A missing job is (nil, nil, nil).
func (s *Service) GetJob(ctx context.Context, jobID int64, eventLimit int) (*Job, []*Event, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil || job == nil {
		return nil, nil, err
	}
	events, err := s.repo.ListEvents(ctx, jobID, eventLimit)
	if err != nil {
		return nil, nil, err
	}
	return job, events, nil
}

func (s *Service) worker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			job, err := s.repo.MarkNextJobRunning(s.ctx)
			if err != nil {
				if s.ctx.Err() != nil {
					return
				}
				s.logger.Error("claim job", "error", err)
				time.Sleep(time.Second)
				continue
			}
			if job == nil {
				select {
				case <-s.ctx.Done():
					return
				case <-ticker.C:
					continue
				}
			}

			s.executeJob(job)
		}
	}
}

func (s *Service) executeJob(job *Job) {
	ctx := logging.WithFields(s.ctx, "job_id", job.JobID)

	runner, ok := s.runners[job.Source]
	if !ok {
		err := crerr.Newf("no runner for source %q", job.Source)
		s.logger.ErrorContext(ctx, "invalid job", "error", err)
		_ = s.repo.UpdateStatus(ctx, job.JobID, JobStatusFailed, "Invalid job parameters", err)
		return
	}

	spec := s.buildSpec(job)
	reporter := &jobReporter{
		ctx:    ctx,
		repo:   s.repo,
		feed:   s.feed,
		logger: s.logger,
		jobID:  job.JobID,
	}

	summary, err := runner.Run(ctx, spec, reporter)
	switch {
	case err != nil && s.ctx.Err() != nil:
		// Shutdown: leave the job running so ResetStuckJobs requeues it.
		s.logger.Info("job interrupted by shutdown")
	case err != nil:
		_ = s.repo.UpdateStatus(ctx, job.JobID, JobStatusFailed, "Job failed", err)
		reporter.push(JobStatusFailed, err.Error(), "")
	default:
		msg := fmt.Sprintf("Job completed: %d scraped, %d skipped, %d failed",
			summary.Scraped, summary.Skipped, len(summary.Failed))
		var lastErr error
		if n := len(summary.Failed); n > 0 {
			lastErr = crerr.Newf("%s: %s", summary.Failed[n-1].URL, summary.Failed[n-1].Error)
		}
		_ = s.repo.UpdateStatus(ctx, job.JobID, JobStatusCompleted, msg, lastErr)
		reporter.push(JobStatusCompleted, msg, "")
	}
}

func (s *Service) buildSpec(job *Job) JobSpec {
	return JobSpec{
		Type:            job.JobType,
		Source:          job.Source,
		League:          job.League,
		Season:          job.Season,
		MatchURLs:       job.MatchURLs,
		ContinueOnError: job.ContinueOnError,
		Workers:         s.workers,
		SkipStored:      true,
	}
}

// jobReporter mirrors runner callbacks into the job row, the event log and
// the live feed.
type jobReporter struct {
	ctx    context.Context
	repo   JobStore
	feed   ProgressFeed
	logger *logging.Logger
	jobID  int64

	current, total, failed int
}

func (r *jobReporter) OnJobStart(spec JobSpec, total int) {
	r.total = total
	msg := fmt.Sprintf("Scraping %d matches", total)
	r.save(msg)
	r.event("start", msg, "")
	r.push(JobStatusRunning, msg, "")
}

func (r *jobReporter) OnMatchDone(url string, done, total int) {
	r.current, r.total = done, total
	msg := fmt.Sprintf("Scraped %d/%d", done, total)
	r.save(msg)
	r.event("match", "Match scraped", url)
	r.push(JobStatusRunning, msg, url)
}

func (r *jobReporter) OnMatchFailed(url string, err error, done, total int) {
	r.current, r.total = done, total
	r.failed++
	msg := fmt.Sprintf("Scraped %d/%d, %d failed", done, total, r.failed)
	r.save(msg)
	r.event("error", err.Error(), url)
	r.push(JobStatusRunning, msg, url)
	r.logger.WarnContext(r.ctx, "match failed", "url", url, "error", err)
}

func (r *jobReporter) OnJobComplete(summary *Summary) {
	r.current = r.total
	r.save("Job complete")
	r.event("complete", fmt.Sprintf("%d scraped, %d skipped, %d failed",
		summary.Scraped, summary.Skipped, len(summary.Failed)), "")
}

func (r *jobReporter) OnJobError(err error) {
	r.event("error", err.Error(), "")
	r.logger.ErrorContext(r.ctx, "job failed", "error", err)
}

func (r *jobReporter) save(message string) {
	if err := r.repo.UpdateProgress(r.ctx, r.jobID, r.current, r.total, r.failed, message); err != nil {
		r.logger.WarnContext(r.ctx, "update progress", "error", err)
	}
}

func (r *jobReporter) event(eventType, message, url string) {
	if err := r.repo.AppendEvent(r.ctx, r.jobID, eventType, message, url); err != nil {
		r.logger.WarnContext(r.ctx, "append event", "error", err)
	}
}

func (r *jobReporter) push(status JobStatus, message, url string) {
	if r.feed == nil {
		return
	}
	r.feed.PublishProgress(Progress{
		JobID:   r.jobID,
		Status:  status,
		Message: message,
		URL:     url,
		Current: r.current,
		Total:   r.total,
		Failed:  r.failed,
	})
}

var _ Reporter = (*jobReporter)(nil)
