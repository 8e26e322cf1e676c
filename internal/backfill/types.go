package backfill

import (
	"context"
	"time"

	"github.com/fortuna/touchline/internal/record"
	"github.com/fortuna/touchline/internal/store"
	"github.com/lib/pq"
)

// JobType enumerates the supported backfill job variants.
type JobType string

const (
	// JobTypeSeason discovers match links from the season fixtures page.
	JobTypeSeason JobType = "season"
	// JobTypeMatches scrapes an explicit list of match report URLs.
	JobTypeMatches JobType = "matches"
)

// JobStatus represents the lifecycle state for a job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job models the database representation of a backfill job.
type Job struct {
	JobID           int64          `json:"job_id" db:"job_id"`
	JobType         JobType        `json:"job_type" db:"job_type"`
	Source          string         `json:"source" db:"source"`
	League          string         `json:"league" db:"league"`
	Season          string         `json:"season" db:"season"`
	MatchURLs       pq.StringArray `json:"match_urls,omitempty" db:"match_urls"`
	ContinueOnError bool           `json:"continue_on_error" db:"continue_on_error"`
	Status          JobStatus      `json:"status" db:"status"`
	StatusMessage   *string        `json:"status_message,omitempty" db:"status_message"`
	ProgressCurrent int            `json:"progress_current" db:"progress_current"`
	ProgressTotal   int            `json:"progress_total" db:"progress_total"`
	FailedCount     int            `json:"failed_count" db:"failed_count"`
	LastError       *string        `json:"last_error,omitempty" db:"last_error"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty" db:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
}

// Copy returns a shallow copy to prevent external mutation.
func (j *Job) Copy() *Job {
	if j == nil {
		return nil
	}
	cpy := *j
	cpy.MatchURLs = append(pq.StringArray(nil), j.MatchURLs...)
	return &cpy
}

// Event is one entry of a job's log.
type Event struct {
	EventID   int64     `json:"event_id" db:"event_id"`
	JobID     int64     `json:"job_id" db:"job_id"`
	EventType string    `json:"event_type" db:"event_type"`
	Message   string    `json:"message" db:"message"`
	URL       *string   `json:"url,omitempty" db:"url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// JobSpec describes the work to be performed by the runner.
type JobSpec struct {
	Type      JobType
	Source    string
	League    string
	Season    string
	MatchURLs []string

	// ContinueOnError skips failed matches and keeps going; false aborts
	// the whole job on the first failure.
	ContinueOnError bool
	// Workers bounds concurrent match scrapes. Values below 1 mean 1.
	Workers int
	// SkipStored leaves out URLs that already have a stored record.
	SkipStored bool
}

// Failure is a match the runner gave up on.
type Failure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// Summary is the outcome of one run.
type Summary struct {
	Total   int       `json:"total"`
	Scraped int       `json:"scraped"`
	Skipped int       `json:"skipped"`
	Failed  []Failure `json:"failed,omitempty"`
}

// Reporter receives lifecycle callbacks from the runner. The runner never
// calls a reporter from two goroutines at once.
type Reporter interface {
	OnJobStart(spec JobSpec, total int)
	OnMatchDone(url string, done, total int)
	OnMatchFailed(url string, err error, done, total int)
	OnJobComplete(summary *Summary)
	OnJobError(err error)
}

// MatchSource lists and scrapes match report pages.
type MatchSource interface {
	MatchLinks(ctx context.Context, season, league string) ([]string, error)
	ScrapeMatch(ctx context.Context, url string) (*record.MatchRecord, error)
}

// MatchStore persists scraped match records.
type MatchStore interface {
	Upsert(ctx context.Context, meta store.MatchMeta, m *record.MatchRecord) (int64, error)
	ScrapedURLs(ctx context.Context, urls []string) (map[string]bool, error)
}

// MatchPublisher announces stored match records.
type MatchPublisher interface {
	PublishMatch(ctx context.Context, meta store.MatchMeta, m *record.MatchRecord) error
}

// Progress is a point-in-time view of a running job, pushed to live
// subscribers.
type Progress struct {
	JobID   int64     `json:"job_id"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message"`
	URL     string    `json:"url,omitempty"`
	Current int       `json:"current"`
	Total   int       `json:"total"`
	Failed  int       `json:"failed"`
}

// ProgressFeed fans progress out to live subscribers.
type ProgressFeed interface {
	PublishProgress(p Progress)
}

// StatusSummary is returned to API callers.
type StatusSummary struct {
	ActiveJob *Job   `json:"active_job,omitempty"`
	History   []*Job `json:"recent_jobs,omitempty"`
}
