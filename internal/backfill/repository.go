package backfill

import (
	"context"
	"database/sql"

	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/store"
	"github.com/lib/pq"
)

// Repository handles persistence for backfill jobs and events.
type Repository struct {
	db *store.Database
}

// NewRepository constructs a Repository.
func NewRepository(db *store.Database) *Repository {
	return &Repository{db: db}
}

const jobColumns = `
	job_id, job_type, source, league, season, match_urls, continue_on_error,
	status, status_message, progress_current, progress_total, failed_count,
	last_error, created_at, updated_at, started_at, completed_at
`

// CreateJob inserts a new job row and returns the stored record.
func (r *Repository) CreateJob(ctx context.Context, job *Job) (*Job, error) {
	query := `
		INSERT INTO backfill_jobs (
			job_type, source, league, season, match_urls, continue_on_error,
			status, status_message, progress_current, progress_total
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING` + jobColumns

	// a nil array binds as NULL
	urls := job.MatchURLs
	if urls == nil {
		urls = pq.StringArray{}
	}

	var stored Job
	err := r.db.DB().GetContext(ctx, &stored, query,
		job.JobType, job.Source, job.League, job.Season, urls, job.ContinueOnError,
		job.Status, job.StatusMessage, job.ProgressCurrent, job.ProgressTotal,
	)
	if err != nil {
		return nil, crerr.Wrap(err, "insert job")
	}
	return &stored, nil
}

// UpdateStatus updates status, message and optional error.
func (r *Repository) UpdateStatus(ctx context.Context, jobID int64, status JobStatus, message string, lastErr error) error {
	query := `
		UPDATE backfill_jobs
		SET status = $2::varchar,
			status_message = $3,
			last_error = $4,
			updated_at = NOW(),
			completed_at = CASE WHEN $2::varchar IN ('completed','failed','cancelled') THEN NOW() ELSE completed_at END
		WHERE job_id = $1
	`

	var errText sql.NullString
	if lastErr != nil {
		errText = sql.NullString{String: lastErr.Error(), Valid: true}
	}

	if _, err := r.db.DB().ExecContext(ctx, query, jobID, string(status), message, errText); err != nil {
		return crerr.Wrapf(err, "update job %d status", jobID)
	}
	return nil
}

// UpdateProgress updates the progress counters and message.
func (r *Repository) UpdateProgress(ctx context.Context, jobID int64, current, total, failed int, message string) error {
	query := `
		UPDATE backfill_jobs
		SET progress_current = $2,
			progress_total = $3,
			failed_count = $4,
			status_message = $5,
			updated_at = NOW()
		WHERE job_id = $1
	`

	if _, err := r.db.DB().ExecContext(ctx, query, jobID, current, total, failed, message); err != nil {
		return crerr.Wrapf(err, "update job %d progress", jobID)
	}
	return nil
}

// AppendEvent stores a log entry for a job. url may be empty.
func (r *Repository) AppendEvent(ctx context.Context, jobID int64, eventType, message, url string) error {
	query := `
		INSERT INTO backfill_job_events (job_id, event_type, message, url)
		VALUES ($1,$2,$3,$4)
	`

	urlVal := sql.NullString{String: url, Valid: url != ""}
	if _, err := r.db.DB().ExecContext(ctx, query, jobID, eventType, message, urlVal); err != nil {
		return crerr.Wrapf(err, "insert job %d event", jobID)
	}
	return nil
}

// ListEvents returns the newest events of a job first.
func (r *Repository) ListEvents(ctx context.Context, jobID int64, limit int) ([]*Event, error) {
	query := `
		SELECT event_id, job_id, event_type, message, url, created_at
		FROM backfill_job_events
		WHERE job_id = $1
		ORDER BY event_id DESC
		LIMIT $2
	`

	var events []*Event
	if err := r.db.DB().SelectContext(ctx, &events, query, jobID, limit); err != nil {
		return nil, crerr.Wrapf(err, "list job %d events", jobID)
	}
	return events, nil
}

// ResetStuckJobs moves running jobs back to queued (used during service restarts).
func (r *Repository) ResetStuckJobs(ctx context.Context) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE backfill_jobs
		SET status = 'queued',
			status_message = 'Reset after service restart',
			updated_at = NOW()
		WHERE status = 'running'
	`)
	if err != nil {
		return crerr.Wrap(err, "reset stuck jobs")
	}
	return nil
}

// MarkNextJobRunning atomically claims the next queued job. It returns nil
// when the queue is empty.
func (r *Repository) MarkNextJobRunning(ctx context.Context) (*Job, error) {
	query := `
		WITH next_job AS (
			SELECT job_id
			FROM backfill_jobs
			WHERE status = 'queued'
			ORDER BY created_at, job_id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE backfill_jobs
		SET status = 'running',
			status_message = 'Starting job...',
			started_at = COALESCE(started_at, NOW()),
			updated_at = NOW()
		FROM next_job
		WHERE backfill_jobs.job_id = next_job.job_id
		RETURNING backfill_jobs.*
	`

	return r.getOptional(ctx, query)
}

// GetJob loads one job.
func (r *Repository) GetJob(ctx context.Context, jobID int64) (*Job, error) {
	job, err := r.getOptional(ctx, `SELECT`+jobColumns+`FROM backfill_jobs WHERE job_id = $1`, jobID)
	if err != nil {
		return nil, crerr.Wrapf(err, "get job %d", jobID)
	}
	return job, nil
}

// GetActiveJob returns the currently running job, if any.
func (r *Repository) GetActiveJob(ctx context.Context) (*Job, error) {
	query := `SELECT` + jobColumns + `
		FROM backfill_jobs
		WHERE status = 'running'
		ORDER BY started_at DESC
		LIMIT 1
	`

	job, err := r.getOptional(ctx, query)
	if err != nil {
		return nil, crerr.Wrap(err, "get active job")
	}
	return job, nil
}

// ListRecentJobs returns the most recently created jobs.
func (r *Repository) ListRecentJobs(ctx context.Context, limit int) ([]*Job, error) {
	query := `SELECT` + jobColumns + `
		FROM backfill_jobs
		ORDER BY created_at DESC, job_id DESC
		LIMIT $1
	`

	var jobs []*Job
	if err := r.db.DB().SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, crerr.Wrap(err, "list recent jobs")
	}
	return jobs, nil
}

func (r *Repository) getOptional(ctx context.Context, query string, args ...any) (*Job, error) {
	var job Job
	err := r.db.DB().GetContext(ctx, &job, query, args...)
	if crerr.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}
