package backfill

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fortuna/touchline/internal/store"
	"github.com/fortuna/touchline/internal/testenv"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ JobStore = (*Repository)(nil)

func TestRepository(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := store.NewDatabase(ctx, testenv.Postgres(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	repo := NewRepository(db)

	fresh := func(t *testing.T) {
		t.Helper()
		_, err := db.DB().ExecContext(ctx, `TRUNCATE backfill_jobs CASCADE`)
		require.NoError(t, err)
	}
	queued := func(t *testing.T, job *Job) *Job {
		t.Helper()
		msg := "Queued"
		job.Status = JobStatusQueued
		job.StatusMessage = &msg
		stored, err := repo.CreateJob(ctx, job)
		require.NoError(t, err)
		return stored
	}

	t.Run("create maps every column", func(t *testing.T) {
		fresh(t)
		season := queued(t, &Job{JobType: JobTypeSeason, Source: "fbref", League: "Premier League", Season: "2023-2024", ContinueOnError: true})
		assert.NotZero(t, season.JobID)
		assert.Equal(t, JobTypeSeason, season.JobType)
		assert.Equal(t, JobStatusQueued, season.Status)
		assert.Empty(t, season.MatchURLs)
		assert.True(t, season.ContinueOnError)
		assert.False(t, season.CreatedAt.IsZero())
		assert.Nil(t, season.StartedAt)
		assert.Nil(t, season.CompletedAt)

		urls := pq.StringArray{"https://fbref.com/en/matches/a", "https://fbref.com/en/matches/b"}
		matches := queued(t, &Job{JobType: JobTypeMatches, Source: "fbref", MatchURLs: urls, ProgressTotal: 2})
		got, err := repo.GetJob(ctx, matches.JobID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, urls, got.MatchURLs)
		assert.Equal(t, 2, got.ProgressTotal)
		assert.False(t, got.ContinueOnError)

		missing, err := repo.GetJob(ctx, matches.JobID+100)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("claim takes the oldest queued job once", func(t *testing.T) {
		fresh(t)
		first := queued(t, &Job{JobType: JobTypeSeason, Source: "fbref", League: "MLS", Season: "2024"})
		second := queued(t, &Job{JobType: JobTypeMatches, Source: "fbref", MatchURLs: pq.StringArray{"https://fbref.com/en/matches/c"}})

		claimed, err := repo.MarkNextJobRunning(ctx)
		require.NoError(t, err)
		require.NotNil(t, claimed)
		assert.Equal(t, first.JobID, claimed.JobID)
		assert.Equal(t, JobStatusRunning, claimed.Status)
		require.NotNil(t, claimed.StatusMessage)
		assert.Equal(t, "Starting job...", *claimed.StatusMessage)
		assert.NotNil(t, claimed.StartedAt)
		assert.Equal(t, "MLS", claimed.League)

		active, err := repo.GetActiveJob(ctx)
		require.NoError(t, err)
		require.NotNil(t, active)
		assert.Equal(t, first.JobID, active.JobID)

		claimed, err = repo.MarkNextJobRunning(ctx)
		require.NoError(t, err)
		require.NotNil(t, claimed)
		assert.Equal(t, second.JobID, claimed.JobID)
		assert.Equal(t, pq.StringArray{"https://fbref.com/en/matches/c"}, claimed.MatchURLs)

		claimed, err = repo.MarkNextJobRunning(ctx)
		require.NoError(t, err)
		assert.Nil(t, claimed)
	})

	t.Run("concurrent claims never share a job", func(t *testing.T) {
		fresh(t)
		const jobs = 8
		for range jobs {
			queued(t, &Job{JobType: JobTypeSeason, Source: "fbref", League: "MLS", Season: "2024"})
		}

		var (
			mu   sync.Mutex
			seen = map[int64]int{}
			wg   sync.WaitGroup
		)
		for range 2 * jobs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				job, err := repo.MarkNextJobRunning(ctx)
				if err != nil || job == nil {
					return
				}
				mu.Lock()
				seen[job.JobID]++
				mu.Unlock()
			}()
		}
		wg.Wait()

		for id, n := range seen {
			assert.Equal(t, 1, n, "job %d claimed %d times", id, n)
		}
		// a claim can lose every locked row and see an empty queue
		next, err := repo.MarkNextJobRunning(ctx)
		require.NoError(t, err)
		for next != nil {
			seen[next.JobID]++
			assert.Equal(t, 1, seen[next.JobID])
			next, err = repo.MarkNextJobRunning(ctx)
			require.NoError(t, err)
		}
		assert.Len(t, seen, jobs)
	})

	t.Run("reset returns running jobs to the queue", func(t *testing.T) {
		fresh(t)
		queued(t, &Job{JobType: JobTypeSeason, Source: "fbref", League: "MLS", Season: "2024"})
		claimed, err := repo.MarkNextJobRunning(ctx)
		require.NoError(t, err)
		require.NotNil(t, claimed)

		require.NoError(t, repo.ResetStuckJobs(ctx))

		job, err := repo.GetJob(ctx, claimed.JobID)
		require.NoError(t, err)
		assert.Equal(t, JobStatusQueued, job.Status)
		require.NotNil(t, job.StatusMessage)
		assert.Equal(t, "Reset after service restart", *job.StatusMessage)

		active, err := repo.GetActiveJob(ctx)
		require.NoError(t, err)
		assert.Nil(t, active)

		again, err := repo.MarkNextJobRunning(ctx)
		require.NoError(t, err)
		require.NotNil(t, again)
		assert.Equal(t, claimed.JobID, again.JobID)
		require.NotNil(t, again.StartedAt)
		assert.True(t, claimed.StartedAt.Equal(*again.StartedAt), "started_at is kept across a reset")
	})

	t.Run("progress and terminal status", func(t *testing.T) {
		fresh(t)
		job := queued(t, &Job{JobType: JobTypeSeason, Source: "fbref", League: "MLS", Season: "2024"})

		require.NoError(t, repo.UpdateProgress(ctx, job.JobID, 3, 10, 1, "Scraped 3/10"))
		got, err := repo.GetJob(ctx, job.JobID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.ProgressCurrent)
		assert.Equal(t, 10, got.ProgressTotal)
		assert.Equal(t, 1, got.FailedCount)
		assert.Equal(t, "Scraped 3/10", *got.StatusMessage)

		require.NoError(t, repo.UpdateStatus(ctx, job.JobID, JobStatusRunning, "Working", nil))
		got, err = repo.GetJob(ctx, job.JobID)
		require.NoError(t, err)
		assert.Nil(t, got.CompletedAt)
		assert.Nil(t, got.LastError)

		require.NoError(t, repo.UpdateStatus(ctx, job.JobID, JobStatusFailed, "Job failed", errors.New("status 500")))
		got, err = repo.GetJob(ctx, job.JobID)
		require.NoError(t, err)
		assert.Equal(t, JobStatusFailed, got.Status)
		assert.NotNil(t, got.CompletedAt)
		require.NotNil(t, got.LastError)
		assert.Equal(t, "status 500", *got.LastError)
	})

	t.Run("events are listed newest first", func(t *testing.T) {
		fresh(t)
		job := queued(t, &Job{JobType: JobTypeSeason, Source: "fbref", League: "MLS", Season: "2024"})

		require.NoError(t, repo.AppendEvent(ctx, job.JobID, "queued", "Job queued", ""))
		require.NoError(t, repo.AppendEvent(ctx, job.JobID, "match", "Scraped match", "https://fbref.com/en/matches/a"))
		require.NoError(t, repo.AppendEvent(ctx, job.JobID, "failed", "status 500", "https://fbref.com/en/matches/b"))

		events, err := repo.ListEvents(ctx, job.JobID, 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "failed", events[0].EventType)
		assert.Equal(t, "match", events[1].EventType)
		require.NotNil(t, events[1].URL)
		assert.Equal(t, "https://fbref.com/en/matches/a", *events[1].URL)

		events, err = repo.ListEvents(ctx, job.JobID, 10)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Nil(t, events[2].URL)
		assert.Equal(t, job.JobID, events[2].JobID)
	})

	t.Run("recent jobs", func(t *testing.T) {
		fresh(t)
		var ids []int64
		for _, season := range []string{"2022", "2023", "2024"} {
			ids = append(ids, queued(t, &Job{JobType: JobTypeSeason, Source: "fbref", League: "MLS", Season: season}).JobID)
		}

		jobs, err := repo.ListRecentJobs(ctx, 2)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, ids[2], jobs[0].JobID)
		assert.Equal(t, ids[1], jobs[1].JobID)
	})
}
