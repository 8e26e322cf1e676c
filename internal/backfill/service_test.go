package backfill

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memJobStore struct {
	mu     sync.Mutex
	jobs   map[int64]*Job
	events []*Event
	nextID int64
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: map[int64]*Job{}}
}

func (m *memJobStore) CreateJob(_ context.Context, job *Job) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	stored := job.Copy()
	stored.JobID = m.nextID
	stored.CreatedAt = time.Now()
	m.jobs[stored.JobID] = stored
	return stored.Copy(), nil
}

func (m *memJobStore) UpdateStatus(_ context.Context, jobID int64, status JobStatus, message string, lastErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.jobs[jobID]
	job.Status = status
	job.StatusMessage = &message
	if lastErr != nil {
		s := lastErr.Error()
		job.LastError = &s
	}
	return nil
}

func (m *memJobStore) UpdateProgress(_ context.Context, jobID int64, current, total, failed int, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.jobs[jobID]
	job.ProgressCurrent, job.ProgressTotal, job.FailedCount = current, total, failed
	job.StatusMessage = &message
	return nil
}

func (m *memJobStore) AppendEvent(_ context.Context, jobID int64, eventType, message, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &Event{EventID: int64(len(m.events) + 1), JobID: jobID, EventType: eventType, Message: message}
	if url != "" {
		e.URL = &url
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memJobStore) ResetStuckJobs(context.Context) error { return nil }

func (m *memJobStore) MarkNextJobRunning(context.Context) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := int64(1); id <= m.nextID; id++ {
		if job := m.jobs[id]; job.Status == JobStatusQueued {
			job.Status = JobStatusRunning
			return job.Copy(), nil
		}
	}
	return nil, nil
}

func (m *memJobStore) GetJob(_ context.Context, jobID int64) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[jobID].Copy(), nil
}

func (m *memJobStore) GetActiveJob(context.Context) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.Status == JobStatusRunning {
			return job.Copy(), nil
		}
	}
	return nil, nil
}

func (m *memJobStore) ListRecentJobs(_ context.Context, limit int) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Job
	for id := m.nextID; id >= 1 && len(out) < limit; id-- {
		out = append(out, m.jobs[id].Copy())
	}
	return out, nil
}

func (m *memJobStore) ListEvents(_ context.Context, jobID int64, limit int) ([]*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Event
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if m.events[i].JobID == jobID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

type feedRecorder struct {
	mu  sync.Mutex
	got []Progress
}

func (f *feedRecorder) PublishProgress(p Progress) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, p)
}

func (f *feedRecorder) last() Progress {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.got) == 0 {
		return Progress{}
	}
	return f.got[len(f.got)-1]
}

func TestRequestDeriveType(t *testing.T) {
	t.Parallel()

	typ, err := Request{MatchURLs: []string{"u"}}.DeriveType()
	require.NoError(t, err)
	assert.Equal(t, JobTypeMatches, typ)

	typ, err = Request{League: "MLS", Season: "2024"}.DeriveType()
	require.NoError(t, err)
	assert.Equal(t, JobTypeSeason, typ)

	_, err = Request{League: "MLS"}.DeriveType()
	assert.Error(t, err)
}

func TestEnqueueRejectsUnknownSource(t *testing.T) {
	t.Parallel()

	s := NewService(newMemJobStore(), map[string]*Runner{"fbref": NewRunner(&fakeSource{})})
	_, err := s.Enqueue(context.Background(), Request{Source: "understat", League: "EPL", Season: "2023/2024"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fbref")
}

func TestEnqueueAppliesDefaults(t *testing.T) {
	t.Parallel()

	repo := newMemJobStore()
	s := NewService(repo, map[string]*Runner{"fbref": NewRunner(&fakeSource{})}, WithDefaults(4, false))

	job, err := s.Enqueue(context.Background(), Request{Source: " FBref ", MatchURLs: []string{"u1", "u1", "u2"}})
	require.NoError(t, err)
	assert.Equal(t, "fbref", job.Source)
	assert.Equal(t, JobTypeMatches, job.JobType)
	assert.False(t, job.ContinueOnError)
	assert.Equal(t, 2, job.ProgressTotal)
	assert.Equal(t, JobStatusQueued, job.Status)

	keepGoing := true
	job, err = s.Enqueue(context.Background(), Request{Source: "fbref", League: "MLS", Season: "2024", ContinueOnError: &keepGoing})
	require.NoError(t, err)
	assert.True(t, job.ContinueOnError)
	assert.Equal(t, JobTypeSeason, job.JobType)
}

func TestServiceRunsQueuedJob(t *testing.T) {
	t.Parallel()

	repo := newMemJobStore()
	src := &fakeSource{links: []string{"u1", "u2", "u3"}, fail: map[string]error{"u3": assert.AnError}}
	feed := &feedRecorder{}
	s := NewService(repo,
		map[string]*Runner{"fbref": NewRunner(src, WithStore(newFakeStore()))},
		WithProgressFeed(feed),
		WithPollInterval(10*time.Millisecond),
	)

	job, err := s.Enqueue(context.Background(), Request{Source: "fbref", League: "MLS", Season: "2024"})
	require.NoError(t, err)

	s.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})

	require.Eventually(t, func() bool {
		got, _ := repo.GetJob(context.Background(), job.JobID)
		return got.Status == JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	got, events, err := s.GetJob(context.Background(), job.JobID, 50)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ProgressCurrent)
	assert.Equal(t, 3, got.ProgressTotal)
	assert.Equal(t, 1, got.FailedCount)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "u3")

	var errorURLs []string
	for _, e := range events {
		if e.EventType == "error" && e.URL != nil {
			errorURLs = append(errorURLs, *e.URL)
		}
	}
	assert.Equal(t, []string{"u3"}, errorURLs)

	require.Eventually(t, func() bool {
		return feed.last().Status == JobStatusCompleted
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, job.JobID, feed.last().JobID)

	status, err := s.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Nil(t, status.ActiveJob)
	require.Len(t, status.History, 1)
}

func TestGetJobMissing(t *testing.T) {
	t.Parallel()

	s := NewService(newMemJobStore(), nil)
	job, events, err := s.GetJob(context.Background(), 42, 10)
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.Nil(t, events)
}
