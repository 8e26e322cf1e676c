package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/backfill"
	"github.com/fortuna/touchline/internal/record"
	"github.com/fortuna/touchline/internal/scrapeerr"
	"github.com/fortuna/touchline/internal/store"
	"github.com/fortuna/touchline/internal/store/repository"
	"github.com/fortuna/touchline/internal/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFBref struct {
	lastSeason, lastLeague string
}

func (f *fakeFBref) ValidSeasons(_ context.Context, league string) (map[string]string, error) {
	if league != "MLS" {
		return nil, scrapeerr.InvalidLeague("fbref", league, []string{"MLS"})
	}
	return map[string]string{"2024": "https://fbref.com/en/comps/22/2024/2024-Major-League-Soccer-Stats"}, nil
}

func (f *fakeFBref) MatchLinks(_ context.Context, season, league string) ([]string, error) {
	f.lastSeason, f.lastLeague = season, league
	return []string{"https://fbref.com/en/matches/a", "https://fbref.com/en/matches/b"}, nil
}

func (f *fakeFBref) ScrapeMatch(_ context.Context, url string) (*record.MatchRecord, error) {
	if strings.Contains(url, "broken") {
		return nil, scrapeerr.AtURL(scrapeerr.Structural("scorebox", "exactly 1", 0), url)
	}
	home, away := 2, 1
	return &record.MatchRecord{
		URL:  url,
		Home: record.TeamSide{Name: "Columbus Crew", ID: "529ba333", Goals: &home},
		Away: record.TeamSide{Name: "LA Galaxy", ID: "d8b46897", Goals: &away},
	}, nil
}

func (f *fakeFBref) ScrapeStats(_ context.Context, season, league, category string) (*record.StatsTable, *record.StatsTable, *record.StatsTable, error) {
	if category == "nonsense" {
		return nil, nil, nil, scrapeerr.UnknownCategory(category, []string{"standard"})
	}
	return smallTable(), nil, nil, nil
}

func (f *fakeFBref) ScrapeLeagueTable(_ context.Context, season, league string) ([]*record.StatsTable, error) {
	return []*record.StatsTable{smallTable(), smallTable()}, nil
}

type fakeMatches struct {
	stored []store.MatchMeta
}

func (f *fakeMatches) Upsert(_ context.Context, meta store.MatchMeta, m *record.MatchRecord) (int64, error) {
	f.stored = append(f.stored, meta)
	return 41 + int64(len(f.stored)), nil
}

func (f *fakeMatches) GetByURL(_ context.Context, url string) (*store.MatchRow, error) {
	if url != "https://fbref.com/en/matches/a" {
		return nil, crerr.Wrapf(repository.ErrNotFound, "match %s", url)
	}
	return &store.MatchRow{MatchID: 42, Source: "fbref", URL: url, HomeTeam: "Columbus Crew", Payload: `{"url":"` + url + `"}`}, nil
}

func (f *fakeMatches) List(_ context.Context, filter repository.MatchFilter) ([]*store.MatchRow, error) {
	return nil, nil
}

type fakeStats struct {
	keys []store.StatsKey
}

func (f *fakeStats) Upsert(_ context.Context, key store.StatsKey, st *record.StatsTable) error {
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeStats) Get(_ context.Context, key store.StatsKey) (*store.StatsRow, error) {
	return nil, crerr.Wrap(repository.ErrNotFound, "stats")
}

type fakeEvents struct {
	matches, stats int
}

func (f *fakeEvents) PublishMatch(context.Context, store.MatchMeta, *record.MatchRecord) error {
	f.matches++
	return nil
}

func (f *fakeEvents) PublishStats(context.Context, store.StatsKey, *record.StatsTable) error {
	f.stats++
	return nil
}

type fakeBackfill struct {
	got backfill.Request
}

func (f *fakeBackfill) Enqueue(_ context.Context, req backfill.Request) (*backfill.Job, error) {
	f.got = req
	return &backfill.Job{JobID: 9, JobType: backfill.JobTypeSeason, Source: req.Source, Status: backfill.JobStatusQueued}, nil
}

func (f *fakeBackfill) GetStatus(context.Context) (*backfill.StatusSummary, error) {
	msg := "Scraped 3/10"
	return &backfill.StatusSummary{
		ActiveJob: &backfill.Job{JobID: 9, Status: backfill.JobStatusRunning, StatusMessage: &msg},
	}, nil
}

func (f *fakeBackfill) GetJob(_ context.Context, jobID int64, _ int) (*backfill.Job, []*backfill.Event, error) {
	if jobID != 9 {
		return nil, nil, nil
	}
	return &backfill.Job{JobID: 9}, nil, nil
}

func smallTable() *record.StatsTable {
	return &record.StatsTable{
		Schema: table.Schema{{Name: "Squad"}, {Name: "Pts"}},
		Rows:   [][]record.Value{{record.StringValue("Columbus Crew"), record.IntValue(64)}},
	}
}

type fixture struct {
	router  http.Handler
	fbref   *fakeFBref
	matches *fakeMatches
	stats   *fakeStats
	events  *fakeEvents
	jobs    *fakeBackfill
}

func newFixture() *fixture {
	f := &fixture{
		fbref:   &fakeFBref{},
		matches: &fakeMatches{},
		stats:   &fakeStats{},
		events:  &fakeEvents{},
		jobs:    &fakeBackfill{},
	}
	f.router = NewRouter(Deps{
		FBref:    f.fbref,
		Matches:  f.matches,
		Stats:    f.stats,
		Events:   f.events,
		Backfill: f.jobs,
		Health: map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
		},
	}, nil)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var decoded map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestHealth(t *testing.T) {
	t.Parallel()

	rec, body := newFixture().do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, map[string]any{"database": "ok"}, body["checks"])
}

func TestHealthDegraded(t *testing.T) {
	t.Parallel()

	router := NewRouter(Deps{Health: map[string]HealthCheck{
		"redis": func(context.Context) error { return crerr.New("connection refused") },
	}}, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFBrefSeasonsMapsCatalogErrors(t *testing.T) {
	t.Parallel()

	f := newFixture()
	rec, body := f.do(t, http.MethodGet, "/api/v1/fbref/MLS/seasons", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "2024")

	rec, body = f.do(t, http.MethodGet, "/api/v1/fbref/Bundesliga/seasons", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []any{"valid leagues: MLS"}, body["hints"])
}

func TestFBrefMatchLinksNeedsSeason(t *testing.T) {
	t.Parallel()

	f := newFixture()
	rec, _ := f.do(t, http.MethodGet, "/api/v1/fbref/MLS/matches", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := f.do(t, http.MethodGet, "/api/v1/fbref/MLS/matches?season=2024", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["count"])
	assert.Equal(t, "2024", f.fbref.lastSeason)
	assert.Equal(t, "MLS", f.fbref.lastLeague)
}

func TestFBrefMatchStoresAndPublishes(t *testing.T) {
	t.Parallel()

	f := newFixture()
	target := "/api/v1/fbref/match?url=https://fbref.com/en/matches/a&league=MLS&season=2024&store=true"
	rec, body := f.do(t, http.MethodGet, target, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("X-Match-ID"))
	assert.Equal(t, "Columbus Crew", body["home"].(map[string]any)["name"])
	assert.Equal(t, []store.MatchMeta{{Source: "fbref", League: "MLS", Season: "2024"}}, f.matches.stored)
	assert.Equal(t, 1, f.events.matches)
}

func TestFBrefMatchErrors(t *testing.T) {
	t.Parallel()

	f := newFixture()
	rec, _ := f.do(t, http.MethodGet, "/api/v1/fbref/match?url=not-a-url", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := f.do(t, http.MethodGet, "/api/v1/fbref/match?url=https://fbref.com/en/matches/broken", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, body["details"], "scorebox")
	assert.Empty(t, f.matches.stored)
}

func TestFBrefStatsStoresNonNilTables(t *testing.T) {
	t.Parallel()

	f := newFixture()
	rec, body := f.do(t, http.MethodGet, "/api/v1/fbref/MLS/stats/shooting?season=2024&store=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, body["squad"])
	assert.Nil(t, body["opponent"])
	assert.Equal(t, []store.StatsKey{{Source: "fbref", Kind: "squad", League: "MLS", Season: "2024", Key: "shooting"}}, f.stats.keys)
	assert.Equal(t, 1, f.events.stats)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/fbref/MLS/stats/nonsense?season=2024", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLeagueTableStoresEveryTable(t *testing.T) {
	t.Parallel()

	f := newFixture()
	rec, body := f.do(t, http.MethodGet, "/api/v1/fbref/MLS/table?season=2024&store=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["tables"], 2)
	assert.Len(t, f.stats.keys, 2)
}

func TestUnconfiguredSourcesAnswer503(t *testing.T) {
	t.Parallel()

	f := newFixture()
	for _, target := range []string{
		"/api/v1/understat/EPL/seasons",
		"/api/v1/capology/EPL/salaries?season=2023-2024",
		"/api/v1/oddsportal/odds?url=https://www.oddsportal.com/x",
		"/api/v1/transfermarkt/players/28003/transfers",
		"/api/v1/clubelo/ranking",
	} {
		rec, _ := f.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}
}

func TestStoredMatch(t *testing.T) {
	t.Parallel()

	f := newFixture()
	rec, body := f.do(t, http.MethodGet, "/api/v1/records/match?url=https://fbref.com/en/matches/a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"url": "https://fbref.com/en/matches/a"}, body["record"])

	rec, _ = f.do(t, http.MethodGet, "/api/v1/records/match?url=https://fbref.com/en/matches/zzz", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/records/stats?source=fbref&kind=squad&key=shooting", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListStoredMatchesValidatesLimit(t *testing.T) {
	t.Parallel()

	f := newFixture()
	rec, _ := f.do(t, http.MethodGet, "/api/v1/records/matches?limit=1000", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/records/matches?league=MLS", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestBackfillEndpoints(t *testing.T) {
	t.Parallel()

	f := newFixture()
	rec, body := f.do(t, http.MethodPost, "/api/v1/backfill", `{"source":"fbref","league":"MLS","season":"2024","continue_on_error":false}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.EqualValues(t, 9, body["job"].(map[string]any)["job_id"])
	require.NotNil(t, f.jobs.got.ContinueOnError)
	assert.False(t, *f.jobs.got.ContinueOnError)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/backfill", `{"source":"fbref"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/backfill", `{"source":"fbref","match_urls":["not a url"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = f.do(t, http.MethodGet, "/api/v1/backfill/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, "Scraped 3/10", body["message"])

	rec, body = f.do(t, http.MethodGet, "/api/v1/backfill/jobs/9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["events"])

	rec, _ = f.do(t, http.MethodGet, "/api/v1/backfill/jobs/10", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()

	router := NewRouter(Deps{FBref: panicky{&fakeFBref{}}}, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/fbref/MLS/seasons", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type panicky struct{ *fakeFBref }

func (panicky) ValidSeasons(context.Context, string) (map[string]string, error) {
	panic("boom")
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusBadGateway, statusFor(scrapeerr.Retrieval("u", 503, nil)))
	assert.Equal(t, http.StatusBadGateway, statusFor(scrapeerr.Alignment("summary", 3, 4)))
	assert.Equal(t, http.StatusBadRequest, statusFor(scrapeerr.InvalidSeason("fbref", "MLS", "1990")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(errUnavailable))
}
