package fbref

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/fetch"
	"github.com/fortuna/touchline/internal/record"
	"github.com/fortuna/touchline/internal/scrapeerr"
	"github.com/fortuna/touchline/internal/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = "https://fbref.test"

const matchURL = testBase + "/en/matches/0a1b2c3d/Columbus-Crew-LA-Galaxy-February-24-2024-Major-League-Soccer"

// fixtureFetcher serves testdata files by URL path and records every URL
// requested.
type fixtureFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func newFixtureFetcher() *fixtureFetcher {
	f := &fixtureFetcher{pages: map[string]string{}}
	f.serve("/en/comps/22/history/Major-League-Soccer-Seasons", "history.html")
	f.serve("/en/comps/22/2024/schedule/2024-Major-League-Soccer-Scores-and-Fixtures", "schedule.html")
	f.serve("/en/comps/22/2024/shooting/2024-Major-League-Soccer-Stats", "stats_shooting.html")
	f.serve("/en/comps/22/2024/keepersadv/2024-Major-League-Soccer-Stats", "stats_missing.html")
	f.serve("/en/comps/22/2024/2024-Major-League-Soccer-Stats", "season.html")
	f.serve(strings.TrimPrefix(matchURL, testBase), "match.html")
	return f
}

func (f *fixtureFetcher) serve(path, file string) {
	f.pages[path] = file
}

func (f *fixtureFetcher) Fetch(_ context.Context, raw string) (fetch.RawPage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, raw)
	f.mu.Unlock()

	u, err := url.Parse(raw)
	if err != nil {
		return fetch.RawPage{}, scrapeerr.Retrieval(raw, 0, err)
	}
	name, ok := f.pages[u.Path]
	if !ok {
		return fetch.RawPage{}, scrapeerr.Retrieval(raw, 404, nil)
	}
	body, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		return fetch.RawPage{}, scrapeerr.Retrieval(raw, 0, err)
	}
	return fetch.RawPage{URL: raw, Content: body, ContentType: "text/html", Status: 200}, nil
}

func (f *fixtureFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestScraper() (*Scraper, *fixtureFetcher) {
	f := newFixtureFetcher()
	return New(f, WithBaseURL(testBase)), f
}

func TestScrapeMatchEndToEnd(t *testing.T) {
	t.Parallel()

	s, _ := newTestScraper()
	m, err := s.ScrapeMatch(context.Background(), matchURL)
	require.NoError(t, err)

	assert.Equal(t, "Columbus Crew", m.Home.Name)
	assert.Equal(t, "529ba333", m.Home.ID)
	assert.Equal(t, "LA Galaxy", m.Away.Name)
	assert.Equal(t, "d8b46897", m.Away.ID)

	require.NotNil(t, m.Home.Goals)
	require.NotNil(t, m.Away.Goals)
	assert.Equal(t, 2, *m.Home.Goals)
	assert.Equal(t, 1, *m.Away.Goals)

	require.NotNil(t, m.Date)
	assert.Equal(t, time.Date(2024, 2, 24, 0, 0, 0, 0, time.UTC), *m.Date)
	assert.Equal(t, record.MatchweekStage(2), m.Stage)

	require.True(t, m.HasExpected)
	require.NotNil(t, m.Home.XG)
	require.NotNil(t, m.Away.XG)
	assert.InDelta(t, 1.9, *m.Home.XG, 1e-9)
	assert.InDelta(t, 0.8, *m.Away.XG, 1e-9)
	require.NotNil(t, m.Home.NPXG)
	assert.InDelta(t, 1.1, *m.Home.NPXG, 1e-9)
	require.NotNil(t, m.Away.XAG)
	assert.InDelta(t, 0.3, *m.Away.XAG, 1e-9)
	require.NotNil(t, m.Home.Assists)
	assert.Equal(t, 1, *m.Home.Assists)
	require.NotNil(t, m.Away.Assists)
	assert.Equal(t, 0, *m.Away.Assists)

	require.NotNil(t, m.Home.Formation)
	assert.Equal(t, "3-4-2-1", *m.Home.Formation)
	require.NotNil(t, m.Away.Formation)
	assert.Equal(t, "4-3-3", *m.Away.Formation)

	summary := m.Home.Tables.Summary
	require.NotNil(t, summary)
	assert.Equal(t, 4, summary.Len())
	assert.Equal(t, []string{"e5f6a7b8", "c9d0e1f2", "a1b2c3d4", ""}, summary.IDs())
	require.NotNil(t, m.Home.Tables.Goalkeeping)
	assert.Nil(t, m.Away.Tables.Goalkeeping)
	assert.Nil(t, m.Home.Tables.Passing)

	lineup := m.Home.Tables.Lineup
	require.NotNil(t, lineup)
	assert.Equal(t, []string{"#", "Player", "ID"}, lineup.Header())
	assert.Equal(t, []string{"a1b2c3d4", "e5f6a7b8", "c9d0e1f2", "", "aa11bb22"}, lineup.IDs())

	require.NotNil(t, m.Shots.All)
	assert.Equal(t, 4, m.Shots.All.Len())
	assert.Equal(t, []string{"e5f6a7b8", "c9d0e1f2", "9a8b7c6d", "e5f6a7b8"}, m.Shots.All.IDs())
	require.NotNil(t, m.Shots.Home)
	assert.Equal(t, 3, m.Shots.Home.Len())
	assert.Nil(t, m.Shots.Away)
}

func TestAssembleMatchWithoutExpectedStats(t *testing.T) {
	t.Parallel()

	doc, err := table.Load(`<html><body><div id="content">
		<div class="scorebox">
			<div itemprop="performer"><a href="/en/squads/aaa/Home-Stats">Home</a></div>
			<div class="score">Awarded</div>
			<div itemprop="performer"><a href="/en/squads/bbb/Away-Stats">Away</a></div>
			<div class="score">Awarded</div>
		</div>
		<div id="div_stats_aaa_summary"><table>
			<thead><tr><th>Player</th><th>Gls</th><th>Ast</th></tr></thead>
			<tbody><tr><th data-stat="player"><a href="/en/players/p1/A">A</a></th><td>1</td><td>2</td></tr></tbody>
			<tfoot><tr><th data-stat="player">1 Player</th><td>1</td><td>2</td></tr></tfoot>
		</table></div>
	</div></body></html>`)
	require.NoError(t, err)

	m, err := AssembleMatch("https://fbref.com/en/matches/x", doc)
	require.NoError(t, err)
	assert.False(t, m.HasExpected)
	assert.Nil(t, m.Home.XG)
	assert.Nil(t, m.Away.XG)
	assert.Nil(t, m.Home.Goals)
	assert.Nil(t, m.Away.Goals)
	assert.Nil(t, m.Date)
	assert.Equal(t, record.StageNone, m.Stage.Kind)
	assert.Nil(t, m.Home.Assists, "flat summary has no Performance group")
}

func TestAssembleMatchExpectedStatsOnBothSidesOrNeither(t *testing.T) {
	t.Parallel()

	raw, err := os.ReadFile(filepath.Join("testdata", "match.html"))
	require.NoError(t, err)
	page := string(raw)

	cases := map[string]string{
		"blank away totals": strings.Replace(page,
			"<td>0.8</td><td>0.8</td><td>0.3</td></tr>",
			"<td></td><td></td><td></td></tr>", 1),
		"missing away summary": strings.Replace(page,
			`id="div_stats_d8b46897_summary"`, `id="div_stats_d8b46897_removed"`, 1),
	}
	for name, markup := range cases {
		t.Run(name, func(t *testing.T) {
			require.NotEqual(t, page, markup)
			doc, err := table.Load(markup)
			require.NoError(t, err)

			m, err := AssembleMatch(matchURL, doc)
			require.Error(t, err)
			assert.True(t, crerr.Is(err, scrapeerr.ErrData))
			assert.Contains(t, err.Error(), "away")
			assert.Nil(t, m)
		})
	}
}

func TestAssembleMatchRequiresBothTeams(t *testing.T) {
	t.Parallel()

	doc, err := table.Load(`<html><body>
		<div itemprop="performer"><a href="/en/squads/aaa/Home-Stats">Home</a></div>
	</body></html>`)
	require.NoError(t, err)

	_, err = AssembleMatch("https://fbref.com/en/matches/x", doc)
	require.True(t, crerr.Is(err, scrapeerr.ErrStructural))
}

func TestAssembleMatchRejectsDuplicatedSubTable(t *testing.T) {
	t.Parallel()

	doc, err := table.Load(`<html><body>
		<div itemprop="performer"><a href="/en/squads/aaa/Home-Stats">Home</a></div>
		<div itemprop="performer"><a href="/en/squads/bbb/Away-Stats">Away</a></div>
		<div id="div_stats_aaa_misc"><table><tr><td>1</td></tr></table></div>
		<div id="div_stats_aaa_misc"><table><tr><td>2</td></tr></table></div>
	</body></html>`)
	require.NoError(t, err)

	_, err = AssembleMatch("https://fbref.com/en/matches/x", doc)
	require.True(t, crerr.Is(err, scrapeerr.ErrStructural))
}

func TestValidSeasonsAndMatchLinks(t *testing.T) {
	t.Parallel()

	s, _ := newTestScraper()
	ctx := context.Background()

	seasons, err := s.ValidSeasons(ctx, "MLS")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"2024": testBase + "/en/comps/22/2024/2024-Major-League-Soccer-Stats",
		"2023": testBase + "/en/comps/22/2023/2023-Major-League-Soccer-Stats",
	}, seasons)

	links, err := s.MatchLinks(ctx, "2024", "MLS")
	require.NoError(t, err)
	assert.Equal(t, []string{
		matchURL,
		testBase + "/en/matches/4e5f6a7b/Inter-Miami-Real-Salt-Lake-February-21-2024-Major-League-Soccer",
	}, links)
}

func TestScrapeStatsAlignsIDsAfterHeaderRemoval(t *testing.T) {
	t.Parallel()

	s, _ := newTestScraper()
	squad, opponent, player, err := s.ScrapeStats(context.Background(), "2024", "MLS", "shooting")
	require.NoError(t, err)

	require.NotNil(t, squad)
	assert.Equal(t, []string{"529ba333", "d8b46897"}, squad.IDs())
	xg, ok := squad.Get(0, "Expected", "xG").AsFloat()
	require.True(t, ok)
	assert.InDelta(t, 61.3, xg, 1e-9)

	require.NotNil(t, opponent)
	assert.Equal(t, "vs LA Galaxy", opponent.Get(1, "", "Squad").String())
	assert.Equal(t, []string{"529ba333", "d8b46897"}, opponent.IDs())

	require.NotNil(t, player)
	assert.Equal(t, 3, player.Len())
	assert.Equal(t, []string{"e5f6a7b8", "c9d0e1f2", "9a8b7c6d"}, player.IDs())
	assert.Equal(t, "Joseph Paintsil", player.Get(2, "", "Player").String())
}

func TestScrapeStatsMissingCategory(t *testing.T) {
	t.Parallel()

	s, _ := newTestScraper()
	squad, opponent, player, err := s.ScrapeStats(context.Background(), "2024", "MLS", "advanced goalkeeping")
	require.NoError(t, err)
	assert.Nil(t, squad)
	assert.Nil(t, opponent)
	assert.Nil(t, player)
}

func TestCatalogErrorsBeforeNetwork(t *testing.T) {
	t.Parallel()

	s, f := newTestScraper()
	ctx := context.Background()

	_, _, _, err := s.ScrapeStats(ctx, "2024", "MLS", "vibes")
	require.True(t, crerr.Is(err, scrapeerr.ErrUnknownCategory))

	_, err = s.MatchLinks(ctx, "2024", "Narnia Premier")
	require.True(t, crerr.Is(err, scrapeerr.ErrInvalidLeague))

	_, err = s.ScrapeLeagueTable(ctx, "23-24", "MLS")
	require.True(t, crerr.Is(err, scrapeerr.ErrInvalidSeason))

	_, err = s.ScrapeLeagueTable(ctx, "2023-2025", "EPL")
	require.True(t, crerr.Is(err, scrapeerr.ErrInvalidSeason))

	assert.Equal(t, 0, f.count())

	_, err = s.MatchLinks(ctx, "1990", "MLS")
	require.True(t, crerr.Is(err, scrapeerr.ErrInvalidSeason))
}

func TestScrapeLeagueTable(t *testing.T) {
	t.Parallel()

	s, _ := newTestScraper()
	tables, err := s.ScrapeLeagueTable(context.Background(), "2024", "MLS")
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, []string{"cb8b86a2", "529ba333"}, tables[0].IDs())
	assert.Equal(t, []string{"d8b46897"}, tables[1].IDs())
	pts, ok := tables[1].Get(0, "", "Pts").AsInt()
	require.True(t, ok)
	assert.Equal(t, 64, pts)
}

func TestRetrievalErrorPropagates(t *testing.T) {
	t.Parallel()

	s, _ := newTestScraper()
	_, err := s.ScrapeMatch(context.Background(), testBase+"/en/matches/unknown")
	require.True(t, crerr.Is(err, scrapeerr.ErrRetrieval))
}

func TestURLBuilders(t *testing.T) {
	t.Parallel()

	season := "https://fbref.com/en/comps/9/2023-2024/2023-2024-Premier-League-Stats"
	assert.Equal(t,
		"https://fbref.com/en/comps/9/2023-2024/schedule/2023-2024-Premier-League-Scores-and-Fixtures",
		scheduleURL(season))
	assert.Equal(t,
		"https://fbref.com/en/comps/9/2023-2024/gca/2023-2024-Premier-League-Stats",
		categoryURL(season, Categories["goal and shot creation"]))
}
