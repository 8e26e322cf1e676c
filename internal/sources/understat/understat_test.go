package understat

import (
	"context"
	"testing"

	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/fetch"
	"github.com/fortuna/touchline/internal/scrapeerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base = "https://understat.test"

const leaguePage = `<html><body>
<select name="season">
  <option value="2023" selected>2023/2024</option>
  <option value="2022">2022/2023</option>
</select>
<script>
  var datesData = JSON.parse('\x5B\x7B\x22id\x22\x3A\x2222000\x22,\x22isResult\x22\x3Atrue\x7D,\x7B\x22id\x22\x3A\x2222001\x22,\x22isResult\x22\x3Atrue\x7D,\x7B\x22id\x22\x3A\x2222002\x22,\x22isResult\x22\x3Afalse\x7D\x5D');
</script>
</body></html>`

const renderedTable = `<html><body>
<div class="chemp margin-top jTable">
<table>
  <thead><tr><th>№</th><th>Team</th><th>M</th><th>W</th><th>PTS</th><th>xG</th><th>xGA</th><th>xPTS</th></tr></thead>
  <tbody>
    <tr><td>1</td><td><a href="team/Manchester_City/2023">Manchester City</a></td><td>38</td><td>28</td><td>91</td><td>84.39<sup>-11.61</sup></td><td>33.35<sup>-0.65</sup></td><td>81.03-9.97</td></tr>
    <tr><td>2</td><td><a href="team/Arsenal/2023">Arsenal</a></td><td>38</td><td>28</td><td>89</td><td>76.18-14.82</td><td>28.52+1.52</td><td>80.41<sup>-8.59</sup></td></tr>
  </tbody>
</table>
</div>
</body></html>`

type fakeRenderer struct {
	url          string
	interactions []fetch.Interaction
	body         string
}

func (r *fakeRenderer) Render(_ context.Context, url string, interactions ...fetch.Interaction) (fetch.RawPage, error) {
	r.url = url
	r.interactions = interactions
	return fetch.RawPage{URL: url, Content: []byte(r.body)}, nil
}

func (r *fakeRenderer) Reset() error { return nil }

func newTestScraper(t *testing.T) (*Scraper, *fakeRenderer, *int) {
	t.Helper()
	calls := 0
	f := fetch.FetcherFunc(func(_ context.Context, url string) (fetch.RawPage, error) {
		calls++
		switch url {
		case base + "/league/EPL", base + "/league/EPL/2023":
			return fetch.RawPage{URL: url, Content: []byte(leaguePage)}, nil
		}
		return fetch.RawPage{}, scrapeerr.Retrieval(url, 404, nil)
	})
	r := &fakeRenderer{body: renderedTable}
	return New(f, r, WithBaseURL(base)), r, &calls
}

func TestValidSeasons(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestScraper(t)
	seasons, err := s.ValidSeasons(context.Background(), "EPL")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"2023/2024": base + "/league/EPL/2023",
		"2022/2023": base + "/league/EPL/2022",
	}, seasons)
}

func TestLeagueTableStripsDifferentials(t *testing.T) {
	t.Parallel()

	s, r, _ := newTestScraper(t)
	st, err := s.ScrapeLeagueTable(context.Background(), "2023/2024", "EPL")
	require.NoError(t, err)

	assert.Equal(t, base+"/league/EPL/2023", r.url)
	require.Len(t, r.interactions, 1)
	assert.Equal(t, fetch.WaitVisible{Selector: "div.chemp table"}, r.interactions[0])

	require.Equal(t, 2, st.Len())
	assert.Equal(t, []string{"Manchester_City", "Arsenal"}, st.IDs())

	xg, ok := st.Get(0, "", "xG").AsFloat()
	require.True(t, ok)
	assert.InDelta(t, 84.39, xg, 1e-9)
	xga, ok := st.Get(1, "", "xGA").AsFloat()
	require.True(t, ok)
	assert.InDelta(t, 28.52, xga, 1e-9)
	xpts, ok := st.Get(1, "", "xPTS").AsFloat()
	require.True(t, ok)
	assert.InDelta(t, 80.41, xpts, 1e-9)

	pts, ok := st.Get(1, "", "PTS").AsInt()
	require.True(t, ok)
	assert.Equal(t, 89, pts)
}

func TestMatchLinksFromEmbeddedJSON(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestScraper(t)
	links, err := s.MatchLinks(context.Background(), "2023/2024", "EPL")
	require.NoError(t, err)
	assert.Equal(t, []string{base + "/match/22000", base + "/match/22001"}, links)
}

func TestCatalogErrorsBeforeNetwork(t *testing.T) {
	t.Parallel()

	s, _, calls := newTestScraper(t)
	ctx := context.Background()

	_, err := s.MatchLinks(ctx, "2023/2024", "Eredivisie")
	assert.True(t, crerr.Is(err, scrapeerr.ErrInvalidLeague))

	_, err = s.ScrapeLeagueTable(ctx, "2023", "EPL")
	assert.True(t, crerr.Is(err, scrapeerr.ErrInvalidSeason))

	_, err = s.ScrapeLeagueTable(ctx, "2023/2025", "EPL")
	assert.True(t, crerr.Is(err, scrapeerr.ErrInvalidSeason))
	assert.Equal(t, 0, *calls)

	_, err = s.ScrapeLeagueTable(ctx, "2014/2015", "EPL")
	assert.True(t, crerr.Is(err, scrapeerr.ErrInvalidSeason))
}

func TestPlayedMatchIDsWithoutScript(t *testing.T) {
	t.Parallel()

	_, err := playedMatchIDs(`<html><script>var teamsData = {}</script></html>`)
	assert.True(t, crerr.Is(err, scrapeerr.ErrStructural))
}

func TestUnescapeJS(t *testing.T) {
	t.Parallel()

	got, err := unescapeJS(`\x5B\x22a\\b\x22\x5D`)
	require.NoError(t, err)
	assert.Equal(t, `["a\b"]`, got)

	_, err = unescapeJS(`\x5`)
	assert.True(t, crerr.Is(err, scrapeerr.ErrData))

	_, err = unescapeJS(`\xZZ`)
	assert.True(t, crerr.Is(err, scrapeerr.ErrData))
}
