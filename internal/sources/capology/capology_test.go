package capology

import (
	"context"
	"testing"

	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/fetch"
	"github.com/fortuna/touchline/internal/record"
	"github.com/fortuna/touchline/internal/scrapeerr"
	"github.com/fortuna/touchline/internal/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base = "https://capology.test"

const landing = `<html><body>
<select id="nav-seasons">
  <option value="/uk/premier-league/salaries/2023-2024/">2023-2024</option>
  <option value="/uk/premier-league/salaries/2022-2023/">2022-2023</option>
</select>
</body></html>`

const salaries = `<html><body>
<table id="table">
  <thead>
    <tr><th></th><th>Gross (GBP)</th><th></th><th>Contract</th><th></th><th>Bio</th><th></th></tr>
    <tr><th>Player</th><th>Weekly</th><th>Annual</th><th>Expiration</th><th>Length</th><th>Position</th><th>Age</th></tr>
  </thead>
  <tbody>
    <tr><td><a href="/player/erling-haaland-39071/">Erling Haaland</a></td><td>£ 375,000</td><td>£ 19,500,000</td><td>2027</td><td>5</td><td>F</td><td>23</td></tr>
    <tr><td></td><td></td><td></td><td></td><td></td><td></td><td></td></tr>
    <tr><td><a href="/player/rodri-24713/">Rodri</a></td><td>£ 220,000</td><td></td><td>2027</td><td>5</td><td>M</td><td>27</td></tr>
  </tbody>
</table>
</body></html>`

type fakeRenderer struct {
	url          string
	interactions []fetch.Interaction
}

func (r *fakeRenderer) Render(_ context.Context, url string, interactions ...fetch.Interaction) (fetch.RawPage, error) {
	r.url = url
	r.interactions = interactions
	return fetch.RawPage{URL: url, Content: []byte(salaries)}, nil
}

func (r *fakeRenderer) Reset() error { return nil }

func newTestScraper() (*Scraper, *fakeRenderer) {
	f := fetch.FetcherFunc(func(_ context.Context, url string) (fetch.RawPage, error) {
		if url == base+"/uk/premier-league/salaries/" {
			return fetch.RawPage{URL: url, Content: []byte(landing)}, nil
		}
		return fetch.RawPage{}, scrapeerr.Retrieval(url, 404, nil)
	})
	r := &fakeRenderer{}
	return New(f, r, WithBaseURL(base)), r
}

func TestScrapeSalaries(t *testing.T) {
	t.Parallel()

	s, r := newTestScraper()
	st, err := s.ScrapeSalaries(context.Background(), "2023-2024", "EPL", "gbp")
	require.NoError(t, err)

	assert.Equal(t, base+"/uk/premier-league/salaries/2023-2024/", r.url)
	assert.Equal(t, []fetch.Interaction{
		fetch.WaitVisible{Selector: "table#table"},
		fetch.Click{Selector: "#btn_gbp"},
		fetch.Click{Selector: allRowsToggle},
		fetch.Click{Selector: allRowsOption},
	}, r.interactions)

	assert.Equal(t, table.Schema{
		{Name: "Player"},
		{Group: "Gross (GBP)", Name: "Weekly"},
		{Group: "Gross (GBP)", Name: "Annual"},
		{Group: "Contract", Name: "Expiration"},
		{Group: "Contract", Name: "Length"},
		{Group: "Bio", Name: "Position"},
		{Group: "Bio", Name: "Age"},
		{Name: record.IDColumn},
	}, st.Schema)

	require.Equal(t, 2, st.Len())
	assert.Equal(t, []string{"erling-haaland-39071", "rodri-24713"}, st.IDs())
	assert.Equal(t, record.IntValue(375000), st.Get(0, "Gross (GBP)", "Weekly"))
	assert.Equal(t, record.IntValue(19500000), st.Get(0, "Gross (GBP)", "Annual"))
	assert.True(t, st.Get(1, "Gross (GBP)", "Annual").IsNull())
	assert.Equal(t, record.IntValue(27), st.Get(1, "Bio", "Age"))
}

func TestScrapeSalariesCatalogErrors(t *testing.T) {
	t.Parallel()

	s, r := newTestScraper()
	ctx := context.Background()

	_, err := s.ScrapeSalaries(ctx, "2023-2024", "Allsvenskan", "gbp")
	assert.True(t, crerr.Is(err, scrapeerr.ErrInvalidLeague))

	_, err = s.ScrapeSalaries(ctx, "2023-2024", "EPL", "jpy")
	assert.True(t, crerr.Is(err, scrapeerr.ErrUnknownCategory))

	_, err = s.ScrapeSalaries(ctx, "2023", "EPL", "eur")
	assert.True(t, crerr.Is(err, scrapeerr.ErrInvalidSeason))

	_, err = s.ScrapeSalaries(ctx, "2010-2011", "EPL", "eur")
	assert.True(t, crerr.Is(err, scrapeerr.ErrInvalidSeason))

	assert.Empty(t, r.url)
}

func TestMoney(t *testing.T) {
	t.Parallel()

	col := table.Column{Group: "Gross (EUR)", Name: "Weekly"}

	v, err := money(col, record.StringValue("€ 1,040,000"))
	require.NoError(t, err)
	assert.Equal(t, record.IntValue(1040000), v)

	v, err = money(col, record.IntValue(12))
	require.NoError(t, err)
	assert.Equal(t, record.IntValue(12), v)

	_, err = money(col, record.StringValue("£ 1m"))
	assert.True(t, crerr.Is(err, scrapeerr.ErrData))
}

func TestMoneyKeepsDecimalSeparator(t *testing.T) {
	t.Parallel()

	col := table.Column{Group: "Gross (EUR)", Name: "Weekly"}

	v, err := money(col, record.StringValue("€ 1,234.56"))
	require.NoError(t, err)
	assert.Equal(t, record.IntValue(1235), v)

	v, err = money(col, record.StringValue("£ 19,500.00"))
	require.NoError(t, err)
	assert.Equal(t, record.IntValue(19500), v)

	_, err = money(col, record.StringValue("€ 1.234.56"))
	assert.True(t, crerr.Is(err, scrapeerr.ErrData))
}
