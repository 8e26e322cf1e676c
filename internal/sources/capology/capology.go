// Package capology scrapes player salary tables from Capology.
package capology

import (
	"context"
	"maps"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/fetch"
	"github.com/fortuna/touchline/internal/logging"
	"github.com/fortuna/touchline/internal/record"
	"github.com/fortuna/touchline/internal/scrapeerr"
	"github.com/fortuna/touchline/internal/table"
)

const BaseURL = "https://www.capology.com"

// Leagues maps league names to the country/league path of their salary
// pages.
var Leagues = map[string]string{
	"EPL":           "uk/premier-league",
	"Bundesliga":    "de/1-bundesliga",
	"Serie A":       "it/serie-a",
	"La Liga":       "es/la-liga",
	"Ligue 1":       "fr/ligue-1",
	"Primeira Liga": "pt/primeira-liga",
	"Eredivisie":    "ne/eredivisie",
	"MLS":           "us/mls",
}

// Currencies are the display currencies the salary table can switch to.
var Currencies = []string{"eur", "gbp", "usd"}

var (
	seasonPattern = regexp.MustCompile(`^(\d{4})-(\d{4})$`)
	salaryTable   = table.ByID("table")
	playerIDs     = record.IDSpec{Cell: `td:has(a[href*="/player/"])`, Segment: 2}

	// Only the first column of each header group carries its label.
	tableOptions = table.Options{ForwardFillGroups: true, DropEmptyRows: true}
)

const (
	grossGroupPrefix = "Gross"
	allRowsToggle    = "div.page-list button.dropdown-toggle"
	allRowsOption    = `div.page-list a.dropdown-item[data-value="all"]`
)

type Scraper struct {
	fetcher  fetch.Fetcher
	renderer fetch.Renderer
	base     string
	logger   *logging.Logger
}

type Option func(*Scraper)

func WithBaseURL(base string) Option {
	return func(s *Scraper) { s.base = strings.TrimRight(base, "/") }
}

func New(f fetch.Fetcher, r fetch.Renderer, opts ...Option) *Scraper {
	s := &Scraper{
		fetcher:  f,
		renderer: r,
		base:     BaseURL,
		logger:   logging.Component("capology"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func lookupLeague(league string) (string, error) {
	path, ok := Leagues[league]
	if !ok {
		return "", scrapeerr.InvalidLeague("capology", league, slices.Collect(maps.Keys(Leagues)))
	}
	return path, nil
}

func checkCurrency(currency string) error {
	if slices.Contains(Currencies, currency) {
		return nil
	}
	err := crerr.Mark(crerr.Newf("capology currency %q", currency), scrapeerr.ErrUnknownCategory)
	return crerr.WithHintf(err, "valid currencies: %s", strings.Join(Currencies, ", "))
}

func checkSeason(league, season string) error {
	m := seasonPattern.FindStringSubmatch(season)
	if m == nil {
		return scrapeerr.InvalidSeason("capology", league, season)
	}
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[2])
	if end != start+1 {
		return scrapeerr.InvalidSeason("capology", league, season)
	}
	return nil
}

// ValidSeasons returns season label to salary page URL, read from the
// season picker of the league's salary page.
func (s *Scraper) ValidSeasons(ctx context.Context, league string) (map[string]string, error) {
	path, err := lookupLeague(league)
	if err != nil {
		return nil, err
	}
	url := s.base + "/" + path + "/salaries/"
	page, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := table.Load(page.Text())
	if err != nil {
		return nil, scrapeerr.AtURL(err, url)
	}

	out := map[string]string{}
	doc.Find("select#nav-seasons option").Each(func(_ int, opt *goquery.Selection) {
		label := table.CellText(opt)
		href := opt.AttrOr("value", "")
		if label == "" || href == "" {
			return
		}
		if !strings.HasPrefix(href, "http") {
			href = s.base + "/" + strings.TrimLeft(href, "/")
		}
		out[label] = href
	})
	if len(out) == 0 {
		return nil, scrapeerr.AtURL(scrapeerr.Structural("select#nav-seasons option", "at least 1", 0), url)
	}
	return out, nil
}

// ScrapeSalaries renders a league's salary page in the requested currency
// with every row shown, and returns the table with salary columns as whole
// currency units.
func (s *Scraper) ScrapeSalaries(ctx context.Context, season, league, currency string) (*record.StatsTable, error) {
	if _, err := lookupLeague(league); err != nil {
		return nil, err
	}
	if err := checkCurrency(currency); err != nil {
		return nil, err
	}
	if err := checkSeason(league, season); err != nil {
		return nil, err
	}
	seasons, err := s.ValidSeasons(ctx, league)
	if err != nil {
		return nil, err
	}
	url, ok := seasons[season]
	if !ok {
		return nil, scrapeerr.InvalidSeason("capology", league, season)
	}

	page, err := s.renderer.Render(ctx, url,
		fetch.WaitVisible{Selector: "table#table"},
		fetch.Click{Selector: "#btn_" + currency},
		fetch.Click{Selector: allRowsToggle},
		fetch.Click{Selector: allRowsOption},
	)
	if err != nil {
		return nil, err
	}
	doc, err := table.Load(page.Text())
	if err != nil {
		return nil, scrapeerr.AtURL(err, url)
	}
	st, err := AssembleSalaries(doc)
	if err != nil {
		return nil, scrapeerr.AtURL(err, url)
	}
	s.logger.InfoContext(ctx, "salaries", "league", league, "season", season, "currency", currency, "players", st.Len())
	return st, nil
}

// AssembleSalaries extracts the salary table and rewrites the cells of the
// Gross columns ("£ 1,040,000") as integers.
func AssembleSalaries(doc *goquery.Document) (*record.StatsTable, error) {
	sel, err := table.One(doc.Selection, salaryTable)
	if err != nil {
		return nil, err
	}
	st, err := record.Extract(sel, tableOptions, playerIDs)
	if err != nil {
		return nil, err
	}
	for col, c := range st.Schema {
		if !strings.HasPrefix(c.Group, grossGroupPrefix) {
			continue
		}
		for _, row := range st.Rows {
			v, err := money(c, row[col])
			if err != nil {
				return nil, err
			}
			row[col] = v
		}
	}
	return st, nil
}

// money parses a gross amount such as "€ 1,234.56", rounded to whole
// currency units.
func money(c table.Column, v record.Value) (record.Value, error) {
	if v.Kind != record.String {
		return v, nil
	}
	amount := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '.' {
			return r
		}
		if r == ',' || unicode.IsSpace(r) || unicode.Is(unicode.Sc, r) {
			return -1
		}
		return 'x'
	}, v.Str)
	if amount == "" {
		return record.NullValue(), nil
	}
	f, err := strconv.ParseFloat(amount, 64)
	if err != nil || math.IsInf(f, 0) {
		return v, scrapeerr.Data(c.String(), v.Str, "not a currency amount")
	}
	return record.IntValue(int64(math.Round(f))), nil
}
