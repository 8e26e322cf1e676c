// Package understat scrapes league tables and match lists from Understat.
//
// The league table is built by JavaScript and needs a rendered page; match
// lists are read from the JSON the league page embeds for its scripts.
package understat

import (
	"context"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/fetch"
	"github.com/fortuna/touchline/internal/logging"
	"github.com/fortuna/touchline/internal/record"
	"github.com/fortuna/touchline/internal/scrapeerr"
	"github.com/fortuna/touchline/internal/table"
)

const BaseURL = "https://understat.com"

// Leagues maps league names to the slugs Understat uses in URLs.
var Leagues = map[string]string{
	"EPL":        "EPL",
	"La Liga":    "La_liga",
	"Bundesliga": "Bundesliga",
	"Serie A":    "Serie_A",
	"Ligue 1":    "Ligue_1",
	"RFPL":       "RFPL",
}

var (
	seasonPattern = regexp.MustCompile(`^(\d{4})/(\d{4})$`)
	datesPattern  = regexp.MustCompile(`datesData\s*=\s*JSON\.parse\('([^']*)'\)`)

	// The xG columns show "64.37+5.37": expected value, then the gap to
	// the actual result.
	tableOptions = table.Options{Differential: []string{"xG", "xGA", "xPTS"}}
	teamIDs      = record.IDSpec{Cell: "td:has(a)", Segment: 1}
	leagueTable  = table.Selector{Element: "div", Class: "chemp"}
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

// New returns a scraper that reads embedded data through f and renders
// league tables through r.
func New(f fetch.Fetcher, r fetch.Renderer, opts ...Option) *Scraper {
	s := &Scraper{
		fetcher:  f,
		renderer: r,
		base:     BaseURL,
		logger:   logging.Component("understat"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func lookupLeague(league string) (string, error) {
	slug, ok := Leagues[league]
	if !ok {
		return "", scrapeerr.InvalidLeague("understat", league, slices.Collect(maps.Keys(Leagues)))
	}
	return slug, nil
}

func checkSeason(league, season string) error {
	m := seasonPattern.FindStringSubmatch(season)
	if m == nil {
		return scrapeerr.InvalidSeason("understat", league, season)
	}
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[2])
	if end != start+1 {
		return scrapeerr.InvalidSeason("understat", league, season)
	}
	return nil
}

func (s *Scraper) load(ctx context.Context, url string) (*goquery.Document, error) {
	page, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := table.Load(page.Text())
	if err != nil {
		return nil, scrapeerr.AtURL(err, url)
	}
	return doc, nil
}

// ValidSeasons returns season label ("2023/2024") to league page URL, read
// from the season picker of the league page.
func (s *Scraper) ValidSeasons(ctx context.Context, league string) (map[string]string, error) {
	slug, err := lookupLeague(league)
	if err != nil {
		return nil, err
	}
	url := s.base + "/league/" + slug
	doc, err := s.load(ctx, url)
	if err != nil {
		return nil, err
	}

	out := map[string]string{}
	doc.Find(`select[name="season"] option`).Each(func(_ int, opt *goquery.Selection) {
		year := opt.AttrOr("value", "")
		label := table.CellText(opt)
		if year != "" && label != "" {
			out[label] = s.base + "/league/" + slug + "/" + year
		}
	})
	if len(out) == 0 {
		return nil, scrapeerr.AtURL(scrapeerr.Structural(`select[name="season"] option`, "at least 1", 0), url)
	}
	return out, nil
}

func (s *Scraper) seasonURL(ctx context.Context, season, league string) (string, error) {
	if _, err := lookupLeague(league); err != nil {
		return "", err
	}
	if err := checkSeason(league, season); err != nil {
		return "", err
	}
	seasons, err := s.ValidSeasons(ctx, league)
	if err != nil {
		return "", err
	}
	url, ok := seasons[season]
	if !ok {
		return "", scrapeerr.InvalidSeason("understat", league, season)
	}
	return url, nil
}

// ScrapeLeagueTable renders the league page and returns its standings with
// the xG family reduced to expected values and an ID column of team slugs.
func (s *Scraper) ScrapeLeagueTable(ctx context.Context, season, league string) (*record.StatsTable, error) {
	url, err := s.seasonURL(ctx, season, league)
	if err != nil {
		return nil, err
	}
	page, err := s.renderer.Render(ctx, url, fetch.WaitVisible{Selector: "div.chemp table"})
	if err != nil {
		return nil, err
	}
	doc, err := table.Load(page.Text())
	if err != nil {
		return nil, scrapeerr.AtURL(err, url)
	}
	st, err := AssembleLeagueTable(doc)
	if err != nil {
		return nil, scrapeerr.AtURL(err, url)
	}
	return st, nil
}

func AssembleLeagueTable(doc *goquery.Document) (*record.StatsTable, error) {
	sel, err := table.One(doc.Selection, leagueTable)
	if err != nil {
		return nil, err
	}
	return record.Extract(sel, tableOptions, teamIDs)
}

type matchEntry struct {
	ID       string `json:"id"`
	IsResult bool   `json:"isResult"`
}

// MatchLinks returns the URLs of the season's played matches, in the order
// the league page lists them.
func (s *Scraper) MatchLinks(ctx context.Context, season, league string) ([]string, error) {
	url, err := s.seasonURL(ctx, season, league)
	if err != nil {
		return nil, err
	}
	page, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	ids, err := playedMatchIDs(page.Text())
	if err != nil {
		return nil, scrapeerr.AtURL(err, url)
	}
	links := make([]string, len(ids))
	for i, id := range ids {
		links[i] = s.base + "/match/" + id
	}
	s.logger.InfoContext(ctx, "match links", "league", league, "season", season, "count", len(links))
	return links, nil
}

func playedMatchIDs(markup string) ([]string, error) {
	m := datesPattern.FindStringSubmatch(markup)
	if m == nil {
		return nil, scrapeerr.Structural("datesData script", "1 JSON.parse literal", 0)
	}
	raw, err := unescapeJS(m[1])
	if err != nil {
		return nil, err
	}

	var entries []matchEntry
	if err := sonic.UnmarshalString(raw, &entries); err != nil {
		return nil, crerr.Mark(crerr.Wrap(err, "decode datesData"), scrapeerr.ErrData)
	}
	var ids []string
	for _, e := range entries {
		if e.IsResult && e.ID != "" {
			ids = append(ids, e.ID)
		}
	}
	return ids, nil
}

// unescapeJS decodes the \xHH and backslash escapes of a single-quoted
// JavaScript string literal.
func unescapeJS(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			return "", scrapeerr.Data("datesData", s, "dangling escape")
		}
		i++
		switch s[i] {
		case 'x':
			if i+2 >= len(s) {
				return "", scrapeerr.Data("datesData", s, "short \\x escape")
			}
			n, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				return "", scrapeerr.Data("datesData", s[i-1:i+3], "bad \\x escape")
			}
			b.WriteByte(byte(n))
			i += 2
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String(), nil
}
