// Package fbref scrapes match reports, league tables and season stat
// categories from FBref.
package fbref

import (
	"context"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fortuna/touchline/internal/fetch"
	"github.com/fortuna/touchline/internal/logging"
	"github.com/fortuna/touchline/internal/record"
	"github.com/fortuna/touchline/internal/scrapeerr"
	"github.com/fortuna/touchline/internal/table"
)

var (
	teamIDs   = record.IDSpec{Cell: `[data-stat="team"]`, Segment: 3}
	playerIDs = record.IDSpec{Cell: `[data-stat="player"]`, Segment: 3}
)

// Scraper fetches and assembles FBref pages.
type Scraper struct {
	fetcher fetch.Fetcher
	base    string
	logger  *logging.Logger
}

type Option func(*Scraper)

// WithBaseURL points the scraper at another host, such as a test server.
func WithBaseURL(base string) Option {
	return func(s *Scraper) { s.base = strings.TrimRight(base, "/") }
}

func New(f fetch.Fetcher, opts ...Option) *Scraper {
	s := &Scraper{
		fetcher: f,
		base:    BaseURL,
		logger:  logging.Component("fbref"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scraper) absolute(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return s.base + "/" + strings.TrimLeft(href, "/")
}

// load fetches url and parses it with commented-out tables re-inflated.
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

// ValidSeasons returns season label to season URL for league, read from the
// competition's history page.
func (s *Scraper) ValidSeasons(ctx context.Context, league string) (map[string]string, error) {
	comp, err := lookupLeague(league)
	if err != nil {
		return nil, err
	}

	url := s.absolute("/en/comps/" + strconv.Itoa(comp.ID) + "/history/" + comp.Slug + "-Seasons")
	doc, err := s.load(ctx, url)
	if err != nil {
		return nil, err
	}

	seasons, err := parseSeasons(doc.Selection)
	if err != nil {
		return nil, scrapeerr.AtURL(err, url)
	}
	out := make(map[string]string, len(seasons))
	for label, href := range seasons {
		out[label] = s.absolute(href)
	}
	return out, nil
}

func parseSeasons(root *goquery.Selection) (map[string]string, error) {
	tbl, err := table.One(root, table.ByID("seasons"))
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	tbl.Find(`[data-stat="year_id"] a`).Each(func(_ int, a *goquery.Selection) {
		label := table.CellText(a)
		if href, ok := a.Attr("href"); ok && label != "" {
			out[label] = href
		}
	})
	if len(out) == 0 {
		return nil, scrapeerr.Structural("seasons table links", "at least 1", 0)
	}
	return out, nil
}

// seasonURL validates league and season, syntax first and then against the
// competition history.
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
		return "", scrapeerr.InvalidSeason("fbref", league, season)
	}
	return url, nil
}

// MatchLinks returns the match report URLs of a season in schedule order.
func (s *Scraper) MatchLinks(ctx context.Context, season, league string) ([]string, error) {
	seasonURL, err := s.seasonURL(ctx, season, league)
	if err != nil {
		return nil, err
	}

	url := scheduleURL(seasonURL)
	doc, err := s.load(ctx, url)
	if err != nil {
		return nil, err
	}
	links, err := parseMatchLinks(doc.Selection)
	if err != nil {
		return nil, scrapeerr.AtURL(err, url)
	}
	for i, l := range links {
		links[i] = s.absolute(l)
	}
	s.logger.InfoContext(ctx, "match links", "league", league, "season", season, "count", len(links))
	return links, nil
}

var schedulePattern = regexp.MustCompile(`^sched_`)

func parseMatchLinks(root *goquery.Selection) ([]string, error) {
	tables := table.Select(root, table.Selector{IDPattern: schedulePattern})
	if tables.Length() == 0 {
		return nil, scrapeerr.Structural("table[id^=sched_]", "at least 1 match", 0)
	}

	var links []string
	seen := map[string]bool{}
	tables.Find(`td[data-stat="match_report"] a`).Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		if !strings.Contains(href, "/matches/") || seen[href] {
			return
		}
		seen[href] = true
		links = append(links, href)
	})
	return links, nil
}

// scheduleURL turns a season stats URL into its fixtures URL:
// /en/comps/9/2023-2024/2023-2024-Premier-League-Stats becomes
// /en/comps/9/2023-2024/schedule/2023-2024-Premier-League-Scores-and-Fixtures.
func scheduleURL(seasonURL string) string {
	return insertSegment(seasonURL, "schedule", func(last string) string {
		return strings.TrimSuffix(last, "-Stats") + "-Scores-and-Fixtures"
	})
}

// categoryURL inserts a stat category path before the last segment:
// /en/comps/9/2023-2024/2023-2024-Premier-League-Stats becomes
// /en/comps/9/2023-2024/shooting/2023-2024-Premier-League-Stats.
func categoryURL(seasonURL string, cat Category) string {
	return insertSegment(seasonURL, cat.Path, func(last string) string { return last })
}

func insertSegment(raw, segment string, rename func(string) string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	dir, last := path.Split(strings.TrimRight(u.Path, "/"))
	u.Path = dir + segment + "/" + rename(last)
	return u.String()
}

// ScrapeMatch fetches a match report and assembles it.
func (s *Scraper) ScrapeMatch(ctx context.Context, url string) (*record.MatchRecord, error) {
	doc, err := s.load(ctx, url)
	if err != nil {
		return nil, err
	}
	m, err := AssembleMatch(url, doc)
	if err != nil {
		return nil, scrapeerr.AtURL(err, url)
	}
	s.logger.DebugContext(ctx, "match assembled", "url", url, "home", m.Home.Name, "away", m.Away.Name, "score", m.Score())
	return m, nil
}

// ScrapeStats returns the squad, opponent and player tables of one stat
// category for a season. A table the page does not carry comes back nil;
// a category missing entirely for the competition yields three nils.
func (s *Scraper) ScrapeStats(ctx context.Context, season, league, category string) (squad, opponent, player *record.StatsTable, err error) {
	cat, err := lookupCategory(category)
	if err != nil {
		return nil, nil, nil, err
	}
	seasonURL, err := s.seasonURL(ctx, season, league)
	if err != nil {
		return nil, nil, nil, err
	}

	url := categoryURL(seasonURL, cat)
	doc, err := s.load(ctx, url)
	if err != nil {
		return nil, nil, nil, err
	}
	squad, opponent, player, err = AssembleStatsPage(doc, cat)
	if err != nil {
		return nil, nil, nil, scrapeerr.AtURL(err, url)
	}
	return squad, opponent, player, nil
}

// AssembleStatsPage extracts the three tables of a stat category page.
func AssembleStatsPage(doc *goquery.Document, cat Category) (squad, opponent, player *record.StatsTable, err error) {
	root := doc.Selection

	pick := func(id string, ids record.IDSpec) (*record.StatsTable, error) {
		sel, err := table.Optional(root, table.ByID(id))
		if err != nil {
			return nil, err
		}
		return record.ExtractOptional(sel, table.Options{}, ids)
	}

	if squad, err = pick("stats_squads_"+cat.Key+"_for", teamIDs); err != nil {
		return nil, nil, nil, err
	}
	if opponent, err = pick("stats_squads_"+cat.Key+"_against", teamIDs); err != nil {
		return nil, nil, nil, err
	}
	if player, err = pick("stats_"+cat.Key, playerIDs); err != nil {
		return nil, nil, nil, err
	}
	return squad, opponent, player, nil
}

var leagueTablePattern = regexp.MustCompile(`^results.*_overall$`)

// ScrapeLeagueTable returns the overall standings tables of a season. Most
// leagues have one; split-conference leagues and cup group stages have
// several.
func (s *Scraper) ScrapeLeagueTable(ctx context.Context, season, league string) ([]*record.StatsTable, error) {
	url, err := s.seasonURL(ctx, season, league)
	if err != nil {
		return nil, err
	}
	doc, err := s.load(ctx, url)
	if err != nil {
		return nil, err
	}
	tables, err := AssembleLeagueTables(doc)
	if err != nil {
		return nil, scrapeerr.AtURL(err, url)
	}
	return tables, nil
}

func AssembleLeagueTables(doc *goquery.Document) ([]*record.StatsTable, error) {
	found := table.Select(doc.Selection, table.Selector{IDPattern: leagueTablePattern})
	if found.Length() == 0 {
		return nil, scrapeerr.Structural("table[id~=results.*_overall]", "at least 1 match", 0)
	}

	out := make([]*record.StatsTable, 0, found.Length())
	for i := range found.Length() {
		st, err := record.Extract(found.Eq(i), table.Options{}, teamIDs)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
