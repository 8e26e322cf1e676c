// Package oddsportal scrapes result listings and 1X2 bookmaker odds from
// OddsPortal. Every page is rendered: listings and odds are filled in by
// scripts after load.
package oddsportal

import (
	"context"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/fetch"
	"github.com/fortuna/touchline/internal/logging"
	"github.com/fortuna/touchline/internal/record"
	"github.com/fortuna/touchline/internal/scrapeerr"
	"github.com/fortuna/touchline/internal/table"
)

const BaseURL = "https://www.oddsportal.com"

// Leagues maps league names to their country/league path.
var Leagues = map[string]string{
	"EPL":        "england/premier-league",
	"La Liga":    "spain/laliga",
	"Bundesliga": "germany/bundesliga",
	"Serie A":    "italy/serie-a",
	"Ligue 1":    "france/ligue-1",
	"MLS":        "usa/mls",
}

// OddsHeader is the schema of a scraped odds table before the ID column.
var OddsHeader = []string{"Bookmaker", "1", "X", "2", "Payout"}

var (
	seasonPattern = regexp.MustCompile(`^(\d{4})(?:-(\d{4}))?$`)
	matchHref     = regexp.MustCompile(`^/football/[^/]+/[^/]+/[^/]+-[A-Za-z0-9]{8}/?$`)

	listScroll = fetch.Scroll{Times: 3}
)

const (
	eventLinks     = "div.eventRow a[href]"
	paginationLink = "a.pagination-link[data-number]"
	bookmakerRow   = "div.bookmaker-row"
	hostName       = `div[data-testid="game-host"] p`
	guestName      = `div[data-testid="game-guest"] p`
)

// MatchOdds is the 1X2 market of one match.
type MatchOdds struct {
	URL  string `json:"url"`
	Home string `json:"home"`
	Away string `json:"away"`
	// Odds has one row per bookmaker; the ID column holds the bookmaker
	// slug.
	Odds *record.StatsTable `json:"odds"`
}

type Scraper struct {
	renderer fetch.Renderer
	base     string
	logger   *logging.Logger
}

type Option func(*Scraper)

func WithBaseURL(base string) Option {
	return func(s *Scraper) { s.base = strings.TrimRight(base, "/") }
}

func New(r fetch.Renderer, opts ...Option) *Scraper {
	s := &Scraper{
		renderer: r,
		base:     BaseURL,
		logger:   logging.Component("oddsportal"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// resultsURL validates league and season and returns the season's results
// listing. OddsPortal has no season index to check against, so only the
// label shape is validated.
func (s *Scraper) resultsURL(season, league string) (string, error) {
	path, ok := Leagues[league]
	if !ok {
		return "", scrapeerr.InvalidLeague("oddsportal", league, slices.Collect(maps.Keys(Leagues)))
	}
	m := seasonPattern.FindStringSubmatch(season)
	if m == nil {
		return "", scrapeerr.InvalidSeason("oddsportal", league, season)
	}
	if m[2] != "" {
		start, _ := strconv.Atoi(m[1])
		end, _ := strconv.Atoi(m[2])
		if end != start+1 {
			return "", scrapeerr.InvalidSeason("oddsportal", league, season)
		}
	}
	return s.base + "/football/" + path + "-" + season + "/results/", nil
}

// render retries once on a fresh browser session when the first attempt
// fails without an HTTP status.
func (s *Scraper) render(ctx context.Context, url string, interactions ...fetch.Interaction) (*goquery.Document, error) {
	page, err := s.renderer.Render(ctx, url, interactions...)
	if err != nil && sessionFailure(ctx, err) {
		s.logger.WarnContext(ctx, "resetting browser session", "url", url, "error", err)
		if rerr := s.renderer.Reset(); rerr != nil {
			return nil, crerr.CombineErrors(err, rerr)
		}
		page, err = s.renderer.Render(ctx, url, interactions...)
	}
	if err != nil {
		return nil, err
	}
	doc, err := table.Load(page.Text())
	if err != nil {
		return nil, scrapeerr.AtURL(err, url)
	}
	return doc, nil
}

func sessionFailure(ctx context.Context, err error) bool {
	var re *scrapeerr.RetrievalError
	return ctx.Err() == nil && crerr.As(err, &re) && re.Status == 0
}

// MatchLinks walks every page of a season's results listing and returns the
// match URLs in listing order.
func (s *Scraper) MatchLinks(ctx context.Context, season, league string) ([]string, error) {
	url, err := s.resultsURL(season, league)
	if err != nil {
		return nil, err
	}

	first, err := s.render(ctx, url, listScroll)
	if err != nil {
		return nil, err
	}
	pages := pageCount(first.Selection)

	seen := map[string]bool{}
	var links []string
	collect := func(doc *goquery.Document) {
		for _, href := range eventHrefs(doc.Selection) {
			if seen[href] {
				continue
			}
			seen[href] = true
			links = append(links, s.base+href)
		}
	}
	collect(first)

	for p := 2; p <= pages; p++ {
		pageURL := url + "#/page/" + strconv.Itoa(p) + "/"
		doc, err := s.render(ctx, pageURL, listScroll)
		if err != nil {
			return nil, err
		}
		collect(doc)
	}

	if len(links) == 0 {
		return nil, scrapeerr.AtURL(scrapeerr.Structural(eventLinks, "at least 1 match link", 0), url)
	}
	s.logger.InfoContext(ctx, "match links", "league", league, "season", season, "pages", pages, "count", len(links))
	return links, nil
}

// pageCount is the highest page number in the pagination bar, 1 when there
// is none.
func pageCount(root *goquery.Selection) int {
	n := 1
	root.Find(paginationLink).Each(func(_ int, a *goquery.Selection) {
		if v, err := strconv.Atoi(a.AttrOr("data-number", "")); err == nil && v > n {
			n = v
		}
	})
	return n
}

func eventHrefs(root *goquery.Selection) []string {
	var out []string
	root.Find(eventLinks).Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		if matchHref.MatchString(href) {
			out = append(out, href)
		}
	})
	return out
}

// ScrapeOdds renders a match page and returns its 1X2 odds per bookmaker.
func (s *Scraper) ScrapeOdds(ctx context.Context, url string) (*MatchOdds, error) {
	doc, err := s.render(ctx, url, fetch.WaitVisible{Selector: bookmakerRow})
	if err != nil {
		return nil, err
	}
	odds, err := AssembleOdds(url, doc)
	if err != nil {
		return nil, scrapeerr.AtURL(err, url)
	}
	return odds, nil
}

// AssembleOdds reads the bookmaker rows of a rendered match page. The rows
// are divs, not a table, so the grid is built here and run through the same
// normalization as scraped tables.
func AssembleOdds(url string, doc *goquery.Document) (*MatchOdds, error) {
	root := doc.Selection
	out := &MatchOdds{
		URL:  url,
		Home: table.CellText(root.Find(hostName).First()),
		Away: table.CellText(root.Find(guestName).First()),
	}
	if out.Home == "" || out.Away == "" {
		return nil, scrapeerr.Structural("match participants", "home and away names", 0)
	}

	rows := root.Find(bookmakerRow)
	grid := table.Grid{Header: [][]string{OddsHeader}}
	ids := make([]string, 0, rows.Length())
	var rowErr error
	rows.EachWithBreak(func(i int, row *goquery.Selection) bool {
		cells := row.Find("div.odds-cell")
		if cells.Length() != 3 {
			rowErr = scrapeerr.Structural("bookmaker row "+strconv.Itoa(i)+" odds cells", "3", cells.Length())
			return false
		}
		name := row.Find("a.bookmaker-name")
		r := []string{table.CellText(name)}
		cells.Each(func(_ int, c *goquery.Selection) {
			r = append(r, table.CellText(c))
		})
		r = append(r, strings.TrimSuffix(table.CellText(row.Find("div.payout")), "%"))
		grid.Rows = append(grid.Rows, r)
		ids = append(ids, table.HrefSegment(name.AttrOr("href", ""), 2))
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}

	frame, err := table.Normalize(grid, table.Options{DropEmptyRows: true})
	if err != nil {
		return nil, err
	}
	aligned, err := frame.AlignIDs("bookmaker ids", ids)
	if err != nil {
		return nil, err
	}
	if out.Odds, err = record.AssembleStats(frame, aligned); err != nil {
		return nil, err
	}
	return out, nil
}
