// Package clubelo reads Elo rating histories and ranking snapshots from the
// ClubElo CSV API.
package clubelo

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"
	"time"
	"unicode"

	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/fetch"
	"github.com/fortuna/touchline/internal/logging"
	"github.com/fortuna/touchline/internal/record"
	"github.com/fortuna/touchline/internal/scrapeerr"
	"github.com/fortuna/touchline/internal/table"
)

const BaseURL = "http://api.clubelo.com"

// Columns every ClubElo CSV carries.
var requiredColumns = []string{"Club", "Country", "Elo", "From", "To"}

type Scraper struct {
	fetcher fetch.Fetcher
	base    string
	logger  *logging.Logger
}

type Option func(*Scraper)

func WithBaseURL(base string) Option {
	return func(s *Scraper) { s.base = strings.TrimRight(base, "/") }
}

func New(f fetch.Fetcher, opts ...Option) *Scraper {
	s := &Scraper{
		fetcher: f,
		base:    BaseURL,
		logger:  logging.Component("clubelo"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TeamKey turns a club name into the key ClubElo uses in URLs: "Man City"
// becomes "ManCity".
func TeamKey(team string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, team)
}

// ScrapeTeamHistory returns every rating period of a club, oldest first.
func (s *Scraper) ScrapeTeamHistory(ctx context.Context, team string) (*record.StatsTable, error) {
	key := TeamKey(team)
	if key == "" || strings.ContainsAny(key, "/?#") {
		return nil, crerr.WithHint(crerr.Newf("clubelo team %q", team), "use the club name as ClubElo spells it, e.g. \"Man City\"")
	}
	st, err := s.csv(ctx, s.base+"/"+key)
	if err != nil {
		return nil, err
	}
	if st.Len() == 0 {
		return nil, crerr.Mark(crerr.Newf("clubelo has no ratings for %q", team), scrapeerr.ErrData)
	}
	return st, nil
}

// ScrapeRanking returns the ratings of every club on date.
func (s *Scraper) ScrapeRanking(ctx context.Context, date time.Time) (*record.StatsTable, error) {
	return s.csv(ctx, s.base+"/"+date.Format(time.DateOnly))
}

func (s *Scraper) csv(ctx context.Context, url string) (*record.StatsTable, error) {
	page, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	st, err := AssembleCSV(page.Content)
	if err != nil {
		return nil, scrapeerr.AtURL(err, url)
	}
	s.logger.DebugContext(ctx, "clubelo csv", "url", url, "rows", st.Len())
	return st, nil
}

// AssembleCSV types a ClubElo CSV payload. "None" (an unranked club) becomes
// null; dates become Date values.
func AssembleCSV(payload []byte) (*record.StatsTable, error) {
	r := csv.NewReader(bytes.NewReader(payload))
	r.FieldsPerRecord = 0

	header, err := r.Read()
	if err == io.EOF {
		return nil, scrapeerr.Structural("clubelo csv header", "1 row", 0)
	}
	if err != nil {
		return nil, crerr.Mark(crerr.Wrap(err, "read clubelo csv"), scrapeerr.ErrData)
	}

	grid := table.Grid{Header: [][]string{header}}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, crerr.Mark(crerr.Wrap(err, "read clubelo csv"), scrapeerr.ErrData)
		}
		for i, cell := range rec {
			if cell == "None" {
				rec[i] = ""
			}
		}
		grid.Rows = append(grid.Rows, rec)
	}

	frame, err := table.Normalize(grid, table.Options{})
	if err != nil {
		return nil, err
	}
	for _, name := range requiredColumns {
		if frame.Schema.IndexName(name) < 0 {
			return nil, scrapeerr.Structural("clubelo csv column "+name, "present", 0)
		}
	}
	return record.AssembleStats(frame, nil)
}
