// Package transfermarkt scrapes club squads and player transfer histories
// from Transfermarkt.
package transfermarkt

import (
	"context"
	"regexp"
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

const BaseURL = "https://www.transfermarkt.com"

var (
	squadTable = table.Selector{Class: "items"}
	playerIDs  = record.IDSpec{Cell: "td.hauptlink", Segment: 4}

	playerIDPattern = regexp.MustCompile(`^\d+$`)
	euroPattern     = regexp.MustCompile(`^€\s*(\d+(?:\.\d+)?)\s*(bn|m|k|Th\.)?$`)
)

// Columns added to or rewritten in the squad table.
const (
	PlayerColumn   = "Player"
	PositionColumn = "Position"
	ValueColumn    = "Market value"
)

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
		logger:  logging.Component("transfermarkt"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScrapeSquad returns the squad table of a club page with player names and
// positions split into their own columns, market values in euros and an ID
// column of Transfermarkt player ids.
func (s *Scraper) ScrapeSquad(ctx context.Context, clubURL string) (*record.StatsTable, error) {
	page, err := s.fetcher.Fetch(ctx, clubURL)
	if err != nil {
		return nil, err
	}
	doc, err := table.Load(page.Text())
	if err != nil {
		return nil, scrapeerr.AtURL(err, clubURL)
	}
	st, err := AssembleSquad(doc)
	if err != nil {
		return nil, scrapeerr.AtURL(err, clubURL)
	}
	return st, nil
}

// AssembleSquad extracts table.items. Its player cell nests a small table of
// name over position, which flattens to one string; both parts are read
// from the row markup instead.
func AssembleSquad(doc *goquery.Document) (*record.StatsTable, error) {
	sel, err := table.One(doc.Selection, squadTable)
	if err != nil {
		return nil, err
	}
	grid, err := table.Parse(sel)
	if err != nil {
		return nil, err
	}
	frame, err := table.Normalize(grid, table.Options{DropEmptyRows: true})
	if err != nil {
		return nil, err
	}
	player := frame.Schema.IndexName(PlayerColumn)
	if player < 0 {
		return nil, scrapeerr.Structural("squad column "+PlayerColumn, "present", 0)
	}

	rows, err := table.BodyRows(sel)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(rows))
	positions := make([]string, len(rows))
	for i, tr := range rows {
		names[i] = table.CellText(tr.Find("td.hauptlink a").First())
		positions[i] = table.CellText(tr.Find("table.inline-table tr").Last())
	}
	if names, err = frame.AlignIDs("squad player names", names); err != nil {
		return nil, err
	}
	if positions, err = frame.AlignIDs("squad player positions", positions); err != nil {
		return nil, err
	}

	frame.Schema = append(frame.Schema, table.Column{Name: PositionColumn})
	for i := range frame.Rows {
		frame.Rows[i][player] = names[i]
		frame.Rows[i] = append(frame.Rows[i], positions[i])
	}

	raw, err := table.ExtractIDs(sel, playerIDs.Cell, playerIDs.Segment)
	if err != nil {
		return nil, err
	}
	ids, err := frame.AlignIDs("squad player ids", raw)
	if err != nil {
		return nil, err
	}
	st, err := record.AssembleStats(frame, ids)
	if err != nil {
		return nil, err
	}

	if col := st.Schema.IndexName(ValueColumn); col >= 0 {
		for _, row := range st.Rows {
			row[col] = Euros(row[col].String())
		}
	}
	return st, nil
}

// Euros parses "€180.00m", "€800k" or "€1.20bn" into whole euros. Cells that
// are not amounts ("-", "free transfer", "loan transfer") come back as
// strings, blanks as null.
func Euros(cell string) record.Value {
	s := strings.TrimSpace(cell)
	if s == "" || s == "-" {
		return record.NullValue()
	}
	m := euroPattern.FindStringSubmatch(s)
	if m == nil {
		return record.StringValue(s)
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return record.StringValue(s)
	}
	switch m[2] {
	case "bn":
		n *= 1e9
	case "m":
		n *= 1e6
	case "k", "Th.":
		n *= 1e3
	}
	return record.IntValue(int64(n + 0.5))
}

type club struct {
	Name string `json:"clubName"`
	Href string `json:"href"`
}

type transfer struct {
	Season      string `json:"season"`
	Date        string `json:"dateUnformatted"`
	From        club   `json:"from"`
	To          club   `json:"to"`
	MarketValue string `json:"marketValue"`
	Fee         string `json:"fee"`
}

type transferHistory struct {
	Transfers []transfer `json:"transfers"`
}

// TransferColumns is the schema of a transfer history table.
var TransferColumns = table.Schema{
	{Name: "Season"},
	{Name: "Date"},
	{Group: "From", Name: "Club"},
	{Group: "From", Name: "ID"},
	{Group: "To", Name: "Club"},
	{Group: "To", Name: "ID"},
	{Name: "Market value"},
	{Name: "Fee"},
}

// ScrapeTransfers returns a player's transfer history, oldest last as the
// site lists it.
func (s *Scraper) ScrapeTransfers(ctx context.Context, playerID string) (*record.StatsTable, error) {
	if !playerIDPattern.MatchString(playerID) {
		return nil, crerr.WithHint(crerr.Newf("transfermarkt player id %q", playerID), "player ids are numeric")
	}
	url := s.base + "/ceapi/transferHistory/list/" + playerID
	page, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	st, err := AssembleTransfers(page.Content)
	if err != nil {
		return nil, scrapeerr.AtURL(err, url)
	}
	s.logger.DebugContext(ctx, "transfers", "player", playerID, "count", st.Len())
	return st, nil
}

func AssembleTransfers(payload []byte) (*record.StatsTable, error) {
	var h transferHistory
	if err := sonic.Unmarshal(payload, &h); err != nil {
		return nil, crerr.Mark(crerr.Wrap(err, "decode transfer history"), scrapeerr.ErrData)
	}

	st := &record.StatsTable{
		Schema: append(table.Schema(nil), TransferColumns...),
		Rows:   make([][]record.Value, 0, len(h.Transfers)),
	}
	for _, t := range h.Transfers {
		st.Rows = append(st.Rows, []record.Value{
			optionalString(t.Season),
			record.Infer(t.Date),
			optionalString(t.From.Name),
			optionalString(table.HrefSegment(t.From.Href, 4)),
			optionalString(t.To.Name),
			optionalString(table.HrefSegment(t.To.Href, 4)),
			Euros(t.MarketValue),
			Euros(t.Fee),
		})
	}
	return st, nil
}

func optionalString(s string) record.Value {
	if s == "" {
		return record.NullValue()
	}
	return record.StringValue(s)
}
