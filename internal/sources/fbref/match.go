package fbref

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/fortuna/touchline/internal/record"
	"github.com/fortuna/touchline/internal/scrapeerr"
	"github.com/fortuna/touchline/internal/table"
	"golang.org/x/net/html"
)

const dateLayout = "Monday January 2, 2006"

var (
	parenthesized = regexp.MustCompile(`\(([^()]*)\)`)
	formationTail = regexp.MustCompile(`\(([^()]*)\)\s*$`)
	matchweek     = regexp.MustCompile(`^Matchweek\s+(\d+)$`)
	shotsOptions  = table.Options{DropEmptyRows: true}
)

// AssembleMatch builds a MatchRecord from a parsed match report. Team
// identity is mandatory; every other part is left empty when the page does
// not carry it.
func AssembleMatch(url string, doc *goquery.Document) (*record.MatchRecord, error) {
	root := doc.Selection
	m := &record.MatchRecord{URL: url}

	m.Date = matchDate(root)
	m.Stage = matchStage(root)

	home, away, err := teams(root)
	if err != nil {
		return nil, err
	}
	m.Home, m.Away = home, away

	m.Home.Goals, m.Away.Goals = score(root)

	for _, side := range m.Sides() {
		if side.Tables, err = teamTables(root, side.ID); err != nil {
			return nil, err
		}
	}

	if err := lineups(root, &m.Home, &m.Away); err != nil {
		return nil, err
	}

	if m.Shots, err = shots(root, m.Home.ID, m.Away.ID); err != nil {
		return nil, err
	}

	m.HasExpected = m.Home.Tables.Summary != nil && m.Home.Tables.Summary.Schema.HasGroup("Expected")
	for _, side := range m.Sides() {
		totals(side)
	}
	if m.HasExpected {
		if err := expected(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func matchDate(root *goquery.Selection) *time.Time {
	text := table.CellText(root.Find("div.scorebox_meta strong a").First())
	if text == "" {
		return nil
	}
	d, err := time.Parse(dateLayout, text)
	if err != nil {
		return nil
	}
	return &d
}

// matchStage reads the "(Matchweek 12)" or "(Final)" note that follows the
// competition link in the page header.
func matchStage(root *goquery.Selection) record.Stage {
	link := root.Find(`#content a[href*="/en/comps/"][href$="-Stats"]`).First()
	if link.Length() == 0 {
		return record.Stage{}
	}
	var tail strings.Builder
	for n := link.Get(0).NextSibling; n != nil; n = n.NextSibling {
		if n.Type != html.TextNode {
			break
		}
		tail.WriteString(n.Data)
	}
	m := parenthesized.FindStringSubmatch(tail.String())
	if m == nil {
		return record.Stage{}
	}
	label := strings.TrimSpace(m[1])
	if mw := matchweek.FindStringSubmatch(label); mw != nil {
		n, _ := strconv.Atoi(mw[1])
		return record.MatchweekStage(n)
	}
	if label == "" {
		return record.Stage{}
	}
	return record.NamedStage(label)
}

func teams(root *goquery.Selection) (home, away record.TeamSide, err error) {
	performers, err := table.Exactly(root, table.Selector{Element: "div", Attr: `[itemprop="performer"]`}, 2)
	if err != nil {
		return home, away, err
	}

	sides := [2]*record.TeamSide{&home, &away}
	for i, side := range sides {
		a := performers.Eq(i).Find("a").First()
		side.Name = table.CellText(a)
		side.ID = table.HrefSegment(a.AttrOr("href", ""), 3)
		if side.Name == "" || side.ID == "" {
			return home, away, scrapeerr.Structural("team "+strconv.Itoa(i+1)+" name and id link", "1 link", 0)
		}
	}
	return home, away, nil
}

// score returns both goal counts, or neither when the page shows no played
// result.
func score(root *goquery.Selection) (*int, *int) {
	scores := root.Find("div.scorebox div.score")
	if scores.Length() != 2 {
		return nil, nil
	}
	h, errH := strconv.Atoi(table.CellText(scores.Eq(0)))
	a, errA := strconv.Atoi(table.CellText(scores.Eq(1)))
	if errH != nil || errA != nil {
		return nil, nil
	}
	return &h, &a
}

func teamTables(root *goquery.Selection, teamID string) (record.TeamTables, error) {
	var tt record.TeamTables
	targets := []struct {
		div string
		dst **record.StatsTable
	}{
		{"div_stats_" + teamID + "_summary", &tt.Summary},
		{"div_keeper_stats_" + teamID, &tt.Goalkeeping},
		{"div_stats_" + teamID + "_passing", &tt.Passing},
		{"div_stats_" + teamID + "_passing_types", &tt.PassTypes},
		{"div_stats_" + teamID + "_defense", &tt.Defense},
		{"div_stats_" + teamID + "_possession", &tt.Possession},
		{"div_stats_" + teamID + "_misc", &tt.Misc},
	}
	for _, target := range targets {
		sel, err := table.Optional(root, table.DivByID(target.div))
		if err != nil {
			return tt, err
		}
		st, err := record.ExtractOptional(sel, table.Options{}, playerIDs)
		if err != nil {
			return tt, err
		}
		*target.dst = st
	}
	return tt, nil
}

// lineups fills each side's lineup table and formation from div.lineup#a
// (home) and div.lineup#b (away).
func lineups(root *goquery.Selection, home, away *record.TeamSide) error {
	sides := []struct {
		id   string
		side *record.TeamSide
	}{{"a", home}, {"b", away}}
	for _, s := range sides {
		side := s.side
		sel, err := table.Optional(root, table.Selector{Element: "div", Class: "lineup", ID: s.id})
		if err != nil {
			return err
		}
		if sel == nil {
			continue
		}

		st, err := record.Extract(sel, table.Options{}, record.IDSpec{Cell: "td:has(a)", Segment: 3})
		if err != nil {
			return err
		}
		if len(st.Schema) == 3 {
			st.Schema = table.Schema{{Name: "#"}, {Name: "Player"}, {Name: record.IDColumn}}
		}
		side.Tables.Lineup = st
		side.Formation = formation(sel)
	}
	return nil
}

// formation parses "Columbus Crew (3-4-2-1)" into "3-4-2-1".
func formation(lineup *goquery.Selection) *string {
	header := table.CellText(lineup.Find("th").First())
	m := formationTail.FindStringSubmatch(header)
	if m == nil {
		return nil
	}
	f := strings.TrimSpace(m[1])
	if f == "" {
		return nil
	}
	return &f
}

func shots(root *goquery.Selection, homeID, awayID string) (record.ShotTables, error) {
	var out record.ShotTables
	targets := []struct {
		div string
		dst **record.StatsTable
	}{
		{"div_shots_all", &out.All},
		{"div_shots_" + homeID, &out.Home},
		{"div_shots_" + awayID, &out.Away},
	}
	for _, target := range targets {
		sel, err := table.Optional(root, table.DivByID(target.div))
		if err != nil {
			return out, err
		}
		st, err := record.ExtractOptional(sel, shotsOptions, playerIDs)
		if err != nil {
			return out, err
		}
		*target.dst = st
	}
	return out, nil
}

// totals reads the team-total row at the bottom of the summary table.
func totals(side *record.TeamSide) {
	summary := side.Tables.Summary
	if summary.Len() == 0 {
		return
	}
	if ast, ok := summary.Last("Performance", "Ast").AsInt(); ok {
		side.Assists = &ast
	}
}

// expected fills the xG family of both teams from their summary totals.
// Either both teams get every field or the record is rejected.
func expected(m *record.MatchRecord) error {
	fields := []struct {
		name       string
		home, away **float64
	}{
		{"xG", &m.Home.XG, &m.Away.XG},
		{"npxG", &m.Home.NPXG, &m.Away.NPXG},
		{"xAG", &m.Home.XAG, &m.Away.XAG},
	}
	for _, f := range fields {
		home, err := lastFloat(m.Home.Tables.Summary, f.name, "home")
		if err != nil {
			return err
		}
		away, err := lastFloat(m.Away.Tables.Summary, f.name, "away")
		if err != nil {
			return err
		}
		*f.home, *f.away = &home, &away
	}
	return nil
}

func lastFloat(st *record.StatsTable, name, side string) (float64, error) {
	column := "Expected/" + name
	if st.Len() == 0 {
		return 0, scrapeerr.Data(column, "", side+" summary table is missing")
	}
	cell := st.Last("Expected", name)
	v, ok := cell.AsFloat()
	if !ok {
		return 0, scrapeerr.Data(column, cell.String(), side+" team total is not numeric")
	}
	return v, nil
}
