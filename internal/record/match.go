package record

import (
	"strconv"
	"time"
)

// StageKind tags which Stage field is set.
type StageKind uint8

const (
	StageNone StageKind = iota
	StageMatchweek
	StageNamed
)

// Stage is either a league matchweek number or a free-text stage such as
// "Final" or "Round of 16".
type Stage struct {
	Kind      StageKind `json:"-"`
	Matchweek int       `json:"matchweek,omitempty"`
	Name      string    `json:"name,omitempty"`
}

func MatchweekStage(n int) Stage { return Stage{Kind: StageMatchweek, Matchweek: n} }

func NamedStage(name string) Stage { return Stage{Kind: StageNamed, Name: name} }

func (s Stage) String() string {
	switch s.Kind {
	case StageMatchweek:
		return "Matchweek " + strconv.Itoa(s.Matchweek)
	case StageNamed:
		return s.Name
	}
	return ""
}

// TeamTables holds one team's per-category tables from a match page. Any of
// them may be nil.
type TeamTables struct {
	Summary     *StatsTable `json:"summary"`
	Goalkeeping *StatsTable `json:"goalkeeping"`
	Passing     *StatsTable `json:"passing"`
	PassTypes   *StatsTable `json:"pass_types"`
	Defense     *StatsTable `json:"defense"`
	Possession  *StatsTable `json:"possession"`
	Misc        *StatsTable `json:"misc"`
	Lineup      *StatsTable `json:"lineup"`
}

// TeamSide is everything a match page says about one team. Home and away
// use the same type so every home field has an away twin.
type TeamSide struct {
	Name      string     `json:"name"`
	ID        string     `json:"id"`
	Goals     *int       `json:"goals"`
	Assists   *int       `json:"assists"`
	XG        *float64   `json:"xg"`
	NPXG      *float64   `json:"npxg"`
	XAG       *float64   `json:"xag"`
	Formation *string    `json:"formation"`
	Tables    TeamTables `json:"tables"`
}

type ShotTables struct {
	All  *StatsTable `json:"all"`
	Home *StatsTable `json:"home"`
	Away *StatsTable `json:"away"`
}

// MatchRecord is the assembled content of one match report page.
// HasExpected gates XG, NPXG and XAG on both sides at once.
type MatchRecord struct {
	URL         string     `json:"url"`
	Date        *time.Time `json:"date"`
	Stage       Stage      `json:"stage"`
	Home        TeamSide   `json:"home"`
	Away        TeamSide   `json:"away"`
	HasExpected bool       `json:"has_expected"`
	Shots       ShotTables `json:"shots"`
}

// Sides returns home then away.
func (m *MatchRecord) Sides() [2]*TeamSide {
	return [2]*TeamSide{&m.Home, &m.Away}
}

// Score renders "2-1" style scores, or "" when the match has none.
func (m *MatchRecord) Score() string {
	if m.Home.Goals == nil || m.Away.Goals == nil {
		return ""
	}
	return strconv.Itoa(*m.Home.Goals) + "-" + strconv.Itoa(*m.Away.Goals)
}
