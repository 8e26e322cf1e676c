package store

import (
	"database/sql"
	"time"

	"github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/record"
)

// MatchRow is a stored match record. Payload holds the full record as JSON;
// the other columns are the fields records are looked up by.
type MatchRow struct {
	MatchID     int64          `json:"match_id" db:"match_id"`
	Source      string         `json:"source" db:"source"`
	URL         string         `json:"url" db:"url"`
	League      sql.NullString `json:"league,omitempty" db:"league"`
	Season      sql.NullString `json:"season,omitempty" db:"season"`
	MatchDate   sql.NullTime   `json:"match_date,omitempty" db:"match_date"`
	Stage       sql.NullString `json:"stage,omitempty" db:"stage"`
	HomeTeam    string         `json:"home_team" db:"home_team"`
	HomeTeamID  string         `json:"home_team_id" db:"home_team_id"`
	AwayTeam    string         `json:"away_team" db:"away_team"`
	AwayTeamID  string         `json:"away_team_id" db:"away_team_id"`
	HomeGoals   sql.NullInt32  `json:"home_goals,omitempty" db:"home_goals"`
	AwayGoals   sql.NullInt32  `json:"away_goals,omitempty" db:"away_goals"`
	HasExpected bool           `json:"has_expected" db:"has_expected"`
	Payload     string         `json:"-" db:"payload"`
	ScrapedAt   time.Time      `json:"scraped_at" db:"scraped_at"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// MatchMeta says where a match record came from.
type MatchMeta struct {
	Source string
	League string
	Season string
}

// NewMatchRow flattens m into its stored form.
func NewMatchRow(meta MatchMeta, m *record.MatchRecord) (*MatchRow, error) {
	payload, err := sonic.Marshal(m)
	if err != nil {
		return nil, crerr.Wrapf(err, "encode match %s", m.URL)
	}
	row := &MatchRow{
		Source:      meta.Source,
		URL:         m.URL,
		League:      nullString(meta.League),
		Season:      nullString(meta.Season),
		Stage:       nullString(m.Stage.String()),
		HomeTeam:    m.Home.Name,
		HomeTeamID:  m.Home.ID,
		AwayTeam:    m.Away.Name,
		AwayTeamID:  m.Away.ID,
		HomeGoals:   nullInt(m.Home.Goals),
		AwayGoals:   nullInt(m.Away.Goals),
		HasExpected: m.HasExpected,
		Payload:     string(payload),
	}
	if m.Date != nil {
		row.MatchDate = sql.NullTime{Time: *m.Date, Valid: true}
	}
	return row, nil
}

// StatsKey identifies a stored stats table. Key is source specific: a stat
// category, a club URL, a player id.
type StatsKey struct {
	Source string `json:"source" db:"source"`
	Kind   string `json:"kind" db:"kind"`
	League string `json:"league" db:"league"`
	Season string `json:"season" db:"season"`
	Key    string `json:"key" db:"table_key"`
}

// StatsRow is a stored stats table.
type StatsRow struct {
	TableID int64 `json:"table_id" db:"table_id"`
	StatsKey
	RowCount  int       `json:"row_count" db:"row_count"`
	Payload   string    `json:"-" db:"payload"`
	ScrapedAt time.Time `json:"scraped_at" db:"scraped_at"`
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n *int) sql.NullInt32 {
	if n == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*n), Valid: true}
}
