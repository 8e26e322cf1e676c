package repository

import (
	"context"
	"database/sql"

	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/record"
	"github.com/fortuna/touchline/internal/store"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = crerr.New("not found")

// MatchRepository stores assembled match records.
type MatchRepository struct {
	db *store.Database
}

func NewMatchRepository(db *store.Database) *MatchRepository {
	return &MatchRepository{db: db}
}

const upsertMatch = `
	INSERT INTO match_records (
		source, url, league, season, match_date, stage,
		home_team, home_team_id, away_team, away_team_id,
		home_goals, away_goals, has_expected, payload
	)
	VALUES (
		:source, :url, :league, :season, :match_date, :stage,
		:home_team, :home_team_id, :away_team, :away_team_id,
		:home_goals, :away_goals, :has_expected, :payload
	)
	ON CONFLICT (url) DO UPDATE SET
		league = COALESCE(EXCLUDED.league, match_records.league),
		season = COALESCE(EXCLUDED.season, match_records.season),
		match_date = EXCLUDED.match_date,
		stage = EXCLUDED.stage,
		home_team = EXCLUDED.home_team,
		home_team_id = EXCLUDED.home_team_id,
		away_team = EXCLUDED.away_team,
		away_team_id = EXCLUDED.away_team_id,
		home_goals = EXCLUDED.home_goals,
		away_goals = EXCLUDED.away_goals,
		has_expected = EXCLUDED.has_expected,
		payload = EXCLUDED.payload,
		scraped_at = NOW(),
		updated_at = NOW()
	RETURNING match_id
`

// Upsert stores m, replacing any earlier scrape of the same URL, and returns
// the row id.
func (r *MatchRepository) Upsert(ctx context.Context, meta store.MatchMeta, m *record.MatchRecord) (int64, error) {
	row, err := store.NewMatchRow(meta, m)
	if err != nil {
		return 0, err
	}

	rows, err := r.db.DB().NamedQueryContext(ctx, upsertMatch, row)
	if err != nil {
		return 0, crerr.Wrapf(err, "upsert match %s", m.URL)
	}
	defer rows.Close()

	var id int64
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return 0, crerr.Wrapf(err, "scan match id %s", m.URL)
		}
	}
	return id, rows.Err()
}

const matchColumns = `
	match_id, source, url, league, season, match_date, stage,
	home_team, home_team_id, away_team, away_team_id,
	home_goals, away_goals, has_expected, payload,
	scraped_at, created_at, updated_at
`

// GetByURL returns the stored record of a match page.
func (r *MatchRepository) GetByURL(ctx context.Context, url string) (*store.MatchRow, error) {
	row := &store.MatchRow{}
	err := r.db.DB().GetContext(ctx, row, `SELECT `+matchColumns+` FROM match_records WHERE url = $1`, url)
	if crerr.Is(err, sql.ErrNoRows) {
		return nil, crerr.Wrapf(ErrNotFound, "match %s", url)
	}
	if err != nil {
		return nil, crerr.Wrapf(err, "get match %s", url)
	}
	return row, nil
}

// MatchFilter narrows List. Empty fields match everything.
type MatchFilter struct {
	Source string
	League string
	Season string
	TeamID string
	Limit  int
}

// List returns stored matches newest first.
func (r *MatchRepository) List(ctx context.Context, f MatchFilter) ([]*store.MatchRow, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT ` + matchColumns + `
		FROM match_records
		WHERE ($1 = '' OR source = $1)
			AND ($2 = '' OR league = $2)
			AND ($3 = '' OR season = $3)
			AND ($4 = '' OR home_team_id = $4 OR away_team_id = $4)
		ORDER BY match_date DESC NULLS LAST, match_id DESC
		LIMIT $5
	`
	var out []*store.MatchRow
	if err := r.db.DB().SelectContext(ctx, &out, query, f.Source, f.League, f.Season, f.TeamID, limit); err != nil {
		return nil, crerr.Wrap(err, "list matches")
	}
	return out, nil
}

// ScrapedURLs returns which of urls already have a stored record, so a
// backfill can skip them.
func (r *MatchRepository) ScrapedURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	out := make(map[string]bool, len(urls))
	if len(urls) == 0 {
		return out, nil
	}
	query, args, err := sqlxIn(`SELECT url FROM match_records WHERE url IN (?)`, urls)
	if err != nil {
		return nil, err
	}
	var found []string
	if err := r.db.DB().SelectContext(ctx, &found, r.db.DB().Rebind(query), args...); err != nil {
		return nil, crerr.Wrap(err, "list scraped urls")
	}
	for _, u := range found {
		out[u] = true
	}
	return out, nil
}
