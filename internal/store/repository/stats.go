package repository

import (
	"context"
	"database/sql"

	"github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/record"
	"github.com/fortuna/touchline/internal/store"
)

// StatsRepository stores stats tables keyed by where they were scraped from.
type StatsRepository struct {
	db *store.Database
}

func NewStatsRepository(db *store.Database) *StatsRepository {
	return &StatsRepository{db: db}
}

type statsInsertModel struct {
	store.StatsKey
	RowCount int    `db:"row_count"`
	Payload  string `db:"payload"`
}

const upsertStats = `
	INSERT INTO stats_tables (source, kind, league, season, table_key, row_count, payload)
	VALUES (:source, :kind, :league, :season, :table_key, :row_count, :payload)
	ON CONFLICT (source, kind, league, season, table_key) DO UPDATE SET
		row_count = EXCLUDED.row_count,
		payload = EXCLUDED.payload,
		scraped_at = NOW()
`

// Upsert stores st under key, replacing an earlier scrape. A nil table is
// not stored.
func (r *StatsRepository) Upsert(ctx context.Context, key store.StatsKey, st *record.StatsTable) error {
	if st == nil {
		return nil
	}
	payload, err := sonic.Marshal(st)
	if err != nil {
		return crerr.Wrapf(err, "encode %s %s table", key.Source, key.Kind)
	}

	_, err = r.db.DB().NamedExecContext(ctx, upsertStats, statsInsertModel{StatsKey: key, RowCount: st.Len(), Payload: string(payload)})
	if err != nil {
		return crerr.Wrapf(err, "upsert %s %s table %s/%s/%s", key.Source, key.Kind, key.League, key.Season, key.Key)
	}
	return nil
}

// UpsertMany stores several tables in one transaction.
func (r *StatsRepository) UpsertMany(ctx context.Context, tables map[store.StatsKey]*record.StatsTable) error {
	tx, err := r.db.DB().BeginTxx(ctx, nil)
	if err != nil {
		return crerr.Wrap(err, "begin stats tx")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for key, st := range tables {
		if st == nil {
			continue
		}
		payload, err := sonic.Marshal(st)
		if err != nil {
			return crerr.Wrapf(err, "encode %s %s table", key.Source, key.Kind)
		}
		if _, err := tx.NamedExecContext(ctx, upsertStats, statsInsertModel{StatsKey: key, RowCount: st.Len(), Payload: string(payload)}); err != nil {
			return crerr.Wrapf(err, "upsert %s %s table", key.Source, key.Kind)
		}
	}

	if err := tx.Commit(); err != nil {
		return crerr.Wrap(err, "commit stats tx")
	}
	return nil
}

// Get returns the stored table under key.
func (r *StatsRepository) Get(ctx context.Context, key store.StatsKey) (*store.StatsRow, error) {
	row := &store.StatsRow{}
	err := r.db.DB().GetContext(ctx, row, `
		SELECT table_id, source, kind, league, season, table_key, row_count, payload, scraped_at
		FROM stats_tables
		WHERE source = $1 AND kind = $2 AND league = $3 AND season = $4 AND table_key = $5
	`, key.Source, key.Kind, key.League, key.Season, key.Key)
	if crerr.Is(err, sql.ErrNoRows) {
		return nil, crerr.Wrapf(ErrNotFound, "%s %s table", key.Source, key.Kind)
	}
	if err != nil {
		return nil, crerr.Wrap(err, "get stats table")
	}
	return row, nil
}
