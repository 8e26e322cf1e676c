package rest

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/fortuna/touchline/internal/backfill"
	"github.com/fortuna/touchline/internal/logging"
	"github.com/fortuna/touchline/internal/record"
	"github.com/fortuna/touchline/internal/sources/oddsportal"
	"github.com/fortuna/touchline/internal/store"
	"github.com/fortuna/touchline/internal/store/repository"
	"github.com/go-playground/validator/v10"
)

type FBrefScraper interface {
	ValidSeasons(ctx context.Context, league string) (map[string]string, error)
	MatchLinks(ctx context.Context, season, league string) ([]string, error)
	ScrapeMatch(ctx context.Context, url string) (*record.MatchRecord, error)
	ScrapeStats(ctx context.Context, season, league, category string) (squad, opponent, player *record.StatsTable, err error)
	ScrapeLeagueTable(ctx context.Context, season, league string) ([]*record.StatsTable, error)
}

type UnderstatScraper interface {
	ValidSeasons(ctx context.Context, league string) (map[string]string, error)
	MatchLinks(ctx context.Context, season, league string) ([]string, error)
	ScrapeLeagueTable(ctx context.Context, season, league string) (*record.StatsTable, error)
}

type CapologyScraper interface {
	ValidSeasons(ctx context.Context, league string) (map[string]string, error)
	ScrapeSalaries(ctx context.Context, season, league, currency string) (*record.StatsTable, error)
}

type OddsPortalScraper interface {
	MatchLinks(ctx context.Context, season, league string) ([]string, error)
	ScrapeOdds(ctx context.Context, url string) (*oddsportal.MatchOdds, error)
}

type TransfermarktScraper interface {
	ScrapeSquad(ctx context.Context, clubURL string) (*record.StatsTable, error)
	ScrapeTransfers(ctx context.Context, playerID string) (*record.StatsTable, error)
}

type ClubEloScraper interface {
	ScrapeTeamHistory(ctx context.Context, team string) (*record.StatsTable, error)
	ScrapeRanking(ctx context.Context, date time.Time) (*record.StatsTable, error)
}

type MatchStore interface {
	Upsert(ctx context.Context, meta store.MatchMeta, m *record.MatchRecord) (int64, error)
	GetByURL(ctx context.Context, url string) (*store.MatchRow, error)
	List(ctx context.Context, f repository.MatchFilter) ([]*store.MatchRow, error)
}

type StatsStore interface {
	Upsert(ctx context.Context, key store.StatsKey, st *record.StatsTable) error
	Get(ctx context.Context, key store.StatsKey) (*store.StatsRow, error)
}

type RecordPublisher interface {
	PublishMatch(ctx context.Context, meta store.MatchMeta, m *record.MatchRecord) error
	PublishStats(ctx context.Context, key store.StatsKey, st *record.StatsTable) error
}

type BackfillService interface {
	Enqueue(ctx context.Context, req backfill.Request) (*backfill.Job, error)
	GetStatus(ctx context.Context) (*backfill.StatusSummary, error)
	GetJob(ctx context.Context, jobID int64, eventLimit int) (*backfill.Job, []*backfill.Event, error)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Deps is everything the API serves from. Nil members switch their routes
// to 503 responses.
type Deps struct {
	FBref         FBrefScraper
	Understat     UnderstatScraper
	Capology      CapologyScraper
	OddsPortal    OddsPortalScraper
	Transfermarkt TransfermarktScraper
	ClubElo       ClubEloScraper

	Matches  MatchStore
	Stats    StatsStore
	Events   RecordPublisher
	Backfill BackfillService

	Health map[string]HealthCheck
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	deps     Deps
	validate *validator.Validate
	logger   *logging.Logger
}

// NewHandler creates a new handler
func NewHandler(deps Deps) *Handler {
	return &Handler{
		deps:     deps,
		validate: validator.New(),
		logger:   logging.Component("rest"),
	}
}

func (h *Handler) validateRequest(ctx context.Context, payload any) error {
	return h.validate.StructCtx(ctx, payload)
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.deps.Health))
	for name := range h.deps.Health {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.deps.Health[name](ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	respondJSON(w, status, map[string]interface{}{
		"status":  state,
		"service": "touchline",
		"checks":  checks,
	})
}

// storeMatch persists m when a match store is configured and announces it.
func (h *Handler) storeMatch(ctx context.Context, meta store.MatchMeta, m *record.MatchRecord) (int64, error) {
	id, err := h.deps.Matches.Upsert(ctx, meta, m)
	if err != nil {
		return 0, err
	}
	if h.deps.Events != nil {
		if err := h.deps.Events.PublishMatch(ctx, meta, m); err != nil {
			h.logger.WarnContext(ctx, "publish match event", "url", m.URL, "error", err)
		}
	}
	return id, nil
}

// storeTables persists every non-nil table and announces each one.
func (h *Handler) storeTables(ctx context.Context, tables map[store.StatsKey]*record.StatsTable) error {
	for key, st := range tables {
		if st == nil {
			continue
		}
		if err := h.deps.Stats.Upsert(ctx, key, st); err != nil {
			return err
		}
		if h.deps.Events != nil {
			if err := h.deps.Events.PublishStats(ctx, key, st); err != nil {
				h.logger.WarnContext(ctx, "publish stats event", "source", key.Source, "kind", key.Kind, "error", err)
			}
		}
	}
	return nil
}

func queryBool(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}

func queryInt(r *http.Request, name string, fallback int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil {
		return n
	}
	return fallback
}
