package rest

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fortuna/touchline/internal/record"
	"github.com/fortuna/touchline/internal/store"
	"github.com/gorilla/mux"
)

const clubEloDate = "2006-01-02"

type leagueRequest struct {
	League string `validate:"required"`
}

type seasonRequest struct {
	League string `validate:"required"`
	Season string `validate:"required"`
	Store  bool
}

type statsRequest struct {
	League   string `validate:"required"`
	Season   string `validate:"required"`
	Category string `validate:"required"`
	Store    bool
}

type pageRequest struct {
	URL    string `validate:"required,url"`
	League string
	Season string
	Store  bool
}

type salaryRequest struct {
	League   string `validate:"required"`
	Season   string `validate:"required"`
	Currency string `validate:"required"`
	Store    bool
}

type transfersRequest struct {
	PlayerID string `validate:"required,numeric"`
	Store    bool
}

type teamRequest struct {
	Team  string `validate:"required"`
	Store bool
}

type rankingRequest struct {
	Date  string `validate:"required,datetime=2006-01-02"`
	Store bool
}

type linksResponse struct {
	Count int      `json:"count"`
	Links []string `json:"links"`
}

type statsResponse struct {
	Squad    *record.StatsTable `json:"squad"`
	Opponent *record.StatsTable `json:"opponent"`
	Player   *record.StatsTable `json:"player"`
}

func newSeasonRequest(r *http.Request) seasonRequest {
	return seasonRequest{
		League: mux.Vars(r)["league"],
		Season: r.URL.Query().Get("season"),
		Store:  queryBool(r, "store"),
	}
}

func newPageRequest(r *http.Request) pageRequest {
	q := r.URL.Query()
	return pageRequest{
		URL:    q.Get("url"),
		League: q.Get("league"),
		Season: q.Get("season"),
		Store:  queryBool(r, "store"),
	}
}

// ready checks that the scraper and, when storing, the stores exist.
func (h *Handler) ready(w http.ResponseWriter, configured bool, name string, storing bool, matches bool) bool {
	if !configured {
		respondError(w, http.StatusServiceUnavailable, name+" is not configured", errUnavailable)
		return false
	}
	if storing && matches && h.deps.Matches == nil {
		respondError(w, http.StatusServiceUnavailable, "match store is not configured", errUnavailable)
		return false
	}
	if storing && !matches && h.deps.Stats == nil {
		respondError(w, http.StatusServiceUnavailable, "stats store is not configured", errUnavailable)
		return false
	}
	return true
}

func (h *Handler) seasons(w http.ResponseWriter, r *http.Request, list func(league string) (map[string]string, error)) {
	req := leagueRequest{League: mux.Vars(r)["league"]}
	if err := h.validateRequest(r.Context(), &req); err != nil {
		respondFailure(w, "Invalid request", err)
		return
	}
	seasons, err := list(req.League)
	if err != nil {
		respondFailure(w, "Failed to list seasons", err)
		return
	}
	respondJSON(w, http.StatusOK, seasons)
}

func (h *Handler) links(w http.ResponseWriter, r *http.Request, list func(season, league string) ([]string, error)) {
	req := newSeasonRequest(r)
	if err := h.validateRequest(r.Context(), &req); err != nil {
		respondFailure(w, "Invalid request", err)
		return
	}
	links, err := list(req.Season, req.League)
	if err != nil {
		respondFailure(w, "Failed to list matches", err)
		return
	}
	respondJSON(w, http.StatusOK, linksResponse{Count: len(links), Links: links})
}

// GetFBrefSeasons handles GET /api/v1/fbref/{league}/seasons
func (h *Handler) GetFBrefSeasons(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, h.deps.FBref != nil, "fbref", false, false) {
		return
	}
	h.seasons(w, r, func(league string) (map[string]string, error) {
		return h.deps.FBref.ValidSeasons(r.Context(), league)
	})
}

// GetFBrefMatchLinks handles GET /api/v1/fbref/{league}/matches?season=
func (h *Handler) GetFBrefMatchLinks(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, h.deps.FBref != nil, "fbref", false, false) {
		return
	}
	h.links(w, r, func(season, league string) ([]string, error) {
		return h.deps.FBref.MatchLinks(r.Context(), season, league)
	})
}

// GetFBrefMatch handles GET /api/v1/fbref/match?url=&store=
func (h *Handler) GetFBrefMatch(w http.ResponseWriter, r *http.Request) {
	req := newPageRequest(r)
	if !h.ready(w, h.deps.FBref != nil, "fbref", req.Store, true) {
		return
	}
	if err := h.validateRequest(r.Context(), &req); err != nil {
		respondFailure(w, "Invalid request", err)
		return
	}

	m, err := h.deps.FBref.ScrapeMatch(r.Context(), req.URL)
	if err != nil {
		respondFailure(w, "Failed to scrape match", err)
		return
	}

	if req.Store {
		meta := store.MatchMeta{Source: "fbref", League: req.League, Season: req.Season}
		id, err := h.storeMatch(r.Context(), meta, m)
		if err != nil {
			respondFailure(w, "Failed to store match", err)
			return
		}
		w.Header().Set("X-Match-ID", strconv.FormatInt(id, 10))
	}
	respondJSON(w, http.StatusOK, m)
}

// GetFBrefStats handles GET /api/v1/fbref/{league}/stats/{category}?season=
func (h *Handler) GetFBrefStats(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	req := statsRequest{
		League:   vars["league"],
		Category: vars["category"],
		Season:   r.URL.Query().Get("season"),
		Store:    queryBool(r, "store"),
	}
	if !h.ready(w, h.deps.FBref != nil, "fbref", req.Store, false) {
		return
	}
	if err := h.validateRequest(r.Context(), &req); err != nil {
		respondFailure(w, "Invalid request", err)
		return
	}

	squad, opponent, player, err := h.deps.FBref.ScrapeStats(r.Context(), req.Season, req.League, req.Category)
	if err != nil {
		respondFailure(w, "Failed to scrape stats", err)
		return
	}

	if req.Store {
		key := func(kind string) store.StatsKey {
			return store.StatsKey{Source: "fbref", Kind: kind, League: req.League, Season: req.Season, Key: req.Category}
		}
		err := h.storeTables(r.Context(), map[store.StatsKey]*record.StatsTable{
			key("squad"):    squad,
			key("opponent"): opponent,
			key("player"):   player,
		})
		if err != nil {
			respondFailure(w, "Failed to store stats", err)
			return
		}
	}
	respondJSON(w, http.StatusOK, statsResponse{Squad: squad, Opponent: opponent, Player: player})
}

// GetFBrefLeagueTable handles GET /api/v1/fbref/{league}/table?season=
func (h *Handler) GetFBrefLeagueTable(w http.ResponseWriter, r *http.Request) {
	req := newSeasonRequest(r)
	if !h.ready(w, h.deps.FBref != nil, "fbref", req.Store, false) {
		return
	}
	if err := h.validateRequest(r.Context(), &req); err != nil {
		respondFailure(w, "Invalid request", err)
		return
	}

	tables, err := h.deps.FBref.ScrapeLeagueTable(r.Context(), req.Season, req.League)
	if err != nil {
		respondFailure(w, "Failed to scrape league table", err)
		return
	}

	if req.Store {
		batch := make(map[store.StatsKey]*record.StatsTable, len(tables))
		for i, st := range tables {
			batch[store.StatsKey{Source: "fbref", Kind: "league_table", League: req.League, Season: req.Season, Key: strconv.Itoa(i)}] = st
		}
		if err := h.storeTables(r.Context(), batch); err != nil {
			respondFailure(w, "Failed to store league table", err)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"tables": tables})
}

// GetUnderstatSeasons handles GET /api/v1/understat/{league}/seasons
func (h *Handler) GetUnderstatSeasons(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, h.deps.Understat != nil, "understat", false, false) {
		return
	}
	h.seasons(w, r, func(league string) (map[string]string, error) {
		return h.deps.Understat.ValidSeasons(r.Context(), league)
	})
}

// GetUnderstatMatchLinks handles GET /api/v1/understat/{league}/matches?season=
func (h *Handler) GetUnderstatMatchLinks(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, h.deps.Understat != nil, "understat", false, false) {
		return
	}
	h.links(w, r, func(season, league string) ([]string, error) {
		return h.deps.Understat.MatchLinks(r.Context(), season, league)
	})
}

// GetUnderstatLeagueTable handles GET /api/v1/understat/{league}/table?season=
func (h *Handler) GetUnderstatLeagueTable(w http.ResponseWriter, r *http.Request) {
	req := newSeasonRequest(r)
	if !h.ready(w, h.deps.Understat != nil, "understat", req.Store, false) {
		return
	}
	if err := h.validateRequest(r.Context(), &req); err != nil {
		respondFailure(w, "Invalid request", err)
		return
	}

	st, err := h.deps.Understat.ScrapeLeagueTable(r.Context(), req.Season, req.League)
	if err != nil {
		respondFailure(w, "Failed to scrape league table", err)
		return
	}
	if req.Store {
		key := store.StatsKey{Source: "understat", Kind: "league_table", League: req.League, Season: req.Season, Key: "xg"}
		if err := h.storeTables(r.Context(), map[store.StatsKey]*record.StatsTable{key: st}); err != nil {
			respondFailure(w, "Failed to store league table", err)
			return
		}
	}
	respondJSON(w, http.StatusOK, st)
}

// GetCapologySeasons handles GET /api/v1/capology/{league}/seasons
func (h *Handler) GetCapologySeasons(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, h.deps.Capology != nil, "capology", false, false) {
		return
	}
	h.seasons(w, r, func(league string) (map[string]string, error) {
		return h.deps.Capology.ValidSeasons(r.Context(), league)
	})
}

// GetCapologySalaries handles GET /api/v1/capology/{league}/salaries?season=&currency=
func (h *Handler) GetCapologySalaries(w http.ResponseWriter, r *http.Request) {
	req := salaryRequest{
		League:   mux.Vars(r)["league"],
		Season:   r.URL.Query().Get("season"),
		Currency: strings.ToLower(r.URL.Query().Get("currency")),
		Store:    queryBool(r, "store"),
	}
	if req.Currency == "" {
		req.Currency = "eur"
	}
	if !h.ready(w, h.deps.Capology != nil, "capology", req.Store, false) {
		return
	}
	if err := h.validateRequest(r.Context(), &req); err != nil {
		respondFailure(w, "Invalid request", err)
		return
	}

	st, err := h.deps.Capology.ScrapeSalaries(r.Context(), req.Season, req.League, req.Currency)
	if err != nil {
		respondFailure(w, "Failed to scrape salaries", err)
		return
	}
	if req.Store {
		key := store.StatsKey{Source: "capology", Kind: "salaries", League: req.League, Season: req.Season, Key: req.Currency}
		if err := h.storeTables(r.Context(), map[store.StatsKey]*record.StatsTable{key: st}); err != nil {
			respondFailure(w, "Failed to store salaries", err)
			return
		}
	}
	respondJSON(w, http.StatusOK, st)
}

// GetOddsPortalMatchLinks handles GET /api/v1/oddsportal/{league}/matches?season=
func (h *Handler) GetOddsPortalMatchLinks(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, h.deps.OddsPortal != nil, "oddsportal", false, false) {
		return
	}
	h.links(w, r, func(season, league string) ([]string, error) {
		return h.deps.OddsPortal.MatchLinks(r.Context(), season, league)
	})
}

// GetOddsPortalOdds handles GET /api/v1/oddsportal/odds?url=
func (h *Handler) GetOddsPortalOdds(w http.ResponseWriter, r *http.Request) {
	req := newPageRequest(r)
	if !h.ready(w, h.deps.OddsPortal != nil, "oddsportal", req.Store, false) {
		return
	}
	if err := h.validateRequest(r.Context(), &req); err != nil {
		respondFailure(w, "Invalid request", err)
		return
	}

	odds, err := h.deps.OddsPortal.ScrapeOdds(r.Context(), req.URL)
	if err != nil {
		respondFailure(w, "Failed to scrape odds", err)
		return
	}
	if req.Store {
		key := store.StatsKey{Source: "oddsportal", Kind: "odds", League: req.League, Season: req.Season, Key: req.URL}
		if err := h.storeTables(r.Context(), map[store.StatsKey]*record.StatsTable{key: odds.Odds}); err != nil {
			respondFailure(w, "Failed to store odds", err)
			return
		}
	}
	respondJSON(w, http.StatusOK, odds)
}

// GetTransfermarktSquad handles GET /api/v1/transfermarkt/squad?url=
func (h *Handler) GetTransfermarktSquad(w http.ResponseWriter, r *http.Request) {
	req := newPageRequest(r)
	if !h.ready(w, h.deps.Transfermarkt != nil, "transfermarkt", req.Store, false) {
		return
	}
	if err := h.validateRequest(r.Context(), &req); err != nil {
		respondFailure(w, "Invalid request", err)
		return
	}

	st, err := h.deps.Transfermarkt.ScrapeSquad(r.Context(), req.URL)
	if err != nil {
		respondFailure(w, "Failed to scrape squad", err)
		return
	}
	if req.Store {
		key := store.StatsKey{Source: "transfermarkt", Kind: "squad", League: req.League, Season: req.Season, Key: req.URL}
		if err := h.storeTables(r.Context(), map[store.StatsKey]*record.StatsTable{key: st}); err != nil {
			respondFailure(w, "Failed to store squad", err)
			return
		}
	}
	respondJSON(w, http.StatusOK, st)
}

// GetTransfermarktTransfers handles GET /api/v1/transfermarkt/players/{playerID}/transfers
func (h *Handler) GetTransfermarktTransfers(w http.ResponseWriter, r *http.Request) {
	req := transfersRequest{PlayerID: mux.Vars(r)["playerID"], Store: queryBool(r, "store")}
	if !h.ready(w, h.deps.Transfermarkt != nil, "transfermarkt", req.Store, false) {
		return
	}
	if err := h.validateRequest(r.Context(), &req); err != nil {
		respondFailure(w, "Invalid request", err)
		return
	}

	st, err := h.deps.Transfermarkt.ScrapeTransfers(r.Context(), req.PlayerID)
	if err != nil {
		respondFailure(w, "Failed to scrape transfers", err)
		return
	}
	if req.Store {
		key := store.StatsKey{Source: "transfermarkt", Kind: "transfers", Key: req.PlayerID}
		if err := h.storeTables(r.Context(), map[store.StatsKey]*record.StatsTable{key: st}); err != nil {
			respondFailure(w, "Failed to store transfers", err)
			return
		}
	}
	respondJSON(w, http.StatusOK, st)
}

// GetClubEloHistory handles GET /api/v1/clubelo/teams/{team}/history
func (h *Handler) GetClubEloHistory(w http.ResponseWriter, r *http.Request) {
	req := teamRequest{Team: mux.Vars(r)["team"], Store: queryBool(r, "store")}
	if !h.ready(w, h.deps.ClubElo != nil, "clubelo", req.Store, false) {
		return
	}
	if err := h.validateRequest(r.Context(), &req); err != nil {
		respondFailure(w, "Invalid request", err)
		return
	}

	st, err := h.deps.ClubElo.ScrapeTeamHistory(r.Context(), req.Team)
	if err != nil {
		respondFailure(w, "Failed to fetch Elo history", err)
		return
	}
	if req.Store {
		key := store.StatsKey{Source: "clubelo", Kind: "history", Key: req.Team}
		if err := h.storeTables(r.Context(), map[store.StatsKey]*record.StatsTable{key: st}); err != nil {
			respondFailure(w, "Failed to store Elo history", err)
			return
		}
	}
	respondJSON(w, http.StatusOK, st)
}

// GetClubEloRanking handles GET /api/v1/clubelo/ranking?date=YYYY-MM-DD
func (h *Handler) GetClubEloRanking(w http.ResponseWriter, r *http.Request) {
	req := rankingRequest{Date: r.URL.Query().Get("date"), Store: queryBool(r, "store")}
	if req.Date == "" {
		req.Date = time.Now().UTC().Format(clubEloDate)
	}
	if !h.ready(w, h.deps.ClubElo != nil, "clubelo", req.Store, false) {
		return
	}
	if err := h.validateRequest(r.Context(), &req); err != nil {
		respondFailure(w, "Invalid request", err)
		return
	}
	date, _ := time.Parse(clubEloDate, req.Date)

	st, err := h.deps.ClubElo.ScrapeRanking(r.Context(), date)
	if err != nil {
		respondFailure(w, "Failed to fetch Elo ranking", err)
		return
	}
	if req.Store {
		key := store.StatsKey{Source: "clubelo", Kind: "ranking", Key: req.Date}
		if err := h.storeTables(r.Context(), map[store.StatsKey]*record.StatsTable{key: st}); err != nil {
			respondFailure(w, "Failed to store Elo ranking", err)
			return
		}
	}
	respondJSON(w, http.StatusOK, st)
}
