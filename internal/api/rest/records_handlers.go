package rest

import (
	"net/http"

	"github.com/fortuna/touchline/internal/store"
	"github.com/fortuna/touchline/internal/store/repository"
)

type matchListRequest struct {
	Source string
	League string
	Season string
	TeamID string
	Limit  int `validate:"min=1,max=500"`
}

type storedMatchRequest struct {
	URL string `validate:"required,url"`
}

type storedStatsRequest struct {
	Source string `validate:"required"`
	Kind   string `validate:"required"`
	League string
	Season string
	Key    string `validate:"required"`
}

type storedMatchResponse struct {
	Match  *store.MatchRow `json:"match"`
	Record rawJSON         `json:"record"`
}

type storedStatsResponse struct {
	Table *store.StatsRow `json:"table"`
	Data  rawJSON         `json:"data"`
}

// ListStoredMatches handles GET /api/v1/records/matches
func (h *Handler) ListStoredMatches(w http.ResponseWriter, r *http.Request) {
	if h.deps.Matches == nil {
		respondError(w, http.StatusServiceUnavailable, "match store is not configured", errUnavailable)
		return
	}
	q := r.URL.Query()
	req := matchListRequest{
		Source: q.Get("source"),
		League: q.Get("league"),
		Season: q.Get("season"),
		TeamID: q.Get("team_id"),
		Limit:  queryInt(r, "limit", 100),
	}
	if err := h.validateRequest(r.Context(), &req); err != nil {
		respondFailure(w, "Invalid request", err)
		return
	}

	rows, err := h.deps.Matches.List(r.Context(), repository.MatchFilter{
		Source: req.Source,
		League: req.League,
		Season: req.Season,
		TeamID: req.TeamID,
		Limit:  req.Limit,
	})
	if err != nil {
		respondFailure(w, "Failed to list matches", err)
		return
	}
	if rows == nil {
		rows = []*store.MatchRow{}
	}
	respondJSON(w, http.StatusOK, rows)
}

// GetStoredMatch handles GET /api/v1/records/match?url=
func (h *Handler) GetStoredMatch(w http.ResponseWriter, r *http.Request) {
	if h.deps.Matches == nil {
		respondError(w, http.StatusServiceUnavailable, "match store is not configured", errUnavailable)
		return
	}
	req := storedMatchRequest{URL: r.URL.Query().Get("url")}
	if err := h.validateRequest(r.Context(), &req); err != nil {
		respondFailure(w, "Invalid request", err)
		return
	}

	row, err := h.deps.Matches.GetByURL(r.Context(), req.URL)
	if err != nil {
		respondFailure(w, "Failed to fetch match", err)
		return
	}
	respondJSON(w, http.StatusOK, storedMatchResponse{Match: row, Record: rawJSON(row.Payload)})
}

// GetStoredStats handles GET /api/v1/records/stats?source=&kind=&league=&season=&key=
func (h *Handler) GetStoredStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Stats == nil {
		respondError(w, http.StatusServiceUnavailable, "stats store is not configured", errUnavailable)
		return
	}
	q := r.URL.Query()
	req := storedStatsRequest{
		Source: q.Get("source"),
		Kind:   q.Get("kind"),
		League: q.Get("league"),
		Season: q.Get("season"),
		Key:    q.Get("key"),
	}
	if err := h.validateRequest(r.Context(), &req); err != nil {
		respondFailure(w, "Invalid request", err)
		return
	}

	row, err := h.deps.Stats.Get(r.Context(), store.StatsKey{
		Source: req.Source,
		Kind:   req.Kind,
		League: req.League,
		Season: req.Season,
		Key:    req.Key,
	})
	if err != nil {
		respondFailure(w, "Failed to fetch stats table", err)
		return
	}
	respondJSON(w, http.StatusOK, storedStatsResponse{Table: row, Data: rawJSON(row.Payload)})
}
