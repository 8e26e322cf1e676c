package rest

import (
	"context"
	"net/http"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/logging"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LiveFeed is the websocket endpoint mounted next to the API.
type LiveFeed interface {
	http.Handler
	HealthHandler(w http.ResponseWriter, r *http.Request)
}

// Server represents the REST API server
type Server struct {
	server *http.Server
	logger *logging.Logger
}

// ServerOptions are the listener settings.
type ServerOptions struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRouter builds the route table. feed may be nil.
func NewRouter(deps Deps, feed LiveFeed) http.Handler {
	handler := NewHandler(deps)
	logger := handler.logger

	router := mux.NewRouter()
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggingMiddleware(logger))

	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	if feed != nil {
		router.Handle("/ws/backfill", feed).Methods("GET")
		router.HandleFunc("/ws/health", feed.HealthHandler).Methods("GET")
	}

	api := router.PathPrefix("/api/v1").Subrouter()

	// FBref
	api.HandleFunc("/fbref/match", handler.GetFBrefMatch).Methods("GET")
	api.HandleFunc("/fbref/{league}/seasons", handler.GetFBrefSeasons).Methods("GET")
	api.HandleFunc("/fbref/{league}/matches", handler.GetFBrefMatchLinks).Methods("GET")
	api.HandleFunc("/fbref/{league}/stats/{category}", handler.GetFBrefStats).Methods("GET")
	api.HandleFunc("/fbref/{league}/table", handler.GetFBrefLeagueTable).Methods("GET")

	// Understat
	api.HandleFunc("/understat/{league}/seasons", handler.GetUnderstatSeasons).Methods("GET")
	api.HandleFunc("/understat/{league}/matches", handler.GetUnderstatMatchLinks).Methods("GET")
	api.HandleFunc("/understat/{league}/table", handler.GetUnderstatLeagueTable).Methods("GET")

	// Capology
	api.HandleFunc("/capology/{league}/seasons", handler.GetCapologySeasons).Methods("GET")
	api.HandleFunc("/capology/{league}/salaries", handler.GetCapologySalaries).Methods("GET")

	// OddsPortal
	api.HandleFunc("/oddsportal/odds", handler.GetOddsPortalOdds).Methods("GET")
	api.HandleFunc("/oddsportal/{league}/matches", handler.GetOddsPortalMatchLinks).Methods("GET")

	// Transfermarkt
	api.HandleFunc("/transfermarkt/squad", handler.GetTransfermarktSquad).Methods("GET")
	api.HandleFunc("/transfermarkt/players/{playerID}/transfers", handler.GetTransfermarktTransfers).Methods("GET")

	// ClubElo
	api.HandleFunc("/clubelo/ranking", handler.GetClubEloRanking).Methods("GET")
	api.HandleFunc("/clubelo/teams/{team}/history", handler.GetClubEloHistory).Methods("GET")

	// Stored records
	api.HandleFunc("/records/matches", handler.ListStoredMatches).Methods("GET")
	api.HandleFunc("/records/match", handler.GetStoredMatch).Methods("GET")
	api.HandleFunc("/records/stats", handler.GetStoredStats).Methods("GET")

	// Backfill operations
	api.HandleFunc("/backfill", handler.HandleBackfillRequest).Methods("POST")
	api.HandleFunc("/backfill/status", handler.HandleBackfillStatus).Methods("GET")
	api.HandleFunc("/backfill/jobs/{jobID:[0-9]+}", handler.HandleBackfillJob).Methods("GET")

	return CORSMiddleware(router)
}

// NewServer creates a new REST API server
func NewServer(opts ServerOptions, deps Deps, feed LiveFeed) *Server {
	return &Server{
		logger: logging.Component("rest"),
		server: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewRouter(deps, feed),
			ReadTimeout:       opts.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      opts.WriteTimeout,
		},
	}
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !crerr.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
