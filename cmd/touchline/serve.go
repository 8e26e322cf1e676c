package main

import (
	"context"
	"time"

	"github.com/fortuna/touchline/internal/api/rest"
	"github.com/fortuna/touchline/internal/api/websocket"
	"github.com/fortuna/touchline/internal/backfill"
	"github.com/fortuna/touchline/internal/publisher"
	"github.com/fortuna/touchline/internal/sources/capology"
	"github.com/fortuna/touchline/internal/sources/clubelo"
	"github.com/fortuna/touchline/internal/sources/fbref"
	"github.com/fortuna/touchline/internal/sources/oddsportal"
	"github.com/fortuna/touchline/internal/sources/transfermarkt"
	"github.com/fortuna/touchline/internal/sources/understat"
	"github.com/fortuna/touchline/internal/store/repository"
	"github.com/spf13/cobra"
)

const (
	eventStreamMaxLen = 100000
	shutdownTimeout   = 10 * time.Second
)

func serveCmd(a *app) *cobra.Command {
	var noBrowser bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, live backfill feed and backfill workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd, noBrowser)
		},
	}
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "skip Chrome; sources that need rendering answer 503")
	return cmd
}

func (a *app) serve(cmd *cobra.Command, noBrowser bool) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	logger := a.logger.With("component", "serve")
	logger.Info("starting touchline")

	deps := rest.Deps{Health: map[string]rest.HealthCheck{}}

	f := a.httpFetcher()
	fb := fbref.New(f)
	deps.FBref = fb
	deps.Transfermarkt = transfermarkt.New(f)
	deps.ClubElo = clubelo.New(f)

	if noBrowser {
		logger.Info("browser disabled, understat, capology and oddsportal unavailable")
	} else if r, err := a.browser(); err != nil {
		logger.Warn("browser unavailable, understat, capology and oddsportal disabled", "error", err)
	} else {
		deps.Understat = understat.New(f, r)
		deps.Capology = capology.New(f, r)
		deps.OddsPortal = oddsportal.New(r)
	}

	var events *publisher.RedisStreamPublisher
	if rc, err := a.redisCache(); err != nil {
		logger.Warn("redis unavailable, record events disabled", "error", err)
	} else if rc != nil {
		events = publisher.NewRedisStreamPublisher(rc.Client(), a.cfg.EventStream, eventStreamMaxLen)
		deps.Events = events
		deps.Health["redis"] = rc.HealthCheck
		logger.Info("publishing records", "stream", a.cfg.EventStream)
	}

	hub := websocket.NewHub()
	go hub.Run(ctx)

	var service *backfill.Service
	if a.cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, storage and backfill disabled")
	} else {
		db, err := a.database(cmd)
		if err != nil {
			return err
		}
		if err := db.Migrate(); err != nil {
			return err
		}
		matches := repository.NewMatchRepository(db)
		deps.Matches = matches
		deps.Stats = repository.NewStatsRepository(db)
		deps.Health["postgres"] = db.HealthCheck

		runnerOpts := []backfill.RunnerOption{
			backfill.WithStore(matches),
			backfill.WithDefaultWorkers(a.cfg.BackfillWorkers),
		}
		if events != nil {
			runnerOpts = append(runnerOpts, backfill.WithPublisher(events))
		}
		runners := map[string]*backfill.Runner{
			"fbref": backfill.NewRunner(fb, runnerOpts...),
		}
		service = backfill.NewService(backfill.NewRepository(db), runners,
			backfill.WithProgressFeed(hub),
			backfill.WithDefaults(a.cfg.BackfillWorkers, a.cfg.ContinueOnError),
		)
		service.Start()
		deps.Backfill = service
	}

	server := rest.NewServer(rest.ServerOptions{
		Addr:         a.cfg.HTTPAddr,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
	}, deps, hub)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down touchline gracefully")
	case runErr = <-serveErr:
		logger.Error("http server stopped", "error", runErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if service != nil {
		if err := service.Shutdown(shutdownCtx); err != nil {
			logger.Error("backfill shutdown error", "error", err)
		}
	}
	cancel()

	logger.Info("touchline stopped")
	return runErr
}
