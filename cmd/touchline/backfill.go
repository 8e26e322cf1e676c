package main

import (
	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/backfill"
	"github.com/fortuna/touchline/internal/publisher"
	"github.com/fortuna/touchline/internal/sources/fbref"
	"github.com/fortuna/touchline/internal/store/repository"
	"github.com/spf13/cobra"
)

type backfillFlags struct {
	league       string
	season       string
	urls         []string
	workers      int
	abortOnError bool
	store        bool
	skipStored   bool
	publish      bool
}

func backfillCmd(a *app) *cobra.Command {
	var flags backfillFlags
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Scrape every FBref match of a season, or a list of match reports",
		Long: `Scrape every match report of a season (--league and --season) or an
explicit list of reports (--url, repeatable). By default a failed match is
recorded and skipped; --abort-on-error stops the whole run at the first one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.backfill(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.league, "league", "", "competition name, e.g. \"Premier League\"")
	cmd.Flags().StringVar(&flags.season, "season", "", "season label, e.g. 2023-2024")
	cmd.Flags().StringSliceVar(&flags.urls, "url", nil, "match report URL to scrape (repeatable)")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "concurrent match scrapes (default BACKFILL_WORKERS)")
	cmd.Flags().BoolVar(&flags.abortOnError, "abort-on-error", false, "stop at the first failed match")
	cmd.Flags().BoolVar(&flags.store, "store", false, "persist match records to Postgres")
	cmd.Flags().BoolVar(&flags.skipStored, "skip-stored", false, "leave out matches already stored (implies --store)")
	cmd.Flags().BoolVar(&flags.publish, "publish", false, "announce stored records on the Redis event stream")
	cmd.MarkFlagsMutuallyExclusive("url", "league")
	cmd.MarkFlagsMutuallyExclusive("url", "season")
	cmd.MarkFlagsRequiredTogether("league", "season")
	return cmd
}

func (a *app) backfill(cmd *cobra.Command, flags backfillFlags) error {
	spec := backfill.JobSpec{
		Type:            backfill.JobTypeSeason,
		Source:          "fbref",
		League:          flags.league,
		Season:          flags.season,
		ContinueOnError: a.cfg.ContinueOnError && !flags.abortOnError,
		Workers:         flags.workers,
		SkipStored:      flags.skipStored,
	}
	if len(flags.urls) > 0 {
		spec.Type = backfill.JobTypeMatches
		spec.MatchURLs = flags.urls
	} else if flags.league == "" {
		return crerr.New("either --league and --season or at least one --url is required")
	}

	opts := []backfill.RunnerOption{backfill.WithDefaultWorkers(a.cfg.BackfillWorkers)}
	if flags.store || flags.skipStored {
		db, err := a.database(cmd)
		if err != nil {
			return err
		}
		if err := db.Migrate(); err != nil {
			return err
		}
		opts = append(opts, backfill.WithStore(repository.NewMatchRepository(db)))
	}
	if flags.publish {
		rc, err := a.redisCache()
		if err != nil {
			return err
		}
		if rc == nil {
			return crerr.New("--publish needs REDIS_URL")
		}
		opts = append(opts, backfill.WithPublisher(
			publisher.NewRedisStreamPublisher(rc.Client(), a.cfg.EventStream, eventStreamMaxLen)))
	}

	runner := backfill.NewRunner(fbref.New(a.httpFetcher()), opts...)
	summary, err := runner.Run(cmd.Context(), spec, backfill.LogReporter{Logger: a.logger.With("component", "backfill")})
	if summary != nil {
		if perr := a.printSummary(cmd, summary); perr != nil {
			return perr
		}
	}
	return err
}
