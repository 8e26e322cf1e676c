package main

import (
	"os"

	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/cache"
	"github.com/fortuna/touchline/internal/config"
	"github.com/fortuna/touchline/internal/fetch"
	"github.com/fortuna/touchline/internal/logging"
	"github.com/fortuna/touchline/internal/store"
	"github.com/spf13/cobra"
)

// app is the state shared by every subcommand. Expensive members are built
// on first use and released in close.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	envFile string
	jsonOut bool

	redis    *cache.RedisCache
	fetcher  fetch.Fetcher
	renderer *fetch.BrowserRenderer
	db       *store.Database
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "touchline",
		Short:         "touchline scrapes football statistics into typed tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print results as JSON instead of tables")

	root.AddCommand(serveCmd(a))
	root.AddCommand(migrateCmd(a))
	root.AddCommand(backfillCmd(a))
	root.AddCommand(fbrefCmd(a))
	root.AddCommand(understatCmd(a))
	root.AddCommand(capologyCmd(a))
	root.AddCommand(oddsportalCmd(a))
	root.AddCommand(transfermarktCmd(a))
	root.AddCommand(clubeloCmd(a))
	return root
}

func (a *app) init() error {
	config.LoadDotEnv(a.envFile)
	cfg, err := config.Load()
	if err != nil {
		return crerr.Wrap(err, "load config")
	}
	a.cfg = cfg
	a.logger = logging.NewJSONTo(os.Stderr, cfg.LogLevel)
	logging.SetDefault(a.logger)
	return nil
}

func (a *app) close() {
	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// redisCache connects once when REDIS_URL is set. A nil result means Redis
// is not configured.
func (a *app) redisCache() (*cache.RedisCache, error) {
	if a.redis != nil || a.cfg.RedisURL == "" {
		return a.redis, nil
	}
	rc, err := cache.NewRedisCache(a.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.redis = rc
	return rc, nil
}

// httpFetcher is the plain fetcher, behind the Redis page cache when one is
// configured. An unreachable Redis degrades to uncached fetching.
func (a *app) httpFetcher() fetch.Fetcher {
	if a.fetcher != nil {
		return a.fetcher
	}
	var f fetch.Fetcher = fetch.NewHTTPFetcher(fetch.HTTPOptions{
		UserAgent:   a.cfg.UserAgent,
		Timeout:     a.cfg.FetchTimeout,
		Retries:     a.cfg.FetchRetries,
		MinInterval: a.cfg.FetchMinInterval,
	})
	rc, err := a.redisCache()
	switch {
	case err != nil:
		a.logger.Warn("page cache disabled", "error", err)
	case rc != nil && a.cfg.PageCacheTTL > 0:
		f = fetch.NewCachedFetcher(f, rc, a.cfg.PageCacheTTL)
	}
	a.fetcher = f
	return f
}

func (a *app) browser() (*fetch.BrowserRenderer, error) {
	if a.renderer != nil {
		return a.renderer, nil
	}
	r, err := fetch.NewBrowserRenderer(fetch.BrowserOptions{
		UserAgent:   a.cfg.UserAgent,
		Headless:    a.cfg.BrowserHeadless,
		ExecPath:    a.cfg.ChromePath,
		Timeout:     2 * a.cfg.FetchTimeout,
		MinInterval: a.cfg.FetchMinInterval,
	})
	if err != nil {
		return nil, crerr.Wrap(err, "start browser")
	}
	a.renderer = r
	return r, nil
}

// database opens Postgres once. Migrations are left to the caller.
func (a *app) database(cmd *cobra.Command) (*store.Database, error) {
	if a.db != nil {
		return a.db, nil
	}
	if err := a.cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	db, err := store.NewDatabase(cmd.Context(), a.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}
