package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/sources/capology"
	"github.com/fortuna/touchline/internal/sources/clubelo"
	"github.com/fortuna/touchline/internal/sources/fbref"
	"github.com/fortuna/touchline/internal/sources/oddsportal"
	"github.com/fortuna/touchline/internal/sources/transfermarkt"
	"github.com/fortuna/touchline/internal/sources/understat"
	"github.com/spf13/cobra"
)

// --------------------------------------------------------------------------
// fbref
// --------------------------------------------------------------------------

func fbrefCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fbref",
		Short: "Scrape FBref match reports, stat pages and league tables",
	}
	scraper := func() *fbref.Scraper { return fbref.New(a.httpFetcher()) }

	cmd.AddCommand(&cobra.Command{
		Use:   "seasons LEAGUE",
		Short: "List the seasons FBref has for a league",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seasons, err := scraper().ValidSeasons(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printSeasons(cmd, seasons)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "links LEAGUE SEASON",
		Short: "List match report links for a season",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			links, err := scraper().MatchLinks(cmd.Context(), args[1], args[0])
			if err != nil {
				return err
			}
			return a.printList(cmd, "Match report", links)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "match URL",
		Short: "Scrape one match report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := scraper().ScrapeMatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printMatch(cmd, m)
		},
	})

	var side string
	stats := &cobra.Command{
		Use:   "stats LEAGUE SEASON CATEGORY",
		Short: "Scrape a season stat category",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			squad, opponent, player, err := scraper().ScrapeStats(cmd.Context(), args[1], args[0], args[2])
			if err != nil {
				return err
			}
			switch side {
			case "squad":
				return a.printStats(cmd, "squad "+args[2], squad)
			case "opponent":
				return a.printStats(cmd, "opponent "+args[2], opponent)
			case "player":
				return a.printStats(cmd, "player "+args[2], player)
			}
			return crerr.Newf("unknown side %q, want squad, opponent or player", side)
		},
	}
	stats.Flags().StringVar(&side, "side", "squad", "table to print: squad, opponent or player")
	cmd.AddCommand(stats)

	cmd.AddCommand(&cobra.Command{
		Use:   "table LEAGUE SEASON",
		Short: "Scrape every league table on a season page",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := scraper().ScrapeLeagueTable(cmd.Context(), args[1], args[0])
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(cmd, tables)
			}
			for i, st := range tables {
				if err := a.printStats(cmd, fmt.Sprintf("table %d", i+1), st); err != nil {
					return err
				}
			}
			return nil
		},
	})
	return cmd
}

// --------------------------------------------------------------------------
// understat
// --------------------------------------------------------------------------

func understatCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "understat",
		Short: "Scrape Understat league tables and match links",
	}
	scraper := func() (*understat.Scraper, error) {
		r, err := a.browser()
		if err != nil {
			return nil, err
		}
		return understat.New(a.httpFetcher(), r), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "seasons LEAGUE",
		Short: "List the seasons Understat has for a league",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := scraper()
			if err != nil {
				return err
			}
			seasons, err := s.ValidSeasons(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printSeasons(cmd, seasons)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "links LEAGUE SEASON",
		Short: "List match links for a season",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := scraper()
			if err != nil {
				return err
			}
			links, err := s.MatchLinks(cmd.Context(), args[1], args[0])
			if err != nil {
				return err
			}
			return a.printList(cmd, "Match", links)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "table LEAGUE SEASON",
		Short: "Scrape the expected-goals league table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := scraper()
			if err != nil {
				return err
			}
			st, err := s.ScrapeLeagueTable(cmd.Context(), args[1], args[0])
			if err != nil {
				return err
			}
			return a.printStats(cmd, args[0]+" "+args[1], st)
		},
	})
	return cmd
}

// --------------------------------------------------------------------------
// capology
// --------------------------------------------------------------------------

func capologyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capology",
		Short: "Scrape Capology salary tables",
	}
	scraper := func() (*capology.Scraper, error) {
		r, err := a.browser()
		if err != nil {
			return nil, err
		}
		return capology.New(a.httpFetcher(), r), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "seasons LEAGUE",
		Short: "List the seasons Capology has for a league",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := scraper()
			if err != nil {
				return err
			}
			seasons, err := s.ValidSeasons(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printSeasons(cmd, seasons)
		},
	})

	var currency string
	salaries := &cobra.Command{
		Use:   "salaries LEAGUE SEASON",
		Short: "Scrape player salaries for a season",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := scraper()
			if err != nil {
				return err
			}
			st, err := s.ScrapeSalaries(cmd.Context(), args[1], args[0], currency)
			if err != nil {
				return err
			}
			return a.printStats(cmd, args[0]+" "+args[1]+" ("+currency+")", st)
		},
	}
	salaries.Flags().StringVar(&currency, "currency", "eur", "salary currency: "+strings.Join(capology.Currencies, ", "))
	cmd.AddCommand(salaries)
	return cmd
}

// --------------------------------------------------------------------------
// oddsportal
// --------------------------------------------------------------------------

func oddsportalCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oddsportal",
		Short: "Scrape OddsPortal results and bookmaker odds",
	}
	scraper := func() (*oddsportal.Scraper, error) {
		r, err := a.browser()
		if err != nil {
			return nil, err
		}
		return oddsportal.New(r), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "links LEAGUE SEASON",
		Short: "List result page links for a season",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := scraper()
			if err != nil {
				return err
			}
			links, err := s.MatchLinks(cmd.Context(), args[1], args[0])
			if err != nil {
				return err
			}
			return a.printList(cmd, "Match", links)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "odds URL",
		Short: "Scrape closing odds for one match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := scraper()
			if err != nil {
				return err
			}
			odds, err := s.ScrapeOdds(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printOdds(cmd, odds)
		},
	})
	return cmd
}

// --------------------------------------------------------------------------
// transfermarkt
// --------------------------------------------------------------------------

func transfermarktCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfermarkt",
		Short: "Scrape Transfermarkt squads and transfer histories",
	}
	scraper := func() *transfermarkt.Scraper { return transfermarkt.New(a.httpFetcher()) }

	cmd.AddCommand(&cobra.Command{
		Use:   "squad CLUB_URL",
		Short: "Scrape a club squad page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := scraper().ScrapeSquad(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printStats(cmd, "squad", st)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "transfers PLAYER_ID",
		Short: "Scrape a player's transfer history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseUint(args[0], 10, 64); err != nil {
				return crerr.Newf("player id must be numeric, got %q", args[0])
			}
			st, err := scraper().ScrapeTransfers(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printStats(cmd, "transfers "+args[0], st)
		},
	})
	return cmd
}

// --------------------------------------------------------------------------
// clubelo
// --------------------------------------------------------------------------

func clubeloCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clubelo",
		Short: "Fetch ClubElo ratings",
	}
	scraper := func() *clubelo.Scraper { return clubelo.New(a.httpFetcher()) }

	cmd.AddCommand(&cobra.Command{
		Use:   "history TEAM",
		Short: "Fetch a team's rating history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := scraper().ScrapeTeamHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printStats(cmd, clubelo.TeamKey(args[0]), st)
		},
	})

	var date string
	ranking := &cobra.Command{
		Use:   "ranking",
		Short: "Fetch every club's rating on a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day := time.Now().UTC()
			if date != "" {
				parsed, err := time.Parse("2006-01-02", date)
				if err != nil {
					return crerr.Wrapf(err, "parse --date %q", date)
				}
				day = parsed
			}
			st, err := scraper().ScrapeRanking(cmd.Context(), day)
			if err != nil {
				return err
			}
			return a.printStats(cmd, "ranking "+day.Format("2006-01-02"), st)
		},
	}
	ranking.Flags().StringVar(&date, "date", "", "rating date as YYYY-MM-DD (default today, UTC)")
	cmd.AddCommand(ranking)
	return cmd
}
