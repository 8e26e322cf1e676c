package fbref

import (
	"maps"
	"regexp"
	"slices"
	"strconv"

	"github.com/fortuna/touchline/internal/scrapeerr"
)

const BaseURL = "https://fbref.com"

// Competition is an FBref competition id and the slug its URLs use.
type Competition struct {
	ID   int
	Slug string
}

// Leagues maps the league names callers use to FBref competitions.
var Leagues = map[string]Competition{
	"EPL":                  {9, "Premier-League"},
	"EFL Championship":     {10, "Championship"},
	"La Liga":              {12, "La-Liga"},
	"Bundesliga":           {20, "Bundesliga"},
	"Serie A":              {11, "Serie-A"},
	"Ligue 1":              {13, "Ligue-1"},
	"Eredivisie":           {23, "Eredivisie"},
	"Primeira Liga":        {32, "Primeira-Liga"},
	"MLS":                  {22, "Major-League-Soccer"},
	"Liga MX":              {31, "Liga-MX"},
	"Champions League":     {8, "Champions-League"},
	"Europa League":        {19, "Europa-League"},
	"Women's Super League": {189, "Womens-Super-League"},
	"NWSL":                 {182, "NWSL"},
	"World Cup":            {1, "World-Cup"},
	"Euros":                {676, "European-Championship"},
}

// Category describes where a stat category lives: the path segment of its
// page and the key its table ids are built from.
type Category struct {
	Path string
	Key  string
}

// Categories maps stat category names to their pages.
var Categories = map[string]Category{
	"standard":               {"stats", "standard"},
	"goalkeeping":            {"keepers", "keeper"},
	"advanced goalkeeping":   {"keepersadv", "keeper_adv"},
	"shooting":               {"shooting", "shooting"},
	"passing":                {"passing", "passing"},
	"pass types":             {"passing_types", "passing_types"},
	"goal and shot creation": {"gca", "gca"},
	"defensive":              {"defense", "defense"},
	"possession":             {"possession", "possession"},
	"playing time":           {"playingtime", "playing_time"},
	"misc":                   {"misc", "misc"},
}

var seasonPattern = regexp.MustCompile(`^(\d{4})(?:-(\d{4}))?$`)

func lookupLeague(league string) (Competition, error) {
	comp, ok := Leagues[league]
	if !ok {
		return Competition{}, scrapeerr.InvalidLeague("fbref", league, slices.Collect(maps.Keys(Leagues)))
	}
	return comp, nil
}

func lookupCategory(category string) (Category, error) {
	cat, ok := Categories[category]
	if !ok {
		return Category{}, scrapeerr.UnknownCategory(category, slices.Collect(maps.Keys(Categories)))
	}
	return cat, nil
}

// checkSeason rejects labels that are not "2024" or "2023-2024" shaped.
// Whether FBref actually has the season is only known after fetching the
// competition history.
func checkSeason(league, season string) error {
	m := seasonPattern.FindStringSubmatch(season)
	if m == nil {
		return scrapeerr.InvalidSeason("fbref", league, season)
	}
	if m[2] != "" {
		start, _ := strconv.Atoi(m[1])
		end, _ := strconv.Atoi(m[2])
		if end != start+1 {
			return scrapeerr.InvalidSeason("fbref", league, season)
		}
	}
	return nil
}
