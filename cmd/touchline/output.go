package main

import (
	"io"
	"maps"
	"slices"

	"github.com/bytedance/sonic"
	"github.com/fortuna/touchline/internal/backfill"
	"github.com/fortuna/touchline/internal/record"
	"github.com/fortuna/touchline/internal/sources/oddsportal"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func (a *app) printJSON(cmd *cobra.Command, v any) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if _, err := w.Write(out); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}

// printStats renders one stats table. A nil table is reported rather than
// treated as an error.
func (a *app) printStats(cmd *cobra.Command, title string, st *record.StatsTable) error {
	if a.jsonOut {
		return a.printJSON(cmd, st)
	}
	t := newTable(cmd.OutOrStdout())
	t.SetTitle(title)
	if st == nil {
		t.AppendRow(table.Row{"no table on page"})
		t.Render()
		return nil
	}
	header := make(table.Row, 0, len(st.Schema))
	for _, h := range st.Header() {
		header = append(header, h)
	}
	t.AppendHeader(header)
	for _, row := range st.Rows {
		r := make(table.Row, len(row))
		for i, v := range row {
			r[i] = v.String()
		}
		t.AppendRow(r)
	}
	t.AppendFooter(table.Row{st.Len(), "rows"})
	t.Render()
	return nil
}

func (a *app) printList(cmd *cobra.Command, heading string, items []string) error {
	if a.jsonOut {
		return a.printJSON(cmd, items)
	}
	t := newTable(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"#", heading})
	for i, item := range items {
		t.AppendRow(table.Row{i + 1, item})
	}
	t.Render()
	return nil
}

// printSeasons lists season labels in order next to their page URLs.
func (a *app) printSeasons(cmd *cobra.Command, seasons map[string]string) error {
	if a.jsonOut {
		return a.printJSON(cmd, seasons)
	}
	t := newTable(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Season", "URL"})
	for _, s := range slices.Sorted(maps.Keys(seasons)) {
		t.AppendRow(table.Row{s, seasons[s]})
	}
	t.Render()
	return nil
}

func (a *app) printMatch(cmd *cobra.Command, m *record.MatchRecord) error {
	if a.jsonOut {
		return a.printJSON(cmd, m)
	}
	t := newTable(cmd.OutOrStdout())
	t.SetTitle(m.URL)
	t.AppendHeader(table.Row{"", "Home", "Away"})
	date := ""
	if m.Date != nil {
		date = m.Date.Format("2006-01-02")
	}
	t.AppendRow(table.Row{"Date", date, ""})
	t.AppendRow(table.Row{"Stage", m.Stage.String(), ""})
	t.AppendSeparator()
	t.AppendRow(table.Row{"Team", m.Home.Name, m.Away.Name})
	t.AppendRow(table.Row{"ID", m.Home.ID, m.Away.ID})
	t.AppendRow(table.Row{"Goals", orBlank(m.Home.Goals), orBlank(m.Away.Goals)})
	t.AppendRow(table.Row{"Formation", orBlank(m.Home.Formation), orBlank(m.Away.Formation)})
	if m.HasExpected {
		t.AppendRow(table.Row{"xG", orBlank(m.Home.XG), orBlank(m.Away.XG)})
		t.AppendRow(table.Row{"npxG", orBlank(m.Home.NPXG), orBlank(m.Away.NPXG)})
		t.AppendRow(table.Row{"xAG", orBlank(m.Home.XAG), orBlank(m.Away.XAG)})
	}
	t.Render()
	return nil
}

func (a *app) printOdds(cmd *cobra.Command, odds *oddsportal.MatchOdds) error {
	if a.jsonOut {
		return a.printJSON(cmd, odds)
	}
	return a.printStats(cmd, odds.Home+" v "+odds.Away, odds.Odds)
}

func (a *app) printSummary(cmd *cobra.Command, summary *backfill.Summary) error {
	if a.jsonOut {
		return a.printJSON(cmd, summary)
	}
	t := newTable(cmd.OutOrStdout())
	t.SetTitle("backfill")
	t.AppendHeader(table.Row{"Total", "Scraped", "Skipped", "Failed"})
	t.AppendRow(table.Row{summary.Total, summary.Scraped, summary.Skipped, len(summary.Failed)})
	t.Render()

	if len(summary.Failed) == 0 {
		return nil
	}
	failed := newTable(cmd.OutOrStdout())
	failed.SetTitle("failures")
	failed.AppendHeader(table.Row{"URL", "Error"})
	for _, f := range summary.Failed {
		failed.AppendRow(table.Row{f.URL, f.Error})
	}
	failed.Render()
	return nil
}

func orBlank[T any](v *T) any {
	if v == nil {
		return ""
	}
	return *v
}
