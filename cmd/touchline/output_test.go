package main

import (
	"bytes"
	"testing"

	"github.com/fortuna/touchline/internal/backfill"
	"github.com/fortuna/touchline/internal/config"
	"github.com/fortuna/touchline/internal/logging"
	"github.com/fortuna/touchline/internal/record"
	"github.com/fortuna/touchline/internal/table"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captured() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	return cmd, &buf
}

func sampleTable() *record.StatsTable {
	return &record.StatsTable{
		Schema: table.Schema{{Name: "Squad"}, {Group: "Expected", Name: "xG"}},
		Rows: [][]record.Value{
			{record.StringValue("Arsenal"), record.FloatValue(1.5)},
			{record.StringValue("Chelsea"), record.NullValue()},
		},
	}
}

func TestPrintStatsRendersHeaderAndRows(t *testing.T) {
	cmd, buf := captured()
	a := &app{}

	require.NoError(t, a.printStats(cmd, "league", sampleTable()))

	out := buf.String()
	assert.Contains(t, out, "EXPECTED/XG")
	assert.Contains(t, out, "Arsenal")
	assert.Contains(t, out, "Chelsea")
}

func TestPrintStatsNilTable(t *testing.T) {
	cmd, buf := captured()
	a := &app{}

	require.NoError(t, a.printStats(cmd, "player", nil))
	assert.Contains(t, buf.String(), "no table on page")
}

func TestPrintStatsJSON(t *testing.T) {
	cmd, buf := captured()
	a := &app{jsonOut: true}

	require.NoError(t, a.printStats(cmd, "league", sampleTable()))

	out := buf.String()
	assert.Contains(t, out, `"columns"`)
	assert.Contains(t, out, `"Expected"`)
	assert.Contains(t, out, `"Arsenal"`)
}

func TestPrintSummaryListsFailures(t *testing.T) {
	cmd, buf := captured()
	a := &app{}

	summary := &backfill.Summary{
		Total:   3,
		Scraped: 2,
		Failed:  []backfill.Failure{{URL: "https://fbref.com/en/matches/abc", Error: "status 500"}},
	}
	require.NoError(t, a.printSummary(cmd, summary))

	out := buf.String()
	assert.Contains(t, out, "https://fbref.com/en/matches/abc")
	assert.Contains(t, out, "status 500")
}

func TestBackfillRequiresTarget(t *testing.T) {
	cmd, _ := captured()
	a := &app{cfg: &config.Config{BackfillWorkers: 1}, logger: logging.NewNop()}

	err := a.backfill(cmd, backfillFlags{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--league")
}
