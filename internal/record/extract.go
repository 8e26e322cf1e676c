package record

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/fortuna/touchline/internal/table"
)

// IDSpec says where a table keeps its entity links: the cell to look in and
// the href path segment holding the ID. A zero IDSpec means no ID column.
type IDSpec struct {
	Cell    string
	Segment int
}

// Extract runs the full table pipeline on sel: parse, normalize, extract
// and align IDs, then assemble. IDs are extracted from the raw rows and
// aligned after normalization, so dropped rows never consume an ID.
func Extract(sel *goquery.Selection, opts table.Options, ids IDSpec) (*StatsTable, error) {
	grid, err := table.Parse(sel)
	if err != nil {
		return nil, err
	}
	frame, err := table.Normalize(grid, opts)
	if err != nil {
		return nil, err
	}
	if ids.Cell == "" {
		return AssembleStats(frame, nil)
	}

	raw, err := table.ExtractIDs(sel, ids.Cell, ids.Segment)
	if err != nil {
		return nil, err
	}
	aligned, err := frame.AlignIDs(ids.Cell+" ids", raw)
	if err != nil {
		return nil, err
	}
	return AssembleStats(frame, aligned)
}

// ExtractOptional is Extract for tables a page may legitimately lack: a nil
// selection yields a nil table and no error.
func ExtractOptional(sel *goquery.Selection, opts table.Options, ids IDSpec) (*StatsTable, error) {
	if sel == nil {
		return nil, nil
	}
	return Extract(sel, opts, ids)
}
