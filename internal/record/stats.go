package record

import (
	"github.com/bytedance/sonic"
	"github.com/fortuna/touchline/internal/scrapeerr"
	"github.com/fortuna/touchline/internal/table"
)

// IDColumn is the name of the entity ID column appended by AssembleStats.
const IDColumn = "ID"

// StatsTable is a typed, rectangular table. It is not modified after a
// source module returns it.
type StatsTable struct {
	Schema table.Schema
	Rows   [][]Value
}

// NewStatsTable types every cell of a normalized frame.
func NewStatsTable(f *table.Frame) *StatsTable {
	st := &StatsTable{
		Schema: append(table.Schema(nil), f.Schema...),
		Rows:   make([][]Value, len(f.Rows)),
	}
	for i, row := range f.Rows {
		typed := make([]Value, len(row))
		for j, cell := range row {
			typed[j] = Infer(cell)
		}
		st.Rows[i] = typed
	}
	return st
}

// AssembleStats types a frame and appends an ID column holding ids, which
// must already be aligned to the frame's surviving rows. A nil ids slice
// means the table has no entity column.
func AssembleStats(f *table.Frame, ids []string) (*StatsTable, error) {
	if ids != nil && len(ids) != f.Len() {
		return nil, scrapeerr.Alignment("stats table ids", len(ids), f.Len())
	}

	st := NewStatsTable(f)
	if ids == nil {
		return st, nil
	}

	st.Schema = append(st.Schema, table.Column{Name: IDColumn})
	for i := range st.Rows {
		st.Rows[i] = append(st.Rows[i], StringValue(ids[i]))
	}
	return st, nil
}

func (t *StatsTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Get returns the cell of row i under (group, name), or Null when the column
// does not exist.
func (t *StatsTable) Get(i int, group, name string) Value {
	col := t.Schema.Index(group, name)
	if col < 0 || i < 0 || i >= len(t.Rows) {
		return NullValue()
	}
	return t.Rows[i][col]
}

// Last returns the cell under (group, name) in the final row. Per-player
// tables on match pages end with the team totals row.
func (t *StatsTable) Last(group, name string) Value {
	if t.Len() == 0 {
		return NullValue()
	}
	return t.Get(len(t.Rows)-1, group, name)
}

// Column returns every cell under (group, name), or nil.
func (t *StatsTable) Column(group, name string) []Value {
	col := t.Schema.Index(group, name)
	if col < 0 {
		return nil
	}
	out := make([]Value, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[col]
	}
	return out
}

// IDs returns the entity ID column, or nil when the table has none.
func (t *StatsTable) IDs() []string {
	vals := t.Column("", IDColumn)
	if vals == nil {
		return nil
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.Str
	}
	return out
}

// Header renders the schema as display labels, "Group/Name" for grouped
// columns.
func (t *StatsTable) Header() []string {
	out := make([]string, len(t.Schema))
	for i, c := range t.Schema {
		out[i] = c.String()
	}
	return out
}

type statsJSON struct {
	Columns [][2]string `json:"columns"`
	Rows    [][]Value   `json:"rows"`
}

func (t *StatsTable) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("null"), nil
	}
	out := statsJSON{Columns: make([][2]string, len(t.Schema)), Rows: t.Rows}
	for i, c := range t.Schema {
		out.Columns[i] = [2]string{c.Group, c.Name}
	}
	if out.Rows == nil {
		out.Rows = [][]Value{}
	}
	return sonic.Marshal(out)
}
