package table

import (
	"math"
	"slices"
	"strconv"
	"strings"

	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/scrapeerr"
)

// Column is one entry of a two-level header. Group is empty for columns that
// sit under no group.
type Column struct {
	Group string
	Name  string
}

func (c Column) String() string {
	if c.Group == "" {
		return c.Name
	}
	return c.Group + "/" + c.Name
}

// Schema is the ordered column list of a normalized table.
type Schema []Column

// MultiLevel reports whether any column carries a group.
func (s Schema) MultiLevel() bool {
	for _, c := range s {
		if c.Group != "" {
			return true
		}
	}
	return false
}

// Index returns the position of (group, name), or -1.
func (s Schema) Index(group, name string) int {
	return slices.Index(s, Column{Group: group, Name: name})
}

// IndexName returns the position of the first column called name, whatever
// its group, or -1.
func (s Schema) IndexName(name string) int {
	return slices.IndexFunc(s, func(c Column) bool { return c.Name == name })
}

// HasGroup reports whether any column sits under group.
func (s Schema) HasGroup(group string) bool {
	return slices.ContainsFunc(s, func(c Column) bool { return c.Group == group })
}

func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Name
	}
	return out
}

// Options tune Normalize for a particular table family.
type Options struct {
	// Differential names columns whose cells carry a trailing signed
	// differential ("64+4", "55.12-3.21") to strip.
	Differential []string
	// ForwardFillGroups fills blank group labels from the label on their left,
	// for sites that only label the first column of a group.
	ForwardFillGroups bool
	// DropEmptyRows removes spacer rows in which every cell is blank.
	DropEmptyRows bool
}

// Frame is a normalized table. Source[i] is the index in the raw grid's data
// rows that Rows[i] came from; RawRows is the raw data row count. Positional
// is set when the grid had no header and the schema names are positions.
type Frame struct {
	Schema     Schema
	Rows       [][]string
	Source     []int
	RawRows    int
	Positional bool
}

func (f *Frame) Len() int { return len(f.Rows) }

// Grid renders f back into header and data rows. Normalizing the result
// yields the same schema and rows. Positional frames render without a
// header.
func (f *Frame) Grid() Grid {
	var header [][]string
	if !f.Positional {
		if f.Schema.MultiLevel() {
			groups := make([]string, len(f.Schema))
			for i, c := range f.Schema {
				groups[i] = c.Group
			}
			header = append(header, groups)
		}
		if len(f.Schema) > 0 {
			header = append(header, f.Schema.Names())
		}
	}

	rows := make([][]string, len(f.Rows))
	for i, r := range f.Rows {
		rows[i] = slices.Clone(r)
	}
	return Grid{Header: header, Rows: rows}
}

// Normalize collapses a grid's header rows into a Schema, drops header rows
// the site repeats inside the body, and strips differentials.
//
// With no header rows columns are named by position. With one header row the
// schema is flat. With two or more the last two rows give group and name; a
// group that only repeats its column's name is dropped.
func Normalize(g Grid, opts Options) (*Frame, error) {
	width := g.Width()
	schema, groupRow, nameRow := buildSchema(g.Header, width, opts.ForwardFillGroups)

	f := &Frame{Schema: schema, RawRows: len(g.Rows), Positional: len(g.Header) == 0}
	if blank(nameRow) {
		nameRow = nil
	}
	if blank(groupRow) {
		groupRow = nil
	}
	for i, row := range g.Rows {
		if nameRow != nil && slices.Equal(row, nameRow) {
			continue
		}
		if groupRow != nil && slices.Equal(row, groupRow) {
			continue
		}
		if opts.DropEmptyRows && blank(row) {
			continue
		}
		f.Rows = append(f.Rows, slices.Clone(row))
		f.Source = append(f.Source, i)
	}

	for _, name := range opts.Differential {
		col := schema.IndexName(name)
		if col < 0 {
			return nil, scrapeerr.Structural("differential column "+name, "present", 0)
		}
		for i, row := range f.Rows {
			v, err := RemoveDifferential(row[col])
			if err != nil {
				return nil, crerr.Wrapf(err, "row %d", f.Source[i])
			}
			row[col] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}

	return f, nil
}

func buildSchema(header [][]string, width int, fill bool) (Schema, []string, []string) {
	schema := make(Schema, width)

	switch len(header) {
	case 0:
		for i := range schema {
			schema[i] = Column{Name: strconv.Itoa(i)}
		}
		return schema, nil, nil
	case 1:
		for i, name := range header[0] {
			schema[i] = Column{Name: name}
		}
		return uniqueNames(schema), nil, header[0]
	}

	groupRow := header[len(header)-2]
	nameRow := header[len(header)-1]
	groups := groupRow
	if fill {
		groups = ForwardFill(groupRow)
	}
	for i := range schema {
		c := Column{Group: groups[i], Name: nameRow[i]}
		if c.Group == c.Name {
			c.Group = ""
		}
		if c.Name == "" {
			c.Name, c.Group = c.Group, ""
		}
		schema[i] = c
	}
	return uniqueNames(schema), groupRow, nameRow
}

// uniqueNames makes (group, name) pairs distinct by suffixing repeats with
// ".1", ".2" and so on. Blank names fall back to the column position.
func uniqueNames(schema Schema) Schema {
	seen := map[Column]int{}
	for i, c := range schema {
		if c.Name == "" {
			c.Name = strconv.Itoa(i)
		}
		base := c
		if n, ok := seen[base]; ok {
			for {
				c.Name = base.Name + "." + strconv.Itoa(n)
				n++
				if _, taken := seen[c]; !taken {
					break
				}
			}
			seen[base] = n
		} else {
			seen[base] = 1
		}
		seen[c] = max(seen[c], 1)
		schema[i] = c
	}
	return schema
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// RemoveDifferential returns the leading number of a cell such as "64+4" or
// "55.12-3.21". A leading sign belongs to the number itself, so "-3" is -3.
func RemoveDifferential(cell string) (float64, error) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return 0, scrapeerr.Data("differential", cell, "empty")
	}
	if i := strings.IndexAny(s[1:], "+-"); i >= 0 {
		s = s[:i+1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, scrapeerr.Data("differential", cell, "not numeric")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, scrapeerr.Data("differential", cell, "not finite")
	}
	return v, nil
}

// ForwardFill replaces each blank label with the nearest non-blank label on
// its left.
func ForwardFill(labels []string) []string {
	out := make([]string, len(labels))
	last := ""
	for i, l := range labels {
		if strings.TrimSpace(l) != "" {
			last = l
		}
		out[i] = last
	}
	return out
}
