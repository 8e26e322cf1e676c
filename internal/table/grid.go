package table

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const maxSpan = 1000

var innerWhitespace = regexp.MustCompile(`\s+`)

// Grid is a parsed table: header rows first, then data rows. Spanning cells
// are replicated into every slot they cover, and every row is padded to the
// same width.
type Grid struct {
	Header [][]string
	Rows   [][]string
}

// Width is the column count shared by every row.
func (g Grid) Width() int {
	if len(g.Header) > 0 {
		return len(g.Header[0])
	}
	if len(g.Rows) > 0 {
		return len(g.Rows[0])
	}
	return 0
}

// Len is the number of data rows.
func (g Grid) Len() int {
	return len(g.Rows)
}

// Parse reads a <table> element, or a container holding exactly one table,
// into a Grid. Header rows come from <thead>, or from leading rows made only
// of <th> cells when there is no <thead>. Data rows are the <tbody> rows
// followed by the <tfoot> rows.
func Parse(sel *goquery.Selection) (Grid, error) {
	tbl, err := resolve(sel)
	if err != nil {
		return Grid{}, err
	}

	head, body := sections(tbl)
	header := place(head)
	rows := place(body)

	width := 0
	for _, r := range header {
		width = max(width, len(r))
	}
	for _, r := range rows {
		width = max(width, len(r))
	}

	return Grid{
		Header: pad(header, width),
		Rows:   pad(rows, width),
	}, nil
}

func resolve(sel *goquery.Selection) (*goquery.Selection, error) {
	if goquery.NodeName(sel) == "table" {
		return sel.First(), nil
	}
	return One(sel, Selector{})
}

// sections splits the table's rows into header and data rows. ExtractIDs
// walks the same data rows, which is what keeps IDs aligned with the grid.
func sections(tbl *goquery.Selection) (head, body []*goquery.Selection) {
	collect := func(section string) []*goquery.Selection {
		var out []*goquery.Selection
		tbl.ChildrenFiltered(section).ChildrenFiltered("tr").Each(func(_ int, tr *goquery.Selection) {
			out = append(out, tr)
		})
		return out
	}

	head = collect("thead")
	tbody := collect("tbody")
	tfoot := collect("tfoot")

	if len(head) == 0 {
		for len(tbody) > 0 && headerOnly(tbody[0]) {
			head = append(head, tbody[0])
			tbody = tbody[1:]
		}
	}

	body = append(tbody, tfoot...)
	return head, body
}

func headerOnly(tr *goquery.Selection) bool {
	cells := tr.ChildrenFiltered("th, td")
	return cells.Length() > 0 && cells.Length() == cells.Filter("th").Length()
}

type carry struct {
	text      string
	remaining int
}

// place lays cells out on a grid, honouring colspan and rowspan.
func place(rows []*goquery.Selection) [][]string {
	out := make([][]string, 0, len(rows))
	pending := map[int]*carry{}

	for _, tr := range rows {
		var line []string
		col := 0

		fill := func() {
			for {
				c, ok := pending[col]
				if !ok || c.remaining == 0 {
					return
				}
				line = setAt(line, col, c.text)
				c.remaining--
				col++
			}
		}

		tr.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
			fill()
			text := CellText(cell)
			colspan := spanAttr(cell, "colspan")
			rowspan := spanAttr(cell, "rowspan")
			for k := 0; k < colspan; k++ {
				line = setAt(line, col+k, text)
				if rowspan > 1 {
					pending[col+k] = &carry{text: text, remaining: rowspan - 1}
				} else {
					delete(pending, col+k)
				}
			}
			col += colspan
		})

		for c, p := range pending {
			if c >= col && p.remaining > 0 {
				line = setAt(line, c, p.text)
				p.remaining--
			}
		}
		out = append(out, line)
	}
	return out
}

func setAt(line []string, i int, v string) []string {
	for len(line) <= i {
		line = append(line, "")
	}
	line[i] = v
	return line
}

func spanAttr(cell *goquery.Selection, name string) int {
	n, err := strconv.Atoi(strings.TrimSpace(cell.AttrOr(name, "1")))
	if err != nil || n < 1 {
		return 1
	}
	return min(n, maxSpan)
}

func pad(rows [][]string, width int) [][]string {
	for i, r := range rows {
		for len(r) < width {
			r = append(r, "")
		}
		rows[i] = r
	}
	return rows
}

// CellText is the whitespace-normalized text of a cell.
func CellText(sel *goquery.Selection) string {
	text := strings.ReplaceAll(sel.Text(), "\u00a0", " ")
	return strings.TrimSpace(innerWhitespace.ReplaceAllString(text, " "))
}
