package table

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fortuna/touchline/internal/scrapeerr"
)

// ExtractIDs walks the same data rows Parse produces and, for each, reads the
// href of the first link inside the cell matched by cellSelector. The ID is
// path segment number segment of that href. Rows without a link yield "" so
// the result always has one entry per raw data row.
func ExtractIDs(sel *goquery.Selection, cellSelector string, segment int) ([]string, error) {
	body, err := BodyRows(sel)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(body))
	for i, tr := range body {
		href, ok := tr.Find(cellSelector).First().Find("a").First().Attr("href")
		if !ok {
			continue
		}
		ids[i] = HrefSegment(href, segment)
	}
	return ids, nil
}

// BodyRows returns the data rows of the table in sel, in the order Parse
// lays them out, for sources that read more from a row than its cell text.
func BodyRows(sel *goquery.Selection) ([]*goquery.Selection, error) {
	tbl, err := resolve(sel)
	if err != nil {
		return nil, err
	}
	_, body := sections(tbl)
	return body, nil
}

// HrefSegment splits the path of href on "/" and returns element idx, or ""
// when there are not enough segments. For "/en/squads/abc123/Stats" index 3
// is "abc123".
func HrefSegment(href string, idx int) string {
	path := href
	if u, err := url.Parse(href); err == nil {
		path = u.Path
	}
	parts := strings.Split(path, "/")
	if idx < 0 || idx >= len(parts) {
		return ""
	}
	return parts[idx]
}

// AlignIDs maps IDs extracted from the raw grid onto the rows that survived
// normalization. A length mismatch between ids and the raw grid is an
// alignment error.
func (f *Frame) AlignIDs(what string, ids []string) ([]string, error) {
	if len(ids) != f.RawRows {
		return nil, scrapeerr.Alignment(what, len(ids), f.RawRows)
	}
	out := make([]string, len(f.Source))
	for i, src := range f.Source {
		out[i] = ids[src]
	}
	return out, nil
}
