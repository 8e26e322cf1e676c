package table

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fortuna/touchline/internal/scrapeerr"
)

// Selector identifies candidate elements on a page. Element defaults to
// "table". At most one of ID, IDPrefix and IDPattern is expected to be set;
// when several are, all of them must match. Attr is an extra CSS attribute
// filter such as `[itemprop="performer"]`.
type Selector struct {
	Element   string
	Class     string
	Attr      string
	ID        string
	IDPrefix  string
	IDPattern *regexp.Regexp
}

// ByID selects a table by exact id.
func ByID(id string) Selector {
	return Selector{ID: id}
}

// DivByID selects a container div by exact id.
func DivByID(id string) Selector {
	return Selector{Element: "div", ID: id}
}

func (s Selector) element() string {
	if s.Element == "" {
		return "table"
	}
	return s.Element
}

func (s Selector) String() string {
	var b strings.Builder
	b.WriteString(s.element())
	if s.Class != "" {
		b.WriteString(".")
		b.WriteString(s.Class)
	}
	b.WriteString(s.Attr)
	if s.ID != "" {
		fmt.Fprintf(&b, "#%s", s.ID)
	}
	if s.IDPrefix != "" {
		fmt.Fprintf(&b, "[id^=%s]", s.IDPrefix)
	}
	if s.IDPattern != nil {
		fmt.Fprintf(&b, "[id~/%s/]", s.IDPattern.String())
	}
	return b.String()
}

func (s Selector) matchID(id string) bool {
	if s.ID != "" && id != s.ID {
		return false
	}
	if s.IDPrefix != "" && !strings.HasPrefix(id, s.IDPrefix) {
		return false
	}
	if s.IDPattern != nil && !s.IDPattern.MatchString(id) {
		return false
	}
	return true
}

// Select returns every element under root matching s, in document order.
func Select(root *goquery.Selection, s Selector) *goquery.Selection {
	query := s.element()
	if s.Class != "" {
		query += "." + s.Class
	}
	query += s.Attr
	return root.Find(query).FilterFunction(func(_ int, el *goquery.Selection) bool {
		return s.matchID(el.AttrOr("id", ""))
	})
}

// One returns the single element matching s. Zero or several matches is a
// structural error: the caller's layout assumption no longer holds.
func One(root *goquery.Selection, s Selector) (*goquery.Selection, error) {
	found := Select(root, s)
	if found.Length() != 1 {
		return nil, scrapeerr.Structural(s.String(), "exactly 1 match", found.Length())
	}
	return found, nil
}

// Optional returns the element matching s, or nil when the page has none.
// More than one match is a structural error.
func Optional(root *goquery.Selection, s Selector) (*goquery.Selection, error) {
	found := Select(root, s)
	switch found.Length() {
	case 0:
		return nil, nil
	case 1:
		return found, nil
	}
	return nil, scrapeerr.Structural(s.String(), "0 or 1 matches", found.Length())
}

// Exactly returns the matches of s when there are exactly n of them.
func Exactly(root *goquery.Selection, s Selector, n int) (*goquery.Selection, error) {
	found := Select(root, s)
	if found.Length() != n {
		return nil, scrapeerr.Structural(s.String(), fmt.Sprintf("exactly %d matches", n), found.Length())
	}
	return found, nil
}

// Nth returns the i-th (zero based) match of s.
func Nth(root *goquery.Selection, s Selector, i int) (*goquery.Selection, error) {
	found := Select(root, s)
	if i < 0 || i >= found.Length() {
		return nil, scrapeerr.Structural(s.String(), fmt.Sprintf("at least %d matches", i+1), found.Length())
	}
	return found.Eq(i), nil
}
