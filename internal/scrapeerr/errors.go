// Package scrapeerr holds the error taxonomy shared by the extraction core and
// every source module.
//
// Structural and alignment failures are fatal for the record being assembled.
// A table that is legitimately absent from a page is never an error: callers
// receive a nil table instead.
package scrapeerr

import (
	"fmt"
	"sort"
	"strings"

	crerr "github.com/cockroachdb/errors"
)

var (
	ErrRetrieval       = crerr.New("page retrieval failed")
	ErrStructural      = crerr.New("structural assumption violated")
	ErrAlignment       = crerr.New("entity id alignment mismatch")
	ErrData            = crerr.New("malformed cell data")
	ErrUnknownCategory = crerr.New("unknown stat category")
	ErrInvalidLeague   = crerr.New("invalid league")
	ErrInvalidSeason   = crerr.New("invalid season")
)

// RetrievalError reports a fetch that failed after the fetcher's own retry
// policy was exhausted. Status is zero for transport failures and timeouts.
type RetrievalError struct {
	URL    string
	Status int
	Err    error
}

func (e *RetrievalError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: failed", e.URL)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

func (e *RetrievalError) Is(target error) bool { return target == ErrRetrieval }

// StructuralError means a page did not have the expected number of some
// element. It usually signals a site layout change.
type StructuralError struct {
	What  string
	Want  string
	Found int
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s: expected %s, found %d", e.What, e.Want, e.Found)
}

func (e *StructuralError) Is(target error) bool { return target == ErrStructural }

// AlignmentError means an entity ID sequence and its grid disagree on the
// number of rows.
type AlignmentError struct {
	What string
	IDs  int
	Rows int
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("%s: %d ids for %d rows", e.What, e.IDs, e.Rows)
}

func (e *AlignmentError) Is(target error) bool { return target == ErrAlignment }

func Retrieval(url string, status int, err error) error {
	return &RetrievalError{URL: url, Status: status, Err: err}
}

func Structural(what, want string, found int) error {
	return &StructuralError{What: what, Want: want, Found: found}
}

func Alignment(what string, ids, rows int) error {
	return &AlignmentError{What: what, IDs: ids, Rows: rows}
}

// Data marks a cell that could not be parsed the way its column requires.
func Data(column, cell, reason string) error {
	return crerr.Mark(crerr.Newf("column %q: cell %q: %s", column, cell, reason), ErrData)
}

func UnknownCategory(category string, known []string) error {
	err := crerr.Mark(crerr.Newf("stat category %q", category), ErrUnknownCategory)
	return crerr.WithHintf(err, "valid categories: %s", joinSorted(known))
}

func InvalidLeague(source, league string, known []string) error {
	err := crerr.Mark(crerr.Newf("%s league %q", source, league), ErrInvalidLeague)
	return crerr.WithHintf(err, "valid leagues: %s", joinSorted(known))
}

func InvalidSeason(source, league, season string) error {
	return crerr.Mark(crerr.Newf("%s season %q for league %q", source, season, league), ErrInvalidSeason)
}

// AtURL attaches the page a failure came from.
func AtURL(err error, url string) error {
	if err == nil {
		return nil
	}
	return crerr.Wrapf(err, "%s", url)
}

// IsCatalog reports whether err is a caller error raised before any fetch.
func IsCatalog(err error) bool {
	return crerr.Is(err, ErrUnknownCategory) ||
		crerr.Is(err, ErrInvalidLeague) ||
		crerr.Is(err, ErrInvalidSeason)
}

func joinSorted(values []string) string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return strings.Join(out, ", ")
}
