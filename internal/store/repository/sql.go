package repository

import (
	crerr "github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
)

// sqlxIn expands slice arguments of an IN (?) query; callers Rebind the
// result for Postgres.
func sqlxIn(query string, args ...any) (string, []any, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, crerr.Wrap(err, "expand IN query")
	}
	return q, a, nil
}
