package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var ErrConstraint = errors.New("constraint violation")

// classify maps integrity violations to ErrConstraint and leaves everything
// else untouched.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) == 5 && pgErr.Code[:2] == "23" {
		return errors.Join(ErrConstraint, err)
	}
	return err
}
