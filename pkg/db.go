package pkg

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// postgres error codes: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgCodeUniqueViolation     = "23505"
	pgCodeForeignKeyViolation = "23503"
)

// IsUniqueViolationError reports whether err is, or wraps, a postgres
// unique constraint violation.
func IsUniqueViolationError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgCodeUniqueViolation
	}
	return false
}

// IsForeignKeyViolationError reports whether err is, or wraps, a postgres
// foreign key constraint violation.
func IsForeignKeyViolationError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgCodeForeignKeyViolation
	}
	return false
}
