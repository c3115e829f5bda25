package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const sqlStateUniqueViolation = "23505"

// isUniqueViolation reports a duplicate (space, identity_key) insert. The
// text fallback covers drivers and mocks that do not return *pgconn.PgError.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateUniqueViolation
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, sqlStateUniqueViolation) || strings.Contains(msg, "duplicate key")
}
