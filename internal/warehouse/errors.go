package warehouse

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const codeUniqueViolation = "23505"

// isTransient reports whether a failed insert or commit may succeed on a later run.
// Schema, type and data errors will not resolve themselves; a unique violation can,
// because every run generates a fresh batch.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return true
	}
	switch {
	case pgErr.Code == codeUniqueViolation:
		return true
	case strings.HasPrefix(pgErr.Code, "42"),
		strings.HasPrefix(pgErr.Code, "22"),
		strings.HasPrefix(pgErr.Code, "23"):
		return false
	}
	return true
}
