package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const (
	pgUniqueViolation       = "23505"
	pgUndefinedTable        = "42P01"
	pgUndefinedFunction     = "42883"
	pgInsufficientPrivilege = "42501"
)

// IsUniqueViolation reports whether the provided error references a unique
// constraint violation. When constraintName is provided, the helper looks for
// the constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	if hasCode(err, pgUniqueViolation) {
		return true
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// IsUndefinedTable reports whether the error says the relation does not exist.
func IsUndefinedTable(err error) bool {
	if err == nil {
		return false
	}
	if hasCode(err, pgUndefinedTable) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "no such table") ||
		(strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist"))
}

// IsUndefinedFunction reports whether a stored procedure call hit a missing function.
func IsUndefinedFunction(err error) bool {
	if err == nil {
		return false
	}
	if hasCode(err, pgUndefinedFunction) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "no such function") ||
		(strings.Contains(msg, "function") && strings.Contains(msg, "does not exist"))
}

// IsInsufficientPrivilege reports whether the backend rejected the statement for lack of grants.
func IsInsufficientPrivilege(err error) bool {
	if err == nil {
		return false
	}
	if hasCode(err, pgInsufficientPrivilege) {
		return true
	}
	return strings.Contains(err.Error(), "permission denied")
}

func hasCode(err error, code string) bool {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == code
	}
	return false
}
