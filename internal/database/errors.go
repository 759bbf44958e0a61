package database

import (
	"errors"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrNotFound is returned when a lookup or owner-scoped write matches no row.
var ErrNotFound = errors.New("record not found")

// ErrLocked is returned by login bookkeeping when the account is inside an
// active lock window. The row is left untouched.
var ErrLocked = errors.New("account is locked")

// UniqueViolation reports an insert or update that collided with a unique
// constraint. Field is the column involved when it can be determined.
type UniqueViolation struct {
	Field string
	Err   error
}

func (e *UniqueViolation) Error() string {
	if e.Field == "" {
		return "unique constraint violated"
	}
	return "unique constraint violated on " + e.Field
}

func (e *UniqueViolation) Unwrap() error { return e.Err }

// classifyError maps driver-specific constraint errors to UniqueViolation.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return &UniqueViolation{Field: uniqueField(pqErr.Constraint + " " + pqErr.Detail), Err: err}
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return &UniqueViolation{Field: uniqueField(liteErr.Error()), Err: err}
		}
	}
	return err
}

func uniqueField(msg string) string {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "email"):
		return "email"
	case strings.Contains(msg, "username"):
		return "username"
	default:
		return ""
	}
}
