package sqlgraph

import (
	"errors"
)

// ConstraintError is returned when a mutation violates a database
// constraint. The transaction it belonged to has been rolled back.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error implements the error interface.
func (e ConstraintError) Error() string {
	return "constraint failed: " + e.msg
}

// Unwrap returns the wrapped driver error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError wraps a driver error as a ConstraintError.
func NewConstraintError(msg string, wrap error) *ConstraintError {
	return &ConstraintError{msg: msg, wrap: wrap}
}

// sqlStateError is implemented by Postgres driver errors (pq, pgx) that
// carry a SQLSTATE code.
type sqlStateError interface {
	SQLState() string
}

// Postgres SQLSTATE codes for constraint violations (class 23).
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNotNullViolation    = "23502"
)

// IsConstraintError returns true if the error resulted from a database
// constraint violation.
func IsConstraintError(err error) bool {
	var e *ConstraintError
	return errors.As(err, &e) ||
		IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err) ||
		sqlState(err) == pgNotNullViolation
}

// IsUniqueConstraintError reports if the error resulted from a uniqueness
// constraint violation.
func IsUniqueConstraintError(err error) bool {
	return sqlState(err) == pgUniqueViolation
}

// IsForeignKeyConstraintError reports if the error resulted from a foreign
// key constraint violation.
func IsForeignKeyConstraintError(err error) bool {
	return sqlState(err) == pgForeignKeyViolation
}

// IsCheckConstraintError reports if the error resulted from a check
// constraint violation.
func IsCheckConstraintError(err error) bool {
	return sqlState(err) == pgCheckViolation
}

func sqlState(err error) string {
	for ; err != nil; err = errors.Unwrap(err) {
		if e, ok := err.(sqlStateError); ok {
			return e.SQLState()
		}
	}
	return ""
}
