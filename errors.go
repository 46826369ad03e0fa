package exo

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for the core error kinds.
//
// Typed errors returned by the subsystems wrap one of these sentinels,
// so callers can classify any error with errors.Is:
//
//	if errors.Is(err, exo.ErrValidation) { ... }
var (
	// ErrValidation is the kind for malformed input: unknown fields, stray
	// arguments, missing variables, wrong scalar shapes, values out of range,
	// and null in a non-nullable position.
	ErrValidation = errors.New("exo: validation error")

	// ErrAuthorization is the kind for operations whose access expression
	// reduced to a definitive deny.
	ErrAuthorization = errors.New("exo: not authorized")

	// ErrCast is the kind for type conversion failures at the SQL parameter
	// boundary (date parse, numeric overflow, uuid parse, vector dimension
	// mismatch).
	ErrCast = errors.New("exo: cast error")

	// ErrDatabase is the kind for transport or constraint failures reported
	// by Postgres.
	ErrDatabase = errors.New("exo: database error")

	// ErrMigration is the kind for diffs that produced an inconsistent plan.
	ErrMigration = errors.New("exo: migration error")

	// ErrInternal is the bug class: a violated invariant. It surfaces as a
	// server error and is never retried.
	ErrInternal = errors.New("exo: internal error")
)

// ValidationError reports malformed client input. It carries the operation
// position when one is known so it can be surfaced as a GraphQL error
// location.
type ValidationError struct {
	Message string
	Line    int
	Column  int
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	return "exo: " + e.Message
}

// Is reports whether the target error matches ErrValidation.
func (e *ValidationError) Is(err error) bool {
	return err == ErrValidation
}

// Validationf returns a new ValidationError with a formatted message.
func Validationf(format string, a ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, a...)}
}

// IsValidation returns true if the error is a ValidationError.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e) || errors.Is(err, ErrValidation)
}

// AuthorizationError reports a denied operation. The message is generic on
// purpose: the residual predicate that produced the denial is never surfaced
// to the caller.
type AuthorizationError struct {
	Operation string
}

// Error returns the error string.
func (e *AuthorizationError) Error() string {
	return "exo: not authorized"
}

// Is reports whether the target error matches ErrAuthorization.
func (e *AuthorizationError) Is(err error) bool {
	return err == ErrAuthorization
}

// IsAuthorization returns true if the error is an AuthorizationError.
func IsAuthorization(err error) bool {
	if err == nil {
		return false
	}
	var e *AuthorizationError
	return errors.As(err, &e) || errors.Is(err, ErrAuthorization)
}

// CastError reports a failed conversion of an argument value to a SQL
// parameter. The message is bounded: it names the target type and the
// offending shape, never the full value.
type CastError struct {
	Type    string // target physical type
	Message string
}

// Error returns the error string.
func (e *CastError) Error() string {
	return fmt.Sprintf("exo: cannot cast to %s: %s", e.Type, e.Message)
}

// Is reports whether the target error matches ErrCast.
func (e *CastError) Is(err error) bool {
	return err == ErrCast
}

// Castf returns a new CastError for the given target type.
func Castf(typ, format string, a ...any) *CastError {
	return &CastError{Type: typ, Message: fmt.Sprintf(format, a...)}
}

// IsCast returns true if the error is a CastError.
func IsCast(err error) bool {
	if err == nil {
		return false
	}
	var e *CastError
	return errors.As(err, &e) || errors.Is(err, ErrCast)
}

// DatabaseError wraps a failure reported by the database. The driver message
// is kept for the server log; Error returns the sanitized form.
type DatabaseError struct {
	Message string
	Err     error
}

// Error returns the error string.
func (e *DatabaseError) Error() string {
	return "exo: database error: " + e.Message
}

// Unwrap returns the underlying driver error.
func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ErrDatabase.
func (e *DatabaseError) Is(err error) bool {
	return err == ErrDatabase
}

// IsDatabase returns true if the error is a DatabaseError.
func IsDatabase(err error) bool {
	if err == nil {
		return false
	}
	var e *DatabaseError
	return errors.As(err, &e) || errors.Is(err, ErrDatabase)
}

// MigrationError reports an inconsistent migration plan. No SQL is emitted
// when one is returned.
type MigrationError struct {
	Message string
}

// Error returns the error string.
func (e *MigrationError) Error() string {
	return "exo: migration error: " + e.Message
}

// Is reports whether the target error matches ErrMigration.
func (e *MigrationError) Is(err error) bool {
	return err == ErrMigration
}

// Migrationf returns a new MigrationError with a formatted message.
func Migrationf(format string, a ...any) *MigrationError {
	return &MigrationError{Message: fmt.Sprintf(format, a...)}
}

// InternalError reports a violated invariant.
type InternalError struct {
	Message string
}

// Error returns the error string.
func (e *InternalError) Error() string {
	return "exo: internal error: " + e.Message
}

// Is reports whether the target error matches ErrInternal.
func (e *InternalError) Is(err error) bool {
	return err == ErrInternal
}

// Internalf returns a new InternalError with a formatted message.
func Internalf(format string, a ...any) *InternalError {
	return &InternalError{Message: fmt.Sprintf(format, a...)}
}
