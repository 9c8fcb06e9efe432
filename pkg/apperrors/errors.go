// Package apperrors defines the engine's error taxonomy.
//
// Operational errors (bad input, duplicate names, missing references,
// schema mismatches) carry a machine-readable Kind plus structured details
// and are safe to surface to an operator. Database errors indicate an
// unexpected store or metadata failure and should be treated as infra
// faults by callers.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindConfiguration  Kind = "configuration"
	KindSchemaMismatch Kind = "schema_mismatch"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindDatabase       Kind = "database"
)

// Sentinels retained for errors.Is checks at call sites that only care
// about the broad class, not the structured details.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Error is a structured engine error. Field and Value identify the
// offending input when the error is operational.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Value   string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field %q", msg, e.Field)
		if e.Value != "" {
			msg = fmt.Sprintf("%s, value %q", msg, e.Value)
		}
		msg += ")"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is maps structured kinds onto the retained sentinels so that
// errors.Is(err, ErrNotFound) works regardless of how the error was built.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrConflict:
		return e.Kind == KindConflict
	}
	return false
}

// Validation builds an operational validation error.
func Validation(message, field, value string) *Error {
	return &Error{Kind: KindValidation, Message: message, Field: field, Value: value}
}

// Configuration builds an operational configuration error.
func Configuration(message, field, value string) *Error {
	return &Error{Kind: KindConfiguration, Message: message, Field: field, Value: value}
}

// SchemaMismatch builds an error naming the offending columns of an
// ingestion whose column shape disagrees with the declared schema.
func SchemaMismatch(message, field, value string) *Error {
	return &Error{Kind: KindSchemaMismatch, Message: message, Field: field, Value: value}
}

// NotFound builds an operational missing-reference error.
func NotFound(message, field, value string) *Error {
	return &Error{Kind: KindNotFound, Message: message, Field: field, Value: value}
}

// Conflict builds an operational duplicate/collision error.
func Conflict(message, field, value string) *Error {
	return &Error{Kind: KindConflict, Message: message, Field: field, Value: value}
}

// Database wraps an unexpected store failure. These propagate as a
// distinct kind so callers can alert instead of retrying silently.
func Database(message string, cause error) *Error {
	return &Error{Kind: KindDatabase, Message: message, Cause: cause}
}

// KindOf returns the Kind of err if it is (or wraps) an *Error,
// otherwise KindDatabase.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDatabase
}

// IsOperational reports whether err is safe to present to an operator.
func IsOperational(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind != KindDatabase
}
