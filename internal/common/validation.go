package common

import (
	"sort"
	"strings"
)

// NonFieldErrorsKey collects validation messages not tied to a single field.
const NonFieldErrorsKey = "non_field_errors"

// ValidationError reports malformed or conflicting input, keyed by field name.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError returns an empty ValidationError ready for Add.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string][]string{}}
}

// FieldError is a shorthand for a ValidationError with a single message.
func FieldError(field, msg string) *ValidationError {
	return NewValidationError().Add(field, msg)
}

// Add appends msg to the messages of field.
func (e *ValidationError) Add(field string, msgs ...string) *ValidationError {
	if len(msgs) == 0 {
		return e
	}
	e.Fields[field] = append(e.Fields[field], msgs...)
	return e
}

// Has reports whether field already carries at least one message.
func (e *ValidationError) Has(field string) bool {
	return len(e.Fields[field]) > 0
}

// Empty reports whether no messages were collected.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// OrNil returns e as an error, or nil when it is empty. It avoids the typed-nil
// interface trap at call sites.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], " "))
	}
	return "validation error: " + strings.Join(parts, "; ")
}

// RequestError is a client error carried as a single message rather than a
// field map, e.g. "refresh token is required".
type RequestError struct {
	Message string
}

func NewRequestError(msg string) *RequestError {
	return &RequestError{Message: msg}
}

func (e *RequestError) Error() string { return e.Message }
