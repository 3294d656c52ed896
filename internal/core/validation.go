package core

// validation.go describes why a row could not become a canonical record.
//
// Errors name the canonical field and the reason, never the provider's
// column, so one message shape can be shown to users for every source.

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string // Canonical field name
	Value   string // The offending value, empty when missing
	Message string // Human-readable reason
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// FieldErrors collects every field that failed during standardization.
type FieldErrors []ValidationError

func (fe FieldErrors) Error() string {
	parts := make([]string, len(fe))
	for i, e := range fe {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// Fields returns the names of the failed fields in order.
func (fe FieldErrors) Fields() []string {
	out := make([]string, len(fe))
	for i, e := range fe {
		out[i] = e.Field
	}
	return out
}

// fieldError converts a coercer error into a ValidationError for field.
func fieldError(field, value string, err error) ValidationError {
	if errors.Is(err, ErrEmptyValue) {
		return ValidationError{Field: field, Message: "missing"}
	}
	return ValidationError{Field: field, Value: value, Message: err.Error()}
}

// FailedFields extracts the failed field names from an error returned by Standardize.
func FailedFields(err error) []string {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe.Fields()
	}
	return nil
}
