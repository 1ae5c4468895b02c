package domain

import (
	"errors"
	"fmt"
)

// ErrCrossTenant is returned when a request references a row owned by a
// different organization.
var ErrCrossTenant = errors.New("referenced resource belongs to another organization")

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
