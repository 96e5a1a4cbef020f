package workitem

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates the work item or requested version does not exist.
	ErrNotFound = errors.New("work item not found")
	// ErrSigned blocks deletion of a work item carrying a valid signature
	// unless force is set.
	ErrSigned = errors.New("work item has a valid signature")
)

// Violation names one invalid field.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates the violations found in a payload. It is
// returned whole so callers can report every problem at once.
type ValidationError struct {
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string) {
	e.Violations = append(e.Violations, Violation{Field: field, Message: message})
}

func (e *ValidationError) orNil() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}
