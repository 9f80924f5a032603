// Package apperrors provides structured application errors with HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation         = errors.New("validation error")
	ErrMissingDependency  = errors.New("missing dependency")
	ErrCircularDependency = errors.New("circular dependency")
	ErrNotFound           = errors.New("not found")
	ErrSourceNotFound     = errors.New("source not found")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal error")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "name", "timeout")
	Step     string // Step the error relates to, if any
	Resource string // For not found/conflict (e.g., "artifact", "run")
	Op       string // Operation that failed (e.g., "artifact.store")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// StepValidation creates a validation error scoped to a step.
func StepValidation(step, field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  fmt.Sprintf("step %q: %s", step, message),
		Field:    field,
		Step:     step,
	}
}

// MissingDependency creates a graph error for a dependency on an unknown step.
func MissingDependency(step, dependency string) error {
	return &Error{
		Sentinel: ErrMissingDependency,
		Message:  fmt.Sprintf("step %q depends on unknown step %q", step, dependency),
		Step:     step,
	}
}

// CircularDependency creates a graph error naming the cycle path.
// The path includes the closing step, e.g. ["a", "b", "a"].
func CircularDependency(path []string) error {
	step := ""
	if len(path) > 0 {
		step = path[0]
	}
	return &Error{
		Sentinel: ErrCircularDependency,
		Message:  fmt.Sprintf("circular dependency: %s", strings.Join(path, " -> ")),
		Step:     step,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
	}
}

// SourceNotFound creates an error for an artifact source path that does not exist.
func SourceNotFound(step, path string) error {
	return &Error{
		Sentinel: ErrSourceNotFound,
		Message:  fmt.Sprintf("artifact source %q for step %q not found", path, step),
		Step:     step,
		Resource: "artifact",
	}
}

// Conflict creates a conflict error for a resource.
func Conflict(resource, id, reason string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  reason,
		Resource: resource,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}
