package refine

import (
	"errors"
	"fmt"
)

// Common refinement errors
var (
	// ErrBackendFailed is returned when the refinement backend call fails.
	ErrBackendFailed = errors.New("refinement backend call failed")

	// ErrBadResponse is returned when the backend's response cannot be
	// parsed into field values.
	ErrBadResponse = errors.New("refinement backend returned an unparseable response")

	// ErrMissingAPIKey is returned when the backend's credentials are not
	// configured.
	ErrMissingAPIKey = errors.New("missing OpenAI API key: set OPENAI_API_KEY environment variable")
)

// RefinementError wraps errors with context about the refinement failure.
// Refinement failures are always recoverable: the controller rejects the
// pass and the pipeline continues with the pattern-derived fields.
type RefinementError struct {
	// Op is the operation that failed (e.g., "Refine").
	Op string

	// Backend is the name of the refinement backend.
	Backend string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *RefinementError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("refine: %s %s failed: %s: %v", e.Backend, e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("refine: %s %s failed: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *RefinementError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *RefinementError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapRefinementError wraps an error as a RefinementError if it isn't already one.
func WrapRefinementError(backend, op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var refErr *RefinementError
	if errors.As(err, &refErr) {
		return err // Already wrapped
	}

	return &RefinementError{Op: op, Backend: backend, Err: err, Details: details}
}
