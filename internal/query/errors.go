package query

import "fmt"

// ValidationError reports malformed or out-of-range request input.
// It is always surfaced before any computation begins.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError for a field.
func Validationf(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InsufficientDataError reports that too few usable documents matched
// the filter for a statistically meaningful result.
type InsufficientDataError struct {
	Need int
	Got  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: need at least %d usable documents, got %d; try broader search criteria", e.Need, e.Got)
}

// ComputationError reports an internal modeling or metric failure that
// survived every fallback path.
type ComputationError struct {
	Stage string
	Err   error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }
