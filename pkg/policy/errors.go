package policy

import "fmt"

// SourceUnavailableError indicates a transient failure talking to a
// policy source: a broken connection, a failed query, a timeout, or a
// non-success HTTP response. During the initial synchronous load it is
// fatal; during background reloads callers log it and keep the
// previous rule set.
type SourceUnavailableError struct {
	// Source describes the failing source (query, path or URL).
	Source string

	// Op is the operation that failed (e.g. "query", "fetch").
	Op string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *SourceUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("policy source unavailable during %s of %q: %v", e.Op, e.Source, e.Cause)
	}
	return fmt.Sprintf("policy source unavailable during %s of %q", e.Op, e.Source)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *SourceUnavailableError) Unwrap() error {
	return e.Cause
}

// MalformedDataError indicates a payload that could not be interpreted
// as rule data at all, such as an API body that is not valid JSON.
// Individually bad records are not errors; loaders skip those with a
// warning and carry on.
type MalformedDataError struct {
	// Source describes the source that produced the payload.
	Source string

	// Message describes what was wrong with the payload.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *MalformedDataError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed policy data from %q: %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("malformed policy data from %q: %s", e.Source, e.Message)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *MalformedDataError) Unwrap() error {
	return e.Cause
}

// ConfigError indicates a missing or invalid loader configuration
// value. It is fatal at construction time.
type ConfigError struct {
	// Field is the configuration field at fault.
	Field string

	// Message describes the problem.
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("policy configuration error in %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("policy configuration error: %s", e.Message)
}
