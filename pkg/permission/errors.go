package permission

import "errors"

var (
	// ErrNotInitialized is returned when a caller uses a Checker
	// before a successful Init.
	ErrNotInitialized = errors.New("permission checker not initialized")

	// ErrAlreadyInitialized is returned by a second Init call.
	ErrAlreadyInitialized = errors.New("permission checker already initialized")

	// ErrClosed is returned when a caller uses a Checker after Close.
	ErrClosed = errors.New("permission checker closed")
)

// InitError wraps a fatal startup failure with the stage it happened
// in.
type InitError struct {
	// Stage names the startup stage that failed.
	Stage string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *InitError) Error() string {
	return "permission checker init failed at " + e.Stage + ": " + e.Cause.Error()
}

// Unwrap returns the underlying error.
func (e *InitError) Unwrap() error {
	return e.Cause
}
