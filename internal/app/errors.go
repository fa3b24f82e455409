package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrAlreadyRunning indicates the app is already running.
	ErrAlreadyRunning = errors.New("app already running")

	// ErrNotRunning indicates the app is not running.
	ErrNotRunning = errors.New("app not running")

	// ErrClosed indicates the app has been closed.
	ErrClosed = errors.New("app closed")
)

// InitError wraps a component initialization failure.
type InitError struct {
	Component string
	Err       error
}

// Error implements the error interface.
func (e *InitError) Error() string {
	return fmt.Sprintf("initializing %s: %v", e.Component, e.Err)
}

// Unwrap returns the underlying error.
func (e *InitError) Unwrap() error {
	return e.Err
}
