package coordinate

import "errors"

var (
	// ErrNilDocument is returned when a Coordinator is constructed
	// without a document.
	ErrNilDocument = errors.New("document is required")

	// ErrInvalidDebounce is returned when the debounce window is
	// negative.
	ErrInvalidDebounce = errors.New("debounce window cannot be negative")

	// ErrInvalidPause is returned when the drain pause is negative.
	ErrInvalidPause = errors.New("drain pause cannot be negative")

	// ErrInvalidCapacity is returned when the pending queue capacity is
	// not positive.
	ErrInvalidCapacity = errors.New("queue capacity must be positive")

	// ErrAlreadyRunning is returned by Start when the coordinator is
	// already running.
	ErrAlreadyRunning = errors.New("coordinator already running")

	// ErrNotRunning is returned when submitting to or stopping a
	// coordinator that is not running.
	ErrNotRunning = errors.New("coordinator not running")

	// ErrUnknownKind is returned when a request carries an
	// unrecognized kind.
	ErrUnknownKind = errors.New("unknown update kind")
)
