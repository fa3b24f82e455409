package dispatch

import "errors"

var (
	// ErrNilAnalyzer is returned when a Dispatcher is constructed
	// without an analyzer.
	ErrNilAnalyzer = errors.New("analyzer is required")

	// ErrInvalidConcurrency is returned when the concurrency cap is
	// not positive.
	ErrInvalidConcurrency = errors.New("concurrency cap must be positive")

	// ErrNegativeDelay is returned when the background delay is
	// negative.
	ErrNegativeDelay = errors.New("background delay cannot be negative")
)
