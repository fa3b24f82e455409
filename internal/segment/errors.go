package segment

import "errors"

// Sentinel errors for the segment package.
var (
	// ErrInvalidOptions is returned when segmentation options fail
	// validation. These are programmer errors and are rejected before any
	// text is inspected.
	ErrInvalidOptions = errors.New("invalid segmentation options")
)
