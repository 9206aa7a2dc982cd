package worker

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrInvalidInterval is returned when a Loop has no positive interval.
	ErrInvalidInterval = errors.New("loop interval must be positive")
)
