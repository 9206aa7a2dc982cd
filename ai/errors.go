package ai

import "errors"

var (
	// ErrRateLimited is returned when the backend refuses work until later.
	ErrRateLimited = errors.New("embedding backend rate limited")

	// ErrTransient marks failures that may succeed on retry (timeouts,
	// connection resets, 5xx responses).
	ErrTransient = errors.New("transient embedding failure")

	// ErrBackend marks failures retrying will not fix.
	ErrBackend = errors.New("embedding backend error")

	// ErrModelMismatch is returned when the backend serves a different model
	// than the one requested.
	ErrModelMismatch = errors.New("embedding model mismatch")

	// ErrEmptyInput is reported for texts with nothing to embed.
	ErrEmptyInput = errors.New("nothing to embed")

	// ErrUnknownBackend is returned for an unrecognised Config.Backend.
	ErrUnknownBackend = errors.New("unknown embedding backend")
)

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited)
}
