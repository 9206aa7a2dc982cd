// Package blob fetches the raw bytes of uploaded items.
package blob

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when the referenced object does not exist.
	// Ingestion treats it as permanent.
	ErrNotFound = errors.New("blob not found")

	// ErrIO marks read failures that may succeed on retry.
	ErrIO = errors.New("blob read failed")

	// ErrInvalidRef is returned for references that cannot name an object.
	ErrInvalidRef = errors.New("invalid blob reference")
)

// Store reads objects by reference.
// Implementations must be thread-safe for concurrent use.
type Store interface {
	// Fetch returns the full contents of ref.
	Fetch(ctx context.Context, ref string) ([]byte, error)
}
