package ingestion

import (
	"errors"

	"github.com/poiesic/docflow/blob"
)

var (
	// ErrEventLogRequired is returned when an event log is not provided.
	ErrEventLogRequired = errors.New("event log required")

	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrBlobStoreRequired is returned when a blob store is not provided.
	ErrBlobStoreRequired = errors.New("blob store required")

	// ErrUnsupportedFormat is returned for items whose extension has no extractor.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrInvalidEncoding is returned for text formats that are not valid UTF-8.
	ErrInvalidEncoding = errors.New("document is not valid UTF-8")

	// ErrMalformedContent wraps loader failures on corrupt input.
	ErrMalformedContent = errors.New("malformed document content")

	// ErrEmptyDocument is returned when extraction yields no text.
	ErrEmptyDocument = errors.New("document contains no text")

	// ErrUnknownSplitter is returned for an unknown splitter strategy name.
	ErrUnknownSplitter = errors.New("unknown splitter strategy")
)

// isTransient reports whether err may go away on a later attempt.
// Content errors and missing blobs are permanent.
func isTransient(err error) bool {
	return errors.Is(err, blob.ErrIO)
}
