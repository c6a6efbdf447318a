package artifact

import "errors"

var (
	// ErrNotFound is returned by Store lookups when no record exists for
	// the requested identifier.
	ErrNotFound = errors.New("artifact not found")

	// ErrDuplicateIdentifier is returned by Store inserts when a record
	// with the same identifier already exists. The Coordinator treats it
	// as losing an ingestion race, not as a failure.
	ErrDuplicateIdentifier = errors.New("duplicate artifact identifier")

	// ErrInvalidFilename is returned when a display name fails validation.
	ErrInvalidFilename = errors.New("invalid filename")

	// ErrEmptyIdentifier is returned when blob metadata arrives without a
	// derived identifier.
	ErrEmptyIdentifier = errors.New("empty artifact identifier")
)
