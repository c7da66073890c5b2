package document

import "errors"

// Errors returned by the document store and the search service.
var (
	// ErrValidation indicates a request with a missing or malformed field.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates an unknown document id.
	ErrNotFound = errors.New("document not found")

	// ErrStorageCorrupt indicates persisted documents or index data that cannot be trusted.
	ErrStorageCorrupt = errors.New("storage corrupt")

	// ErrUpstreamEmbedding indicates a failure of the embedding generator.
	ErrUpstreamEmbedding = errors.New("embedding generation failed")
)
