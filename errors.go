package docsearch

import (
	"errors"

	"github.com/helixml/docsearch/application/service"
)

// Errors returned by the client.
var (
	// ErrClientClosed is returned by operations on a closed client.
	ErrClientClosed = service.ErrClientClosed

	// ErrNoEmbeddingModel is returned when the local provider is selected but no model is installed.
	ErrNoEmbeddingModel = errors.New("docsearch: no local embedding model found")

	// ErrInvalidDimension is returned when the embedding dimension is not positive.
	ErrInvalidDimension = errors.New("docsearch: embedding dimension must be positive")
)
