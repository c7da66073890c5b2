// Package search provides the contracts of the embedding generator and the
// vector index that back similarity search.
package search

import "context"

// Embedder converts text into embedding vectors.
// Implementations must be deterministic for identical input and free of side
// effects on the document store and the index.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}
