package provider

import (
	"context"
	"fmt"

	"github.com/helixml/docsearch/domain/document"
	"github.com/helixml/docsearch/domain/search"
)

// SearchEmbedder adapts a provider Embedder to search.Embedder. Provider
// failures and malformed responses are reported as
// document.ErrUpstreamEmbedding.
type SearchEmbedder struct {
	inner Embedder
}

// NewSearchEmbedder wraps inner.
func NewSearchEmbedder(inner Embedder) SearchEmbedder {
	return SearchEmbedder{inner: inner}
}

// Embed generates one vector per text.
func (s SearchEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := s.inner.Embed(ctx, NewEmbeddingRequest(texts))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", document.ErrUpstreamEmbedding, err)
	}
	vectors := resp.Embeddings()
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", document.ErrUpstreamEmbedding, len(vectors), len(texts))
	}
	return vectors, nil
}

// Close releases the wrapped embedder's resources.
func (s SearchEmbedder) Close() error {
	if c, ok := s.inner.(Closer); ok {
		return c.Close()
	}
	return nil
}

var _ search.Embedder = SearchEmbedder{}
