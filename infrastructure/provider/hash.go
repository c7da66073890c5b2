package provider

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"unicode"
)

// HashEmbedding produces deterministic embeddings without a model by feature
// hashing: every lower-cased word is hashed with SHA-256 into one signed
// bucket of the vector, and the result is normalised to unit length. Texts
// that share words end up close together, which is enough for offline use
// and tests.
type HashEmbedding struct {
	dimension int
}

// NewHashEmbedding creates a HashEmbedding producing vectors of length dimension.
func NewHashEmbedding(dimension int) *HashEmbedding {
	return &HashEmbedding{dimension: dimension}
}

// Dimension returns the vector length.
func (h *HashEmbedding) Dimension() int { return h.dimension }

// Embed generates one vector per text.
func (h *HashEmbedding) Embed(ctx context.Context, req EmbeddingRequest) (EmbeddingResponse, error) {
	if err := ctx.Err(); err != nil {
		return EmbeddingResponse{}, err
	}

	texts := req.Texts()
	embeddings := make([][]float64, len(texts))
	tokens := 0
	for i, text := range texts {
		words := tokenize(text)
		tokens += len(words)
		embeddings[i] = h.vector(words)
	}
	return NewEmbeddingResponse(embeddings, NewUsage(tokens, tokens)), nil
}

// Close is a no-op.
func (h *HashEmbedding) Close() error { return nil }

func (h *HashEmbedding) vector(words []string) []float64 {
	vec := make([]float64, h.dimension)
	if h.dimension == 0 {
		return vec
	}
	for _, w := range words {
		sum := sha256.Sum256([]byte(w))
		bucket := binary.BigEndian.Uint64(sum[:8]) % uint64(h.dimension)
		sign := 1.0
		if sum[8]&1 == 1 {
			sign = -1.0
		}
		vec[bucket] += sign
	}
	return normalize(vec)
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] /= norm
	}
	return v
}

var _ Embedder = (*HashEmbedding)(nil)
