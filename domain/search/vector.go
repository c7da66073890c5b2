package search

import (
	"context"
)

// Match is one entry returned by a nearest-neighbour query: the index position
// of the stored vector and its squared Euclidean distance to the query.
type Match struct {
	position int
	distance float64
}

// NewMatch creates a new Match.
func NewMatch(position int, distance float64) Match {
	return Match{
		position: position,
		distance: distance,
	}
}

// Position returns the index position of the matched vector.
func (m Match) Position() int { return m.position }

// Distance returns the squared Euclidean distance to the query.
func (m Match) Distance() float64 { return m.distance }

// VectorIndex is an exact nearest-neighbour index over fixed-length vectors.
//
// Entries are addressed by position only. The index cannot update or remove a
// single entry; Rebuild is the only way to remove or reorder vectors. Every
// mutating call persists the index before returning.
type VectorIndex interface {
	// Load reads the persisted index. It reports false when none exists yet.
	Load(ctx context.Context) (bool, error)

	// Rebuild discards the current entries and indexes vectors in the given order.
	Rebuild(ctx context.Context, vectors [][]float64) error

	// Append adds one vector at the next position.
	Append(ctx context.Context, vector []float64) error

	// Search returns up to k matches ordered by ascending distance.
	// An empty index yields an empty result.
	Search(ctx context.Context, query []float64, k int) ([]Match, error)

	// Verify checks that the index holds exactly the given vectors in order.
	Verify(vectors [][]float64) error

	// Len returns the number of indexed vectors.
	Len() int

	// Dimension returns the configured vector length.
	Dimension() int
}
