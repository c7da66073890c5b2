package search

import (
	"sort"

	"github.com/helixml/docsearch/domain/search"
)

// SquaredL2 computes the squared Euclidean distance between two float32
// vectors. Differences are taken in float32 and accumulated in float64, so
// identical vectors are exactly 0 apart.
func SquaredL2(stored, query []float32) float64 {
	var sum float64
	for i := range stored {
		d := float64(stored[i] - query[i])
		sum += d * d
	}
	return sum
}

// TopKNearest returns the k smallest distances with their positions,
// sorted by ascending distance. Ties keep position order.
func TopKNearest(distances []float64, k int) []search.Match {
	if len(distances) == 0 || k <= 0 {
		return []search.Match{}
	}

	matches := make([]search.Match, len(distances))
	for i, d := range distances {
		matches[i] = search.NewMatch(i, d)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance() < matches[j].Distance()
	})

	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k]
}
