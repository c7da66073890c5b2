package document

// SearchResult is a document matched by a similarity search.
type SearchResult struct {
	document   Document
	distance   float64
	similarity float64
}

// NewSearchResult creates a SearchResult. Similarity is derived from the distance.
func NewSearchResult(doc Document, distance float64) SearchResult {
	return SearchResult{
		document:   doc,
		distance:   distance,
		similarity: Similarity(distance),
	}
}

// Similarity converts a squared Euclidean distance into a score in (0, 1].
// Identical vectors score exactly 1.
func Similarity(distance float64) float64 {
	return 1.0 / (1.0 + distance)
}

// Document returns the matched document.
func (r SearchResult) Document() Document { return r.document }

// ID returns the matched document id.
func (r SearchResult) ID() int64 { return r.document.id }

// Title returns the matched document title.
func (r SearchResult) Title() string { return r.document.title }

// Content returns the matched document content.
func (r SearchResult) Content() string { return r.document.content }

// Category returns the matched document category.
func (r SearchResult) Category() string { return r.document.category }

// Distance returns the squared Euclidean distance to the query.
func (r SearchResult) Distance() float64 { return r.distance }

// Similarity returns 1 / (1 + distance).
func (r SearchResult) Similarity() float64 { return r.similarity }
