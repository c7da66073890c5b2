package dto

import "github.com/helixml/docsearch/domain/document"

// SearchRequest searches by query text or by a ready-made embedding.
// The query wins when both are present.
type SearchRequest struct {
	Query     *string   `json:"query,omitempty"`
	Embedding []float64 `json:"embedding,omitempty"`
	Limit     *int      `json:"limit,omitempty"`
}

// SearchResult is one ranked match. Score repeats the distance.
type SearchResult struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Category   string  `json:"category"`
	Score      float64 `json:"score"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
}

// SearchResponse lists matches by ascending distance.
type SearchResponse struct {
	Status  string         `json:"status"`
	Results []SearchResult `json:"results"`
}

// NewSearchResponse converts domain results.
func NewSearchResponse(results []document.SearchResult) SearchResponse {
	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{
			ID:         r.ID(),
			Title:      r.Title(),
			Content:    r.Content(),
			Category:   r.Category(),
			Score:      r.Distance(),
			Distance:   r.Distance(),
			Similarity: r.Similarity(),
		}
	}
	return SearchResponse{Status: StatusOK, Results: out}
}

// EmbedRequest asks for the embedding of a text.
type EmbedRequest struct {
	Text *string `json:"text"`
}

// EmbedResponse carries a single embedding.
type EmbedResponse struct {
	Status    string    `json:"status"`
	Embedding []float64 `json:"embedding"`
}

// HealthResponse reports service state.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Documents int    `json:"documents"`
	Indexed   int    `json:"indexed"`
	Dimension int    `json:"dimension"`
	Ready     bool   `json:"ready"`
}
