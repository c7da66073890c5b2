package v1_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/docsearch/infrastructure/api/v1/dto"
)

func seedDocuments(t *testing.T, h http.Handler, contents ...string) {
	t.Helper()
	for i, c := range contents {
		w := do(t, h, http.MethodPost, "/documents", map[string]any{"title": c, "content": c, "category": "cat"})
		require.Equal(t, http.StatusOK, w.Code, "seed %d: %s", i, w.Body.String())
	}
}

func TestSearchRouter_ByQuery(t *testing.T) {
	router := newTestRouter(newTestClient(t))
	seedDocuments(t, router, "hello", "world", "goodbye")

	w := do(t, router, http.MethodPost, "/search", map[string]any{"query": "hello", "limit": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[dto.SearchResponse](t, w)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Results, 2)

	top := resp.Results[0]
	assert.Equal(t, int64(1), top.ID)
	assert.Equal(t, "hello", top.Title)
	assert.Equal(t, "cat", top.Category)
	assert.Equal(t, 0.0, top.Distance)
	assert.Equal(t, top.Distance, top.Score)
	assert.Equal(t, 1.0, top.Similarity)
	assert.GreaterOrEqual(t, resp.Results[1].Distance, top.Distance)
}

func TestSearchRouter_DefaultLimit(t *testing.T) {
	router := newTestRouter(newTestClient(t))
	seedDocuments(t, router, "a", "b", "c", "d", "e", "f", "g")

	w := do(t, router, http.MethodPost, "/search", map[string]any{"query": "a"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[dto.SearchResponse](t, w).Results, 5)
}

func TestSearchRouter_ByEmbedding(t *testing.T) {
	router := newTestRouter(newTestClient(t))
	seedDocuments(t, router, "hello", "world")

	w := do(t, router, http.MethodPost, "/embed", map[string]any{"text": "world"})
	require.Equal(t, http.StatusOK, w.Code)
	vec := decode[dto.EmbedResponse](t, w).Embedding
	require.Len(t, vec, testDimension)

	w = do(t, router, http.MethodPost, "/search", map[string]any{"embedding": vec, "limit": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[dto.SearchResponse](t, w)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, int64(2), resp.Results[0].ID)
	assert.Equal(t, 1.0, resp.Results[0].Similarity)
}

func TestSearchRouter_DeletedNeverReturned(t *testing.T) {
	router := newTestRouter(newTestClient(t))
	seedDocuments(t, router, "hello", "world")

	require.Equal(t, http.StatusOK, do(t, router, http.MethodDelete, "/documents/1", nil).Code)

	w := do(t, router, http.MethodPost, "/search", map[string]any{"query": "hello", "limit": 5})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.SearchResponse](t, w)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, int64(2), resp.Results[0].ID)
}

func TestSearchRouter_Errors(t *testing.T) {
	router := newTestRouter(newTestClient(t))

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"no query or embedding", map[string]any{"limit": 3}, http.StatusBadRequest},
		{"empty query", map[string]any{"query": ""}, http.StatusBadRequest},
		{"wrong embedding dimension", map[string]any{"embedding": []float64{1, 2, 3}}, http.StatusBadRequest},
		{"malformed json", "{", http.StatusBadRequest},
		{"empty body", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/search", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestSearchRouter_UpstreamFailure(t *testing.T) {
	router := newTestRouter(newTestClient(t, withFailingEmbedder()))

	w := do(t, router, http.MethodPost, "/search", map[string]any{"query": "hello"})
	assert.Equal(t, http.StatusBadGateway, w.Code, w.Body.String())

	w = do(t, router, http.MethodPost, "/embed", map[string]any{"text": "hello"})
	assert.Equal(t, http.StatusBadGateway, w.Code, w.Body.String())
}

func TestEmbedRouter_MissingText(t *testing.T) {
	router := newTestRouter(newTestClient(t))

	w := do(t, router, http.MethodPost, "/embed", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthRouter(t *testing.T) {
	client := newTestClient(t)
	router := newTestRouter(client)

	w := do(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	health := decode[dto.HealthResponse](t, w)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
	assert.Equal(t, testDimension, health.Dimension)
	assert.False(t, health.Ready)

	w = do(t, router, http.MethodPost, "/initialize", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	seedDocuments(t, router, "hello")

	health = decode[dto.HealthResponse](t, do(t, router, http.MethodGet, "/health", nil))
	assert.True(t, health.Ready)
	assert.Equal(t, 1, health.Documents)
	assert.Equal(t, 1, health.Indexed)
}
