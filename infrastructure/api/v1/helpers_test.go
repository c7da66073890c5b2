package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/helixml/docsearch"
	v1 "github.com/helixml/docsearch/infrastructure/api/v1"
	"github.com/helixml/docsearch/infrastructure/provider"
)

const testDimension = 16

func newTestClient(t *testing.T, opts ...docsearch.Option) *docsearch.Client {
	t.Helper()
	base := []docsearch.Option{
		docsearch.WithDataDir(t.TempDir()),
		docsearch.WithDimension(testDimension),
		docsearch.WithEmbeddingProvider(&axisProvider{axes: map[string]int{}}),
	}
	client, err := docsearch.New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// newTestRouter mounts the v1 routers the same way the API server does.
func newTestRouter(client *docsearch.Client) chi.Router {
	router := chi.NewRouter()
	health := v1.NewHealthRouter(client, "test")
	router.Get("/health", health.Health)
	router.Post("/initialize", health.Initialize)
	router.Mount("/documents", v1.NewDocumentsRouter(client).Routes())
	router.Mount("/search", v1.NewSearchRouter(client).Routes())
	router.Mount("/embed", v1.NewEmbedRouter(client).Routes())
	return router
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

type failingProvider struct{}

func (failingProvider) Embed(context.Context, provider.EmbeddingRequest) (provider.EmbeddingResponse, error) {
	return provider.EmbeddingResponse{}, errors.New("connection refused")
}

func withFailingEmbedder() docsearch.Option {
	return docsearch.WithEmbeddingProvider(failingProvider{})
}

// axisProvider gives every distinct text its own unit axis, so distinct texts
// are always equally far apart and identical texts are at distance zero.
type axisProvider struct {
	mu   sync.Mutex
	axes map[string]int
}

func (p *axisProvider) Embed(_ context.Context, req provider.EmbeddingRequest) (provider.EmbeddingResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	texts := req.Texts()
	out := make([][]float64, len(texts))
	for i, text := range texts {
		axis, ok := p.axes[text]
		if !ok {
			axis = len(p.axes) % testDimension
			p.axes[text] = axis
		}
		vec := make([]float64, testDimension)
		vec[axis] = 1
		out[i] = vec
	}
	return provider.NewEmbeddingResponse(out, provider.NewUsage(0, 0)), nil
}
