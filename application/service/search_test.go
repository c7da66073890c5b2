package service

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/helixml/docsearch/domain/document"
	"github.com/helixml/docsearch/domain/search"
	"github.com/helixml/docsearch/infrastructure/persistence"
	infrasearch "github.com/helixml/docsearch/infrastructure/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 3

// fakeEmbedder returns fixed vectors per text and counts calls.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float64
	calls   []string
	err     error
	dim     int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{
		dim: testDim,
		vectors: map[string][]float64{
			"hello":   {1, 0, 0},
			"world":   {0, 1, 0},
			"goodbye": {0, 0, 1},
		},
	}
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, texts...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
			continue
		}
		v := make([]float64, f.dim)
		for j := range v {
			v[j] = float64(len(t)+j) / 10
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// flakyIndex fails the next Append or Rebuild when armed.
type flakyIndex struct {
	search.VectorIndex
	fail atomic.Bool
}

func (f *flakyIndex) Append(ctx context.Context, v []float64) error {
	if f.fail.Swap(false) {
		return errors.New("disk full")
	}
	return f.VectorIndex.Append(ctx, v)
}

func (f *flakyIndex) Rebuild(ctx context.Context, vectors [][]float64) error {
	if f.fail.Swap(false) {
		return errors.New("disk full")
	}
	return f.VectorIndex.Rebuild(ctx, vectors)
}

type fixture struct {
	dir      string
	embedder *fakeEmbedder
	index    *flakyIndex
	svc      *Search
}

func newFixture(t *testing.T, dir string) *fixture {
	t.Helper()
	embedder := newFakeEmbedder()
	index := &flakyIndex{VectorIndex: infrasearch.NewFileIndex(filepath.Join(dir, infrasearch.IndexFileName), testDim, nil)}
	svc := NewSearch(persistence.NewJSONStore(dir), index, embedder, nil)
	return &fixture{dir: dir, embedder: embedder, index: index, svc: svc}
}

func (f *fixture) add(t *testing.T, title, content string) int64 {
	t.Helper()
	id, err := f.svc.AddDocument(context.Background(), document.NewDocument(title, content, "", nil))
	require.NoError(t, err)
	return id
}

func assertAligned(t *testing.T, svc *Search) {
	t.Helper()
	stats := svc.Stats(context.Background())
	assert.Equal(t, stats.Documents, stats.Indexed, "index length must equal store length")
}

func ids(results []document.SearchResult) []int64 {
	out := make([]int64, len(results))
	for i, r := range results {
		out[i] = r.ID()
	}
	return out
}

func TestSearch_AddDeleteSearchScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, t.TempDir())

	assert.Equal(t, int64(1), f.add(t, "A", "hello"))
	assert.Equal(t, int64(2), f.add(t, "B", "world"))

	deleted, err := f.svc.DeleteDocument(ctx, 1)
	require.NoError(t, err)
	assert.True(t, deleted)
	assertAligned(t, f.svc)

	results, err := f.svc.Search(ctx, "hello", 5)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 1)
	assert.NotContains(t, ids(results), int64(1))
}

func TestSearch_AddEmbedsExactlyOnce(t *testing.T) {
	f := newFixture(t, t.TempDir())

	f.add(t, "A", "hello")
	assert.Equal(t, 1, f.embedder.callCount())
	assert.Equal(t, []string{"hello"}, f.embedder.calls)

	doc := document.NewDocument("B", "ignored", "", nil).WithEmbedding([]float64{0, 1, 0})
	_, err := f.svc.AddDocument(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 1, f.embedder.callCount())
	assertAligned(t, f.svc)
}

func TestSearch_AddValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, t.TempDir())

	tests := []struct {
		name string
		doc  document.Document
	}{
		{"missing title", document.NewDocument("", "hello", "", nil)},
		{"missing content", document.NewDocument("A", "", "", nil)},
		{"wrong embedding dimension", document.NewDocument("A", "hello", "", nil).WithEmbedding([]float64{1, 2})},
		{"reserved extra", document.NewDocument("A", "hello", "", map[string]any{"id": 9})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AddDocument(ctx, tt.doc)
			assert.True(t, errors.Is(err, document.ErrValidation), "got %v", err)
		})
	}
	assert.Equal(t, 0, f.embedder.callCount())
	assert.Equal(t, 0, f.svc.Stats(ctx).Documents)
}

func TestSearch_UpdateReembedsOnlyOnContentChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, t.TempDir())
	id := f.add(t, "A", "hello")
	f.add(t, "B", "world")

	_, err := f.svc.UpdateDocument(ctx, id, document.NewPatch(document.WithCategory("greetings")))
	require.NoError(t, err)
	assert.Equal(t, 2, f.embedder.callCount())
	assertAligned(t, f.svc)

	_, err = f.svc.UpdateDocument(ctx, id, document.NewPatch(document.WithContent("hello")))
	require.NoError(t, err)
	assert.Equal(t, 2, f.embedder.callCount(), "unchanged content must not re-embed")

	_, err = f.svc.UpdateDocument(ctx, id, document.NewPatch(document.WithContent("goodbye")))
	require.NoError(t, err)
	assert.Equal(t, 3, f.embedder.callCount())
	assertAligned(t, f.svc)

	got, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "goodbye", got.Content())
	assert.Equal(t, "greetings", got.Category())
	assert.Equal(t, []float64{0, 0, 1}, got.Embedding())

	results, err := f.svc.SearchByEmbedding(ctx, []float64{0, 0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID())
}

func TestSearch_UpdateContentOverridesSuppliedEmbedding(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, t.TempDir())
	id := f.add(t, "A", "hello")

	_, err := f.svc.UpdateDocument(ctx, id, document.NewPatch(
		document.WithContent("world"),
		document.WithEmbedding([]float64{9, 9, 9}),
	))
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 0}, got.Embedding())
}

func TestSearch_UpdateSuppliedEmbedding(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, t.TempDir())
	id := f.add(t, "A", "hello")

	_, err := f.svc.UpdateDocument(ctx, id, document.NewPatch(document.WithEmbedding([]float64{1, 2})))
	assert.True(t, errors.Is(err, document.ErrValidation))

	_, err = f.svc.UpdateDocument(ctx, id, document.NewPatch(document.WithEmbedding([]float64{0, 0, 1})))
	require.NoError(t, err)
	assert.Equal(t, 1, f.embedder.callCount())

	results, err := f.svc.SearchByEmbedding(ctx, []float64{0, 0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, results[0].Distance())
}

func TestSearch_UpdateErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, t.TempDir())
	id := f.add(t, "A", "hello")

	_, err := f.svc.UpdateDocument(ctx, 99, document.NewPatch(document.WithTitle("x")))
	assert.True(t, errors.Is(err, document.ErrNotFound))

	_, err = f.svc.UpdateDocument(ctx, id, document.NewPatch(document.WithTitle("  ")))
	assert.True(t, errors.Is(err, document.ErrValidation))

	_, err = f.svc.UpdateDocument(ctx, id, document.NewPatch(document.WithExtra("embedding", 1)))
	assert.True(t, errors.Is(err, document.ErrValidation))
}

func TestSearch_DeleteUnknown(t *testing.T) {
	f := newFixture(t, t.TempDir())
	f.add(t, "A", "hello")

	deleted, err := f.svc.DeleteDocument(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, deleted)
	assertAligned(t, f.svc)
}

func TestSearch_IDsNeverReused(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f := newFixture(t, dir)
	f.add(t, "A", "hello")
	last := f.add(t, "B", "world")

	_, err := f.svc.DeleteDocument(ctx, last)
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.add(t, "C", "goodbye"))

	reopened := newFixture(t, dir)
	id, err := reopened.svc.AddDocument(ctx, document.NewDocument("D", "hello", "", nil))
	require.NoError(t, err)
	assert.Equal(t, int64(4), id)
}

func TestSearch_IdenticalVectorScoresOne(t *testing.T) {
	f := newFixture(t, t.TempDir())
	f.add(t, "A", "hello")
	f.add(t, "B", "world")

	results, err := f.svc.SearchByEmbedding(context.Background(), []float64{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ID())
	assert.Equal(t, 0.0, results[0].Distance())
	assert.Equal(t, 1.0, results[0].Similarity())
	assert.Equal(t, 2.0, results[1].Distance())
	assert.InDelta(t, 1.0/3.0, results[1].Similarity(), 1e-12)
}

func TestSearch_InexactVectorScoresExactlyOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, t.TempDir())
	f.add(t, "A", "hello")

	vec := []float64{0.1, 0.2, 0.3}
	id, err := f.svc.AddDocument(ctx, document.NewDocument("B", "tenths", "", nil).WithEmbedding(vec))
	require.NoError(t, err)

	results, err := f.svc.SearchByEmbedding(ctx, []float64{0.1, 0.2, 0.3}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, id, results[0].ID())
	assert.Equal(t, 0.0, results[0].Distance())
	assert.Equal(t, 1.0, results[0].Similarity())
}

func TestSearch_RejectsNonFiniteVectors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, t.TempDir())
	f.add(t, "A", "hello")

	tests := []struct {
		name string
		vec  []float64
	}{
		{"beyond float32", []float64{1e39, 0, 0}},
		{"negative beyond float32", []float64{0, -1e39, 0}},
		{"infinity", []float64{0, 0, math.Inf(1)}},
		{"nan", []float64{math.NaN(), 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AddDocument(ctx, document.NewDocument("B", "world", "", nil).WithEmbedding(tt.vec))
			assert.ErrorIs(t, err, document.ErrValidation)

			_, err = f.svc.UpdateDocument(ctx, 1, document.NewPatch(document.WithEmbedding(tt.vec)))
			assert.ErrorIs(t, err, document.ErrValidation)

			_, err = f.svc.SearchByEmbedding(ctx, tt.vec, 5)
			assert.ErrorIs(t, err, document.ErrValidation)
		})
	}
	assert.Equal(t, 1, f.svc.Stats(ctx).Documents)

	f.embedder.vectors["broken"] = []float64{1e39, 0, 0}
	_, err := f.svc.Search(ctx, "broken", 5)
	assert.ErrorIs(t, err, document.ErrUpstreamEmbedding)
}

func TestSearch_LimitAndDefault(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, t.TempDir())
	for i := 0; i < 7; i++ {
		f.add(t, "doc", string(rune('a'+i))+" text")
	}

	results, err := f.svc.SearchByEmbedding(ctx, []float64{0, 0, 0}, 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	results, err = f.svc.SearchByEmbedding(ctx, []float64{0, 0, 0}, 0)
	require.NoError(t, err)
	assert.Len(t, results, DefaultSearchLimit)

	results, err = f.svc.SearchByEmbedding(ctx, []float64{0, 0, 0}, 100)
	require.NoError(t, err)
	assert.Len(t, results, 7)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity(), results[i].Similarity())
	}
}

func TestSearch_QueryValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, t.TempDir())

	_, err := f.svc.Search(ctx, "   ", 5)
	assert.True(t, errors.Is(err, document.ErrValidation))

	_, err = f.svc.SearchByEmbedding(ctx, nil, 5)
	assert.True(t, errors.Is(err, document.ErrValidation))

	_, err = f.svc.SearchByEmbedding(ctx, []float64{1, 0}, 5)
	assert.True(t, errors.Is(err, document.ErrValidation))

	_, err = f.svc.Embed(ctx, "")
	assert.True(t, errors.Is(err, document.ErrValidation))
}

func TestSearch_EmptyIndex(t *testing.T) {
	f := newFixture(t, t.TempDir())

	results, err := f.svc.Search(context.Background(), "hello", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NotNil(t, results)
}

func TestSearch_UpstreamErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, t.TempDir())

	f.embedder.err = errors.New("connection refused")
	_, err := f.svc.AddDocument(ctx, document.NewDocument("A", "hello", "", nil))
	assert.True(t, errors.Is(err, document.ErrUpstreamEmbedding))
	_, err = f.svc.Search(ctx, "hello", 5)
	assert.True(t, errors.Is(err, document.ErrUpstreamEmbedding))
	_, err = f.svc.Embed(ctx, "hello")
	assert.True(t, errors.Is(err, document.ErrUpstreamEmbedding))

	f.embedder.err = nil
	f.embedder.vectors["short"] = []float64{1}
	_, err = f.svc.AddDocument(ctx, document.NewDocument("A", "short", "", nil))
	assert.True(t, errors.Is(err, document.ErrUpstreamEmbedding))

	assert.Equal(t, 0, f.svc.Stats(ctx).Documents)
}

func TestSearch_PersistAndReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f := newFixture(t, dir)
	f.add(t, "A", "hello")
	f.add(t, "B", "world")
	f.add(t, "C", "goodbye")
	_, err := f.svc.DeleteDocument(ctx, 2)
	require.NoError(t, err)

	before, err := f.svc.Search(ctx, "world", 5)
	require.NoError(t, err)

	reopened := newFixture(t, dir)
	require.NoError(t, reopened.svc.Initialize(ctx))
	after, err := reopened.svc.Search(ctx, "world", 5)
	require.NoError(t, err)

	assert.Equal(t, ids(before), ids(after))
	docs, err := reopened.svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestSearch_InitializeRebuildsMissingIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f := newFixture(t, dir)
	f.add(t, "A", "hello")

	require.NoError(t, os.Remove(filepath.Join(dir, infrasearch.IndexFileName)))

	reopened := newFixture(t, dir)
	require.NoError(t, reopened.svc.Initialize(ctx))
	assertAligned(t, reopened.svc)
	_, err := os.Stat(filepath.Join(dir, infrasearch.IndexFileName))
	assert.NoError(t, err)
}

func TestSearch_InitializeDetectsMisalignment(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f := newFixture(t, dir)
	f.add(t, "A", "hello")
	f.add(t, "B", "world")

	other := infrasearch.NewFileIndex(filepath.Join(dir, infrasearch.IndexFileName), testDim, nil)
	require.NoError(t, other.Rebuild(ctx, [][]float64{{0, 1, 0}, {1, 0, 0}}))

	reopened := newFixture(t, dir)
	err := reopened.svc.Initialize(ctx)
	assert.True(t, errors.Is(err, document.ErrStorageCorrupt))

	// Not cached: the next call retries and still fails.
	_, err = reopened.svc.Search(ctx, "hello", 5)
	assert.True(t, errors.Is(err, document.ErrStorageCorrupt))

	require.NoError(t, other.Rebuild(ctx, [][]float64{{1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, reopened.svc.Initialize(ctx))
}

func TestSearch_InitializeCorruptDocuments(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, persistence.DocumentsFileName), []byte("{not json"), 0o644))

	f := newFixture(t, dir)
	err := f.svc.Initialize(context.Background())
	assert.True(t, errors.Is(err, document.ErrStorageCorrupt))
}

func TestSearch_InitializeRejectsMissingEmbedding(t *testing.T) {
	dir := t.TempDir()
	content := `[{"id": 1, "title": "A", "content": "hello"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, persistence.DocumentsFileName), []byte(content), 0o644))

	f := newFixture(t, dir)
	err := f.svc.Initialize(context.Background())
	assert.True(t, errors.Is(err, document.ErrStorageCorrupt))
}

func TestSearch_FailedIndexWriteIsDetected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, t.TempDir())
	f.add(t, "A", "hello")

	f.index.fail.Store(true)
	_, err := f.svc.AddDocument(ctx, document.NewDocument("B", "world", "", nil))
	require.Error(t, err)

	// The store holds B but the index file does not.
	_, err = f.svc.Search(ctx, "hello", 5)
	assert.True(t, errors.Is(err, document.ErrStorageCorrupt))
}

func TestSearch_FailedStoreWriteIsDetected(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f := newFixture(t, dir)
	f.add(t, "A", "hello")

	// documents.json is rewritten, then the metadata rename fails.
	metaPath := filepath.Join(dir, persistence.MetaFileName)
	require.NoError(t, os.Remove(metaPath))
	require.NoError(t, os.Mkdir(metaPath, 0o755))

	_, err := f.svc.AddDocument(ctx, document.NewDocument("B", "world", "", nil))
	require.Error(t, err)
	assert.False(t, f.svc.Stats(ctx).Ready)

	require.NoError(t, os.Remove(metaPath))
	_, err = f.svc.Search(ctx, "hello", 5)
	assert.ErrorIs(t, err, document.ErrStorageCorrupt)
}

// countingStore counts Load calls.
type countingStore struct {
	document.Store
	loads atomic.Int64
}

func (c *countingStore) Load(ctx context.Context) error {
	c.loads.Add(1)
	return c.Store.Load(ctx)
}

func TestSearch_ConcurrentFirstCallsLoadOnce(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	seed := newFixture(t, dir)
	seed.add(t, "A", "hello")
	seed.add(t, "B", "world")

	store := &countingStore{Store: persistence.NewJSONStore(dir)}
	index := infrasearch.NewFileIndex(filepath.Join(dir, infrasearch.IndexFileName), testDim, nil)
	svc := NewSearch(store, index, newFakeEmbedder(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				assert.NoError(t, svc.Initialize(ctx))
				return
			}
			results, err := svc.Search(ctx, "hello", 5)
			assert.NoError(t, err)
			assert.Len(t, results, 2)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), store.loads.Load())
	assert.True(t, svc.Stats(ctx).Ready)
}

func TestSearch_InitializeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, t.TempDir())
	f.add(t, "A", "hello")

	require.NoError(t, f.svc.Initialize(ctx))
	require.NoError(t, f.svc.Initialize(ctx))
	assert.True(t, f.svc.Stats(ctx).Ready)
}

func TestSearch_ConcurrentSearchAndAdd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, t.TempDir())
	f.add(t, "seed", "hello")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.svc.AddDocument(ctx, document.NewDocument("doc", "world", "", nil))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			results, err := f.svc.Search(ctx, "hello", 3)
			assert.NoError(t, err)
			assert.LessOrEqual(t, len(results), 3)
		}()
	}
	wg.Wait()

	assert.Equal(t, 9, f.svc.Stats(ctx).Documents)
	assertAligned(t, f.svc)
}

func TestSearch_Closed(t *testing.T) {
	closed := &atomic.Bool{}
	dir := t.TempDir()
	index := infrasearch.NewFileIndex(filepath.Join(dir, infrasearch.IndexFileName), testDim, nil)
	svc := NewSearch(persistence.NewJSONStore(dir), index, newFakeEmbedder(), nil, WithClosed(closed))
	closed.Store(true)

	_, err := svc.Search(context.Background(), "hello", 1)
	assert.ErrorIs(t, err, ErrClientClosed)
	assert.ErrorIs(t, svc.Initialize(context.Background()), ErrClientClosed)
}
