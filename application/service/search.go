// Package service provides application layer services that orchestrate domain operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/helixml/docsearch/domain/document"
	"github.com/helixml/docsearch/domain/search"
)

// DefaultSearchLimit is the number of results returned when no limit is given.
const DefaultSearchLimit = 5

// SearchOption configures the Search service.
type SearchOption func(*Search)

// WithDefaultLimit sets the result count used when a search passes no limit.
func WithDefaultLimit(n int) SearchOption {
	return func(s *Search) {
		if n > 0 {
			s.defaultLimit = n
		}
	}
}

// WithClosed shares a closed flag with the owning client.
func WithClosed(closed *atomic.Bool) SearchOption {
	return func(s *Search) {
		if closed != nil {
			s.closed = closed
		}
	}
}

// Stats summarises the state of the collection and the index.
type Stats struct {
	Documents int
	Indexed   int
	Dimension int
	Ready     bool
}

// Search keeps the document store and the vector index aligned and answers
// similarity queries over them.
//
// Index position i always holds the embedding of the i-th stored document.
// Adds append to the index; updates and deletes rebuild it from the store.
// Mutations hold the write lock for their whole duration and searches hold
// the read lock, so a search never sees a half-rebuilt index.
type Search struct {
	store        document.Store
	index        search.VectorIndex
	embedder     search.Embedder
	dimension    int
	defaultLimit int
	closed       *atomic.Bool
	logger       *slog.Logger

	mu    sync.RWMutex
	ready bool
}

// NewSearch creates a new Search service. The vector dimension is taken from index.
func NewSearch(
	store document.Store,
	index search.VectorIndex,
	embedder search.Embedder,
	logger *slog.Logger,
	opts ...SearchOption,
) *Search {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Search{
		store:        store,
		index:        index,
		embedder:     embedder,
		dimension:    index.Dimension(),
		defaultLimit: DefaultSearchLimit,
		closed:       &atomic.Bool{},
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dimension returns the embedding length every document must have.
func (s *Search) Dimension() int { return s.dimension }

// Initialize loads the store and the index and checks that they agree.
// It is idempotent; a failed attempt is not remembered.
func (s *Search) Initialize(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClientClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializeLocked(ctx)
}

func (s *Search) initializeLocked(ctx context.Context) error {
	if s.ready {
		return nil
	}

	if err := s.store.Load(ctx); err != nil {
		return fmt.Errorf("load documents: %w", err)
	}

	vectors, err := s.storedVectors()
	if err != nil {
		return err
	}

	found, err := s.index.Load(ctx)
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	if !found {
		s.logger.Info("no vector index found, rebuilding", slog.Int("documents", len(vectors)))
		if err := s.index.Rebuild(ctx, vectors); err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
	} else if err := s.index.Verify(vectors); err != nil {
		return fmt.Errorf("verify index: %w", err)
	}

	s.ready = true
	s.logger.Info("search initialized",
		slog.Int("documents", s.store.Len()),
		slog.Int("indexed", s.index.Len()),
		slog.Int("dimension", s.dimension),
	)
	return nil
}

// storedVectors returns the embeddings of all stored documents in sequence order.
func (s *Search) storedVectors() ([][]float64, error) {
	docs := s.store.List()
	vectors := make([][]float64, len(docs))
	for i, d := range docs {
		emb := d.Embedding()
		if len(emb) != s.dimension {
			return nil, fmt.Errorf("%w: document %d has embedding of dimension %d, expected %d",
				document.ErrStorageCorrupt, d.ID(), len(emb), s.dimension)
		}
		vectors[i] = emb
	}
	return vectors, nil
}

// readLock takes the read lock once initialized. The first call after start
// or after a failed index write initializes under the write lock instead.
func (s *Search) readLock(ctx context.Context) (func(), error) {
	if s.closed.Load() {
		return nil, ErrClientClosed
	}

	s.mu.RLock()
	if s.ready {
		return s.mu.RUnlock, nil
	}
	s.mu.RUnlock()

	return s.writeLock(ctx)
}

// writeLock takes the write lock and initializes if needed.
func (s *Search) writeLock(ctx context.Context) (func(), error) {
	if s.closed.Load() {
		return nil, ErrClientClosed
	}

	s.mu.Lock()
	if err := s.initializeLocked(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	return s.mu.Unlock, nil
}

// AddDocument validates, embeds and stores a new document and returns its id.
// A supplied embedding is used as-is; otherwise the content is embedded.
func (s *Search) AddDocument(ctx context.Context, doc document.Document) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClientClosed
	}
	if err := doc.Validate(); err != nil {
		return 0, err
	}

	var vec []float64
	if doc.HasEmbedding() {
		vec = doc.Embedding()
		if err := s.checkVector(vec); err != nil {
			return 0, err
		}
	} else {
		var err error
		vec, err = s.embedOne(ctx, doc.Content())
		if err != nil {
			return 0, err
		}
	}

	unlock, err := s.writeLock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	id := s.store.NextID()
	stored := doc.WithID(id).WithEmbedding(vec)

	if err := s.store.Upsert(ctx, stored); err != nil {
		s.ready = false
		return 0, fmt.Errorf("save document: %w", err)
	}
	if err := s.index.Append(ctx, vec); err != nil {
		s.ready = false
		return 0, fmt.Errorf("append to index: %w", err)
	}

	s.logger.Info("document added", slog.Int64("id", id), slog.String("title", stored.Title()))
	return id, nil
}

// UpdateDocument applies a patch to a stored document and rebuilds the index.
// Changed content is always re-embedded, replacing any supplied embedding.
func (s *Search) UpdateDocument(ctx context.Context, id int64, patch document.Patch) (int64, error) {
	if err := document.ValidateExtra(patch.Extra()); err != nil {
		return 0, err
	}

	unlock, err := s.writeLock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	current, err := s.store.Get(id)
	if err != nil {
		return 0, err
	}

	updated := current.Apply(patch)
	if err := updated.Validate(); err != nil {
		return 0, err
	}

	content, contentSet := patch.Content()
	switch {
	case contentSet && content != current.Content():
		vec, err := s.embedOne(ctx, content)
		if err != nil {
			return 0, err
		}
		updated = updated.WithEmbedding(vec)
	case len(patch.Embedding()) > 0:
		if err := s.checkVector(patch.Embedding()); err != nil {
			return 0, err
		}
	}

	if err := s.store.Upsert(ctx, updated); err != nil {
		s.ready = false
		return 0, fmt.Errorf("save document: %w", err)
	}
	if err := s.rebuildLocked(ctx); err != nil {
		return 0, err
	}

	s.logger.Info("document updated", slog.Int64("id", id))
	return id, nil
}

// DeleteDocument removes a document and rebuilds the index. It reports false
// when no document has the id.
func (s *Search) DeleteDocument(ctx context.Context, id int64) (bool, error) {
	unlock, err := s.writeLock(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		s.ready = false
		return false, fmt.Errorf("delete document: %w", err)
	}
	if !deleted {
		return false, nil
	}
	if err := s.rebuildLocked(ctx); err != nil {
		return false, err
	}

	s.logger.Info("document deleted", slog.Int64("id", id))
	return true, nil
}

func (s *Search) rebuildLocked(ctx context.Context) error {
	vectors, err := s.storedVectors()
	if err != nil {
		s.ready = false
		return err
	}
	if err := s.index.Rebuild(ctx, vectors); err != nil {
		s.ready = false
		return fmt.Errorf("rebuild index: %w", err)
	}
	return nil
}

// Search embeds query and returns the closest documents.
func (s *Search) Search(ctx context.Context, query string, limit int) ([]document.SearchResult, error) {
	if s.closed.Load() {
		return nil, ErrClientClosed
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", document.ErrValidation)
	}
	vec, err := s.embedOne(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.SearchByEmbedding(ctx, vec, limit)
}

// SearchByEmbedding returns up to limit documents ordered by descending
// similarity to vector. A non-positive limit uses the default.
func (s *Search) SearchByEmbedding(ctx context.Context, vector []float64, limit int) ([]document.SearchResult, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query embedding is required", document.ErrValidation)
	}
	if err := s.checkVector(vector); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}

	unlock, err := s.readLock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	n := s.index.Len()
	if n == 0 {
		return []document.SearchResult{}, nil
	}

	matches, err := s.index.Search(ctx, vector, min(limit, n))
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	docs := s.store.List()
	results := make([]document.SearchResult, 0, len(matches))
	for _, m := range matches {
		if m.Position() < 0 || m.Position() >= len(docs) {
			return nil, fmt.Errorf("%w: index position %d has no document", document.ErrStorageCorrupt, m.Position())
		}
		results = append(results, document.NewSearchResult(docs[m.Position()], m.Distance()))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity() > results[j].Similarity()
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Embed returns the embedding of text without touching the store.
func (s *Search) Embed(ctx context.Context, text string) ([]float64, error) {
	if s.closed.Load() {
		return nil, ErrClientClosed
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", document.ErrValidation)
	}
	return s.embedOne(ctx, text)
}

// Get returns the stored document with the given id.
func (s *Search) Get(ctx context.Context, id int64) (document.Document, error) {
	unlock, err := s.readLock(ctx)
	if err != nil {
		return document.Document{}, err
	}
	defer unlock()
	return s.store.Get(id)
}

// List returns all stored documents in sequence order.
func (s *Search) List(ctx context.Context) ([]document.Document, error) {
	unlock, err := s.readLock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.store.List(), nil
}

// Stats reports collection and index sizes without forcing initialization.
func (s *Search) Stats(_ context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Documents: s.store.Len(),
		Indexed:   s.index.Len(),
		Dimension: s.dimension,
		Ready:     s.ready,
	}
}

func (s *Search) embedOne(ctx context.Context, text string) ([]float64, error) {
	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, wrapUpstream(err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for 1 text", document.ErrUpstreamEmbedding, len(vectors))
	}
	if len(vectors[0]) != s.dimension {
		return nil, fmt.Errorf("%w: embedding has dimension %d, expected %d",
			document.ErrUpstreamEmbedding, len(vectors[0]), s.dimension)
	}
	if i := nonFinite(vectors[0]); i >= 0 {
		return nil, fmt.Errorf("%w: embedding value %d is not a finite float32", document.ErrUpstreamEmbedding, i)
	}
	return vectors[0], nil
}

// checkVector rejects supplied vectors of the wrong length or with values
// that do not survive conversion to float32.
func (s *Search) checkVector(vec []float64) error {
	if len(vec) != s.dimension {
		return fmt.Errorf("%w: embedding has dimension %d, expected %d", document.ErrValidation, len(vec), s.dimension)
	}
	if i := nonFinite(vec); i >= 0 {
		return fmt.Errorf("%w: embedding value %d is not a finite float32", document.ErrValidation, i)
	}
	return nil
}

// nonFinite returns the position of the first value that is NaN or infinite
// as a float32, or -1.
func nonFinite(vec []float64) int {
	for i, v := range vec {
		f := float64(float32(v))
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return i
		}
	}
	return -1
}

func wrapUpstream(err error) error {
	if errors.Is(err, document.ErrUpstreamEmbedding) {
		return err
	}
	return fmt.Errorf("%w: %w", document.ErrUpstreamEmbedding, err)
}
