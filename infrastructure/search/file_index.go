package search

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/helixml/docsearch/domain/document"
	"github.com/helixml/docsearch/domain/search"
	"github.com/helixml/docsearch/infrastructure/persistence"
)

// IndexFileName is the default file name of the persisted vector index.
const IndexFileName = "index.bin"

// FileIndex implements search.VectorIndex with a Flat index persisted to a
// single file. The file is replaced atomically on every mutation and the
// in-memory index is swapped only after the write succeeds.
type FileIndex struct {
	path   string
	dim    int
	logger *slog.Logger

	mu      sync.RWMutex
	current Flat
}

// NewFileIndex creates a FileIndex for vectors of dimension dim stored at path.
func NewFileIndex(path string, dim int, logger *slog.Logger) *FileIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileIndex{
		path:    path,
		dim:     dim,
		logger:  logger,
		current: NewFlat(dim),
	}
}

// Path returns the index file location.
func (x *FileIndex) Path() string { return x.path }

// Load reads the index file. It reports false when the file does not exist.
func (x *FileIndex) Load(_ context.Context) (bool, error) {
	data, err := os.ReadFile(x.path)
	if errors.Is(err, fs.ErrNotExist) {
		x.swap(NewFlat(x.dim))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read index: %w", err)
	}

	var flat Flat
	if err := flat.UnmarshalBinary(data); err != nil {
		return true, err
	}
	if flat.Dimension() != x.dim && flat.Len() > 0 {
		return true, fmt.Errorf("%w: index dimension %d, configured %d", document.ErrStorageCorrupt, flat.Dimension(), x.dim)
	}
	if flat.Len() == 0 {
		flat = NewFlat(x.dim)
	}

	x.swap(flat)
	x.logger.Debug("loaded vector index", slog.String("path", x.path), slog.Int("vectors", flat.Len()))
	return true, nil
}

// Rebuild replaces the index with vectors in the given order.
func (x *FileIndex) Rebuild(_ context.Context, vectors [][]float64) error {
	flat, err := BuildFlat(x.dim, vectors)
	if err != nil {
		return err
	}
	if err := x.write(flat); err != nil {
		return err
	}
	x.swap(flat)
	x.logger.Debug("rebuilt vector index", slog.Int("vectors", flat.Len()))
	return nil
}

// Append adds vector at the next position.
func (x *FileIndex) Append(_ context.Context, vector []float64) error {
	x.mu.RLock()
	flat, err := x.current.Append(vector)
	x.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := x.write(flat); err != nil {
		return err
	}
	x.swap(flat)
	return nil
}

// Search returns up to k nearest positions.
func (x *FileIndex) Search(_ context.Context, query []float64, k int) ([]search.Match, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.current.Search(query, k)
}

// Verify checks that the index mirrors vectors position by position.
func (x *FileIndex) Verify(vectors [][]float64) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.current.Verify(vectors)
}

// Len returns the number of indexed vectors.
func (x *FileIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.current.Len()
}

// Dimension returns the configured vector length.
func (x *FileIndex) Dimension() int { return x.dim }

func (x *FileIndex) swap(flat Flat) {
	x.mu.Lock()
	x.current = flat
	x.mu.Unlock()
}

func (x *FileIndex) write(flat Flat) error {
	data, err := flat.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := persistence.WriteFileAtomic(x.path, data); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}
