package search

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/helixml/docsearch/domain/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileIndex_LoadMissing(t *testing.T) {
	idx := NewFileIndex(filepath.Join(t.TempDir(), IndexFileName), 2, nil)

	found, err := idx.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, idx.Len())
}

func TestFileIndex_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), IndexFileName)

	idx := NewFileIndex(path, 2, nil)
	require.NoError(t, idx.Rebuild(ctx, [][]float64{{1, 0}}))
	require.NoError(t, idx.Append(ctx, []float64{0, 1}))
	assert.Equal(t, 2, idx.Len())

	reopened := NewFileIndex(path, 2, nil)
	found, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	require.NoError(t, reopened.Verify([][]float64{{1, 0}, {0, 1}}))

	matches, err := reopened.Search(ctx, []float64{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 1, matches[0].Position())
}

func TestFileIndex_RebuildEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), IndexFileName)

	idx := NewFileIndex(path, 2, nil)
	require.NoError(t, idx.Rebuild(ctx, [][]float64{{1, 0}}))
	require.NoError(t, idx.Rebuild(ctx, nil))
	assert.Equal(t, 0, idx.Len())

	reopened := NewFileIndex(path, 2, nil)
	found, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 0, reopened.Len())
}

func TestFileIndex_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), IndexFileName)
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	_, err := NewFileIndex(path, 2, nil).Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, document.ErrStorageCorrupt))
}

func TestFileIndex_LoadDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), IndexFileName)
	require.NoError(t, NewFileIndex(path, 3, nil).Rebuild(ctx, [][]float64{{1, 2, 3}}))

	_, err := NewFileIndex(path, 2, nil).Load(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, document.ErrStorageCorrupt))
}

func TestFileIndex_FailedWriteKeepsState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, IndexFileName)

	idx := NewFileIndex(path, 2, nil)
	require.NoError(t, idx.Rebuild(ctx, [][]float64{{1, 0}}))

	// A directory at the target path makes the rename fail.
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "keep"), nil, 0o644))

	err := idx.Append(ctx, []float64{0, 1})
	require.Error(t, err)
	assert.Equal(t, 1, idx.Len())
}
