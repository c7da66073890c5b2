package persistence_test

import (
	"context"
	"errors"
	"testing"

	"github.com/helixml/docsearch/domain/document"
	"github.com/helixml/docsearch/infrastructure/persistence"
	"github.com/helixml/docsearch/internal/database"
	"github.com/helixml/docsearch/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactory opens a store over the same persisted location each call.
type storeFactory func(t *testing.T) func() *persistence.Collection

func jsonFactory(t *testing.T) func() *persistence.Collection {
	dir := t.TempDir()
	return func() *persistence.Collection { return persistence.NewJSONStore(dir) }
}

func sqlFactory(t *testing.T) func() *persistence.Collection {
	db := testdb.NewPlain(t)
	return func() *persistence.Collection {
		store, err := persistence.NewSQLStore(db)
		require.NoError(t, err)
		return store
	}
}

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"json": jsonFactory,
		"sql":  sqlFactory,
	}
}

func doc(id int64, title string, emb ...float64) document.Document {
	return document.ReconstructDocument(id, title, "content of "+title, "cat", emb, map[string]any{"source": "test"})
}

func TestCollection_LoadEmpty(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)()
			require.NoError(t, store.Load(context.Background()))
			assert.Equal(t, 0, store.Len())
			assert.Equal(t, int64(1), store.NextID())
		})
	}
}

func TestCollection_PersistsOrderAndFields(t *testing.T) {
	ctx := context.Background()
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			open := factory(t)
			store := open()
			require.NoError(t, store.Load(ctx))

			require.NoError(t, store.Upsert(ctx, doc(1, "a", 0.1, 0.2)))
			require.NoError(t, store.Upsert(ctx, doc(2, "b", 0.3, 0.4)))
			require.NoError(t, store.Upsert(ctx, doc(3, "c", 0.5, 0.6)))

			reopened := open()
			require.NoError(t, reopened.Load(ctx))

			docs := reopened.List()
			require.Len(t, docs, 3)
			assert.Equal(t, []int64{1, 2, 3}, []int64{docs[0].ID(), docs[1].ID(), docs[2].ID()})
			assert.Equal(t, "b", docs[1].Title())
			assert.Equal(t, "content of b", docs[1].Content())
			assert.Equal(t, "cat", docs[1].Category())
			assert.Equal(t, []float64{0.3, 0.4}, docs[1].Embedding())
			assert.Equal(t, "test", docs[1].Extra()["source"])
		})
	}
}

func TestCollection_UpsertReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)()
			require.NoError(t, store.Load(ctx))
			require.NoError(t, store.Upsert(ctx, doc(1, "a", 1)))
			require.NoError(t, store.Upsert(ctx, doc(2, "b", 2)))

			require.NoError(t, store.Upsert(ctx, doc(1, "a2", 3)))

			docs := store.List()
			require.Len(t, docs, 2)
			assert.Equal(t, "a2", docs[0].Title())
			assert.Equal(t, int64(2), docs[1].ID())
		})
	}
}

func TestCollection_DeleteNeverReusesIDs(t *testing.T) {
	ctx := context.Background()
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			open := factory(t)
			store := open()
			require.NoError(t, store.Load(ctx))
			require.NoError(t, store.Upsert(ctx, doc(1, "a", 1)))
			require.NoError(t, store.Upsert(ctx, doc(2, "b", 2)))
			require.NoError(t, store.Upsert(ctx, doc(3, "c", 3)))

			deleted, err := store.Delete(ctx, 3)
			require.NoError(t, err)
			assert.True(t, deleted)

			deleted, err = store.Delete(ctx, 3)
			require.NoError(t, err)
			assert.False(t, deleted)

			assert.Equal(t, int64(4), store.NextID())

			reopened := open()
			require.NoError(t, reopened.Load(ctx))
			assert.Equal(t, 2, reopened.Len())
			assert.Equal(t, int64(4), reopened.NextID())
		})
	}
}

func TestCollection_DeleteClosesGap(t *testing.T) {
	ctx := context.Background()
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			open := factory(t)
			store := open()
			require.NoError(t, store.Load(ctx))
			for i := int64(1); i <= 3; i++ {
				require.NoError(t, store.Upsert(ctx, doc(i, "d", float64(i))))
			}

			_, err := store.Delete(ctx, 2)
			require.NoError(t, err)

			reopened := open()
			require.NoError(t, reopened.Load(ctx))
			docs := reopened.List()
			require.Len(t, docs, 2)
			assert.Equal(t, int64(1), docs[0].ID())
			assert.Equal(t, int64(3), docs[1].ID())

			_, err = reopened.Get(2)
			assert.True(t, errors.Is(err, document.ErrNotFound))
		})
	}
}

func TestCollection_UpsertRejectsUnassignedID(t *testing.T) {
	store := persistence.NewJSONStore(t.TempDir())
	require.NoError(t, store.Load(context.Background()))

	err := store.Upsert(context.Background(), document.NewDocument("a", "b", "", nil))
	assert.True(t, errors.Is(err, document.ErrValidation))
}

type failingBackend struct {
	persistence.Backend
	fail bool
}

func (f *failingBackend) Write(ctx context.Context, snap persistence.Snapshot) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Backend.Write(ctx, snap)
}

func TestCollection_FailedWriteLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{Backend: persistence.NewJSONBackend(t.TempDir())}
	store := persistence.NewCollection(backend, nil)
	require.NoError(t, store.Load(ctx))
	require.NoError(t, store.Upsert(ctx, doc(1, "a", 1)))

	backend.fail = true

	require.Error(t, store.Upsert(ctx, doc(2, "b", 2)))
	_, err := store.Delete(ctx, 1)
	require.Error(t, err)

	assert.Equal(t, 1, store.Len())
	assert.Equal(t, int64(2), store.NextID())
	got, err := store.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Title())
}

func TestSQLBackend_DetectsPositionGap(t *testing.T) {
	ctx := context.Background()
	store, db := testdb.NewStore(t)
	require.NoError(t, store.Upsert(ctx, doc(1, "a", 1)))
	require.NoError(t, store.Upsert(ctx, doc(2, "b", 2)))

	corruptPositions(t, db)

	err := persistence.NewCollection(persistence.NewSQLBackend(db), nil).Load(ctx)
	assert.True(t, errors.Is(err, document.ErrStorageCorrupt))
}

func TestSQLBackend_UndecodableColumnsAreCorrupt(t *testing.T) {
	for _, column := range []string{"embedding", "extra"} {
		t.Run(column, func(t *testing.T) {
			ctx := context.Background()
			store, db := testdb.NewStore(t)
			require.NoError(t, store.Upsert(ctx, doc(1, "a", 1)))
			require.NoError(t, store.Upsert(ctx, doc(2, "b", 2)))

			err := db.Session(ctx).
				Exec("UPDATE docsearch_documents SET "+column+" = ? WHERE id = ?", "not json", 1).Error
			require.NoError(t, err)

			err = persistence.NewCollection(persistence.NewSQLBackend(db), nil).Load(ctx)
			require.Error(t, err)
			assert.ErrorIs(t, err, document.ErrStorageCorrupt)
		})
	}
}

func TestFloat64Slice_ScanRejectsUnknownType(t *testing.T) {
	var f persistence.Float64Slice
	assert.ErrorIs(t, f.Scan(42), document.ErrStorageCorrupt)

	require.NoError(t, f.Scan(nil))
	assert.Nil(t, f)

	require.NoError(t, f.Scan("[0.5,1]"))
	assert.Equal(t, persistence.Float64Slice{0.5, 1}, f)
}

func corruptPositions(t *testing.T, db database.Database) {
	t.Helper()
	err := db.Session(context.Background()).
		Model(&persistence.DocumentModel{}).
		Where("id = ?", 2).
		Update("position", 7).Error
	require.NoError(t, err)
}
