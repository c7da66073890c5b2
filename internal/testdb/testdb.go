// Package testdb opens in-memory SQLite databases for tests.
package testdb

import (
	"context"
	"testing"

	"github.com/helixml/docsearch/infrastructure/persistence"
	"github.com/helixml/docsearch/internal/database"
)

// New returns an in-memory database with the document tables migrated,
// closed when the test finishes.
func New(t *testing.T) database.Database {
	t.Helper()
	db := NewPlain(t)
	if err := persistence.AutoMigrate(db); err != nil {
		t.Fatalf("testdb.New: auto migrate: %v", err)
	}
	return db
}

// NewPlain returns an in-memory database with no tables.
func NewPlain(t *testing.T) database.Database {
	t.Helper()
	db, err := database.NewDatabase(context.Background(), "sqlite:///:memory:")
	if err != nil {
		t.Fatalf("testdb.NewPlain: open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// NewStore returns a loaded, empty SQL document store and the database under it.
func NewStore(t *testing.T) (*persistence.Collection, database.Database) {
	t.Helper()
	db := New(t)
	store, err := persistence.NewSQLStore(db)
	if err != nil {
		t.Fatalf("testdb.NewStore: %v", err)
	}
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("testdb.NewStore: load: %v", err)
	}
	return store, db
}
