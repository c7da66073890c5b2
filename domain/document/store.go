package document

import "context"

// Store owns the document collection and its persisted form.
//
// Documents are kept in sequence order. The sequence is what the vector index
// mirrors position by position, so implementations must never reorder it:
// Upsert replaces in place or appends, Delete removes and closes the gap.
// Every mutating call persists the whole collection before returning.
type Store interface {
	// Load reads the persisted collection, starting empty when none exists.
	Load(ctx context.Context) error

	// Save persists the whole collection.
	Save(ctx context.Context) error

	// NextID returns the id the next new document should receive.
	NextID() int64

	// Get returns the document with the given id or ErrNotFound.
	Get(id int64) (Document, error)

	// List returns all documents in sequence order.
	List() []Document

	// Len returns the number of documents.
	Len() int

	// Upsert replaces the document with the same id, or appends it.
	Upsert(ctx context.Context, doc Document) error

	// Delete removes the document with the given id, reporting whether it existed.
	Delete(ctx context.Context, id int64) (bool, error)
}
