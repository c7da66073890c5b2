package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/helixml/docsearch/domain/document"
)

// Snapshot is the complete persisted state of a document collection.
type Snapshot struct {
	Documents []document.Document
	LastID    int64
}

// Backend reads and writes whole collection snapshots.
type Backend interface {
	// Read returns the persisted snapshot. It reports false when nothing has
	// been persisted yet.
	Read(ctx context.Context) (Snapshot, bool, error)

	// Write replaces the persisted snapshot.
	Write(ctx context.Context, snapshot Snapshot) error
}

// Collection implements document.Store on top of a Backend.
//
// The in-memory sequence is replaced copy-on-write: a mutation builds the
// next sequence, persists it, and only then swaps it in. A failed write
// leaves the collection unchanged.
type Collection struct {
	backend Backend
	logger  *slog.Logger

	mu     sync.RWMutex
	docs   []document.Document
	byID   map[int64]int
	lastID int64
}

// NewCollection creates an empty Collection backed by backend.
func NewCollection(backend Backend, logger *slog.Logger) *Collection {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collection{
		backend: backend,
		logger:  logger,
		byID:    map[int64]int{},
	}
}

// Load reads the persisted collection.
func (c *Collection) Load(ctx context.Context) error {
	snap, found, err := c.backend.Read(ctx)
	if err != nil {
		return err
	}
	if !found {
		c.swap(nil, 0)
		c.logger.Info("no persisted documents, starting empty")
		return nil
	}

	byID := make(map[int64]int, len(snap.Documents))
	lastID := snap.LastID
	for i, doc := range snap.Documents {
		if doc.ID() <= 0 {
			return fmt.Errorf("%w: document at position %d has invalid id %d", document.ErrStorageCorrupt, i, doc.ID())
		}
		if _, dup := byID[doc.ID()]; dup {
			return fmt.Errorf("%w: duplicate document id %d", document.ErrStorageCorrupt, doc.ID())
		}
		byID[doc.ID()] = i
		if doc.ID() > lastID {
			lastID = doc.ID()
		}
	}

	c.mu.Lock()
	c.docs = snap.Documents
	c.byID = byID
	c.lastID = lastID
	c.mu.Unlock()

	c.logger.Info("loaded documents", slog.Int("count", len(snap.Documents)), slog.Int64("last_id", lastID))
	return nil
}

// Save persists the current collection.
func (c *Collection) Save(ctx context.Context) error {
	c.mu.RLock()
	snap := Snapshot{Documents: c.docs, LastID: c.lastID}
	c.mu.RUnlock()
	return c.backend.Write(ctx, snap)
}

// NextID returns the id for the next new document. Ids are never reused.
func (c *Collection) NextID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastID + 1
}

// Get returns the document with the given id.
func (c *Collection) Get(id int64) (document.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byID[id]
	if !ok {
		return document.Document{}, fmt.Errorf("%w: id %d", document.ErrNotFound, id)
	}
	return c.docs[i], nil
}

// List returns all documents in sequence order.
func (c *Collection) List() []document.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]document.Document, len(c.docs))
	copy(out, c.docs)
	return out
}

// Len returns the number of documents.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// Upsert replaces the document with the same id in place, or appends it.
func (c *Collection) Upsert(ctx context.Context, doc document.Document) error {
	if doc.ID() <= 0 {
		return fmt.Errorf("%w: document id must be positive", document.ErrValidation)
	}

	c.mu.RLock()
	next := make([]document.Document, len(c.docs), len(c.docs)+1)
	copy(next, c.docs)
	i, exists := c.byID[doc.ID()]
	lastID := c.lastID
	c.mu.RUnlock()

	if exists {
		next[i] = doc
	} else {
		next = append(next, doc)
	}
	if doc.ID() > lastID {
		lastID = doc.ID()
	}

	if err := c.backend.Write(ctx, Snapshot{Documents: next, LastID: lastID}); err != nil {
		return err
	}
	c.swap(next, lastID)
	return nil
}

// Delete removes the document with the given id.
func (c *Collection) Delete(ctx context.Context, id int64) (bool, error) {
	c.mu.RLock()
	i, exists := c.byID[id]
	if !exists {
		c.mu.RUnlock()
		return false, nil
	}
	next := make([]document.Document, 0, len(c.docs)-1)
	next = append(next, c.docs[:i]...)
	next = append(next, c.docs[i+1:]...)
	lastID := c.lastID
	c.mu.RUnlock()

	if err := c.backend.Write(ctx, Snapshot{Documents: next, LastID: lastID}); err != nil {
		return false, err
	}
	c.swap(next, lastID)
	return true, nil
}

func (c *Collection) swap(docs []document.Document, lastID int64) {
	byID := make(map[int64]int, len(docs))
	for i, d := range docs {
		byID[d.ID()] = i
	}
	c.mu.Lock()
	c.docs = docs
	c.byID = byID
	c.lastID = lastID
	c.mu.Unlock()
}
