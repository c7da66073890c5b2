// Package document provides the document domain types for semantic search.
package document

import (
	"fmt"
	"strings"
)

// Reserved field names. They are stored as named fields and cannot appear
// among a document's extra fields.
const (
	FieldID        = "id"
	FieldTitle     = "title"
	FieldContent   = "content"
	FieldCategory  = "category"
	FieldEmbedding = "embedding"
)

// IsReservedField reports whether key names one of the document's own fields.
func IsReservedField(key string) bool {
	switch key {
	case FieldID, FieldTitle, FieldContent, FieldCategory, FieldEmbedding:
		return true
	}
	return false
}

// Document is a short text with its embedding vector.
// The id is assigned by the store when the document is first accepted.
type Document struct {
	id        int64
	title     string
	content   string
	category  string
	embedding []float64
	extra     map[string]any
}

// NewDocument creates a Document that has not been stored yet.
func NewDocument(title, content, category string, extra map[string]any) Document {
	return Document{
		title:    title,
		content:  content,
		category: category,
		extra:    cloneExtra(extra),
	}
}

// ReconstructDocument reconstructs a Document from persistence.
func ReconstructDocument(id int64, title, content, category string, embedding []float64, extra map[string]any) Document {
	return Document{
		id:        id,
		title:     title,
		content:   content,
		category:  category,
		embedding: cloneVector(embedding),
		extra:     cloneExtra(extra),
	}
}

// ID returns the store-assigned identifier, zero before the document is stored.
func (d Document) ID() int64 { return d.id }

// Title returns the document title.
func (d Document) Title() string { return d.title }

// Content returns the document body.
func (d Document) Content() string { return d.content }

// Category returns the optional category.
func (d Document) Category() string { return d.category }

// Embedding returns a copy of the embedding vector.
func (d Document) Embedding() []float64 { return cloneVector(d.embedding) }

// HasEmbedding reports whether an embedding has been attached.
func (d Document) HasEmbedding() bool { return len(d.embedding) > 0 }

// Extra returns a copy of the additional fields.
func (d Document) Extra() map[string]any { return cloneExtra(d.extra) }

// WithID returns a copy of the document with the given id.
func (d Document) WithID(id int64) Document {
	d.id = id
	d.extra = cloneExtra(d.extra)
	d.embedding = cloneVector(d.embedding)
	return d
}

// WithEmbedding returns a copy of the document with the given embedding.
func (d Document) WithEmbedding(embedding []float64) Document {
	d.embedding = cloneVector(embedding)
	d.extra = cloneExtra(d.extra)
	return d
}

// Apply merges a patch into a copy of the document. The id never changes.
// Extra fields are merged key by key; a nil value removes the key.
func (d Document) Apply(p Patch) Document {
	out := d.WithID(d.id)
	if v, ok := p.Title(); ok {
		out.title = v
	}
	if v, ok := p.Content(); ok {
		out.content = v
	}
	if v, ok := p.Category(); ok {
		out.category = v
	}
	if emb := p.Embedding(); len(emb) > 0 {
		out.embedding = emb
	}
	for k, v := range p.extra {
		if out.extra == nil {
			out.extra = make(map[string]any, len(p.extra))
		}
		if v == nil {
			delete(out.extra, k)
			continue
		}
		out.extra[k] = v
	}
	return out
}

// Validate checks the fields required before a document can be added.
func (d Document) Validate() error {
	if strings.TrimSpace(d.title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(d.content) == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	return ValidateExtra(d.extra)
}

// ValidateExtra rejects extra fields that shadow a named field.
func ValidateExtra(extra map[string]any) error {
	for k := range extra {
		if IsReservedField(k) {
			return fmt.Errorf("%w: %q is not allowed as an extra field", ErrValidation, k)
		}
	}
	return nil
}

func cloneVector(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

func cloneExtra(extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return nil
	}
	out := make(map[string]any, len(extra))
	for k, v := range extra {
		out[k] = v
	}
	return out
}
