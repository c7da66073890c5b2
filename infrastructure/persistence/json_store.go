package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/helixml/docsearch/domain/document"
)

// Default file names inside the data directory.
const (
	DocumentsFileName = "documents.json"
	MetaFileName      = "documents.meta.json"
)

// JSONBackend persists a collection as a JSON array of flat document objects,
// with the id high-water mark in a separate metadata file.
type JSONBackend struct {
	documentsPath string
	metaPath      string
}

// NewJSONBackend creates a JSONBackend storing its files in dir.
func NewJSONBackend(dir string) JSONBackend {
	return JSONBackend{
		documentsPath: filepath.Join(dir, DocumentsFileName),
		metaPath:      filepath.Join(dir, MetaFileName),
	}
}

// NewJSONStore creates a document.Store persisted as JSON files in dir.
func NewJSONStore(dir string, opts ...StoreOption) *Collection {
	cfg := newStoreConfig(opts...)
	return NewCollection(NewJSONBackend(dir), cfg.logger)
}

// DocumentsPath returns the documents file location.
func (b JSONBackend) DocumentsPath() string { return b.documentsPath }

type jsonMeta struct {
	LastID int64 `json:"last_id"`
}

// Read loads both files. A missing metadata file is tolerated.
func (b JSONBackend) Read(_ context.Context) (Snapshot, bool, error) {
	data, err := os.ReadFile(b.documentsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("read documents: %w", err)
	}

	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Snapshot{}, true, fmt.Errorf("%w: decode %s: %v", document.ErrStorageCorrupt, DocumentsFileName, err)
	}

	docs := make([]document.Document, 0, len(raw))
	for i, obj := range raw {
		doc, err := DocumentFromJSON(obj)
		if err != nil {
			return Snapshot{}, true, fmt.Errorf("%w: document at position %d: %v", document.ErrStorageCorrupt, i, err)
		}
		docs = append(docs, doc)
	}

	var meta jsonMeta
	metaData, err := os.ReadFile(b.metaPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Snapshot{}, true, fmt.Errorf("read metadata: %w", err)
	default:
		if err := json.Unmarshal(metaData, &meta); err != nil {
			return Snapshot{}, true, fmt.Errorf("%w: decode %s: %v", document.ErrStorageCorrupt, MetaFileName, err)
		}
	}

	return Snapshot{Documents: docs, LastID: meta.LastID}, true, nil
}

// Write replaces both files. The documents file is written first; a stale
// metadata file is corrected on the next load from the maximum stored id.
func (b JSONBackend) Write(_ context.Context, snap Snapshot) error {
	objs := make([]map[string]any, len(snap.Documents))
	for i, doc := range snap.Documents {
		objs[i] = DocumentToJSON(doc)
	}

	data, err := json.MarshalIndent(objs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode documents: %w", err)
	}
	if err := WriteFileAtomic(b.documentsPath, data); err != nil {
		return fmt.Errorf("write documents: %w", err)
	}

	metaData, err := json.Marshal(jsonMeta{LastID: snap.LastID})
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := WriteFileAtomic(b.metaPath, metaData); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// DocumentToJSON flattens a document into one JSON object. Extra fields sit
// beside the named ones.
func DocumentToJSON(doc document.Document) map[string]any {
	obj := make(map[string]any, 5+len(doc.Extra()))
	for k, v := range doc.Extra() {
		obj[k] = v
	}
	obj[document.FieldID] = doc.ID()
	obj[document.FieldTitle] = doc.Title()
	obj[document.FieldContent] = doc.Content()
	obj[document.FieldCategory] = doc.Category()
	obj[document.FieldEmbedding] = doc.Embedding()
	return obj
}

// DocumentFromJSON parses one flat document object.
func DocumentFromJSON(obj map[string]json.RawMessage) (document.Document, error) {
	var (
		id                       int64
		title, content, category string
		embedding                []float64
	)
	extra := map[string]any{}

	for k, v := range obj {
		var err error
		switch k {
		case document.FieldID:
			err = json.Unmarshal(v, &id)
		case document.FieldTitle:
			err = unmarshalOptionalString(v, &title)
		case document.FieldContent:
			err = unmarshalOptionalString(v, &content)
		case document.FieldCategory:
			err = unmarshalOptionalString(v, &category)
		case document.FieldEmbedding:
			err = json.Unmarshal(v, &embedding)
		default:
			var val any
			err = json.Unmarshal(v, &val)
			extra[k] = val
		}
		if err != nil {
			return document.Document{}, fmt.Errorf("field %q: %w", k, err)
		}
	}

	if _, ok := obj[document.FieldID]; !ok {
		return document.Document{}, errors.New("missing id")
	}
	return document.ReconstructDocument(id, title, content, category, embedding, extra), nil
}

func unmarshalOptionalString(raw json.RawMessage, dst *string) error {
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	if s != nil {
		*dst = *s
	}
	return nil
}
