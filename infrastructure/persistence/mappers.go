package persistence

import (
	"github.com/helixml/docsearch/domain/document"
)

// DocumentMapper maps between domain Document and persistence DocumentModel.
type DocumentMapper struct{}

// ToDomain converts a DocumentModel to a domain Document.
func (m DocumentMapper) ToDomain(e DocumentModel) document.Document {
	return document.ReconstructDocument(
		e.ID,
		e.Title,
		e.Content,
		e.Category,
		e.Embedding,
		e.Extra,
	)
}

// ToModel converts a domain Document at the given position to a DocumentModel.
func (m DocumentMapper) ToModel(d document.Document, position int) DocumentModel {
	return DocumentModel{
		ID:        d.ID(),
		Position:  position,
		Title:     d.Title(),
		Content:   d.Content(),
		Category:  d.Category(),
		Embedding: Float64Slice(d.Embedding()),
		Extra:     JSONMap(d.Extra()),
	}
}
