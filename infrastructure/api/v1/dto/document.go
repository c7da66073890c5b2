// Package dto holds the request and response bodies of the v1 API.
package dto

import (
	"encoding/json"
	"fmt"

	"github.com/helixml/docsearch/domain/document"
)

// StatusOK is the status value of every successful response.
const StatusOK = "ok"

// DocumentRequest is the body of a create or update request.
// Fields other than the named ones are kept as extra fields.
type DocumentRequest struct {
	Title     *string
	Content   *string
	Category  *string
	Embedding []float64
	Extra     map[string]any
}

// UnmarshalJSON decodes the named fields and collects the rest into Extra.
func (r *DocumentRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = DocumentRequest{}
	for key, value := range raw {
		var err error
		switch key {
		case document.FieldID:
			// ids are assigned by the store
		case document.FieldTitle:
			r.Title, err = decodeString(key, value)
		case document.FieldContent:
			r.Content, err = decodeString(key, value)
		case document.FieldCategory:
			r.Category, err = decodeString(key, value)
		case document.FieldEmbedding:
			if string(value) != "null" {
				err = json.Unmarshal(value, &r.Embedding)
			}
		default:
			var v any
			err = json.Unmarshal(value, &v)
			if r.Extra == nil {
				r.Extra = make(map[string]any)
			}
			r.Extra[key] = v
		}
		if err != nil {
			return fmt.Errorf("%w: field %q: %v", document.ErrValidation, key, err)
		}
	}
	return nil
}

func decodeString(key string, value json.RawMessage) (*string, error) {
	if string(value) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return nil, fmt.Errorf("%s must be a string", key)
	}
	return &s, nil
}

// ToDocument converts the request into a new, unstored document.
// Extra fields with a null value are dropped.
func (r DocumentRequest) ToDocument() document.Document {
	extra := make(map[string]any, len(r.Extra))
	for k, v := range r.Extra {
		if v != nil {
			extra[k] = v
		}
	}
	doc := document.NewDocument(deref(r.Title), deref(r.Content), deref(r.Category), extra)
	if len(r.Embedding) > 0 {
		doc = doc.WithEmbedding(r.Embedding)
	}
	return doc
}

// ToPatch converts the request into a partial update.
func (r DocumentRequest) ToPatch() document.Patch {
	var opts []document.PatchOption
	if r.Title != nil {
		opts = append(opts, document.WithTitle(*r.Title))
	}
	if r.Content != nil {
		opts = append(opts, document.WithContent(*r.Content))
	}
	if r.Category != nil {
		opts = append(opts, document.WithCategory(*r.Category))
	}
	if len(r.Embedding) > 0 {
		opts = append(opts, document.WithEmbedding(r.Embedding))
	}
	for k, v := range r.Extra {
		opts = append(opts, document.WithExtra(k, v))
	}
	return document.NewPatch(opts...)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// DocumentResponse is a stored document. Extra fields are flattened into the object.
type DocumentResponse struct {
	ID        int64
	Title     string
	Content   string
	Category  string
	Embedding []float64
	Extra     map[string]any
}

// NewDocumentResponse converts a document, including its embedding only when asked.
func NewDocumentResponse(doc document.Document, withEmbedding bool) DocumentResponse {
	resp := DocumentResponse{
		ID:       doc.ID(),
		Title:    doc.Title(),
		Content:  doc.Content(),
		Category: doc.Category(),
		Extra:    doc.Extra(),
	}
	if withEmbedding {
		resp.Embedding = doc.Embedding()
	}
	return resp
}

// MarshalJSON writes the named fields followed by the extra fields.
func (d DocumentResponse) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+5)
	for k, v := range d.Extra {
		out[k] = v
	}
	out[document.FieldID] = d.ID
	out[document.FieldTitle] = d.Title
	out[document.FieldContent] = d.Content
	out[document.FieldCategory] = d.Category
	if d.Embedding != nil {
		out[document.FieldEmbedding] = d.Embedding
	}
	return json.Marshal(out)
}

// DocumentListResponse lists stored documents.
type DocumentListResponse struct {
	Status    string             `json:"status"`
	Total     int                `json:"total"`
	Documents []DocumentResponse `json:"documents"`
}

// DocumentEnvelope wraps a single document.
type DocumentEnvelope struct {
	Status   string           `json:"status"`
	Document DocumentResponse `json:"document"`
}

// IDResponse acknowledges a create or update.
type IDResponse struct {
	Status string `json:"status"`
	ID     int64  `json:"id"`
}

// StatusResponse acknowledges an operation without a payload.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
