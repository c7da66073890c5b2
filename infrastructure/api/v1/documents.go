package v1

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/docsearch"
	"github.com/helixml/docsearch/infrastructure/api/middleware"
	"github.com/helixml/docsearch/infrastructure/api/v1/dto"
)

// DocumentsRouter handles document API endpoints.
type DocumentsRouter struct {
	client *docsearch.Client
	logger *slog.Logger
}

// NewDocumentsRouter creates a new DocumentsRouter.
func NewDocumentsRouter(client *docsearch.Client) *DocumentsRouter {
	return &DocumentsRouter{
		client: client,
		logger: client.Logger(),
	}
}

// Routes returns the chi router for document endpoints.
func (r *DocumentsRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", r.List)
	router.Post("/", r.Create)
	router.Get("/{id}", r.Get)
	router.Put("/{id}", r.Update)
	router.Delete("/{id}", r.Delete)

	return router
}

// List handles GET /api/v1/documents.
// Embeddings are left out unless ?embeddings=true is given.
func (r *DocumentsRouter) List(w http.ResponseWriter, req *http.Request) {
	docs, err := r.client.Search.List(req.Context())
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	withEmbedding := req.URL.Query().Get("embeddings") == "true"
	out := make([]dto.DocumentResponse, len(docs))
	for i, d := range docs {
		out[i] = dto.NewDocumentResponse(d, withEmbedding)
	}

	middleware.WriteJSON(w, http.StatusOK, dto.DocumentListResponse{
		Status:    dto.StatusOK,
		Total:     len(out),
		Documents: out,
	})
}

// Get handles GET /api/v1/documents/{id}.
func (r *DocumentsRouter) Get(w http.ResponseWriter, req *http.Request) {
	id, err := documentID(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	doc, err := r.client.Search.Get(req.Context(), id)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.DocumentEnvelope{
		Status:   dto.StatusOK,
		Document: dto.NewDocumentResponse(doc, req.URL.Query().Get("embeddings") == "true"),
	})
}

// Create handles POST /api/v1/documents.
func (r *DocumentsRouter) Create(w http.ResponseWriter, req *http.Request) {
	var body dto.DocumentRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	id, err := r.client.Search.AddDocument(req.Context(), body.ToDocument())
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.IDResponse{Status: dto.StatusOK, ID: id})
}

// Update handles PUT /api/v1/documents/{id}. Only the fields present are changed.
func (r *DocumentsRouter) Update(w http.ResponseWriter, req *http.Request) {
	id, err := documentID(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	var body dto.DocumentRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	if _, err := r.client.Search.UpdateDocument(req.Context(), id, body.ToPatch()); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.IDResponse{Status: dto.StatusOK, ID: id})
}

// Delete handles DELETE /api/v1/documents/{id}.
func (r *DocumentsRouter) Delete(w http.ResponseWriter, req *http.Request) {
	id, err := documentID(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	deleted, err := r.client.Search.DeleteDocument(req.Context(), id)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	if !deleted {
		middleware.WriteError(w, req, middleware.NewAPIError(http.StatusNotFound, fmt.Sprintf("document with id %d not found", id), nil), r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.StatusResponse{Status: dto.StatusOK})
}

func documentID(req *http.Request) (int64, error) {
	raw := chi.URLParam(req, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, middleware.NewAPIError(http.StatusBadRequest, fmt.Sprintf("invalid document id: %s", raw), err)
	}
	return id, nil
}
