package v1

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/docsearch"
	"github.com/helixml/docsearch/domain/document"
	"github.com/helixml/docsearch/infrastructure/api/middleware"
	"github.com/helixml/docsearch/infrastructure/api/v1/dto"
)

// EmbedRouter exposes the embedding generator.
type EmbedRouter struct {
	client *docsearch.Client
	logger *slog.Logger
}

// NewEmbedRouter creates a new EmbedRouter.
func NewEmbedRouter(client *docsearch.Client) *EmbedRouter {
	return &EmbedRouter{
		client: client,
		logger: client.Logger(),
	}
}

// Routes returns the chi router for the embed endpoint.
func (r *EmbedRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", r.Embed)

	return router
}

// Embed handles POST /api/v1/embed.
func (r *EmbedRouter) Embed(w http.ResponseWriter, req *http.Request) {
	var body dto.EmbedRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	if body.Text == nil {
		middleware.WriteError(w, req, fmt.Errorf("%w: missing text field", document.ErrValidation), r.logger)
		return
	}

	vec, err := r.client.Search.Embed(req.Context(), *body.Text)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.EmbedResponse{Status: dto.StatusOK, Embedding: vec})
}
