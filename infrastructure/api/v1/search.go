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

// SearchRouter handles search API endpoints.
type SearchRouter struct {
	client *docsearch.Client
	logger *slog.Logger
}

// NewSearchRouter creates a new SearchRouter.
func NewSearchRouter(client *docsearch.Client) *SearchRouter {
	return &SearchRouter{
		client: client,
		logger: client.Logger(),
	}
}

// Routes returns the chi router for search endpoints.
func (r *SearchRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", r.Search)

	return router
}

// Search handles POST /api/v1/search.
func (r *SearchRouter) Search(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var body dto.SearchRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	limit := 0
	if body.Limit != nil {
		limit = *body.Limit
	}

	var (
		results []document.SearchResult
		err     error
	)
	switch {
	case body.Query != nil:
		results, err = r.client.Search.Search(ctx, *body.Query, limit)
	case body.Embedding != nil:
		results, err = r.client.Search.SearchByEmbedding(ctx, body.Embedding, limit)
	default:
		err = fmt.Errorf("%w: missing query or embedding field", document.ErrValidation)
	}
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.NewSearchResponse(results))
}
