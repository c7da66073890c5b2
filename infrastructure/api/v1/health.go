package v1

import (
	"log/slog"
	"net/http"

	"github.com/helixml/docsearch"
	"github.com/helixml/docsearch/infrastructure/api/middleware"
	"github.com/helixml/docsearch/infrastructure/api/v1/dto"
)

// HealthRouter reports service state and triggers initialization.
type HealthRouter struct {
	client  *docsearch.Client
	version string
	logger  *slog.Logger
}

// NewHealthRouter creates a new HealthRouter.
func NewHealthRouter(client *docsearch.Client, version string) *HealthRouter {
	return &HealthRouter{
		client:  client,
		version: version,
		logger:  client.Logger(),
	}
}

// Health handles GET /health. It never loads data, so it stays cheap.
func (r *HealthRouter) Health(w http.ResponseWriter, req *http.Request) {
	stats := r.client.Search.Stats(req.Context())
	middleware.WriteJSON(w, http.StatusOK, dto.HealthResponse{
		Status:    dto.StatusOK,
		Version:   r.version,
		Documents: stats.Documents,
		Indexed:   stats.Indexed,
		Dimension: stats.Dimension,
		Ready:     stats.Ready,
	})
}

// Initialize handles POST /api/v1/initialize.
func (r *HealthRouter) Initialize(w http.ResponseWriter, req *http.Request) {
	if err := r.client.Search.Initialize(req.Context()); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, dto.StatusResponse{Status: dto.StatusOK, Message: "search service initialized"})
}
