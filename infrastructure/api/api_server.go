package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"

	"github.com/helixml/docsearch"
	v1 "github.com/helixml/docsearch/infrastructure/api/v1"
	mcpinternal "github.com/helixml/docsearch/internal/mcp"
)

// DefaultVersion is reported by /health when no version is set.
const DefaultVersion = "dev"

// APIServer provides an HTTP API backed by a docsearch Client.
type APIServer struct {
	client       *docsearch.Client
	version      string
	corsOrigins  []string
	server       *Server
	router       chi.Router
	routerCalled bool
}

// APIServerOption configures an APIServer.
type APIServerOption func(*APIServer)

// WithVersion sets the version reported by /health and to MCP clients.
func WithVersion(version string) APIServerOption {
	return func(a *APIServer) { a.version = version }
}

// WithAllowedOrigins enables CORS for the given origins when the server is
// started with ListenAndServe.
func WithAllowedOrigins(origins ...string) APIServerOption {
	return func(a *APIServer) { a.corsOrigins = append(a.corsOrigins, origins...) }
}

// NewAPIServer creates a new APIServer wired to the given docsearch Client.
func NewAPIServer(client *docsearch.Client, opts ...APIServerOption) *APIServer {
	a := &APIServer{
		client:  client,
		version: DefaultVersion,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router returns the chi router for customization before starting.
// Call this first, add custom middleware with router.Use(), then call MountRoutes().
// If not called, ListenAndServe creates a default router with all standard routes.
func (a *APIServer) Router() chi.Router {
	if a.router != nil {
		return a.router
	}

	a.router = chi.NewRouter()
	a.routerCalled = true
	return a.router
}

// MountRoutes wires up all routes on the router.
// Call this after adding any custom middleware via Router().Use().
func (a *APIServer) MountRoutes() {
	if a.router == nil {
		a.Router()
	}
	a.mountRoutes(a.router)
}

func (a *APIServer) mountRoutes(router chi.Router) {
	c := a.client

	health := v1.NewHealthRouter(c, a.version)
	router.Get("/health", health.Health)
	router.Get("/healthz", health.Health)

	operations := func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))

		r.Post("/initialize", health.Initialize)
		r.Mount("/embed", v1.NewEmbedRouter(c).Routes())
		r.Mount("/search", v1.NewSearchRouter(c).Routes())
		r.Mount("/documents", v1.NewDocumentsRouter(c).Routes())
	}
	router.Route("/api/v1", operations)
	// Unversioned paths for existing clients.
	router.Group(operations)

	// No timeout middleware: MCP streams its responses.
	mcpSrv := mcpinternal.NewServer(c.Search, c.Search, c.Search, a.version, c.Logger())
	router.Mount("/mcp", server.NewStreamableHTTPServer(mcpSrv.MCPServer()))
}

// ListenAndServe starts the HTTP server on the given address.
func (a *APIServer) ListenAndServe(addr string) error {
	srv := NewServer(addr, a.client.Logger(), WithCORSOrigins(a.corsOrigins...))
	a.server = &srv

	if a.routerCalled && a.router != nil {
		srv.Router().Mount("/", a.router)
	} else {
		a.mountRoutes(srv.Router())
	}

	return srv.Start()
}

// Shutdown gracefully shuts down the server.
func (a *APIServer) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// Handler returns the router as an http.Handler for use with custom servers.
func (a *APIServer) Handler() http.Handler {
	if a.router == nil {
		a.Router()
		a.MountRoutes()
	}
	return a.router
}
