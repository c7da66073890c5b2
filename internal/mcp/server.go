// Package mcp provides Model Context Protocol server functionality.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/helixml/docsearch/domain/document"
)

// ServerName is the name reported to MCP clients.
const ServerName = "docsearch"

// Searcher answers similarity queries.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]document.SearchResult, error)
}

// DocumentLookup returns stored documents by id.
type DocumentLookup interface {
	Get(ctx context.Context, id int64) (document.Document, error)
}

// DocumentWriter adds documents to the collection.
type DocumentWriter interface {
	AddDocument(ctx context.Context, doc document.Document) (int64, error)
}

// Server wraps the MCP server with the document search tools.
type Server struct {
	mcpServer *server.MCPServer
	searcher  Searcher
	documents DocumentLookup
	writer    DocumentWriter
	logger    *slog.Logger
}

// NewServer creates a new MCP server with the given dependencies.
// A nil writer leaves the add_document tool out.
func NewServer(searcher Searcher, documents DocumentLookup, writer DocumentWriter, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		searcher:  searcher,
		documents: documents,
		writer:    writer,
		logger:    logger,
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	searchTool := mcp.NewTool("search",
		mcp.WithDescription("Find the stored documents closest in meaning to a query"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language search query"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 5)"),
		),
	)
	mcpServer.AddTool(searchTool, s.handleSearch)

	getDocumentTool := mcp.NewTool("get_document",
		mcp.WithDescription("Get a stored document by its ID"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The numeric ID of the document"),
		),
	)
	mcpServer.AddTool(getDocumentTool, s.handleGetDocument)

	if s.writer == nil {
		return
	}

	addDocumentTool := mcp.NewTool("add_document",
		mcp.WithDescription("Add a document to the search collection"),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Document title"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Document text; this is what gets embedded"),
		),
		mcp.WithString("category",
			mcp.Description("Optional category label"),
		),
	)
	mcpServer.AddTool(addDocumentTool, s.handleAddDocument)
}

type searchResult struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Category   string  `json:"category"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
}

type documentResult struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	limit := request.GetInt("limit", 0)

	results, err := s.searcher.Search(ctx, query, limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "search failed", slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	out := make([]searchResult, len(results))
	for i, r := range results {
		out[i] = searchResult{
			ID:         r.ID(),
			Title:      r.Title(),
			Content:    r.Content(),
			Category:   r.Category(),
			Distance:   r.Distance(),
			Similarity: r.Similarity(),
		}
	}

	return jsonResult(out)
}

func (s *Server) handleGetDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idStr, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}

	id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid id: %s", idStr)), nil
	}

	doc, err := s.documents.Get(ctx, id)
	if errors.Is(err, document.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("document %d not found", id)), nil
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to get document", slog.Int64("id", id), slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("failed to get document: %v", err)), nil
	}

	return jsonResult(documentResult{
		ID:       doc.ID(),
		Title:    doc.Title(),
		Content:  doc.Content(),
		Category: doc.Category(),
	})
}

func (s *Server) handleAddDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := request.GetString("title", "")
	content := request.GetString("content", "")
	category := request.GetString("category", "")

	id, err := s.writer.AddDocument(ctx, document.NewDocument(title, content, category, nil))
	if err != nil {
		if !errors.Is(err, document.ErrValidation) {
			s.logger.ErrorContext(ctx, "failed to add document", slog.Any("error", err))
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to add document: %v", err)), nil
	}

	return jsonResult(map[string]int64{"id": id})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the MCP server on stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
