// Package docsearch provides semantic search over a collection of short documents.
//
// Documents are embedded into fixed-length vectors and kept in a flat index
// next to the document store. Queries return the closest documents under
// squared Euclidean distance, scored as 1 / (1 + distance).
//
// Basic usage:
//
//	client, err := docsearch.New(
//	    docsearch.WithDataDir(".docsearch"),
//	    docsearch.WithOpenAI(os.Getenv("OPENAI_API_KEY")),
//	    docsearch.WithDimension(1536),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	id, err := client.Search.AddDocument(ctx, document.NewDocument("Greeting", "hello world", "", nil))
//
//	results, err := client.Search.Search(ctx, "hello", 5)
//	for _, r := range results {
//	    fmt.Println(r.ID(), r.Title(), r.Similarity())
//	}
package docsearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/helixml/docsearch/application/service"
	"github.com/helixml/docsearch/domain/document"
	"github.com/helixml/docsearch/infrastructure/persistence"
	"github.com/helixml/docsearch/infrastructure/provider"
	infrasearch "github.com/helixml/docsearch/infrastructure/search"
	"github.com/helixml/docsearch/internal/config"
	"github.com/helixml/docsearch/internal/database"
)

// Client is the main entry point for the docsearch library.
//
// Stored data is loaded lazily on the first operation. Call
// client.Search.Initialize to load and verify it up front.
type Client struct {
	Search *service.Search

	db       *database.Database
	embedder provider.Embedder
	closers  []io.Closer

	logger  *slog.Logger
	dataDir string
	closed  atomic.Bool
	mu      sync.Mutex
}

// New creates a new Client with the given options.
func New(opts ...Option) (*Client, error) {
	cfg := newClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.dimension <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDimension, cfg.dimension)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	dataDir, err := config.PrepareDataDir(cfg.dataDir)
	if err != nil {
		return nil, err
	}

	embedder, err := buildEmbedder(cfg, dataDir, logger)
	if err != nil {
		return nil, err
	}

	store, db, err := buildStore(context.Background(), cfg, dataDir, logger)
	if err != nil {
		return nil, errors.Join(err, closeEmbedder(embedder))
	}

	index := infrasearch.NewFileIndex(filepath.Join(dataDir, infrasearch.IndexFileName), cfg.dimension, logger)

	client := &Client{
		db:       db,
		embedder: embedder,
		closers:  cfg.closers,
		logger:   logger,
		dataDir:  dataDir,
	}
	client.Search = service.NewSearch(
		store,
		index,
		provider.NewSearchEmbedder(embedder),
		logger,
		service.WithDefaultLimit(cfg.searchLimit),
		service.WithClosed(&client.closed),
	)

	logger.Debug("docsearch client created",
		slog.String("data_dir", dataDir),
		slog.Bool("database", db != nil),
		slog.Int("dimension", cfg.dimension),
	)
	return client, nil
}

// Close releases all resources. Operations on a closed client return ErrClientClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := closeEmbedder(c.embedder); err != nil {
		c.logger.Error("failed to close embedding provider", slog.Any("error", err))
	}

	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			c.logger.Error("failed to close resource", slog.Any("error", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			return fmt.Errorf("close database: %w", err)
		}
	}

	c.logger.Info("docsearch client closed")
	return nil
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// DataDir returns the directory holding the index and, without a database, the documents.
func (c *Client) DataDir() string {
	return c.dataDir
}

// buildEmbedder creates the configured embedding provider.
func buildEmbedder(cfg *clientConfig, dataDir string, logger *slog.Logger) (provider.Embedder, error) {
	switch cfg.embedding {
	case embeddingCustom:
		return cfg.embedder, nil
	case embeddingLocal:
		modelDir := cfg.modelDir
		if modelDir == "" {
			modelDir = filepath.Join(dataDir, config.DefaultModelSubdir)
		}
		local := provider.NewLocalEmbedding(modelDir,
			provider.WithLocalLogger(logger),
			provider.WithModelName(config.DefaultModelName),
		)
		if !local.Available() {
			return nil, fmt.Errorf("%w in %s", ErrNoEmbeddingModel, modelDir)
		}
		logger.Info("built-in embedding provider enabled", slog.String("model_dir", modelDir))
		return local, nil
	default:
		return provider.NewHashEmbedding(cfg.dimension), nil
	}
}

// buildStore opens the document store: a SQL database when one is configured,
// JSON files in the data directory otherwise.
func buildStore(ctx context.Context, cfg *clientConfig, dataDir string, logger *slog.Logger) (document.Store, *database.Database, error) {
	if cfg.dbURL == "" {
		return persistence.NewJSONStore(dataDir, persistence.WithLogger(logger)), nil, nil
	}

	db, err := database.NewDatabase(ctx, cfg.dbURL, database.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	store, err := persistence.NewSQLStore(db, persistence.WithLogger(logger))
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("document store: %w", err), db.Close())
	}
	return store, &db, nil
}

func closeEmbedder(e provider.Embedder) error {
	if c, ok := e.(provider.Closer); ok {
		return c.Close()
	}
	return nil
}
