package docsearch

import (
	"io"
	"log/slog"

	"github.com/helixml/docsearch/infrastructure/provider"
	"github.com/helixml/docsearch/internal/config"
)

// embeddingKind identifies how the embedder is built.
type embeddingKind int

const (
	embeddingHash embeddingKind = iota
	embeddingLocal
	embeddingCustom
)

// clientConfig holds configuration for Client construction.
// Use newClientConfig() to create with defaults from internal/config.
type clientConfig struct {
	dataDir     string
	dbURL       string
	dimension   int
	searchLimit int
	embedding   embeddingKind
	embedder    provider.Embedder
	modelDir    string
	logger      *slog.Logger
	closers     []io.Closer
}

// newClientConfig creates a clientConfig with defaults from internal/config.
func newClientConfig() *clientConfig {
	return &clientConfig{
		dataDir:     config.DefaultDataDir(),
		dimension:   config.DefaultEmbeddingDimension,
		searchLimit: config.DefaultSearchLimit,
		embedding:   embeddingHash,
	}
}

// Option configures the Client.
type Option func(*clientConfig)

// WithDataDir sets the directory holding documents.json, documents.meta.json and index.bin.
func WithDataDir(dir string) Option {
	return func(c *clientConfig) {
		c.dataDir = dir
	}
}

// WithDatabase stores documents in a SQL database instead of JSON files.
// Accepts sqlite:///path and postgres:// URLs. The vector index stays in the data directory.
func WithDatabase(url string) Option {
	return func(c *clientConfig) {
		c.dbURL = url
	}
}

// WithSQLite stores documents in the SQLite database at path.
func WithSQLite(path string) Option {
	return WithDatabase("sqlite:///" + path)
}

// WithPostgres stores documents in PostgreSQL.
func WithPostgres(dsn string) Option {
	return WithDatabase(dsn)
}

// WithDimension sets the embedding length. Defaults to 384.
func WithDimension(n int) Option {
	return func(c *clientConfig) {
		c.dimension = n
	}
}

// WithSearchLimit sets the result count used when a search passes no limit.
// Values <= 0 are ignored.
func WithSearchLimit(n int) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.searchLimit = n
		}
	}
}

// WithHashEmbedding uses the deterministic feature-hashing embedder. This is the default.
func WithHashEmbedding() Option {
	return func(c *clientConfig) {
		c.embedding = embeddingHash
		c.embedder = nil
	}
}

// WithLocalEmbedding uses the built-in sentence model found in modelDir.
// An empty modelDir means {dataDir}/models.
func WithLocalEmbedding(modelDir string) Option {
	return func(c *clientConfig) {
		c.embedding = embeddingLocal
		c.embedder = nil
		c.modelDir = modelDir
	}
}

// WithOpenAI uses the OpenAI embeddings API.
func WithOpenAI(apiKey string) Option {
	return WithOpenAIConfig(provider.OpenAIConfig{APIKey: apiKey})
}

// WithOpenAIConfig uses an OpenAI-compatible embeddings API with custom configuration.
func WithOpenAIConfig(cfg provider.OpenAIConfig) Option {
	return WithEmbeddingProvider(provider.NewOpenAIProviderFromConfig(cfg))
}

// WithEmbeddingProvider sets a custom embedding provider.
func WithEmbeddingProvider(p provider.Embedder) Option {
	return func(c *clientConfig) {
		c.embedding = embeddingCustom
		c.embedder = p
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithCloser registers a resource to be closed when the Client shuts down.
func WithCloser(closer io.Closer) Option {
	return func(c *clientConfig) {
		c.closers = append(c.closers, closer)
	}
}
