// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultHost                  = "0.0.0.0"
	DefaultPort                  = 5000
	DefaultLogLevel              = "INFO"
	DefaultSearchLimit           = 5
	DefaultEmbeddingDimension    = 384
	DefaultDataSubdir            = ".docsearch"
	DefaultModelSubdir           = "models"
	DefaultModelName             = "KnightsAnalytics_all-MiniLM-L6-v2"
	DefaultEndpointTimeout       = 60 * time.Second
	DefaultEndpointMaxRetries    = 5
	DefaultEndpointInitialDelay  = 2 * time.Second
	DefaultEndpointBackoffFactor = 2.0
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// EmbeddingProvider selects the embedding generator.
type EmbeddingProvider string

// EmbeddingProvider values.
const (
	// ProviderHash is the deterministic feature-hashing embedder. It needs no
	// network and no model files.
	ProviderHash EmbeddingProvider = "hash"
	// ProviderOpenAI calls an OpenAI-compatible /embeddings endpoint.
	ProviderOpenAI EmbeddingProvider = "openai"
	// ProviderLocal runs the built-in sentence model.
	ProviderLocal EmbeddingProvider = "local"
)

// DefaultEmbeddingProvider is used when none is configured.
const DefaultEmbeddingProvider = ProviderHash

// ParseEmbeddingProvider parses a provider name, case-insensitively.
func ParseEmbeddingProvider(s string) (EmbeddingProvider, error) {
	switch p := EmbeddingProvider(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DefaultEmbeddingProvider, nil
	case ProviderHash, ProviderOpenAI, ProviderLocal:
		return p, nil
	default:
		return "", fmt.Errorf("unknown embedding provider %q (want hash, openai or local)", s)
	}
}

// Endpoint configures an OpenAI-compatible embedding endpoint.
type Endpoint struct {
	baseURL       string
	model         string
	apiKey        string
	timeout       time.Duration
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
}

// NewEndpoint creates a new Endpoint with defaults.
func NewEndpoint() Endpoint {
	return Endpoint{
		timeout:       DefaultEndpointTimeout,
		maxRetries:    DefaultEndpointMaxRetries,
		initialDelay:  DefaultEndpointInitialDelay,
		backoffFactor: DefaultEndpointBackoffFactor,
	}
}

// BaseURL returns the base URL for the endpoint.
func (e Endpoint) BaseURL() string { return e.baseURL }

// Model returns the model identifier.
func (e Endpoint) Model() string { return e.model }

// APIKey returns the API key.
func (e Endpoint) APIKey() string { return e.apiKey }

// Timeout returns the request timeout.
func (e Endpoint) Timeout() time.Duration { return e.timeout }

// MaxRetries returns the maximum retry count.
func (e Endpoint) MaxRetries() int { return e.maxRetries }

// InitialDelay returns the initial retry delay.
func (e Endpoint) InitialDelay() time.Duration { return e.initialDelay }

// BackoffFactor returns the retry backoff multiplier.
func (e Endpoint) BackoffFactor() float64 { return e.backoffFactor }

// IsConfigured returns true if the endpoint can be called.
func (e Endpoint) IsConfigured() bool {
	return e.baseURL != "" || e.apiKey != ""
}

// EndpointOption is a functional option for Endpoint.
type EndpointOption func(*Endpoint)

// WithBaseURL sets the base URL.
func WithBaseURL(url string) EndpointOption {
	return func(e *Endpoint) { e.baseURL = url }
}

// WithModel sets the model.
func WithModel(model string) EndpointOption {
	return func(e *Endpoint) { e.model = model }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) EndpointOption {
	return func(e *Endpoint) { e.apiKey = key }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.timeout = d }
}

// WithMaxRetries sets the maximum retry count.
func WithMaxRetries(n int) EndpointOption {
	return func(e *Endpoint) { e.maxRetries = n }
}

// WithInitialDelay sets the initial retry delay.
func WithInitialDelay(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.initialDelay = d }
}

// WithBackoffFactor sets the retry backoff multiplier.
func WithBackoffFactor(f float64) EndpointOption {
	return func(e *Endpoint) { e.backoffFactor = f }
}

// NewEndpointWithOptions creates an Endpoint with functional options.
func NewEndpointWithOptions(opts ...EndpointOption) Endpoint {
	e := NewEndpoint()
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// AppConfig holds the main application configuration.
type AppConfig struct {
	host               string
	port               int
	dataDir            string
	dbURL              string
	logLevel           string
	logFormat          LogFormat
	embeddingProvider  EmbeddingProvider
	embeddingDimension int
	embeddingEndpoint  Endpoint
	searchLimit        int
	corsAllowedOrigins []string
	httpCacheDir       string
	modelDir           string
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataSubdir
	}
	return filepath.Join(home, DefaultDataSubdir)
}

// PrepareDataDir creates the data directory if it does not exist and returns it.
func PrepareDataDir(dataDir string) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dataDir, nil
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	return AppConfig{
		host:               DefaultHost,
		port:               DefaultPort,
		dataDir:            DefaultDataDir(),
		logLevel:           DefaultLogLevel,
		logFormat:          LogFormatPretty,
		embeddingProvider:  DefaultEmbeddingProvider,
		embeddingDimension: DefaultEmbeddingDimension,
		embeddingEndpoint:  NewEndpoint(),
		searchLimit:        DefaultSearchLimit,
	}
}

// Host returns the server host to bind to.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port to listen on.
func (c AppConfig) Port() int { return c.port }

// Addr returns the combined host:port address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// DataDir returns the data directory path.
func (c AppConfig) DataDir() string { return c.dataDir }

// DBURL returns the database connection URL. Empty means JSON files in the data directory.
func (c AppConfig) DBURL() string { return c.dbURL }

// UsesDatabase reports whether documents are kept in a SQL database.
func (c AppConfig) UsesDatabase() bool { return c.dbURL != "" }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// EmbeddingProvider returns the configured embedding provider.
func (c AppConfig) EmbeddingProvider() EmbeddingProvider { return c.embeddingProvider }

// EmbeddingDimension returns the length every embedding must have.
func (c AppConfig) EmbeddingDimension() int { return c.embeddingDimension }

// EmbeddingEndpoint returns the embedding endpoint config.
func (c AppConfig) EmbeddingEndpoint() Endpoint { return c.embeddingEndpoint }

// SearchLimit returns the default search result limit.
func (c AppConfig) SearchLimit() int { return c.searchLimit }

// CORSAllowedOrigins returns the origins allowed by CORS. Empty disables CORS.
func (c AppConfig) CORSAllowedOrigins() []string {
	origins := make([]string, len(c.corsAllowedOrigins))
	copy(origins, c.corsAllowedOrigins)
	return origins
}

// HTTPCacheDir returns the directory for caching embedding HTTP responses.
func (c AppConfig) HTTPCacheDir() string { return c.httpCacheDir }

// ModelDir returns the directory holding the local embedding model.
func (c AppConfig) ModelDir() string {
	if c.modelDir != "" {
		return c.modelDir
	}
	return filepath.Join(c.dataDir, DefaultModelSubdir)
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c AppConfig) EnsureDataDir() error {
	return os.MkdirAll(c.dataDir, 0o755)
}

// Validate checks settings that cannot be defaulted.
func (c AppConfig) Validate() error {
	if c.port < 0 || c.port > 65535 {
		return fmt.Errorf("invalid port %d", c.port)
	}
	if c.embeddingDimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.embeddingDimension)
	}
	if _, err := ParseEmbeddingProvider(string(c.embeddingProvider)); err != nil {
		return err
	}
	if c.embeddingProvider == ProviderOpenAI && !c.embeddingEndpoint.IsConfigured() {
		return fmt.Errorf("openai embedding provider needs EMBEDDING_ENDPOINT_BASE_URL or EMBEDDING_ENDPOINT_API_KEY")
	}
	return nil
}

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.port = port }
}

// WithDataDir sets the data directory.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) { c.dataDir = dir }
}

// WithDBURL sets the database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithEmbeddingProvider sets the embedding provider.
func WithEmbeddingProvider(p EmbeddingProvider) AppConfigOption {
	return func(c *AppConfig) { c.embeddingProvider = p }
}

// WithEmbeddingDimension sets the embedding dimension.
func WithEmbeddingDimension(n int) AppConfigOption {
	return func(c *AppConfig) { c.embeddingDimension = n }
}

// WithEmbeddingEndpoint sets the embedding endpoint.
func WithEmbeddingEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.embeddingEndpoint = e }
}

// WithSearchLimit sets the default search result limit.
func WithSearchLimit(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.searchLimit = n
		}
	}
}

// WithCORSAllowedOrigins sets the origins allowed by CORS.
func WithCORSAllowedOrigins(origins []string) AppConfigOption {
	return func(c *AppConfig) {
		c.corsAllowedOrigins = make([]string, len(origins))
		copy(c.corsAllowedOrigins, origins)
	}
}

// WithHTTPCacheDir sets the HTTP response cache directory.
func WithHTTPCacheDir(dir string) AppConfigOption {
	return func(c *AppConfig) { c.httpCacheDir = dir }
}

// WithModelDir sets the local model directory.
func WithModelDir(dir string) AppConfigOption {
	return func(c *AppConfig) { c.modelDir = dir }
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	c := NewAppConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Apply returns a new AppConfig with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns slog attributes for logging the configuration.
// The API key is never logged and the database URL is masked.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("addr", c.Addr()),
		slog.String("data_dir", c.dataDir),
		slog.String("db_url", c.maskedDBURL()),
		slog.String("log_level", c.logLevel),
		slog.String("embedding_provider", string(c.embeddingProvider)),
		slog.Int("embedding_dimension", c.embeddingDimension),
		slog.String("embedding_base_url", c.embeddingEndpoint.BaseURL()),
		slog.String("embedding_model", c.embeddingEndpoint.Model()),
		slog.Bool("embedding_api_key_set", c.embeddingEndpoint.APIKey() != ""),
		slog.Int("search_limit", c.searchLimit),
		slog.Int("cors_origins", len(c.corsAllowedOrigins)),
	}
}

func (c AppConfig) maskedDBURL() string {
	switch {
	case c.dbURL == "":
		return "(json files)"
	case strings.HasPrefix(c.dbURL, "sqlite:"):
		return c.dbURL
	default:
		return "postgres://***@***"
	}
}

// ParseList parses a comma-separated list, dropping blanks.
func ParseList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
