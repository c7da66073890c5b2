package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration.
// Nested structs use an underscore delimiter (e.g. EMBEDDING_ENDPOINT_BASE_URL).
type EnvConfig struct {
	// Host is the server host to bind to.
	// Env: HOST (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Port is the server port to listen on.
	// Env: PORT (default: 5000)
	Port int `envconfig:"PORT" default:"5000"`

	// DataDir holds documents.json, documents.meta.json and index.bin.
	// Env: DATA_DIR
	// Default: ~/.docsearch
	DataDir string `envconfig:"DATA_DIR"`

	// DBURL switches document storage to a SQL database.
	// Env: DB_URL (sqlite:///path or postgres://...)
	DBURL string `envconfig:"DB_URL"`

	// LogLevel is the log verbosity level.
	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// EmbeddingProvider selects hash, openai or local.
	// Env: EMBEDDING_PROVIDER (default: hash)
	EmbeddingProvider string `envconfig:"EMBEDDING_PROVIDER" default:"hash"`

	// EmbeddingDimension is the length of every embedding.
	// Env: EMBEDDING_DIMENSION (default: 384)
	EmbeddingDimension int `envconfig:"EMBEDDING_DIMENSION" default:"384"`

	// EmbeddingEndpoint configures the OpenAI-compatible embedding service.
	EmbeddingEndpoint EndpointEnv `envconfig:"EMBEDDING_ENDPOINT"`

	// SearchLimit is the default search result limit.
	// Env: SEARCH_LIMIT (default: 5)
	SearchLimit int `envconfig:"SEARCH_LIMIT" default:"5"`

	// CORSAllowedOrigins is a comma-separated list of allowed origins.
	// Env: CORS_ALLOWED_ORIGINS (empty disables CORS)
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS"`

	// HTTPCacheDir caches embedding request/response pairs on disk.
	// Env: HTTP_CACHE_DIR
	HTTPCacheDir string `envconfig:"HTTP_CACHE_DIR"`

	// ModelDir holds the local embedding model.
	// Env: MODEL_DIR (default: {data_dir}/models)
	ModelDir string `envconfig:"MODEL_DIR"`
}

// EndpointEnv holds environment configuration for the embedding endpoint.
type EndpointEnv struct {
	// BaseURL is the base URL for the endpoint.
	// Env: *_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`

	// Model is the model identifier.
	// Env: *_MODEL
	Model string `envconfig:"MODEL"`

	// APIKey is the API key for authentication.
	// Env: *_API_KEY
	APIKey string `envconfig:"API_KEY"`

	// Timeout is the request timeout in seconds.
	// Env: *_TIMEOUT (default: 60)
	Timeout float64 `envconfig:"TIMEOUT" default:"60"`

	// MaxRetries is the maximum number of retries.
	// Env: *_MAX_RETRIES (default: 5)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"5"`

	// InitialDelay is the initial retry delay in seconds.
	// Env: *_INITIAL_DELAY (default: 2.0)
	InitialDelay float64 `envconfig:"INITIAL_DELAY" default:"2.0"`

	// BackoffFactor is the retry backoff multiplier.
	// Env: *_BACKOFF_FACTOR (default: 2.0)
	BackoffFactor float64 `envconfig:"BACKOFF_FACTOR" default:"2.0"`
}

// LoadFromEnv loads configuration from environment variables without a prefix.
func LoadFromEnv() (EnvConfig, error) {
	return LoadFromEnvWithPrefix("")
}

// LoadFromEnvWithPrefix loads configuration with a custom prefix.
// For example, prefix "DOCSEARCH" would require DOCSEARCH_DATA_DIR instead of DATA_DIR.
func LoadFromEnvWithPrefix(prefix string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	opts := []AppConfigOption{
		WithLogFormat(parseLogFormat(e.LogFormat)),
		WithEmbeddingProvider(EmbeddingProvider(strings.ToLower(strings.TrimSpace(e.EmbeddingProvider)))),
		WithEmbeddingEndpoint(e.EmbeddingEndpoint.ToEndpoint()),
		WithSearchLimit(e.SearchLimit),
		WithCORSAllowedOrigins(ParseList(e.CORSAllowedOrigins)),
	}

	if e.Host != "" {
		opts = append(opts, WithHost(e.Host))
	}
	if e.Port != 0 {
		opts = append(opts, WithPort(e.Port))
	}
	if e.DataDir != "" {
		opts = append(opts, WithDataDir(e.DataDir))
	}
	if e.DBURL != "" {
		opts = append(opts, WithDBURL(e.DBURL))
	}
	if e.LogLevel != "" {
		opts = append(opts, WithLogLevel(e.LogLevel))
	}
	if e.EmbeddingDimension != 0 {
		opts = append(opts, WithEmbeddingDimension(e.EmbeddingDimension))
	}
	if e.HTTPCacheDir != "" {
		opts = append(opts, WithHTTPCacheDir(e.HTTPCacheDir))
	}
	if e.ModelDir != "" {
		opts = append(opts, WithModelDir(e.ModelDir))
	}

	return NewAppConfigWithOptions(opts...)
}

// ToEndpoint converts EndpointEnv to Endpoint.
func (e EndpointEnv) ToEndpoint() Endpoint {
	return NewEndpointWithOptions(
		WithBaseURL(e.BaseURL),
		WithModel(e.Model),
		WithAPIKey(e.APIKey),
		WithTimeout(seconds(e.Timeout)),
		WithMaxRetries(e.MaxRetries),
		WithInitialDelay(seconds(e.InitialDelay)),
		WithBackoffFactor(e.BackoffFactor),
	)
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// parseLogFormat parses a log format string.
func parseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}
