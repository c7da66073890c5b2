package main

import (
	"fmt"
	"log/slog"

	"github.com/helixml/docsearch"
	"github.com/helixml/docsearch/infrastructure/provider"
	"github.com/helixml/docsearch/internal/config"
)

// clientOptions returns the docsearch.Option slice derived from AppConfig:
// storage, embedding provider, dimension and search limit. Callers append
// entrypoint-specific options before passing the slice to docsearch.New.
func clientOptions(cfg config.AppConfig, logger *slog.Logger) ([]docsearch.Option, error) {
	opts := []docsearch.Option{
		docsearch.WithDataDir(cfg.DataDir()),
		docsearch.WithDimension(cfg.EmbeddingDimension()),
		docsearch.WithSearchLimit(cfg.SearchLimit()),
		docsearch.WithLogger(logger),
	}

	if cfg.UsesDatabase() {
		opts = append(opts, docsearch.WithDatabase(cfg.DBURL()))
	}

	embOpts, err := embeddingOptions(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("embedding config: %w", err)
	}
	return append(opts, embOpts...), nil
}

// embeddingOptions selects the embedding provider named by EMBEDDING_PROVIDER.
func embeddingOptions(cfg config.AppConfig, logger *slog.Logger) ([]docsearch.Option, error) {
	switch cfg.EmbeddingProvider() {
	case config.ProviderLocal:
		return []docsearch.Option{docsearch.WithLocalEmbedding(cfg.ModelDir())}, nil
	case config.ProviderOpenAI:
		endpoint := cfg.EmbeddingEndpoint()
		if !endpoint.IsConfigured() {
			return nil, fmt.Errorf("openai provider needs EMBEDDING_ENDPOINT_BASE_URL or EMBEDDING_ENDPOINT_API_KEY")
		}

		openaiCfg := provider.OpenAIConfig{
			APIKey:         endpoint.APIKey(),
			BaseURL:        endpoint.BaseURL(),
			EmbeddingModel: endpoint.Model(),
			Dimensions:     cfg.EmbeddingDimension(),
			Timeout:        endpoint.Timeout(),
			MaxRetries:     endpoint.MaxRetries(),
			InitialDelay:   endpoint.InitialDelay(),
			BackoffFactor:  endpoint.BackoffFactor(),
			Logger:         logger,
		}
		if cacheDir := cfg.HTTPCacheDir(); cacheDir != "" {
			transport, err := provider.NewCachingTransport(cacheDir, nil)
			if err != nil {
				return nil, err
			}
			openaiCfg.Transport = transport
		}
		return []docsearch.Option{docsearch.WithOpenAIConfig(openaiCfg)}, nil
	default:
		return []docsearch.Option{docsearch.WithHashEmbedding()}, nil
	}
}

// newClient loads a client from configuration.
func newClient(cfg config.AppConfig, logger *slog.Logger) (*docsearch.Client, error) {
	opts, err := clientOptions(cfg, logger)
	if err != nil {
		return nil, err
	}
	client, err := docsearch.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docsearch client: %w", err)
	}
	return client, nil
}

// closeClient closes the client and logs any failure.
func closeClient(client *docsearch.Client, logger *slog.Logger) {
	if err := client.Close(); err != nil {
		logger.Error("failed to close docsearch client", slog.Any("error", err))
	}
}
