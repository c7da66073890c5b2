package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Defaults for OpenAIConfig fields left zero.
const (
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultBatchSize      = 256

	defaultMaxRetries    = 5
	defaultInitialDelay  = 2 * time.Second
	defaultBackoffFactor = 2.0
)

// errEmbeddingCountMismatch indicates fewer vectors than inputs came back.
// Partial responses under load are transient.
var errEmbeddingCountMismatch = errors.New("embedding response count mismatch")

// errUpstreamProviderFailure indicates HTTP 200 with no data, no model and
// zero usage, which routing providers return when every upstream failed.
var errUpstreamProviderFailure = errors.New("upstream provider failure")

// OpenAIConfig holds configuration for the OpenAI provider.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	// Dimensions asks models that support it to shorten their output.
	Dimensions int
	// BatchSize caps the number of inputs per request.
	BatchSize     int
	Timeout       time.Duration
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor float64
	// Transport overrides the HTTP transport, e.g. with a CachingTransport.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// OpenAIProvider generates embeddings through an OpenAI-compatible API.
type OpenAIProvider struct {
	client     *openai.Client
	model      string
	dimensions int
	batchSize  int
	retry      backoff
	logger     *slog.Logger
}

// NewOpenAIProviderFromConfig creates a provider from configuration.
func NewOpenAIProviderFromConfig(cfg OpenAIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 || cfg.Transport != nil {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      orDefault(cfg.EmbeddingModel, DefaultEmbeddingModel),
		dimensions: cfg.Dimensions,
		batchSize:  orDefault(cfg.BatchSize, DefaultBatchSize),
		retry: backoff{
			maxRetries: orDefault(cfg.MaxRetries, defaultMaxRetries),
			delay:      orDefault(cfg.InitialDelay, defaultInitialDelay),
			factor:     orDefault(cfg.BackoffFactor, defaultBackoffFactor),
		},
		logger: logger,
	}
}

// Close is a no-op for the OpenAI provider.
func (p *OpenAIProvider) Close() error {
	return nil
}

// Embed generates embeddings for texts, batchSize inputs per API call.
func (p *OpenAIProvider) Embed(ctx context.Context, req EmbeddingRequest) (EmbeddingResponse, error) {
	texts := req.Texts()
	if len(texts) == 0 {
		return NewEmbeddingResponse(nil, NewUsage(0, 0)), nil
	}

	vectors := make([][]float64, 0, len(texts))
	var prompt, total int
	for start := 0; start < len(texts); start += p.batchSize {
		end := min(start+p.batchSize, len(texts))
		batch, usage, err := p.embedBatch(ctx, texts[start:end])
		if err != nil {
			return EmbeddingResponse{}, p.wrapError("embedding", err)
		}
		vectors = append(vectors, batch...)
		prompt += usage.PromptTokens
		total += usage.TotalTokens
	}

	return NewEmbeddingResponse(vectors, NewUsage(prompt, total)), nil
}

func (p *OpenAIProvider) embedBatch(ctx context.Context, texts []string) ([][]float64, openai.Usage, error) {
	req := openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(p.model),
		Input:      texts,
		Dimensions: p.dimensions,
	}

	var resp openai.EmbeddingResponse
	err := p.retry.do(ctx, isRetryable, func() error {
		var err error
		resp, err = p.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 && resp.Model == "" && resp.Usage.TotalTokens == 0 {
			return fmt.Errorf("%w: HTTP 200 with no embedding data, no model and zero usage", errUpstreamProviderFailure)
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("%w: got %d vectors for %d texts", errEmbeddingCountMismatch, len(resp.Data), len(texts))
		}
		return nil
	}, func(attempt int, wait time.Duration, err error) {
		p.logger.WarnContext(ctx, "retrying embedding request",
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.Int("inputs", len(texts)),
			slog.Any("error", err),
		)
	})
	if err != nil {
		return nil, openai.Usage{}, err
	}

	// Vectors are placed by the index the API reports, falling back to order.
	vectors := make([][]float64, len(texts))
	for i, data := range resp.Data {
		idx := i
		if data.Index >= 0 && data.Index < len(texts) {
			idx = data.Index
		}
		vec := make([]float64, len(data.Embedding))
		for j, v := range data.Embedding {
			vec[j] = float64(v)
		}
		vectors[idx] = vec
	}
	return vectors, resp.Usage, nil
}

// backoff retries with exponentially growing waits.
type backoff struct {
	maxRetries int
	delay      time.Duration
	factor     float64
}

func (b backoff) do(ctx context.Context, retryable func(error) bool, fn func() error, onRetry func(int, time.Duration, error)) error {
	delay := b.delay
	var err error
	for attempt := 0; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if attempt >= b.maxRetries {
			return fmt.Errorf("max retries exceeded: %w", err)
		}

		onRetry(attempt+1, delay, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay = time.Duration(float64(delay) * b.factor)
		}
	}
}

func isRetryable(err error) bool {
	if errors.Is(err, errEmbeddingCountMismatch) || errors.Is(err, errUpstreamProviderFailure) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var reqErr *openai.RequestError
	return errors.As(err, &reqErr)
}

// wrapError turns a go-openai error into a ProviderError carrying the HTTP status.
func (p *OpenAIProvider) wrapError(operation string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewProviderError(operation, apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewProviderError(operation, reqErr.HTTPStatusCode, reqErr.Error(), err)
	}

	return NewProviderError(operation, 0, err.Error(), err)
}

func orDefault[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}

var _ Embedder = (*OpenAIProvider)(nil)
