package provider

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

const defaultLocalBatchSize = 16

// ErrModelNotFound indicates no usable model on disk and none bundled in the binary.
var ErrModelNotFound = errors.New("local embedding model not found")

// localRuntime is the process-wide hugot session and pipeline. ONNX Runtime
// allows one session per process and inference must not run concurrently.
type localRuntime struct {
	mu        sync.Mutex
	session   *hugot.Session
	pipeline  *pipelines.FeatureExtractionPipeline
	modelPath string
}

var sharedRuntime localRuntime

func (r *localRuntime) load(modelPath string, logger *slog.Logger) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pipeline != nil {
		if r.modelPath != modelPath {
			logger.Warn("local model already loaded, keeping it",
				slog.String("loaded", r.modelPath),
				slog.String("requested", modelPath),
			)
		}
		return nil
	}

	session, err := newLocalSession()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "docsearch-embeddings",
		Options: []hugot.FeatureExtractionOption{
			pipelines.WithNormalization(),
		},
	})
	if err != nil {
		return errors.Join(fmt.Errorf("create pipeline: %w", err), session.Destroy())
	}

	r.session = session
	r.pipeline = pipeline
	r.modelPath = modelPath
	logger.Info("local embedding model loaded", slog.String("path", modelPath))
	return nil
}

func (r *localRuntime) embed(texts []string) ([][]float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pipeline == nil {
		return nil, errors.New("local model not loaded")
	}

	out, err := r.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, err
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("model returned %d embeddings for %d texts", len(out.Embeddings), len(texts))
	}

	vectors := make([][]float64, len(out.Embeddings))
	for i, row := range out.Embeddings {
		vec := make([]float64, len(row))
		for j, v := range row {
			vec[j] = float64(v)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// LocalEmbedding runs a sentence-transformer ONNX model in process through hugot.
// all-MiniLM-L6-v2 produces 384 dimensional, unit length vectors.
//
// The model is looked up as a subdirectory of modelDir containing tokenizer.json.
// Binaries built with the embed_model tag carry the model and unpack it into
// modelDir on first use.
type LocalEmbedding struct {
	modelDir  string
	modelName string
	batchSize int
	logger    *slog.Logger
}

// LocalOption configures a LocalEmbedding.
type LocalOption func(*LocalEmbedding)

// WithLocalLogger sets the logger.
func WithLocalLogger(logger *slog.Logger) LocalOption {
	return func(e *LocalEmbedding) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithModelName prefers the model subdirectory with this name.
func WithModelName(name string) LocalOption {
	return func(e *LocalEmbedding) { e.modelName = name }
}

// WithBatchSize sets how many texts go through the model at once.
func WithBatchSize(n int) LocalOption {
	return func(e *LocalEmbedding) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// NewLocalEmbedding creates a LocalEmbedding reading models from modelDir.
func NewLocalEmbedding(modelDir string, opts ...LocalOption) *LocalEmbedding {
	e := &LocalEmbedding{
		modelDir:  modelDir,
		batchSize: defaultLocalBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Available reports whether a model is bundled or present in the model directory.
func (e *LocalEmbedding) Available() bool {
	if modelBundled {
		return true
	}
	_, err := findModel(e.modelDir, e.modelName)
	return err == nil
}

// ModelPath resolves the model directory, unpacking the bundled model when
// nothing usable is on disk.
func (e *LocalEmbedding) ModelPath() (string, error) {
	if path, err := findModel(e.modelDir, e.modelName); err == nil {
		return path, nil
	}
	if !modelBundled {
		return "", fmt.Errorf("%w in %s", ErrModelNotFound, e.modelDir)
	}
	return unpackModel(bundledModels, e.modelDir)
}

// Embed generates one vector per text, batchSize texts at a time.
func (e *LocalEmbedding) Embed(ctx context.Context, req EmbeddingRequest) (EmbeddingResponse, error) {
	texts := req.Texts()
	if len(texts) == 0 {
		return NewEmbeddingResponse(nil, NewUsage(0, 0)), nil
	}
	if err := ctx.Err(); err != nil {
		return EmbeddingResponse{}, err
	}

	modelPath, err := e.ModelPath()
	if err != nil {
		return EmbeddingResponse{}, NewProviderError("embedding", 0, "resolve local model", err)
	}
	if err := sharedRuntime.load(modelPath, e.logger); err != nil {
		return EmbeddingResponse{}, NewProviderError("embedding", 0, "load local model", err)
	}

	vectors := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return EmbeddingResponse{}, err
		}
		end := min(start+e.batchSize, len(texts))
		batch, err := sharedRuntime.embed(texts[start:end])
		if err != nil {
			return EmbeddingResponse{}, NewProviderError("embedding", 0, "run local model", err)
		}
		vectors = append(vectors, batch...)
	}

	return NewEmbeddingResponse(vectors, NewUsage(0, 0)), nil
}

// Close leaves the shared session alive; it lives until the process exits.
func (e *LocalEmbedding) Close() error {
	return nil
}

// findModel returns the model subdirectory of dir holding tokenizer.json.
// A named subdirectory wins over the first one found.
func findModel(dir, name string) (string, error) {
	if name != "" {
		candidate := filepath.Join(dir, name)
		if hasTokenizer(candidate) {
			return candidate, nil
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read model directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(dir, entry.Name())
		if hasTokenizer(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrModelNotFound, dir)
}

func hasTokenizer(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, "tokenizer.json"))
	return err == nil && !info.IsDir()
}

// unpackModel copies the first models/<name>/ tree of bundle into targetDir
// and returns the unpacked model path. An already unpacked model is reused.
func unpackModel(bundle fs.FS, targetDir string) (string, error) {
	models, err := fs.Sub(bundle, "models")
	if err != nil {
		return "", fmt.Errorf("open bundled models: %w", err)
	}
	entries, err := fs.ReadDir(models, ".")
	if err != nil {
		return "", fmt.Errorf("list bundled models: %w", err)
	}

	var name string
	for _, entry := range entries {
		if entry.IsDir() {
			name = entry.Name()
			break
		}
	}
	if name == "" {
		return "", fmt.Errorf("%w: bundle has no model directory", ErrModelNotFound)
	}

	modelPath := filepath.Join(targetDir, name)
	if hasTokenizer(modelPath) {
		return modelPath, nil
	}

	model, err := fs.Sub(models, name)
	if err != nil {
		return "", fmt.Errorf("open bundled model %s: %w", name, err)
	}

	err = fs.WalkDir(model, ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		target := filepath.Join(modelPath, path)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := fs.ReadFile(model, path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
	if err != nil {
		return "", fmt.Errorf("unpack bundled model: %w", err)
	}
	return modelPath, nil
}

var (
	_ Embedder = (*LocalEmbedding)(nil)
	_ Closer   = (*LocalEmbedding)(nil)
)
