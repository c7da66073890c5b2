// Standalone tool that downloads the sentence embedding model used by the
// local provider (EMBEDDING_PROVIDER=local) from Hugging Face.
//
// all-MiniLM-L6-v2 produces 384-dimensional vectors, the default index
// dimension. The model lands in a subdirectory of dest, which is the layout
// MODEL_DIR expects. Pointing dest at infrastructure/provider/models prepares
// a build with the embed_model tag instead.
//
// Usage: download-model [dest]
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/knights-analytics/hugot"
)

const (
	modelName    = "KnightsAnalytics/all-MiniLM-L6-v2"
	onnxFilePath = "onnx/model.onnx"
	defaultDest  = ".docsearch/models"
)

func main() {
	dest := defaultDest
	if len(os.Args) > 1 {
		dest = os.Args[1]
	}

	if existing, ok := findModel(dest); ok {
		fmt.Printf("Model already present at %s\n", existing)
		return
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", dest, err)
		os.Exit(1)
	}

	options := hugot.NewDownloadOptions()
	options.OnnxFilePath = onnxFilePath

	fmt.Printf("Downloading %s to %s...\n", modelName, dest)

	var (
		path string
		err  error
	)
	delay := 2 * time.Second
	for i := range 4 {
		if i > 0 {
			fmt.Fprintf(os.Stderr, "retry in %s: %v\n", delay, err)
			time.Sleep(delay)
			delay *= 2
		}
		if path, err = hugot.DownloadModel(modelName, dest, options); err == nil {
			break
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "download model: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Model ready at %s\n", path)
}

// findModel reports a subdirectory of dest that already holds a tokenizer
// and an ONNX model.
func findModel(dest string) (string, bool) {
	entries, err := os.ReadDir(dest)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(dest, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, "tokenizer.json")); err != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, onnxFilePath)); err == nil {
			return dir, true
		}
	}
	return "", false
}
