package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/helixml/docsearch/domain/document"
	"github.com/helixml/docsearch/internal/log"
)

func importCmd() *cobra.Command {
	var (
		envFile         string
		continueOnError bool
	)

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Add documents from a YAML or JSON file",
		Long: `Add every document in FILE to the collection.

FILE holds either a list of documents or an object with a "documents" list.
Each document needs a title and content; category and embedding are optional
and any other field is stored alongside the document.

  documents:
    - title: Lease
      content: Rental agreement for an office
      category: contracts
      source: scan-0042`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, envFile, args[0], continueOnError)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "Skip documents that fail instead of stopping")

	return cmd
}

func runImport(cmd *cobra.Command, envFile, path string, continueOnError bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	docs, err := parseDocuments(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	slogger := log.NewLogger(cfg).Slog()
	client, err := newClient(cfg, slogger)
	if err != nil {
		return err
	}
	defer closeClient(client, slogger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	out := cmd.OutOrStdout()
	var failed []error
	for i, doc := range docs {
		id, err := client.Search.AddDocument(ctx, doc)
		if err != nil {
			err = fmt.Errorf("document %d (%q): %w", i+1, doc.Title(), err)
			if !continueOnError {
				return err
			}
			slogger.Warn("skipping document", slog.Any("error", err))
			failed = append(failed, err)
			continue
		}
		_, _ = fmt.Fprintf(out, "%d\t%s\n", id, doc.Title())
	}

	_, _ = fmt.Fprintf(out, "imported %d of %d documents\n", len(docs)-len(failed), len(docs))
	return errors.Join(failed...)
}

type documentFile struct {
	Documents []map[string]any `yaml:"documents"`
}

// parseDocuments reads a YAML or JSON document list. JSON is accepted because
// it is valid YAML.
func parseDocuments(data []byte) ([]document.Document, error) {
	var records []map[string]any
	if err := yaml.Unmarshal(data, &records); err != nil {
		var file documentFile
		if fileErr := yaml.Unmarshal(data, &file); fileErr != nil {
			return nil, err
		}
		records = file.Documents
	}

	docs := make([]document.Document, 0, len(records))
	for i, rec := range records {
		doc, err := recordToDocument(rec)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i+1, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func recordToDocument(rec map[string]any) (document.Document, error) {
	var (
		title, content, category string
		embedding                []float64
		extra                    = make(map[string]any)
	)

	for key, value := range rec {
		var err error
		switch key {
		case document.FieldID:
			// assigned by the store
		case document.FieldTitle:
			title, err = stringField(key, value)
		case document.FieldContent:
			content, err = stringField(key, value)
		case document.FieldCategory:
			category, err = stringField(key, value)
		case document.FieldEmbedding:
			embedding, err = vectorField(value)
		default:
			extra[key] = value
		}
		if err != nil {
			return document.Document{}, err
		}
	}

	doc := document.NewDocument(title, content, category, extra)
	if len(embedding) > 0 {
		doc = doc.WithEmbedding(embedding)
	}
	return doc, nil
}

func stringField(key string, value any) (string, error) {
	if value == nil {
		return "", nil
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", key, value)
	}
	return s, nil
}

func vectorField(value any) ([]float64, error) {
	if value == nil {
		return nil, nil
	}
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("embedding must be a list of numbers, got %T", value)
	}
	out := make([]float64, len(items))
	for i, item := range items {
		switch n := item.(type) {
		case float64:
			out[i] = n
		case int:
			out[i] = float64(n)
		default:
			return nil, fmt.Errorf("embedding[%d] must be a number, got %T", i, item)
		}
	}
	return out, nil
}
