package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/helixml/docsearch/domain/document"
	"github.com/helixml/docsearch/internal/log"
)

func searchCmd() *cobra.Command {
	var (
		envFile string
		limit   int
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Print the documents closest to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, envFile, strings.Join(args, " "), limit, asJSON)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (default: SEARCH_LIMIT)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")

	return cmd
}

func runSearch(cmd *cobra.Command, envFile, query string, limit int, asJSON bool) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
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

	results, err := client.Search.Search(ctx, query, limit)
	if err != nil {
		return err
	}

	if asJSON {
		return writeResultsJSON(cmd.OutOrStdout(), results)
	}
	return writeResultsTable(cmd.OutOrStdout(), results)
}

type resultJSON struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	Category   string  `json:"category"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
}

func writeResultsJSON(w io.Writer, results []document.SearchResult) error {
	out := make([]resultJSON, len(results))
	for i, r := range results {
		out[i] = resultJSON{
			ID:         r.ID(),
			Title:      r.Title(),
			Category:   r.Category(),
			Distance:   r.Distance(),
			Similarity: r.Similarity(),
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeResultsTable(w io.Writer, results []document.SearchResult) error {
	if len(results) == 0 {
		_, err := fmt.Fprintln(w, "no results")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSIMILARITY\tCATEGORY\tTITLE")
	for _, r := range results {
		_, _ = fmt.Fprintf(tw, "%d\t%.4f\t%s\t%s\n", r.ID(), r.Similarity(), r.Category(), r.Title())
	}
	return tw.Flush()
}
