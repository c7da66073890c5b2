package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/helixml/docsearch/internal/log"
	"github.com/helixml/docsearch/internal/mcp"
)

func stdioCmd() *cobra.Command {
	var (
		envFile  string
		readOnly bool
	)

	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Start MCP server on stdio",
		Long: `Start the MCP (Model Context Protocol) server on stdio.

This lets AI assistants search, read and add documents.
Configuration is loaded from environment variables and .env file.
Logs go to stderr so stdout stays reserved for the protocol.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStdio(envFile, readOnly)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Do not expose the add_document tool")

	return cmd
}

func runStdio(envFile string, readOnly bool) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	slogger := log.NewLogger(cfg).Slog()

	slogger.Info("starting MCP server",
		slog.String("version", version),
		slog.String("data_dir", cfg.DataDir()),
	)

	client, err := newClient(cfg, slogger)
	if err != nil {
		return err
	}
	defer closeClient(client, slogger)

	if err := client.Search.Initialize(context.Background()); err != nil {
		return fmt.Errorf("initialize search service: %w", err)
	}

	var writer mcp.DocumentWriter
	if !readOnly {
		writer = client.Search
	}

	return mcp.NewServer(client.Search, client.Search, writer, version, slogger).ServeStdio()
}
