package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/helixml/docsearch/infrastructure/api"
	apimiddleware "github.com/helixml/docsearch/infrastructure/api/middleware"
	"github.com/helixml/docsearch/internal/config"
	"github.com/helixml/docsearch/internal/log"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var (
		envFile string
		host    string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. Command line flags

Environment variables:
  HOST                         Server host to bind to (default: 0.0.0.0)
  PORT                         Server port to listen on (default: 5000)
  DATA_DIR                     Data directory (default: ~/.docsearch)
  DB_URL                       sqlite:///path or postgres://... (default: JSON files in DATA_DIR)
  LOG_LEVEL                    Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT                   Log format: pretty, json (default: pretty)
  SEARCH_LIMIT                 Results returned when a search gives no limit (default: 5)
  CORS_ALLOWED_ORIGINS         Comma-separated origins allowed by CORS (default: none)

  EMBEDDING_PROVIDER           hash, openai or local (default: hash)
  EMBEDDING_DIMENSION          Vector length (default: 384)
  EMBEDDING_ENDPOINT_*         OpenAI-compatible endpoint configuration
    BASE_URL                   Base URL (e.g., https://api.openai.com/v1)
    MODEL                      Model identifier (e.g., text-embedding-3-small)
    API_KEY                    API key for authentication
    TIMEOUT                    Request timeout (default: 60s)
    MAX_RETRIES                Retry attempts (default: 5)
    INITIAL_DELAY              First retry delay (default: 2s)
    BACKOFF_FACTOR             Retry delay multiplier (default: 2.0)
  HTTP_CACHE_DIR               Cache embedding responses on disk
  MODEL_DIR                    Local model directory (default: DATA_DIR/models)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), envFile, host, port)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on (default: 5000)")

	return cmd
}

func runServe(parent context.Context, envFile, host string, port int) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	cfg = applyServeOverrides(cfg, host, port)

	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	logger := log.Configure(cfg)
	slogger := logger.Slog()

	attrs := append([]slog.Attr{slog.String("version", version)}, cfg.LogAttrs()...)
	slogger.LogAttrs(parent, slog.LevelInfo, "starting docsearch", attrs...)

	client, err := newClient(cfg, slogger)
	if err != nil {
		return err
	}
	defer closeClient(client, slogger)

	// Unreadable or misaligned data must stop the service before it accepts requests.
	if err := client.Search.Initialize(parent); err != nil {
		return fmt.Errorf("initialize search service: %w", err)
	}

	apiServer := api.NewAPIServer(client, api.WithVersion(version))
	router := apiServer.Router()
	router.Use(apimiddleware.CorrelationID)
	router.Use(apimiddleware.Logging(slogger))
	apiServer.MountRoutes()

	server := api.NewServer(cfg.Addr(), slogger, api.WithCORSOrigins(cfg.CORSAllowedOrigins()...))
	server.Router().Mount("/", router)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		slogger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// applyServeOverrides applies command line flag overrides to the config.
func applyServeOverrides(cfg config.AppConfig, host string, port int) config.AppConfig {
	var opts []config.AppConfigOption

	if host != "" {
		opts = append(opts, config.WithHost(host))
	}
	if port != 0 {
		opts = append(opts, config.WithPort(port))
	}

	return cfg.Apply(opts...)
}
