package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/RideMatch1/neuraxon-viz/internal/app"
	"github.com/RideMatch1/neuraxon-viz/internal/config"
	"github.com/RideMatch1/neuraxon-viz/internal/index"
	"github.com/RideMatch1/neuraxon-viz/internal/indexer"
	"github.com/RideMatch1/neuraxon-viz/internal/logger"
	"github.com/RideMatch1/neuraxon-viz/internal/observability"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "neuraxon",
		Short: "Code-aware chatbot for the Anna Matrix lab",
		Long: `neuraxon indexes the lab repository into a vector store and answers
questions about it over HTTP and MCP.

Examples:
  neuraxon index --root ./repo
  neuraxon serve
  neuraxon worker`,
		SilenceUsage: true,
		Version:      version,
	}

	cmd.AddCommand(newServeCmd(), newIndexCmd(), newWorkerCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, newLogger(os.Stdout))
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume index rebuild tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.EnableAPI = false
			cfg.EnableIndexWorker = true
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, newLogger(os.Stdout))
		},
	}
}

func newIndexCmd() *cobra.Command {
	var root, indexDir string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the vector index",
		Long: `Chunk and embed every supported file under the repository root and
publish a new index generation. The remote vector store selected by
INDEX_BACKEND is refreshed as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if root != "" {
				cfg.RepoRoot = root
			}
			if indexDir != "" {
				cfg.IndexDir = indexDir
			}
			slog.SetDefault(newLogger(os.Stderr))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			n, err := buildIndex(ctx, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks into %s\n", n, cfg.IndexDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Repository root to index (default REPO_ROOT)")
	cmd.Flags().StringVar(&indexDir, "index-dir", "", "Index directory (default INDEX_DIR)")
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.RequireProviderKeys(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(logger.NewContextHandler(slog.NewJSONHandler(w, nil)))
}

func buildIndex(ctx context.Context, cfg *config.Config) (int, error) {
	providers, err := app.NewProviders(ctx, cfg, false)
	if err != nil {
		return 0, err
	}
	defer providers.Close()

	remote, err := app.OpenRemoteStore(ctx, cfg, time.Duration(cfg.BootstrapRetryDelaySeconds)*time.Second)
	if err != nil {
		return 0, err
	}
	var mirrors []indexer.Mirror
	if remote != nil {
		mirrors = append(mirrors, remote)
		if c, ok := remote.(io.Closer); ok {
			defer c.Close()
		}
	}

	builder := app.NewBuilder(cfg, providers.Embedder, index.NewStore(cfg.IndexDir), mirrors...)
	return builder.Build(ctx, cfg.RepoRoot)
}

// run starts the API and the index worker as configured and blocks until
// ctx is cancelled or one of them fails.
func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	slog.SetDefault(log)

	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:    "neuraxon",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.OTELSampleRate,
	})
	if err != nil {
		return fmt.Errorf("tracing init failed: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	providers, err := app.NewProviders(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer providers.Close()

	a, err := app.New(cfg, deps, providers, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if !cfg.EnableAPI && !cfg.EnableIndexWorker {
		return errors.New("nothing to run: ENABLE_API and ENABLE_INDEX_WORKER are both false")
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.EnableAPI {
		g.Go(func() error { return a.Run(gctx) })
	}
	if cfg.EnableIndexWorker {
		g.Go(func() error { return a.RunWorker(gctx) })
	}
	return g.Wait()
}
