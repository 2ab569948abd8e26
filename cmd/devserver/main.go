// Package main is the entry point for the toolbar dev server.
//
// The bootstrap sequence is:
//  1. Load configuration from environment variables and CLI flags.
//  2. Load the projects YAML file into a registry.
//  3. Optionally watch the projects file and hot-reload on change.
//  4. Start the HTTP server and wait for SIGINT/SIGTERM, then gracefully
//     shut down.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/launchdarkly/launchdarkly-toolbar/internal/config"
	"github.com/launchdarkly/launchdarkly-toolbar/internal/logging"
	"github.com/launchdarkly/launchdarkly-toolbar/internal/metrics"
	"github.com/launchdarkly/launchdarkly-toolbar/internal/middleware"
	"github.com/launchdarkly/launchdarkly-toolbar/internal/project"
	"github.com/launchdarkly/launchdarkly-toolbar/internal/server"
	"github.com/launchdarkly/launchdarkly-toolbar/internal/tracing"
)

const (
	shutdownTimeout       = 10 * time.Second
	httpReadHeaderTimeout = 5 * time.Second
	httpReadTimeout       = 30 * time.Second
	httpIdleTimeout       = 2 * time.Minute
)

var (
	flagAddr         string
	flagProjectsFile string
	flagLogLevel     string
	flagNoWatch      bool

	rootCmd = &cobra.Command{
		Use:   "devserver",
		Short: "Local flag dev server for the LaunchDarkly toolbar",
		Long: `devserver serves flag snapshots and override mutations for toolbars
running in dev-server mode, backed by a plain YAML file instead of a
LaunchDarkly environment.

Examples:
  devserver                                 # serve flags.yaml on :8765
  devserver --projects-file team-flags.yaml # serve another projects file
  devserver --addr :9000 --no-watch         # fixed port, no hot reload`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}
)

func init() {
	rootCmd.Flags().StringVar(&flagAddr, "addr", "",
		"Listen address (overrides DEVSERVER_ADDR)")
	rootCmd.Flags().StringVar(&flagProjectsFile, "projects-file", "",
		"Projects YAML file (overrides PROJECTS_FILE)")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "",
		"Minimum log level (overrides LOG_LEVEL)")
	rootCmd.Flags().BoolVar(&flagNoWatch, "no-watch", false,
		"Disable hot reload of the projects file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("dev server failed", "error", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flagAddr != "" {
		cfg.Addr = flagAddr
	}
	if flagProjectsFile != "" {
		cfg.ProjectsFile = flagProjectsFile
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if cmd.Flags().Changed("no-watch") {
		cfg.WatchFile = !flagNoWatch
	}

	log := logging.New(cfg.LogLevel)
	slog.SetDefault(log)

	shutdownTracer, err := tracing.Init(context.Background())
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown error", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	projects, err := project.Load(cfg.ProjectsFile)
	if err != nil {
		return fmt.Errorf("load projects: %w", err)
	}
	registry := project.NewRegistry(projects)

	if cfg.WatchFile {
		stopWatch, err := project.Watch(cfg.ProjectsFile, registry, log)
		if err != nil {
			return fmt.Errorf("watch projects file: %w", err)
		}
		defer func() {
			if err := stopWatch(); err != nil {
				log.Error("watcher shutdown error", "err", err)
			}
		}()
	}

	m := metrics.New()
	apiHandler := server.NewHTTPHandler(registry, log, m)
	httpHandler := middleware.HTTPRequestLogging(log)(apiHandler)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           otelhttp.NewHandler(httpHandler, "ld-toolbar-devserver"),
		ReadHeaderTimeout: httpReadHeaderTimeout,
		ReadTimeout:       httpReadTimeout,
		IdleTimeout:       httpIdleTimeout,
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	defer listener.Close()

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- fmt.Errorf("serve HTTP: %w", err)
		}
	}()

	log.Info("dev server started",
		"addr", cfg.Addr,
		"projects_file", cfg.ProjectsFile,
		"projects", len(projects),
		"watch", cfg.WatchFile,
	)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-serveErrCh:
	}
	stop()

	log.Info("dev server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		if serveErr != nil {
			return serveErr
		}
		return fmt.Errorf("shutdown HTTP: %w", err)
	}

	return serveErr
}
