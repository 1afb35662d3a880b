package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/jobrelay/internal/api"
	"github.com/kalambet/jobrelay/internal/apify"
	"github.com/kalambet/jobrelay/internal/config"
	"github.com/kalambet/jobrelay/internal/logging"
	"github.com/kalambet/jobrelay/internal/metrics"
	"github.com/kalambet/jobrelay/internal/queue"
	"github.com/kalambet/jobrelay/internal/storage"
)

const (
	shutdownTimeout   = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the async queue worker (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(cmd.Context(), withMCP)
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools on stdin/stdout")
}

func runServer(ctx context.Context, withMCP bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	n, err := store.MarkInterrupted("interrupted by server restart")
	if err != nil {
		return fmt.Errorf("recovering interrupted runs: %w", err)
	}
	if n > 0 {
		printWarning("marked %d interrupted runs and jobs as failed", n)
	}

	m := metrics.New()

	apifyClient := apify.New(apify.Config{
		BaseURL:   cfg.Apify.BaseURL,
		Token:     cfg.Apify.Token,
		RateLimit: cfg.Apify.RateLimit,
		RateBurst: cfg.Apify.RateBurst,
		Timeout:   cfg.Apify.RequestTimeout,
	})
	apifyClient.SetObserver(m)
	if !apifyClient.HasToken() {
		logger.Warn("apify.token is not set; every request must carry settings.token")
	}

	runner := api.NewRunner(api.RunnerConfig{
		Clients:  api.ApifyClients(apifyClient),
		History:  store,
		Observer: m,
		Logger:   logger,
	})

	if cfg.Server.APIToken == "" {
		logger.Warn("server.api_token is not set; the HTTP API accepts unauthenticated requests")
	}
	srv := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: api.NewHandler(api.Deps{
			Runner:  runner,
			Store:   store,
			Metrics: m,
			Token:   cfg.Server.APIToken,
			Logger:  logger,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	worker := queue.NewWorker(store, runner, cfg.Queue.PollInterval)
	worker.SetDepthReporter(m)
	worker.SetLogger(logger.With("component", "queue"))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("jobrelay listening", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(api.MCPDeps{Runner: runner, Version: version}))
		g.Go(func() error {
			logger.Info("MCP server started (stdio transport)")
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP stdio server: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}
