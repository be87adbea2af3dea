package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/pdfrag/internal/mcp"
	"github.com/Aman-CERP/pdfrag/internal/watcher"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		watch     bool
		transport string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Run the MCP server. Tools: search_bm25, search_vector, search_hybrid,
index_documents, get_document and index_status.

stdout carries JSON-RPC only; logs go to ~/.pdfrag/logs/server.log.
With --watch, PDFs added or changed under the project root are re-indexed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, transport, watch, cmd.Flags().Changed("watch"))
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Re-index PDFs that change under the project root")
	cmd.Flags().StringVar(&transport, "transport", "", "MCP transport (stdio)")

	return cmd
}

func runServe(ctx context.Context, opts *globalOptions, transport string, watch, watchSet bool) error {
	a, err := opts.openApp(ctx, openOptions{ingest: true, waitForLock: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if transport == "" {
		transport = a.cfg.Server.Transport
	}
	if !watchSet {
		watch = a.cfg.Index.Watch
	}

	srv, err := mcp.NewServer(a.engine, a.ingester, a.store, a.cfg,
		mcp.WithLogger(a.logger),
		mcp.WithRootPath(a.root),
		mcp.WithMetrics(a.metrics))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	if watch {
		w, err := watcher.New(watcher.Options{
			DebounceWindow: a.cfg.WatchDebounceDuration(),
			Ignore:         a.excludes,
			Logger:         a.logger,
		})
		if err != nil {
			return err
		}
		defer func() { _ = w.Stop() }()

		g.Go(func() error {
			if err := w.Start(gctx, a.root); err != nil && gctx.Err() == nil {
				// Serving continues without the watcher.
				a.logger.Error("watch_failed", slog.String("error", err.Error()))
			}
			return nil
		})
		g.Go(func() error {
			_ = watcher.NewReindexer(w, a.ingester, a.logger).Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		// The client closing stdin ends the session and the watcher with it.
		defer cancel()
		return srv.Serve(gctx, transport)
	})
	return g.Wait()
}
