package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	pderrors "github.com/Aman-CERP/pdfrag/internal/errors"
	"github.com/Aman-CERP/pdfrag/internal/index"
	"github.com/Aman-CERP/pdfrag/internal/output"
	"github.com/Aman-CERP/pdfrag/internal/pdf"
)

func newIndexCmd(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index [dir|file.pdf ...]",
		Short: "Index PDF files for searching",
		Long: `Extract, chunk and embed PDFs into the index for the configured
embedding model and chunking. Directories are walked recursively;
hidden directories and paths matched by index.exclude or .pdfragignore
are skipped. Files named on the command line are always indexed.

Re-indexing a document replaces its chunks, so running index again
after editing a PDF is safe. Use --force to rebuild from scratch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, opts, args, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Delete the index for this configuration and rebuild it")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts *globalOptions, args []string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	if err := pdf.CheckAvailable(); err != nil {
		return err
	}

	var mu sync.Mutex
	progress := func(doc index.IndexedDocument, err error) {
		if err != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		out.Infof("%s (%d chunks)", doc.Source, doc.Chunks)
	}

	a, err := opts.openApp(ctx, openOptions{
		reset:      force,
		ingest:     true,
		ingestOpts: []index.Option{index.WithProgress(progress)},
	})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	paths := args
	if len(paths) == 0 {
		paths = []string{a.root}
	}
	for i, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			paths[i] = abs
		}
	}

	start := time.Now()
	report, err := a.ingester.IndexFiles(ctx, paths)
	if report == nil {
		return err
	}

	for _, f := range report.Failures {
		out.Warningf("%s: %s", f.Source, f.Message)
	}
	out.Newline()
	summary := fmt.Sprintf("Indexed %d documents (%d chunks) in %s",
		report.Documents, report.Chunks, time.Since(start).Round(time.Millisecond))
	if len(report.Failures) > 0 {
		out.Warningf("%s, %d failed", summary, len(report.Failures))
	} else {
		out.Success(summary)
	}
	out.Infof("Index: %s", a.indexPath)

	a.logger.Info("index_command_complete",
		slog.String("run_id", report.RunID),
		slog.Int("documents", report.Documents),
		slog.Int("failures", len(report.Failures)))

	if err != nil {
		return err
	}
	if report.Documents == 0 && len(report.Failures) > 0 {
		return pderrors.New(pderrors.ErrCodeIndexFailed, "no documents were indexed", nil)
	}
	return nil
}
