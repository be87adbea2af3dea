package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"

	pderrors "github.com/Aman-CERP/pdfrag/internal/errors"
	"github.com/Aman-CERP/pdfrag/internal/index"
)

// Indexer ingests PDF files. *index.Ingester implements it.
type Indexer interface {
	IndexFiles(ctx context.Context, paths []string) (*index.Report, error)
}

// Reindexer re-ingests PDFs reported by a Source.
type Reindexer struct {
	source  Source
	indexer Indexer
	logger  *slog.Logger
}

// NewReindexer creates a reindexer. A nil logger uses slog.Default().
func NewReindexer(source Source, indexer Indexer, logger *slog.Logger) *Reindexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reindexer{source: source, indexer: indexer, logger: logger}
}

// Run handles batches until ctx is done or the source closes. A fatal
// ingest error, such as an index built for another embedding space, ends
// the loop since every later batch would fail the same way.
func (r *Reindexer) Run(ctx context.Context) error {
	errs := r.source.Errors()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-r.source.Events():
			if !ok {
				return nil
			}
			if _, err := r.HandleBatch(ctx, batch); pderrors.IsFatal(err) {
				r.logger.Error("watch_reindex_stopped", pderrors.LogAttrs(err)...)
				return err
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.logger.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

// HandleBatch ingests created and modified PDFs in one run. Removed files
// stay indexed: documents leave the index only through a rebuild.
// It returns nil when the batch holds nothing to ingest.
func (r *Reindexer) HandleBatch(ctx context.Context, batch []FileEvent) (*index.Report, error) {
	root := r.source.RootPath()
	seen := make(map[string]bool, len(batch))
	var paths []string

	for _, ev := range batch {
		switch ev.Op {
		case OpCreate, OpModify:
			abs := filepath.Join(root, ev.Path)
			if !seen[abs] {
				seen[abs] = true
				paths = append(paths, abs)
			}
		case OpDelete, OpRename:
			r.logger.Info("watch_file_removed",
				slog.String("path", ev.Path),
				slog.String("document_id", index.DocumentIDFromPath(ev.Path)))
		}
	}
	if len(paths) == 0 {
		return nil, nil
	}
	sort.Strings(paths)

	r.logger.Info("watch_reindex_started", slog.Int("files", len(paths)))
	report, err := r.indexer.IndexFiles(ctx, paths)
	if err != nil {
		attrs := append([]any{slog.Int("files", len(paths))}, pderrors.LogAttrs(err)...)
		r.logger.Warn("watch_reindex_failed", attrs...)
		return report, err
	}

	r.logger.Info("watch_reindex_complete",
		slog.String("run_id", report.RunID),
		slog.Int("documents", report.Documents),
		slog.Int("chunks", report.Chunks),
		slog.Int("failures", len(report.Failures)))
	return report, nil
}
