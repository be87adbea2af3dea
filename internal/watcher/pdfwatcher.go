package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	pderrors "github.com/Aman-CERP/pdfrag/internal/errors"
)

// PDFWatcher reports debounced PDF changes under a directory tree.
// It uses fsnotify when available and falls back to polling.
type PDFWatcher struct {
	fsWatcher   *fsnotify.Watcher
	pollWatcher *PollingWatcher
	debouncer   *Debouncer
	opts        Options
	logger      *slog.Logger

	events chan []FileEvent
	errors chan error
	stopCh chan struct{}

	mu       sync.RWMutex
	rootPath string
	stopped  bool

	droppedBatches atomic.Uint64
}

var _ Source = (*PDFWatcher)(nil)

// New creates a watcher. It does not watch anything until Start.
func New(opts Options) (*PDFWatcher, error) {
	opts = opts.WithDefaults()

	w := &PDFWatcher{
		debouncer: NewDebouncer(opts.DebounceWindow, opts.Logger),
		opts:      opts,
		logger:    opts.Logger,
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsWatcher = fsw
			return w, nil
		}
		w.logger.Warn("watch_fsnotify_unavailable", slog.String("error", err.Error()))
	}
	w.pollWatcher = NewPollingWatcher(opts.PollInterval, opts.Ignore, opts.Logger)
	return w, nil
}

// Start watches root recursively and blocks until ctx is done or Stop is
// called. PDFs already present produce no events.
func (w *PDFWatcher) Start(ctx context.Context, root string) error {
	absPath, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil || !info.IsDir() {
		return pderrors.New(pderrors.ErrCodeInvalidPath,
			fmt.Sprintf("watch root %s is not a directory", absPath), err)
	}

	w.mu.Lock()
	w.rootPath = absPath
	w.mu.Unlock()

	go w.forwardDebounced(ctx)

	w.logger.Info("watch_started",
		slog.String("root", absPath),
		slog.String("mode", w.Mode()),
		slog.Duration("debounce", w.opts.DebounceWindow))

	if w.fsWatcher != nil {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

func (w *PDFWatcher) runFsnotify(ctx context.Context) error {
	if err := w.addRecursive(w.rootPath, false); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *PDFWatcher) runPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case event, ok := <-w.pollWatcher.Events():
				if !ok {
					return
				}
				w.debouncer.Add(event)
			case err, ok := <-w.pollWatcher.Errors():
				if !ok {
					return
				}
				w.emitError(err)
			}
		}
	}()
	return w.pollWatcher.Start(ctx, w.rootPath)
}

// handleFsnotifyEvent converts one fsnotify event into PDF events.
func (w *PDFWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.rootPath, event.Name)
	if err != nil {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !skipDir(rel, w.opts.Ignore) {
				// Files copied in with the directory may predate the watch.
				_ = w.addRecursive(event.Name, true)
			}
			return
		}
	}

	if !watched(rel, w.opts.Ignore) {
		return
	}

	var op Op
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	w.debouncer.Add(FileEvent{Path: rel, Op: op, At: time.Now()})
}

// addRecursive watches dir and its non-hidden subdirectories. With
// announce set, PDFs found during the walk are reported as created.
func (w *PDFWatcher) addRecursive(dir string, announce bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		rel, relErr := filepath.Rel(w.rootPath, path)
		if relErr != nil {
			return nil
		}
		if !d.IsDir() {
			if announce && watched(rel, w.opts.Ignore) {
				w.debouncer.Add(FileEvent{Path: rel, Op: OpCreate, At: time.Now()})
			}
			return nil
		}
		if skipDir(rel, w.opts.Ignore) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

// forwardDebounced moves debounced batches to the events channel.
func (w *PDFWatcher) forwardDebounced(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(batch) > 0 {
				w.emitEvents(batch)
			}
		}
	}
}

func (w *PDFWatcher) emitEvents(batch []FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.events <- batch:
	default:
		dropped := w.droppedBatches.Add(1)
		w.logger.Warn("watch_batch_dropped",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("total_dropped_batches", dropped))
	}
}

func (w *PDFWatcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.errors <- err:
	default:
	}
}

// Stop releases the watcher and closes its channels. Safe to call more than once.
func (w *PDFWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()

	if w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	if w.pollWatcher != nil {
		_ = w.pollWatcher.Stop()
	}

	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of debounced batches.
func (w *PDFWatcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns non-fatal watch errors.
func (w *PDFWatcher) Errors() <-chan error {
	return w.errors
}

// RootPath returns the absolute watched directory.
func (w *PDFWatcher) RootPath() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.rootPath
}

// Mode returns "fsnotify" or "polling".
func (w *PDFWatcher) Mode() string {
	if w.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}

// DroppedBatches returns how many batches were dropped on a full buffer.
func (w *PDFWatcher) DroppedBatches() uint64 {
	return w.droppedBatches.Load()
}
