package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Aman-CERP/pdfrag/internal/ignore"
)

// PollingWatcher rescans the tree every interval and reports what changed
// since the previous scan. PDFWatcher falls back to it when fsnotify cannot
// start.
type PollingWatcher struct {
	interval time.Duration
	ignore   *ignore.Matcher
	logger   *slog.Logger

	events chan FileEvent
	errors chan error
	done   chan struct{}

	mu      sync.Mutex
	seen    map[string]stamp
	stopped bool
}

// stamp identifies one version of a file.
type stamp struct {
	mtime time.Time
	size  int64
}

// NewPollingWatcher creates a watcher. ig may be nil.
func NewPollingWatcher(interval time.Duration, ig *ignore.Matcher, logger *slog.Logger) *PollingWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PollingWatcher{
		interval: interval,
		ignore:   ig,
		logger:   logger,
		events:   make(chan FileEvent, 100),
		errors:   make(chan error, 10),
		done:     make(chan struct{}),
	}
}

// Start takes a baseline scan, so PDFs already present produce no events,
// then polls until ctx ends or Stop is called.
func (p *PollingWatcher) Start(ctx context.Context, root string) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	baseline, err := scanPDFs(root, p.ignore)
	if err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}
	p.mu.Lock()
	p.seen = baseline
	p.mu.Unlock()

	tick := time.NewTicker(p.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.done:
			return nil
		case <-tick.C:
			p.poll(root)
		}
	}
}

func (p *PollingWatcher) poll(root string) {
	current, err := scanPDFs(root, p.ignore)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	if err != nil {
		select {
		case p.errors <- fmt.Errorf("scan for changes: %w", err):
		default:
		}
		return
	}
	for _, ev := range diffScans(p.seen, current, time.Now()) {
		select {
		case p.events <- ev:
		default:
			p.logger.Warn("watch_event_dropped", slog.String("path", ev.Path), slog.String("op", ev.Op.String()))
		}
	}
	p.seen = current
}

// Stop ends polling and closes both channels. It is idempotent.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.stopped = true
		close(p.done)
		close(p.events)
		close(p.errors)
	}
	return nil
}

// Events delivers raw, undebounced events.
func (p *PollingWatcher) Events() <-chan FileEvent { return p.events }

func (p *PollingWatcher) Errors() <-chan error { return p.errors }

// scanPDFs stamps every watched PDF under root. Unreadable entries below
// the root are skipped.
func scanPDFs(root string, ig *ignore.Matcher) (map[string]stamp, error) {
	out := make(map[string]stamp)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDir(rel, ig) {
				return filepath.SkipDir
			}
			return nil
		}
		if !watched(rel, ig) {
			return nil
		}
		if info, err := d.Info(); err == nil {
			out[rel] = stamp{mtime: info.ModTime(), size: info.Size()}
		}
		return nil
	})
	return out, err
}

// diffScans lists creates, modifications and deletes between two scans,
// ordered by path.
func diffScans(before, after map[string]stamp, at time.Time) []FileEvent {
	var evs []FileEvent
	for rel, now := range after {
		was, ok := before[rel]
		switch {
		case !ok:
			evs = append(evs, FileEvent{Path: rel, Op: OpCreate, At: at})
		case !was.mtime.Equal(now.mtime) || was.size != now.size:
			evs = append(evs, FileEvent{Path: rel, Op: OpModify, At: at})
		}
	}
	for rel := range before {
		if _, ok := after[rel]; !ok {
			evs = append(evs, FileEvent{Path: rel, Op: OpDelete, At: at})
		}
	}
	sort.Slice(evs, func(i, j int) bool { return evs[i].Path < evs[j].Path })
	return evs
}
