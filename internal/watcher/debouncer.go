package watcher

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// Debouncer holds events until the window passes with no new event, then
// emits everything pending as one batch sorted by path. Events for the same
// path are merged by coalesce.
type Debouncer struct {
	window time.Duration
	logger *slog.Logger
	out    chan []FileEvent

	mu      sync.Mutex
	pending map[string]pendingEvent
	timer   *time.Timer
	stopped bool
}

type pendingEvent struct {
	event   FileEvent
	firstOp Op
}

func NewDebouncer(window time.Duration, logger *slog.Logger) *Debouncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Debouncer{
		window:  window,
		logger:  logger,
		out:     make(chan []FileEvent, 10),
		pending: make(map[string]pendingEvent),
	}
}

// Add queues ev and restarts the window.
func (d *Debouncer) Add(ev FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if prev, ok := d.pending[ev.Path]; ok {
		if merged, keep := coalesce(prev, ev); keep {
			prev.event = merged
			d.pending[ev.Path] = prev
		} else {
			delete(d.pending, ev.Path)
		}
	} else {
		d.pending[ev.Path] = pendingEvent{event: ev, firstOp: ev.Op}
	}

	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.flush)
	} else {
		d.timer.Reset(d.window)
	}
}

// coalesce folds next into prev:
//
//	create + modify  -> create
//	create + delete  -> nothing (a temp file came and went)
//	delete + create  -> modify (the file was replaced)
//	anything else    -> next
func coalesce(prev pendingEvent, next FileEvent) (FileEvent, bool) {
	switch {
	case prev.firstOp == OpCreate && next.Op == OpModify:
		next.Op = OpCreate
	case prev.firstOp == OpCreate && (next.Op == OpDelete || next.Op == OpRename):
		return FileEvent{}, false
	case prev.firstOp == OpDelete && next.Op == OpCreate:
		next.Op = OpModify
	}
	return next, true
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, p := range d.pending {
		batch = append(batch, p.event)
	}
	clear(d.pending)
	slices.SortFunc(batch, func(a, b FileEvent) int { return strings.Compare(a.Path, b.Path) })

	select {
	case d.out <- batch:
	default:
		d.logger.Warn("watch_batch_dropped", slog.Int("batch_size", len(batch)))
	}
}

// Output delivers debounced batches until Stop.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.out
}

// Stop drops pending events and closes Output. It is idempotent.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.out)
}
