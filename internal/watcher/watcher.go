package watcher

import (
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/pdfrag/internal/ignore"
	"github.com/Aman-CERP/pdfrag/internal/index"
)

// Op is the kind of change seen for a PDF.
type Op uint8

const (
	OpCreate Op = iota
	OpModify
	OpDelete
	// OpRename is reported for the old path; the new path arrives as a
	// separate create.
	OpRename
)

var opNames = [...]string{"CREATE", "MODIFY", "DELETE", "RENAME"}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "UNKNOWN"
}

// FileEvent is one change to one PDF. Path is relative to the watched root.
type FileEvent struct {
	Path string
	Op   Op
	At   time.Time
}

// Source produces debounced batches of PDF events.
type Source interface {
	Events() <-chan []FileEvent
	Errors() <-chan error
	RootPath() string
}

// Options tune a watcher. Zero values take the defaults noted per field.
type Options struct {
	DebounceWindow  time.Duration // quiet period before a batch is emitted; 500ms
	PollInterval    time.Duration // rescan period without fsnotify; 5s
	EventBufferSize int           // batches buffered for the consumer; 100
	ForcePolling    bool

	// Ignore excludes paths relative to the root. Nil watches every
	// visible PDF.
	Ignore *ignore.Matcher
	Logger *slog.Logger
}

// WithDefaults fills zero fields.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = 500 * time.Millisecond
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = 100
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// skipDir reports whether a directory below the root is left unwatched:
// hidden trees, which hold VCS data and the index itself, and ignored ones.
func skipDir(rel string, ig *ignore.Matcher) bool {
	if rel == "" || rel == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if hidden(part) {
			return true
		}
	}
	return ig.Ignored(rel, true)
}

// watched reports whether changes to the file at rel produce events.
func watched(rel string, ig *ignore.Matcher) bool {
	switch {
	case rel == "" || rel == ".":
		return false
	case hidden(filepath.Base(rel)), !index.IsPDF(rel):
		return false
	case skipDir(filepath.Dir(rel), ig):
		return false
	}
	return !ig.Ignored(rel, false)
}
