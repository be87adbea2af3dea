package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"
)

// maxLineBytes bounds one log line read by the viewer.
const maxLineBytes = 1 << 20

// Entry is one parsed line of the JSON server log.
type Entry struct {
	Time  time.Time
	Level string
	Msg   string
	Attrs map[string]any
	Raw   string
	Valid bool // false when the line is not JSON
}

// ViewerConfig filters and styles viewer output.
type ViewerConfig struct {
	Level   string         // Minimum level; empty shows everything
	Pattern *regexp.Regexp // Matched against the raw line
	NoColor bool
}

// Viewer reads, filters and prints server log lines.
type Viewer struct {
	cfg      ViewerConfig
	minLevel slog.Level
	out      io.Writer
}

// NewViewer creates a viewer writing to out.
func NewViewer(cfg ViewerConfig, out io.Writer) *Viewer {
	v := &Viewer{cfg: cfg, out: out, minLevel: slog.LevelDebug}
	if cfg.Level != "" {
		v.minLevel = ParseLevel(cfg.Level)
	}
	return v
}

// Tail returns the matching entries among the last n lines of path.
func (v *Viewer) Tail(path string, n int) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	window := make([]string, 0, max(n, 0))
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		if n <= 0 {
			continue
		}
		if len(window) == n {
			window = append(window[:0], window[1:]...)
		}
		window = append(window, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	var entries []Entry
	for _, line := range window {
		if e := Parse(line); v.Matches(e) {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// Follow polls path for appended lines and passes matching entries to fn
// until ctx is done. Existing content is skipped.
func (v *Viewer) Follow(ctx context.Context, path string, interval time.Duration, fn func(Entry)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek log file: %w", err)
	}

	r := bufio.NewReader(f)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var partial string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		for {
			chunk, err := r.ReadString('\n')
			if err != nil {
				// Keep an unterminated line until the writer finishes it.
				partial += chunk
				break
			}
			line := strings.TrimSuffix(partial+chunk, "\n")
			partial = ""
			if line == "" {
				continue
			}
			if e := Parse(line); v.Matches(e) {
				fn(e)
			}
		}
	}
}

// Matches reports whether e passes the level and pattern filters.
// Lines that are not JSON have no level and only face the pattern.
func (v *Viewer) Matches(e Entry) bool {
	if e.Valid && v.cfg.Level != "" && ParseLevel(e.Level) < v.minLevel {
		return false
	}
	if v.cfg.Pattern != nil && !v.cfg.Pattern.MatchString(e.Raw) {
		return false
	}
	return true
}

// Format renders e as "15:04:05.000 LEVEL msg key=value ...", with
// attributes in key order.
func (v *Viewer) Format(e Entry) string {
	if !e.Valid {
		return e.Raw
	}

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(e.Time.Local().Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(v.level(e.Level))
	b.WriteByte(' ')
	b.WriteString(e.Msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Attrs[k])
	}
	return b.String()
}

// Print writes entries, one per line.
func (v *Viewer) Print(entries []Entry) {
	for _, e := range entries {
		_, _ = fmt.Fprintln(v.out, v.Format(e))
	}
}

func (v *Viewer) level(level string) string {
	label := fmt.Sprintf("%-5s", strings.ToUpper(level))
	if v.cfg.NoColor {
		return label
	}
	switch ParseLevel(level) {
	case slog.LevelDebug:
		return "\033[90m" + label + "\033[0m"
	case slog.LevelWarn:
		return "\033[33m" + label + "\033[0m"
	case slog.LevelError:
		return "\033[31m" + label + "\033[0m"
	default:
		return "\033[32m" + label + "\033[0m"
	}
}

// Parse decodes one slog JSON line. Anything else is kept raw.
func Parse(line string) Entry {
	e := Entry{Raw: line}

	var data map[string]any
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return e
	}
	e.Valid = true

	if s, ok := data[slog.TimeKey].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			e.Time = t
		}
	}
	e.Level, _ = data[slog.LevelKey].(string)
	e.Msg, _ = data[slog.MessageKey].(string)

	delete(data, slog.TimeKey)
	delete(data, slog.LevelKey)
	delete(data, slog.MessageKey)
	e.Attrs = data
	return e
}
