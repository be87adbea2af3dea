package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configure the log sink.
type Options struct {
	Path      string // defaults to LogPath()
	Level     string // debug, info, warn or error
	MaxSizeMB int    // rotate once the file would pass this size
	Backups   int    // rotated files kept next to Path
	Stderr    bool   // mirror to stderr; never set while serving MCP on stdio
}

// Defaults returns the options every command starts from. debug lowers the
// level and cannot be raised by configuration afterwards.
func Defaults(debug bool) Options {
	o := Options{Path: LogPath(), Level: "info", MaxSizeMB: 10, Backups: 5}
	if debug {
		o.Level = "debug"
	}
	return o
}

// Sink is an open JSON log file with an adjustable level.
type Sink struct {
	Logger *slog.Logger
	Path   string

	level *slog.LevelVar
	file  *RotatingWriter
}

// Open creates the log directory and file and returns a sink writing
// slog JSON lines to it.
func Open(opts Options) (*Sink, error) {
	if opts.Path == "" {
		opts.Path = LogPath()
	}
	w, err := NewRotatingWriter(opts.Path, int64(opts.MaxSizeMB)<<20, opts.Backups)
	if err != nil {
		return nil, err
	}

	level := new(slog.LevelVar)
	level.Set(ParseLevel(opts.Level))

	var dst io.Writer = w
	if opts.Stderr {
		dst = io.MultiWriter(w, os.Stderr)
	}
	return &Sink{
		Logger: slog.New(slog.NewJSONHandler(dst, &slog.HandlerOptions{Level: level})),
		Path:   opts.Path,
		level:  level,
		file:   w,
	}, nil
}

// SetLevel changes the minimum level of every logger from this sink.
func (s *Sink) SetLevel(name string) {
	s.level.Set(ParseLevel(name))
}

// Level returns the current minimum level.
func (s *Sink) Level() slog.Level {
	return s.level.Level()
}

// Close flushes and closes the file.
func (s *Sink) Close() error {
	_ = s.file.Sync()
	return s.file.Close()
}

// Discard returns a logger that writes nowhere.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a level name to slog. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	var l slog.Level
	if strings.ContainsAny(name, "+-") || l.UnmarshalText([]byte(name)) != nil {
		return slog.LevelInfo
	}
	return l
}
