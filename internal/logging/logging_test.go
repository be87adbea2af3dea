package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogPath(t *testing.T) {
	t.Setenv(DirEnv, "")
	path := LogPath()

	assert.True(t, strings.HasSuffix(path, filepath.Join(".pdfrag", "logs", "server.log")))
	assert.Equal(t, LogDir(), filepath.Dir(path))
}

func TestLogDir_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(DirEnv, dir)
	assert.Equal(t, filepath.Join(dir, "server.log"), LogPath())
}

func TestDefaults(t *testing.T) {
	assert.Equal(t, "info", Defaults(false).Level)
	assert.Equal(t, "debug", Defaults(true).Level)
	assert.False(t, Defaults(true).Stderr)
}

func TestOpen_WritesJSONLines(t *testing.T) {
	// Given: a sink in a temp dir
	opts := Defaults(false)
	opts.Path = filepath.Join(t.TempDir(), "logs", "server.log")

	// When: logging through it
	sink, err := Open(opts)
	require.NoError(t, err)
	sink.Logger.Info("search_complete", slog.String("mode", "hybrid"), slog.Int("results", 3))
	sink.Logger.Debug("dropped at info level")
	require.NoError(t, sink.Close())

	// Then: one JSON line with the attributes
	data, err := os.ReadFile(opts.Path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "search_complete", entry["msg"])
	assert.Equal(t, "hybrid", entry["mode"])
	assert.Equal(t, float64(3), entry["results"])
}

func TestSink_SetLevel(t *testing.T) {
	// Given: an info sink
	opts := Defaults(false)
	opts.Path = filepath.Join(t.TempDir(), "server.log")
	sink, err := Open(opts)
	require.NoError(t, err)

	// When: raising it to warn after the logger was handed out
	logger := sink.Logger
	sink.SetLevel("warn")
	logger.Info("hidden")
	logger.Warn("shown")
	require.NoError(t, sink.Close())

	// Then: the existing logger follows the new level
	assert.Equal(t, slog.LevelWarn, sink.Level())
	data, err := os.ReadFile(opts.Path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" Error ", slog.LevelError},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestFindLogFile(t *testing.T) {
	_, err := FindLogFile(filepath.Join(t.TempDir(), "missing.log"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))
	found, err := FindLogFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, found)
}

func TestRotatingWriter_Rotation(t *testing.T) {
	// Given: a writer with a 1 MiB limit
	path := filepath.Join(t.TempDir(), "server.log")
	w, err := NewRotatingWriter(path, 1<<20, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	chunk := []byte(strings.Repeat("x", 600*1024))

	// When: writing past the limit three times
	for i := 0; i < 3; i++ {
		_, err := w.Write(chunk)
		require.NoError(t, err)
	}

	// Then: backups exist up to maxFiles and never beyond
	assert.FileExists(t, path)
	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")
}

func TestRotatingWriter_AppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	w, err := NewRotatingWriter(path, 1<<20, 2)
	require.NoError(t, err)
	_, err = w.Write([]byte("new\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(data))
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "server.log"), 1<<20, 1)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	w, err := NewRotatingWriter(path, 1<<20, 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = w.Write([]byte("line\n"))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1000, strings.Count(string(data), "line\n"))
}
