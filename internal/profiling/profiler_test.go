package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Size()
}

func busyWork() int {
	sum := 0
	for i := range 1_000_000 {
		sum += i % 7
	}
	return sum
}

func TestOptions_Enabled(t *testing.T) {
	tests := []struct {
		opts Options
		want bool
	}{
		{Options{}, false},
		{Options{CPU: "cpu.prof"}, true},
		{Options{Heap: "heap.prof"}, true},
		{Options{Trace: "trace.out"}, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.opts.Enabled(), "%+v", tt.opts)
	}
}

func TestSession_WritesRequestedOutputs(t *testing.T) {
	tests := []struct {
		name string
		opts func(dir string) Options
	}{
		{"cpu only", func(dir string) Options { return Options{CPU: filepath.Join(dir, "cpu.prof")} }},
		{"heap only", func(dir string) Options { return Options{Heap: filepath.Join(dir, "heap.prof")} }},
		{"all", func(dir string) Options {
			return Options{
				CPU:   filepath.Join(dir, "cpu.prof"),
				Heap:  filepath.Join(dir, "heap.prof"),
				Trace: filepath.Join(dir, "trace.out"),
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a session with some outputs
			opts := tt.opts(t.TempDir())
			s, err := Start(opts)
			require.NoError(t, err)

			// When: work runs and the session stops twice
			_ = busyWork()
			require.NoError(t, s.Stop())
			require.NoError(t, s.Stop())

			// Then: each requested file has content
			for _, p := range []string{opts.CPU, opts.Heap, opts.Trace} {
				if p != "" {
					assert.Positive(t, fileSize(t, p), p)
				}
			}
		})
	}
}

func TestSession_NothingRequested(t *testing.T) {
	s, err := Start(Options{})
	require.NoError(t, err)
	assert.NoError(t, s.Stop())
}

func TestStart_UnwritableCPUPath(t *testing.T) {
	_, err := Start(Options{CPU: filepath.Join(t.TempDir(), "missing", "cpu.prof")})
	assert.ErrorContains(t, err, "create CPU profile")
}

func TestStart_TraceFailureReleasesCPUProfiler(t *testing.T) {
	dir := t.TempDir()

	_, err := Start(Options{
		CPU:   filepath.Join(dir, "cpu.prof"),
		Heap:  filepath.Join(dir, "heap.prof"),
		Trace: filepath.Join(dir, "missing", "trace.out"),
	})
	require.ErrorContains(t, err, "create trace")

	// No heap profile is written for a session that never started.
	_, statErr := os.Stat(filepath.Join(dir, "heap.prof"))
	assert.True(t, os.IsNotExist(statErr))

	s, err := Start(Options{CPU: filepath.Join(dir, "cpu2.prof")})
	require.NoError(t, err)
	require.NoError(t, s.Stop())
}
