// Package profiling captures pprof CPU and heap profiles and execution
// traces around one CLI run.
package profiling

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// Options holds output paths. An empty path disables that output.
type Options struct {
	CPU   string
	Heap  string
	Trace string
}

// Enabled reports whether at least one output is set.
func (o Options) Enabled() bool {
	return o != Options{}
}

// Session collects profiles until Stop.
type Session struct {
	finish []func() error // run in reverse order by Stop
}

// Start opens the requested outputs and begins CPU profiling and tracing.
// The heap profile is taken when the session stops. On error nothing is
// left running.
func Start(opts Options) (*Session, error) {
	s := &Session{}

	if opts.CPU != "" {
		if err := s.stream(opts.CPU, "CPU profile", pprof.StartCPUProfile, pprof.StopCPUProfile); err != nil {
			return nil, err
		}
	}
	if opts.Trace != "" {
		if err := s.stream(opts.Trace, "trace", trace.Start, trace.Stop); err != nil {
			_ = s.Stop()
			return nil, err
		}
	}
	if opts.Heap != "" {
		path := opts.Heap
		s.finish = append([]func() error{func() error { return writeHeap(path) }}, s.finish...)
	}
	return s, nil
}

// stream opens path and starts a collector that writes to it.
func (s *Session) stream(path, what string, start func(io.Writer) error, stop func()) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", what, err)
	}
	if err := start(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("start %s: %w", what, err)
	}
	s.finish = append(s.finish, func() error {
		stop()
		return f.Close()
	})
	return nil
}

// Stop ends collection and flushes every output. Later calls do nothing.
func (s *Session) Stop() error {
	var errs []error
	for i := len(s.finish) - 1; i >= 0; i-- {
		errs = append(errs, s.finish[i]())
	}
	s.finish = nil
	return stderrors.Join(errs...)
}

func writeHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create heap profile: %w", err)
	}
	defer func() { _ = f.Close() }()

	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("write heap profile: %w", err)
	}
	return nil
}
