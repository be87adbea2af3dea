package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	pderrors "github.com/Aman-CERP/pdfrag/internal/errors"
)

// Status is the outcome of one check.
type Status uint8

const (
	Pass Status = iota
	Warn
	Fail
)

func (s Status) String() string {
	switch s {
	case Pass:
		return "PASS"
	case Warn:
		return "WARN"
	case Fail:
		return "FAIL"
	}
	return "UNKNOWN"
}

// MarshalText encodes the status by name in JSON reports.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is one check's finding. A failed Required check blocks indexing;
// other failures are reported as warnings.
type Result struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Message  string `json:"message"`
	Hint     string `json:"hint,omitempty"`
	Required bool   `json:"required"`
}

// Critical reports whether r blocks indexing.
func (r Result) Critical() bool {
	return r.Required && r.Status == Fail
}

// Verdicts summarizing a Report.
const (
	Ready             = "ready"
	ReadyWithWarnings = "ready_with_warnings"
	NotReady          = "failed"
)

// Report is the outcome of Checker.Run.
type Report struct {
	Verdict string   `json:"status"`
	Checks  []Result `json:"checks"`
}

func newReport(checks []Result) Report {
	r := Report{Verdict: Ready, Checks: checks}
	for _, c := range checks {
		switch {
		case c.Critical():
			r.Verdict = NotReady
			return r
		case c.Status != Pass:
			r.Verdict = ReadyWithWarnings
		}
	}
	return r
}

// Failed reports whether any required check failed.
func (r Report) Failed() bool {
	return r.Verdict == NotReady
}

// Print writes one line per check and the verdict. verbose adds hints.
func (r Report) Print(w io.Writer, verbose bool) {
	_, _ = fmt.Fprintf(w, "pdfrag system check\n\n")
	for _, c := range r.Checks {
		_, _ = fmt.Fprintf(w, "[%s] %s: %s\n", c.Status, c.Name, c.Message)
		if verbose && c.Hint != "" {
			_, _ = fmt.Fprintf(w, "       %s\n", c.Hint)
		}
	}
	_, _ = fmt.Fprintf(w, "\nStatus: %s\n", strings.ToUpper(r.Verdict))
}

// Probe reports whether an external dependency is usable.
type Probe func(ctx context.Context) error

type probeCheck struct {
	name     string
	required bool
	probe    Probe
}

// Checker runs the host checks plus any configured probes.
type Checker struct {
	probes []probeCheck
}

// Option configures a Checker.
type Option func(*Checker)

// WithPDFProbe adds the required text extraction check.
func WithPDFProbe(probe func() error) Option {
	return func(c *Checker) {
		c.probes = append(c.probes, probeCheck{
			name:     "pdftotext",
			required: true,
			probe:    func(context.Context) error { return probe() },
		})
	}
}

// WithEmbedderProbe adds the embedding endpoint check. It only blocks
// indexing when required.
func WithEmbedderProbe(probe Probe, required bool) Option {
	return func(c *Checker) {
		c.probes = append(c.probes, probeCheck{name: "embedder", required: required, probe: probe})
	}
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run checks the file system holding dataDir, which need not exist yet,
// then runs the probes in the order they were added.
func (c *Checker) Run(ctx context.Context, dataDir string) Report {
	dir := nearestDir(dataDir)
	checks := []Result{
		CheckDiskSpace(dir),
		CheckWritable(dir),
		CheckFileDescriptors(),
	}
	for _, p := range c.probes {
		checks = append(checks, runProbe(ctx, p))
	}
	return newReport(checks)
}

// CheckWritable creates and removes a temp file in dir.
func CheckWritable(dir string) Result {
	r := Result{Name: "write_permissions", Required: true, Status: Pass, Message: dir}

	f, err := os.CreateTemp(dir, ".pdfrag-preflight-*")
	if err != nil {
		r.Status = Fail
		r.Message = "cannot write to " + dir
		r.Hint = err.Error()
		return r
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return r
}

func runProbe(ctx context.Context, p probeCheck) Result {
	r := Result{Name: p.name, Required: p.required, Status: Pass, Message: "OK"}
	err := p.probe(ctx)
	if err == nil {
		return r
	}

	r.Status = Warn
	if p.required {
		r.Status = Fail
	}
	r.Message = err.Error()
	if pe, ok := pderrors.As(err); ok {
		r.Message, r.Hint = pe.Message, pe.Suggestion
	}
	return r
}

// nearestDir walks up from path to the first directory that exists.
func nearestDir(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}
