// Package pdf extracts page text from PDF files using poppler's pdftotext.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/Aman-CERP/pdfrag/internal/errors"
)

// ToolName is the external extraction binary.
const ToolName = "pdftotext"

// minUsefulChars is the amount of text below which layout extraction is
// considered a failure and raw-order extraction is tried instead.
const minUsefulChars = 100

// ErrPDFToolNotFound is returned when pdftotext is not installed.
var ErrPDFToolNotFound = errors.New(errors.ErrCodeExtractFailed,
	"pdftotext not found in PATH", nil).WithSuggestion(InstallInstructions())

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, err
}

// Result is the text of one PDF.
type Result struct {
	Pages  []string // One entry per page, in order
	Method string   // "layout" or "raw"
}

// Text joins all pages with newlines.
func (r *Result) Text() string {
	return strings.Join(r.Pages, "\n")
}

// Extractor pulls text out of PDF files.
type Extractor struct {
	runner    CommandRunner
	checkTool bool
}

// New returns an Extractor that runs the real pdftotext binary.
func New() *Extractor {
	return &Extractor{runner: execRunner{}, checkTool: true}
}

// NewWithRunner returns an Extractor that uses runner instead of exec.
func NewWithRunner(runner CommandRunner) *Extractor {
	return &Extractor{runner: runner}
}

// CheckAvailable reports whether pdftotext can be found in PATH.
func CheckAvailable() error {
	if _, err := exec.LookPath(ToolName); err != nil {
		return ErrPDFToolNotFound
	}
	return nil
}

// InstallInstructions explains how to install pdftotext.
func InstallInstructions() string {
	return "Install poppler to get pdftotext: 'brew install poppler' (macOS) or 'apt install poppler-utils' (Debian/Ubuntu)"
}

// Extract returns the page text of the PDF at path.
// Layout-preserving extraction is tried first; when it yields almost no
// text, raw content-stream order is tried and the longer result wins.
func (e *Extractor) Extract(ctx context.Context, path string) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.New(errors.ErrCodeFileNotFound,
			fmt.Sprintf("cannot read %s", path), err).WithDetail("path", path)
	}
	if info.IsDir() {
		return nil, errors.New(errors.ErrCodeInvalidPath,
			fmt.Sprintf("%s is a directory", path), nil).WithDetail("path", path)
	}
	if e.checkTool {
		if err := CheckAvailable(); err != nil {
			return nil, err
		}
	}

	pages, err := e.run(ctx, path, "-layout")
	if err != nil {
		return nil, err
	}
	result := &Result{Pages: pages, Method: "layout"}
	if textLen(pages) >= minUsefulChars {
		return result, nil
	}

	rawPages, err := e.run(ctx, path, "-raw")
	if err != nil {
		// The layout result, however thin, is still a result.
		return result, nil
	}
	if textLen(rawPages) > textLen(pages) {
		return &Result{Pages: rawPages, Method: "raw"}, nil
	}
	return result, nil
}

func (e *Extractor) run(ctx context.Context, path, mode string) ([]string, error) {
	out, err := e.runner.Run(ctx, ToolName, mode, "-enc", "UTF-8", path, "-")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.New(errors.ErrCodeExtractFailed,
			fmt.Sprintf("pdftotext failed for %s", path), err).WithDetail("path", path)
	}
	return SplitPages(string(out)), nil
}

// SplitPages splits pdftotext output on form feeds. pdftotext ends every
// page with a form feed, so a trailing empty element is dropped.
func SplitPages(out string) []string {
	if out == "" {
		return nil
	}
	pages := strings.Split(out, "\f")
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return pages
}

func textLen(pages []string) int {
	n := 0
	for _, p := range pages {
		n += len(strings.TrimSpace(p))
	}
	return n
}
