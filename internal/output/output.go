// Package output prints human-facing CLI lines. Status icons are shown on
// terminals only; pipes get plain "label: message" text.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

type kind int

const (
	plain kind = iota
	success
	warning
	failure
)

var marks = [...]struct{ icon, label string }{
	plain:   {},
	success: {icon: "✅"},
	warning: {icon: "⚠️ ", label: "warning"},
	failure: {icon: "❌", label: "error"},
}

// Writer prints CLI lines to one destination. Write errors are dropped.
type Writer struct {
	out   io.Writer
	fancy bool
}

// New returns a Writer that decorates lines when out is a terminal.
func New(out io.Writer) *Writer {
	return &Writer{out: out, fancy: IsTerminal(out)}
}

// NewPlain returns a Writer that never decorates.
func NewPlain(out io.Writer) *Writer {
	return &Writer{out: out}
}

// IsTerminal reports whether w is an *os.File attached to a tty.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Interactive reports whether lines are decorated.
func (w *Writer) Interactive() bool { return w.fancy }

func (w *Writer) line(k kind, format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	m := marks[k]
	var prefix string
	switch {
	case w.fancy && m.icon != "":
		prefix = m.icon + " "
	case m.label != "":
		prefix = m.label + ": "
	}
	_, _ = io.WriteString(w.out, prefix+msg+"\n")
}

func (w *Writer) Info(msg string)                  { w.line(plain, "%s", msg) }
func (w *Writer) Infof(format string, args ...any) { w.line(plain, format, args...) }
func (w *Writer) Success(msg string)               { w.line(success, "%s", msg) }
func (w *Writer) Warning(msg string)               { w.line(warning, "%s", msg) }
func (w *Writer) Warningf(format string, args ...any) {
	w.line(warning, format, args...)
}
func (w *Writer) Error(msg string) { w.line(failure, "%s", msg) }

// Block prints each line of text indented by two spaces.
func (w *Writer) Block(text string) {
	var b strings.Builder
	for line := range strings.SplitSeq(strings.TrimRight(text, "\n"), "\n") {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	_, _ = io.WriteString(w.out, b.String())
}

// Newline prints an empty line.
func (w *Writer) Newline() { _, _ = io.WriteString(w.out, "\n") }
