package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_BufferIsNotInteractive(t *testing.T) {
	buf := &bytes.Buffer{}

	assert.False(t, New(buf).Interactive())
	assert.False(t, IsTerminal(buf))
}

func TestWriter_PlainLabels(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{"info", func(w *Writer) { w.Infof("%d documents", 3) }, "3 documents\n"},
		{"success", func(w *Writer) { w.Success("Index complete") }, "Index complete\n"},
		{"warning", func(w *Writer) { w.Warningf("%s skipped", "scan.pdf") }, "warning: scan.pdf skipped\n"},
		{"error", func(w *Writer) { w.Error("ollama unreachable") }, "error: ollama unreachable\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a writer that is not a terminal
			buf := &bytes.Buffer{}
			w := NewPlain(buf)

			// When
			tt.write(w)

			// Then: no icons are printed
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_InteractiveIcons(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &Writer{out: buf, fancy: true}

	w.Success("done")
	w.Error("failed")

	assert.Equal(t, "✅ done\n❌ failed\n", buf.String())
}

func TestWriter_Block(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewPlain(buf)

	w.Block("line one\nline two\n")

	assert.Equal(t, "  line one\n  line two\n", buf.String())
}

func TestWriter_PercentWithoutArgsIsLiteral(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewPlain(buf)

	w.Info("100% recall")
	w.Newline()

	assert.Equal(t, "100% recall\n\n", buf.String())
}
