package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/pdfrag/internal/config"
	"github.com/Aman-CERP/pdfrag/internal/index"
)

// newProject returns a project directory anchored by its data directory,
// with HOME pointed at a temp dir so logs and user config stay isolated.
func newProject(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, config.DataDirName), 0755))
	return dir
}

// execute runs the root command and returns what it wrote to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// seedIndex indexes docs into the offline index of the project at dir.
func seedIndex(t *testing.T, dir string, docs ...index.TextDocument) {
	t.Helper()
	opts := &globalOptions{root: dir, offline: true}
	a, err := opts.openApp(context.Background(), openOptions{ingest: true})
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	report, err := a.ingester.IndexTexts(context.Background(), docs)
	require.NoError(t, err)
	require.Empty(t, report.Failures)
}

var papers = []index.TextDocument{
	{ID: "attention", Text: "Transformers rely on scaled dot-product attention over queries, keys and values."},
	{ID: "sauce", Text: "Simmer the tomato sauce slowly with basil and garlic until it thickens."},
}
