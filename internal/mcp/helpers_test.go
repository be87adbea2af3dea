package mcp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/pdfrag/internal/config"
	"github.com/Aman-CERP/pdfrag/internal/index"
	"github.com/Aman-CERP/pdfrag/internal/logging"
	"github.com/Aman-CERP/pdfrag/internal/search"
	"github.com/Aman-CERP/pdfrag/internal/store"
)

// fakeSearcher records queries and returns SearchFn's results.
type fakeSearcher struct {
	SearchFn func(ctx context.Context, q search.Query) ([]*search.Result, error)

	mu      sync.Mutex
	queries []search.Query
}

func (f *fakeSearcher) Search(ctx context.Context, q search.Query) ([]*search.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.SearchFn != nil {
		return f.SearchFn(ctx, q)
	}
	return []*search.Result{}, nil
}

func (f *fakeSearcher) calls() []search.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]search.Query(nil), f.queries...)
}

// fakeIndexer records ingest calls.
type fakeIndexer struct {
	FilesFn func(ctx context.Context, paths []string) (*index.Report, error)
	TextsFn func(ctx context.Context, docs []index.TextDocument) (*index.Report, error)

	paths []string
	docs  []index.TextDocument
}

func (f *fakeIndexer) IndexFiles(ctx context.Context, paths []string) (*index.Report, error) {
	f.paths = paths
	if f.FilesFn != nil {
		return f.FilesFn(ctx, paths)
	}
	return &index.Report{RunID: "run-1", Documents: len(paths)}, nil
}

func (f *fakeIndexer) IndexTexts(ctx context.Context, docs []index.TextDocument) (*index.Report, error) {
	f.docs = docs
	if f.TextsFn != nil {
		return f.TextsFn(ctx, docs)
	}
	return &index.Report{RunID: "run-1", Documents: len(docs), Chunks: len(docs)}, nil
}

func (f *fakeIndexer) ChunkSize() int  { return 1500 }
func (f *fakeIndexer) Overlap() int    { return 300 }
func (f *fakeIndexer) ModelID() string { return "fake:test@3" }

func newMemoryStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	st, err := store.NewMemoryStore(store.Options{Meta: store.IndexMeta{
		ModelID:      "fake:test@3",
		Dimensions:   3,
		ChunkSize:    1500,
		ChunkOverlap: 300,
	}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// newTestServer builds a server over fakes and an in-memory store.
func newTestServer(t *testing.T) (*Server, *fakeSearcher, *fakeIndexer, *store.MemoryStore) {
	t.Helper()
	searcher := &fakeSearcher{}
	indexer := &fakeIndexer{}
	st := newMemoryStore(t)

	s, err := NewServer(searcher, indexer, st, config.NewConfig(),
		WithLogger(logging.Discard()), WithRootPath("/papers"))
	require.NoError(t, err)
	return s, searcher, indexer, st
}

func seedDocument(t *testing.T, st store.IndexStore, id, text string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.Upsert(ctx, &store.Chunk{
		ID: id + "_chunk_0", DocumentID: id, Content: text,
		Embedding: []float32{1, 0, 0},
		Metadata:  map[string]string{"source": id + ".pdf"},
	}))
	require.NoError(t, st.UpsertDocument(ctx, &store.Document{
		ID: id, Source: id + ".pdf", Text: text, ChunkCount: 1,
		IngestedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}))
}

func requireMCPError(t *testing.T, err error) *MCPError {
	t.Helper()
	require.Error(t, err)
	mcpErr, ok := err.(*MCPError)
	require.True(t, ok, "expected *MCPError, got %T: %v", err, err)
	return mcpErr
}
