package search

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/Aman-CERP/pdfrag/internal/store"
)

// fakeStore is an IndexStore whose searches are driven by function fields.
type fakeStore struct {
	meta      store.IndexMeta
	lexicalFn func(ctx context.Context, query string, topK int) ([]*store.LexicalResult, error)
	vectorFn  func(ctx context.Context, vector []float32, topK int) ([]*store.VectorResult, error)
	chunksFn  func(ctx context.Context, ids []string) ([]*store.Chunk, error)

	lexicalCalls atomic.Int32
	vectorCalls  atomic.Int32
	lastLexicalK atomic.Int32
	lastVectorK  atomic.Int32
}

var _ store.IndexStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{meta: store.IndexMeta{ModelID: "fake:test@3", Dimensions: 3, RRFConstant: 60}}
}

func (f *fakeStore) Upsert(context.Context, *store.Chunk) error            { return nil }
func (f *fakeStore) UpsertChunks(context.Context, []*store.Chunk) error    { return nil }
func (f *fakeStore) UpsertDocument(context.Context, *store.Document) error { return nil }
func (f *fakeStore) DeleteByDocument(context.Context, string) (int, error) { return 0, nil }

func (f *fakeStore) SearchLexical(ctx context.Context, query string, topK int) ([]*store.LexicalResult, error) {
	f.lexicalCalls.Add(1)
	f.lastLexicalK.Store(int32(topK))
	if f.lexicalFn == nil {
		return []*store.LexicalResult{}, nil
	}
	return f.lexicalFn(ctx, query, topK)
}

func (f *fakeStore) SearchVector(ctx context.Context, vector []float32, topK int) ([]*store.VectorResult, error) {
	f.vectorCalls.Add(1)
	f.lastVectorK.Store(int32(topK))
	if f.vectorFn == nil {
		return []*store.VectorResult{}, nil
	}
	return f.vectorFn(ctx, vector, topK)
}

// GetChunks returns a chunk for every id unless chunksFn overrides it.
func (f *fakeStore) GetChunks(ctx context.Context, ids []string) ([]*store.Chunk, error) {
	if f.chunksFn != nil {
		return f.chunksFn(ctx, ids)
	}
	chunks := make([]*store.Chunk, len(ids))
	for i, id := range ids {
		chunks[i] = &store.Chunk{
			ID:         id,
			DocumentID: "doc-" + id,
			Content:    "content of " + id,
			Metadata:   map[string]string{"source": "doc-" + id + ".pdf"},
		}
	}
	return chunks, nil
}

func (f *fakeStore) GetDocument(context.Context, string) (*store.Document, error) { return nil, nil }
func (f *fakeStore) ListDocuments(context.Context) ([]*store.Document, error)     { return nil, nil }
func (f *fakeStore) Stats(context.Context) (*store.Stats, error)                  { return &store.Stats{}, nil }
func (f *fakeStore) Meta() store.IndexMeta                                        { return f.meta }
func (f *fakeStore) Close() error                                                 { return nil }

// fakeEmbedder embeds through embedFn and counts calls.
type fakeEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
	calls   atomic.Int32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.embedFn == nil {
		return []float32{1, 0, 0}, nil
	}
	return f.embedFn(ctx, text)
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int                  { return 3 }
func (f *fakeEmbedder) ModelID() string                  { return "fake:test@3" }
func (f *fakeEmbedder) Available(_ context.Context) bool { return true }
func (f *fakeEmbedder) Close() error                     { return nil }

func resultIDs(results []*Result) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	return ids
}

func longText(n int) string {
	return strings.Repeat("x", n)
}
