package store

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pderrors "github.com/Aman-CERP/pdfrag/internal/errors"
)

const testDims = 3

func testMeta() IndexMeta {
	return IndexMeta{
		ModelID:      "static:test@3",
		Dimensions:   testDims,
		ChunkSize:    1500,
		ChunkOverlap: 300,
	}
}

// backends returns a constructor per IndexStore implementation so the
// shared behaviour is checked against both.
func backends() map[string]func(t *testing.T, threshold int) IndexStore {
	return map[string]func(t *testing.T, threshold int) IndexStore{
		BackendSQLite: func(t *testing.T, threshold int) IndexStore {
			s, err := OpenSQLite(context.Background(), Options{
				Path:                 filepath.Join(t.TempDir(), "index.db"),
				Meta:                 testMeta(),
				ExactSearchThreshold: threshold,
			})
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		BackendMemory: func(t *testing.T, threshold int) IndexStore {
			s, err := NewMemoryStore(Options{Meta: testMeta(), ExactSearchThreshold: threshold})
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func sampleChunks() []*Chunk {
	return []*Chunk{
		{ID: "a#0", DocumentID: "a", Ordinal: 0, Content: "transformers use attention layers", Embedding: []float32{1, 0, 0}},
		{ID: "a#1", DocumentID: "a", Ordinal: 1, Offset: 1200, Content: "recurrent networks process sequences", Embedding: []float32{0, 1, 0}},
		{ID: "b#0", DocumentID: "b", Ordinal: 0, Content: "attention is all you need", Embedding: []float32{0.9, 0.1, 0},
			Metadata: map[string]string{"page": "1"}},
	}
}

func seed(t *testing.T, s IndexStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertChunks(ctx, sampleChunks()))
	require.NoError(t, s.UpsertDocument(ctx, &Document{ID: "a", Source: "a.pdf", Text: "full a", ChunkCount: 2}))
	require.NoError(t, s.UpsertDocument(ctx, &Document{ID: "b", Source: "b.pdf", Text: "full b", ChunkCount: 1}))
}

func lexicalIDs(results []*LexicalResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	return ids
}

func vectorIDs(results []*VectorResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	return ids
}

func TestIndexStore_EmptyCorpus_ReturnsEmptyResults(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			// Given: a fresh index
			s := open(t, 0)
			ctx := context.Background()

			// When: searching both sides
			lex, err := s.SearchLexical(ctx, "attention", 5)
			require.NoError(t, err)
			vec, err := s.SearchVector(ctx, []float32{1, 0, 0}, 5)
			require.NoError(t, err)

			// Then: no hits and no error
			assert.Empty(t, lex)
			assert.Empty(t, vec)
		})
	}
}

func TestIndexStore_SearchLexical_MatchesAnyTerm(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			// Given: a seeded index
			s := open(t, 0)
			seed(t, s)

			// When: searching for a term in two chunks and one absent term
			results, err := s.SearchLexical(context.Background(), "attention quaternion", 10)
			require.NoError(t, err)

			// Then: both chunks with "attention" match with positive scores
			assert.ElementsMatch(t, []string{"a#0", "b#0"}, lexicalIDs(results))
			for _, r := range results {
				assert.Greater(t, r.Score, 0.0)
			}
			assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
		})
	}
}

func TestIndexStore_SearchLexical_StopWordsOnly_ReturnsEmpty(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t, 0)
			seed(t, s)

			results, err := s.SearchLexical(context.Background(), "is the of", 10)
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestIndexStore_SearchLexical_TiesBreakByChunkID(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			// Given: identical content under different ids
			s := open(t, 0)
			ctx := context.Background()
			require.NoError(t, s.UpsertChunks(ctx, []*Chunk{
				{ID: "z#0", DocumentID: "z", Content: "entropy coding", Embedding: []float32{1, 0, 0}},
				{ID: "m#0", DocumentID: "m", Content: "entropy coding", Embedding: []float32{0, 1, 0}},
				{ID: "q#0", DocumentID: "q", Content: "entropy coding", Embedding: []float32{0, 0, 1}},
			}))

			// When: searching
			results, err := s.SearchLexical(ctx, "entropy", 10)
			require.NoError(t, err)

			// Then: equal scores are ordered by id
			assert.Equal(t, []string{"m#0", "q#0", "z#0"}, lexicalIDs(results))
		})
	}
}

func TestIndexStore_SearchVector_OrdersByCosine(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t, 0)
			seed(t, s)

			results, err := s.SearchVector(context.Background(), []float32{1, 0, 0}, 10)
			require.NoError(t, err)

			require.Equal(t, []string{"a#0", "b#0", "a#1"}, vectorIDs(results))
			assert.InDelta(t, 1.0, results[0].Score, 1e-6)
			assert.Equal(t, "b", results[1].DocumentID)
			assert.InDelta(t, 0.0, results[2].Score, 1e-6)
		})
	}
}

func TestIndexStore_SearchVector_TopKLimitsAndTies(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			// Given: two chunks with the same direction
			s := open(t, 0)
			ctx := context.Background()
			require.NoError(t, s.UpsertChunks(ctx, []*Chunk{
				{ID: "y#0", DocumentID: "y", Content: "one", Embedding: []float32{0, 2, 0}},
				{ID: "x#0", DocumentID: "x", Content: "two", Embedding: []float32{0, 1, 0}},
				{ID: "w#0", DocumentID: "w", Content: "three", Embedding: []float32{1, 0, 0}},
			}))

			// When: asking for the top two
			results, err := s.SearchVector(ctx, []float32{0, 1, 0}, 2)
			require.NoError(t, err)

			// Then: the tie is broken by id and the third is cut
			assert.Equal(t, []string{"x#0", "y#0"}, vectorIDs(results))
		})
	}
}

func TestIndexStore_SearchVector_DimensionMismatch(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t, 0)

			_, err := s.SearchVector(context.Background(), []float32{1, 0}, 5)
			require.Error(t, err)
			assert.Equal(t, pderrors.ErrCodeDimensionMismatch, pderrors.GetCode(err))
		})
	}
}

func TestIndexStore_Upsert_RejectsWrongDimensions(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t, 0)

			err := s.Upsert(context.Background(), &Chunk{ID: "c", DocumentID: "d", Content: "x", Embedding: []float32{1}})
			require.Error(t, err)
			assert.Equal(t, pderrors.ErrCodeDimensionMismatch, pderrors.GetCode(err))

			st, err := s.Stats(context.Background())
			require.NoError(t, err)
			assert.Zero(t, st.Chunks)
		})
	}
}

func TestIndexStore_Upsert_IsIdempotent(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			// Given: the same chunks upserted twice
			s := open(t, 0)
			seed(t, s)
			seed(t, s)
			ctx := context.Background()

			// Then: counts and hits are unchanged
			st, err := s.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, st.Documents)
			assert.Equal(t, 3, st.Chunks)

			results, err := s.SearchLexical(ctx, "attention", 10)
			require.NoError(t, err)
			assert.Len(t, results, 2)
		})
	}
}

func TestIndexStore_Upsert_ReplacesContentAndVector(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			// Given: a seeded index
			s := open(t, 0)
			seed(t, s)
			ctx := context.Background()

			// When: a chunk is replaced with new text and vector
			require.NoError(t, s.Upsert(ctx, &Chunk{
				ID: "a#0", DocumentID: "a", Content: "gradient descent", Embedding: []float32{0, 0, 1},
			}))

			// Then: old text no longer matches and new text does
			lex, err := s.SearchLexical(ctx, "attention", 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"b#0"}, lexicalIDs(lex))

			lex, err = s.SearchLexical(ctx, "gradient", 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"a#0"}, lexicalIDs(lex))

			// And: the vector side sees the new embedding
			vec, err := s.SearchVector(ctx, []float32{0, 0, 1}, 1)
			require.NoError(t, err)
			assert.Equal(t, []string{"a#0"}, vectorIDs(vec))
		})
	}
}

func TestIndexStore_DeleteByDocument_RemovesEverything(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			// Given: a seeded index
			s := open(t, 0)
			seed(t, s)
			ctx := context.Background()

			// When: deleting document a
			n, err := s.DeleteByDocument(ctx, "a")
			require.NoError(t, err)

			// Then: both its chunks are gone from every view
			assert.Equal(t, 2, n)

			chunks, err := s.GetChunks(ctx, []string{"a#0", "a#1", "b#0"})
			require.NoError(t, err)
			require.Len(t, chunks, 1)
			assert.Equal(t, "b#0", chunks[0].ID)

			lex, err := s.SearchLexical(ctx, "attention", 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"b#0"}, lexicalIDs(lex))

			vec, err := s.SearchVector(ctx, []float32{1, 0, 0}, 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"b#0"}, vectorIDs(vec))

			_, err = s.GetDocument(ctx, "a")
			assert.Equal(t, pderrors.ErrCodeNotFound, pderrors.GetCode(err))

			// And: deleting again is a no-op
			n, err = s.DeleteByDocument(ctx, "a")
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestIndexStore_GetChunks_PreservesRequestOrder(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t, 0)
			seed(t, s)

			chunks, err := s.GetChunks(context.Background(), []string{"b#0", "missing", "a#1"})
			require.NoError(t, err)

			require.Len(t, chunks, 2)
			assert.Equal(t, "b#0", chunks[0].ID)
			assert.Equal(t, "1", chunks[0].Metadata["page"])
			assert.Equal(t, "a#1", chunks[1].ID)
			assert.Equal(t, 1200, chunks[1].Offset)
			assert.Equal(t, 1, chunks[1].Ordinal)
		})
	}
}

func TestIndexStore_Documents(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t, 0)
			seed(t, s)
			ctx := context.Background()

			doc, err := s.GetDocument(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, "a.pdf", doc.Source)
			assert.Equal(t, "full a", doc.Text)
			assert.Equal(t, 2, doc.ChunkCount)
			assert.False(t, doc.IngestedAt.IsZero())

			docs, err := s.ListDocuments(ctx)
			require.NoError(t, err)
			require.Len(t, docs, 2)
			assert.Equal(t, "a", docs[0].ID)
			assert.Equal(t, "b", docs[1].ID)
			assert.Empty(t, docs[0].Text)
		})
	}
}

func TestIndexStore_SearchVector_ApproximatePathFindsNeighbours(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			// Given: more chunks than the exact-search threshold
			s := open(t, 10)
			ctx := context.Background()
			rng := rand.New(rand.NewSource(7))

			chunks := make([]*Chunk, 0, 200)
			for i := 0; i < 200; i++ {
				chunks = append(chunks, &Chunk{
					ID:         fmt.Sprintf("doc#%03d", i),
					DocumentID: "doc",
					Ordinal:    i,
					Content:    fmt.Sprintf("passage %d", i),
					Embedding:  []float32{rng.Float32() - 0.5, rng.Float32() - 0.5, rng.Float32() - 0.5},
				})
			}
			require.NoError(t, s.UpsertChunks(ctx, chunks))

			// When: querying with a stored vector
			target := chunks[42]
			results, err := s.SearchVector(ctx, target.Embedding, 5)
			require.NoError(t, err)

			// Then: that chunk ranks first with exact cosine scores
			require.NotEmpty(t, results)
			assert.Equal(t, target.ID, results[0].ChunkID)
			assert.InDelta(t, 1.0, results[0].Score, 1e-5)
			assert.LessOrEqual(t, len(results), 5)

			// And: deleted chunks never come back
			_, err = s.DeleteByDocument(ctx, "doc")
			require.NoError(t, err)
			results, err = s.SearchVector(ctx, target.Embedding, 5)
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestIndexStore_Close_IsIdempotent(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t, 0)

			require.NoError(t, s.Close())
			require.NoError(t, s.Close())

			_, err := s.SearchLexical(context.Background(), "attention", 5)
			assert.Error(t, err)
		})
	}
}

func TestOpen_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{Backend: BackendMemory, Meta: testMeta()})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	_, ok := s.(*MemoryStore)
	assert.True(t, ok)

	_, err = Open(ctx, Options{Backend: "postgres", Meta: testMeta()})
	require.Error(t, err)
	assert.Equal(t, pderrors.ErrCodeConfigInvalid, pderrors.GetCode(err))
}
