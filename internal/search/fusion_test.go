package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/pdfrag/internal/store"
)

// --- Test Helpers ---

func lexicalResults(ids ...string) []*store.LexicalResult {
	results := make([]*store.LexicalResult, len(ids))
	for i, id := range ids {
		results[i] = &store.LexicalResult{
			ChunkID:    id,
			DocumentID: "doc-" + id,
			Score:      float64(len(ids) - i),
		}
	}
	return results
}

func vectorResults(ids ...string) []*store.VectorResult {
	results := make([]*store.VectorResult, len(ids))
	for i, id := range ids {
		results[i] = &store.VectorResult{
			ChunkID:    id,
			DocumentID: "doc-" + id,
			Score:      1.0 - float64(i)*0.1,
		}
	}
	return results
}

func fusedIDs(results []*FusedResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	return ids
}

// --- Tests ---

func TestRRF_OverlappingLists(t *testing.T) {
	// Given: lexical [1,2,3] and vector [2,4,5] with equal weights
	f := NewRRF(0)

	// When: fusing
	results := f.Fuse(
		lexicalResults("1", "2", "3"),
		vectorResults("2", "4", "5"),
		Weights{BM25: 0.5, Vector: 0.5},
	)

	// Then: the shared chunk ranks first, then by single-list rank,
	// and the 3/5 tie is broken by id
	require.Equal(t, []string{"2", "1", "4", "3", "5"}, fusedIDs(results))

	assert.InDelta(t, 0.5/62+0.5/61, results[0].RRFScore, 1e-12)
	assert.InDelta(t, 0.5/61, results[1].RRFScore, 1e-12)
	assert.InDelta(t, 0.5/62, results[2].RRFScore, 1e-12)
	assert.Equal(t, results[3].RRFScore, results[4].RRFScore)

	// And: ranks and original scores are preserved
	assert.True(t, results[0].InBothLists())
	assert.Equal(t, 2, results[0].BM25Rank)
	assert.Equal(t, 1, results[0].VecRank)
	assert.Equal(t, "doc-2", results[0].DocumentID)
	assert.False(t, results[1].InBothLists())
	assert.Zero(t, results[1].VecRank)
}

func TestRRF_NormalizesWeights(t *testing.T) {
	f := NewRRF(0)
	lex := lexicalResults("a", "b")
	vec := vectorResults("b", "c")

	half := f.Fuse(lex, vec, Weights{BM25: 0.5, Vector: 0.5})
	scaled := f.Fuse(lex, vec, Weights{BM25: 3, Vector: 3})

	require.Equal(t, fusedIDs(half), fusedIDs(scaled))
	for i := range half {
		assert.InDelta(t, half[i].RRFScore, scaled[i].RRFScore, 1e-12)
	}
}

func TestRRF_ZeroWeightSideOnlyOrdersByOtherSide(t *testing.T) {
	// Given: all weight on vectors
	f := NewRRF(0)

	// When: fusing
	results := f.Fuse(lexicalResults("x", "y"), vectorResults("b", "a"), Weights{BM25: 0, Vector: 1})

	// Then: vector order leads and lexical-only chunks score zero
	require.Len(t, results, 4)
	assert.Equal(t, []string{"b", "a"}, fusedIDs(results[:2]))
	assert.Zero(t, results[2].RRFScore)
	assert.Equal(t, []string{"x", "y"}, fusedIDs(results[2:]))
}

func TestRRF_IsDeterministic(t *testing.T) {
	f := NewRRF(10)
	lex := lexicalResults("p", "q", "r", "s")
	vec := vectorResults("s", "r", "q", "p")

	first := f.Fuse(lex, vec, DefaultWeights())
	for i := 0; i < 20; i++ {
		again := f.Fuse(lex, vec, DefaultWeights())
		assert.Equal(t, fusedIDs(first), fusedIDs(again))
	}
	// Mirrored ranks give equal scores, so ids decide within each pair.
	assert.Equal(t, []string{"p", "s", "q", "r"}, fusedIDs(first))
}

func TestRRF_EmptyInputs(t *testing.T) {
	results := NewRRF(0).Fuse(nil, nil, DefaultWeights())

	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRRF_SingleList(t *testing.T) {
	results := NewRRF(0).Fuse(nil, vectorResults("a", "b"), DefaultWeights())

	require.Equal(t, []string{"a", "b"}, fusedIDs(results))
	assert.InDelta(t, 0.5/61, results[0].RRFScore, 1e-12)
}

func TestNewRRF_DefaultsNonPositive(t *testing.T) {
	assert.Equal(t, DefaultRRFConstant, NewRRF(0).K)
	assert.Equal(t, DefaultRRFConstant, NewRRF(-5).K)
	assert.Equal(t, 20, NewRRF(20).K)
}
