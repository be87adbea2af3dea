package search

import (
	"cmp"
	"slices"

	"github.com/Aman-CERP/pdfrag/internal/store"
)

// DefaultRRFConstant damps the lead of top ranks in RRF.
const DefaultRRFConstant = 60

// FusedResult is one chunk after fusion. Ranks are 1-based; 0 means the
// chunk was absent from that list.
type FusedResult struct {
	ChunkID    string
	DocumentID string
	RRFScore   float64
	BM25Score  float64
	BM25Rank   int
	VecScore   float64
	VecRank    int
}

// InBothLists reports whether both rankings returned the chunk.
func (r *FusedResult) InBothLists() bool {
	return r.BM25Rank > 0 && r.VecRank > 0
}

// RRF is weighted Reciprocal Rank Fusion:
//
//	score(c) = w_bm25/(K + rank_bm25(c)) + w_vec/(K + rank_vec(c))
//
// with the weights normalized to sum to 1 and a missing rank adding 0.
type RRF struct {
	K int
}

// NewRRF returns fusion with constant k, or DefaultRRFConstant if k <= 0.
func NewRRF(k int) *RRF {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRF{K: k}
}

// Fuse merges the lists, ordered by score descending then chunk id, so
// equal inputs always give the same order.
func (f *RRF) Fuse(lexical []*store.LexicalResult, vec []*store.VectorResult, weights Weights) []*FusedResult {
	w := weights.Normalized()
	byID := make(map[string]*FusedResult, len(lexical)+len(vec))
	out := make([]*FusedResult, 0, len(lexical)+len(vec))

	entry := func(chunkID, docID string) *FusedResult {
		r, ok := byID[chunkID]
		if !ok {
			r = &FusedResult{ChunkID: chunkID, DocumentID: docID}
			byID[chunkID] = r
			out = append(out, r)
		}
		return r
	}
	contrib := func(weight float64, rank int) float64 {
		return weight / float64(f.K+rank)
	}

	for i, l := range lexical {
		r := entry(l.ChunkID, l.DocumentID)
		r.BM25Rank, r.BM25Score = i+1, l.Score
		r.RRFScore += contrib(w.BM25, i+1)
	}
	for i, v := range vec {
		r := entry(v.ChunkID, v.DocumentID)
		r.VecRank, r.VecScore = i+1, v.Score
		r.RRFScore += contrib(w.Vector, i+1)
	}

	slices.SortFunc(out, func(a, b *FusedResult) int {
		if c := cmp.Compare(b.RRFScore, a.RRFScore); c != 0 {
			return c
		}
		return cmp.Compare(a.ChunkID, b.ChunkID)
	})
	return out
}
