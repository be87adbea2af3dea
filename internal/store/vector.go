package store

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"strings"
)

// encodeVector packs v as little-endian float32s for the embedding column.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 0, 4*len(v))
	for _, f := range v {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, 0, len(b)/4)
	for off := 0; off < len(b); off += 4 {
		v = append(v, math.Float32frombits(binary.LittleEndian.Uint32(b[off:])))
	}
	return v, nil
}

// cosine is 0 when either side has no magnitude.
func cosine(a, b []float32) float64 {
	var ab, aa, bb float64
	for i, x := range a {
		y := float64(b[i])
		ab += float64(x) * y
		aa += float64(x) * float64(x)
		bb += y * y
	}
	if aa == 0 || bb == 0 {
		return 0
	}
	return ab / math.Sqrt(aa*bb)
}

// toUnit scales v to length 1. Zero vectors are left alone.
func toUnit(v []float32) {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	if sq == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sq))
	for i := range v {
		v[i] *= inv
	}
}

func (r *LexicalResult) rankKey() (float64, string) { return r.Score, r.ChunkID }
func (r *VectorResult) rankKey() (float64, string)  { return r.Score, r.ChunkID }

type ranked interface {
	rankKey() (float64, string)
}

// sortByScore orders hits best first, ties by chunk id.
func sortByScore[T ranked](hits []T) {
	slices.SortStableFunc(hits, func(a, b T) int {
		sa, ida := a.rankKey()
		sb, idb := b.rankKey()
		if c := cmp.Compare(sb, sa); c != 0 {
			return c
		}
		return strings.Compare(ida, idb)
	})
}

// placeholders returns n comma separated "?" markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
