package embed

import (
	"context"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/Aman-CERP/pdfrag/internal/errors"
)

const (
	StaticModelName  = "fnv-hash"
	StaticDimensions = 256

	wordWeight    = 0.7
	trigramWeight = 0.3
)

var stopWords = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(`a an and are as at be by for from in is it
		of on or that the this to was we with`) {
		set[w] = struct{}{}
	}
	return set
}()

// StaticEmbedder hashes words and character trigrams into a fixed number
// of buckets. It needs no network or model, is deterministic, and only
// captures lexical overlap.
type StaticEmbedder struct {
	maxChars int
	closed   atomic.Bool
}

var _ Embedder = (*StaticEmbedder)(nil)

func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{maxChars: DefaultMaxInputChars}
}

func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.closed.Load() {
		return nil, errors.InternalError("embedder is closed", nil)
	}
	if err := validate(texts, e.maxChars); err != nil {
		return nil, err
	}
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vecs[i] = hashVector(text)
	}
	return vecs, nil
}

func hashVector(text string) []float32 {
	v := make([]float32, StaticDimensions)
	for _, w := range contentWords(text) {
		v[bucket(w)] += wordWeight
	}

	var letters []rune
	for _, r := range strings.ToLower(text) {
		if isWordRune(r) {
			letters = append(letters, r)
		}
	}
	for i := 0; i+3 <= len(letters); i++ {
		v[bucket(string(letters[i:i+3]))] += trigramWeight
	}
	return unit(v)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// contentWords lowercases text, splits it into letter and digit runs and
// drops English stop words.
func contentWords(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !isWordRune(r) })
	kept := words[:0]
	for _, w := range words {
		if _, stop := stopWords[w]; !stop {
			kept = append(kept, w)
		}
	}
	return kept
}

func bucket(s string) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % StaticDimensions)
}

func (e *StaticEmbedder) Dimensions() int { return StaticDimensions }

// ModelID returns static:fnv-hash@256.
func (e *StaticEmbedder) ModelID() string {
	return FormatModelID(ProviderStatic, StaticModelName, StaticDimensions)
}

func (e *StaticEmbedder) Available(context.Context) bool { return !e.closed.Load() }

func (e *StaticEmbedder) Close() error {
	e.closed.Store(true)
	return nil
}
