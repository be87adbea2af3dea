// Package embed turns text into dense vectors.
package embed

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Aman-CERP/pdfrag/internal/errors"
)

const (
	DefaultBatchSize     = 32
	MaxBatchSize         = 256
	DefaultMaxInputChars = 8192
	// DefaultTimeout bounds one request attempt, not a whole batch.
	DefaultTimeout = 60 * time.Second
)

// Embedder maps text into one embedding space. Implementations are safe
// for concurrent use and return unit-length vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per text, in input order. A single bad
	// text fails the whole batch before any work is done.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// ModelID names the space as provider:model@dims. Vectors from
	// different ids must never be compared.
	ModelID() string
	Available(ctx context.Context) bool
	Close() error
}

// FormatModelID builds a ModelID.
func FormatModelID(provider ProviderType, model string, dims int) string {
	return string(provider) + ":" + model + "@" + fmt.Sprint(dims)
}

// validate rejects blank texts and texts longer than maxChars runes.
// Batch failures carry the offending index as a detail.
func validate(texts []string, maxChars int) error {
	for i, text := range texts {
		var err *errors.Error
		switch n := utf8.RuneCountInString(text); {
		case strings.TrimSpace(text) == "":
			err = errors.EmbeddingInputError("cannot embed empty text", nil)
		case maxChars > 0 && n > maxChars:
			err = errors.EmbeddingInputError(
				fmt.Sprintf("text is %d characters, limit is %d", n, maxChars), nil).
				WithDetail("length", fmt.Sprint(n))
		default:
			continue
		}
		if len(texts) > 1 {
			err = err.WithDetail("index", fmt.Sprint(i))
		}
		return err
	}
	return nil
}

// unit scales v in place to length 1. Zero vectors are left alone.
func unit(v []float32) []float32 {
	var ss float64
	for _, x := range v {
		ss += float64(x) * float64(x)
	}
	if ss == 0 {
		return v
	}
	inv := 1 / math.Sqrt(ss)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
