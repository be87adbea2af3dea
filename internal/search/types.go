// Package search provides lexical, vector and hybrid retrieval over an
// IndexStore. Hybrid results are fused using weighted Reciprocal Rank
// Fusion (RRF).
package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/pdfrag/internal/config"
	"github.com/Aman-CERP/pdfrag/internal/errors"
)

// Mode selects which side of the index answers a query.
type Mode string

const (
	ModeBM25   Mode = "bm25"
	ModeVector Mode = "vector"
	ModeHybrid Mode = "hybrid"
)

// Query limits.
const (
	// MaxQueryBytes bounds query text length.
	MaxQueryBytes = 8192

	// SnippetRunes is the snippet length in runes.
	SnippetRunes = 300
)

// ParseMode parses a mode name. "lexical" is accepted for bm25 and an empty
// string means hybrid.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeHybrid):
		return ModeHybrid, nil
	case string(ModeBM25), "lexical", "keyword":
		return ModeBM25, nil
	case string(ModeVector), "semantic":
		return ModeVector, nil
	default:
		return "", errors.New(errors.ErrCodeInvalidQuery,
			fmt.Sprintf("unknown search mode %q (valid: bm25, vector, hybrid)", s), nil)
	}
}

// Weights configures the relative importance of lexical vs vector ranks in
// hybrid fusion. They are normalized to sum to 1 before use.
type Weights struct {
	BM25   float64
	Vector float64
}

// DefaultWeights returns equal weights.
func DefaultWeights() Weights {
	return Weights{BM25: 0.5, Vector: 0.5}
}

// Validate rejects negative weights and an all-zero pair.
func (w Weights) Validate() error {
	if w.BM25 < 0 || w.Vector < 0 {
		return errors.ValidationError(fmt.Sprintf(
			"weights must be non-negative (bm25=%g, vector=%g)", w.BM25, w.Vector), nil)
	}
	if w.BM25 == 0 && w.Vector == 0 {
		return errors.ValidationError("at least one weight must be positive", nil)
	}
	return nil
}

// Normalized returns the weights scaled to sum to 1.
func (w Weights) Normalized() Weights {
	sum := w.BM25 + w.Vector
	if sum <= 0 {
		return DefaultWeights()
	}
	return Weights{BM25: w.BM25 / sum, Vector: w.Vector / sum}
}

// Query is a single search request.
type Query struct {
	Text string
	Mode Mode
	// TopK is the number of results wanted. 0 uses the engine default.
	TopK int
	// Weights overrides the engine default weights in hybrid mode.
	Weights *Weights
}

// Validate checks the query against the limits in cfg and fills defaults.
func (q *Query) Validate(cfg EngineConfig) error {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return errors.New(errors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}
	if len(q.Text) > MaxQueryBytes {
		return errors.New(errors.ErrCodeQueryTooLong, fmt.Sprintf(
			"query is %d bytes, limit is %d", len(q.Text), MaxQueryBytes), nil)
	}

	if q.Mode == "" {
		q.Mode = ModeHybrid
	}
	mode, err := ParseMode(string(q.Mode))
	if err != nil {
		return err
	}
	q.Mode = mode

	if q.TopK == 0 {
		q.TopK = cfg.DefaultTopK
	}
	if q.TopK < 1 || q.TopK > cfg.MaxTopK {
		return errors.ValidationError(fmt.Sprintf(
			"top_k must be between 1 and %d, got %d", cfg.MaxTopK, q.TopK), nil)
	}

	if q.Weights != nil {
		if err := q.Weights.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Result is one ranked chunk.
type Result struct {
	ChunkID    string
	DocumentID string
	Source     string
	Snippet    string // First SnippetRunes runes of Content
	Content    string
	Metadata   map[string]string

	// Score is the ranking score for the query's mode: BM25 for bm25,
	// cosine similarity for vector and the fused score for hybrid.
	Score float64

	BM25Score float64
	BM25Rank  int // 1-indexed, 0 if absent
	VecScore  float64
	VecRank   int // 1-indexed, 0 if absent

	// FusedScore is the weighted RRF score. Hybrid only.
	FusedScore float64
}

// EngineConfig configures the engine.
type EngineConfig struct {
	DefaultTopK     int
	MaxTopK         int
	FetchMultiplier int
	DefaultWeights  Weights
	RRFConstant     int

	// Timeout bounds each store call. 0 disables it.
	Timeout time.Duration

	// Retry governs retries of transient store failures. Embedders retry on
	// their own.
	Retry errors.RetryConfig
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultTopK:     5,
		MaxTopK:         100,
		FetchMultiplier: 2,
		DefaultWeights:  DefaultWeights(),
		RRFConstant:     DefaultRRFConstant,
		Timeout:         30 * time.Second,
		Retry:           errors.DefaultRetryConfig(),
	}
}

// ConfigFromSettings builds an EngineConfig from loaded settings.
func ConfigFromSettings(cfg *config.Config) EngineConfig {
	return EngineConfig{
		DefaultTopK:     cfg.Search.DefaultTopK,
		MaxTopK:         cfg.Search.MaxTopK,
		FetchMultiplier: cfg.Search.FetchMultiplier,
		DefaultWeights:  Weights{BM25: cfg.Search.BM25Weight, Vector: cfg.Search.VectorWeight},
		RRFConstant:     cfg.Search.RRFConstant,
		Timeout:         cfg.Server.RequestTimeout,
		Retry:           cfg.RetryPolicy(),
	}.withDefaults()
}

// withDefaults fills zero fields from DefaultEngineConfig.
func (c EngineConfig) withDefaults() EngineConfig {
	d := DefaultEngineConfig()
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = d.DefaultTopK
	}
	if c.MaxTopK <= 0 {
		c.MaxTopK = d.MaxTopK
	}
	if c.FetchMultiplier <= 0 {
		c.FetchMultiplier = d.FetchMultiplier
	}
	if c.DefaultWeights.BM25 == 0 && c.DefaultWeights.Vector == 0 {
		c.DefaultWeights = d.DefaultWeights
	}
	if c.RRFConstant <= 0 {
		c.RRFConstant = d.RRFConstant
	}
	return c
}
