package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/pdfrag/internal/embed"
	"github.com/Aman-CERP/pdfrag/internal/errors"
	"github.com/Aman-CERP/pdfrag/internal/store"
	"github.com/Aman-CERP/pdfrag/internal/telemetry"
)

// Engine answers lexical, vector and hybrid queries over one index.
// It is safe for concurrent use.
type Engine struct {
	store    store.IndexStore
	embedder embed.Embedder
	config   EngineConfig
	fusion   *RRF
	logger   *slog.Logger
	metrics  *telemetry.QueryMetrics
}

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New(errors.ErrCodeInternal, "nil dependency", nil)

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for query events. Defaults to slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records every query in m.
func WithMetrics(m *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates a search engine over st, embedding queries with embedder.
// The embedder must produce vectors in the index's embedding space, and
// fusion uses the RRF constant recorded in the index.
func NewEngine(
	st store.IndexStore,
	embedder embed.Embedder,
	config EngineConfig,
	opts ...EngineOption,
) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: index store is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}

	meta := st.Meta()
	if meta.ModelID != "" && meta.ModelID != embedder.ModelID() {
		return nil, errors.EmbeddingSpaceMismatchError(meta.ModelID, embedder.ModelID())
	}

	config = config.withDefaults()
	k := config.RRFConstant
	if meta.RRFConstant > 0 {
		k = meta.RRFConstant
	}

	e := &Engine{
		store:    st,
		embedder: embedder,
		config:   config,
		fusion:   NewRRF(k),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the effective engine configuration.
func (e *Engine) Config() EngineConfig {
	return e.config
}

// Search validates q and runs it in its mode. Any embedder or store failure
// fails the whole request with that failure's kind; hybrid never degrades to
// a single side.
func (e *Engine) Search(ctx context.Context, q Query) ([]*Result, error) {
	start := time.Now()

	if err := q.Validate(e.config); err != nil {
		return nil, err
	}

	e.logger.Debug("search_started",
		slog.String("mode", string(q.Mode)),
		slog.Int("top_k", q.TopK),
		slog.Int("query_bytes", len(q.Text)))

	var (
		ranked []*FusedResult
		err    error
	)
	switch q.Mode {
	case ModeBM25:
		ranked, err = e.lexicalOnly(ctx, q)
	case ModeVector:
		ranked, err = e.vectorOnly(ctx, q)
	default:
		ranked, err = e.hybrid(ctx, q)
	}
	var results []*Result
	if err == nil {
		results, err = e.enrich(ctx, q.Mode, ranked)
	}
	if err != nil {
		e.logger.Warn("search_failed",
			slog.String("mode", string(q.Mode)),
			slog.String("kind", string(errors.KindOf(err))),
			slog.String("error", err.Error()))
		e.metrics.Record(telemetry.QueryEvent{
			Query:     q.Text,
			Mode:      string(q.Mode),
			Latency:   time.Since(start),
			ErrorKind: string(errors.KindOf(err)),
		})
		return nil, err
	}
	e.metrics.Record(telemetry.QueryEvent{
		Query:       q.Text,
		Mode:        string(q.Mode),
		ResultCount: len(results),
		Latency:     time.Since(start),
	})

	e.logger.Debug("search_complete",
		slog.String("mode", string(q.Mode)),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))
	return results, nil
}

func (e *Engine) lexicalOnly(ctx context.Context, q Query) ([]*FusedResult, error) {
	lex, err := e.searchLexical(ctx, q.Text, q.TopK)
	if err != nil {
		return nil, err
	}
	ranked := make([]*FusedResult, len(lex))
	for i, r := range lex {
		ranked[i] = &FusedResult{
			ChunkID:    r.ChunkID,
			DocumentID: r.DocumentID,
			BM25Score:  r.Score,
			BM25Rank:   i + 1,
		}
	}
	return ranked, nil
}

func (e *Engine) vectorOnly(ctx context.Context, q Query) ([]*FusedResult, error) {
	vec, err := e.embedQuery(ctx, q.Text)
	if err != nil {
		return nil, err
	}
	hits, err := e.searchVector(ctx, vec, q.TopK)
	if err != nil {
		return nil, err
	}
	ranked := make([]*FusedResult, len(hits))
	for i, r := range hits {
		ranked[i] = &FusedResult{
			ChunkID:    r.ChunkID,
			DocumentID: r.DocumentID,
			VecScore:   r.Score,
			VecRank:    i + 1,
		}
	}
	return ranked, nil
}

// hybrid runs both searches concurrently, each over-fetching
// FetchMultiplier * top_k, and fuses them.
func (e *Engine) hybrid(ctx context.Context, q Query) ([]*FusedResult, error) {
	weights := e.config.DefaultWeights
	if q.Weights != nil {
		weights = *q.Weights
	}
	fetch := q.TopK * e.config.FetchMultiplier

	var (
		lex []*store.LexicalResult
		vec []*store.VectorResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lex, err = e.searchLexical(gctx, q.Text, fetch)
		return err
	})
	g.Go(func() error {
		embedding, err := e.embedQuery(gctx, q.Text)
		if err != nil {
			return err
		}
		vec, err = e.searchVector(gctx, embedding, fetch)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := e.fusion.Fuse(lex, vec, weights)
	if len(fused) > q.TopK {
		fused = fused[:q.TopK]
	}
	return fused, nil
}

// embedQuery calls the embedder exactly once. Embedders apply their own
// retry policy and per-attempt deadline.
func (e *Engine) embedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embedder.Embed(ctx, text)
}

func (e *Engine) searchLexical(ctx context.Context, text string, topK int) ([]*store.LexicalResult, error) {
	return callWithRetry(ctx, e.config, errors.StoreUnavailableError, "lexical search",
		func(ctx context.Context) ([]*store.LexicalResult, error) {
			return e.store.SearchLexical(ctx, text, topK)
		})
}

func (e *Engine) searchVector(ctx context.Context, vec []float32, topK int) ([]*store.VectorResult, error) {
	return callWithRetry(ctx, e.config, errors.StoreUnavailableError, "vector search",
		func(ctx context.Context) ([]*store.VectorResult, error) {
			return e.store.SearchVector(ctx, vec, topK)
		})
}

// enrich fetches chunk content for ranked hits, keeping rank order. Chunks
// deleted since ranking are dropped.
func (e *Engine) enrich(ctx context.Context, mode Mode, ranked []*FusedResult) ([]*Result, error) {
	if len(ranked) == 0 {
		return []*Result{}, nil
	}

	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.ChunkID
	}

	chunks, err := callWithRetry(ctx, e.config, errors.StoreUnavailableError, "fetch chunks",
		func(ctx context.Context) ([]*store.Chunk, error) {
			return e.store.GetChunks(ctx, ids)
		})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*store.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	results := make([]*Result, 0, len(ranked))
	for _, r := range ranked {
		c, ok := byID[r.ChunkID]
		if !ok {
			continue
		}

		res := &Result{
			ChunkID:    r.ChunkID,
			DocumentID: c.DocumentID,
			Source:     c.Metadata["source"],
			Snippet:    Snippet(c.Content),
			Content:    c.Content,
			Metadata:   c.Metadata,
			BM25Score:  r.BM25Score,
			BM25Rank:   r.BM25Rank,
			VecScore:   r.VecScore,
			VecRank:    r.VecRank,
		}
		switch mode {
		case ModeBM25:
			res.Score = r.BM25Score
		case ModeVector:
			res.Score = r.VecScore
		default:
			res.Score = r.RRFScore
			res.FusedScore = r.RRFScore
		}
		results = append(results, res)
	}
	return results, nil
}

// Snippet returns the first SnippetRunes runes of content, with "..."
// appended when it was cut.
func Snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= SnippetRunes {
		return content
	}
	return string(runes[:SnippetRunes]) + "..."
}

// callWithRetry runs fn under the per-call timeout, retrying transient
// failures. A per-call timeout becomes the retryable error built by
// unavailable; cancellation of ctx itself is returned as is.
func callWithRetry[T any](
	ctx context.Context,
	cfg EngineConfig,
	unavailable func(string, error) *errors.Error,
	op string,
	fn func(context.Context) (T, error),
) (T, error) {
	onTimeout := func(err error) error {
		return unavailable(fmt.Sprintf("%s timed out after %s", op, cfg.Timeout), err)
	}
	return errors.RetryWithTimeout(ctx, cfg.Retry, cfg.Timeout, onTimeout, fn)
}
