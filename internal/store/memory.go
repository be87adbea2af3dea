package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"

	"github.com/Aman-CERP/pdfrag/internal/errors"
)

const (
	// ProseTokenizerName is the bleve tokenizer that mirrors Tokenize.
	ProseTokenizerName = "pdfrag_prose"

	// ProseStopFilterName drops DefaultStopWords.
	ProseStopFilterName = "pdfrag_stop"

	// ProseAnalyzerName combines the two.
	ProseAnalyzerName = "pdfrag_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(ProseTokenizerName, proseTokenizerConstructor)
	_ = registry.RegisterTokenFilter(ProseStopFilterName, proseStopFilterConstructor)
}

// MemoryStore is an IndexStore held entirely in memory: bleve for BM25 and
// an HNSW graph for vectors. Nothing survives Close.
//
// One RWMutex makes each upsert atomic to readers, since the bleve index, the
// graph and the chunk map cannot be swapped together any other way. Readers
// share it. A writer holds it for in-memory updates of one batch and does
// no I/O under it, so reads wait at most that long. Use SQLiteStore where
// long writes must overlap searches.
type MemoryStore struct {
	mu             sync.RWMutex
	lexical        bleve.Index
	graph          *vectorGraph
	chunks         map[string]*Chunk
	docs           map[string]*Document
	meta           IndexMeta
	stopWords      map[string]struct{}
	exactThreshold int
	closed         bool
}

// Verify interface implementation at compile time
var _ IndexStore = (*MemoryStore)(nil)

// bleveChunk is the document shape indexed in bleve.
type bleveChunk struct {
	Content string `json:"content"`
}

// NewMemoryStore creates an empty in-memory index for opts.Meta.
func NewMemoryStore(opts Options) (*MemoryStore, error) {
	meta, err := prepareNewMeta(opts.Meta)
	if err != nil {
		return nil, err
	}

	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, errors.InternalError("failed to create index mapping", err)
	}
	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, errors.InternalError("failed to create in-memory index", err)
	}

	threshold := opts.ExactSearchThreshold
	if threshold <= 0 {
		threshold = DefaultExactSearchThreshold
	}

	return &MemoryStore{
		lexical:        idx,
		graph:          newVectorGraph(meta.Dimensions),
		chunks:         make(map[string]*Chunk),
		docs:           make(map[string]*Document),
		meta:           meta,
		stopWords:      BuildStopWordMap(DefaultStopWords),
		exactThreshold: threshold,
	}, nil
}

// createIndexMapping creates the bleve mapping with the prose analyzer and
// BM25 scoring.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(ProseAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     ProseTokenizerName,
		"token_filters": []string{ProseStopFilterName},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = ProseAnalyzerName
	indexMapping.ScoringModel = "bm25"
	return indexMapping, nil
}

// Upsert inserts or replaces one chunk.
func (m *MemoryStore) Upsert(ctx context.Context, chunk *Chunk) error {
	return m.UpsertChunks(ctx, []*Chunk{chunk})
}

// UpsertChunks inserts or replaces chunks as one bleve batch.
func (m *MemoryStore) UpsertChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if c == nil || c.ID == "" || c.DocumentID == "" {
			return errors.ValidationError("chunk needs an id and a document id", nil)
		}
		if len(c.Embedding) != m.meta.Dimensions {
			return errors.New(errors.ErrCodeDimensionMismatch, fmt.Sprintf(
				"chunk %s has %d dimensions, index has %d", c.ID, len(c.Embedding), m.meta.Dimensions), nil)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Copies are made before taking the lock.
	stored := make([]*Chunk, len(chunks))
	for i, c := range chunks {
		cp := *c
		cp.Embedding = append([]float32(nil), c.Embedding...)
		cp.Metadata = copyMetadata(c.Metadata)
		stored[i] = &cp
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}

	batch := m.lexical.NewBatch()
	for _, c := range stored {
		if err := batch.Index(c.ID, bleveChunk{Content: c.Content}); err != nil {
			return errors.InternalError("failed to index chunk "+c.ID, err)
		}
	}
	if err := m.lexical.Batch(batch); err != nil {
		return errors.InternalError("failed to execute batch", err)
	}

	for _, c := range stored {
		m.chunks[c.ID] = c
		m.graph.Add(c.ID, c.Embedding)
	}
	return nil
}

// UpsertDocument inserts or replaces a document record.
func (m *MemoryStore) UpsertDocument(_ context.Context, doc *Document) error {
	if doc == nil || doc.ID == "" {
		return errors.ValidationError("document needs an id", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}

	stored := *doc
	if stored.IngestedAt.IsZero() {
		stored.IngestedAt = time.Now().UTC()
	}
	m.docs[doc.ID] = &stored
	return nil
}

// DeleteByDocument removes a document and its chunks.
func (m *MemoryStore) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errClosed
	}

	var ids []string
	for id, c := range m.chunks {
		if c.DocumentID == documentID {
			ids = append(ids, id)
		}
	}

	if len(ids) > 0 {
		batch := m.lexical.NewBatch()
		for _, id := range ids {
			batch.Delete(id)
		}
		if err := m.lexical.Batch(batch); err != nil {
			return 0, errors.InternalError("failed to delete chunks", err)
		}
		for _, id := range ids {
			delete(m.chunks, id)
		}
		m.graph.Delete(ids...)
	}
	delete(m.docs, documentID)
	return len(ids), nil
}

// SearchLexical runs a bleve match query (terms ORed) scored by BM25.
func (m *MemoryStore) SearchLexical(ctx context.Context, query string, topK int) ([]*LexicalResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed
	}
	if topK <= 0 || len(analyze(query, m.stopWords)) == 0 {
		return []*LexicalResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = topK

	res, err := m.lexical.SearchInContext(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.New(errors.ErrCodeSearchFailed, "lexical search failed", err)
	}

	results := make([]*LexicalResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		c, ok := m.chunks[hit.ID]
		if !ok {
			continue
		}
		results = append(results, &LexicalResult{
			ChunkID:    hit.ID,
			DocumentID: c.DocumentID,
			Score:      hit.Score,
		})
	}
	sortByScore(results)
	return results, nil
}

// SearchVector ranks chunks by cosine similarity, exactly for small corpora
// and via rescored HNSW candidates for large ones.
func (m *MemoryStore) SearchVector(ctx context.Context, vector []float32, topK int) ([]*VectorResult, error) {
	if len(vector) != m.meta.Dimensions {
		return nil, errors.New(errors.ErrCodeDimensionMismatch, fmt.Sprintf(
			"query vector has %d dimensions, index has %d", len(vector), m.meta.Dimensions), nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed
	}
	if topK <= 0 || len(m.chunks) == 0 {
		return []*VectorResult{}, nil
	}

	var candidates []string
	if len(m.chunks) <= m.exactThreshold || topK >= len(m.chunks) {
		candidates = make([]string, 0, len(m.chunks))
		for id := range m.chunks {
			candidates = append(candidates, id)
		}
	} else {
		candidates = m.graph.Candidates(vector, topK)
	}

	results := make([]*VectorResult, 0, len(candidates))
	for _, id := range candidates {
		c, ok := m.chunks[id]
		if !ok {
			continue
		}
		results = append(results, &VectorResult{
			ChunkID:    id,
			DocumentID: c.DocumentID,
			Score:      cosine(vector, c.Embedding),
		})
	}

	sortByScore(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// GetChunks returns copies of the requested chunks in request order.
func (m *MemoryStore) GetChunks(_ context.Context, ids []string) ([]*Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed
	}

	out := make([]*Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.chunks[id]; ok {
			cp := *c
			cp.Metadata = copyMetadata(c.Metadata)
			out = append(out, &cp)
		}
	}
	return out, nil
}

// GetDocument returns a copy of a document.
func (m *MemoryStore) GetDocument(_ context.Context, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed
	}

	d, ok := m.docs[id]
	if !ok {
		return nil, errors.NotFoundError(fmt.Sprintf("document %q is not indexed", id))
	}
	cp := *d
	return &cp, nil
}

// ListDocuments returns all documents without text, by id.
func (m *MemoryStore) ListDocuments(_ context.Context) ([]*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed
	}

	docs := make([]*Document, 0, len(m.docs))
	for _, d := range m.docs {
		cp := *d
		cp.Text = ""
		docs = append(docs, &cp)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Stats reports document and chunk counts.
func (m *MemoryStore) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed
	}
	return &Stats{Documents: len(m.docs), Chunks: len(m.chunks), Path: ":memory:"}, nil
}

// Meta returns the configuration the store was created with.
func (m *MemoryStore) Meta() IndexMeta {
	return m.meta
}

// Close releases the bleve index. Idempotent.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.chunks = nil
	m.docs = nil
	return m.lexical.Close()
}

func copyMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// proseTokenizerConstructor creates the bleve tokenizer.
func proseTokenizerConstructor(_ map[string]interface{}, _ *registry.Cache) (analysis.Tokenizer, error) {
	return &proseTokenizer{}, nil
}

// proseTokenizer emits the same tokens as Tokenize, with byte offsets.
type proseTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *proseTokenizer) Tokenize(input []byte) analysis.TokenStream {
	var (
		result analysis.TokenStream
		pos    = 1
		start  = -1
	)

	emit := func(end int) {
		term := []rune(string(input[start:end]))
		if len(term) >= MinTokenLength {
			for i, r := range term {
				term[i] = unicode.ToLower(r)
			}
			result = append(result, &analysis.Token{
				Term:     []byte(string(term)),
				Start:    start,
				End:      end,
				Position: pos,
				Type:     analysis.AlphaNumeric,
			})
			pos++
		}
		start = -1
	}

	for i := 0; i < len(input); {
		r, size := utf8.DecodeRune(input[i:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
		} else if start >= 0 {
			emit(i)
		}
		i += size
	}
	if start >= 0 {
		emit(len(input))
	}
	return result
}

// proseStopFilterConstructor creates the stop word filter.
func proseStopFilterConstructor(_ map[string]interface{}, _ *registry.Cache) (analysis.TokenFilter, error) {
	return &proseStopFilter{stopWords: BuildStopWordMap(DefaultStopWords)}, nil
}

type proseStopFilter struct {
	stopWords map[string]struct{}
}

// Filter implements analysis.TokenFilter.
func (f *proseStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if _, isStop := f.stopWords[string(token.Term)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
