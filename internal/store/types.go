// Package store persists chunks, their embeddings and a lexical index, and
// answers lexical (BM25) and vector (cosine) queries over them.
package store

import (
	"context"
	"time"
)

// SchemaVersion is the on-disk layout version written to index_meta.
const SchemaVersion = 1

// FusionRRF is the only fusion policy: weighted reciprocal-rank fusion.
const FusionRRF = "rrf"

// DefaultExactSearchThreshold is the corpus size up to which vector search
// scans every embedding instead of consulting the HNSW graph.
const DefaultExactSearchThreshold = 5000

// DefaultReadConns is the size of the SQLite read pool.
const DefaultReadConns = 4

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// index_meta keys
const (
	metaSchemaVersion = "schema_version"
	metaModelID       = "embedding_model"
	metaDimensions    = "dimensions"
	metaChunkSize     = "chunk_size"
	metaChunkOverlap  = "chunk_overlap"
	metaFusion        = "fusion"
	metaRRFConstant   = "rrf_k"
	metaCreatedAt     = "created_at"
)

// Document is an ingested source document.
type Document struct {
	ID         string
	Source     string // File name or caller-supplied source label
	Text       string // Full cleaned text; empty in ListDocuments results
	ChunkCount int
	IngestedAt time.Time
}

// Chunk is the persisted form of a passage: lexical text and vector
// travel together and are written atomically.
type Chunk struct {
	ID         string
	DocumentID string
	Ordinal    int // Position within the document, 0-based
	Offset     int // Rune offset into the document text
	Content    string
	Metadata   map[string]string
	Embedding  []float32
}

// LexicalResult is one BM25 hit. Higher scores are better.
type LexicalResult struct {
	ChunkID    string
	DocumentID string
	Score      float64
}

// VectorResult is one nearest-neighbour hit, by decreasing cosine similarity.
type VectorResult struct {
	ChunkID    string
	DocumentID string
	Score      float64 // Cosine similarity in [-1, 1]
}

// IndexMeta records the configuration an index was built with. Queries and
// later ingests must agree with it.
type IndexMeta struct {
	SchemaVersion int
	ModelID       string // Embedding space, provider:model@dims
	Dimensions    int
	ChunkSize     int
	ChunkOverlap  int
	Fusion        string
	RRFConstant   int
	CreatedAt     time.Time
}

// Stats summarizes index contents.
type Stats struct {
	Documents int
	Chunks    int
	SizeBytes int64 // On-disk size; 0 for in-memory stores
	Path      string
}

// IndexStore is the dual lexical/vector index.
// Implementations are safe for concurrent use. A reader sees a chunk either
// entirely before or entirely after an upsert.
type IndexStore interface {
	// Upsert inserts or replaces one chunk, lexical row and vector together.
	Upsert(ctx context.Context, chunk *Chunk) error

	// UpsertChunks upserts chunks in one transaction.
	UpsertChunks(ctx context.Context, chunks []*Chunk) error

	// UpsertDocument inserts or replaces a document record.
	UpsertDocument(ctx context.Context, doc *Document) error

	// DeleteByDocument removes a document and all its chunks, returning
	// the number of chunks removed.
	DeleteByDocument(ctx context.Context, documentID string) (int, error)

	// SearchLexical ranks chunks by BM25 against query.
	SearchLexical(ctx context.Context, query string, topK int) ([]*LexicalResult, error)

	// SearchVector ranks chunks by cosine similarity to vector.
	SearchVector(ctx context.Context, vector []float32, topK int) ([]*VectorResult, error)

	// GetChunks returns the chunks with the given ids, in id order of the
	// request. Unknown ids are skipped.
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)

	// GetDocument returns a document with its full text.
	GetDocument(ctx context.Context, id string) (*Document, error)

	// ListDocuments returns all documents without their text, by id.
	ListDocuments(ctx context.Context) ([]*Document, error)

	// Stats reports document and chunk counts.
	Stats(ctx context.Context) (*Stats, error)

	// Meta returns the configuration recorded at index creation.
	Meta() IndexMeta

	Close() error
}

// Options configures Open.
type Options struct {
	// Backend is "sqlite" (default) or "memory".
	Backend string

	// Path is the SQLite file. Empty or ":memory:" opens a private
	// in-memory database.
	Path string

	// Meta is the expected configuration. For a new index it is recorded;
	// for an existing one every non-zero field must match.
	Meta IndexMeta

	// ReadOnly refuses to create a missing index.
	ReadOnly bool

	// ExactSearchThreshold: see DefaultExactSearchThreshold.
	ExactSearchThreshold int

	// CacheMB sizes the SQLite page cache.
	CacheMB int

	// ReadConns sizes the SQLite read pool. Zero means DefaultReadConns.
	ReadConns int
}
