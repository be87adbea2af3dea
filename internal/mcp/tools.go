package mcp

import (
	"github.com/Aman-CERP/pdfrag/internal/index"
)

// Tool names.
const (
	ToolSearchBM25     = "search_bm25"
	ToolSearchVector   = "search_vector"
	ToolSearchHybrid   = "search_hybrid"
	ToolIndexDocuments = "index_documents"
	ToolGetDocument    = "get_document"
	ToolIndexStatus    = "index_status"
)

// SearchInput defines the input schema for search_bm25 and search_vector.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query, at most 8192 bytes"`
	TopK  *int   `json:"top_k,omitempty" jsonschema:"number of results between 1 and the configured maximum, default search.default_top_k"`
}

// HybridSearchInput defines the input schema for search_hybrid.
type HybridSearchInput struct {
	Query        string   `json:"query" jsonschema:"the search query, at most 8192 bytes"`
	TopK         *int     `json:"top_k,omitempty" jsonschema:"number of results between 1 and the configured maximum, default search.default_top_k"`
	BM25Weight   *float64 `json:"bm25_weight,omitempty" jsonschema:"non-negative weight of the keyword ranking, default 0.5"`
	VectorWeight *float64 `json:"vector_weight,omitempty" jsonschema:"non-negative weight of the semantic ranking, default 0.5"`
}

// SearchOutput defines the output schema for the search tools.
type SearchOutput struct {
	Query   string               `json:"query"`
	Mode    string               `json:"mode"`
	Count   int                  `json:"count"`
	Results []SearchResultOutput `json:"results" jsonschema:"ranked passages, best first"`
}

// SearchResultOutput is one ranked passage.
type SearchResultOutput struct {
	ChunkID     string  `json:"chunk_id"`
	DocumentID  string  `json:"document_id"`
	Source      string  `json:"source,omitempty" jsonschema:"file name of the source document"`
	Page        string  `json:"page,omitempty" jsonschema:"page the passage starts on"`
	Snippet     string  `json:"snippet"`
	Content     string  `json:"content"`
	Score       float64 `json:"score" jsonschema:"ranking score for the search mode"`
	BM25Score   float64 `json:"bm25_score,omitempty"`
	BM25Rank    int     `json:"bm25_rank,omitempty"`
	VectorScore float64 `json:"vector_score,omitempty"`
	VectorRank  int     `json:"vector_rank,omitempty"`
	FusedScore  float64 `json:"fused_score,omitempty" jsonschema:"weighted reciprocal rank fusion score, hybrid only"`
}

// DocumentInput is a document supplied as text.
type DocumentInput struct {
	ID     string `json:"id" jsonschema:"stable document id"`
	Text   string `json:"text" jsonschema:"document text"`
	Source string `json:"source,omitempty" jsonschema:"source label, defaults to the id"`
}

// IndexDocumentsInput defines the input schema for index_documents.
// Exactly one of Paths and Documents is used.
type IndexDocumentsInput struct {
	Paths          []string        `json:"paths,omitempty" jsonschema:"PDF files or directories to index"`
	Documents      []DocumentInput `json:"documents,omitempty" jsonschema:"documents given as text"`
	ChunkSize      int             `json:"chunk_size,omitempty" jsonschema:"must match the index chunk size when given"`
	Overlap        int             `json:"overlap,omitempty" jsonschema:"must match the index chunk overlap when given"`
	EmbeddingModel string          `json:"embedding_model,omitempty" jsonschema:"must match the index embedding model id when given"`
}

// IndexDocumentsOutput defines the output schema for index_documents.
type IndexDocumentsOutput struct {
	RunID            string                  `json:"run_id"`
	DocumentsIndexed int                     `json:"documents_indexed"`
	ChunksIndexed    int                     `json:"chunks_indexed"`
	Documents        []index.IndexedDocument `json:"documents"`
	Failures         []index.Failure         `json:"failures"`
	DurationMS       int64                   `json:"duration_ms"`
}

// GetDocumentInput defines the input schema for get_document.
type GetDocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"id of an indexed document"`
}

// GetDocumentOutput defines the output schema for get_document.
type GetDocumentOutput struct {
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	ChunkCount int    `json:"chunk_count"`
	IngestedAt string `json:"ingested_at"`
	Text       string `json:"text"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Documents      int    `json:"documents"`
	Chunks         int    `json:"chunks"`
	IndexSizeBytes int64  `json:"index_size_bytes"`
	IndexPath      string `json:"index_path"`
	ModelID        string `json:"model_id"`
	Dimensions     int    `json:"dimensions"`
	ChunkSize      int    `json:"chunk_size"`
	ChunkOverlap   int    `json:"chunk_overlap"`
	Fusion         string `json:"fusion"`
	RRFConstant    int    `json:"rrf_constant"`
	SchemaVersion  int    `json:"schema_version"`
	CreatedAt      string `json:"created_at"`

	Queries *QueryStatsOutput `json:"queries,omitempty" jsonschema:"statistics for queries served since startup"`
}

// QueryStatsOutput summarizes the queries this server has answered.
type QueryStatsOutput struct {
	Total             int64            `json:"total"`
	Failed            int64            `json:"failed"`
	ZeroResults       int64            `json:"zero_results"`
	ByMode            map[string]int64 `json:"by_mode"`
	LatencyBuckets    map[string]int64 `json:"latency_buckets"`
	TopTerms          []string         `json:"top_terms,omitempty"`
	RecentZeroResults []string         `json:"recent_zero_results,omitempty"`
	Since             string           `json:"since"`
}
