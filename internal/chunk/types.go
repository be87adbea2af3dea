// Package chunk splits extracted document text into fixed-size,
// overlapping passages.
package chunk

import (
	"context"
	"fmt"
)

// Chunk size defaults, in characters.
const (
	DefaultChunkSize = 1500
	DefaultOverlap   = 300
)

// Metadata keys attached to every chunk.
const (
	MetaSource      = "source"
	MetaChunkIndex  = "chunk_index"
	MetaTotalChunks = "total_chunks"
	MetaPage        = "page"
	MetaPageEnd     = "page_end"
)

// Document is the input to a Chunker.
type Document struct {
	ID     string // Stable document identifier
	Source string // Original file name or URI
	Text   string // Cleaned text

	// PageOffsets holds the rune offset at which each page starts, in
	// order. Empty when page boundaries are unknown.
	PageOffsets []int
}

// Chunk is a passage of a document, the unit of indexing.
type Chunk struct {
	ID         string            // {document_id}_chunk_{index}
	DocumentID string            // Parent document
	Index      int               // 0-based ordinal within the document
	Offset     int               // Rune offset of Content in Document.Text
	Content    string            // Passage text
	Metadata   map[string]string // source, chunk_index, total_chunks, page
}

// Chunker splits documents into chunks.
type Chunker interface {
	Chunk(ctx context.Context, doc *Document) ([]*Chunk, error)
}

// ID returns the chunk id for a document ordinal.
func ID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}
