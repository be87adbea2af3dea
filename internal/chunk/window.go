package chunk

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/Aman-CERP/pdfrag/internal/errors"
)

// Span is a half-open rune range [Start, End) of the source text.
type Span struct {
	Start int
	End   int
}

// WindowChunker cuts text into windows of Size runes that overlap by
// Overlap runes. When the text left after a window is no longer than
// Overlap, it is folded into that window, so the final chunk can be up to
// Size+Overlap runes long.
type WindowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker validates size and overlap.
func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size <= 0 || overlap <= 0 || overlap >= size {
		return nil, errors.ChunkConfigError(fmt.Sprintf(
			"invalid chunking: size=%d overlap=%d", size, overlap))
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

// Size returns the window size in runes.
func (c *WindowChunker) Size() int { return c.size }

// Overlap returns the overlap in runes.
func (c *WindowChunker) Overlap() int { return c.overlap }

// Spans returns the window boundaries for a text of n runes.
func (c *WindowChunker) Spans(n int) []Span {
	if n <= 0 {
		return nil
	}

	step := c.size - c.overlap
	spans := make([]Span, 0, n/step+1)
	for start := 0; ; start += step {
		end := start + c.size
		if end >= n || n-end <= c.overlap {
			end = n
		}
		spans = append(spans, Span{Start: start, End: end})
		if end == n {
			return spans
		}
	}
}

// Split returns the passages of text in order. Empty text yields nil.
func (c *WindowChunker) Split(text string) []string {
	runes := []rune(text)
	spans := c.Spans(len(runes))
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = string(runes[s.Start:s.End])
	}
	return out
}

// Chunk splits doc into chunks with deterministic ids and metadata.
func (c *WindowChunker) Chunk(ctx context.Context, doc *Document) ([]*Chunk, error) {
	if doc == nil {
		return nil, errors.ValidationError("document is nil", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runes := []rune(doc.Text)
	spans := c.Spans(len(runes))
	chunks := make([]*Chunk, 0, len(spans))

	for i, s := range spans {
		meta := map[string]string{
			MetaChunkIndex:  strconv.Itoa(i),
			MetaTotalChunks: strconv.Itoa(len(spans)),
		}
		if doc.Source != "" {
			meta[MetaSource] = doc.Source
		}
		if len(doc.PageOffsets) > 0 {
			meta[MetaPage] = strconv.Itoa(pageAt(doc.PageOffsets, s.Start))
			meta[MetaPageEnd] = strconv.Itoa(pageAt(doc.PageOffsets, s.End-1))
		}

		chunks = append(chunks, &Chunk{
			ID:         ID(doc.ID, i),
			DocumentID: doc.ID,
			Index:      i,
			Offset:     s.Start,
			Content:    string(runes[s.Start:s.End]),
			Metadata:   meta,
		})
	}

	return chunks, nil
}

// pageAt returns the 1-based page containing rune offset off.
func pageAt(pageOffsets []int, off int) int {
	i := sort.Search(len(pageOffsets), func(i int) bool { return pageOffsets[i] > off })
	if i == 0 {
		return 1
	}
	return i
}

// Reconstruct rebuilds the source text from chunks ordered by Index,
// dropping each chunk's overlap with its successor.
func Reconstruct(chunks []*Chunk) string {
	var out []rune
	for i, ch := range chunks {
		runes := []rune(ch.Content)
		if i+1 < len(chunks) {
			keep := chunks[i+1].Offset - ch.Offset
			if keep < len(runes) {
				runes = runes[:keep]
			}
		}
		out = append(out, runes...)
	}
	return string(out)
}
