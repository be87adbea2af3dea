package chunk

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/pdfrag/internal/errors"
)

func mustChunker(t *testing.T, size, overlap int) *WindowChunker {
	t.Helper()
	c, err := NewWindowChunker(size, overlap)
	require.NoError(t, err)
	return c
}

// randomText returns n runes of mixed ASCII and multi-byte text.
func randomText(seed int64, n int) string {
	alphabet := []rune("abcdefghij klmnop qrstuv wxyz ÄÖÜ é ∑ 漢字 .,;")
	rng := rand.New(rand.NewSource(seed))
	out := make([]rune, n)
	for i := range out {
		out[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(out)
}

// =============================================================================
// Configuration
// =============================================================================

func TestNewWindowChunker_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
		{"zero size", 0, 0},
		{"negative size", -10, 5},
		{"zero overlap", 100, 0},
		{"negative overlap", 100, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewWindowChunker(tt.size, tt.overlap)

			require.Error(t, err)
			assert.Nil(t, c)
			assert.Equal(t, errors.KindConfiguration, errors.KindOf(err))
			assert.Equal(t, errors.ErrCodeChunkConfig, errors.GetCode(err))
		})
	}
}

// =============================================================================
// Window boundaries
// =============================================================================

func TestSpans_DefaultConfig(t *testing.T) {
	c := mustChunker(t, DefaultChunkSize, DefaultOverlap)

	tests := []struct {
		name string
		n    int
		want []Span
	}{
		{"empty", 0, nil},
		{"short document", 800, []Span{{0, 800}}},
		{"exactly one window", 1500, []Span{{0, 1500}}},
		{"tail within overlap folds", 1800, []Span{{0, 1800}}},
		{"tail beyond overlap splits", 1801, []Span{{0, 1500}, {1200, 1801}}},
		{"4000 characters", 4000, []Span{{0, 1500}, {1200, 2700}, {2400, 4000}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Spans(tt.n))
		})
	}
}

func TestSpans_AdjacentWindowsOverlapExactly(t *testing.T) {
	c := mustChunker(t, 100, 20)

	spans := c.Spans(1000)

	require.Greater(t, len(spans), 2)
	for i := 0; i+1 < len(spans); i++ {
		assert.Equal(t, 100, spans[i].End-spans[i].Start, "non-final windows are full size")
		assert.Equal(t, 20, spans[i].End-spans[i+1].Start, "adjacent windows share the overlap")
		assert.Less(t, spans[i].Start, spans[i+1].Start)
	}
	last := spans[len(spans)-1]
	assert.Equal(t, 1000, last.End)
	assert.LessOrEqual(t, last.End-last.Start, 120)
	assert.Greater(t, last.End-last.Start, 0)
}

func TestSplit_EmptyInputYieldsNothing(t *testing.T) {
	c := mustChunker(t, 10, 2)
	assert.Empty(t, c.Split(""))
}

func TestSplit_CountsRunesNotBytes(t *testing.T) {
	c := mustChunker(t, 4, 1)

	parts := c.Split("ÄÖÜéÄÖÜé")

	// 8 runes: [0,4) then [3,8), since the 1-rune tail folds into the second window
	require.Len(t, parts, 2)
	assert.Equal(t, "ÄÖÜé", parts[0])
	assert.Equal(t, "éÄÖÜé", parts[1])
}

// =============================================================================
// Chunk construction
// =============================================================================

func TestChunk_IDsAndMetadata(t *testing.T) {
	// Given: a 4000 character document with three pages
	c := mustChunker(t, DefaultChunkSize, DefaultOverlap)
	doc := &Document{
		ID:          "paper1",
		Source:      "paper1.pdf",
		Text:        strings.Repeat("a", 4000),
		PageOffsets: []int{0, 1300, 2600},
	}

	// When: chunking
	chunks, err := c.Chunk(context.Background(), doc)

	// Then: three chunks with deterministic ids and page ranges
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, "paper1_chunk_0", chunks[0].ID)
	assert.Equal(t, "paper1_chunk_2", chunks[2].ID)
	for i, ch := range chunks {
		assert.Equal(t, "paper1", ch.DocumentID)
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, "paper1.pdf", ch.Metadata[MetaSource])
		assert.Equal(t, "3", ch.Metadata[MetaTotalChunks])
	}
	assert.Equal(t, []int{0, 1200, 2400}, []int{chunks[0].Offset, chunks[1].Offset, chunks[2].Offset})

	assert.Equal(t, "1", chunks[0].Metadata[MetaPage])
	assert.Equal(t, "2", chunks[0].Metadata[MetaPageEnd])
	assert.Equal(t, "1", chunks[1].Metadata[MetaPage])
	assert.Equal(t, "3", chunks[1].Metadata[MetaPageEnd])
	assert.Equal(t, "2", chunks[2].Metadata[MetaPage])
	assert.Equal(t, "3", chunks[2].Metadata[MetaPageEnd])
}

func TestChunk_NoPagesMeansNoPageMetadata(t *testing.T) {
	c := mustChunker(t, 50, 10)

	chunks, err := c.Chunk(context.Background(), &Document{ID: "d", Text: "hello world"})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.NotContains(t, chunks[0].Metadata, MetaPage)
	assert.NotContains(t, chunks[0].Metadata, MetaSource)
}

func TestChunk_EmptyDocument(t *testing.T) {
	c := mustChunker(t, 50, 10)

	chunks, err := c.Chunk(context.Background(), &Document{ID: "d"})

	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_NilDocument(t *testing.T) {
	c := mustChunker(t, 50, 10)

	_, err := c.Chunk(context.Background(), nil)

	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestChunk_CancelledContext(t *testing.T) {
	c := mustChunker(t, 50, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Chunk(ctx, &Document{ID: "d", Text: "text"})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestChunk_IsDeterministic(t *testing.T) {
	c := mustChunker(t, 120, 30)
	doc := &Document{ID: "d", Text: randomText(7, 5000)}

	first, err := c.Chunk(context.Background(), doc)
	require.NoError(t, err)
	second, err := c.Chunk(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// =============================================================================
// Coverage
// =============================================================================

func TestReconstruct_RebuildsOriginalText(t *testing.T) {
	configs := []struct{ size, overlap int }{
		{1500, 300}, {100, 1}, {100, 99}, {7, 3}, {2, 1},
	}
	lengths := []int{1, 2, 7, 99, 100, 101, 1499, 1500, 1801, 4000, 10007}

	for _, cfg := range configs {
		c := mustChunker(t, cfg.size, cfg.overlap)
		for _, n := range lengths {
			text := randomText(int64(n), n)
			chunks, err := c.Chunk(context.Background(), &Document{ID: "d", Text: text})
			require.NoError(t, err)

			assert.Equal(t, text, Reconstruct(chunks), "size=%d overlap=%d n=%d", cfg.size, cfg.overlap, n)
			for _, ch := range chunks {
				assert.NotEmpty(t, ch.Content)
				assert.LessOrEqual(t, utf8.RuneCountInString(ch.Content), cfg.size+cfg.overlap)
			}
		}
	}
}

func TestReconstruct_Empty(t *testing.T) {
	assert.Equal(t, "", Reconstruct(nil))
}
