package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"collapses whitespace", "Hybrid   search\n\n\tworks", "Hybrid search works"},
		{"trims ends", "  padded  ", "padded"},
		{"joins hyphenated breaks", "dense retrie-\nval models", "dense retrieval models"},
		{"keeps real hyphens", "state-of-the-art", "state-of-the-art"},
		{"keeps capitalised continuation", "Anti-\nBERT", "Anti- BERT"},
		{"drops page number lines", "end of page\n12\nnext page", "end of page next page"},
		{"keeps numbers inside text", "top 5 results", "top 5 results"},
		{"strips control characters", "a\x00b\x07c", "abc"},
		{"strips invalid utf8", "ok\xffok", "okok"},
		{"keeps unicode", "Größe 漢字 ∑", "Größe 漢字 ∑"},
		{"form feed is whitespace", "page one\fpage two", "page one page two"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.in))
		})
	}
}

func TestCleanPages_TracksPageOffsets(t *testing.T) {
	// Given: three pages, the middle one blank
	pages := []string{"First  page\n1", "   ", "Größe third"}

	// When: cleaning
	text, offsets := CleanPages(pages)

	// Then: pages are joined with one space and offsets count runes
	assert.Equal(t, "First page Größe third", text)
	assert.Equal(t, []int{0, 10, 11}, offsets)
	assert.Equal(t, 3, pageAt(offsets, 11))
	assert.Equal(t, 1, pageAt(offsets, 3))
}

func TestCleanPages_Empty(t *testing.T) {
	text, offsets := CleanPages(nil)

	assert.Equal(t, "", text)
	assert.Empty(t, offsets)
}
