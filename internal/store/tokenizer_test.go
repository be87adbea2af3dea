package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize_SplitsOnNonAlphanumerics(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{
			name:   "whitespace",
			input:  "hello world",
			expect: []string{"hello", "world"},
		},
		{
			name:   "punctuation and hyphens",
			input:  "self-attention, (multi-head).",
			expect: []string{"self", "attention", "multi", "head"},
		},
		{
			name:   "lowercases",
			input:  "BERT Transformer",
			expect: []string{"bert", "transformer"},
		},
		{
			name:   "drops single runes",
			input:  "a b cd 7 42",
			expect: []string{"cd", "42"},
		},
		{
			name:   "unicode letters",
			input:  "Straße café",
			expect: []string{"straße", "café"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Tokenize(tt.input))
		})
	}
}

func TestTokenize_EmptyInput(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("  -- ,, "))
}

func TestAnalyze_DropsStopWords(t *testing.T) {
	stop := BuildStopWordMap(DefaultStopWords)

	tokens := analyze("The attention of the model is key", stop)

	assert.Equal(t, []string{"attention", "model", "key"}, tokens)
}

func TestFTSMatchQuery_QuotesAndORsTerms(t *testing.T) {
	assert.Equal(t, `"neural" OR "networks"`, ftsMatchQuery([]string{"neural", "networks"}))
	assert.Equal(t, `"say ""hi"""`, ftsMatchQuery([]string{`say "hi"`}))
	assert.Equal(t, "", ftsMatchQuery(nil))
}

func TestProseTokenizer_MatchesTokenizeWithOffsets(t *testing.T) {
	// Given: text with mixed separators and unicode
	input := "Self-Attention in café!"
	tok := &proseTokenizer{}

	// When: tokenizing for bleve
	stream := tok.Tokenize([]byte(input))

	// Then: terms equal Tokenize and offsets point into the input
	terms := make([]string, len(stream))
	for i, token := range stream {
		terms[i] = string(token.Term)
		assert.Equal(t, i+1, token.Position)
	}
	assert.Equal(t, Tokenize(input), terms)

	require.Len(t, stream, 4)
	last := stream[3]
	assert.Equal(t, "café", input[last.Start:last.End])
}

func TestProseStopFilter_RemovesStopWords(t *testing.T) {
	tok := &proseTokenizer{}
	filter, err := proseStopFilterConstructor(nil, nil)
	require.NoError(t, err)

	stream := filter.Filter(tok.Tokenize([]byte("the cost of attention")))

	require.Len(t, stream, 2)
	assert.Equal(t, "cost", string(stream[0].Term))
	assert.Equal(t, "attention", string(stream[1].Term))
}
