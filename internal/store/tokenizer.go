package store

import (
	"strings"
	"unicode"
)

// MinTokenLength is the shortest token kept by Tokenize.
const MinTokenLength = 2

// DefaultStopWords are English function words dropped before lexical
// indexing and querying.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for", "from",
	"has", "have", "in", "into", "is", "it", "its", "of", "on", "or", "that",
	"the", "their", "then", "there", "these", "this", "to", "was", "were",
	"which", "will", "with",
}

// Tokenize lowercases text and splits it into letter/digit runs.
// Hyphenated and dotted terms are split into their parts; tokens shorter
// than MinTokenLength runes are dropped.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= MinTokenLength {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a map for efficient lookup.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}

// analyze is the shared lexical pipeline: tokenize, then drop stop words.
func analyze(text string, stopWords map[string]struct{}) []string {
	return FilterStopWords(Tokenize(text), stopWords)
}

// ftsMatchQuery turns tokens into an FTS5 MATCH expression that ORs quoted
// terms, so no user input is parsed as FTS5 syntax.
func ftsMatchQuery(tokens []string) string {
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}
