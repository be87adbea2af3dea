package chunk

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// A line holding nothing but a page number.
	pageNumberLine = regexp.MustCompile(`(?m)^[ \t]*\d{1,4}[ \t]*$`)

	// A word broken across lines with a hyphen: "retrie-\nval".
	hyphenBreak = regexp.MustCompile(`(\p{L})-[ \t]*\r?\n[ \t]*(\p{Ll})`)
)

// CleanText normalizes extracted PDF text: it joins hyphenated line
// breaks, drops bare page-number lines, removes control and invalid
// characters, and collapses whitespace runs to single spaces.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}

	text = hyphenBreak.ReplaceAllString(text, "$1$2")
	text = pageNumberLine.ReplaceAllString(text, "")

	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			space = b.Len() > 0
			continue
		case unicode.IsControl(r), r == unicode.ReplacementChar:
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CleanPages cleans each page and joins them with a single space.
// It returns the joined text and the rune offset where each page begins.
// Pages that clean to nothing keep an offset so page numbers stay aligned.
func CleanPages(pages []string) (string, []int) {
	var b strings.Builder
	offsets := make([]int, 0, len(pages))
	runes := 0

	for _, page := range pages {
		cleaned := CleanText(page)
		if cleaned != "" && runes > 0 {
			b.WriteByte(' ')
			runes++
		}
		offsets = append(offsets, runes)
		b.WriteString(cleaned)
		runes += utf8.RuneCountInString(cleaned)
	}

	return b.String(), offsets
}
