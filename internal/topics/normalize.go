package topics

import (
	"regexp"
	"strings"
)

var (
	urlPattern     = regexp.MustCompile(`https?://\S+|www\.\S+`)
	nonWordPattern = regexp.MustCompile(`[^a-z0-9\s]+`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

// minDocWords drops documents that carry too little text to say
// anything about after cleaning.
const minDocWords = 5

// NormalizeText lowercases a document, strips URLs and anything
// non-alphanumeric, and collapses whitespace.
func NormalizeText(s string) string {
	s = strings.ToLower(s)
	s = urlPattern.ReplaceAllString(s, " ")
	s = nonWordPattern.ReplaceAllString(s, " ")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// tokenize splits a normalized document into content tokens, dropping
// stop words and single characters.
func tokenize(normalized string) []string {
	fields := strings.Fields(normalized)
	tokens := make([]string, 0, len(fields))
	for _, w := range fields {
		if len(w) < 2 || stopWords[w] {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}
