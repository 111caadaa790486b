package topics

import (
	"fmt"
	"strings"
)

var nounSuffixes = []string{
	"tion", "sion", "ment", "ness", "ity", "ship", "ance", "ence",
	"ism", "ware", "ology", "ist", "age",
}

var nonNounSuffixes = []string{"ly", "ing", "ed", "est"}

// isLikelyNoun is a cheap part-of-speech guess used only for topic
// labels. Terms with adverb/verb-ish endings are rejected; common noun
// suffixes are accepted; everything else passes by default.
func isLikelyNoun(term string) bool {
	word := term
	if idx := strings.LastIndexByte(term, ' '); idx >= 0 {
		word = term[idx+1:]
	}
	for _, suf := range nounSuffixes {
		if strings.HasSuffix(word, suf) {
			return true
		}
	}
	for _, suf := range nonNounSuffixes {
		if strings.HasSuffix(word, suf) {
			return false
		}
	}
	return true
}

// buildBigramSet collects every adjacent token pair of the corpus so
// labels can prefer pairs that literally occur together somewhere.
func buildBigramSet(tokenDocs [][]string) map[string]bool {
	set := make(map[string]bool)
	for _, tokens := range tokenDocs {
		for i := 0; i+1 < len(tokens); i++ {
			set[tokens[i]+" "+tokens[i+1]] = true
		}
	}
	return set
}

// labelTopic derives a human-readable name from a topic's top terms,
// in order of preference: a noun pair that co-occurs as a corpus
// bigram, the two highest-weighted likely nouns, the two
// highest-weighted terms, a single surviving term, and finally a
// positional "Topic {n}" when no terms exist at all.
func labelTopic(words []WordWeight, bigrams map[string]bool, position int) string {
	if len(words) == 0 {
		return fmt.Sprintf("Topic %d", position)
	}
	if len(words) == 1 {
		return words[0].Word
	}

	var nouns []string
	for _, w := range words {
		if len(w.Word) > 3 && isLikelyNoun(w.Word) {
			nouns = append(nouns, w.Word)
		}
	}

	for i := 0; i < len(nouns); i++ {
		for j := i + 1; j < len(nouns); j++ {
			if bigrams[nouns[i]+" "+nouns[j]] {
				return nouns[i] + " & " + nouns[j]
			}
			if bigrams[nouns[j]+" "+nouns[i]] {
				return nouns[j] + " & " + nouns[i]
			}
		}
	}

	if len(nouns) >= 2 {
		return nouns[0] + " & " + nouns[1]
	}
	return words[0].Word + " & " + words[1].Word
}
