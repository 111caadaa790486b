package topics

import (
	"errors"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// vectorizerConfig bounds the term-document matrix. Document-frequency
// limits are relative to the corpus under the current filter, not to
// any global vocabulary.
type vectorizerConfig struct {
	maxDFRatio  float64 // drop terms in more than this fraction of docs
	minDF       int     // drop terms in fewer than this many docs
	maxNgram    int     // n-grams up to this length
	maxFeatures int     // vocabulary cap, kept by corpus frequency
	tfidf       bool    // TF-IDF weighting; raw counts otherwise
}

// termMatrix is a weighted document-term matrix over a fixed
// vocabulary.
type termMatrix struct {
	terms []string
	X     *mat.Dense // nDocs x len(terms)
}

var errEmptyVocabulary = errors.New("no terms survived document-frequency bounds")

// ngrams expands a token stream into n-grams of length 1..maxN joined
// with single spaces.
func ngrams(tokens []string, maxN int) []string {
	if maxN < 1 {
		maxN = 1
	}
	out := make([]string, 0, len(tokens)*maxN)
	for n := 1; n <= maxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}

// vectorize builds the document-term matrix from tokenized documents.
func vectorize(tokenDocs [][]string, cfg vectorizerConfig) (*termMatrix, error) {
	nDocs := len(tokenDocs)
	if nDocs == 0 {
		return nil, errEmptyVocabulary
	}

	docFreq := make(map[string]int)
	corpusFreq := make(map[string]int)
	docCounts := make([]map[string]int, nDocs)

	for i, tokens := range tokenDocs {
		counts := make(map[string]int)
		for _, g := range ngrams(tokens, cfg.maxNgram) {
			counts[g]++
			corpusFreq[g]++
		}
		for term := range counts {
			docFreq[term]++
		}
		docCounts[i] = counts
	}

	maxDF := int(cfg.maxDFRatio * float64(nDocs))
	kept := make([]string, 0, len(docFreq))
	for term, df := range docFreq {
		if df < cfg.minDF || df > maxDF {
			continue
		}
		kept = append(kept, term)
	}
	if len(kept) == 0 {
		return nil, errEmptyVocabulary
	}

	if cfg.maxFeatures > 0 && len(kept) > cfg.maxFeatures {
		sort.Slice(kept, func(i, j int) bool {
			if corpusFreq[kept[i]] != corpusFreq[kept[j]] {
				return corpusFreq[kept[i]] > corpusFreq[kept[j]]
			}
			return kept[i] < kept[j]
		})
		kept = kept[:cfg.maxFeatures]
	}
	sort.Strings(kept)

	index := make(map[string]int, len(kept))
	for i, term := range kept {
		index[term] = i
	}

	X := mat.NewDense(nDocs, len(kept), nil)
	for i, counts := range docCounts {
		for term, c := range counts {
			if j, ok := index[term]; ok {
				X.Set(i, j, float64(c))
			}
		}
	}

	if cfg.tfidf {
		applyTFIDF(X, kept, docFreq, nDocs)
	}

	return &termMatrix{terms: kept, X: X}, nil
}

// applyTFIDF rescales counts with smoothed inverse document frequency
// and L2-normalizes each document row.
func applyTFIDF(X *mat.Dense, terms []string, docFreq map[string]int, nDocs int) {
	idf := make([]float64, len(terms))
	for j, term := range terms {
		idf[j] = math.Log(float64(1+nDocs)/float64(1+docFreq[term])) + 1
	}

	rows, cols := X.Dims()
	for i := 0; i < rows; i++ {
		norm := 0.0
		for j := 0; j < cols; j++ {
			v := X.At(i, j) * idf[j]
			X.Set(i, j, v)
			norm += v * v
		}
		if norm == 0 {
			continue
		}
		norm = math.Sqrt(norm)
		for j := 0; j < cols; j++ {
			X.Set(i, j, X.At(i, j)/norm)
		}
	}
}
