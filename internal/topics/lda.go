package topics

import (
	"errors"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

const (
	ldaSweeps = 10
	ldaAlpha  = 0.1
	ldaBeta   = 0.01
)

// lda fits a Dirichlet-prior topic model to a raw count matrix by
// collapsed Gibbs sampling with a fixed seed and iteration budget. It
// returns the document-topic matrix (docs x k) and the topic-term
// matrix (k x terms), both row-stochastic up to the priors.
func lda(X *mat.Dense, k int, seed uint64) (*mat.Dense, *mat.Dense, error) {
	nDocs, nTerms := X.Dims()

	// Expand the count matrix into individual token instances.
	type token struct {
		doc, term int
	}
	var tokens []token
	for d := 0; d < nDocs; d++ {
		for w := 0; w < nTerms; w++ {
			c := int(X.At(d, w))
			for n := 0; n < c; n++ {
				tokens = append(tokens, token{doc: d, term: w})
			}
		}
	}
	if len(tokens) == 0 {
		return nil, nil, errors.New("count matrix has no tokens")
	}

	rng := rand.New(rand.NewSource(seed))

	assignments := make([]int, len(tokens))
	docTopic := make([][]int, nDocs)
	for d := range docTopic {
		docTopic[d] = make([]int, k)
	}
	topicTerm := make([][]int, k)
	for t := range topicTerm {
		topicTerm[t] = make([]int, nTerms)
	}
	topicTotal := make([]int, k)
	docTotal := make([]int, nDocs)

	for i, tok := range tokens {
		t := rng.Intn(k)
		assignments[i] = t
		docTopic[tok.doc][t]++
		topicTerm[t][tok.term]++
		topicTotal[t]++
		docTotal[tok.doc]++
	}

	betaSum := ldaBeta * float64(nTerms)
	weights := make([]float64, k)

	for sweep := 0; sweep < ldaSweeps; sweep++ {
		for i, tok := range tokens {
			old := assignments[i]
			docTopic[tok.doc][old]--
			topicTerm[old][tok.term]--
			topicTotal[old]--

			total := 0.0
			for t := 0; t < k; t++ {
				w := (float64(docTopic[tok.doc][t]) + ldaAlpha) *
					(float64(topicTerm[t][tok.term]) + ldaBeta) /
					(float64(topicTotal[t]) + betaSum)
				weights[t] = w
				total += w
			}

			target := rng.Float64() * total
			next := k - 1
			for t := 0; t < k; t++ {
				target -= weights[t]
				if target <= 0 {
					next = t
					break
				}
			}

			assignments[i] = next
			docTopic[tok.doc][next]++
			topicTerm[next][tok.term]++
			topicTotal[next]++
		}
	}

	W := mat.NewDense(nDocs, k, nil)
	for d := 0; d < nDocs; d++ {
		denom := float64(docTotal[d]) + float64(k)*ldaAlpha
		for t := 0; t < k; t++ {
			W.Set(d, t, (float64(docTopic[d][t])+ldaAlpha)/denom)
		}
	}
	H := mat.NewDense(k, nTerms, nil)
	for t := 0; t < k; t++ {
		denom := float64(topicTotal[t]) + betaSum
		for w := 0; w < nTerms; w++ {
			H.Set(t, w, (float64(topicTerm[t][w])+ldaBeta)/denom)
		}
	}
	return W, H, nil
}
