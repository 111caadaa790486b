// Package topics extracts latent topics from the filtered post corpus.
//
// The pipeline normalizes text, builds a bounded term-document matrix,
// factorizes it with non-negative matrix factorization, and falls back
// to a Dirichlet-prior model over raw counts when the primary method
// fails. Labels, trends, per-community attribution and weekly topic
// distributions are derived from the factor matrices.
package topics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/threadlens/threadlens/internal/query"
	"github.com/threadlens/threadlens/internal/store"
)

const (
	// MinTopics and MaxTopics bound the requested component count.
	MinTopics = 2
	MaxTopics = 20

	minDocuments  = 50
	minBodyLength = 50
	maxDocuments  = 5000

	topWordsPerTopic = 20
	vocabularyCap    = 10000

	// Trend halves must differ by more than this percentage to leave
	// "flat"; corpora of ten or fewer documents skip the comparison.
	trendThreshold = 10.0
	minTrendDocs   = 10

	modelSeed = 42
)

// Model type recorded on the result.
const (
	ModelNMF = "nmf"
	ModelLDA = "lda"
)

// Trend direction of a topic across the corpus halves.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// WordWeight is one weighted topic term. Weights within a topic's
// reported word list sum to 1.
type WordWeight struct {
	Word   string  `json:"word"`
	Weight float64 `json:"weight"`
}

// Topic is one extracted topic. IDs are 1-indexed and stable only
// within a single modeling run.
type Topic struct {
	ID            int          `json:"id"`
	Name          string       `json:"name"`
	Words         []WordWeight `json:"words"`
	DocumentCount int          `json:"document_count"`
	Trend         Trend        `json:"trend"`
	PercentChange float64      `json:"percent_change"`
}

// TopicWeight references a topic by id with an accumulated weight.
type TopicWeight struct {
	TopicID int     `json:"topic_id"`
	Weight  float64 `json:"weight"`
}

// CommunityTopics is one community's strongest topics.
type CommunityTopics struct {
	Community string        `json:"community"`
	Topics    []TopicWeight `json:"topics"`
}

// TopicShare is a topic's percentage contribution within one week.
type TopicShare struct {
	TopicID int     `json:"topic_id"`
	Percent float64 `json:"percent"`
}

// WeekDistribution is the topic mix of one calendar week.
type WeekDistribution struct {
	Week   string       `json:"week"`
	Shares []TopicShare `json:"shares"`
}

// Result is one complete modeling run.
type Result struct {
	ModelType          string             `json:"model_type"`
	DocumentCount      int                `json:"document_count"`
	Topics             []Topic            `json:"topics"`
	CommunityTopics    []CommunityTopics  `json:"community_topics"`
	WeeklyDistribution []WeekDistribution `json:"weekly_distribution"`
}

type document struct {
	community string
	week      string
	tokens    []string
}

// Model runs the full topic pipeline for the filter with numTopics
// components.
func Model(ctx context.Context, st *store.Store, f query.Filter, numTopics int) (*Result, error) {
	if numTopics < MinTopics || numTopics > MaxTopics {
		return nil, query.Validationf("num_topics", "must be between %d and %d", MinTopics, MaxTopics)
	}

	raw, err := st.DocumentsForModeling(ctx, f, minBodyLength, maxDocuments)
	if err != nil {
		return nil, err
	}

	docs := make([]document, 0, len(raw))
	tokenDocs := make([][]string, 0, len(raw))
	for _, d := range raw {
		combined := d.Title
		if body := strings.TrimSpace(d.Body); body != "" {
			combined += " " + body
		}
		normalized := NormalizeText(combined)
		if len(strings.Fields(normalized)) <= minDocWords {
			continue
		}
		docs = append(docs, document{
			community: d.Community,
			week:      weekOf(d.CreatedUTC),
			tokens:    tokenize(normalized),
		})
		tokenDocs = append(tokenDocs, docs[len(docs)-1].tokens)
	}

	if len(docs) < minDocuments {
		return nil, &query.InsufficientDataError{Need: minDocuments, Got: len(docs)}
	}

	modelType := ModelNMF
	tm, W, H, err := runPrimary(tokenDocs, numTopics)
	if err != nil {
		slog.Warn("[Topics] Primary factorization failed, using fallback",
			slog.String("error", err.Error()))
		modelType = ModelLDA
		tm, W, H, err = runFallback(tokenDocs, numTopics)
		if err != nil {
			return nil, &query.ComputationError{Stage: "topic modeling", Err: err}
		}
	}

	bigrams := buildBigramSet(tokenDocs)
	return assemble(modelType, docs, tm, W, H, numTopics, bigrams), nil
}

func runPrimary(tokenDocs [][]string, k int) (tm *termMatrix, W, H *mat.Dense, err error) {
	// A panic inside the factorization must surface as an error so the
	// caller can dispatch to the fallback model instead of dying.
	defer func() {
		if r := recover(); r != nil {
			tm, W, H = nil, nil, nil
			err = fmt.Errorf("factorization panic: %v", r)
		}
	}()

	tm, err = vectorize(tokenDocs, vectorizerConfig{
		maxDFRatio:  0.85,
		minDF:       5,
		maxNgram:    3,
		maxFeatures: vocabularyCap,
		tfidf:       true,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	W, H, err = nmf(tm.X, k, modelSeed)
	if err != nil {
		return nil, nil, nil, err
	}
	return tm, W, H, nil
}

func runFallback(tokenDocs [][]string, k int) (*termMatrix, *mat.Dense, *mat.Dense, error) {
	tm, err := vectorize(tokenDocs, vectorizerConfig{
		maxDFRatio:  0.85,
		minDF:       5,
		maxNgram:    2,
		maxFeatures: vocabularyCap,
		tfidf:       false,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	W, H, err := lda(tm.X, k, modelSeed)
	if err != nil {
		return nil, nil, nil, err
	}
	return tm, W, H, nil
}

func assemble(modelType string, docs []document, tm *termMatrix, W, H *mat.Dense, k int, bigrams map[string]bool) *Result {
	nDocs := len(docs)

	// Highest-weight topic per document.
	assignment := make([]int, nDocs)
	docCounts := make([]int, k)
	for d := 0; d < nDocs; d++ {
		best := 0
		for t := 1; t < k; t++ {
			if W.At(d, t) > W.At(d, best) {
				best = t
			}
		}
		assignment[d] = best
		docCounts[best]++
	}

	topics := make([]Topic, k)
	for t := 0; t < k; t++ {
		words := topWords(H, t, tm.terms)
		trend, change := topicTrend(W, t, nDocs)
		topics[t] = Topic{
			ID:            t + 1, // provisional, reassigned after sorting
			Name:          labelTopic(words, bigrams, t+1),
			Words:         words,
			DocumentCount: docCounts[t],
			Trend:         trend,
			PercentChange: change,
		}
	}

	// Order by document count; remap ids everywhere downstream.
	order := make([]int, k)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return docCounts[order[a]] > docCounts[order[b]]
	})
	newID := make([]int, k)
	sorted := make([]Topic, k)
	for rank, old := range order {
		newID[old] = rank + 1
		sorted[rank] = topics[old]
		sorted[rank].ID = rank + 1
		if strings.HasPrefix(sorted[rank].Name, "Topic ") {
			sorted[rank].Name = labelTopic(sorted[rank].Words, bigrams, rank+1)
		}
	}

	return &Result{
		ModelType:          modelType,
		DocumentCount:      nDocs,
		Topics:             sorted,
		CommunityTopics:    communityAttribution(docs, W, k, newID),
		WeeklyDistribution: weeklyDistribution(docs, W, k, newID),
	}
}

// topWords returns the topic's strongest terms, renormalized so the
// reported weights sum to 1.
func topWords(H *mat.Dense, topic int, terms []string) []WordWeight {
	type tw struct {
		term   string
		weight float64
	}
	all := make([]tw, 0, len(terms))
	for j, term := range terms {
		if w := H.At(topic, j); w > 0 {
			all = append(all, tw{term, w})
		}
	}
	sort.Slice(all, func(a, b int) bool {
		if all[a].weight != all[b].weight {
			return all[a].weight > all[b].weight
		}
		return all[a].term < all[b].term
	})
	if len(all) > topWordsPerTopic {
		all = all[:topWordsPerTopic]
	}

	total := 0.0
	for _, w := range all {
		total += w.weight
	}
	words := make([]WordWeight, len(all))
	for i, w := range all {
		weight := w.weight
		if total > 0 {
			weight /= total
		}
		words[i] = WordWeight{Word: w.term, Weight: weight}
	}
	return words
}

// topicTrend compares the topic's mean weight in the first half of the
// corpus (in filtered order) with the second half.
func topicTrend(W *mat.Dense, topic, nDocs int) (Trend, float64) {
	if nDocs <= minTrendDocs {
		return TrendFlat, 0
	}
	mid := nDocs / 2
	first := columnMean(W, topic, 0, mid)
	second := columnMean(W, topic, mid, nDocs)
	if first == 0 {
		// No baseline to change from; policy is flat rather than inf.
		return TrendFlat, 0
	}
	change := (second - first) / first * 100
	switch {
	case change > trendThreshold:
		return TrendUp, round1(change)
	case change < -trendThreshold:
		return TrendDown, round1(change)
	default:
		return TrendFlat, round1(change)
	}
}

func columnMean(W *mat.Dense, col, from, to int) float64 {
	if to <= from {
		return 0
	}
	sum := 0.0
	for i := from; i < to; i++ {
		sum += W.At(i, col)
	}
	return sum / float64(to-from)
}

// communityAttribution sums each document's full topic-weight vector
// into its community and reports each community's top three topics.
func communityAttribution(docs []document, W *mat.Dense, k int, newID []int) []CommunityTopics {
	sums := make(map[string][]float64)
	for d, doc := range docs {
		vec, ok := sums[doc.community]
		if !ok {
			vec = make([]float64, k)
			sums[doc.community] = vec
		}
		for t := 0; t < k; t++ {
			vec[t] += W.At(d, t)
		}
	}

	communities := make([]string, 0, len(sums))
	for c := range sums {
		communities = append(communities, c)
	}
	sort.Strings(communities)

	out := make([]CommunityTopics, 0, len(communities))
	for _, c := range communities {
		vec := sums[c]
		idx := make([]int, k)
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			return vec[idx[a]] > vec[idx[b]]
		})
		n := 3
		if n > k {
			n = k
		}
		top := make([]TopicWeight, 0, n)
		for _, t := range idx[:n] {
			top = append(top, TopicWeight{TopicID: newID[t], Weight: round3(vec[t])})
		}
		out = append(out, CommunityTopics{Community: c, Topics: top})
	}
	return out
}

// weeklyDistribution averages document topic vectors per calendar week
// and reports each topic's percentage contribution.
func weeklyDistribution(docs []document, W *mat.Dense, k int, newID []int) []WeekDistribution {
	sums := make(map[string][]float64)
	counts := make(map[string]int)
	for d, doc := range docs {
		vec, ok := sums[doc.week]
		if !ok {
			vec = make([]float64, k)
			sums[doc.week] = vec
		}
		for t := 0; t < k; t++ {
			vec[t] += W.At(d, t)
		}
		counts[doc.week]++
	}

	weeks := make([]string, 0, len(sums))
	for w := range sums {
		weeks = append(weeks, w)
	}
	sort.Strings(weeks)

	out := make([]WeekDistribution, 0, len(weeks))
	for _, week := range weeks {
		vec := sums[week]
		total := 0.0
		for t := 0; t < k; t++ {
			vec[t] /= float64(counts[week])
			total += vec[t]
		}
		shares := make([]TopicShare, k)
		for t := 0; t < k; t++ {
			pct := 0.0
			if total > 0 {
				pct = vec[t] / total * 100
			}
			shares[newID[t]-1] = TopicShare{TopicID: newID[t], Percent: round1(pct)}
		}
		out = append(out, WeekDistribution{Week: week, Shares: shares})
	}
	return out
}

// weekOf truncates an epoch timestamp to the Monday of its week.
func weekOf(utc int64) string {
	t := time.Unix(utc, 0).UTC()
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset).Format("2006-01-02")
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
