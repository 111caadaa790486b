// Package sentiment scores post text with VADER and rolls polarity up
// into daily, per-community and overall category percentages.
package sentiment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/jonreiter/govader"
	"github.com/russross/blackfriday/v2"

	"github.com/threadlens/threadlens/internal/query"
	"github.com/threadlens/threadlens/internal/store"
)

// Category thresholds on the compound score.
const (
	positiveThreshold = 0.05
	negativeThreshold = -0.05
)

// minEntitySamples is the floor below which a community's category
// rates are too noisy to report.
const minEntitySamples = 5

var (
	mdLinkPattern  = regexp.MustCompile(`\[(.*?)\]\((https?://[^\s)]+)\)`)
	bareURLPattern = regexp.MustCompile(`https?://\S+|www\.\S+`)
	htmlTagPattern = regexp.MustCompile(`<[^>]+>`)
)

// Analyzer wraps a VADER intensity analyzer with markdown stripping.
// Post bodies are markdown; scoring raw markup skews the lexicon hits.
type Analyzer struct {
	vader *govader.SentimentIntensityAnalyzer
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{vader: govader.NewSentimentIntensityAnalyzer()}
}

// PlainText renders markdown and strips tags, links and bare URLs,
// leaving whitespace-normalized prose.
func PlainText(input string) string {
	rendered := blackfriday.Run([]byte(input), blackfriday.WithNoExtensions())
	text := htmlTagPattern.ReplaceAllString(string(rendered), " ")
	text = mdLinkPattern.ReplaceAllString(text, "$1")
	text = bareURLPattern.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// Score returns the compound polarity in [-1,1] for the given text.
// Lexicon panics on pathological input are isolated as errors so one
// bad record never takes down a batch.
func (a *Analyzer) Score(text string) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scoring text: %v", r)
		}
	}()
	s := a.vader.PolarityScores(PlainText(text))
	if math.IsNaN(s.Compound) || math.IsInf(s.Compound, 0) {
		return 0, fmt.Errorf("scoring text: non-finite compound %v", s.Compound)
	}
	return s.Compound, nil
}

// Categorize maps a compound score onto positive/neutral/negative.
func Categorize(score float64) string {
	switch {
	case score > positiveThreshold:
		return "positive"
	case score < negativeThreshold:
		return "negative"
	default:
		return "neutral"
	}
}

// DayBreakdown is the category split for one calendar day.
type DayBreakdown struct {
	Date     string `json:"date"`
	Positive int    `json:"positive"`
	Neutral  int    `json:"neutral"`
	Negative int    `json:"negative"`
}

// EntityStats is the category split for one community.
type EntityStats struct {
	Name     string  `json:"name"`
	Positive int     `json:"positive"`
	Neutral  int     `json:"neutral"`
	Negative int     `json:"negative"`
	Total    int     `json:"total"`
	Score    float64 `json:"score"`
}

// Overall is the category split across every scored sample.
type Overall struct {
	Positive int     `json:"positive"`
	Neutral  int     `json:"neutral"`
	Negative int     `json:"negative"`
	Total    int     `json:"total"`
	Score    float64 `json:"score"`
}

// Result is a complete sentiment rollup for one filter.
type Result struct {
	Overall  Overall        `json:"overall"`
	TimeData []DayBreakdown `json:"timeData"`
	Entities []EntityStats  `json:"subreddits"`
}

// Aggregate scores every matching post's title+body and rolls the
// compounds up by day, by community, and overall. Posts with empty
// text are skipped silently; posts whose scoring fails are skipped
// with a warning. Entities below the sample floor are omitted.
func (a *Analyzer) Aggregate(ctx context.Context, st *store.Store, f query.Filter) (*Result, error) {
	rows, err := st.SentimentRows(ctx, f)
	if err != nil {
		return nil, err
	}

	byDay := make(map[string][]float64)
	byEntity := make(map[string][]float64)
	var all []float64

	for _, r := range rows {
		text := r.Title
		if body := strings.TrimSpace(r.Body); body != "" {
			text += " " + body
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		score, err := a.Score(text)
		if err != nil {
			slog.Warn("[Sentiment] Skipping record",
				slog.String("id", r.ID), slog.String("error", err.Error()))
			continue
		}
		byDay[r.Day] = append(byDay[r.Day], score)
		byEntity[r.Community] = append(byEntity[r.Community], score)
		all = append(all, score)
	}

	res := &Result{TimeData: []DayBreakdown{}, Entities: []EntityStats{}}

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)
	for _, d := range days {
		pos, neu, neg := percentages(byDay[d])
		res.TimeData = append(res.TimeData, DayBreakdown{
			Date: d, Positive: pos, Neutral: neu, Negative: neg,
		})
	}

	for name, scores := range byEntity {
		if len(scores) < minEntitySamples {
			continue
		}
		pos, neu, neg := percentages(scores)
		res.Entities = append(res.Entities, EntityStats{
			Name:     name,
			Positive: pos,
			Neutral:  neu,
			Negative: neg,
			Total:    len(scores),
			Score:    mean(scores),
		})
	}
	sort.Slice(res.Entities, func(i, j int) bool {
		if res.Entities[i].Total != res.Entities[j].Total {
			return res.Entities[i].Total > res.Entities[j].Total
		}
		return res.Entities[i].Name < res.Entities[j].Name
	})

	if len(all) > 0 {
		pos, neu, neg := percentages(all)
		res.Overall = Overall{
			Positive: pos, Neutral: neu, Negative: neg,
			Total: len(all), Score: mean(all),
		}
	}
	return res, nil
}

// percentages splits scores into whole-percent category rates.
func percentages(scores []float64) (positive, neutral, negative int) {
	if len(scores) == 0 {
		return 0, 0, 0
	}
	var p, n int
	for _, s := range scores {
		switch Categorize(s) {
		case "positive":
			p++
		case "negative":
			n++
		}
	}
	total := float64(len(scores))
	positive = int(math.Round(float64(p) / total * 100))
	negative = int(math.Round(float64(n) / total * 100))
	neutral = int(math.Round(float64(len(scores)-p-n) / total * 100))
	return positive, neutral, negative
}

func mean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}
