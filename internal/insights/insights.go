// Package insights renders a deterministic text summary of a filtered
// slice of the corpus from the same aggregates the other engines
// expose. An external generative model can be plugged in through the
// Generator interface; nothing here requires one.
package insights

import (
	"context"
	"fmt"
	"strings"

	"github.com/threadlens/threadlens/internal/query"
	"github.com/threadlens/threadlens/internal/sentiment"
	"github.com/threadlens/threadlens/internal/store"
)

const topCommunityLimit = 5

// Observation thresholds on corpus size and engagement.
const (
	hotTopicFloor     = 1000
	nicheTopicCeiling = 10
	discussionFloor   = 10.0
	wellReceivedFloor = 50.0
)

// Generator produces a summary from an already-rendered deterministic
// one. Implementations may call out to an external model; the built-in
// path never does.
type Generator interface {
	Generate(ctx context.Context, deterministic string, s *Summary) (string, error)
}

// CommunityShare is one community's slice of the matched posts.
type CommunityShare struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Summary is the structured result alongside the rendered text.
type Summary struct {
	Text       string           `json:"summary"`
	TotalPosts int              `json:"total_posts"`
	DateStart  string           `json:"date_start,omitempty"`
	DateEnd    string           `json:"date_end,omitempty"`
	Sentiment  string           `json:"sentiment"`
	TopGroups  []CommunityShare `json:"top_subreddits"`
}

// Builder renders summaries over a store and a sentiment analyzer.
type Builder struct {
	store     *store.Store
	analyzer  *sentiment.Analyzer
	generator Generator
}

func NewBuilder(st *store.Store, a *sentiment.Analyzer) *Builder {
	return &Builder{store: st, analyzer: a}
}

// WithGenerator attaches an optional external generator. The
// deterministic summary is still produced first and passed to it.
func (b *Builder) WithGenerator(g Generator) *Builder {
	b.generator = g
	return b
}

// Build renders the summary for the filter. At least one filter field
// must be set so the summary describes a selection, not the whole
// corpus.
func (b *Builder) Build(ctx context.Context, f query.Filter) (*Summary, error) {
	if f.IsZero() {
		return nil, query.Validationf("filter",
			"provide at least one of keyword, community, author or domain")
	}

	total, err := b.store.CountPosts(ctx, f)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return &Summary{
			Text:      "No data available for analysis.",
			Sentiment: "neutral",
			TopGroups: []CommunityShare{},
		}, nil
	}

	minDay, maxDay, err := b.store.DateRange(ctx, f)
	if err != nil {
		return nil, err
	}
	top, err := b.store.TopCommunities(ctx, f, topCommunityLimit)
	if err != nil {
		return nil, err
	}
	engagement, err := b.store.Engagement(ctx, f)
	if err != nil {
		return nil, err
	}
	polarity, err := b.analyzer.Aggregate(ctx, b.store, f)
	if err != nil {
		return nil, err
	}
	activeDay, activeCount, err := b.store.MostActiveDay(ctx, f)
	if err != nil {
		return nil, err
	}

	mood := sentiment.Categorize(polarity.Overall.Score)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Analysis of %d posts%s", total, describeFilter(f))
	if minDay != "" && maxDay != "" {
		fmt.Fprintf(&sb, " from %s to %s", minDay, maxDay)
	}
	sb.WriteString(".\n\n")

	shares := make([]CommunityShare, 0, len(top))
	if len(top) > 0 {
		sb.WriteString("Top communities in these results:\n")
		for _, c := range top {
			pct := float64(c.Count) / float64(total) * 100
			fmt.Fprintf(&sb, "- %s: %d posts (%.1f%%)\n", c.Name, c.Count, pct)
			shares = append(shares, CommunityShare{Name: c.Name, Count: c.Count})
		}
	}

	fmt.Fprintf(&sb, "\nThe overall sentiment of these posts appears to be %s.\n", mood)

	sb.WriteString("\nEngagement metrics:\n")
	fmt.Fprintf(&sb, "- Total score: %d\n", engagement.TotalScore)
	fmt.Fprintf(&sb, "- Total comments: %d\n", engagement.TotalComments)
	fmt.Fprintf(&sb, "- Average score per post: %.1f\n", engagement.AvgScore)
	fmt.Fprintf(&sb, "- Average comments per post: %.1f\n", engagement.AvgComments)

	sb.WriteString("\nKey observations:\n")
	switch {
	case total > hotTopicFloor:
		fmt.Fprintf(&sb, "- This is a highly discussed topic with %d posts.\n", total)
	case total < nicheTopicCeiling:
		fmt.Fprintf(&sb, "- This appears to be a niche topic with only %d posts.\n", total)
	}
	if engagement.AvgComments > discussionFloor {
		fmt.Fprintf(&sb, "- Posts on this topic generate significant discussion with an average of %.1f comments per post.\n", engagement.AvgComments)
	}
	if engagement.AvgScore > wellReceivedFloor {
		fmt.Fprintf(&sb, "- Content on this topic is well-received with an average score of %.1f per post.\n", engagement.AvgScore)
	}
	if activeDay != "" {
		fmt.Fprintf(&sb, "- The most active day was %s with %d posts.\n", activeDay, activeCount)
	}

	summary := &Summary{
		Text:       sb.String(),
		TotalPosts: total,
		DateStart:  minDay,
		DateEnd:    maxDay,
		Sentiment:  mood,
		TopGroups:  shares,
	}

	if b.generator != nil {
		text, err := b.generator.Generate(ctx, summary.Text, summary)
		if err == nil && text != "" {
			summary.Text = text
		}
	}
	return summary, nil
}

// describeFilter spells out the active predicate fields.
func describeFilter(f query.Filter) string {
	var parts []string
	if f.Keyword != "" {
		parts = append(parts, fmt.Sprintf(" containing %q", f.Keyword))
	}
	if f.Community != "" {
		parts = append(parts, fmt.Sprintf(" in %s", f.Community))
	}
	if f.Author != "" {
		parts = append(parts, fmt.Sprintf(" by %s", f.Author))
	}
	if f.Domain != "" {
		parts = append(parts, fmt.Sprintf(" from %s", f.Domain))
	}
	return strings.Join(parts, "")
}
