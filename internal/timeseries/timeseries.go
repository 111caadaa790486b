// Package timeseries groups matching posts into fixed-width calendar
// buckets with count, comment-sum and average-score metrics.
package timeseries

import (
	"context"
	"math"

	"github.com/threadlens/threadlens/internal/query"
	"github.com/threadlens/threadlens/internal/store"
)

var validIntervals = map[string]bool{
	"hour":  true,
	"day":   true,
	"week":  true,
	"month": true,
}

// Point is one emitted bucket. Hourly periods are labeled
// "YYYY-MM-DD HH:00"; coarser granularities use the bucket boundary
// date "YYYY-MM-DD".
type Point struct {
	Period       string  `json:"period"`
	PostCount    int     `json:"post_count"`
	CommentCount int     `json:"comment_count"`
	AvgScore     float64 `json:"avg_score"`
}

// Series computes the ordered bucket sequence for the filter at the
// given granularity. Buckets with no matching posts are omitted, and
// each bucket's average is over its own posts only.
func Series(ctx context.Context, st *store.Store, f query.Filter, interval string) ([]Point, error) {
	if !validIntervals[interval] {
		return nil, query.Validationf("interval", "use one of: hour, day, week, month")
	}

	buckets, err := st.TimeBuckets(ctx, f, interval)
	if err != nil {
		return nil, err
	}

	points := make([]Point, 0, len(buckets))
	for _, b := range buckets {
		points = append(points, Point{
			Period:       b.Period,
			PostCount:    b.PostCount,
			CommentCount: b.CommentCount,
			AvgScore:     round1(b.AvgScore),
		})
	}
	return points, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
