package timeseries

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/threadlens/threadlens/internal/query"
	"github.com/threadlens/threadlens/internal/store"
)

func newSeededStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	base, _ := time.Parse("2006-01-02", "2024-04-01")
	posts := make([]store.Post, 0, 30)
	for i := 0; i < 30; i++ {
		posts = append(posts, store.Post{
			ID:           fmt.Sprintf("p%02d", i),
			Community:    "tech",
			Author:       fmt.Sprintf("u%d", i%5),
			Title:        "post",
			Body:         "body",
			CreatedUTC:   base.Unix() + int64(i)*6*3600, // every 6h over ~a week
			Score:        10 + i,
			CommentCount: i % 4,
		})
	}
	if err := s.InsertPosts(context.Background(), posts); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	return s
}

func TestInvalidInterval(t *testing.T) {
	s := newSeededStore(t)
	_, err := Series(context.Background(), s, query.Filter{}, "decade")
	var ve *query.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestBucketCountsSumToFilterTotal(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	for _, interval := range []string{"hour", "day", "week", "month"} {
		points, err := Series(ctx, s, query.Filter{}, interval)
		if err != nil {
			t.Fatalf("Series(%s): %v", interval, err)
		}
		sum := 0
		for _, p := range points {
			sum += p.PostCount
		}
		if sum != 30 {
			t.Errorf("%s buckets sum to %d, want 30", interval, sum)
		}
	}
}

func TestBucketsOrderedAndNonEmpty(t *testing.T) {
	s := newSeededStore(t)
	points, err := Series(context.Background(), s, query.Filter{}, "day")
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(points) == 0 {
		t.Fatal("expected day buckets")
	}
	for i, p := range points {
		if p.PostCount == 0 {
			t.Errorf("bucket %s emitted empty", p.Period)
		}
		if i > 0 && points[i].Period <= points[i-1].Period {
			t.Errorf("buckets out of order: %s after %s", points[i].Period, points[i-1].Period)
		}
	}
}

func TestAvgScoreRounding(t *testing.T) {
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	base, _ := time.Parse("2006-01-02", "2024-04-01")
	posts := []store.Post{
		{ID: "a", Community: "tech", Author: "x", Title: "t", CreatedUTC: base.Unix(), Score: 1},
		{ID: "b", Community: "tech", Author: "y", Title: "t", CreatedUTC: base.Unix(), Score: 2},
		{ID: "c", Community: "tech", Author: "z", Title: "t", CreatedUTC: base.Unix(), Score: 2},
	}
	if err := s.InsertPosts(ctx, posts); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	points, err := Series(ctx, s, query.Filter{}, "day")
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected one bucket, got %d", len(points))
	}
	if points[0].AvgScore != 1.7 {
		t.Fatalf("avg score should round to one decimal: got %v, want 1.7", points[0].AvgScore)
	}
}
