package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/threadlens/threadlens/internal/query"
)

// newTestStore creates an in-memory store for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ts(day string, hour int) int64 {
	d, err := time.Parse("2006-01-02", day)
	if err != nil {
		panic(err)
	}
	return d.UTC().Unix() + int64(hour)*3600
}

func seedPost(id, community, author, title, body string, created int64, score, comments int) Post {
	return Post{
		ID: id, Community: community, Author: author, Title: title, Body: body,
		CreatedUTC: created, Score: score, CommentCount: comments,
		Domain: "self." + community,
	}
}

// seedScenario inserts 120 "tech" posts over three days and 80 posts
// in other communities.
func seedScenario(t *testing.T, s *Store) {
	t.Helper()
	posts := make([]Post, 0, 200)
	days := []string{"2024-05-01", "2024-05-02", "2024-05-03"}
	for i := 0; i < 120; i++ {
		posts = append(posts, seedPost(
			fmt.Sprintf("t%03d", i), "tech", fmt.Sprintf("user%d", i%10),
			"tech post", "body", ts(days[i%3], i%24), i%50, i%7))
	}
	for i := 0; i < 80; i++ {
		posts = append(posts, seedPost(
			fmt.Sprintf("o%03d", i), "cooking", fmt.Sprintf("chef%d", i%10),
			"cooking post", "body", ts(days[i%3], i%24), i%50, i%7))
	}
	if err := s.InsertPosts(context.Background(), posts); err != nil {
		t.Fatalf("seeding posts: %v", err)
	}
}

func TestEmptyFilterMatchesEverything(t *testing.T) {
	s := newTestStore(t)
	seedScenario(t, s)
	ctx := context.Background()

	total, err := s.TotalPosts(ctx)
	if err != nil {
		t.Fatalf("TotalPosts: %v", err)
	}
	matched, err := s.CountPosts(ctx, query.Filter{})
	if err != nil {
		t.Fatalf("CountPosts: %v", err)
	}
	if total != 200 || matched != total {
		t.Fatalf("empty filter should match all %d posts, matched %d", total, matched)
	}
}

func TestCommunityFilterScenario(t *testing.T) {
	s := newTestStore(t)
	seedScenario(t, s)
	ctx := context.Background()

	n, err := s.CountPosts(ctx, query.Filter{Community: "tech"})
	if err != nil {
		t.Fatalf("CountPosts: %v", err)
	}
	if n != 120 {
		t.Fatalf("expected 120 tech posts, got %d", n)
	}

	// Case-insensitive comparison.
	n, err = s.CountPosts(ctx, query.Filter{Community: "TECH"})
	if err != nil {
		t.Fatalf("CountPosts: %v", err)
	}
	if n != 120 {
		t.Fatalf("community match should be case-insensitive, got %d", n)
	}

	buckets, err := s.TimeBuckets(ctx, query.Filter{Community: "tech"}, "day")
	if err != nil {
		t.Fatalf("TimeBuckets: %v", err)
	}
	sum := 0
	for _, b := range buckets {
		sum += b.PostCount
		if b.PostCount == 0 {
			t.Errorf("bucket %s emitted with zero posts", b.Period)
		}
	}
	if sum != 120 {
		t.Fatalf("daily buckets should sum to 120, got %d", sum)
	}
}

func TestKeywordMatchesTitleOrBody(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	posts := []Post{
		seedPost("a", "tech", "alice", "Rust compile times", "", ts("2024-05-01", 0), 1, 0),
		seedPost("b", "tech", "bob", "misc", "I love RUST programming", ts("2024-05-01", 1), 1, 0),
		seedPost("c", "tech", "carol", "unrelated", "nothing here", ts("2024-05-01", 2), 1, 0),
	}
	if err := s.InsertPosts(ctx, posts); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	n, err := s.CountPosts(ctx, query.Filter{Keyword: "rust"})
	if err != nil {
		t.Fatalf("CountPosts: %v", err)
	}
	if n != 2 {
		t.Fatalf("keyword should match title OR body case-insensitively, got %d", n)
	}
}

func TestTimeBucketFormats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	posts := []Post{
		seedPost("a", "tech", "alice", "t", "b", ts("2024-05-15", 9), 10, 2),
		seedPost("b", "tech", "bob", "t", "b", ts("2024-05-15", 9), 20, 4),
		seedPost("c", "tech", "carol", "t", "b", ts("2024-05-17", 14), 30, 6),
	}
	if err := s.InsertPosts(ctx, posts); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	hourly, err := s.TimeBuckets(ctx, query.Filter{}, "hour")
	if err != nil {
		t.Fatalf("hourly buckets: %v", err)
	}
	if len(hourly) != 2 {
		t.Fatalf("expected 2 hourly buckets, got %d", len(hourly))
	}
	if hourly[0].Period != "2024-05-15 09:00" {
		t.Errorf("hourly label = %q, want 2024-05-15 09:00", hourly[0].Period)
	}
	if hourly[0].AvgScore != 15 {
		t.Errorf("avg score computed over bucket rows only: got %v, want 15", hourly[0].AvgScore)
	}

	weekly, err := s.TimeBuckets(ctx, query.Filter{}, "week")
	if err != nil {
		t.Fatalf("weekly buckets: %v", err)
	}
	// 2024-05-15 (Wed) and 2024-05-17 (Fri) share the Monday 2024-05-13.
	if len(weekly) != 1 || weekly[0].Period != "2024-05-13" {
		t.Fatalf("expected one week bucket at 2024-05-13, got %+v", weekly)
	}

	monthly, err := s.TimeBuckets(ctx, query.Filter{}, "month")
	if err != nil {
		t.Fatalf("monthly buckets: %v", err)
	}
	if len(monthly) != 1 || monthly[0].Period != "2024-05-01" {
		t.Fatalf("expected one month bucket at 2024-05-01, got %+v", monthly)
	}

	if _, err := s.TimeBuckets(ctx, query.Filter{}, "fortnight"); err == nil {
		t.Fatal("expected validation error for unknown granularity")
	}
}

func TestSharedAttributeEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// golang/rust share alice+bob (weight 2); golang/cooking share only
	// carol (weight 1, dropped); dave is a sentinel-free author pair
	// only through AutoModerator (excluded).
	posts := []Post{
		seedPost("p1", "golang", "alice", "t", "b", ts("2024-05-01", 0), 1, 0),
		seedPost("p2", "rust", "alice", "t", "b", ts("2024-05-01", 1), 1, 0),
		seedPost("p3", "golang", "bob", "t", "b", ts("2024-05-01", 2), 1, 0),
		seedPost("p4", "rust", "bob", "t", "b", ts("2024-05-01", 3), 1, 0),
		seedPost("p5", "golang", "carol", "t", "b", ts("2024-05-01", 4), 1, 0),
		seedPost("p6", "cooking", "carol", "t", "b", ts("2024-05-01", 5), 1, 0),
		seedPost("p7", "golang", AuthorAutoModerator, "t", "b", ts("2024-05-01", 6), 1, 0),
		seedPost("p8", "news", AuthorAutoModerator, "t", "b", ts("2024-05-01", 7), 1, 0),
		seedPost("p9", "news", AuthorDeleted, "t", "b", ts("2024-05-01", 8), 1, 0),
	}
	if err := s.InsertPosts(ctx, posts); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	entities := []string{"golang", "rust", "cooking", "news"}
	edges, err := s.SharedAttributeEdges(ctx, "community", entities)
	if err != nil {
		t.Fatalf("SharedAttributeEdges: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected exactly one edge (golang-rust), got %+v", edges)
	}
	e := edges[0]
	if e.Source != "golang" || e.Target != "rust" || e.Weight != 2 {
		t.Fatalf("unexpected edge %+v", e)
	}
	if e.Source >= e.Target {
		t.Fatalf("edge ordering violated: %q !< %q", e.Source, e.Target)
	}
}

func TestSharedAttributeEdgesAuthorAxis(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// alice and bob both post in golang and rust → weight 2.
	posts := []Post{
		seedPost("p1", "golang", "alice", "t", "b", ts("2024-05-01", 0), 1, 0),
		seedPost("p2", "rust", "alice", "t", "b", ts("2024-05-01", 1), 1, 0),
		seedPost("p3", "golang", "bob", "t", "b", ts("2024-05-01", 2), 1, 0),
		seedPost("p4", "rust", "bob", "t", "b", ts("2024-05-01", 3), 1, 0),
		seedPost("p5", "golang", "zed", "t", "b", ts("2024-05-01", 4), 1, 0),
	}
	if err := s.InsertPosts(ctx, posts); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	edges, err := s.SharedAttributeEdges(ctx, "author", []string{"alice", "bob", "zed"})
	if err != nil {
		t.Fatalf("SharedAttributeEdges: %v", err)
	}
	if len(edges) != 1 || edges[0].Source != "alice" || edges[0].Target != "bob" || edges[0].Weight != 2 {
		t.Fatalf("expected alice-bob edge with weight 2, got %+v", edges)
	}
}

func TestTopEntitiesExcludesSentinelAuthors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	posts := []Post{
		seedPost("p1", "tech", AuthorAutoModerator, "t", "b", ts("2024-05-01", 0), 1, 0),
		seedPost("p2", "tech", AuthorAutoModerator, "t", "b", ts("2024-05-01", 1), 1, 0),
		seedPost("p3", "tech", AuthorDeleted, "t", "b", ts("2024-05-01", 2), 1, 0),
		seedPost("p4", "tech", "alice", "t", "b", ts("2024-05-01", 3), 1, 0),
	}
	if err := s.InsertPosts(ctx, posts); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	authors, err := s.TopEntities(ctx, query.Filter{}, "author", 10)
	if err != nil {
		t.Fatalf("TopEntities: %v", err)
	}
	if len(authors) != 1 || authors[0].Name != "alice" {
		t.Fatalf("sentinel authors should be excluded, got %+v", authors)
	}

	if _, err := s.TopEntities(ctx, query.Filter{}, "moderator", 10); err == nil {
		t.Fatal("expected validation error for unknown axis")
	}
}

func TestTopDomainsSkipSelfPosts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	posts := []Post{
		{ID: "p1", Community: "tech", Author: "a", Title: "t", CreatedUTC: ts("2024-05-01", 0), Domain: "self.tech"},
		{ID: "p2", Community: "tech", Author: "b", Title: "t", CreatedUTC: ts("2024-05-01", 1), Domain: "example.com"},
		{ID: "p3", Community: "tech", Author: "c", Title: "t", CreatedUTC: ts("2024-05-01", 2), Domain: "example.com"},
	}
	if err := s.InsertPosts(ctx, posts); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	domains, err := s.TopDomains(ctx, query.Filter{}, 10)
	if err != nil {
		t.Fatalf("TopDomains: %v", err)
	}
	if len(domains) != 1 || domains[0].Name != "example.com" || domains[0].Count != 2 {
		t.Fatalf("expected only example.com, got %+v", domains)
	}
}

func TestSearchPostsOrderAndPaging(t *testing.T) {
	s := newTestStore(t)
	seedScenario(t, s)
	ctx := context.Background()

	page, total, err := s.SearchPosts(ctx, query.Filter{Community: "tech"}, 10, 0)
	if err != nil {
		t.Fatalf("SearchPosts: %v", err)
	}
	if total != 120 {
		t.Fatalf("expected total 120, got %d", total)
	}
	if len(page) != 10 {
		t.Fatalf("expected page of 10, got %d", len(page))
	}
	for i := 1; i < len(page); i++ {
		if page[i].CreatedUTC > page[i-1].CreatedUTC {
			t.Fatal("results should be ordered most recent first")
		}
	}
}

func TestDocumentsForModelingBodyFloor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	long := make([]byte, 60)
	for i := range long {
		long[i] = 'x'
	}
	posts := []Post{
		seedPost("p1", "tech", "a", "t", string(long), ts("2024-05-01", 0), 1, 0),
		seedPost("p2", "tech", "b", "t", "short", ts("2024-05-01", 1), 1, 0),
	}
	if err := s.InsertPosts(ctx, posts); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	docs, err := s.DocumentsForModeling(ctx, query.Filter{}, 50, 100)
	if err != nil {
		t.Fatalf("DocumentsForModeling: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "p1" {
		t.Fatalf("expected only the long-bodied post, got %+v", docs)
	}
}

// Averages surface in JSON responses directly, so the store reports
// them already rounded to one decimal.
func TestEngagementAveragesRounded(t *testing.T) {
	s := newTestStore(t)
	posts := []Post{
		seedPost("e1", "tech", "amy", "a", "", ts("2024-05-01", 1), 1, 1),
		seedPost("e2", "tech", "amy", "b", "", ts("2024-05-01", 2), 2, 1),
		seedPost("e3", "tech", "amy", "c", "", ts("2024-05-01", 3), 2, 2),
	}
	if err := s.InsertPosts(context.Background(), posts); err != nil {
		t.Fatalf("seeding posts: %v", err)
	}

	stats, err := s.Engagement(context.Background(), query.Filter{})
	if err != nil {
		t.Fatalf("Engagement: %v", err)
	}
	// 5/3 and 4/3 round to one decimal, not 1.6666....
	if stats.AvgScore != 1.7 {
		t.Fatalf("expected avg score 1.7, got %v", stats.AvgScore)
	}
	if stats.AvgComments != 1.3 {
		t.Fatalf("expected avg comments 1.3, got %v", stats.AvgComments)
	}
	if stats.TotalScore != 5 || stats.TotalComments != 4 {
		t.Fatalf("unexpected totals %+v", stats)
	}
}

func TestDateRangeAndMostActiveDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	posts := []Post{
		seedPost("p1", "tech", "a", "t", "b", ts("2024-05-01", 0), 1, 0),
		seedPost("p2", "tech", "b", "t", "b", ts("2024-05-03", 0), 1, 0),
		seedPost("p3", "tech", "c", "t", "b", ts("2024-05-03", 1), 1, 0),
	}
	if err := s.InsertPosts(ctx, posts); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	minDay, maxDay, err := s.DateRange(ctx, query.Filter{})
	if err != nil {
		t.Fatalf("DateRange: %v", err)
	}
	if minDay != "2024-05-01" || maxDay != "2024-05-03" {
		t.Fatalf("unexpected range %s..%s", minDay, maxDay)
	}

	day, count, err := s.MostActiveDay(ctx, query.Filter{})
	if err != nil {
		t.Fatalf("MostActiveDay: %v", err)
	}
	if day != "2024-05-03" || count != 2 {
		t.Fatalf("unexpected most active day %s (%d)", day, count)
	}

	// Empty store: no error, empty result.
	empty := newTestStore(t)
	day, count, err = empty.MostActiveDay(ctx, query.Filter{})
	if err != nil || day != "" || count != 0 {
		t.Fatalf("empty corpus should yield empty day, got %q %d %v", day, count, err)
	}
}

func TestLoadJSONL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "data.jsonl")
	lines := `{"kind":"t3","data":{"id":"abc","subreddit":"golang","author":"alice","title":"Generics","selftext":"body text","created_utc":1714557600.0,"score":42,"num_comments":7,"permalink":"/r/golang/abc","url":"https://example.com","domain":"example.com","upvote_ratio":0.97}}
not json at all
{"kind":"t3","data":{"id":"def","subreddit":"rust","author":"bob","title":"Borrowck","selftext":"","created_utc":1714561200.0,"score":10,"num_comments":1,"permalink":"/r/rust/def","url":"","domain":"self.rust","upvote_ratio":0.88}}
`
	if err := os.WriteFile(path, []byte(lines), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	n, err := s.LoadJSONL(ctx, path)
	if err != nil {
		t.Fatalf("LoadJSONL: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 loaded posts, got %d", n)
	}

	posts, total, err := s.SearchPosts(ctx, query.Filter{Community: "golang"}, 10, 0)
	if err != nil || total != 1 {
		t.Fatalf("expected one golang post, got %d (%v)", total, err)
	}
	p := posts[0]
	if p.Author != "alice" || p.Score != 42 || p.CommentCount != 7 || p.CreatedUTC != 1714557600 {
		t.Fatalf("round-trip mismatch: %+v", p)
	}

	// Reload is idempotent.
	if _, err := s.LoadJSONL(ctx, path); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if totalAll, _ := s.TotalPosts(ctx); totalAll != 2 {
		t.Fatalf("reload should not duplicate posts, got %d", totalAll)
	}
}
