package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/threadlens/threadlens/internal/query"
)

// Calendar truncation expressions per bucket granularity. Week buckets
// truncate to the Monday on or before the timestamp; month buckets to
// the first of the month.
var bucketExprs = map[string]string{
	"hour":  "strftime('%Y-%m-%d %H:00', created_utc, 'unixepoch')",
	"day":   "date(created_utc, 'unixepoch')",
	"week":  "date(created_utc, 'unixepoch', '-6 days', 'weekday 1')",
	"month": "strftime('%Y-%m-01', created_utc, 'unixepoch')",
}

// TimeBucket is one calendar bucket with its aggregated metrics.
type TimeBucket struct {
	Period       string  `json:"period"`
	PostCount    int     `json:"post_count"`
	CommentCount int     `json:"comment_count"`
	AvgScore     float64 `json:"avg_score"`
}

// TimeBuckets groups matching posts into calendar buckets of the given
// granularity (hour, day, week, month) ordered by time. Buckets with
// no matching posts are never emitted; averages are over the bucket's
// own rows only.
func (s *Store) TimeBuckets(ctx context.Context, f query.Filter, granularity string) ([]TimeBucket, error) {
	expr, ok := bucketExprs[granularity]
	if !ok {
		return nil, query.Validationf("interval", "unknown granularity %q", granularity)
	}
	p, err := f.Predicate()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s AS period,
		        COUNT(*) AS post_count,
		        SUM(comment_count) AS comment_count,
		        AVG(score) AS avg_score
		 FROM posts
		 WHERE %s
		 GROUP BY period
		 ORDER BY period`, expr, p.Expr), p.Args...)
	if err != nil {
		return nil, fmt.Errorf("bucketing posts: %w", err)
	}
	defer rows.Close()

	var out []TimeBucket
	for rows.Next() {
		var b TimeBucket
		if err := rows.Scan(&b.Period, &b.PostCount, &b.CommentCount, &b.AvgScore); err != nil {
			return nil, fmt.Errorf("scanning bucket: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SearchPosts returns one page of matching posts ordered by recency,
// plus the total match count.
func (s *Store) SearchPosts(ctx context.Context, f query.Filter, limit, offset int) ([]Post, int, error) {
	p, err := f.Predicate()
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM posts WHERE "+p.Expr, p.Args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting search results: %w", err)
	}

	args := append(append([]interface{}{}, p.Args...), limit, offset)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, community, author, title, SUBSTR(body, 1, 200),
		        created_utc, score, comment_count, permalink, url, domain, upvote_ratio
		 FROM posts
		 WHERE %s
		 ORDER BY created_utc DESC
		 LIMIT ? OFFSET ?`, p.Expr), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("searching posts: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var post Post
		if err := rows.Scan(&post.ID, &post.Community, &post.Author, &post.Title, &post.Body,
			&post.CreatedUTC, &post.Score, &post.CommentCount, &post.Permalink, &post.URL,
			&post.Domain, &post.UpvoteRatio); err != nil {
			return nil, 0, fmt.Errorf("scanning post: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, total, rows.Err()
}

// TopCommunities returns the most active communities under the filter.
func (s *Store) TopCommunities(ctx context.Context, f query.Filter, limit int) ([]EntityCount, error) {
	return s.topGrouped(ctx, f, "community", "", limit)
}

// TopDomains returns the most frequent external domains, skipping the
// self.<community> convention used by text posts.
func (s *Store) TopDomains(ctx context.Context, f query.Filter, limit int) ([]EntityCount, error) {
	return s.topGrouped(ctx, f, "domain", "domain NOT LIKE 'self.%'", limit)
}

// TopAuthors returns the most prolific authors, excluding sentinel
// identities.
func (s *Store) TopAuthors(ctx context.Context, f query.Filter, limit int) ([]EntityCount, error) {
	return s.topGrouped(ctx, f, "author", "author != ? AND author != ?", limit,
		AuthorDeleted, AuthorAutoModerator)
}

func (s *Store) topGrouped(ctx context.Context, f query.Filter, column, extra string, limit int, extraArgs ...interface{}) ([]EntityCount, error) {
	p, err := f.Predicate()
	if err != nil {
		return nil, err
	}
	where := p.Expr
	args := append([]interface{}{}, p.Args...)
	if extra != "" {
		where += " AND " + extra
		args = append(args, extraArgs...)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s, COUNT(*) AS post_count
		 FROM posts
		 WHERE %s
		 GROUP BY %s
		 ORDER BY post_count DESC, %s ASC
		 LIMIT ?`, column, where, column, column), args...)
	if err != nil {
		return nil, fmt.Errorf("grouping by %s: %w", column, err)
	}
	defer rows.Close()
	return scanEntityCounts(rows)
}

// TopEntities returns the most frequent values of the given axis
// (community or author) under the filter, for network node selection.
// Author axes exclude sentinel identities.
func (s *Store) TopEntities(ctx context.Context, f query.Filter, axis string, limit int) ([]EntityCount, error) {
	switch axis {
	case "community":
		return s.topGrouped(ctx, f, "community", "", limit)
	case "author":
		return s.TopAuthors(ctx, f, limit)
	default:
		return nil, query.Validationf("type", "unknown entity axis %q", axis)
	}
}

// SharedEdge is an unordered entity pair with the number of distinct
// secondary attributes the two entities share.
type SharedEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Weight int    `json:"weight"`
}

// SharedAttributeEdges derives co-occurrence edges among the given
// entities: shared authors for a community axis, shared communities
// for an author axis. Only pairs sharing more than one distinct
// attribute are returned; source < target holds for every edge so each
// unordered pair appears exactly once.
func (s *Store) SharedAttributeEdges(ctx context.Context, axis string, entities []string) ([]SharedEdge, error) {
	if len(entities) < 2 {
		return nil, nil
	}

	var nodeCol, sharedCol string
	switch axis {
	case "community":
		nodeCol, sharedCol = "community", "author"
	case "author":
		nodeCol, sharedCol = "author", "community"
	default:
		return nil, query.Validationf("type", "unknown entity axis %q", axis)
	}

	placeholders := strings.Repeat("?, ", len(entities)-1) + "?"
	args := make([]interface{}, 0, 2*len(entities)+2)
	for _, e := range entities {
		args = append(args, e)
	}
	for _, e := range entities {
		args = append(args, e)
	}

	sentinelClause := ""
	if axis == "community" {
		// Shared authorship through deleted/automated accounts is noise.
		sentinelClause = "AND a.author != ? AND a.author != ?"
		args = append(args, AuthorDeleted, AuthorAutoModerator)
	}

	q := fmt.Sprintf(
		`SELECT a.%[1]s AS source, b.%[1]s AS target, COUNT(DISTINCT a.%[2]s) AS weight
		 FROM posts a
		 JOIN posts b ON a.%[2]s = b.%[2]s
		 WHERE a.%[1]s IN (%[3]s)
		   AND b.%[1]s IN (%[3]s)
		   AND a.%[1]s < b.%[1]s
		   %[4]s
		 GROUP BY source, target
		 HAVING weight > 1
		 ORDER BY weight DESC, source ASC, target ASC`,
		nodeCol, sharedCol, placeholders, sentinelClause)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("deriving %s edges: %w", axis, err)
	}
	defer rows.Close()

	var edges []SharedEdge
	for rows.Next() {
		var e SharedEdge
		if err := rows.Scan(&e.Source, &e.Target, &e.Weight); err != nil {
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// Document is a text projection of one post for modeling.
type Document struct {
	ID         string
	Community  string
	Title      string
	Body       string
	CreatedUTC int64
}

// DocumentsForModeling projects matching posts with bodies longer than
// minBodyLen, in creation order, capped at limit.
func (s *Store) DocumentsForModeling(ctx context.Context, f query.Filter, minBodyLen, limit int) ([]Document, error) {
	p, err := f.Predicate()
	if err != nil {
		return nil, err
	}
	args := append(append([]interface{}{}, p.Args...), minBodyLen, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, community, title, body, created_utc
		 FROM posts
		 WHERE %s AND LENGTH(body) > ?
		 ORDER BY created_utc
		 LIMIT ?`, p.Expr), args...)
	if err != nil {
		return nil, fmt.Errorf("projecting documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Community, &d.Title, &d.Body, &d.CreatedUTC); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// SentimentRow is a text projection of one post for polarity scoring.
type SentimentRow struct {
	ID        string
	Title     string
	Body      string
	Community string
	Day       string // YYYY-MM-DD
}

// SentimentRows projects matching posts with their calendar day, in
// creation order.
func (s *Store) SentimentRows(ctx context.Context, f query.Filter) ([]SentimentRow, error) {
	p, err := f.Predicate()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, title, body, community, date(created_utc, 'unixepoch') AS day
		 FROM posts
		 WHERE %s
		 ORDER BY created_utc`, p.Expr), p.Args...)
	if err != nil {
		return nil, fmt.Errorf("projecting sentiment rows: %w", err)
	}
	defer rows.Close()

	var out []SentimentRow
	for rows.Next() {
		var r SentimentRow
		if err := rows.Scan(&r.ID, &r.Title, &r.Body, &r.Community, &r.Day); err != nil {
			return nil, fmt.Errorf("scanning sentiment row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EngagementStats holds score/comment aggregates for a filter.
type EngagementStats struct {
	AvgScore      float64 `json:"avg_score"`
	AvgComments   float64 `json:"avg_comments"`
	TotalScore    int     `json:"total_score"`
	TotalComments int     `json:"total_comments"`
}

// Engagement aggregates score and comment metrics for matching posts.
// Zero matches yield zero-valued stats, not NULL scan failures.
func (s *Store) Engagement(ctx context.Context, f query.Filter) (EngagementStats, error) {
	p, err := f.Predicate()
	if err != nil {
		return EngagementStats{}, err
	}
	var stats EngagementStats
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COALESCE(AVG(score), 0), COALESCE(AVG(comment_count), 0),
		        COALESCE(SUM(score), 0), COALESCE(SUM(comment_count), 0)
		 FROM posts WHERE %s`, p.Expr), p.Args...,
	).Scan(&stats.AvgScore, &stats.AvgComments, &stats.TotalScore, &stats.TotalComments)
	if err != nil {
		return EngagementStats{}, fmt.Errorf("aggregating engagement: %w", err)
	}
	// Averages are reported to one decimal everywhere they surface.
	stats.AvgScore = math.Round(stats.AvgScore*10) / 10
	stats.AvgComments = math.Round(stats.AvgComments*10) / 10
	return stats, nil
}

// DateRange returns the first and last calendar day with a matching
// post. Both strings are empty when nothing matches.
func (s *Store) DateRange(ctx context.Context, f query.Filter) (string, string, error) {
	p, err := f.Predicate()
	if err != nil {
		return "", "", err
	}
	var minDay, maxDay sql.NullString
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT MIN(date(created_utc, 'unixepoch')), MAX(date(created_utc, 'unixepoch'))
		 FROM posts WHERE %s`, p.Expr), p.Args...,
	).Scan(&minDay, &maxDay)
	if err != nil {
		return "", "", fmt.Errorf("computing date range: %w", err)
	}
	return minDay.String, maxDay.String, nil
}

// MostActiveDay returns the calendar day with the most matching posts.
// An empty day string means nothing matched.
func (s *Store) MostActiveDay(ctx context.Context, f query.Filter) (string, int, error) {
	p, err := f.Predicate()
	if err != nil {
		return "", 0, err
	}
	var day string
	var count int
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT date(created_utc, 'unixepoch') AS day, COUNT(*) AS post_count
		 FROM posts
		 WHERE %s
		 GROUP BY day
		 ORDER BY post_count DESC, day ASC
		 LIMIT 1`, p.Expr), p.Args...,
	).Scan(&day, &count)
	if err == sql.ErrNoRows {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("finding most active day: %w", err)
	}
	return day, count, nil
}
