package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// rawPost mirrors the source JSONL shape: a "kind" envelope around a
// "data" object with reddit-style field names.
type rawPost struct {
	Kind string `json:"kind"`
	Data struct {
		ID          string  `json:"id"`
		Subreddit   string  `json:"subreddit"`
		Author      string  `json:"author"`
		Title       string  `json:"title"`
		Selftext    string  `json:"selftext"`
		CreatedUTC  float64 `json:"created_utc"`
		Score       int     `json:"score"`
		NumComments int     `json:"num_comments"`
		Permalink   string  `json:"permalink"`
		URL         string  `json:"url"`
		Domain      string  `json:"domain"`
		UpvoteRatio float64 `json:"upvote_ratio"`
	} `json:"data"`
}

// LoadJSONL bulk-loads the post corpus from a JSONL file, one envelope
// per line. Malformed lines are skipped and logged, never fatal.
// Returns the number of posts inserted.
func (s *Store) LoadJSONL(ctx context.Context, path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening corpus file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	batch := make([]Post, 0, s.batchSize)
	total := 0
	lineNo := 0
	skipped := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var raw rawPost
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			skipped++
			slog.Warn("[Loader] Skipping malformed line",
				slog.Int("line", lineNo), slog.String("error", err.Error()))
			continue
		}
		if raw.Data.ID == "" {
			skipped++
			continue
		}

		batch = append(batch, Post{
			ID:           raw.Data.ID,
			Community:    raw.Data.Subreddit,
			Author:       raw.Data.Author,
			Title:        raw.Data.Title,
			Body:         raw.Data.Selftext,
			CreatedUTC:   int64(raw.Data.CreatedUTC),
			Score:        raw.Data.Score,
			CommentCount: raw.Data.NumComments,
			Permalink:    raw.Data.Permalink,
			URL:          raw.Data.URL,
			Domain:       raw.Data.Domain,
			UpvoteRatio:  raw.Data.UpvoteRatio,
		})

		if len(batch) >= s.batchSize {
			if err := s.InsertPosts(ctx, batch); err != nil {
				return total, err
			}
			total += len(batch)
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return total, fmt.Errorf("reading corpus file: %w", err)
	}

	if len(batch) > 0 {
		if err := s.InsertPosts(ctx, batch); err != nil {
			return total, err
		}
		total += len(batch)
	}

	if skipped > 0 {
		slog.Warn("[Loader] Finished with skipped lines",
			slog.Int("loaded", total), slog.Int("skipped", skipped))
	}
	return total, nil
}

// InsertPosts inserts a batch of posts in one transaction. Duplicate
// ids are ignored so a reload of the same corpus is idempotent.
func (s *Store) InsertPosts(ctx context.Context, posts []Post) error {
	if len(posts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO posts
		 (id, community, author, title, body, created_utc, score, comment_count, permalink, url, domain, upvote_ratio)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range posts {
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.Community, p.Author, p.Title, p.Body, p.CreatedUTC,
			p.Score, p.CommentCount, p.Permalink, p.URL, p.Domain, p.UpvoteRatio,
		); err != nil {
			return fmt.Errorf("inserting post %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}
