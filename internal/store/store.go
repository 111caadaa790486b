// Package store provides the SQLite-backed record store for threadlens.
//
// The post corpus is loaded once at startup and is read-only for the
// lifetime of the process. Every analytical engine reaches the corpus
// through predicate-qualified queries on this store; none of them
// mutate it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/threadlens/threadlens/internal/query"
)

// DefaultBatchSize is the batch size for bulk inserts during loading.
const DefaultBatchSize = 500

// Sentinel author values that denote excluded identities.
const (
	AuthorDeleted       = "[deleted]"
	AuthorAutoModerator = "AutoModerator"
)

// Post is one ingested social-media post. Immutable after load.
type Post struct {
	ID           string  `json:"id"`
	Community    string  `json:"community"`
	Author       string  `json:"author"`
	Title        string  `json:"title"`
	Body         string  `json:"body,omitempty"`
	CreatedUTC   int64   `json:"created_utc"`
	Score        int     `json:"score"`
	CommentCount int     `json:"comment_count"`
	Permalink    string  `json:"permalink,omitempty"`
	URL          string  `json:"url,omitempty"`
	Domain       string  `json:"domain,omitempty"`
	UpvoteRatio  float64 `json:"upvote_ratio,omitempty"`
}

// EntityCount is a grouped count for one entity value.
type EntityCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Store is the read-only data-access handle handed to each engine.
type Store struct {
	db        *sql.DB
	batchSize int
}

// Open creates or opens the post database. Pass ":memory:" for an
// in-memory corpus (the common case: the corpus is rebuilt from the
// source file on every start).
func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// A single connection keeps :memory: databases coherent across the
	// pool and is enough for a read-mostly workload.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, batchSize: DefaultBatchSize}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id            TEXT PRIMARY KEY,
	community     TEXT NOT NULL,
	author        TEXT NOT NULL,
	title         TEXT NOT NULL,
	body          TEXT NOT NULL DEFAULT '',
	created_utc   INTEGER NOT NULL,
	score         INTEGER NOT NULL DEFAULT 0,
	comment_count INTEGER NOT NULL DEFAULT 0,
	permalink     TEXT NOT NULL DEFAULT '',
	url           TEXT NOT NULL DEFAULT '',
	domain        TEXT NOT NULL DEFAULT '',
	upvote_ratio  REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_utc);
CREATE INDEX IF NOT EXISTS idx_posts_community ON posts(community);
CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author);
CREATE INDEX IF NOT EXISTS idx_posts_domain ON posts(domain);
`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// TotalPosts returns the size of the whole corpus.
func (s *Store) TotalPosts(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&n)
	return n, err
}

// CountPosts returns the number of posts matching the filter.
func (s *Store) CountPosts(ctx context.Context, f query.Filter) (int, error) {
	p, err := f.Predicate()
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM posts WHERE "+p.Expr, p.Args...,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting posts: %w", err)
	}
	return n, nil
}

func scanEntityCounts(rows *sql.Rows) ([]EntityCount, error) {
	var out []EntityCount
	for rows.Next() {
		var e EntityCount
		if err := rows.Scan(&e.Name, &e.Count); err != nil {
			return nil, fmt.Errorf("scanning entity count: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
