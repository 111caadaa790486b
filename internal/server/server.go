// Package server exposes the analytics engines over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/threadlens/threadlens/internal/insights"
	"github.com/threadlens/threadlens/internal/network"
	"github.com/threadlens/threadlens/internal/query"
	"github.com/threadlens/threadlens/internal/sentiment"
	"github.com/threadlens/threadlens/internal/store"
	"github.com/threadlens/threadlens/internal/timeseries"
	"github.com/threadlens/threadlens/internal/topics"
)

const (
	defaultSearchLimit = 25
	maxSearchLimit     = 100
	defaultTopicCount  = 5
	defaultNetworkSize = 50
	statsLimit         = 10
)

// Server wires one store into the engine endpoints.
type Server struct {
	store    *store.Store
	analyzer *sentiment.Analyzer
	insights *insights.Builder
}

func New(st *store.Store) *Server {
	a := sentiment.NewAnalyzer()
	return &Server{
		store:    st,
		analyzer: a,
		insights: insights.NewBuilder(st, a),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/posts/search", s.handleSearch)
	mux.HandleFunc("/api/timeseries", s.handleTimeseries)
	mux.HandleFunc("/api/network", s.handleNetwork)
	mux.HandleFunc("/api/sentiment", s.handleSentiment)
	mux.HandleFunc("/api/topics", s.handleTopics)
	mux.HandleFunc("/api/ai/insights", s.handleInsights)
	mux.HandleFunc("/api/ai/summary", s.handleInsights)
	return mux
}

// Serve blocks on the listener until the context is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	slog.Info("[Server] Listening", slog.String("addr", addr))

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// parseFilter reads the shared predicate fields from query params.
func parseFilter(r *http.Request) query.Filter {
	q := r.URL.Query()
	return query.Filter{
		Keyword:   q.Get("keyword"),
		Community: q.Get("subreddit"),
		Author:    q.Get("author"),
		Domain:    q.Get("domain"),
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
	}
}

func intParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	total, err := s.store.TotalPosts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]interface{}{
		"status":      "ok",
		"total_posts": total,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f := parseFilter(r)

	total, err := s.store.CountPosts(ctx, f)
	if err != nil {
		writeError(w, err)
		return
	}
	communities, err := s.store.TopCommunities(ctx, f, statsLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	domains, err := s.store.TopDomains(ctx, f, statsLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	authors, err := s.store.TopAuthors(ctx, f, statsLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	engagement, err := s.store.Engagement(ctx, f)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, 200, map[string]interface{}{
		"total_posts":    total,
		"top_subreddits": communities,
		"top_domains":    domains,
		"top_authors":    authors,
		"engagement":     engagement,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	f := parseFilter(r)

	limit := intParam(r, "limit", defaultSearchLimit)
	if limit < 1 || limit > maxSearchLimit {
		limit = defaultSearchLimit
	}
	offset := intParam(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	posts, total, err := s.store.SearchPosts(r.Context(), f, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	if posts == nil {
		posts = []store.Post{}
	}
	writeJSON(w, 200, map[string]interface{}{
		"posts":  posts,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleTimeseries(w http.ResponseWriter, r *http.Request) {
	f := parseFilter(r)
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "day"
	}

	points, err := timeseries.Series(r.Context(), s.store, f, interval)
	if err != nil {
		writeError(w, err)
		return
	}
	if points == nil {
		points = []timeseries.Point{}
	}
	writeJSON(w, 200, map[string]interface{}{
		"interval": interval,
		"data":     points,
	})
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	f := parseFilter(r)
	axis := r.URL.Query().Get("type")
	if axis == "" {
		axis = network.AxisCommunity
	}
	limit := intParam(r, "limit", defaultNetworkSize)

	g, err := network.Build(r.Context(), s.store, f, axis, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, g)
}

func (s *Server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	res, err := s.analyzer.Aggregate(r.Context(), s.store, parseFilter(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, res)
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	f := parseFilter(r)
	k := intParam(r, "num_topics", defaultTopicCount)

	res, err := topics.Model(r.Context(), s.store, f, k)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, res)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	summary, err := s.insights.Build(r.Context(), parseFilter(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, summary)
}

// writeError maps the error taxonomy onto HTTP statuses: invalid input
// 400, too little data 422, anything else 500.
func writeError(w http.ResponseWriter, err error) {
	var verr *query.ValidationError
	var ierr *query.InsufficientDataError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error()})
	case errors.As(err, &ierr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": ierr.Error()})
	default:
		slog.Error("[Server] Request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("internal error: %v", err)})
	}
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
