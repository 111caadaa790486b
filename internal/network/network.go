// Package network builds weighted entity co-occurrence graphs from the
// filtered post corpus: communities linked by shared authors, or
// authors linked by shared communities, with modularity-based group
// detection and graph-level metrics.
package network

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/threadlens/threadlens/internal/query"
	"github.com/threadlens/threadlens/internal/store"
)

// DefaultNodeLimit caps node selection when the caller does not.
const DefaultNodeLimit = 8000

// Valid entity axes.
const (
	AxisCommunity = "community"
	AxisAuthor    = "author"
)

// communitySeed fixes the modularity search so a given graph always
// groups the same way.
const communitySeed = 1

// Node is one graph entity.
type Node struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Posts       int    `json:"posts"`
	Connections int    `json:"connections"`
	Group       int    `json:"group"`
}

// Edge is an unordered pair with source < target lexicographically.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Weight int    `json:"weight"`
}

// GroupStats describes one detected community of nodes.
type GroupStats struct {
	ID        int     `json:"id"`
	Size      int     `json:"size"`
	Density   float64 `json:"density"`
	AvgDegree float64 `json:"avg_degree"`
}

// Metrics are graph-level summary numbers.
type Metrics struct {
	Density             float64 `json:"density"`
	Modularity          float64 `json:"modularity"`
	Communities         int     `json:"communities"`
	AvgConnections      float64 `json:"avgConnections"`
	ConnectedComponents int     `json:"connected_components"`
}

// Graph is a complete network result. MetricsError is set when metric
// computation failed on a degenerate graph and only the raw node/edge
// lists are trustworthy.
type Graph struct {
	Nodes        []Node       `json:"nodes"`
	Edges        []Edge       `json:"links"`
	Groups       []GroupStats `json:"communities,omitempty"`
	Metrics      Metrics      `json:"metrics"`
	MetricsError string       `json:"metrics_error,omitempty"`
}

// Build selects up to limit of the most frequent entities on the given
// axis, derives shared-attribute edges among them, and computes graph
// metrics. Zero matching entities yield an explicit empty graph, never
// an error.
func Build(ctx context.Context, st *store.Store, f query.Filter, axis string, limit int) (*Graph, error) {
	if axis != AxisCommunity && axis != AxisAuthor {
		return nil, query.Validationf("type", "use %q or %q", AxisCommunity, AxisAuthor)
	}
	if limit <= 0 || limit > DefaultNodeLimit {
		limit = DefaultNodeLimit
	}

	entities, err := st.TopEntities(ctx, f, axis, limit)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return &Graph{Nodes: []Node{}, Edges: []Edge{}}, nil
	}

	names := make([]string, len(entities))
	nodes := make([]Node, len(entities))
	for i, e := range entities {
		names[i] = e.Name
		nodes[i] = Node{ID: e.Name, Name: e.Name, Type: axis, Posts: e.Count, Group: -1}
	}

	shared, err := st.SharedAttributeEdges(ctx, axis, names)
	if err != nil {
		return nil, err
	}
	edges := make([]Edge, len(shared))
	degree := make(map[string]int, len(nodes))
	for i, e := range shared {
		edges[i] = Edge{Source: e.Source, Target: e.Target, Weight: e.Weight}
		degree[e.Source]++
		degree[e.Target]++
	}
	for i := range nodes {
		nodes[i].Connections = degree[nodes[i].ID]
	}

	result := &Graph{Nodes: nodes, Edges: edges}
	if err := computeMetrics(result); err != nil {
		// Degenerate graphs keep their raw node/edge lists; the error
		// is annotated instead of failing the whole request.
		slog.Warn("[Network] Metric computation failed",
			slog.String("axis", axis), slog.String("error", err.Error()))
		result.Metrics = Metrics{}
		result.Groups = nil
		result.MetricsError = err.Error()
	}
	return result, nil
}

// computeMetrics fills in density, degree averages, components and
// modularity groups. It recovers panics from the underlying graph
// library so a pathological graph degrades instead of crashing.
func computeMetrics(g *Graph) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("graph metrics: %v", r)
		}
	}()

	n := len(g.Nodes)
	g.Metrics.Density = round2(density(len(g.Edges), n))

	totalDegree := 0
	for _, node := range g.Nodes {
		totalDegree += node.Connections
	}
	if n > 0 {
		g.Metrics.AvgConnections = round1(float64(totalDegree) / float64(n))
	}

	wg := simple.NewWeightedUndirectedGraph(0, 0)
	index := make(map[string]int64, n)
	for i, node := range g.Nodes {
		id := int64(i)
		index[node.ID] = id
		wg.AddNode(simple.Node(id))
	}
	for _, e := range g.Edges {
		wg.SetWeightedEdge(simple.WeightedEdge{
			F: simple.Node(index[e.Source]),
			T: simple.Node(index[e.Target]),
			W: float64(e.Weight),
		})
	}

	g.Metrics.ConnectedComponents = len(topo.ConnectedComponents(wg))

	reduced := community.Modularize(wg, 1.0, rand.NewSource(communitySeed))
	groups := reduced.Communities()
	g.Metrics.Communities = len(groups)
	g.Metrics.Modularity = round2(community.Q(wg, groups, 1.0))

	membership := make(map[string]int, n)
	g.Groups = make([]GroupStats, 0, len(groups))
	for gi, members := range groups {
		for _, node := range members {
			membership[g.Nodes[node.ID()].ID] = gi
		}
		g.Groups = append(g.Groups, groupStats(gi, members, g.Edges, func(id graph.Node) string {
			return g.Nodes[id.ID()].ID
		}))
	}
	for i := range g.Nodes {
		g.Nodes[i].Group = membership[g.Nodes[i].ID]
	}
	return nil
}

func groupStats(id int, members []graph.Node, edges []Edge, name func(graph.Node) string) GroupStats {
	inGroup := make(map[string]bool, len(members))
	for _, m := range members {
		inGroup[name(m)] = true
	}

	internal := 0
	for _, e := range edges {
		if inGroup[e.Source] && inGroup[e.Target] {
			internal++
		}
	}

	size := len(members)
	avgDegree := 0.0
	if size > 0 {
		avgDegree = round1(2 * float64(internal) / float64(size))
	}
	return GroupStats{
		ID:        id,
		Size:      size,
		Density:   round2(density(internal, size)),
		AvgDegree: avgDegree,
	}
}

// density is actual edges over possible edges; zero below two nodes.
func density(edges, nodes int) float64 {
	if nodes < 2 {
		return 0
	}
	possible := float64(nodes*(nodes-1)) / 2
	return float64(edges) / possible
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
