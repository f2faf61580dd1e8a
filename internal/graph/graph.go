// Package graph provides the in-memory knowledge graph for rfgraph.
//
// KnowledgeGraph is a lightweight, map-backed Store with O(1) lookups by
// identity. Secondary indexes on node type and adjacency lists keep one-hop
// queries proportional to the result set rather than the total graph size.
package graph

import (
	"context"
	"sort"
	"sync"
)

// KnowledgeGraph is an in-memory directed graph of Robot Framework
// artifacts and their relationships.
//
// Nodes are keyed by identity; edges are keyed by their (source, type,
// target) tuple, which makes every upsert idempotent.
type KnowledgeGraph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	edges map[string]*Edge

	// Secondary indexes, kept in sync by the upsert helpers.
	byType   map[NodeType]map[string]*Node
	outgoing map[string]map[string]*Edge
	incoming map[string]map[string]*Edge
}

var _ Store = (*KnowledgeGraph)(nil)

// NewKnowledgeGraph creates a new empty knowledge graph.
func NewKnowledgeGraph() *KnowledgeGraph {
	g := &KnowledgeGraph{}
	g.reset()
	return g
}

func (g *KnowledgeGraph) reset() {
	g.nodes = make(map[string]*Node)
	g.edges = make(map[string]*Edge)
	g.byType = make(map[NodeType]map[string]*Node)
	g.outgoing = make(map[string]map[string]*Edge)
	g.incoming = make(map[string]map[string]*Edge)
}

// NodeCount returns the number of nodes without list materialization.
func (g *KnowledgeGraph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges without list materialization.
func (g *KnowledgeGraph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// CountNodesByType returns the count of nodes with the given type.
func (g *KnowledgeGraph) CountNodesByType(nodeType NodeType) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.byType[nodeType])
}

// UpsertNode implements Store.
func (g *KnowledgeGraph) UpsertNode(_ context.Context, node *Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.upsertNodeLocked(node)
	return nil
}

// upsertNodeLocked merges node into the graph. Must be called with the write
// lock held.
func (g *KnowledgeGraph) upsertNodeLocked(node *Node) {
	old := g.nodes[node.ID]
	merged := MergeNode(old, node)

	if old != nil && old.Type != merged.Type {
		delete(g.byType[old.Type], node.ID)
	}

	g.nodes[node.ID] = merged
	if g.byType[merged.Type] == nil {
		g.byType[merged.Type] = make(map[string]*Node)
	}
	g.byType[merged.Type][node.ID] = merged
}

// UpsertEdge implements Store.
func (g *KnowledgeGraph) UpsertEdge(_ context.Context, edge *Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range []string{edge.Source, edge.Target} {
		if _, ok := g.nodes[id]; !ok {
			g.upsertNodeLocked(&Node{ID: id, Type: NodeUnknown})
		}
	}

	key := edge.Key()
	if _, ok := g.edges[key]; ok {
		return nil
	}

	stored := &Edge{Source: edge.Source, Target: edge.Target, Type: edge.Type, Attrs: edge.Attrs}
	g.edges[key] = stored

	if g.outgoing[edge.Source] == nil {
		g.outgoing[edge.Source] = make(map[string]*Edge)
	}
	g.outgoing[edge.Source][key] = stored

	if g.incoming[edge.Target] == nil {
		g.incoming[edge.Target] = make(map[string]*Edge)
	}
	g.incoming[edge.Target][key] = stored
	return nil
}

// Node implements Store.
func (g *KnowledgeGraph) Node(_ context.Context, id string) (*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id], nil
}

// NodesByType implements Store.
func (g *KnowledgeGraph) NodesByType(_ context.Context, nodeType NodeType) ([]*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := g.byType[nodeType]
	result := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		result = append(result, n)
	}
	sortNodes(result)
	return result, nil
}

// Outgoing implements Store.
func (g *KnowledgeGraph) Outgoing(_ context.Context, id string, edgeType EdgeType) ([]*Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return filterEdges(g.outgoing[id], edgeType), nil
}

// Incoming implements Store.
func (g *KnowledgeGraph) Incoming(_ context.Context, id string, edgeType EdgeType) ([]*Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return filterEdges(g.incoming[id], edgeType), nil
}

// Nodes implements Store.
func (g *KnowledgeGraph) Nodes(_ context.Context) ([]*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		result = append(result, n)
	}
	sortNodes(result)
	return result, nil
}

// Edges implements Store.
func (g *KnowledgeGraph) Edges(_ context.Context) ([]*Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]*Edge, 0, len(g.edges))
	for _, e := range g.edges {
		result = append(result, e)
	}
	sortEdges(result)
	return result, nil
}

// Reset implements Store.
func (g *KnowledgeGraph) Reset(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reset()
	return nil
}

func filterEdges(edges map[string]*Edge, edgeType EdgeType) []*Edge {
	result := make([]*Edge, 0, len(edges))
	for _, e := range edges {
		if edgeType == "" || e.Type == edgeType {
			result = append(result, e)
		}
	}
	sortEdges(result)
	return result
}

func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}

func sortEdges(edges []*Edge) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].Key() < edges[j].Key() })
}
