package graph

import "context"

// Store is the backend abstraction behind Index: upsert primitives, one-hop
// adjacency and whole-graph scans.
//
// Implementations must be safe for concurrent use and idempotent: upserting
// the same node or the same (source, target, type) edge twice leaves exactly
// one copy. Lookups of unknown identities return nil/empty, not errors.
type Store interface {
	// UpsertNode merges the node into the store (see MergeNode).
	UpsertNode(ctx context.Context, node *Node) error

	// UpsertEdge inserts the edge unless an identical tuple already exists.
	// Missing endpoints are created as NodeUnknown placeholders.
	UpsertEdge(ctx context.Context, edge *Edge) error

	// Node returns the node with the given ID, or nil if it does not exist.
	Node(ctx context.Context, id string) (*Node, error)

	// NodesByType returns all nodes of the given type.
	NodesByType(ctx context.Context, nodeType NodeType) ([]*Node, error)

	// Outgoing returns edges of the given type leaving id.
	Outgoing(ctx context.Context, id string, edgeType EdgeType) ([]*Edge, error)

	// Incoming returns edges of the given type arriving at id.
	Incoming(ctx context.Context, id string, edgeType EdgeType) ([]*Edge, error)

	// Nodes returns every node.
	Nodes(ctx context.Context) ([]*Node, error)

	// Edges returns every edge.
	Edges(ctx context.Context) ([]*Edge, error)

	// Reset drops all nodes and edges.
	Reset(ctx context.Context) error
}
