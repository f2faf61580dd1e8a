package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/Benny93/rfgraph/internal/graph"
)

// BadgerGraphStore is a BadgerDB-backed graph.Store.
//
// Layout:
//
//	n:<id>                      node JSON
//	t:<type>\x00<id>            node type index
//	r:<source|TYPE|target>      edge JSON
//	i:out:<source>\x00<TYPE>\x00<target>   edge key
//	i:in:<target>\x00<TYPE>\x00<source>    edge key
type BadgerGraphStore struct {
	backend *BadgerBackend
}

var _ graph.Store = (*BadgerGraphStore)(nil)

// UpsertNode implements graph.Store.
func (s *BadgerGraphStore) UpsertNode(_ context.Context, node *graph.Node) error {
	return s.backend.update(func(txn *badger.Txn) error {
		return upsertNodeTxn(txn, node)
	})
}

func upsertNodeTxn(txn *badger.Txn, node *graph.Node) error {
	var old *graph.Node
	var existing graph.Node
	found, err := getJSON(txn, nodeKey(node.ID), &existing)
	if err != nil {
		return err
	}
	if found {
		old = &existing
	}

	merged := graph.MergeNode(old, node)
	if old != nil && old.Type != merged.Type {
		if err := txn.Delete(typeKey(old.Type, node.ID)); err != nil {
			return fmt.Errorf("deleting type index: %w", err)
		}
	}

	if err := setJSON(txn, nodeKey(node.ID), merged); err != nil {
		return err
	}
	if err := txn.Set(typeKey(merged.Type, node.ID), nil); err != nil {
		return fmt.Errorf("setting type index: %w", err)
	}
	return nil
}

// UpsertEdge implements graph.Store.
func (s *BadgerGraphStore) UpsertEdge(_ context.Context, edge *graph.Edge) error {
	return s.backend.update(func(txn *badger.Txn) error {
		for _, id := range []string{edge.Source, edge.Target} {
			if _, err := txn.Get(nodeKey(id)); errors.Is(err, badger.ErrKeyNotFound) {
				if err := upsertNodeTxn(txn, &graph.Node{ID: id, Type: graph.NodeUnknown}); err != nil {
					return err
				}
			} else if err != nil {
				return fmt.Errorf("getting node: %w", err)
			}
		}

		key := edge.Key()
		if _, err := txn.Get(relKey(key)); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("getting edge: %w", err)
		}

		if err := setJSON(txn, relKey(key), edge); err != nil {
			return err
		}
		if err := txn.Set(adjacencyKey(prefixOutgoing, edge.Source, edge.Type, edge.Target), []byte(key)); err != nil {
			return fmt.Errorf("setting outgoing index: %w", err)
		}
		if err := txn.Set(adjacencyKey(prefixIncoming, edge.Target, edge.Type, edge.Source), []byte(key)); err != nil {
			return fmt.Errorf("setting incoming index: %w", err)
		}
		return nil
	})
}

// Node implements graph.Store.
func (s *BadgerGraphStore) Node(_ context.Context, id string) (*graph.Node, error) {
	var node graph.Node
	var found bool
	err := s.backend.view(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, nodeKey(id), &node)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &node, nil
}

// NodesByType implements graph.Store.
func (s *BadgerGraphStore) NodesByType(_ context.Context, nodeType graph.NodeType) ([]*graph.Node, error) {
	var nodes []*graph.Node
	prefix := prefixNodeType + string(nodeType) + keySep
	err := s.backend.view(func(txn *badger.Txn) error {
		return scanPrefix(txn, prefix, func(key, _ []byte) error {
			id := strings.TrimPrefix(string(key), prefix)
			var node graph.Node
			found, err := getJSON(txn, nodeKey(id), &node)
			if err != nil {
				return err
			}
			if found {
				nodes = append(nodes, &node)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s nodes: %w", nodeType, err)
	}
	return nodes, nil
}

// Outgoing implements graph.Store.
func (s *BadgerGraphStore) Outgoing(_ context.Context, id string, edgeType graph.EdgeType) ([]*graph.Edge, error) {
	return s.adjacent(prefixOutgoing, id, edgeType)
}

// Incoming implements graph.Store.
func (s *BadgerGraphStore) Incoming(_ context.Context, id string, edgeType graph.EdgeType) ([]*graph.Edge, error) {
	return s.adjacent(prefixIncoming, id, edgeType)
}

func (s *BadgerGraphStore) adjacent(direction, id string, edgeType graph.EdgeType) ([]*graph.Edge, error) {
	prefix := direction + id + keySep
	if edgeType != "" {
		prefix += string(edgeType) + keySep
	}

	var edges []*graph.Edge
	err := s.backend.view(func(txn *badger.Txn) error {
		return scanPrefix(txn, prefix, func(_, val []byte) error {
			var edge graph.Edge
			found, err := getJSON(txn, relKey(string(val)), &edge)
			if err != nil {
				return err
			}
			if found {
				edges = append(edges, &edge)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reading adjacency of %s: %w", id, err)
	}
	sortEdges(edges)
	return edges, nil
}

// Nodes implements graph.Store.
func (s *BadgerGraphStore) Nodes(_ context.Context) ([]*graph.Node, error) {
	var nodes []*graph.Node
	err := s.backend.view(func(txn *badger.Txn) error {
		return scanPrefix(txn, prefixNode, func(key, val []byte) error {
			var node graph.Node
			if err := json.Unmarshal(val, &node); err != nil {
				return fmt.Errorf("unmarshaling node %q: %w", key, err)
			}
			nodes = append(nodes, &node)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scanning nodes: %w", err)
	}
	return nodes, nil
}

// Edges implements graph.Store.
func (s *BadgerGraphStore) Edges(_ context.Context) ([]*graph.Edge, error) {
	var edges []*graph.Edge
	err := s.backend.view(func(txn *badger.Txn) error {
		return scanPrefix(txn, prefixRel, func(key, val []byte) error {
			var edge graph.Edge
			if err := json.Unmarshal(val, &edge); err != nil {
				return fmt.Errorf("unmarshaling edge %q: %w", key, err)
			}
			edges = append(edges, &edge)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scanning edges: %w", err)
	}
	return edges, nil
}

// Reset implements graph.Store.
func (s *BadgerGraphStore) Reset(_ context.Context) error {
	if err := s.backend.dropPrefixes(prefixNode, prefixNodeType, prefixRel, prefixIncoming, prefixOutgoing); err != nil {
		return fmt.Errorf("dropping graph: %w", err)
	}
	return nil
}

// BulkLoad replaces the stored graph with the contents of src.
func (s *BadgerGraphStore) BulkLoad(ctx context.Context, src graph.Store) error {
	nodes, err := src.Nodes(ctx)
	if err != nil {
		return err
	}
	edges, err := src.Edges(ctx)
	if err != nil {
		return err
	}

	if err := s.Reset(ctx); err != nil {
		return err
	}

	for _, n := range nodes {
		if err := s.UpsertNode(ctx, n); err != nil {
			return fmt.Errorf("loading node %s: %w", n.ID, err)
		}
	}
	for _, e := range edges {
		if err := s.UpsertEdge(ctx, e); err != nil {
			return fmt.Errorf("loading edge %s: %w", e.Key(), err)
		}
	}
	return nil
}

func nodeKey(id string) []byte {
	return []byte(prefixNode + id)
}

func relKey(key string) []byte {
	return []byte(prefixRel + key)
}

func typeKey(nodeType graph.NodeType, id string) []byte {
	return []byte(prefixNodeType + string(nodeType) + keySep + id)
}

func adjacencyKey(direction, id string, edgeType graph.EdgeType, other string) []byte {
	return []byte(direction + id + keySep + string(edgeType) + keySep + other)
}

// sortEdges puts edges in edge-key order; adjacency keys sort by type first.
func sortEdges(edges []*graph.Edge) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].Key() < edges[j].Key() })
}
