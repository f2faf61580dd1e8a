package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// NodeLinkDocument is the file-based persisted form of a graph. Node and
// edge attributes are flattened next to the identity fields.
type NodeLinkDocument struct {
	RunID       string           `json:"run_id"`
	GeneratedAt string           `json:"generated_at"`
	Nodes       []map[string]any `json:"nodes"`
	Edges       []map[string]any `json:"edges"`
}

// Reserved keys of the flattened node-link entries.
const (
	linkID     = "id"
	linkSource = "source"
	linkTarget = "target"
	linkType   = "type"
)

// ToNodeLink exports store into a node-link document stamped with a fresh
// run ID.
func ToNodeLink(ctx context.Context, store Store) (*NodeLinkDocument, error) {
	nodes, err := store.Nodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	edges, err := store.Edges(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing edges: %w", err)
	}

	doc := &NodeLinkDocument{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Nodes:       make([]map[string]any, 0, len(nodes)),
		Edges:       make([]map[string]any, 0, len(edges)),
	}

	for _, n := range nodes {
		entry := make(map[string]any, len(n.Attrs)+1)
		for k, v := range n.Attrs {
			entry[k] = v
		}
		entry[linkID] = n.ID
		entry[AttrNodeType] = string(n.Type)
		doc.Nodes = append(doc.Nodes, entry)
	}

	for _, e := range edges {
		entry := make(map[string]any, len(e.Attrs)+3)
		for k, v := range e.Attrs {
			entry[k] = v
		}
		entry[linkSource] = e.Source
		entry[linkTarget] = e.Target
		entry[linkType] = string(e.Type)
		doc.Edges = append(doc.Edges, entry)
	}

	return doc, nil
}

// SaveNodeLink writes store to path as a node-link JSON document, replacing
// any previous file atomically.
func SaveNodeLink(ctx context.Context, store Store, path string) (*NodeLinkDocument, error) {
	doc, err := ToNodeLink(ctx, store)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling node-link document: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("replacing %s: %w", path, err)
	}
	return doc, nil
}

// LoadNodeLink resets store and fills it from the node-link document at path.
// Integral attribute values come back as int, as they were stored.
func LoadNodeLink(ctx context.Context, path string, store Store) (*NodeLinkDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var doc NodeLinkDocument
	if err := decodeWithNumbers(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := store.Reset(ctx); err != nil {
		return nil, err
	}

	for _, entry := range doc.Nodes {
		node := &Node{Attrs: make(map[string]any, len(entry))}
		for k, v := range entry {
			switch k {
			case linkID:
				node.ID, _ = v.(string)
			case AttrNodeType:
				s, _ := v.(string)
				node.Type = NodeType(s)
			default:
				node.Attrs[k] = restoreNumber(v)
			}
		}
		if node.ID == "" {
			return nil, fmt.Errorf("node without id in %s", path)
		}
		if err := store.UpsertNode(ctx, node); err != nil {
			return nil, err
		}
	}

	for _, entry := range doc.Edges {
		edge := &Edge{}
		for k, v := range entry {
			s, _ := v.(string)
			switch k {
			case linkSource:
				edge.Source = s
			case linkTarget:
				edge.Target = s
			case linkType:
				edge.Type = EdgeType(s)
			default:
				if edge.Attrs == nil {
					edge.Attrs = make(map[string]any)
				}
				edge.Attrs[k] = restoreNumber(v)
			}
		}
		if err := store.UpsertEdge(ctx, edge); err != nil {
			return nil, err
		}
	}

	return &doc, nil
}

// restoreNumber turns a decoded json.Number back into int when it is
// integral and float64 otherwise. Other values pass through unchanged.
func restoreNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return int(i)
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func restoreAttrs(attrs map[string]any) {
	for k, v := range attrs {
		attrs[k] = restoreNumber(v)
	}
}

func decodeWithNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// UnmarshalJSON decodes a node, keeping integral attributes as int.
func (n *Node) UnmarshalJSON(data []byte) error {
	type plain Node
	var p plain
	if err := decodeWithNumbers(data, &p); err != nil {
		return err
	}
	restoreAttrs(p.Attrs)
	*n = Node(p)
	return nil
}

// UnmarshalJSON decodes an edge, keeping integral attributes as int.
func (e *Edge) UnmarshalJSON(data []byte) error {
	type plain Edge
	var p plain
	if err := decodeWithNumbers(data, &p); err != nil {
		return err
	}
	restoreAttrs(p.Attrs)
	*e = Edge(p)
	return nil
}
