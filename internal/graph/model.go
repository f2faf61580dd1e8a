// Package graph provides the structural knowledge graph for rfgraph.
//
// It defines the node and edge types that represent Robot Framework
// artifacts (files, keywords, test cases, variables, tags, locator
// elements) and the typed edges between them (imports, defines, calls, ...).
package graph

// NodeType represents the type of a graph node.
type NodeType string

const (
	NodeFile           NodeType = "file"
	NodeKeyword        NodeType = "keyword"
	NodeTestCase       NodeType = "test_case"
	NodeVariable       NodeType = "variable"
	NodeTag            NodeType = "tag"
	NodeLocatorElement NodeType = "locator_element"

	// NodeUnknown marks a placeholder created for a call target that has not
	// been defined (yet). A later definition upgrades it in place.
	NodeUnknown NodeType = "unknown"
)

// EdgeType represents the type of a directed edge.
type EdgeType string

const (
	EdgeImports     EdgeType = "IMPORTS"
	EdgeDefines     EdgeType = "DEFINES"
	EdgeTests       EdgeType = "TESTS"
	EdgeCalls       EdgeType = "CALLS"
	EdgeTagged      EdgeType = "TAGGED"
	EdgeMapsElement EdgeType = "MAPS_ELEMENT"
)

// Attribute keys stored on nodes.
const (
	AttrNodeType = "node_type"
	AttrName     = "name"
	AttrDoc      = "doc"
	AttrSource   = "source"
	AttrLine     = "line"
	AttrRole     = "role"
	AttrPlatform = "platform"
	AttrVarType  = "var_type"
	AttrValue    = "value"
	AttrIOS      = "ios"
	AttrAndroid  = "android"
	AttrSetup    = "setup"
	AttrTeardown = "teardown"
	AttrTemplate = "template"
)

// Node is a vertex of the graph, keyed by its stable identity.
type Node struct {
	// ID is the node identity (file path, FQN, "var:", "tag:" or "element:" uid).
	ID string `json:"id"`

	// Type is the node type.
	Type NodeType `json:"type"`

	// Attrs holds the node's stored attributes.
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Edge is a directed, typed edge. At most one edge exists per
// (Source, Target, Type) tuple.
type Edge struct {
	Source string         `json:"source"`
	Target string         `json:"target"`
	Type   EdgeType       `json:"type"`
	Attrs  map[string]any `json:"attrs,omitempty"`
}

// Key returns the identity of the edge used for idempotent upserts.
func (e *Edge) Key() string {
	return EdgeKey(e.Source, e.Type, e.Target)
}

// EdgeKey builds the identity of an edge from its tuple.
func EdgeKey(source string, edgeType EdgeType, target string) string {
	return source + "|" + string(edgeType) + "|" + target
}

// StringAttr returns a string attribute or "" when absent.
func (n *Node) StringAttr(key string) string {
	if n == nil || n.Attrs == nil {
		return ""
	}
	s, _ := n.Attrs[key].(string)
	return s
}

// MergeNode merges incoming into existing and returns the result. Attributes
// from incoming overwrite existing ones. An unknown placeholder takes the
// type of a concrete definition, but a concrete type is never downgraded to
// unknown.
func MergeNode(existing, incoming *Node) *Node {
	if existing == nil {
		return cloneNode(incoming)
	}

	merged := cloneNode(existing)
	if incoming.Type != NodeUnknown {
		merged.Type = incoming.Type
	}
	for k, v := range incoming.Attrs {
		merged.Attrs[k] = v
	}
	merged.Attrs[AttrNodeType] = string(merged.Type)
	return merged
}

func cloneNode(n *Node) *Node {
	c := &Node{ID: n.ID, Type: n.Type, Attrs: make(map[string]any, len(n.Attrs)+1)}
	for k, v := range n.Attrs {
		c.Attrs[k] = v
	}
	c.Attrs[AttrNodeType] = string(n.Type)
	return c
}
