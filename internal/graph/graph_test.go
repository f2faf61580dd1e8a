package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKnowledgeGraph(t *testing.T) {
	t.Parallel()

	g := NewKnowledgeGraph()

	assert.NotNil(t, g)
	assert.Equal(t, 0, g.NodeCount())
	assert.Equal(t, 0, g.EdgeCount())
}

func TestKnowledgeGraph_UpsertNode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("AddSingle", func(t *testing.T) {
		t.Parallel()
		g := NewKnowledgeGraph()

		require.NoError(t, g.UpsertNode(ctx, &Node{ID: "login.Login", Type: NodeKeyword}))

		assert.Equal(t, 1, g.NodeCount())
		n, err := g.Node(ctx, "login.Login")
		require.NoError(t, err)
		assert.Equal(t, NodeKeyword, n.Type)
	})

	t.Run("Idempotent", func(t *testing.T) {
		t.Parallel()
		g := NewKnowledgeGraph()
		node := &Node{ID: "tests/a.robot", Type: NodeFile, Attrs: map[string]any{AttrRole: "ATOMIC_TESTS"}}

		require.NoError(t, g.UpsertNode(ctx, node))
		require.NoError(t, g.UpsertNode(ctx, node))

		assert.Equal(t, 1, g.NodeCount())
		assert.Equal(t, 1, g.CountNodesByType(NodeFile))
	})

	t.Run("TypeChangeMovesIndex", func(t *testing.T) {
		t.Parallel()
		g := NewKnowledgeGraph()

		require.NoError(t, g.UpsertNode(ctx, &Node{ID: "Open App", Type: NodeUnknown}))
		assert.Equal(t, 1, g.CountNodesByType(NodeUnknown))

		require.NoError(t, g.UpsertNode(ctx, &Node{ID: "Open App", Type: NodeKeyword}))
		assert.Equal(t, 0, g.CountNodesByType(NodeUnknown))
		assert.Equal(t, 1, g.CountNodesByType(NodeKeyword))
		assert.Equal(t, 1, g.NodeCount())
	})

	t.Run("UnknownNodeIsNil", func(t *testing.T) {
		t.Parallel()
		g := NewKnowledgeGraph()
		n, err := g.Node(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, n)
	})
}

func TestKnowledgeGraph_UpsertEdge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("CreatesPlaceholders", func(t *testing.T) {
		t.Parallel()
		g := NewKnowledgeGraph()

		require.NoError(t, g.UpsertEdge(ctx, &Edge{Source: "a.Kw", Target: "Log", Type: EdgeCalls}))

		assert.Equal(t, 2, g.NodeCount())
		assert.Equal(t, 2, g.CountNodesByType(NodeUnknown))
		assert.Equal(t, 1, g.EdgeCount())
	})

	t.Run("SameTupleOnce", func(t *testing.T) {
		t.Parallel()
		g := NewKnowledgeGraph()
		e := &Edge{Source: "a.Kw", Target: "b.Kw", Type: EdgeCalls}

		require.NoError(t, g.UpsertEdge(ctx, e))
		require.NoError(t, g.UpsertEdge(ctx, e))

		assert.Equal(t, 1, g.EdgeCount())
	})

	t.Run("DifferentTypesCoexist", func(t *testing.T) {
		t.Parallel()
		g := NewKnowledgeGraph()

		require.NoError(t, g.UpsertEdge(ctx, &Edge{Source: "a", Target: "b", Type: EdgeCalls}))
		require.NoError(t, g.UpsertEdge(ctx, &Edge{Source: "a", Target: "b", Type: EdgeImports}))

		assert.Equal(t, 2, g.EdgeCount())
		calls, err := g.Outgoing(ctx, "a", EdgeCalls)
		require.NoError(t, err)
		assert.Len(t, calls, 1)
		all, err := g.Outgoing(ctx, "a", "")
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("Adjacency", func(t *testing.T) {
		t.Parallel()
		g := NewKnowledgeGraph()

		require.NoError(t, g.UpsertEdge(ctx, &Edge{Source: "t.Test", Target: "k.Kw", Type: EdgeCalls}))
		require.NoError(t, g.UpsertEdge(ctx, &Edge{Source: "k.Other", Target: "k.Kw", Type: EdgeCalls}))

		in, err := g.Incoming(ctx, "k.Kw", EdgeCalls)
		require.NoError(t, err)
		require.Len(t, in, 2)
		assert.Equal(t, "k.Other", in[0].Source)
		assert.Equal(t, "t.Test", in[1].Source)

		out, err := g.Outgoing(ctx, "nobody", EdgeCalls)
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestKnowledgeGraph_Reset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := NewKnowledgeGraph()

	require.NoError(t, g.UpsertEdge(ctx, &Edge{Source: "a", Target: "b", Type: EdgeCalls}))
	require.NoError(t, g.Reset(ctx))

	assert.Equal(t, 0, g.NodeCount())
	assert.Equal(t, 0, g.EdgeCount())
	nodes, err := g.NodesByType(ctx, NodeUnknown)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestKnowledgeGraph_ScansSorted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := NewKnowledgeGraph()

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, g.UpsertNode(ctx, &Node{ID: id, Type: NodeKeyword}))
	}

	nodes, err := g.Nodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{nodes[0].ID, nodes[1].ID, nodes[2].ID})
}
