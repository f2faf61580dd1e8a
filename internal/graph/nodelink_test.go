package graph

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeLink_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ix := newLoadedIndex(t)
	path := filepath.Join(t.TempDir(), "nested", "graph.json")

	saved, err := SaveNodeLink(ctx, ix.Store(), path)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.RunID)
	assert.NotEmpty(t, saved.GeneratedAt)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	restored := NewKnowledgeGraph()
	require.NoError(t, restored.UpsertNode(ctx, &Node{ID: "stale", Type: NodeKeyword}))

	loaded, err := LoadNodeLink(ctx, path, restored)
	require.NoError(t, err)
	assert.Equal(t, saved.RunID, loaded.RunID)

	origSummary, err := ix.Summary(ctx)
	require.NoError(t, err)
	restoredSummary, err := NewIndex(restored).Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, origSummary, restoredSummary)

	stale, err := restored.Node(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, stale)

	n, err := restored.Node(ctx, "element:submit_btn")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, NodeLocatorElement, n.Type)
	assert.Equal(t, "id=submit", n.StringAttr(AttrIOS))
	assert.Equal(t, "", n.StringAttr(AttrAndroid))

	mismatches, err := NewIndex(restored).MismatchedLocatorElements(ctx)
	require.NoError(t, err)
	assert.Len(t, mismatches, 1)

	kw, err := restored.Node(ctx, "login_page.Tap Submit")
	require.NoError(t, err)
	require.NotNil(t, kw)
	assert.Equal(t, 5, kw.Attrs[AttrLine])
	assert.IsType(t, 0, kw.Attrs[AttrLine])
}

func TestRestoreNumber(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 42, restoreNumber(json.Number("42")))
	assert.Equal(t, 0.75, restoreNumber(json.Number("0.75")))
	assert.Equal(t, "x", restoreNumber("x"))
	assert.Equal(t, true, restoreNumber(true))
}

func TestNodeLink_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("MissingFile", func(t *testing.T) {
		t.Parallel()
		_, err := LoadNodeLink(ctx, filepath.Join(t.TempDir(), "absent.json"), NewKnowledgeGraph())
		assert.Error(t, err)
	})

	t.Run("Malformed", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "graph.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

		_, err := LoadNodeLink(ctx, path, NewKnowledgeGraph())
		assert.Error(t, err)
	})

	t.Run("NodeWithoutID", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "graph.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"nodes":[{"node_type":"file"}],"edges":[]}`), 0o644))

		_, err := LoadNodeLink(ctx, path, NewKnowledgeGraph())
		assert.Error(t, err)
	})
}

func TestNode_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	var n Node
	require.NoError(t, json.Unmarshal([]byte(`{"id":"k","type":"keyword","attrs":{"line":12,"name":"K","score":0.5}}`), &n))
	assert.Equal(t, "k", n.ID)
	assert.Equal(t, NodeKeyword, n.Type)
	assert.Equal(t, 12, n.Attrs[AttrLine])
	assert.Equal(t, 0.5, n.Attrs["score"])
	assert.Equal(t, "K", n.StringAttr(AttrName))

	var e Edge
	require.NoError(t, json.Unmarshal([]byte(`{"source":"a","target":"b","type":"CALLS","attrs":{"count":2}}`), &e))
	assert.Equal(t, "a", e.Source)
	assert.Equal(t, 2, e.Attrs["count"])
}
