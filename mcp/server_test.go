package mcp

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/rfgraph/internal/config"
	"github.com/Benny93/rfgraph/internal/ingestion"
)

var project = map[string]string{
	"resources/web/po/login_page.resource": `*** Variables ***
&{IOS}    login_btn=//XCUIElementTypeButton[@name='Login']    submit_btn=//XCUIElementTypeButton[@name='Submit']
&{ANDROID}    login_btn=//android.widget.Button[@text='Login']

*** Keywords ***
Click Login Button
    Click Element    id=login

Unused Helper
    Log    nobody calls me
`,
	"resources/be/api/graphql.resource": `*** Keywords ***
Execute Delete User Mutation
    Post GraphQL    deleteUser
`,
	"tests/login.robot": `*** Settings ***
Resource    ../resources/web/po/login_page.resource
Resource    ../resources/be/api/graphql.resource

*** Test Cases ***
Valid Login
    [Tags]    web
    Click Login Button
    Execute Delete User Mutation

Mobile Login
    [Tags]    ios
    Click Login Button
`,
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	root := t.TempDir()
	for p, content := range project {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}

	logger := log.New(io.Discard)
	snap, _, err := ingestion.RunPipeline(context.Background(), config.DefaultConfig(root),
		ingestion.Options{Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = snap.Close() })
	return NewServer(snap, logger)
}

func TestNewServer(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	assert.NotNil(t, server.server)
	assert.NotNil(t, server.engine)
}

func TestServer_Tools(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	tools := server.ListTools()

	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
		assert.NotEmpty(t, tool.Description, tool.Name)
		require.NotNil(t, tool.InputSchema, tool.Name)
		assert.Equal(t, "object", tool.InputSchema.Type)
	}
	assert.ElementsMatch(t, []string{
		"rf_summary", "rf_scope", "rf_search", "rf_redundancy", "rf_smoke",
		"rf_mismatches", "rf_coverage", "rf_unused", "rf_suggest",
	}, names)
}

func TestServer_HandleToolCalls(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	ctx := context.Background()

	t.Run("Summary", func(t *testing.T) {
		out, err := server.CallTool(ctx, "rf_summary", nil)
		require.NoError(t, err)
		assert.Contains(t, out, "**Files:** 3")
		assert.Contains(t, out, "- PAGE_OBJECT: 1")
	})

	t.Run("Scope", func(t *testing.T) {
		out, err := server.CallTool(ctx, "rf_scope", map[string]any{"file": "tests/login.robot"})
		require.NoError(t, err)
		assert.Contains(t, out, "login_page.Click Login Button")
		assert.Contains(t, out, "graphql.Execute Delete User Mutation")
	})

	t.Run("ScopeWithoutFile", func(t *testing.T) {
		out, err := server.CallTool(ctx, "rf_scope", map[string]any{})
		require.NoError(t, err)
		assert.Equal(t, "No file provided", out)
	})

	t.Run("Search", func(t *testing.T) {
		out, err := server.CallTool(ctx, "rf_search", map[string]any{"query": "login button", "limit": float64(3)})
		require.NoError(t, err)
		assert.Contains(t, out, "Click Login Button")
	})

	t.Run("Mismatches", func(t *testing.T) {
		out, err := server.CallTool(ctx, "rf_mismatches", nil)
		require.NoError(t, err)
		assert.Contains(t, out, "1 PO elements have mismatched iOS/Android keys.")
		assert.Contains(t, out, "`submit_btn`")
	})

	t.Run("Coverage", func(t *testing.T) {
		out, err := server.CallTool(ctx, "rf_coverage", nil)
		require.NoError(t, err)
		assert.Contains(t, out, "1 GraphQL mutations lack SIT coverage.")
		assert.Contains(t, out, "graphql.Execute Delete User Mutation")
	})

	t.Run("Unused", func(t *testing.T) {
		out, err := server.CallTool(ctx, "rf_unused", nil)
		require.NoError(t, err)
		assert.Contains(t, out, "login_page.Unused Helper")
		assert.NotContains(t, out, "Click Login Button")
	})

	t.Run("Smoke", func(t *testing.T) {
		out, err := server.CallTool(ctx, "rf_smoke", map[string]any{"n": float64(2)})
		require.NoError(t, err)
		assert.Contains(t, out, "**Selected:** 2 (web 1, mobile 1)")
	})

	t.Run("Redundancy", func(t *testing.T) {
		out, err := server.CallTool(ctx, "rf_redundancy", map[string]any{"threshold": 0.5})
		require.NoError(t, err)
		assert.Contains(t, out, "**Threshold:** 0.50")
	})

	t.Run("RedundancyInvalidThreshold", func(t *testing.T) {
		_, err := server.CallTool(ctx, "rf_redundancy", map[string]any{"threshold": 1.5})
		assert.Error(t, err)
	})

	t.Run("Suggest", func(t *testing.T) {
		out, err := server.CallTool(ctx, "rf_suggest", map[string]any{
			"description": "click the login button",
			"target":      "tests/new_suite.robot",
		})
		require.NoError(t, err)
		assert.Contains(t, out, "# Reuse Plan for `tests/new_suite.robot`")
		assert.Contains(t, out, "Click Login Button")
	})

	t.Run("UnknownTool", func(t *testing.T) {
		_, err := server.CallTool(ctx, "unknown_tool", nil)
		assert.Error(t, err)
	})
}

func TestServer_Resources(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	ctx := context.Background()

	resources := server.ListResources()
	require.Len(t, resources, 2)
	for _, r := range resources {
		assert.Equal(t, "text/markdown", r.MimeType)
	}

	t.Run("Overview", func(t *testing.T) {
		out, err := server.ReadResource(ctx, "rfgraph://overview")
		require.NoError(t, err)
		assert.Contains(t, out, "# rfgraph Project Overview")
	})

	t.Run("Schema", func(t *testing.T) {
		out, err := server.ReadResource(ctx, "rfgraph://schema")
		require.NoError(t, err)
		assert.Contains(t, out, "`CALLS`")
		assert.Contains(t, out, "`locator_element`")
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := server.ReadResource(ctx, "rfgraph://unknown")
		assert.Error(t, err)
	})
}

func TestServer_Session(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverTransport)
	require.NoError(t, err)
	defer ss.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer cs.Close()

	t.Run("CallTool", func(t *testing.T) {
		res, err := cs.CallTool(ctx, &mcp.CallToolParams{
			Name:      "rf_scope",
			Arguments: map[string]any{"file": "tests/login.robot"},
		})
		require.NoError(t, err)
		assert.False(t, res.IsError)
		require.Len(t, res.Content, 1)
		text, ok := res.Content[0].(*mcp.TextContent)
		require.True(t, ok)
		assert.Contains(t, text.Text, "login_page.Click Login Button")
	})

	t.Run("ToolError", func(t *testing.T) {
		res, err := cs.CallTool(ctx, &mcp.CallToolParams{
			Name:      "rf_redundancy",
			Arguments: map[string]any{"threshold": 2.0},
		})
		require.NoError(t, err)
		assert.True(t, res.IsError)
	})
}

func TestServer_SetSnapshot(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "only.resource"), []byte("*** Keywords ***\nLonely\n    Log    hi\n"), 0o644))
	snap, _, err := ingestion.RunPipeline(context.Background(), config.DefaultConfig(root),
		ingestion.Options{Logger: log.New(io.Discard)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = snap.Close() })

	server.SetSnapshot(snap)

	out, err := server.CallTool(context.Background(), "rf_summary", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "**Files:** 1")
}

func TestServer_NoSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	server := NewServer(nil, log.New(io.Discard))

	_, err := server.CallTool(ctx, "rf_summary", nil)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = server.ReadResource(ctx, "rfgraph://overview")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	schema, err := server.ReadResource(ctx, "rfgraph://schema")
	require.NoError(t, err)
	assert.NotEmpty(t, schema)
}

func TestServer_SetSnapshotWaitsForCalls(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	// An in-flight call holds the current snapshot.
	v, release, err := server.acquire()
	require.NoError(t, err)
	held := v.snap

	swapped := make(chan struct{})
	go func() {
		server.SetSnapshot(nil)
		close(swapped)
	}()

	select {
	case <-swapped:
		t.Fatal("snapshot swapped while a call was still reading it")
	case <-time.After(100 * time.Millisecond):
	}

	// The held snapshot stays readable until the call finishes.
	out, err := v.handleSummary(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, "**Files:** 3")
	assert.NotNil(t, held.Index)

	release()
	select {
	case <-swapped:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the snapshot swap")
	}

	_, err = server.CallTool(context.Background(), "rf_summary", nil)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}
