package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupCmd_Run(t *testing.T) {
	t.Run("SetupClaudeLocal", func(t *testing.T) {
		root := t.TempDir()

		cmd := &SetupCmd{Claude: true, Format: "json"}
		err := cmd.Run(&Globals{Root: root})
		require.NoError(t, err)

		data, err := os.ReadFile(filepath.Join(root, ".claude", "mcp.json"))
		require.NoError(t, err)

		var cfg map[string]any
		require.NoError(t, json.Unmarshal(data, &cfg))
		servers := cfg["mcpServers"].(map[string]any)
		assert.Contains(t, servers, "rfgraph")
	})

	t.Run("SetupCursorAndQwen", func(t *testing.T) {
		root := t.TempDir()

		cmd := &SetupCmd{Cursor: true, Qwen: true, Format: "json"}
		require.NoError(t, cmd.Run(&Globals{Root: root}))

		assert.FileExists(t, filepath.Join(root, ".cursor", "mcp.json"))
		assert.FileExists(t, filepath.Join(root, ".qwen", "mcp.json"))
	})

	t.Run("SetupGlobal", func(t *testing.T) {
		tmpHome := t.TempDir()
		t.Setenv("HOME", tmpHome)

		cmd := &SetupCmd{Qwen: true, Global: true, Format: "json"}
		require.NoError(t, cmd.Run(&Globals{Root: t.TempDir()}))

		assert.FileExists(t, filepath.Join(tmpHome, ".qwen", "global", "mcp.json"))
	})

	t.Run("CustomFilePath", func(t *testing.T) {
		dir := t.TempDir()

		cmd := &SetupCmd{Claude: true, Format: "text", FilePath: dir}
		require.NoError(t, cmd.Run(&Globals{Root: t.TempDir()}))

		data, err := os.ReadFile(filepath.Join(dir, "mcp.json"))
		require.NoError(t, err)
		assert.Contains(t, string(data), "# Generated by rfgraph setup")
		assert.Contains(t, string(data), "mcpServers: ")
	})

	t.Run("SetupDefault", func(t *testing.T) {
		var out bytes.Buffer
		cmd := &SetupCmd{Format: "json"}
		require.NoError(t, cmd.Run(&Globals{Root: t.TempDir(), Out: &out}))

		var cfg map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &cfg))
		assert.Contains(t, cfg, "mcpServers")
	})

	t.Run("InvalidFormat", func(t *testing.T) {
		cmd := &SetupCmd{Claude: true, Format: "yaml"}
		assert.Error(t, cmd.Run(&Globals{Root: t.TempDir()}))
	})
}

func TestMCPClientConfig(t *testing.T) {
	t.Parallel()

	cfg := mcpClientConfig("/work/project")
	servers := cfg["mcpServers"].(map[string]any)
	server := servers["rfgraph"].(map[string]any)

	assert.Equal(t, "rfgraph", server["command"])
	assert.Equal(t, []string{"--root", "/work/project", "--quiet", "mcp", "--watch"}, server["args"])
}

func TestClientConfigDir(t *testing.T) {
	t.Parallel()

	tests := []struct {
		client string
		want   string
	}{
		{"claude", ".claude"},
		{"cursor", ".cursor"},
		{"qwen", ".qwen"},
		{"unknown", ".qwen"},
	}
	for _, tt := range tests {
		t.Run(tt.client, func(t *testing.T) {
			assert.Equal(t, tt.want, clientConfigDir(tt.client))
		})
	}
}
