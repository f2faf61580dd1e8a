package ingestion

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/rfgraph/internal/config"
	"github.com/Benny93/rfgraph/internal/graph"
	"github.com/Benny93/rfgraph/internal/model"
	"github.com/Benny93/rfgraph/internal/storage"
)

// sampleProject is a small web project: a test suite importing a flow that
// imports a page object, plus one file that is not valid UTF-8.
var sampleProject = map[string]string{
	"resources/web/po/login_page.resource": `*** Settings ***
Documentation    Login page.

*** Keywords ***
Input Login Credentials
    [Arguments]    ${user}    ${pass}
    Input Text    id=username    ${user}
    Input Password    id=password    ${pass}

Click Login Button
    Click Element    id=login

Unused Helper
    Log    never called
`,
	"resources/web/flow/login_flow.resource": `*** Settings ***
Resource    ../po/login_page.resource

*** Keywords ***
Login With Valid Credentials
    Input Login Credentials    alice    secret
    Click Login Button

Prepare Suite Setup
    Log    suite setup
`,
	"tests/login.robot": `*** Settings ***
Resource    ../resources/web/flow/login_flow.resource

*** Test Cases ***
Valid Login
    [Tags]    web    smoke
    [Setup]    Open App
    Login With Valid Credentials

*** Keywords ***
Open App
    Log    opening
`,
}

func writeSampleProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, sampleProject)
	require.NoError(t, os.WriteFile(filepath.Join(root, "tests", "broken.robot"), []byte{0xff, 0xfe, 0x00}, 0o644))
	return root
}

func quietOptions() Options {
	return Options{Logger: log.New(io.Discard)}
}

func TestRunPipeline(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	root := writeSampleProject(t)
	cfg := config.DefaultConfig(root)

	var phases []string
	opts := quietOptions()
	opts.Progress = func(phase string, progress float64) {
		if progress == 1.0 && (len(phases) == 0 || phases[len(phases)-1] != phase) {
			phases = append(phases, phase)
		}
	}

	snap, result, err := RunPipeline(ctx, cfg, opts)
	require.NoError(t, err)
	defer snap.Close()

	t.Run("Stats", func(t *testing.T) {
		assert.Equal(t, 3, result.Files)
		assert.Equal(t, 1, result.Skipped)
		assert.Equal(t, 6, result.Keywords)
		assert.Equal(t, 1, result.TestCases)
		assert.Equal(t, 8, result.Vectors)
		assert.NotEmpty(t, result.RunID)
		require.NotNil(t, result.Graph)
		assert.Equal(t, 3, result.Graph.NodesByType[graph.NodeFile])
		assert.Equal(t, []string{"Crawling files", "Parsing files", "Building graph", "Generating embeddings", "Storing"}, phases)
	})

	t.Run("Snapshot", func(t *testing.T) {
		require.Len(t, snap.Files, 3)
		assert.Equal(t, model.RolePageObject, snap.Files["resources/web/po/login_page.resource"].Role)
		assert.Equal(t, model.RoleAtomicTest, snap.Files["tests/login.robot"].Role)

		count, err := snap.Vectors.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 8, count)
		assert.Positive(t, snap.Terms.Size())

		scope := snap.Resolver.EffectiveKeywords("tests/login.robot")
		assert.Len(t, scope.Keywords, 6)
	})

	t.Run("CallsAreQualified", func(t *testing.T) {
		callers, err := snap.Index.CallersOf(ctx, "login_page.Click Login Button")
		require.NoError(t, err)
		assert.Equal(t, []string{"login_flow.Login With Valid Credentials"}, callers)

		callers, err = snap.Index.CallersOf(ctx, "login_flow.Login With Valid Credentials")
		require.NoError(t, err)
		assert.Equal(t, []string{"login.Valid Login"}, callers)
	})

	t.Run("GraphSaved", func(t *testing.T) {
		kg := graph.NewKnowledgeGraph()
		doc, err := graph.LoadNodeLink(ctx, cfg.GraphPath(), kg)
		require.NoError(t, err)
		assert.Equal(t, result.RunID, doc.RunID)
		assert.Equal(t, result.Graph.TotalNodes, kg.NodeCount())
	})
}

func TestRunPipeline_Badger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	root := writeSampleProject(t)
	cfg := config.DefaultConfig(root)
	cfg.Backend = config.BackendBadger
	cfg.DataDir = t.TempDir()

	snap, result, err := RunPipeline(ctx, cfg, quietOptions())
	require.NoError(t, err)

	records, err := snap.Vectors.AllEmbeddings(ctx, storage.Filter{Type: storage.TypeTestCase})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "login.Valid Login", records[0].Metadata.FQN)
	require.NoError(t, snap.Close())

	// A second run replaces the stored state instead of adding to it.
	snap, again, err := RunPipeline(ctx, cfg, quietOptions())
	require.NoError(t, err)
	defer snap.Close()
	assert.Equal(t, result.Vectors, again.Vectors)

	count, err := snap.Vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.Vectors, count)

	nodes, err := snap.backend.Graph().NodesByType(ctx, graph.NodeKeyword)
	require.NoError(t, err)
	assert.Len(t, nodes, 6)
}

func TestRunPipeline_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig(t.TempDir())
	cfg.SimilarityThreshold = 2

	_, _, err := RunPipeline(context.Background(), cfg, quietOptions())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRunPipeline_EmptyProject(t *testing.T) {
	t.Parallel()

	snap, result, err := RunPipeline(context.Background(), config.DefaultConfig(t.TempDir()), quietOptions())
	require.NoError(t, err)
	defer snap.Close()

	assert.Zero(t, result.Files)
	assert.Zero(t, result.Vectors)
	assert.Empty(t, snap.Files)
}

func TestRunPipeline_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := RunPipeline(ctx, config.DefaultConfig(writeSampleProject(t)), quietOptions())
	assert.ErrorIs(t, err, context.Canceled)
}
