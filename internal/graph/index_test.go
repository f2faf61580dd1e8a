package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/rfgraph/internal/model"
)

func strPtr(s string) *string { return &s }

// loginFixture returns a small project: a page object with locators, a flow
// keyword calling it and an atomic test calling the flow.
func loginFixture() []*model.ResourceFile {
	po := &model.ResourceFile{
		Path:     "resources/po/login_page.resource",
		Role:     model.RolePageObject,
		Platform: model.PlatformCommon,
		Keywords: []*model.Keyword{{
			Name:           "Tap Submit",
			FQN:            "login_page.Tap Submit",
			SourceFile:     "resources/po/login_page.resource",
			Documentation:  "Taps the submit button.",
			CalledKeywords: []string{"Click Element"},
			Tags:           []string{"ui"},
			Line:           5,
		}},
		Variables: []*model.Variable{
			model.NewVariable("${API_TOKEN}", "abc", "resources/po/login_page.resource"),
		},
		Locators: []*model.LocatorMapping{
			model.NewLocatorMapping("submit_btn", "id=submit", ""),
			model.NewLocatorMapping("user_field", "id=user", "id/user"),
		},
	}
	flow := &model.ResourceFile{
		Path:     "resources/flow/login_flow.resource",
		Role:     model.RoleFlow,
		Platform: model.PlatformCommon,
		Imports:  []string{"../po/login_page.resource"},
		Keywords: []*model.Keyword{{
			Name:           "Login As User",
			FQN:            "login_flow.Login As User",
			SourceFile:     "resources/flow/login_flow.resource",
			CalledKeywords: []string{"login_page.Tap Submit"},
			Line:           3,
		}},
	}
	test := &model.ResourceFile{
		Path:     "tests/login.robot",
		Role:     model.RoleAtomicTest,
		Platform: model.PlatformCommon,
		Imports:  []string{"../resources/flow/login_flow.resource"},
		TestCases: []*model.TestCase{{
			Name:           "Valid Login",
			FQN:            "login.Valid Login",
			SourceFile:     "tests/login.robot",
			Tags:           []string{"smoke", "ui"},
			Setup:          strPtr("Open App"),
			CalledKeywords: []string{"login_flow.Login As User"},
			Line:           7,
		}},
	}
	return []*model.ResourceFile{po, flow, test}
}

func newLoadedIndex(t *testing.T, opts ...IndexOption) *Index {
	t.Helper()
	ix := NewIndex(NewKnowledgeGraph(), opts...)
	for _, rf := range loginFixture() {
		require.NoError(t, ix.AddFile(context.Background(), rf))
	}
	return ix
}

func TestIndex_AddFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("Idempotent", func(t *testing.T) {
		t.Parallel()
		ix := newLoadedIndex(t)
		before, err := ix.Summary(ctx)
		require.NoError(t, err)

		for _, rf := range loginFixture() {
			require.NoError(t, ix.AddFile(ctx, rf))
		}
		after, err := ix.Summary(ctx)
		require.NoError(t, err)

		assert.Equal(t, before, after)
	})

	t.Run("FileAttributes", func(t *testing.T) {
		t.Parallel()
		ix := newLoadedIndex(t)

		data, err := ix.NodeData(ctx, "tests/login.robot")
		require.NoError(t, err)
		assert.Equal(t, "file", data[AttrNodeType])
		assert.Equal(t, "ATOMIC_TESTS", data[AttrRole])
		assert.Equal(t, "common", data[AttrPlatform])
	})

	t.Run("TestCaseOptionalAttributes", func(t *testing.T) {
		t.Parallel()
		ix := newLoadedIndex(t)

		data, err := ix.NodeData(ctx, "login.Valid Login")
		require.NoError(t, err)
		assert.Equal(t, "Open App", data[AttrSetup])
		assert.NotContains(t, data, AttrTeardown)
		assert.NotContains(t, data, AttrTemplate)
	})

	t.Run("VariableRedacted", func(t *testing.T) {
		t.Parallel()
		ix := newLoadedIndex(t)

		data, err := ix.NodeData(ctx, "var:${API_TOKEN}")
		require.NoError(t, err)
		assert.Equal(t, model.Redacted, data[AttrValue])
		assert.Equal(t, "scalar", data[AttrVarType])
	})

	t.Run("UnresolvedImportsWithoutResolver", func(t *testing.T) {
		t.Parallel()
		ix := newLoadedIndex(t)

		edges, err := ix.Store().Outgoing(ctx, "tests/login.robot", EdgeImports)
		require.NoError(t, err)
		require.Len(t, edges, 1)
		assert.Equal(t, "../resources/flow/login_flow.resource", edges[0].Target)
	})

	t.Run("ResolverFiltersImports", func(t *testing.T) {
		t.Parallel()
		resolver := func(importer, raw string) (string, bool) {
			if importer == "tests/login.robot" {
				return "resources/flow/login_flow.resource", true
			}
			return "", false
		}
		ix := newLoadedIndex(t, WithImportResolver(resolver))

		edges, err := ix.Store().Outgoing(ctx, "tests/login.robot", EdgeImports)
		require.NoError(t, err)
		require.Len(t, edges, 1)
		assert.Equal(t, "resources/flow/login_flow.resource", edges[0].Target)

		flowImports, err := ix.Store().Outgoing(ctx, "resources/flow/login_flow.resource", EdgeImports)
		require.NoError(t, err)
		assert.Empty(t, flowImports)
	})

	t.Run("CallResolverQualifiesCalls", func(t *testing.T) {
		t.Parallel()
		resolveCall := func(file, name string) (string, bool) {
			if file == "resources/po/login_page.resource" && name == "Click Element" {
				return "builtin.Click Element", true
			}
			return "", false
		}
		ix := newLoadedIndex(t, WithCallResolver(resolveCall))

		callees, err := ix.CalleesOf(ctx, "login_page.Tap Submit")
		require.NoError(t, err)
		assert.Equal(t, []string{"builtin.Click Element"}, callees)

		callees, err = ix.CalleesOf(ctx, "login.Valid Login")
		require.NoError(t, err)
		assert.Equal(t, []string{"login_flow.Login As User"}, callees)
	})

	t.Run("UnresolvedCallIsPlaceholder", func(t *testing.T) {
		t.Parallel()
		ix := newLoadedIndex(t)

		data, err := ix.NodeData(ctx, "Click Element")
		require.NoError(t, err)
		assert.Equal(t, "unknown", data[AttrNodeType])
	})
}

func TestIndex_PlaceholderUpgrade(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ix := NewIndex(NewKnowledgeGraph())

	caller := &model.ResourceFile{
		Path: "tests/a.robot",
		Role: model.RoleAtomicTest,
		TestCases: []*model.TestCase{{
			Name: "T", FQN: "a.T", CalledKeywords: []string{"common.Open App"},
		}},
	}
	callee := &model.ResourceFile{
		Path: "resources/common.resource",
		Role: model.RoleKnowledgeBase,
		Keywords: []*model.Keyword{{
			Name: "Open App", FQN: "common.Open App", SourceFile: "resources/common.resource",
		}},
	}

	require.NoError(t, ix.AddFile(ctx, caller))
	data, err := ix.NodeData(ctx, "common.Open App")
	require.NoError(t, err)
	assert.Equal(t, "unknown", data[AttrNodeType])

	require.NoError(t, ix.AddFile(ctx, callee))
	data, err = ix.NodeData(ctx, "common.Open App")
	require.NoError(t, err)
	assert.Equal(t, "keyword", data[AttrNodeType])
	assert.Equal(t, "resources/common.resource", data[AttrSource])

	callers, err := ix.CallersOf(ctx, "common.Open App")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.T"}, callers)
}

func TestIndex_Queries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ix := newLoadedIndex(t)

	t.Run("FilesByRole", func(t *testing.T) {
		t.Parallel()
		files, err := ix.FilesByRole(ctx, model.RolePageObject)
		require.NoError(t, err)
		assert.Equal(t, []string{"resources/po/login_page.resource"}, files)

		none, err := ix.FilesByRole(ctx, model.RoleMigrationTest)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("KeywordsInFile", func(t *testing.T) {
		t.Parallel()
		kws, err := ix.KeywordsInFile(ctx, "resources/po/login_page.resource")
		require.NoError(t, err)
		assert.Equal(t, []string{"login_page.Tap Submit"}, kws)
	})

	t.Run("TestCasesInFile", func(t *testing.T) {
		t.Parallel()
		tcs, err := ix.TestCasesInFile(ctx, "tests/login.robot")
		require.NoError(t, err)
		assert.Equal(t, []string{"login.Valid Login"}, tcs)

		unknown, err := ix.TestCasesInFile(ctx, "tests/nope.robot")
		require.NoError(t, err)
		assert.Empty(t, unknown)
	})

	t.Run("AllKeywordsAndTests", func(t *testing.T) {
		t.Parallel()
		kws, err := ix.AllKeywords(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"login_page.Tap Submit", "login_flow.Login As User"}, kws)

		tcs, err := ix.AllTestCases(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"login.Valid Login"}, tcs)
	})

	t.Run("CallersAndCallees", func(t *testing.T) {
		t.Parallel()
		callers, err := ix.CallersOf(ctx, "login_page.Tap Submit")
		require.NoError(t, err)
		assert.Equal(t, []string{"login_flow.Login As User"}, callers)

		callees, err := ix.CalleesOf(ctx, "login.Valid Login")
		require.NoError(t, err)
		assert.Equal(t, []string{"login_flow.Login As User"}, callees)

		none, err := ix.CallersOf(ctx, "nobody.Nothing")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("TagsOf", func(t *testing.T) {
		t.Parallel()
		tags, err := ix.TagsOf(ctx, "login.Valid Login")
		require.NoError(t, err)
		assert.Equal(t, []string{"smoke", "ui"}, tags)
	})

	t.Run("MismatchedLocatorElements", func(t *testing.T) {
		t.Parallel()
		mismatches, err := ix.MismatchedLocatorElements(ctx)
		require.NoError(t, err)
		require.Len(t, mismatches, 1)
		assert.Equal(t, LocatorMismatch{Element: "submit_btn", IOS: "id=submit", Android: model.Missing}, mismatches[0])
	})

	t.Run("NodeDataUnknown", func(t *testing.T) {
		t.Parallel()
		data, err := ix.NodeData(ctx, "does-not-exist")
		require.NoError(t, err)
		assert.Empty(t, data)
	})

	t.Run("Summary", func(t *testing.T) {
		t.Parallel()
		s, err := ix.Summary(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3+2, s.NodesByType[NodeFile])
		assert.Equal(t, 2, s.NodesByType[NodeKeyword])
		assert.Equal(t, 1, s.NodesByType[NodeTestCase])
		assert.Equal(t, 2, s.NodesByType[NodeLocatorElement])
		assert.Equal(t, 2, s.NodesByType[NodeTag])
		assert.Equal(t, s.TotalNodes, sumCounts(s.NodesByType))
	})
}

func TestIndex_Reset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ix := newLoadedIndex(t)

	require.NoError(t, ix.Reset(ctx))

	s, err := ix.Summary(ctx)
	require.NoError(t, err)
	assert.Zero(t, s.TotalNodes)
	assert.Zero(t, s.TotalEdges)
}

func sumCounts(m map[NodeType]int) int {
	total := 0
	for _, c := range m {
		total += c
	}
	return total
}
