package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/rfgraph/internal/model"
)

func sampleRecords() []Record {
	return []Record{
		{
			ID:       "login.Valid Login",
			Vector:   []float32{1, 0, 0},
			Document: "Logs in with a valid user",
			Metadata: Metadata{Type: TypeTestCase, FQN: "login.Valid Login", Name: "Valid Login", Source: "tests/login.robot", Role: model.RoleAtomicTest, Platform: model.PlatformCommon, Tags: []string{"smoke"}},
		},
		{
			ID:       "checkout.Full Checkout",
			Vector:   []float32{0, 1, 0},
			Document: "Buys an item end to end",
			Metadata: Metadata{Type: TypeTestCase, FQN: "checkout.Full Checkout", Name: "Full Checkout", Source: "SIT/checkout.robot", Role: model.RoleE2ETest, Platform: model.PlatformWeb},
		},
		{
			ID:       "data.Base Data Creation",
			Vector:   []float32{0.9, 0.1, 0},
			Document: "Creates base data",
			Metadata: Metadata{Type: TypeKeyword, FQN: "data.Base Data Creation", Name: "Base Data Creation", Source: "resources/data.resource", Role: model.RoleKnowledgeBase, Platform: model.PlatformCommon},
		},
	}
}

func TestFilter_Match(t *testing.T) {
	t.Parallel()

	meta := Metadata{Type: TypeTestCase, Role: model.RoleE2ETest}

	tests := []struct {
		name     string
		filter   Filter
		expected bool
	}{
		{"Empty", Filter{}, true},
		{"TypeMatch", Filter{Type: TypeTestCase}, true},
		{"TypeMismatch", Filter{Type: TypeKeyword}, false},
		{"RoleMatch", Filter{Role: model.RoleE2ETest}, true},
		{"RoleMismatch", Filter{Role: model.RoleAtomicTest}, false},
		{"Both", Filter{Type: TypeTestCase, Role: model.RoleE2ETest}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.filter.Match(meta))
		})
	}
}

// exerciseVectorIndex runs the shared VectorIndex contract against idx.
func exerciseVectorIndex(t *testing.T, idx VectorIndex) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, sampleRecords()))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	all, err := idx.AllEmbeddings(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "checkout.Full Checkout", all[0].ID)
	assert.Equal(t, "data.Base Data Creation", all[1].ID)
	assert.Equal(t, "login.Valid Login", all[2].ID)

	tests, err := idx.AllEmbeddings(ctx, Filter{Type: TypeTestCase, Role: model.RoleAtomicTest})
	require.NoError(t, err)
	require.Len(t, tests, 1)
	assert.Equal(t, []float32{1, 0, 0}, tests[0].Vector)

	meta, err := idx.Metadata(ctx, "login.Valid Login")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "tests/login.robot", meta.Source)
	assert.Equal(t, []string{"smoke"}, meta.Tags)

	missing, err := idx.Metadata(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2, Filter{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "login.Valid Login", results[0].ID)
	assert.Equal(t, "data.Base Data Creation", results[1].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)

	keywords, err := idx.Search(ctx, []float32{1, 0, 0}, 10, Filter{Type: TypeKeyword})
	require.NoError(t, err)
	require.Len(t, keywords, 1)

	// Upsert replaces by ID.
	replaced := sampleRecords()[0]
	replaced.Document = "updated"
	require.NoError(t, idx.Upsert(ctx, []Record{replaced}))
	count, err = idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, idx.Reset(ctx))
	count, err = idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryVectorIndex(t *testing.T) {
	t.Parallel()

	idx := NewMemoryVectorIndex()
	exerciseVectorIndex(t, idx)
	assert.NoError(t, idx.Close())
}

func TestMemoryVectorIndex_MetadataIsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	idx := NewMemoryVectorIndex()
	require.NoError(t, idx.Upsert(ctx, sampleRecords()))

	meta, err := idx.Metadata(ctx, "login.Valid Login")
	require.NoError(t, err)
	meta.Source = "changed"

	again, err := idx.Metadata(ctx, "login.Valid Login")
	require.NoError(t, err)
	assert.Equal(t, "tests/login.robot", again.Source)
}
