// Package query answers inventory, coverage and search questions over an
// ingested Robot Framework project, and plans keyword reuse for new suites.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Benny93/rfgraph/internal/embeddings"
	"github.com/Benny93/rfgraph/internal/graph"
	"github.com/Benny93/rfgraph/internal/ingestion"
	"github.com/Benny93/rfgraph/internal/model"
	"github.com/Benny93/rfgraph/internal/resolver"
	"github.com/Benny93/rfgraph/internal/storage"
)

// snippetLength bounds the document excerpt of a search hit, in runes.
const snippetLength = 200

// Result is the answer to one query: a one-line summary plus its items.
type Result[T any] struct {
	Answer string `json:"answer"`
	Items  []T    `json:"items"`
	Count  int    `json:"count"`
}

// FileKeywords lists the keywords defined in one file.
type FileKeywords struct {
	File     string   `json:"file"`
	Keywords []string `json:"keywords"`
}

// RoleTests lists the test cases of one role.
type RoleTests struct {
	Role  model.Role `json:"role"`
	Tests []string   `json:"tests"`
}

// ScopeKeyword is one keyword of an effective scope.
type ScopeKeyword struct {
	FQN    string `json:"fqn"`
	Source string `json:"source"`
	Doc    string `json:"doc"`
}

// UncoveredMutation is a GraphQL mutation keyword no E2E test reaches.
type UncoveredMutation struct {
	FQN     string   `json:"fqn"`
	Callers []string `json:"callers"`
}

// SearchHit is one semantic search match.
type SearchHit struct {
	FQN     string  `json:"fqn"`
	Type    string  `json:"type"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

// Engine combines the graph, the resolver and the vector index.
type Engine struct {
	files    map[string]*model.ResourceFile
	paths    []string
	resolver *resolver.Resolver
	index    *graph.Index
	vectors  storage.VectorIndex
	terms    *storage.TermIndex
	embedder embeddings.Embedder
}

// New creates an Engine over the state of one ingestion run.
func New(snap *ingestion.Snapshot) *Engine {
	paths := make([]string, 0, len(snap.Files))
	for p := range snap.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	return &Engine{
		files:    snap.Files,
		paths:    paths,
		resolver: snap.Resolver,
		index:    snap.Index,
		vectors:  snap.Vectors,
		terms:    snap.Terms,
		embedder: snap.Embedder,
	}
}

// CountByRole counts files per role.
func (e *Engine) CountByRole() map[model.Role]int {
	counts := make(map[model.Role]int)
	for _, rf := range e.files {
		counts[rf.Role]++
	}
	return counts
}

// KeywordInventory lists every keyword grouped by source file.
func (e *Engine) KeywordInventory() Result[FileKeywords] {
	items := []FileKeywords{}
	total := 0
	for _, p := range e.paths {
		rf := e.files[p]
		if len(rf.Keywords) == 0 {
			continue
		}
		fqns := make([]string, len(rf.Keywords))
		for i, kw := range rf.Keywords {
			fqns[i] = kw.FQN
		}
		items = append(items, FileKeywords{File: p, Keywords: fqns})
		total += len(fqns)
	}
	return Result[FileKeywords]{
		Answer: fmt.Sprintf("%d keywords across %d files.", total, len(items)),
		Items:  items,
		Count:  total,
	}
}

// TestInventory lists every test case grouped by role.
func (e *Engine) TestInventory() Result[RoleTests] {
	byRole := make(map[model.Role][]string)
	total := 0
	for _, p := range e.paths {
		rf := e.files[p]
		for _, tc := range rf.TestCases {
			byRole[rf.Role] = append(byRole[rf.Role], tc.FQN)
			total++
		}
	}

	roles := make([]model.Role, 0, len(byRole))
	for r := range byRole {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })

	items := make([]RoleTests, 0, len(roles))
	for _, r := range roles {
		items = append(items, RoleTests{Role: r, Tests: byRole[r]})
	}
	return Result[RoleTests]{
		Answer: fmt.Sprintf("%d test cases across %d roles.", total, len(items)),
		Items:  items,
		Count:  total,
	}
}

// EffectiveScope lists the keywords visible from path.
func (e *Engine) EffectiveScope(path string) Result[ScopeKeyword] {
	scope := e.resolver.EffectiveKeywords(path)
	items := make([]ScopeKeyword, len(scope.Keywords))
	for i, kw := range scope.Keywords {
		items[i] = ScopeKeyword{FQN: kw.FQN, Source: kw.SourceFile, Doc: kw.Documentation}
	}
	return Result[ScopeKeyword]{
		Answer: fmt.Sprintf("%d keywords in effective scope of '%s'.", len(items), path),
		Items:  items,
		Count:  len(items),
	}
}

// MismatchedPOKeys lists locator elements defined for only one of iOS and
// Android.
func (e *Engine) MismatchedPOKeys(ctx context.Context) (Result[graph.LocatorMismatch], error) {
	mismatches, err := e.index.MismatchedLocatorElements(ctx)
	if err != nil {
		return Result[graph.LocatorMismatch]{}, err
	}
	if mismatches == nil {
		mismatches = []graph.LocatorMismatch{}
	}
	sort.Slice(mismatches, func(i, j int) bool { return mismatches[i].Element < mismatches[j].Element })
	return Result[graph.LocatorMismatch]{
		Answer: fmt.Sprintf("%d PO elements have mismatched iOS/Android keys.", len(mismatches)),
		Items:  mismatches,
		Count:  len(mismatches),
	}, nil
}

// GraphQLMutationsWithoutSIT finds API keywords mentioning "mutation" in
// their name or documentation that no E2E test case calls, directly or
// through one intermediate caller.
func (e *Engine) GraphQLMutationsWithoutSIT(ctx context.Context) (Result[UncoveredMutation], error) {
	items := []UncoveredMutation{}
	for _, p := range e.paths {
		rf := e.files[p]
		if rf.Role != model.RoleAPI {
			continue
		}
		for _, kw := range rf.Keywords {
			if !isMutation(kw) {
				continue
			}
			callers, err := e.index.CallersOf(ctx, kw.FQN)
			if err != nil {
				return Result[UncoveredMutation]{}, err
			}
			covered, err := e.reachedFromE2E(ctx, callers)
			if err != nil {
				return Result[UncoveredMutation]{}, err
			}
			if !covered {
				items = append(items, UncoveredMutation{FQN: kw.FQN, Callers: callers})
			}
		}
	}
	return Result[UncoveredMutation]{
		Answer: fmt.Sprintf("%d GraphQL mutations lack SIT coverage.", len(items)),
		Items:  items,
		Count:  len(items),
	}, nil
}

func isMutation(kw *model.Keyword) bool {
	return strings.Contains(strings.ToLower(kw.Name), "mutation") ||
		strings.Contains(strings.ToLower(kw.Documentation), "mutation")
}

// reachedFromE2E reports whether any caller, or any caller of a caller, is
// an E2E test case.
func (e *Engine) reachedFromE2E(ctx context.Context, callers []string) (bool, error) {
	for _, caller := range callers {
		ok, err := e.isE2ETest(ctx, caller)
		if err != nil || ok {
			return ok, err
		}
		indirect, err := e.index.CallersOf(ctx, caller)
		if err != nil {
			return false, err
		}
		for _, ic := range indirect {
			ok, err := e.isE2ETest(ctx, ic)
			if err != nil || ok {
				return ok, err
			}
		}
	}
	return false, nil
}

func (e *Engine) isE2ETest(ctx context.Context, uid string) (bool, error) {
	data, err := e.index.NodeData(ctx, uid)
	if err != nil {
		return false, err
	}
	if data[graph.AttrNodeType] != string(graph.NodeTestCase) {
		return false, nil
	}
	src, _ := data[graph.AttrSource].(string)
	rf, ok := e.files[src]
	return ok && rf.Role == model.RoleE2ETest, nil
}

// SemanticSearch ranks all indexed artifacts against text, fusing term and
// vector rankings.
func (e *Engine) SemanticSearch(ctx context.Context, text string, n int) (Result[SearchHit], error) {
	results, err := e.search(ctx, text, n, storage.Filter{})
	if err != nil {
		return Result[SearchHit]{}, err
	}

	items := make([]SearchHit, len(results))
	for i, r := range results {
		items[i] = SearchHit{
			FQN:     r.Metadata.FQN,
			Type:    r.Metadata.Type,
			Source:  r.Metadata.Source,
			Score:   r.Score,
			Snippet: snippet(r.Document),
		}
	}
	return Result[SearchHit]{
		Answer: fmt.Sprintf("Found %d results for '%s'.", len(items), text),
		Items:  items,
		Count:  len(items),
	}, nil
}

func (e *Engine) search(ctx context.Context, text string, n int, f storage.Filter) ([]storage.SearchResult, error) {
	var vector []float32
	if e.embedder != nil {
		vector = e.embedder.Embed(text)
	}
	results, err := storage.HybridSearch(ctx, e.vectors, e.terms, text, vector, n, storage.DefaultRRFConstant, f)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", text, err)
	}
	return results, nil
}

func snippet(doc string) string {
	runes := []rune(doc)
	if len(runes) > snippetLength {
		return string(runes[:snippetLength])
	}
	return doc
}
