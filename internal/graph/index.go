package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Benny93/rfgraph/internal/model"
)

// ImportResolver maps a raw import expression of importer to a known file
// path. It returns false when the import cannot be resolved.
type ImportResolver func(importer, raw string) (string, bool)

// CallResolver maps a keyword name called from file to the identity of the
// keyword it refers to. It returns false when no visible keyword matches.
type CallResolver func(file, name string) (string, bool)

// LocatorMismatch is a locator element defined for exactly one mobile
// platform; the absent side reads model.Missing.
type LocatorMismatch struct {
	Element string `json:"element"`
	IOS     string `json:"ios"`
	Android string `json:"android"`
}

// Summary reports graph size.
type Summary struct {
	TotalNodes  int              `json:"total_nodes"`
	TotalEdges  int              `json:"total_edges"`
	NodesByType map[NodeType]int `json:"nodes_by_type"`
}

// Index builds the structural graph from domain records and answers
// one-hop and whole-graph queries over any Store.
//
// AddFile calls are serialized; queries may run concurrently with each
// other. Queries for unknown identities return empty results.
type Index struct {
	store       Store
	resolve     ImportResolver
	resolveCall CallResolver
	mu          sync.Mutex
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithImportResolver makes AddFile point IMPORTS edges at resolved file
// paths; imports the resolver rejects get no edge. Without a resolver the
// raw import expression is used as the target identity.
func WithImportResolver(r ImportResolver) IndexOption {
	return func(ix *Index) { ix.resolve = r }
}

// WithCallResolver makes AddFile point CALLS edges at the definitions the
// resolver finds. Unmatched calls keep the raw keyword name as target.
func WithCallResolver(r CallResolver) IndexOption {
	return func(ix *Index) { ix.resolveCall = r }
}

// NewIndex creates an Index over store.
func NewIndex(store Store, opts ...IndexOption) *Index {
	ix := &Index{store: store}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Store returns the backing store.
func (ix *Index) Store() Store {
	return ix.store
}

// Reset drops the whole structure ahead of a fresh ingestion run.
func (ix *Index) Reset(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.store.Reset(ctx)
}

// AddFile upserts the file node and everything it defines, plus the edges
// between them. Safe to call repeatedly with the same file.
func (ix *Index) AddFile(ctx context.Context, rf *model.ResourceFile) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	b := &fileBatch{ctx: ctx, store: ix.store, file: rf.Path, resolveCall: ix.resolveCall}
	fileID := model.FileUID(rf.Path)

	b.node(&Node{ID: fileID, Type: NodeFile, Attrs: map[string]any{
		AttrRole:     string(rf.Role),
		AttrPlatform: string(rf.Platform),
		AttrDoc:      rf.Documentation,
	}})

	for _, imp := range rf.Imports {
		target := model.NormalizePath(imp)
		if ix.resolve != nil {
			resolved, ok := ix.resolve(rf.Path, imp)
			if !ok {
				continue
			}
			target = resolved
		}
		b.node(&Node{ID: model.FileUID(target), Type: NodeFile})
		b.edge(fileID, model.FileUID(target), EdgeImports)
	}

	for _, kw := range rf.Keywords {
		b.node(&Node{ID: kw.FQN, Type: NodeKeyword, Attrs: map[string]any{
			AttrName:   kw.Name,
			AttrDoc:    kw.Documentation,
			AttrSource: rf.Path,
			AttrLine:   kw.Line,
		}})
		b.edge(fileID, kw.FQN, EdgeDefines)
		b.calls(kw.FQN, kw.CalledKeywords)
		b.tags(kw.FQN, kw.Tags)
	}

	for _, tc := range rf.TestCases {
		attrs := map[string]any{
			AttrName:   tc.Name,
			AttrDoc:    tc.Documentation,
			AttrSource: rf.Path,
			AttrLine:   tc.Line,
		}
		setOptional(attrs, AttrSetup, tc.Setup)
		setOptional(attrs, AttrTeardown, tc.Teardown)
		setOptional(attrs, AttrTemplate, tc.Template)

		b.node(&Node{ID: tc.FQN, Type: NodeTestCase, Attrs: attrs})
		b.edge(fileID, tc.FQN, EdgeTests)
		b.calls(tc.FQN, tc.CalledKeywords)
		b.tags(tc.FQN, tc.Tags)
	}

	for _, v := range rf.Variables {
		id := model.VariableUID(v.Name)
		b.node(&Node{ID: id, Type: NodeVariable, Attrs: map[string]any{
			AttrSource:  rf.Path,
			AttrVarType: string(v.Type),
			AttrValue:   v.Value,
		}})
		b.edge(fileID, id, EdgeDefines)
	}

	for _, lm := range rf.Locators {
		id := model.ElementUID(lm.Element)
		b.node(&Node{ID: id, Type: NodeLocatorElement, Attrs: map[string]any{
			AttrIOS:     derefOrEmpty(lm.IOS),
			AttrAndroid: derefOrEmpty(lm.Android),
			AttrSource:  rf.Path,
		}})
		b.edge(fileID, id, EdgeMapsElement)
	}

	if b.err != nil {
		return fmt.Errorf("adding %s to graph: %w", rf.Path, b.err)
	}
	return nil
}

// fileBatch accumulates the first error of a sequence of upserts.
type fileBatch struct {
	ctx         context.Context
	store       Store
	file        string
	resolveCall CallResolver
	err         error
}

func (b *fileBatch) node(n *Node) {
	if b.err == nil {
		b.err = b.store.UpsertNode(b.ctx, n)
	}
}

func (b *fileBatch) edge(source, target string, edgeType EdgeType) {
	if b.err == nil {
		b.err = b.store.UpsertEdge(b.ctx, &Edge{Source: source, Target: target, Type: edgeType})
	}
}

func (b *fileBatch) calls(caller string, called []string) {
	for _, target := range called {
		if b.resolveCall != nil {
			if fqn, ok := b.resolveCall(b.file, target); ok {
				target = fqn
			}
		}
		b.edge(caller, target, EdgeCalls)
	}
}

func (b *fileBatch) tags(owner string, tags []string) {
	for _, tag := range tags {
		id := model.TagUID(tag)
		b.node(&Node{ID: id, Type: NodeTag})
		b.edge(owner, id, EdgeTagged)
	}
}

func setOptional(attrs map[string]any, key string, v *string) {
	if v != nil {
		attrs[key] = *v
	}
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// FilesByRole returns the paths of all files with the given role.
func (ix *Index) FilesByRole(ctx context.Context, role model.Role) ([]string, error) {
	nodes, err := ix.store.NodesByType(ctx, NodeFile)
	if err != nil {
		return nil, err
	}
	var result []string
	for _, n := range nodes {
		if n.StringAttr(AttrRole) == string(role) {
			result = append(result, n.ID)
		}
	}
	return result, nil
}

// KeywordsInFile returns the FQNs of keywords defined in path.
func (ix *Index) KeywordsInFile(ctx context.Context, path string) ([]string, error) {
	return ix.targetsOfType(ctx, model.FileUID(path), EdgeDefines, NodeKeyword)
}

// TestCasesInFile returns the FQNs of test cases defined in path.
func (ix *Index) TestCasesInFile(ctx context.Context, path string) ([]string, error) {
	return ix.targetsOfType(ctx, model.FileUID(path), EdgeTests, NodeTestCase)
}

// AllKeywords returns the FQNs of every defined keyword.
func (ix *Index) AllKeywords(ctx context.Context) ([]string, error) {
	return ix.idsOfType(ctx, NodeKeyword)
}

// AllTestCases returns the FQNs of every test case.
func (ix *Index) AllTestCases(ctx context.Context) ([]string, error) {
	return ix.idsOfType(ctx, NodeTestCase)
}

// CallersOf returns the identities of nodes calling fqn.
func (ix *Index) CallersOf(ctx context.Context, fqn string) ([]string, error) {
	edges, err := ix.store.Incoming(ctx, fqn, EdgeCalls)
	if err != nil {
		return nil, err
	}
	return endpoints(edges, func(e *Edge) string { return e.Source }), nil
}

// CalleesOf returns the identities called by node, resolved or not.
func (ix *Index) CalleesOf(ctx context.Context, node string) ([]string, error) {
	edges, err := ix.store.Outgoing(ctx, node, EdgeCalls)
	if err != nil {
		return nil, err
	}
	return endpoints(edges, func(e *Edge) string { return e.Target }), nil
}

// TagsOf returns the tag names attached to node.
func (ix *Index) TagsOf(ctx context.Context, node string) ([]string, error) {
	edges, err := ix.store.Outgoing(ctx, node, EdgeTagged)
	if err != nil {
		return nil, err
	}
	return endpoints(edges, func(e *Edge) string { return model.StripTagPrefix(e.Target) }), nil
}

// MismatchedLocatorElements returns locator elements defined for exactly
// one of iOS and Android.
func (ix *Index) MismatchedLocatorElements(ctx context.Context) ([]LocatorMismatch, error) {
	nodes, err := ix.store.NodesByType(ctx, NodeLocatorElement)
	if err != nil {
		return nil, err
	}

	var result []LocatorMismatch
	for _, n := range nodes {
		ios, android := n.StringAttr(AttrIOS), n.StringAttr(AttrAndroid)
		if (ios == "") == (android == "") {
			continue
		}
		result = append(result, LocatorMismatch{
			Element: model.StripElementPrefix(n.ID),
			IOS:     orMissing(ios),
			Android: orMissing(android),
		})
	}
	return result, nil
}

func orMissing(s string) string {
	if s == "" {
		return model.Missing
	}
	return s
}

// NodeData returns a copy of the node's attributes, or an empty map.
func (ix *Index) NodeData(ctx context.Context, uid string) (map[string]any, error) {
	n, err := ix.store.Node(ctx, uid)
	if err != nil {
		return nil, err
	}
	data := make(map[string]any)
	if n == nil {
		return data, nil
	}
	for k, v := range n.Attrs {
		data[k] = v
	}
	data[AttrNodeType] = string(n.Type)
	return data, nil
}

// Summary returns total node and edge counts and a per-type breakdown.
func (ix *Index) Summary(ctx context.Context) (*Summary, error) {
	nodes, err := ix.store.Nodes(ctx)
	if err != nil {
		return nil, err
	}
	edges, err := ix.store.Edges(ctx)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		TotalNodes:  len(nodes),
		TotalEdges:  len(edges),
		NodesByType: make(map[NodeType]int),
	}
	for _, n := range nodes {
		s.NodesByType[n.Type]++
	}
	return s, nil
}

func (ix *Index) targetsOfType(ctx context.Context, source string, edgeType EdgeType, nodeType NodeType) ([]string, error) {
	edges, err := ix.store.Outgoing(ctx, source, edgeType)
	if err != nil {
		return nil, err
	}
	var result []string
	for _, e := range edges {
		n, err := ix.store.Node(ctx, e.Target)
		if err != nil {
			return nil, err
		}
		if n != nil && n.Type == nodeType {
			result = append(result, n.ID)
		}
	}
	return result, nil
}

func (ix *Index) idsOfType(ctx context.Context, nodeType NodeType) ([]string, error) {
	nodes, err := ix.store.NodesByType(ctx, nodeType)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	return ids, nil
}

func endpoints(edges []*Edge, pick func(*Edge) string) []string {
	result := make([]string, 0, len(edges))
	for _, e := range edges {
		result = append(result, pick(e))
	}
	sort.Strings(result)
	return result
}
