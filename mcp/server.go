// Package mcp exposes rfgraph analyses as MCP (Model Context Protocol) tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Benny93/rfgraph/internal/diversity"
	"github.com/Benny93/rfgraph/internal/graph"
	"github.com/Benny93/rfgraph/internal/ingestion"
	"github.com/Benny93/rfgraph/internal/model"
	"github.com/Benny93/rfgraph/internal/query"
	"github.com/Benny93/rfgraph/internal/redundancy"
)

const (
	serverName    = "rfgraph"
	serverVersion = "0.1.0"

	defaultSearchLimit = 10
)

// Server serves one ingested project over MCP.
type Server struct {
	mu      sync.RWMutex
	snap    *ingestion.Snapshot
	engine  *query.Engine
	sampler *diversity.Sampler
	logger  *log.Logger
	server  *mcp.Server
}

// Tool represents an MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Resource represents an MCP resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// NewServer creates a server over snap and registers every tool and
// resource with the MCP SDK. snap may be nil when the first ingestion is
// still running; see SetSnapshot.
func NewServer(snap *ingestion.Snapshot, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		sampler: diversity.NewSampler(diversity.WithLogger(logger)),
		logger:  logger,
	}
	s.SetSnapshot(snap)

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)

	s.registerTools()
	s.registerResources()

	return s
}

func objectSchema(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}

// SetSnapshot swaps the served project state, as watch mode does after
// every re-ingestion. It waits for tool calls still reading the previous
// snapshot, so the caller may close that snapshot once SetSnapshot returns.
// A nil snapshot detaches the server until the next one arrives.
func (s *Server) SetSnapshot(snap *ingestion.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.engine = nil
	if snap != nil {
		s.engine = query.New(snap)
	}
}

// ErrNoSnapshot is returned by tool calls while no project state is loaded.
var ErrNoSnapshot = errors.New("no index loaded yet, ingestion in progress")

// view is the state one tool call works on.
type view struct {
	snap    *ingestion.Snapshot
	engine  *query.Engine
	sampler *diversity.Sampler
}

// acquire returns the current view. The snapshot stays valid until release
// is called.
func (s *Server) acquire() (view, func(), error) {
	s.mu.RLock()
	if s.snap == nil {
		s.mu.RUnlock()
		return view{}, nil, ErrNoSnapshot
	}
	return view{snap: s.snap, engine: s.engine, sampler: s.sampler}, s.mu.RUnlock, nil
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []Tool {
	return []Tool{
		{
			Name:        "rf_summary",
			Description: "Summarize the ingested project: files per role and graph size.",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{}),
		},
		{
			Name:        "rf_scope",
			Description: "List every keyword visible from a file through its transitive Resource imports.",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"file": {Type: "string", Description: "Project-relative path of the .robot or .resource file"},
			}, "file"),
		},
		{
			Name:        "rf_search",
			Description: "Hybrid semantic search over keywords, test cases and file documentation.",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"query": {Type: "string", Description: "Search query text"},
				"limit": {Type: "integer", Description: "Maximum number of results"},
			}, "query"),
		},
		{
			Name:        "rf_redundancy",
			Description: "Detect horizontal, vertical and migration redundancy between keywords and test cases.",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"threshold": {Type: "number", Description: "Minimum cosine similarity in [0, 1]"},
			}),
		},
		{
			Name:        "rf_smoke",
			Description: "Select a maximally diverse smoke suite with farthest point sampling.",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"n": {Type: "integer", Description: "Number of test cases to select"},
			}),
		},
		{
			Name:        "rf_mismatches",
			Description: "List page object locators defined for only one of iOS and Android.",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{}),
		},
		{
			Name:        "rf_coverage",
			Description: "List GraphQL mutation keywords that no SIT/E2E test reaches.",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{}),
		},
		{
			Name:        "rf_unused",
			Description: "List keywords that nothing in the project calls.",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{}),
		},
		{
			Name:        "rf_suggest",
			Description: "Plan keyword reuse for a new suite: existing keywords to call and the import that reaches them.",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"description": {Type: "string", Description: "What the new test should do"},
				"target":      {Type: "string", Description: "Project-relative path of the new suite"},
			}, "description", "target"),
		},
	}
}

// ListResources returns all registered resources.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{
			URI:         "rfgraph://overview",
			Name:        "Project Overview",
			Description: "Files per role and graph statistics of the ingested project",
			MimeType:    "text/markdown",
		},
		{
			URI:         "rfgraph://schema",
			Name:        "Graph Schema",
			Description: "Node and edge types of the rfgraph knowledge graph",
			MimeType:    "text/markdown",
		},
	}
}

// CallTool executes a tool with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	v, release, err := s.acquire()
	if err != nil {
		return "", err
	}
	defer release()

	switch name {
	case "rf_summary":
		return v.handleSummary(ctx)
	case "rf_scope":
		file, _ := args["file"].(string)
		return v.handleScope(file), nil
	case "rf_search":
		q, _ := args["query"].(string)
		limit, _ := args["limit"].(float64)
		if limit <= 0 {
			limit = defaultSearchLimit
		}
		return v.handleSearch(ctx, q, int(limit))
	case "rf_redundancy":
		threshold, ok := args["threshold"].(float64)
		if !ok {
			threshold = v.snap.Config.SimilarityThreshold
		}
		return v.handleRedundancy(ctx, threshold)
	case "rf_smoke":
		n, ok := args["n"].(float64)
		if !ok {
			n = float64(v.snap.Config.SmokeTestCount)
		}
		return v.handleSmoke(ctx, int(n))
	case "rf_mismatches":
		return v.handleMismatches(ctx)
	case "rf_coverage":
		return v.handleCoverage(ctx)
	case "rf_unused":
		return v.handleUnused(ctx)
	case "rf_suggest":
		description, _ := args["description"].(string)
		target, _ := args["target"].(string)
		return v.handleSuggest(ctx, description, target)
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "rfgraph://overview":
		v, release, err := s.acquire()
		if err != nil {
			return "", err
		}
		defer release()
		return v.handleSummary(ctx)
	case "rfgraph://schema":
		return getSchema(), nil
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

// Run serves MCP over stdin and stdout until the client disconnects or ctx
// is canceled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Connect serves MCP over t, returning once the session is established.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

// registerTools registers every tool of ListTools with the MCP server.
func (s *Server) registerTools() {
	for _, tool := range s.ListTools() {
		name := tool.Name
		s.server.AddTool(&mcp.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := map[string]any{}
			if len(req.Params.Arguments) > 0 {
				if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
					return errorResult(fmt.Errorf("invalid arguments: %w", err)), nil
				}
			}
			text, err := s.CallTool(ctx, name, args)
			if err != nil {
				s.logger.Warn("tool failed", "tool", name, "err", err)
				return errorResult(err), nil
			}
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, nil
		})
	}
}

// registerResources registers every resource of ListResources with the MCP
// server.
func (s *Server) registerResources() {
	for _, res := range s.ListResources() {
		res := res
		s.server.AddResource(&mcp.Resource{
			URI:         res.URI,
			Name:        res.Name,
			Description: res.Description,
			MIMEType:    res.MimeType,
		}, func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			text, err := s.ReadResource(ctx, res.URI)
			if err != nil {
				return nil, err
			}
			return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
				{URI: res.URI, MIMEType: res.MimeType, Text: text},
			}}, nil
		})
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

// Tool Handlers

func (v view) handleSummary(ctx context.Context) (string, error) {
	summary, err := v.snap.Index.Summary(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("# rfgraph Project Overview\n\n")
	fmt.Fprintf(&sb, "**Files:** %d\n", len(v.snap.Files))
	fmt.Fprintf(&sb, "**Nodes:** %d\n", summary.TotalNodes)
	fmt.Fprintf(&sb, "**Edges:** %d\n", summary.TotalEdges)

	sb.WriteString("\n## Files by Role\n\n")
	counts := v.engine.CountByRole()
	roles := make([]model.Role, 0, len(counts))
	for r := range counts {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	for _, r := range roles {
		fmt.Fprintf(&sb, "- %s: %d\n", r, counts[r])
	}

	sb.WriteString("\n## Nodes by Type\n\n")
	types := make([]graph.NodeType, 0, len(summary.NodesByType))
	for t := range summary.NodesByType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		fmt.Fprintf(&sb, "- %s: %d\n", t, summary.NodesByType[t])
	}
	return sb.String(), nil
}

func (v view) handleScope(file string) string {
	if file == "" {
		return "No file provided"
	}
	res := v.engine.EffectiveScope(file)

	var sb strings.Builder
	sb.WriteString(res.Answer + "\n\n")
	for i, kw := range res.Items {
		fmt.Fprintf(&sb, "%d. **%s** (`%s`)\n", i+1, kw.FQN, kw.Source)
		if kw.Doc != "" {
			fmt.Fprintf(&sb, "   %s\n", kw.Doc)
		}
	}
	return sb.String()
}

func (v view) handleSearch(ctx context.Context, q string, limit int) (string, error) {
	if q == "" {
		return "No query provided", nil
	}
	res, err := v.engine.SemanticSearch(ctx, q, limit)
	if err != nil {
		return "", err
	}
	if res.Count == 0 {
		return "No results found", nil
	}

	var sb strings.Builder
	sb.WriteString(res.Answer + "\n\n")
	for i, hit := range res.Items {
		fmt.Fprintf(&sb, "%d. **%s** (%s)\n", i+1, hit.FQN, hit.Type)
		fmt.Fprintf(&sb, "   File: %s\n", hit.Source)
		fmt.Fprintf(&sb, "   Score: %.3f\n", hit.Score)
		if hit.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", strings.ReplaceAll(hit.Snippet, "\n", " "))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Next: Use `rf_scope` on a file to see which keywords it can call.")
	return sb.String(), nil
}

func (v view) handleRedundancy(ctx context.Context, threshold float64) (string, error) {
	detector, err := redundancy.New(threshold)
	if err != nil {
		return "", err
	}
	report, err := detector.Detect(ctx, v.snap.Vectors)
	if err != nil {
		return "", err
	}

	summary := report.Summary()
	var sb strings.Builder
	sb.WriteString("# Redundancy Report\n\n")
	fmt.Fprintf(&sb, "**Threshold:** %.2f\n", threshold)
	fmt.Fprintf(&sb, "**Total:** %d (horizontal %d, vertical %d, migration sync %d)\n\n",
		summary.Total,
		summary.ByKind[redundancy.KindHorizontal],
		summary.ByKind[redundancy.KindVertical],
		summary.ByKind[redundancy.KindMigrationSync])
	for _, h := range report.Hits {
		fmt.Fprintf(&sb, "- [%s] **%s** ~ **%s** (%.4f)\n  %s\n", h.Kind, h.SourceFQN, h.DuplicateFQN, h.Similarity, h.Recommendation)
	}
	return sb.String(), nil
}

func (v view) handleSmoke(ctx context.Context, n int) (string, error) {
	candidates, err := v.sampler.Sample(ctx, v.snap.Vectors, n)
	if err != nil {
		return "", err
	}
	web, mobile := diversity.Balance(candidates)

	var sb strings.Builder
	sb.WriteString("# Smoke Selection\n\n")
	fmt.Fprintf(&sb, "**Selected:** %d (web %d, mobile %d)\n\n", len(candidates), web, mobile)
	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d. **%s** (`%s`) distance %.4f", i+1, c.FQN, c.Source, c.Score)
		if len(c.Tags) > 0 {
			fmt.Fprintf(&sb, " [%s]", strings.Join(c.Tags, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func (v view) handleMismatches(ctx context.Context) (string, error) {
	res, err := v.engine.MismatchedPOKeys(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(res.Answer + "\n\n")
	if res.Count > 0 {
		sb.WriteString("| Element | iOS | Android |\n")
		sb.WriteString("|---------|-----|---------|\n")
		for _, m := range res.Items {
			fmt.Fprintf(&sb, "| `%s` | %s | %s |\n", m.Element, m.IOS, m.Android)
		}
	}
	return sb.String(), nil
}

func (v view) handleCoverage(ctx context.Context) (string, error) {
	res, err := v.engine.GraphQLMutationsWithoutSIT(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(res.Answer + "\n\n")
	for _, m := range res.Items {
		fmt.Fprintf(&sb, "- **%s**", m.FQN)
		if len(m.Callers) > 0 {
			fmt.Fprintf(&sb, " (called by %s)", strings.Join(m.Callers, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func (v view) handleUnused(ctx context.Context) (string, error) {
	unused, err := v.snap.UnusedKeywords(ctx)
	if err != nil {
		return "", err
	}
	if len(unused) == 0 {
		return "No unused keywords detected.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Unused Keywords (%d)\n\n", len(unused))
	for _, u := range unused {
		fmt.Fprintf(&sb, "- **%s** (`%s:%d`) confidence %s\n", u.FQN, u.Source, u.Line, u.Confidence)
	}
	return sb.String(), nil
}

func (v view) handleSuggest(ctx context.Context, description, target string) (string, error) {
	if description == "" || target == "" {
		return "Both description and target are required", nil
	}
	plan, err := v.engine.Suggest(ctx, description, target)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Reuse Plan for `%s`\n\n", plan.Target)
	sb.WriteString("## Imports\n\n")
	for _, imp := range plan.Imports {
		fmt.Fprintf(&sb, "- `Resource    %s`\n", imp)
	}
	sb.WriteString("\n## Keywords to Reuse\n\n")
	for _, kw := range plan.Reused {
		fmt.Fprintf(&sb, "- **%s** (%s, `%s`)\n", kw.Name, kw.Role, kw.Source)
	}
	if plan.BaseDataPattern != "" {
		sb.WriteString("\n## Base Data Creation Pattern\n\n```robotframework\n")
		sb.WriteString(plan.BaseDataPattern)
		sb.WriteString("\n```\n")
	}
	return sb.String(), nil
}

// Resource Handlers

func getSchema() string {
	var sb strings.Builder
	sb.WriteString("# rfgraph Knowledge Graph Schema\n\n")
	sb.WriteString("## Node Types\n\n")
	sb.WriteString("| Type | Description | Key Properties |\n")
	sb.WriteString("|------|-------------|----------------|\n")
	sb.WriteString("| `file` | .robot or .resource file | role, platform, doc |\n")
	sb.WriteString("| `keyword` | Keyword definition | name, doc, source, line |\n")
	sb.WriteString("| `test_case` | Test case | name, doc, source, setup, teardown, template |\n")
	sb.WriteString("| `variable` | Variable | source, var_type, value |\n")
	sb.WriteString("| `tag` | Tag | - |\n")
	sb.WriteString("| `locator_element` | Page object element | ios, android, source |\n")
	sb.WriteString("| `unknown` | Call target without definition | - |\n")
	sb.WriteString("\n## Edge Types\n\n")
	sb.WriteString("| Type | Source → Target |\n")
	sb.WriteString("|------|-----------------|\n")
	sb.WriteString("| `IMPORTS` | File → File |\n")
	sb.WriteString("| `DEFINES` | File → Keyword/Variable |\n")
	sb.WriteString("| `TESTS` | File → Test case |\n")
	sb.WriteString("| `CALLS` | Keyword/Test case → Keyword |\n")
	sb.WriteString("| `TAGGED` | Keyword/Test case → Tag |\n")
	sb.WriteString("| `MAPS_ELEMENT` | File → Locator element |\n")
	return sb.String()
}
