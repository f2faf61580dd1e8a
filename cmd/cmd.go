// Package cmd provides CLI command implementations for rfgraph.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/fatih/color"

	"github.com/Benny93/rfgraph/internal/config"
	"github.com/Benny93/rfgraph/internal/diversity"
	"github.com/Benny93/rfgraph/internal/graph"
	"github.com/Benny93/rfgraph/internal/ingestion"
	"github.com/Benny93/rfgraph/internal/model"
	"github.com/Benny93/rfgraph/internal/query"
	"github.com/Benny93/rfgraph/internal/redundancy"
	"github.com/Benny93/rfgraph/mcp"
)

// Version is set at build time via ldflags.
var Version = "dev"

const metaFileName = "meta.json"

// Globals are the flags shared by every command.
type Globals struct {
	Verbose bool   `short:"v" help:"Enable verbose output"`
	Quiet   bool   `short:"q" help:"Suppress non-essential output"`
	Root    string `short:"C" default:"." help:"Robot Framework project root"`
	Backend string `help:"Storage backend (memory|badger); overrides the configuration"`
	JSON    bool   `help:"Print results as JSON"`

	Out    io.Writer   `kong:"-"`
	Logger *log.Logger `kong:"-"`
}

func (g *Globals) out() io.Writer {
	if g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

func (g *Globals) logger() *log.Logger {
	if g.Logger == nil {
		g.Logger = newLogger(g.Verbose, g.Quiet)
	}
	return g.Logger
}

func newLogger(verbose, quiet bool) *log.Logger {
	level := log.InfoLevel
	switch {
	case verbose:
		level = log.DebugLevel
	case quiet:
		level = log.WarnLevel
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           level,
	})
}

// config loads the project configuration with command-line overrides
// applied last.
func (g *Globals) config() (*config.Config, error) {
	cfg, err := config.Load(g.Root)
	if err != nil {
		return nil, err
	}
	if g.Backend != "" {
		cfg.Backend = g.Backend
	}
	return cfg, nil
}

// snapshot ingests the project and returns the queryable state.
func (g *Globals) snapshot(ctx context.Context, override func(*config.Config)) (*ingestion.Snapshot, *ingestion.PipelineResult, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, nil, err
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return ingestion.RunPipeline(ctx, cfg, ingestion.Options{Logger: g.logger()})
}

func (g *Globals) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(g.out(), string(data))
	return err
}

// IngestCmd indexes a Robot Framework project into a knowledge graph.
type IngestCmd struct {
	NoProgress bool `help:"Do not print phase progress"`
}

// Run executes the ingest command.
func (c *IngestCmd) Run(g *Globals) error {
	ctx := context.Background()
	cfg, err := g.config()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts := ingestion.Options{Logger: g.logger()}
	showProgress := !c.NoProgress && !g.Quiet && !g.JSON
	if showProgress {
		opts.Progress = func(phase string, pct float64) {
			fmt.Fprintf(g.out(), "\r\033[K%s (%.0f%%)", phase, pct*100)
		}
	}

	snap, result, err := ingestion.RunPipeline(ctx, cfg, opts)
	if err != nil {
		return fmt.Errorf("running pipeline: %w", err)
	}
	defer func() { _ = snap.Close() }()

	if showProgress {
		fmt.Fprintln(g.out())
	}

	if err := writeMeta(cfg, result); err != nil {
		return err
	}

	if g.JSON {
		return g.printJSON(result)
	}

	color.Green("\n✓ Ingestion complete")
	fmt.Fprintf(g.out(), "  Files:          %d\n", result.Files)
	fmt.Fprintf(g.out(), "  Skipped:        %d\n", result.Skipped)
	fmt.Fprintf(g.out(), "  Keywords:       %d\n", result.Keywords)
	fmt.Fprintf(g.out(), "  Test cases:     %d\n", result.TestCases)
	fmt.Fprintf(g.out(), "  Vectors:        %d\n", result.Vectors)
	fmt.Fprintf(g.out(), "  Nodes:          %d\n", result.Graph.TotalNodes)
	fmt.Fprintf(g.out(), "  Edges:          %d\n", result.Graph.TotalEdges)
	fmt.Fprintf(g.out(), "  Duration:       %.2fs\n", result.DurationSecs)
	fmt.Fprintf(g.out(), "  Graph:          %s\n", cfg.GraphPath())

	return nil
}

// meta is the record of the last ingestion, kept next to the graph file.
type meta struct {
	Version   string                    `json:"version"`
	Root      string                    `json:"root"`
	Backend   string                    `json:"backend"`
	Stats     *ingestion.PipelineResult `json:"stats"`
	IndexedAt string                    `json:"indexed_at"`
}

func writeMeta(cfg *config.Config, result *ingestion.PipelineResult) error {
	root, err := filepath.Abs(cfg.ProjectRoot)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	m := meta{
		Version:   Version,
		Root:      root,
		Backend:   cfg.Backend,
		Stats:     result,
		IndexedAt: time.Now().UTC().Format(time.RFC3339),
	}

	dir := cfg.EffectiveDataDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	data, _ := json.MarshalIndent(m, "", "  ")
	if err := os.WriteFile(filepath.Join(dir, metaFileName), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", metaFileName, err)
	}
	return nil
}

// StatusCmd shows the index status of the project.
type StatusCmd struct{}

// Run executes the status command.
func (c *StatusCmd) Run(g *Globals) error {
	cfg, err := g.config()
	if err != nil {
		return err
	}

	metaBytes, err := os.ReadFile(filepath.Join(cfg.EffectiveDataDir(), metaFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no index found at %s. Run 'rfgraph ingest' first", cfg.ProjectRoot)
		}
		return fmt.Errorf("reading %s: %w", metaFileName, err)
	}
	var m meta
	if err := json.Unmarshal(metaBytes, &m); err != nil {
		return fmt.Errorf("parsing %s: %w", metaFileName, err)
	}

	kg := graph.NewKnowledgeGraph()
	doc, err := graph.LoadNodeLink(context.Background(), cfg.GraphPath(), kg)
	if err != nil {
		return fmt.Errorf("loading graph: %w", err)
	}

	if g.JSON {
		return g.printJSON(map[string]any{
			"meta":   m,
			"run_id": doc.RunID,
			"nodes":  kg.NodeCount(),
		})
	}

	fmt.Fprintf(g.out(), "Index status for %s\n", m.Root)
	fmt.Fprintf(g.out(), "  Version:        %s\n", m.Version)
	fmt.Fprintf(g.out(), "  Backend:        %s\n", m.Backend)
	fmt.Fprintf(g.out(), "  Last indexed:   %s\n", m.IndexedAt)
	fmt.Fprintf(g.out(), "  Run:            %s\n", doc.RunID)
	fmt.Fprintf(g.out(), "  Nodes:          %d\n", kg.NodeCount())
	if m.Stats != nil {
		fmt.Fprintf(g.out(), "  Files:          %d\n", m.Stats.Files)
		fmt.Fprintf(g.out(), "  Keywords:       %d\n", m.Stats.Keywords)
		fmt.Fprintf(g.out(), "  Test cases:     %d\n", m.Stats.TestCases)
	}
	return nil
}

// ScopeCmd lists the keywords visible from a file.
type ScopeCmd struct {
	File string `arg:"" help:"Project-relative path of a .robot or .resource file"`
}

// Run executes the scope command.
func (c *ScopeCmd) Run(g *Globals) error {
	snap, _, err := g.snapshot(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = snap.Close() }()

	file := model.NormalizePath(c.File)
	if _, ok := snap.Files[file]; !ok {
		return fmt.Errorf("file '%s' is not part of the project", c.File)
	}

	res := query.New(snap).EffectiveScope(file)
	if g.JSON {
		return g.printJSON(res)
	}

	fmt.Fprintln(g.out(), res.Answer)
	for i, kw := range res.Items {
		fmt.Fprintf(g.out(), "\n%d. %s\n", i+1, kw.FQN)
		fmt.Fprintf(g.out(), "   File: %s\n", kw.Source)
		if kw.Doc != "" {
			fmt.Fprintf(g.out(), "   %s\n", kw.Doc)
		}
	}
	return nil
}

// ImportsCmd lists the transitive Resource imports of a file.
type ImportsCmd struct {
	File string `arg:"" help:"Project-relative path of a .robot or .resource file"`
}

// Run executes the imports command.
func (c *ImportsCmd) Run(g *Globals) error {
	snap, _, err := g.snapshot(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = snap.Close() }()

	file := model.NormalizePath(c.File)
	if _, ok := snap.Files[file]; !ok {
		return fmt.Errorf("file '%s' is not part of the project", c.File)
	}

	imported := snap.Resolver.ImportedFiles(file)
	if g.JSON {
		return g.printJSON(imported)
	}

	fmt.Fprintf(g.out(), "%d files reachable from '%s':\n", len(imported), file)
	for _, p := range imported {
		fmt.Fprintf(g.out(), "  %s\n", p)
	}
	return nil
}

// RedundancyCmd detects duplicated keywords and test cases.
type RedundancyCmd struct {
	Threshold float64 `short:"t" default:"-1" help:"Minimum cosine similarity in [0, 1]; defaults to the configured threshold"`
}

// Run executes the redundancy command.
func (c *RedundancyCmd) Run(g *Globals) error {
	ctx := context.Background()
	snap, _, err := g.snapshot(ctx, func(cfg *config.Config) {
		if c.Threshold >= 0 {
			cfg.SimilarityThreshold = c.Threshold
		}
	})
	if err != nil {
		return err
	}
	defer func() { _ = snap.Close() }()

	detector, err := redundancy.New(snap.Config.SimilarityThreshold)
	if err != nil {
		return err
	}
	report, err := detector.Detect(ctx, snap.Vectors)
	if err != nil {
		return fmt.Errorf("detecting redundancy: %w", err)
	}

	if g.JSON {
		return g.printJSON(map[string]any{"summary": report.Summary(), "hits": report.Hits})
	}

	summary := report.Summary()
	fmt.Fprintf(g.out(), "## Redundancy (threshold %.2f)\n", detector.Threshold())
	fmt.Fprintf(g.out(), "Total: %d\n", summary.Total)
	for _, kind := range []redundancy.Kind{redundancy.KindHorizontal, redundancy.KindVertical, redundancy.KindMigrationSync} {
		hits := report.HitsOfKind(kind)
		if len(hits) == 0 {
			continue
		}
		fmt.Fprintf(g.out(), "\n### %s (%d)\n", kind, len(hits))
		for _, h := range hits {
			fmt.Fprintf(g.out(), "  %s ~ %s (%.4f)\n", h.SourceFQN, h.DuplicateFQN, h.Similarity)
			color.Yellow("    %s", h.Recommendation)
		}
	}
	return nil
}

// SmokeCmd selects a diverse smoke suite.
type SmokeCmd struct {
	N int `short:"n" default:"-1" help:"Number of test cases; defaults to the configured smoke test count"`
}

// Run executes the smoke command.
func (c *SmokeCmd) Run(g *Globals) error {
	ctx := context.Background()
	snap, _, err := g.snapshot(ctx, func(cfg *config.Config) {
		if c.N >= 0 {
			cfg.SmokeTestCount = c.N
		}
	})
	if err != nil {
		return err
	}
	defer func() { _ = snap.Close() }()

	sampler := diversity.NewSampler(diversity.WithLogger(g.logger()))
	candidates, err := sampler.Sample(ctx, snap.Vectors, snap.Config.SmokeTestCount)
	if err != nil {
		return err
	}

	if g.JSON {
		return g.printJSON(candidates)
	}

	web, mobile := diversity.Balance(candidates)
	fmt.Fprintf(g.out(), "## Smoke selection: %d tests (web %d, mobile %d)\n", len(candidates), web, mobile)
	for i, cand := range candidates {
		fmt.Fprintf(g.out(), "\n%d. %s\n", i+1, cand.FQN)
		fmt.Fprintf(g.out(), "   File: %s\n", cand.Source)
		fmt.Fprintf(g.out(), "   Distance: %.4f\n", cand.Score)
		if len(cand.Tags) > 0 {
			fmt.Fprintf(g.out(), "   Tags: %s\n", strings.Join(cand.Tags, ", "))
		}
	}
	return nil
}

// MismatchesCmd lists page object locators missing for one platform.
type MismatchesCmd struct{}

// Run executes the mismatches command.
func (c *MismatchesCmd) Run(g *Globals) error {
	ctx := context.Background()
	snap, _, err := g.snapshot(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = snap.Close() }()

	res, err := query.New(snap).MismatchedPOKeys(ctx)
	if err != nil {
		return err
	}
	if g.JSON {
		return g.printJSON(res)
	}

	fmt.Fprintln(g.out(), res.Answer)
	for _, m := range res.Items {
		fmt.Fprintf(g.out(), "  %-30s ios=%-8s android=%s\n", m.Element, m.IOS, m.Android)
	}
	return nil
}

// InventoryCmd lists keywords by file, or test cases by role.
type InventoryCmd struct {
	Tests bool `help:"List test cases grouped by role instead of keywords"`
	Roles bool `help:"Count files per role"`
}

// Run executes the inventory command.
func (c *InventoryCmd) Run(g *Globals) error {
	snap, _, err := g.snapshot(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = snap.Close() }()

	engine := query.New(snap)
	switch {
	case c.Roles:
		counts := engine.CountByRole()
		if g.JSON {
			return g.printJSON(counts)
		}
		roles := make([]model.Role, 0, len(counts))
		for r := range counts {
			roles = append(roles, r)
		}
		sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
		for _, r := range roles {
			fmt.Fprintf(g.out(), "  %-20s %d\n", r, counts[r])
		}

	case c.Tests:
		res := engine.TestInventory()
		if g.JSON {
			return g.printJSON(res)
		}
		fmt.Fprintln(g.out(), res.Answer)
		for _, item := range res.Items {
			fmt.Fprintf(g.out(), "\n%s\n", item.Role)
			for _, tc := range item.Tests {
				fmt.Fprintf(g.out(), "  %s\n", tc)
			}
		}

	default:
		res := engine.KeywordInventory()
		if g.JSON {
			return g.printJSON(res)
		}
		fmt.Fprintln(g.out(), res.Answer)
		for _, item := range res.Items {
			fmt.Fprintf(g.out(), "\n%s\n", item.File)
			for _, kw := range item.Keywords {
				fmt.Fprintf(g.out(), "  %s\n", kw)
			}
		}
	}
	return nil
}

// CoverageCmd lists GraphQL mutations without SIT coverage.
type CoverageCmd struct{}

// Run executes the coverage command.
func (c *CoverageCmd) Run(g *Globals) error {
	ctx := context.Background()
	snap, _, err := g.snapshot(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = snap.Close() }()

	res, err := query.New(snap).GraphQLMutationsWithoutSIT(ctx)
	if err != nil {
		return err
	}
	if g.JSON {
		return g.printJSON(res)
	}

	fmt.Fprintln(g.out(), res.Answer)
	for _, m := range res.Items {
		fmt.Fprintf(g.out(), "  %s\n", m.FQN)
		for _, caller := range m.Callers {
			fmt.Fprintf(g.out(), "    ← %s\n", caller)
		}
	}
	return nil
}

// SuggestCmd plans keyword reuse for a new suite.
type SuggestCmd struct {
	Description string `arg:"" help:"What the new test should do"`
	Target      string `short:"t" required:"" help:"Project-relative path of the new suite"`
}

// Run executes the suggest command.
func (c *SuggestCmd) Run(g *Globals) error {
	ctx := context.Background()
	snap, _, err := g.snapshot(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = snap.Close() }()

	plan, err := query.New(snap).Suggest(ctx, c.Description, model.NormalizePath(c.Target))
	if err != nil {
		return err
	}
	if g.JSON {
		return g.printJSON(plan)
	}

	fmt.Fprintf(g.out(), "## Reuse plan for %s\n\n", plan.Target)
	fmt.Fprintln(g.out(), "*** Settings ***")
	for _, imp := range plan.Imports {
		fmt.Fprintf(g.out(), "Resource    %s\n", imp)
	}
	fmt.Fprintln(g.out(), "\nKeywords to reuse:")
	for _, kw := range plan.Reused {
		fmt.Fprintf(g.out(), "  %-40s %-16s %s\n", kw.Name, kw.Role, kw.Source)
	}
	if plan.BaseDataPattern != "" {
		fmt.Fprintln(g.out(), "\nBase data pattern:")
		fmt.Fprintln(g.out(), plan.BaseDataPattern)
	}
	return nil
}

// SearchCmd searches keywords, test cases and file documentation.
type SearchCmd struct {
	Query string `arg:"" help:"Search query"`
	Limit int    `short:"n" default:"20" help:"Maximum results"`
}

// Run executes the search command.
func (c *SearchCmd) Run(g *Globals) error {
	ctx := context.Background()
	snap, _, err := g.snapshot(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = snap.Close() }()

	res, err := query.New(snap).SemanticSearch(ctx, c.Query, c.Limit)
	if err != nil {
		return err
	}
	if g.JSON {
		return g.printJSON(res)
	}

	if res.Count == 0 {
		fmt.Fprintln(g.out(), "No results found")
		return nil
	}
	for i, hit := range res.Items {
		fmt.Fprintf(g.out(), "\n%d. %s (%s)\n", i+1, hit.FQN, hit.Type)
		fmt.Fprintf(g.out(), "   File: %s\n", hit.Source)
		fmt.Fprintf(g.out(), "   Score: %.3f\n", hit.Score)
		if hit.Snippet != "" {
			fmt.Fprintf(g.out(), "   %s\n", strings.ReplaceAll(hit.Snippet, "\n", " "))
		}
	}
	return nil
}

// UnusedCmd lists keywords nothing calls.
type UnusedCmd struct{}

// Run executes the unused command.
func (c *UnusedCmd) Run(g *Globals) error {
	ctx := context.Background()
	snap, _, err := g.snapshot(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = snap.Close() }()

	unused, err := snap.UnusedKeywords(ctx)
	if err != nil {
		return err
	}
	if g.JSON {
		return g.printJSON(unused)
	}

	if len(unused) == 0 {
		color.Green("No unused keywords detected.")
		return nil
	}
	fmt.Fprintf(g.out(), "## Unused keywords (%d)\n", len(unused))
	for _, u := range unused {
		fmt.Fprintf(g.out(), "  %-50s %s:%d (%s)\n", u.FQN, u.Source, u.Line, u.Confidence)
	}
	return nil
}

// WatchCmd re-ingests the project on every change.
type WatchCmd struct {
	Debounce time.Duration `default:"2s" help:"Quiet period before re-ingesting"`
}

// Run executes the watch command.
func (c *WatchCmd) Run(g *Globals) error {
	cfg, err := g.config()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	fmt.Fprintln(g.out(), "## Watch Mode")
	fmt.Fprintf(g.out(), "Watching %s for changes (Ctrl+C to stop)\n\n", cfg.ProjectRoot)

	ctx, cancel := signalContext()
	defer cancel()

	err = ingestion.Watch(ctx, cfg, ingestion.WatchOptions{
		Options:  ingestion.Options{Logger: g.logger()},
		Debounce: c.Debounce,
		OnRun: func(_ *ingestion.Snapshot, result *ingestion.PipelineResult) {
			if err := writeMeta(cfg, result); err != nil {
				g.logger().Warn("writing meta", "err", err)
			}
			color.Green("✓ %d files, %d keywords, %d test cases (%.2fs)",
				result.Files, result.Keywords, result.TestCases, result.DurationSecs)
		},
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch error: %w", err)
	}

	fmt.Fprintln(g.out(), "Watch mode stopped.")
	return nil
}

// MCPCmd starts the MCP server on stdio.
type MCPCmd struct {
	Watch bool `short:"w" help:"Re-ingest on file changes while serving"`
}

// Run executes the mcp command.
func (c *MCPCmd) Run(g *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	// stdout carries JSON-RPC; logs go to stderr only.
	if !c.Watch {
		snap, _, err := g.snapshot(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = snap.Close() }()
		return mcp.NewServer(snap, g.logger()).Run(ctx)
	}

	cfg, err := g.config()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// The watcher owns every snapshot; the server only borrows them.
	server := mcp.NewServer(nil, g.logger())
	watchCtx, stop := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	defer func() {
		stop()
		<-watchDone
	}()

	go func() {
		defer close(watchDone)
		err := ingestion.Watch(watchCtx, cfg, ingestion.WatchOptions{
			Options: ingestion.Options{Logger: g.logger()},
			OnRun: func(next *ingestion.Snapshot, _ *ingestion.PipelineResult) {
				server.SetSnapshot(next)
			},
			OnRelease: func() {
				server.SetSnapshot(nil)
			},
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			g.logger().Error("watch failed", "err", err)
		}
	}()
	g.logger().Info("file watching enabled", "backend", cfg.Backend)

	return server.Run(ctx)
}

// SetupCmd configures MCP clients to launch rfgraph.
type SetupCmd struct {
	Claude   bool   `help:"Configure for Claude Code"`
	Cursor   bool   `help:"Configure for Cursor"`
	Qwen     bool   `help:"Configure for Qwen CLI"`
	Global   bool   `help:"Create global configuration instead of project-local"`
	Format   string `help:"Output format (json|text)" enum:"json,text" default:"json"`
	FilePath string `help:"Custom directory for the configuration file"`
}

// Run executes the setup command.
func (c *SetupCmd) Run(g *Globals) error {
	if c.Format != "json" && c.Format != "text" {
		return fmt.Errorf("invalid format: %s (must be json or text)", c.Format)
	}

	root, err := filepath.Abs(g.Root)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	cfg := mcpClientConfig(root)

	clients := c.clients()
	if len(clients) == 0 {
		if c.Format == "json" {
			return g.printJSON(cfg)
		}
		fmt.Fprintln(g.out(), "# Add this to your MCP client configuration:")
		fmt.Fprint(g.out(), textConfig(cfg))
		return nil
	}

	for _, client := range clients {
		path := c.configPath(client, root)
		if err := writeConfig(path, cfg, c.Format); err != nil {
			return err
		}
		color.Green("✓ Created %s MCP config at %s", client, path)
	}
	return nil
}

func (c *SetupCmd) clients() []string {
	var clients []string
	if c.Claude {
		clients = append(clients, "claude")
	}
	if c.Cursor {
		clients = append(clients, "cursor")
	}
	if c.Qwen {
		clients = append(clients, "qwen")
	}
	return clients
}

func (c *SetupCmd) configPath(client, root string) string {
	switch {
	case c.FilePath != "":
		return filepath.Join(c.FilePath, "mcp.json")
	case c.Global:
		return globalConfigPath(client)
	default:
		return filepath.Join(root, clientConfigDir(client), "mcp.json")
	}
}

func mcpClientConfig(root string) map[string]any {
	return map[string]any{
		"mcpServers": map[string]any{
			"rfgraph": map[string]any{
				"command": "rfgraph",
				"args":    []string{"--root", root, "--quiet", "mcp", "--watch"},
			},
		},
	}
}

func globalConfigPath(client string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
	}
	return filepath.Join(homeDir, clientConfigDir(client), "global", "mcp.json")
}

func clientConfigDir(client string) string {
	switch client {
	case "claude":
		return ".claude"
	case "cursor":
		return ".cursor"
	default:
		return ".qwen"
	}
}

func textConfig(cfg map[string]any) string {
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		data, _ := json.Marshal(cfg[k])
		fmt.Fprintf(&sb, "%s: %s\n", k, data)
	}
	return sb.String()
}

func writeConfig(configPath string, cfg map[string]any, format string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	var content []byte
	if format == "json" {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		content = append(data, '\n')
	} else {
		content = []byte("# MCP configuration for rfgraph\n# Generated by rfgraph setup\n\n" + textConfig(cfg))
	}

	if err := os.WriteFile(configPath, content, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// CleanCmd deletes the data directory of the project.
type CleanCmd struct {
	Force bool `short:"f" help:"Skip confirmation"`
}

// Run executes the clean command.
func (c *CleanCmd) Run(g *Globals) error {
	cfg, err := g.config()
	if err != nil {
		return err
	}

	dataDir := cfg.EffectiveDataDir()
	if _, err := os.Stat(dataDir); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("no index found at %s. Nothing to clean", cfg.ProjectRoot)
	}

	if !c.Force {
		fmt.Fprintf(g.out(), "Delete index at %s? [y/N] ", dataDir)
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(g.out(), "Aborted")
			return nil
		}
	}

	if err := os.RemoveAll(dataDir); err != nil {
		return fmt.Errorf("deleting index: %w", err)
	}

	color.Green("Deleted %s", dataDir)
	return nil
}

// Helper functions

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// CLI is the root Kong command structure.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Show version information"`

	// Commands
	Ingest     IngestCmd     `cmd:"" help:"Index a Robot Framework project into a knowledge graph"`
	Status     StatusCmd     `cmd:"" help:"Show index status for the project"`
	Scope      ScopeCmd      `cmd:"" help:"List keywords visible from a file"`
	Imports    ImportsCmd    `cmd:"" help:"List transitive Resource imports of a file"`
	Redundancy RedundancyCmd `cmd:"" help:"Detect duplicated keywords and test cases"`
	Smoke      SmokeCmd      `cmd:"" help:"Select a maximally diverse smoke suite"`
	Mismatches MismatchesCmd `cmd:"" help:"List iOS/Android locator mismatches"`
	Inventory  InventoryCmd  `cmd:"" help:"List keywords by file or test cases by role"`
	Coverage   CoverageCmd   `cmd:"" help:"List GraphQL mutations without SIT coverage"`
	Suggest    SuggestCmd    `cmd:"" help:"Plan keyword reuse for a new suite"`
	Search     SearchCmd     `cmd:"" help:"Search keywords, test cases and documentation"`
	Unused     UnusedCmd     `cmd:"" help:"List keywords nothing calls"`
	Watch      WatchCmd      `cmd:"" help:"Watch mode with live re-ingestion"`
	MCP        MCPCmd        `cmd:"" help:"Start MCP server (stdio transport)"`
	Setup      SetupCmd      `cmd:"" help:"Configure MCP for Claude Code / Cursor / Qwen"`
	Clean      CleanCmd      `cmd:"" help:"Delete the index of the project"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	parser, err := kong.New(c,
		kong.Name("rfgraph"),
		kong.Description("Knowledge graph, redundancy and diversity engine for Robot Framework projects"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
		kong.Bind(&c.Globals),
	)
	if err != nil {
		return err
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	if c.Logger == nil {
		c.Logger = newLogger(c.Verbose, c.Quiet)
	}
	log.SetDefault(c.Logger)

	return kongCtx.Run()
}
