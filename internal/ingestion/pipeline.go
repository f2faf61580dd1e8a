package ingestion

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/Benny93/rfgraph/internal/config"
	"github.com/Benny93/rfgraph/internal/embeddings"
	"github.com/Benny93/rfgraph/internal/graph"
	"github.com/Benny93/rfgraph/internal/model"
	"github.com/Benny93/rfgraph/internal/parsers"
	"github.com/Benny93/rfgraph/internal/resolver"
	"github.com/Benny93/rfgraph/internal/storage"
)

// PipelineResult contains statistics from one ingestion run.
type PipelineResult struct {
	RunID        string         `json:"run_id"`
	Files        int            `json:"files_crawled"`
	Skipped      int            `json:"files_skipped"`
	Keywords     int            `json:"keywords"`
	TestCases    int            `json:"test_cases"`
	Vectors      int            `json:"vectors_indexed"`
	Graph        *graph.Summary `json:"graph"`
	DurationSecs float64        `json:"duration_secs"`
}

// ProgressCallback is called with phase name and progress (0.0-1.0).
type ProgressCallback func(phase string, progress float64)

// Options tunes a pipeline run. The zero value is usable.
type Options struct {
	Logger   *log.Logger
	Progress ProgressCallback

	// Embedder overrides the TF-IDF embedder sized by the configuration.
	Embedder embeddings.Embedder
}

// Snapshot is the queryable state produced by one ingestion run.
type Snapshot struct {
	Config   *config.Config
	Files    map[string]*model.ResourceFile
	Resolver *resolver.Resolver
	Index    *graph.Index
	Vectors  storage.VectorIndex
	Terms    *storage.TermIndex
	Embedder embeddings.Embedder

	backend *storage.BadgerBackend
}

// Close releases the vector index and, for the badger backend, the database.
func (s *Snapshot) Close() error {
	var errs []error
	if s.Vectors != nil {
		errs = append(errs, s.Vectors.Close())
	}
	if s.backend != nil {
		errs = append(errs, s.backend.Close())
	}
	return errors.Join(errs...)
}

// RunPipeline crawls cfg.ProjectRoot and builds a Snapshot: parse every
// file, resolve imports, build the graph, embed keywords and test cases, and
// persist the graph as node-link JSON. With the badger backend the graph and
// the embeddings are also written to the database.
//
// Files that fail to parse are logged and skipped.
func RunPipeline(ctx context.Context, cfg *config.Config, opts Options) (*Snapshot, *PipelineResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	progress := opts.Progress
	if progress == nil {
		progress = func(string, float64) {}
	}
	result := &PipelineResult{}

	root, err := filepath.Abs(cfg.ProjectRoot)
	if err != nil {
		return nil, nil, err
	}

	// Phase 1: Crawl
	progress("Crawling files", 0.0)
	entries, err := Crawl(root, WithCrawlLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("crawling %s: %w", root, err)
	}
	progress("Crawling files", 1.0)

	// Phase 2: Parse
	progress("Parsing files", 0.0)
	files, skipped, err := parseAll(ctx, cfg, root, entries, logger, progress)
	if err != nil {
		return nil, nil, err
	}
	result.Files = len(files)
	result.Skipped = skipped
	progress("Parsing files", 1.0)

	// Phase 3: Graph
	progress("Building graph", 0.0)
	fileMap := make(map[string]*model.ResourceFile, len(files))
	for _, rf := range files {
		fileMap[rf.Path] = rf
		result.Keywords += len(rf.Keywords)
		result.TestCases += len(rf.TestCases)
	}

	res := resolver.New(fileMap, root, resolver.WithLogger(logger))
	kg := graph.NewKnowledgeGraph()
	ix := graph.NewIndex(kg,
		graph.WithImportResolver(res.ResolveImport),
		graph.WithCallResolver(res.ResolveCall),
	)
	for i, rf := range files {
		if err := ix.AddFile(ctx, rf); err != nil {
			return nil, nil, err
		}
		progress("Building graph", float64(i+1)/float64(len(files)))
	}

	// Phase 4: Embeddings
	progress("Generating embeddings", 0.0)
	embedder := opts.Embedder
	if embedder == nil {
		embedder = embeddings.NewTFIDFEmbedder(cfg.EmbeddingDimension)
	}
	var docs []embeddings.Document
	for _, rf := range files {
		docs = append(docs, embeddings.FileDocuments(rf)...)
	}
	records := embeddings.Records(embedder, docs)
	progress("Generating embeddings", 1.0)

	// Phase 5: Storage
	progress("Storing", 0.0)
	snap := &Snapshot{
		Config:   cfg,
		Files:    fileMap,
		Resolver: res,
		Index:    ix,
		Embedder: embedder,
	}
	if err := snap.open(cfg); err != nil {
		return nil, nil, err
	}
	if err := snap.store(ctx, kg, records); err != nil {
		_ = snap.Close()
		return nil, nil, err
	}
	result.Vectors = len(records)

	terms, err := storage.BuildTermIndex(ctx, snap.Vectors)
	if err != nil {
		_ = snap.Close()
		return nil, nil, err
	}
	snap.Terms = terms

	doc, err := graph.SaveNodeLink(ctx, kg, cfg.GraphPath())
	if err != nil {
		_ = snap.Close()
		return nil, nil, fmt.Errorf("saving graph: %w", err)
	}
	result.RunID = doc.RunID
	progress("Storing", 1.0)

	result.Graph, err = ix.Summary(ctx)
	if err != nil {
		_ = snap.Close()
		return nil, nil, err
	}
	result.DurationSecs = time.Since(start).Seconds()

	logger.Info("ingestion complete",
		"run", result.RunID,
		"files", result.Files,
		"skipped", result.Skipped,
		"keywords", result.Keywords,
		"tests", result.TestCases,
		"vectors", result.Vectors,
	)
	return snap, result, nil
}

// parseAll parses entries concurrently and returns the records sorted by
// path together with the number of files that failed to parse.
func parseAll(ctx context.Context, cfg *config.Config, root string, entries []FileEntry, logger *log.Logger, progress ProgressCallback) ([]*model.ResourceFile, int, error) {
	var (
		mu      sync.Mutex
		files   = make([]*model.ResourceFile, 0, len(entries))
		skipped int
		done    int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.ParseWorkers, 1))
	for _, entry := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			rf, err := parsers.Parse(root, entry.Path, cfg)

			mu.Lock()
			defer mu.Unlock()
			done++
			progress("Parsing files", float64(done)/float64(len(entries)))
			if err != nil {
				logger.Warn("skipping file", "path", entry.RelPath, "err", err)
				skipped++
				return nil
			}
			files = append(files, rf)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, skipped, nil
}

// open creates the vector index selected by cfg.Backend.
func (s *Snapshot) open(cfg *config.Config) error {
	if cfg.Backend != config.BackendBadger {
		s.Vectors = storage.NewMemoryVectorIndex()
		return nil
	}

	backend := storage.NewBadgerBackend()
	if err := backend.Initialize(cfg.BadgerPath(), false); err != nil {
		return err
	}
	s.backend = backend
	s.Vectors = backend.Vectors()
	return nil
}

// store replaces the persisted state of the previous run.
func (s *Snapshot) store(ctx context.Context, kg *graph.KnowledgeGraph, records []storage.Record) error {
	if err := s.Vectors.Reset(ctx); err != nil {
		return fmt.Errorf("resetting vector index: %w", err)
	}
	if err := s.Vectors.Upsert(ctx, records); err != nil {
		return fmt.Errorf("storing embeddings: %w", err)
	}
	if s.backend != nil {
		if err := s.backend.Graph().BulkLoad(ctx, kg); err != nil {
			return fmt.Errorf("storing graph: %w", err)
		}
	}
	return nil
}
