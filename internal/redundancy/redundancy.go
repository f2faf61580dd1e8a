// Package redundancy finds near-duplicate keywords and test cases by
// comparing their embeddings.
//
// Three independent passes classify duplicates:
//   - horizontal: setup and Base Data Creation keywords repeated across files;
//   - vertical: atomic tests subsumed by an end-to-end test;
//   - migration sync: migration tests already covered by the main suites.
//
// Every pass compares all pairs of its candidate pool, so its cost grows
// quadratically with the pool size.
package redundancy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Benny93/rfgraph/internal/model"
	"github.com/Benny93/rfgraph/internal/storage"
)

// DefaultThreshold is the default minimum similarity of a hit.
const DefaultThreshold = 0.90

// ErrThreshold is returned for a threshold outside [0, 1].
var ErrThreshold = errors.New("similarity threshold must be within [0, 1]")

// Kind classifies a hit.
type Kind string

const (
	KindHorizontal    Kind = "horizontal"
	KindVertical      Kind = "vertical"
	KindMigrationSync Kind = "migration_sync"
)

// setupMarkers select the keywords that take part in the horizontal pass.
var setupMarkers = []string{"base data creation", "setup"}

// EmbeddingSource provides the stored embeddings. storage.VectorIndex
// satisfies it.
type EmbeddingSource interface {
	AllEmbeddings(ctx context.Context, f storage.Filter) ([]storage.Record, error)
}

// Hit is one detected redundancy.
type Hit struct {
	Kind           Kind    `json:"kind"`
	SourceFQN      string  `json:"source_fqn"`
	DuplicateFQN   string  `json:"duplicate_fqn"`
	Similarity     float64 `json:"similarity"`
	Recommendation string  `json:"recommendation"`
}

// Summary counts hits.
type Summary struct {
	Total  int          `json:"total"`
	ByKind map[Kind]int `json:"by_kind"`
}

// Report is the outcome of one detection run. An empty report is valid.
type Report struct {
	Hits []Hit `json:"hits"`
}

// Summary counts the hits of the report by kind.
func (r *Report) Summary() Summary {
	s := Summary{Total: len(r.Hits), ByKind: make(map[Kind]int)}
	for _, h := range r.Hits {
		s.ByKind[h.Kind]++
	}
	return s
}

// HitsOfKind returns the hits of one kind in report order.
func (r *Report) HitsOfKind(kind Kind) []Hit {
	var hits []Hit
	for _, h := range r.Hits {
		if h.Kind == kind {
			hits = append(hits, h)
		}
	}
	return hits
}

// CosineSimilarity returns the cosine similarity of a and b, or 0 when
// either has zero norm or their lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	return storage.CosineSimilarity(a, b)
}

// Detector runs the three redundancy passes with one threshold.
type Detector struct {
	threshold float64
}

// New creates a Detector reporting pairs with similarity >= threshold.
func New(threshold float64) (*Detector, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrThreshold, threshold)
	}
	return &Detector{threshold: threshold}, nil
}

// Threshold returns the configured threshold.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// Detect loads the embeddings from source and runs the passes concurrently.
// Hits are ordered horizontal, vertical, then migration sync; within a pass
// they follow the sorted identity order of the candidates.
func (d *Detector) Detect(ctx context.Context, source EmbeddingSource) (*Report, error) {
	var keywords, tests []storage.Record

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		keywords, err = source.AllEmbeddings(gctx, storage.Filter{Type: storage.TypeKeyword})
		if err != nil {
			return fmt.Errorf("loading keyword embeddings: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		tests, err = source.AllEmbeddings(gctx, storage.Filter{Type: storage.TypeTestCase})
		if err != nil {
			return fmt.Errorf("loading test case embeddings: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var horizontal, vertical, migration []Hit
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		horizontal, err = d.horizontal(gctx, keywords)
		return err
	})
	g.Go(func() error {
		var err error
		vertical, err = d.vertical(gctx, tests)
		return err
	})
	g.Go(func() error {
		var err error
		migration, err = d.migrationSync(gctx, tests)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(horizontal)+len(vertical)+len(migration))
	hits = append(hits, horizontal...)
	hits = append(hits, vertical...)
	hits = append(hits, migration...)
	return &Report{Hits: hits}, nil
}

func isSetupKeyword(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range setupMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func (d *Detector) horizontal(ctx context.Context, keywords []storage.Record) ([]Hit, error) {
	var pool []storage.Record
	for _, rec := range keywords {
		if isSetupKeyword(rec.Metadata.Name) {
			pool = append(pool, rec)
		}
	}

	var hits []Hit
	for i, a := range pool {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, b := range pool[i+1:] {
			if a.Metadata.Source == b.Metadata.Source {
				continue
			}
			sim := CosineSimilarity(a.Vector, b.Vector)
			if sim < d.threshold {
				continue
			}
			hits = append(hits, Hit{
				Kind:         KindHorizontal,
				SourceFQN:    a.Metadata.FQN,
				DuplicateFQN: b.Metadata.FQN,
				Similarity:   sim,
				Recommendation: fmt.Sprintf(
					"Extract shared setup logic into a common resource keyword. Similarity: %s", percent(sim)),
			})
		}
	}
	return hits, nil
}

func (d *Detector) vertical(ctx context.Context, tests []storage.Record) ([]Hit, error) {
	atomic := byRole(tests, model.RoleAtomicTest)
	e2e := byRole(tests, model.RoleE2ETest)

	return d.crossPairs(ctx, atomic, e2e, func(a, b storage.Record, sim float64) Hit {
		return Hit{
			Kind:         KindVertical,
			SourceFQN:    a.Metadata.FQN,
			DuplicateFQN: b.Metadata.FQN,
			Similarity:   sim,
			Recommendation: fmt.Sprintf(
				"Atomic test '%s' appears fully covered by SIT test '%s'. Consider deprecation. Similarity: %s",
				a.Metadata.FQN, b.Metadata.FQN, percent(sim)),
		}
	})
}

func (d *Detector) migrationSync(ctx context.Context, tests []storage.Record) ([]Hit, error) {
	migration := byRole(tests, model.RoleMigrationTest)
	others := byRole(tests, model.RoleAtomicTest, model.RoleE2ETest)

	return d.crossPairs(ctx, migration, others, func(a, b storage.Record, sim float64) Hit {
		return Hit{
			Kind:         KindMigrationSync,
			SourceFQN:    a.Metadata.FQN,
			DuplicateFQN: b.Metadata.FQN,
			Similarity:   sim,
			Recommendation: fmt.Sprintf(
				"Migration test '%s' is covered by '%s'. Consider deprecation. Similarity: %s",
				a.Metadata.FQN, b.Metadata.FQN, percent(sim)),
		}
	})
}

// crossPairs compares every record of left with every record of right.
func (d *Detector) crossPairs(ctx context.Context, left, right []storage.Record,
	hit func(a, b storage.Record, sim float64) Hit) ([]Hit, error) {
	var hits []Hit
	for _, a := range left {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, b := range right {
			sim := CosineSimilarity(a.Vector, b.Vector)
			if sim >= d.threshold {
				hits = append(hits, hit(a, b, sim))
			}
		}
	}
	return hits, nil
}

// byRole keeps the records of the given roles, preserving order.
func byRole(records []storage.Record, roles ...model.Role) []storage.Record {
	var out []storage.Record
	for _, rec := range records {
		for _, role := range roles {
			if rec.Metadata.Role == role {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

func percent(sim float64) string {
	return fmt.Sprintf("%.2f%%", sim*100)
}
