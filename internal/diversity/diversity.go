// Package diversity selects a maximally diverse subset of test cases with
// greedy farthest point sampling over their embeddings.
package diversity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/Benny93/rfgraph/internal/storage"
)

// ErrNegativeCount is returned for a negative sample size.
var ErrNegativeCount = errors.New("sample size must not be negative")

// Pick is one point chosen by FarthestPoint. Distance is the cosine
// distance to the closest point selected before it; the seed reports 0.
type Pick struct {
	ID       string
	Distance float64
}

// Candidate is one selected test case.
type Candidate struct {
	FQN    string   `json:"fqn"`
	Source string   `json:"source"`
	Tags   []string `json:"tags"`
	Score  float64  `json:"distance_score"`
}

// FarthestPoint selects min(n, len(ids)) distinct points. Points are
// enumerated in sorted ID order and the first one seeds the selection; each
// further pick is the point whose distance to the selected set is largest,
// ties going to the earliest point. vectors[i] belongs to ids[i].
func FarthestPoint(ids []string, vectors [][]float32, n int) []Pick {
	k := min(n, len(ids))
	if k <= 0 {
		return nil
	}

	order := make([]int, len(ids))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return ids[order[a]] < ids[order[b]] })

	points := make([][]float64, len(order))
	for i, src := range order {
		points[i] = normalize(vectors[src])
	}

	selected := make([]bool, len(points))
	minDist := make([]float64, len(points))
	for i := range minDist {
		minDist[i] = math.Inf(1)
	}

	picks := make([]Pick, 0, k)
	selected[0] = true
	picks = append(picks, Pick{ID: ids[order[0]], Distance: 0})
	last := 0

	for len(picks) < k {
		best := -1
		for i := range points {
			if selected[i] {
				continue
			}
			d := 1 - dot(points[i], points[last])
			if d < minDist[i] {
				minDist[i] = d
			}
			if best < 0 || minDist[i] > minDist[best] {
				best = i
			}
		}

		selected[best] = true
		picks = append(picks, Pick{ID: ids[order[best]], Distance: minDist[best]})
		last = best
	}

	return picks
}

// normalize returns v scaled to unit length; a zero vector stays zero.
func normalize(v []float32) []float64 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}

	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x) / norm
	}
	return out
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := 0; i < len(a) && i < len(b); i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// EmbeddingSource provides the stored embeddings. storage.VectorIndex
// satisfies it.
type EmbeddingSource interface {
	AllEmbeddings(ctx context.Context, f storage.Filter) ([]storage.Record, error)
}

// Sampler draws diverse smoke-test selections.
type Sampler struct {
	logger *log.Logger
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithLogger sets the logger that reports the platform balance.
func WithLogger(l *log.Logger) Option {
	return func(s *Sampler) { s.logger = l }
}

// NewSampler creates a Sampler.
func NewSampler(opts ...Option) *Sampler {
	s := &Sampler{logger: log.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sample selects up to n maximally diverse test cases from source.
func (s *Sampler) Sample(ctx context.Context, source EmbeddingSource, n int) ([]Candidate, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrNegativeCount, n)
	}

	records, err := source.AllEmbeddings(ctx, storage.Filter{Type: storage.TypeTestCase})
	if err != nil {
		return nil, fmt.Errorf("loading test case embeddings: %w", err)
	}
	if len(records) == 0 {
		s.logger.Warn("no test case embeddings found for smoke selection")
		return []Candidate{}, nil
	}

	ids := make([]string, len(records))
	vectors := make([][]float32, len(records))
	byID := make(map[string]storage.Record, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
		vectors[i] = rec.Vector
		byID[rec.ID] = rec
	}

	picks := FarthestPoint(ids, vectors, n)
	candidates := make([]Candidate, 0, len(picks))
	for _, p := range picks {
		rec := byID[p.ID]
		fqn := rec.Metadata.FQN
		if fqn == "" {
			fqn = rec.ID
		}
		candidates = append(candidates, Candidate{
			FQN:    fqn,
			Source: rec.Metadata.Source,
			Tags:   rec.Metadata.Tags,
			Score:  p.Distance,
		})
	}

	web, mobile := Balance(candidates)
	s.logger.Info("smoke selection", "total", len(candidates), "web", web, "mobile", mobile)

	return candidates, nil
}

// Sample selects up to n diverse test cases with a default Sampler.
func Sample(ctx context.Context, source EmbeddingSource, n int) ([]Candidate, error) {
	return NewSampler().Sample(ctx, source, n)
}

// Balance counts the candidates tagged web and those tagged ios or android.
func Balance(candidates []Candidate) (web, mobile int) {
	for _, c := range candidates {
		isWeb, isMobile := false, false
		for _, tag := range c.Tags {
			switch tag {
			case "web":
				isWeb = true
			case "ios", "android":
				isMobile = true
			}
		}
		if isWeb {
			web++
		}
		if isMobile {
			mobile++
		}
	}
	return web, mobile
}
