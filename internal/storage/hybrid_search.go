package storage

import (
	"context"
	"math"
	"sort"
)

// DefaultRRFConstant is the usual Reciprocal Rank Fusion constant.
const DefaultRRFConstant = 60

// HybridSearch combines term and vector search using Reciprocal Rank Fusion
// (RRF). k is the RRF constant. terms may be nil, in which case only the
// vector ranking contributes.
func HybridSearch(ctx context.Context, index VectorIndex, terms *TermIndex, query string, queryVector []float32, limit, k int, f Filter) ([]SearchResult, error) {
	var termResults []SearchResult
	if terms != nil {
		termResults = terms.Search(query, limit*2, f)
	}

	var vectorResults []SearchResult
	if len(queryVector) > 0 {
		var err error
		vectorResults, err = index.Search(ctx, queryVector, limit*2, f)
		if err != nil {
			return nil, err
		}
	}

	rrfScores := make(map[string]float64)
	metadata := make(map[string]SearchResult)

	for _, ranking := range [][]SearchResult{termResults, vectorResults} {
		for i, result := range ranking {
			rrfScores[result.ID] += 1.0 / float64(k+i)
			if _, exists := metadata[result.ID]; !exists {
				metadata[result.ID] = result
			}
		}
	}

	results := make([]SearchResult, 0, len(rrfScores))
	for id, score := range rrfScores {
		meta := metadata[id]
		results = append(results, SearchResult{
			ID:       id,
			Score:    score,
			Document: meta.Document,
			Metadata: meta.Metadata,
		})
	}

	sortResults(results)

	if limit >= 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// CosineSimilarity computes the cosine similarity between two vectors. It is
// 0 when the lengths differ or either vector has zero norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rankBySimilarity scores records against vector and keeps the best limit.
func rankBySimilarity(records []Record, vector []float32, limit int) []SearchResult {
	results := make([]SearchResult, 0, len(records))
	for _, r := range records {
		results = append(results, SearchResult{
			ID:       r.ID,
			Score:    CosineSimilarity(vector, r.Vector),
			Document: r.Document,
			Metadata: r.Metadata,
		})
	}

	sortResults(results)

	if limit >= 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// sortResults orders by score descending, then ID for stable output.
func sortResults(results []SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}
