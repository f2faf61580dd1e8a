package storage

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var (
	camelPattern     = regexp.MustCompile(`([a-z])([A-Z])`)
	letterNumPattern = regexp.MustCompile(`([a-zA-Z])(\d)`)
	numLetterPattern = regexp.MustCompile(`(\d)([a-zA-Z])`)
	nonWordPattern   = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// TermIndex is a simple in-memory inverted index for full-text search over
// the documents of a vector index.
type TermIndex struct {
	mu       sync.RWMutex
	postings map[string]map[string]int // token -> id -> frequency
	records  map[string]Record
}

// NewTermIndex creates an empty term index.
func NewTermIndex() *TermIndex {
	return &TermIndex{
		postings: make(map[string]map[string]int),
		records:  make(map[string]Record),
	}
}

// BuildTermIndex indexes every record currently stored in index.
func BuildTermIndex(ctx context.Context, index VectorIndex) (*TermIndex, error) {
	records, err := index.AllEmbeddings(ctx, Filter{})
	if err != nil {
		return nil, fmt.Errorf("loading records for term index: %w", err)
	}
	t := NewTermIndex()
	t.Add(records...)
	return t, nil
}

// tokenize splits text into searchable tokens.
// Handles camelCase, snake_case, dot notation and Robot Framework phrases.
func tokenize(text string) []string {
	if text == "" {
		return nil
	}

	// "UserService" -> "User Service", "HTTP2" -> "HTTP 2"
	expanded := camelPattern.ReplaceAllString(text, "$1 $2")
	expanded = letterNumPattern.ReplaceAllString(expanded, "$1 $2")
	expanded = numLetterPattern.ReplaceAllString(expanded, "$1 $2")

	tokens := make(map[string]bool)
	for _, src := range []string{text, expanded} {
		for _, part := range nonWordPattern.Split(src, -1) {
			if len(part) >= 2 {
				tokens[strings.ToLower(part)] = true
			}
		}
	}

	result := make([]string, 0, len(tokens))
	for token := range tokens {
		result = append(result, token)
	}
	return result
}

// Add indexes records, replacing earlier entries with the same ID.
func (t *TermIndex) Add(records ...Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, r := range records {
		t.removeLocked(r.ID)
		t.records[r.ID] = r

		for _, token := range tokenize(r.Metadata.Name + " " + r.Document) {
			if t.postings[token] == nil {
				t.postings[token] = make(map[string]int)
			}
			t.postings[token][r.ID]++
		}
	}
}

// Remove drops id from the index.
func (t *TermIndex) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(id)
}

func (t *TermIndex) removeLocked(id string) {
	if _, ok := t.records[id]; !ok {
		return
	}
	delete(t.records, id)
	for token, ids := range t.postings {
		delete(ids, id)
		if len(ids) == 0 {
			delete(t.postings, token)
		}
	}
}

// Search performs full-text search with simple TF scoring.
func (t *TermIndex) Search(query string, limit int, f Filter) []SearchResult {
	t.mu.RLock()
	defer t.mu.RUnlock()

	scores := make(map[string]float64)
	for _, token := range tokenize(query) {
		for id, freq := range t.postings[token] {
			scores[id] += float64(freq)
		}
	}

	results := make([]SearchResult, 0, len(scores))
	for id, score := range scores {
		r := t.records[id]
		if !f.Match(r.Metadata) {
			continue
		}
		results = append(results, SearchResult{
			ID:       id,
			Score:    score,
			Document: r.Document,
			Metadata: r.Metadata,
		})
	}

	sortResults(results)

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Size returns the number of indexed tokens.
func (t *TermIndex) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.postings)
}
