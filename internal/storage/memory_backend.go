package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryVectorIndex is an in-memory implementation of VectorIndex.
type MemoryVectorIndex struct {
	mu      sync.RWMutex
	records map[string]Record
}

var _ VectorIndex = (*MemoryVectorIndex)(nil)

// NewMemoryVectorIndex creates a new empty in-memory vector index.
func NewMemoryVectorIndex() *MemoryVectorIndex {
	return &MemoryVectorIndex{records: make(map[string]Record)}
}

// Upsert implements VectorIndex.
func (m *MemoryVectorIndex) Upsert(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

// AllEmbeddings implements VectorIndex.
func (m *MemoryVectorIndex) AllEmbeddings(_ context.Context, f Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Record
	for _, r := range m.records {
		if f.Match(r.Metadata) {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Metadata implements VectorIndex.
func (m *MemoryVectorIndex) Metadata(_ context.Context, id string) (*Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	meta := r.Metadata
	return &meta, nil
}

// Search implements VectorIndex.
func (m *MemoryVectorIndex) Search(ctx context.Context, vector []float32, limit int, f Filter) ([]SearchResult, error) {
	records, err := m.AllEmbeddings(ctx, f)
	if err != nil {
		return nil, err
	}
	return rankBySimilarity(records, vector, limit), nil
}

// Count implements VectorIndex.
func (m *MemoryVectorIndex) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// Reset implements VectorIndex.
func (m *MemoryVectorIndex) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]Record)
	return nil
}

// Close implements VectorIndex.
func (m *MemoryVectorIndex) Close() error {
	return m.Reset(context.Background())
}
