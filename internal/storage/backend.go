// Package storage provides the persistence backends for rfgraph.
//
// It defines the VectorIndex protocol that embedding stores must satisfy,
// along with the record and filter types shared across backends, and a
// Badger-backed implementation of graph.Store.
package storage

import (
	"context"

	"github.com/Benny93/rfgraph/internal/model"
)

// Artifact types stored in a vector index.
const (
	TypeKeyword  = "keyword"
	TypeTestCase = "test_case"
	TypeFileDoc  = "file_doc"
)

// Metadata describes the artifact behind an embedding.
type Metadata struct {
	// Type is one of TypeKeyword, TypeTestCase or TypeFileDoc.
	Type string `json:"type"`

	// FQN is the artifact identity; for file_doc entries it is the file path.
	FQN string `json:"fqn"`

	Name     string         `json:"name"`
	Source   string         `json:"source"`
	Role     model.Role     `json:"role"`
	Platform model.Platform `json:"platform"`
	Tags     []string       `json:"tags,omitempty"`
}

// Record is one stored embedding together with the text it was computed from.
type Record struct {
	ID       string    `json:"id"`
	Vector   []float32 `json:"vector"`
	Document string    `json:"document"`
	Metadata Metadata  `json:"metadata"`
}

// Filter narrows scans and searches. Zero-valued fields match everything.
type Filter struct {
	Type string
	Role model.Role
}

// Match reports whether m passes the filter.
func (f Filter) Match(m Metadata) bool {
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if f.Role != "" && m.Role != f.Role {
		return false
	}
	return true
}

// SearchResult represents a search result from a vector index.
type SearchResult struct {
	// ID is the record identity.
	ID string

	// Score is the relevance score (higher is better).
	Score float64

	// Document is the embedded text.
	Document string

	// Metadata describes the matching artifact.
	Metadata Metadata
}

// VectorIndex defines the interface for embedding stores.
//
// Implementations must be thread-safe and support concurrent access. Scans
// return records sorted by ID.
type VectorIndex interface {
	// Upsert inserts or replaces records by ID.
	Upsert(ctx context.Context, records []Record) error

	// AllEmbeddings returns every record matching f.
	AllEmbeddings(ctx context.Context, f Filter) ([]Record, error)

	// Metadata returns the metadata of id, or nil if not found.
	Metadata(ctx context.Context, id string) (*Metadata, error)

	// Search returns up to limit records matching f, closest to vector first.
	Search(ctx context.Context, vector []float32, limit int, f Filter) ([]SearchResult, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Reset removes every record.
	Reset(ctx context.Context) error

	// Close releases all resources held by the index.
	Close() error
}
