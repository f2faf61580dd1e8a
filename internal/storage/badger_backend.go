package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes for different data types
const (
	prefixNode      = "n:"     // node data
	prefixRel       = "r:"     // edge data
	prefixIncoming  = "i:in:"  // incoming edges
	prefixOutgoing  = "i:out:" // outgoing edges
	prefixNodeType  = "t:"     // node type index
	prefixEmbedding = "e:"     // embedding records
)

// keySep separates identity components inside index keys; identities may
// contain ':' themselves.
const keySep = "\x00"

// ErrClosed is returned when a Badger-backed store is used after Close.
var ErrClosed = errors.New("storage: backend closed")

// BadgerBackend owns a BadgerDB database shared by the graph store and the
// vector index.
type BadgerBackend struct {
	mu          sync.RWMutex
	db          *badger.DB
	initialized bool

	graph   *BadgerGraphStore
	vectors *BadgerVectorIndex
}

// NewBadgerBackend creates a new BadgerDB backend.
func NewBadgerBackend() *BadgerBackend {
	return &BadgerBackend{}
}

// Initialize opens or creates the BadgerDB database at the given path.
func (b *BadgerBackend) Initialize(path string, readOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithNumMemtables(5).
		WithLoggingLevel(badger.ERROR) // Suppress INFO/WARNING logs

	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger DB: %w", err)
	}

	b.db = db
	b.graph = &BadgerGraphStore{backend: b}
	b.vectors = &BadgerVectorIndex{backend: b}
	b.initialized = true
	return nil
}

// Close releases all resources held by the backend.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil
	b.initialized = false
	return err
}

// Graph returns the graph store view of the database.
func (b *BadgerBackend) Graph() *BadgerGraphStore {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.graph
}

// Vectors returns the vector index view of the database.
func (b *BadgerBackend) Vectors() *BadgerVectorIndex {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.vectors
}

// view runs fn in a read-only transaction.
func (b *BadgerBackend) view(fn func(txn *badger.Txn) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.db == nil {
		return ErrClosed
	}
	return b.db.View(fn)
}

// update runs fn in a read-write transaction. Writers are serialized so that
// read-merge-write sequences never conflict.
func (b *BadgerBackend) update(fn func(txn *badger.Txn) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return ErrClosed
	}
	return b.db.Update(fn)
}

// batch runs fn against a write batch and flushes it. Batches split
// themselves into as many transactions as needed, so fn may write any number
// of keys.
func (b *BadgerBackend) batch(fn func(wb *badger.WriteBatch) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return ErrClosed
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	if err := fn(wb); err != nil {
		return err
	}
	return wb.Flush()
}

// dropPrefixes deletes every key under the given prefixes.
func (b *BadgerBackend) dropPrefixes(prefixes ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return ErrClosed
	}
	raw := make([][]byte, 0, len(prefixes))
	for _, p := range prefixes {
		raw = append(raw, []byte(p))
	}
	return b.db.DropPrefix(raw...)
}

// scanPrefix calls fn with the value of every key under prefix.
func scanPrefix(txn *badger.Txn, prefix string, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		if err := item.Value(func(val []byte) error {
			return fn(key, val)
		}); err != nil {
			return err
		}
	}
	return nil
}

// getJSON decodes the value stored at key into v. It reports false when the
// key does not exist.
func getJSON(txn *badger.Txn, key []byte, v any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("getting %q: %w", key, err)
	}
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	}); err != nil {
		return false, fmt.Errorf("unmarshaling %q: %w", key, err)
	}
	return true, nil
}

// setJSON stores v as JSON at key.
func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %q: %w", key, err)
	}
	if err := txn.Set(key, data); err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

// BadgerVectorIndex is a BadgerDB-backed VectorIndex. Records are stored as
// JSON under the embedding prefix; searches scan and score every record.
type BadgerVectorIndex struct {
	backend *BadgerBackend
}

var _ VectorIndex = (*BadgerVectorIndex)(nil)

// Upsert implements VectorIndex. Records are written through a write batch,
// so a whole corpus fits regardless of the transaction size limit.
func (v *BadgerVectorIndex) Upsert(_ context.Context, records []Record) error {
	return v.backend.batch(func(wb *badger.WriteBatch) error {
		for i := range records {
			key := embeddingKey(records[i].ID)
			data, err := json.Marshal(&records[i])
			if err != nil {
				return fmt.Errorf("marshaling %q: %w", key, err)
			}
			if err := wb.Set(key, data); err != nil {
				return fmt.Errorf("setting %q: %w", key, err)
			}
		}
		return nil
	})
}

// AllEmbeddings implements VectorIndex.
func (v *BadgerVectorIndex) AllEmbeddings(_ context.Context, f Filter) ([]Record, error) {
	var result []Record
	err := v.backend.view(func(txn *badger.Txn) error {
		return scanPrefix(txn, prefixEmbedding, func(key, val []byte) error {
			var r Record
			if err := json.Unmarshal(val, &r); err != nil {
				return fmt.Errorf("unmarshaling embedding %q: %w", key, err)
			}
			if f.Match(r.Metadata) {
				result = append(result, r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scanning embeddings: %w", err)
	}
	// Badger iterates in key order, which is ID order under a single prefix.
	return result, nil
}

// Metadata implements VectorIndex.
func (v *BadgerVectorIndex) Metadata(_ context.Context, id string) (*Metadata, error) {
	var r Record
	var found bool
	err := v.backend.view(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, embeddingKey(id), &r)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &r.Metadata, nil
}

// Search implements VectorIndex.
func (v *BadgerVectorIndex) Search(ctx context.Context, vector []float32, limit int, f Filter) ([]SearchResult, error) {
	records, err := v.AllEmbeddings(ctx, f)
	if err != nil {
		return nil, err
	}
	return rankBySimilarity(records, vector, limit), nil
}

// Count implements VectorIndex.
func (v *BadgerVectorIndex) Count(_ context.Context) (int, error) {
	count := 0
	err := v.backend.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixEmbedding)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Reset implements VectorIndex.
func (v *BadgerVectorIndex) Reset(_ context.Context) error {
	if err := v.backend.dropPrefixes(prefixEmbedding); err != nil {
		return fmt.Errorf("dropping embeddings: %w", err)
	}
	return nil
}

// Close implements VectorIndex. The database itself is closed by the owning
// BadgerBackend.
func (v *BadgerVectorIndex) Close() error {
	return nil
}

func embeddingKey(id string) []byte {
	return []byte(prefixEmbedding + id)
}
