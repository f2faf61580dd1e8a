// Package embeddings turns Robot Framework artifacts into vectors.
//
// TFIDFEmbedder is a simple embedding model that does not need external ML
// models: it fits IDF weights over the corpus of one ingestion run and
// produces L2-normalized TF-IDF vectors, hashing every term into a fixed
// number of buckets.
package embeddings

import (
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// DefaultDimension is the default dimension of generated embeddings.
const DefaultDimension = 256

// Embedder maps documents to fixed-length vectors. Fit must be called with
// the whole corpus before Embed.
type Embedder interface {
	Fit(docs []string)
	Embed(doc string) []float32
	Dimension() int
}

// TFIDFEmbedder generates TF-IDF based embeddings for keyword and test case
// text.
type TFIDFEmbedder struct {
	mu        sync.RWMutex
	dimension int
	idf       map[string]float64 // term -> IDF score
	docCount  int                // number of documents fitted
}

var _ Embedder = (*TFIDFEmbedder)(nil)

// NewTFIDFEmbedder creates a new TF-IDF embedder producing vectors of the
// given dimension; non-positive values select DefaultDimension.
func NewTFIDFEmbedder(dimension int) *TFIDFEmbedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &TFIDFEmbedder{
		dimension: dimension,
		idf:       make(map[string]float64),
	}
}

// Dimension implements Embedder.
func (e *TFIDFEmbedder) Dimension() int {
	return e.dimension
}

// Fit implements Embedder. It replaces any previous IDF table. Every term of
// the corpus is kept; IDF is the smoothed log((1+N)/(1+df)) + 1.
func (e *TFIDFEmbedder) Fit(docs []string) {
	docFreq := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, term := range tokenize(doc) {
			if !seen[term] {
				docFreq[term]++
				seen[term] = true
			}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.docCount = len(docs)
	e.idf = make(map[string]float64, len(docFreq))
	for term, df := range docFreq {
		e.idf[term] = math.Log(float64(1+e.docCount)/float64(1+df)) + 1
	}
}

// Embed implements Embedder. Terms unseen by Fit are ignored, so documents
// without any fitted term map to the zero vector.
func (e *TFIDFEmbedder) Embed(doc string) []float32 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	embedding := make([]float32, e.dimension)

	// Compute term frequency
	tf := make(map[string]int)
	for _, term := range tokenize(doc) {
		tf[term]++
	}

	maxTF := 0
	for _, count := range tf {
		if count > maxTF {
			maxTF = count
		}
	}

	for term, count := range tf {
		idf, exists := e.idf[term]
		if !exists {
			continue
		}
		embedding[e.bucket(term)] += float32(float64(count) / float64(maxTF) * idf)
	}

	// L2 normalize the embedding
	norm := 0.0
	for _, v := range embedding {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)

	if norm > 0 {
		for i := range embedding {
			embedding[i] = float32(float64(embedding[i]) / norm)
		}
	}

	return embedding
}

// EmbedAll fits the embedder on docs and returns one vector per document.
func EmbedAll(e Embedder, docs []string) [][]float32 {
	e.Fit(docs)

	vectors := make([][]float32, len(docs))
	for i, doc := range docs {
		vectors[i] = e.Embed(doc)
	}
	return vectors
}

// bucket maps term to its index in the embedding vector.
func (e *TFIDFEmbedder) bucket(term string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return int(h.Sum32() % uint32(e.dimension))
}

// tokenize splits text into lower-cased terms.
func tokenize(text string) []string {
	text = strings.ToLower(text)

	terms := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})

	// Filter out very short terms
	filtered := make([]string, 0, len(terms))
	for _, term := range terms {
		if len(term) >= 2 {
			filtered = append(filtered, term)
		}
	}

	return filtered
}
