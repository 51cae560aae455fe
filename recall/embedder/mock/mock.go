// Package mock provides a deterministic embedder for tests: embeddings are
// derived from a hash of the text, so equal texts always embed identically.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder generates deterministic hash-based embeddings.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder matching MiniLM's 384 dimensions.
func New() *Embedder {
	return &Embedder{dimensions: 384}
}

// Embed produces a unit vector seeded by the text's hash.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, m.dimensions)
	for i := range embedding {
		// LCG keeps the sequence deterministic per seed.
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}
