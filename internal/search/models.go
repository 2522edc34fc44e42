// Package search is the hybrid index: a lexical full-text index and a
// dense-vector collection queried together with weighted scores.
package search

import "time"

// Entry is one indexed chunk, keyed by its deterministic vector key so
// re-indexing identical content upserts instead of duplicating.
type Entry struct {
	VectorKey  string
	DocumentID string
	ChunkID    string
	ChunkIndex int
	Content    string
	Questions  []string
	Embedding  []float32
	CreatedAt  time.Time
}

// Hit is one scored result of a hybrid query. Score is the weighted sum
// of the lexical relevance and the floored cosine similarity.
type Hit struct {
	VectorKey  string
	DocumentID string
	ChunkID    string
	ChunkIndex int
	Content    string
	Score      float64
}

// Weights tune the hybrid score blend.
type Weights struct {
	Lexical float64 // Applied to the full-text relevance score
	Vector  float64 // Applied to max(0, cosine similarity)
}
