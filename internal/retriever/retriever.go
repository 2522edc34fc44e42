// Package retriever answers "what do we know about this" queries against
// the hybrid search engines.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kiro-rag/kiro/internal/search"
)

type embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

type engine interface {
	Query(ctx context.Context, text string, vector []float32, limit int) ([]*search.Hit, error)
}

// Retriever embeds the query text and fetches the best-matching chunks.
type Retriever struct {
	embedder embedder
	engine   engine
	topK     int
	minScore float64
	logger   *slog.Logger
}

func New(embedder embedder, engine engine, topK int, minScore float64, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		engine:   engine,
		topK:     topK,
		minScore: minScore,
		logger:   logger,
	}
}

// Retrieve returns the hits scoring at or above the minimum, in engine
// order. An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]*search.Hit, error) {
	vectors, err := r.embedder.GenerateEmbeddings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := r.engine.Query(ctx, query, vectors[0], r.topK)
	if err != nil {
		return nil, fmt.Errorf("querying engines: %w", err)
	}

	kept := make([]*search.Hit, 0, len(hits))
	for _, h := range hits {
		if h.Score < r.minScore {
			r.logger.Debug("hit below score threshold",
				"vector_key", h.VectorKey, "score", h.Score, "min_score", r.minScore)
			continue
		}
		kept = append(kept, h)
	}
	return kept, nil
}

// Context concatenates hit contents in engine order, each terminated by
// a newline. The empty string means nothing relevant was found.
func Context(hits []*search.Hit) string {
	var b strings.Builder
	for _, h := range hits {
		b.WriteString(h.Content)
		b.WriteString("\n")
	}
	return b.String()
}
