package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

const upsertBatchSize = 100

// lexicalEngine and vectorEngine are the two halves the hybrid engine
// fuses. Satisfied by LexicalIndex and VectorStore; tests substitute
// fakes.
type lexicalEngine interface {
	Upsert(entries []*Entry) error
	Query(ctx context.Context, text string, limit int) ([]lexicalHit, error)
	Close() error
}

type vectorEngine interface {
	Ensure(ctx context.Context) error
	Upsert(ctx context.Context, entries []*Entry) error
	Query(ctx context.Context, vector []float32, limit int) ([]vectorHit, error)
	Close() error
}

// Hybrid combines full-text relevance with vector similarity. Each
// query runs both engines, weights the scores and sums them per vector
// key, so a chunk matched both ways outranks single-engine matches.
type Hybrid struct {
	lexical lexicalEngine
	vector  vectorEngine
	weights Weights
	logger  *slog.Logger
}

func NewHybrid(lexical lexicalEngine, vector vectorEngine, weights Weights, logger *slog.Logger) *Hybrid {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hybrid{
		lexical: lexical,
		vector:  vector,
		weights: weights,
		logger:  logger,
	}
}

// Ensure prepares the backing vector collection. The lexical index is
// created on open and needs no separate setup.
func (h *Hybrid) Ensure(ctx context.Context) error {
	return h.vector.Ensure(ctx)
}

// Upsert writes entries to both engines in batches. A failed batch is
// recorded against each of its entries and the remaining batches still
// run, so one bad batch does not abandon the rest of a document.
func (h *Hybrid) Upsert(ctx context.Context, entries []*Entry) error {
	var errs []error
	for start := 0; start < len(entries); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[start:end]

		if err := h.vector.Upsert(ctx, batch); err != nil {
			for _, e := range batch {
				errs = append(errs, fmt.Errorf("vector upsert %s: %w", e.VectorKey, err))
			}
			continue
		}
		if err := h.lexical.Upsert(batch); err != nil {
			for _, e := range batch {
				errs = append(errs, fmt.Errorf("lexical upsert %s: %w", e.VectorKey, err))
			}
		}
	}
	if len(errs) > 0 {
		h.logger.Error("hybrid upsert completed with failures",
			"total", len(entries), "failed", len(errs))
		return errors.Join(errs...)
	}
	return nil
}

// Query runs both engines and fuses the results. Vector similarity is
// floored at zero before weighting so opposed vectors cannot drag down
// a lexical match. Hits come back ordered by combined score, capped at
// limit.
func (h *Hybrid) Query(ctx context.Context, text string, vector []float32, limit int) ([]*Hit, error) {
	lexHits, err := h.lexical.Query(ctx, text, limit)
	if err != nil {
		return nil, err
	}
	vecHits, err := h.vector.Query(ctx, vector, limit)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]*Hit, len(lexHits)+len(vecHits))
	for _, lh := range lexHits {
		merged[lh.key] = &Hit{
			VectorKey:  lh.key,
			DocumentID: lh.payload.documentID,
			ChunkID:    lh.payload.chunkID,
			ChunkIndex: lh.payload.chunkIndex,
			Content:    lh.payload.content,
			Score:      h.weights.Lexical * lh.score,
		}
	}
	for _, vh := range vecHits {
		score := vh.score
		if score < 0 {
			score = 0
		}
		weighted := h.weights.Vector * score
		if hit, ok := merged[vh.key]; ok {
			hit.Score += weighted
			continue
		}
		merged[vh.key] = &Hit{
			VectorKey:  vh.key,
			DocumentID: vh.payload.documentID,
			ChunkID:    vh.payload.chunkID,
			ChunkIndex: vh.payload.chunkIndex,
			Content:    vh.payload.content,
			Score:      weighted,
		}
	}

	hits := make([]*Hit, 0, len(merged))
	for _, hit := range merged {
		hits = append(hits, hit)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].VectorKey < hits[j].VectorKey
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (h *Hybrid) Close() error {
	return errors.Join(h.lexical.Close(), h.vector.Close())
}
