// Package indexer writes chunked documents into the search engines and
// the relational store, in that order, so a chunk visible to retrieval
// is always backed by a persisted row before the document flips to
// chunked.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiro-rag/kiro/internal/domain"
	"github.com/kiro-rag/kiro/internal/search"
)

type embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

type synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]string, error)
}

type engine interface {
	Upsert(ctx context.Context, entries []*search.Entry) error
}

type chunkStore interface {
	InsertChunks(ctx context.Context, chunks []*domain.Chunk) error
	MarkChunked(ctx context.Context, id string, chunkCount int) error
}

// Indexer embeds chunk contents, synthesizes retrieval questions and
// pushes everything through the search engines before persisting the
// chunk rows.
type Indexer struct {
	embedder    embedder
	synthesizer synthesizer
	engine      engine
	store       chunkStore
	logger      *slog.Logger
}

func New(embedder embedder, synthesizer synthesizer, engine engine, store chunkStore, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		embedder:    embedder,
		synthesizer: synthesizer,
		engine:      engine,
		store:       store,
		logger:      logger,
	}
}

// Index processes all chunks of one document. Embeddings are generated
// in one batched call; questions are synthesized per chunk. Only after
// the search upsert and the chunk rows both succeed does the document
// get marked chunked.
func (ix *Indexer) Index(ctx context.Context, documentID string, chunks []*domain.Chunk) error {
	if len(chunks) == 0 {
		if err := ix.store.MarkChunked(ctx, documentID, 0); err != nil {
			return fmt.Errorf("marking document %s chunked: %w", documentID, err)
		}
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	start := time.Now()
	embeddings, err := ix.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d chunks of document %s: %w", len(chunks), documentID, err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch for document %s: got %d, want %d",
			documentID, len(embeddings), len(chunks))
	}
	ix.logger.Debug("embedded chunks",
		"document_id", documentID, "chunks", len(chunks), "elapsed", time.Since(start))

	now := time.Now().UTC()
	entries := make([]*search.Entry, len(chunks))
	for i, c := range chunks {
		qs, err := ix.synthesizer.Synthesize(ctx, c.Content)
		if err != nil {
			return fmt.Errorf("synthesizing questions for chunk %s: %w", c.ID, err)
		}
		entries[i] = &search.Entry{
			VectorKey:  c.VectorKey,
			DocumentID: c.DocumentID,
			ChunkID:    c.ID,
			ChunkIndex: c.Index,
			Content:    c.Content,
			Questions:  qs,
			Embedding:  embeddings[i],
			CreatedAt:  now,
		}
	}

	if err := ix.engine.Upsert(ctx, entries); err != nil {
		return fmt.Errorf("indexing document %s: %w", documentID, err)
	}
	if err := ix.store.InsertChunks(ctx, chunks); err != nil {
		return fmt.Errorf("persisting chunks of document %s: %w", documentID, err)
	}
	if err := ix.store.MarkChunked(ctx, documentID, len(chunks)); err != nil {
		return fmt.Errorf("marking document %s chunked: %w", documentID, err)
	}

	ix.logger.Info("document indexed",
		"document_id", documentID, "chunks", len(chunks), "elapsed", time.Since(start))
	return nil
}
