package ingest

import (
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kiro-rag/kiro/internal/chunker"
	"github.com/kiro-rag/kiro/internal/domain"
)

// BuildChunkRecords turns split pieces into persistable chunk rows.
// Every run mints fresh chunk ids; the vector key stays deterministic in
// (document id, chunk id, content). Indices are 1-based and contiguous.
func BuildChunkRecords(documentID string, pieces []chunker.Piece) []*domain.Chunk {
	chunks := make([]*domain.Chunk, 0, len(pieces))
	for i, p := range pieces {
		id := uuid.NewString()
		chunks = append(chunks, &domain.Chunk{
			ID:          id,
			DocumentID:  documentID,
			Index:       i + 1,
			Content:     p.Content,
			ContentHash: domain.ContentHash(p.Content),
			Size:        utf8.RuneCountInString(p.Content),
			VectorKey:   domain.VectorKey(documentID, id, p.Content),
		})
	}
	return chunks
}
