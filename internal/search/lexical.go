package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
)

// lexicalDoc is the shape indexed for full-text matching. Questions are
// flattened so they participate in the same match query as content.
type lexicalDoc struct {
	DocumentID string `json:"document_id"`
	ChunkID    string `json:"chunk_id"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
	Questions  string `json:"questions"`
}

// lexicalHit is a raw relevance-scored match from the full-text index.
type lexicalHit struct {
	key     string
	score   float64
	payload payload
}

// LexicalIndex wraps a bleve index over chunk content and synthesized
// questions, keyed by vector key so re-indexing upserts.
type LexicalIndex struct {
	index bleve.Index
}

// OpenLexicalIndex opens the index at path, creating it with the default
// mapping when absent.
func OpenLexicalIndex(path string) (*LexicalIndex, error) {
	index, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		mapping := bleve.NewIndexMapping()
		index, err = bleve.New(path, mapping)
	}
	if err != nil {
		return nil, fmt.Errorf("opening lexical index %s: %w", path, err)
	}
	return &LexicalIndex{index: index}, nil
}

// NewMemoryLexicalIndex creates an in-memory index, used by tests.
func NewMemoryLexicalIndex() (*LexicalIndex, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating in-memory lexical index: %w", err)
	}
	return &LexicalIndex{index: index}, nil
}

// Upsert indexes one batch of entries keyed by vector key.
func (li *LexicalIndex) Upsert(entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := li.index.NewBatch()
	for _, e := range entries {
		doc := lexicalDoc{
			DocumentID: e.DocumentID,
			ChunkID:    e.ChunkID,
			ChunkIndex: e.ChunkIndex,
			Content:    e.Content,
			Questions:  strings.Join(e.Questions, "\n"),
		}
		if err := batch.Index(e.VectorKey, doc); err != nil {
			return fmt.Errorf("adding entry %s to batch: %w", e.VectorKey, err)
		}
	}
	if err := li.index.Batch(batch); err != nil {
		return fmt.Errorf("indexing batch: %w", err)
	}
	return nil
}

// Query runs a multi-field match over content and questions and returns
// up to limit relevance-scored hits, highest first.
func (li *LexicalIndex) Query(ctx context.Context, text string, limit int) ([]lexicalHit, error) {
	contentQuery := bleve.NewMatchQuery(text)
	contentQuery.SetField("content")
	questionsQuery := bleve.NewMatchQuery(text)
	questionsQuery.SetField("questions")
	disjunction := bleve.NewDisjunctionQuery(contentQuery, questionsQuery)

	req := bleve.NewSearchRequestOptions(disjunction, limit, 0, false)
	req.Fields = []string{"document_id", "chunk_id", "chunk_index", "content"}

	result, err := li.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical query failed: %w", err)
	}

	hits := make([]lexicalHit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hits = append(hits, lexicalHit{
			key:   h.ID,
			score: h.Score,
			payload: payload{
				documentID: fieldString(h.Fields, "document_id"),
				chunkID:    fieldString(h.Fields, "chunk_id"),
				chunkIndex: fieldInt(h.Fields, "chunk_index"),
				content:    fieldString(h.Fields, "content"),
			},
		})
	}
	return hits, nil
}

// Close closes the index.
func (li *LexicalIndex) Close() error {
	return li.index.Close()
}

func fieldString(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

func fieldInt(fields map[string]interface{}, name string) int {
	if v, ok := fields[name].(float64); ok {
		return int(v)
	}
	return 0
}
