package search

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// VectorStore wraps the Qdrant client with connection management and
// health checks. One instance is shared process-wide.
type VectorStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// vectorHit is a raw cosine-scored match from the vector engine.
type vectorHit struct {
	key     string
	score   float64
	payload payload
}

// payload mirrors the entry fields stored alongside the vector.
type payload struct {
	documentID string
	chunkID    string
	chunkIndex int
	content    string
}

// NewVectorStore creates a Qdrant-backed vector store with health
// validation; it fails fast if the engine is unreachable.
func NewVectorStore(host string, port int, collection string, dimension int) (*VectorStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	vs := &VectorStore{client: client, collection: collection, dimension: dimension}

	if err := vs.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrEngineUnreachable, err)
	}

	return vs, nil
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (vs *VectorStore) healthCheckWithRetry(ctx context.Context) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error { return vs.Health(ctx) }, exponentialBackoff)
}

// Health performs a single health check against the engine.
func (vs *VectorStore) Health(ctx context.Context) error {
	result, err := vs.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// Ensure creates the collection if absent, with cosine distance and a
// keyword payload index on document_id. Idempotent.
func (vs *VectorStore) Ensure(ctx context.Context) error {
	collections, err := vs.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range collections {
		if name == vs.collection {
			return nil
		}
	}

	err = vs.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: vs.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vs.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	_, err = vs.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: vs.collection,
		FieldName:      "document_id",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to create document_id index: %w", err)
	}
	return nil
}

// Upsert writes one batch of entries, keyed by vector key, retrying with
// exponential backoff. Same-key writes overwrite (idempotent re-indexing).
func (vs *VectorStore) Upsert(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for i, e := range entries {
		if len(e.Embedding) != vs.dimension {
			return fmt.Errorf("%w: entry %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(e.Embedding), vs.dimension)
		}
	}

	points := make([]*qdrant.PointStruct, len(entries))
	for i, e := range entries {
		questions := make([]any, len(e.Questions))
		for j, q := range e.Questions {
			questions[j] = q
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(e.VectorKey),
			Vectors: qdrant.NewVectors(e.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				"document_id": e.DocumentID,
				"chunk_id":    e.ChunkID,
				"chunk_index": e.ChunkIndex,
				"vector_key":  e.VectorKey,
				"content":     e.Content,
				"questions":   questions,
				"created_at":  e.CreatedAt.UTC().Format(time.RFC3339),
			}),
		}
	}

	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		_, err := vs.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: vs.collection,
			Points:         points,
		})
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(exponentialBackoff, ctx))
}

// Query returns up to limit cosine-scored matches for the vector,
// highest first, with payloads.
func (vs *VectorStore) Query(ctx context.Context, vector []float32, limit int) ([]vectorHit, error) {
	if len(vector) != vs.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), vs.dimension)
	}

	results, err := vs.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: vs.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	hits := make([]vectorHit, 0, len(results))
	for _, r := range results {
		p := r.Payload
		hits = append(hits, vectorHit{
			key:   p["vector_key"].GetStringValue(),
			score: float64(r.Score),
			payload: payload{
				documentID: p["document_id"].GetStringValue(),
				chunkID:    p["chunk_id"].GetStringValue(),
				chunkIndex: int(p["chunk_index"].GetIntegerValue()),
				content:    p["content"].GetStringValue(),
			},
		})
	}
	return hits, nil
}

// Close closes the engine connection.
func (vs *VectorStore) Close() error {
	if vs.client != nil {
		return vs.client.Close()
	}
	return nil
}
