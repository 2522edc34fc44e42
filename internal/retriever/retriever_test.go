package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiro-rag/kiro/internal/search"
)

type fakeEmbedder struct{ err error }

func (f *fakeEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return [][]float32{{0.1, 0.2}}, nil
}

type fakeEngine struct {
	hits      []*search.Hit
	err       error
	gotText   string
	gotVector []float32
	gotLimit  int
}

func (f *fakeEngine) Query(ctx context.Context, text string, vector []float32, limit int) ([]*search.Hit, error) {
	f.gotText = text
	f.gotVector = vector
	f.gotLimit = limit
	return f.hits, f.err
}

func TestRetrieveFiltersBelowMinScore(t *testing.T) {
	eng := &fakeEngine{hits: []*search.Hit{
		{VectorKey: "a", Content: "first", Score: 9.0},
		{VectorKey: "b", Content: "second", Score: 6.0},
		{VectorKey: "c", Content: "third", Score: 5.9},
	}}
	r := New(&fakeEmbedder{}, eng, 20, 6, nil)

	hits, err := r.Retrieve(context.Background(), "question")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].VectorKey)
	assert.Equal(t, "b", hits[1].VectorKey)

	assert.Equal(t, "question", eng.gotText)
	assert.Equal(t, []float32{0.1, 0.2}, eng.gotVector)
	assert.Equal(t, 20, eng.gotLimit)
}

func TestRetrievePreservesEngineOrder(t *testing.T) {
	eng := &fakeEngine{hits: []*search.Hit{
		{VectorKey: "b", Content: "second", Score: 7.0},
		{VectorKey: "a", Content: "first", Score: 8.0},
	}}
	r := New(&fakeEmbedder{}, eng, 20, 6, nil)

	hits, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "b", hits[0].VectorKey)
	assert.Equal(t, "a", hits[1].VectorKey)
}

func TestRetrieveEmbedderFailure(t *testing.T) {
	r := New(&fakeEmbedder{err: errors.New("quota")}, &fakeEngine{}, 20, 6, nil)
	_, err := r.Retrieve(context.Background(), "q")
	require.Error(t, err)
}

func TestRetrieveEngineFailure(t *testing.T) {
	r := New(&fakeEmbedder{}, &fakeEngine{err: errors.New("down")}, 20, 6, nil)
	_, err := r.Retrieve(context.Background(), "q")
	require.Error(t, err)
}

func TestContextConcatenation(t *testing.T) {
	hits := []*search.Hit{
		{Content: "alpha"},
		{Content: "beta"},
	}
	assert.Equal(t, "alpha\nbeta\n", Context(hits))
	assert.Equal(t, "", Context(nil))
}
