package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLexical struct {
	hits     []lexicalHit
	upserted [][]*Entry
	err      error
}

func (f *fakeLexical) Upsert(entries []*Entry) error {
	if f.err != nil {
		return f.err
	}
	f.upserted = append(f.upserted, entries)
	return nil
}

func (f *fakeLexical) Query(ctx context.Context, text string, limit int) ([]lexicalHit, error) {
	return f.hits, nil
}

func (f *fakeLexical) Close() error { return nil }

type fakeVector struct {
	hits     []vectorHit
	upserted [][]*Entry
	err      error
}

func (f *fakeVector) Ensure(ctx context.Context) error { return nil }

func (f *fakeVector) Upsert(ctx context.Context, entries []*Entry) error {
	if f.err != nil {
		return f.err
	}
	f.upserted = append(f.upserted, entries)
	return nil
}

func (f *fakeVector) Query(ctx context.Context, vector []float32, limit int) ([]vectorHit, error) {
	return f.hits, nil
}

func (f *fakeVector) Close() error { return nil }

func defaultWeights() Weights {
	return Weights{Lexical: 0.4, Vector: 0.6}
}

func TestHybridQueryFusesScores(t *testing.T) {
	lex := &fakeLexical{hits: []lexicalHit{
		{key: "a", score: 2.0, payload: payload{content: "alpha"}},
		{key: "b", score: 1.0, payload: payload{content: "beta"}},
	}}
	vec := &fakeVector{hits: []vectorHit{
		{key: "a", score: 0.9, payload: payload{content: "alpha"}},
		{key: "c", score: 0.8, payload: payload{content: "gamma"}},
	}}
	h := NewHybrid(lex, vec, defaultWeights(), nil)

	hits, err := h.Query(context.Background(), "alpha", []float32{0.1}, 20)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "a", hits[0].VectorKey)
	assert.InDelta(t, 0.4*2.0+0.6*0.9, hits[0].Score, 1e-9)
	assert.Equal(t, "c", hits[1].VectorKey)
	assert.InDelta(t, 0.6*0.8, hits[1].Score, 1e-9)
	assert.Equal(t, "b", hits[2].VectorKey)
	assert.InDelta(t, 0.4*1.0, hits[2].Score, 1e-9)
}

func TestHybridQueryFloorsNegativeSimilarity(t *testing.T) {
	lex := &fakeLexical{hits: []lexicalHit{
		{key: "a", score: 1.0, payload: payload{content: "alpha"}},
	}}
	vec := &fakeVector{hits: []vectorHit{
		{key: "a", score: -0.7, payload: payload{content: "alpha"}},
	}}
	h := NewHybrid(lex, vec, defaultWeights(), nil)

	hits, err := h.Query(context.Background(), "alpha", []float32{0.1}, 20)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 0.4*1.0, hits[0].Score, 1e-9)
}

func TestHybridQueryCapsAtLimit(t *testing.T) {
	lex := &fakeLexical{hits: []lexicalHit{
		{key: "a", score: 3.0},
		{key: "b", score: 2.0},
		{key: "c", score: 1.0},
	}}
	vec := &fakeVector{}
	h := NewHybrid(lex, vec, defaultWeights(), nil)

	hits, err := h.Query(context.Background(), "q", nil, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].VectorKey)
	assert.Equal(t, "b", hits[1].VectorKey)
}

func TestHybridUpsertBatches(t *testing.T) {
	lex := &fakeLexical{}
	vec := &fakeVector{}
	h := NewHybrid(lex, vec, defaultWeights(), nil)

	entries := make([]*Entry, 150)
	for i := range entries {
		entries[i] = &Entry{VectorKey: "k", Content: "c"}
	}
	require.NoError(t, h.Upsert(context.Background(), entries))
	require.Len(t, vec.upserted, 2)
	assert.Len(t, vec.upserted[0], 100)
	assert.Len(t, vec.upserted[1], 50)
	require.Len(t, lex.upserted, 2)
}

func TestHybridUpsertCollectsPerEntryFailures(t *testing.T) {
	lex := &fakeLexical{}
	vec := &fakeVector{err: errors.New("engine down")}
	h := NewHybrid(lex, vec, defaultWeights(), nil)

	entries := []*Entry{
		{VectorKey: "k1", Content: "one"},
		{VectorKey: "k2", Content: "two"},
	}
	err := h.Upsert(context.Background(), entries)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "k1")
	assert.Contains(t, err.Error(), "k2")
	assert.Empty(t, lex.upserted)
}
