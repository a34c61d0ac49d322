package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsupport/docsupport/internal/document"
	"github.com/docsupport/docsupport/internal/log"
	"github.com/docsupport/docsupport/internal/testutil"
)

func makeTestDocs(n int) []document.Document {
	docs := make([]document.Document, n)
	for i := range docs {
		docs[i] = document.New("https://docs.example.com/p", "P", "content", nil, nil)
	}
	return docs
}

// fakeSearcher returns canned results for each leg.
type fakeSearcher struct {
	vector      []Chunk
	fulltext    []Chunk
	vectorErr   error
	fulltextErr error

	lastQuery  string
	lastVector []float32
	lastK      int
}

func (f *fakeSearcher) VectorSearch(_ context.Context, queryVector []float32, k int) ([]Chunk, error) {
	f.lastVector = queryVector
	f.lastK = k
	return f.vector, f.vectorErr
}

func (f *fakeSearcher) FulltextSearch(_ context.Context, query string, k int) ([]Chunk, error) {
	f.lastQuery = query
	return f.fulltext, f.fulltextErr
}

func chunk(id, text string) Chunk {
	return Chunk{ID: id, Text: text, URL: "https://docs.example.com/" + id, Title: id}
}

func newTestRetriever(t *testing.T, s Searcher, topK int) *HybridRetriever {
	t.Helper()
	r, err := NewHybridRetriever(RetrieverConfig{
		Searcher: s,
		Embedder: &testutil.StaticEmbedder{},
		TopK:     topK,
		Logger:   log.NewNop(),
	})
	require.NoError(t, err)
	return r
}

func TestNewHybridRetrieverValidation(t *testing.T) {
	_, err := NewHybridRetriever(RetrieverConfig{Embedder: &testutil.StaticEmbedder{}, Logger: log.NewNop()})
	assert.Error(t, err, "missing searcher")

	_, err = NewHybridRetriever(RetrieverConfig{Searcher: &fakeSearcher{}, Logger: log.NewNop()})
	assert.Error(t, err, "missing embedder")

	r, err := NewHybridRetriever(RetrieverConfig{
		Searcher: &fakeSearcher{}, Embedder: &testutil.StaticEmbedder{}, Logger: log.NewNop(),
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, r.topK)
	assert.Equal(t, DefaultVectorPenalty, r.vectorPenalty)
	assert.Equal(t, DefaultFulltextPenalty, r.fulltextPenalty)
}

func TestRetrieveFusesBothLegs(t *testing.T) {
	// "b" appears in both legs, so it must outrank single-leg chunks.
	s := &fakeSearcher{
		vector:   []Chunk{chunk("a", "vector best"), chunk("b", "shared")},
		fulltext: []Chunk{chunk("c", "fulltext best"), chunk("b", "shared")},
	}
	r := newTestRetriever(t, s, 3)

	got, err := r.Retrieve(context.Background(), "how do pipelines work")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].ID)

	assert.Equal(t, "how do pipelines work", s.lastQuery)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, s.lastVector)
	assert.Equal(t, 3, s.lastK)
}

func TestRetrieveHonorsTopK(t *testing.T) {
	s := &fakeSearcher{
		vector:   []Chunk{chunk("a", "t1"), chunk("b", "t2")},
		fulltext: []Chunk{chunk("c", "t3"), chunk("d", "t4")},
	}
	r := newTestRetriever(t, s, 2)

	got, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRetrieveEmptyResultIsNotAnError(t *testing.T) {
	r := newTestRetriever(t, &fakeSearcher{}, 3)

	got, err := r.Retrieve(context.Background(), "nothing matches this")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieveLegErrors(t *testing.T) {
	s := &fakeSearcher{vectorErr: errors.New("index offline")}
	r := newTestRetriever(t, s, 3)
	_, err := r.Retrieve(context.Background(), "q")
	assert.ErrorContains(t, err, "vector search")

	s = &fakeSearcher{fulltextErr: errors.New("index offline")}
	r = newTestRetriever(t, s, 3)
	_, err = r.Retrieve(context.Background(), "q")
	assert.ErrorContains(t, err, "fulltext search")
}

func TestRetrieveEmbedderError(t *testing.T) {
	r, err := NewHybridRetriever(RetrieverConfig{
		Searcher: &fakeSearcher{},
		Embedder: &testutil.StaticEmbedder{Err: errors.New("quota exceeded")},
		Logger:   log.NewNop(),
	})
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "q")
	assert.ErrorContains(t, err, "embedding query")
}

func TestFuseScoring(t *testing.T) {
	a, b, c := chunk("a", "ta"), chunk("b", "tb"), chunk("c", "tc")

	fused := fuse(
		scoredLeg{chunks: []Chunk{a, b}, penalty: 50},
		scoredLeg{chunks: []Chunk{b, c}, penalty: 50},
	)
	require.Len(t, fused, 3)

	// b: 1/52 + 1/51; a: 1/51; c: 1/52 — so b, a, c.
	assert.Equal(t, "b", fused[0].ID)
	assert.Equal(t, "a", fused[1].ID)
	assert.Equal(t, "c", fused[2].ID)
}

func TestFusePenaltyWeighting(t *testing.T) {
	a, b := chunk("a", "ta"), chunk("b", "tb")

	// A lighter vector penalty makes the vector leg dominate.
	fused := fuse(
		scoredLeg{chunks: []Chunk{a}, penalty: 10},
		scoredLeg{chunks: []Chunk{b}, penalty: 100},
	)
	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].ID)
}

func TestFuseDeterministicTieBreak(t *testing.T) {
	a, b := chunk("a", "ta"), chunk("b", "tb")

	for range 5 {
		fused := fuse(scoredLeg{chunks: []Chunk{a}, penalty: 50},
			scoredLeg{chunks: []Chunk{b}, penalty: 50})
		require.Len(t, fused, 2)
		assert.Equal(t, "a", fused[0].ID)
	}
}

func TestBatches(t *testing.T) {
	docs := makeTestDocs(7)

	got := batches(docs, 3)
	require.Len(t, got, 3)
	assert.Len(t, got[0], 3)
	assert.Len(t, got[1], 3)
	assert.Len(t, got[2], 1)

	assert.Empty(t, batches(nil, 3))
}
