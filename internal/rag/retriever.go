package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/firebase/genkit/go/ai"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/docsupport/docsupport/internal/log"
	"github.com/docsupport/docsupport/internal/mongodb"
)

// Default reciprocal-rank penalties. Equal penalties weight the vector and
// full-text legs the same.
const (
	DefaultVectorPenalty   = 50
	DefaultFulltextPenalty = 50
	DefaultTopK            = 3
)

// Searcher runs the two legs of a hybrid search. The production
// implementation aggregates against Atlas; tests substitute fakes.
type Searcher interface {
	VectorSearch(ctx context.Context, queryVector []float32, k int) ([]Chunk, error)
	FulltextSearch(ctx context.Context, query string, k int) ([]Chunk, error)
}

// RetrieverConfig configures a HybridRetriever.
type RetrieverConfig struct {
	// Searcher executes the search legs. Required.
	Searcher Searcher

	// Embedder embeds queries. Required.
	Embedder ai.Embedder

	// TopK is the number of fused results returned. Default DefaultTopK.
	TopK int

	// Penalties dampen each leg's reciprocal-rank contribution.
	// Defaults: DefaultVectorPenalty / DefaultFulltextPenalty.
	VectorPenalty   int
	FulltextPenalty int

	// Logger is required.
	Logger log.Logger
}

// HybridRetriever fuses vector and full-text search with reciprocal rank
// fusion: each chunk scores sum(1/(rank+penalty)) over the legs it appears
// in, so chunks ranked well by both legs rise to the top.
type HybridRetriever struct {
	searcher        Searcher
	embedder        ai.Embedder
	topK            int
	vectorPenalty   int
	fulltextPenalty int
	logger          log.Logger
}

// NewHybridRetriever creates a HybridRetriever, validating the configuration.
func NewHybridRetriever(cfg RetrieverConfig) (*HybridRetriever, error) {
	if cfg.Searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	r := &HybridRetriever{
		searcher:        cfg.Searcher,
		embedder:        cfg.Embedder,
		topK:            cfg.TopK,
		vectorPenalty:   cfg.VectorPenalty,
		fulltextPenalty: cfg.FulltextPenalty,
		logger:          cfg.Logger,
	}
	if r.topK < 1 {
		r.topK = DefaultTopK
	}
	if r.vectorPenalty < 1 {
		r.vectorPenalty = DefaultVectorPenalty
	}
	if r.fulltextPenalty < 1 {
		r.fulltextPenalty = DefaultFulltextPenalty
	}
	return r, nil
}

// Retrieve returns the topK chunks for query, fused across both legs.
// An empty result is not an error; callers decide how to react.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string) ([]Chunk, error) {
	resp, err := r.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(query, nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, errors.New("embedder returned no embeddings")
	}

	vector, err := r.searcher.VectorSearch(ctx, resp.Embeddings[0].Embedding, r.topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	fulltext, err := r.searcher.FulltextSearch(ctx, query, r.topK)
	if err != nil {
		return nil, fmt.Errorf("fulltext search: %w", err)
	}

	fused := fuse(
		scoredLeg{chunks: vector, penalty: r.vectorPenalty},
		scoredLeg{chunks: fulltext, penalty: r.fulltextPenalty},
	)
	if len(fused) > r.topK {
		fused = fused[:r.topK]
	}
	r.logger.Debug("hybrid retrieval",
		"query_len", len(query),
		"vector_hits", len(vector),
		"fulltext_hits", len(fulltext),
		"returned", len(fused))
	return fused, nil
}

type scoredLeg struct {
	chunks  []Chunk
	penalty int
}

// fuse merges legs by reciprocal rank. Rank counts from 1 within each leg;
// a chunk's score is the sum over legs containing it. Ties break on the
// fusion key to keep results deterministic.
func fuse(legs ...scoredLeg) []Chunk {
	type entry struct {
		chunk Chunk
		score float64
	}
	table := make(map[string]*entry)
	var order []string

	for _, leg := range legs {
		for rank, c := range leg.chunks {
			key := fusionKey(c)
			e, ok := table[key]
			if !ok {
				e = &entry{chunk: c}
				table[key] = e
				order = append(order, key)
			}
			e.score += 1.0 / float64(rank+1+leg.penalty)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := table[order[i]], table[order[j]]
		if a.score != b.score {
			return a.score > b.score
		}
		return order[i] < order[j]
	})

	out := make([]Chunk, len(order))
	for i, key := range order {
		out[i] = table[key].chunk
	}
	return out
}

// fusionKey identifies a chunk across legs: storage ID when present,
// otherwise the text itself.
func fusionKey(c Chunk) string {
	if c.ID != "" {
		return c.ID
	}
	return c.Text
}

// mongoSearcher runs the search legs as Atlas aggregation pipelines.
type mongoSearcher struct {
	collection        *mongo.Collection
	vectorIndexName   string
	fulltextIndexName string
}

// NewMongoSearcher creates the production Searcher over a chunk collection.
func NewMongoSearcher(collection *mongo.Collection, vectorIndexName, fulltextIndexName string) (Searcher, error) {
	if collection == nil {
		return nil, errors.New("collection is required")
	}
	if vectorIndexName == "" || fulltextIndexName == "" {
		return nil, errors.New("index names are required")
	}
	return &mongoSearcher{
		collection:        collection,
		vectorIndexName:   vectorIndexName,
		fulltextIndexName: fulltextIndexName,
	}, nil
}

func (s *mongoSearcher) VectorSearch(ctx context.Context, queryVector []float32, k int) ([]Chunk, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: s.vectorIndexName},
			{Key: "path", Value: mongodb.EmbeddingField},
			{Key: "queryVector", Value: queryVector},
			{Key: "numCandidates", Value: k * 10},
			{Key: "limit", Value: k},
		}}},
	}
	return s.aggregate(ctx, pipeline)
}

func (s *mongoSearcher) FulltextSearch(ctx context.Context, query string, k int) ([]Chunk, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$search", Value: bson.D{
			{Key: "index", Value: s.fulltextIndexName},
			{Key: "text", Value: bson.D{
				{Key: "query", Value: query},
				{Key: "path", Value: mongodb.TextField},
			}},
		}}},
		bson.D{{Key: "$limit", Value: k}},
	}
	return s.aggregate(ctx, pipeline)
}

func (s *mongoSearcher) aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]Chunk, error) {
	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregating %s: %w", s.collection.Name(), err)
	}
	defer cursor.Close(ctx)

	var out []Chunk
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decoding chunk: %w", err)
		}
		chunk, err := mongodb.DecodeRecord[Chunk](raw)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return out, nil
}
