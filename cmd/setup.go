package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/docsupport/docsupport/internal/agent"
	"github.com/docsupport/docsupport/internal/config"
	"github.com/docsupport/docsupport/internal/document"
	"github.com/docsupport/docsupport/internal/genai"
	"github.com/docsupport/docsupport/internal/log"
	"github.com/docsupport/docsupport/internal/memory"
	"github.com/docsupport/docsupport/internal/mongodb"
	"github.com/docsupport/docsupport/internal/rag"
)

// memoryVectorIndexName is the Atlas index over the memory collection.
// Separate from the chunk index because it carries a user_id filter field.
const memoryVectorIndexName = "memory_vector_index"

// Data directory layout shared by the pipeline stages: crawl writes
// crawledDir, etl reads it and writes enhancedDir.
func crawledDir(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "crawled")
}

func enhancedDir(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "enhanced")
}

// connect opens the MongoDB client and returns a disconnect function for
// the caller to defer.
func connect(ctx context.Context, cfg *config.Config, logger log.Logger) (*mongo.Client, func(), error) {
	client, err := mongodb.Connect(ctx, cfg.MongoURI, logger)
	if err != nil {
		return nil, nil, err
	}
	disconnect := func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Warn("disconnecting from MongoDB", "error", err)
		}
	}
	return client, disconnect, nil
}

func rawService(client *mongo.Client, cfg *config.Config, logger log.Logger) (*mongodb.Service[document.Document], error) {
	return mongodb.NewService[document.Document](client, cfg.MongoDatabase, cfg.RawCollection, logger)
}

func chunkService(client *mongo.Client, cfg *config.Config, logger log.Logger) (*mongodb.Service[rag.Chunk], error) {
	return mongodb.NewService[rag.Chunk](client, cfg.MongoDatabase, cfg.RAGCollection, logger)
}

// buildAgent wires the full online stack: memory store, hybrid retriever,
// document fetcher, tool registration and the agent loop. Used by both
// ask and bot so the two entry points cannot drift apart.
func buildAgent(ctx context.Context, cfg *config.Config, client *mongo.Client, provider *genai.Provider, logger log.Logger) (*agent.Agent, error) {
	raw, err := rawService(client, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating raw document store: %w", err)
	}
	chunks, err := chunkService(client, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating chunk store: %w", err)
	}
	memories, err := mongodb.NewService[memory.Memory](client, cfg.MongoDatabase, cfg.MemoryCollection, logger)
	if err != nil {
		return nil, fmt.Errorf("creating memory record store: %w", err)
	}

	memIndex, err := mongodb.NewIndex(mongodb.IndexConfig{
		Collection:      memories.Collection(),
		VectorIndexName: memoryVectorIndexName,
		FilterKeys:      []string{memory.UserIDField},
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating memory index manager: %w", err)
	}
	store, err := memory.NewStore(memory.StoreConfig{
		Records:       memories,
		Index:         memIndex,
		Embedder:      provider.Embedder(),
		EmbeddingDims: cfg.EmbeddingDims,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating memory store: %w", err)
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensuring memory indexes: %w", err)
	}

	searcher, err := rag.NewMongoSearcher(chunks.Collection(), cfg.VectorIndexName, cfg.FulltextIndexName)
	if err != nil {
		return nil, fmt.Errorf("creating searcher: %w", err)
	}
	retriever, err := rag.NewHybridRetriever(rag.RetrieverConfig{
		Searcher:        searcher,
		Embedder:        provider.Embedder(),
		TopK:            cfg.TopK,
		VectorPenalty:   cfg.VectorPenalty,
		FulltextPenalty: cfg.FulltextPenalty,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating retriever: %w", err)
	}
	fetcher, err := rag.NewFetcher(raw, chunks, logger)
	if err != nil {
		return nil, fmt.Errorf("creating fetcher: %w", err)
	}

	toolset, err := agent.NewToolset(store, retriever, fetcher, logger)
	if err != nil {
		return nil, fmt.Errorf("creating toolset: %w", err)
	}
	tools, err := agent.Register(provider.Genkit(), toolset)
	if err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	ag, err := agent.New(agent.Config{
		Genkit:    provider.Genkit(),
		Tools:     tools,
		ModelName: "openai/" + cfg.AgentModel,
		MaxTurns:  cfg.MaxTurns,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}
	return ag, nil
}
