package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docsupport/docsupport/internal/config"
	"github.com/docsupport/docsupport/internal/genai"
	"github.com/docsupport/docsupport/internal/mongodb"
	"github.com/docsupport/docsupport/internal/rag"
	"github.com/docsupport/docsupport/internal/splitter"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Chunk, embed and load documents into the search collection",
	Long: `index reads the raw collection etl loaded, splits every document
into token-sized chunks, embeds each chunk and replaces the RAG
collection, then (re)builds the vector and full-text search indexes.`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateAI(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	provider, err := genai.Init(ctx, genai.Config{
		APIKey:         cfg.OpenAIAPIKey,
		EmbeddingModel: cfg.EmbeddingModel,
	})
	if err != nil {
		return fmt.Errorf("initializing model provider: %w", err)
	}

	client, disconnect, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer disconnect()

	raw, err := rawService(client, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating raw document store: %w", err)
	}
	docs, err := raw.Fetch(ctx, nil, 0)
	if err != nil {
		return fmt.Errorf("fetching documents: %w", err)
	}
	logger.Info("fetched documents for indexing",
		"count", len(docs), "collection", cfg.RawCollection)

	chunks, err := chunkService(client, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating chunk store: %w", err)
	}
	index, err := mongodb.NewIndex(mongodb.IndexConfig{
		Collection:        chunks.Collection(),
		VectorIndexName:   cfg.VectorIndexName,
		FulltextIndexName: cfg.FulltextIndexName,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("creating index manager: %w", err)
	}

	tokenLength, err := splitter.TokenLength()
	if err != nil {
		return fmt.Errorf("loading tokenizer: %w", err)
	}
	split, err := splitter.NewRecursive(cfg.ChunkSize, splitter.WithLengthFunc(tokenLength))
	if err != nil {
		return fmt.Errorf("creating splitter: %w", err)
	}

	pipeline, err := rag.NewPipeline(rag.PipelineConfig{
		Store:         chunks,
		Index:         index,
		Splitter:      split,
		Embedder:      provider.Embedder(),
		EmbeddingDims: cfg.EmbeddingDims,
		BatchSize:     cfg.LoadBatchSize,
		MaxWorkers:    cfg.EmbedWorkers,
		Hybrid:        true,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	if err := pipeline.Run(ctx, docs); err != nil {
		return fmt.Errorf("indexing: %w", err)
	}

	logger.Info("index finished", "documents", len(docs), "collection", cfg.RAGCollection)
	return nil
}
