package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docsupport/docsupport/internal/config"
	"github.com/docsupport/docsupport/internal/document"
	"github.com/docsupport/docsupport/internal/genai"
	"github.com/docsupport/docsupport/internal/summary"
)

var etlCmd = &cobra.Command{
	Use:   "etl",
	Short: "Summarize crawled documents and load the raw collection",
	Long: `etl reads the documents crawl wrote to <data_dir>/crawled,
annotates each with a model-generated summary, writes the enriched
documents to <data_dir>/enhanced and replaces the raw MongoDB
collection with them. Documents that stay unsummarized after the retry
round are dropped.`,
	RunE: runETL,
}

func init() {
	rootCmd.AddCommand(etlCmd)
}

func runETL(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateAI(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	docs, err := document.ReadDir(crawledDir(cfg))
	if err != nil {
		return fmt.Errorf("reading crawled documents: %w", err)
	}
	logger.Info("loaded crawled documents", "count", len(docs))

	provider, err := genai.Init(ctx, genai.Config{
		APIKey:         cfg.OpenAIAPIKey,
		EmbeddingModel: cfg.EmbeddingModel,
	})
	if err != nil {
		return fmt.Errorf("initializing model provider: %w", err)
	}

	summarizer, err := summary.New(summary.Config{
		Completer:             provider,
		Model:                 cfg.SummaryModel,
		MaxCharacters:         cfg.MaxCharacters,
		MaxConcurrentRequests: cfg.SummaryWorkers,
		Cooldown:              cfg.SummaryCooldown,
		RetryCooldown:         cfg.RetryCooldown,
		Logger:                logger,
	})
	if err != nil {
		return fmt.Errorf("creating summarizer: %w", err)
	}
	generator, err := summary.NewGenerator(summarizer, cfg.MinDocLength, logger)
	if err != nil {
		return fmt.Errorf("creating generator: %w", err)
	}

	enhanced := generator.Generate(ctx, docs)

	dir := enhancedDir(cfg)
	for _, doc := range enhanced {
		if err := doc.Write(dir, false); err != nil {
			return fmt.Errorf("writing document %s: %w", doc.Metadata.URL, err)
		}
	}
	logger.Info("enhanced documents written", "count", len(enhanced), "dir", dir)

	client, disconnect, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer disconnect()

	raw, err := rawService(client, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating raw document store: %w", err)
	}
	deleted, err := raw.Clear(ctx)
	if err != nil {
		return fmt.Errorf("clearing raw collection: %w", err)
	}
	if err := raw.Ingest(ctx, enhanced); err != nil {
		return fmt.Errorf("ingesting documents: %w", err)
	}

	logger.Info("etl finished",
		"ingested", len(enhanced), "replaced", deleted, "collection", cfg.RawCollection)
	return nil
}
