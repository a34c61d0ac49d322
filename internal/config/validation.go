package config

import (
	"fmt"
	"strings"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// Model configuration
	if c.AgentModel == "" {
		return fmt.Errorf("%w: agent_model cannot be empty", ErrInvalidModelName)
	}
	if c.SummaryModel == "" {
		return fmt.Errorf("%w: summary_model cannot be empty", ErrInvalidModelName)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: embedding_model cannot be empty", ErrInvalidModelName)
	}

	// Storage configuration
	if !strings.HasPrefix(c.MongoURI, "mongodb://") && !strings.HasPrefix(c.MongoURI, "mongodb+srv://") {
		return fmt.Errorf("%w: must start with mongodb:// or mongodb+srv://", ErrInvalidMongoURI)
	}
	if c.MongoDatabase == "" {
		return fmt.Errorf("%w: mongo_database cannot be empty", ErrInvalidMongoDatabase)
	}

	// Crawl and summarization limits
	if c.MaxConcurrentRequests < 1 || c.MaxConcurrentRequests > 64 {
		return fmt.Errorf("%w: max_concurrent_requests must be between 1 and 64, got %d",
			ErrInvalidConcurrency, c.MaxConcurrentRequests)
	}
	if c.SummaryWorkers < 1 || c.SummaryWorkers > 64 {
		return fmt.Errorf("%w: summary_workers must be between 1 and 64, got %d",
			ErrInvalidConcurrency, c.SummaryWorkers)
	}
	if c.EmbedWorkers < 1 || c.EmbedWorkers > 64 {
		return fmt.Errorf("%w: embed_workers must be between 1 and 64, got %d",
			ErrInvalidConcurrency, c.EmbedWorkers)
	}
	if c.LoadBatchSize < 1 {
		return fmt.Errorf("%w: load_batch_size must be positive, got %d",
			ErrInvalidConcurrency, c.LoadBatchSize)
	}

	// RAG configuration
	if c.ChunkSize < 1 || c.ChunkSize > MaxAllowedChunkSize {
		return fmt.Errorf("%w: must be between 1 and %d, got %d",
			ErrInvalidChunkSize, MaxAllowedChunkSize, c.ChunkSize)
	}
	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: must be between 1 and 50, got %d", ErrInvalidTopK, c.TopK)
	}

	// Agent configuration
	if c.MaxTurns < 1 || c.MaxTurns > 20 {
		return fmt.Errorf("%w: must be between 1 and 20, got %d", ErrInvalidMaxTurns, c.MaxTurns)
	}

	return nil
}

// ValidateAI checks that credentials required for model calls are present.
// Kept separate from Validate so offline commands (crawl) work without a key.
func (c *Config) ValidateAI() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", ErrMissingAPIKey)
	}
	return nil
}

// ValidateSlack checks that tokens required for Socket Mode are present.
func (c *Config) ValidateSlack() error {
	if c.SlackBotToken == "" {
		return fmt.Errorf("%w: SLACK_BOT_TOKEN environment variable is required", ErrMissingSlackToken)
	}
	if !strings.HasPrefix(c.SlackAppToken, "xapp-") {
		return fmt.Errorf("%w: SLACK_APP_TOKEN must start with xapp-", ErrMissingSlackToken)
	}
	return nil
}
