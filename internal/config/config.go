// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.docsupport/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: OpenAI model selection for the agent, summarization and embeddings
//   - Storage: MongoDB connection, database and collection names
//   - Crawl: sitemap prefix, concurrency and cooldown for the crawler
//   - RAG: chunk size, retrieval depth and hybrid-search penalties
//   - Slack: bot and app tokens for Socket Mode
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates a model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidMongoURI indicates the MongoDB connection string is invalid.
	ErrInvalidMongoURI = errors.New("invalid MongoDB URI")

	// ErrInvalidMongoDatabase indicates the MongoDB database name is invalid.
	ErrInvalidMongoDatabase = errors.New("invalid MongoDB database name")

	// ErrInvalidChunkSize indicates the chunk size is out of range.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrInvalidTopK indicates the retrieval depth is out of range.
	ErrInvalidTopK = errors.New("invalid top k")

	// ErrInvalidConcurrency indicates a worker or request limit is out of range.
	ErrInvalidConcurrency = errors.New("invalid concurrency limit")

	// ErrInvalidMaxTurns indicates the agent turn limit is out of range.
	ErrInvalidMaxTurns = errors.New("invalid max turns")

	// ErrMissingSlackToken indicates a Slack token required for bot mode is missing.
	ErrMissingSlackToken = errors.New("missing Slack token")
)

const (
	// DefaultEmbeddingModel is the default OpenAI embedding model.
	DefaultEmbeddingModel = "text-embedding-3-small"

	// DefaultEmbeddingDims matches DefaultEmbeddingModel's output width.
	DefaultEmbeddingDims = 1536

	// DefaultChunkSize is the default chunk size in tokens.
	DefaultChunkSize = 500

	// MaxAllowedChunkSize bounds chunk size well under embedding model limits.
	MaxAllowedChunkSize = 8000

	// DefaultMaxCharacters is the target maximum length of generated
	// summaries, in characters.
	DefaultMaxCharacters = 1000
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (API keys, tokens), update MarshalJSON.
type Config struct {
	// AI model configuration
	OpenAIAPIKey   string `mapstructure:"openai_api_key" json:"openai_api_key"` // SENSITIVE: masked in MarshalJSON
	AgentModel     string `mapstructure:"agent_model" json:"agent_model"`
	SummaryModel   string `mapstructure:"summary_model" json:"summary_model"`
	EmbeddingModel string `mapstructure:"embedding_model" json:"embedding_model"`
	MaxCharacters  int    `mapstructure:"max_characters" json:"max_characters"`

	// Storage configuration
	MongoURI          string `mapstructure:"mongo_uri" json:"mongo_uri"` // SENSITIVE: masked in MarshalJSON
	MongoDatabase     string `mapstructure:"mongo_database" json:"mongo_database"`
	RawCollection     string `mapstructure:"raw_collection" json:"raw_collection"`
	RAGCollection     string `mapstructure:"rag_collection" json:"rag_collection"`
	MemoryCollection  string `mapstructure:"memory_collection" json:"memory_collection"`
	VectorIndexName   string `mapstructure:"vector_index_name" json:"vector_index_name"`
	FulltextIndexName string `mapstructure:"fulltext_index_name" json:"fulltext_index_name"`
	EmbeddingDims     int    `mapstructure:"embedding_dims" json:"embedding_dims"`

	// Crawl configuration
	CrawlURLPrefix        string        `mapstructure:"crawl_url_prefix" json:"crawl_url_prefix"`
	MaxConcurrentRequests int           `mapstructure:"max_concurrent_requests" json:"max_concurrent_requests"`
	CrawlCooldown         time.Duration `mapstructure:"crawl_cooldown" json:"crawl_cooldown"`
	DataDir               string        `mapstructure:"data_dir" json:"data_dir"`

	// Summarization configuration
	SummaryWorkers  int           `mapstructure:"summary_workers" json:"summary_workers"`
	SummaryCooldown time.Duration `mapstructure:"summary_cooldown" json:"summary_cooldown"`
	RetryCooldown   time.Duration `mapstructure:"retry_cooldown" json:"retry_cooldown"`
	MinDocLength    int           `mapstructure:"min_doc_length" json:"min_doc_length"`

	// RAG configuration
	ChunkSize       int `mapstructure:"chunk_size" json:"chunk_size"`
	EmbedWorkers    int `mapstructure:"embed_workers" json:"embed_workers"`
	LoadBatchSize   int `mapstructure:"load_batch_size" json:"load_batch_size"`
	TopK            int `mapstructure:"top_k" json:"top_k"`
	VectorPenalty   int `mapstructure:"vector_penalty" json:"vector_penalty"`
	FulltextPenalty int `mapstructure:"fulltext_penalty" json:"fulltext_penalty"`

	// Agent configuration
	MaxTurns int `mapstructure:"max_turns" json:"max_turns"`

	// Slack configuration (bot mode only)
	SlackBotToken string `mapstructure:"slack_bot_token" json:"slack_bot_token"` // SENSITIVE: masked in MarshalJSON
	SlackAppToken string `mapstructure:"slack_app_token" json:"slack_app_token"` // SENSITIVE: masked in MarshalJSON
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".docsupport")

	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("agent_model", "gpt-4o")
	viper.SetDefault("summary_model", "gpt-4o-mini")
	viper.SetDefault("embedding_model", DefaultEmbeddingModel)
	viper.SetDefault("max_characters", DefaultMaxCharacters)

	// Storage defaults
	viper.SetDefault("mongo_uri", "mongodb://localhost:27017")
	viper.SetDefault("mongo_database", "docsupport")
	viper.SetDefault("raw_collection", "raw")
	viper.SetDefault("rag_collection", "rag")
	viper.SetDefault("memory_collection", "memory")
	viper.SetDefault("vector_index_name", "vector_index")
	viper.SetDefault("fulltext_index_name", "chunk_text_search")
	viper.SetDefault("embedding_dims", DefaultEmbeddingDims)

	// Crawl defaults
	viper.SetDefault("crawl_url_prefix", "https://docs.zenml.io")
	viper.SetDefault("max_concurrent_requests", 10)
	viper.SetDefault("crawl_cooldown", 500*time.Millisecond)
	viper.SetDefault("data_dir", "data")

	// Summarization defaults
	viper.SetDefault("summary_workers", 4)
	viper.SetDefault("summary_cooldown", 7*time.Second)
	viper.SetDefault("retry_cooldown", 20*time.Second)
	viper.SetDefault("min_doc_length", 50)

	// RAG defaults
	viper.SetDefault("chunk_size", DefaultChunkSize)
	viper.SetDefault("embed_workers", 4)
	viper.SetDefault("load_batch_size", 4)
	viper.SetDefault("top_k", 3)
	viper.SetDefault("vector_penalty", 50)
	viper.SetDefault("fulltext_penalty", 50)

	// Agent defaults
	viper.SetDefault("max_turns", 5)
}

// bindEnvVariables binds sensitive environment variables explicitly.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail)
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("openai_api_key", "OPENAI_API_KEY")
	mustBind("mongo_uri", "MONGODB_URI")
	mustBind("mongo_database", "MONGODB_DATABASE")
	mustBind("slack_bot_token", "SLACK_BOT_TOKEN")
	mustBind("slack_app_token", "SLACK_APP_TOKEN")
	mustBind("crawl_url_prefix", "DOCSUPPORT_CRAWL_URL_PREFIX")
	mustBind("data_dir", "DOCSUPPORT_DATA_DIR")
	mustBind("agent_model", "DOCSUPPORT_AGENT_MODEL")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid substring matches against the real secret.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 characters or fewer are fully masked; longer secrets keep the
// first and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - OpenAIAPIKey
//   - MongoURI (may embed credentials)
//   - SlackBotToken, SlackAppToken
//
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.OpenAIAPIKey = maskSecret(a.OpenAIAPIKey)
	a.MongoURI = maskSecret(a.MongoURI)
	a.SlackBotToken = maskSecret(a.SlackBotToken)
	a.SlackAppToken = maskSecret(a.SlackAppToken)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
