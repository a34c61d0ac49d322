// Package memory persists long-term conversational memory per user.
//
// Memories live in their own MongoDB collection with an embedding per
// entry. Retrieval is a user-scoped vector search so one user's
// conversations never surface in another user's context.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/docsupport/docsupport/internal/log"
	"github.com/docsupport/docsupport/internal/mongodb"
)

const (
	// DefaultUserID scopes memories when the caller has no user identity.
	DefaultUserID = "default_user"

	// DefaultLimit is the number of memories returned by a search.
	DefaultLimit = 3

	// UserIDField is the record field used for user-scoped filtering.
	// It must be indexed as a vector search filter field.
	UserIDField = "user_id"
)

// NoMemories is returned by Format when a search finds nothing. Agents
// surface it verbatim so the model knows the lookup came back empty.
const NoMemories = "No previous conversations found."

// Memory is one stored conversational memory.
type Memory struct {
	ID        string    `bson:"id"`
	UserID    string    `bson:"user_id"`
	Content   string    `bson:"memory"`
	Embedding []float32 `bson:"embedding,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

// StoreConfig configures a memory Store.
type StoreConfig struct {
	// Records persists memories. Required.
	Records *mongodb.Service[Memory]

	// Index manages the memory collection's vector index. Required.
	// Its config must include UserIDField as a filter key.
	Index *mongodb.Index

	// Embedder produces memory embeddings. Required.
	Embedder ai.Embedder

	// EmbeddingDims is the index dimensionality. Required, >= 1.
	EmbeddingDims int

	// Logger is required.
	Logger log.Logger
}

// Store reads and writes user memories.
type Store struct {
	records       *mongodb.Service[Memory]
	index         *mongodb.Index
	embedder      ai.Embedder
	embeddingDims int
	logger        log.Logger
}

// NewStore creates a Store, validating the configuration.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Records == nil {
		return nil, errors.New("memory record store is required")
	}
	if cfg.Index == nil {
		return nil, errors.New("index manager is required")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if cfg.EmbeddingDims < 1 {
		return nil, fmt.Errorf("embedding dims must be >= 1, got %d", cfg.EmbeddingDims)
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Store{
		records:       cfg.Records,
		index:         cfg.Index,
		embedder:      cfg.Embedder,
		embeddingDims: cfg.EmbeddingDims,
		logger:        cfg.Logger,
	}, nil
}

// EnsureIndexes creates the memory vector index if it does not exist.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	return s.index.Create(ctx, s.embeddingDims, false)
}

// Add embeds content and stores it as a new memory for userID.
// An empty userID falls back to DefaultUserID.
func (s *Store) Add(ctx context.Context, userID, content string) (Memory, error) {
	if strings.TrimSpace(content) == "" {
		return Memory{}, errors.New("memory content is empty")
	}
	if userID == "" {
		userID = DefaultUserID
	}

	vec, err := s.embed(ctx, content)
	if err != nil {
		return Memory{}, fmt.Errorf("embedding memory: %w", err)
	}

	m := Memory{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   content,
		Embedding: vec,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.records.Ingest(ctx, []Memory{m}); err != nil {
		return Memory{}, fmt.Errorf("storing memory: %w", err)
	}
	s.logger.Debug("stored memory", "user", userID, "id", m.ID)
	return m, nil
}

// Search returns up to limit memories for userID ranked by similarity
// to query. An empty result is not an error.
func (s *Store) Search(ctx context.Context, userID, query string, limit int) ([]Memory, error) {
	if userID == "" {
		userID = DefaultUserID
	}
	if limit < 1 {
		limit = DefaultLimit
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	pipeline := []bson.M{
		{
			"$vectorSearch": bson.M{
				"index":         s.index.VectorIndexName(),
				"path":          mongodb.EmbeddingField,
				"queryVector":   vec,
				"numCandidates": limit * 10,
				"limit":         limit,
				"filter":        bson.M{UserIDField: userID},
			},
		},
	}

	cursor, err := s.records.Collection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("searching memories: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var out []Memory
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decoding memory: %w", err)
		}
		m, err := mongodb.DecodeRecord[Memory](raw)
		if err != nil {
			return nil, fmt.Errorf("decoding memory: %w", err)
		}
		out = append(out, m)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("reading memories: %w", err)
	}

	s.logger.Debug("searched memories", "user", userID, "found", len(out))
	return out, nil
}

func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, errors.New("embedder returned no embeddings")
	}
	return resp.Embeddings[0].Embedding, nil
}

// Format renders memories for prompt injection. Empty input yields the
// NoMemories sentinel.
func Format(memories []Memory) string {
	if len(memories) == 0 {
		return NoMemories
	}
	var b strings.Builder
	b.WriteString("Previous conversations:")
	for _, m := range memories {
		b.WriteString("\n- ")
		b.WriteString(m.Content)
	}
	return b.String()
}
