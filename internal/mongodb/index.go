package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/docsupport/docsupport/internal/log"
)

// Default field names for indexed chunk records.
const (
	TextField      = "chunk"
	EmbeddingField = "embedding"
)

// IndexConfig names the search indexes for one collection.
type IndexConfig struct {
	Collection        *mongo.Collection
	VectorIndexName   string
	FulltextIndexName string

	// Fields indexed; TextField/EmbeddingField when empty.
	TextKey      string
	EmbeddingKey string

	// FilterKeys are indexed as vector search filter fields, enabling
	// pre-filtered $vectorSearch (e.g. per-user memory lookups).
	FilterKeys []string

	Logger log.Logger
}

// Index creates Atlas search indexes used for hybrid retrieval.
type Index struct {
	collection        *mongo.Collection
	vectorIndexName   string
	fulltextIndexName string
	textKey           string
	embeddingKey      string
	filterKeys        []string
	logger            log.Logger
}

// NewIndex creates an Index manager for one collection.
func NewIndex(cfg IndexConfig) (*Index, error) {
	if cfg.Collection == nil {
		return nil, errors.New("collection is required")
	}
	if cfg.VectorIndexName == "" {
		return nil, errors.New("vector index name is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	idx := &Index{
		collection:        cfg.Collection,
		vectorIndexName:   cfg.VectorIndexName,
		fulltextIndexName: cfg.FulltextIndexName,
		textKey:           cfg.TextKey,
		embeddingKey:      cfg.EmbeddingKey,
		filterKeys:        cfg.FilterKeys,
		logger:            cfg.Logger,
	}
	if idx.textKey == "" {
		idx.textKey = TextField
	}
	if idx.embeddingKey == "" {
		idx.embeddingKey = EmbeddingField
	}
	return idx, nil
}

// VectorIndexName returns the name of the vector search index, as
// referenced by $vectorSearch pipelines.
func (i *Index) VectorIndexName() string {
	return i.vectorIndexName
}

// Create builds the vector search index and, when hybrid is set, the
// full-text search index too. Recreating an existing index is not an
// error: reloads run Create unconditionally after every ingest.
func (i *Index) Create(ctx context.Context, embeddingDims int, hybrid bool) error {
	if embeddingDims < 1 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", embeddingDims)
	}

	fields := bson.A{
		bson.M{
			"type":          "vector",
			"path":          i.embeddingKey,
			"numDimensions": embeddingDims,
			"similarity":    "dotProduct",
		},
	}
	for _, key := range i.filterKeys {
		fields = append(fields, bson.M{"type": "filter", "path": key})
	}
	vectorDef := bson.M{"fields": fields}
	if err := i.create(ctx, i.vectorIndexName, "vectorSearch", vectorDef); err != nil {
		return err
	}

	if !hybrid {
		return nil
	}
	if i.fulltextIndexName == "" {
		return errors.New("fulltext index name is required for hybrid indexing")
	}

	fulltextDef := bson.M{
		"mappings": bson.M{
			"dynamic": false,
			"fields": bson.M{
				i.textKey: bson.A{bson.M{"type": "string"}},
			},
		},
	}
	return i.create(ctx, i.fulltextIndexName, "search", fulltextDef)
}

func (i *Index) create(ctx context.Context, name, indexType string, definition bson.M) error {
	model := mongo.SearchIndexModel{
		Definition: definition,
		Options:    options.SearchIndexes().SetName(name).SetType(indexType),
	}
	if _, err := i.collection.SearchIndexes().CreateOne(ctx, model); err != nil {
		if isDuplicateIndex(err) {
			i.logger.Debug("search index already exists", "index", name)
			return nil
		}
		return fmt.Errorf("creating %s index %s: %w", indexType, name, err)
	}
	i.logger.Info("created search index", "index", name, "type", indexType)
	return nil
}

// isDuplicateIndex matches the server errors returned when a search index
// with the same name exists. The driver exposes no typed error for this.
func isDuplicateIndex(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Duplicate Index") ||
		strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "IndexAlreadyExists")
}
