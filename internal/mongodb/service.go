// Package mongodb provides a generic document service and search index
// management on top of the official MongoDB driver.
//
// Service is storage plumbing shared by the document store, the chunk store
// and the memory store: each instantiates it with its own record type. The
// "_id" remap convention matches the rest of the system: records are
// inserted without "_id" (Mongo assigns one) and reads surface it as the
// "id" field.
package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/docsupport/docsupport/internal/log"
)

// ErrNoDocuments indicates an ingest call received nothing to insert.
var ErrNoDocuments = errors.New("no documents to ingest")

// Connect opens a client and verifies the connection with a ping.
func Connect(ctx context.Context, uri string, logger log.Logger) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetAppName("docsupport"))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}
	logger.Info("connected to MongoDB")
	return client, nil
}

// Service wraps one collection with typed operations.
type Service[T any] struct {
	collection *mongo.Collection
	logger     log.Logger
}

// NewService creates a Service over database/collection.
func NewService[T any](client *mongo.Client, database, collection string, logger log.Logger) (*Service[T], error) {
	if client == nil {
		return nil, errors.New("mongo client is required")
	}
	if database == "" || collection == "" {
		return nil, errors.New("database and collection names are required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service[T]{
		collection: client.Database(database).Collection(collection),
		logger:     logger,
	}, nil
}

// Collection exposes the underlying collection for aggregation pipelines
// and index management.
func (s *Service[T]) Collection() *mongo.Collection {
	return s.collection
}

// Clear deletes every record in the collection and returns the count.
func (s *Service[T]) Clear(ctx context.Context) (int64, error) {
	result, err := s.collection.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("clearing collection %s: %w", s.collection.Name(), err)
	}
	s.logger.Debug("cleared collection",
		"collection", s.collection.Name(), "deleted", result.DeletedCount)
	return result.DeletedCount, nil
}

// Ingest inserts all records. An empty batch is an error: silently
// indexing nothing hides upstream pipeline failures.
func (s *Service[T]) Ingest(ctx context.Context, docs []T) error {
	if len(docs) == 0 {
		return ErrNoDocuments
	}

	records := make([]any, len(docs))
	for i, d := range docs {
		records[i] = d
	}
	if _, err := s.collection.InsertMany(ctx, records); err != nil {
		return fmt.Errorf("inserting into %s: %w", s.collection.Name(), err)
	}
	s.logger.Debug("ingested documents",
		"collection", s.collection.Name(), "count", len(docs))
	return nil
}

// Fetch returns records matching filter, up to limit (0 means no limit).
// Mongo's "_id" is remapped onto the record's "id" field before decoding.
func (s *Service[T]) Fetch(ctx context.Context, filter bson.M, limit int64) ([]T, error) {
	if filter == nil {
		filter = bson.M{}
	}
	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.collection.Name(), err)
	}
	defer cursor.Close(ctx)

	var out []T
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decoding record: %w", err)
		}
		doc, err := DecodeRecord[T](raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", s.collection.Name(), err)
	}
	s.logger.Debug("fetched documents",
		"collection", s.collection.Name(), "count", len(out))
	return out, nil
}

// Count returns the number of records in the collection.
func (s *Service[T]) Count(ctx context.Context) (int64, error) {
	n, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", s.collection.Name(), err)
	}
	return n, nil
}

// DecodeRecord remaps "_id" to "id" and decodes the raw record into T.
// Shared by Fetch and by aggregation pipelines that read the same records.
func DecodeRecord[T any](raw bson.M) (T, error) {
	var doc T
	if oid, ok := raw["_id"].(primitive.ObjectID); ok {
		raw["id"] = oid.Hex()
	}
	delete(raw, "_id")

	data, err := bson.Marshal(raw)
	if err != nil {
		return doc, fmt.Errorf("re-encoding record: %w", err)
	}
	if err := bson.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("decoding record: %w", err)
	}
	return doc, nil
}
