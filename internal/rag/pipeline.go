package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/sync/errgroup"

	"github.com/docsupport/docsupport/internal/document"
	"github.com/docsupport/docsupport/internal/log"
	"github.com/docsupport/docsupport/internal/mongodb"
	"github.com/docsupport/docsupport/internal/splitter"
)

// ErrNoDocuments indicates a reload was attempted with no input. The guard
// runs before the destructive clear so a broken upstream stage can never
// wipe a healthy index.
var ErrNoDocuments = errors.New("no documents to index")

// PipelineConfig configures the chunk-embed-load pipeline.
type PipelineConfig struct {
	// Store persists chunks. Required.
	Store *mongodb.Service[Chunk]

	// Index builds search indexes after loading. Required.
	Index *mongodb.Index

	// Splitter chunks document content. Required.
	Splitter *splitter.Recursive

	// Embedder produces chunk embeddings. Required.
	Embedder ai.Embedder

	// EmbeddingDims is the index dimensionality. Required, >= 1.
	EmbeddingDims int

	// BatchSize groups documents per worker unit. Default 4.
	BatchSize int

	// MaxWorkers bounds concurrent batches. Default 2.
	MaxWorkers int

	// Hybrid also builds the full-text index for hybrid retrieval.
	Hybrid bool

	// Logger is required.
	Logger log.Logger
}

// Pipeline chunks, embeds and loads documents into the chunk collection,
// then (re)builds the search indexes. A run replaces the whole collection.
type Pipeline struct {
	store         *mongodb.Service[Chunk]
	index         *mongodb.Index
	splitter      *splitter.Recursive
	embedder      ai.Embedder
	embeddingDims int
	batchSize     int
	maxWorkers    int
	hybrid        bool
	logger        log.Logger
}

// NewPipeline creates a Pipeline, validating the configuration.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Store == nil {
		return nil, errors.New("chunk store is required")
	}
	if cfg.Index == nil {
		return nil, errors.New("index manager is required")
	}
	if cfg.Splitter == nil {
		return nil, errors.New("splitter is required")
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

	p := &Pipeline{
		store:         cfg.Store,
		index:         cfg.Index,
		splitter:      cfg.Splitter,
		embedder:      cfg.Embedder,
		embeddingDims: cfg.EmbeddingDims,
		batchSize:     cfg.BatchSize,
		maxWorkers:    cfg.MaxWorkers,
		hybrid:        cfg.Hybrid,
		logger:        cfg.Logger,
	}
	if p.batchSize < 1 {
		p.batchSize = 4
	}
	if p.maxWorkers < 1 {
		p.maxWorkers = 2
	}
	return p, nil
}

// Run replaces the chunk collection with chunks of docs and rebuilds the
// search indexes. Batches are isolated: one failing batch is logged and
// dropped without aborting the rest of the load.
func (p *Pipeline) Run(ctx context.Context, docs []document.Document) error {
	if len(docs) == 0 {
		return ErrNoDocuments
	}

	deleted, err := p.store.Clear(ctx)
	if err != nil {
		return fmt.Errorf("clearing chunk collection: %w", err)
	}
	p.logger.Info("cleared chunk collection", "deleted", deleted, "documents", len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxWorkers)
	for _, batch := range batches(docs, p.batchSize) {
		g.Go(func() error {
			if err := p.processBatch(gctx, batch); err != nil {
				// Batch isolation: log and move on.
				p.logger.Warn("error processing batch",
					"documents", len(batch), "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("processing batches: %w", err)
	}

	loaded, err := p.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting chunks: %w", err)
	}
	p.logger.Info("loaded chunks", "count", loaded)

	if err := p.index.Create(ctx, p.embeddingDims, p.hybrid); err != nil {
		return fmt.Errorf("building search indexes: %w", err)
	}
	return nil
}

// processBatch splits and embeds one batch of documents and ingests the
// resulting chunks in a single insert.
func (p *Pipeline) processBatch(ctx context.Context, batch []document.Document) error {
	var chunks []Chunk
	for _, doc := range batch {
		for _, text := range p.splitter.Split(doc.Content) {
			vec, err := p.embed(ctx, text)
			if err != nil {
				return fmt.Errorf("embedding chunk of %s: %w", doc.ID, err)
			}
			chunks = append(chunks, NewChunk(doc, text, vec))
		}
	}
	if len(chunks) == 0 {
		return fmt.Errorf("batch of %d documents produced no chunks", len(batch))
	}

	if err := p.store.Ingest(ctx, chunks); err != nil {
		return err
	}
	p.logger.Debug("processed batch", "documents", len(batch), "chunks", len(chunks))
	return nil
}

func (p *Pipeline) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.embedder.Embed(ctx, &ai.EmbedRequest{
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

// batches splits docs into consecutive groups of size n.
func batches(docs []document.Document, n int) [][]document.Document {
	var out [][]document.Document
	for i := 0; i < len(docs); i += n {
		end := min(i+n, len(docs))
		out = append(out, docs[i:end])
	}
	return out
}
