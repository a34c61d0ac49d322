package summary

import (
	"context"
	"errors"

	"github.com/docsupport/docsupport/internal/document"
	"github.com/docsupport/docsupport/internal/log"
)

// DefaultMinDocumentLength is the content length below which documents are
// not worth summarizing.
const DefaultMinDocumentLength = 50

// Filter reports whether a document should continue through the workflow.
type Filter func(document.Document) bool

// Generator runs the end-to-end summarization workflow: pre-generation
// filtering, batch summarization, post-generation validation.
type Generator struct {
	summarizer  *Summarizer
	preFilters  []Filter
	postFilters []Filter
	logger      log.Logger
}

// NewGenerator creates a Generator around a Summarizer.
// minDocLength <= 0 falls back to DefaultMinDocumentLength.
func NewGenerator(s *Summarizer, minDocLength int, logger log.Logger) (*Generator, error) {
	if s == nil {
		return nil, errors.New("summarizer is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if minDocLength <= 0 {
		minDocLength = DefaultMinDocumentLength
	}

	return &Generator{
		summarizer: s,
		preFilters: []Filter{
			func(d document.Document) bool { return len(d.Content) > minDocLength },
		},
		postFilters: []Filter{
			func(d document.Document) bool { return d.Summary != nil },
		},
		logger: logger,
	}, nil
}

// Generate summarizes documents and returns only those carrying a valid
// summary. Documents rejected by the pre-filter never reach the model.
func (g *Generator) Generate(ctx context.Context, docs []document.Document) []document.Document {
	if len(docs) < 10 {
		g.logger.Warn("less than 10 documents to summarize; results may be unrepresentative",
			"count", len(docs))
	}

	g.logger.Info("documents before pregeneration filtering", "count", len(docs))
	filtered := applyFilters(g.preFilters, docs)
	g.logger.Info("documents after pregeneration filtering", "count", len(filtered))

	summarized := g.summarizer.Run(ctx, filtered)
	g.logger.Info("documents before postgeneration filtering", "count", len(summarized))

	valid := applyFilters(g.postFilters, summarized)
	g.logger.Info("documents after postgeneration filtering", "count", len(valid))
	return valid
}

// applyFilters keeps documents passing every filter.
func applyFilters(filters []Filter, docs []document.Document) []document.Document {
	for _, keep := range filters {
		var next []document.Document
		for _, d := range docs {
			if keep(d) {
				next = append(next, d)
			}
		}
		docs = next
	}
	return docs
}
