package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/docsupport/docsupport/internal/document"
	"github.com/docsupport/docsupport/internal/log"
	"github.com/docsupport/docsupport/internal/mongodb"
)

// ErrDocumentNotFound indicates no document matches the requested URL in
// either collection.
var ErrDocumentNotFound = errors.New("document not found")

// Fetcher looks up complete documents by URL, falling back from the raw
// document collection to the chunk collection.
type Fetcher struct {
	raw    *mongodb.Service[document.Document]
	chunks *mongodb.Service[Chunk]
	logger log.Logger
}

// NewFetcher creates a Fetcher over both collections.
func NewFetcher(raw *mongodb.Service[document.Document], chunks *mongodb.Service[Chunk], logger log.Logger) (*Fetcher, error) {
	if raw == nil || chunks == nil {
		return nil, errors.New("raw and chunk stores are required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Fetcher{raw: raw, chunks: chunks, logger: logger}, nil
}

// FetchByURL returns the document at url rendered as an XML fragment.
// The raw collection wins; when the URL only survives as chunks, the first
// chunk's text substitutes for the full content.
func (f *Fetcher) FetchByURL(ctx context.Context, url string) (string, error) {
	docs, err := f.raw.Fetch(ctx, bson.M{"metadata.url": url}, 1)
	if err != nil {
		return "", fmt.Errorf("querying raw collection: %w", err)
	}
	if len(docs) > 0 {
		f.logger.Debug("fetched full document", "url", url, "source", "raw")
		return renderDocument(docs[0].Metadata.URL, docs[0].Content), nil
	}

	chunks, err := f.chunks.Fetch(ctx, bson.M{"url": url}, 1)
	if err != nil {
		return "", fmt.Errorf("querying chunk collection: %w", err)
	}
	if len(chunks) > 0 {
		f.logger.Debug("fetched full document", "url", url, "source", "rag")
		return renderDocument(chunks[0].URL, chunks[0].Text), nil
	}

	return "", fmt.Errorf("%w: %s", ErrDocumentNotFound, url)
}

// renderDocument wraps a document in the XML fragment the agent expects.
func renderDocument(url, content string) string {
	return fmt.Sprintf("<document>\n<url>%s</url>\n<content>%s</content>\n</document>",
		url, strings.TrimSpace(content))
}
