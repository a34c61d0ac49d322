// Package rag implements the retrieval side of the system: chunking and
// embedding crawled documents into MongoDB, hybrid vector+full-text
// retrieval over the chunks, and whole-document lookup by URL.
package rag

import "github.com/docsupport/docsupport/internal/document"

// Chunk is one indexed piece of a document. The field layout matches the
// search indexes: Text under "chunk" feeds the full-text index, Embedding
// feeds the vector index, and the flattened document metadata rides along
// for citation.
type Chunk struct {
	// ID carries the source document ID on insert. Records read back
	// through the generic service carry the storage ID instead.
	ID         string         `bson:"id,omitempty" json:"id,omitempty"`
	Text       string         `bson:"chunk" json:"chunk"`
	Embedding  []float32      `bson:"embedding,omitempty" json:"embedding,omitempty"`
	URL        string         `bson:"url" json:"url"`
	Title      string         `bson:"title" json:"title"`
	Properties map[string]any `bson:"properties,omitempty" json:"properties,omitempty"`
}

// NewChunk builds a chunk from a split piece of doc.
func NewChunk(doc document.Document, text string, embedding []float32) Chunk {
	return Chunk{
		ID:         doc.Metadata.ID,
		Text:       text,
		Embedding:  embedding,
		URL:        doc.Metadata.URL,
		Title:      doc.Metadata.Title,
		Properties: doc.Metadata.Properties,
	}
}
