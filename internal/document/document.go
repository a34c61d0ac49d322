// Package document defines the crawled document model and its JSON persistence.
//
// A Document is the unit flowing through the whole pipeline: the crawler
// produces them, the summarizer annotates them, and the RAG pipeline chunks
// and indexes them. Identity is the random hex ID only; two documents with
// the same ID are equal regardless of content.
package document

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Metadata carries the provenance of a crawled page.
type Metadata struct {
	ID         string         `json:"id" bson:"id"`
	URL        string         `json:"url" bson:"url"`
	Title      string         `json:"title" bson:"title"`
	Properties map[string]any `json:"properties" bson:"properties"`
}

// Document is a crawled page with optional enrichment fields.
// Summary and ContentQualityScore are pointers so an unset field persists
// as JSON null, distinguishing "not summarized yet" from an empty summary.
type Document struct {
	ID                  string   `json:"id" bson:"id"`
	Metadata            Metadata `json:"metadata" bson:"metadata"`
	Content             string   `json:"content" bson:"content"`
	Summary             *string  `json:"summary" bson:"summary"`
	ContentQualityScore *float64 `json:"content_quality_score" bson:"content_quality_score"`
	ChildURLs           []string `json:"child_urls" bson:"child_urls"`
}

// NewID returns a 32-character lowercase hex identifier.
func NewID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return hex.EncodeToString(b)
}

// New creates a document with a fresh ID shared between the document and
// its metadata.
func New(url, title, content string, childURLs []string, properties map[string]any) Document {
	id := NewID()
	return Document{
		ID: id,
		Metadata: Metadata{
			ID:         id,
			URL:        url,
			Title:      title,
			Properties: properties,
		},
		Content:   content,
		ChildURLs: childURLs,
	}
}

// AddSummary sets the summary and returns the document for chaining.
func (d *Document) AddSummary(summary string) *Document {
	d.Summary = &summary
	return d
}

// AddQualityScore sets the content quality score and returns the document.
func (d *Document) AddQualityScore(score float64) *Document {
	d.ContentQualityScore = &score
	return d
}

// Equal reports identity equality. Content is deliberately ignored: a
// re-crawled page with the same ID is the same document.
func (d Document) Equal(other Document) bool {
	return d.ID == other.ID
}

// MarshalPretty renders the document as indented JSON without HTML escaping,
// so markdown content with <, > and & survives a round trip readably.
func (d Document) MarshalPretty() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encoding document %s: %w", d.ID, err)
	}
	return buf.Bytes(), nil
}

// Write persists the document as <id>.json under dir, creating the
// directory if needed. When text is true a plain <id>.txt with the raw
// content is written alongside for manual inspection.
func (d Document) Write(dir string, text bool) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	data, err := d.MarshalPretty()
	if err != nil {
		return err
	}
	jsonPath := filepath.Join(dir, d.ID+".json")
	if err := os.WriteFile(jsonPath, data, 0o640); err != nil {
		return fmt.Errorf("writing %s: %w", jsonPath, err)
	}

	if text {
		txtPath := filepath.Join(dir, d.ID+".txt")
		if err := os.WriteFile(txtPath, []byte(d.Content), 0o640); err != nil {
			return fmt.Errorf("writing %s: %w", txtPath, err)
		}
	}
	return nil
}

// FromFile loads a single document from a JSON file.
func FromFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("reading %s: %w", path, err)
	}
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return Document{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return d, nil
}

// ReadDir loads every *.json file in dir. Non-JSON files are skipped.
func ReadDir(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var docs []Document
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		d, err := FromFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}
