// Package summary generates TL;DR summaries for crawled documents.
//
// Summarization runs in two rounds: a first pass over every document with a
// short post-call cooldown, then one retry pass over the failures with a
// longer cooldown. A document that fails both rounds simply keeps a nil
// summary; the Generator's post-filter drops it. Failures never abort a
// batch.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/docsupport/docsupport/internal/document"
	"github.com/docsupport/docsupport/internal/log"
)

// systemPrompt instructs the model on summary structure and exclusions.
const systemPrompt = `You are a helpful assistant specialized in summarizing technical documentation.

Your task is to create a clear, concise TL;DR summary in markdown format.

**Include:**
- Titles of sections and sub-sections
- Key concepts and explanations
- Essential technical details
- Main findings and insights

**Exclude:**
- Navigation elements and sidebars
- Footer content and cookie policies
- Privacy policies and HTTP errors
- Any other irrelevant metadata

**Format Requirements:**
- Return clean markdown format
- Use appropriate headers (##, ###)
- Preserve the original writing style where relevant
- Highlight the most significant insights and implications`

// userPromptTemplate carries the document content and the length cap.
const userPromptTemplate = `Please summarize the following document content:

Document:
%s

Generate a concise TL;DR summary (maximum %d characters) following the guidelines provided.`

const (
	// DefaultCooldown is the pause after each completion in the first round.
	DefaultCooldown = 7 * time.Second

	// DefaultRetryCooldown is the pause used in the retry round.
	DefaultRetryCooldown = 20 * time.Second
)

// Completer is the completion surface the summarizer consumes.
// *genai.Provider satisfies it in production.
type Completer interface {
	Complete(ctx context.Context, model, system, prompt string, temperature float64) (string, error)
}

// Config configures a Summarizer.
type Config struct {
	// Completer executes model calls. Required.
	Completer Completer

	// Model names the summarization model. Required.
	Model string

	// MaxCharacters caps the length of generated summaries.
	MaxCharacters int

	// MaxConcurrentRequests caps in-flight completions. Required, >= 1.
	MaxConcurrentRequests int

	// Temperature for generation. Zero keeps summaries deterministic.
	Temperature float64

	// Cooldown overrides DefaultCooldown; RetryCooldown overrides
	// DefaultRetryCooldown. Shortened in tests.
	Cooldown      time.Duration
	RetryCooldown time.Duration

	// Logger is required.
	Logger log.Logger
}

// Summarizer annotates documents with model-generated summaries.
type Summarizer struct {
	completer     Completer
	model         string
	maxCharacters int
	maxConcurrent int
	temperature   float64
	cooldown      time.Duration
	retryCooldown time.Duration
	logger        log.Logger
}

// New creates a Summarizer, validating the configuration.
func New(cfg Config) (*Summarizer, error) {
	if cfg.Completer == nil {
		return nil, errors.New("completer is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}
	if cfg.MaxConcurrentRequests < 1 {
		return nil, fmt.Errorf("max concurrent requests must be >= 1, got %d", cfg.MaxConcurrentRequests)
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	s := &Summarizer{
		completer:     cfg.Completer,
		model:         cfg.Model,
		maxCharacters: cfg.MaxCharacters,
		maxConcurrent: cfg.MaxConcurrentRequests,
		temperature:   cfg.Temperature,
		cooldown:      cfg.Cooldown,
		retryCooldown: cfg.RetryCooldown,
		logger:        cfg.Logger,
	}
	if s.maxCharacters < 1 {
		s.maxCharacters = 1000
	}
	if s.cooldown == 0 {
		s.cooldown = DefaultCooldown
	}
	if s.retryCooldown == 0 {
		s.retryCooldown = DefaultRetryCooldown
	}
	return s, nil
}

// Run summarizes all documents and returns every document that went through
// a round, summarized or not. First-round failures get a second attempt
// with the longer cooldown; documents still lacking a summary after that
// are returned unchanged for the caller's post-filter to drop.
func (s *Summarizer) Run(ctx context.Context, docs []document.Document) []document.Document {
	s.logger.Debug("starting summarization batch",
		"documents", len(docs), "max_concurrent", s.maxConcurrent)

	results := s.processBatch(ctx, docs, s.cooldown)

	var succeeded, failed []document.Document
	for _, d := range results {
		if d.Summary != nil {
			succeeded = append(succeeded, d)
		} else {
			failed = append(failed, d)
		}
	}

	if len(failed) > 0 {
		s.logger.Info("retrying failed documents with increased cooldown",
			"count", len(failed))
		succeeded = append(succeeded, s.processBatch(ctx, failed, s.retryCooldown)...)
	}

	done := 0
	for _, d := range succeeded {
		if d.Summary != nil {
			done++
		}
	}
	s.logger.Info("summarization completed",
		"succeeded", done, "failed", len(docs)-done, "total", len(docs))
	return succeeded
}

// processBatch summarizes docs with a semaphore bounding concurrency.
// Each worker holds its slot through the post-call cooldown so the request
// rate stays bounded, not just the in-flight count.
func (s *Summarizer) processBatch(ctx context.Context, docs []document.Document, cooldown time.Duration) []document.Document {
	sem := make(chan struct{}, s.maxConcurrent)
	results := make([]document.Document, len(docs))

	var wg sync.WaitGroup
	for i, doc := range docs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = s.summarize(ctx, doc, cooldown)
		}()
	}
	wg.Wait()
	return results
}

// summarize runs one completion. On any failure the document is returned
// unchanged with a warning; the retry round and post-filters handle it.
func (s *Summarizer) summarize(ctx context.Context, doc document.Document, cooldown time.Duration) document.Document {
	prompt := fmt.Sprintf(userPromptTemplate, doc.Content, s.maxCharacters)

	text, err := s.completer.Complete(ctx, s.model, systemPrompt, prompt, s.temperature)
	if err != nil {
		s.logger.Warn("failed to summarize document", "id", doc.ID, "error", err)
		return doc
	}

	// Cooldown while still holding the semaphore slot keeps the overall
	// request rate under provider limits.
	select {
	case <-time.After(cooldown):
	case <-ctx.Done():
		return doc
	}

	if strings.TrimSpace(text) == "" {
		s.logger.Warn("no summary generated for document", "id", doc.ID)
		return doc
	}
	doc.AddSummary(text)
	return doc
}
