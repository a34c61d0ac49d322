// Package testutil provides shared fakes for tests that need model or
// embedder behavior without network access.
package testutil

import (
	"context"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// StaticEmbedder implements ai.Embedder, returning a fixed vector for every
// input. Safe for concurrent use.
type StaticEmbedder struct {
	// Vector returned for every input; a small default when nil.
	Vector []float32

	// Err, when set, fails every call.
	Err error

	mu       sync.Mutex
	calls    int
	lastText string
}

func (e *StaticEmbedder) Name() string { return "static-embedder" }

func (e *StaticEmbedder) Register(api.Registry) {}

func (e *StaticEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	e.mu.Lock()
	e.calls++
	if len(req.Input) > 0 && len(req.Input[0].Content) > 0 {
		e.lastText = req.Input[0].Content[0].Text
	}
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}
	vec := e.Vector
	if vec == nil {
		vec = []float32{0.1, 0.2, 0.3}
	}
	return &ai.EmbedResponse{
		Embeddings: []*ai.Embedding{{Embedding: vec}},
	}, nil
}

// Calls reports how many times Embed ran.
func (e *StaticEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// LastText returns the most recent embedded text.
func (e *StaticEmbedder) LastText() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastText
}
