// Package genai wires the Genkit runtime with the OpenAI plugin and exposes
// the narrow model surfaces the rest of the application consumes: a text
// completion call for summarization and an embedder for indexing and
// retrieval. Components never talk to Genkit directly except the agent,
// which needs the full tool-calling loop.
package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
)

// Config configures the provider.
type Config struct {
	// APIKey is the OpenAI API key. Required.
	APIKey string

	// EmbeddingModel names the OpenAI embedding model. Required.
	EmbeddingModel string
}

// Provider holds the initialized Genkit instance.
type Provider struct {
	g              *genkit.Genkit
	embeddingModel string
}

// Init initializes Genkit with the OpenAI plugin.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if cfg.EmbeddingModel == "" {
		return nil, errors.New("embedding model is required")
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{APIKey: cfg.APIKey}))
	if g == nil {
		return nil, errors.New("initializing genkit with openai provider")
	}
	return &Provider{g: g, embeddingModel: cfg.EmbeddingModel}, nil
}

// Genkit exposes the underlying instance for the agent's generate loop.
func (p *Provider) Genkit() *genkit.Genkit {
	return p.g
}

// Embedder returns the embedder registered by the OpenAI plugin.
func (p *Provider) Embedder() ai.Embedder {
	return genkit.LookupEmbedder(p.g, api.NewName("openai", p.embeddingModel))
}

// Complete runs a single system+user completion against the named model
// and returns the response text. An empty response is an error so callers
// never mistake a blank completion for a valid summary.
func (p *Provider) Complete(ctx context.Context, model, system, prompt string, temperature float64) (string, error) {
	resp, err := genkit.Generate(ctx, p.g,
		ai.WithModelName("openai/"+model),
		ai.WithSystem(system),
		ai.WithPrompt(prompt),
		ai.WithConfig(&ai.GenerationCommonConfig{Temperature: temperature}),
	)
	if err != nil {
		return "", fmt.Errorf("generating completion with %s: %w", model, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("model returned an empty completion")
	}
	return text, nil
}
