// Package agent runs the tool-calling support agent that answers user
// questions from the indexed documentation and per-user memory.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/docsupport/docsupport/internal/log"
)

// DefaultMaxTurns caps the agentic tool loop.
const DefaultMaxTurns = 5

// fallbackResponse is returned when the model produces an empty answer.
const fallbackResponse = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

const instructions = `You are a helpful agent that uses tools to answer user queries accurately.

**Step 1: Identify User Intent**
Determine if the user is asking about their previous memories/conversations or asking a new question.

**If user is asking about memories:**
- Use search_memory tool to retrieve relevant memories
- Provide the response based on retrieved memories
- Do NOT use other tools

**If user is asking a new question:**
1. First, use search_memory to check for relevant past context
2. Use mongodb_retriever_tool to search for relevant documents
3. Answer using ONLY information from the retrieved documents
4. If the chunks lack detail, use get_complete_docs_with_url to fetch complete documents
5. Finally, use add_to_memory to store this interaction for future reference

**Guidelines:**
- Be concise and accurate
- Quote relevant parts from documents when appropriate
- If information is not found, say "I don't have enough information to answer this question"
- Always cite document URLs in your final answer at the end, when using information from documents
- Only use get_complete_docs_with_url when chunks are relevant to the query but lack sufficient detail or context`

// Config contains all required parameters for the agent.
type Config struct {
	// Genkit is the initialized Genkit instance. Required.
	Genkit *genkit.Genkit

	// Tools are the pre-registered agent tools. Required.
	Tools []ai.Tool

	// ModelName is the provider-qualified model name, e.g. "openai/gpt-4o".
	// Required.
	ModelName string

	// MaxTurns caps the tool loop. Default DefaultMaxTurns.
	MaxTurns int

	// RateLimiter throttles model calls. Default 10 req/s, burst 30.
	RateLimiter *rate.Limiter

	// Logger is required.
	Logger log.Logger
}

// Agent is the conversational support agent. It is stateless across
// requests; all persistence lives behind its tools.
type Agent struct {
	g           *genkit.Genkit
	tools       []ai.Tool
	toolRefs    []ai.ToolRef
	toolsByName map[string]ai.Tool
	toolNames   string
	modelName   string
	maxTurns    int
	rateLimiter *rate.Limiter
	logger      log.Logger
}

// New creates an Agent with required configuration.
func New(cfg Config) (*Agent, error) {
	if cfg.Genkit == nil {
		return nil, errors.New("genkit instance is required")
	}
	if len(cfg.Tools) == 0 {
		return nil, errors.New("at least one tool is required")
	}
	if cfg.ModelName == "" {
		return nil, errors.New("model name is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	rl := cfg.RateLimiter
	if rl == nil {
		rl = rate.NewLimiter(10, 30)
	}

	// Cache tool refs, names and the dispatch table at construction.
	toolRefs := make([]ai.ToolRef, len(cfg.Tools))
	byName := make(map[string]ai.Tool, len(cfg.Tools))
	names := make([]string, len(cfg.Tools))
	for i, t := range cfg.Tools {
		toolRefs[i] = t
		byName[t.Name()] = t
		names[i] = t.Name()
	}

	a := &Agent{
		g:           cfg.Genkit,
		tools:       cfg.Tools,
		toolRefs:    toolRefs,
		toolsByName: byName,
		toolNames:   strings.Join(names, ", "),
		modelName:   cfg.ModelName,
		maxTurns:    maxTurns,
		rateLimiter: rl,
		logger:      cfg.Logger,
	}
	a.logger.Info("agent initialized",
		"tools", a.toolNames,
		"model", a.modelName,
		"max_turns", a.maxTurns)
	return a, nil
}

// Execute answers query for userID. It alternates between a model step
// and a tool step: the model either answers or requests tools, and tool
// outputs are fed back as tool messages. When the turn cap is reached
// the model is asked once more with tools unbound so the user always
// gets a direct answer.
func (a *Agent) Execute(ctx context.Context, userID, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", errors.New("query is empty")
	}
	if userID == "" {
		userID = "default_user"
	}
	ctx = ContextWithUserID(ctx, userID)

	a.logger.Debug("executing agent",
		"user", userID,
		"query_len", len(query),
		"tools", a.toolNames)

	messages := []*ai.Message{ai.NewUserMessage(ai.NewTextPart(query))}

	for turn := 0; turn < a.maxTurns; turn++ {
		resp, err := a.generate(ctx, messages, true)
		if err != nil {
			return "", err
		}

		requests := resp.ToolRequests()
		if len(requests) == 0 {
			return a.finalText(resp, userID), nil
		}

		a.logger.Debug("model requested tools", "turn", turn, "count", len(requests))
		messages = append(messages, resp.Message)
		messages = append(messages, a.runTools(ctx, requests))
	}

	// Turn cap reached: force a direct answer.
	a.logger.Warn("turn cap reached, forcing final answer",
		"user", userID, "max_turns", a.maxTurns)
	resp, err := a.generate(ctx, messages, false)
	if err != nil {
		return "", err
	}
	return a.finalText(resp, userID), nil
}

// generate runs one model step over messages, with or without the tool
// set bound.
func (a *Agent) generate(ctx context.Context, messages []*ai.Message, withTools bool) (*ai.ModelResponse, error) {
	if err := a.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(a.modelName),
		ai.WithSystem(instructions),
		ai.WithMessages(messages...),
	}
	if withTools {
		opts = append(opts,
			ai.WithTools(a.toolRefs...),
			ai.WithReturnToolRequests(true),
		)
	}

	resp, err := genkit.Generate(ctx, a.g, opts...)
	if err != nil {
		return nil, fmt.Errorf("generating response: %w", err)
	}
	return resp, nil
}

// runTools executes the requested tools and packs their outputs into a
// single tool message. Unknown tool names produce an error output for
// the model rather than aborting the conversation.
func (a *Agent) runTools(ctx context.Context, requests []*ai.ToolRequest) *ai.Message {
	parts := make([]*ai.Part, 0, len(requests))
	for _, req := range requests {
		var output any
		tool, ok := a.toolsByName[req.Name]
		if !ok {
			a.logger.Warn("model requested unknown tool", "tool", req.Name)
			output = fmt.Sprintf("Error: unknown tool %q", req.Name)
		} else {
			out, err := tool.RunRaw(ctx, req.Input)
			if err != nil {
				a.logger.Warn("tool execution failed", "tool", req.Name, "error", err)
				output = fmt.Sprintf("Error executing %s: %v", req.Name, err)
			} else {
				output = out
			}
		}
		parts = append(parts, ai.NewToolResponsePart(&ai.ToolResponse{
			Name:   req.Name,
			Ref:    req.Ref,
			Output: output,
		}))
	}
	return &ai.Message{Role: ai.RoleTool, Content: parts}
}

func (a *Agent) finalText(resp *ai.ModelResponse, userID string) string {
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		a.logger.Warn("model returned empty response", "user", userID)
		return fallbackResponse
	}
	return text
}
