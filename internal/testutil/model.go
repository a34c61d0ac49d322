package testutil

import (
	"context"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// ScriptedModelName is the provider-qualified name ScriptedModel
// registers under.
const ScriptedModelName = "mock/scripted-model"

// ScriptedModel is a deterministic Genkit model for testing agent
// loops. Each call consumes the next scripted step; once the script is
// exhausted, every call returns the fallback text. When the request
// carries no bound tools, scripted tool requests are suppressed and
// only the step's text is returned.
//
// Thread-safe for concurrent use.
type ScriptedModel struct {
	mu       sync.Mutex
	script   []scriptStep
	fallback string
	calls    []ModelCall
}

type scriptStep struct {
	text  string
	tools []*ai.ToolRequest
}

// ModelCall records one call to the scripted model.
type ModelCall struct {
	ToolsBound    bool // tools were offered to the model
	ToolResponses int  // tool response parts present in the request
}

// NewScriptedModel creates a ScriptedModel with the given fallback text.
func NewScriptedModel(fallback string) *ScriptedModel {
	return &ScriptedModel{fallback: fallback}
}

// Answer scripts a plain text response.
func (m *ScriptedModel) Answer(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptStep{text: text})
}

// RequestTools scripts a response that asks for the given tool calls.
func (m *ScriptedModel) RequestTools(tools ...*ai.ToolRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptStep{tools: tools})
}

// Calls returns a copy of all recorded calls.
func (m *ScriptedModel) Calls() []ModelCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]ModelCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// Register registers the model with Genkit under ScriptedModelName.
func (m *ScriptedModel) Register(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, ScriptedModelName, &ai.ModelOptions{
		Label: "Scripted Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			Tools:      true,
			SystemRole: true,
		},
	}, m.generate)
}

func (m *ScriptedModel) generate(_ context.Context, req *ai.ModelRequest, _ ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	m.mu.Lock()

	toolResponses := 0
	for _, msg := range req.Messages {
		if msg.Role != ai.RoleTool {
			continue
		}
		for _, p := range msg.Content {
			if p.ToolResponse != nil {
				toolResponses++
			}
		}
	}
	m.calls = append(m.calls, ModelCall{
		ToolsBound:    len(req.Tools) > 0,
		ToolResponses: toolResponses,
	})

	step := scriptStep{text: m.fallback}
	if len(m.script) > 0 {
		step = m.script[0]
		m.script = m.script[1:]
	}
	m.mu.Unlock()

	var parts []*ai.Part
	if len(req.Tools) > 0 {
		for _, tr := range step.tools {
			parts = append(parts, &ai.Part{
				Kind:        ai.PartToolRequest,
				ToolRequest: tr,
			})
		}
	}
	text := step.text
	if text == "" && len(parts) == 0 {
		text = m.fallback
	}
	if text != "" {
		parts = append(parts, ai.NewTextPart(text))
	}

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: parts,
		},
	}, nil
}
