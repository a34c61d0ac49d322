package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/docsupport/docsupport/internal/log"
	"github.com/docsupport/docsupport/internal/memory"
	"github.com/docsupport/docsupport/internal/rag"
)

// Tool name constants registered with Genkit.
const (
	// SearchMemoryName searches a user's conversational memory.
	SearchMemoryName = "search_memory"
	// AddToMemoryName stores content into long-term memory.
	AddToMemoryName = "add_to_memory"
	// RetrieveDocumentsName runs hybrid search over the document chunks.
	RetrieveDocumentsName = "mongodb_retriever_tool"
	// FetchDocumentName fetches a complete document by URL.
	FetchDocumentName = "get_complete_docs_with_url"
)

// NoContext signals a retrieval tool found nothing usable. The model is
// instructed to treat it as "no documents available" rather than content.
const NoContext = "__NO_CONTEXT__"

// SearchMemoryInput is the input schema for search_memory.
type SearchMemoryInput struct {
	Query string `json:"query" jsonschema_description:"What to look for in past conversations"`
}

// AddToMemoryInput is the input schema for add_to_memory.
type AddToMemoryInput struct {
	Content string `json:"content" jsonschema_description:"The content to remember"`
}

// RetrieveDocumentsInput is the input schema for mongodb_retriever_tool.
type RetrieveDocumentsInput struct {
	Query string `json:"query" jsonschema_description:"The search query string"`
}

// FetchDocumentInput is the input schema for get_complete_docs_with_url.
type FetchDocumentInput struct {
	URL string `json:"url" jsonschema_description:"The exact document URL to fetch"`
}

// MemoryBank is the slice of memory.Store the tools need.
type MemoryBank interface {
	Search(ctx context.Context, userID, query string, limit int) ([]memory.Memory, error)
	Add(ctx context.Context, userID, content string) (memory.Memory, error)
}

// DocumentRetriever runs hybrid search over the indexed chunks.
type DocumentRetriever interface {
	Retrieve(ctx context.Context, query string) ([]rag.Chunk, error)
}

// DocumentFetcher fetches a rendered document by URL.
type DocumentFetcher interface {
	FetchByURL(ctx context.Context, url string) (string, error)
}

// Toolset holds dependencies for the agent's tool handlers. All tools
// return plain strings; failures become sentinel strings rather than
// errors so a broken backend degrades the answer instead of aborting
// the conversation.
type Toolset struct {
	memories  MemoryBank
	retriever DocumentRetriever
	fetcher   DocumentFetcher
	logger    log.Logger
}

// NewToolset creates a Toolset, validating the dependencies.
func NewToolset(memories MemoryBank, retriever DocumentRetriever, fetcher DocumentFetcher, logger log.Logger) (*Toolset, error) {
	if memories == nil {
		return nil, errors.New("memory store is required")
	}
	if retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Toolset{memories: memories, retriever: retriever, fetcher: fetcher, logger: logger}, nil
}

// Register registers all agent tools with Genkit.
func Register(g *genkit.Genkit, ts *Toolset) ([]ai.Tool, error) {
	if g == nil {
		return nil, errors.New("genkit instance is required")
	}
	if ts == nil {
		return nil, errors.New("toolset is required")
	}

	return []ai.Tool{
		genkit.DefineTool(g, SearchMemoryName,
			"Search conversational memory for the current user. "+
				"Returns 'No previous conversations found.' if nothing is found.",
			ts.SearchMemory),
		genkit.DefineTool(g, AddToMemoryName,
			"Store content into long-term memory for the current user.",
			ts.AddToMemory),
		genkit.DefineTool(g, RetrieveDocumentsName,
			"Retrieve relevant documentation chunks using hybrid vector and "+
				"full-text search. Returns '__NO_CONTEXT__' if no relevant "+
				"documents are found.",
			ts.RetrieveDocuments),
		genkit.DefineTool(g, FetchDocumentName,
			"Fetch the complete raw document using its URL. Use only when "+
				"retrieved chunks are relevant but lack sufficient detail.",
			ts.FetchDocument),
	}, nil
}

// SearchMemory looks up past conversations for the requesting user.
func (ts *Toolset) SearchMemory(ctx *ai.ToolContext, input SearchMemoryInput) (string, error) {
	userID := UserIDFromContext(ctx)
	ts.logger.Info("search_memory called", "user", userID, "query", input.Query)

	found, err := ts.memories.Search(ctx, userID, input.Query, memory.DefaultLimit)
	if err != nil {
		ts.logger.Warn("memory search failed", "user", userID, "error", err)
		return memory.NoMemories, nil
	}
	return memory.Format(found), nil
}

// AddToMemory stores content for the requesting user.
func (ts *Toolset) AddToMemory(ctx *ai.ToolContext, input AddToMemoryInput) (string, error) {
	userID := UserIDFromContext(ctx)
	ts.logger.Info("add_to_memory called", "user", userID, "content_len", len(input.Content))

	if _, err := ts.memories.Add(ctx, userID, input.Content); err != nil {
		ts.logger.Warn("storing memory failed", "user", userID, "error", err)
		return fmt.Sprintf("Error storing memory: %v", err), nil
	}
	return "Memory stored successfully.", nil
}

// RetrieveDocuments runs hybrid search and renders the hits for the model.
func (ts *Toolset) RetrieveDocuments(ctx *ai.ToolContext, input RetrieveDocumentsInput) (string, error) {
	ts.logger.Info("mongodb_retriever_tool called", "query", input.Query)

	chunks, err := ts.retriever.Retrieve(ctx, input.Query)
	if err != nil {
		ts.logger.Warn("document retrieval failed", "query", input.Query, "error", err)
		return NoContext, nil
	}
	if len(chunks) == 0 {
		ts.logger.Warn("document retrieval returned no hits", "query", input.Query)
		return NoContext, nil
	}
	return formatSearchResults(chunks), nil
}

// FetchDocument fetches a full document by URL.
func (ts *Toolset) FetchDocument(ctx *ai.ToolContext, input FetchDocumentInput) (string, error) {
	ts.logger.Info("get_complete_docs_with_url called", "url", input.URL)

	doc, err := ts.fetcher.FetchByURL(ctx, input.URL)
	if err != nil {
		ts.logger.Warn("document fetch failed", "url", input.URL, "error", err)
		return NoContext, nil
	}
	return doc, nil
}

// formatSearchResults renders chunks as numbered documents wrapped in a
// search_results block, with usage instructions appended for the model.
func formatSearchResults(chunks []rag.Chunk) string {
	entries := make([]string, 0, len(chunks))
	for i, c := range chunks {
		title := c.Title
		if title == "" {
			title = "Untitled"
		}
		url := c.URL
		if url == "" {
			url = "UNKNOWN_URL"
		}
		entries = append(entries, fmt.Sprintf(
			"<document id=\"%d\">\n<title>%s</title>\n<url>%s</url>\n<content>\n%s\n</content>\n</document>",
			i+1, title, url, strings.TrimSpace(c.Text)))
	}

	return fmt.Sprintf(
		"<search_results>\n%s\n</search_results>\n\nINSTRUCTIONS:\n- Use ONLY the content above to answer\n- Always cite the document URL when using information",
		strings.Join(entries, "\n"))
}
