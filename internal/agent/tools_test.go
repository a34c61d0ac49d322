package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/docsupport/docsupport/internal/log"
	"github.com/docsupport/docsupport/internal/memory"
	"github.com/docsupport/docsupport/internal/rag"
)

func TestMain(m *testing.M) {
	// Genkit keeps pooled HTTP connections alive across tests.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*http2clientConnReadLoop).run"),
		goleak.IgnoreTopFunction("os/signal.NotifyContext.func1"),
	)
}

type mockMemories struct {
	searchUser  string
	searchQuery string
	found       []memory.Memory
	searchErr   error

	addUser    string
	addContent string
	addErr     error
}

func (m *mockMemories) Search(_ context.Context, userID, query string, _ int) ([]memory.Memory, error) {
	m.searchUser = userID
	m.searchQuery = query
	return m.found, m.searchErr
}

func (m *mockMemories) Add(_ context.Context, userID, content string) (memory.Memory, error) {
	m.addUser = userID
	m.addContent = content
	if m.addErr != nil {
		return memory.Memory{}, m.addErr
	}
	return memory.Memory{ID: "m1", UserID: userID, Content: content}, nil
}

type mockRetriever struct {
	lastQuery string
	chunks    []rag.Chunk
	err       error
}

func (m *mockRetriever) Retrieve(_ context.Context, query string) ([]rag.Chunk, error) {
	m.lastQuery = query
	return m.chunks, m.err
}

type mockFetcher struct {
	lastURL string
	doc     string
	err     error
}

func (m *mockFetcher) FetchByURL(_ context.Context, url string) (string, error) {
	m.lastURL = url
	return m.doc, m.err
}

func newTestToolset(t *testing.T, mem *mockMemories, ret *mockRetriever, fetch *mockFetcher) *Toolset {
	t.Helper()
	ts, err := NewToolset(mem, ret, fetch, log.NewNop())
	require.NoError(t, err)
	return ts
}

func toolCtx(userID string) *ai.ToolContext {
	ctx := context.Background()
	if userID != "" {
		ctx = ContextWithUserID(ctx, userID)
	}
	return &ai.ToolContext{Context: ctx}
}

func TestUserIDContext(t *testing.T) {
	assert.Empty(t, UserIDFromContext(context.Background()))

	ctx := ContextWithUserID(context.Background(), "U123")
	assert.Equal(t, "U123", UserIDFromContext(ctx))
}

func TestNewToolsetValidation(t *testing.T) {
	mem := &mockMemories{}
	ret := &mockRetriever{}
	fetch := &mockFetcher{}

	tests := []struct {
		name string
		fn   func() (*Toolset, error)
	}{
		{"nil memories", func() (*Toolset, error) { return NewToolset(nil, ret, fetch, log.NewNop()) }},
		{"nil retriever", func() (*Toolset, error) { return NewToolset(mem, nil, fetch, log.NewNop()) }},
		{"nil fetcher", func() (*Toolset, error) { return NewToolset(mem, ret, nil, log.NewNop()) }},
		{"nil logger", func() (*Toolset, error) { return NewToolset(mem, ret, fetch, nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.fn()
			assert.Error(t, err)
		})
	}
}

func TestSearchMemory(t *testing.T) {
	t.Run("formats results for the requesting user", func(t *testing.T) {
		mem := &mockMemories{found: []memory.Memory{{Content: "asked about pipelines"}}}
		ts := newTestToolset(t, mem, &mockRetriever{}, &mockFetcher{})

		got, err := ts.SearchMemory(toolCtx("U42"), SearchMemoryInput{Query: "pipelines"})
		require.NoError(t, err)
		assert.Equal(t, "Previous conversations:\n- asked about pipelines", got)
		assert.Equal(t, "U42", mem.searchUser)
		assert.Equal(t, "pipelines", mem.searchQuery)
	})

	t.Run("empty result", func(t *testing.T) {
		ts := newTestToolset(t, &mockMemories{}, &mockRetriever{}, &mockFetcher{})

		got, err := ts.SearchMemory(toolCtx("U42"), SearchMemoryInput{Query: "anything"})
		require.NoError(t, err)
		assert.Equal(t, memory.NoMemories, got)
	})

	t.Run("backend error degrades to sentinel", func(t *testing.T) {
		mem := &mockMemories{searchErr: errors.New("mongo down")}
		ts := newTestToolset(t, mem, &mockRetriever{}, &mockFetcher{})

		got, err := ts.SearchMemory(toolCtx("U42"), SearchMemoryInput{Query: "anything"})
		require.NoError(t, err)
		assert.Equal(t, memory.NoMemories, got)
	})
}

func TestAddToMemory(t *testing.T) {
	t.Run("stores for the requesting user", func(t *testing.T) {
		mem := &mockMemories{}
		ts := newTestToolset(t, mem, &mockRetriever{}, &mockFetcher{})

		got, err := ts.AddToMemory(toolCtx("U42"), AddToMemoryInput{Content: "likes terse answers"})
		require.NoError(t, err)
		assert.Equal(t, "Memory stored successfully.", got)
		assert.Equal(t, "U42", mem.addUser)
		assert.Equal(t, "likes terse answers", mem.addContent)
	})

	t.Run("store failure is reported, not raised", func(t *testing.T) {
		mem := &mockMemories{addErr: errors.New("mongo down")}
		ts := newTestToolset(t, mem, &mockRetriever{}, &mockFetcher{})

		got, err := ts.AddToMemory(toolCtx("U42"), AddToMemoryInput{Content: "x"})
		require.NoError(t, err)
		assert.Contains(t, got, "Error storing memory")
	})
}

func TestRetrieveDocuments(t *testing.T) {
	t.Run("formats hits", func(t *testing.T) {
		ret := &mockRetriever{chunks: []rag.Chunk{
			{Title: "Pipelines", URL: "https://docs.example.com/p", Text: "  pipeline content  "},
			{Text: "untitled chunk"},
		}}
		ts := newTestToolset(t, &mockMemories{}, ret, &mockFetcher{})

		got, err := ts.RetrieveDocuments(toolCtx(""), RetrieveDocumentsInput{Query: "pipelines"})
		require.NoError(t, err)
		assert.Equal(t, "pipelines", ret.lastQuery)
		assert.Contains(t, got, "<search_results>")
		assert.Contains(t, got, `<document id="1">`)
		assert.Contains(t, got, "<title>Pipelines</title>")
		assert.Contains(t, got, "<url>https://docs.example.com/p</url>")
		assert.Contains(t, got, "<content>\npipeline content\n</content>")
		assert.Contains(t, got, `<document id="2">`)
		assert.Contains(t, got, "<title>Untitled</title>")
		assert.Contains(t, got, "<url>UNKNOWN_URL</url>")
		assert.Contains(t, got, "INSTRUCTIONS:")
	})

	t.Run("no hits", func(t *testing.T) {
		ts := newTestToolset(t, &mockMemories{}, &mockRetriever{}, &mockFetcher{})

		got, err := ts.RetrieveDocuments(toolCtx(""), RetrieveDocumentsInput{Query: "q"})
		require.NoError(t, err)
		assert.Equal(t, NoContext, got)
	})

	t.Run("backend error degrades to sentinel", func(t *testing.T) {
		ret := &mockRetriever{err: errors.New("atlas down")}
		ts := newTestToolset(t, &mockMemories{}, ret, &mockFetcher{})

		got, err := ts.RetrieveDocuments(toolCtx(""), RetrieveDocumentsInput{Query: "q"})
		require.NoError(t, err)
		assert.Equal(t, NoContext, got)
	})
}

func TestFetchDocument(t *testing.T) {
	t.Run("returns rendered document", func(t *testing.T) {
		fetch := &mockFetcher{doc: "<document>\n<url>u</url>\n<content>c</content>\n</document>"}
		ts := newTestToolset(t, &mockMemories{}, &mockRetriever{}, fetch)

		got, err := ts.FetchDocument(toolCtx(""), FetchDocumentInput{URL: "https://docs.example.com/p"})
		require.NoError(t, err)
		assert.Equal(t, fetch.doc, got)
		assert.Equal(t, "https://docs.example.com/p", fetch.lastURL)
	})

	t.Run("not found degrades to sentinel", func(t *testing.T) {
		fetch := &mockFetcher{err: rag.ErrDocumentNotFound}
		ts := newTestToolset(t, &mockMemories{}, &mockRetriever{}, fetch)

		got, err := ts.FetchDocument(toolCtx(""), FetchDocumentInput{URL: "https://docs.example.com/x"})
		require.NoError(t, err)
		assert.Equal(t, NoContext, got)
	})
}

func TestRegister(t *testing.T) {
	ts := newTestToolset(t, &mockMemories{}, &mockRetriever{}, &mockFetcher{})

	t.Run("validation", func(t *testing.T) {
		_, err := Register(nil, ts)
		assert.Error(t, err)

		g := genkit.Init(context.Background())
		_, err = Register(g, nil)
		assert.Error(t, err)
	})

	t.Run("registers all tools", func(t *testing.T) {
		g := genkit.Init(context.Background())
		tools, err := Register(g, ts)
		require.NoError(t, err)
		require.Len(t, tools, 4)

		for _, name := range []string{
			SearchMemoryName, AddToMemoryName, RetrieveDocumentsName, FetchDocumentName,
		} {
			assert.NotNil(t, genkit.LookupTool(g, name), name)
		}
	})
}
