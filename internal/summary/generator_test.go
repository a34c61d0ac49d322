package summary

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsupport/docsupport/internal/document"
	"github.com/docsupport/docsupport/internal/log"
)

func TestNewGeneratorValidation(t *testing.T) {
	mock := &mockCompleter{}
	s := newTestSummarizer(t, mock, 1)

	_, err := NewGenerator(nil, 50, log.NewNop())
	assert.Error(t, err)

	_, err = NewGenerator(s, 50, nil)
	assert.Error(t, err)

	g, err := NewGenerator(s, 0, log.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, g)
}

func TestGenerateSkipsShortDocuments(t *testing.T) {
	mock := &mockCompleter{}
	s := newTestSummarizer(t, mock, 2)
	g, err := NewGenerator(s, 50, log.NewNop())
	require.NoError(t, err)

	long := document.New("https://example.com/long", "Long", strings.Repeat("substantial content ", 10), nil, nil)
	short := document.New("https://example.com/short", "Short", "tiny", nil, nil)

	out := g.Generate(context.Background(), []document.Document{long, short})

	require.Len(t, out, 1)
	assert.Equal(t, long.ID, out[0].ID)
	// The short document must never reach the model.
	assert.Equal(t, 0, mock.promptCount("tiny"))
	assert.Equal(t, 1, mock.promptCount("substantial content"))
}

func TestGenerateDropsUnsummarizedDocuments(t *testing.T) {
	mock := &mockCompleter{}
	mock.fn = func(prompt string, _ int) (string, error) {
		if strings.Contains(prompt, "unlucky") {
			return "", assert.AnError
		}
		return "a generated summary", nil
	}
	s := newTestSummarizer(t, mock, 2)
	g, err := NewGenerator(s, 10, log.NewNop())
	require.NoError(t, err)

	docs := makeDocs(
		"unlucky document that the model always rejects",
		"lucky document that summarizes without issue",
	)
	out := g.Generate(context.Background(), docs)

	require.Len(t, out, 1)
	require.NotNil(t, out[0].Summary)
	assert.Equal(t, docs[1].ID, out[0].ID)
}

func TestGenerateEmptyInput(t *testing.T) {
	s := newTestSummarizer(t, &mockCompleter{}, 1)
	g, err := NewGenerator(s, 50, log.NewNop())
	require.NoError(t, err)

	assert.Empty(t, g.Generate(context.Background(), nil))
}
