package splitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRuneSplitter(t *testing.T, size int, opts ...Option) *Recursive {
	t.Helper()
	opts = append([]Option{WithLengthFunc(RuneLength)}, opts...)
	r, err := NewRecursive(size, opts...)
	require.NoError(t, err)
	return r
}

func TestNewRecursiveValidation(t *testing.T) {
	_, err := NewRecursive(0, WithLengthFunc(RuneLength))
	assert.Error(t, err)

	_, err = NewRecursive(10, WithLengthFunc(RuneLength), WithOverlap(10))
	assert.Error(t, err)
}

func TestDefaultOverlapIsFifteenPercent(t *testing.T) {
	r := newRuneSplitter(t, 500)
	assert.Equal(t, 75, r.ChunkOverlap())

	r = newRuneSplitter(t, 10)
	assert.Equal(t, 1, r.ChunkOverlap()) // truncated, not rounded
}

func TestSplitShortText(t *testing.T) {
	r := newRuneSplitter(t, 100)
	chunks := r.Split("hello world")
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0])
}

func TestSplitEmptyText(t *testing.T) {
	r := newRuneSplitter(t, 100)
	assert.Empty(t, r.Split(""))
	assert.Empty(t, r.Split("   \n\n  "))
}

func TestSplitRespectsChunkSize(t *testing.T) {
	r := newRuneSplitter(t, 30)

	text := strings.Repeat("some words here and there. ", 40) +
		"\n\nanother paragraph with more words\n" +
		strings.Repeat("x", 25)
	chunks := r.Split(text)
	require.NotEmpty(t, chunks)

	for i, c := range chunks {
		assert.LessOrEqual(t, RuneLength(c), 30, "chunk %d too large: %q", i, c)
		assert.NotEmpty(t, strings.TrimSpace(c))
	}
}

func TestSplitExactOverlap(t *testing.T) {
	// No separators occur, so the splitter falls through to the rune
	// level where the overlap window is exact.
	r := newRuneSplitter(t, 10)
	require.Equal(t, 1, r.ChunkOverlap())

	chunks := r.Split("abcdefghijklmnopqrst")
	require.Equal(t, []string{"abcdefghij", "jklmnopqrs", "st"}, chunks)

	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		assert.Equal(t, prev[len(prev)-1:], cur[:1], "chunks %d/%d overlap", i-1, i)
	}
}

func TestSplitPrefersParagraphBoundary(t *testing.T) {
	r := newRuneSplitter(t, 8)

	chunks := r.Split("aaaa\n\nbbbb")
	require.Equal(t, []string{"aaaa", "bbbb"}, chunks)
}

func TestSplitPrefersCodeFenceBoundary(t *testing.T) {
	r := newRuneSplitter(t, 20)

	text := "intro text\n```\ncode body\n```\ntrailing prose here"
	chunks := r.Split(text)
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		assert.LessOrEqual(t, RuneLength(c), 20)
	}
	// The code body must stay in one chunk rather than being cut mid-line.
	joined := strings.Join(chunks, "\n")
	assert.Contains(t, joined, "code body")
}

func TestSplitPreservesAllWords(t *testing.T) {
	r := newRuneSplitter(t, 12)

	text := "alpha beta gamma delta epsilon zeta eta theta"
	chunks := r.Split(text)

	joined := strings.Join(chunks, " ")
	for _, word := range strings.Fields(text) {
		assert.Contains(t, joined, word)
	}
}

func TestTokenLength(t *testing.T) {
	// Loading the encoding downloads the vocabulary on a cold cache.
	fn, err := TokenLength()
	if err != nil {
		t.Skipf("tokenizer vocabulary unavailable: %v", err)
	}

	assert.Equal(t, 0, fn(""))
	assert.Greater(t, fn("hello world, this is a sentence about documentation."), 5)
}
