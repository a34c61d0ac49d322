package document

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := NewID()
		assert.Len(t, id, 32)
		assert.Equal(t, strings.ToLower(id), id)
		assert.False(t, seen[id], "duplicate ID %s", id)
		seen[id] = true
	}
}

func TestNewSharesID(t *testing.T) {
	d := New("https://example.com/a", "A", "content", nil, nil)
	assert.Equal(t, d.ID, d.Metadata.ID)
	assert.Equal(t, "https://example.com/a", d.Metadata.URL)
}

func TestEqualByIDOnly(t *testing.T) {
	a := New("https://example.com/a", "A", "content a", nil, nil)
	b := a
	b.Content = "completely different"
	assert.True(t, a.Equal(b))

	c := New("https://example.com/a", "A", "content a", nil, nil)
	assert.False(t, a.Equal(c))
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	d := New("https://example.com/page", "Pagé <Title>", "# Heading\n\ncode: `a < b && c > d`\n", []string{"https://example.com/child"}, map[string]any{"excerpt": "short"})
	d.AddSummary("a summary").AddQualityScore(0.73)

	require.NoError(t, d.Write(dir, true))

	got, err := FromFile(filepath.Join(dir, d.ID+".json"))
	require.NoError(t, err)

	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, d.Metadata, got.Metadata)
	assert.Equal(t, d.Content, got.Content)
	require.NotNil(t, got.Summary)
	assert.Equal(t, "a summary", *got.Summary)
	require.NotNil(t, got.ContentQualityScore)
	assert.InDelta(t, 0.73, *got.ContentQualityScore, 1e-9)
	assert.Equal(t, d.ChildURLs, got.ChildURLs)

	txt, err := os.ReadFile(filepath.Join(dir, d.ID+".txt"))
	require.NoError(t, err)
	assert.Equal(t, d.Content, string(txt))
}

func TestMarshalPrettyFormat(t *testing.T) {
	d := New("https://example.com", "T", "a < b & c > d, caffè", nil, nil)

	data, err := d.MarshalPretty()
	require.NoError(t, err)
	s := string(data)

	// 4-space indent, no HTML escaping, non-ASCII preserved
	assert.Contains(t, s, "\n    \"id\"")
	assert.Contains(t, s, "a < b & c > d")
	assert.Contains(t, s, "caffè")
	assert.NotContains(t, s, `\u003c`)
}

func TestUnsetFieldsPersistAsNull(t *testing.T) {
	d := New("https://example.com", "T", "content", nil, nil)

	data, err := d.MarshalPretty()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"summary": null`)
	assert.Contains(t, string(data), `"content_quality_score": null`)
}

func TestReadDir(t *testing.T) {
	dir := t.TempDir()

	a := New("https://example.com/a", "A", "content a", nil, nil)
	b := New("https://example.com/b", "B", "content b", nil, nil)
	require.NoError(t, a.Write(dir, false))
	require.NoError(t, b.Write(dir, true)) // .txt sibling must be ignored

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("skip me"), 0o640))

	docs, err := ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	ids := map[string]bool{docs[0].ID: true, docs[1].ID: true}
	assert.True(t, ids[a.ID])
	assert.True(t, ids[b.ID])
}

func TestFromFileErrors(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o640))
	_, err = FromFile(path)
	assert.Error(t, err)
}
