package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsupport/docsupport/internal/document"
	"github.com/docsupport/docsupport/internal/log"
)

// testPage renders an article long enough for content extraction to keep it.
func testPage(title string, links ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body><article><h1>%s</h1>", title, title)
	for range 6 {
		b.WriteString("<p>This section explains how the documentation pipeline works in detail, " +
			"covering configuration, orchestration and the supporting infrastructure that " +
			"keeps everything running smoothly across environments.</p>")
	}
	for _, l := range links {
		fmt.Fprintf(&b, `<p><a href="%s">related page</a></p>`, l)
	}
	b.WriteString("</article></body></html>")
	return b.String()
}

func newTestCrawler(t *testing.T) *Crawler {
	t.Helper()
	c, err := New(Config{
		MaxConcurrentRequests: 4,
		Cooldown:              time.Millisecond,
		Logger:                log.NewNop(),
	})
	require.NoError(t, err)
	return c
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{MaxConcurrentRequests: 0, Logger: log.NewNop()})
	assert.Error(t, err)

	_, err = New(Config{MaxConcurrentRequests: 1})
	assert.Error(t, err)
}

func TestRunCrawlsPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, testPage("Page A", "/b", "https://external.example.com/doc"))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, testPage("Page B"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestCrawler(t)
	docs, err := c.Run(context.Background(), []string{srv.URL + "/a", srv.URL + "/b"})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	byURL := make(map[string]document.Document)
	for _, d := range docs {
		byURL[d.Metadata.URL] = d
	}

	a, ok := byURL[srv.URL+"/a"]
	require.True(t, ok)
	assert.Len(t, a.ID, 32)
	assert.Equal(t, a.ID, a.Metadata.ID)
	assert.Contains(t, a.Content, "documentation pipeline")
	assert.Contains(t, a.ChildURLs, srv.URL+"/b")
	assert.Contains(t, a.ChildURLs, "https://external.example.com/doc")
	require.NotNil(t, a.ContentQualityScore)
	assert.Greater(t, *a.ContentQualityScore, 0.0)
}

func TestRunToleratesFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/good", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, testPage("Good"))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestCrawler(t)
	docs, err := c.Run(context.Background(), []string{
		srv.URL + "/good",
		srv.URL + "/broken",
		srv.URL + "/missing",
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, srv.URL+"/good", docs[0].Metadata.URL)
}

func TestRunAllFailures(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := newTestCrawler(t)
	docs, err := c.Run(context.Background(), []string{srv.URL + "/x", srv.URL + "/y"})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestCrawler(t)
	_, err := c.Run(ctx, []string{"http://127.0.0.1:1/never"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDedupeByURL(t *testing.T) {
	first := document.New("https://example.com/a", "A", "first crawl", nil, nil)
	dup := document.New("https://example.com/a", "A", "second crawl", nil, nil)
	other := document.New("https://example.com/b", "B", "other", nil, nil)

	out := DedupeByURL([]document.Document{first, dup, other})
	require.Len(t, out, 2)
	assert.Equal(t, first.ID, out[0].ID, "first occurrence wins")
	assert.Equal(t, other.ID, out[1].ID)
}

func TestDedupeByURLEmpty(t *testing.T) {
	assert.Empty(t, DedupeByURL(nil))
}
