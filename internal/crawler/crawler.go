// Package crawler fetches documentation pages and extracts their readable
// content as markdown documents.
//
// Fetching goes through a colly collector in async mode. The collector's
// limit rule is the admission gate: at most MaxConcurrentRequests pages are
// in flight, and each worker waits Cooldown between requests so the target
// site is never hammered. One failing page never aborts a crawl; failures
// are logged and counted, and the crawl returns whatever succeeded.
package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"strings"
	"sync"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"github.com/docsupport/docsupport/internal/document"
	"github.com/docsupport/docsupport/internal/log"
)

// DefaultCooldown is the pause each worker takes between requests.
const DefaultCooldown = 500 * time.Millisecond

// ErrEmptyContent indicates a page yielded no readable content.
var ErrEmptyContent = errors.New("no readable content")

// Config configures a Crawler.
type Config struct {
	// MaxConcurrentRequests caps pages in flight. Required, >= 1.
	MaxConcurrentRequests int

	// Cooldown is the per-worker pause between requests.
	// Default: DefaultCooldown.
	Cooldown time.Duration

	// UserAgent overrides the request user agent.
	UserAgent string

	// Logger is required.
	Logger log.Logger
}

// Crawler fetches pages concurrently and converts them to documents.
type Crawler struct {
	maxConcurrent int
	cooldown      time.Duration
	userAgent     string
	converter     *md.Converter
	logger        log.Logger
}

// New creates a Crawler, validating the configuration.
func New(cfg Config) (*Crawler, error) {
	if cfg.MaxConcurrentRequests < 1 {
		return nil, fmt.Errorf("max concurrent requests must be >= 1, got %d", cfg.MaxConcurrentRequests)
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	cooldown := cfg.Cooldown
	if cooldown == 0 {
		cooldown = DefaultCooldown
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "docsupport-crawler/1.0"
	}

	return &Crawler{
		maxConcurrent: cfg.MaxConcurrentRequests,
		cooldown:      cooldown,
		userAgent:     userAgent,
		converter:     md.NewConverter("", true, nil),
		logger:        cfg.Logger,
	}, nil
}

// Run crawls all URLs and returns the successfully extracted documents.
// Failed pages are skipped with a warning; Run errors only on setup
// problems or a cancelled context, never because individual pages failed.
// The returned slice may contain duplicates if urls does; callers dedupe
// with DedupeByURL.
func (c *Crawler) Run(ctx context.Context, urls []string) ([]document.Document, error) {
	started := time.Now()
	var memBefore runtime.MemStats
	runtime.ReadMemStats(&memBefore)
	c.logger.Info("starting crawl", "urls", len(urls), "max_concurrent", c.maxConcurrent)

	collector := colly.NewCollector(
		colly.Async(true),
		colly.UserAgent(c.userAgent),
	)
	err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: c.maxConcurrent,
		Delay:       c.cooldown,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring crawl limits: %w", err)
	}

	var (
		mu     sync.Mutex
		docs   []document.Document
		failed int
	)

	collector.OnResponse(func(r *colly.Response) {
		pageURL := r.Request.URL.String()
		doc, err := c.extract(pageURL, r.Body)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			c.logger.Warn("skipping page", "url", pageURL, "error", err)
			failed++
			return
		}
		docs = append(docs, doc)
		c.logger.Debug("crawled page", "url", pageURL, "content_length", len(doc.Content))
	})

	collector.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		c.logger.Warn("request failed", "url", r.Request.URL.String(), "error", err)
		failed++
	})

	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			collector.Wait()
			return nil, fmt.Errorf("crawl cancelled: %w", err)
		}
		if err := collector.Visit(u); err != nil {
			mu.Lock()
			c.logger.Warn("skipping URL", "url", u, "error", err)
			failed++
			mu.Unlock()
		}
	}
	collector.Wait()

	var memAfter runtime.MemStats
	runtime.ReadMemStats(&memAfter)
	c.logger.Info("crawl finished",
		"crawled", len(docs),
		"failed", failed,
		"duration", time.Since(started),
		"heap_delta_mb", int64(memAfter.HeapAlloc-memBefore.HeapAlloc)/(1<<20))
	return docs, nil
}

// extract turns a fetched HTML page into a markdown document.
func (c *Crawler) extract(pageURL string, body []byte) (document.Document, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return document.Document{}, fmt.Errorf("parsing URL %s: %w", pageURL, err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return document.Document{}, fmt.Errorf("extracting article from %s: %w", pageURL, err)
	}

	content, err := c.converter.ConvertString(article.Content)
	if err != nil {
		return document.Document{}, fmt.Errorf("converting %s to markdown: %w", pageURL, err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return document.Document{}, fmt.Errorf("%w: %s", ErrEmptyContent, pageURL)
	}

	links, err := extractLinks(body, parsed)
	if err != nil {
		return document.Document{}, fmt.Errorf("extracting links from %s: %w", pageURL, err)
	}

	properties := map[string]any{
		"excerpt":   article.Excerpt,
		"site_name": article.SiteName,
	}

	doc := document.New(pageURL, article.Title, content, links, properties)
	doc.AddQualityScore(qualityScore(article.TextContent, content))
	return doc, nil
}

// extractLinks collects absolute child URLs from all anchors on the page.
func extractLinks(body []byte, base *url.URL) ([]string, error) {
	page, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	seen := make(map[string]bool)
	var links []string
	page.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""
		u := abs.String()
		if !seen[u] {
			seen[u] = true
			links = append(links, u)
		}
	})
	return links, nil
}

// qualityScore estimates how substantive a page is, in [0, 1].
// Longer extracted text and a high markdown-to-text ratio score higher.
func qualityScore(text, markdown string) float64 {
	score := 0.0
	textLength := len(strings.TrimSpace(text))
	if textLength > 500 {
		score += 0.4
	}
	if textLength > 2000 {
		score += 0.2
	}
	if strings.Contains(markdown, "#") {
		score += 0.2
	}
	if strings.Count(markdown, "\n\n") > 3 {
		score += 0.2
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// DedupeByURL drops documents whose URL was already seen, keeping the
// first occurrence. Crawl order is otherwise preserved.
func DedupeByURL(docs []document.Document) []document.Document {
	seen := make(map[string]bool, len(docs))
	out := make([]document.Document, 0, len(docs))
	for _, d := range docs {
		if seen[d.Metadata.URL] {
			continue
		}
		seen[d.Metadata.URL] = true
		out = append(out, d)
	}
	return out
}
