package crawler

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// sitemapPath is where the documentation site publishes its page list.
const sitemapPath = "/sitemap-pages.xml"

// urlSet mirrors the <urlset> element of the sitemap protocol.
type urlSet struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// Sitemap fetches the sitemap under urlPrefix and returns all page URLs.
func Sitemap(ctx context.Context, client *http.Client, urlPrefix string) ([]string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	sitemapURL := strings.TrimRight(urlPrefix, "/") + sitemapPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building sitemap request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching sitemap %s: %w", sitemapURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching sitemap %s: unexpected status %d", sitemapURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading sitemap body: %w", err)
	}

	var set urlSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("parsing sitemap XML: %w", err)
	}

	urls := make([]string, 0, len(set.URLs))
	for _, u := range set.URLs {
		loc := strings.TrimSpace(u.Loc)
		if loc != "" {
			urls = append(urls, loc)
		}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("sitemap %s contains no URLs", sitemapURL)
	}
	return urls, nil
}
