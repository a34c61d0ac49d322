package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/docsupport/docsupport/internal/config"
	"github.com/docsupport/docsupport/internal/crawler"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Discover pages via the sitemap and extract them to disk",
	Long: `crawl reads the site's sitemap, fetches every page under the
configured URL prefix, extracts readable content as markdown and writes
one document per page under <data_dir>/crawled.`,
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	urls, err := crawler.Sitemap(ctx, http.DefaultClient, cfg.CrawlURLPrefix)
	if err != nil {
		return fmt.Errorf("reading sitemap: %w", err)
	}
	logger.Info("sitemap read", "prefix", cfg.CrawlURLPrefix, "urls", len(urls))

	c, err := crawler.New(crawler.Config{
		MaxConcurrentRequests: cfg.MaxConcurrentRequests,
		Cooldown:              cfg.CrawlCooldown,
		Logger:                logger,
	})
	if err != nil {
		return fmt.Errorf("creating crawler: %w", err)
	}

	docs, err := c.Run(ctx, urls)
	if err != nil {
		return fmt.Errorf("crawling: %w", err)
	}
	docs = crawler.DedupeByURL(docs)

	dir := crawledDir(cfg)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	for _, doc := range docs {
		if err := doc.Write(dir, false); err != nil {
			return fmt.Errorf("writing document %s: %w", doc.Metadata.URL, err)
		}
	}

	logger.Info("crawl finished", "documents", len(docs), "dir", dir)
	return nil
}
