// Package cmd contains the docsupport CLI commands.
//
// The offline pipeline runs as three stages (crawl, etl, index) so each
// stage can be re-run independently; ask answers one question from the
// terminal and bot serves the Slack Socket Mode integration.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/docsupport/docsupport/internal/log"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "docsupport",
	Short: "Documentation support agent and its RAG pipeline",
	Long: `docsupport crawls a documentation site, builds a hybrid-search
knowledge base in MongoDB and answers questions about it, either
one-shot from the terminal or as a Slack bot.

Typical flow:

  docsupport crawl    # sitemap discovery + page extraction to disk
  docsupport etl      # summarize crawled pages and load the raw collection
  docsupport index    # chunk, embed and build the search indexes
  docsupport ask "how do I configure a stack?"
  docsupport bot      # Slack Socket Mode`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// newLogger builds the process logger. Commands create it once and hand
// it down; packages never construct their own.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}
