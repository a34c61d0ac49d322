package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docsupport/docsupport/internal/config"
	"github.com/docsupport/docsupport/internal/genai"
	"github.com/docsupport/docsupport/internal/memory"
)

var askUserID string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the documentation agent one question",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askUserID, "user", memory.DefaultUserID,
		"user identity scoping the agent's memory")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateAI(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	provider, err := genai.Init(ctx, genai.Config{
		APIKey:         cfg.OpenAIAPIKey,
		EmbeddingModel: cfg.EmbeddingModel,
	})
	if err != nil {
		return fmt.Errorf("initializing model provider: %w", err)
	}

	client, disconnect, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer disconnect()

	ag, err := buildAgent(ctx, cfg, client, provider, logger)
	if err != nil {
		return err
	}

	question := strings.Join(args, " ")
	answer, err := ag.Execute(ctx, askUserID, question)
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}

	fmt.Println(answer)
	return nil
}
