package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"github.com/spf13/cobra"

	"github.com/docsupport/docsupport/internal/config"
	"github.com/docsupport/docsupport/internal/genai"
	"github.com/docsupport/docsupport/internal/slackbot"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Slack Socket Mode bot",
	Long: `bot connects to Slack over Socket Mode and answers app mentions
with the documentation agent, threading replies and scoping memory to
the mentioning user. Runs until interrupted.`,
	RunE: runBot,
}

func init() {
	rootCmd.AddCommand(botCmd)
}

func runBot(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateAI(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if err := cfg.ValidateSlack(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

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

	api := slack.New(cfg.SlackBotToken, slack.OptionAppLevelToken(cfg.SlackAppToken))
	socket := socketmode.New(api)

	bot, err := slackbot.New(slackbot.Config{
		API:    api,
		Socket: socket,
		Agent:  ag,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("creating bot: %w", err)
	}

	logger.Info("starting Slack bot", "version", AppVersion)
	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("running bot: %w", err)
	}
	return nil
}
