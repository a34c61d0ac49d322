// Package slackbot runs the Slack Socket Mode front-end for the support
// agent. It listens for app mentions, routes the stripped question to
// the agent, and replies in-thread.
package slackbot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/docsupport/docsupport/internal/log"
)

// Canned replies. The user always gets a response, even when the agent
// or Slack API misbehaves.
const (
	emptyQueryReply   = "Please provide a query after mentioning me."
	emptyAgentReply   = "Didn't got a response from agent"
	followupHint      = "\n\n💡 *Hint:* Mention <@%s> in the thread for followups."
	errorReplyPrefix  = "Sorry, got an error processing your request: "
	feedbackUpEmoji   = "thumbsup"
	feedbackDownEmoji = "thumbsdown"
)

// Responder answers a user's question. Satisfied by *agent.Agent.
type Responder interface {
	Execute(ctx context.Context, userID, query string) (string, error)
}

// API is the slice of the Slack Web API the bot uses.
// Satisfied by *slack.Client.
type API interface {
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	AddReactionContext(ctx context.Context, name string, item slack.ItemRef) error
}

// Config contains all required parameters for the bot.
type Config struct {
	// API is the Slack Web API client. Required.
	API API

	// Socket is the Socket Mode client. Required for Run; tests that
	// drive handleMention directly may leave it nil.
	Socket *socketmode.Client

	// Agent answers questions. Required.
	Agent Responder

	// Logger is required.
	Logger log.Logger
}

// Bot is the Socket Mode event loop.
type Bot struct {
	api       API
	socket    *socketmode.Client
	agent     Responder
	logger    log.Logger
	botUserID string
	mentionRe *regexp.Regexp

	wg sync.WaitGroup
}

// New creates a Bot, validating the configuration.
func New(cfg Config) (*Bot, error) {
	if cfg.API == nil {
		return nil, errors.New("slack API client is required")
	}
	if cfg.Agent == nil {
		return nil, errors.New("agent is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Bot{
		api:    cfg.API,
		socket: cfg.Socket,
		agent:  cfg.Agent,
		logger: cfg.Logger,
	}, nil
}

// Run connects to Slack and processes events until ctx is cancelled or
// the socket connection fails. In-flight mention handlers are drained
// before returning.
func (b *Bot) Run(ctx context.Context) error {
	if b.socket == nil {
		return errors.New("socket mode client is required")
	}

	auth, err := b.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	b.setBotUserID(auth.UserID)
	b.logger.Info("slack bot connected", "bot_user_id", auth.UserID)

	errCh := make(chan error, 1)
	go func() { errCh <- b.socket.RunContext(ctx) }()

	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("socket mode: %w", err)
			}
			return nil
		case evt := <-b.socket.Events:
			b.handleEvent(ctx, evt)
		}
	}
}

func (b *Bot) handleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		b.logger.Debug("connecting to slack")
	case socketmode.EventTypeConnected:
		b.logger.Info("connected to slack")
	case socketmode.EventTypeConnectionError:
		b.logger.Warn("slack connection error", "data", evt.Data)
	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			b.socket.Ack(*evt.Request)
		}
		mention, ok := apiEvent.InnerEvent.Data.(*slackevents.AppMentionEvent)
		if !ok {
			return
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.handleMention(ctx, mention)
		}()
	default:
	}
}

// handleMention answers one app mention. Every path posts a reply.
func (b *Bot) handleMention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	if ev.User == b.botUserID {
		return
	}
	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}
	b.logger.Info("received mention",
		"channel", ev.Channel,
		"user", ev.User,
		"text_len", len(ev.Text))

	query := b.stripMention(ev.Text)
	if query == "" {
		b.post(ctx, ev.Channel, threadTS, emptyQueryReply)
		return
	}

	answer, err := b.agent.Execute(ctx, ev.User, query)
	if err != nil {
		b.logger.Error("agent execution failed", "error", err)
		b.post(ctx, ev.Channel, threadTS, errorReplyPrefix+err.Error())
		return
	}
	if answer == "" {
		answer = emptyAgentReply
	}

	ts := b.post(ctx, ev.Channel, threadTS, answer+fmt.Sprintf(followupHint, b.botUserID))
	if ts == "" {
		return
	}
	// Feedback reactions on the answer; best-effort.
	item := slack.ItemRef{Channel: ev.Channel, Timestamp: ts}
	for _, emoji := range []string{feedbackUpEmoji, feedbackDownEmoji} {
		if err := b.api.AddReactionContext(ctx, emoji, item); err != nil {
			b.logger.Warn("adding reaction", "emoji", emoji, "error", err)
		}
	}
}

// post sends text to channel in-thread and returns the message
// timestamp, or empty string on failure.
func (b *Bot) post(ctx context.Context, channel, threadTS, text string) string {
	_, ts, err := b.api.PostMessageContext(ctx, channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(threadTS),
	)
	if err != nil {
		b.logger.Error("posting message", "channel", channel, "error", err)
		return ""
	}
	return ts
}

// setBotUserID records the bot identity and compiles the mention pattern.
func (b *Bot) setBotUserID(id string) {
	b.botUserID = id
	b.mentionRe = regexp.MustCompile(`<@` + regexp.QuoteMeta(id) + `>`)
}

var plainMentionRe = regexp.MustCompile(`@\S+`)

// stripMention removes the bot mention and any plain @mentions, then
// normalizes whitespace.
func (b *Bot) stripMention(text string) string {
	if b.mentionRe != nil {
		text = b.mentionRe.ReplaceAllString(text, "")
	}
	text = plainMentionRe.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}
