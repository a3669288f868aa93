package slack

import (
	"context"
	"fmt"

	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/vrcreator/internal/messenger"
)

// SlackAPI abstracts the subset of the Slack client used by SlackMessenger.
// This allows testing without real HTTP calls.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slacklib.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slacklib.MsgOption) (string, string, string, error)
}

// SlackMessenger implements messenger.Messenger for Slack.
type SlackMessenger struct {
	api SlackAPI
}

// Compile-time interface check.
var _ messenger.Messenger = (*SlackMessenger)(nil) //nolint:gochecknoglobals // compile-time check

// NewSlackMessenger creates a SlackMessenger with the given API client.
func NewSlackMessenger(api SlackAPI) *SlackMessenger {
	return &SlackMessenger{api: api}
}

// New creates a SlackMessenger backed by a real Slack client.
func New(botToken string) *SlackMessenger {
	return NewSlackMessenger(slacklib.New(botToken))
}

func options(text string) []slacklib.MsgOption {
	return []slacklib.MsgOption{
		slacklib.MsgOptionText(text, false),
		slacklib.MsgOptionBlocks(textBlocks(text)...),
	}
}

// SendMessage posts a message to a Slack channel and returns the message timestamp as MessageID.
func (m *SlackMessenger) SendMessage(ctx context.Context, channelID, text string) (messenger.MessageID, error) {
	_, ts, err := m.api.PostMessageContext(ctx, channelID, options(text)...)
	if err != nil {
		return "", fmt.Errorf("slack.SlackMessenger.SendMessage: %w", err)
	}

	return messenger.MessageID(ts), nil
}

// ReplyInThread posts a threaded reply under a parent message.
func (m *SlackMessenger) ReplyInThread(ctx context.Context, channelID string, parentID messenger.MessageID, text string) (messenger.MessageID, error) {
	opts := append(options(text), slacklib.MsgOptionTS(string(parentID)))
	_, ts, err := m.api.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return "", fmt.Errorf("slack.SlackMessenger.ReplyInThread: %w", err)
	}

	return messenger.MessageID(ts), nil
}

// UpdateMessage edits an existing Slack message.
func (m *SlackMessenger) UpdateMessage(ctx context.Context, channelID string, messageID messenger.MessageID, text string) error {
	_, _, _, err := m.api.UpdateMessageContext(ctx, channelID, string(messageID), options(text)...)
	if err != nil {
		return fmt.Errorf("slack.SlackMessenger.UpdateMessage: %w", err)
	}

	return nil
}

// Platform returns the messenger platform identifier.
func (m *SlackMessenger) Platform() string {
	return "slack"
}
