package messenger

import "context"

// MessageID uniquely identifies a message within a messenger platform.
type MessageID string

// Messenger abstracts posting status messages to a chat platform.
type Messenger interface {
	// SendMessage posts a text message to a channel and returns its platform message ID.
	SendMessage(ctx context.Context, channelID, text string) (MessageID, error)

	// ReplyInThread posts text under a parent message.
	ReplyInThread(ctx context.Context, channelID string, parentID MessageID, text string) (MessageID, error)

	// UpdateMessage edits an existing message in a channel.
	UpdateMessage(ctx context.Context, channelID string, messageID MessageID, text string) error

	// Platform returns the messenger platform identifier (e.g. "slack").
	Platform() string
}
