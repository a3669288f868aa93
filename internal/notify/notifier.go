package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/vrcreator/internal/messenger"
)

// Target is a messenger channel that receives notifications.
type Target struct {
	Messenger messenger.Messenger
	Channel   string
}

// Receipt records where a notification landed so it can be edited or
// replied to later. The zero Receipt is valid and refers to nothing.
type Receipt struct {
	sent []sentMessage
}

type sentMessage struct {
	target Target
	id     messenger.MessageID
}

// Len returns how many targets accepted the notification.
func (r Receipt) Len() int { return len(r.sent) }

// Notifier posts status messages to every configured target. With no targets
// it only logs.
type Notifier struct {
	targets []Target
}

// New creates a Notifier. Targets with a nil messenger or empty channel are skipped.
func New(targets ...Target) *Notifier {
	n := &Notifier{}
	for _, t := range targets {
		if t.Messenger == nil || t.Channel == "" {
			continue
		}
		n.targets = append(n.targets, t)
	}
	return n
}

// Enabled reports whether any chat target is configured.
func (n *Notifier) Enabled() bool { return n != nil && len(n.targets) > 0 }

// Notify sends text to all targets. It fails only if every target fails;
// partial failures are logged.
func (n *Notifier) Notify(ctx context.Context, text string) (Receipt, error) {
	if !n.Enabled() {
		log.Info().Str("message", text).Msg("notify: no targets configured")
		return Receipt{}, nil
	}

	var r Receipt
	var errs []error
	for _, t := range n.targets {
		id, err := t.Messenger.SendMessage(ctx, t.Channel, text)
		if err != nil {
			log.Warn().Err(err).Str("platform", t.Messenger.Platform()).Str("channel", t.Channel).Msg("notify.Notifier.Notify: send failed")
			errs = append(errs, err)
			continue
		}
		r.sent = append(r.sent, sentMessage{target: t, id: id})
	}

	if len(r.sent) == 0 {
		return r, fmt.Errorf("notify.Notifier.Notify: all targets failed: %w", errors.Join(errs...))
	}
	return r, nil
}

// Update edits every message in r.
func (n *Notifier) Update(ctx context.Context, r Receipt, text string) error {
	if len(r.sent) == 0 {
		log.Info().Str("message", text).Msg("notify: update")
		return nil
	}
	var errs []error
	for _, s := range r.sent {
		if err := s.target.Messenger.UpdateMessage(ctx, s.target.Channel, s.id, text); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify.Notifier.Update: %w", err)
	}
	return nil
}

// Reply posts text in the thread of every message in r.
func (n *Notifier) Reply(ctx context.Context, r Receipt, text string) error {
	if len(r.sent) == 0 {
		log.Info().Str("message", text).Msg("notify: reply")
		return nil
	}
	var errs []error
	for _, s := range r.sent {
		if _, err := s.target.Messenger.ReplyInThread(ctx, s.target.Channel, s.id, text); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify.Notifier.Reply: %w", err)
	}
	return nil
}
