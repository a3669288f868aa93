package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/vrcreator/internal/messenger"
	"github.com/gosuda/vrcreator/internal/notify"
)

// --- mocks ---

type mockMessenger struct {
	mu       sync.Mutex
	platform string
	sendErr  error
	sent     []string
	updates  map[messenger.MessageID]string
	replies  map[messenger.MessageID][]string
}

func newMockMessenger(platform string) *mockMessenger {
	return &mockMessenger{
		platform: platform,
		updates:  make(map[messenger.MessageID]string),
		replies:  make(map[messenger.MessageID][]string),
	}
}

func (m *mockMessenger) SendMessage(_ context.Context, channel, text string) (messenger.MessageID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.sent = append(m.sent, text)
	return messenger.MessageID(channel + "/" + m.platform), nil
}

func (m *mockMessenger) ReplyInThread(_ context.Context, _ string, parent messenger.MessageID, text string) (messenger.MessageID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[parent] = append(m.replies[parent], text)
	return parent + "/reply", nil
}

func (m *mockMessenger) UpdateMessage(_ context.Context, _ string, id messenger.MessageID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates[id] = text
	return nil
}

func (m *mockMessenger) Platform() string { return m.platform }

// --- Notify tests ---

func TestNotify(t *testing.T) {
	t.Parallel()

	t.Run("no targets logs and succeeds", func(t *testing.T) {
		t.Parallel()

		n := notify.New()
		assert.False(t, n.Enabled())

		r, err := n.Notify(t.Context(), "hello")
		require.NoError(t, err)
		assert.Zero(t, r.Len())
		require.NoError(t, n.Update(t.Context(), r, "updated"))
		require.NoError(t, n.Reply(t.Context(), r, "reply"))
	})

	t.Run("incomplete targets are skipped", func(t *testing.T) {
		t.Parallel()

		n := notify.New(
			notify.Target{Messenger: nil, Channel: "C1"},
			notify.Target{Messenger: newMockMessenger("slack"), Channel: ""},
		)
		assert.False(t, n.Enabled())
	})

	t.Run("sends to every target", func(t *testing.T) {
		t.Parallel()

		a, b := newMockMessenger("slack"), newMockMessenger("slack")
		n := notify.New(notify.Target{Messenger: a, Channel: "C1"}, notify.Target{Messenger: b, Channel: "C2"})

		r, err := n.Notify(t.Context(), "session started")
		require.NoError(t, err)
		assert.Equal(t, 2, r.Len())
		assert.Equal(t, []string{"session started"}, a.sent)
		assert.Equal(t, []string{"session started"}, b.sent)
	})

	t.Run("partial failure still succeeds", func(t *testing.T) {
		t.Parallel()

		bad := newMockMessenger("slack")
		bad.sendErr = errors.New("channel_not_found")
		good := newMockMessenger("slack")
		n := notify.New(notify.Target{Messenger: bad, Channel: "C1"}, notify.Target{Messenger: good, Channel: "C2"})

		r, err := n.Notify(t.Context(), "hi")
		require.NoError(t, err)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("all targets failing returns error", func(t *testing.T) {
		t.Parallel()

		bad := newMockMessenger("slack")
		bad.sendErr = errors.New("invalid_auth")
		n := notify.New(notify.Target{Messenger: bad, Channel: "C1"})

		_, err := n.Notify(t.Context(), "hi")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "all targets failed")
		assert.Contains(t, err.Error(), "invalid_auth")
	})
}

func TestUpdateAndReply(t *testing.T) {
	t.Parallel()

	m := newMockMessenger("slack")
	n := notify.New(notify.Target{Messenger: m, Channel: "C1"})

	r, err := n.Notify(t.Context(), "running")
	require.NoError(t, err)

	require.NoError(t, n.Update(t.Context(), r, "completed"))
	require.NoError(t, n.Reply(t.Context(), r, "write_file failed"))

	id := messenger.MessageID("C1/slack")
	assert.Equal(t, "completed", m.updates[id])
	assert.Equal(t, []string{"write_file failed"}, m.replies[id])
}
