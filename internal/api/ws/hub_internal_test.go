package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/vrcreator/internal/domain"
)

func TestHub_SlowClientIsDroppedWithoutBlocking(t *testing.T) {
	t.Parallel()

	h := NewHub(Options{ClientBuffer: 1})
	slow, err := h.register("test") // the handshake fills its queue
	require.NoError(t, err)
	fast, err := h.register("test")
	require.NoError(t, err)
	<-fast.send

	h.Broadcast(domain.AgentThinkingEvent("one"))

	assert.Equal(t, 1, h.ClientCount())
	select {
	case <-slow.done:
	default:
		t.Fatal("slow client was not disconnected")
	}
	assert.Len(t, fast.send, 1, "other clients still receive the event")
}

func TestHub_CloseDisconnectsAll(t *testing.T) {
	t.Parallel()

	h := NewHub(Options{})
	c, err := h.register("test")
	require.NoError(t, err)

	h.Close()
	assert.Zero(t, h.ClientCount())
	_, open := <-c.done
	assert.False(t, open)
}
