// Package ws is the event relay between the backend and browser clients.
// Clients connect over WebSocket or SSE; each gets its own ordered queue.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/vrcreator/internal/domain"
)

const writeTimeout = 10 * time.Second

// Backplane fans events out across processes. The Redis pub/sub store
// implements it.
type Backplane interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// InboundHandler receives client-to-backend events (prompt, interaction, eval).
type InboundHandler func(ctx context.Context, clientID string, e domain.Event)

// Options configures a Hub.
type Options struct {
	// ClientBuffer is the per-client queue length. A client whose queue is
	// full is disconnected instead of blocking the sender.
	ClientBuffer int
	// MaxClients caps concurrent connections; zero means unlimited.
	MaxClients int
	// OriginPatterns is passed to websocket.Accept.
	OriginPatterns []string
	// Backplane and Channel enable cross-process delivery.
	Backplane Backplane
	Channel   string
	// State hands the current scene to fn for the scene_state handshake. It
	// must hold back scene deltas until fn returns, so that a client sees
	// every change after the state exactly once.
	State func(fn func(state any))
	// Inbound handles client-originated events. Nil ignores them.
	Inbound InboundHandler
}

type client struct {
	id   string
	kind string
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// envelope is the backplane wire format; Origin lets a process skip its own
// messages.
type envelope struct {
	Origin string          `json:"origin"`
	Event  json.RawMessage `json:"event"`
}

// Hub is the relay. Broadcast never blocks on a client.
type Hub struct {
	opts   Options
	origin string

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a relay hub.
func NewHub(opts Options) *Hub {
	if opts.ClientBuffer <= 0 {
		opts.ClientBuffer = 256
	}
	return &Hub{
		opts:    opts,
		origin:  uuid.NewString(),
		clients: make(map[*client]struct{}),
	}
}

// Broadcast sends e to every local client and, when a backplane is set, to
// other processes. Events sent while no client is connected are dropped.
func (h *Hub) Broadcast(e domain.Event) {
	if e.Timestamp == 0 {
		e.Timestamp = domain.Now()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Str("action", string(e.Action)).Msg("ws.Hub.Broadcast: marshal")
		return
	}
	h.deliver(payload)

	if h.opts.Backplane == nil {
		return
	}
	env, err := json.Marshal(envelope{Origin: h.origin, Event: payload})
	if err != nil {
		log.Error().Err(err).Msg("ws.Hub.Broadcast: marshal envelope")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := h.opts.Backplane.Publish(ctx, h.opts.Channel, env); err != nil {
		log.Warn().Err(err).Msg("ws.Hub.Broadcast: backplane publish")
	}
}

func (h *Hub) deliver(payload []byte) {
	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Warn().Str("client", c.id).Msg("ws.Hub: client too slow, disconnecting")
		h.unregister(c)
	}
}

// Run relays backplane events to local clients until ctx ends. Without a
// backplane it just waits for ctx.
func (h *Hub) Run(ctx context.Context) error {
	if h.opts.Backplane == nil {
		<-ctx.Done()
		return nil
	}
	messages, cleanup, err := h.opts.Backplane.Subscribe(ctx, h.opts.Channel)
	if err != nil {
		return fmt.Errorf("ws.Hub.Run: %w", err)
	}
	defer cleanup()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				log.Warn().Err(err).Msg("ws.Hub.Run: bad backplane message")
				continue
			}
			if env.Origin == h.origin {
				continue
			}
			h.deliver(env.Event)
		}
	}
}

// register queues the handshake and adds the client in one step, so the
// handshake always precedes broadcast traffic. With a State source the
// client is added while deltas are held back.
func (h *Hub) register(kind string) (*client, error) {
	c := &client{
		id:   uuid.NewString(),
		kind: kind,
		send: make(chan []byte, h.opts.ClientBuffer),
		done: make(chan struct{}),
	}

	hello := domain.NewEvent(domain.ActionConnected)
	hello.Message = c.id
	if h.opts.State == nil {
		if err := h.add(c, []domain.Event{hello}); err != nil {
			return nil, err
		}
		return c, nil
	}

	var err error
	h.opts.State(func(entities any) {
		state := domain.NewEvent(domain.ActionSceneState)
		state.Entities = entities
		err = h.add(c, []domain.Event{hello, state})
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (h *Hub) add(c *client, handshake []domain.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.opts.MaxClients > 0 && len(h.clients) >= h.opts.MaxClients {
		return fmt.Errorf("ws.Hub: client limit %d reached", h.opts.MaxClients)
	}
	for _, e := range handshake {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("ws.Hub: marshal handshake: %w", err)
		}
		select {
		case c.send <- data:
		default:
		}
	}
	h.clients[c] = struct{}{}
	log.Debug().Str("client", c.id).Str("kind", c.kind).Int("clients", len(h.clients)).Msg("ws.Hub: client connected")
	return nil
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
	if ok {
		log.Debug().Str("client", c.id).Msg("ws.Hub: client disconnected")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
}

// ---------------------------------------------------------------------------
// WebSocket
// ---------------------------------------------------------------------------

// ServeWS upgrades the request and relays events in both directions.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	c, err := h.register("ws")
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer h.unregister(c)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.opts.OriginPatterns})
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go h.readLoop(ctx, cancel, conn, c)

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case <-c.done:
			_ = conn.Close(websocket.StatusPolicyViolation, "client too slow")
			return
		case msg := <-c.send:
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			writeErr := conn.Write(wctx, websocket.MessageText, msg)
			wcancel()
			if writeErr != nil {
				log.Debug().Err(writeErr).Str("client", c.id).Msg("websocket write")
				return
			}
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, c *client) {
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var e domain.Event
		if err := json.Unmarshal(data, &e); err != nil {
			log.Debug().Err(err).Str("client", c.id).Msg("ws.Hub: ignoring malformed client message")
			continue
		}
		h.inbound(ctx, c, e)
	}
}

func (h *Hub) inbound(ctx context.Context, c *client, e domain.Event) {
	if e.Action == domain.ActionPing {
		return
	}
	if h.opts.Inbound == nil {
		return
	}
	h.opts.Inbound(ctx, c.id, e)
}

// ---------------------------------------------------------------------------
// Server-Sent Events
// ---------------------------------------------------------------------------

// ServeSSE streams events as text/event-stream for clients without WebSocket.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	c, err := h.register("sse")
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer h.unregister(c)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case msg := <-c.send:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// HandleInbound accepts a client event over plain HTTP, for SSE clients that
// have no upstream channel.
func (h *Hub) HandleInbound(ctx context.Context, clientID string, e domain.Event) {
	h.inbound(ctx, &client{id: clientID}, e)
}
