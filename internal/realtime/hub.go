package realtime

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"coworking/internal/domain"
	"coworking/internal/metrics"
)

const sendBuffer = 256

// Client is one subscriber connection. Its outgoing queue is FIFO; when it
// fills up the hub drops the client instead of skipping messages, so a
// client never silently misses a slot's history.
type Client struct {
	userID   int64
	send     chan []byte
	channels map[domain.ChannelKey]struct{}
	// events for channels still waiting on their snapshot
	syncing map[domain.ChannelKey][][]byte
	closed  bool
}

func (c *Client) UserID() int64 { return c.userID }

// Messages is closed when the hub drops or unregisters the client.
func (c *Client) Messages() <-chan []byte { return c.send }

// Hub fans out slot events to subscribers of a (space_id, date) channel.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	subs    map[domain.ChannelKey]map[*Client]struct{}
	log     zerolog.Logger
	buffer  int
}

type HubOption func(*Hub)

func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

func NewHub(log zerolog.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		clients: make(map[*Client]struct{}),
		subs:    make(map[domain.ChannelKey]map[*Client]struct{}),
		log:     log.With().Str("component", "hub").Logger(),
		buffer:  sendBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Register(userID int64) *Client {
	c := &Client{
		userID:   userID,
		send:     make(chan []byte, h.buffer),
		channels: make(map[domain.ChannelKey]struct{}),
		syncing:  make(map[domain.ChannelKey][][]byte),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.AddConnections(1)
	return c
}

// Unregister removes the client from every channel and closes its queue.
// Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	for key := range c.channels {
		if set := h.subs[key]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.subs, key)
			}
		}
	}
	delete(h.clients, c)
	close(c.send)
	metrics.AddConnections(-1)
}

// Subscribe adds c to key. Events for key are held back until Synced
// delivers the snapshot, so the client never applies a delta older than
// its snapshot. It returns false if c was already dropped.
func (h *Hub) Subscribe(c *Client, key domain.ChannelKey) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return false
	}
	set := h.subs[key]
	if set == nil {
		set = make(map[*Client]struct{})
		h.subs[key] = set
	}
	set[c] = struct{}{}
	c.channels[key] = struct{}{}
	c.syncing[key] = nil
	return true
}

// Synced queues the subscribe snapshot followed by anything published
// for key in the meantime.
func (h *Hub) Synced(c *Client, key domain.ChannelKey, snapshot Message) bool {
	data, err := encode(snapshot)
	if err != nil {
		h.log.Error().Err(err).Msg("encode snapshot")
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	pending, ok := c.syncing[key]
	if !ok {
		return false
	}
	delete(c.syncing, key)
	if !h.enqueueLocked(c, data) {
		return false
	}
	for _, p := range pending {
		if !h.enqueueLocked(c, p) {
			return false
		}
	}
	return true
}

func (h *Hub) Unsubscribe(c *Client, key domain.ChannelKey) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(c.channels, key)
	delete(c.syncing, key)
	if set := h.subs[key]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, key)
		}
	}
}

func (h *Hub) Subscribers(key domain.ChannelKey) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key])
}

// Send queues a direct message for one client, e.g. a subscribe snapshot.
func (h *Hub) Send(c *Client, m Message) bool {
	data, err := encode(m)
	if err != nil {
		h.log.Error().Err(err).Str("type", m.Type).Msg("encode message")
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enqueueLocked(c, data)
}

// Publish delivers ev to every subscriber of its channel, rendered per
// user. Queues are filled synchronously, so events published in order by
// one caller are received in that order.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	base, err := encode(Render(ev, 0))
	if err != nil {
		return err
	}
	personal := make(map[int64][]byte)
	for id := range holders(ev) {
		if personal[id], err = encode(Render(ev, id)); err != nil {
			return err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.subs[ev.Channel] {
		data := base
		if p, ok := personal[c.userID]; ok {
			data = p
		}
		if pending, ok := c.syncing[ev.Channel]; ok {
			c.syncing[ev.Channel] = append(pending, data)
			continue
		}
		h.enqueueLocked(c, data)
	}
	metrics.IncBroadcast(ev.Type)
	return nil
}

func (h *Hub) enqueueLocked(c *Client, data []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		h.log.Warn().Int64("user_id", c.userID).Msg("subscriber too slow, disconnecting")
		metrics.IncSlowSubscriber()
		h.removeLocked(c)
		return false
	}
}

// Close drops every client; their write pumps send a close frame and exit.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}
