package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"dating-platform/pkg/logger"
)

// Publisher is what the signaling layer needs from presence.
type Publisher interface {
	// SendToUser delivers to every connection of userID and reports whether any existed.
	SendToUser(userID string, ev Event) bool
	IsOnline(userID string) bool
}

// Dispatcher receives inbound frames and the disconnect of a user's last connection.
type Dispatcher interface {
	HandleEvent(ctx context.Context, userID string, in Inbound)
	HandleDisconnect(ctx context.Context, userID string)
}

// Hub maps user ids to their live connections.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}

	seq atomic.Int64

	dispatchMu sync.RWMutex
	dispatcher Dispatcher

	log *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		log:     logger.OrDefault(log),
	}
}

// SetDispatcher wires the inbound side. Frames arriving before this are dropped.
func (h *Hub) SetDispatcher(d Dispatcher) {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()
	h.dispatcher = d
}

func (h *Hub) getDispatcher() Dispatcher {
	h.dispatchMu.RLock()
	defer h.dispatchMu.RUnlock()
	return h.dispatcher
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.log.Debug("ws client connected", "user_id", c.userID, "connections", len(set))
}

// unregister removes c and closes its send channel. It reports whether c was
// the user's last connection. Safe to call more than once.
func (h *Hub) unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return false
	}
	if _, exists := set[c]; !exists {
		return false
	}
	delete(set, c)
	c.closeSend()
	if len(set) == 0 {
		delete(h.clients, c.userID)
		h.log.Debug("ws user fully disconnected", "user_id", c.userID)
		return true
	}
	h.log.Debug("ws client disconnected", "user_id", c.userID, "remaining", len(set))
	return false
}

// disconnect unregisters c and tells the dispatcher when the user went fully offline.
func (h *Hub) disconnect(c *Client) {
	if !h.unregister(c) {
		return
	}
	if d := h.getDispatcher(); d != nil {
		d.HandleDisconnect(context.Background(), c.userID)
	}
}

// drop disconnects a client the server gave up on.
func (h *Hub) drop(c *Client) {
	h.disconnect(c)
	_ = c.conn.Close()
}

func (h *Hub) SendToUser(userID string, ev Event) bool {
	ev.Seq = h.seq.Add(1)
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("ws marshal failed", "op", ev.Op, "err", err)
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := false
	for c := range h.clients[userID] {
		if c.enqueue(data) {
			delivered = true
			continue
		}
		// Buffer full: this client is too slow, drop it. Closing the socket ends its ReadPump.
		h.log.Warn("ws send buffer full, dropping connection", "user_id", userID)
		go h.drop(c)
	}
	return delivered
}

func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// OnlineCount returns the number of users with at least one connection.
func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every connection without dispatching disconnects.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for c := range set {
			c.closeSend()
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.log.Info("ws hub shut down")
}
