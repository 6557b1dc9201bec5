package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long we wait for a heartbeat before treating the client as gone.
	pongWait = 90 * time.Second

	// WebRTC SDP offers can be several KB.
	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

// Client is one socket connection of one user.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte

	mu sync.Mutex // guards conn writes

	sendMu sync.Mutex // guards send and closed
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
	}
}

// enqueue is non-blocking; false means the buffer is full or the client is closed.
func (c *Client) enqueue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend ends WritePump. Safe to call more than once.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) isClosed() bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.closed
}

// ReadPump reads frames until the connection fails, dispatching them in order.
// It blocks; on return the client is unregistered.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.disconnect(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.hub.log.Warn("ws set read deadline failed", "user_id", c.userID, "err", err)
		return
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Info("ws unexpected close", "user_id", c.userID, "err", err)
			}
			return
		}

		var in Inbound
		if err := json.Unmarshal(raw, &in); err != nil || in.Op == "" {
			c.hub.log.Debug("ws invalid frame", "user_id", c.userID, "err", err)
			continue
		}
		c.handle(ctx, in)
	}
}

func (c *Client) handle(ctx context.Context, in Inbound) {
	// A dropped client may still have frames in flight; its calls are already handled as a disconnect.
	if c.isClosed() {
		return
	}
	if in.Op == OpHeartbeat {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.hub.log.Warn("ws set read deadline failed", "user_id", c.userID, "err", err)
			return
		}
		data, _ := json.Marshal(Event{Op: OpHeartbeatAck})
		c.enqueue(data)
		return
	}
	if d := c.hub.getDispatcher(); d != nil {
		d.HandleEvent(ctx, c.userID, in)
	}
}

// WritePump drains the send channel to the socket until it is closed.
func (c *Client) WritePump() {
	defer func() { _ = c.conn.Close() }()

	for message := range c.send {
		if err := c.writeMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.writeMessage(websocket.CloseMessage, nil)
}

func (c *Client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
