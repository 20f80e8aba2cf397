package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/oklog/ulid/v2"
)

// sendBuffer is the per-connection outbound queue depth. A slow reader that
// falls this far behind starts losing events rather than blocking the relay.
const sendBuffer = 32

// wsConn abstracts the websocket so the router can be tested with an
// in-memory double.
type wsConn interface {
	Write(ctx context.Context, typ websocket.MessageType, data []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// conn is one connected client channel. Outbound envelopes go through a
// buffered queue drained by a single write pump, keeping websocket writes
// serialized.
type conn struct {
	id string
	ws wsConn

	mu     sync.Mutex
	userID string
	sendCh chan Envelope
	closed bool
}

func newConn(ws wsConn) *conn {
	return &conn{
		id:     ulid.Make().String(),
		ws:     ws,
		sendCh: make(chan Envelope, sendBuffer),
	}
}

// bindUser records which user this channel belongs to. The first identifying
// event wins; later events must carry the same user.
func (c *conn) bindUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID == "" {
		c.userID = userID
	}
}

func (c *conn) user() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// send queues env for delivery. Returns false if the connection is closed or
// the queue is full; the envelope is dropped in both cases.
func (c *conn) send(env Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.sendCh <- env:
		return true
	default:
		slog.Warn("dropping outbound event, send queue full",
			"conn_id", c.id,
			"event", env.Event,
		)
		return false
	}
}

// close marks the connection closed and stops the write pump. Safe to call
// more than once.
func (c *conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.sendCh)
	c.mu.Unlock()

	_ = c.ws.Close(websocket.StatusNormalClosure, "channel closed")
}

// writePump drains the send queue onto the websocket. It exits when the queue
// is closed or a write fails.
func (c *conn) writePump(ctx context.Context) {
	for env := range c.sendCh {
		data, err := json.Marshal(env)
		if err != nil {
			slog.Error("marshal outbound envelope", "error", err, "event", env.Event)
			continue
		}
		if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("websocket write failed", "conn_id", c.id, "error", err)
			return
		}
	}
}
