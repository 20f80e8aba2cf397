package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/coder/websocket"
)

// Channel is a client-side websocket channel to the relay server. It carries
// [Envelope] frames in both directions. A Channel is not safe for concurrent
// Send or concurrent Receive calls; callers typically run one read loop and
// serialize writes.
type Channel struct {
	ws  *websocket.Conn
	log *slog.Logger
}

// Dial connects to the relay's websocket endpoint, e.g.
// "ws://localhost:3000/ws". There is no reconnect logic; when the channel
// drops the caller starts over with a fresh Dial.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Channel, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	// Audio segments are larger than the library default read limit.
	ws.SetReadLimit(16 << 20)

	return &Channel{ws: ws, log: logger}, nil
}

// Send writes one envelope to the server.
func (c *Channel) Send(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("transport: marshal %s envelope: %w", env.Event, err)
	}
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("transport: send %s: %w", env.Event, err)
	}
	return nil
}

// SendEvent marshals data and sends it as an envelope for event.
func (c *Channel) SendEvent(ctx context.Context, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("transport: marshal %s payload: %w", event, err)
	}
	return c.Send(ctx, Envelope{Event: event, Data: raw})
}

// Receive blocks for the next envelope from the server. Non-text frames and
// frames that do not parse as envelopes are logged and skipped.
func (c *Channel) Receive(ctx context.Context) (Envelope, error) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return Envelope{}, fmt.Errorf("transport: receive: %w", err)
		}
		if typ != websocket.MessageText {
			c.log.Warn("ignoring non-text frame")
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("malformed envelope", "error", err)
			continue
		}
		return env, nil
	}
}

// Close closes the channel with a normal-closure status.
func (c *Channel) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "")
}
