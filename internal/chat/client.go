package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/SCORPIA2004/CampusConnect/internal/protocol"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Must be less than pongWait.
	maxMessageSize = 10 << 20            // Images travel inline as data URIs.
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	profile protocol.Profile
	log     *slog.Logger

	mu     sync.Mutex
	closed bool
	send   chan []byte // Buffered channel of outbound frames.
}

func newClient(hub *Hub, conn *websocket.Conn, profile protocol.Profile) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		profile: profile,
		log:     hub.log.With("email", profile.Email),
		send:    make(chan []byte, hub.sendBuffer),
	}
}

func (c *Client) Profile() protocol.Profile { return c.profile }

// Emit queues a server push. It never blocks: a full queue or a closed client
// drops the event and reports false.
func (c *Client) Emit(event string, payload any) bool {
	frame, err := protocol.Encode(event, 0, payload)
	if err != nil {
		c.log.Error("encode push", "event", event, "error", err)
		return false
	}
	return c.enqueue(frame)
}

func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// close stops the write pump, which in turn closes the connection.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump reads events off the connection and handles them one at a time:
// the next frame is not read until the previous event has been acknowledged.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, r, err := c.conn.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read failed", "error", err)
			}
			return
		}

		dec := json.NewDecoder(r)
		for {
			var env protocol.Envelope
			err := dec.Decode(&env)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				c.log.Debug("malformed frame dropped", "error", err)
				break
			}
			c.dispatch(ctx, env)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, env protocol.Envelope) {
	acked := false
	ack := func(a protocol.Ack) {
		if acked {
			return
		}
		acked = true
		c.reply(env.ID, a)
	}
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error("panic while handling event", "event", env.Event, "panic", rec)
			ack(protocol.Ack{Status: protocol.StatusInternal, ErrorMessage: msgSendFailed})
		}
	}()

	switch env.Event {
	case protocol.EventMessage:
		var req protocol.SendRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			ack(protocol.Ack{Status: protocol.StatusBadRequest, ErrorMessage: "Invalid message payload"})
			return
		}
		c.hub.router.Send(ctx, c.profile, req, ack)
	default:
		ack(protocol.Ack{Status: protocol.StatusBadRequest, ErrorMessage: "Unknown event " + env.Event})
	}
}

// reply sends the ack for request id. Requests without an id asked for no ack.
func (c *Client) reply(id uint64, a protocol.Ack) {
	if id == 0 {
		return
	}
	frame, err := protocol.Encode(protocol.EventAck, id, a)
	if err != nil {
		c.log.Error("encode ack", "error", err)
		return
	}
	if !c.enqueue(frame) {
		c.log.Warn("ack dropped", "id", id, "status", a.Status)
	}
}

// WritePump pumps frames from the send queue to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			// Flush whatever else is queued in the same frame, newline separated.
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(next)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
