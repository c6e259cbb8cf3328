package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/SCORPIA2004/CampusConnect/internal/protocol"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var ErrClosed = errors.New("chat client closed")

// AckError is a send the server refused or failed.
type AckError struct {
	Status  int
	Message string
}

func (e *AckError) Error() string {
	return fmt.Sprintf("send rejected (%d): %s", e.Status, e.Message)
}

// Client is one logged in user: a websocket connection plus the model it feeds.
// Pushes, presence and acks are applied by a single read loop, in arrival order.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	conn    *websocket.Conn
	log     *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	state   State
	nextID  uint64
	pending map[uint64]chan protocol.Ack
	err     error
	// loading counts snapshot requests in flight; while it is non-zero
	// server events are also kept in held for the snapshot to replay.
	loading int
	held    []Event

	done chan struct{}
}

// Dial resolves the caller's profile and opens the websocket.
func Dial(ctx context.Context, baseURL, token string, log *slog.Logger) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	hc := http.DefaultClient

	self, err := lookupUser(ctx, hc, baseURL, token, "")
	if err != nil {
		return nil, fmt.Errorf("resolve self: %w", err)
	}

	wsURL, err := websocketURL(baseURL, token)
	if err != nil {
		return nil, err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, &HTTPError{Status: resp.StatusCode, Body: err.Error()}
		}
		return nil, fmt.Errorf("dial websocket: %w", err)
	}

	c := &Client{
		baseURL: baseURL,
		token:   token,
		http:    hc,
		conn:    conn,
		log:     log.With("email", self.Email),
		state:   State{Self: self.Email},
		pending: make(map[uint64]chan protocol.Ack),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func websocketURL(baseURL, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

// Self is the local user's email.
func (c *Client) Self() string {
	return c.State().Self
}

// State returns the current model.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) apply(ev Event) {
	c.mu.Lock()
	c.state = Reduce(c.state, ev)
	c.mu.Unlock()
}

// observe applies an event from the server, holding on to it while a
// snapshot is loading.
func (c *Client) observe(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Reduce(c.state, ev)
	if c.loading > 0 {
		c.held = append(c.held, ev)
	}
}

// LoadSnapshot replaces the model with GET /chats. Messages acked or pushed
// while the request was in flight survive exactly once, whether or not the
// snapshot already has them.
func (c *Client) LoadSnapshot(ctx context.Context) error {
	c.mu.Lock()
	c.loading++
	c.mu.Unlock()

	views, err := fetchChats(ctx, c.http, c.baseURL, c.token)

	c.mu.Lock()
	defer c.mu.Unlock()
	held := c.held
	c.loading--
	if c.loading == 0 {
		c.held = nil
	}
	if err != nil {
		return fmt.Errorf("load chats: %w", err)
	}
	c.state = Reduce(c.state, SnapshotLoaded{Sessions: views, Held: held})
	return nil
}

// Open makes sure there is an entry for email, fetching the profile when
// there is none. No session is created on the server.
func (c *Client) Open(ctx context.Context, email string) (Entry, error) {
	if e, ok := c.State().Entry(email); ok {
		return e, nil
	}
	peer, err := lookupUser(ctx, c.http, c.baseURL, c.token, email)
	if err != nil {
		return Entry{}, fmt.Errorf("open conversation with %s: %w", email, err)
	}
	c.apply(ConversationOpened{Peer: peer})
	e, _ := c.State().Entry(peer.Email)
	return e, nil
}

// Send emits a message and waits for its ack. A refused send returns *AckError.
func (c *Client) Send(ctx context.Context, recipientEmail, text, image string) (protocol.ChatMessage, error) {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return protocol.ChatMessage{}, c.err
	}
	c.nextID++
	id := c.nextID
	ch := make(chan protocol.Ack, 1)
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	frame, err := protocol.Encode(protocol.EventMessage, id, protocol.SendRequest{
		RecipientEmail: recipientEmail,
		Text:           text,
		Image:          image,
	})
	if err != nil {
		return protocol.ChatMessage{}, err
	}
	if err := c.write(frame); err != nil {
		return protocol.ChatMessage{}, err
	}

	select {
	case ack := <-ch:
		if !ack.OK() || ack.Message == nil {
			return protocol.ChatMessage{}, &AckError{Status: ack.Status, Message: ack.ErrorMessage}
		}
		return *ack.Message, nil
	case <-ctx.Done():
		return protocol.ChatMessage{}, ctx.Err()
	case <-c.done:
		return protocol.ChatMessage{}, c.closeErr()
	}
}

func (c *Client) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, r, err := c.conn.NextReader()
		if err != nil {
			c.fail(err)
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
				c.log.Warn("malformed frame from server", "error", err)
				break
			}
			c.handle(env)
		}
	}
}

func (c *Client) handle(env protocol.Envelope) {
	switch env.Event {
	case protocol.EventAck:
		var ack protocol.Ack
		if err := json.Unmarshal(env.Data, &ack); err != nil {
			c.log.Warn("bad ack", "id", env.ID, "error", err)
			return
		}
		if ack.OK() && ack.Message != nil {
			c.observe(MessageAcked{Message: *ack.Message})
		}
		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		c.mu.Unlock()
		if ok {
			ch <- ack
		}

	case protocol.EventMessage:
		var m protocol.ChatMessage
		if err := json.Unmarshal(env.Data, &m); err != nil {
			c.log.Warn("bad message push", "error", err)
			return
		}
		c.observe(MessagePushed{Message: m})

	case protocol.EventActivity:
		var a protocol.Activity
		if err := json.Unmarshal(env.Data, &a); err != nil {
			c.log.Warn("bad activity push", "error", err)
			return
		}
		c.observe(PresenceChanged{Email: a.Email, IsActive: a.IsActive})

	default:
		c.log.Debug("ignoring event", "event", env.Event)
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.err = ErrClosed
		return
	}
	c.err = fmt.Errorf("%w: %v", ErrClosed, err)
}

func (c *Client) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return ErrClosed
	}
	return c.err
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close says goodbye to the server and waits for the read loop to stop.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()

	select {
	case <-c.done:
	case <-time.After(writeWait):
	}
	return c.conn.Close()
}
