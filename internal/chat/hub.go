package chat

import (
	"context"
	"log/slog"
	"sync"
)

type presenceEvent struct {
	email  string
	active bool
}

// Hub owns the connection lifecycle. Register and Unregister are consumed by
// a single goroutine (Run), so registry transitions and the presence events
// they trigger happen in connection order.
type Hub struct {
	Register   chan *Client // New client joins
	Unregister chan *Client // Client leaves

	registry   *Registry
	presence   *Notifier
	router     *Router
	log        *slog.Logger
	sendBuffer int

	events chan presenceEvent
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewHub(registry *Registry, presence *Notifier, router *Router, sendBuffer int, log *slog.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		registry:   registry,
		presence:   presence,
		router:     router,
		log:        log,
		sendBuffer: sendBuffer,
		events:     make(chan presenceEvent, 256),
		done:       make(chan struct{}),
	}
}

// Registry exposes the live connection table, for handlers that report presence.
func (h *Hub) Registry() *Registry { return h.registry }

// Run serves registrations until ctx is cancelled, then closes every client
// and empties the registry.
func (h *Hub) Run(ctx context.Context) {
	h.wg.Add(1)
	go h.notifyLoop(ctx)
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			email := client.profile.Email
			if prev := h.registry.Register(email, client); prev != nil {
				h.log.Info("connection replaced", "email", email)
			}
			h.log.Debug("client registered", "email", email)
			h.events <- presenceEvent{email: email, active: true}

		case client := <-h.Unregister:
			client.close()
			email, current := h.registry.UnregisterHandle(client)
			if !current {
				continue
			}
			h.log.Debug("client unregistered", "email", email)
			h.events <- presenceEvent{email: email, active: false}
		}
	}
}

// notifyLoop runs presence fan-out off the registration loop, one event at a time.
func (h *Hub) notifyLoop(ctx context.Context) {
	defer h.wg.Done()
	for ev := range h.events {
		if ctx.Err() != nil {
			continue
		}
		if ev.active {
			h.presence.OnConnect(ctx, ev.email)
		} else {
			h.presence.OnDisconnect(ctx, ev.email)
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)
	close(h.events)
	for _, handle := range h.registry.Close() {
		if c, ok := handle.(*Client); ok {
			c.close()
		}
	}
	h.wg.Wait()
}

// join hands c to the hub. It reports false once the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
		c.close()
	}
}

// Done is closed when Run stops serving registrations.
func (h *Hub) Done() <-chan struct{} { return h.done }
