package chat

import (
	"context"
	"log/slog"

	"github.com/SCORPIA2004/CampusConnect/internal/protocol"
)

// Notifier tells the online counterparts of a user that the user came or went.
// Only peers sharing a session are told; delivery is best effort.
type Notifier struct {
	store    Store
	registry *Registry
	log      *slog.Logger
}

func NewNotifier(store Store, registry *Registry, log *slog.Logger) *Notifier {
	return &Notifier{store: store, registry: registry, log: log}
}

func (n *Notifier) OnConnect(ctx context.Context, email string) {
	n.notify(ctx, email, true)
}

func (n *Notifier) OnDisconnect(ctx context.Context, email string) {
	n.notify(ctx, email, false)
}

func (n *Notifier) notify(ctx context.Context, email string, active bool) {
	sessions, err := n.store.ListSessionsFor(ctx, email)
	if err != nil {
		n.log.Warn("presence: list sessions failed", "email", email, "error", err)
		return
	}

	event := protocol.Activity{Email: email, IsActive: active}
	seen := make(map[string]struct{}, len(sessions))
	for _, s := range sessions {
		peer, ok := s.Counterpart(email)
		if !ok {
			continue
		}
		if _, dup := seen[peer.Email]; dup {
			continue
		}
		seen[peer.Email] = struct{}{}

		h, online := n.registry.HandleFor(peer.Email)
		if !online {
			continue
		}
		if !h.Emit(protocol.EventActivity, event) {
			n.log.Debug("presence: activity dropped", "to", peer.Email, "email", email)
		}
	}
}
