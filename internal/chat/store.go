//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
package chat

import (
	"context"
	"errors"

	"github.com/SCORPIA2004/CampusConnect/internal/protocol"
)

var ErrSessionNotFound = errors.New("chat session not found")

// Store persists chat sessions and their message logs.
type Store interface {
	// GetOrCreateSession looks the pair up in both orderings and creates the
	// session with a as participant0 when none exists.
	GetOrCreateSession(ctx context.Context, a, b protocol.Profile) (Session, error)
	// AppendMessage pushes msg at the tail of the session log. It never reorders
	// or deduplicates; it fails with ErrSessionNotFound for unknown ids.
	AppendMessage(ctx context.Context, sessionID string, msg Message) error
	// ListSessionsFor returns every session email takes part in, oldest first,
	// each with its full message log.
	ListSessionsFor(ctx context.Context, email string) ([]Session, error)
}

// Directory resolves account profiles; found is false for unknown emails.
type Directory interface {
	ProfileByEmail(ctx context.Context, email string) (protocol.Profile, bool, error)
}
