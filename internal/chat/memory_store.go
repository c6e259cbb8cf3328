package chat

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/SCORPIA2004/CampusConnect/internal/protocol"
	"github.com/google/uuid"
)

// MemoryStore keeps sessions in-process. Lookup and create happen under one
// lock, so two concurrent first messages between a pair still yield one session.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byPair   map[string]string // pair key -> session id
	order    []string
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		byPair:   make(map[string]string),
		now:      time.Now,
	}
}

func (m *MemoryStore) GetOrCreateSession(_ context.Context, a, b protocol.Profile) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey(a.Email, b.Email)
	if id, ok := m.byPair[key]; ok {
		return cloneSession(m.sessions[id]), nil
	}

	s := &Session{
		ID:           uuid.NewString(),
		Participant0: a,
		Participant1: b,
		CreatedAt:    m.now().UTC(),
	}
	m.sessions[s.ID] = s
	m.byPair[key] = s.ID
	m.order = append(m.order, s.ID)
	return cloneSession(s), nil
}

func (m *MemoryStore) AppendMessage(_ context.Context, sessionID string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.Messages = append(s.Messages, msg)
	return nil
}

func (m *MemoryStore) ListSessionsFor(_ context.Context, email string) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []Session
	for _, id := range m.order {
		if s := m.sessions[id]; s.Has(email) {
			res = append(res, cloneSession(s))
		}
	}
	return res, nil
}

func cloneSession(s *Session) Session {
	c := *s
	c.Messages = slices.Clone(s.Messages)
	return c
}
