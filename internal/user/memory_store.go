package user

import (
	"context"
	"sync"
)

// MemoryStore keeps accounts in-process. Used by tests and STORE_DRIVER=memory.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User)}
}

func (m *MemoryStore) CreateUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[u.Email]; exists {
		return ErrEmailTaken
	}
	m.users[u.Email] = u
	return nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[email]
	return u, ok, nil
}
