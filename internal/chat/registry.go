package chat

import (
	"slices"
	"sync"
)

// Handle is a live connection that can receive pushed events.
// Emit reports false when the event could not be queued.
type Handle interface {
	Emit(event string, payload any) bool
}

// Registry maps online identities to their connection. One connection per
// identity: a later Register for the same email replaces the earlier one.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]Handle // email -> current handle
	emails  map[Handle]string // handle -> email, kept for every registered handle until it unregisters
}

func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[string]Handle),
		emails:  make(map[Handle]string),
	}
}

// Register makes h the connection for email and returns the handle it
// replaced, if any. The replaced handle is not closed.
func (r *Registry) Register(email string, h Handle) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.handles[email]
	r.handles[email] = h
	r.emails[h] = email
	if prev == h {
		return nil
	}
	return prev
}

// Unregister drops email and every handle registered for it.
func (r *Registry) Unregister(email string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handles, email)
	for h, e := range r.emails {
		if e == email {
			delete(r.emails, h)
		}
	}
}

// UnregisterHandle forgets h. current is true when h was still the live
// connection of email; a handle that has been replaced never evicts its successor.
func (r *Registry) UnregisterHandle(h Handle) (email string, current bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email, ok := r.emails[h]
	if !ok {
		return "", false
	}
	delete(r.emails, h)
	if r.handles[email] != h {
		return email, false
	}
	delete(r.handles, email)
	return email, true
}

func (r *Registry) IsOnline(email string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handles[email]
	return ok
}

func (r *Registry) HandleFor(email string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[email]
	return h, ok
}

// Online returns the sorted emails with a live connection.
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]string, 0, len(r.handles))
	for email := range r.handles {
		res = append(res, email)
	}
	slices.Sort(res)
	return res
}

// Close empties the registry and returns every handle it still knew about.
func (r *Registry) Close() []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]Handle, 0, len(r.emails))
	for h := range r.emails {
		res = append(res, h)
	}
	clear(r.handles)
	clear(r.emails)
	return res
}
