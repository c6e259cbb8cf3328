package chat

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type emitted struct {
	event   string
	payload any
}

// recordingHandle is a Handle that keeps every event it was given.
type recordingHandle struct {
	name string

	mu     sync.Mutex
	events []emitted
	full   bool
}

func (h *recordingHandle) Emit(event string, payload any) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.full {
		return false
	}
	h.events = append(h.events, emitted{event: event, payload: payload})
	return true
}

func (h *recordingHandle) Events() []emitted {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]emitted(nil), h.events...)
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	h := &recordingHandle{name: "alice-1"}

	req.False(r.IsOnline(alice.Email))
	req.Nil(r.Register(alice.Email, h))
	req.True(r.IsOnline(alice.Email))

	got, ok := r.HandleFor(alice.Email)
	req.True(ok)
	req.Same(h, got)

	_, ok = r.HandleFor(bob.Email)
	req.False(ok)
	req.Equal([]string{alice.Email}, r.Online())
}

func TestRegistry_SecondRegistrationReplacesFirst(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	first := &recordingHandle{name: "alice-1"}
	second := &recordingHandle{name: "alice-2"}

	r.Register(alice.Email, first)
	prev := r.Register(alice.Email, second)
	req.Same(first, prev)

	got, _ := r.HandleFor(alice.Email)
	req.Same(second, got)

	// When the replaced connection drops, the new one stays registered
	email, current := r.UnregisterHandle(first)
	req.Equal(alice.Email, email)
	req.False(current)
	req.True(r.IsOnline(alice.Email))

	// And when the live one drops, the identity goes offline
	email, current = r.UnregisterHandle(second)
	req.Equal(alice.Email, email)
	req.True(current)
	req.False(r.IsOnline(alice.Email))
}

func TestRegistry_UnregisterHandleUnknown(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	h := &recordingHandle{}
	r.Register(alice.Email, h)

	email, current := r.UnregisterHandle(&recordingHandle{})
	req.Empty(email)
	req.False(current)

	r.UnregisterHandle(h)
	email, current = r.UnregisterHandle(h)
	req.Empty(email)
	req.False(current)
}

func TestRegistry_UnregisterByEmail(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	old, live := &recordingHandle{}, &recordingHandle{}
	r.Register(alice.Email, old)
	r.Register(alice.Email, live)
	r.Register(bob.Email, &recordingHandle{})

	r.Unregister(alice.Email)

	req.False(r.IsOnline(alice.Email))
	req.True(r.IsOnline(bob.Email))
	email, _ := r.UnregisterHandle(old)
	req.Empty(email)
}

func TestRegistry_Close(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	r.Register(alice.Email, &recordingHandle{})
	r.Register(alice.Email, &recordingHandle{})
	r.Register(bob.Email, &recordingHandle{})

	req.Len(r.Close(), 3)
	req.Empty(r.Online())
	req.False(r.IsOnline(bob.Email))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := &recordingHandle{}
			r.Register(alice.Email, h)
			r.IsOnline(alice.Email)
			r.UnregisterHandle(h)
		}()
	}
	wg.Wait()
	require.False(t, r.IsOnline(alice.Email))
}
