package myMiddleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SCORPIA2004/CampusConnect/internal/logging"
	"github.com/SCORPIA2004/CampusConnect/internal/protocol"
	"github.com/SCORPIA2004/CampusConnect/internal/ratelimit"
	"github.com/stretchr/testify/require"
)

type fakeResolver map[string]protocol.Profile

func (f fakeResolver) ProfileByToken(_ context.Context, token string) (protocol.Profile, error) {
	p, ok := f[token]
	if !ok {
		return protocol.Profile{}, ErrInvalidToken
	}
	return p, nil
}

type countingLimiter struct {
	left int
	err  error
}

func (c *countingLimiter) Take(context.Context, string) (ratelimit.Decision, error) {
	if c.err != nil {
		return ratelimit.Decision{}, c.err
	}
	c.left--
	return ratelimit.Decision{Allowed: c.left >= 0, Remaining: max(c.left, 0), ResetIn: 1500 * time.Millisecond}, nil
}

func TestAuthMiddleware(t *testing.T) {
	alice := protocol.Profile{FirstName: "Alice", Email: "alice@ug.bilkent.edu.tr"}
	am := NewAuthMiddleware(fakeResolver{"good": alice}, logging.Discard())

	var seen protocol.Profile
	h := am.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ProfileFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		target string
		want   int
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, "/chats", http.StatusNoContent},
		{"legacy auth header", func(r *http.Request) { r.Header.Set("auth", "good") }, "/chats", http.StatusNoContent},
		{"query param", func(*http.Request) {}, "/ws?token=good", http.StatusNoContent},
		{"missing", func(*http.Request) {}, "/ws", http.StatusUnauthorized},
		{"invalid", func(*http.Request) {}, "/ws?token=bad", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			seen = protocol.Profile{}
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			tt.setup(r)
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, r)

			req.Equal(tt.want, rec.Code)
			if tt.want == http.StatusNoContent {
				req.Equal(alice, seen)
			} else {
				req.Empty(seen.Email)
			}
		})
	}
}

type brokenResolver struct{}

func (brokenResolver) ProfileByToken(context.Context, string) (protocol.Profile, error) {
	return protocol.Profile{}, errors.New("connection refused")
}

func TestAuthMiddleware_StoreFailureIsServerError(t *testing.T) {
	req := require.New(t)
	reached := false
	h := NewAuthMiddleware(brokenResolver{}, logging.Discard()).Handle(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		reached = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token=good", nil))

	req.Equal(http.StatusInternalServerError, rec.Code)
	req.False(reached)
}

func TestRateLimit(t *testing.T) {
	req := require.New(t)
	h := RateLimit(&countingLimiter{left: 1}, logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	req.Equal(http.StatusOK, rec.Code)
	req.Equal("0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	req.Equal(http.StatusTooManyRequests, rec.Code)
	req.Equal("2", rec.Header().Get("Retry-After"))
}

func TestRateLimit_LimiterFailureIsUnavailable(t *testing.T) {
	req := require.New(t)
	reached := false
	h := RateLimit(&countingLimiter{err: errors.New("redis down")}, logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users", nil))

	req.Equal(http.StatusServiceUnavailable, rec.Code)
	req.False(reached)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.168.1.9:5555"
	require.Equal(t, "192.168.1.9", clientIP(r))
	r.RemoteAddr = "weird"
	require.Equal(t, "weird", clientIP(r))
}
