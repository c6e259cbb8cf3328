// Package ratelimit counts requests per key in redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript counts one hit and reports the count with the window's remaining
// lifetime. A counter that lost its expiry gets a fresh one instead of
// blocking its key forever.
var takeScript = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {hits, ttl}
`)

const callTimeout = 2 * time.Second

// Decision is the outcome of one Take.
type Decision struct {
	Allowed   bool
	Remaining int
	// ResetIn is how long until the current window ends.
	ResetIn time.Duration
}

// FixedWindowLimiter allows limit hits per key per window. The window of a
// key opens with its first hit.
type FixedWindowLimiter struct {
	client redis.Scripter
	prefix string
	limit  int
	window time.Duration
}

func NewFixedWindowLimiter(client redis.Scripter, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if client == nil {
		return nil, errors.New("ratelimit: nil redis client")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("ratelimit: limit must be positive, got %d", limit)
	}
	if window < time.Millisecond {
		return nil, fmt.Errorf("ratelimit: window must be at least 1ms, got %s", window)
	}
	return &FixedWindowLimiter{
		client: client,
		prefix: strings.TrimSuffix(strings.TrimSpace(prefix), ":"),
		limit:  limit,
		window: window,
	}, nil
}

// Take records a hit for key. Errors come from redis; callers decide whether
// to let the request through.
func (l *FixedWindowLimiter) Take(ctx context.Context, key string) (Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	res, err := takeScript.Run(ctx, l.client, []string{l.key(key)}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: take %q: %w", key, err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected reply %v", res)
	}

	hits, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	return Decision{
		Allowed:   hits <= l.limit,
		Remaining: max(l.limit-hits, 0),
		ResetIn:   ttl,
	}, nil
}

func (l *FixedWindowLimiter) key(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	if l.prefix == "" {
		return key
	}
	return l.prefix + ":" + key
}
