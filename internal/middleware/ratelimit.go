package myMiddleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/SCORPIA2004/CampusConnect/internal/ratelimit"
)

type Limiter interface {
	Take(ctx context.Context, key string) (ratelimit.Decision, error)
}

// RateLimit rejects requests once the caller's IP exhausted its quota.
// The key is r.RemoteAddr; only chi's RealIP, when installed, rewrites it.
// If the limiter itself fails the request is refused with 503.
func RateLimit(limiter Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			d, err := limiter.Take(r.Context(), ip)
			if err != nil {
				log.Error("rate limiter unavailable", "ip", ip, "path", r.URL.Path, "error", err)
				http.Error(w, "Service temporarily unavailable. Please try again later.", http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				log.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d)))
				http.Error(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(d ratelimit.Decision) int {
	return max(1, int(math.Ceil(d.ResetIn.Seconds())))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
