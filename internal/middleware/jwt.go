package myMiddleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/SCORPIA2004/CampusConnect/internal/protocol"
)

type contextKey string

const ProfileKey contextKey = "profile"

// ErrInvalidToken is returned by a TokenResolver for a token that does not
// identify anyone. Any other error is a server failure.
var ErrInvalidToken = errors.New("invalid token")

// TokenResolver turns a bearer token into the profile of its owner.
// This interface decouples 'middleware' from 'user'.
type TokenResolver interface {
	ProfileByToken(ctx context.Context, token string) (protocol.Profile, error)
}

type AuthMiddleware struct {
	resolver TokenResolver
	log      *slog.Logger
}

func NewAuthMiddleware(r TokenResolver, log *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{resolver: r, log: log}
}

// Handle rejects requests without a valid token and stores the caller profile in the context.
// The websocket handshake relies on this: a bad token never reaches the upgrade.
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			http.Error(w, "Please login to perform this operation.", http.StatusUnauthorized)
			return
		}

		profile, err := am.resolver.ProfileByToken(r.Context(), token)
		if errors.Is(err, ErrInvalidToken) {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		if err != nil {
			am.log.Error("resolve token failed", "path", r.URL.Path, "error", err)
			http.Error(w, "An error occurred. Please try again later.", http.StatusInternalServerError)
			return
		}

		ctx := WithProfile(r.Context(), profile)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TokenFromRequest checks the Authorization header, then the legacy "auth" header,
// then the "token" query parameter used by browser websockets.
func TokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Fields(authHeader)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	if token := strings.TrimSpace(r.Header.Get("auth")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func WithProfile(ctx context.Context, p protocol.Profile) context.Context {
	return context.WithValue(ctx, ProfileKey, p)
}

func ProfileFromContext(ctx context.Context) (protocol.Profile, bool) {
	p, ok := ctx.Value(ProfileKey).(protocol.Profile)
	return p, ok
}
