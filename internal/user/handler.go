package user

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	myMiddleware "github.com/SCORPIA2004/CampusConnect/internal/middleware"
	"github.com/SCORPIA2004/CampusConnect/internal/protocol"
)

// PresenceChecker reports whether a user currently holds a live connection.
type PresenceChecker interface {
	IsOnline(email string) bool
}

type Handler struct {
	Service  *Service
	presence PresenceChecker
	log      *slog.Logger
}

func NewHandler(s *Service, presence PresenceChecker, log *slog.Logger) *Handler {
	return &Handler{Service: s, presence: presence, log: log}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req protocol.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	profile, err := h.Service.Register(r.Context(), req)
	var inputErr *InputError
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, profile)
	case errors.As(err, &inputErr):
		http.Error(w, inputErr.Msg, http.StatusBadRequest)
	case errors.Is(err, ErrEmailTaken):
		http.Error(w, "User already exists.", http.StatusConflict)
	default:
		h.log.Error("registration failed", "error", err)
		http.Error(w, "An error occurred during registration. Please try again.", http.StatusInternalServerError)
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req protocol.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.Service.Login(r.Context(), req)
	var inputErr *InputError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.As(err, &inputErr):
		http.Error(w, inputErr.Msg, http.StatusBadRequest)
	case errors.Is(err, ErrInvalidCredentials):
		http.Error(w, "Invalid credentials.", http.StatusUnauthorized)
	default:
		h.log.Error("login failed", "error", err)
		http.Error(w, "An error occurred during login. Please try again.", http.StatusInternalServerError)
	}
}

// GetUser returns the profile named by ?email=, or the caller's own profile,
// with the live presence flag.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := myMiddleware.ProfileFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	profile := caller
	if email := r.URL.Query().Get("email"); email != "" {
		found, exists, err := h.Service.ProfileByEmail(r.Context(), email)
		if err != nil {
			h.log.Error("user lookup failed", "email", email, "error", err)
			http.Error(w, "An error occurred while looking up the user.", http.StatusInternalServerError)
			return
		}
		if !exists {
			http.Error(w, "Invalid email. Please provide a correct email.", http.StatusNotFound)
			return
		}
		profile = found
	}

	writeJSON(w, http.StatusOK, protocol.ProfileStatus{
		Profile:  profile,
		IsActive: h.presence.IsOnline(profile.Email),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
