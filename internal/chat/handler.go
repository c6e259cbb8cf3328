package chat

import (
	"encoding/json"
	"log/slog"
	"net/http"

	myMiddleware "github.com/SCORPIA2004/CampusConnect/internal/middleware"
	"github.com/SCORPIA2004/CampusConnect/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

type Handler struct {
	hub   *Hub
	store Store
	log   *slog.Logger
}

func NewHandler(hub *Hub, store Store, log *slog.Logger) *Handler {
	return &Handler{hub: hub, store: store, log: log}
}

// ServeWs upgrades an authenticated request. The auth middleware has already
// rejected bad tokens, so no registry entry is ever made for them.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	profile, ok := myMiddleware.ProfileFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "email", profile.Email, "error", err)
		return
	}

	client := newClient(h.hub, conn, profile)
	if !h.hub.join(client) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	go client.WritePump()
	// The read pump runs on the request goroutine so r.Context() stays valid for it.
	client.ReadPump(r.Context())
}

// GetChats returns every session of the caller with live presence flags.
func (h *Handler) GetChats(w http.ResponseWriter, r *http.Request) {
	caller, ok := myMiddleware.ProfileFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sessions, err := h.store.ListSessionsFor(r.Context(), caller.Email)
	if err != nil {
		h.log.Error("list chats failed", "email", caller.Email, "error", err)
		http.Error(w, "An error occurred while fetching chats.", http.StatusInternalServerError)
		return
	}

	online := h.hub.registry.IsOnline
	views := lo.Map(sessions, func(s Session, _ int) protocol.SessionView {
		return s.View(online)
	})
	writeJSON(w, http.StatusOK, views)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
