// Package app assembles the chat server from its stores and settings.
package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/SCORPIA2004/CampusConnect/internal/chat"
	myMiddleware "github.com/SCORPIA2004/CampusConnect/internal/middleware"
	"github.com/SCORPIA2004/CampusConnect/internal/user"
	"github.com/SCORPIA2004/CampusConnect/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Deps struct {
	UserStore    user.Store
	ChatStore    chat.Store
	JWTSecret    string
	TokenTTL     time.Duration
	CampusDomain string
	SendBuffer   int
	// AuthLimiter throttles register and login per client IP; nil disables it.
	AuthLimiter myMiddleware.Limiter
	// TrustProxyHeaders enables chi's RealIP, so limits are keyed on forwarded addresses.
	TrustProxyHeaders bool
	Log               *slog.Logger
}

type App struct {
	Users    *user.Service
	Registry *chat.Registry
	Hub      *chat.Hub

	deps        Deps
	userHandler *user.Handler
	chatHandler *chat.Handler
	auth        *myMiddleware.AuthMiddleware
}

func New(d Deps) *App {
	validate := validation.New(d.CampusDomain)
	users := user.NewService(d.UserStore, d.JWTSecret, d.TokenTTL, validate)

	registry := chat.NewRegistry()
	presence := chat.NewNotifier(d.ChatStore, registry, d.Log)
	router := chat.NewRouter(users, d.ChatStore, registry, validate, d.Log)
	hub := chat.NewHub(registry, presence, router, d.SendBuffer, d.Log)

	return &App{
		Users:       users,
		Registry:    registry,
		Hub:         hub,
		deps:        d,
		userHandler: user.NewHandler(users, registry, d.Log),
		chatHandler: chat.NewHandler(hub, d.ChatStore, d.Log),
		auth:        myMiddleware.NewAuthMiddleware(users, d.Log),
	}
}

// Run serves the hub until ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	a.Hub.Run(ctx)
}

func (a *App) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if a.deps.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Public Routes
	r.Group(func(r chi.Router) {
		if a.deps.AuthLimiter != nil {
			r.Use(myMiddleware.RateLimit(a.deps.AuthLimiter, a.deps.Log))
		}
		r.Post("/users", a.userHandler.Register)
		r.Post("/auth/login", a.userHandler.Login)
	})

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(a.auth.Handle)
		r.Get("/users", a.userHandler.GetUser)
		r.Get("/chats", a.chatHandler.GetChats)
		r.Get("/ws", a.chatHandler.ServeWs)
	})

	return r
}
