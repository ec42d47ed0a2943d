/*
Package handler provides the HTTP handlers and routing setup for the ITAM Chat server.

This file defines the main Router, applying necessary middleware like logging, CORS,
and IP-based rate limiting before delegating requests to specific handlers (API and WebSocket).
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"itamchat/internal/pkg/auth/jwt"
	"itamchat/internal/pkg/limiter"
	"itamchat/internal/pkg/logx"
	"itamchat/internal/pkg/resp"
)

const (
	AuthRate       = 0.5
	AuthBurst      = 10
	ConnectRate    = 1
	ConnectBurst   = 10
	ChatCreateRate = 0.2
	ChatBurst      = 5
)

// HealthOutput reports liveness and the size of the realtime registry.
type HealthOutput struct {
	Status            string `json:"status"`
	Service           string `json:"service"`
	ActiveChats       int    `json:"active_chats"`
	ActiveConnections int    `json:"active_connections"`
}

// Router sets up the main HTTP routing table (chi.Router) for the application.
// It initializes IP-based rate limiters, configures CORS, and applies global and per-route middleware.
func Router(deps *AppDeps) http.Handler {
	authLimiter := limiter.NewIPRateLimiter("auth", rate.Limit(AuthRate), AuthBurst)
	connectLimiter := limiter.NewIPRateLimiter("connect", rate.Limit(ConnectRate), ConnectBurst)
	chatLimiter := limiter.NewIPRateLimiter("chat_create", rate.Limit(ChatCreateRate), ChatBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		chats, connections := deps.Hub.Stats()

		resp.RespondSuccess(w, r, HealthOutput{
			Status:            "ok",
			Service:           "ITAM Chat Server",
			ActiveChats:       chats,
			ActiveConnections: connections,
		})
	})

	r.Get("/asyncapi.yaml", HandleAsyncAPISpec)
	r.Get("/asyncapi", HandleAsyncAPIPage)

	r.Group(func(public chi.Router) {
		public.Use(authLimiter.Middleware)

		public.Post("/register", HandleRegister(deps))
		public.Post("/login", HandleLogin(deps))
	})

	r.Group(func(api chi.Router) {
		api.Use(jwt.RequireIdentity(deps.Verifier))

		api.Get("/search", HandleSearchUsers(deps))

		api.Route("/chats", func(chats chi.Router) {
			chats.Get("/", HandleListChats(deps))
			chats.With(chatLimiter.Middleware).Post("/", HandleCreateChat(deps))

			chats.Route("/{chat_id}", func(one chi.Router) {
				one.Get("/", HandleGetChat(deps))
				one.Post("/messages", HandleSendMessage(deps))
				one.Post("/images", HandleUploadImage(deps))
				one.Post("/images/presign", HandlePresignImageUpload(deps))
			})
		})

		api.Get("/files", HandleDownloadImage(deps))
	})

	r.With(connectLimiter.Middleware).Get("/ws/chats/{chat_id}", HandleWebSocket(wsUpgrader, deps))

	return r
}
