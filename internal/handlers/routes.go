package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bastago/basta/internal/metrics"
)

// conditionalHTTPLogger only logs HTTP requests when HTTP logging is enabled
func (h *Handlers) conditionalHTTPLogger(next http.Handler) http.Handler {
	logger := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Log != nil && h.Log.IsHTTPLoggingEnabled() {
			logger.ServeHTTP(w, r)
		} else {
			next.ServeHTTP(w, r)
		}
	})
}

// countRequests records per-route request counters
func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
	})
}

// Router returns a configured chi router with all routes
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.conditionalHTTPLogger) // Custom conditional HTTP logger
	r.Use(middleware.Recoverer)
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(countRequests)

	// Operational endpoints (public)
	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// WebSocket (authenticates inside the handshake)
	r.Get("/ws", h.Hub.ServeWs)

	// Guest identity (public)
	r.Post("/api/auth/guest", h.handleGuest)

	// Player API (protected)
	r.Group(func(r chi.Router) {
		r.Use(h.Auth.RequireAuth)

		r.Get("/api/players/me", h.handleMe)

		// Rooms
		r.Get("/api/rooms", h.handleListRooms)
		r.Post("/api/rooms", h.handleCreateRoom)
		r.Post("/api/rooms/join-by-code", h.handleJoinByCode) // Must come before /api/rooms/{id}
		r.Get("/api/rooms/{id}", h.handleGetRoom)
		r.Post("/api/rooms/{id}/join", h.handleJoinRoom)
		r.Post("/api/rooms/{id}/leave", h.handleLeaveRoom)
		r.Post("/api/rooms/{id}/ready", h.handleSetReady)
		r.Post("/api/rooms/{id}/start", h.handleStartGame)
		r.Get("/api/rooms/{id}/invite-qr", h.handleInviteQR)

		// Game sessions
		r.Get("/api/games/{id}", h.handleGetGame)

		// Matchmaking
		r.Post("/api/quickplay", h.handleQuickplay)
		r.Delete("/api/quickplay", h.handleQuickplayCancel)
	})

	return r
}

// handleHealth answers liveness probes.
func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondOK(w, HealthResponse{Status: "ok"})
}
