package handlers

import (
	"net/http"

	"github.com/bastago/basta/internal/auth"
	"github.com/bastago/basta/internal/repository"
	"github.com/bastago/basta/internal/services"
	"github.com/bastago/basta/internal/websocket"
)

// Handlers holds all HTTP handler dependencies
type Handlers struct {
	Rooms    *services.RoomService
	Sessions *services.SessionService
	Matching *services.MatchmakingService
	Players  repository.PlayerRepository
	Auth     *auth.Auth
	Hub      *websocket.Hub
	Log      HTTPLogger

	// BaseURL is the externally reachable address encoded in invite QR codes
	BaseURL string
}

// HTTPLogger is an interface for loggers that support HTTP logging control
type HTTPLogger interface {
	IsHTTPLoggingEnabled() bool
}

// New creates a new Handlers instance with all dependencies
func New(
	rooms *services.RoomService,
	sessions *services.SessionService,
	matching *services.MatchmakingService,
	players repository.PlayerRepository,
	a *auth.Auth,
	hub *websocket.Hub,
	log HTTPLogger,
	baseURL string,
) *Handlers {
	return &Handlers{
		Rooms:    rooms,
		Sessions: sessions,
		Matching: matching,
		Players:  players,
		Auth:     a,
		Hub:      hub,
		Log:      log,
		BaseURL:  baseURL,
	}
}

// NoopHTTPLogger is a test logger that always returns false for HTTP logging
type NoopHTTPLogger struct{}

func (NoopHTTPLogger) IsHTTPLoggingEnabled() bool { return false }

// identity returns the authenticated identity or writes a 401.
func (h *Handlers) identity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		respondError(w, Unauthorized("Unauthorized"))
		return nil, false
	}
	return id, true
}
