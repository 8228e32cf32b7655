package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/bastago/basta/internal/models"
)

const maxUsernameLen = 24

// handleGuest issues a guest identity: a fresh player id and a signed
// token carrying it. No password, no account.
func (h *Handlers) handleGuest(w http.ResponseWriter, r *http.Request) {
	var req GuestRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		respondError(w, BadRequest("username is required"))
		return
	}
	if len(username) > maxUsernameLen {
		username = username[:maxUsernameLen]
	}

	playerID := uuid.NewString()
	if err := h.Players.UpsertPlayer(r.Context(), playerID, username); err != nil {
		respondError(w, err)
		return
	}

	token, err := h.Auth.Generate(playerID, username)
	if err != nil {
		respondError(w, InternalError(err))
		return
	}

	respondCreated(w, GuestResponse{
		Token:  token,
		Player: &models.Player{ID: playerID, Username: username},
	})
}

// handleMe returns the authenticated player's profile and stats.
func (h *Handlers) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	player, err := h.Players.GetPlayer(r.Context(), id.PlayerID)
	if err != nil {
		// A valid token whose player row never hit the store still identifies
		// the caller; answer from the claims.
		respondOK(w, &models.Player{ID: id.PlayerID, Username: id.Username})
		return
	}
	respondOK(w, player)
}
