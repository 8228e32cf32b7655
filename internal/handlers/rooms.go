package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/bastago/basta/internal/services"
)

// handleListRooms returns joinable public rooms, optionally filtered by
// ?language=.
func (h *Handlers) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.Rooms.ListRooms(r.Context(), r.URL.Query().Get("language"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, RoomListResponse{Rooms: rooms})
}

// handleCreateRoom creates a room owned by the caller.
func (h *Handlers) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req CreateRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	room, err := h.Rooms.CreateRoom(r.Context(), services.CreateRoomParams{
		OwnerID:       id.PlayerID,
		OwnerUsername: id.Username,
		Capacity:      req.Capacity,
		Visibility:    req.Visibility,
		Password:      req.Password,
		Language:      req.Language,
		Rounds:        req.Rounds,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondCreated(w, room)
}

// handleGetRoom returns one room.
func (h *Handlers) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.Rooms.GetRoom(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, room)
}

// handleJoinRoom seats the caller in a room.
func (h *Handlers) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req JoinRoomRequest
	decodeJSON(r, &req) // body is optional for password-less rooms

	room, err := h.Rooms.JoinRoom(r.Context(), chi.URLParam(r, "id"), id.PlayerID, id.Username, req.Password)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, room)
}

// handleJoinByCode resolves an invite code and joins that room.
func (h *Handlers) handleJoinByCode(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req JoinByCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	room, err := h.Rooms.JoinByInviteCode(r.Context(), req.Code, id.PlayerID, id.Username, req.Password)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, room)
}

// handleLeaveRoom removes the caller from a room.
func (h *Handlers) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	if err := h.Rooms.LeaveRoom(r.Context(), chi.URLParam(r, "id"), id.PlayerID); err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "left room")
}

// handleSetReady toggles the caller's readiness.
func (h *Handlers) handleSetReady(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req ReadyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := h.Rooms.SetReady(r.Context(), chi.URLParam(r, "id"), id.PlayerID, req.Ready); err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "ready state updated")
}

// handleStartGame starts the room's game session.
func (h *Handlers) handleStartGame(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	game, err := h.Rooms.StartGame(r.Context(), chi.URLParam(r, "id"), id.PlayerID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondCreated(w, game)
}

// handleInviteQR renders the room's invite link as a PNG QR code.
func (h *Handlers) handleInviteQR(w http.ResponseWriter, r *http.Request) {
	room, err := h.Rooms.GetRoom(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}

	png, err := qrcode.Encode(h.BaseURL+"/join/"+room.InviteCode, qrcode.Medium, 256)
	if err != nil {
		respondError(w, InternalError(err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// handleGetGame returns the caller's view of a game session.
func (h *Handlers) handleGetGame(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	game, err := h.Sessions.GetSession(r.Context(), chi.URLParam(r, "id"), id.PlayerID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, game)
}

// handleQuickplay enters matchmaking.
func (h *Handlers) handleQuickplay(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req QuickplayRequest
	decodeJSON(r, &req)

	res, err := h.Matching.Quickplay(r.Context(), id.PlayerID, id.Username, req.Language)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, res)
}

// handleQuickplayCancel leaves the matchmaking queue.
func (h *Handlers) handleQuickplayCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	h.Matching.Leave(id.PlayerID)
	respondSuccess(w, "left queue")
}
