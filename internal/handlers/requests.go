package handlers

import "github.com/bastago/basta/internal/models"

// GuestRequest is the request body for guest identity creation
type GuestRequest struct {
	Username string `json:"username"`
}

// CreateRoomRequest is the request body for room creation
type CreateRoomRequest struct {
	Capacity   int               `json:"capacity"`
	Visibility models.Visibility `json:"visibility"`
	Password   string            `json:"password"`
	Language   string            `json:"language"`
	Rounds     int               `json:"rounds"`
}

// JoinRoomRequest is the request body for joining a room
type JoinRoomRequest struct {
	Password string `json:"password"`
}

// JoinByCodeRequest is the request body for joining via invite code
type JoinByCodeRequest struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

// ReadyRequest is the request body for toggling readiness
type ReadyRequest struct {
	Ready bool `json:"ready"`
}

// QuickplayRequest is the request body for quickplay matchmaking
type QuickplayRequest struct {
	Language string `json:"language"`
}
