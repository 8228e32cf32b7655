package handlers

import "github.com/bastago/basta/internal/models"

// GuestResponse is the response for guest identity creation
type GuestResponse struct {
	Token  string         `json:"token"`
	Player *models.Player `json:"player"`
}

// RoomListResponse wraps the public room listing
type RoomListResponse struct {
	Rooms []models.Room `json:"rooms"`
}

// HealthResponse is the health check response
type HealthResponse struct {
	Status string `json:"status"`
}
