package services

import (
	"time"

	"github.com/bastago/basta/internal/models"
)

// Broadcaster publishes events to a channel's subscribers. Implemented by
// the websocket hub. Services publish only after the corresponding store
// write has been applied, so clients never observe uncommitted state.
type Broadcaster interface {
	Publish(channel, event string, payload interface{})
}

// Channel naming. A game session and its room each have a channel;
// individual players are addressable for direct notifications.

func GameChannel(gameID string) string {
	return "game:" + gameID
}

func RoomChannel(roomID string) string {
	return "room:" + roomID
}

func PlayerChannel(playerID string) string {
	return "player:" + playerID
}

// Outbound event names
const (
	EventCategoryPhaseStarted = "category-phase-started"
	EventCategoryAdded        = "category-added"
	EventCategoriesConfirmed  = "categories-confirmed"
	EventLetterPhaseStarted   = "letter-phase-started"
	EventLetterAccepted       = "letter-accepted"
	EventLetterRevealed       = "letter-revealed"
	EventPlayerStopped        = "player-stopped"
	EventPlayerSubmitted      = "player-submitted"
	EventRoundEnded           = "round-ended"
	EventRoundResults         = "round-results"
	EventNextRoundCountdown   = "next-round-countdown"
	EventGameFinished         = "game-finished"
	EventRematchCountdown     = "rematch-countdown"
	EventRematchAborted       = "rematch-aborted"
	EventQuickplayMatched     = "quickplay-matched"
	EventGameStarted          = "game-started"
	EventPlayerJoined         = "player-joined"
	EventPlayerLeft           = "player-left"
	EventOwnerChanged         = "owner-changed"
	EventRoomUpdated          = "room-updated"
)

// Round-end reasons
const (
	ReasonStopped = "stopped"
	ReasonTimeout = "timeout"
)

// Outbound payloads

type CategoryPhaseStartedPayload struct {
	GameID         string    `json:"game_id"`
	Categories     []string  `json:"categories"`
	Deadline       time.Time `json:"deadline"`
	ConfirmedCount int       `json:"confirmed_count"`
	Total          int       `json:"total"`
}

type CategoryAddedPayload struct {
	Categories []string `json:"categories"`
}

type CategoriesConfirmedPayload struct {
	Categories   []string `json:"categories"`
	NextSelector string   `json:"next_selector"`
}

type LetterPhaseStartedPayload struct {
	SelectorID   string    `json:"selector_id"`
	SelectorName string    `json:"selector_name"`
	Deadline     time.Time `json:"deadline"`
	Round        int       `json:"round"`
}

type LetterAcceptedPayload struct {
	Letter         string    `json:"letter"`
	RevealDeadline time.Time `json:"reveal_deadline"`
}

type LetterRevealedPayload struct {
	Letter   string    `json:"letter"`
	Deadline time.Time `json:"deadline"`
	Round    int       `json:"round"`
}

type PlayerStoppedPayload struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
}

type PlayerSubmittedPayload struct {
	PlayerID       string `json:"player_id"`
	SubmittedCount int    `json:"submitted_count"`
}

type RoundEndedPayload struct {
	Reason             string    `json:"reason"`
	ValidationDeadline time.Time `json:"validation_deadline"`
}

type RoundResultsPayload struct {
	Round     int                            `json:"round"`
	Standings []models.Standing              `json:"standings"`
	Results   map[string]models.RoundAnswer  `json:"results"` // player id -> scored sheet
}

type CountdownPayload struct {
	SecondsRemaining int `json:"seconds_remaining"`
}

type GameFinishedPayload struct {
	Winner    *string           `json:"winner"`
	Standings []models.Standing `json:"standings"`
}

type RematchAbortedPayload struct {
	Reason string `json:"reason"`
}

type QuickplayMatchedPayload struct {
	RoomID string `json:"room_id"`
}

type GameStartedPayload struct {
	GameID string `json:"game_id"`
}

type PlayerJoinedPayload struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
}

type PlayerLeftPayload struct {
	PlayerID string `json:"player_id"`
}

type OwnerChangedPayload struct {
	OwnerID string `json:"owner_id"`
}
