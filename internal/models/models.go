package models

import "time"

// GameStatus represents the phase a game session is in
type GameStatus string

const (
	StatusSelectingCategories GameStatus = "selecting_categories"
	StatusSelectingLetter     GameStatus = "selecting_letter"
	StatusPlaying             GameStatus = "playing"
	StatusValidating          GameStatus = "validating"
	StatusRoundEnded          GameStatus = "round_ended"
	StatusFinished            GameStatus = "finished"
)

// RoomStatus represents the lifecycle state of a room
type RoomStatus string

const (
	RoomWaiting    RoomStatus = "waiting"
	RoomInProgress RoomStatus = "in_progress"
	RoomFinished   RoomStatus = "finished"
)

// Visibility controls whether a room shows up in public listings
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// VoteKind identifies the collective votes a game collects
type VoteKind string

const (
	VoteCategories VoteKind = "categories"
	VoteNextRound  VoteKind = "next_round"
	VoteRematch    VoteKind = "rematch"
)

// Room is a lobby that hosts game sessions
type Room struct {
	ID         string       `json:"id"`
	OwnerID    string       `json:"owner_id"`
	Capacity   int          `json:"capacity"`
	Visibility Visibility   `json:"visibility"`
	Password   string       `json:"-"`
	InviteCode string       `json:"invite_code"`
	Status     RoomStatus   `json:"status"`
	Language   string       `json:"language"`
	Rounds     int          `json:"rounds"`
	GameID     *string      `json:"game_id,omitempty"`
	Members    []RoomMember `json:"members"`
	ExpiresAt  time.Time    `json:"expires_at"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Member returns the membership entry for a player, or nil
func (r *Room) Member(playerID string) *RoomMember {
	for i := range r.Members {
		if r.Members[i].PlayerID == playerID {
			return &r.Members[i]
		}
	}
	return nil
}

// IsFull reports whether the room is at capacity
func (r *Room) IsFull() bool {
	return len(r.Members) >= r.Capacity
}

// RoomMember is a player's membership in a room
type RoomMember struct {
	PlayerID string    `json:"player_id"`
	Username string    `json:"username"`
	Ready    bool      `json:"ready"`
	JoinedAt time.Time `json:"joined_at"`
}

// Player holds durable per-player stats
type Player struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	GamesPlayed int    `json:"games_played"`
	GamesWon    int    `json:"games_won"`
}

// GameSession is one running instance of the category/letter/round game
type GameSession struct {
	ID                   string        `json:"id"`
	RoomID               string        `json:"room_id"`
	Language             string        `json:"language"`
	TotalRounds          int           `json:"total_rounds"`
	Round                int           `json:"round"`
	Categories           []string      `json:"categories"`
	Letter               string        `json:"letter,omitempty"`
	UsedLetters          []string      `json:"used_letters"`
	SelectorID           string        `json:"selector_id"`
	CategoryDeadline     *time.Time    `json:"category_deadline,omitempty"`
	LetterDeadline       *time.Time    `json:"letter_deadline,omitempty"`
	ValidationDeadline   *time.Time    `json:"validation_deadline,omitempty"`
	ValidationInProgress bool          `json:"validation_in_progress"`
	StoppedBy            string        `json:"stopped_by,omitempty"`
	Status               GameStatus    `json:"status"`
	WinnerID             *string       `json:"winner_id,omitempty"`
	Players              []PlayerState `json:"players"`
	CreatedAt            time.Time     `json:"created_at"`
}

// PlayerState returns the state entry for a player, or nil
func (g *GameSession) PlayerState(playerID string) *PlayerState {
	for i := range g.Players {
		if g.Players[i].PlayerID == playerID {
			return &g.Players[i]
		}
	}
	return nil
}

// HasUsedLetter reports whether a letter was already played this game
func (g *GameSession) HasUsedLetter(letter string) bool {
	for _, l := range g.UsedLetters {
		if l == letter {
			return true
		}
	}
	return false
}

// ActiveDeadlines returns the non-nil deadlines. The phase controller
// maintains the invariant that at most one is active at a time.
func (g *GameSession) ActiveDeadlines() []*time.Time {
	var active []*time.Time
	for _, d := range []*time.Time{g.CategoryDeadline, g.LetterDeadline, g.ValidationDeadline} {
		if d != nil {
			active = append(active, d)
		}
	}
	return active
}

// PlayerState is a player's standing within one game session
type PlayerState struct {
	PlayerID          string        `json:"player_id"`
	Username          string        `json:"username"`
	Score             int           `json:"score"`
	Disconnected      bool          `json:"disconnected"`
	ScoreAtDisconnect int           `json:"score_at_disconnect"`
	JoinOrder         int           `json:"join_order"`
	Answers           []RoundAnswer `json:"answers"`
}

// AnswerForRound returns the player's answer sheet for a round, or nil.
// At most one exists per round (submissions upsert by round).
func (p *PlayerState) AnswerForRound(round int) *RoundAnswer {
	for i := range p.Answers {
		if p.Answers[i].Round == round {
			return &p.Answers[i]
		}
	}
	return nil
}

// RoundAnswer is one player's full answer sheet for one round
type RoundAnswer struct {
	Round        int              `json:"round"`
	Letter       string           `json:"letter"`
	Answers      []CategoryAnswer `json:"answers"`
	StoppedFirst bool             `json:"stopped_first"`
	SubmittedAt  time.Time        `json:"submitted_at"`
}

// CategoryAnswer is a single category entry on an answer sheet
type CategoryAnswer struct {
	Category string `json:"category"`
	Text     string `json:"text"`
	Valid    bool   `json:"valid"`
	Points   int    `json:"points"`
}

// Standing is one row of a ranked scoreboard
type Standing struct {
	Position int    `json:"position"`
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
