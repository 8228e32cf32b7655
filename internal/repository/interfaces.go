package repository

import (
	"context"
	"time"

	"github.com/bastago/basta/internal/models"
)

// RemoveMemberResult describes the outcome of an atomic member removal.
// Room deletion on empty and ownership transfer happen inside the same
// transaction as the removal, so callers never observe an empty room.
type RemoveMemberResult struct {
	Removed     bool
	RoomDeleted bool
	NewOwnerID  string // set when ownership transferred
	Remaining   int
}

// GamePatch carries the optional field writes applied together with a
// status transition. Deadlines, when present, always writes all three
// columns so that at most one deadline is active at any time.
type GamePatch struct {
	Deadlines            *Deadlines
	Letter               *string // "" clears
	Round                *int
	SelectorID           *string
	StoppedBy            *string // "" clears
	WinnerID             *string
	ValidationInProgress *bool
}

// Deadlines is the full deadline column set for a game
type Deadlines struct {
	Category   *time.Time
	Letter     *time.Time
	Validation *time.Time
}

// PlayerRoundAnswer pairs a stored answer sheet with its owner
type PlayerRoundAnswer struct {
	PlayerID string
	Answer   models.RoundAnswer
}

// PlayerRepository defines durable per-player stat operations
type PlayerRepository interface {
	UpsertPlayer(ctx context.Context, id, username string) error
	GetPlayer(ctx context.Context, id string) (*models.Player, error)
	RecordGamePlayed(ctx context.Context, playerID string, won bool) error
}

// RoomRepository defines room lifecycle data operations
type RoomRepository interface {
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, id string) (*models.Room, error)
	GetRoomByInviteCode(ctx context.Context, code string) (*models.Room, error)
	ListWaitingRooms(ctx context.Context, language string) ([]models.Room, error)
	FindJoinableRoom(ctx context.Context, language string) (*models.Room, error)
	AddRoomMember(ctx context.Context, roomID string, member models.RoomMember) (bool, error)
	SetMemberReady(ctx context.Context, roomID, playerID string, ready bool) error
	RemoveRoomMember(ctx context.Context, roomID, playerID string) (*RemoveMemberResult, error)
	SetRoomStatus(ctx context.Context, roomID string, from, to models.RoomStatus, gameID *string) (bool, error)
	TouchRoom(ctx context.Context, roomID string, expiresAt time.Time) error
	SweepRooms(ctx context.Context, now time.Time) (int, error)
}

// GameRepository defines game session data operations. Every mutation that
// can race carries an embedded condition and reports whether it won via its
// bool return (rows-affected discipline).
type GameRepository interface {
	CreateGame(ctx context.Context, game *models.GameSession) error
	GetGame(ctx context.Context, id string) (*models.GameSession, error)
	AddCategory(ctx context.Context, gameID, name string, cap int) (bool, error)
	CountCategories(ctx context.Context, gameID string) (int, error)
	AcceptLetter(ctx context.Context, gameID, letter string) (bool, error)
	TransitionStatus(ctx context.Context, gameID string, from, to models.GameStatus, patch GamePatch) (bool, error)
	BeginValidation(ctx context.Context, gameID string) (bool, error)
	SetPlayerConnection(ctx context.Context, gameID, playerID string, disconnected bool) error
	ApplyRoundScores(ctx context.Context, gameID string, scores map[string]int) error
}

// AnswerRepository defines answer sheet operations
type AnswerRepository interface {
	UpsertRoundAnswer(ctx context.Context, gameID, playerID string, answer models.RoundAnswer) error
	ListRoundAnswers(ctx context.Context, gameID string, round int) ([]PlayerRoundAnswer, error)
	CountRoundAnswers(ctx context.Context, gameID string, round int) (int, error)
	MarkRoundAnswer(ctx context.Context, gameID, playerID string, round int, answers []models.CategoryAnswer) error
}

// VoteRepository defines the collective-vote operations (category confirm,
// next-round ready, rematch ready)
type VoteRepository interface {
	AddVote(ctx context.Context, gameID string, kind models.VoteKind, round int, playerID string) (bool, error)
	CountVotes(ctx context.Context, gameID string, kind models.VoteKind, round int) (int, error)
	ClearVotes(ctx context.Context, gameID string, kind models.VoteKind, round int) error
}

// Store combines all repository interfaces.
// Use this when a service needs access to multiple domains.
type Store interface {
	PlayerRepository
	RoomRepository
	GameRepository
	AnswerRepository
	VoteRepository
}

// Ensure Repository implements all interfaces
var _ Store = (*Repository)(nil)
