// Package mock wraps a real Store with per-method error injection for
// exercising failure paths in service tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/bastago/basta/internal/models"
	"github.com/bastago/basta/internal/repository"
)

// Store delegates to an underlying repository.Store unless an error has
// been injected for the called method.
type Store struct {
	inner repository.Store

	mu   sync.Mutex
	errs map[string]error
}

// New wraps a store for error injection
func New(inner repository.Store) *Store {
	return &Store{inner: inner, errs: make(map[string]error)}
}

// FailWith makes the named method return err until cleared.
func (s *Store) FailWith(method string, err error) {
	s.mu.Lock()
	s.errs[method] = err
	s.mu.Unlock()
}

// Clear removes the injected error for a method.
func (s *Store) Clear(method string) {
	s.mu.Lock()
	delete(s.errs, method)
	s.mu.Unlock()
}

func (s *Store) errFor(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs[method]
}

var _ repository.Store = (*Store)(nil)

func (s *Store) UpsertPlayer(ctx context.Context, id, username string) error {
	if err := s.errFor("UpsertPlayer"); err != nil {
		return err
	}
	return s.inner.UpsertPlayer(ctx, id, username)
}

func (s *Store) GetPlayer(ctx context.Context, id string) (*models.Player, error) {
	if err := s.errFor("GetPlayer"); err != nil {
		return nil, err
	}
	return s.inner.GetPlayer(ctx, id)
}

func (s *Store) RecordGamePlayed(ctx context.Context, playerID string, won bool) error {
	if err := s.errFor("RecordGamePlayed"); err != nil {
		return err
	}
	return s.inner.RecordGamePlayed(ctx, playerID, won)
}

func (s *Store) CreateRoom(ctx context.Context, room *models.Room) error {
	if err := s.errFor("CreateRoom"); err != nil {
		return err
	}
	return s.inner.CreateRoom(ctx, room)
}

func (s *Store) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	if err := s.errFor("GetRoom"); err != nil {
		return nil, err
	}
	return s.inner.GetRoom(ctx, id)
}

func (s *Store) GetRoomByInviteCode(ctx context.Context, code string) (*models.Room, error) {
	if err := s.errFor("GetRoomByInviteCode"); err != nil {
		return nil, err
	}
	return s.inner.GetRoomByInviteCode(ctx, code)
}

func (s *Store) ListWaitingRooms(ctx context.Context, language string) ([]models.Room, error) {
	if err := s.errFor("ListWaitingRooms"); err != nil {
		return nil, err
	}
	return s.inner.ListWaitingRooms(ctx, language)
}

func (s *Store) FindJoinableRoom(ctx context.Context, language string) (*models.Room, error) {
	if err := s.errFor("FindJoinableRoom"); err != nil {
		return nil, err
	}
	return s.inner.FindJoinableRoom(ctx, language)
}

func (s *Store) AddRoomMember(ctx context.Context, roomID string, member models.RoomMember) (bool, error) {
	if err := s.errFor("AddRoomMember"); err != nil {
		return false, err
	}
	return s.inner.AddRoomMember(ctx, roomID, member)
}

func (s *Store) SetMemberReady(ctx context.Context, roomID, playerID string, ready bool) error {
	if err := s.errFor("SetMemberReady"); err != nil {
		return err
	}
	return s.inner.SetMemberReady(ctx, roomID, playerID, ready)
}

func (s *Store) RemoveRoomMember(ctx context.Context, roomID, playerID string) (*repository.RemoveMemberResult, error) {
	if err := s.errFor("RemoveRoomMember"); err != nil {
		return nil, err
	}
	return s.inner.RemoveRoomMember(ctx, roomID, playerID)
}

func (s *Store) SetRoomStatus(ctx context.Context, roomID string, from, to models.RoomStatus, gameID *string) (bool, error) {
	if err := s.errFor("SetRoomStatus"); err != nil {
		return false, err
	}
	return s.inner.SetRoomStatus(ctx, roomID, from, to, gameID)
}

func (s *Store) TouchRoom(ctx context.Context, roomID string, expiresAt time.Time) error {
	if err := s.errFor("TouchRoom"); err != nil {
		return err
	}
	return s.inner.TouchRoom(ctx, roomID, expiresAt)
}

func (s *Store) SweepRooms(ctx context.Context, now time.Time) (int, error) {
	if err := s.errFor("SweepRooms"); err != nil {
		return 0, err
	}
	return s.inner.SweepRooms(ctx, now)
}

func (s *Store) CreateGame(ctx context.Context, game *models.GameSession) error {
	if err := s.errFor("CreateGame"); err != nil {
		return err
	}
	return s.inner.CreateGame(ctx, game)
}

func (s *Store) GetGame(ctx context.Context, id string) (*models.GameSession, error) {
	if err := s.errFor("GetGame"); err != nil {
		return nil, err
	}
	return s.inner.GetGame(ctx, id)
}

func (s *Store) AddCategory(ctx context.Context, gameID, name string, cap int) (bool, error) {
	if err := s.errFor("AddCategory"); err != nil {
		return false, err
	}
	return s.inner.AddCategory(ctx, gameID, name, cap)
}

func (s *Store) CountCategories(ctx context.Context, gameID string) (int, error) {
	if err := s.errFor("CountCategories"); err != nil {
		return 0, err
	}
	return s.inner.CountCategories(ctx, gameID)
}

func (s *Store) AcceptLetter(ctx context.Context, gameID, letter string) (bool, error) {
	if err := s.errFor("AcceptLetter"); err != nil {
		return false, err
	}
	return s.inner.AcceptLetter(ctx, gameID, letter)
}

func (s *Store) TransitionStatus(ctx context.Context, gameID string, from, to models.GameStatus, patch repository.GamePatch) (bool, error) {
	if err := s.errFor("TransitionStatus"); err != nil {
		return false, err
	}
	return s.inner.TransitionStatus(ctx, gameID, from, to, patch)
}

func (s *Store) BeginValidation(ctx context.Context, gameID string) (bool, error) {
	if err := s.errFor("BeginValidation"); err != nil {
		return false, err
	}
	return s.inner.BeginValidation(ctx, gameID)
}

func (s *Store) SetPlayerConnection(ctx context.Context, gameID, playerID string, disconnected bool) error {
	if err := s.errFor("SetPlayerConnection"); err != nil {
		return err
	}
	return s.inner.SetPlayerConnection(ctx, gameID, playerID, disconnected)
}

func (s *Store) ApplyRoundScores(ctx context.Context, gameID string, scores map[string]int) error {
	if err := s.errFor("ApplyRoundScores"); err != nil {
		return err
	}
	return s.inner.ApplyRoundScores(ctx, gameID, scores)
}

func (s *Store) UpsertRoundAnswer(ctx context.Context, gameID, playerID string, answer models.RoundAnswer) error {
	if err := s.errFor("UpsertRoundAnswer"); err != nil {
		return err
	}
	return s.inner.UpsertRoundAnswer(ctx, gameID, playerID, answer)
}

func (s *Store) ListRoundAnswers(ctx context.Context, gameID string, round int) ([]repository.PlayerRoundAnswer, error) {
	if err := s.errFor("ListRoundAnswers"); err != nil {
		return nil, err
	}
	return s.inner.ListRoundAnswers(ctx, gameID, round)
}

func (s *Store) CountRoundAnswers(ctx context.Context, gameID string, round int) (int, error) {
	if err := s.errFor("CountRoundAnswers"); err != nil {
		return 0, err
	}
	return s.inner.CountRoundAnswers(ctx, gameID, round)
}

func (s *Store) MarkRoundAnswer(ctx context.Context, gameID, playerID string, round int, answers []models.CategoryAnswer) error {
	if err := s.errFor("MarkRoundAnswer"); err != nil {
		return err
	}
	return s.inner.MarkRoundAnswer(ctx, gameID, playerID, round, answers)
}

func (s *Store) AddVote(ctx context.Context, gameID string, kind models.VoteKind, round int, playerID string) (bool, error) {
	if err := s.errFor("AddVote"); err != nil {
		return false, err
	}
	return s.inner.AddVote(ctx, gameID, kind, round, playerID)
}

func (s *Store) CountVotes(ctx context.Context, gameID string, kind models.VoteKind, round int) (int, error) {
	if err := s.errFor("CountVotes"); err != nil {
		return 0, err
	}
	return s.inner.CountVotes(ctx, gameID, kind, round)
}

func (s *Store) ClearVotes(ctx context.Context, gameID string, kind models.VoteKind, round int) error {
	if err := s.errFor("ClearVotes"); err != nil {
		return err
	}
	return s.inner.ClearVotes(ctx, gameID, kind, round)
}
