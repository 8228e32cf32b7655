package services

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bastago/basta/internal/errors"
	"github.com/bastago/basta/internal/logger"
	"github.com/bastago/basta/internal/models"
	"github.com/bastago/basta/internal/repository"
)

const inviteCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no 0/O/1/I

// RoomService manages room lifecycle: creation, membership, readiness and
// handing a full lobby over to the phase service.
type RoomService struct {
	log    logger.Logger
	store  repository.Store
	phase  *PhaseService
	timers *TimerScheduler
	bus    Broadcaster
	cfg    Config
}

// NewRoomService creates a new RoomService
func NewRoomService(log logger.Logger, store repository.Store, phase *PhaseService, timers *TimerScheduler, bus Broadcaster, cfg Config) *RoomService {
	return &RoomService{
		log:    log,
		store:  store,
		phase:  phase,
		timers: timers,
		bus:    bus,
		cfg:    cfg,
	}
}

// CreateRoomParams carries the caller-controlled room settings
type CreateRoomParams struct {
	OwnerID       string
	OwnerUsername string
	Capacity      int
	Visibility    models.Visibility
	Password      string
	Language      string
	Rounds        int
}

// CreateRoom creates a room with the creator as owner and first member.
// The owner is always ready.
func (s *RoomService) CreateRoom(ctx context.Context, p CreateRoomParams) (*models.Room, error) {
	if p.OwnerID == "" || p.OwnerUsername == "" {
		return nil, errors.InvalidInput("owner is required")
	}
	if p.Capacity < 2 {
		p.Capacity = 2
	}
	if p.Capacity > s.cfg.MaxRoomCapacity {
		p.Capacity = s.cfg.MaxRoomCapacity
	}
	if p.Visibility != models.VisibilityPrivate {
		p.Visibility = models.VisibilityPublic
	}
	if _, ok := defaultCategories[p.Language]; !ok {
		p.Language = "en"
	}
	if p.Rounds < 1 || p.Rounds > s.cfg.MaxRounds {
		p.Rounds = s.cfg.DefaultRounds
	}

	now := time.Now()
	room := &models.Room{
		ID:         uuid.NewString(),
		OwnerID:    p.OwnerID,
		Capacity:   p.Capacity,
		Visibility: p.Visibility,
		Password:   p.Password,
		Status:     models.RoomWaiting,
		Language:   p.Language,
		Rounds:     p.Rounds,
		ExpiresAt:  now.Add(s.cfg.RoomTTL),
		CreatedAt:  now,
		Members: []models.RoomMember{{
			PlayerID: p.OwnerID,
			Username: p.OwnerUsername,
			Ready:    true,
			JoinedAt: now,
		}},
	}

	// Invite codes live in a small space; retry on the rare collision
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		room.InviteCode = newInviteCode(6)
		if err = s.store.CreateRoom(ctx, room); err == nil {
			s.log.Info("Room created", "room_id", room.ID, "owner_id", p.OwnerID, "visibility", room.Visibility)
			return room, nil
		}
	}
	return nil, errors.Wrap(err, errors.ErrInternal, "failed to create room")
}

func newInviteCode(n int) string {
	var b strings.Builder
	max := big.NewInt(int64(len(inviteCodeAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err) // crypto/rand failure is unrecoverable
		}
		b.WriteByte(inviteCodeAlphabet[idx.Int64()])
	}
	return b.String()
}

// GetRoom returns a room by id.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err == repository.ErrNotFound {
		return nil, errors.NotFound("room not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to load room")
	}
	return room, nil
}

// ListRooms returns joinable public rooms, optionally filtered by language.
func (s *RoomService) ListRooms(ctx context.Context, language string) ([]models.Room, error) {
	rooms, err := s.store.ListWaitingRooms(ctx, language)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to list rooms")
	}
	return rooms, nil
}

// JoinRoom adds a player to a room. Joining an already-joined room is a
// no-op success. Capacity is enforced by the store's conditional insert so
// two simultaneous joins on the last seat admit exactly one.
func (s *RoomService) JoinRoom(ctx context.Context, roomID, playerID, username, password string) (*models.Room, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != models.RoomWaiting {
		return nil, errors.Conflict("the game in this room has already started")
	}
	if room.Member(playerID) != nil {
		return room, nil
	}
	if room.Password != "" && room.Password != password {
		return nil, errors.Unauthorized("wrong room password")
	}
	if room.IsFull() {
		return nil, errors.Conflict("room is full")
	}

	member := models.RoomMember{
		PlayerID: playerID,
		Username: username,
		JoinedAt: time.Now(),
	}
	added, err := s.store.AddRoomMember(ctx, roomID, member)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to join room")
	}
	if !added {
		return nil, errors.Conflict("room is full")
	}

	// Activity extends the room's life
	if err := s.store.TouchRoom(ctx, roomID, time.Now().Add(s.cfg.RoomTTL)); err != nil {
		s.log.Warn("Failed to refresh room expiry", "room_id", roomID, "error", err)
	}

	room, err = s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	s.bus.Publish(RoomChannel(roomID), EventPlayerJoined, PlayerJoinedPayload{
		PlayerID: playerID,
		Username: username,
	})
	s.bus.Publish(RoomChannel(roomID), EventRoomUpdated, room)
	return room, nil
}

// JoinByInviteCode resolves an invite code and joins the room.
func (s *RoomService) JoinByInviteCode(ctx context.Context, code, playerID, username, password string) (*models.Room, error) {
	room, err := s.store.GetRoomByInviteCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err == repository.ErrNotFound {
		return nil, errors.NotFound("no room with that invite code")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to resolve invite code")
	}
	return s.JoinRoom(ctx, room.ID, playerID, username, password)
}

// LeaveRoom removes a player. The store deletes the room when the last
// member leaves and transfers ownership to the longest-standing member
// otherwise; this method only reports what happened and notifies the game.
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, playerID string) error {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}

	res, err := s.store.RemoveRoomMember(ctx, roomID, playerID)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to leave room")
	}
	if !res.Removed {
		return errors.NotFound("you are not in this room")
	}

	if res.RoomDeleted {
		if room.GameID != nil {
			s.timers.CancelAll(*room.GameID)
		}
		s.log.Info("Room deleted, last member left", "room_id", roomID)
		return nil
	}

	s.bus.Publish(RoomChannel(roomID), EventPlayerLeft, PlayerLeftPayload{PlayerID: playerID})
	if res.NewOwnerID != "" {
		s.bus.Publish(RoomChannel(roomID), EventOwnerChanged, OwnerChangedPayload{OwnerID: res.NewOwnerID})
	}
	if room.GameID != nil {
		s.phase.HandlePlayerLeft(ctx, *room.GameID, playerID)
	}
	return nil
}

// SetReady flips a member's ready flag.
func (s *RoomService) SetReady(ctx context.Context, roomID, playerID string, ready bool) error {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Member(playerID) == nil {
		return errors.NotFound("you are not in this room")
	}
	if room.Status != models.RoomWaiting {
		return errors.Phase("readiness only matters before the game starts")
	}
	if err := s.store.SetMemberReady(ctx, roomID, playerID, ready); err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to set ready state")
	}

	room, err = s.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	s.bus.Publish(RoomChannel(roomID), EventRoomUpdated, room)
	return nil
}

// StartGame begins the session. Only the owner may start, at least two
// members must be present, and everyone must be ready.
func (s *RoomService) StartGame(ctx context.Context, roomID, playerID string) (*models.GameSession, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.OwnerID != playerID {
		return nil, errors.Unauthorized("only the room owner can start the game")
	}
	if room.Status != models.RoomWaiting {
		return nil, errors.Conflict("the game has already started")
	}
	if len(room.Members) < 2 {
		return nil, errors.Validation("at least two players are required to start")
	}
	for _, m := range room.Members {
		if !m.Ready {
			return nil, errors.Validationf("%s is not ready", m.Username)
		}
	}
	return s.phase.StartGame(ctx, room)
}

// StartSweeper runs the expired-room collector until ctx is cancelled.
func (s *RoomService) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				swept, err := s.store.SweepRooms(ctx, now)
				if err != nil {
					s.log.Error("Room sweep failed", "error", err)
					continue
				}
				if swept > 0 {
					s.log.Info("Swept expired rooms", "count", swept)
				}
			}
		}
	}()
}
