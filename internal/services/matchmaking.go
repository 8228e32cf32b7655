package services

import (
	"context"
	"sync"
	"time"

	"github.com/bastago/basta/internal/errors"
	"github.com/bastago/basta/internal/logger"
	"github.com/bastago/basta/internal/metrics"
	"github.com/bastago/basta/internal/models"
)

// queuedPlayer is one waiting quickplay entrant
type queuedPlayer struct {
	PlayerID string
	Username string
	Language string
	JoinedAt time.Time
}

// MatchmakingService runs the in-process quickplay queue. A quickplay
// request first tries to drop the player into an existing joinable public
// room; only when none exists does the player wait in the queue. Once
// enough players of one language have accumulated, a room is formed on
// their behalf and each is notified on their player channel.
type MatchmakingService struct {
	log   logger.Logger
	rooms *RoomService
	bus   Broadcaster
	cfg   Config

	mu    sync.Mutex
	queue []queuedPlayer
}

// NewMatchmakingService creates a new MatchmakingService
func NewMatchmakingService(log logger.Logger, rooms *RoomService, bus Broadcaster, cfg Config) *MatchmakingService {
	return &MatchmakingService{
		log:   log,
		rooms: rooms,
		bus:   bus,
		cfg:   cfg,
	}
}

// QuickplayResult reports the immediate outcome of a quickplay request
type QuickplayResult struct {
	Room   *models.Room `json:"room,omitempty"`
	Queued bool         `json:"queued"`
}

// Quickplay places the player in a public room or the waiting queue.
func (s *MatchmakingService) Quickplay(ctx context.Context, playerID, username, language string) (*QuickplayResult, error) {
	if _, ok := defaultCategories[language]; !ok {
		language = "en"
	}

	if room, err := s.rooms.store.FindJoinableRoom(ctx, language); err == nil && room != nil {
		joined, err := s.rooms.JoinRoom(ctx, room.ID, playerID, username, "")
		if err == nil {
			return &QuickplayResult{Room: joined}, nil
		}
		// Lost the seat race; fall through to the queue
		s.log.Debug("Quickplay direct join failed, queueing", "player_id", playerID, "error", err)
	}

	s.mu.Lock()
	if len(s.queue) >= s.cfg.QueueLimit {
		s.mu.Unlock()
		return nil, errors.Conflict("matchmaking queue is full")
	}
	for _, q := range s.queue {
		if q.PlayerID == playerID {
			s.mu.Unlock()
			return &QuickplayResult{Queued: true}, nil
		}
	}
	s.queue = append(s.queue, queuedPlayer{
		PlayerID: playerID,
		Username: username,
		Language: language,
		JoinedAt: time.Now(),
	})
	batch := s.takeBatchLocked(language)
	metrics.QueuedPlayers.Set(float64(len(s.queue)))
	s.mu.Unlock()

	if batch == nil {
		return &QuickplayResult{Queued: true}, nil
	}

	room, err := s.formRoom(ctx, batch)
	if err != nil {
		// Put everyone back so the next entrant retries the match
		s.requeue(batch)
		return nil, err
	}
	return &QuickplayResult{Room: room}, nil
}

// takeBatchLocked extracts a full batch for one language, oldest first.
// Caller holds mu.
func (s *MatchmakingService) takeBatchLocked(language string) []queuedPlayer {
	var batch []queuedPlayer
	for _, q := range s.queue {
		if q.Language == language {
			batch = append(batch, q)
			if len(batch) == s.cfg.QuickplayMin {
				break
			}
		}
	}
	if len(batch) < s.cfg.QuickplayMin {
		return nil
	}

	taken := make(map[string]bool, len(batch))
	for _, q := range batch {
		taken[q.PlayerID] = true
	}
	kept := s.queue[:0]
	for _, q := range s.queue {
		if !taken[q.PlayerID] {
			kept = append(kept, q)
		}
	}
	s.queue = kept
	return batch
}

func (s *MatchmakingService) requeue(batch []queuedPlayer) {
	s.mu.Lock()
	s.queue = append(batch, s.queue...)
	metrics.QueuedPlayers.Set(float64(len(s.queue)))
	s.mu.Unlock()
}

// formRoom creates a room owned by the longest-waiting player and seats
// the rest of the batch. Only the owner starts ready; the rest confirm
// themselves like any other member.
func (s *MatchmakingService) formRoom(ctx context.Context, batch []queuedPlayer) (*models.Room, error) {
	owner := batch[0]
	room, err := s.rooms.CreateRoom(ctx, CreateRoomParams{
		OwnerID:       owner.PlayerID,
		OwnerUsername: owner.Username,
		Capacity:      s.cfg.MaxRoomCapacity,
		Visibility:    models.VisibilityPublic,
		Language:      owner.Language,
		Rounds:        s.cfg.DefaultRounds,
	})
	if err != nil {
		return nil, err
	}

	for _, q := range batch[1:] {
		if _, err := s.rooms.JoinRoom(ctx, room.ID, q.PlayerID, q.Username, ""); err != nil {
			s.log.Warn("Matched player could not be seated", "player_id", q.PlayerID, "room_id", room.ID, "error", err)
		}
	}

	room, err = s.rooms.GetRoom(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	for _, q := range batch {
		s.bus.Publish(PlayerChannel(q.PlayerID), EventQuickplayMatched, QuickplayMatchedPayload{RoomID: room.ID})
	}
	s.log.Info("Quickplay match formed", "room_id", room.ID, "players", len(batch), "language", owner.Language)
	return room, nil
}

// Leave removes a player from the queue. Leaving when not queued is a
// no-op.
func (s *MatchmakingService) Leave(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.queue[:0]
	for _, q := range s.queue {
		if q.PlayerID != playerID {
			kept = append(kept, q)
		}
	}
	s.queue = kept
	metrics.QueuedPlayers.Set(float64(len(s.queue)))
}

// Queued reports whether a player is currently waiting.
func (s *MatchmakingService) Queued(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.queue {
		if q.PlayerID == playerID {
			return true
		}
	}
	return false
}
