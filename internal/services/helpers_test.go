package services_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bastago/basta/internal/logger"
	"github.com/bastago/basta/internal/models"
	"github.com/bastago/basta/internal/repository"
	"github.com/bastago/basta/internal/services"
	"github.com/bastago/basta/internal/testutil"
	"github.com/bastago/basta/pkg/wordjudge"
)

// busEvent is one published notification captured by the fake broadcaster
type busEvent struct {
	Channel string
	Event   string
	Payload interface{}
}

// fakeBus records everything published so tests can assert on the event
// stream without a live websocket hub
type fakeBus struct {
	mu     sync.Mutex
	events []busEvent
}

func (b *fakeBus) Publish(channel, event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, busEvent{Channel: channel, Event: event, Payload: payload})
}

func (b *fakeBus) Count(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

func (b *fakeBus) Last(event string) (busEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].Event == event {
			return b.events[i], true
		}
	}
	return busEvent{}, false
}

// WaitFor polls until the event shows up, for assertions on timer-driven
// paths that run on background goroutines
func (b *fakeBus) WaitFor(t *testing.T, event string, timeout time.Duration) busEvent {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if e, ok := b.Last(event); ok {
			return e
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("event %q was never published", event)
	return busEvent{}
}

// WaitForCount polls until the event has been published n times, for
// flows that pass through the same phase more than once
func (b *fakeBus) WaitForCount(t *testing.T, event string, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if b.Count(event) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("event %q was published %d times, wanted %d", event, b.Count(event), n)
}

// engine wires the full service stack over an in-memory store, a recording
// broadcaster and an always-valid mock judge
type engine struct {
	store    *repository.Repository
	bus      *fakeBus
	judge    *wordjudge.MockClient
	timers   *services.TimerScheduler
	phase    *services.PhaseService
	rooms    *services.RoomService
	sessions *services.SessionService
	matching *services.MatchmakingService
	cfg      services.Config
}

// testConfig returns defaults with timer durations long enough that no
// timer fires during a test; phase callbacks are invoked directly instead
func testConfig() services.Config {
	cfg := services.DefaultConfig()
	cfg.CategoryPhase = time.Minute
	cfg.LetterPhase = time.Minute
	cfg.LetterReveal = time.Minute
	cfg.RoundDuration = time.Minute
	cfg.GraceWindow = time.Minute
	cfg.NextRoundCountdown = time.Minute
	cfg.RematchCountdown = time.Minute
	cfg.MinCategories = 2
	cfg.MaxCategories = 4
	return cfg
}

func newEngine(t *testing.T, cfg services.Config) *engine {
	t.Helper()
	repo := testutil.NewTestRepository(t)
	log := logger.New()
	bus := &fakeBus{}
	judge := wordjudge.NewMockClient(wordjudge.WithDefaultValid())
	timers := services.NewTimerScheduler(log)
	validator := services.NewValidationService(log, judge)
	phase := services.NewPhaseService(log, repo, timers, validator, bus, cfg)
	rooms := services.NewRoomService(log, repo, phase, timers, bus, cfg)
	sessions := services.NewSessionService(log, repo, phase, bus, cfg)
	matching := services.NewMatchmakingService(log, rooms, bus, cfg)
	return &engine{
		store:    repo,
		bus:      bus,
		judge:    judge,
		timers:   timers,
		phase:    phase,
		rooms:    rooms,
		sessions: sessions,
		matching: matching,
		cfg:      cfg,
	}
}

// newReadyRoom creates a room with the given players, everyone ready
func (e *engine) newReadyRoom(t *testing.T, players ...string) *models.Room {
	t.Helper()
	ctx := context.Background()
	room, err := e.rooms.CreateRoom(ctx, services.CreateRoomParams{
		OwnerID:       players[0],
		OwnerUsername: players[0],
		Capacity:      len(players),
		Rounds:        2,
	})
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	for _, p := range players[1:] {
		if _, err := e.rooms.JoinRoom(ctx, room.ID, p, p, ""); err != nil {
			t.Fatalf("JoinRoom(%s) failed: %v", p, err)
		}
		if err := e.rooms.SetReady(ctx, room.ID, p, true); err != nil {
			t.Fatalf("SetReady(%s) failed: %v", p, err)
		}
	}
	room, err = e.rooms.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	return room
}

// newGame starts a session for the players and returns it in the
// category-selection phase
func (e *engine) newGame(t *testing.T, players ...string) *models.GameSession {
	t.Helper()
	room := e.newReadyRoom(t, players...)
	game, err := e.rooms.StartGame(context.Background(), room.ID, players[0])
	if err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	return game
}

// toLetterPhase picks the minimum category set and confirms it for every
// player, leaving the game in letter selection
func (e *engine) toLetterPhase(t *testing.T, game *models.GameSession) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < e.cfg.MinCategories; i++ {
		cat := fmt.Sprintf("Category %d", i+1)
		if err := e.sessions.SelectCategory(ctx, game.ID, game.Players[0].PlayerID, cat); err != nil {
			t.Fatalf("SelectCategory(%s) failed: %v", cat, err)
		}
	}
	for _, p := range game.Players {
		if err := e.sessions.ConfirmCategories(ctx, game.ID, p.PlayerID); err != nil {
			t.Fatalf("ConfirmCategories(%s) failed: %v", p.PlayerID, err)
		}
	}
}

// toPlaying moves a game in letter selection to the playing phase with
// the given letter
func (e *engine) toPlaying(t *testing.T, game *models.GameSession, letter string) {
	t.Helper()
	ctx := context.Background()
	g := e.reload(t, game.ID)
	if err := e.sessions.SelectLetter(ctx, game.ID, g.SelectorID, letter); err != nil {
		t.Fatalf("SelectLetter(%s) failed: %v", letter, err)
	}
	// Skip waiting for the reveal window
	e.phase.RevealLetter(game.ID)
	if got := e.reload(t, game.ID); got.Status != models.StatusPlaying {
		t.Fatalf("expected playing after reveal, got %s", got.Status)
	}
}

// submitAll submits a one-answer-per-category sheet for each player. Every
// answer starts with the round letter so it passes the local heuristic.
func (e *engine) submitAll(t *testing.T, game *models.GameSession, players ...string) {
	t.Helper()
	g := e.reload(t, game.ID)
	for i, p := range players {
		var answers []models.CategoryAnswer
		for _, c := range g.Categories {
			answers = append(answers, models.CategoryAnswer{
				Category: c,
				Text:     fmt.Sprintf("%sword%d", g.Letter, i),
			})
		}
		if err := e.sessions.SubmitAnswers(context.Background(), game.ID, p, answers); err != nil {
			t.Fatalf("SubmitAnswers(%s) failed: %v", p, err)
		}
	}
}

func (e *engine) reload(t *testing.T, gameID string) *models.GameSession {
	t.Helper()
	game, err := e.store.GetGame(context.Background(), gameID)
	if err != nil {
		t.Fatalf("failed to reload game %s: %v", gameID, err)
	}
	return game
}
