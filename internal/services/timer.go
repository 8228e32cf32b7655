package services

import (
	"sync"
	"time"

	"github.com/bastago/basta/internal/logger"
)

// TimerKind identifies the deadline timers a game session can hold.
// A session has at most one live timer per kind.
type TimerKind string

const (
	TimerCategory   TimerKind = "category"
	TimerLetter     TimerKind = "letter"
	TimerReveal     TimerKind = "reveal"
	TimerRound      TimerKind = "round"
	TimerValidation TimerKind = "validation"
	TimerNextRound  TimerKind = "next_round"
	TimerRematch    TimerKind = "rematch"
)

// TimerScheduler owns every live deadline timer, keyed by game id and kind.
// Scheduling a timer of a kind first cancels any existing one of that kind
// for that game; all cancel/replace logic lives here rather than at call
// sites. Callbacks run on their own goroutine and must re-check game state
// (a conditional update on the game's status) before acting, since a player
// action may have already advanced the phase.
type TimerScheduler struct {
	log    logger.Logger
	mu     sync.Mutex
	timers map[string]map[TimerKind]*time.Timer
}

// NewTimerScheduler creates a new TimerScheduler
func NewTimerScheduler(log logger.Logger) *TimerScheduler {
	return &TimerScheduler{
		log:    log,
		timers: make(map[string]map[TimerKind]*time.Timer),
	}
}

// Schedule arms a timer of the given kind for a game, replacing any
// existing timer of that kind.
func (s *TimerScheduler) Schedule(gameID string, kind TimerKind, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[gameID][kind]; ok {
		existing.Stop()
	}
	if s.timers[gameID] == nil {
		s.timers[gameID] = make(map[TimerKind]*time.Timer)
	}

	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		// Only clear the table entry if it is still ours: Schedule may have
		// replaced us while we were waiting for the lock.
		if current, ok := s.timers[gameID][kind]; ok && current == timer {
			delete(s.timers[gameID], kind)
			if len(s.timers[gameID]) == 0 {
				delete(s.timers, gameID)
			}
		}
		s.mu.Unlock()
		fn()
	})
	s.timers[gameID][kind] = timer

	s.log.Debug("Timer scheduled", "game_id", gameID, "kind", kind, "duration", d)
}

// Cancel stops a timer of the given kind for a game. Returns whether a
// timer was found and stopped before firing.
func (s *TimerScheduler) Cancel(gameID string, kind TimerKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer, ok := s.timers[gameID][kind]
	if !ok {
		return false
	}
	stopped := timer.Stop()
	delete(s.timers[gameID], kind)
	if len(s.timers[gameID]) == 0 {
		delete(s.timers, gameID)
	}

	s.log.Debug("Timer cancelled", "game_id", gameID, "kind", kind, "stopped", stopped)
	return stopped
}

// CancelAll stops every timer for a game. Called when a game ends or its
// room is deleted.
func (s *TimerScheduler) CancelAll(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for kind, timer := range s.timers[gameID] {
		timer.Stop()
		s.log.Debug("Timer cancelled", "game_id", gameID, "kind", kind)
	}
	delete(s.timers, gameID)
}

// Active reports whether a timer of the given kind is currently armed
func (s *TimerScheduler) Active(gameID string, kind TimerKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[gameID][kind]
	return ok
}
