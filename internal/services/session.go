package services

import (
	"context"
	"strings"
	"time"

	"github.com/bastago/basta/internal/errors"
	"github.com/bastago/basta/internal/logger"
	"github.com/bastago/basta/internal/models"
	"github.com/bastago/basta/internal/repository"
)

// SessionService is the player-facing entry point for in-game actions. It
// loads the session, enforces membership and phase preconditions, and
// delegates transitions to the phase service.
type SessionService struct {
	log   logger.Logger
	store repository.Store
	phase *PhaseService
	bus   Broadcaster
	cfg   Config
}

// NewSessionService creates a new SessionService
func NewSessionService(log logger.Logger, store repository.Store, phase *PhaseService, bus Broadcaster, cfg Config) *SessionService {
	return &SessionService{
		log:   log,
		store: store,
		phase: phase,
		bus:   bus,
		cfg:   cfg,
	}
}

// loadFor fetches the session and verifies the player is on its roster.
func (s *SessionService) loadFor(ctx context.Context, gameID, playerID string) (*models.GameSession, error) {
	game, err := s.store.GetGame(ctx, gameID)
	if err == repository.ErrNotFound {
		return nil, errors.NotFound("game not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to load game")
	}
	if game.PlayerState(playerID) == nil {
		return nil, errors.Unauthorized("you are not part of this game")
	}
	return game, nil
}

// GetSession returns the session state for a roster member.
func (s *SessionService) GetSession(ctx context.Context, gameID, playerID string) (*models.GameSession, error) {
	return s.loadFor(ctx, gameID, playerID)
}

// SelectCategory adds one category on the player's behalf.
func (s *SessionService) SelectCategory(ctx context.Context, gameID, playerID, category string) error {
	game, err := s.loadFor(ctx, gameID, playerID)
	if err != nil {
		return err
	}
	return s.phase.AddCategory(ctx, game, playerID, category)
}

// ConfirmCategories registers the player's confirmation vote.
func (s *SessionService) ConfirmCategories(ctx context.Context, gameID, playerID string) error {
	game, err := s.loadFor(ctx, gameID, playerID)
	if err != nil {
		return err
	}
	return s.phase.ConfirmCategories(ctx, game, playerID)
}

// SelectLetter forwards the designated selector's letter pick.
func (s *SessionService) SelectLetter(ctx context.Context, gameID, playerID, letter string) error {
	game, err := s.loadFor(ctx, gameID, playerID)
	if err != nil {
		return err
	}
	return s.phase.SelectLetter(ctx, game, playerID, letter)
}

// SubmitAnswers stores (or overwrites) the player's answer sheet for the
// current round. Submissions are accepted while the round is playing and
// during the grace window after a stop, up to the validation deadline.
func (s *SessionService) SubmitAnswers(ctx context.Context, gameID, playerID string, answers []models.CategoryAnswer) error {
	game, err := s.loadFor(ctx, gameID, playerID)
	if err != nil {
		return err
	}

	switch game.Status {
	case models.StatusPlaying:
	case models.StatusValidating:
		if game.ValidationDeadline == nil || time.Now().After(*game.ValidationDeadline) {
			return errors.Phase("the submission window has closed")
		}
	default:
		return errors.Phase("answers can only be submitted during a round")
	}

	seen := make(map[string]bool, len(game.Categories))
	for _, c := range game.Categories {
		seen[c] = false
	}
	kept := make([]models.CategoryAnswer, 0, len(answers))
	for _, ans := range answers {
		marked, known := seen[ans.Category]
		if !known || marked {
			continue // unknown or duplicate category, drop silently
		}
		seen[ans.Category] = true
		kept = append(kept, models.CategoryAnswer{
			Category: ans.Category,
			Text:     strings.TrimSpace(ans.Text),
		})
	}

	sheet := models.RoundAnswer{
		Round:       game.Round,
		Letter:      game.Letter,
		Answers:     kept,
		SubmittedAt: time.Now(),
	}
	// Last write wins. The game row's stop marker is authoritative for the
	// speed bonus; a snapshot of the previous sheet may predate the stop.
	sheet.StoppedFirst = game.StoppedBy != "" && game.StoppedBy == playerID

	if err := s.store.UpsertRoundAnswer(ctx, gameID, playerID, sheet); err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to store answers")
	}

	submitted, err := s.store.CountRoundAnswers(ctx, gameID, game.Round)
	if err != nil {
		s.log.Warn("Failed to count submissions", "game_id", gameID, "error", err)
		submitted = 0
	}
	s.bus.Publish(GameChannel(gameID), EventPlayerSubmitted, PlayerSubmittedPayload{
		PlayerID:       playerID,
		SubmittedCount: submitted,
	})
	return nil
}

// Stop submits the player's current sheet and races for the stop. Answers
// ride along so that stopping and submitting are one action for clients.
func (s *SessionService) Stop(ctx context.Context, gameID, playerID string, answers []models.CategoryAnswer) error {
	if len(answers) > 0 {
		if err := s.SubmitAnswers(ctx, gameID, playerID, answers); err != nil {
			return err
		}
	}
	game, err := s.loadFor(ctx, gameID, playerID)
	if err != nil {
		return err
	}
	return s.phase.Stop(ctx, game, playerID)
}

// NextRoundReady registers the player's vote to advance early.
func (s *SessionService) NextRoundReady(ctx context.Context, gameID, playerID string) error {
	game, err := s.loadFor(ctx, gameID, playerID)
	if err != nil {
		return err
	}
	return s.phase.NextRoundReady(ctx, game, playerID)
}

// RematchReady registers the player's vote for a rematch.
func (s *SessionService) RematchReady(ctx context.Context, gameID, playerID string) error {
	game, err := s.loadFor(ctx, gameID, playerID)
	if err != nil {
		return err
	}
	return s.phase.RematchReady(ctx, game, playerID)
}
