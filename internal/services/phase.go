package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bastago/basta/internal/errors"
	"github.com/bastago/basta/internal/logger"
	"github.com/bastago/basta/internal/metrics"
	"github.com/bastago/basta/internal/models"
	"github.com/bastago/basta/internal/repository"
)

// validationRetryDelay spaces out validation attempts after a store error.
const validationRetryDelay = 2 * time.Second

// PhaseService is the game session state machine. Every transition is a
// named method invoked either by a player action (through the session
// orchestrator) or by the timer scheduler on deadline expiry. Transitions
// are guarded by conditional updates in the store: when two triggers race,
// exactly one wins and the loser becomes a no-op.
type PhaseService struct {
	log       logger.Logger
	store     repository.Store
	timers    *TimerScheduler
	validator *ValidationService
	bus       Broadcaster
	cfg       Config
}

// NewPhaseService creates a new PhaseService
func NewPhaseService(log logger.Logger, store repository.Store, timers *TimerScheduler, validator *ValidationService, bus Broadcaster, cfg Config) *PhaseService {
	return &PhaseService{
		log:       log,
		store:     store,
		timers:    timers,
		validator: validator,
		bus:       bus,
		cfg:       cfg,
	}
}

// connectedCount returns how many roster players are still connected.
// Vote thresholds and the all-submitted check use this count.
func connectedCount(game *models.GameSession) int {
	n := 0
	for _, p := range game.Players {
		if !p.Disconnected {
			n++
		}
	}
	if n == 0 {
		n = 1
	}
	return n
}

// StartGame creates a fresh game session for a room and opens the category
// selection phase. The roster is the room's membership at this instant, in
// join order; the first member is the opening letter-selector.
func (s *PhaseService) StartGame(ctx context.Context, room *models.Room) (*models.GameSession, error) {
	if len(room.Members) < 2 {
		return nil, errors.Validation("at least two players are required to start")
	}

	deadline := time.Now().Add(s.cfg.CategoryPhase)
	game := &models.GameSession{
		ID:               uuid.NewString(),
		RoomID:           room.ID,
		Language:         room.Language,
		TotalRounds:      room.Rounds,
		Round:            1,
		SelectorID:       room.Members[0].PlayerID,
		Status:           models.StatusSelectingCategories,
		CategoryDeadline: &deadline,
	}
	for i, m := range room.Members {
		game.Players = append(game.Players, models.PlayerState{
			PlayerID:  m.PlayerID,
			Username:  m.Username,
			JoinOrder: i,
		})
	}

	if err := s.store.CreateGame(ctx, game); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to create game")
	}

	from := room.Status
	if ok, err := s.store.SetRoomStatus(ctx, room.ID, from, models.RoomInProgress, &game.ID); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to bind game to room")
	} else if !ok {
		// Another start won the race; this game row is unreachable and the
		// sweep will collect it with the room when the room goes away.
		return nil, errors.Conflict("game already starting")
	}

	// A running game keeps its room alive for at least another TTL
	if err := s.store.TouchRoom(ctx, room.ID, time.Now().Add(s.cfg.RoomTTL)); err != nil {
		s.log.Warn("Failed to refresh room expiry", "room_id", room.ID, "error", err)
	}

	metrics.ActiveGames.Inc()
	s.timers.Schedule(game.ID, TimerCategory, s.cfg.CategoryPhase, func() {
		s.CategoryDeadlineExpired(game.ID)
	})

	s.bus.Publish(RoomChannel(room.ID), EventGameStarted, GameStartedPayload{GameID: game.ID})
	s.bus.Publish(GameChannel(game.ID), EventCategoryPhaseStarted, CategoryPhaseStartedPayload{
		GameID:   game.ID,
		Deadline: deadline,
		Total:    len(game.Players),
	})

	s.log.Info("Game started", "game_id", game.ID, "room_id", room.ID, "players", len(game.Players))
	return game, nil
}

// AddCategory records one player's category pick. Duplicates and picks over
// the cap are rejected without mutation.
func (s *PhaseService) AddCategory(ctx context.Context, game *models.GameSession, playerID, category string) error {
	if game.Status != models.StatusSelectingCategories {
		return errors.Phase("categories can only be chosen during category selection")
	}
	category = strings.TrimSpace(category)
	if category == "" {
		return errors.InvalidInput("category must not be empty")
	}

	added, err := s.store.AddCategory(ctx, game.ID, category, s.cfg.MaxCategories)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to add category")
	}
	if !added {
		return errors.Conflict("category already chosen or limit reached")
	}

	categories, err := s.store.GetGame(ctx, game.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to load categories")
	}
	s.bus.Publish(GameChannel(game.ID), EventCategoryAdded, CategoryAddedPayload{
		Categories: categories.Categories,
	})

	// The pick may be the last missing piece of an already-complete vote
	votes, err := s.store.CountVotes(ctx, game.ID, models.VoteCategories, 0)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to count confirmations")
	}
	if votes >= connectedCount(game) && len(categories.Categories) >= s.cfg.MinCategories {
		s.openLetterPhase(ctx, game.ID)
	}
	return nil
}

// ConfirmCategories records one player's confirmation vote. When every
// connected player has confirmed and the minimum category count is met,
// the letter phase opens.
func (s *PhaseService) ConfirmCategories(ctx context.Context, game *models.GameSession, playerID string) error {
	if game.Status != models.StatusSelectingCategories {
		return errors.Phase("confirmation is only possible during category selection")
	}

	// Category confirmation is game-scoped, not round-scoped
	if _, err := s.store.AddVote(ctx, game.ID, models.VoteCategories, 0, playerID); err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to record confirmation")
	}

	votes, err := s.store.CountVotes(ctx, game.ID, models.VoteCategories, 0)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to count confirmations")
	}
	count, err := s.store.CountCategories(ctx, game.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to count categories")
	}

	if votes >= connectedCount(game) && count >= s.cfg.MinCategories {
		s.openLetterPhase(ctx, game.ID)
	}
	return nil
}

// CategoryDeadlineExpired is the category timer callback: deduplicate is
// already guaranteed by the store, so it only tops the set up to the
// minimum with random defaults before opening the letter phase.
func (s *PhaseService) CategoryDeadlineExpired(gameID string) {
	ctx := context.Background()
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		s.log.Warn("Category deadline fired for missing game", "game_id", gameID, "error", err)
		return
	}
	if game.Status != models.StatusSelectingCategories {
		return // a confirmation vote already advanced the phase
	}

	count := len(game.Categories)
	for _, candidate := range shuffledPool(game.Language) {
		if count >= s.cfg.MinCategories {
			break
		}
		added, err := s.store.AddCategory(ctx, gameID, candidate, s.cfg.MaxCategories)
		if err != nil {
			s.log.Error("Failed to top up categories", "game_id", gameID, "error", err)
			return
		}
		if added {
			count++
		}
	}

	s.openLetterPhase(ctx, gameID)
}

// openLetterPhase transitions selecting_categories -> selecting_letter and
// arms the letter deadline.
func (s *PhaseService) openLetterPhase(ctx context.Context, gameID string) {
	deadline := time.Now().Add(s.cfg.LetterPhase)
	ok, err := s.store.TransitionStatus(ctx, gameID,
		models.StatusSelectingCategories, models.StatusSelectingLetter,
		repository.GamePatch{Deadlines: &repository.Deadlines{Letter: &deadline}})
	if err != nil {
		s.log.Error("Failed to open letter phase", "game_id", gameID, "error", err)
		return
	}
	if !ok {
		return // concurrent trigger already advanced the phase
	}

	s.timers.Cancel(gameID, TimerCategory)
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		s.log.Error("Failed to load game after letter phase open", "game_id", gameID, "error", err)
		return
	}

	s.timers.Schedule(gameID, TimerLetter, s.cfg.LetterPhase, func() {
		s.LetterDeadlineExpired(gameID)
	})

	s.bus.Publish(GameChannel(gameID), EventCategoriesConfirmed, CategoriesConfirmedPayload{
		Categories:   game.Categories,
		NextSelector: game.SelectorID,
	})
	s.publishLetterPhase(game, deadline)
}

func (s *PhaseService) publishLetterPhase(game *models.GameSession, deadline time.Time) {
	selectorName := ""
	if ps := game.PlayerState(game.SelectorID); ps != nil {
		selectorName = ps.Username
	}
	s.bus.Publish(GameChannel(game.ID), EventLetterPhaseStarted, LetterPhaseStartedPayload{
		SelectorID:   game.SelectorID,
		SelectorName: selectorName,
		Deadline:     deadline,
		Round:        game.Round,
	})
}

// SelectLetter handles the designated selector's pick. An empty letter
// requests a random unused one. Acceptance opens the reveal window; the
// phase flips to playing when the window elapses.
func (s *PhaseService) SelectLetter(ctx context.Context, game *models.GameSession, playerID, letter string) error {
	if game.Status != models.StatusSelectingLetter {
		return errors.Phase("a letter can only be chosen during letter selection")
	}
	if playerID != game.SelectorID {
		return errors.Phase("it is not your turn to choose the letter")
	}

	letter = strings.ToUpper(strings.TrimSpace(letter))
	if letter == "" {
		letter = randomUnusedLetter(game.UsedLetters)
		if letter == "" {
			// Alphabet exhausted; nothing left to play
			s.finishEarly(ctx, game.ID)
			return nil
		}
	}
	if len(letter) != 1 || !strings.Contains(Alphabet, letter) {
		return errors.InvalidInput("letter must be a single A-Z character")
	}

	return s.acceptLetter(ctx, game.ID, letter)
}

// LetterDeadlineExpired is the letter timer callback: auto-pick a random
// unused letter on the selector's behalf.
func (s *PhaseService) LetterDeadlineExpired(gameID string) {
	ctx := context.Background()
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		s.log.Warn("Letter deadline fired for missing game", "game_id", gameID, "error", err)
		return
	}
	if game.Status != models.StatusSelectingLetter || game.Letter != "" {
		return // already picked or phase advanced
	}

	letter := randomUnusedLetter(game.UsedLetters)
	if letter == "" {
		s.finishEarly(ctx, gameID)
		return
	}
	if err := s.acceptLetter(ctx, gameID, letter); err != nil {
		s.log.Error("Auto letter pick failed", "game_id", gameID, "error", err)
	}
}

// acceptLetter is the single entry point for both explicit and automatic
// picks. The store enforces never-reuse and one-pick-per-round; a lost race
// is silently treated as already handled.
func (s *PhaseService) acceptLetter(ctx context.Context, gameID, letter string) error {
	accepted, err := s.store.AcceptLetter(ctx, gameID, letter)
	if err == repository.ErrLetterUsed {
		return errors.Conflict("letter was already used this game")
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to accept letter")
	}
	if !accepted {
		return nil // a concurrent pick landed first
	}

	s.timers.Cancel(gameID, TimerLetter)

	revealAt := time.Now().Add(s.cfg.LetterReveal)
	s.bus.Publish(GameChannel(gameID), EventLetterAccepted, LetterAcceptedPayload{
		Letter:         letter,
		RevealDeadline: revealAt,
	})
	s.timers.Schedule(gameID, TimerReveal, s.cfg.LetterReveal, func() {
		s.RevealLetter(gameID)
	})
	return nil
}

// RevealLetter is the reveal timer callback: flip to playing and arm the
// round timer.
func (s *PhaseService) RevealLetter(gameID string) {
	ctx := context.Background()
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		s.log.Warn("Reveal fired for missing game", "game_id", gameID, "error", err)
		return
	}
	if game.Status != models.StatusSelectingLetter || game.Letter == "" {
		return
	}

	deadline := time.Now().Add(s.cfg.RoundDuration)
	ok, err := s.store.TransitionStatus(ctx, gameID,
		models.StatusSelectingLetter, models.StatusPlaying,
		repository.GamePatch{Deadlines: &repository.Deadlines{Validation: &deadline}})
	if err != nil {
		s.log.Error("Failed to start playing phase", "game_id", gameID, "error", err)
		return
	}
	if !ok {
		return
	}

	s.timers.Schedule(gameID, TimerRound, s.cfg.RoundDuration, func() {
		s.RoundTimeout(gameID)
	})
	s.bus.Publish(GameChannel(gameID), EventLetterRevealed, LetterRevealedPayload{
		Letter:   game.Letter,
		Deadline: deadline,
		Round:    game.Round,
	})
}

// Stop handles a player's stop action. The stopping player's own sheet
// must already qualify: every provided answer non-empty, at least two
// characters, starting with the round letter. The playing -> validating
// transition doubles as the at-most-once guard; a late concurrent stop is
// a no-op.
func (s *PhaseService) Stop(ctx context.Context, game *models.GameSession, playerID string) error {
	if game.Status != models.StatusPlaying {
		return nil // phase already left playing; treated as already handled
	}

	ps := game.PlayerState(playerID)
	if ps == nil {
		return errors.Unauthorized("you are not part of this game")
	}
	sheet := ps.AnswerForRound(game.Round)
	if sheet == nil || len(sheet.Answers) == 0 {
		return errors.Validation("submit your answers before stopping")
	}
	for _, ans := range sheet.Answers {
		if !FallbackValid(game.Letter, ans.Text) {
			return errors.Validation("all answers must have at least two letters and start with the round letter")
		}
	}

	wait, err := s.graceFor(ctx, game)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(wait)
	stoppedBy := playerID
	ok, err := s.store.TransitionStatus(ctx, game.ID,
		models.StatusPlaying, models.StatusValidating,
		repository.GamePatch{
			StoppedBy: &stoppedBy,
			Deadlines: &repository.Deadlines{Validation: &deadline},
		})
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to stop round")
	}
	if !ok {
		return nil // someone else stopped first, or the round timed out
	}

	s.timers.Cancel(game.ID, TimerRound)

	// The winner of the stop race holds the speed bonus for this round
	sheet.StoppedFirst = true
	if err := s.store.UpsertRoundAnswer(ctx, game.ID, playerID, *sheet); err != nil {
		s.log.Error("Failed to flag stopping player's sheet", "game_id", game.ID, "error", err)
	}

	s.bus.Publish(GameChannel(game.ID), EventPlayerStopped, PlayerStoppedPayload{
		PlayerID: playerID,
		Username: ps.Username,
	})
	s.endPlaying(game.ID, ReasonStopped, deadline, wait)
	return nil
}

// RoundTimeout is the round timer callback: the writing time is up.
func (s *PhaseService) RoundTimeout(gameID string) {
	ctx := context.Background()
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		s.log.Warn("Round timeout fired for missing game", "game_id", gameID, "error", err)
		return
	}
	if game.Status != models.StatusPlaying {
		return
	}

	wait, err := s.graceFor(ctx, game)
	if err != nil {
		s.log.Error("Failed to compute grace window", "game_id", gameID, "error", err)
		wait = s.cfg.GraceWindow
	}
	deadline := time.Now().Add(wait)
	ok, err := s.store.TransitionStatus(ctx, gameID,
		models.StatusPlaying, models.StatusValidating,
		repository.GamePatch{Deadlines: &repository.Deadlines{Validation: &deadline}})
	if err != nil {
		s.log.Error("Failed to time out round", "game_id", gameID, "error", err)
		return
	}
	if !ok {
		return // a stop landed first
	}

	s.endPlaying(gameID, ReasonTimeout, deadline, wait)
}

// graceFor returns the late-submission window: zero when every connected
// player already submitted, the configured grace otherwise.
func (s *PhaseService) graceFor(ctx context.Context, game *models.GameSession) (time.Duration, error) {
	submitted, err := s.store.CountRoundAnswers(ctx, game.ID, game.Round)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrInternal, "failed to count submissions")
	}
	if submitted >= connectedCount(game) {
		return 0, nil
	}
	return s.cfg.GraceWindow, nil
}

// endPlaying announces the round end and arms (or immediately runs) the
// validation pass.
func (s *PhaseService) endPlaying(gameID, reason string, deadline time.Time, wait time.Duration) {
	s.bus.Publish(GameChannel(gameID), EventRoundEnded, RoundEndedPayload{
		Reason:             reason,
		ValidationDeadline: deadline,
	})
	if wait <= 0 {
		go s.RunValidation(gameID)
		return
	}
	s.timers.Schedule(gameID, TimerValidation, wait, func() {
		s.RunValidation(gameID)
	})
}

// RunValidation executes the expensive validation-and-scoring pass exactly
// once per round: the store's test-and-set on the in-progress flag turns
// concurrent attempts into no-ops.
func (s *PhaseService) RunValidation(gameID string) {
	ctx := context.Background()

	started, err := s.store.BeginValidation(ctx, gameID)
	if err != nil {
		s.log.Error("Failed to begin validation", "game_id", gameID, "error", err)
		return
	}
	if !started {
		return // a validation pass is already in flight
	}

	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		s.log.Error("Failed to load game for validation", "game_id", gameID, "error", err)
		s.retryValidation(ctx, gameID)
		return
	}

	sheets, err := s.store.ListRoundAnswers(ctx, gameID, game.Round)
	if err != nil {
		s.log.Error("Failed to load round answers", "game_id", gameID, "error", err)
		s.retryValidation(ctx, gameID)
		return
	}
	if !s.cfg.ScoreDisconnected {
		kept := sheets[:0]
		for _, sheet := range sheets {
			if ps := game.PlayerState(sheet.PlayerID); ps != nil && !ps.Disconnected {
				kept = append(kept, sheet)
			}
		}
		sheets = kept
	}

	s.validator.ValidateRound(ctx, game.Language, game.Letter, sheets)
	totals := ScoreRound(sheets)

	for _, sheet := range sheets {
		if err := s.store.MarkRoundAnswer(ctx, gameID, sheet.PlayerID, game.Round, sheet.Answer.Answers); err != nil {
			s.log.Error("Failed to persist round marks", "game_id", gameID, "player_id", sheet.PlayerID, "error", err)
			s.retryValidation(ctx, gameID)
			return
		}
	}
	if err := s.store.ApplyRoundScores(ctx, gameID, totals); err != nil {
		s.log.Error("Failed to apply round scores", "game_id", gameID, "error", err)
		s.retryValidation(ctx, gameID)
		return
	}

	cleared := false
	ok, err := s.store.TransitionStatus(ctx, gameID,
		models.StatusValidating, models.StatusRoundEnded,
		repository.GamePatch{
			Deadlines:            &repository.Deadlines{},
			ValidationInProgress: &cleared,
		})
	if err != nil {
		s.log.Error("Failed to close validation", "game_id", gameID, "error", err)
		s.retryValidation(ctx, gameID)
		return
	}
	if !ok {
		return // the game left validating under us; nothing to close
	}

	// Auto-advance countdown; an all-ready vote may advance sooner
	s.timers.Schedule(gameID, TimerNextRound, s.cfg.NextRoundCountdown, func() {
		s.AdvanceRound(gameID)
	})

	scored, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		s.log.Error("Failed to reload game after scoring", "game_id", gameID, "error", err)
		return
	}

	results := make(map[string]models.RoundAnswer, len(sheets))
	for _, sheet := range sheets {
		results[sheet.PlayerID] = sheet.Answer
	}
	s.bus.Publish(GameChannel(gameID), EventRoundResults, RoundResultsPayload{
		Round:     game.Round,
		Standings: ComputeStandings(scored.Players),
		Results:   results,
	})
	s.bus.Publish(GameChannel(gameID), EventNextRoundCountdown, CountdownPayload{
		SecondsRemaining: int(s.cfg.NextRoundCountdown.Seconds()),
	})
}

// retryValidation releases the in-progress flag after a failed pass and
// schedules another attempt, so a transient store error cannot strand the
// game in validating forever.
func (s *PhaseService) retryValidation(ctx context.Context, gameID string) {
	cleared := false
	ok, err := s.store.TransitionStatus(ctx, gameID,
		models.StatusValidating, models.StatusValidating,
		repository.GamePatch{ValidationInProgress: &cleared})
	if err != nil {
		s.log.Error("Failed to reset validation flag", "game_id", gameID, "error", err)
		return
	}
	if !ok {
		return // game already moved on
	}
	s.timers.Schedule(gameID, TimerValidation, validationRetryDelay, func() {
		s.RunValidation(gameID)
	})
}

// NextRoundReady records a ready vote. When every connected player is
// ready the game advances without waiting for the countdown.
func (s *PhaseService) NextRoundReady(ctx context.Context, game *models.GameSession, playerID string) error {
	if game.Status != models.StatusRoundEnded {
		return errors.Phase("the round is not over yet")
	}
	if _, err := s.store.AddVote(ctx, game.ID, models.VoteNextRound, game.Round, playerID); err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to record ready vote")
	}
	votes, err := s.store.CountVotes(ctx, game.ID, models.VoteNextRound, game.Round)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to count ready votes")
	}
	if votes >= connectedCount(game) {
		s.AdvanceRound(game.ID)
	}
	return nil
}

// AdvanceRound moves a finished round to the next letter phase, or to the
// final standings when the last round was played. Invoked by the ready
// vote and by the countdown timer; the status guard makes one of them win.
func (s *PhaseService) AdvanceRound(gameID string) {
	ctx := context.Background()
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		s.log.Warn("Advance fired for missing game", "game_id", gameID, "error", err)
		return
	}
	if game.Status != models.StatusRoundEnded {
		return
	}

	if game.Round >= game.TotalRounds || len(unusedLetters(game.UsedLetters)) == 0 {
		s.FinishGame(ctx, game)
		return
	}

	nextRound := game.Round + 1
	nextSelector := nextSelectorID(game)
	deadline := time.Now().Add(s.cfg.LetterPhase)
	clear := ""
	ok, err := s.store.TransitionStatus(ctx, gameID,
		models.StatusRoundEnded, models.StatusSelectingLetter,
		repository.GamePatch{
			Round:      &nextRound,
			SelectorID: &nextSelector,
			Letter:     &clear,
			StoppedBy:  &clear,
			Deadlines:  &repository.Deadlines{Letter: &deadline},
		})
	if err != nil {
		s.log.Error("Failed to advance round", "game_id", gameID, "error", err)
		return
	}
	if !ok {
		return
	}

	s.timers.Cancel(gameID, TimerNextRound)
	if err := s.store.ClearVotes(ctx, gameID, models.VoteNextRound, game.Round); err != nil {
		s.log.Warn("Failed to clear ready votes", "game_id", gameID, "error", err)
	}

	game.Round = nextRound
	game.SelectorID = nextSelector
	s.timers.Schedule(gameID, TimerLetter, s.cfg.LetterPhase, func() {
		s.LetterDeadlineExpired(gameID)
	})
	s.publishLetterPhase(game, deadline)
}

// nextSelectorID rotates the letter-selector through the roster in
// original join order, wrapping around.
func nextSelectorID(game *models.GameSession) string {
	if len(game.Players) == 0 {
		return game.SelectorID
	}
	current := 0
	for i, p := range game.Players {
		if p.PlayerID == game.SelectorID {
			current = i
			break
		}
	}
	return game.Players[(current+1)%len(game.Players)].PlayerID
}

// FinishGame computes final standings, persists stats and closes the game.
func (s *PhaseService) FinishGame(ctx context.Context, game *models.GameSession) {
	winner := DetermineWinner(game.Players)
	patch := repository.GamePatch{Deadlines: &repository.Deadlines{}}
	if winner != nil {
		patch.WinnerID = winner
	}

	ok, err := s.store.TransitionStatus(ctx, game.ID, game.Status, models.StatusFinished, patch)
	if err != nil {
		s.log.Error("Failed to finish game", "game_id", game.ID, "error", err)
		return
	}
	if !ok {
		return
	}

	s.timers.CancelAll(game.ID)
	metrics.ActiveGames.Dec()

	// Every participant's games-played counter increments, draw or not;
	// only a strict winner gets a win.
	for _, p := range game.Players {
		won := winner != nil && *winner == p.PlayerID
		if err := s.store.RecordGamePlayed(ctx, p.PlayerID, won); err != nil {
			s.log.Warn("Failed to record player stats", "player_id", p.PlayerID, "error", err)
		}
	}

	if _, err := s.store.SetRoomStatus(ctx, game.RoomID, models.RoomInProgress, models.RoomFinished, nil); err != nil {
		s.log.Warn("Failed to mark room finished", "room_id", game.RoomID, "error", err)
	}

	final, err := s.store.GetGame(ctx, game.ID)
	if err != nil {
		s.log.Error("Failed to reload finished game", "game_id", game.ID, "error", err)
		return
	}
	s.bus.Publish(GameChannel(game.ID), EventGameFinished, GameFinishedPayload{
		Winner:    final.WinnerID,
		Standings: ComputeStandings(final.Players),
	})
	s.log.Info("Game finished", "game_id", game.ID, "winner", final.WinnerID)
}

// finishEarly ends a game whose letter pool is exhausted, keeping the
// standings as they are.
func (s *PhaseService) finishEarly(ctx context.Context, gameID string) {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return
	}
	s.log.Warn("Letter pool exhausted, finishing game early", "game_id", gameID, "round", game.Round)
	s.FinishGame(ctx, game)
}

// RematchReady records a rematch vote. The first vote starts a short
// countdown; everyone voting before it elapses starts the rematch sooner.
func (s *PhaseService) RematchReady(ctx context.Context, game *models.GameSession, playerID string) error {
	if game.Status != models.StatusFinished {
		return errors.Phase("rematch is only possible after the game ends")
	}

	added, err := s.store.AddVote(ctx, game.ID, models.VoteRematch, 0, playerID)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to record rematch vote")
	}
	votes, err := s.store.CountVotes(ctx, game.ID, models.VoteRematch, 0)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to count rematch votes")
	}

	if added && votes == 1 {
		s.bus.Publish(GameChannel(game.ID), EventRematchCountdown, CountdownPayload{
			SecondsRemaining: int(s.cfg.RematchCountdown.Seconds()),
		})
		s.timers.Schedule(game.ID, TimerRematch, s.cfg.RematchCountdown, func() {
			s.StartRematch(game.ID)
		})
	}
	if votes >= connectedCount(game) {
		s.StartRematch(game.ID)
	}
	return nil
}

// StartRematch spawns a fresh game session in the same room. The finished
// session is left as-is; the room's status flip is the race guard between
// the all-voted trigger and the countdown timer.
func (s *PhaseService) StartRematch(gameID string) {
	ctx := context.Background()
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil || game.Status != models.StatusFinished {
		return
	}

	room, err := s.store.GetRoom(ctx, game.RoomID)
	if err != nil {
		s.log.Warn("Rematch fired for missing room", "game_id", gameID, "error", err)
		return
	}

	s.timers.Cancel(gameID, TimerRematch)
	if err := s.store.ClearVotes(ctx, gameID, models.VoteRematch, 0); err != nil {
		s.log.Warn("Failed to clear rematch votes", "game_id", gameID, "error", err)
	}

	if _, err := s.StartGame(ctx, room); err != nil {
		if !errors.IsKind(err, errors.ErrConflict) {
			s.log.Error("Failed to start rematch", "game_id", gameID, "error", err)
		}
	}
}

// AbortRematch resets the rematch vote, e.g. when a participant leaves
// mid-countdown.
func (s *PhaseService) AbortRematch(ctx context.Context, gameID, reason string) {
	if !s.timers.Cancel(gameID, TimerRematch) {
		return
	}
	if err := s.store.ClearVotes(ctx, gameID, models.VoteRematch, 0); err != nil {
		s.log.Warn("Failed to clear rematch votes", "game_id", gameID, "error", err)
	}
	s.bus.Publish(GameChannel(gameID), EventRematchAborted, RematchAbortedPayload{Reason: reason})
}

// HandlePlayerLeft applies the cancellation semantics of a departure:
// the player is marked disconnected, their pending selector duty is
// auto-picked, and any countdown vote they were part of is reset.
func (s *PhaseService) HandlePlayerLeft(ctx context.Context, gameID, playerID string) {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return // room deletion already cascaded the game away
	}
	if game.PlayerState(playerID) == nil {
		return
	}

	if err := s.store.SetPlayerConnection(ctx, gameID, playerID, true); err != nil {
		s.log.Warn("Failed to mark player disconnected", "game_id", gameID, "player_id", playerID, "error", err)
	}

	switch game.Status {
	case models.StatusSelectingLetter:
		if game.SelectorID == playerID && game.Letter == "" {
			s.LetterDeadlineExpired(gameID)
		}
	case models.StatusRoundEnded:
		// A leave aborts the whole ready vote, it does not just shrink it
		if err := s.store.ClearVotes(ctx, gameID, models.VoteNextRound, game.Round); err != nil {
			s.log.Warn("Failed to reset ready votes", "game_id", gameID, "error", err)
		}
		s.bus.Publish(GameChannel(gameID), EventNextRoundCountdown, CountdownPayload{
			SecondsRemaining: int(s.cfg.NextRoundCountdown.Seconds()),
		})
		s.timers.Schedule(gameID, TimerNextRound, s.cfg.NextRoundCountdown, func() {
			s.AdvanceRound(gameID)
		})
	case models.StatusFinished:
		s.AbortRematch(ctx, gameID, "player left")
	}
}
