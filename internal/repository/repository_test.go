package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/bastago/basta/internal/models"
	"github.com/bastago/basta/internal/repository"
	"github.com/bastago/basta/internal/testutil"
)

func testRoom(t *testing.T, repo *repository.Repository, members ...string) *models.Room {
	t.Helper()
	ctx := context.Background()

	room := &models.Room{
		ID:         "room-" + members[0],
		OwnerID:    members[0],
		Capacity:   4,
		Visibility: models.VisibilityPublic,
		InviteCode: "CODE" + members[0],
		Status:     models.RoomWaiting,
		Language:   "en",
		Rounds:     3,
		ExpiresAt:  time.Now().Add(time.Hour),
	}
	for _, m := range members {
		room.Members = append(room.Members, models.RoomMember{
			PlayerID: m,
			Username: m,
			Ready:    m == members[0],
			JoinedAt: time.Now(),
		})
	}
	if err := repo.CreateRoom(ctx, room); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	return room
}

func testGame(t *testing.T, repo *repository.Repository, room *models.Room, status models.GameStatus) *models.GameSession {
	t.Helper()
	game := &models.GameSession{
		ID:          "game-" + room.ID,
		RoomID:      room.ID,
		Language:    room.Language,
		TotalRounds: room.Rounds,
		Round:       1,
		SelectorID:  room.OwnerID,
		Status:      status,
	}
	for i, m := range room.Members {
		game.Players = append(game.Players, models.PlayerState{
			PlayerID: m.PlayerID, Username: m.Username, JoinOrder: i,
		})
	}
	if err := repo.CreateGame(context.Background(), game); err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	return game
}

// TestUpsertPlayer_RefreshesUsername tests that re-upserting updates the
// display name without clearing stats
func TestUpsertPlayer_RefreshesUsername(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()

	if err := repo.UpsertPlayer(ctx, "p1", "alice"); err != nil {
		t.Fatalf("UpsertPlayer failed: %v", err)
	}
	if err := repo.RecordGamePlayed(ctx, "p1", true); err != nil {
		t.Fatalf("RecordGamePlayed failed: %v", err)
	}
	if err := repo.UpsertPlayer(ctx, "p1", "alicia"); err != nil {
		t.Fatalf("second UpsertPlayer failed: %v", err)
	}

	p, err := repo.GetPlayer(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPlayer failed: %v", err)
	}
	if p.Username != "alicia" {
		t.Errorf("expected refreshed username, got %q", p.Username)
	}
	if p.GamesPlayed != 1 || p.GamesWon != 1 {
		t.Errorf("expected stats to survive upsert, got played=%d won=%d", p.GamesPlayed, p.GamesWon)
	}
}

// TestGetPlayer_NotFound tests the sentinel for missing players
func TestGetPlayer_NotFound(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	if _, err := repo.GetPlayer(context.Background(), "nobody"); err != repository.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestAddRoomMember_EnforcesCapacity tests the conditional insert against a
// full room and against double joins
func TestAddRoomMember_EnforcesCapacity(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	room := testRoom(t, repo, "owner")

	member := func(id string) models.RoomMember {
		return models.RoomMember{PlayerID: id, Username: id, JoinedAt: time.Now()}
	}

	for _, id := range []string{"p2", "p3", "p4"} {
		added, err := repo.AddRoomMember(ctx, room.ID, member(id))
		if err != nil || !added {
			t.Fatalf("AddRoomMember(%s) = %v, %v", id, added, err)
		}
	}

	// Room is at capacity 4 now
	if added, err := repo.AddRoomMember(ctx, room.ID, member("p5")); err != nil || added {
		t.Errorf("expected full room to reject p5, got added=%v err=%v", added, err)
	}
	// Double join is rejected without error
	if added, err := repo.AddRoomMember(ctx, room.ID, member("p2")); err != nil || added {
		t.Errorf("expected duplicate join to be a no-op, got added=%v err=%v", added, err)
	}
	// Missing room
	if added, err := repo.AddRoomMember(ctx, "no-room", member("p9")); err != nil || added {
		t.Errorf("expected join on missing room to be a no-op, got added=%v err=%v", added, err)
	}
}

// TestRemoveRoomMember_TransfersOwnership tests that the departing owner's
// room transfers to the earliest remaining member, who becomes ready
func TestRemoveRoomMember_TransfersOwnership(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	room := testRoom(t, repo, "owner", "second", "third")

	res, err := repo.RemoveRoomMember(ctx, room.ID, "owner")
	if err != nil {
		t.Fatalf("RemoveRoomMember failed: %v", err)
	}
	if !res.Removed || res.RoomDeleted {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.NewOwnerID != "second" {
		t.Errorf("expected ownership transfer to second, got %q", res.NewOwnerID)
	}
	if res.Remaining != 2 {
		t.Errorf("expected 2 remaining, got %d", res.Remaining)
	}

	got, err := repo.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if got.OwnerID != "second" {
		t.Errorf("expected stored owner to be second, got %q", got.OwnerID)
	}
	if m := got.Member("second"); m == nil || !m.Ready {
		t.Error("expected the new owner to be marked ready")
	}
}

// TestRemoveRoomMember_DeletesEmptyRoom tests synchronous deletion when the
// last member leaves, cascading to the room's game
func TestRemoveRoomMember_DeletesEmptyRoom(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	room := testRoom(t, repo, "only")
	game := testGame(t, repo, room, models.StatusPlaying)

	res, err := repo.RemoveRoomMember(ctx, room.ID, "only")
	if err != nil {
		t.Fatalf("RemoveRoomMember failed: %v", err)
	}
	if !res.Removed || !res.RoomDeleted {
		t.Fatalf("expected room deletion, got %+v", res)
	}

	if _, err := repo.GetRoom(ctx, room.ID); err != repository.ErrNotFound {
		t.Errorf("expected room to be gone, got %v", err)
	}
	if _, err := repo.GetGame(ctx, game.ID); err != repository.ErrNotFound {
		t.Errorf("expected game to cascade away with the room, got %v", err)
	}
}

// TestRemoveRoomMember_NotAMember tests the no-op path
func TestRemoveRoomMember_NotAMember(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	room := testRoom(t, repo, "owner")

	res, err := repo.RemoveRoomMember(context.Background(), room.ID, "stranger")
	if err != nil {
		t.Fatalf("RemoveRoomMember failed: %v", err)
	}
	if res.Removed {
		t.Error("expected Removed=false for a non-member")
	}
}

// TestSetRoomStatus_Conditional tests the status guard
func TestSetRoomStatus_Conditional(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	room := testRoom(t, repo, "owner")

	gameID := "g1"
	ok, err := repo.SetRoomStatus(ctx, room.ID, models.RoomWaiting, models.RoomInProgress, &gameID)
	if err != nil || !ok {
		t.Fatalf("expected first transition to win: ok=%v err=%v", ok, err)
	}
	// Same transition again loses
	ok, err = repo.SetRoomStatus(ctx, room.ID, models.RoomWaiting, models.RoomInProgress, &gameID)
	if err != nil || ok {
		t.Errorf("expected repeat transition to lose: ok=%v err=%v", ok, err)
	}

	got, _ := repo.GetRoom(ctx, room.ID)
	if got.GameID == nil || *got.GameID != "g1" {
		t.Errorf("expected bound game id g1, got %v", got.GameID)
	}
}

// TestSweepRooms_DeletesExpired tests expiry-based collection
func TestSweepRooms_DeletesExpired(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()

	fresh := testRoom(t, repo, "fresh")
	stale := testRoom(t, repo, "stale")
	if err := repo.TouchRoom(ctx, stale.ID, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("TouchRoom failed: %v", err)
	}

	n, err := repo.SweepRooms(ctx, time.Now())
	if err != nil {
		t.Fatalf("SweepRooms failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 swept room, got %d", n)
	}
	if _, err := repo.GetRoom(ctx, stale.ID); err != repository.ErrNotFound {
		t.Errorf("expected stale room gone, got %v", err)
	}
	if _, err := repo.GetRoom(ctx, fresh.ID); err != nil {
		t.Errorf("expected fresh room to survive, got %v", err)
	}
}

// TestGetGame_HydratesEverything tests full session hydration
func TestGetGame_HydratesEverything(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	room := testRoom(t, repo, "a", "b")
	game := testGame(t, repo, room, models.StatusSelectingCategories)

	if _, err := repo.AddCategory(ctx, game.ID, "City", 8); err != nil {
		t.Fatalf("AddCategory failed: %v", err)
	}
	if err := repo.UpsertRoundAnswer(ctx, game.ID, "a", models.RoundAnswer{
		Round: 1, Letter: "B",
		Answers:     []models.CategoryAnswer{{Category: "City", Text: "Berlin"}},
		SubmittedAt: time.Now(),
	}); err != nil {
		t.Fatalf("UpsertRoundAnswer failed: %v", err)
	}

	got, err := repo.GetGame(ctx, game.ID)
	if err != nil {
		t.Fatalf("GetGame failed: %v", err)
	}
	if len(got.Players) != 2 {
		t.Fatalf("expected 2 players, got %d", len(got.Players))
	}
	if got.Players[0].PlayerID != "a" || got.Players[1].PlayerID != "b" {
		t.Errorf("expected players in join order, got %q then %q",
			got.Players[0].PlayerID, got.Players[1].PlayerID)
	}
	if len(got.Categories) != 1 || got.Categories[0] != "City" {
		t.Errorf("expected categories [City], got %v", got.Categories)
	}
	sheet := got.Players[0].AnswerForRound(1)
	if sheet == nil || len(sheet.Answers) != 1 || sheet.Answers[0].Text != "Berlin" {
		t.Errorf("expected hydrated answer sheet, got %+v", sheet)
	}
}

// TestAddCategory_RejectsDuplicatesAndCap tests the conditional insert
func TestAddCategory_RejectsDuplicatesAndCap(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	room := testRoom(t, repo, "a", "b")
	game := testGame(t, repo, room, models.StatusSelectingCategories)

	if added, _ := repo.AddCategory(ctx, game.ID, "City", 2); !added {
		t.Fatal("expected first City to be added")
	}
	if added, _ := repo.AddCategory(ctx, game.ID, "City", 2); added {
		t.Error("expected duplicate City to be rejected")
	}
	if added, _ := repo.AddCategory(ctx, game.ID, "Animal", 2); !added {
		t.Fatal("expected Animal to be added")
	}
	if added, _ := repo.AddCategory(ctx, game.ID, "Food", 2); added {
		t.Error("expected Food to be rejected at cap")
	}

	n, err := repo.CountCategories(ctx, game.ID)
	if err != nil || n != 2 {
		t.Errorf("expected 2 categories, got %d (err %v)", n, err)
	}
}

// TestAcceptLetter_NeverReuses tests the two letter rules: no reuse within
// a game, and one accepted pick per round
func TestAcceptLetter_NeverReuses(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	room := testRoom(t, repo, "a", "b")
	game := testGame(t, repo, room, models.StatusSelectingLetter)

	accepted, err := repo.AcceptLetter(ctx, game.ID, "B")
	if err != nil || !accepted {
		t.Fatalf("expected first pick accepted: %v %v", accepted, err)
	}

	// A second pick in the same round loses silently (letter column set)
	if accepted, err := repo.AcceptLetter(ctx, game.ID, "C"); err != nil || accepted {
		t.Errorf("expected concurrent pick to lose: %v %v", accepted, err)
	}

	// Advance to the next round's selection and try to reuse B
	clear := ""
	round := 2
	ok, err := repo.TransitionStatus(ctx, game.ID, models.StatusSelectingLetter, models.StatusSelectingLetter,
		repository.GamePatch{Round: &round, Letter: &clear})
	if err != nil || !ok {
		t.Fatalf("round advance failed: %v %v", ok, err)
	}
	if _, err := repo.AcceptLetter(ctx, game.ID, "B"); err != repository.ErrLetterUsed {
		t.Errorf("expected ErrLetterUsed on reuse, got %v", err)
	}
	// A fresh letter works
	if accepted, err := repo.AcceptLetter(ctx, game.ID, "D"); err != nil || !accepted {
		t.Errorf("expected fresh letter accepted: %v %v", accepted, err)
	}

	got, _ := repo.GetGame(ctx, game.ID)
	if len(got.UsedLetters) != 2 {
		t.Errorf("expected used letters [B D], got %v", got.UsedLetters)
	}
}

// TestTransitionStatus_GuardsOnFrom tests that a stale caller loses
func TestTransitionStatus_GuardsOnFrom(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	room := testRoom(t, repo, "a", "b")
	game := testGame(t, repo, room, models.StatusPlaying)

	deadline := time.Now().Add(3 * time.Second)
	stopper := "a"
	ok, err := repo.TransitionStatus(ctx, game.ID, models.StatusPlaying, models.StatusValidating,
		repository.GamePatch{
			StoppedBy: &stopper,
			Deadlines: &repository.Deadlines{Validation: &deadline},
		})
	if err != nil || !ok {
		t.Fatalf("expected stop transition to win: %v %v", ok, err)
	}

	// The round timer arriving late must lose
	ok, err = repo.TransitionStatus(ctx, game.ID, models.StatusPlaying, models.StatusValidating,
		repository.GamePatch{Deadlines: &repository.Deadlines{Validation: &deadline}})
	if err != nil || ok {
		t.Errorf("expected late transition to lose: %v %v", ok, err)
	}

	got, _ := repo.GetGame(ctx, game.ID)
	if got.StoppedBy != "a" {
		t.Errorf("expected stop holder a, got %q", got.StoppedBy)
	}
	if got.ValidationDeadline == nil {
		t.Error("expected validation deadline set")
	}
	if got.CategoryDeadline != nil || got.LetterDeadline != nil {
		t.Error("expected other deadlines cleared")
	}
}

// TestBeginValidation_RunsOnce tests the test-and-set gate
func TestBeginValidation_RunsOnce(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	room := testRoom(t, repo, "a", "b")
	game := testGame(t, repo, room, models.StatusValidating)

	ok, err := repo.BeginValidation(ctx, game.ID)
	if err != nil || !ok {
		t.Fatalf("expected first BeginValidation to win: %v %v", ok, err)
	}
	ok, err = repo.BeginValidation(ctx, game.ID)
	if err != nil || ok {
		t.Errorf("expected second BeginValidation to lose: %v %v", ok, err)
	}
}

// TestUpsertRoundAnswer_LastWriteWins tests idempotent resubmission
func TestUpsertRoundAnswer_LastWriteWins(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	room := testRoom(t, repo, "a", "b")
	game := testGame(t, repo, room, models.StatusPlaying)

	first := models.RoundAnswer{
		Round: 1, Letter: "B",
		Answers:     []models.CategoryAnswer{{Category: "City", Text: "Berlin"}},
		SubmittedAt: time.Now(),
	}
	if err := repo.UpsertRoundAnswer(ctx, game.ID, "a", first); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	second := first
	second.Answers = []models.CategoryAnswer{{Category: "City", Text: "Boston"}}
	if err := repo.UpsertRoundAnswer(ctx, game.ID, "a", second); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	sheets, err := repo.ListRoundAnswers(ctx, game.ID, 1)
	if err != nil {
		t.Fatalf("ListRoundAnswers failed: %v", err)
	}
	if len(sheets) != 1 {
		t.Fatalf("expected exactly one sheet after resubmission, got %d", len(sheets))
	}
	if sheets[0].Answer.Answers[0].Text != "Boston" {
		t.Errorf("expected last write to win, got %q", sheets[0].Answer.Answers[0].Text)
	}

	n, _ := repo.CountRoundAnswers(ctx, game.ID, 1)
	if n != 1 {
		t.Errorf("expected count 1, got %d", n)
	}
}

// TestMarkRoundAnswer_WritesVerdicts tests that validation marks persist
func TestMarkRoundAnswer_WritesVerdicts(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	room := testRoom(t, repo, "a", "b")
	game := testGame(t, repo, room, models.StatusValidating)

	if err := repo.UpsertRoundAnswer(ctx, game.ID, "a", models.RoundAnswer{
		Round: 1, Letter: "B",
		Answers:     []models.CategoryAnswer{{Category: "City", Text: "Berlin"}},
		SubmittedAt: time.Now(),
	}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	marked := []models.CategoryAnswer{{Category: "City", Text: "Berlin", Valid: true, Points: 10}}
	if err := repo.MarkRoundAnswer(ctx, game.ID, "a", 1, marked); err != nil {
		t.Fatalf("MarkRoundAnswer failed: %v", err)
	}

	sheets, _ := repo.ListRoundAnswers(ctx, game.ID, 1)
	if !sheets[0].Answer.Answers[0].Valid || sheets[0].Answer.Answers[0].Points != 10 {
		t.Errorf("expected persisted verdict, got %+v", sheets[0].Answer.Answers[0])
	}
}

// TestApplyRoundScores_Accumulates tests cumulative scoring
func TestApplyRoundScores_Accumulates(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	room := testRoom(t, repo, "a", "b")
	game := testGame(t, repo, room, models.StatusValidating)

	if err := repo.ApplyRoundScores(ctx, game.ID, map[string]int{"a": 15, "b": 10}); err != nil {
		t.Fatalf("ApplyRoundScores failed: %v", err)
	}
	if err := repo.ApplyRoundScores(ctx, game.ID, map[string]int{"a": 5}); err != nil {
		t.Fatalf("second ApplyRoundScores failed: %v", err)
	}

	got, _ := repo.GetGame(ctx, game.ID)
	if got.PlayerState("a").Score != 20 {
		t.Errorf("expected a=20, got %d", got.PlayerState("a").Score)
	}
	if got.PlayerState("b").Score != 10 {
		t.Errorf("expected b=10, got %d", got.PlayerState("b").Score)
	}
}

// TestSetPlayerConnection_SnapshotsScore tests the disconnect snapshot
func TestSetPlayerConnection_SnapshotsScore(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	room := testRoom(t, repo, "a", "b")
	game := testGame(t, repo, room, models.StatusPlaying)

	if err := repo.ApplyRoundScores(ctx, game.ID, map[string]int{"a": 25}); err != nil {
		t.Fatalf("ApplyRoundScores failed: %v", err)
	}
	if err := repo.SetPlayerConnection(ctx, game.ID, "a", true); err != nil {
		t.Fatalf("SetPlayerConnection failed: %v", err)
	}

	got, _ := repo.GetGame(ctx, game.ID)
	ps := got.PlayerState("a")
	if !ps.Disconnected || ps.ScoreAtDisconnect != 25 {
		t.Errorf("expected disconnect snapshot of 25, got %+v", ps)
	}
}

// TestVotes_IgnoreDuplicatesAndClear tests the vote table semantics
func TestVotes_IgnoreDuplicatesAndClear(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	room := testRoom(t, repo, "a", "b")
	game := testGame(t, repo, room, models.StatusRoundEnded)

	if added, _ := repo.AddVote(ctx, game.ID, models.VoteNextRound, 1, "a"); !added {
		t.Fatal("expected first vote recorded")
	}
	if added, _ := repo.AddVote(ctx, game.ID, models.VoteNextRound, 1, "a"); added {
		t.Error("expected duplicate vote ignored")
	}
	if added, _ := repo.AddVote(ctx, game.ID, models.VoteNextRound, 1, "b"); !added {
		t.Fatal("expected second player's vote recorded")
	}

	n, _ := repo.CountVotes(ctx, game.ID, models.VoteNextRound, 1)
	if n != 2 {
		t.Errorf("expected 2 votes, got %d", n)
	}

	if err := repo.ClearVotes(ctx, game.ID, models.VoteNextRound, 1); err != nil {
		t.Fatalf("ClearVotes failed: %v", err)
	}
	n, _ = repo.CountVotes(ctx, game.ID, models.VoteNextRound, 1)
	if n != 0 {
		t.Errorf("expected cleared votes, got %d", n)
	}
}

// TestFindJoinableRoom_SkipsFullAndPrivate tests lobby discovery
func TestFindJoinableRoom_SkipsFullAndPrivate(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()

	private := testRoom(t, repo, "priv")
	if _, err := repo.DB().Exec(`UPDATE rooms SET visibility = 'private' WHERE id = ?`, private.ID); err != nil {
		t.Fatalf("failed to mark room private: %v", err)
	}

	public := testRoom(t, repo, "pub")

	room, err := repo.FindJoinableRoom(ctx, "en")
	if err != nil {
		t.Fatalf("FindJoinableRoom failed: %v", err)
	}
	if room.ID != public.ID {
		t.Errorf("expected public room %s, got %s", public.ID, room.ID)
	}

	if _, err := repo.FindJoinableRoom(ctx, "es"); err != repository.ErrNotFound {
		t.Errorf("expected ErrNotFound for unmatched language, got %v", err)
	}
}
