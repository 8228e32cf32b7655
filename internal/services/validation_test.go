package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bastago/basta/internal/logger"
	"github.com/bastago/basta/internal/models"
	"github.com/bastago/basta/internal/repository"
	"github.com/bastago/basta/internal/services"
	"github.com/bastago/basta/pkg/wordjudge"
)

// TestValidateRound_DeduplicatesQueries tests that the same answer given by
// several players hits the judge once
func TestValidateRound_DeduplicatesQueries(t *testing.T) {
	judge := wordjudge.NewMockClient(wordjudge.WithDefaultValid())
	svc := services.NewValidationService(logger.New(), judge)

	sheets := []repository.PlayerRoundAnswer{
		sheet("alice", false, valid("City", "Berlin"), valid("Animal", "Bear")),
		sheet("bob", false, valid("City", "berlin")), // same answer, different case
	}

	svc.ValidateRound(context.Background(), "en", "B", sheets)

	if judge.Calls() != 1 {
		t.Fatalf("expected one batch call, got %d", judge.Calls())
	}
	if got := len(judge.LastBatch()); got != 2 {
		t.Errorf("expected 2 distinct queries in batch, got %d", got)
	}
}

// TestValidateRound_AppliesVerdicts tests that judge verdicts land on each
// player's sheet
func TestValidateRound_AppliesVerdicts(t *testing.T) {
	judge := wordjudge.NewMockClient(
		wordjudge.WithVerdict(wordjudge.Query{Category: "City", Letter: "B", Answer: "Berlin"}, true),
		wordjudge.WithVerdict(wordjudge.Query{Category: "City", Letter: "B", Answer: "Bzzt"}, false),
	)
	svc := services.NewValidationService(logger.New(), judge)

	sheets := []repository.PlayerRoundAnswer{
		sheet("alice", false, models.CategoryAnswer{Category: "City", Text: "Berlin"}),
		sheet("bob", false, models.CategoryAnswer{Category: "City", Text: "Bzzt"}),
	}

	svc.ValidateRound(context.Background(), "en", "B", sheets)

	if !sheets[0].Answer.Answers[0].Valid {
		t.Error("expected Berlin to be valid")
	}
	if sheets[1].Answer.Answers[0].Valid {
		t.Error("expected Bzzt to be invalid")
	}
}

// TestValidateRound_FallbackOnJudgeError tests the local heuristic path
func TestValidateRound_FallbackOnJudgeError(t *testing.T) {
	judge := wordjudge.NewMockClient(wordjudge.WithError(errors.New("judge down")))
	svc := services.NewValidationService(logger.New(), judge)

	sheets := []repository.PlayerRoundAnswer{
		sheet("alice", false,
			models.CategoryAnswer{Category: "City", Text: "Berlin"}, // starts with B, len >= 2
			models.CategoryAnswer{Category: "City", Text: "Munich"}, // wrong letter
			models.CategoryAnswer{Category: "City", Text: "B"},      // too short
		),
	}

	svc.ValidateRound(context.Background(), "en", "B", sheets)

	answers := sheets[0].Answer.Answers
	if !answers[0].Valid {
		t.Error("expected Berlin valid under fallback")
	}
	if answers[1].Valid {
		t.Error("expected Munich invalid under fallback (wrong letter)")
	}
	if answers[2].Valid {
		t.Error("expected single-letter answer invalid under fallback")
	}
}

// TestValidateRound_BlankAnswersSkipJudge tests that empty entries are
// invalid without being sent out
func TestValidateRound_BlankAnswersSkipJudge(t *testing.T) {
	judge := wordjudge.NewMockClient(wordjudge.WithDefaultValid())
	svc := services.NewValidationService(logger.New(), judge)

	sheets := []repository.PlayerRoundAnswer{
		sheet("alice", false,
			models.CategoryAnswer{Category: "City", Text: "  "},
			models.CategoryAnswer{Category: "Animal", Text: ""},
		),
	}

	svc.ValidateRound(context.Background(), "en", "B", sheets)

	if judge.Calls() != 0 {
		t.Errorf("expected no judge call for all-blank sheets, got %d", judge.Calls())
	}
	for _, ans := range sheets[0].Answer.Answers {
		if ans.Valid {
			t.Errorf("expected blank answer %q to be invalid", ans.Text)
		}
	}
}

// TestFallbackValid_Unicode tests that the heuristic compares the first
// rune, not byte
func TestFallbackValid_Unicode(t *testing.T) {
	cases := []struct {
		letter string
		text   string
		want   bool
	}{
		{"B", "Berlin", true},
		{"b", "BERLIN", true},
		{"B", " berlin ", true},
		{"B", "Austin", false},
		{"B", "b", false},
		{"Ñ", "ñandú", true},
	}
	for _, tc := range cases {
		if got := services.FallbackValid(tc.letter, tc.text); got != tc.want {
			t.Errorf("FallbackValid(%q, %q) = %v, want %v", tc.letter, tc.text, got, tc.want)
		}
	}
}
