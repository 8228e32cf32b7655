package services

import (
	"sort"
	"strings"

	"github.com/bastago/basta/internal/models"
	"github.com/bastago/basta/internal/repository"
)

// Scoring rules: a valid answer nobody else gave is worth 10, a valid
// answer shared with at least one other player is worth 5, and the player
// who stopped the round first gets a flat bonus.
const (
	PointsUnique  = 10
	PointsShared  = 5
	PointsInvalid = 0
	StopBonus     = 5
)

// answerKey groups answers that count as "the same": same category and the
// same lower-cased trimmed text. The round letter is shared by every sheet
// in the group already.
func answerKey(category, text string) string {
	return strings.ToLower(strings.TrimSpace(category)) + "\x00" + strings.ToLower(strings.TrimSpace(text))
}

// ScoreRound fills Points on every sheet (Valid must already be set by the
// validation adapter) and returns each player's total for the round,
// including the stop bonus.
func ScoreRound(sheets []repository.PlayerRoundAnswer) map[string]int {
	// Count valid occurrences of each distinct answer across players
	validCounts := make(map[string]int)
	for i := range sheets {
		for _, ans := range sheets[i].Answer.Answers {
			if ans.Valid {
				validCounts[answerKey(ans.Category, ans.Text)]++
			}
		}
	}

	totals := make(map[string]int, len(sheets))
	for i := range sheets {
		total := 0
		for j := range sheets[i].Answer.Answers {
			ans := &sheets[i].Answer.Answers[j]
			switch {
			case !ans.Valid:
				ans.Points = PointsInvalid
			case validCounts[answerKey(ans.Category, ans.Text)] == 1:
				ans.Points = PointsUnique
			default:
				ans.Points = PointsShared
			}
			total += ans.Points
		}
		if sheets[i].Answer.StoppedFirst {
			total += StopBonus
		}
		totals[sheets[i].PlayerID] = total
	}
	return totals
}

// ComputeStandings ranks players by cumulative score, highest first.
// Join order breaks presentation ties; it carries no scoring meaning.
func ComputeStandings(players []models.PlayerState) []models.Standing {
	sorted := make([]models.PlayerState, len(players))
	copy(sorted, players)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	standings := make([]models.Standing, len(sorted))
	for i, p := range sorted {
		standings[i] = models.Standing{
			Position: i + 1,
			PlayerID: p.PlayerID,
			Username: p.Username,
			Score:    p.Score,
		}
	}
	return standings
}

// DetermineWinner returns the id of the single player with strictly
// highest score, or nil when the top score is shared (draw).
func DetermineWinner(players []models.PlayerState) *string {
	if len(players) == 0 {
		return nil
	}
	best := players[0]
	tied := false
	for _, p := range players[1:] {
		if p.Score > best.Score {
			best = p
			tied = false
		} else if p.Score == best.Score {
			tied = true
		}
	}
	if tied {
		return nil
	}
	winner := best.PlayerID
	return &winner
}
