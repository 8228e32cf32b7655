package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/bastago/basta/internal/logger"
	"github.com/bastago/basta/internal/metrics"
	"github.com/bastago/basta/internal/repository"
	"github.com/bastago/basta/pkg/wordjudge"
)

// ValidationService adapts the external answer judge to the round pipeline:
// it deduplicates answers across players, sends one batch per round, fans
// verdicts back out, and falls back to a local heuristic when the judge is
// unreachable.
type ValidationService struct {
	log   logger.Logger
	judge wordjudge.Client
}

// NewValidationService creates a new ValidationService
func NewValidationService(log logger.Logger, judge wordjudge.Client) *ValidationService {
	return &ValidationService{log: log, judge: judge}
}

// FallbackValid is the local heuristic: trimmed length at least two and the
// first letter matching the round letter, case-insensitively.
func FallbackValid(letter, text string) bool {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < 2 {
		return false
	}
	return strings.EqualFold(firstRune(trimmed), letter)
}

func firstRune(s string) string {
	r, _ := utf8.DecodeRuneInString(s)
	return string(r)
}

// ValidateRound sets Valid on every answer of every sheet. Duplicate
// answers share a single judge query, so the external call count does not
// grow with player count.
func (s *ValidationService) ValidateRound(ctx context.Context, language, letter string, sheets []repository.PlayerRoundAnswer) {
	seen := make(map[string]wordjudge.Query)
	for i := range sheets {
		for _, ans := range sheets[i].Answer.Answers {
			if strings.TrimSpace(ans.Text) == "" {
				continue // blank entries are invalid without asking
			}
			q := wordjudge.Query{Category: ans.Category, Letter: letter, Answer: ans.Text}
			seen[q.Key()] = q
		}
	}

	queries := make([]wordjudge.Query, 0, len(seen))
	for _, q := range seen {
		queries = append(queries, q)
	}

	var verdicts map[string]bool
	if len(queries) > 0 {
		var err error
		verdicts, err = s.judge.JudgeBatch(ctx, language, queries)
		if err != nil {
			s.log.Warn("Judge unavailable, falling back to heuristic", "error", err, "queries", len(queries))
			metrics.OracleCallsTotal.WithLabelValues("error").Inc()
			metrics.OracleFallbacksTotal.Inc()
			verdicts = nil
		} else {
			metrics.OracleCallsTotal.WithLabelValues("ok").Inc()
		}
	}

	for i := range sheets {
		for j := range sheets[i].Answer.Answers {
			ans := &sheets[i].Answer.Answers[j]
			if strings.TrimSpace(ans.Text) == "" {
				ans.Valid = false
				continue
			}
			if verdicts != nil {
				key := wordjudge.Query{Category: ans.Category, Letter: letter, Answer: ans.Text}.Key()
				ans.Valid = verdicts[key]
			} else {
				ans.Valid = FallbackValid(letter, ans.Text)
			}
		}
	}
}
