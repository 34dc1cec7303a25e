package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/homeopathy-case-engine/internal/domain"
)

// ContradictionEngine flags incompatible candidates and recent repetitions.
type ContradictionEngine struct {
	cfg    domain.ContradictionConfig
	now    func() time.Time
	logger *logrus.Logger
}

// NewContradictionEngine creates a contradiction engine using the wall clock.
func NewContradictionEngine(cfg domain.EngineConfig, logger *logrus.Logger) *ContradictionEngine {
	return &ContradictionEngine{cfg: cfg.Contradiction, now: time.Now, logger: logger}
}

// WithClock replaces the clock used to age patient history.
func (e *ContradictionEngine) WithClock(now func() time.Time) *ContradictionEngine {
	e.now = now
	return e
}

// DetectContradictions returns one result per score, in the same order. Only a
// remedy's own incompatibility list is checked against the other candidates.
func (e *ContradictionEngine) DetectContradictions(scores []domain.RemedyFinalScore, history []domain.HistoryEntry) []domain.ContradictionResult {
	results := make([]domain.ContradictionResult, 0, len(scores))
	now := e.now()

	for i, sc := range scores {
		result := domain.ContradictionResult{RemedyID: sc.RemedyID, Warnings: []domain.Warning{}}

		if conflicts := e.incompatibleCandidates(i, scores); len(conflicts) > 0 {
			result.Penalty += e.cfg.IncompatibilityPenalty
			result.Warnings = append(result.Warnings, domain.Warning{
				Type:     domain.WarningIncompatibility,
				Severity: domain.SeverityHigh,
				Message:  fmt.Sprintf("%s is incompatible with %s", sc.RemedyName, strings.Join(conflicts, ", ")),
				Remedies: conflicts,
			})
		}

		if last, ok := lastUse(sc.RemedyID, history); ok {
			penalty, warning := e.repetition(sc.RemedyName, now.Sub(last))
			result.Penalty += penalty
			if warning != nil {
				result.Warnings = append(result.Warnings, *warning)
			}
		}

		results = append(results, result)
	}

	return results
}

// ApplyPenalties subtracts each result's penalty from the matching score and
// attaches its warnings. results must be parallel to scores.
func (e *ContradictionEngine) ApplyPenalties(scores []domain.RemedyFinalScore, results []domain.ContradictionResult) []domain.RemedyFinalScore {
	adjusted := make([]domain.RemedyFinalScore, len(scores))
	copy(adjusted, scores)

	for i := range adjusted {
		if i >= len(results) || results[i].RemedyID != adjusted[i].RemedyID {
			continue
		}
		r := results[i]
		if r.Penalty == 0 && len(r.Warnings) == 0 {
			continue
		}
		adjusted[i].ContradictionPenalty = r.Penalty
		adjusted[i].FinalScore = round2(adjusted[i].FinalScore - r.Penalty)
		adjusted[i].Warnings = append(append([]domain.Warning{}, adjusted[i].Warnings...), r.Warnings...)

		e.logger.WithFields(logrus.Fields{
			"remedy_id": r.RemedyID,
			"penalty":   r.Penalty,
			"warnings":  len(r.Warnings),
		}).Debug("Applied contradiction penalty")
	}

	return adjusted
}

func (e *ContradictionEngine) incompatibleCandidates(idx int, scores []domain.RemedyFinalScore) []string {
	remedy := scores[idx].Remedy
	if remedy == nil || len(remedy.IncompatibleWith) == 0 {
		return nil
	}
	var conflicts []string
	for j, other := range scores {
		if j == idx {
			continue
		}
		for _, incompatible := range remedy.IncompatibleWith {
			if strings.EqualFold(incompatible, other.RemedyID) || strings.EqualFold(incompatible, other.RemedyName) {
				conflicts = append(conflicts, other.RemedyName)
				break
			}
		}
	}
	return conflicts
}

func (e *ContradictionEngine) repetition(name string, since time.Duration) (float64, *domain.Warning) {
	days := int(since.Hours() / 24)
	if days < 0 {
		days = 0
	}
	switch {
	case days <= e.cfg.VeryRecentDays:
		return e.cfg.VeryRecentPenalty, &domain.Warning{
			Type:     domain.WarningRepetition,
			Severity: domain.SeverityHigh,
			Message:  fmt.Sprintf("%s was given %d days ago; avoid repeating it so soon", name, days),
		}
	case days <= e.cfg.RecentDays:
		return e.cfg.RecentPenalty, &domain.Warning{
			Type:     domain.WarningRepetition,
			Severity: domain.SeverityMedium,
			Message:  fmt.Sprintf("%s was given %d days ago; consider the repetition carefully", name, days),
		}
	case days <= e.cfg.ModerateDays:
		return e.cfg.ModeratePenalty, nil
	default:
		return 0, nil
	}
}

func lastUse(remedyID string, history []domain.HistoryEntry) (time.Time, bool) {
	var last time.Time
	found := false
	for _, h := range history {
		if !strings.EqualFold(h.RemedyID, remedyID) {
			continue
		}
		if !found || h.Date.After(last) {
			last = h.Date
			found = true
		}
	}
	return last, found
}
