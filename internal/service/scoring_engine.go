package service

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/homeopathy-case-engine/internal/domain"
)

// ScoringEngine turns a remedy pool into ranked, labelled scores.
type ScoringEngine struct {
	cfg    domain.EngineConfig
	logger *logrus.Logger
}

// NewScoringEngine creates a scoring engine.
func NewScoringEngine(cfg domain.EngineConfig, logger *logrus.Logger) *ScoringEngine {
	return &ScoringEngine{cfg: cfg, logger: logger}
}

// ScoreRemedies scores the pool against the case and applies minimum-score and
// score-gap filtering.
func (s *ScoringEngine) ScoreRemedies(pool domain.RemedyPool, profile domain.NormalizedCaseProfile, selected []domain.RubricCandidate) []domain.RemedyFinalScore {
	return s.SelectTop(s.ScoreAll(pool, profile, selected))
}

// ScoreAll scores every pooled remedy without filtering, sorted by final score.
func (s *ScoringEngine) ScoreAll(pool domain.RemedyPool, profile domain.NormalizedCaseProfile, selected []domain.RubricCandidate) []domain.RemedyFinalScore {
	rubricSymptoms := make(map[string][]string, len(selected))
	for _, c := range selected {
		rubricSymptoms[c.RubricID] = c.MatchedSymptoms
	}

	scores := make([]domain.RemedyFinalScore, 0, len(pool))
	for _, entry := range pool {
		scores = append(scores, s.score(entry, profile, rubricSymptoms, len(selected)))
	}
	SortScores(scores)
	return scores
}

func (s *ScoringEngine) score(entry *domain.PoolEntry, profile domain.NormalizedCaseProfile, rubricSymptoms map[string][]string, selectedCount int) domain.RemedyFinalScore {
	result := domain.RemedyFinalScore{
		RemedyID:        entry.RemedyID,
		RemedyName:      entry.RemedyName,
		MatchedRubrics:  []string{},
		MatchedSymptoms: []string{},
		Remedy:          entry.Remedy,
	}

	seenRubric := map[string]bool{}
	seenSymptom := map[string]bool{}
	for _, rg := range entry.RubricGrades {
		result.BaseScore += float64(rg.Grade) * s.cfg.GradeMultipliers.For(rg.Grade)
		if seenRubric[rg.RubricID] {
			continue
		}
		seenRubric[rg.RubricID] = true
		result.MatchedRubrics = append(result.MatchedRubrics, rg.RubricID)
		for _, code := range rubricSymptoms[rg.RubricID] {
			if !seenSymptom[code] {
				seenSymptom[code] = true
				result.MatchedSymptoms = append(result.MatchedSymptoms, code)
			}
		}
	}
	result.BaseScore = round2(result.BaseScore)

	if remedy := entry.Remedy; remedy != nil {
		traits, keynotes := s.constitutionBonus(remedy, profile)
		result.Breakdown.ConstitutionBonus = traits + keynotes
		result.Breakdown.KeynoteBonus = keynotes
		result.Breakdown.ModalityBonus = s.modalityBonus(remedy, profile)
		if pathologyIntersects(profile.PathologyTags, remedy.ClinicalIndication) {
			result.Breakdown.PathologySupport = s.cfg.PathologySupport
		}
	}
	result.Breakdown.CoverageBonus = s.coverageBonus(len(seenRubric), selectedCount)

	result.FinalScore = round2(result.BaseScore +
		result.Breakdown.ConstitutionBonus +
		result.Breakdown.ModalityBonus +
		result.Breakdown.PathologySupport +
		result.Breakdown.CoverageBonus)
	result.Confidence = s.cfg.ConfidenceThresholds.Label(result.FinalScore)
	return result
}

// constitutionBonus returns the trait and keynote parts of the constitution
// bonus. A trait without a kind takes the kind of the symptom it matched.
func (s *ScoringEngine) constitutionBonus(remedy *domain.Remedy, profile domain.NormalizedCaseProfile) (float64, float64) {
	var traits float64
	for _, trait := range remedy.Constitution {
		kind := trait.Kind
		switch {
		case symptomsIntersect(trait.Trait, profile.Mental):
			if kind == "" {
				kind = domain.TraitMental
			}
		case symptomsIntersect(trait.Trait, profile.Generals):
			if kind == "" {
				kind = domain.TraitPhysical
			}
		default:
			continue
		}
		traits += s.cfg.ConstitutionBonus.For(kind)
	}

	var keynotes float64
	all := profile.All()
	for _, keynote := range remedy.MateriaMedica.Keynotes {
		if symptomsIntersect(keynote, all) {
			keynotes += s.cfg.KeynoteBonus
		}
	}
	return traits, keynotes
}

func (s *ScoringEngine) modalityBonus(remedy *domain.Remedy, profile domain.NormalizedCaseProfile) float64 {
	var bonus float64
	for _, m := range profile.Modalities {
		switch m.Type {
		case domain.ModalityWorse:
			if anyIntersects(m.Name, remedy.ModalitiesWorse) {
				bonus += s.cfg.ModalityBonus.Worse
			}
		case domain.ModalityBetter:
			if anyIntersects(m.Name, remedy.ModalitiesBetter) {
				bonus += s.cfg.ModalityBonus.Better
			}
		}
	}
	return bonus
}

func (s *ScoringEngine) coverageBonus(matched, selected int) float64 {
	if selected == 0 {
		return 0
	}
	fraction := float64(matched) / float64(selected)
	switch {
	case fraction > s.cfg.Coverage.HighThreshold:
		return s.cfg.Coverage.HighBonus
	case fraction > s.cfg.Coverage.MediumThreshold:
		return s.cfg.Coverage.MediumBonus
	default:
		return 0
	}
}

// SelectTop drops scores under the minimum and trims the ranked list by the
// gap between the first and second scores. Input must be sorted.
func (s *ScoringEngine) SelectTop(scores []domain.RemedyFinalScore) []domain.RemedyFinalScore {
	kept := make([]domain.RemedyFinalScore, 0, len(scores))
	for _, sc := range scores {
		if sc.FinalScore >= s.cfg.MinScore {
			kept = append(kept, sc)
		}
	}

	limit := s.cfg.MaxSuggestions
	if len(kept) >= 2 && kept[0].FinalScore > 0 {
		gap := (kept[0].FinalScore - kept[1].FinalScore) / kept[0].FinalScore * 100
		switch {
		case gap > s.cfg.ScoreGap.Large:
			limit = min(limit, 2)
		case gap > s.cfg.ScoreGap.Medium:
			limit = min(limit, 3)
		}
	}
	if len(kept) > limit {
		kept = kept[:limit]
	}

	s.logger.WithFields(logrus.Fields{
		"scored":   len(scores),
		"selected": len(kept),
	}).Debug("Selected top remedies")

	return kept
}

// SortScores orders scores by final score, then name and id for stable output.
func SortScores(scores []domain.RemedyFinalScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].FinalScore != scores[j].FinalScore {
			return scores[i].FinalScore > scores[j].FinalScore
		}
		if scores[i].RemedyName != scores[j].RemedyName {
			return scores[i].RemedyName < scores[j].RemedyName
		}
		return scores[i].RemedyID < scores[j].RemedyID
	})
}

func symptomsIntersect(phrase string, symptoms []domain.NormalizedSymptom) bool {
	for _, sym := range symptoms {
		if textIntersects(phrase, sym.Name) {
			return true
		}
	}
	return false
}

func pathologyIntersects(tags, indications []string) bool {
	for _, tag := range tags {
		if anyIntersects(tag, indications) {
			return true
		}
	}
	return false
}
