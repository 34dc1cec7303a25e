package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/homeopathy-case-engine/internal/domain"
)

const (
	linkedMatchScore = 100.0
	textMatchScore   = 60.0
)

// RubricMapper finds repertory rubrics that cover a normalized case.
type RubricMapper struct {
	store       domain.ReferenceStore
	cfg         domain.EngineConfig
	languageMap map[string][]string
	logger      *logrus.Logger
}

// NewRubricMapper creates a rubric mapper. The language map translates a
// symptom name into extra search terms for cross-language repertories.
func NewRubricMapper(store domain.ReferenceStore, cfg domain.EngineConfig, logger *logrus.Logger) *RubricMapper {
	languageMap := make(map[string][]string, len(cfg.LanguageMap))
	for k, v := range cfg.LanguageMap {
		languageMap[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &RubricMapper{
		store:       store,
		cfg:         cfg,
		languageMap: languageMap,
		logger:      logger,
	}
}

type rubricHit struct {
	rubric  domain.Rubric
	codes   []string
	seen    map[string]bool
	weight  float64
	mention map[int]bool
}

// MapSymptomsToRubrics returns every rubric hit by at least one case symptom,
// sorted by descending confidence. Ties keep first-hit order.
func (m *RubricMapper) MapSymptomsToRubrics(ctx context.Context, profile domain.NormalizedCaseProfile) ([]domain.RubricCandidate, error) {
	total := profile.TotalWeight()
	if total <= 0 {
		return []domain.RubricCandidate{}, nil
	}

	hits := make(map[string]*rubricHit)
	var order []string

	for i, sym := range profile.All() {
		q := domain.RubricQuery{
			Terms:    m.searchTerms(sym.Name),
			Modality: m.cfg.Modality,
		}
		if sym.Matched {
			q.SymptomCode = sym.Code
		}
		if q.SymptomCode == "" && len(q.Terms) == 0 {
			continue
		}

		rubrics, err := m.store.FindRubrics(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("rubric lookup failed for %q: %w", sym.Name, err)
		}

		for _, r := range rubrics {
			hit, ok := hits[r.ID]
			if !ok {
				hit = &rubricHit{rubric: r, seen: map[string]bool{}, mention: map[int]bool{}}
				hits[r.ID] = hit
				order = append(order, r.ID)
			}
			if !hit.mention[i] {
				hit.mention[i] = true
				hit.weight += sym.Weight
			}
			if !hit.seen[sym.Code] {
				hit.seen[sym.Code] = true
				hit.codes = append(hit.codes, sym.Code)
			}
		}
	}

	candidates := make([]domain.RubricCandidate, 0, len(order))
	for _, id := range order {
		hit := hits[id]
		confidence := round2(hit.weight / total * 100)
		candidates = append(candidates, domain.RubricCandidate{
			RubricID:        hit.rubric.ID,
			RubricText:      hit.rubric.Text,
			Repertory:       hit.rubric.Repertory,
			MatchedSymptoms: hit.codes,
			Confidence:      confidence,
			AutoSelected:    confidence >= m.cfg.AutoSelectThreshold,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	m.logger.WithFields(logrus.Fields{
		"symptoms": profile.Count(),
		"rubrics":  len(candidates),
	}).Debug("Mapped symptoms to rubrics")

	return candidates, nil
}

// SuggestRubrics proposes rubrics for one symptom code, optionally limited to
// a named repertory. Rubrics linked to the code score above text matches. An
// unknown code yields an empty list.
func (m *RubricMapper) SuggestRubrics(ctx context.Context, symptomCode, repertory string) ([]domain.RubricSuggestion, error) {
	sym, err := m.store.SymptomByCode(ctx, symptomCode)
	if err != nil {
		return nil, fmt.Errorf("symptom lookup failed: %w", err)
	}
	if sym == nil {
		return []domain.RubricSuggestion{}, nil
	}

	rubrics, err := m.store.FindRubrics(ctx, domain.RubricQuery{
		SymptomCode: sym.Code,
		Terms:       m.searchTerms(sym.Name),
		Repertory:   repertory,
		Modality:    m.cfg.Modality,
	})
	if err != nil {
		return nil, fmt.Errorf("rubric lookup failed: %w", err)
	}

	suggestions := make([]domain.RubricSuggestion, 0, len(rubrics))
	for _, r := range rubrics {
		score := textMatchScore
		for _, linked := range r.LinkedSymptoms {
			if linked == sym.Code {
				score = linkedMatchScore
				break
			}
		}
		suggestions = append(suggestions, domain.RubricSuggestion{Rubric: r, MatchScore: score})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].MatchScore > suggestions[j].MatchScore
	})
	return suggestions, nil
}

// SelectRubrics returns the auto-selected candidates, or every candidate
// when none cleared the auto-select threshold.
func SelectRubrics(candidates []domain.RubricCandidate) []domain.RubricCandidate {
	selected := make([]domain.RubricCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.AutoSelected {
			selected = append(selected, c)
		}
	}
	if len(selected) == 0 {
		return candidates
	}
	return selected
}

func (m *RubricMapper) searchTerms(name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	terms := []string{name}
	terms = append(terms, m.languageMap[strings.ToLower(name)]...)
	return terms
}
