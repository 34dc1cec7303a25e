package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/homeopathy-case-engine/internal/domain"
)

// CaseEngine turns a doctor's structured case into a normalized, weighted profile.
type CaseEngine struct {
	normalizer *SymptomNormalizer
	cfg        domain.EngineConfig
	logger     *logrus.Logger
}

// NewCaseEngine creates a case engine.
func NewCaseEngine(normalizer *SymptomNormalizer, cfg domain.EngineConfig, logger *logrus.Logger) *CaseEngine {
	return &CaseEngine{
		normalizer: normalizer,
		cfg:        cfg,
		logger:     logger,
	}
}

// NormalizeCase normalizes every mention of every category. Unresolvable or
// blank text degrades to an unmatched symptom; no mention is dropped.
func (e *CaseEngine) NormalizeCase(ctx context.Context, sc domain.StructuredCase) (domain.NormalizedCaseProfile, error) {
	profile := domain.NormalizedCaseProfile{
		Mental:        []domain.NormalizedSymptom{},
		Generals:      []domain.NormalizedSymptom{},
		Particulars:   []domain.NormalizedSymptom{},
		Modalities:    []domain.NormalizedSymptom{},
		PathologyTags: append([]string{}, sc.PathologyTags...),
	}

	for _, cat := range domain.Categories {
		normalized := make([]domain.NormalizedSymptom, 0, len(sc.Mentions(cat)))
		for _, mention := range sc.Mentions(cat) {
			match, err := e.normalizer.Normalize(ctx, mention.SymptomText, cat)
			if err != nil {
				return domain.NormalizedCaseProfile{}, err
			}
			weight := e.cfg.DefaultWeights.For(cat)
			if mention.Weight != nil {
				weight = *mention.Weight
			}
			normalized = append(normalized, domain.NormalizedSymptom{
				SymptomMatch: match,
				Category:     cat,
				Weight:       weight,
				Location:     mention.Location,
				Sensation:    mention.Sensation,
				Type:         mention.Type,
				OriginalTxt:  mention.SymptomText,
			})
		}
		switch cat {
		case domain.CategoryMental:
			profile.Mental = normalized
		case domain.CategoryGeneral:
			profile.Generals = normalized
		case domain.CategoryParticular:
			profile.Particulars = normalized
		case domain.CategoryModality:
			profile.Modalities = normalized
		}
	}

	profile.IsAcute = tagsMatchAny(sc.PathologyTags, e.cfg.AcuteKeywords)
	profile.IsChronic = tagsMatchAny(sc.PathologyTags, e.cfg.ChronicKeywords)

	e.logger.WithFields(logrus.Fields{
		"symptoms":   profile.Count(),
		"is_acute":   profile.IsAcute,
		"is_chronic": profile.IsChronic,
	}).Debug("Normalized structured case")

	return profile, nil
}

func tagsMatchAny(tags, keywords []string) bool {
	for _, tag := range tags {
		for _, kw := range keywords {
			if containsFold(tag, kw) {
				return true
			}
		}
	}
	return false
}
