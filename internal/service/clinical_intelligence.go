package service

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/homeopathy-case-engine/internal/domain"
)

// Clinical indication tags that steer the acute and chronic adjustments.
const (
	IndicationAcute       = "Acute"
	IndicationChronicOnly = "Chronic Only"
	IndicationAcuteOnly   = "Acute Only"
)

// ClinicalIntelligence rescales scored remedies by the clinical picture of the
// case. It never drops or reorders remedies.
type ClinicalIntelligence struct {
	cfg    domain.ClinicalConfig
	logger *logrus.Logger
}

// NewClinicalIntelligence creates the clinical adjustment stage.
func NewClinicalIntelligence(cfg domain.EngineConfig, logger *logrus.Logger) *ClinicalIntelligence {
	return &ClinicalIntelligence{cfg: cfg.Clinical, logger: logger}
}

// ApplyClinicalFilters returns a copy of scores with clinically adjusted final
// scores, in the same order.
func (c *ClinicalIntelligence) ApplyClinicalFilters(scores []domain.RemedyFinalScore, profile domain.NormalizedCaseProfile) []domain.RemedyFinalScore {
	adjusted := make([]domain.RemedyFinalScore, len(scores))
	copy(adjusted, scores)

	var mentalShare float64
	if n := profile.Count(); n > 0 {
		mentalShare = float64(len(profile.Mental)) / float64(n)
	}
	mentalDominant := mentalShare > c.cfg.MentalDominanceThreshold
	mentalLeads := len(profile.Mental) > len(profile.Generals)

	for i := range adjusted {
		sc := &adjusted[i]
		remedy := sc.Remedy
		if remedy == nil {
			continue
		}
		before := sc.FinalScore
		notes := append([]string{}, sc.ClinicalAdjustments...)
		scale := func(factor float64, reason string) {
			sc.FinalScore *= factor
			notes = append(notes, fmt.Sprintf("%s x%.2f", reason, factor))
		}

		if profile.IsAcute {
			if remedy.HasIndication(IndicationAcute) {
				scale(c.cfg.AcuteBoost, "acute indication")
			}
			if remedy.HasIndication(IndicationChronicOnly) {
				scale(c.cfg.AcutePenalty, "chronic-only remedy in acute case")
			}
		} else if profile.IsChronic {
			if sc.Breakdown.ConstitutionBonus > c.cfg.ChronicConstitutionThreshold {
				scale(c.cfg.ChronicBoost, "constitutional fit in chronic case")
			}
			if remedy.HasIndication(IndicationAcuteOnly) {
				scale(c.cfg.ChronicPenalty, "acute-only remedy in chronic case")
			}
		}

		if mentalDominant {
			if sc.Breakdown.ConstitutionBonus > c.cfg.MentalConstitutionThreshold {
				scale(c.cfg.MentalDominanceBoost, "mental dominance")
			}
			if keynoteMatchesMental(remedy, profile.Mental) {
				scale(c.cfg.KeynoteBoost, "mental keynote")
			}
		}

		if pathologyIntersects(profile.PathologyTags, remedy.ClinicalIndication) {
			sc.FinalScore += c.cfg.PathologyBonus
			notes = append(notes, fmt.Sprintf("pathology indication +%.2f", c.cfg.PathologyBonus))
		}

		if mentalLeads && (strings.EqualFold(remedy.Category, "Mental") || strings.EqualFold(remedy.Category, "Constitutional")) {
			scale(c.cfg.CategoryNudge, "mental picture category")
		}

		sc.FinalScore = round2(sc.FinalScore)
		if len(notes) > 0 {
			sc.ClinicalAdjustments = notes
		}

		if sc.FinalScore != before {
			c.logger.WithFields(logrus.Fields{
				"remedy_id": sc.RemedyID,
				"before":    before,
				"after":     sc.FinalScore,
			}).Debug("Applied clinical adjustments")
		}
	}

	return adjusted
}

func keynoteMatchesMental(remedy *domain.Remedy, mental []domain.NormalizedSymptom) bool {
	for _, keynote := range remedy.MateriaMedica.Keynotes {
		if symptomsIntersect(keynote, mental) {
			return true
		}
	}
	return false
}
