package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/homeopathy-case-engine/internal/domain"
)

const narrativeRubricLimit = 3

// BuildClinicalReasoning writes a short deterministic narrative of an engine
// run: the case framing, its dominant category, the leading remedy with its
// strongest rubrics, and any warnings on the list.
func BuildClinicalReasoning(profile domain.NormalizedCaseProfile, candidates []domain.RubricCandidate, top []domain.RemedyFinalScore) string {
	var b strings.Builder

	switch {
	case profile.IsAcute:
		b.WriteString("Acute presentation")
	case profile.IsChronic:
		b.WriteString("Chronic presentation")
	default:
		b.WriteString("Presentation without acute or chronic framing")
	}
	fmt.Fprintf(&b, " with %d symptoms", profile.Count())
	if cat, ok := dominantCategory(profile); ok {
		fmt.Fprintf(&b, ", dominated by %s symptoms", cat)
	}
	b.WriteString(". ")

	if unmatched := countUnmatched(profile); unmatched > 0 {
		fmt.Fprintf(&b, "%d symptom(s) could not be matched to reference data and need confirmation. ", unmatched)
	}

	if len(top) == 0 {
		b.WriteString("No remedy reached the minimum score; review the case or select rubrics manually.")
		return b.String()
	}

	lead := top[0]
	fmt.Fprintf(&b, "%s leads with a score of %.2f (%s confidence)", lead.RemedyName, lead.FinalScore, lead.Confidence)
	if rubrics := strongestRubrics(lead, candidates); len(rubrics) > 0 {
		fmt.Fprintf(&b, ", supported by %s", strings.Join(rubrics, "; "))
	}
	b.WriteString(".")

	if len(top) > 1 {
		names := make([]string, 0, len(top)-1)
		for _, sc := range top[1:] {
			names = append(names, sc.RemedyName)
		}
		fmt.Fprintf(&b, " Alternatives: %s.", strings.Join(names, ", "))
	}

	var warned []string
	for _, sc := range top {
		if len(sc.Warnings) > 0 {
			warned = append(warned, sc.RemedyName)
		}
	}
	if len(warned) > 0 {
		fmt.Fprintf(&b, " Check warnings for %s before prescribing.", strings.Join(warned, ", "))
	}

	return b.String()
}

// dominantCategory returns the category with the highest total weight. Ties go
// to the earlier category in canonical order.
func dominantCategory(profile domain.NormalizedCaseProfile) (domain.Category, bool) {
	var (
		best       domain.Category
		bestWeight float64
	)
	for _, cat := range domain.Categories {
		var w float64
		for _, s := range profile.Symptoms(cat) {
			w += s.Weight
		}
		if w > bestWeight {
			best, bestWeight = cat, w
		}
	}
	return best, bestWeight > 0
}

func countUnmatched(profile domain.NormalizedCaseProfile) int {
	n := 0
	for _, s := range profile.All() {
		if !s.Matched {
			n++
		}
	}
	return n
}

func strongestRubrics(score domain.RemedyFinalScore, candidates []domain.RubricCandidate) []string {
	matched := make(map[string]bool, len(score.MatchedRubrics))
	for _, id := range score.MatchedRubrics {
		matched[id] = true
	}
	var hits []domain.RubricCandidate
	for _, c := range candidates {
		if matched[c.RubricID] {
			hits = append(hits, c)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Confidence > hits[j].Confidence })
	if len(hits) > narrativeRubricLimit {
		hits = hits[:narrativeRubricLimit]
	}
	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		texts = append(texts, h.RubricText)
	}
	return texts
}
