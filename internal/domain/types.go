// Package domain contains the core entities of the remedy-suggestion engine for
// Classical Homeopathy case-taking: repertory reference data (symptoms, rubrics,
// rubric-remedy grades, remedies), the structured case a doctor enters, and the
// derived profiles and scores the engine produces.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Category is the clinical category a symptom belongs to. The set is closed;
// every consumer switches over all four values.
type Category string

const (
	CategoryMental     Category = "mental"
	CategoryGeneral    Category = "general"
	CategoryParticular Category = "particular"
	CategoryModality   Category = "modality"
)

// Categories lists every category in case-taking order.
var Categories = []Category{CategoryMental, CategoryGeneral, CategoryParticular, CategoryModality}

// IsValid reports whether c is one of the four clinical categories.
func (c Category) IsValid() bool {
	switch c {
	case CategoryMental, CategoryGeneral, CategoryParticular, CategoryModality:
		return true
	default:
		return false
	}
}

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// ParseCategory converts a user supplied string into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}

// MatchConfidence is the strict ordinal confidence of a symptom normalization:
// exact > high > medium > low.
type MatchConfidence string

const (
	MatchExact  MatchConfidence = "exact"
	MatchHigh   MatchConfidence = "high"
	MatchMedium MatchConfidence = "medium"
	MatchLow    MatchConfidence = "low"
)

// Rank returns the ordinal position of the confidence, higher is stronger.
func (m MatchConfidence) Rank() int {
	switch m {
	case MatchExact:
		return 3
	case MatchHigh:
		return 2
	case MatchMedium:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether m is at least as strong as other.
func (m MatchConfidence) AtLeast(other MatchConfidence) bool {
	return m.Rank() >= other.Rank()
}

// ModalityType distinguishes modalities that ameliorate from those that aggravate.
type ModalityType string

const (
	ModalityBetter ModalityType = "better"
	ModalityWorse  ModalityType = "worse"
)

// IsValid reports whether t is empty or one of better/worse.
func (t ModalityType) IsValid() bool {
	return t == "" || t == ModalityBetter || t == ModalityWorse
}

// ScoreConfidence is the label attached to a remedy's final score.
type ScoreConfidence string

const (
	ScoreVeryHigh ScoreConfidence = "very_high"
	ScoreHigh     ScoreConfidence = "high"
	ScoreMedium   ScoreConfidence = "medium"
	ScoreLow      ScoreConfidence = "low"
)

// OutcomeStatus is the clinical outcome recorded against a case record.
type OutcomeStatus string

const (
	OutcomePending     OutcomeStatus = "pending"
	OutcomeImproved    OutcomeStatus = "improved"
	OutcomeNoChange    OutcomeStatus = "no_change"
	OutcomeWorsened    OutcomeStatus = "worsened"
	OutcomeNotFollowed OutcomeStatus = "not_followed"
)

// IsValid reports whether s is one of the five outcome values.
func (s OutcomeStatus) IsValid() bool {
	switch s {
	case OutcomePending, OutcomeImproved, OutcomeNoChange, OutcomeWorsened, OutcomeNotFollowed:
		return true
	default:
		return false
	}
}

// ParseOutcomeStatus validates a user supplied outcome status.
func ParseOutcomeStatus(s string) (OutcomeStatus, error) {
	status := OutcomeStatus(strings.TrimSpace(s))
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidOutcomeStatus, s)
	}
	return status, nil
}

// Severity of a contradiction warning.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// WarningType names the kind of safety concern a warning reports.
type WarningType string

const (
	WarningIncompatibility WarningType = "incompatibility"
	WarningRepetition      WarningType = "repetition"
)

// TraitKind classifies a constitution trait for bonus purposes.
type TraitKind string

const (
	TraitMental    TraitKind = "mental"
	TraitPhysical  TraitKind = "physical"
	TraitEmotional TraitKind = "emotional"
)

// Validation errors for reference and case data
var (
	ErrInvalidCategory      = errors.New("invalid symptom category")
	ErrInvalidOutcomeStatus = errors.New("invalid outcome status")
	ErrInvalidGrade         = errors.New("rubric grade must be between 1 and 4")
)

// MinGrade and MaxGrade bound a rubric-remedy grade.
const (
	MinGrade = 1
	MaxGrade = 4
)

// ValidGrade reports whether g lies within [MinGrade, MaxGrade].
func ValidGrade(g int) bool {
	return g >= MinGrade && g <= MaxGrade
}
