package domain

import (
	"time"
)

// Symptom is a canonical symptom in the reference collection.
type Symptom struct {
	Code     string   `json:"code" yaml:"code"`
	Name     string   `json:"name" yaml:"name"`
	Category Category `json:"category" yaml:"category"`
	Synonyms []string `json:"synonyms,omitempty" yaml:"synonyms"`
	Modality string   `json:"modality" yaml:"modality"`
}

// Rubric is a repertory entry. LinkedSymptoms may be empty, in which case
// rubric lookup falls back to text search.
type Rubric struct {
	ID             string   `json:"id" yaml:"id"`
	Repertory      string   `json:"repertory" yaml:"repertory"`
	Chapter        string   `json:"chapter" yaml:"chapter"`
	Text           string   `json:"text" yaml:"text"`
	LinkedSymptoms []string `json:"linkedSymptoms,omitempty" yaml:"linked_symptoms"`
	Modality       string   `json:"modality" yaml:"modality"`
}

// RubricRemedy grades the affinity of a remedy for a rubric within one repertory.
type RubricRemedy struct {
	RubricID  string `json:"rubricId" yaml:"rubric"`
	RemedyID  string `json:"remedyId" yaml:"remedy"`
	Grade     int    `json:"grade" yaml:"grade"`
	Repertory string `json:"repertory" yaml:"repertory"`
}

// ConstitutionTrait is a personality or physical-type descriptor. An empty Kind
// takes its kind from the case symptom it matches.
type ConstitutionTrait struct {
	Trait string    `json:"trait" yaml:"trait"`
	Kind  TraitKind `json:"kind,omitempty" yaml:"kind"`
}

// MateriaMedica is the descriptive literature block of a remedy.
type MateriaMedica struct {
	Keynotes      []string `json:"keynotes,omitempty" yaml:"keynotes"`
	Pathogenesis  string   `json:"pathogenesis,omitempty" yaml:"pathogenesis"`
	ClinicalNotes string   `json:"clinicalNotes,omitempty" yaml:"clinical_notes"`
}

// Remedy is the reference record of a homeopathic remedy.
type Remedy struct {
	ID                 string              `json:"id" yaml:"id"`
	Name               string              `json:"name" yaml:"name"`
	Category           string              `json:"category" yaml:"category"`
	Constitution       []ConstitutionTrait `json:"constitutionTraits,omitempty" yaml:"constitution"`
	ModalitiesBetter   []string            `json:"modalitiesBetter,omitempty" yaml:"better"`
	ModalitiesWorse    []string            `json:"modalitiesWorse,omitempty" yaml:"worse"`
	ClinicalIndication []string            `json:"clinicalIndications,omitempty" yaml:"indications"`
	IncompatibleWith   []string            `json:"incompatibleWith,omitempty" yaml:"incompatible"`
	MateriaMedica      MateriaMedica       `json:"materiaMedica" yaml:"materia_medica"`
	Potencies          []string            `json:"potencies,omitempty" yaml:"potencies"`
	Modality           string              `json:"modality" yaml:"modality"`
}

// HasIndication reports whether the remedy carries the clinical indication tag,
// compared case-insensitively.
func (r *Remedy) HasIndication(tag string) bool {
	for _, ind := range r.ClinicalIndication {
		if equalFold(ind, tag) {
			return true
		}
	}
	return false
}

// SymptomMention is one doctor-entered symptom in a structured case.
type SymptomMention struct {
	SymptomText string       `json:"symptomText"`
	Weight      *float64     `json:"weight,omitempty"`
	Location    string       `json:"location,omitempty"`
	Sensation   string       `json:"sensation,omitempty"`
	Type        ModalityType `json:"type,omitempty"`
}

// StructuredCase is the case a doctor enters for one consultation.
type StructuredCase struct {
	Mental        []SymptomMention `json:"mental"`
	Generals      []SymptomMention `json:"generals"`
	Particulars   []SymptomMention `json:"particulars"`
	Modalities    []SymptomMention `json:"modalities"`
	PathologyTags []string         `json:"pathologyTags"`
}

// Mentions returns the mention list for a category.
func (c *StructuredCase) Mentions(cat Category) []SymptomMention {
	switch cat {
	case CategoryMental:
		return c.Mental
	case CategoryGeneral:
		return c.Generals
	case CategoryParticular:
		return c.Particulars
	case CategoryModality:
		return c.Modalities
	default:
		return nil
	}
}

// SymptomMatch is the normalizer's answer for one free-text mention. Unmatched
// symptoms keep the original text as Name and carry an UNMATCHED code that can
// never collide with a canonical code.
type SymptomMatch struct {
	Code       string          `json:"symptomCode"`
	Name       string          `json:"symptomName"`
	Confidence MatchConfidence `json:"confidence"`
	Matched    bool            `json:"matched"`
}

// NormalizedSymptom is a mention after normalization and weighting.
type NormalizedSymptom struct {
	SymptomMatch
	Category    Category     `json:"category"`
	Weight      float64      `json:"weight"`
	Location    string       `json:"location,omitempty"`
	Sensation   string       `json:"sensation,omitempty"`
	Type        ModalityType `json:"type,omitempty"`
	OriginalTxt string       `json:"originalText"`
}

// NormalizedCaseProfile is the structured case after normalization.
type NormalizedCaseProfile struct {
	Mental        []NormalizedSymptom `json:"mental"`
	Generals      []NormalizedSymptom `json:"generals"`
	Particulars   []NormalizedSymptom `json:"particulars"`
	Modalities    []NormalizedSymptom `json:"modalities"`
	PathologyTags []string            `json:"pathologyTags"`
	IsAcute       bool                `json:"isAcute"`
	IsChronic     bool                `json:"isChronic"`
}

// Symptoms returns the normalized symptoms of one category.
func (p *NormalizedCaseProfile) Symptoms(cat Category) []NormalizedSymptom {
	switch cat {
	case CategoryMental:
		return p.Mental
	case CategoryGeneral:
		return p.Generals
	case CategoryParticular:
		return p.Particulars
	case CategoryModality:
		return p.Modalities
	default:
		return nil
	}
}

// All returns every normalized symptom in category order.
func (p *NormalizedCaseProfile) All() []NormalizedSymptom {
	all := make([]NormalizedSymptom, 0, p.Count())
	for _, cat := range Categories {
		all = append(all, p.Symptoms(cat)...)
	}
	return all
}

// Count returns the number of normalized symptoms across categories.
func (p *NormalizedCaseProfile) Count() int {
	return len(p.Mental) + len(p.Generals) + len(p.Particulars) + len(p.Modalities)
}

// TotalWeight sums the weights of every symptom in the case.
func (p *NormalizedCaseProfile) TotalWeight() float64 {
	var total float64
	for _, cat := range Categories {
		for _, s := range p.Symptoms(cat) {
			total += s.Weight
		}
	}
	return total
}

// RubricCandidate is a rubric the mapper matched against the case.
type RubricCandidate struct {
	RubricID        string   `json:"rubricId"`
	RubricText      string   `json:"rubricText"`
	Repertory       string   `json:"repertory"`
	MatchedSymptoms []string `json:"matchedSymptoms"`
	Confidence      float64  `json:"confidence"`
	AutoSelected    bool     `json:"autoSelected"`
}

// RubricSuggestion is a rubric proposed for a single symptom code.
type RubricSuggestion struct {
	Rubric     Rubric  `json:"rubric"`
	MatchScore float64 `json:"matchScore"`
}

// RubricGrade is one graded rubric contribution to a pooled remedy.
type RubricGrade struct {
	RubricID  string `json:"rubricId"`
	Grade     int    `json:"grade"`
	Repertory string `json:"repertory"`
}

// PoolEntry aggregates every graded rubric of one remedy. Remedy is resolved once
// when the pool is built and is nil when the reference record is missing.
type PoolEntry struct {
	RemedyID       string        `json:"remedyId"`
	RemedyName     string        `json:"remedyName"`
	RubricGrades   []RubricGrade `json:"rubricGrades"`
	TotalBaseScore int           `json:"totalBaseScore"`
	Remedy         *Remedy       `json:"-"`
}

// RemedyPool maps remedy id to its pooled rubric grades.
type RemedyPool map[string]*PoolEntry

// ScoreBreakdown itemizes the bonuses that make up a final score.
// ConstitutionBonus includes the keynote matches; KeynoteBonus reports that share.
type ScoreBreakdown struct {
	ConstitutionBonus float64 `json:"constitutionBonus"`
	KeynoteBonus      float64 `json:"keynoteBonus"`
	ModalityBonus     float64 `json:"modalityBonus"`
	PathologySupport  float64 `json:"pathologySupport"`
	CoverageBonus     float64 `json:"coverageBonus"`
}

// Warning is a safety message attached to a suggested remedy.
type Warning struct {
	Type     WarningType `json:"type"`
	Severity Severity    `json:"severity"`
	Message  string      `json:"message"`
	Remedies []string    `json:"remedies,omitempty"`
}

// RemedyFinalScore is a fully scored, adjusted and safety-checked remedy.
type RemedyFinalScore struct {
	RemedyID             string          `json:"remedyId"`
	RemedyName           string          `json:"remedyName"`
	BaseScore            float64         `json:"baseScore"`
	Breakdown            ScoreBreakdown  `json:"breakdown"`
	ClinicalAdjustments  []string        `json:"clinicalAdjustments,omitempty"`
	ContradictionPenalty float64         `json:"contradictionPenalty"`
	FinalScore           float64         `json:"finalScore"`
	MatchedRubrics       []string        `json:"matchedRubrics"`
	MatchedSymptoms      []string        `json:"matchedSymptoms"`
	Confidence           ScoreConfidence `json:"confidence"`
	Warnings             []Warning       `json:"warnings,omitempty"`
	Remedy               *Remedy         `json:"-"`
}

// HistoryEntry is a prior prescription of a remedy to the patient.
type HistoryEntry struct {
	RemedyID string    `json:"remedyId"`
	Date     time.Time `json:"date"`
}

// ContradictionResult carries the warnings and penalty computed for one remedy.
type ContradictionResult struct {
	RemedyID string    `json:"remedyId"`
	Warnings []Warning `json:"warnings"`
	Penalty  float64   `json:"penalty"`
}

// FinalRemedy is the doctor's prescribing decision.
type FinalRemedy struct {
	RemedyID   string `json:"remedyId"`
	RemedyName string `json:"remedyName"`
	Potency    string `json:"potency"`
	Repetition string `json:"repetition"`
	Notes      string `json:"notes,omitempty"`
}

// EngineOutput is the full result of one engine run.
type EngineOutput struct {
	TopRemedies       []RemedyFinalScore `json:"topRemedies"`
	ClinicalReasoning string             `json:"clinicalReasoning"`
	Warnings          []Warning          `json:"warnings,omitempty"`
}

// CaseRecord is the persisted, auditable trace of an engine run and its outcome.
type CaseRecord struct {
	ID              string                `json:"id"`
	DoctorID        string                `json:"doctorId"`
	PatientID       string                `json:"patientId"`
	NormalizedCase  NormalizedCaseProfile `json:"normalizedCase"`
	SelectedRubrics []RubricCandidate     `json:"selectedRubrics"`
	EngineOutput    EngineOutput          `json:"engineOutput"`
	FinalRemedy     *FinalRemedy          `json:"finalRemedy"`
	OutcomeStatus   OutcomeStatus         `json:"outcomeStatus"`
	FollowUpNotes   string                `json:"followUpNotes,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

// SuccessRate aggregates decided outcomes for a remedy.
type SuccessRate struct {
	RemedyID    string  `json:"remedyId"`
	TimeRange   string  `json:"timeRange"`
	Total       int     `json:"total"`
	Improved    int     `json:"improved"`
	NoChange    int     `json:"noChange"`
	Worsened    int     `json:"worsened"`
	NotFollowed int     `json:"notFollowed"`
	SuccessRate float64 `json:"successRate"`
}

// RemedyPattern is one remedy that improved cases presenting a symptom.
type RemedyPattern struct {
	RemedyID    string  `json:"remedyId"`
	RemedyName  string  `json:"remedyName"`
	Frequency   int     `json:"frequency"`
	SuccessRate float64 `json:"successRate"`
}
