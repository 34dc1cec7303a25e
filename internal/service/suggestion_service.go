package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/homeopathy-case-engine/internal/domain"
)

// SuggestRequest is the input of one suggestion run.
type SuggestRequest struct {
	DoctorID       string                 `json:"-"`
	PatientID      string                 `json:"patientId"`
	StructuredCase *domain.StructuredCase `json:"structuredCase"`
	PatientHistory []domain.HistoryEntry  `json:"patientHistory,omitempty"`
}

// Suggestions wraps the ranked remedy list.
type Suggestions struct {
	TopRemedies       []domain.RemedyFinalScore `json:"topRemedies"`
	ClinicalReasoning string                    `json:"clinicalReasoning,omitempty"`
}

// SuggestResponse is the result of a persisted suggestion run.
type SuggestResponse struct {
	Suggestions  Suggestions `json:"suggestions"`
	CaseRecordID string      `json:"caseRecordId"`
}

// EngineRun carries every intermediate product of one pipeline pass.
type EngineRun struct {
	Profile    domain.NormalizedCaseProfile
	Candidates []domain.RubricCandidate
	Selected   []domain.RubricCandidate
	Output     domain.EngineOutput
}

// SuggestionService runs the full suggestion pipeline and records the result.
type SuggestionService struct {
	logger         *logrus.Logger
	cfg            domain.EngineConfig
	cases          *CaseEngine
	mapper         *RubricMapper
	repertory      *RepertoryEngine
	scoring        *ScoringEngine
	clinical       *ClinicalIntelligence
	contradictions *ContradictionEngine
	learning       *LearningService
}

// NewSuggestionService wires every pipeline stage over the reference store.
func NewSuggestionService(
	logger *logrus.Logger,
	cfg domain.EngineConfig,
	normalizer *SymptomNormalizer,
	store domain.ReferenceStore,
	learning *LearningService,
) *SuggestionService {
	return &SuggestionService{
		logger:         logger,
		cfg:            cfg,
		cases:          NewCaseEngine(normalizer, cfg, logger),
		mapper:         NewRubricMapper(store, cfg, logger),
		repertory:      NewRepertoryEngine(store, logger),
		scoring:        NewScoringEngine(cfg, logger),
		clinical:       NewClinicalIntelligence(cfg, logger),
		contradictions: NewContradictionEngine(cfg, logger),
		learning:       learning,
	}
}

// WithClock replaces the clock used by the contradiction stage.
func (s *SuggestionService) WithClock(now func() time.Time) *SuggestionService {
	s.contradictions.WithClock(now)
	return s
}

// Mapper exposes the rubric mapper for direct rubric suggestions.
func (s *SuggestionService) Mapper() *RubricMapper {
	return s.mapper
}

// Repertory exposes the repertory engine for remedy detail lookups.
func (s *SuggestionService) Repertory() *RepertoryEngine {
	return s.repertory
}

// Suggest validates the request, runs the pipeline and persists a pending case
// record. A failure at any step leaves no record behind.
func (s *SuggestionService) Suggest(ctx context.Context, req *SuggestRequest) (*SuggestResponse, error) {
	startTime := time.Now()

	if err := validateSuggestRequest(req); err != nil {
		return nil, err
	}

	run, err := s.Run(ctx, *req.StructuredCase, req.PatientHistory)
	if err != nil {
		return nil, err
	}

	record, err := s.learning.SaveCaseRecord(ctx, req.DoctorID, req.PatientID, run)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"case_record_id":  record.ID,
		"patient_id":      req.PatientID,
		"rubric_count":    len(run.Selected),
		"remedy_count":    len(run.Output.TopRemedies),
		"processing_time": time.Since(startTime),
	}).Info("Remedy suggestion completed")

	return &SuggestResponse{
		Suggestions: Suggestions{
			TopRemedies:       run.Output.TopRemedies,
			ClinicalReasoning: run.Output.ClinicalReasoning,
		},
		CaseRecordID: record.ID,
	}, nil
}

// Run executes the pipeline stages without persisting anything.
func (s *SuggestionService) Run(ctx context.Context, sc domain.StructuredCase, history []domain.HistoryEntry) (*EngineRun, error) {
	// Step 1: Normalize the structured case
	profile, err := s.cases.NormalizeCase(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize case: %w", err)
	}

	// Step 2: Map symptoms to rubrics
	candidates, err := s.mapper.MapSymptomsToRubrics(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to map rubrics: %w", err)
	}
	selected := SelectRubrics(candidates)
	rubricIDs := make([]string, 0, len(selected))
	for _, c := range selected {
		rubricIDs = append(rubricIDs, c.RubricID)
	}

	// Step 3: Build the graded remedy pool
	pool, err := s.repertory.BuildRemedyPool(ctx, rubricIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build remedy pool: %w", err)
	}

	// Step 4: Score, filter and rank
	scores := s.scoring.ScoreRemedies(pool, profile, selected)

	// Step 5: Clinical adjustments
	scores = s.clinical.ApplyClinicalFilters(scores, profile)
	s.relabel(scores)
	SortScores(scores)

	// Step 6: Contradictions and repetition
	results := s.contradictions.DetectContradictions(scores, history)
	scores = s.contradictions.ApplyPenalties(scores, results)
	s.relabel(scores)
	SortScores(scores)

	var warnings []domain.Warning
	for _, sc := range scores {
		warnings = append(warnings, sc.Warnings...)
	}

	return &EngineRun{
		Profile:    profile,
		Candidates: candidates,
		Selected:   selected,
		Output: domain.EngineOutput{
			TopRemedies:       scores,
			ClinicalReasoning: BuildClinicalReasoning(profile, candidates, scores),
			Warnings:          warnings,
		},
	}, nil
}

// NormalizeSymptoms exposes the vector normalizer.
func (s *SuggestionService) NormalizeSymptoms(ctx context.Context, texts []string, category domain.Category) ([]domain.SymptomMatch, error) {
	return s.cases.normalizer.NormalizeAll(ctx, texts, category)
}

func (s *SuggestionService) relabel(scores []domain.RemedyFinalScore) {
	for i := range scores {
		scores[i].Confidence = s.cfg.ConfidenceThresholds.Label(scores[i].FinalScore)
	}
}

func validateSuggestRequest(req *SuggestRequest) error {
	if req == nil {
		return domain.NewValidationError("body", "request body is required", nil)
	}
	if strings.TrimSpace(req.PatientID) == "" {
		return domain.NewValidationError("patientId", "patientId is required", req.PatientID)
	}
	if req.StructuredCase == nil {
		return domain.NewValidationError("structuredCase", "structuredCase must be an object", nil)
	}
	for _, m := range req.StructuredCase.Modalities {
		if !m.Type.IsValid() {
			return domain.NewValidationError("structuredCase.modalities.type", "type must be better or worse", m.Type)
		}
	}
	for _, cat := range domain.Categories {
		for _, m := range req.StructuredCase.Mentions(cat) {
			if m.Weight != nil && *m.Weight < 0 {
				return domain.NewValidationError("weight", "weight must not be negative", *m.Weight)
			}
		}
	}
	for _, h := range req.PatientHistory {
		if strings.TrimSpace(h.RemedyID) == "" {
			return domain.NewValidationError("patientHistory.remedyId", "remedyId is required", nil)
		}
	}
	return nil
}
