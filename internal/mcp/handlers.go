package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/homeopathy-case-engine/internal/domain"
	"github.com/homeopathy-case-engine/internal/service"
)

// SymptomParams is one symptom mention of a case.
type SymptomParams struct {
	Text      string   `json:"text" jsonschema:"free-text symptom as the patient described it"`
	Weight    *float64 `json:"weight,omitempty" jsonschema:"optional doctor weight overriding the category default"`
	Location  string   `json:"location,omitempty"`
	Sensation string   `json:"sensation,omitempty"`
	Type      string   `json:"type,omitempty" jsonschema:"better or worse, for modalities"`
}

// HistoryParams is one earlier prescription of the patient.
type HistoryParams struct {
	RemedyID string `json:"remedy_id"`
	Date     string `json:"date" jsonschema:"RFC 3339 date of the prescription"`
}

// SuggestRemediesParams defines parameters for the suggest_remedies tool.
type SuggestRemediesParams struct {
	DoctorID       string          `json:"doctor_id" jsonschema:"identity of the calling doctor"`
	PatientID      string          `json:"patient_id"`
	Mental         []SymptomParams `json:"mental,omitempty"`
	Generals       []SymptomParams `json:"generals,omitempty"`
	Particulars    []SymptomParams `json:"particulars,omitempty"`
	Modalities     []SymptomParams `json:"modalities,omitempty"`
	PathologyTags  []string        `json:"pathology_tags,omitempty" jsonschema:"pathology tags such as Fever or Chronic"`
	PatientHistory []HistoryParams `json:"patient_history,omitempty"`
}

// NormalizeSymptomsParams defines parameters for the normalize_symptoms tool.
type NormalizeSymptomsParams struct {
	Texts    []string `json:"texts"`
	Category string   `json:"category,omitempty" jsonschema:"mental, general, particular or modality"`
}

// SuggestRubricsParams defines parameters for the suggest_rubrics tool.
type SuggestRubricsParams struct {
	SymptomCode string `json:"symptom_code"`
	Repertory   string `json:"repertory,omitempty" jsonschema:"restrict to one repertory such as kent"`
}

// GetRemedyParams defines parameters for the get_remedy tool.
type GetRemedyParams struct {
	RemedyID string `json:"remedy_id"`
}

// RecordDecisionParams defines parameters for the record_decision tool.
type RecordDecisionParams struct {
	DoctorID     string `json:"doctor_id"`
	CaseRecordID string `json:"case_record_id"`
	RemedyID     string `json:"remedy_id"`
	RemedyName   string `json:"remedy_name"`
	Potency      string `json:"potency"`
	Repetition   string `json:"repetition"`
	Notes        string `json:"notes,omitempty"`
}

// RecordOutcomeParams defines parameters for the record_outcome tool.
type RecordOutcomeParams struct {
	DoctorID      string `json:"doctor_id"`
	CaseRecordID  string `json:"case_record_id"`
	OutcomeStatus string `json:"outcome_status" jsonschema:"improved, no_change, worsened, not_followed or pending"`
	FollowUpNotes string `json:"follow_up_notes,omitempty"`
}

// RemedyStatisticsParams defines parameters for the remedy_statistics tool.
type RemedyStatisticsParams struct {
	RemedyID  string `json:"remedy_id"`
	TimeRange string `json:"time_range,omitempty" jsonschema:"look-back window such as 30d, 3m or 1y"`
}

// SymptomPatternsParams defines parameters for the symptom_patterns tool.
type SymptomPatternsParams struct {
	SymptomCode string `json:"symptom_code"`
}

// structuredCase converts the flat tool parameters into the engine's case shape.
func (p SuggestRemediesParams) structuredCase() domain.StructuredCase {
	return domain.StructuredCase{
		Mental:        mentions(p.Mental),
		Generals:      mentions(p.Generals),
		Particulars:   mentions(p.Particulars),
		Modalities:    mentions(p.Modalities),
		PathologyTags: p.PathologyTags,
	}
}

func (p SuggestRemediesParams) history() ([]domain.HistoryEntry, error) {
	entries := make([]domain.HistoryEntry, 0, len(p.PatientHistory))
	for i, h := range p.PatientHistory {
		date, err := time.Parse(time.RFC3339, h.Date)
		if err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("patient_history[%d].date", i), "date must be RFC 3339", h.Date)
		}
		entries = append(entries, domain.HistoryEntry{RemedyID: h.RemedyID, Date: date})
	}
	return entries, nil
}

func mentions(params []SymptomParams) []domain.SymptomMention {
	out := make([]domain.SymptomMention, 0, len(params))
	for _, p := range params {
		out = append(out, domain.SymptomMention{
			SymptomText: p.Text,
			Weight:      p.Weight,
			Location:    p.Location,
			Sensation:   p.Sensation,
			Type:        domain.ModalityType(strings.ToLower(p.Type)),
		})
	}
	return out
}

func (s *Server) handleSuggestRemedies(ctx context.Context, req *mcp.CallToolRequest, params SuggestRemediesParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "suggest_remedies").Info("Tool invoked")

	if strings.TrimSpace(params.DoctorID) == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("doctor_id is required")), nil, nil
	}
	history, err := params.history()
	if err != nil {
		return s.toolError("suggest_remedies", err), nil, nil
	}

	sc := params.structuredCase()
	resp, err := s.suggestions.Suggest(ctx, &service.SuggestRequest{
		DoctorID:       params.DoctorID,
		PatientID:      params.PatientID,
		StructuredCase: &sc,
		PatientHistory: history,
	})
	if err != nil {
		return s.toolError("suggest_remedies", err), nil, nil
	}
	return s.jsonResult(resp), nil, nil
}

func (s *Server) handleNormalizeSymptoms(ctx context.Context, req *mcp.CallToolRequest, params NormalizeSymptomsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "normalize_symptoms").Info("Tool invoked")

	if len(params.Texts) == 0 {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("texts is required")), nil, nil
	}
	var category domain.Category
	if params.Category != "" {
		parsed, err := domain.ParseCategory(params.Category)
		if err != nil {
			return s.toolError("normalize_symptoms", err), nil, nil
		}
		category = parsed
	}

	matches, err := s.suggestions.NormalizeSymptoms(ctx, params.Texts, category)
	if err != nil {
		return s.toolError("normalize_symptoms", err), nil, nil
	}
	return s.jsonResult(map[string]any{"matches": matches}), nil, nil
}

func (s *Server) handleSuggestRubrics(ctx context.Context, req *mcp.CallToolRequest, params SuggestRubricsParams) (*mcp.CallToolResult, any, error) {
	code := strings.ToUpper(strings.TrimSpace(params.SymptomCode))
	if code == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("symptom_code is required")), nil, nil
	}

	suggestions, err := s.suggestions.Mapper().SuggestRubrics(ctx, code, params.Repertory)
	if err != nil {
		return s.toolError("suggest_rubrics", err), nil, nil
	}
	return s.jsonResult(map[string]any{"symptomCode": code, "suggestions": suggestions}), nil, nil
}

func (s *Server) handleGetRemedy(ctx context.Context, req *mcp.CallToolRequest, params GetRemedyParams) (*mcp.CallToolResult, any, error) {
	if params.RemedyID == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("remedy_id is required")), nil, nil
	}

	remedy, err := s.suggestions.Repertory().GetRemedyDetails(ctx, params.RemedyID)
	if err != nil {
		return s.toolError("get_remedy", err), nil, nil
	}
	if remedy == nil {
		return s.toolError("get_remedy", fmt.Errorf("remedy %s: %w", params.RemedyID, domain.ErrNotFound)), nil, nil
	}
	return s.jsonResult(remedy), nil, nil
}

func (s *Server) handleRecordDecision(ctx context.Context, req *mcp.CallToolRequest, params RecordDecisionParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{
		"tool":           "record_decision",
		"case_record_id": params.CaseRecordID,
	}).Info("Tool invoked")

	if _, err := s.learning.AuthorizedCaseRecord(ctx, params.CaseRecordID, params.DoctorID); err != nil {
		return s.toolError("record_decision", err), nil, nil
	}
	decision := domain.FinalRemedy{
		RemedyID:   params.RemedyID,
		RemedyName: params.RemedyName,
		Potency:    params.Potency,
		Repetition: params.Repetition,
		Notes:      params.Notes,
	}
	if err := s.learning.UpdateDoctorDecision(ctx, params.CaseRecordID, decision); err != nil {
		return s.toolError("record_decision", err), nil, nil
	}
	return s.recordResult(ctx, "record_decision", params.CaseRecordID), nil, nil
}

func (s *Server) handleRecordOutcome(ctx context.Context, req *mcp.CallToolRequest, params RecordOutcomeParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{
		"tool":           "record_outcome",
		"case_record_id": params.CaseRecordID,
	}).Info("Tool invoked")

	status, err := domain.ParseOutcomeStatus(params.OutcomeStatus)
	if err != nil {
		return s.toolError("record_outcome", err), nil, nil
	}
	if _, err := s.learning.AuthorizedCaseRecord(ctx, params.CaseRecordID, params.DoctorID); err != nil {
		return s.toolError("record_outcome", err), nil, nil
	}
	if err := s.learning.UpdateOutcome(ctx, params.CaseRecordID, status, params.FollowUpNotes); err != nil {
		return s.toolError("record_outcome", err), nil, nil
	}
	return s.recordResult(ctx, "record_outcome", params.CaseRecordID), nil, nil
}

func (s *Server) recordResult(ctx context.Context, tool, id string) *mcp.CallToolResult {
	record, err := s.learning.GetCaseRecord(ctx, id)
	if err != nil {
		return s.toolError(tool, err)
	}
	return s.jsonResult(record)
}

func (s *Server) handleRemedyStatistics(ctx context.Context, req *mcp.CallToolRequest, params RemedyStatisticsParams) (*mcp.CallToolResult, any, error) {
	rate, err := s.learning.CalculateSuccessRate(ctx, params.RemedyID, params.TimeRange)
	if err != nil {
		return s.toolError("remedy_statistics", err), nil, nil
	}
	return s.jsonResult(rate), nil, nil
}

func (s *Server) handleSymptomPatterns(ctx context.Context, req *mcp.CallToolRequest, params SymptomPatternsParams) (*mcp.CallToolResult, any, error) {
	code := strings.ToUpper(strings.TrimSpace(params.SymptomCode))
	patterns, err := s.learning.FindSymptomRemedyPatterns(ctx, code)
	if err != nil {
		return s.toolError("symptom_patterns", err), nil, nil
	}
	return s.jsonResult(map[string]any{"symptomCode": code, "patterns": patterns}), nil, nil
}
