package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homeopathy-case-engine/internal/domain"
	"github.com/homeopathy-case-engine/internal/outcome"
	"github.com/homeopathy-case-engine/internal/repository"
	"github.com/homeopathy-case-engine/internal/service"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress logs during testing

	ref, err := repository.NewSeededReferenceStore(logger)
	require.NoError(t, err)

	cases, err := outcome.NewSQLiteStore(filepath.Join(t.TempDir(), "case_records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cases.Close() })

	cfg := domain.DefaultEngineConfig()
	normalizer, err := service.NewSymptomNormalizer(ref, cfg, 64, logger)
	require.NoError(t, err)
	learning := service.NewLearningService(cases, logger)
	suggestions := service.NewSuggestionService(logger, cfg, normalizer, ref, learning)

	return NewServer(suggestions, learning, logger)
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func decodeResult[T any](t *testing.T, result *mcp.CallToolResult) T {
	t.Helper()
	require.False(t, result.IsError, resultText(t, result))
	var v T
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &v))
	return v
}

func acuteParams() SuggestRemediesParams {
	return SuggestRemediesParams{
		DoctorID:      "dr-1",
		PatientID:     "patient-1",
		Mental:        []SymptomParams{{Text: "Anxiety"}},
		Generals:      []SymptomParams{{Text: "High Fever"}},
		PathologyTags: []string{"Fever"},
	}
}

func TestNewServer(t *testing.T) {
	server := newTestServer(t)

	assert.NotNil(t, server.mcpServer)
	assert.NotNil(t, server.suggestions)
	assert.NotNil(t, server.learning)
	assert.NotNil(t, server.logger)
}

func TestHandleSuggestRemedies(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	result, _, err := server.handleSuggestRemedies(ctx, nil, acuteParams())
	require.NoError(t, err)

	resp := decodeResult[service.SuggestResponse](t, result)
	require.Len(t, resp.Suggestions.TopRemedies, 1)
	assert.Equal(t, "acon", resp.Suggestions.TopRemedies[0].RemedyID)
	assert.InDelta(t, 66.42, resp.Suggestions.TopRemedies[0].FinalScore, 0.001)
	assert.NotEmpty(t, resp.CaseRecordID)
}

func TestHandleSuggestRemedies_Errors(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name    string
		mutate  func(p *SuggestRemediesParams)
		wantMsg string
	}{
		{"missing doctor", func(p *SuggestRemediesParams) { p.DoctorID = "" }, "doctor_id is required"},
		{"missing patient", func(p *SuggestRemediesParams) { p.PatientID = "" }, "patientId"},
		{"bad history date", func(p *SuggestRemediesParams) {
			p.PatientHistory = []HistoryParams{{RemedyID: "acon", Date: "yesterday"}}
		}, "patient_history[0].date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := acuteParams()
			tt.mutate(&params)

			result, _, err := server.handleSuggestRemedies(context.Background(), nil, params)
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.wantMsg)
		})
	}
}

func TestCaseRecordTools(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	result, _, err := server.handleSuggestRemedies(ctx, nil, acuteParams())
	require.NoError(t, err)
	id := decodeResult[service.SuggestResponse](t, result).CaseRecordID

	t.Run("decision by another doctor is forbidden", func(t *testing.T) {
		result, _, err := server.handleRecordDecision(ctx, nil, RecordDecisionParams{
			DoctorID: "dr-2", CaseRecordID: id, RemedyID: "acon", RemedyName: "Aconitum napellus",
		})
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "forbidden")
	})

	t.Run("decision", func(t *testing.T) {
		result, _, err := server.handleRecordDecision(ctx, nil, RecordDecisionParams{
			DoctorID: "dr-1", CaseRecordID: id, RemedyID: "acon", RemedyName: "Aconitum napellus",
			Potency: "30C", Repetition: "TDS",
		})
		require.NoError(t, err)
		record := decodeResult[domain.CaseRecord](t, result)
		require.NotNil(t, record.FinalRemedy)
		assert.Equal(t, "acon", record.FinalRemedy.RemedyID)
		assert.Equal(t, domain.OutcomePending, record.OutcomeStatus)
	})

	t.Run("invalid outcome", func(t *testing.T) {
		result, _, err := server.handleRecordOutcome(ctx, nil, RecordOutcomeParams{
			DoctorID: "dr-1", CaseRecordID: id, OutcomeStatus: "cured",
		})
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("outcome", func(t *testing.T) {
		result, _, err := server.handleRecordOutcome(ctx, nil, RecordOutcomeParams{
			DoctorID: "dr-1", CaseRecordID: id, OutcomeStatus: "improved", FollowUpNotes: "fever gone",
		})
		require.NoError(t, err)
		record := decodeResult[domain.CaseRecord](t, result)
		assert.Equal(t, domain.OutcomeImproved, record.OutcomeStatus)
		assert.Equal(t, "fever gone", record.FollowUpNotes)
	})

	t.Run("statistics", func(t *testing.T) {
		result, _, err := server.handleRemedyStatistics(ctx, nil, RemedyStatisticsParams{RemedyID: "acon"})
		require.NoError(t, err)
		rate := decodeResult[domain.SuccessRate](t, result)
		assert.Equal(t, 1, rate.Total)
		assert.Equal(t, 1, rate.Improved)
		assert.InDelta(t, 100.0, rate.SuccessRate, 0.001)
	})

	t.Run("patterns", func(t *testing.T) {
		result, _, err := server.handleSymptomPatterns(ctx, nil, SymptomPatternsParams{SymptomCode: "sym_anxiety"})
		require.NoError(t, err)
		body := decodeResult[struct {
			SymptomCode string                 `json:"symptomCode"`
			Patterns    []domain.RemedyPattern `json:"patterns"`
		}](t, result)
		assert.Equal(t, "SYM_ANXIETY", body.SymptomCode)
		require.Len(t, body.Patterns, 1)
		assert.Equal(t, "acon", body.Patterns[0].RemedyID)
	})

	t.Run("unknown record", func(t *testing.T) {
		result, _, err := server.handleRecordOutcome(ctx, nil, RecordOutcomeParams{
			DoctorID: "dr-1", CaseRecordID: "missing", OutcomeStatus: "improved",
		})
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "not found")
	})
}

func TestReferenceTools(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	t.Run("normalize", func(t *testing.T) {
		result, _, err := server.handleNormalizeSymptoms(ctx, nil, NormalizeSymptomsParams{
			Texts: []string{"anxious"}, Category: "mental",
		})
		require.NoError(t, err)
		body := decodeResult[struct {
			Matches []domain.SymptomMatch `json:"matches"`
		}](t, result)
		require.Len(t, body.Matches, 1)
		assert.Equal(t, "SYM_ANXIETY", body.Matches[0].Code)
		assert.Equal(t, domain.MatchHigh, body.Matches[0].Confidence)
	})

	t.Run("normalize bad category", func(t *testing.T) {
		result, _, err := server.handleNormalizeSymptoms(ctx, nil, NormalizeSymptomsParams{
			Texts: []string{"anxious"}, Category: "emotional",
		})
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("suggest rubrics", func(t *testing.T) {
		result, _, err := server.handleSuggestRubrics(ctx, nil, SuggestRubricsParams{SymptomCode: "SYM_ANXIETY", Repertory: "boericke"})
		require.NoError(t, err)
		body := decodeResult[struct {
			Suggestions []domain.RubricSuggestion `json:"suggestions"`
		}](t, result)
		require.Len(t, body.Suggestions, 1)
		assert.Equal(t, "BOERICKE_MIND_ANXIETY_FEAR", body.Suggestions[0].Rubric.ID)
	})

	t.Run("remedy", func(t *testing.T) {
		result, _, err := server.handleGetRemedy(ctx, nil, GetRemedyParams{RemedyID: "nat-m"})
		require.NoError(t, err)
		remedy := decodeResult[domain.Remedy](t, result)
		assert.Equal(t, "nat-m", remedy.ID)
	})

	t.Run("unknown remedy", func(t *testing.T) {
		result, _, err := server.handleGetRemedy(ctx, nil, GetRemedyParams{RemedyID: "unknown"})
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "not found")
	})
}

func TestCreateErrorResult(t *testing.T) {
	server := newTestServer(t)

	result := server.createErrorResult("Missing required parameter", nil)
	assert.True(t, result.IsError)
	assert.Equal(t, "Error: Missing required parameter", resultText(t, result))

	masked := server.toolError("get_remedy", assert.AnError)
	assert.Equal(t, "Error: get_remedy failed - internal error", resultText(t, masked))
}
