package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homeopathy-case-engine/internal/domain"
	"github.com/homeopathy-case-engine/internal/middleware"
	"github.com/homeopathy-case-engine/internal/outcome"
	"github.com/homeopathy-case-engine/internal/repository"
	"github.com/homeopathy-case-engine/internal/service"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress logs during testing
	return logger
}

func testConfig() *domain.Config {
	return &domain.Config{
		Server:    domain.ServerConfig{Host: "127.0.0.1", Port: 8080},
		Logging:   domain.LoggingConfig{Level: "error", Format: "json"},
		RateLimit: domain.RateLimitConfig{Enabled: false},
		Engine:    domain.DefaultEngineConfig(),
	}
}

func newTestServer(t *testing.T, checks map[string]HealthCheck) *Server {
	t.Helper()
	logger := testLogger()

	ref, err := repository.NewSeededReferenceStore(logger)
	require.NoError(t, err)

	cases, err := outcome.NewSQLiteStore(filepath.Join(t.TempDir(), "case_records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cases.Close() })

	cfg := testConfig()
	normalizer, err := service.NewSymptomNormalizer(ref, cfg.Engine, 64, logger)
	require.NoError(t, err)
	learning := service.NewLearningService(cases, logger)
	suggestions := service.NewSuggestionService(logger, cfg.Engine, normalizer, ref, learning)

	s := NewServer(cfg, Dependencies{
		Suggestions:  suggestions,
		Learning:     learning,
		Reference:    ref,
		HealthChecks: checks,
	}, logger)
	gin.SetMode(gin.TestMode)
	return s
}

func doRequest(t *testing.T, s *Server, method, path, doctorID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if doctorID != "" {
		req.Header.Set(middleware.DoctorIDHeader, doctorID)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Error domain.APIError `json:"error"`
}

type pageBody struct {
	Data    json.RawMessage `json:"data"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
	HasMore bool            `json:"has_more"`
}

func acuteCase() map[string]interface{} {
	return map[string]interface{}{
		"patientId": "patient-1",
		"structuredCase": map[string]interface{}{
			"mental":        []map[string]interface{}{{"symptomText": "Anxiety"}},
			"generals":      []map[string]interface{}{{"symptomText": "High Fever"}},
			"particulars":   []interface{}{},
			"modalities":    []interface{}{},
			"pathologyTags": []string{"Fever"},
		},
	}
}

func suggest(t *testing.T, s *Server, doctorID string) service.SuggestResponse {
	t.Helper()
	w := doRequest(t, s, http.MethodPost, "/api/v1/suggest", doctorID, acuteCase())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[service.SuggestResponse](t, w)
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := newTestServer(t, map[string]HealthCheck{
			"reference_store": func(context.Context) error { return nil },
		})
		w := doRequest(t, s, http.MethodGet, "/health", "", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		body := decode[map[string]interface{}](t, w)
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, map[string]interface{}{"reference_store": "ok"}, body["checks"])
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("unhealthy", func(t *testing.T) {
		s := newTestServer(t, map[string]HealthCheck{
			"case_store": func(context.Context) error { return errors.New("connection refused") },
		})
		w := doRequest(t, s, http.MethodGet, "/health", "", nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "connection refused")
	})
}

func TestSuggest(t *testing.T) {
	s := newTestServer(t, nil)

	resp := suggest(t, s, "dr-1")
	assert.NotEmpty(t, resp.CaseRecordID)
	require.Len(t, resp.Suggestions.TopRemedies, 1)
	assert.Equal(t, "acon", resp.Suggestions.TopRemedies[0].RemedyID)
	assert.InDelta(t, 66.42, resp.Suggestions.TopRemedies[0].FinalScore, 0.001)
	assert.Equal(t, domain.ScoreMedium, resp.Suggestions.TopRemedies[0].Confidence)
}

func TestSuggest_Errors(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name       string
		doctorID   string
		body       interface{}
		wantStatus int
		wantCode   string
		wantField  string
	}{
		{"missing identity", "", acuteCase(), http.StatusUnauthorized, domain.ErrCodeUnauthorized, ""},
		{"malformed json", "dr-1", `{"patientId":`, http.StatusBadRequest, domain.ErrCodeInvalidInput, "body"},
		{"structured case not an object", "dr-1", `{"patientId":"p","structuredCase":"fever"}`, http.StatusBadRequest, domain.ErrCodeInvalidInput, "body"},
		{"missing patient", "dr-1", map[string]interface{}{"structuredCase": map[string]interface{}{}}, http.StatusBadRequest, domain.ErrCodeInvalidInput, "patientId"},
		{"missing structured case", "dr-1", map[string]interface{}{"patientId": "p"}, http.StatusBadRequest, domain.ErrCodeInvalidInput, "structuredCase"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, s, http.MethodPost, "/api/v1/suggest", tt.doctorID, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)

			body := decode[errorBody](t, w)
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.Equal(t, tt.wantField, body.Error.Details)
			assert.NotEmpty(t, body.Error.RequestID)
		})
	}
}

func TestCaseRecordLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	resp := suggest(t, s, "dr-1")
	casePath := "/api/v1/cases/" + resp.CaseRecordID

	t.Run("get", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, casePath, "dr-1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		record := decode[domain.CaseRecord](t, w)
		assert.Equal(t, domain.OutcomePending, record.OutcomeStatus)
		assert.Nil(t, record.FinalRemedy)
	})

	t.Run("ownership", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, doRequest(t, s, http.MethodGet, casePath, "dr-2", nil).Code)
		assert.Equal(t, http.StatusUnauthorized, doRequest(t, s, http.MethodGet, casePath, "", nil).Code)
		assert.Equal(t, http.StatusNotFound, doRequest(t, s, http.MethodGet, "/api/v1/cases/missing", "dr-1", nil).Code)
	})

	t.Run("decision", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPut, casePath+"/decision", "dr-1", map[string]interface{}{})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		decision := DecisionRequest{FinalRemedy: &domain.FinalRemedy{
			RemedyID:   "acon",
			RemedyName: "Aconitum napellus",
			Potency:    "30C",
			Repetition: "every 4 hours",
		}}
		w = doRequest(t, s, http.MethodPut, casePath+"/decision", "dr-2", decision)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = doRequest(t, s, http.MethodPut, "/api/v1/cases/missing/decision", "dr-1", decision)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = doRequest(t, s, http.MethodPut, casePath+"/decision", "dr-1", decision)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		record := decode[domain.CaseRecord](t, w)
		require.NotNil(t, record.FinalRemedy)
		assert.Equal(t, "30C", record.FinalRemedy.Potency)
	})

	t.Run("outcome", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPut, casePath+"/outcome", "dr-1", OutcomeRequest{OutcomeStatus: "cured"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "outcomeStatus", decode[errorBody](t, w).Error.Details)

		w = doRequest(t, s, http.MethodPut, casePath+"/outcome", "dr-1", OutcomeRequest{
			OutcomeStatus: "improved",
			FollowUpNotes: "fever broke overnight",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		record := decode[domain.CaseRecord](t, w)
		assert.Equal(t, domain.OutcomeImproved, record.OutcomeStatus)
		assert.Equal(t, "fever broke overnight", record.FollowUpNotes)
	})

	t.Run("statistics", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/api/v1/remedies/acon/statistics?timeRange=30d", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		rate := decode[domain.SuccessRate](t, w)
		assert.Equal(t, 1, rate.Total)
		assert.Equal(t, 1, rate.Improved)
		assert.Equal(t, 100.0, rate.SuccessRate)

		w = doRequest(t, s, http.MethodGet, "/api/v1/remedies/acon/statistics?timeRange=soon", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("patterns", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/api/v1/symptoms/sym_anxiety/patterns", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode[struct {
			SymptomCode string                 `json:"symptomCode"`
			Patterns    []domain.RemedyPattern `json:"patterns"`
		}](t, w)
		assert.Equal(t, "SYM_ANXIETY", body.SymptomCode)
		require.Len(t, body.Patterns, 1)
		assert.Equal(t, "acon", body.Patterns[0].RemedyID)
		assert.Equal(t, 1, body.Patterns[0].Frequency)
	})

	t.Run("patient cases", func(t *testing.T) {
		suggest(t, s, "dr-1")

		w := doRequest(t, s, http.MethodGet, "/api/v1/patients/patient-1/cases?limit=1", "dr-1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		page := decode[pageBody](t, w)
		assert.Equal(t, 2, page.Total)
		assert.True(t, page.HasMore)

		var records []domain.CaseRecord
		require.NoError(t, json.Unmarshal(page.Data, &records))
		require.Len(t, records, 1)

		assert.Equal(t, http.StatusUnauthorized, doRequest(t, s, http.MethodGet, "/api/v1/patients/patient-1/cases", "", nil).Code)
	})

	t.Run("patient cases of another doctor", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/api/v1/patients/patient-1/cases", "dr-2", nil)
		require.Equal(t, http.StatusOK, w.Code)
		page := decode[pageBody](t, w)
		assert.Equal(t, 0, page.Total)
		assert.NotContains(t, w.Body.String(), resp.CaseRecordID)

		own := suggest(t, s, "dr-2")
		w = doRequest(t, s, http.MethodGet, "/api/v1/patients/patient-1/cases", "dr-2", nil)
		require.Equal(t, http.StatusOK, w.Code)
		page = decode[pageBody](t, w)
		assert.Equal(t, 1, page.Total)

		var records []domain.CaseRecord
		require.NoError(t, json.Unmarshal(page.Data, &records))
		require.Len(t, records, 1)
		assert.Equal(t, own.CaseRecordID, records[0].ID)
	})
}

func TestReferenceEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("list remedies", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/api/v1/remedies?category=acute&limit=2", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		page := decode[pageBody](t, w)
		assert.Equal(t, 4, page.Total)
		assert.Equal(t, 2, page.Limit)
		assert.True(t, page.HasMore)

		var remedies []domain.Remedy
		require.NoError(t, json.Unmarshal(page.Data, &remedies))
		require.Len(t, remedies, 2)
		assert.Equal(t, "Aconitum napellus", remedies[0].Name)
		assert.Equal(t, "Belladonna", remedies[1].Name)
	})

	t.Run("remedy details", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/api/v1/remedies/nat-m", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Natrum muriaticum", decode[domain.Remedy](t, w).Name)

		w = doRequest(t, s, http.MethodGet, "/api/v1/remedies/unknown", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, domain.ErrCodeNotFound, decode[errorBody](t, w).Error.Code)
	})

	t.Run("list rubrics", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/api/v1/rubrics?chapter=mind", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		page := decode[pageBody](t, w)
		assert.Equal(t, 7, page.Total)
		assert.False(t, page.HasMore)
	})

	t.Run("suggest rubrics", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/api/v1/symptoms/sym_anxiety/rubrics?repertory=boericke", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode[struct {
			Suggestions []domain.RubricSuggestion `json:"suggestions"`
		}](t, w)
		require.Len(t, body.Suggestions, 1)
		assert.Equal(t, "BOERICKE_MIND_ANXIETY_FEAR", body.Suggestions[0].Rubric.ID)
	})
}

func TestNormalizeSymptoms(t *testing.T) {
	s := newTestServer(t, nil)

	w := doRequest(t, s, http.MethodPost, "/api/v1/symptoms/normalize", "", NormalizeRequest{
		Texts:    []string{"anxious", "zzz"},
		Category: "mental",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode[struct {
		Matches []domain.SymptomMatch `json:"matches"`
	}](t, w)
	require.Len(t, body.Matches, 2)
	assert.Equal(t, "SYM_ANXIETY", body.Matches[0].Code)
	assert.True(t, body.Matches[0].Matched)
	assert.Equal(t, domain.MatchHigh, body.Matches[0].Confidence)
	assert.Equal(t, "UNMATCHED:zzz", body.Matches[1].Code)
	assert.False(t, body.Matches[1].Matched)

	tests := []struct {
		name string
		req  NormalizeRequest
	}{
		{"no texts", NormalizeRequest{}},
		{"bad category", NormalizeRequest{Texts: []string{"anxious"}, Category: "spiritual"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, s, http.MethodPost, "/api/v1/symptoms/normalize", "", tt.req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestRateLimitedRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	s.rateLimiter = middleware.NewRateLimiter(domain.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 0.001,
		Burst:             2,
	}, testLogger())
	s.router = gin.New()
	s.setupRoutes()

	for i := 0; i < 2; i++ {
		w := doRequest(t, s, http.MethodGet, "/api/v1/remedies", "dr-1", nil)
		require.Equal(t, http.StatusOK, w.Code, fmt.Sprintf("request %d", i))
	}
	w := doRequest(t, s, http.MethodGet, "/api/v1/remedies", "dr-1", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Health stays reachable outside the limited group.
	assert.Equal(t, http.StatusOK, doRequest(t, s, http.MethodGet, "/health", "dr-1", nil).Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{domain.NewValidationError("x", "bad", nil), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", domain.ErrInvalidOutcomeStatus), http.StatusBadRequest},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("case record 1: %w", domain.ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("case record 1: %w", domain.ErrNotFound), http.StatusNotFound},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, _ := errorStatus(tt.err)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}
