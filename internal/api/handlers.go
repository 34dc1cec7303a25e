package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/homeopathy-case-engine/internal/domain"
	"github.com/homeopathy-case-engine/internal/middleware"
	"github.com/homeopathy-case-engine/internal/service"
	"github.com/homeopathy-case-engine/pkg/pagination"
)

// DecisionRequest records the remedy the doctor prescribed.
type DecisionRequest struct {
	FinalRemedy *domain.FinalRemedy `json:"finalRemedy"`
}

// OutcomeRequest records the follow-up outcome of a case.
type OutcomeRequest struct {
	OutcomeStatus string `json:"outcomeStatus"`
	FollowUpNotes string `json:"followUpNotes,omitempty"`
}

// NormalizeRequest lists free-text symptoms to resolve.
type NormalizeRequest struct {
	Texts    []string `json:"texts"`
	Category string   `json:"category,omitempty"`
}

func (s *Server) handleSuggest(c *gin.Context) {
	doctorID := middleware.DoctorID(c)
	if doctorID == "" {
		s.respondError(c, domain.ErrUnauthorized)
		return
	}

	var req service.SuggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, invalidBody(err))
		return
	}
	req.DoctorID = doctorID

	resp, err := s.deps.Suggestions.Suggest(c.Request.Context(), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetCase(c *gin.Context) {
	record, err := s.deps.Learning.AuthorizedCaseRecord(c.Request.Context(), c.Param("id"), middleware.DoctorID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleUpdateDecision(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, invalidBody(err))
		return
	}
	if req.FinalRemedy == nil {
		s.respondError(c, domain.NewValidationError("finalRemedy", "finalRemedy is required", nil))
		return
	}

	if _, err := s.deps.Learning.AuthorizedCaseRecord(ctx, id, middleware.DoctorID(c)); err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.deps.Learning.UpdateDoctorDecision(ctx, id, *req.FinalRemedy); err != nil {
		s.respondError(c, err)
		return
	}

	s.respondRecord(c, id)
}

func (s *Server) handleUpdateOutcome(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var req OutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, invalidBody(err))
		return
	}
	status, err := domain.ParseOutcomeStatus(req.OutcomeStatus)
	if err != nil {
		s.respondError(c, domain.NewValidationError("outcomeStatus", err.Error(), req.OutcomeStatus))
		return
	}

	if _, err := s.deps.Learning.AuthorizedCaseRecord(ctx, id, middleware.DoctorID(c)); err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.deps.Learning.UpdateOutcome(ctx, id, status, req.FollowUpNotes); err != nil {
		s.respondError(c, err)
		return
	}

	s.respondRecord(c, id)
}

// respondRecord writes the current state of a case record after an update.
func (s *Server) respondRecord(c *gin.Context, id string) {
	record, err := s.deps.Learning.GetCaseRecord(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleListPatientCases(c *gin.Context) {
	doctorID := middleware.DoctorID(c)
	if doctorID == "" {
		s.respondError(c, domain.ErrUnauthorized)
		return
	}

	p := pagination.FromContext(c)
	records, total, err := s.deps.Learning.ListPatientCases(c.Request.Context(), c.Param("patientId"), doctorID, p.Limit, p.Offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagination.NewResponse(records, total, p))
}

func (s *Server) handleListRemedies(c *gin.Context) {
	p := pagination.FromContext(c)
	remedies, total, err := s.deps.Reference.ListRemedies(c.Request.Context(), domain.RemedyFilter{
		Search:   c.Query("search"),
		Category: c.Query("category"),
		Limit:    p.Limit,
		Offset:   p.Offset,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagination.NewResponse(remedies, total, p))
}

func (s *Server) handleGetRemedy(c *gin.Context) {
	id := c.Param("id")
	remedy, err := s.deps.Suggestions.Repertory().GetRemedyDetails(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if remedy == nil {
		s.respondError(c, fmt.Errorf("remedy %s: %w", id, domain.ErrNotFound))
		return
	}
	c.JSON(http.StatusOK, remedy)
}

func (s *Server) handleRemedyStatistics(c *gin.Context) {
	rate, err := s.deps.Learning.CalculateSuccessRate(c.Request.Context(), c.Param("id"), c.Query("timeRange"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rate)
}

func (s *Server) handleListRubrics(c *gin.Context) {
	p := pagination.FromContext(c)
	rubrics, total, err := s.deps.Reference.ListRubrics(c.Request.Context(), domain.RubricFilter{
		Chapter:   c.Query("chapter"),
		Search:    c.Query("search"),
		Repertory: c.Query("repertory"),
		Limit:     p.Limit,
		Offset:    p.Offset,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagination.NewResponse(rubrics, total, p))
}

func (s *Server) handleNormalizeSymptoms(c *gin.Context) {
	var req NormalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, invalidBody(err))
		return
	}
	if len(req.Texts) == 0 {
		s.respondError(c, domain.NewValidationError("texts", "at least one symptom text is required", nil))
		return
	}

	var category domain.Category
	if req.Category != "" {
		parsed, err := domain.ParseCategory(req.Category)
		if err != nil {
			s.respondError(c, domain.NewValidationError("category", err.Error(), req.Category))
			return
		}
		category = parsed
	}

	matches, err := s.deps.Suggestions.NormalizeSymptoms(c.Request.Context(), req.Texts, category)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

func (s *Server) handleSuggestRubrics(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))
	suggestions, err := s.deps.Suggestions.Mapper().SuggestRubrics(c.Request.Context(), code, c.Query("repertory"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symptomCode": code, "suggestions": suggestions})
}

func (s *Server) handleSymptomPatterns(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))
	patterns, err := s.deps.Learning.FindSymptomRemedyPatterns(c.Request.Context(), code)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symptomCode": code, "patterns": patterns})
}
