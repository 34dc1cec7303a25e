package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/homeopathy-case-engine/internal/domain"
)

// LearningService records engine runs and their clinical outcomes, and reads
// outcome statistics back out. Statistics never feed live scoring.
type LearningService struct {
	store  domain.CaseRecordStore
	now    func() time.Time
	logger *logrus.Logger
}

// NewLearningService creates the outcome hook over a case record store.
func NewLearningService(store domain.CaseRecordStore, logger *logrus.Logger) *LearningService {
	return &LearningService{store: store, now: time.Now, logger: logger}
}

// WithClock replaces the clock used to resolve time ranges.
func (l *LearningService) WithClock(now func() time.Time) *LearningService {
	l.now = now
	return l
}

// SaveCaseRecord persists a pending case record for an engine run.
func (l *LearningService) SaveCaseRecord(ctx context.Context, doctorID, patientID string, run *EngineRun) (*domain.CaseRecord, error) {
	record := &domain.CaseRecord{
		ID:              uuid.New().String(),
		DoctorID:        doctorID,
		PatientID:       patientID,
		NormalizedCase:  run.Profile,
		SelectedRubrics: run.Selected,
		EngineOutput:    run.Output,
		OutcomeStatus:   domain.OutcomePending,
	}
	if err := l.store.Create(ctx, record); err != nil {
		l.logger.WithError(err).WithField("patient_id", patientID).Error("Failed to save case record")
		return nil, fmt.Errorf("failed to save case record: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"case_record_id": record.ID,
		"patient_id":     patientID,
	}).Info("Saved case record")
	return record, nil
}

// GetCaseRecord returns a case record or domain.ErrNotFound.
func (l *LearningService) GetCaseRecord(ctx context.Context, id string) (*domain.CaseRecord, error) {
	return l.store.Get(ctx, id)
}

// AuthorizedCaseRecord returns the record when doctorID owns it.
func (l *LearningService) AuthorizedCaseRecord(ctx context.Context, id, doctorID string) (*domain.CaseRecord, error) {
	if strings.TrimSpace(doctorID) == "" {
		return nil, domain.ErrUnauthorized
	}
	record, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.DoctorID != doctorID {
		return nil, fmt.Errorf("case record %s: %w", id, domain.ErrForbidden)
	}
	return record, nil
}

// ListPatientCases returns the patient's case records owned by doctorID,
// newest first. Records of other doctors are never listed.
func (l *LearningService) ListPatientCases(ctx context.Context, patientID, doctorID string, limit, offset int) ([]*domain.CaseRecord, int, error) {
	if strings.TrimSpace(doctorID) == "" {
		return nil, 0, domain.ErrUnauthorized
	}
	return l.store.ListByPatient(ctx, patientID, doctorID, limit, offset)
}

// UpdateDoctorDecision records the prescribed remedy. Unknown ids fail with
// domain.ErrNotFound and change nothing.
func (l *LearningService) UpdateDoctorDecision(ctx context.Context, caseRecordID string, decision domain.FinalRemedy) error {
	if strings.TrimSpace(decision.RemedyID) == "" {
		return domain.NewValidationError("finalRemedy.remedyId", "remedyId is required", nil)
	}
	if strings.TrimSpace(decision.RemedyName) == "" {
		return domain.NewValidationError("finalRemedy.remedyName", "remedyName is required", nil)
	}
	if err := l.store.UpdateDecision(ctx, caseRecordID, decision); err != nil {
		return err
	}

	l.logger.WithFields(logrus.Fields{
		"case_record_id": caseRecordID,
		"remedy_id":      decision.RemedyID,
		"potency":        decision.Potency,
	}).Info("Recorded doctor decision")
	return nil
}

// UpdateOutcome records the follow-up outcome. Any status may follow any other.
func (l *LearningService) UpdateOutcome(ctx context.Context, caseRecordID string, status domain.OutcomeStatus, notes string) error {
	if !status.IsValid() {
		return domain.NewValidationError("outcomeStatus", domain.ErrInvalidOutcomeStatus.Error(), status)
	}
	if err := l.store.UpdateOutcome(ctx, caseRecordID, status, notes); err != nil {
		return err
	}

	l.logger.WithFields(logrus.Fields{
		"case_record_id": caseRecordID,
		"outcome_status": status,
	}).Info("Recorded outcome")
	return nil
}

var timeRangePattern = regexp.MustCompile(`^(\d+)([dwmy])$`)

// ParseTimeRange resolves a range such as "30d", "6m" or "1y" to its lower
// bound relative to now. "" and "all" mean no bound.
func ParseTimeRange(timeRange string, now time.Time) (time.Time, error) {
	tr := strings.ToLower(strings.TrimSpace(timeRange))
	if tr == "" || tr == "all" {
		return time.Time{}, nil
	}
	m := timeRangePattern.FindStringSubmatch(tr)
	if m == nil {
		return time.Time{}, domain.NewValidationError("timeRange", "time range must look like 30d, 12w, 6m or 1y", timeRange)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return time.Time{}, domain.NewValidationError("timeRange", "time range must be positive", timeRange)
	}
	switch m[2] {
	case "d":
		return now.AddDate(0, 0, -n), nil
	case "w":
		return now.AddDate(0, 0, -7*n), nil
	case "m":
		return now.AddDate(0, -n, 0), nil
	default:
		return now.AddDate(-n, 0, 0), nil
	}
}

// CalculateSuccessRate aggregates decided outcomes for a remedy. The rate is
// the improved share of non-pending records, as a percentage.
func (l *LearningService) CalculateSuccessRate(ctx context.Context, remedyID, timeRange string) (*domain.SuccessRate, error) {
	if strings.TrimSpace(remedyID) == "" {
		return nil, domain.NewValidationError("remedyId", "remedyId is required", nil)
	}
	since, err := ParseTimeRange(timeRange, l.now())
	if err != nil {
		return nil, err
	}

	records, err := l.store.ListDecided(ctx, remedyID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load outcomes: %w", err)
	}

	rate := &domain.SuccessRate{RemedyID: remedyID, TimeRange: timeRange}
	if rate.TimeRange == "" {
		rate.TimeRange = "all"
	}
	for _, r := range records {
		switch r.OutcomeStatus {
		case domain.OutcomeImproved:
			rate.Improved++
		case domain.OutcomeNoChange:
			rate.NoChange++
		case domain.OutcomeWorsened:
			rate.Worsened++
		case domain.OutcomeNotFollowed:
			rate.NotFollowed++
		default:
			continue
		}
		rate.Total++
	}
	if rate.Total > 0 {
		rate.SuccessRate = round2(float64(rate.Improved) / float64(rate.Total) * 100)
	}
	return rate, nil
}

// FindSymptomRemedyPatterns ranks the remedies that improved cases presenting
// a mental symptom, by frequency, with each remedy's overall success rate.
func (l *LearningService) FindSymptomRemedyPatterns(ctx context.Context, symptomCode string) ([]domain.RemedyPattern, error) {
	if strings.TrimSpace(symptomCode) == "" {
		return nil, domain.NewValidationError("symptomCode", "symptomCode is required", nil)
	}

	records, err := l.store.ListImprovedWithMentalSymptom(ctx, symptomCode)
	if err != nil {
		return nil, fmt.Errorf("failed to load improved cases: %w", err)
	}

	byRemedy := make(map[string]*domain.RemedyPattern)
	for _, r := range records {
		if r.FinalRemedy == nil || r.FinalRemedy.RemedyID == "" {
			continue
		}
		p, ok := byRemedy[r.FinalRemedy.RemedyID]
		if !ok {
			p = &domain.RemedyPattern{RemedyID: r.FinalRemedy.RemedyID, RemedyName: r.FinalRemedy.RemedyName}
			byRemedy[r.FinalRemedy.RemedyID] = p
		}
		p.Frequency++
	}

	patterns := make([]domain.RemedyPattern, 0, len(byRemedy))
	for _, p := range byRemedy {
		rate, err := l.CalculateSuccessRate(ctx, p.RemedyID, "all")
		if err != nil {
			return nil, err
		}
		p.SuccessRate = rate.SuccessRate
		patterns = append(patterns, *p)
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Frequency != patterns[j].Frequency {
			return patterns[i].Frequency > patterns[j].Frequency
		}
		return patterns[i].RemedyName < patterns[j].RemedyName
	})
	return patterns, nil
}
