package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/homeopathy-case-engine/internal/domain"
	"github.com/homeopathy-case-engine/internal/outcome"
	"github.com/homeopathy-case-engine/internal/repository"
)

// MockReferenceStore is a mock implementation of domain.ReferenceStore
type MockReferenceStore struct {
	mock.Mock
}

func (m *MockReferenceStore) SymptomByCode(ctx context.Context, code string) (*domain.Symptom, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Symptom), args.Error(1)
}

func (m *MockReferenceStore) SymptomByName(ctx context.Context, name string, category domain.Category, modality string) (*domain.Symptom, error) {
	args := m.Called(ctx, name, category, modality)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Symptom), args.Error(1)
}

func (m *MockReferenceStore) SymptomBySynonym(ctx context.Context, text string, category domain.Category, modality string) (*domain.Symptom, error) {
	args := m.Called(ctx, text, category, modality)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Symptom), args.Error(1)
}

func (m *MockReferenceStore) SearchSymptoms(ctx context.Context, text string, category domain.Category, modality string, limit int) ([]domain.Symptom, error) {
	args := m.Called(ctx, text, category, modality, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Symptom), args.Error(1)
}

func (m *MockReferenceStore) FindRubrics(ctx context.Context, q domain.RubricQuery) ([]domain.Rubric, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Rubric), args.Error(1)
}

func (m *MockReferenceStore) RubricRemediesFor(ctx context.Context, rubricIDs []string) ([]domain.RubricRemedy, error) {
	args := m.Called(ctx, rubricIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RubricRemedy), args.Error(1)
}

func (m *MockReferenceStore) RemedyByID(ctx context.Context, id string) (*domain.Remedy, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Remedy), args.Error(1)
}

func (m *MockReferenceStore) ListRemedies(ctx context.Context, f domain.RemedyFilter) ([]domain.Remedy, int, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]domain.Remedy), args.Int(1), args.Error(2)
}

func (m *MockReferenceStore) ListRubrics(ctx context.Context, f domain.RubricFilter) ([]domain.Rubric, int, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]domain.Rubric), args.Int(1), args.Error(2)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress logs during testing
	return logger
}

func seededStore(t *testing.T) *repository.MemoryReferenceStore {
	t.Helper()
	store, err := repository.NewSeededReferenceStore(testLogger())
	require.NoError(t, err)
	return store
}

func newTestNormalizer(t *testing.T, store domain.ReferenceStore) *SymptomNormalizer {
	t.Helper()
	n, err := NewSymptomNormalizer(store, domain.DefaultEngineConfig(), 64, testLogger())
	require.NoError(t, err)
	return n
}

func newCaseStore(t *testing.T) *outcome.SQLiteStore {
	t.Helper()
	store, err := outcome.NewSQLiteStore(filepath.Join(t.TempDir(), "case_records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func weight(w float64) *float64 {
	return &w
}

func mention(text string) domain.SymptomMention {
	return domain.SymptomMention{SymptomText: text}
}

func normalized(code, name string, cat domain.Category, w float64) domain.NormalizedSymptom {
	return domain.NormalizedSymptom{
		SymptomMatch: domain.SymptomMatch{Code: code, Name: name, Confidence: domain.MatchExact, Matched: true},
		Category:     cat,
		Weight:       w,
		OriginalTxt:  name,
	}
}
