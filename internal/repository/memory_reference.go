package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/homeopathy-case-engine/internal/domain"
	"github.com/homeopathy-case-engine/internal/repository/seed"
)

// MemoryReferenceStore serves reference data from an in-memory dataset. It
// backs the standalone mode and the engine tests.
type MemoryReferenceStore struct {
	mu       sync.RWMutex
	ds       *seed.Dataset
	symptoms map[string]domain.Symptom
	remedies map[string]domain.Remedy
	logger   *logrus.Logger
}

// NewMemoryReferenceStore indexes a dataset.
func NewMemoryReferenceStore(ds *seed.Dataset, logger *logrus.Logger) *MemoryReferenceStore {
	s := &MemoryReferenceStore{logger: logger}
	s.Replace(ds)
	return s
}

// NewSeededReferenceStore loads the embedded dataset into a memory store.
func NewSeededReferenceStore(logger *logrus.Logger) (*MemoryReferenceStore, error) {
	ds, err := seed.Load()
	if err != nil {
		return nil, err
	}
	return NewMemoryReferenceStore(ds, logger), nil
}

// Replace swaps in a new dataset.
func (s *MemoryReferenceStore) Replace(ds *seed.Dataset) {
	symptoms := make(map[string]domain.Symptom, len(ds.Symptoms))
	for _, sym := range ds.Symptoms {
		symptoms[sym.Code] = sym
	}
	remedies := make(map[string]domain.Remedy, len(ds.Remedies))
	for _, r := range ds.Remedies {
		remedies[r.ID] = r
	}

	s.mu.Lock()
	s.ds = ds
	s.symptoms = symptoms
	s.remedies = remedies
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"symptoms":        len(ds.Symptoms),
		"rubrics":         len(ds.Rubrics),
		"rubric_remedies": len(ds.RubricRemedies),
		"remedies":        len(ds.Remedies),
	}).Debug("Loaded reference dataset")
}

// Dataset returns the dataset currently served.
func (s *MemoryReferenceStore) Dataset() *seed.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ds
}

func (s *MemoryReferenceStore) SymptomByCode(_ context.Context, code string) (*domain.Symptom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sym, ok := s.symptoms[code]
	if !ok {
		return nil, nil
	}
	return &sym, nil
}

func (s *MemoryReferenceStore) SymptomByName(_ context.Context, name string, category domain.Category, modality string) (*domain.Symptom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sym := range s.ds.Symptoms {
		if symptomInScope(sym, category, modality) && strings.EqualFold(sym.Name, strings.TrimSpace(name)) {
			found := sym
			return &found, nil
		}
	}
	return nil, nil
}

func (s *MemoryReferenceStore) SymptomBySynonym(_ context.Context, text string, category domain.Category, modality string) (*domain.Symptom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text = strings.TrimSpace(text)
	for _, sym := range s.ds.Symptoms {
		if !symptomInScope(sym, category, modality) {
			continue
		}
		for _, syn := range sym.Synonyms {
			if strings.EqualFold(syn, text) {
				found := sym
				return &found, nil
			}
		}
	}
	return nil, nil
}

// SearchSymptoms returns symptoms whose name or a synonym overlaps text in
// either direction, up to limit.
func (s *MemoryReferenceStore) SearchSymptoms(_ context.Context, text string, category domain.Category, modality string, limit int) ([]domain.Symptom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(text))
	results := []domain.Symptom{}
	if needle == "" {
		return results, nil
	}
	for _, sym := range s.ds.Symptoms {
		if limit > 0 && len(results) >= limit {
			break
		}
		if !symptomInScope(sym, category, modality) {
			continue
		}
		if overlaps(needle, sym.Name) || anyOverlaps(needle, sym.Synonyms) {
			results = append(results, sym)
		}
	}
	return results, nil
}

func (s *MemoryReferenceStore) FindRubrics(_ context.Context, q domain.RubricQuery) ([]domain.Rubric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := []domain.Rubric{}
	for _, r := range s.ds.Rubrics {
		if q.Repertory != "" && !strings.EqualFold(r.Repertory, q.Repertory) {
			continue
		}
		if !modalityInScope(r.Modality, q.Modality) {
			continue
		}
		if rubricMatches(r, q) {
			results = append(results, r)
		}
	}
	return results, nil
}

func (s *MemoryReferenceStore) RubricRemediesFor(_ context.Context, rubricIDs []string) ([]domain.RubricRemedy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[string]bool, len(rubricIDs))
	for _, id := range rubricIDs {
		wanted[id] = true
	}
	results := []domain.RubricRemedy{}
	for _, rr := range s.ds.RubricRemedies {
		if wanted[rr.RubricID] {
			results = append(results, rr)
		}
	}
	return results, nil
}

func (s *MemoryReferenceStore) RemedyByID(_ context.Context, id string) (*domain.Remedy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.remedies[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// ListRemedies returns remedies ordered by name, with the unpaginated total.
func (s *MemoryReferenceStore) ListRemedies(_ context.Context, f domain.RemedyFilter) ([]domain.Remedy, int, error) {
	s.mu.RLock()
	matched := []domain.Remedy{}
	for _, r := range s.ds.Remedies {
		if f.Category != "" && !strings.EqualFold(r.Category, f.Category) {
			continue
		}
		if f.Search != "" && !containsFold(r.Name, f.Search) && !containsFold(r.ID, f.Search) {
			continue
		}
		matched = append(matched, r)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	return paginate(matched, f.Limit, f.Offset), len(matched), nil
}

// ListRubrics returns rubrics ordered by id, with the unpaginated total.
func (s *MemoryReferenceStore) ListRubrics(_ context.Context, f domain.RubricFilter) ([]domain.Rubric, int, error) {
	s.mu.RLock()
	matched := []domain.Rubric{}
	for _, r := range s.ds.Rubrics {
		if f.Chapter != "" && !strings.EqualFold(r.Chapter, f.Chapter) {
			continue
		}
		if f.Repertory != "" && !strings.EqualFold(r.Repertory, f.Repertory) {
			continue
		}
		if f.Search != "" && !containsFold(r.Text, f.Search) {
			continue
		}
		matched = append(matched, r)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return paginate(matched, f.Limit, f.Offset), len(matched), nil
}

func symptomInScope(sym domain.Symptom, category domain.Category, modality string) bool {
	if category != "" && sym.Category != category {
		return false
	}
	return modalityInScope(sym.Modality, modality)
}

// modalityInScope treats an empty value on either side as a wildcard.
func modalityInScope(have, want string) bool {
	return have == "" || want == "" || strings.EqualFold(have, want)
}

func rubricMatches(r domain.Rubric, q domain.RubricQuery) bool {
	if q.SymptomCode != "" {
		for _, code := range r.LinkedSymptoms {
			if code == q.SymptomCode {
				return true
			}
		}
	}
	for _, term := range q.Terms {
		if containsFold(r.Text, term) {
			return true
		}
	}
	return false
}

func containsFold(text, sub string) bool {
	sub = strings.ToLower(strings.TrimSpace(sub))
	return sub != "" && strings.Contains(strings.ToLower(text), sub)
}

func overlaps(needle, candidate string) bool {
	candidate = strings.ToLower(strings.TrimSpace(candidate))
	if candidate == "" {
		return false
	}
	return strings.Contains(candidate, needle) || strings.Contains(needle, candidate)
}

func anyOverlaps(needle string, candidates []string) bool {
	for _, c := range candidates {
		if overlaps(needle, c) {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
