package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homeopathy-case-engine/internal/domain"
)

func candidateIDs(cs []domain.RubricCandidate) []string {
	ids := make([]string, 0, len(cs))
	for _, c := range cs {
		ids = append(ids, c.RubricID)
	}
	return ids
}

func TestRubricMapper_MapSymptomsToRubrics(t *testing.T) {
	mapper := NewRubricMapper(seededStore(t), domain.DefaultEngineConfig(), testLogger())

	profile := domain.NormalizedCaseProfile{
		Mental:   []domain.NormalizedSymptom{normalized("SYM_ANXIETY", "Anxiety", domain.CategoryMental, 3)},
		Generals: []domain.NormalizedSymptom{normalized("SYM_FEVER", "Fever", domain.CategoryGeneral, 2)},
	}

	candidates, err := mapper.MapSymptomsToRubrics(context.Background(), profile)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"KENT_MIND_ANXIETY",
		"BOERICKE_MIND_ANXIETY_FEAR",
		"KENT_FEVER_INTENSE",
		"KENT_FEVER_SUDDEN",
	}, candidateIDs(candidates))

	assert.Equal(t, 60.0, candidates[0].Confidence)
	assert.Equal(t, []string{"SYM_ANXIETY"}, candidates[0].MatchedSymptoms)
	assert.Equal(t, "boericke", candidates[1].Repertory)
	assert.Equal(t, 40.0, candidates[3].Confidence)
	assert.Equal(t, "Fever; sudden onset", candidates[3].RubricText)
	for _, c := range candidates {
		assert.False(t, c.AutoSelected)
	}

	for i := 1; i < len(candidates); i++ {
		assert.GreaterOrEqual(t, candidates[i-1].Confidence, candidates[i].Confidence)
	}
}

func TestRubricMapper_AutoSelect(t *testing.T) {
	mapper := NewRubricMapper(seededStore(t), domain.DefaultEngineConfig(), testLogger())

	profile := domain.NormalizedCaseProfile{
		Mental:      []domain.NormalizedSymptom{normalized("SYM_GRIEF", "Grief", domain.CategoryMental, 3)},
		Particulars: []domain.NormalizedSymptom{normalized("SYM_HEADACHE", "Headache", domain.CategoryParticular, 1)},
	}

	candidates, err := mapper.MapSymptomsToRubrics(context.Background(), profile)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, "KENT_MIND_GRIEF", candidates[0].RubricID)
	assert.Equal(t, 75.0, candidates[0].Confidence)
	assert.True(t, candidates[0].AutoSelected)
	assert.Equal(t, "KENT_HEAD_PAIN", candidates[1].RubricID)
	assert.Equal(t, 25.0, candidates[1].Confidence)
	assert.False(t, candidates[1].AutoSelected)

	selected := SelectRubrics(candidates)
	assert.Equal(t, []string{"KENT_MIND_GRIEF"}, candidateIDs(selected))
}

func TestRubricMapper_UnmatchedUsesTextSearch(t *testing.T) {
	mapper := NewRubricMapper(seededStore(t), domain.DefaultEngineConfig(), testLogger())

	profile := domain.NormalizedCaseProfile{
		Mental: []domain.NormalizedSymptom{{
			SymptomMatch: domain.SymptomMatch{Code: "UNMATCHED:mind", Name: "mind", Confidence: domain.MatchLow},
			Category:     domain.CategoryMental,
			Weight:       3,
		}},
	}

	candidates, err := mapper.MapSymptomsToRubrics(context.Background(), profile)
	require.NoError(t, err)
	assert.Len(t, candidates, 7)
	for _, c := range candidates {
		assert.Equal(t, []string{"UNMATCHED:mind"}, c.MatchedSymptoms)
		assert.Equal(t, 100.0, c.Confidence)
	}
}

func TestRubricMapper_SameRubricCountsEachSymptomOnce(t *testing.T) {
	mapper := NewRubricMapper(seededStore(t), domain.DefaultEngineConfig(), testLogger())

	// Both mentions resolve to the same code; each still contributes its weight once.
	profile := domain.NormalizedCaseProfile{
		Mental: []domain.NormalizedSymptom{
			normalized("SYM_ANXIETY", "Anxiety", domain.CategoryMental, 3),
			normalized("SYM_ANXIETY", "Anxiety", domain.CategoryMental, 1),
		},
	}

	candidates, err := mapper.MapSymptomsToRubrics(context.Background(), profile)
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	assert.Equal(t, 100.0, candidates[0].Confidence)
	assert.Equal(t, []string{"SYM_ANXIETY"}, candidates[0].MatchedSymptoms)
}

func TestRubricMapper_EmptyProfile(t *testing.T) {
	mapper := NewRubricMapper(seededStore(t), domain.DefaultEngineConfig(), testLogger())

	candidates, err := mapper.MapSymptomsToRubrics(context.Background(), domain.NormalizedCaseProfile{})
	require.NoError(t, err)
	assert.NotNil(t, candidates)
	assert.Empty(t, candidates)
	assert.Empty(t, SelectRubrics(candidates))
}

func TestRubricMapper_SuggestRubrics(t *testing.T) {
	mapper := NewRubricMapper(seededStore(t), domain.DefaultEngineConfig(), testLogger())
	ctx := context.Background()

	tests := []struct {
		name      string
		code      string
		repertory string
		wantIDs   []string
		wantScore []float64
	}{
		{"linked and text", "SYM_FEVER", "", []string{"KENT_FEVER_INTENSE", "KENT_FEVER_SUDDEN"}, []float64{100, 60}},
		{"across repertories", "SYM_ANXIETY", "", []string{"KENT_MIND_ANXIETY", "BOERICKE_MIND_ANXIETY_FEAR"}, []float64{100, 100}},
		{"single repertory", "SYM_ANXIETY", "boericke", []string{"BOERICKE_MIND_ANXIETY_FEAR"}, []float64{100}},
		{"unknown code", "SYM_UNKNOWN", "", []string{}, []float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mapper.SuggestRubrics(ctx, tt.code, tt.repertory)
			require.NoError(t, err)

			ids := []string{}
			scores := []float64{}
			for _, s := range got {
				ids = append(ids, s.Rubric.ID)
				scores = append(scores, s.MatchScore)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.wantScore, scores)
		})
	}
}

func TestRubricMapper_LanguageMap(t *testing.T) {
	cfg := domain.DefaultEngineConfig()
	cfg.LanguageMap = map[string][]string{"Kummer": {"grief"}}
	mapper := NewRubricMapper(seededStore(t), cfg, testLogger())

	assert.Equal(t, []string{"kummer", "grief"}, mapper.searchTerms("kummer"))

	profile := domain.NormalizedCaseProfile{
		Mental: []domain.NormalizedSymptom{{
			SymptomMatch: domain.SymptomMatch{Code: "UNMATCHED:kummer", Name: "kummer", Confidence: domain.MatchLow},
			Category:     domain.CategoryMental,
			Weight:       3,
		}},
	}
	candidates, err := mapper.MapSymptomsToRubrics(context.Background(), profile)
	require.NoError(t, err)
	assert.Equal(t, []string{"KENT_MIND_GRIEF"}, candidateIDs(candidates))
}
