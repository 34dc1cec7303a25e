package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homeopathy-case-engine/internal/domain"
)

func TestScoringEngine_ScoreBreakdown(t *testing.T) {
	engine := NewScoringEngine(domain.DefaultEngineConfig(), testLogger())

	remedy := &domain.Remedy{
		ID:   "test",
		Name: "Testum",
		Constitution: []domain.ConstitutionTrait{
			{Trait: "anxiety", Kind: domain.TraitMental},
			{Trait: "chill"},
			{Trait: "unrelated", Kind: domain.TraitEmotional},
		},
		ModalitiesWorse:    []string{"cold"},
		ModalitiesBetter:   []string{"warmth"},
		ClinicalIndication: []string{"Fever"},
		MateriaMedica:      domain.MateriaMedica{Keynotes: []string{"anxiety", "something else"}},
	}
	pool := domain.RemedyPool{
		"test": {
			RemedyID:   "test",
			RemedyName: "Testum",
			RubricGrades: []domain.RubricGrade{
				{RubricID: "R1", Grade: 3},
				{RubricID: "R2", Grade: 2},
			},
			TotalBaseScore: 5,
			Remedy:         remedy,
		},
	}
	profile := domain.NormalizedCaseProfile{
		Mental:        []domain.NormalizedSymptom{normalized("SYM_ANXIETY", "Anxiety", domain.CategoryMental, 3)},
		Generals:      []domain.NormalizedSymptom{normalized("SYM_CHILLINESS", "Chilliness", domain.CategoryGeneral, 2)},
		Modalities:    []domain.NormalizedSymptom{{SymptomMatch: domain.SymptomMatch{Code: "SYM_COLD", Name: "Cold", Matched: true}, Type: domain.ModalityWorse}},
		PathologyTags: []string{"fever"},
	}
	selected := []domain.RubricCandidate{
		{RubricID: "R1", MatchedSymptoms: []string{"SYM_ANXIETY"}},
		{RubricID: "R2", MatchedSymptoms: []string{"SYM_CHILLINESS", "SYM_ANXIETY"}},
	}

	scores := engine.ScoreAll(pool, profile, selected)
	require.Len(t, scores, 1)
	sc := scores[0]

	assert.InDelta(t, 5.6, sc.BaseScore, 0.001)
	assert.Equal(t, 12.0, sc.Breakdown.ConstitutionBonus)
	assert.Equal(t, 4.0, sc.Breakdown.KeynoteBonus)
	assert.Equal(t, 3.0, sc.Breakdown.ModalityBonus)
	assert.Equal(t, 5.0, sc.Breakdown.PathologySupport)
	assert.Equal(t, 15.0, sc.Breakdown.CoverageBonus)
	assert.InDelta(t, 40.6, sc.FinalScore, 0.001)
	assert.Equal(t, domain.ScoreMedium, sc.Confidence)
	assert.Equal(t, []string{"R1", "R2"}, sc.MatchedRubrics)
	assert.Equal(t, []string{"SYM_ANXIETY", "SYM_CHILLINESS"}, sc.MatchedSymptoms)
}

func TestScoringEngine_CoverageBonus(t *testing.T) {
	engine := NewScoringEngine(domain.DefaultEngineConfig(), testLogger())

	tests := []struct {
		matched, selected int
		want              float64
	}{
		{0, 0, 0},
		{4, 4, 15},
		{3, 4, 15},
		{7, 10, 8},
		{3, 5, 8},
		{1, 2, 0},
		{1, 4, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, engine.coverageBonus(tt.matched, tt.selected), "%d/%d", tt.matched, tt.selected)
	}
}

func TestScoringEngine_NilRemedyScoresGradesOnly(t *testing.T) {
	engine := NewScoringEngine(domain.DefaultEngineConfig(), testLogger())

	pool := domain.RemedyPool{
		"ghost": {RemedyID: "ghost", RemedyName: "ghost", RubricGrades: []domain.RubricGrade{{RubricID: "R1", Grade: 4}}},
	}
	scores := engine.ScoreAll(pool, domain.NormalizedCaseProfile{}, []domain.RubricCandidate{{RubricID: "R1"}})

	require.Len(t, scores, 1)
	assert.Equal(t, 6.0, scores[0].BaseScore)
	assert.Equal(t, 21.0, scores[0].FinalScore)
	assert.Equal(t, domain.ScoreBreakdown{CoverageBonus: 15}, scores[0].Breakdown)
}

func scoresOf(values ...float64) []domain.RemedyFinalScore {
	scores := make([]domain.RemedyFinalScore, 0, len(values))
	for i, v := range values {
		id := string(rune('a' + i))
		scores = append(scores, domain.RemedyFinalScore{RemedyID: id, RemedyName: id, FinalScore: v})
	}
	return scores
}

func TestScoringEngine_SelectTop(t *testing.T) {
	engine := NewScoringEngine(domain.DefaultEngineConfig(), testLogger())

	tests := []struct {
		name   string
		scores []domain.RemedyFinalScore
		want   int
	}{
		{"large gap keeps two", scoresOf(100, 45, 44, 40, 38), 2},
		{"medium gap keeps three", scoresOf(100, 65, 60, 50, 40, 35), 3},
		{"small gap keeps max", scoresOf(100, 90, 80, 70, 60, 50), 5},
		{"below minimum dropped", scoresOf(50, 45, 29.99, 10), 2},
		{"single remedy", scoresOf(80), 1},
		{"nothing above minimum", scoresOf(20, 10), 0},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.SelectTop(tt.scores)
			assert.Len(t, got, tt.want)
			for _, sc := range got {
				assert.GreaterOrEqual(t, sc.FinalScore, 30.0)
			}
		})
	}
}

func TestScoringEngine_ScoreRemediesSorted(t *testing.T) {
	engine := NewScoringEngine(domain.DefaultEngineConfig(), testLogger())

	pool := domain.RemedyPool{}
	for id, grades := range map[string][]int{"a": {4, 4, 4, 4, 4}, "b": {4, 4, 4, 4, 3}, "c": {1}} {
		entry := &domain.PoolEntry{RemedyID: id, RemedyName: id}
		for i, g := range grades {
			entry.RubricGrades = append(entry.RubricGrades, domain.RubricGrade{RubricID: string(rune('A' + i)), Grade: g})
			entry.TotalBaseScore += g
		}
		pool[id] = entry
	}
	selected := []domain.RubricCandidate{{RubricID: "A"}, {RubricID: "B"}, {RubricID: "C"}, {RubricID: "D"}, {RubricID: "E"}}

	got := engine.ScoreRemedies(pool, domain.NormalizedCaseProfile{}, selected)

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].RemedyID)
	assert.Equal(t, "b", got[1].RemedyID)
	assert.Greater(t, got[0].FinalScore, got[1].FinalScore)
}

func TestSortScores_TieBreak(t *testing.T) {
	scores := []domain.RemedyFinalScore{
		{RemedyID: "z", RemedyName: "Beta", FinalScore: 50},
		{RemedyID: "y", RemedyName: "Alpha", FinalScore: 50},
		{RemedyID: "x", RemedyName: "Alpha", FinalScore: 50},
		{RemedyID: "w", RemedyName: "Omega", FinalScore: 70},
	}

	SortScores(scores)

	ids := []string{}
	for _, s := range scores {
		ids = append(ids, s.RemedyID)
	}
	assert.Equal(t, []string{"w", "x", "y", "z"}, ids)
}
