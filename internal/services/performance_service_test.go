package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrec/internal/config"
	"studyrec/internal/models"
	"studyrec/internal/observability"
)

func newTestLogger() *observability.Logger {
	return observability.NewLogger(&config.OpenTelemetryConfig{})
}

func newTestPerformanceService() *PerformanceService {
	return NewPerformanceService(&config.Config{}, newTestLogger())
}

func TestAnalyzePerformance_OverallScore(t *testing.T) {
	svc := newTestPerformanceService()

	attempts := []models.QuizAttempt{
		{QuizID: "q1", Score: 3, Total: 10},
		{QuizID: "q2", Score: 7, Total: 10},
	}

	profile := svc.AnalyzePerformance(t.Context(), attempts)
	require.NotNil(t, profile)
	assert.InDelta(t, 50.0, profile.OverallScorePct, 0.001)
}

func TestAnalyzePerformance_EmptyAttempts(t *testing.T) {
	svc := newTestPerformanceService()

	profile := svc.AnalyzePerformance(t.Context(), nil)
	require.NotNil(t, profile)
	assert.Zero(t, profile.OverallScorePct)
	assert.Empty(t, profile.LearningGaps)
	assert.Empty(t, profile.Strengths)
	assert.Zero(t, profile.ConfidenceLevel)
	assert.False(t, profile.HasData())
}

func TestAnalyzeCoursePerformance_FiltersByCourse(t *testing.T) {
	svc := newTestPerformanceService()

	attempts := []models.QuizAttempt{
		{QuizID: "q1", CourseID: "go-101", Score: 9, Total: 10},
		{QuizID: "q2", CourseID: "rust-101", Score: 1, Total: 10},
	}

	profile := svc.AnalyzeCoursePerformance(t.Context(), attempts, "go-101")
	assert.InDelta(t, 90.0, profile.OverallScorePct, 0.001)
}

func TestAnalyzePerformance_GapsAndStrengths(t *testing.T) {
	svc := newTestPerformanceService()

	attempts := []models.QuizAttempt{{
		QuizID: "q1", Score: 5, Total: 10,
		QuestionDetails: []models.QuestionDetail{
			{QuestionID: "1", IsCorrect: false, Tags: []string{"recursion"}},
			{QuestionID: "2", IsCorrect: false, Tags: []string{"recursion"}},
			{QuestionID: "3", IsCorrect: true, Tags: []string{"slices"}},
			{QuestionID: "4", IsCorrect: true, Tags: []string{"slices"}},
			{QuestionID: "5", IsCorrect: false, Tags: []string{"pointers"}},
			{QuestionID: "6", IsCorrect: true, Tags: []string{"pointers"}},
		},
	}}

	profile := svc.AnalyzePerformance(t.Context(), attempts)

	// recursion 0% and pointers 50% are both below the gap threshold, worst first
	assert.Equal(t, []string{"recursion", "pointers"}, profile.LearningGaps)
	// slices 100% is above the strength threshold
	assert.Equal(t, []string{"slices"}, profile.Strengths)
}

func TestAnalyzePerformance_GapCap(t *testing.T) {
	svc := newTestPerformanceService()

	details := []models.QuestionDetail{
		{QuestionID: "1", IsCorrect: false, Tags: []string{"a"}},
		{QuestionID: "2", IsCorrect: false, Tags: []string{"b"}},
		{QuestionID: "3", IsCorrect: false, Tags: []string{"c"}},
		{QuestionID: "4", IsCorrect: false, Tags: []string{"d"}},
	}
	attempts := []models.QuizAttempt{{QuizID: "q1", Score: 0, Total: 4, QuestionDetails: details}}

	profile := svc.AnalyzePerformance(t.Context(), attempts)
	assert.Len(t, profile.LearningGaps, config.MaxLearningGaps)
	// equal scores fall back to name order for a stable result
	assert.Equal(t, []string{"a", "b", "c"}, profile.LearningGaps)
}

func TestAnalyzePerformance_RushedAndOverthought(t *testing.T) {
	svc := newTestPerformanceService()

	attempts := []models.QuizAttempt{{
		QuizID: "q1", Score: 1, Total: 2,
		QuestionDetails: []models.QuestionDetail{
			{QuestionID: "1", IsCorrect: false, TimeSpentSeconds: 10},
			{QuestionID: "2", IsCorrect: true, TimeSpentSeconds: 150},
			{QuestionID: "3", IsCorrect: true, TimeSpentSeconds: 10},  // fast but correct: not rushed
			{QuestionID: "4", IsCorrect: false, TimeSpentSeconds: 150}, // slow and wrong: not overthought
		},
	}}

	profile := svc.AnalyzePerformance(t.Context(), attempts)
	assert.Equal(t, 1, profile.RushedCount)
	assert.Equal(t, 1, profile.OverthoughtCount)
}

func TestAnalyzePerformance_ConfidenceLevel(t *testing.T) {
	svc := newTestPerformanceService()

	tests := []struct {
		name     string
		attempts []models.QuizAttempt
		expected int
	}{
		{
			name:     "single attempt without details",
			attempts: []models.QuizAttempt{{QuizID: "q1", Score: 5, Total: 10}},
			expected: 40, // 20 per attempt + 20 for a positive score
		},
		{
			name: "single attempt with details",
			attempts: []models.QuizAttempt{{
				QuizID: "q1", Score: 1, Total: 2,
				QuestionDetails: []models.QuestionDetail{{QuestionID: "1", IsCorrect: true}},
			}},
			expected: 70, // 20 + 30 details + 20 score
		},
		{
			name: "many attempts clamp at 100",
			attempts: []models.QuizAttempt{
				{QuizID: "q1", Score: 5, Total: 10},
				{QuizID: "q2", Score: 5, Total: 10},
				{QuizID: "q3", Score: 5, Total: 10},
				{QuizID: "q4", Score: 5, Total: 10},
				{QuizID: "q5", Score: 5, Total: 10},
				{QuizID: "q6", Score: 5, Total: 10},
			},
			expected: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := svc.AnalyzePerformance(t.Context(), tt.attempts)
			assert.Equal(t, tt.expected, profile.ConfidenceLevel)
		})
	}
}

func TestSuggestDifficultyTier(t *testing.T) {
	svc := newTestPerformanceService()

	tests := []struct {
		name      string
		score     float64
		efficiency float64
		preferred models.DifficultyTier
		expected  models.DifficultyTier
	}{
		{name: "low score", score: 30, expected: models.TierBeginner},
		{name: "mid score", score: 55, expected: models.TierIntermediate},
		{name: "high score", score: 85, expected: models.TierAdvanced},
		{name: "boundary 40 is intermediate", score: 40, expected: models.TierIntermediate},
		{name: "boundary 70 is advanced", score: 70, expected: models.TierAdvanced},
		{
			name: "preference nudges intermediate up", score: 55,
			preferred: models.TierAdvanced, expected: models.TierIntermediateAdvanced,
		},
		{
			name: "preference nudges intermediate down", score: 55,
			preferred: models.TierBeginner, expected: models.TierBeginnerIntermediate,
		},
		{
			name: "preference cannot move a non-intermediate base", score: 85,
			preferred: models.TierBeginner, expected: models.TierAdvanced,
		},
		{
			name: "efficiency promotes one notch", score: 55,
			efficiency: 2.5, expected: models.TierIntermediateAdvanced,
		},
		{
			name: "efficiency promotes the preference-adjusted tier", score: 55,
			preferred: models.TierAdvanced, efficiency: 2.5, expected: models.TierAdvanced,
		},
		{
			name: "efficiency cannot promote past advanced", score: 85,
			efficiency: 2.5, expected: models.TierAdvanced,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := &models.PerformanceProfile{
				OverallScorePct: tt.score,
				TimeEfficiency:  tt.efficiency,
			}
			assert.Equal(t, tt.expected, svc.SuggestDifficultyTier(profile, tt.preferred))
		})
	}
}

func TestSuggestDifficultyTier_NilProfile(t *testing.T) {
	svc := newTestPerformanceService()
	assert.Equal(t, models.TierBeginner, svc.SuggestDifficultyTier(nil, models.TierAdvanced))
}
