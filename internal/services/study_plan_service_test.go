package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrec/internal/config"
	"studyrec/internal/models"
)

func newTestStudyPlanService() *StudyPlanService {
	return NewStudyPlanService(&config.Config{}, newTestLogger())
}

func TestGenerateStudyPlan_TierFromScore(t *testing.T) {
	svc := newTestStudyPlanService()

	tests := []struct {
		name     string
		score    int
		total    int
		expected models.DifficultyTier
	}{
		{name: "low score", score: 3, total: 10, expected: models.TierBeginner},
		{name: "mid score", score: 6, total: 10, expected: models.TierIntermediate},
		{name: "high score", score: 9, total: 10, expected: models.TierAdvanced},
		{name: "zero total degrades to beginner", score: 0, total: 0, expected: models.TierBeginner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := svc.GenerateStudyPlan(t.Context(), &models.StudyPlanRequest{
				UserID:  7,
				Context: models.QuizContext{QuizID: "q1", Score: tt.score, TotalQuestions: tt.total},
			})
			require.NotNil(t, plan)
			assert.Equal(t, tt.expected, plan.Difficulty)
		})
	}
}

func TestGenerateStudyPlan_TimeAllocationSumsTo100(t *testing.T) {
	svc := newTestStudyPlanService()

	for _, score := range []int{2, 6, 9} {
		plan := svc.GenerateStudyPlan(t.Context(), &models.StudyPlanRequest{
			UserID:  7,
			Context: models.QuizContext{QuizID: "q1", Score: score, TotalQuestions: 10},
		})
		total := 0
		for _, pct := range plan.TimeAllocation {
			total += pct
		}
		assert.Equal(t, 100, total, "allocation for score %d", score)
	}
}

func TestGenerateStudyPlan_StepsOrderedAndComplete(t *testing.T) {
	svc := newTestStudyPlanService()

	plan := svc.GenerateStudyPlan(t.Context(), &models.StudyPlanRequest{
		UserID:  7,
		Context: models.QuizContext{QuizID: "q1", Score: 5, TotalQuestions: 10},
		User:    models.UserProfile{SessionMinutes: 60},
	})

	require.NotEmpty(t, plan.Steps)
	for i, step := range plan.Steps {
		assert.Equal(t, i+1, step.Order)
		assert.NotEmpty(t, step.Title)
	}
	assert.NotEmpty(t, plan.WeeklyGoals)
	assert.NotEmpty(t, plan.FocusAreas)
	assert.NotEmpty(t, plan.Resources.Review)
	assert.NotEmpty(t, plan.Resources.Practice)
	assert.NotEmpty(t, plan.Resources.New)
	assert.Equal(t, RuleBasedProvider, plan.Provider)
}

func TestGenerateStudyPlan_FocusAreasFromGaps(t *testing.T) {
	svc := newTestStudyPlanService()

	plan := svc.GenerateStudyPlan(t.Context(), &models.StudyPlanRequest{
		UserID: 7,
		Context: models.QuizContext{
			QuizID: "q1", Score: 4, TotalQuestions: 10,
			Attempts: []models.QuizAttempt{{
				QuizID: "q1", Score: 4, Total: 10,
				QuestionDetails: []models.QuestionDetail{
					{QuestionID: "1", IsCorrect: false, Tags: []string{"recursion"}},
					{QuestionID: "2", IsCorrect: true, Tags: []string{"slices"}},
				},
			}},
		},
	})

	assert.Equal(t, []string{"recursion"}, plan.FocusAreas)
}

func TestGenerateStudyPlan_FocusAreasFromWeaknessLabels(t *testing.T) {
	svc := newTestStudyPlanService()

	plan := svc.GenerateStudyPlan(t.Context(), &models.StudyPlanRequest{
		UserID: 7,
		Context: models.QuizContext{
			QuizID: "q1", Score: 4, TotalQuestions: 10,
			Attempts: []models.QuizAttempt{
				{QuizID: "q1", Score: 4, Total: 10, Weaknesses: []string{"pointers", "recursion"}},
			},
		},
	})

	assert.Equal(t, []string{"pointers", "recursion"}, plan.FocusAreas)
}

func TestGenerateStudyPlan_Deterministic(t *testing.T) {
	svc := newTestStudyPlanService()

	req := &models.StudyPlanRequest{
		UserID:  7,
		Context: models.QuizContext{QuizID: "q1", Score: 5, TotalQuestions: 10},
	}
	first := svc.GenerateStudyPlan(t.Context(), req)
	second := svc.GenerateStudyPlan(t.Context(), req)

	assert.Equal(t, first.Steps, second.Steps)
	assert.Equal(t, first.TimeAllocation, second.TimeAllocation)
	assert.Equal(t, first.FocusAreas, second.FocusAreas)
}
