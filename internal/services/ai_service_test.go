package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrec/internal/config"
	"studyrec/internal/models"
	contextutils "studyrec/internal/utils"
)

func aiTestConfig(url string) *config.Config {
	cfg := &config.Config{
		Providers: []config.ProviderConfig{{
			Name:   "Test Provider",
			Code:   "testai",
			URL:    url,
			APIKey: "test-key",
		}},
	}
	cfg.Recommendation.AIProvider = "testai"
	cfg.Recommendation.AIModel = "test-model"
	return cfg
}

// chatCompletionStub wraps content into an OpenAI-style chat completion response
func chatCompletionStub(t *testing.T, content string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}
}

func validRecommendationJSON() string {
	return `{"recommendations": [{
		"title": "Go Tour",
		"description": "Interactive intro",
		"resource_type": "tutorial",
		"difficulty": "beginner",
		"reasoning": "Low overall score on fundamentals",
		"priority": 1,
		"confidence": 85,
		"learning_path": "foundational"
	}]}`
}

func TestAIService_GenerateRecommendations(t *testing.T) {
	server := httptest.NewServer(chatCompletionStub(t, validRecommendationJSON()))
	defer server.Close()

	svc := NewAIService(aiTestConfig(server.URL), newTestLogger())
	require.True(t, svc.Configured())

	set, err := svc.GenerateRecommendations(t.Context(), &models.RecommendationRequest{
		UserID:   7,
		Attempts: []models.QuizAttempt{{QuizID: "q1", Score: 3, Total: 10}},
	})
	require.NoError(t, err)
	require.Len(t, set.Recommendations, 1)
	assert.Equal(t, "Go Tour", set.Recommendations[0].Title)
	assert.Equal(t, "testai", set.Provider)
	assert.False(t, set.GeneratedAt.IsZero())
}

func TestAIService_FencedJSONIsAccepted(t *testing.T) {
	fenced := "```json\n" + validRecommendationJSON() + "\n```"
	server := httptest.NewServer(chatCompletionStub(t, fenced))
	defer server.Close()

	svc := NewAIService(aiTestConfig(server.URL), newTestLogger())
	set, err := svc.GenerateRecommendations(t.Context(), &models.RecommendationRequest{UserID: 7})
	require.NoError(t, err)
	assert.Len(t, set.Recommendations, 1)
}

func TestAIService_InvalidPayloadRejected(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not json", content: "here are my thoughts on your quiz..."},
		{name: "missing reasoning", content: `{"recommendations": [{"title": "x", "priority": 1, "confidence": 50}]}`},
		{name: "priority out of range", content: `{"recommendations": [{"title": "x", "reasoning": "y", "priority": 9, "confidence": 50}]}`},
		{name: "empty recommendations", content: `{"recommendations": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(chatCompletionStub(t, tt.content))
			defer server.Close()

			svc := NewAIService(aiTestConfig(server.URL), newTestLogger())
			_, err := svc.GenerateRecommendations(t.Context(), &models.RecommendationRequest{UserID: 7})
			require.Error(t, err)
			assert.Equal(t, contextutils.ErrorCodeProviderResponseInvalid, contextutils.GetErrorCode(err))
			assert.True(t, contextutils.IsFallbackTrigger(err))
		})
	}
}

func TestAIService_UpstreamErrorIsFallbackTrigger(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc := NewAIService(aiTestConfig(server.URL), newTestLogger())
	_, err := svc.GenerateRecommendations(t.Context(), &models.RecommendationRequest{UserID: 7})
	require.Error(t, err)
	assert.True(t, contextutils.IsFallbackTrigger(err))
}

func TestAIService_Unconfigured(t *testing.T) {
	svc := NewAIService(&config.Config{}, newTestLogger())
	assert.False(t, svc.Configured())

	_, err := svc.GenerateRecommendations(t.Context(), &models.RecommendationRequest{UserID: 7})
	require.Error(t, err)
	assert.Equal(t, contextutils.ErrorCodeProviderConfigInvalid, contextutils.GetErrorCode(err))
}

func TestAIService_GenerateStudyPlan(t *testing.T) {
	planJSON := `{
		"difficulty": "intermediate",
		"steps": [{"order": 1, "title": "Review recursion", "minutes": 20}],
		"focus_areas": ["recursion"],
		"time_allocation": {"review": 40, "practice": 40, "new": 20},
		"weekly_goals": ["Retake the quiz"],
		"resources": {"review": ["notes"], "practice": ["problems"], "new": ["next unit"]}
	}`
	server := httptest.NewServer(chatCompletionStub(t, planJSON))
	defer server.Close()

	svc := NewAIService(aiTestConfig(server.URL), newTestLogger())
	plan, err := svc.GenerateStudyPlan(t.Context(), &models.StudyPlanRequest{
		UserID:  7,
		Context: models.QuizContext{QuizID: "q1", Score: 5, TotalQuestions: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, models.DifficultyTier("intermediate"), plan.Difficulty)
	assert.Equal(t, []string{"recursion"}, plan.FocusAreas)
	assert.Equal(t, "testai", plan.Provider)
}

func TestAIService_StudyPlanBadAllocationRejected(t *testing.T) {
	planJSON := `{
		"difficulty": "intermediate",
		"steps": [{"order": 1, "title": "Review"}],
		"time_allocation": {"review": 50, "practice": 30}
	}`
	server := httptest.NewServer(chatCompletionStub(t, planJSON))
	defer server.Close()

	svc := NewAIService(aiTestConfig(server.URL), newTestLogger())
	_, err := svc.GenerateStudyPlan(t.Context(), &models.StudyPlanRequest{
		UserID:  7,
		Context: models.QuizContext{QuizID: "q1"},
	})
	require.Error(t, err)
	assert.Equal(t, contextutils.ErrorCodeProviderResponseInvalid, contextutils.GetErrorCode(err))
}

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain json", input: `{"a": 1}`, expected: `{"a": 1}`},
		{name: "json fence", input: "```json\n{\"a\": 1}\n```", expected: `{"a": 1}`},
		{name: "bare fence", input: "```\n{\"a\": 1}\n```", expected: `{"a": 1}`},
		{name: "surrounding whitespace", input: "  {\"a\": 1}\n", expected: `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cleanJSONResponse(tt.input))
		})
	}
}
