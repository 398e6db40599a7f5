package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrec/internal/config"
	"studyrec/internal/models"
)

func TestRecommendationCacheKey_Deterministic(t *testing.T) {
	attempts := []models.QuizAttempt{
		{QuizID: "q1", CourseID: "go-101", Score: 5, Total: 10, TimeSpentSeconds: 300},
		{QuizID: "q2", CourseID: "go-101", Score: 7, Total: 10, TimeSpentSeconds: 200},
	}

	first, err := RecommendationCacheKey(attempts)
	require.NoError(t, err)
	second, err := RecommendationCacheKey(attempts)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64) // hex-encoded SHA-256
}

func TestRecommendationCacheKey_OrderIndependent(t *testing.T) {
	a := models.QuizAttempt{QuizID: "q1", CourseID: "go-101", Score: 5, Total: 10}
	b := models.QuizAttempt{QuizID: "q2", CourseID: "go-101", Score: 7, Total: 10}

	forward, err := RecommendationCacheKey([]models.QuizAttempt{a, b})
	require.NoError(t, err)
	reversed, err := RecommendationCacheKey([]models.QuizAttempt{b, a})
	require.NoError(t, err)
	assert.Equal(t, forward, reversed)
}

func TestRecommendationCacheKey_IgnoresNonScoringFields(t *testing.T) {
	base := models.QuizAttempt{QuizID: "q1", CourseID: "go-101", Score: 5, Total: 10}
	annotated := base
	annotated.Strengths = []string{"slices"}
	annotated.Weaknesses = []string{"recursion"}

	plain, err := RecommendationCacheKey([]models.QuizAttempt{base})
	require.NoError(t, err)
	labeled, err := RecommendationCacheKey([]models.QuizAttempt{annotated})
	require.NoError(t, err)
	assert.Equal(t, plain, labeled)
}

func TestRecommendationCacheKey_DistinctInputsDistinctKeys(t *testing.T) {
	first, err := RecommendationCacheKey([]models.QuizAttempt{{QuizID: "q1", Score: 5, Total: 10}})
	require.NoError(t, err)
	second, err := RecommendationCacheKey([]models.QuizAttempt{{QuizID: "q1", Score: 6, Total: 10}})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestRecommendationCacheKey_EmptyAttempts(t *testing.T) {
	_, err := RecommendationCacheKey(nil)
	assert.Error(t, err)
}

func TestStudyPlanCacheKey(t *testing.T) {
	qc := &models.QuizContext{QuizID: "q1", CourseID: "go-101", Score: 5, TotalQuestions: 10, Difficulty: models.DifficultyMedium}

	first, err := StudyPlanCacheKey(qc)
	require.NoError(t, err)
	assert.Len(t, first, 64)

	harder := *qc
	harder.Difficulty = models.DifficultyHard
	second, err := StudyPlanCacheKey(&harder)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = StudyPlanCacheKey(nil)
	assert.Error(t, err)
	_, err = StudyPlanCacheKey(&models.QuizContext{})
	assert.Error(t, err)
}

func testCacheEntry(key, provider string, userID int, expiresAt time.Time) *models.CacheEntry {
	payload, _ := json.Marshal(models.RecommendationSet{Provider: provider})
	return &models.CacheEntry{
		Key:       key,
		UserID:    userID,
		Type:      models.CacheEntryRecommendations,
		Provider:  provider,
		Payload:   payload,
		ExpiresAt: expiresAt,
	}
}

func TestMemoryCache_RoundTrip(t *testing.T) {
	cache := NewMemoryRecommendationCache(&config.Config{})

	entry := testCacheEntry("key-1", "openai", 7, time.Now().Add(time.Hour))
	require.NoError(t, cache.Put(t.Context(), entry))

	got, err := cache.Get(t.Context(), "key-1", "openai")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.HitCount)

	got, err = cache.Get(t.Context(), "key-1", "openai")
	require.NoError(t, err)
	assert.Equal(t, 2, got.HitCount)
}

func TestMemoryCache_MissReturnsNilNil(t *testing.T) {
	cache := NewMemoryRecommendationCache(&config.Config{})

	got, err := cache.Get(t.Context(), "absent", "openai")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryCache_ProviderScoped(t *testing.T) {
	cache := NewMemoryRecommendationCache(&config.Config{})

	require.NoError(t, cache.Put(t.Context(), testCacheEntry("key-1", "openai", 7, time.Now().Add(time.Hour))))

	got, err := cache.Get(t.Context(), "key-1", RuleBasedProvider)
	require.NoError(t, err)
	assert.Nil(t, got, "an entry under one provider must not serve another")
}

func TestMemoryCache_ExpiredNeverReturned(t *testing.T) {
	cache := NewMemoryRecommendationCache(&config.Config{})
	now := time.Now()
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Put(t.Context(), testCacheEntry("key-1", "openai", 7, now.Add(time.Minute))))

	now = now.Add(2 * time.Minute)
	got, err := cache.Get(t.Context(), "key-1", "openai")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryCache_PutSweepsExpired(t *testing.T) {
	cache := NewMemoryRecommendationCache(&config.Config{})
	now := time.Now()
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Put(t.Context(), testCacheEntry("stale", "openai", 7, now.Add(time.Minute))))
	now = now.Add(2 * time.Minute)
	require.NoError(t, cache.Put(t.Context(), testCacheEntry("fresh", "openai", 7, now.Add(time.Hour))))

	assert.Equal(t, 1, cache.Len(), "expired entry should be swept on the next write")
}

func TestMemoryCache_SizeBoundEvictsLRU(t *testing.T) {
	cfg := &config.Config{}
	cfg.Recommendation.MaxCacheSize = 2
	cache := NewMemoryRecommendationCache(cfg)
	now := time.Now()
	cache.now = func() time.Time { return now }

	expiry := now.Add(24 * time.Hour)
	require.NoError(t, cache.Put(t.Context(), testCacheEntry("k1", "openai", 7, expiry)))
	now = now.Add(time.Minute)
	require.NoError(t, cache.Put(t.Context(), testCacheEntry("k2", "openai", 7, expiry)))
	now = now.Add(time.Minute)
	require.NoError(t, cache.Put(t.Context(), testCacheEntry("k3", "openai", 7, expiry)))

	assert.Equal(t, 2, cache.Len())
	got, err := cache.Get(t.Context(), "k1", "openai")
	require.NoError(t, err)
	assert.Nil(t, got, "least recently accessed entry should be evicted")
}

func TestMemoryCache_CleanupAndClear(t *testing.T) {
	cache := NewMemoryRecommendationCache(&config.Config{})
	now := time.Now()
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Put(t.Context(), testCacheEntry("stale", "openai", 7, now.Add(time.Minute))))
	require.NoError(t, cache.Put(t.Context(), testCacheEntry("fresh", "openai", 7, now.Add(time.Hour))))

	now = now.Add(30 * time.Minute)
	removed, err := cache.Cleanup(t.Context(), 7, models.CacheEntryRecommendations)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, cache.Len())

	require.NoError(t, cache.Clear(t.Context()))
	assert.Zero(t, cache.Len())
}

func TestMemoryCache_CleanupAllUsers(t *testing.T) {
	cache := NewMemoryRecommendationCache(&config.Config{})
	now := time.Now()
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Put(t.Context(), testCacheEntry("u7", "openai", 7, now.Add(time.Minute))))
	require.NoError(t, cache.Put(t.Context(), testCacheEntry("u9", "openai", 9, now.Add(time.Minute))))
	require.NoError(t, cache.Put(t.Context(), testCacheEntry("live", "openai", 9, now.Add(time.Hour))))

	now = now.Add(30 * time.Minute)
	removed, err := cache.Cleanup(t.Context(), 0, models.CacheEntryRecommendations)
	require.NoError(t, err)
	assert.Equal(t, 2, removed, "zero user id sweeps every user's expired entries")
	assert.Equal(t, 1, cache.Len())
}
