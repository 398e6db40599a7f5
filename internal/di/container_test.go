package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrec/internal/config"
	"studyrec/internal/models"
	"studyrec/internal/observability"
	"studyrec/internal/services"
)

func newTestContainer(t *testing.T) *ServiceContainer {
	t.Helper()
	cfg := &config.Config{}
	logger := observability.NewLogger(&config.OpenTelemetryConfig{})
	catalog := services.NewStaticCatalog(
		[]models.Course{{ID: "go-101", ProgramID: "cs", Title: "Go Programming"}},
		nil,
	)
	sc := NewServiceContainer(cfg, catalog, logger)
	require.NoError(t, sc.Initialize(t.Context()))
	t.Cleanup(func() {
		assert.NoError(t, sc.Shutdown(t.Context()))
	})
	return sc
}

func TestContainer_WiresAllServices(t *testing.T) {
	sc := newTestContainer(t)

	perf, err := sc.GetPerformanceService()
	require.NoError(t, err)
	assert.NotNil(t, perf)

	rec, err := sc.GetRecommendationService()
	require.NoError(t, err)
	assert.NotNil(t, rec)

	plan, err := sc.GetStudyPlanService()
	require.NoError(t, err)
	assert.NotNil(t, plan)

	ai, err := sc.GetAIService()
	require.NoError(t, err)
	assert.NotNil(t, ai)

	engine, err := sc.GetEngineService()
	require.NoError(t, err)
	assert.NotNil(t, engine)
}

func TestContainer_InMemoryStoresWithoutDatabase(t *testing.T) {
	sc := newTestContainer(t)

	assert.Nil(t, sc.GetDatabase())

	cache, err := sc.GetCache()
	require.NoError(t, err)
	assert.IsType(t, &services.MemoryRecommendationCache{}, cache)

	callLog, err := sc.GetProviderCallLog()
	require.NoError(t, err)
	assert.IsType(t, &services.MemoryProviderCallLog{}, callLog)
}

func TestContainer_UnknownService(t *testing.T) {
	sc := newTestContainer(t)

	_, err := sc.GetService("nope")
	assert.Error(t, err)
}

func TestContainer_EngineEndToEnd(t *testing.T) {
	sc := newTestContainer(t)

	engine, err := sc.GetEngineService()
	require.NoError(t, err)

	set, err := engine.GetRecommendations(t.Context(), &models.RecommendationRequest{
		UserID:   1,
		Attempts: []models.QuizAttempt{{QuizID: "q1", Score: 4, Total: 10}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, set.Recommendations)
	assert.LessOrEqual(t, len(set.Recommendations), 5)
}
