package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := &Config{}

	assert.Equal(t, DefaultMaxRecommendations, cfg.MaxRecommendations())
	assert.Equal(t, time.Duration(DefaultRecommendationTTLHours)*time.Hour, cfg.RecommendationTTL())
	assert.Equal(t, time.Duration(DefaultStudyPlanTTLHours)*time.Hour, cfg.StudyPlanTTL())
	assert.Equal(t, DefaultAITimeout, cfg.AITimeout())
}

func TestConfig_ConfiguredValuesWin(t *testing.T) {
	cfg := &Config{}
	cfg.Recommendation.MaxRecommendations = 3
	cfg.Recommendation.RecommendationTTLHours = 6
	cfg.Recommendation.StudyPlanTTLHours = 12
	cfg.Recommendation.AITimeout = 10 * time.Second

	assert.Equal(t, 3, cfg.MaxRecommendations())
	assert.Equal(t, 6*time.Hour, cfg.RecommendationTTL())
	assert.Equal(t, 12*time.Hour, cfg.StudyPlanTTL())
	assert.Equal(t, 10*time.Second, cfg.AITimeout())
}

func TestConfig_GetProvider(t *testing.T) {
	cfg := &Config{
		Providers: []ProviderConfig{
			{Name: "OpenAI", Code: "openai", URL: "https://api.openai.com/v1"},
			{Name: "Ollama", Code: "ollama", URL: "http://localhost:11434/v1"},
		},
	}

	p := cfg.GetProvider("ollama")
	require.NotNil(t, p)
	assert.Equal(t, "Ollama", p.Name)
	assert.Nil(t, cfg.GetProvider("missing"))
}

func TestConfig_GetMaxTokensForModel(t *testing.T) {
	cfg := &Config{
		Providers: []ProviderConfig{{
			Name: "OpenAI", Code: "openai",
			Models: []AIModel{
				{Name: "GPT-4o", Code: "gpt-4o", MaxTokens: 4096},
				{Name: "GPT-4o mini", Code: "gpt-4o-mini"},
			},
		}},
	}

	assert.Equal(t, 4096, cfg.GetMaxTokensForModel("openai", "gpt-4o"))
	assert.Equal(t, DefaultMaxTokens, cfg.GetMaxTokensForModel("openai", "gpt-4o-mini"))
	assert.Equal(t, DefaultMaxTokens, cfg.GetMaxTokensForModel("missing", "gpt-4o"))
}

func TestNewConfig_FromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
providers:
  - name: OpenAI
    code: openai
    url: https://api.openai.com/v1
    api_key: sk-test
recommendation:
  max_recommendations: 4
  recommendation_ttl_hours: 12
  ai_provider: openai
  ai_model: gpt-4o
  ai_timeout: 20s
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("STUDYREC_CONFIG_FILE", path)

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxRecommendations())
	assert.Equal(t, 12*time.Hour, cfg.RecommendationTTL())
	assert.Equal(t, 20*time.Second, cfg.AITimeout())
	require.NotNil(t, cfg.GetProvider("openai"))
	assert.Equal(t, "sk-test", cfg.GetProvider("openai").APIKey)
}

func TestNewConfig_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
recommendation:
  max_recommendations: 4
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("STUDYREC_CONFIG_FILE", path)
	t.Setenv("RECOMMENDATION_MAX_RECOMMENDATIONS", "2")
	t.Setenv("RECOMMENDATION_AI_TIMEOUT", "45s")
	t.Setenv("DATABASE_URL", "postgres://localhost/studyrec_test")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxRecommendations())
	assert.Equal(t, 45*time.Second, cfg.AITimeout())
	assert.Equal(t, "postgres://localhost/studyrec_test", cfg.Database.URL)
}

func TestNewConfig_MissingFileIsFine(t *testing.T) {
	t.Setenv("STUDYREC_CONFIG_FILE", "")
	t.Chdir(t.TempDir())

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxRecommendations, cfg.MaxRecommendations())
}

func TestConfig_Validate(t *testing.T) {
	t.Run("ai provider without entry", func(t *testing.T) {
		cfg := &Config{}
		cfg.Recommendation.AIProvider = "openai"
		assert.Error(t, cfg.Validate())
	})

	t.Run("max recommendations out of range", func(t *testing.T) {
		cfg := &Config{}
		cfg.Recommendation.MaxRecommendations = 50
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero config is valid", func(t *testing.T) {
		assert.NoError(t, (&Config{}).Validate())
	})

	t.Run("complete config is valid", func(t *testing.T) {
		cfg := &Config{
			Providers: []ProviderConfig{{Name: "OpenAI", Code: "openai"}},
		}
		cfg.Recommendation.AIProvider = "openai"
		cfg.Recommendation.MaxRecommendations = 5
		assert.NoError(t, cfg.Validate())
	})
}
