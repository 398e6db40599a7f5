package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"studyrec/internal/config"
	"studyrec/internal/models"
	"studyrec/internal/observability"
	contextutils "studyrec/internal/utils"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// recommendationSetSchema validates the AI provider's recommendation payload
// before it is trusted
const recommendationSetSchema = `{
	"type": "object",
	"properties": {
		"recommendations": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"properties": {
					"title": {"type": "string", "minLength": 1},
					"description": {"type": "string"},
					"resource_type": {"type": "string"},
					"difficulty": {"type": "string"},
					"url": {"type": "string"},
					"reasoning": {"type": "string", "minLength": 1},
					"priority": {"type": "integer", "minimum": 1, "maximum": 5},
					"estimated_minutes": {"type": "integer", "minimum": 0},
					"tags": {"type": "array", "items": {"type": "string"}},
					"confidence": {"type": "integer", "minimum": 0, "maximum": 100},
					"learning_path": {"type": "string"},
					"prerequisites": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["title", "reasoning", "priority", "confidence"]
			}
		}
	},
	"required": ["recommendations"]
}`

// studyPlanSchema validates the AI provider's study-plan payload
const studyPlanSchema = `{
	"type": "object",
	"properties": {
		"difficulty": {"type": "string", "minLength": 1},
		"steps": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"properties": {
					"order": {"type": "integer", "minimum": 1},
					"title": {"type": "string", "minLength": 1},
					"description": {"type": "string"},
					"focus_area": {"type": "string"},
					"minutes": {"type": "integer", "minimum": 0}
				},
				"required": ["order", "title"]
			}
		},
		"focus_areas": {"type": "array", "items": {"type": "string"}},
		"time_allocation": {"type": "object", "additionalProperties": {"type": "integer"}},
		"weekly_goals": {"type": "array", "items": {"type": "string"}},
		"resources": {
			"type": "object",
			"properties": {
				"review": {"type": "array", "items": {"type": "string"}},
				"practice": {"type": "array", "items": {"type": "string"}},
				"new": {"type": "array", "items": {"type": "string"}}
			}
		}
	},
	"required": ["difficulty", "steps", "time_allocation"]
}`

// AIServiceInterface defines the interface for the AI recommendation provider
type AIServiceInterface interface {
	ProviderName() string
	Configured() bool
	GenerateRecommendations(ctx context.Context, req *models.RecommendationRequest) (*models.RecommendationSet, error)
	GenerateStudyPlan(ctx context.Context, req *models.StudyPlanRequest) (*models.StudyPlan, error)
}

// AIService talks to an OpenAI-compatible chat completion endpoint and turns
// its JSON output into validated engine payloads
type AIService struct {
	cfg    *config.Config
	logger *observability.Logger
	client *http.Client
}

// NewAIService creates a new AI provider client
func NewAIService(cfg *config.Config, logger *observability.Logger) *AIService {
	return &AIService{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{
			Timeout:   cfg.AITimeout(),
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// ProviderName returns the configured provider code, empty when unset
func (s *AIService) ProviderName() string {
	return s.cfg.Recommendation.AIProvider
}

// Configured reports whether a usable provider is configured
func (s *AIService) Configured() bool {
	p := s.cfg.GetProvider(s.cfg.Recommendation.AIProvider)
	return p != nil && p.URL != "" && p.APIKey != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GenerateRecommendations asks the provider for a ranked recommendation set
func (s *AIService) GenerateRecommendations(ctx context.Context, req *models.RecommendationRequest) (set *models.RecommendationSet, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "ai_generate_recommendations",
		observability.AttributeUserID(req.UserID),
		observability.AttributeProvider(s.ProviderName()),
	)
	defer observability.FinishSpan(span, &err)

	prompt, err := buildRecommendationPrompt(req)
	if err != nil {
		return nil, err
	}

	content, err := s.callProvider(ctx, prompt)
	if err != nil {
		return nil, err
	}

	clean := cleanJSONResponse(content)
	if err = validateAgainstSchema(recommendationSetSchema, clean); err != nil {
		return nil, err
	}

	set = &models.RecommendationSet{}
	if err = json.Unmarshal([]byte(clean), set); err != nil {
		return nil, contextutils.WrapError(contextutils.ErrProviderResponseInvalid, err.Error())
	}
	set.Provider = s.ProviderName()
	set.GeneratedAt = time.Now().UTC()
	return set, nil
}

// GenerateStudyPlan asks the provider for a structured study plan
func (s *AIService) GenerateStudyPlan(ctx context.Context, req *models.StudyPlanRequest) (plan *models.StudyPlan, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "ai_generate_study_plan",
		observability.AttributeUserID(req.UserID),
		observability.AttributeProvider(s.ProviderName()),
	)
	defer observability.FinishSpan(span, &err)

	prompt, err := buildStudyPlanPrompt(req)
	if err != nil {
		return nil, err
	}

	content, err := s.callProvider(ctx, prompt)
	if err != nil {
		return nil, err
	}

	clean := cleanJSONResponse(content)
	if err = validateAgainstSchema(studyPlanSchema, clean); err != nil {
		return nil, err
	}

	plan = &models.StudyPlan{}
	if err = json.Unmarshal([]byte(clean), plan); err != nil {
		return nil, contextutils.WrapError(contextutils.ErrProviderResponseInvalid, err.Error())
	}
	if err = validateTimeAllocation(plan.TimeAllocation); err != nil {
		return nil, err
	}
	plan.Provider = s.ProviderName()
	plan.GeneratedAt = time.Now().UTC()
	return plan, nil
}

// callProvider sends one chat completion request and returns the first choice's content
func (s *AIService) callProvider(ctx context.Context, prompt string) (string, error) {
	provider := s.cfg.GetProvider(s.cfg.Recommendation.AIProvider)
	if provider == nil || provider.URL == "" {
		return "", contextutils.WrapError(contextutils.ErrProviderConfigInvalid,
			fmt.Sprintf("provider %q is not configured", s.cfg.Recommendation.AIProvider))
	}
	if provider.APIKey == "" {
		return "", contextutils.WrapError(contextutils.ErrProviderConfigInvalid,
			fmt.Sprintf("provider %q has no API key", provider.Code))
	}

	model := s.cfg.Recommendation.AIModel
	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a learning advisor. Respond with a single JSON object and nothing else."},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   s.cfg.GetMaxTokensForModel(provider.Code, model),
		Temperature: 0.2,
	})
	if err != nil {
		return "", contextutils.WrapError(err, "failed to serialize provider request")
	}

	url := strings.TrimRight(provider.URL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", contextutils.WrapError(err, "failed to build provider request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+provider.APIKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", contextutils.WrapError(contextutils.ErrTimeout, "provider call exceeded the configured timeout")
		}
		return "", contextutils.WrapError(contextutils.ErrProviderRequestFailed, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", contextutils.WrapError(contextutils.ErrProviderRequestFailed, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return "", contextutils.WrapError(contextutils.ErrProviderRequestFailed,
			fmt.Sprintf("provider returned status %d: %s", resp.StatusCode, truncateForLog(string(raw))))
	}

	var parsed chatResponse
	if err = json.Unmarshal(raw, &parsed); err != nil {
		return "", contextutils.WrapError(contextutils.ErrProviderResponseInvalid, err.Error())
	}
	if parsed.Error != nil {
		return "", contextutils.WrapError(contextutils.ErrProviderRequestFailed, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", contextutils.WrapError(contextutils.ErrProviderResponseInvalid, "provider returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// buildRecommendationPrompt condenses the request into the provider prompt
func buildRecommendationPrompt(req *models.RecommendationRequest) (string, error) {
	summary, err := json.Marshal(map[string]interface{}{
		"attempts":             req.Attempts,
		"learning_style":       req.User.LearningStyle,
		"preferred_difficulty": req.User.PreferredDifficulty,
		"session_minutes":      req.User.SessionMinutes,
	})
	if err != nil {
		return "", contextutils.WrapError(err, "failed to serialize recommendation prompt")
	}
	return fmt.Sprintf(`Given this student's quiz history and preferences, produce personalized learning recommendations.

Student data:
%s

Respond with JSON: {"recommendations": [{"title", "description", "resource_type", "difficulty", "url", "reasoning", "priority" (1-5, 1 highest), "estimated_minutes", "tags", "confidence" (0-100), "learning_path", "prerequisites"}]}. At most 5 recommendations. Every recommendation must include reasoning grounded in the quiz data.`, summary), nil
}

// buildStudyPlanPrompt condenses the quiz context into the provider prompt
func buildStudyPlanPrompt(req *models.StudyPlanRequest) (string, error) {
	summary, err := json.Marshal(map[string]interface{}{
		"quiz":            req.Context,
		"learning_style":  req.User.LearningStyle,
		"session_minutes": req.User.SessionMinutes,
	})
	if err != nil {
		return "", contextutils.WrapError(err, "failed to serialize study plan prompt")
	}
	return fmt.Sprintf(`Given this quiz result, produce a structured study plan.

Quiz data:
%s

Respond with JSON: {"difficulty", "steps": [{"order", "title", "description", "focus_area", "minutes"}], "focus_areas", "time_allocation" (percentages summing to 100), "weekly_goals", "resources": {"review", "practice", "new"}}.`, summary), nil
}

// cleanJSONResponse strips markdown code fences models wrap JSON in
func cleanJSONResponse(content string) string {
	clean := strings.TrimSpace(content)
	if strings.HasPrefix(clean, "```") {
		clean = strings.TrimPrefix(clean, "```json")
		clean = strings.TrimPrefix(clean, "```")
		if idx := strings.LastIndex(clean, "```"); idx >= 0 {
			clean = clean[:idx]
		}
		clean = strings.TrimSpace(clean)
	}
	return clean
}

// validateAgainstSchema rejects payloads that do not match the expected shape
func validateAgainstSchema(schema, payload string) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewStringLoader(payload),
	)
	if err != nil {
		return contextutils.WrapError(contextutils.ErrProviderResponseInvalid, err.Error())
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			issues = append(issues, e.String())
		}
		return contextutils.WrapError(contextutils.ErrProviderResponseInvalid, strings.Join(issues, "; "))
	}
	return nil
}

// validateTimeAllocation enforces the sum-to-100 invariant on provider output
func validateTimeAllocation(allocation map[string]int) error {
	total := 0
	for _, pct := range allocation {
		total += pct
	}
	if total != 100 {
		return contextutils.WrapError(contextutils.ErrProviderResponseInvalid,
			fmt.Sprintf("time allocation sums to %d, expected 100", total))
	}
	return nil
}

func truncateForLog(s string) string {
	const max = 500
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
