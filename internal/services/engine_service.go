package services

import (
	"context"
	"encoding/json"
	"time"

	"studyrec/internal/config"
	"studyrec/internal/models"
	"studyrec/internal/observability"
	contextutils "studyrec/internal/utils"
)

// EngineServiceInterface defines the interface for the recommendation engine orchestrator
type EngineServiceInterface interface {
	GetRecommendations(ctx context.Context, req *models.RecommendationRequest) (*models.RecommendationSet, error)
	GetStudyPlan(ctx context.Context, req *models.StudyPlanRequest) (*models.StudyPlan, error)
	CacheStats(ctx context.Context, since time.Time, userID int) (*models.ProviderCallStats, error)
	InvalidateUserCache(ctx context.Context, userID int) (int, error)
}

// EngineService runs the tiered provider chain: cache, then the AI provider,
// then the deterministic rule-based generator. Rule-based generation is
// terminal and cannot fail, so the engine always produces a result.
type EngineService struct {
	cfg       *config.Config
	cache     RecommendationCacheInterface
	callLog   ProviderCallLogInterface
	ai        AIServiceInterface
	ruleBased *RecommendationService
	planner   *StudyPlanService
	logger    *observability.Logger
}

// NewEngineService creates a new engine orchestrator
func NewEngineService(
	cfg *config.Config,
	cache RecommendationCacheInterface,
	callLog ProviderCallLogInterface,
	ai AIServiceInterface,
	ruleBased *RecommendationService,
	planner *StudyPlanService,
	logger *observability.Logger,
) *EngineService {
	return &EngineService{
		cfg:       cfg,
		cache:     cache,
		callLog:   callLog,
		ai:        ai,
		ruleBased: ruleBased,
		planner:   planner,
		logger:    logger,
	}
}

// GetRecommendations resolves a recommendation request through the provider
// chain. Each provider attempt first consults the cache under that provider's
// name, so a rule-based result never masks a fresher AI result.
func (s *EngineService) GetRecommendations(ctx context.Context, req *models.RecommendationRequest) (set *models.RecommendationSet, err error) {
	userID := req.UserID
	if userID == 0 {
		userID = contextutils.GetUserIDFromContext(ctx)
	}
	ctx, span := observability.TraceEngineFunction(ctx, "get_recommendations",
		observability.AttributeUserID(userID),
		observability.AttributeAttemptCount(len(req.Attempts)),
	)
	defer observability.FinishSpan(span, &err)

	key, keyErr := RecommendationCacheKey(req.Attempts)
	if keyErr != nil {
		// A key that cannot be derived is a permanent cache miss; the
		// provider chain still runs, it just cannot read or write the cache
		key = ""
		s.logger.Debug(ctx, "No cache key derivable, bypassing cache", map[string]interface{}{
			"user_id": userID,
		})
	}

	if s.ai != nil && s.ai.Configured() {
		provider := s.ai.ProviderName()
		if key != "" {
			if cached := s.cacheLookup(ctx, userID, key, provider, models.CacheEntryRecommendations); cached != nil {
				var out models.RecommendationSet
				if err := json.Unmarshal(cached.Payload, &out); err == nil {
					return &out, nil
				}
				s.logger.Warn(ctx, "Cached recommendation payload unreadable, regenerating", map[string]interface{}{
					"cache_key": key,
					"provider":  provider,
				})
			}
		}

		start := time.Now()
		aiSet, aiErr := s.ai.GenerateRecommendations(ctx, req)
		elapsed := int(time.Since(start).Milliseconds())
		if aiErr == nil {
			if key != "" {
				s.storeResult(ctx, userID, key, provider, models.CacheEntryRecommendations, aiSet, averageConfidence(aiSet), s.cfg.RecommendationTTL())
			}
			s.recordCall(ctx, userID, provider, "recommendations", true, false, elapsed, "")
			return aiSet, nil
		}
		s.recordCall(ctx, userID, provider, "recommendations", false, false, elapsed, aiErr.Error())
		s.logFallback(ctx, provider, "rule-based generation", aiErr)
	}

	if key != "" {
		if cached := s.cacheLookup(ctx, userID, key, RuleBasedProvider, models.CacheEntryRecommendations); cached != nil {
			var out models.RecommendationSet
			if err := json.Unmarshal(cached.Payload, &out); err == nil {
				return &out, nil
			}
		}
	}
	return s.ruleBasedRecommendations(ctx, req, userID, key)
}

// logFallback records an AI failure at a severity matching its error class.
// Every failure falls through to the terminal provider regardless.
func (s *EngineService) logFallback(ctx context.Context, provider, target string, aiErr error) {
	fields := map[string]interface{}{
		"provider": provider,
		"error":    aiErr.Error(),
	}
	if contextutils.IsFallbackTrigger(aiErr) {
		s.logger.Warn(ctx, "AI provider failed, falling back to "+target, fields)
		return
	}
	s.logger.Error(ctx, "Unclassified AI provider failure, falling back to "+target, aiErr, fields)
}

// ruleBasedRecommendations runs the terminal provider and records the attempt
func (s *EngineService) ruleBasedRecommendations(ctx context.Context, req *models.RecommendationRequest, userID int, key string) (*models.RecommendationSet, error) {
	start := time.Now()
	set := s.ruleBased.GenerateRecommendations(ctx, req)
	elapsed := int(time.Since(start).Milliseconds())

	if key != "" {
		s.storeResult(ctx, userID, key, RuleBasedProvider, models.CacheEntryRecommendations, set, averageConfidence(set), s.cfg.RecommendationTTL())
	}
	s.recordCall(ctx, userID, RuleBasedProvider, "recommendations", true, false, elapsed, "")
	return set, nil
}

// GetStudyPlan resolves a study-plan request through the same provider chain
func (s *EngineService) GetStudyPlan(ctx context.Context, req *models.StudyPlanRequest) (plan *models.StudyPlan, err error) {
	userID := req.UserID
	if userID == 0 {
		userID = contextutils.GetUserIDFromContext(ctx)
	}
	ctx, span := observability.TraceEngineFunction(ctx, "get_study_plan",
		observability.AttributeUserID(userID),
		observability.AttributeCourseID(req.Context.CourseID),
	)
	defer observability.FinishSpan(span, &err)

	key, keyErr := StudyPlanCacheKey(&req.Context)
	if keyErr != nil {
		key = ""
	}

	if s.ai != nil && s.ai.Configured() {
		provider := s.ai.ProviderName()
		if key != "" {
			if cached := s.cacheLookup(ctx, userID, key, provider, models.CacheEntryStudyPlan); cached != nil {
				var out models.StudyPlan
				if err := json.Unmarshal(cached.Payload, &out); err == nil {
					return &out, nil
				}
			}
		}

		start := time.Now()
		aiPlan, aiErr := s.ai.GenerateStudyPlan(ctx, req)
		elapsed := int(time.Since(start).Milliseconds())
		if aiErr == nil {
			if key != "" {
				s.storeResult(ctx, userID, key, provider, models.CacheEntryStudyPlan, aiPlan, 0, s.cfg.StudyPlanTTL())
			}
			s.recordCall(ctx, userID, provider, "study_plan", true, false, elapsed, "")
			return aiPlan, nil
		}
		s.recordCall(ctx, userID, provider, "study_plan", false, false, elapsed, aiErr.Error())
		s.logFallback(ctx, provider, "rule-based study plan", aiErr)
	}

	if key != "" {
		if cached := s.cacheLookup(ctx, userID, key, RuleBasedProvider, models.CacheEntryStudyPlan); cached != nil {
			var out models.StudyPlan
			if err := json.Unmarshal(cached.Payload, &out); err == nil {
				return &out, nil
			}
		}
	}
	return s.ruleBasedStudyPlan(ctx, req, userID, key)
}

// ruleBasedStudyPlan runs the terminal planner and records the attempt
func (s *EngineService) ruleBasedStudyPlan(ctx context.Context, req *models.StudyPlanRequest, userID int, key string) (*models.StudyPlan, error) {
	start := time.Now()
	plan := s.planner.GenerateStudyPlan(ctx, req)
	elapsed := int(time.Since(start).Milliseconds())

	if key != "" {
		s.storeResult(ctx, userID, key, RuleBasedProvider, models.CacheEntryStudyPlan, plan, 0, s.cfg.StudyPlanTTL())
	}
	s.recordCall(ctx, userID, RuleBasedProvider, "study_plan", true, false, elapsed, "")
	return plan, nil
}

// cacheLookup consults the cache under one provider's name, recording the hit.
// Cache failures degrade to a miss; the chain continues behind them.
func (s *EngineService) cacheLookup(ctx context.Context, userID int, key, provider string, entryType models.CacheEntryType) *models.CacheEntry {
	entry, err := s.cache.Get(ctx, key, provider)
	if err != nil {
		s.logger.Warn(ctx, "Cache lookup failed, treating as miss", map[string]interface{}{
			"cache_key": key,
			"provider":  provider,
			"error":     err.Error(),
		})
		return nil
	}
	if entry == nil {
		return nil
	}
	s.recordCall(ctx, userID, provider, string(entryType), true, true, 0, "")
	return entry
}

// storeResult caches a freshly generated payload. Write failures are logged
// and swallowed; the result is already in hand.
func (s *EngineService) storeResult(ctx context.Context, userID int, key, provider string, entryType models.CacheEntryType, payload interface{}, confidence int, ttl time.Duration) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error(ctx, "Failed to serialize result for caching", err, map[string]interface{}{"cache_key": key})
		return
	}
	entry := &models.CacheEntry{
		Key:        key,
		UserID:     userID,
		Type:       entryType,
		Provider:   provider,
		Payload:    raw,
		Confidence: confidence,
		ExpiresAt:  time.Now().UTC().Add(ttl),
	}
	if err := s.cache.Put(ctx, entry); err != nil {
		s.logger.Warn(ctx, "Failed to cache result", map[string]interface{}{
			"cache_key": key,
			"provider":  provider,
			"error":     err.Error(),
		})
	}
}

// recordCall appends one provider-call record, never failing the request over it
func (s *EngineService) recordCall(ctx context.Context, userID int, provider, endpoint string, success, cacheHit bool, elapsedMs int, errMsg string) {
	rec := &models.ProviderCallRecord{
		UserID:         userID,
		Provider:       provider,
		Endpoint:       endpoint,
		Success:        success,
		CacheHit:       cacheHit,
		ResponseTimeMs: elapsedMs,
		ErrorMessage:   errMsg,
	}
	if err := s.callLog.Record(ctx, rec); err != nil {
		s.logger.Warn(ctx, "Failed to record provider call", map[string]interface{}{
			"provider": provider,
			"error":    err.Error(),
		})
	}
}

// CacheStats aggregates the provider-call log from a point in time forward.
// A zero userID covers every user.
func (s *EngineService) CacheStats(ctx context.Context, since time.Time, userID int) (*models.ProviderCallStats, error) {
	return s.callLog.Stats(ctx, since, userID)
}

// InvalidateUserCache drops the user's expired entries of both types,
// returning the total removed. A zero userID sweeps every user.
func (s *EngineService) InvalidateUserCache(ctx context.Context, userID int) (int, error) {
	recs, err := s.cache.Cleanup(ctx, userID, models.CacheEntryRecommendations)
	if err != nil {
		return 0, err
	}
	plans, err := s.cache.Cleanup(ctx, userID, models.CacheEntryStudyPlan)
	if err != nil {
		return recs, err
	}
	return recs + plans, nil
}

// averageConfidence summarizes a set's confidence for cache bookkeeping
func averageConfidence(set *models.RecommendationSet) int {
	if set == nil || len(set.Recommendations) == 0 {
		return 0
	}
	total := 0
	for _, r := range set.Recommendations {
		total += r.Confidence
	}
	return total / len(set.Recommendations)
}
