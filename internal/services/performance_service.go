// Package services provides the business logic for the recommendation engine.
package services

import (
	"context"
	"sort"

	"studyrec/internal/config"
	"studyrec/internal/models"
	"studyrec/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// PerformanceServiceInterface defines the interface for quiz performance analysis
type PerformanceServiceInterface interface {
	AnalyzePerformance(ctx context.Context, attempts []models.QuizAttempt) *models.PerformanceProfile
	AnalyzeCoursePerformance(ctx context.Context, attempts []models.QuizAttempt, courseID string) *models.PerformanceProfile
	SuggestDifficultyTier(profile *models.PerformanceProfile, preferred models.DifficultyTier) models.DifficultyTier
}

// PerformanceService aggregates raw quiz attempts into a performance profile
// and derives the adaptive difficulty tier. It never fails: missing or
// malformed input degrades to zero values.
type PerformanceService struct {
	cfg    *config.Config
	logger *observability.Logger
}

// NewPerformanceService creates a new performance analysis service
func NewPerformanceService(cfg *config.Config, logger *observability.Logger) *PerformanceService {
	return &PerformanceService{
		cfg:    cfg,
		logger: logger,
	}
}

// tagScore pairs a topic with its accumulated score percentage for sorting
type tagScore struct {
	tag   string
	score float64
}

// AnalyzePerformance builds a performance profile from all given attempts
func (s *PerformanceService) AnalyzePerformance(ctx context.Context, attempts []models.QuizAttempt) *models.PerformanceProfile {
	return s.AnalyzeCoursePerformance(ctx, attempts, "")
}

// AnalyzeCoursePerformance builds a performance profile from attempts,
// optionally filtered to a single course
func (s *PerformanceService) AnalyzeCoursePerformance(ctx context.Context, attempts []models.QuizAttempt, courseID string) *models.PerformanceProfile {
	_, span := observability.TraceAnalysisFunction(ctx, "analyze_performance",
		observability.AttributeAttemptCount(len(attempts)),
		observability.AttributeCourseID(courseID),
	)
	defer span.End()

	if courseID != "" {
		filtered := make([]models.QuizAttempt, 0, len(attempts))
		for _, a := range attempts {
			if a.CourseID == courseID {
				filtered = append(filtered, a)
			}
		}
		attempts = filtered
	}

	profile := &models.PerformanceProfile{
		TopicScorePct:      map[string]float64{},
		DifficultyScorePct: map[models.Difficulty]float64{},
		LearningGaps:       []string{},
		Strengths:          []string{},
	}

	if len(attempts) == 0 {
		span.SetAttributes(attribute.Bool("profile.empty", true))
		return profile
	}

	var sumScore, sumTotal int
	for _, a := range attempts {
		sumScore += a.Score
		sumTotal += a.Total
	}
	if sumTotal > 0 {
		profile.OverallScorePct = 100 * float64(sumScore) / float64(sumTotal)
	}

	// Per-question counters across all attempts
	tagCorrect := map[string]int{}
	tagTotal := map[string]int{}
	diffCorrect := map[models.Difficulty]int{}
	diffTotal := map[models.Difficulty]int{}
	totalQuestions := 0
	totalTimeSeconds := 0
	hasDetails := false

	for _, a := range attempts {
		for _, q := range a.QuestionDetails {
			hasDetails = true
			totalQuestions++
			totalTimeSeconds += q.TimeSpentSeconds

			for _, tag := range q.Tags {
				tagTotal[tag]++
				if q.IsCorrect {
					tagCorrect[tag]++
				}
			}
			if q.Difficulty != "" {
				diffTotal[q.Difficulty]++
				if q.IsCorrect {
					diffCorrect[q.Difficulty]++
				}
			}

			if q.TimeSpentSeconds < config.RushedSecondsMax && !q.IsCorrect {
				profile.RushedCount++
			}
			if q.TimeSpentSeconds > config.OverthoughtSecondsMin && q.IsCorrect {
				profile.OverthoughtCount++
			}
		}
	}

	for tag, total := range tagTotal {
		profile.TopicScorePct[tag] = 100 * float64(tagCorrect[tag]) / float64(total)
	}
	for diff, total := range diffTotal {
		profile.DifficultyScorePct[diff] = 100 * float64(diffCorrect[diff]) / float64(total)
	}

	if totalQuestions > 0 {
		profile.AvgTimePerQuestion = float64(totalTimeSeconds) / float64(totalQuestions)
	}
	if profile.AvgTimePerQuestion > 0 {
		profile.TimeEfficiency = profile.OverallScorePct / (profile.AvgTimePerQuestion / 60)
	}

	profile.LearningGaps = collectGaps(profile.TopicScorePct)
	profile.Strengths = collectStrengths(profile.TopicScorePct)

	// Coarse data-sufficiency heuristic, not a statistical confidence interval
	confidence := 20 * len(attempts)
	if hasDetails {
		confidence += 30
	}
	if profile.OverallScorePct > 0 {
		confidence += 20
	}
	if totalQuestions > 10 {
		confidence += 30
	}
	if confidence > 100 {
		confidence = 100
	}
	profile.ConfidenceLevel = confidence

	span.SetAttributes(
		attribute.Float64("profile.overall_score_pct", profile.OverallScorePct),
		attribute.Int("profile.confidence_level", profile.ConfidenceLevel),
		attribute.Int("profile.learning_gaps", len(profile.LearningGaps)),
	)

	return profile
}

// collectGaps returns topics scoring below the gap threshold, worst first, capped
func collectGaps(topicScores map[string]float64) []string {
	gaps := make([]tagScore, 0, len(topicScores))
	for tag, score := range topicScores {
		if score < config.GapScoreThreshold {
			gaps = append(gaps, tagScore{tag: tag, score: score})
		}
	}
	sort.SliceStable(gaps, func(i, j int) bool {
		if gaps[i].score != gaps[j].score {
			return gaps[i].score < gaps[j].score
		}
		return gaps[i].tag < gaps[j].tag
	})
	if len(gaps) > config.MaxLearningGaps {
		gaps = gaps[:config.MaxLearningGaps]
	}
	out := make([]string, len(gaps))
	for i, g := range gaps {
		out[i] = g.tag
	}
	return out
}

// collectStrengths returns topics scoring above the strength threshold, best first, capped
func collectStrengths(topicScores map[string]float64) []string {
	strengths := make([]tagScore, 0, len(topicScores))
	for tag, score := range topicScores {
		if score > config.StrengthScoreThreshold {
			strengths = append(strengths, tagScore{tag: tag, score: score})
		}
	}
	sort.SliceStable(strengths, func(i, j int) bool {
		if strengths[i].score != strengths[j].score {
			return strengths[i].score > strengths[j].score
		}
		return strengths[i].tag < strengths[j].tag
	})
	if len(strengths) > config.MaxStrengths {
		strengths = strengths[:config.MaxStrengths]
	}
	out := make([]string, len(strengths))
	for i, s := range strengths {
		out[i] = s.tag
	}
	return out
}

// tierOrder maps tiers to their position for comparison and stepping
var tierOrder = []models.DifficultyTier{
	models.TierBeginner,
	models.TierBeginnerIntermediate,
	models.TierIntermediate,
	models.TierIntermediateAdvanced,
	models.TierAdvanced,
}

func tierIndex(tier models.DifficultyTier) int {
	for i, t := range tierOrder {
		if t == tier {
			return i
		}
	}
	return -1
}

func stepTierUp(tier models.DifficultyTier) models.DifficultyTier {
	idx := tierIndex(tier)
	if idx < 0 || idx >= len(tierOrder)-1 {
		return tier
	}
	return tierOrder[idx+1]
}

// SuggestDifficultyTier maps a performance profile and the user's stated
// preference to an adaptive difficulty tier. The preference rules run first
// and step the base tier by at most one notch; a high time-efficiency signal
// then promotes the adjusted tier by one more notch.
func (s *PerformanceService) SuggestDifficultyTier(profile *models.PerformanceProfile, preferred models.DifficultyTier) models.DifficultyTier {
	base := models.TierAdvanced
	switch {
	case profile == nil || profile.OverallScorePct < 40:
		base = models.TierBeginner
	case profile.OverallScorePct < 70:
		base = models.TierIntermediate
	}

	tier := base
	if preferred != "" && base == models.TierIntermediate {
		prefIdx := tierIndex(preferred)
		baseIdx := tierIndex(base)
		if prefIdx > baseIdx {
			tier = models.TierIntermediateAdvanced
		} else if prefIdx >= 0 && prefIdx < baseIdx {
			tier = models.TierBeginnerIntermediate
		}
	}

	if profile != nil && profile.TimeEfficiency > 2.0 {
		tier = stepTierUp(tier)
	}

	return tier
}
