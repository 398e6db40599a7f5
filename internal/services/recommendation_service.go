package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"studyrec/internal/config"
	"studyrec/internal/models"
	"studyrec/internal/observability"
	"studyrec/internal/serviceinterfaces"
)

// RuleBasedProvider names the deterministic generator in cache keys and call records
const RuleBasedProvider = "rule-based"

// DefaultProvider names the terminal static fallback in call records
const DefaultProvider = "default"

// Tag vocabularies the strategies select on
var (
	foundationalTags = []string{"basics", "fundamentals", "introduction", "beginner"}
	practiceTags     = []string{"practice", "exercise", "quiz", "problem"}
	advancedTags     = []string{"advanced", "expert", "mastery", "deep-dive"}
	excludedGapTags  = []string{"advanced", "expert"}
)

// milestone pairs a named learning-path milestone with the tags that satisfy it
type milestone struct {
	name models.LearningPath
	tags []string
}

var milestones = []milestone{
	{name: "master-basics", tags: []string{"basics", "fundamentals"}},
	{name: "build-confidence", tags: []string{"practice", "intermediate"}},
	{name: "advance-skills", tags: []string{"advanced", "project"}},
}

// RecommendationServiceInterface defines the interface for rule-based recommendation generation
type RecommendationServiceInterface interface {
	GenerateRecommendations(ctx context.Context, req *models.RecommendationRequest) *models.RecommendationSet
	ScoreCandidate(resource *models.Resource, profile *models.PerformanceProfile, user *models.UserProfile) int
	RankAndSelect(candidates []models.RecommendationCandidate) []models.RecommendationCandidate
}

// RecommendationService produces scored, ranked recommendation candidates from
// the resource pool. Generation is deterministic for identical input and never
// fails: every degradation path ends at the static default set.
type RecommendationService struct {
	cfg     *config.Config
	catalog serviceinterfaces.CourseCatalog
	pool    serviceinterfaces.ResourcePool
	logger  *observability.Logger
}

// NewRecommendationService creates a new rule-based recommendation service
func NewRecommendationService(cfg *config.Config, catalog serviceinterfaces.CourseCatalog, pool serviceinterfaces.ResourcePool, logger *observability.Logger) *RecommendationService {
	return &RecommendationService{
		cfg:     cfg,
		catalog: catalog,
		pool:    pool,
		logger:  logger,
	}
}

// GenerateRecommendations runs every applicable strategy, scores the
// candidates, and returns the ranked, bounded set
func (s *RecommendationService) GenerateRecommendations(ctx context.Context, req *models.RecommendationRequest) *models.RecommendationSet {
	ctx, span := observability.TraceRecommendationFunction(ctx, "generate_recommendations",
		observability.AttributeUserID(req.UserID),
		observability.AttributeCourseID(req.CourseID),
		observability.AttributeAttemptCount(len(req.Attempts)),
	)
	defer span.End()

	analyzer := NewPerformanceService(s.cfg, s.logger)
	profile := analyzer.AnalyzeCoursePerformance(ctx, req.Attempts, req.CourseID)
	tier := analyzer.SuggestDifficultyTier(profile, req.User.PreferredDifficulty)

	var candidates []models.RecommendationCandidate

	resources := s.courseResources(ctx, req.CourseID)
	if len(resources) > 0 && profile.HasData() {
		candidates = append(candidates, s.foundationalStrategy(profile, resources)...)
		candidates = append(candidates, s.practiceStrategy(profile, tier, resources)...)
		candidates = append(candidates, s.advancedStrategy(profile, resources)...)
		candidates = append(candidates, s.gapFillingStrategy(profile, resources)...)
		candidates = append(candidates, s.pathProgressionStrategy(profile, resources)...)

		// Score the resource-backed candidates; strategy-local fixed
		// confidences were already assigned above where applicable
		for i := range candidates {
			if candidates[i].Confidence == 0 {
				if r := findResourceByTitle(resources, candidates[i].Title); r != nil {
					candidates[i].Confidence = s.ScoreCandidate(r, profile, &req.User)
				} else {
					candidates[i].Confidence = s.ScoreCandidate(&models.Resource{}, profile, &req.User)
				}
			}
		}
	} else if len(req.Attempts) > 0 {
		// Cross-course path: no usable course pool, fall back to the
		// attempts' own strength/weakness labels
		candidates = append(candidates, s.weakAreaStrategy(req.Attempts)...)
		candidates = append(candidates, s.strongAreaStrategy(req.Attempts)...)
		candidates = append(candidates, s.programCoreStrategy(ctx, req.ProgramID, req.CourseID)...)
	}

	if len(candidates) == 0 {
		candidates = defaultRecommendations()
	}

	ranked := s.RankAndSelect(candidates)
	span.SetAttributes(
		observability.AttributeCandidateCount(len(ranked)),
		observability.AttributeTier(string(tier)),
	)

	return &models.RecommendationSet{
		Recommendations: ranked,
		Provider:        RuleBasedProvider,
		GeneratedAt:     time.Now().UTC(),
	}
}

// courseResources fetches the pool for a course, degrading to nil on any failure
func (s *RecommendationService) courseResources(ctx context.Context, courseID string) []models.Resource {
	if courseID == "" || s.pool == nil {
		return nil
	}
	resources, err := s.pool.GetResourcesForCourse(ctx, courseID)
	if err != nil {
		s.logger.Warn(ctx, "Resource pool lookup failed, degrading to cross-course strategies", map[string]interface{}{
			"course_id": courseID,
			"error":     err.Error(),
		})
		return nil
	}
	return resources
}

// foundationalStrategy recommends fundamentals when the overall score is weak
func (s *RecommendationService) foundationalStrategy(profile *models.PerformanceProfile, resources []models.Resource) []models.RecommendationCandidate {
	if profile.OverallScorePct >= 50 {
		return nil
	}

	pool := filterByTags(resources, foundationalTags)
	if len(pool) == 0 {
		return nil
	}

	// Prefer foundational resources that touch a detected gap; fall back to
	// the full foundational pool when nothing intersects
	preferred := filterByTags(pool, profile.LearningGaps)
	if len(preferred) == 0 {
		preferred = pool
	}

	out := make([]models.RecommendationCandidate, 0, 2)
	for i, r := range preferred {
		if i >= 2 {
			break
		}
		out = append(out, models.RecommendationCandidate{
			Title:            r.Title,
			Description:      fmt.Sprintf("Rebuild the fundamentals with %s", r.Title),
			ResourceType:     r.Type,
			Difficulty:       string(models.TierBeginner),
			URL:              r.URL,
			Reasoning:        fmt.Sprintf("Overall score %.0f%% suggests revisiting the basics before moving on", profile.OverallScorePct),
			Priority:         1 + i,
			EstimatedMinutes: r.DurationMinutes,
			Tags:             r.Tags,
			LearningPath:     models.PathFoundational,
		})
	}
	return out
}

// practiceStrategy recommends tier-matched practice material
func (s *RecommendationService) practiceStrategy(profile *models.PerformanceProfile, tier models.DifficultyTier, resources []models.Resource) []models.RecommendationCandidate {
	pool := make([]models.Resource, 0, len(resources))
	for _, r := range resources {
		if r.HasAnyTag(practiceTags...) && (r.HasTag(string(tier)) || r.HasTag(string(models.TierIntermediate))) {
			pool = append(pool, r)
		}
	}
	if len(pool) == 0 {
		return nil
	}

	preferred := filterByTags(pool, profile.LearningGaps)
	if len(preferred) == 0 {
		preferred = pool
	}

	out := make([]models.RecommendationCandidate, 0, 2)
	for i, r := range preferred {
		if i >= 2 {
			break
		}
		out = append(out, models.RecommendationCandidate{
			Title:            r.Title,
			Description:      fmt.Sprintf("Targeted practice: %s", r.Title),
			ResourceType:     r.Type,
			Difficulty:       string(tier),
			URL:              r.URL,
			Reasoning:        fmt.Sprintf("Practice at the %s tier keeps difficulty adaptive to recent results", tier),
			Priority:         2 + i,
			EstimatedMinutes: r.DurationMinutes,
			Tags:             r.Tags,
			LearningPath:     models.PathPractice,
		})
	}
	return out
}

// advancedStrategy offers one stretch resource to strong performers
func (s *RecommendationService) advancedStrategy(profile *models.PerformanceProfile, resources []models.Resource) []models.RecommendationCandidate {
	if profile.OverallScorePct <= 70 {
		return nil
	}

	pool := filterByTags(resources, advancedTags)
	if len(pool) == 0 {
		return nil
	}

	r := pool[0]
	return []models.RecommendationCandidate{{
		Title:            r.Title,
		Description:      fmt.Sprintf("Stretch goal: %s", r.Title),
		ResourceType:     r.Type,
		Difficulty:       string(models.TierAdvanced),
		URL:              r.URL,
		Reasoning:        fmt.Sprintf("Overall score %.0f%% leaves room to push into advanced material", profile.OverallScorePct),
		Priority:         3,
		EstimatedMinutes: r.DurationMinutes,
		Tags:             r.Tags,
		LearningPath:     models.PathAdvanced,
		Prerequisites:    []string{"intermediate-knowledge"},
	}}
}

// gapFillingStrategy picks one non-advanced resource per detected learning gap
func (s *RecommendationService) gapFillingStrategy(profile *models.PerformanceProfile, resources []models.Resource) []models.RecommendationCandidate {
	out := make([]models.RecommendationCandidate, 0, len(profile.LearningGaps))
	for i, gap := range profile.LearningGaps {
		for _, r := range resources {
			if !r.HasTag(gap) || r.HasAnyTag(excludedGapTags...) {
				continue
			}
			out = append(out, models.RecommendationCandidate{
				Title:            r.Title,
				Description:      fmt.Sprintf("Close the gap in %s with %s", gap, r.Title),
				ResourceType:     r.Type,
				Difficulty:       string(models.TierIntermediate),
				URL:              r.URL,
				Reasoning:        fmt.Sprintf("Questions tagged %q scored below 60%%", gap),
				Priority:         3 + i,
				EstimatedMinutes: r.DurationMinutes,
				Tags:             r.Tags,
				LearningPath:     models.PathGapFilling,
			})
			break
		}
	}
	return out
}

// pathProgressionStrategy picks the milestone matching the overall score and
// one resource satisfying its tag set
func (s *RecommendationService) pathProgressionStrategy(profile *models.PerformanceProfile, resources []models.Resource) []models.RecommendationCandidate {
	m := milestones[2]
	switch {
	case profile.OverallScorePct < 50:
		m = milestones[0]
	case profile.OverallScorePct < 70:
		m = milestones[1]
	}

	pool := filterByTags(resources, m.tags)
	if len(pool) == 0 {
		return nil
	}

	r := pool[0]
	return []models.RecommendationCandidate{{
		Title:            r.Title,
		Description:      fmt.Sprintf("Next milestone: %s", m.name),
		ResourceType:     r.Type,
		Difficulty:       string(models.TierIntermediate),
		URL:              r.URL,
		Reasoning:        fmt.Sprintf("Progressing the learning path toward %q", m.name),
		Priority:         4,
		EstimatedMinutes: r.DurationMinutes,
		Tags:             r.Tags,
		LearningPath:     m.name,
	}}
}

// topicFrequency ranks topics by how often attempts label them
type topicFrequency struct {
	topic string
	count int
}

func rankTopicsByFrequency(attempts []models.QuizAttempt, weak bool) []topicFrequency {
	counts := map[string]int{}
	for _, a := range attempts {
		labels := a.Strengths
		if weak {
			labels = a.Weaknesses
		}
		for _, topic := range labels {
			counts[topic]++
		}
	}
	ranked := make([]topicFrequency, 0, len(counts))
	for topic, count := range counts {
		ranked = append(ranked, topicFrequency{topic: topic, count: count})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].topic < ranked[j].topic
	})
	return ranked
}

// weakAreaStrategy emits two remediation candidates per frequently-weak topic
func (s *RecommendationService) weakAreaStrategy(attempts []models.QuizAttempt) []models.RecommendationCandidate {
	ranked := rankTopicsByFrequency(attempts, true)
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}

	var out []models.RecommendationCandidate
	for _, tf := range ranked {
		out = append(out,
			models.RecommendationCandidate{
				Title:        fmt.Sprintf("Review the fundamentals of %s", tf.topic),
				Description:  fmt.Sprintf("A structured refresher on %s, flagged as a weakness in %d quiz(es)", tf.topic, tf.count),
				ResourceType: "tutorial",
				Difficulty:   string(models.TierBeginnerIntermediate),
				Reasoning:    fmt.Sprintf("%q appears repeatedly among quiz weaknesses", tf.topic),
				Priority:     1,
				Tags:         []string{tf.topic},
				Confidence:   85,
				LearningPath: models.PathRemediation,
			},
			models.RecommendationCandidate{
				Title:        fmt.Sprintf("Practice problems: %s", tf.topic),
				Description:  fmt.Sprintf("Exercises targeting %s to turn review into recall", tf.topic),
				ResourceType: "exercise",
				Difficulty:   string(models.TierIntermediate),
				Reasoning:    fmt.Sprintf("Reinforces the %s refresher with applied work", tf.topic),
				Priority:     2,
				Tags:         []string{tf.topic, "practice"},
				Confidence:   85,
				LearningPath: models.PathRemediation,
			},
		)
	}
	return out
}

// strongAreaStrategy emits one advancement candidate per frequently-strong topic
func (s *RecommendationService) strongAreaStrategy(attempts []models.QuizAttempt) []models.RecommendationCandidate {
	ranked := rankTopicsByFrequency(attempts, false)
	if len(ranked) > 2 {
		ranked = ranked[:2]
	}

	var out []models.RecommendationCandidate
	for _, tf := range ranked {
		out = append(out, models.RecommendationCandidate{
			Title:        fmt.Sprintf("Go deeper into %s", tf.topic),
			Description:  fmt.Sprintf("Advanced material building on demonstrated strength in %s", tf.topic),
			ResourceType: "course",
			Difficulty:   string(models.TierIntermediateAdvanced),
			Reasoning:    fmt.Sprintf("%q appears repeatedly among quiz strengths", tf.topic),
			Priority:     3,
			Tags:         []string{tf.topic, "advanced"},
			Confidence:   90,
			LearningPath: models.PathAdvancement,
		})
	}
	return out
}

// programCoreStrategy emits program-wide candidates from the catalog's course topics
func (s *RecommendationService) programCoreStrategy(ctx context.Context, programID, courseID string) []models.RecommendationCandidate {
	if s.catalog == nil || programID == "" || courseID == "" {
		return nil
	}
	course, err := s.catalog.GetCourseByID(ctx, programID, courseID)
	if err != nil || course == nil {
		return nil
	}

	var out []models.RecommendationCandidate
	for i, topic := range course.Topics {
		if i >= 2 {
			break
		}
		out = append(out, models.RecommendationCandidate{
			Title:        fmt.Sprintf("Core %s: %s", course.Title, topic),
			Description:  fmt.Sprintf("Program-core coverage of %s from %s", topic, course.Title),
			ResourceType: "course",
			Difficulty:   string(models.TierIntermediate),
			Reasoning:    fmt.Sprintf("%q is core program material for %s", topic, course.Title),
			Priority:     2 + i,
			Tags:         []string{topic},
			Confidence:   80,
			LearningPath: models.PathProgramCore,
		})
	}
	return out
}

// defaultRecommendations is the terminal fallback: always non-empty, never course-specific
func defaultRecommendations() []models.RecommendationCandidate {
	return []models.RecommendationCandidate{
		{
			Title:        "Review your course materials",
			Description:  "Revisit the lecture notes and readings for your current unit",
			ResourceType: "reading",
			Difficulty:   string(models.TierBeginner),
			Reasoning:    "Not enough quiz data yet to personalize recommendations",
			Priority:     1,
			Confidence:   70,
			LearningPath: models.PathFoundational,
		},
		{
			Title:        "Take a practice quiz",
			Description:  "A short practice quiz gives the engine performance data to work from",
			ResourceType: "quiz",
			Difficulty:   string(models.TierBeginnerIntermediate),
			Reasoning:    "More attempts sharpen future recommendations",
			Priority:     2,
			Confidence:   65,
			LearningPath: models.PathPractice,
		},
		{
			Title:        "Set a weekly study schedule",
			Description:  "Consistent short sessions outperform cramming",
			ResourceType: "article",
			Difficulty:   string(models.TierBeginner),
			Reasoning:    "General study habit guidance while data accumulates",
			Priority:     3,
			Confidence:   60,
			LearningPath: models.PathFoundational,
		},
	}
}

// ScoreCandidate assigns a 0-100 confidence from resource quality, style
// match, gap match, and time-budget fit
func (s *RecommendationService) ScoreCandidate(resource *models.Resource, profile *models.PerformanceProfile, user *models.UserProfile) int {
	score := 50

	if resource != nil {
		if resource.Rating > 4.0 {
			score += 20
		}
		if resource.Views > 1000 {
			score += 10
		}
		if user != nil && user.LearningStyle != "" && strings.EqualFold(resource.Type, user.LearningStyle) {
			score += 15
		}
		if profile != nil && resource.HasAnyTag(profile.LearningGaps...) {
			score += 15
		}
		if user != nil && user.SessionMinutes > 0 && resource.DurationMinutes > 0 && resource.DurationMinutes <= user.SessionMinutes {
			score += 10
		}
	}
	if profile != nil && profile.ConfidenceLevel > 70 {
		score += 10
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// RankAndSelect orders candidates by priority then confidence and truncates
// to the configured output bound. The sort is stable so equal keys keep their
// generation order, keeping output reproducible for identical input.
func (s *RecommendationService) RankAndSelect(candidates []models.RecommendationCandidate) []models.RecommendationCandidate {
	ranked := make([]models.RecommendationCandidate, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Priority != ranked[j].Priority {
			return ranked[i].Priority < ranked[j].Priority
		}
		return ranked[i].Confidence > ranked[j].Confidence
	})

	maxOut := config.DefaultMaxRecommendations
	if s != nil && s.cfg != nil {
		maxOut = s.cfg.MaxRecommendations()
	}
	if len(ranked) > maxOut {
		ranked = ranked[:maxOut]
	}
	return ranked
}

// filterByTags returns the resources carrying at least one of the given tags,
// preserving pool order
func filterByTags(resources []models.Resource, tags []string) []models.Resource {
	if len(tags) == 0 {
		return nil
	}
	out := make([]models.Resource, 0, len(resources))
	for _, r := range resources {
		if r.HasAnyTag(tags...) {
			out = append(out, r)
		}
	}
	return out
}

// findResourceByTitle resolves a candidate back to its source resource for scoring
func findResourceByTitle(resources []models.Resource, title string) *models.Resource {
	for i := range resources {
		if resources[i].Title == title {
			return &resources[i]
		}
	}
	return nil
}
