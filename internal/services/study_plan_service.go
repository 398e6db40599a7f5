package services

import (
	"context"
	"fmt"
	"time"

	"studyrec/internal/config"
	"studyrec/internal/models"
	"studyrec/internal/observability"
)

// Per-tier split of study time across review, practice, and new material.
// Each allocation sums to exactly 100.
var tierTimeAllocation = map[models.DifficultyTier]map[string]int{
	models.TierBeginner:     {"review": 50, "practice": 30, "new": 20},
	models.TierIntermediate: {"review": 30, "practice": 40, "new": 30},
	models.TierAdvanced:     {"review": 15, "practice": 35, "new": 50},
}

// StudyPlanServiceInterface defines the interface for rule-based study plan generation
type StudyPlanServiceInterface interface {
	GenerateStudyPlan(ctx context.Context, req *models.StudyPlanRequest) *models.StudyPlan
}

// StudyPlanService builds structured study plans from a single quiz context.
// Like recommendation generation it is deterministic and never fails.
type StudyPlanService struct {
	cfg    *config.Config
	logger *observability.Logger
}

// NewStudyPlanService creates a new rule-based study plan service
func NewStudyPlanService(cfg *config.Config, logger *observability.Logger) *StudyPlanService {
	return &StudyPlanService{cfg: cfg, logger: logger}
}

// GenerateStudyPlan derives a tier from the quiz result and assembles focus
// areas, ordered steps, a time split, weekly goals, and resource buckets
func (s *StudyPlanService) GenerateStudyPlan(ctx context.Context, req *models.StudyPlanRequest) (plan *models.StudyPlan) {
	ctx, span := observability.TraceStudyPlanFunction(ctx, "generate_study_plan",
		observability.AttributeUserID(req.UserID),
		observability.AttributeCourseID(req.Context.CourseID),
	)
	defer span.End()

	scorePct := 0.0
	if req.Context.TotalQuestions > 0 {
		scorePct = 100 * float64(req.Context.Score) / float64(req.Context.TotalQuestions)
	}
	tier := planTier(scorePct)

	focusAreas := s.focusAreas(ctx, req, tier)
	allocation := make(map[string]int, len(tierTimeAllocation[tier]))
	for k, v := range tierTimeAllocation[tier] {
		allocation[k] = v
	}

	sessionMinutes := req.User.SessionMinutes
	if sessionMinutes <= 0 {
		sessionMinutes = 45
	}

	plan = &models.StudyPlan{
		Difficulty:     tier,
		Steps:          buildSteps(focusAreas, allocation, sessionMinutes),
		FocusAreas:     focusAreas,
		TimeAllocation: allocation,
		WeeklyGoals:    weeklyGoals(tier, scorePct, focusAreas),
		Resources:      planResources(focusAreas, tier),
		Provider:       RuleBasedProvider,
		GeneratedAt:    time.Now().UTC(),
	}

	span.SetAttributes(observability.AttributeTier(string(tier)))
	return plan
}

// planTier maps a single quiz score onto the three plan tiers
func planTier(scorePct float64) models.DifficultyTier {
	switch {
	case scorePct < 40:
		return models.TierBeginner
	case scorePct < 70:
		return models.TierIntermediate
	default:
		return models.TierAdvanced
	}
}

// focusAreas picks what the plan should concentrate on: detected learning gaps
// when attempt detail is available, the quiz's weakness labels otherwise, and a
// tier-generic fallback when the quiz carries no topical signal at all
func (s *StudyPlanService) focusAreas(ctx context.Context, req *models.StudyPlanRequest, tier models.DifficultyTier) []string {
	if len(req.Context.Attempts) > 0 {
		analyzer := NewPerformanceService(s.cfg, s.logger)
		profile := analyzer.AnalyzeCoursePerformance(ctx, req.Context.Attempts, req.Context.CourseID)
		if len(profile.LearningGaps) > 0 {
			return profile.LearningGaps
		}
	}

	seen := map[string]bool{}
	var areas []string
	for _, a := range req.Context.Attempts {
		for _, w := range a.Weaknesses {
			if !seen[w] {
				seen[w] = true
				areas = append(areas, w)
			}
		}
	}
	if len(areas) > config.MaxLearningGaps {
		areas = areas[:config.MaxLearningGaps]
	}
	if len(areas) > 0 {
		return areas
	}

	switch tier {
	case models.TierBeginner:
		return []string{"core concepts", "terminology"}
	case models.TierAdvanced:
		return []string{"applied problems", "edge cases"}
	default:
		return []string{"problem solving", "concept review"}
	}
}

// buildSteps turns focus areas plus the time split into an ordered session plan
func buildSteps(focusAreas []string, allocation map[string]int, sessionMinutes int) []models.StudyPlanStep {
	steps := []models.StudyPlanStep{
		{
			Order:       1,
			Title:       "Review recent material",
			Description: fmt.Sprintf("Revisit notes and worked examples covering: %s", joinAreas(focusAreas)),
			FocusArea:   firstArea(focusAreas),
			Minutes:     sessionMinutes * allocation["review"] / 100,
		},
		{
			Order:       2,
			Title:       "Targeted practice",
			Description: "Work problems in your weakest areas before moving to anything new",
			FocusArea:   firstArea(focusAreas),
			Minutes:     sessionMinutes * allocation["practice"] / 100,
		},
		{
			Order:       3,
			Title:       "New material",
			Description: "Read ahead into the next unit once review and practice are done",
			Minutes:     sessionMinutes * allocation["new"] / 100,
		},
		{
			Order:       4,
			Title:       "Self-check",
			Description: "Close the session with a short recall check on what you practiced",
			Minutes:     5,
		},
	}
	return steps
}

// weeklyGoals phrases goals appropriate to the tier and the result that placed
// the learner there
func weeklyGoals(tier models.DifficultyTier, scorePct float64, focusAreas []string) []string {
	goals := []string{
		fmt.Sprintf("Complete at least three study sessions focused on %s", joinAreas(focusAreas)),
	}
	switch tier {
	case models.TierBeginner:
		goals = append(goals,
			fmt.Sprintf("Raise your quiz score above %.0f%% on a retake", scorePct+15),
			"Explain each core concept in your own words without notes",
		)
	case models.TierAdvanced:
		goals = append(goals,
			"Attempt one problem set above your current difficulty",
			"Maintain your score while reducing time per question",
		)
	default:
		goals = append(goals,
			"Retake the quiz and close at least one weak area",
			"Finish the practice problems for the current unit",
		)
	}
	return goals
}

// planResources buckets suggested resource kinds by how they serve the plan
func planResources(focusAreas []string, tier models.DifficultyTier) models.StudyPlanResources {
	res := models.StudyPlanResources{
		Review:   []string{"Course notes and lecture recordings"},
		Practice: []string{"Unit practice quizzes"},
		New:      []string{"Next unit's introductory reading"},
	}
	for _, area := range focusAreas {
		res.Review = append(res.Review, fmt.Sprintf("Reference material on %s", area))
		res.Practice = append(res.Practice, fmt.Sprintf("Exercises on %s", area))
	}
	if tier == models.TierAdvanced {
		res.New = append(res.New, "An advanced project applying the unit's material")
	}
	return res
}

func joinAreas(areas []string) string {
	if len(areas) == 0 {
		return "the current unit"
	}
	out := areas[0]
	for _, a := range areas[1:] {
		out += ", " + a
	}
	return out
}

func firstArea(areas []string) string {
	if len(areas) == 0 {
		return ""
	}
	return areas[0]
}
