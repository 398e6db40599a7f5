// Package models defines data structures used throughout the recommendation engine.
package models

import (
	"encoding/json"
	"time"
)

// Difficulty represents the difficulty of a single question
type Difficulty string

const (
	// DifficultyEasy marks an easy question
	DifficultyEasy Difficulty = "easy"
	// DifficultyMedium marks a medium question
	DifficultyMedium Difficulty = "medium"
	// DifficultyHard marks a hard question
	DifficultyHard Difficulty = "hard"
)

// DifficultyTier is one of the five adaptive levels used to filter resources
// and explain recommendations
type DifficultyTier string

const (
	// TierBeginner is the lowest adaptive tier
	TierBeginner DifficultyTier = "beginner"
	// TierBeginnerIntermediate sits between beginner and intermediate
	TierBeginnerIntermediate DifficultyTier = "beginner-intermediate"
	// TierIntermediate is the middle adaptive tier
	TierIntermediate DifficultyTier = "intermediate"
	// TierIntermediateAdvanced sits between intermediate and advanced
	TierIntermediateAdvanced DifficultyTier = "intermediate-advanced"
	// TierAdvanced is the highest adaptive tier
	TierAdvanced DifficultyTier = "advanced"
)

// LearningPath classifies why a candidate was recommended
type LearningPath string

const (
	// PathFoundational marks recommendations that rebuild fundamentals
	PathFoundational LearningPath = "foundational"
	// PathPractice marks adaptive practice recommendations
	PathPractice LearningPath = "practice"
	// PathAdvanced marks stretch material for strong performers
	PathAdvanced LearningPath = "advanced"
	// PathRemediation marks weak-area remediation recommendations
	PathRemediation LearningPath = "remediation"
	// PathAdvancement marks strong-area advancement recommendations
	PathAdvancement LearningPath = "advancement"
	// PathProgramCore marks program-wide core recommendations
	PathProgramCore LearningPath = "program-core"
	// PathGapFilling marks recommendations targeting a detected learning gap
	PathGapFilling LearningPath = "gap-filling"
)

// QuestionDetail captures per-question outcome data inside a quiz attempt
type QuestionDetail struct {
	QuestionID       string     `json:"question_id" yaml:"question_id"`
	IsCorrect        bool       `json:"is_correct" yaml:"is_correct"`
	TimeSpentSeconds int        `json:"time_spent_seconds" yaml:"time_spent_seconds"`
	Difficulty       Difficulty `json:"difficulty" yaml:"difficulty"`
	Tags             []string   `json:"tags" yaml:"tags"`
}

// QuizAttempt is an immutable record of one quiz taken by a student.
// Produced by the quiz subsystem; the engine only ever reads it.
type QuizAttempt struct {
	QuizID           string           `json:"quiz_id" yaml:"quiz_id"`
	CourseID         string           `json:"course_id" yaml:"course_id"`
	Score            int              `json:"score" yaml:"score"`
	Total            int              `json:"total" yaml:"total"`
	TimeSpentSeconds int              `json:"time_spent_seconds,omitempty" yaml:"time_spent_seconds,omitempty"`
	Strengths        []string         `json:"strengths,omitempty" yaml:"strengths,omitempty"`
	Weaknesses       []string         `json:"weaknesses,omitempty" yaml:"weaknesses,omitempty"`
	QuestionDetails  []QuestionDetail `json:"question_details,omitempty" yaml:"question_details,omitempty"`
}

// PerformanceProfile is the derived view of a student's quiz history.
// Recomputed on every call, never persisted by the engine.
type PerformanceProfile struct {
	OverallScorePct    float64                `json:"overall_score_pct"`
	TopicScorePct      map[string]float64     `json:"topic_score_pct"`
	DifficultyScorePct map[Difficulty]float64 `json:"difficulty_score_pct"`
	AvgTimePerQuestion float64                `json:"avg_time_per_question"`
	TimeEfficiency     float64                `json:"time_efficiency"`
	RushedCount        int                    `json:"rushed_count"`
	OverthoughtCount   int                    `json:"overthought_count"`
	LearningGaps       []string               `json:"learning_gaps"`
	Strengths          []string               `json:"strengths"`
	ConfidenceLevel    int                    `json:"confidence_level"`
}

// HasData reports whether the profile was built from at least one attempt
func (p *PerformanceProfile) HasData() bool {
	return p != nil && (p.OverallScorePct > 0 || len(p.TopicScorePct) > 0 || p.ConfidenceLevel > 0)
}

// UserProfile carries the stated preferences the engine scores against
type UserProfile struct {
	UserID              int            `json:"user_id" yaml:"user_id"`
	LearningStyle       string         `json:"learning_style,omitempty" yaml:"learning_style,omitempty"`
	PreferredDifficulty DifficultyTier `json:"preferred_difficulty,omitempty" yaml:"preferred_difficulty,omitempty"`
	SessionMinutes      int            `json:"session_minutes,omitempty" yaml:"session_minutes,omitempty"`
}

// Resource is a learning resource from the course catalog (external collaborator)
type Resource struct {
	Title           string   `json:"title" yaml:"title"`
	Type            string   `json:"type" yaml:"type"`
	URL             string   `json:"url" yaml:"url"`
	Rating          float64  `json:"rating" yaml:"rating"`
	Views           int      `json:"views,omitempty" yaml:"views,omitempty"`
	DurationMinutes int      `json:"duration_minutes" yaml:"duration_minutes"`
	Tags            []string `json:"tags" yaml:"tags"`
}

// HasTag reports whether the resource carries the given tag
func (r *Resource) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the resource carries at least one of the given tags
func (r *Resource) HasAnyTag(tags ...string) bool {
	for _, tag := range tags {
		if r.HasTag(tag) {
			return true
		}
	}
	return false
}

// Course is a catalog entry (external collaborator data)
type Course struct {
	ID        string   `json:"id" yaml:"id"`
	ProgramID string   `json:"program_id" yaml:"program_id"`
	Title     string   `json:"title" yaml:"title"`
	Topics    []string `json:"topics,omitempty" yaml:"topics,omitempty"`
}

// RecommendationCandidate is one scored, explained recommendation.
// Candidates are created fresh per request and never mutated after scoring.
type RecommendationCandidate struct {
	Title            string       `json:"title"`
	Description      string       `json:"description"`
	ResourceType     string       `json:"resource_type"`
	Difficulty       string       `json:"difficulty"`
	URL              string       `json:"url,omitempty"`
	Reasoning        string       `json:"reasoning"`
	Priority         int          `json:"priority"` // 1..5, 1 is highest
	EstimatedMinutes int          `json:"estimated_minutes,omitempty"`
	Tags             []string     `json:"tags,omitempty"`
	Confidence       int          `json:"confidence"` // 0..100
	LearningPath     LearningPath `json:"learning_path"`
	Prerequisites    []string     `json:"prerequisites,omitempty"`
}

// RecommendationSet is the ranked output of one engine invocation
type RecommendationSet struct {
	Recommendations []RecommendationCandidate `json:"recommendations"`
	Provider        string                    `json:"provider"`
	GeneratedAt     time.Time                 `json:"generated_at"`
}

// StudyPlanStep is one ordered step inside a study plan
type StudyPlanStep struct {
	Order       int    `json:"order"`
	Title       string `json:"title"`
	Description string `json:"description"`
	FocusArea   string `json:"focus_area,omitempty"`
	Minutes     int    `json:"minutes,omitempty"`
}

// StudyPlanResources buckets the plan's resources by how they should be used
type StudyPlanResources struct {
	Review   []string `json:"review"`
	Practice []string `json:"practice"`
	New      []string `json:"new"`
}

// StudyPlan is the structured plan produced by the study-plan pipeline.
// TimeAllocation percentages always sum to 100.
type StudyPlan struct {
	Difficulty     DifficultyTier     `json:"difficulty"`
	Steps          []StudyPlanStep    `json:"steps"`
	FocusAreas     []string           `json:"focus_areas"`
	TimeAllocation map[string]int     `json:"time_allocation"`
	WeeklyGoals    []string           `json:"weekly_goals"`
	Resources      StudyPlanResources `json:"resources"`
	Provider       string             `json:"provider"`
	GeneratedAt    time.Time          `json:"generated_at"`
}

// CacheEntryType distinguishes what kind of payload a cache entry holds
type CacheEntryType string

const (
	// CacheEntryRecommendations marks a cached recommendation set
	CacheEntryRecommendations CacheEntryType = "recommendations"
	// CacheEntryStudyPlan marks a cached study plan
	CacheEntryStudyPlan CacheEntryType = "study_plan"
)

// CacheEntry is a stored engine output, owned exclusively by the cache layer.
// Immutable after creation except for hit bookkeeping.
type CacheEntry struct {
	ID             int             `json:"id"`
	Key            string          `json:"key"`
	UserID         int             `json:"user_id"`
	Type           CacheEntryType  `json:"type"`
	Provider       string          `json:"provider"`
	Payload        json.RawMessage `json:"payload"`
	Confidence     int             `json:"confidence"`
	CreatedAt      time.Time       `json:"created_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	LastAccessedAt time.Time       `json:"last_accessed_at"`
	HitCount       int             `json:"hit_count"`
}

// Expired reports whether the entry is stale at the given instant
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// ProviderCallRecord is a write-once observability record for one provider attempt
type ProviderCallRecord struct {
	ID             int       `json:"id"`
	UserID         int       `json:"user_id,omitempty"`
	Provider       string    `json:"provider"`
	Endpoint       string    `json:"endpoint"`
	Success        bool      `json:"success"`
	CacheHit       bool      `json:"cache_hit"`
	ResponseTimeMs int       `json:"response_time_ms"`
	Cost           float64   `json:"cost,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ProviderCallStats aggregates the provider-call log for cache hit-rate reporting
type ProviderCallStats struct {
	TotalCalls    int            `json:"total_calls"`
	CachedCalls   int            `json:"cached_calls"`
	FailedCalls   int            `json:"failed_calls"`
	HitRate       float64        `json:"hit_rate"`
	AvgLatencyMs  float64        `json:"avg_latency_ms"`
	CallsByOrigin map[string]int `json:"calls_by_origin"`
}

// RecommendationRequest is one engine invocation for ranked recommendations
type RecommendationRequest struct {
	UserID    int           `json:"user_id"`
	ProgramID string        `json:"program_id,omitempty"`
	CourseID  string        `json:"course_id,omitempty"`
	Attempts  []QuizAttempt `json:"attempts"`
	User      UserProfile   `json:"user"`
}

// QuizContext is the projection a study-plan request is keyed and built from
type QuizContext struct {
	QuizID           string        `json:"quiz_id"`
	CourseID         string        `json:"course_id"`
	Score            int           `json:"score"`
	TotalQuestions   int           `json:"total_questions"`
	TimeSpentSeconds int           `json:"time_spent_seconds,omitempty"`
	Difficulty       Difficulty    `json:"difficulty,omitempty"`
	Attempts         []QuizAttempt `json:"attempts,omitempty"`
}

// StudyPlanRequest is one engine invocation for a study plan
type StudyPlanRequest struct {
	UserID  int         `json:"user_id"`
	Context QuizContext `json:"context"`
	User    UserProfile `json:"user"`
}
