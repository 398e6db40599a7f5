package config

import "time"

// Timeout constants
const (
	// DefaultHTTPTimeout bounds plain HTTP client calls
	DefaultHTTPTimeout = 60 * time.Second
	// DefaultAITimeout bounds a single external AI provider call
	DefaultAITimeout = 30 * time.Second
	// DatabaseConnMaxLifetime bounds connection reuse
	DatabaseConnMaxLifetime = 5 * time.Minute
)

// Recommendation pipeline defaults
const (
	// DefaultMaxRecommendations is the ranked output bound
	DefaultMaxRecommendations = 5
	// DefaultRecommendationTTLHours is the cache TTL for recommendation sets
	DefaultRecommendationTTLHours = 24
	// DefaultStudyPlanTTLHours is the cache TTL for study plans
	DefaultStudyPlanTTLHours = 48
	// DefaultMaxTokens is the fallback token bound for provider calls
	DefaultMaxTokens = 2048
)

// Analyzer thresholds
const (
	// GapScoreThreshold marks topics below this percentage as learning gaps
	GapScoreThreshold = 60.0
	// StrengthScoreThreshold marks topics above this percentage as strengths
	StrengthScoreThreshold = 80.0
	// MaxLearningGaps caps the gaps reported per profile
	MaxLearningGaps = 3
	// MaxStrengths caps the strengths reported per profile
	MaxStrengths = 2
	// RushedSecondsMax is the upper bound for a wrong answer to count as rushed
	RushedSecondsMax = 30
	// OverthoughtSecondsMin is the lower bound for a correct answer to count as overthought
	OverthoughtSecondsMin = 120
)
