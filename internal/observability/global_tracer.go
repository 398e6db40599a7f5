package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var globalTracer trace.Tracer

// InitGlobalTracer initializes the global tracer for the engine.
func InitGlobalTracer() {
	globalTracer = otel.Tracer("studyrec")
}

// GetGlobalTracer returns the global tracer instance for the engine.
func GetGlobalTracer() trace.Tracer {
	if globalTracer == nil {
		// Fallback to default tracer if not initialized
		globalTracer = otel.Tracer("studyrec")
	}
	return globalTracer
}

// TraceFunction starts a new span with a descriptive name for the given service and function.
func TraceFunction(ctx context.Context, serviceName, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := GetGlobalTracer()
	spanName := fmt.Sprintf("%s.%s", serviceName, functionName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(attributes...))
}

// TraceAnalysisFunction starts a new span for a performance-analysis function.
func TraceAnalysisFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "analysis", functionName, attributes...)
}

// TraceRecommendationFunction starts a new span for a recommendation-generation function.
func TraceRecommendationFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "recommendation", functionName, attributes...)
}

// TraceStudyPlanFunction starts a new span for a study-plan function.
func TraceStudyPlanFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "studyplan", functionName, attributes...)
}

// TraceCacheFunction starts a new span for a cache-layer function.
func TraceCacheFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "cache", functionName, attributes...)
}

// TraceAIFunction starts a new span for an AI provider function.
func TraceAIFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "ai", functionName, attributes...)
}

// TraceEngineFunction starts a new span for an orchestrator function.
func TraceEngineFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "engine", functionName, attributes...)
}

// TraceDatabaseFunction starts a new span for a database function.
func TraceDatabaseFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "database", functionName, attributes...)
}

// AttributeUserID returns a tracing attribute for a user ID.
func AttributeUserID(id int) attribute.KeyValue {
	return attribute.Int("user.id", id)
}

// AttributeCourseID returns a tracing attribute for a course ID.
func AttributeCourseID(id string) attribute.KeyValue {
	return attribute.String("course.id", id)
}

// AttributeProvider returns a tracing attribute for a provider name.
func AttributeProvider(provider string) attribute.KeyValue {
	return attribute.String("provider", provider)
}

// AttributeCacheKey returns a tracing attribute for a cache key.
func AttributeCacheKey(key string) attribute.KeyValue {
	return attribute.String("cache.key", key)
}

// AttributeCacheType returns a tracing attribute for a cache entry type.
func AttributeCacheType(entryType string) attribute.KeyValue {
	return attribute.String("cache.type", entryType)
}

// AttributeAttemptCount returns a tracing attribute for the number of quiz attempts analyzed.
func AttributeAttemptCount(n int) attribute.KeyValue {
	return attribute.Int("attempts.count", n)
}

// AttributeCandidateCount returns a tracing attribute for the number of generated candidates.
func AttributeCandidateCount(n int) attribute.KeyValue {
	return attribute.Int("candidates.count", n)
}

// AttributeTier returns a tracing attribute for an adaptive difficulty tier.
func AttributeTier(tier string) attribute.KeyValue {
	return attribute.String("difficulty.tier", tier)
}
