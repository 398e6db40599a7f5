package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"studyrec/internal/models"
	"studyrec/internal/observability"
	contextutils "studyrec/internal/utils"
)

// ProviderCallLogInterface defines the interface for the write-once provider
// call log. Stats takes an optional user scope; zero means every user.
type ProviderCallLogInterface interface {
	Record(ctx context.Context, rec *models.ProviderCallRecord) error
	Stats(ctx context.Context, since time.Time, userID int) (*models.ProviderCallStats, error)
}

// ProviderCallLog persists one row per provider attempt in Postgres
type ProviderCallLog struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewProviderCallLog creates a new database-backed provider call log
func NewProviderCallLog(db *sql.DB, logger *observability.Logger) *ProviderCallLog {
	return &ProviderCallLog{db: db, logger: logger}
}

// Record appends one call record
func (l *ProviderCallLog) Record(ctx context.Context, rec *models.ProviderCallRecord) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "provider_call_record",
		observability.AttributeProvider(rec.Provider),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		INSERT INTO provider_call_log
			(user_id, provider, endpoint, success, cache_hit, response_time_ms, cost, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`

	_, err = l.db.ExecContext(ctx, query,
		rec.UserID, rec.Provider, rec.Endpoint, rec.Success, rec.CacheHit,
		rec.ResponseTimeMs, rec.Cost, rec.ErrorMessage)
	if err != nil {
		return contextutils.WrapError(err, "failed to record provider call")
	}
	return nil
}

// Stats aggregates the call log from a point in time forward, optionally
// scoped to one user
func (l *ProviderCallLog) Stats(ctx context.Context, since time.Time, userID int) (stats *models.ProviderCallStats, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "provider_call_stats",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT provider, success, cache_hit, response_time_ms
		FROM provider_call_log
		WHERE created_at >= $1`
	args := []interface{}{since}
	if userID > 0 {
		query += ` AND user_id = $2`
		args = append(args, userID)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query provider call log")
	}
	defer rows.Close()

	var records []models.ProviderCallRecord
	for rows.Next() {
		var r models.ProviderCallRecord
		if err = rows.Scan(&r.Provider, &r.Success, &r.CacheHit, &r.ResponseTimeMs); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan provider call row")
		}
		records = append(records, r)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate provider call rows")
	}
	return aggregateCallStats(records), nil
}

// aggregateCallStats folds call records into hit-rate and latency figures
func aggregateCallStats(records []models.ProviderCallRecord) *models.ProviderCallStats {
	stats := &models.ProviderCallStats{CallsByOrigin: map[string]int{}}
	totalLatency := 0
	for _, r := range records {
		stats.TotalCalls++
		if r.CacheHit {
			stats.CachedCalls++
		}
		if !r.Success {
			stats.FailedCalls++
		}
		totalLatency += r.ResponseTimeMs
		stats.CallsByOrigin[r.Provider]++
	}
	if stats.TotalCalls > 0 {
		stats.HitRate = float64(stats.CachedCalls) / float64(stats.TotalCalls)
		stats.AvgLatencyMs = float64(totalLatency) / float64(stats.TotalCalls)
	}
	return stats
}

// MemoryProviderCallLog is an in-process call log for tests and DB-less setups
type MemoryProviderCallLog struct {
	mu      sync.Mutex
	records []models.ProviderCallRecord
	now     func() time.Time
}

// NewMemoryProviderCallLog creates a new in-memory provider call log
func NewMemoryProviderCallLog() *MemoryProviderCallLog {
	return &MemoryProviderCallLog{now: time.Now}
}

// Record appends one call record
func (l *MemoryProviderCallLog) Record(_ context.Context, rec *models.ProviderCallRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored := *rec
	stored.ID = len(l.records) + 1
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = l.now()
	}
	l.records = append(l.records, stored)
	return nil
}

// Stats aggregates the call log from a point in time forward, optionally
// scoped to one user
func (l *MemoryProviderCallLog) Stats(_ context.Context, since time.Time, userID int) (*models.ProviderCallStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var matched []models.ProviderCallRecord
	for _, r := range l.records {
		if r.CreatedAt.Before(since) {
			continue
		}
		if userID > 0 && r.UserID != userID {
			continue
		}
		matched = append(matched, r)
	}
	return aggregateCallStats(matched), nil
}

// Records returns a copy of every stored record in insertion order
func (l *MemoryProviderCallLog) Records() []models.ProviderCallRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.ProviderCallRecord, len(l.records))
	copy(out, l.records)
	return out
}
