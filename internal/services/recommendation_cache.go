package services

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"studyrec/internal/config"
	"studyrec/internal/models"
	"studyrec/internal/observability"
	contextutils "studyrec/internal/utils"
)

// RecommendationCacheInterface defines the interface for the engine's output cache.
// Get returns (nil, nil) on a miss or an expired entry; expired entries are
// never surfaced to callers. Cleanup takes an optional user scope; zero means
// every user.
type RecommendationCacheInterface interface {
	Get(ctx context.Context, key, provider string) (*models.CacheEntry, error)
	Put(ctx context.Context, entry *models.CacheEntry) error
	Cleanup(ctx context.Context, userID int, entryType models.CacheEntryType) (int, error)
	Clear(ctx context.Context) error
}

// cacheKeyPayload is the canonical projection hashed into a recommendation cache key
type cacheKeyPayload struct {
	QuizID    string `json:"quizId"`
	CourseID  string `json:"courseId"`
	Score     int    `json:"score"`
	Total     int    `json:"total"`
	TimeSpent int    `json:"timeSpent"`
}

// RecommendationCacheKey derives the content-addressed key for a set of quiz
// attempts. Attempts are projected onto the scoring-relevant fields and sorted
// by quiz ID, so semantically identical inputs in any order hash the same.
func RecommendationCacheKey(attempts []models.QuizAttempt) (string, error) {
	if len(attempts) == 0 {
		return "", contextutils.WrapError(contextutils.ErrInvalidCacheKey, "no attempts to derive a cache key from")
	}

	payload := make([]cacheKeyPayload, 0, len(attempts))
	for _, a := range attempts {
		payload = append(payload, cacheKeyPayload{
			QuizID:    a.QuizID,
			CourseID:  a.CourseID,
			Score:     a.Score,
			Total:     a.Total,
			TimeSpent: a.TimeSpentSeconds,
		})
	}
	sort.SliceStable(payload, func(i, j int) bool { return payload[i].QuizID < payload[j].QuizID })

	return hashKeyPayload(payload)
}

// studyPlanKeyPayload is the canonical projection hashed into a study-plan cache key
type studyPlanKeyPayload struct {
	QuizID         string `json:"quizId"`
	CourseID       string `json:"courseId"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"totalQuestions"`
	TimeSpent      int    `json:"timeSpent"`
	Difficulty     string `json:"difficulty"`
}

// StudyPlanCacheKey derives the content-addressed key for one quiz context
func StudyPlanCacheKey(qc *models.QuizContext) (string, error) {
	if qc == nil || qc.QuizID == "" {
		return "", contextutils.WrapError(contextutils.ErrInvalidCacheKey, "quiz context missing a quiz id")
	}
	return hashKeyPayload(studyPlanKeyPayload{
		QuizID:         qc.QuizID,
		CourseID:       qc.CourseID,
		Score:          qc.Score,
		TotalQuestions: qc.TotalQuestions,
		TimeSpent:      qc.TimeSpentSeconds,
		Difficulty:     string(qc.Difficulty),
	})
}

func hashKeyPayload(payload interface{}) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", contextutils.WrapError(err, "failed to serialize cache key payload")
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// RecommendationCache is the Postgres-backed cache store. Expiry is enforced
// in the read query; physical deletion happens lazily after writes.
type RecommendationCache struct {
	db     *sql.DB
	cfg    *config.Config
	logger *observability.Logger
}

// NewRecommendationCache creates a new database-backed cache store
func NewRecommendationCache(db *sql.DB, cfg *config.Config, logger *observability.Logger) *RecommendationCache {
	return &RecommendationCache{db: db, cfg: cfg, logger: logger}
}

// Get looks up a live entry by key and provider, bumping hit bookkeeping
// atomically in the same statement
func (c *RecommendationCache) Get(ctx context.Context, key, provider string) (entry *models.CacheEntry, err error) {
	ctx, span := observability.TraceCacheFunction(ctx, "cache_get",
		observability.AttributeCacheKey(key),
		observability.AttributeProvider(provider),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		UPDATE recommendation_cache
		SET hit_count = hit_count + 1, last_accessed_at = NOW()
		WHERE cache_key = $1 AND provider = $2 AND expires_at > NOW()
		RETURNING id, cache_key, user_id, entry_type, provider, payload,
		          confidence, created_at, expires_at, last_accessed_at, hit_count`

	var e models.CacheEntry
	err = c.db.QueryRowContext(ctx, query, key, provider).Scan(
		&e.ID, &e.Key, &e.UserID, &e.Type, &e.Provider, &e.Payload,
		&e.Confidence, &e.CreatedAt, &e.ExpiresAt, &e.LastAccessedAt, &e.HitCount,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to read recommendation cache")
	}
	return &e, nil
}

// Put upserts an entry, then opportunistically sweeps the writer's expired
// rows and enforces the per-user size bound by evicting least recently
// accessed entries
func (c *RecommendationCache) Put(ctx context.Context, entry *models.CacheEntry) (err error) {
	ctx, span := observability.TraceCacheFunction(ctx, "cache_put",
		observability.AttributeCacheKey(entry.Key),
		observability.AttributeProvider(entry.Provider),
		observability.AttributeCacheType(string(entry.Type)),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		INSERT INTO recommendation_cache
			(cache_key, user_id, entry_type, provider, payload, confidence, created_at, expires_at, last_accessed_at, hit_count)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), $7, NOW(), 0)
		ON CONFLICT (cache_key, provider) DO UPDATE
		SET payload = EXCLUDED.payload,
		    confidence = EXCLUDED.confidence,
		    expires_at = EXCLUDED.expires_at,
		    last_accessed_at = NOW()`

	_, err = c.db.ExecContext(ctx, query,
		entry.Key, entry.UserID, entry.Type, entry.Provider, entry.Payload, entry.Confidence, entry.ExpiresAt)
	if err != nil {
		return contextutils.WrapError(err, "failed to write recommendation cache")
	}

	c.sweep(ctx, entry.UserID, entry.Type)
	return nil
}

// sweep removes the user's expired rows and, when a size bound is configured,
// the least recently accessed rows beyond it. Failures are logged, never
// propagated; the write already succeeded.
func (c *RecommendationCache) sweep(ctx context.Context, userID int, entryType models.CacheEntryType) {
	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM recommendation_cache WHERE user_id = $1 AND entry_type = $2 AND expires_at <= NOW()`,
		userID, entryType); err != nil {
		c.logger.Warn(ctx, "Cache expiry sweep failed", map[string]interface{}{"error": err.Error()})
		return
	}

	maxSize := c.cfg.Recommendation.MaxCacheSize
	if maxSize <= 0 {
		return
	}
	evict := `
		DELETE FROM recommendation_cache
		WHERE id IN (
			SELECT id FROM recommendation_cache
			WHERE user_id = $1 AND entry_type = $2
			ORDER BY last_accessed_at DESC
			OFFSET $3
		)`
	if _, err := c.db.ExecContext(ctx, evict, userID, entryType, maxSize); err != nil {
		c.logger.Warn(ctx, "Cache size eviction failed", map[string]interface{}{"error": err.Error()})
	}
}

// Cleanup deletes expired entries of one type, returning how many went.
// A zero userID sweeps every user.
func (c *RecommendationCache) Cleanup(ctx context.Context, userID int, entryType models.CacheEntryType) (removed int, err error) {
	ctx, span := observability.TraceCacheFunction(ctx, "cache_cleanup",
		observability.AttributeUserID(userID),
		observability.AttributeCacheType(string(entryType)),
	)
	defer observability.FinishSpan(span, &err)

	query := `DELETE FROM recommendation_cache WHERE entry_type = $1 AND expires_at <= NOW()`
	args := []interface{}{entryType}
	if userID > 0 {
		query += ` AND user_id = $2`
		args = append(args, userID)
	}

	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to clean up recommendation cache")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Clear removes every cache entry
func (c *RecommendationCache) Clear(ctx context.Context) (err error) {
	ctx, span := observability.TraceCacheFunction(ctx, "cache_clear")
	defer observability.FinishSpan(span, &err)

	if _, err = c.db.ExecContext(ctx, `DELETE FROM recommendation_cache`); err != nil {
		return contextutils.WrapError(err, "failed to clear recommendation cache")
	}
	return nil
}

// MemoryRecommendationCache is an in-process cache store with the same
// semantics as the database-backed store. Used by tests and DB-less setups.
type MemoryRecommendationCache struct {
	mu      sync.Mutex
	entries map[string]*models.CacheEntry
	cfg     *config.Config
	nextID  int
	now     func() time.Time
}

// NewMemoryRecommendationCache creates a new in-memory cache store
func NewMemoryRecommendationCache(cfg *config.Config) *MemoryRecommendationCache {
	return &MemoryRecommendationCache{
		entries: make(map[string]*models.CacheEntry),
		cfg:     cfg,
		now:     time.Now,
	}
}

func memoryCacheKey(key, provider string) string {
	return key + "|" + provider
}

// Get returns a copy of the live entry, bumping hit bookkeeping under the lock
func (c *MemoryRecommendationCache) Get(_ context.Context, key, provider string) (*models.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[memoryCacheKey(key, provider)]
	if !ok || e.Expired(c.now()) {
		return nil, nil
	}
	e.HitCount++
	e.LastAccessedAt = c.now()
	out := *e
	return &out, nil
}

// Put stores a copy of the entry, then sweeps expired rows and enforces the
// size bound for the writer's user and type
func (c *MemoryRecommendationCache) Put(_ context.Context, entry *models.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.nextID++
	stored := *entry
	stored.ID = c.nextID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.LastAccessedAt = now
	c.entries[memoryCacheKey(entry.Key, entry.Provider)] = &stored

	for k, e := range c.entries {
		if e.UserID == entry.UserID && e.Type == entry.Type && e.Expired(now) {
			delete(c.entries, k)
		}
	}

	maxSize := c.cfg.Recommendation.MaxCacheSize
	if maxSize <= 0 {
		return nil
	}
	type keyed struct {
		key string
		e   *models.CacheEntry
	}
	var owned []keyed
	for k, e := range c.entries {
		if e.UserID == entry.UserID && e.Type == entry.Type {
			owned = append(owned, keyed{key: k, e: e})
		}
	}
	if len(owned) <= maxSize {
		return nil
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].e.LastAccessedAt.Before(owned[j].e.LastAccessedAt)
	})
	for _, k := range owned[:len(owned)-maxSize] {
		delete(c.entries, k.key)
	}
	return nil
}

// Cleanup deletes expired entries of one type. A zero userID sweeps every user.
func (c *MemoryRecommendationCache) Cleanup(_ context.Context, userID int, entryType models.CacheEntryType) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if userID > 0 && e.UserID != userID {
			continue
		}
		if e.Type == entryType && e.Expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Clear removes every cache entry
func (c *MemoryRecommendationCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*models.CacheEntry)
	return nil
}

// Len reports the number of stored entries, expired or not
func (c *MemoryRecommendationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
