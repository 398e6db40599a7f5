// Package di provides dependency injection container for managing service lifecycle and dependencies.
package di

import (
	"context"
	"database/sql"
	"sync"

	"studyrec/internal/config"
	"studyrec/internal/database"
	"studyrec/internal/observability"
	"studyrec/internal/serviceinterfaces"
	"studyrec/internal/services"
	contextutils "studyrec/internal/utils"
)

// ServiceContainerInterface defines the interface for service containers
type ServiceContainerInterface interface {
	GetService(name string) (interface{}, error)
	GetPerformanceService() (services.PerformanceServiceInterface, error)
	GetRecommendationService() (services.RecommendationServiceInterface, error)
	GetStudyPlanService() (services.StudyPlanServiceInterface, error)
	GetAIService() (services.AIServiceInterface, error)
	GetCache() (services.RecommendationCacheInterface, error)
	GetProviderCallLog() (services.ProviderCallLogInterface, error)
	GetEngineService() (services.EngineServiceInterface, error)
	GetDatabase() *sql.DB
	GetConfig() *config.Config
	GetLogger() *observability.Logger
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ServiceContainer manages all service dependencies and lifecycle
type ServiceContainer struct {
	cfg           *config.Config
	logger        *observability.Logger
	catalog       *services.StaticCatalog
	dbManager     *database.Manager
	db            *sql.DB
	services      map[string]interface{}
	mu            sync.RWMutex
	shutdownFuncs []func(context.Context) error
}

// NewServiceContainer creates a new dependency injection container
func NewServiceContainer(cfg *config.Config, catalog *services.StaticCatalog, logger *observability.Logger) *ServiceContainer {
	return &ServiceContainer{
		cfg:      cfg,
		logger:   logger,
		catalog:  catalog,
		services: make(map[string]interface{}),
	}
}

// Initialize sets up all services and their dependencies. When no database is
// configured the engine runs on the in-memory cache and call log instead.
func (sc *ServiceContainer) Initialize(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.cfg.Database.URL != "" {
		sc.dbManager = database.NewManager(sc.logger)
		db, err := sc.dbManager.InitDBWithConfig(sc.cfg.Database)
		if err != nil {
			return contextutils.WrapErrorf(err, "failed to initialize database")
		}
		sc.db = db
		sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
			return db.Close()
		})
	} else {
		sc.logger.Info(ctx, "No database configured, using in-memory stores", nil)
	}

	sc.initializeServices(ctx)
	return nil
}

// GetService retrieves a service by name with type assertion
func (sc *ServiceContainer) GetService(name string) (interface{}, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	service, exists := sc.services[name]
	if !exists {
		return nil, contextutils.ErrorWithContextf("service %s not found", name)
	}
	return service, nil
}

// GetServiceAs performs type-safe service retrieval
func GetServiceAs[T any](sc *ServiceContainer, name string) (T, error) {
	var zero T
	service, err := sc.GetService(name)
	if err != nil {
		return zero, err
	}

	typed, ok := service.(T)
	if !ok {
		return zero, contextutils.ErrorWithContextf("service %s is not of expected type %T", name, zero)
	}
	return typed, nil
}

// GetPerformanceService returns the performance analysis service
func (sc *ServiceContainer) GetPerformanceService() (services.PerformanceServiceInterface, error) {
	return GetServiceAs[services.PerformanceServiceInterface](sc, "performance")
}

// GetRecommendationService returns the rule-based recommendation service
func (sc *ServiceContainer) GetRecommendationService() (services.RecommendationServiceInterface, error) {
	return GetServiceAs[services.RecommendationServiceInterface](sc, "recommendation")
}

// GetStudyPlanService returns the rule-based study plan service
func (sc *ServiceContainer) GetStudyPlanService() (services.StudyPlanServiceInterface, error) {
	return GetServiceAs[services.StudyPlanServiceInterface](sc, "study_plan")
}

// GetAIService returns the AI provider client
func (sc *ServiceContainer) GetAIService() (services.AIServiceInterface, error) {
	return GetServiceAs[services.AIServiceInterface](sc, "ai")
}

// GetCache returns the engine output cache
func (sc *ServiceContainer) GetCache() (services.RecommendationCacheInterface, error) {
	return GetServiceAs[services.RecommendationCacheInterface](sc, "cache")
}

// GetProviderCallLog returns the provider call log
func (sc *ServiceContainer) GetProviderCallLog() (services.ProviderCallLogInterface, error) {
	return GetServiceAs[services.ProviderCallLogInterface](sc, "call_log")
}

// GetEngineService returns the engine orchestrator
func (sc *ServiceContainer) GetEngineService() (services.EngineServiceInterface, error) {
	return GetServiceAs[services.EngineServiceInterface](sc, "engine")
}

// GetDatabase returns the database instance, nil when running in-memory
func (sc *ServiceContainer) GetDatabase() *sql.DB {
	return sc.db
}

// GetConfig returns the configuration
func (sc *ServiceContainer) GetConfig() *config.Config {
	return sc.cfg
}

// GetLogger returns the logger
func (sc *ServiceContainer) GetLogger() *observability.Logger {
	return sc.logger
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	var errors []error
	for i := len(sc.shutdownFuncs) - 1; i >= 0; i-- {
		if err := sc.shutdownFuncs[i](ctx); err != nil {
			errors = append(errors, err)
		}
	}
	if len(errors) > 0 {
		return contextutils.ErrorWithContextf("shutdown errors: %v", errors)
	}
	return nil
}

// initializeServices wires the engine's service graph
func (sc *ServiceContainer) initializeServices(_ context.Context) {
	performanceService := services.NewPerformanceService(sc.cfg, sc.logger)
	sc.services["performance"] = performanceService

	var catalog serviceinterfaces.CourseCatalog
	var pool serviceinterfaces.ResourcePool
	if sc.catalog != nil {
		catalog = sc.catalog
		pool = sc.catalog
	}
	recommendationService := services.NewRecommendationService(sc.cfg, catalog, pool, sc.logger)
	sc.services["recommendation"] = recommendationService

	studyPlanService := services.NewStudyPlanService(sc.cfg, sc.logger)
	sc.services["study_plan"] = studyPlanService

	aiService := services.NewAIService(sc.cfg, sc.logger)
	sc.services["ai"] = aiService

	var cache services.RecommendationCacheInterface
	var callLog services.ProviderCallLogInterface
	if sc.db != nil {
		cache = services.NewRecommendationCache(sc.db, sc.cfg, sc.logger)
		callLog = services.NewProviderCallLog(sc.db, sc.logger)
	} else {
		cache = services.NewMemoryRecommendationCache(sc.cfg)
		callLog = services.NewMemoryProviderCallLog()
	}
	sc.services["cache"] = cache
	sc.services["call_log"] = callLog

	engineService := services.NewEngineService(sc.cfg, cache, callLog, aiService, recommendationService, studyPlanService, sc.logger)
	sc.services["engine"] = engineService
}
