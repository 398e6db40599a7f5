// Package config handles engine configuration loading from YAML files and environment variables.
package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	contextutils "studyrec/internal/utils"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// AIModel represents an AI model configuration
type AIModel struct {
	Name      string `json:"name" yaml:"name"`
	Code      string `json:"code" yaml:"code"`
	MaxTokens int    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// ProviderConfig defines the structure for a single AI provider
type ProviderConfig struct {
	Name   string    `json:"name" yaml:"name" validate:"required"`
	Code   string    `json:"code" yaml:"code" validate:"required"`
	URL    string    `json:"url,omitempty" yaml:"url,omitempty"`
	APIKey string    `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Models []AIModel `json:"models" yaml:"models"`
}

// RecommendationConfig holds tunables for the recommendation pipeline and its cache
type RecommendationConfig struct {
	// MaxRecommendations bounds the ranked output size
	MaxRecommendations int `json:"max_recommendations" yaml:"max_recommendations" validate:"omitempty,gte=1,lte=20"`
	// RecommendationTTLHours is the cache TTL for recommendation sets
	RecommendationTTLHours int `json:"recommendation_ttl_hours" yaml:"recommendation_ttl_hours" validate:"omitempty,gte=1"`
	// StudyPlanTTLHours is the cache TTL for study plans
	StudyPlanTTLHours int `json:"study_plan_ttl_hours" yaml:"study_plan_ttl_hours" validate:"omitempty,gte=1"`
	// MaxCacheSize bounds entries kept per user and type; 0 disables the bound
	MaxCacheSize int `json:"max_cache_size" yaml:"max_cache_size" validate:"gte=0"`
	// AITimeout bounds a single external provider call
	AITimeout time.Duration `json:"ai_timeout" yaml:"ai_timeout"`
	// AIProvider selects the external provider by code; empty disables AI generation
	AIProvider string `json:"ai_provider" yaml:"ai_provider"`
	// AIModel selects the model code used with AIProvider
	AIModel string `json:"ai_model" yaml:"ai_model"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL             string        `json:"url" yaml:"url"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// OpenTelemetryConfig holds all OpenTelemetry-related configuration
type OpenTelemetryConfig struct {
	Endpoint       string            `json:"endpoint" yaml:"endpoint"`               // Default: "http://localhost:4317"
	Protocol       string            `json:"protocol" yaml:"protocol"`               // "grpc" or "http", default: "grpc"
	Insecure       bool              `json:"insecure" yaml:"insecure"`               // Default: true (for localhost)
	Headers        map[string]string `json:"headers" yaml:"headers"`                 // For authenticated endpoints
	ServiceName    string            `json:"service_name" yaml:"service_name"`       // Default: "studyrec"
	ServiceVersion string            `json:"service_version" yaml:"service_version"` // From version package
	EnableTracing  bool              `json:"enable_tracing" yaml:"enable_tracing"`
	EnableMetrics  bool              `json:"enable_metrics" yaml:"enable_metrics"`
	EnableLogging  bool              `json:"enable_logging" yaml:"enable_logging"`
	SamplingRate   float64           `json:"sampling_rate" yaml:"sampling_rate"` // Default: 1.0 (100%)
}

// Config holds all configuration for the recommendation engine
type Config struct {
	Providers      []ProviderConfig     `json:"providers" yaml:"providers" validate:"dive"`
	Recommendation RecommendationConfig `json:"recommendation" yaml:"recommendation"`
	Database       DatabaseConfig       `json:"database" yaml:"database"`
	OpenTelemetry  OpenTelemetryConfig  `json:"open_telemetry" yaml:"open_telemetry"`

	// Internal fields
	IsTest bool `json:"is_test" yaml:"is_test"`
}

// GetProvider returns the provider configuration for a provider code
func (c *Config) GetProvider(code string) *ProviderConfig {
	for i := range c.Providers {
		if c.Providers[i].Code == code {
			return &c.Providers[i]
		}
	}
	return nil
}

// GetMaxTokensForModel returns the configured max tokens for a provider/model pair
func (c *Config) GetMaxTokensForModel(provider, model string) int {
	p := c.GetProvider(provider)
	if p == nil {
		return DefaultMaxTokens
	}
	for _, m := range p.Models {
		if m.Code == model && m.MaxTokens > 0 {
			return m.MaxTokens
		}
	}
	return DefaultMaxTokens
}

// RecommendationTTL returns the cache TTL for recommendation sets
func (c *Config) RecommendationTTL() time.Duration {
	hours := c.Recommendation.RecommendationTTLHours
	if hours <= 0 {
		hours = DefaultRecommendationTTLHours
	}
	return time.Duration(hours) * time.Hour
}

// StudyPlanTTL returns the cache TTL for study plans
func (c *Config) StudyPlanTTL() time.Duration {
	hours := c.Recommendation.StudyPlanTTLHours
	if hours <= 0 {
		hours = DefaultStudyPlanTTLHours
	}
	return time.Duration(hours) * time.Hour
}

// MaxRecommendations returns the bounded output size for ranked recommendations
func (c *Config) MaxRecommendations() int {
	if c.Recommendation.MaxRecommendations <= 0 {
		return DefaultMaxRecommendations
	}
	return c.Recommendation.MaxRecommendations
}

// AITimeout returns the bounded timeout for a single external provider call
func (c *Config) AITimeout() time.Duration {
	if c.Recommendation.AITimeout <= 0 {
		return DefaultAITimeout
	}
	return c.Recommendation.AITimeout
}

// Validate checks structural constraints on the loaded configuration
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeValidationFailed,
			contextutils.SeverityError,
			"configuration validation failed", err.Error(), err)
	}
	if c.Recommendation.AIProvider != "" && c.GetProvider(c.Recommendation.AIProvider) == nil {
		return contextutils.NewAppError(
			contextutils.ErrorCodeProviderConfigInvalid,
			contextutils.SeverityError,
			"configured ai_provider has no provider entry", c.Recommendation.AIProvider)
	}
	return nil
}

// NewConfig loads configuration from YAML file first, then overrides with environment variables
func NewConfig() (result0 *Config, err error) {
	config, err := loadConfigWithOverrides()
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config: %w", err)
	}

	config.overrideFromEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// overrideFromEnv overrides config values with environment variables using reflection
func (c *Config) overrideFromEnv() {
	overrideStructFromEnvWithPrefix(c, "")
}

// overrideStructFromEnvWithPrefix recursively overrides struct fields with environment variables
func overrideStructFromEnvWithPrefix(v interface{}, prefix string) {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		if !field.CanSet() {
			continue
		}

		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		yamlTag = strings.Split(yamlTag, ",")[0]

		envKey := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
		if prefix != "" {
			envKey = prefix + "_" + envKey
		}

		switch field.Kind() {
		case reflect.String:
			if envVal := os.Getenv(envKey); envVal != "" {
				field.SetString(envVal)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if envVal := os.Getenv(envKey); envVal != "" {
				// Durations accept Go duration syntax, plain ints accept digits
				if field.Type() == reflect.TypeOf(time.Duration(0)) {
					if d, err := time.ParseDuration(envVal); err == nil {
						field.SetInt(int64(d))
					}
				} else if intVal, err := strconv.ParseInt(envVal, 10, 64); err == nil {
					field.SetInt(intVal)
				}
			}
		case reflect.Float32, reflect.Float64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if floatVal, err := strconv.ParseFloat(envVal, 64); err == nil {
					field.SetFloat(floatVal)
				}
			}
		case reflect.Bool:
			if envVal := os.Getenv(envKey); envVal != "" {
				if boolVal, err := strconv.ParseBool(envVal); err == nil {
					field.SetBool(boolVal)
				}
			}
		case reflect.Slice:
			if envVal := os.Getenv(envKey); envVal != "" {
				if field.Type().Elem().Kind() == reflect.String {
					slice := strings.Split(envVal, ",")
					field.Set(reflect.ValueOf(slice))
				}
			}
		case reflect.Struct:
			if field.CanAddr() {
				fieldPrefix := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
				if prefix != "" {
					fieldPrefix = prefix + "_" + fieldPrefix
				}
				overrideStructFromEnvWithPrefix(field.Addr().Interface(), fieldPrefix)
			}
		case reflect.Ptr:
			if !field.IsNil() && field.Elem().Kind() == reflect.Struct {
				fieldPrefix := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
				if prefix != "" {
					fieldPrefix = prefix + "_" + fieldPrefix
				}
				overrideStructFromEnvWithPrefix(field.Interface(), fieldPrefix)
			}
		}
	}
}

// loadConfigWithOverrides loads the config file with potential local overrides
func loadConfigWithOverrides() (result0 *Config, err error) {
	if envPath := os.Getenv("STUDYREC_CONFIG_FILE"); envPath != "" {
		config, err := loadConfigFromFile(envPath)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config from %s: %w", envPath, err)
		}
		return config, nil
	}

	config, err := loadConfigFromFile("config.yaml")
	if err != nil {
		if os.IsNotExist(err) {
			// No file is fine: env overrides and defaults carry the config
			return &Config{}, nil
		}
		return nil, err
	}
	return config, nil
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (result0 *Config, err error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
