package config

import (
	"errors"
	"time"

	"github.com/phrazzld/guideline-api/internal/generation"
)

// ErrConfiguration is returned when configuration cannot be loaded or is invalid.
var ErrConfiguration = errors.New("invalid configuration")

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server      ServerConfig      `mapstructure:"server" validate:"required"`
	Database    DatabaseConfig    `mapstructure:"database" validate:"required"`
	LLM         LLMConfig         `mapstructure:"llm" validate:"required"`
	Task        TaskConfig        `mapstructure:"task" validate:"required"`
	Workflow    WorkflowConfig    `mapstructure:"workflow"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance" validate:"required"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"required,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gt=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	Provider        string        `mapstructure:"provider" validate:"required,oneof=gemini openai mock"`
	Model           string        `mapstructure:"model" validate:"required"`
	GeminiAPIKey    string        `mapstructure:"gemini_api_key" validate:"required_if=Provider gemini"`
	OpenAIAPIKey    string        `mapstructure:"openai_api_key" validate:"required_if=Provider openai"`
	OpenAIBaseURL   string        `mapstructure:"openai_base_url" validate:"omitempty,url"`
	Temperature     float64       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens" validate:"gt=0"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	Prices          []ModelPrice  `mapstructure:"prices" validate:"dive"`
}

// ModelPrice overrides the built-in rate of one model. Model names contain
// dots, so prices are a list rather than a map keyed through viper.
type ModelPrice struct {
	Model  string  `mapstructure:"model" validate:"required"`
	Input  float64 `mapstructure:"input" validate:"gte=0"`
	Output float64 `mapstructure:"output" validate:"gte=0"`
}

// PriceOverrides returns the configured prices keyed by model. Later entries
// win over earlier ones for the same model.
func (c LLMConfig) PriceOverrides() map[string]generation.Rate {
	overrides := make(map[string]generation.Rate, len(c.Prices))
	for _, price := range c.Prices {
		overrides[price.Model] = generation.Rate{Input: price.Input, Output: price.Output}
	}
	return overrides
}

// TaskConfig controls the generation job queue and workers.
type TaskConfig struct {
	WorkerCount        int           `mapstructure:"worker_count" validate:"gt=0"`
	QueueBackend       string        `mapstructure:"queue_backend" validate:"required,oneof=postgres memory"`
	QueueCapacity      int           `mapstructure:"queue_capacity" validate:"gt=0"`
	PollInterval       time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	VisibilityTimeout  time.Duration `mapstructure:"visibility_timeout" validate:"gt=0"`
	NackDelay          time.Duration `mapstructure:"nack_delay" validate:"gte=0"`
	MaxRetries         int           `mapstructure:"max_retries" validate:"gte=0"`
	BaseDelay          time.Duration `mapstructure:"base_delay" validate:"gte=0"`
	BackoffFactor      float64       `mapstructure:"backoff_factor" validate:"gte=1"`
	StuckGenerationAge time.Duration `mapstructure:"stuck_generation_age" validate:"gt=0"`
}

// WorkflowConfig holds workflow policy switches.
type WorkflowConfig struct {
	AdminAssignBypassesHold bool `mapstructure:"admin_assign_bypasses_hold"`
	BlockRepeatAssignment   bool `mapstructure:"block_repeat_assignment"`
}

// MaintenanceConfig schedules the background sweeps. An empty spec disables a sweep.
type MaintenanceConfig struct {
	ErrorRedactionSchedule string        `mapstructure:"error_redaction_schedule"`
	StuckRecoverySchedule  string        `mapstructure:"stuck_recovery_schedule"`
	RateLimitPruneSchedule string        `mapstructure:"rate_limit_prune_schedule"`
	ErrorRetention         time.Duration `mapstructure:"error_retention" validate:"gt=0"`
	BatchSize              int           `mapstructure:"batch_size" validate:"gt=0"`
}

// RateLimitConfig configures the request rate limiter.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Backend  string        `mapstructure:"backend" validate:"required,oneof=postgres memory"`
	Requests int           `mapstructure:"requests" validate:"gt=0"`
	Window   time.Duration `mapstructure:"window" validate:"gt=0"`
	MaxKeys  int           `mapstructure:"max_keys" validate:"gt=0"`
}
