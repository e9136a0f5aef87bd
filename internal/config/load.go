package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "GUIDELINE"

// envKeys lists the keys bound explicitly so they are seen by Unmarshal even
// without a config file entry.
var envKeys = []string{
	"server.port",
	"server.log_level",
	"server.shutdown_timeout",
	"database.url",
	"database.max_open_conns",
	"database.max_idle_conns",
	"database.conn_max_lifetime",
	"llm.provider",
	"llm.model",
	"llm.gemini_api_key",
	"llm.openai_api_key",
	"llm.openai_base_url",
	"llm.temperature",
	"llm.max_output_tokens",
	"llm.request_timeout",
	"task.worker_count",
	"task.queue_backend",
	"task.queue_capacity",
	"task.poll_interval",
	"task.visibility_timeout",
	"task.nack_delay",
	"task.max_retries",
	"task.base_delay",
	"task.backoff_factor",
	"task.stuck_generation_age",
	"workflow.admin_assign_bypasses_hold",
	"workflow.block_repeat_assignment",
	"maintenance.error_redaction_schedule",
	"maintenance.stuck_recovery_schedule",
	"maintenance.rate_limit_prune_schedule",
	"maintenance.error_retention",
	"maintenance.batch_size",
	"rate_limit.enabled",
	"rate_limit.backend",
	"rate_limit.requests",
	"rate_limit.window",
	"rate_limit.max_keys",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_output_tokens", 1000)
	v.SetDefault("llm.request_timeout", "60s")

	v.SetDefault("task.worker_count", 2)
	v.SetDefault("task.queue_backend", "postgres")
	v.SetDefault("task.queue_capacity", 1000)
	v.SetDefault("task.poll_interval", "1s")
	v.SetDefault("task.visibility_timeout", "5m")
	v.SetDefault("task.nack_delay", "5s")
	v.SetDefault("task.max_retries", 3)
	v.SetDefault("task.base_delay", "60s")
	v.SetDefault("task.backoff_factor", 2.0)
	v.SetDefault("task.stuck_generation_age", "30m")

	v.SetDefault("workflow.admin_assign_bypasses_hold", false)
	v.SetDefault("workflow.block_repeat_assignment", false)

	v.SetDefault("maintenance.error_redaction_schedule", "@hourly")
	v.SetDefault("maintenance.stuck_recovery_schedule", "@every 15m")
	v.SetDefault("maintenance.rate_limit_prune_schedule", "@every 10m")
	v.SetDefault("maintenance.error_retention", "24h")
	v.SetDefault("maintenance.batch_size", 100)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.backend", "postgres")
	v.SetDefault("rate_limit.requests", 60)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("rate_limit.max_keys", 10000)
}

// Load configuration from environment variables and optionally a config.yaml
// in the working directory. Environment variables take precedence over values
// from the config file.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path. An empty path searches
// the working directory for config.yaml.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: reading config file: %v", ErrConfiguration, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("%w: binding %s: %v", ErrConfiguration, key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal configuration: %v", ErrConfiguration, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs struct validation over cfg, then checks rules that span
// sections.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("%w: validation failed: %v", ErrConfiguration, err)
	}

	// A provider call still running when the sweeper declares it abandoned
	// would be retried while in flight.
	if cfg.LLM.RequestTimeout >= cfg.Task.StuckGenerationAge {
		return fmt.Errorf("%w: validation failed: llm.request_timeout (%s) must be shorter than task.stuck_generation_age (%s)",
			ErrConfiguration, cfg.LLM.RequestTimeout, cfg.Task.StuckGenerationAge)
	}
	return nil
}
