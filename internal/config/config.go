// Package config defines the Conductor's configuration surface: one
// struct per component with a Validate method that fills in spec
// defaults, loaded from the environment via caarlos0/env and optionally
// overridden by a YAML file.
package config

import (
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the Conductor's root configuration. Every field is optional;
// Validate fills in defaults matching the external interface table.
type Config struct {
	Isolation IsolationConfig `yaml:"isolation"`
	Router    RouterConfig    `yaml:"router"`
	Scaler    ScalerConfig    `yaml:"scaler"`
	Autonomy  AutonomyConfig  `yaml:"autonomy"`
	Resource  ResourceConfig  `yaml:"resource"`
	Log       LogConfig       `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
	Admin     AdminConfig     `yaml:"admin"`
}

// IsolationConfig configures the isolated plugin runner (D).
type IsolationConfig struct {
	MemoryLimitMB  int    `yaml:"memory_limit_mb" env:"CONDUCTOR_ISOLATION_MEMORY_LIMIT_MB"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"CONDUCTOR_ISOLATION_TIMEOUT_SECONDS"`
	ScriptsDir     string `yaml:"scripts_dir" env:"CONDUCTOR_ISOLATION_SCRIPTS_DIR"`
}

// RouterConfig configures the request router and DLQ (E/F).
type RouterConfig struct {
	DefaultRequestTimeoutSeconds int `yaml:"default_request_timeout" env:"CONDUCTOR_DEFAULT_REQUEST_TIMEOUT"`
	DLQMaxRetries                int `yaml:"dlq_max_retries" env:"CONDUCTOR_DLQ_MAX_RETRIES"`
	DLQPollIntervalSeconds       int `yaml:"dlq_poll_interval_seconds" env:"CONDUCTOR_DLQ_POLL_INTERVAL_SECONDS"`
}

// ScalerConfig configures the predictive scaler (B).
type ScalerConfig struct {
	RAMThreshold       float64 `yaml:"ram_threshold" env:"SYSTEM_RAM_THRESHOLD"`
	EMAAlpha           float64 `yaml:"ema_alpha" env:"SCALER_EMA_ALPHA"`
	EmergencyThreshold float64 `yaml:"emergency_threshold" env:"SCALER_EMERGENCY_THRESHOLD"`
}

// AutonomyConfig configures the autonomy coordinator (G).
type AutonomyConfig struct {
	CheckIntervalSeconds    int                `yaml:"check_interval" env:"AUTONOMY_CHECK_INTERVAL"`
	CooldownMinutes         int                `yaml:"cooldown_minutes" env:"AUTONOMY_COOLDOWN_MINUTES"`
	MaxAutonomousPerHour    int                `yaml:"max_autonomous_per_hour" env:"AUTONOMY_MAX_AUTONOMOUS_PER_HOUR"`
	TriggerThresholds       map[string]float64 `yaml:"trigger_thresholds"`
	PlatformSettings        PlatformSettings   `yaml:"platform_settings"`
	AppropriateHoursTZ      string             `yaml:"appropriate_hours_timezone" env:"AUTONOMY_APPROPRIATE_HOURS_TIMEZONE"`
}

// PlatformSettings bounds platform-facing output from autonomy actions.
type PlatformSettings struct {
	MaxMessageLength int `yaml:"max_message_length" env:"AUTONOMY_MAX_MESSAGE_LENGTH"`
}

// ResourceConfig configures the resource monitor (A).
type ResourceConfig struct {
	WindowSize               int `yaml:"window_size" env:"RESOURCE_WINDOW_SIZE"`
	CollectionIntervalSeconds int `yaml:"collection_interval" env:"RESOURCE_COLLECTION_INTERVAL"`
}

// LogConfig configures clog.
type LogConfig struct {
	Level  string `yaml:"level" env:"CONDUCTOR_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"CONDUCTOR_LOG_PRETTY"`
}

// RedisConfig configures the DLQ's optional Redis-backed persistence.
// When Addr is empty, the router falls back to an in-memory DLQ store.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"CONDUCTOR_REDIS_ADDR"`
	Password string `yaml:"password" env:"CONDUCTOR_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"CONDUCTOR_REDIS_DB"`
}

// AdminConfig configures the admin HTTP surface (/healthz, /metrics, /debug/*).
type AdminConfig struct {
	Addr string `yaml:"addr" env:"CONDUCTOR_ADMIN_ADDR"`
}

// Load reads environment variables into a Config, optionally overlaying a
// YAML file at path first (YAML sets defaults the env can still override),
// then validates and fills remaining defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.Validate()
	return cfg, nil
}

// Validate fills in every field left at its zero value with the spec's
// documented default. It never returns an error: every field in Config has
// a well-defined default, so configuration can never be "invalid", only
// incomplete.
func (c *Config) Validate() {
	if c.Isolation.MemoryLimitMB <= 0 {
		c.Isolation.MemoryLimitMB = 512
	}
	if c.Isolation.TimeoutSeconds <= 0 {
		c.Isolation.TimeoutSeconds = 30
	}
	if c.Isolation.ScriptsDir == "" {
		c.Isolation.ScriptsDir = "./plugins"
	}

	if c.Router.DefaultRequestTimeoutSeconds <= 0 {
		c.Router.DefaultRequestTimeoutSeconds = 5
	}
	if c.Router.DLQMaxRetries <= 0 {
		c.Router.DLQMaxRetries = 3
	}
	if c.Router.DLQPollIntervalSeconds <= 0 {
		c.Router.DLQPollIntervalSeconds = 5
	}

	if c.Scaler.RAMThreshold <= 0 {
		c.Scaler.RAMThreshold = 80
	}
	if c.Scaler.EMAAlpha <= 0 {
		c.Scaler.EMAAlpha = 0.7
	}
	if c.Scaler.EmergencyThreshold <= 0 {
		c.Scaler.EmergencyThreshold = 95
	}

	if c.Autonomy.CheckIntervalSeconds <= 0 {
		c.Autonomy.CheckIntervalSeconds = 900
	}
	if c.Autonomy.CooldownMinutes <= 0 {
		c.Autonomy.CooldownMinutes = 60
	}
	if c.Autonomy.MaxAutonomousPerHour <= 0 {
		c.Autonomy.MaxAutonomousPerHour = 5
	}
	if c.Autonomy.TriggerThresholds == nil {
		c.Autonomy.TriggerThresholds = map[string]float64{}
	}
	if c.Autonomy.PlatformSettings.MaxMessageLength <= 0 {
		c.Autonomy.PlatformSettings.MaxMessageLength = 2000
	}
	if c.Autonomy.AppropriateHoursTZ == "" {
		c.Autonomy.AppropriateHoursTZ = "Local"
	}

	if c.Resource.WindowSize <= 0 {
		c.Resource.WindowSize = 60
	}
	if c.Resource.CollectionIntervalSeconds <= 0 {
		c.Resource.CollectionIntervalSeconds = 30
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Admin.Addr == "" {
		c.Admin.Addr = ":9090"
	}
}

// EnableDisableThreshold returns the scaler's hysteresis enable threshold,
// defined as disable_threshold - 15 per spec.
func (c *ScalerConfig) EnableDisableThreshold() float64 {
	return c.RAMThreshold - 15
}
