// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Hydrate  HydrateConfig  `mapstructure:"hydration"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Throttle ThrottleConfig `mapstructure:"throttle"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Events   EventsConfig   `mapstructure:"events"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// MonitorConfig governs the run orchestrator.
type MonitorConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	Postcode    string `mapstructure:"postcode"`
	UserAgent   string `mapstructure:"user_agent"`
}

// HTTPConfig configures the static fetch path.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// HydrateConfig configures the headless rendering escalation path. The path
// is strictly opt-in; it is orders of magnitude more expensive than a static
// fetch.
type HydrateConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	MaxParallel        int  `mapstructure:"max_parallel"`
	NavTimeoutSeconds  int  `mapstructure:"nav_timeout_seconds"`
	WaitTimeoutSeconds int  `mapstructure:"wait_timeout_seconds"`
	MaxRetries         int  `mapstructure:"max_retries"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig holds lock backend connection settings. An empty Addr disables
// the backend and the throttle fails open.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ThrottleConfig governs the per-target lock.
type ThrottleConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
	// Strict turns lock backend failures into errors instead of running
	// the guarded action anyway.
	Strict bool `mapstructure:"strict"`
}

// ArchiveConfig sets where page evidence is archived on change.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"` // "", "memory", "local", "gcs"
	Bucket   string `mapstructure:"bucket"`
	BaseDir  string `mapstructure:"base_dir"`
	Prefix   string `mapstructure:"prefix"`
}

// EventsConfig controls stock event notification publishing.
type EventsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// HTTPTimeout returns the static fetch timeout as a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// LockTTL returns the throttle lock TTL as a duration.
func (c Config) LockTTL() time.Duration {
	return time.Duration(c.Throttle.TTLSeconds) * time.Second
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STOCKWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitor.concurrency", 4)
	v.SetDefault("monitor.postcode", "2000")
	v.SetDefault("monitor.user_agent",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("hydration.enabled", false)
	v.SetDefault("hydration.max_parallel", 1)
	v.SetDefault("hydration.nav_timeout_seconds", 30)
	v.SetDefault("hydration.wait_timeout_seconds", 8)
	v.SetDefault("hydration.max_retries", 3)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("redis.db", 0)
	v.SetDefault("throttle.ttl_seconds", 60)
	v.SetDefault("throttle.strict", false)
	v.SetDefault("archive.provider", "")
	v.SetDefault("archive.prefix", "evidence")
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.topic", "stock-events")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Monitor.Concurrency <= 0 {
		return fmt.Errorf("monitor.concurrency must be > 0")
	}
	if c.Monitor.UserAgent == "" {
		return fmt.Errorf("monitor.user_agent is required")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Throttle.TTLSeconds <= 0 {
		return fmt.Errorf("throttle.ttl_seconds must be > 0")
	}
	if c.Hydrate.Enabled {
		if c.Hydrate.WaitTimeoutSeconds <= 0 {
			return fmt.Errorf("hydration.wait_timeout_seconds must be > 0")
		}
		if c.Hydrate.MaxRetries < 0 {
			return fmt.Errorf("hydration.max_retries must be >= 0")
		}
	}
	switch c.Archive.Provider {
	case "", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir is required for the local provider")
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("unknown archive.provider %q", c.Archive.Provider)
	}
	if c.Events.Enabled && c.Events.ProjectID == "" {
		return fmt.Errorf("events.project_id is required when events are enabled")
	}
	return nil
}
