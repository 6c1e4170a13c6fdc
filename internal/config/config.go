// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New() builds a Config with defaults; Load layers a YAML file and the
//     environment on top of it.
//   - Every threshold of the risk model lives under the risk and lifecycle keys.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/okian/shipwatch/internal/domain/lifecycle"
	"github.com/okian/shipwatch/internal/domain/scoring"
)

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory recompute queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of recompute workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize bounds the set of remembered event IDs.
	DedupeSize int `koanf:"dedupe_size"`
	// MaxListLimit caps the limit of list endpoints.
	MaxListLimit int `koanf:"max_list_limit"`

	// AlertStalenessMinutes is how long a stored alert is served before it is recomputed.
	AlertStalenessMinutes int `koanf:"alert_staleness_minutes"`
	// RefreshIntervalSeconds is the period of the stale-alert sweep; 0 disables it.
	RefreshIntervalSeconds int `koanf:"refresh_interval_seconds"`
	// ComputeTimeoutMS bounds one recompute job.
	ComputeTimeoutMS int `koanf:"compute_timeout_ms"`

	DBDriver string `koanf:"db_driver"`
	DBPath   string `koanf:"db_path"`
	DBDSN    string `koanf:"db_dsn"`

	// RedisAddr enables the alert cache when set.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// KafkaBrokers is a comma-separated broker list; empty disables Kafka.
	KafkaBrokers     string `koanf:"kafka_brokers"`
	KafkaEventsTopic string `koanf:"kafka_events_topic"`
	KafkaAlertsTopic string `koanf:"kafka_alerts_topic"`
	KafkaGroup       string `koanf:"kafka_group"`

	// CitiesFile extends the built-in city table from YAML.
	CitiesFile string `koanf:"cities_file"`
	// SeverityScheme is "three" or "five".
	SeverityScheme string `koanf:"severity_scheme"`
	// JitterSeed enables seeded jitter of synthesized timestamps when non-zero.
	JitterSeed int64 `koanf:"jitter_seed"`

	Risk      scoring.Policy  `koanf:"risk"`
	Lifecycle lifecycle.Rules `koanf:"lifecycle"`
}

// New creates a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		QueueSize:              10_000,
		WorkerCount:            runtime.NumCPU() * 2,
		DedupeSize:             500_000,
		MaxListLimit:           500,
		AlertStalenessMinutes:  15,
		RefreshIntervalSeconds: 60,
		ComputeTimeoutMS:       2_000,
		DBDriver:               DriverSQLite,
		DBPath:                 "shipwatch.db",
		KafkaEventsTopic:       "shipment-events",
		KafkaAlertsTopic:       "shipment-alerts",
		KafkaGroup:             "shipwatch",
		SeverityScheme:         scoring.SchemeThree,
		Risk:                   scoring.DefaultPolicy(),
		Lifecycle:              lifecycle.DefaultRules(),
	}
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.QueueSize <= 0 || c.WorkerCount <= 0 {
		return fmt.Errorf("%w: queue_size and worker_count must be positive", ErrInvalidConfig)
	}
	if c.MaxListLimit <= 0 {
		return fmt.Errorf("%w: max_list_limit must be positive", ErrInvalidConfig)
	}
	if c.AlertStalenessMinutes <= 0 || c.ComputeTimeoutMS <= 0 || c.RefreshIntervalSeconds < 0 {
		return fmt.Errorf("%w: alert_staleness_minutes and compute_timeout_ms must be positive", ErrInvalidConfig)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("%w: db_path is required for sqlite", ErrInvalidConfig)
		}
	case DriverPostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("%w: db_dsn is required for postgres", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown db_driver %q", ErrInvalidConfig, c.DBDriver)
	}
	if len(c.Brokers()) > 0 && (c.KafkaEventsTopic == "" || c.KafkaGroup == "") {
		return fmt.Errorf("%w: kafka_events_topic and kafka_group are required with kafka_brokers", ErrInvalidConfig)
	}
	if _, err := scoring.ParseScheme(c.SeverityScheme); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Lifecycle.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Brokers splits KafkaBrokers.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// AlertStaleness returns the alert freshness window.
func (c *Config) AlertStaleness() time.Duration {
	return time.Duration(c.AlertStalenessMinutes) * time.Minute
}

// RefreshInterval returns the sweep period, zero when disabled.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

// ComputeTimeout returns the per-job deadline.
func (c *Config) ComputeTimeout() time.Duration {
	return time.Duration(c.ComputeTimeoutMS) * time.Millisecond
}
