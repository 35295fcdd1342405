package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Config is the root configuration for the matchcore process.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Matching MatchingConfig `yaml:"matching"`
	Kline    KlineConfig    `yaml:"kline"`
	Publish  PublishConfig  `yaml:"publish"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DatabaseConfig configures the Postgres connection shared by the Order
// Store, Match Job Ledger and Kline Store.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	CallTimeout     time.Duration `yaml:"call_timeout"`
}

// DSN renders the Postgres connection string gorm and sqlx both accept.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Database, d.Username, d.Password, d.SSLMode)
}

// MatchingConfig configures the matching scheduler (C3).
type MatchingConfig struct {
	// DefaultMatchIntervalMs is the scheduler sleep between cycles.
	DefaultMatchIntervalMs int `yaml:"default_match_interval_ms"`
	// OrderLockTimeoutSeconds is the lock reclamation threshold.
	OrderLockTimeoutSeconds int `yaml:"order_lock_timeout_seconds"`
	// DefaultBatchSize seeds OrderMatcher.BatchSize for symbols with no
	// persisted override.
	DefaultBatchSize int `yaml:"default_batch_size"`
	// WorkerPoolSize bounds how many symbols are matched concurrently.
	WorkerPoolSize int `yaml:"worker_pool_size"`
	// CancelRetryAttempts/CancelRetryInterval implement the bounded
	// retry for cancelOrder under lock contention (spec §6).
	CancelRetryAttempts int           `yaml:"cancel_retry_attempts"`
	CancelRetryInterval time.Duration `yaml:"cancel_retry_interval"`
	// BreakerMaxFailures opens the circuit breaker guarding Order Store
	// calls after this many consecutive failures.
	BreakerMaxFailures uint32        `yaml:"breaker_max_failures"`
	BreakerOpenTimeout time.Duration `yaml:"breaker_open_timeout"`
}

// KlineConfig configures the kline aggregator (C4).
type KlineConfig struct {
	// SweepIntervals lists intervals for the periodic close-out sweep;
	// defaults to every supported interval. kline.Sweeper does not read
	// this field: it always sweeps every supported interval.
	SweepIntervals []string `yaml:"sweep_intervals"`
}

// PublishConfig configures the event publisher (C5).
type PublishConfig struct {
	BestEffort  bool          `yaml:"best_effort"`
	NatsURL     string        `yaml:"nats_url"`
	TopicPrefix string        `yaml:"topic_prefix"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns a Config populated with the documented defaults from
// spec §6 ("Environment / configuration options").
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "matchcore",
			Username:        "postgres",
			SSLMode:         "disable",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			CallTimeout:     5 * time.Second,
		},
		Matching: MatchingConfig{
			DefaultMatchIntervalMs: 1000,
			OrderLockTimeoutSeconds: 60,
			DefaultBatchSize:        1000,
			WorkerPoolSize:          8,
			CancelRetryAttempts:     5,
			CancelRetryInterval:     200 * time.Millisecond,
			BreakerMaxFailures:      5,
			BreakerOpenTimeout:      30 * time.Second,
		},
		Kline: KlineConfig{
			SweepIntervals: []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d", "1w"},
		},
		Publish: PublishConfig{
			BestEffort:  true,
			NatsURL:     "nats://127.0.0.1:4222",
			TopicPrefix: "",
			RetryDelay:  100 * time.Millisecond,
		},
		Logging: LoggingConfig{Level: "info"},
		Metrics: MetricsConfig{Enabled: true, Address: ":9090"},
	}
}

// Load reads a YAML config file over the defaults and returns a freshly
// built, caller-owned Config. A missing file is not an error; the defaults
// are used as-is. Load never memoizes its result — fx's constructor graph
// already calls it exactly once per process and shares that one instance
// with every consumer, so a package-global cache here would only be a
// second, redundant source of truth (spec §9: "do not use process-global
// singletons").
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// MatchIntervalDuration is DefaultMatchIntervalMs as a time.Duration.
func (m MatchingConfig) MatchIntervalDuration() time.Duration {
	return time.Duration(m.DefaultMatchIntervalMs) * time.Millisecond
}

// LockTimeout is OrderLockTimeoutSeconds as a time.Duration.
func (m MatchingConfig) LockTimeout() time.Duration {
	return time.Duration(m.OrderLockTimeoutSeconds) * time.Second
}

// NewLogger builds a zap.Logger from the logging config.
func NewLogger(cfg LoggingConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}

	zcfg := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err == nil {
		zcfg.Level = level
	}
	return zcfg.Build()
}
