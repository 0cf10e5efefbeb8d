// Package config provides configuration management for Hookflow.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure for Hookflow.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Retention RetentionConfig `mapstructure:"retention"`
	Scenarios ScenariosConfig `mapstructure:"scenarios"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind the server to
	Host string `mapstructure:"host"`

	// Port to listen on
	Port int `mapstructure:"port"`

	// Request timeouts
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// Maximum webhook body size in bytes
	MaxBodySize int64 `mapstructure:"max_body_size"`
}

// Address returns the host:port string for the HTTP listener.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string `mapstructure:"path"`

	// Enable WAL mode (recommended)
	WALMode bool `mapstructure:"wal_mode"`

	// Busy timeout
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`

	// Enable foreign keys
	ForeignKeys bool `mapstructure:"foreign_keys"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SecretsConfig holds credential encryption settings.
type SecretsConfig struct {
	// MasterKey is the hex-encoded 32-byte key used to seal connection
	// credentials at rest. Usually supplied via HOOKFLOW_SECRETS_MASTER_KEY.
	MasterKey string `mapstructure:"master_key"`

	// DecryptTimeout bounds a single credential unseal operation.
	DecryptTimeout time.Duration `mapstructure:"decrypt_timeout"`
}

// WebhookConfig holds inbound webhook verification settings.
type WebhookConfig struct {
	// SignatureHeader carrying "<algo>=<hex>" (default "X-Signature")
	SignatureHeader string `mapstructure:"signature_header"`

	// TimestampHeader carrying unix milliseconds (default "X-Timestamp")
	TimestampHeader string `mapstructure:"timestamp_header"`

	// MaxReplayWindow rejects timestamps older than this (default 5m)
	MaxReplayWindow time.Duration `mapstructure:"max_replay_window"`

	// RateLimit throttles deliveries per trigger key and sender address
	RateLimit RateLimitRule `mapstructure:"rate_limit"`
}

// RateLimitRule is a token bucket rule: Max requests per Window.
type RateLimitRule struct {
	Enabled bool          `mapstructure:"enabled"`
	Max     int           `mapstructure:"max"`
	Window  time.Duration `mapstructure:"window"`
}

// EngineConfig holds scenario execution engine settings.
type EngineConfig struct {
	// Workers is the number of concurrent run executors
	Workers int `mapstructure:"workers"`

	// PollInterval is how often to poll for pending runs
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// NodeTimeout bounds a single node execution
	NodeTimeout time.Duration `mapstructure:"node_timeout"`

	// Node retry settings for retryable failures
	MaxNodeAttempts int           `mapstructure:"max_node_attempts"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"`
}

// MonitorConfig holds execution monitor settings.
type MonitorConfig struct {
	// MetricsWindow bounds the historical window for aggregate metrics
	MetricsWindow time.Duration `mapstructure:"metrics_window"`

	// SlowestScenarios is the top-N size for the slowest-scenario list
	SlowestScenarios int `mapstructure:"slowest_scenarios"`

	// MaxWatchers caps concurrent websocket watchers
	MaxWatchers int `mapstructure:"max_watchers"`
}

// RetentionConfig holds background cleanup settings.
type RetentionConfig struct {
	// Enabled toggles the retention sweeps
	Enabled bool `mapstructure:"enabled"`

	// Schedule is a cron expression for the sweep cadence
	Schedule string `mapstructure:"schedule"`

	// IdempotencyWindow keeps idempotency records at least this long.
	// Must exceed any realistic sender retry window.
	IdempotencyWindow time.Duration `mapstructure:"idempotency_window"`

	// RunWindow keeps terminal runs and node results at least this long
	RunWindow time.Duration `mapstructure:"run_window"`
}

// ScenariosConfig holds scenario bootstrap settings.
type ScenariosConfig struct {
	// SeedFile is an optional YAML file of scenarios and connections
	// loaded at startup (existing records are left untouched).
	SeedFile string `mapstructure:"seed_file"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Format: console or json
	Format string `mapstructure:"format"`
}
