package config

import "time"

// Default configuration values.
const (
	// Server defaults.
	DefaultHost         = "localhost"
	DefaultPort         = 8090
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultIdleTimeout  = 120 * time.Second
	DefaultMaxBodySize  = 5 * 1024 * 1024 // 5MB

	// Database defaults.
	DefaultDBPath       = "hookflow.db"
	DefaultBusyTimeout  = 5 * time.Second
	DefaultMaxOpenConns = 1 // SQLite works best with single writer
	DefaultMaxIdleConns = 1

	// Webhook defaults.
	DefaultSignatureHeader = "X-Signature"
	DefaultTimestampHeader = "X-Timestamp"
	DefaultMaxReplayWindow = 5 * time.Minute
	DefaultRateLimitMax    = 120
	DefaultRateLimitWindow = time.Minute

	// Engine defaults.
	DefaultEngineWorkers   = 4
	DefaultEnginePoll      = 250 * time.Millisecond
	DefaultNodeTimeout     = 30 * time.Second
	DefaultMaxNodeAttempts = 3
	DefaultRetryBaseDelay  = 500 * time.Millisecond

	// Monitor defaults.
	DefaultMetricsWindow    = 30 * 24 * time.Hour
	DefaultSlowestScenarios = 5
	DefaultMaxWatchers      = 100

	// Retention defaults. The idempotency window must outlive any
	// realistic sender retry schedule.
	DefaultRetentionSchedule  = "@hourly"
	DefaultIdempotencyWindow  = 7 * 24 * time.Hour
	DefaultRunRetentionWindow = 90 * 24 * time.Hour

	// Secrets defaults.
	DefaultDecryptTimeout = 2 * time.Second

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
		},
		Database: DatabaseConfig{
			Path:            DefaultDBPath,
			WALMode:         true,
			BusyTimeout:     DefaultBusyTimeout,
			ForeignKeys:     true,
			MaxOpenConns:    DefaultMaxOpenConns,
			MaxIdleConns:    DefaultMaxIdleConns,
			ConnMaxLifetime: 0, // No limit
		},
		Secrets: SecretsConfig{
			DecryptTimeout: DefaultDecryptTimeout,
		},
		Webhook: WebhookConfig{
			SignatureHeader: DefaultSignatureHeader,
			TimestampHeader: DefaultTimestampHeader,
			MaxReplayWindow: DefaultMaxReplayWindow,
			RateLimit: RateLimitRule{
				Enabled: true,
				Max:     DefaultRateLimitMax,
				Window:  DefaultRateLimitWindow,
			},
		},
		Engine: EngineConfig{
			Workers:         DefaultEngineWorkers,
			PollInterval:    DefaultEnginePoll,
			NodeTimeout:     DefaultNodeTimeout,
			MaxNodeAttempts: DefaultMaxNodeAttempts,
			RetryBaseDelay:  DefaultRetryBaseDelay,
		},
		Monitor: MonitorConfig{
			MetricsWindow:    DefaultMetricsWindow,
			SlowestScenarios: DefaultSlowestScenarios,
			MaxWatchers:      DefaultMaxWatchers,
		},
		Retention: RetentionConfig{
			Enabled:           true,
			Schedule:          DefaultRetentionSchedule,
			IdempotencyWindow: DefaultIdempotencyWindow,
			RunWindow:         DefaultRunRetentionWindow,
		},
		Scenarios: ScenariosConfig{},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
