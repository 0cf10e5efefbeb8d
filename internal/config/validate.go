package config

import (
	"encoding/hex"
	"fmt"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

func Validate(cfg *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateDatabase(&cfg.Database)...)
	errs = append(errs, validateSecrets(&cfg.Secrets)...)
	errs = append(errs, validateWebhook(&cfg.Webhook)...)
	errs = append(errs, validateEngine(&cfg.Engine)...)
	errs = append(errs, validateMonitor(&cfg.Monitor)...)
	errs = append(errs, validateRetention(&cfg.Retention)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateServer(cfg *ServerConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "must be between 1 and 65535",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.read_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.WriteTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.write_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.MaxBodySize < 1024 {
		errs = append(errs, ValidationError{
			Field:   "server.max_body_size",
			Message: "must be at least 1024 bytes",
		})
	}

	return errs
}

func validateDatabase(cfg *DatabaseConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "database.path",
			Message: "must not be empty",
		})
	}

	if cfg.MaxOpenConns < 1 {
		errs = append(errs, ValidationError{
			Field:   "database.max_open_conns",
			Message: "must be at least 1",
		})
	}

	return errs
}

func validateSecrets(cfg *SecretsConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.MasterKey != "" {
		key, err := hex.DecodeString(cfg.MasterKey)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "secrets.master_key",
				Message: "must be hex-encoded",
			})
		} else if len(key) != 32 {
			errs = append(errs, ValidationError{
				Field:   "secrets.master_key",
				Message: "must decode to exactly 32 bytes",
			})
		}
	}

	if cfg.DecryptTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "secrets.decrypt_timeout",
			Message: "must be positive",
		})
	}

	return errs
}

func validateWebhook(cfg *WebhookConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.SignatureHeader == "" {
		errs = append(errs, ValidationError{
			Field:   "webhook.signature_header",
			Message: "must not be empty",
		})
	}

	if cfg.MaxReplayWindow <= 0 {
		errs = append(errs, ValidationError{
			Field:   "webhook.max_replay_window",
			Message: "must be positive",
		})
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.Max < 1 {
			errs = append(errs, ValidationError{
				Field:   "webhook.rate_limit.max",
				Message: "must be at least 1 when rate limiting is enabled",
			})
		}
		if cfg.RateLimit.Window <= 0 {
			errs = append(errs, ValidationError{
				Field:   "webhook.rate_limit.window",
				Message: "must be positive when rate limiting is enabled",
			})
		}
	}

	return errs
}

func validateEngine(cfg *EngineConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Workers < 1 {
		errs = append(errs, ValidationError{
			Field:   "engine.workers",
			Message: "must be at least 1",
		})
	}

	if cfg.PollInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "engine.poll_interval",
			Message: "must be positive",
		})
	}

	if cfg.NodeTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "engine.node_timeout",
			Message: "must be positive",
		})
	}

	if cfg.MaxNodeAttempts < 1 {
		errs = append(errs, ValidationError{
			Field:   "engine.max_node_attempts",
			Message: "must be at least 1",
		})
	}

	return errs
}

func validateMonitor(cfg *MonitorConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.MetricsWindow <= 0 {
		errs = append(errs, ValidationError{
			Field:   "monitor.metrics_window",
			Message: "must be positive",
		})
	}

	if cfg.SlowestScenarios < 1 {
		errs = append(errs, ValidationError{
			Field:   "monitor.slowest_scenarios",
			Message: "must be at least 1",
		})
	}

	return errs
}

func validateRetention(cfg *RetentionConfig) ValidationErrors {
	var errs ValidationErrors

	if !cfg.Enabled {
		return nil
	}

	if cfg.Schedule == "" {
		errs = append(errs, ValidationError{
			Field:   "retention.schedule",
			Message: "must not be empty when retention is enabled",
		})
	}

	if cfg.IdempotencyWindow <= 0 {
		errs = append(errs, ValidationError{
			Field:   "retention.idempotency_window",
			Message: "must be positive",
		})
	}

	if cfg.RunWindow <= 0 {
		errs = append(errs, ValidationError{
			Field:   "retention.run_window",
			Message: "must be positive",
		})
	}

	return errs
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch cfg.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of: trace, debug, info, warn, error",
		})
	}

	switch cfg.Format {
	case "", "console", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be console or json",
		})
	}

	return errs
}
