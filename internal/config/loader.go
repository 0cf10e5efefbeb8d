package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

type LoadOptions struct {
	ConfigFile string
	EnvPrefix  string
	Defaults   *Config
}

func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()

	defaults := opts.Defaults
	if defaults == nil {
		defaults = Default()
	}
	setViperDefaults(v, defaults)

	if opts.EnvPrefix == "" {
		opts.EnvPrefix = "HOOKFLOW"
	}
	v.SetEnvPrefix(opts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("hookflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/hookflow")
		v.AddConfigPath("/etc/hookflow")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func LoadFromFile(path string) (*Config, error) {
	return Load(LoadOptions{ConfigFile: path})
}

func LoadWithDefaults() (*Config, error) {
	return Load(LoadOptions{})
}

func setViperDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", cfg.Server.IdleTimeout)
	v.SetDefault("server.max_body_size", cfg.Server.MaxBodySize)

	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("database.wal_mode", cfg.Database.WALMode)
	v.SetDefault("database.busy_timeout", cfg.Database.BusyTimeout)
	v.SetDefault("database.foreign_keys", cfg.Database.ForeignKeys)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", cfg.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", cfg.Database.ConnMaxLifetime)

	v.SetDefault("secrets.master_key", cfg.Secrets.MasterKey)
	v.SetDefault("secrets.decrypt_timeout", cfg.Secrets.DecryptTimeout)

	v.SetDefault("webhook.signature_header", cfg.Webhook.SignatureHeader)
	v.SetDefault("webhook.timestamp_header", cfg.Webhook.TimestampHeader)
	v.SetDefault("webhook.max_replay_window", cfg.Webhook.MaxReplayWindow)
	v.SetDefault("webhook.rate_limit.enabled", cfg.Webhook.RateLimit.Enabled)
	v.SetDefault("webhook.rate_limit.max", cfg.Webhook.RateLimit.Max)
	v.SetDefault("webhook.rate_limit.window", cfg.Webhook.RateLimit.Window)

	v.SetDefault("engine.workers", cfg.Engine.Workers)
	v.SetDefault("engine.poll_interval", cfg.Engine.PollInterval)
	v.SetDefault("engine.node_timeout", cfg.Engine.NodeTimeout)
	v.SetDefault("engine.max_node_attempts", cfg.Engine.MaxNodeAttempts)
	v.SetDefault("engine.retry_base_delay", cfg.Engine.RetryBaseDelay)

	v.SetDefault("monitor.metrics_window", cfg.Monitor.MetricsWindow)
	v.SetDefault("monitor.slowest_scenarios", cfg.Monitor.SlowestScenarios)
	v.SetDefault("monitor.max_watchers", cfg.Monitor.MaxWatchers)

	v.SetDefault("retention.enabled", cfg.Retention.Enabled)
	v.SetDefault("retention.schedule", cfg.Retention.Schedule)
	v.SetDefault("retention.idempotency_window", cfg.Retention.IdempotencyWindow)
	v.SetDefault("retention.run_window", cfg.Retention.RunWindow)

	v.SetDefault("scenarios.seed_file", cfg.Scenarios.SeedFile)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
}
