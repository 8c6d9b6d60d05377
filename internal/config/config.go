// Package config loads the service configuration from YAML with
// ${ENV_VAR} placeholder expansion and sensible defaults.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Primary struct {
		DSN      string `yaml:"dsn"`
		MaxConns int    `yaml:"max_conns"`
	} `yaml:"primary"`

	Backup struct {
		Path string `yaml:"path"`
	} `yaml:"backup"`

	Snapshot struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"snapshot"`

	Booking struct {
		ReferenceAttempts int `yaml:"reference_attempts"`
		RetentionDays     int `yaml:"retention_days"`
	} `yaml:"booking"`

	Failover struct {
		RecoveryBackoffSeconds int `yaml:"recovery_backoff_seconds"`
		HealthIntervalMinutes  int `yaml:"health_interval_minutes"`
		ExpectedSlotCount      int `yaml:"expected_slot_count"`
	} `yaml:"failover"`

	Idempotency struct {
		TTLSeconds     int    `yaml:"ttl_seconds"`
		SweepSeconds   int    `yaml:"sweep_seconds"`
		KeyReusePolicy string `yaml:"key_reuse_policy"`
	} `yaml:"idempotency"`

	RateLimit struct {
		MaxRequests   int `yaml:"max_requests"`
		WindowSeconds int `yaml:"window_seconds"`
	} `yaml:"rate_limit"`

	Monitoring struct {
		HealthPort        int  `yaml:"health_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Backup.Path == "" {
		cfg.Backup.Path = "data/bookingd.db"
	}
	if err = os.MkdirAll(filepath.Dir(cfg.Backup.Path), 0o755); err != nil {
		return nil, err
	}

	if cfg.Monitoring.HealthPort == 0 {
		cfg.Monitoring.HealthPort = 8090
	}

	return &cfg, nil
}

func (c *Config) RecoveryBackoff() time.Duration {
	if c.Failover.RecoveryBackoffSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Failover.RecoveryBackoffSeconds) * time.Second
}

func (c *Config) HealthInterval() time.Duration {
	if c.Failover.HealthIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Failover.HealthIntervalMinutes) * time.Minute
}

func (c *Config) IdempotencyTTL() time.Duration {
	if c.Idempotency.TTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Idempotency.TTLSeconds) * time.Second
}

func (c *Config) IdempotencySweep() time.Duration {
	if c.Idempotency.SweepSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Idempotency.SweepSeconds) * time.Second
}

func (c *Config) RateLimitWindow() time.Duration {
	if c.RateLimit.WindowSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}

func (c *Config) SnapshotInterval() time.Duration {
	if c.Snapshot.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Snapshot.IntervalHours) * time.Hour
}
