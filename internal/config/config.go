package config

import (
	"fmt"
	"os"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"regwatch/internal/digest"
	"regwatch/internal/dispatch"
	"regwatch/internal/engine"
	"regwatch/internal/sender"
)

// Config is the root runtime configuration, loaded from one YAML file and
// translated into the per-component configs at wiring time.
type Config struct {
	Log struct {
		Level   string `yaml:"level"`
		Console bool   `yaml:"console"`
	} `yaml:"log"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Registry struct {
		URL          string   `yaml:"url"`
		FetchTimeout Duration `yaml:"fetch_timeout"`
		PollInterval Duration `yaml:"poll_interval"`
	} `yaml:"registry"`

	Dispatch struct {
		RetryMax          int      `yaml:"retry_max"`
		RetryInitialDelay Duration `yaml:"retry_initial_delay"`
		SendTimeout       Duration `yaml:"send_timeout"`
		RatePerSec        int      `yaml:"rate_per_sec"`
	} `yaml:"dispatch"`

	Digest struct {
		DailyHour         int      `yaml:"daily_hour"`
		WeeklyWeekday     string   `yaml:"weekly_weekday"`
		CleanupHour       int      `yaml:"cleanup_hour"`
		SnapshotRetention Duration `yaml:"snapshot_retention"`
		SendTimeout       Duration `yaml:"send_timeout"`
	} `yaml:"digest"`

	Telegram struct {
		Token string `yaml:"token"`
	} `yaml:"telegram"`

	SMTP sender.SMTPConfig `yaml:"smtp"`
}

// Default returns a Config populated with development defaults: info
// logging, a local database file, five-minute polls.
func Default() *Config {
	cfg := &Config{}
	cfg.Log.Level = "info"
	cfg.Database.Path = "regwatch.db"
	cfg.Registry.FetchTimeout = Duration(30 * time.Second)
	cfg.Registry.PollInterval = Duration(5 * time.Minute)
	cfg.Digest.DailyHour = 9
	cfg.Digest.WeeklyWeekday = "monday"
	cfg.Digest.CleanupHour = 3
	cfg.Digest.SnapshotRetention = Duration(30 * 24 * time.Hour)
	return cfg
}

// Load reads the YAML file at path over the defaults. A missing registry
// URL is an error; everything else has a workable default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Registry.URL == "" {
		return nil, fmt.Errorf("config %s: registry.url is required", path)
	}
	return cfg, nil
}

// EngineConfig translates to the engine's poll settings.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{PollInterval: c.Registry.PollInterval.Std()}
}

// DispatchConfig translates to the dispatcher's delivery settings.
// Zero values fall back to dispatch defaults.
func (c *Config) DispatchConfig() dispatch.Config {
	return dispatch.Config{
		RetryMax:          c.Dispatch.RetryMax,
		RetryInitialDelay: c.Dispatch.RetryInitialDelay.Std(),
		SendTimeout:       c.Dispatch.SendTimeout.Std(),
		RatePerSec:        c.Dispatch.RatePerSec,
	}
}

// SchedulerConfig translates to the digest scheduler's trigger settings.
func (c *Config) SchedulerConfig() digest.SchedulerConfig {
	return digest.SchedulerConfig{
		DailyHour:         c.Digest.DailyHour,
		WeeklyWeekday:     parseWeekday(c.Digest.WeeklyWeekday),
		CleanupHour:       c.Digest.CleanupHour,
		SnapshotRetention: c.Digest.SnapshotRetention.Std(),
	}
}

func parseWeekday(s string) time.Weekday {
	switch s {
	case "sunday":
		return time.Sunday
	case "tuesday":
		return time.Tuesday
	case "wednesday":
		return time.Wednesday
	case "thursday":
		return time.Thursday
	case "friday":
		return time.Friday
	case "saturday":
		return time.Saturday
	default:
		return time.Monday
	}
}
