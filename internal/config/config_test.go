package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "regwatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  console: true
database:
  path: /var/lib/regwatch/regwatch.db
registry:
  url: https://registry.example.com/v0/servers
  fetch_timeout: 15s
  poll_interval: 2m
dispatch:
  retry_max: 5
  retry_initial_delay: 2s
  send_timeout: 20s
  rate_per_sec: 50
digest:
  daily_hour: 7
  weekly_weekday: friday
  cleanup_hour: 4
  snapshot_retention: 168h
  send_timeout: 45s
telegram:
  token: "123:abc"
smtp:
  addr: smtp.example.com:587
  from: regwatch@example.com
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Log.Level != "debug" || !cfg.Log.Console {
		t.Errorf("log section lost: %+v", cfg.Log)
	}
	if cfg.Database.Path != "/var/lib/regwatch/regwatch.db" {
		t.Errorf("database path lost: %q", cfg.Database.Path)
	}
	if cfg.Registry.URL != "https://registry.example.com/v0/servers" {
		t.Errorf("registry url lost: %q", cfg.Registry.URL)
	}
	if cfg.Registry.PollInterval.Std() != 2*time.Minute {
		t.Errorf("poll interval wrong: %s", cfg.Registry.PollInterval.Std())
	}

	dc := cfg.DispatchConfig()
	if dc.RetryMax != 5 || dc.RetryInitialDelay != 2*time.Second || dc.SendTimeout != 20*time.Second || dc.RatePerSec != 50 {
		t.Errorf("dispatch translation wrong: %+v", dc)
	}

	sc := cfg.SchedulerConfig()
	if sc.DailyHour != 7 || sc.WeeklyWeekday != time.Friday || sc.CleanupHour != 4 {
		t.Errorf("scheduler translation wrong: %+v", sc)
	}
	if sc.SnapshotRetention != 168*time.Hour {
		t.Errorf("retention wrong: %s", sc.SnapshotRetention)
	}

	ec := cfg.EngineConfig()
	if ec.PollInterval != 2*time.Minute {
		t.Errorf("engine translation wrong: %+v", ec)
	}

	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("telegram token lost")
	}
	if cfg.SMTP.Addr != "smtp.example.com:587" || cfg.SMTP.From != "regwatch@example.com" {
		t.Errorf("smtp section lost: %+v", cfg.SMTP)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
registry:
  url: https://registry.example.com/v0/servers
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level info, got %q", cfg.Log.Level)
	}
	if cfg.Database.Path != "regwatch.db" {
		t.Errorf("expected default db path, got %q", cfg.Database.Path)
	}
	if cfg.Registry.PollInterval.Std() != 5*time.Minute {
		t.Errorf("expected default 5m poll, got %s", cfg.Registry.PollInterval.Std())
	}
	if got := cfg.SchedulerConfig(); got.DailyHour != 9 || got.WeeklyWeekday != time.Monday {
		t.Errorf("expected digest defaults, got %+v", got)
	}
}

func TestLoadRequiresRegistryURL(t *testing.T) {
	path := writeConfig(t, `
log:
  level: info
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "registry.url") {
		t.Fatalf("expected registry.url error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadBadDuration(t *testing.T) {
	path := writeConfig(t, `
registry:
  url: https://registry.example.com/v0/servers
  poll_interval: soon
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestParseWeekday(t *testing.T) {
	if parseWeekday("wednesday") != time.Wednesday {
		t.Error("wednesday not parsed")
	}
	if parseWeekday("not-a-day") != time.Monday {
		t.Error("unknown day must fall back to monday")
	}
}
