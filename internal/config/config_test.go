package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"CarbonReporting/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	if err := config.Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
database_dsn: postgres://prod-host/reporting
queue_capacity: 250
refresh:
  hourly_interval: 30m
  prune_keep: 42
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseDSN != "postgres://prod-host/reporting" {
		t.Errorf("dsn: got %s", cfg.DatabaseDSN)
	}
	if cfg.QueueCapacity != 250 {
		t.Errorf("queue capacity: got %d, want 250", cfg.QueueCapacity)
	}
	if cfg.Refresh.HourlyInterval != 30*time.Minute {
		t.Errorf("hourly interval: got %v, want 30m", cfg.Refresh.HourlyInterval)
	}
	if cfg.Refresh.PruneKeep != 42 {
		t.Errorf("prune keep: got %d, want 42", cfg.Refresh.PruneKeep)
	}
	// Untouched fields keep their defaults.
	if cfg.NATSURL != config.Default().NATSURL {
		t.Errorf("nats url should keep default, got %s", cfg.NATSURL)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("nats_url: nats://from-file:4222\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CCM_NATS_URL", "nats://from-env:4222")
	t.Setenv("CCM_STATS_INTERVAL", "10s")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NATSURL != "nats://from-env:4222" {
		t.Errorf("env should win over file, got %s", cfg.NATSURL)
	}
	if cfg.StatsInterval != 10*time.Second {
		t.Errorf("stats interval: got %v, want 10s", cfg.StatsInterval)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("CCM_QUEUE_CAPACITY", "-5")
	if _, err := config.Load(""); err == nil {
		t.Fatal("expected validation error for negative queue capacity")
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := config.Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
