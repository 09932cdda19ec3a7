package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
node:
  name: kitchen-tablet
  http:
    port: 9090
cluster:
  enabled: true
  seeds: ["10.0.0.2:7946"]
state:
  dir: /var/lib/househelper
sync:
  authority: http://tasks.local:8080
  interval: 30m
  freshness: 2m
log_level: debug
log_file: /var/log/househelper/syncd.log
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Node.Name != "kitchen-tablet" || cfg.Node.HTTP.Port != 9090 {
		t.Errorf("node = %+v", cfg.Node)
	}
	if !cfg.Cluster.Enabled || len(cfg.Cluster.Seeds) != 1 {
		t.Errorf("cluster = %+v", cfg.Cluster)
	}
	if cfg.State.Dir != "/var/lib/househelper" {
		t.Errorf("state dir = %q", cfg.State.Dir)
	}
	if cfg.Sync.Interval != 30*time.Minute || cfg.Sync.Freshness != 2*time.Minute {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if cfg.Sync.Debounce != 250*time.Millisecond || cfg.Sync.ApplyTimeout != 10*time.Second {
		t.Errorf("sync defaults not applied: %+v", cfg.Sync)
	}
	if cfg.LogFile != "/var/log/househelper/syncd.log" {
		t.Errorf("log file = %q", cfg.LogFile)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Sync.Interval != 15*time.Minute {
		t.Errorf("interval = %v, want 15m", cfg.Sync.Interval)
	}
	if cfg.Node.Database.Path != "./tasks.db" || cfg.State.Dir != "./state" {
		t.Errorf("paths = %q, %q", cfg.Node.Database.Path, cfg.State.Dir)
	}
	if cfg.Cluster.Enabled {
		t.Error("cluster enabled by default")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	if cfg.Agent.Port != 8081 {
		t.Errorf("agent port = %d, want 8081", cfg.Agent.Port)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file: expected error")
	}
	if _, err := LoadConfig(writeConfig(t, "node: [")); err == nil {
		t.Error("invalid yaml: expected error")
	}
	if _, err := LoadConfig(writeConfig(t, "sync:\n  interval: soon\n")); err == nil {
		t.Error("invalid duration: expected error")
	}
	if _, err := LoadConfig(writeConfig(t, "node:\n  http:\n    port: 70000\n")); err == nil {
		t.Error("invalid port: expected error")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
