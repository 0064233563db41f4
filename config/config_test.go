package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
gateway:
  name: airapiserv
  version: "1.0"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scheduler.TickInterval != 5*time.Second {
		t.Errorf("tick interval default = %v", cfg.Scheduler.TickInterval)
	}
	if cfg.Scheduler.IdleThreshold != 5 {
		t.Errorf("idle threshold default = %d", cfg.Scheduler.IdleThreshold)
	}
	if got := cfg.Ingest.BucketSizes("spot"); len(got) != 3 || got[0] != 1000 {
		t.Errorf("spot buckets = %v", got)
	}
	if got := cfg.Ingest.BucketSizes("perp"); len(got) != 2 || got[0] != 5000 {
		t.Errorf("perp buckets = %v", got)
	}
}

func TestLoadConfigInvalidJitter(t *testing.T) {
	path := writeConfig(t, `
scheduler:
  jitter_min: 3s
  jitter_max: 1s
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadConfigArchiveRequiresBucket(t *testing.T) {
	path := writeConfig(t, `
storage:
  archive:
    enabled: true
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for missing bucket")
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://override/db")
	path := writeConfig(t, `
storage:
  postgres:
    dsn: postgres://file/db
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Postgres.DSN != "postgres://override/db" {
		t.Errorf("dsn = %s", cfg.Storage.Postgres.DSN)
	}
}
